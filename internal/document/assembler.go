package document

import (
	"github.com/Adithya-Monish-Kumar-K/book-ingest/internal/epub"
	"github.com/Adithya-Monish-Kumar-K/book-ingest/internal/extract"
	"github.com/Adithya-Monish-Kumar-K/book-ingest/internal/identity"
	"github.com/Adithya-Monish-Kumar-K/book-ingest/internal/metadata"
)

// Assembler builds Documents from EPUB bytes.
type Assembler struct {
	resolver *metadata.Resolver
}

// NewAssembler returns an Assembler using resolver, or the default resolver
// when nil.
func NewAssembler(resolver *metadata.Resolver) *Assembler {
	if resolver == nil {
		resolver = metadata.NewResolver(nil)
	}
	return &Assembler{resolver: resolver}
}

// Assemble parses raw as the EPUB named name and returns its Document. link is
// stored as is. The only error is a ParseError for an unreadable container.
func (a *Assembler) Assemble(name string, raw []byte, link string) (*Document, error) {
	c, err := epub.Open(name, raw)
	if err != nil {
		return nil, err
	}

	sections := make([]Section, 0, len(c.Items))
	paragraphs := make([][]string, 0, len(c.Items))
	for _, item := range c.Items {
		label, paras := extract.Extract(item.Name, item.Content)
		if len(paras) == 0 {
			continue
		}
		sections = append(sections, Section{Label: label, Paragraphs: paras})
		paragraphs = append(paragraphs, paras)
	}

	base := BaseName(name)
	rec := a.resolver.Resolve(metadata.Input{
		Fields:   containerFields{c},
		Sections: paragraphs,
		BaseName: base,
	})
	id := identity.Derive(identifiers(c), c.UniqueIdentifier, raw)

	return &Document{
		BookID:      id.BookID,
		SourceUID:   id.SourceUID,
		Title:       rec.Title,
		Author:      rec.Author,
		Publisher:   rec.Publisher,
		Description: rec.Description,
		Genres:      rec.Genres,
		Language:    rec.Language,
		Link:        link,
		Sections:    sections,
	}, nil
}

// containerFields exposes the Dublin Core metadata of a container.
type containerFields struct {
	c *epub.Container
}

func (f containerFields) Lookup(key string) ([]string, error) {
	vals := f.c.Metadata(epub.NamespaceDC, key)
	out := make([]string, 0, len(vals))
	for _, v := range vals {
		out = append(out, v.Text)
	}
	return out, nil
}

func identifiers(c *epub.Container) []identity.Identifier {
	vals := c.Metadata(epub.NamespaceDC, "identifier")
	ids := make([]identity.Identifier, 0, len(vals))
	for _, v := range vals {
		ids = append(ids, identity.Identifier{Value: v.Text, Ref: v.ID})
	}
	return ids
}

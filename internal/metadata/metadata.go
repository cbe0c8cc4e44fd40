// Package metadata resolves the canonical bibliographic record of a book from
// its structured metadata, falling back to heuristics over the extracted text
// when fields are missing. Resolution never fails: every field has a default.
package metadata

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Keys of the structured metadata consulted by the resolver.
const (
	KeyTitle       = "title"
	KeyCreator     = "creator"
	KeyPublisher   = "publisher"
	KeyLanguage    = "language"
	KeyDescription = "description"
	KeySubject     = "subject"
)

const (
	maxDescriptionRunes = 2000
	descSections        = 3
	descParagraphs      = 3
	bylineParagraphs    = 10
	publisherParagraphs = 20
	markerSections      = 5
	markerParagraphs    = 50
	maxBaseNameWords    = 4
)

var (
	bylinePattern    = regexp.MustCompile(`(?i)\bby\s+([^\n,]+)`)
	publisherPattern = regexp.MustCompile(`(?i)publisher:?\s*([^\n]+)`)
)

// Record is the canonical metadata of one book.
type Record struct {
	Title       string
	Author      string
	Publisher   string
	Language    string
	Description string
	Genres      string
}

// Fields is a raw metadata source. Lookup may fail or return blank values.
type Fields interface {
	Lookup(key string) ([]string, error)
}

// FieldsFunc adapts a function to Fields.
type FieldsFunc func(key string) ([]string, error)

func (f FieldsFunc) Lookup(key string) ([]string, error) { return f(key) }

// MapFields is a static Fields, mostly useful in tests.
type MapFields map[string][]string

func (m MapFields) Lookup(key string) ([]string, error) { return m[key], nil }

// Input is everything the resolver may consult for one book.
type Input struct {
	Fields Fields
	// Sections holds the paragraphs of each extracted section, in order.
	Sections [][]string
	// BaseName is the source file name without directory or extension.
	BaseName string
}

// Publisher maps a marker string found in the text to a canonical publisher
// name.
type Publisher struct {
	Marker string
	Name   string
}

// DefaultPublishers are the publisher markers recognised out of the box.
var DefaultPublishers = []Publisher{
	{Marker: "Standard Ebooks", Name: "Standard Ebooks"},
}

// Resolver resolves metadata records.
type Resolver struct {
	publishers []Publisher
}

// NewResolver returns a Resolver recognising the given publisher markers. A
// nil slice selects DefaultPublishers.
func NewResolver(publishers []Publisher) *Resolver {
	if publishers == nil {
		publishers = DefaultPublishers
	}
	return &Resolver{publishers: publishers}
}

// Resolve builds the canonical record for in.
func (r *Resolver) Resolve(in Input) Record {
	c := NewContext(in)
	return Record{
		Title:       FirstOf(c, Structured(KeyTitle), BaseName),
		Author:      FirstOf(c, Joined(KeyCreator), Byline, AuthorFromBaseName),
		Publisher:   FirstOf(c, Structured(KeyPublisher), PublisherLabel, r.PublisherMarker),
		Language:    FirstOf(c, Structured(KeyLanguage)),
		Description: FirstOf(c, Structured(KeyDescription), LeadingParagraphs),
		Genres:      FirstOf(c, Joined(KeySubject)),
	}
}

// Resolve resolves in with the default resolver.
func Resolve(in Input) Record {
	return NewResolver(nil).Resolve(in)
}

// Context is what a Strategy sees. Metadata access goes through Values, which
// turns lookup failures into an empty result.
type Context struct {
	fields   Fields
	sections [][]string
	baseName string
}

// NewContext builds a Context directly; Resolve does this itself.
func NewContext(in Input) *Context {
	return &Context{fields: in.Fields, sections: in.Sections, baseName: in.BaseName}
}

// Values returns the trimmed, non-blank values recorded under key. A missing
// source or a failed lookup yields nil.
func (c *Context) Values(key string) []string {
	if c.fields == nil {
		return nil
	}
	raw, err := c.fields.Lookup(key)
	if err != nil {
		return nil
	}
	var out []string
	for _, v := range raw {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// head joins up to n leading paragraphs of each of the first sections
// sections.
func (c *Context) head(sections, n int, sep string) string {
	var paras []string
	for i, s := range c.sections {
		if i >= sections {
			break
		}
		if len(s) > n {
			s = s[:n]
		}
		paras = append(paras, s...)
	}
	return strings.Join(paras, sep)
}

// Strategy tries to resolve one field. It reports false when it has nothing.
type Strategy func(c *Context) (string, bool)

// FirstOf evaluates chain in order and returns the first success, or "".
func FirstOf(c *Context, chain ...Strategy) string {
	for _, s := range chain {
		if v, ok := s(c); ok {
			return v
		}
	}
	return ""
}

// Structured returns the first value under key.
func Structured(key string) Strategy {
	return func(c *Context) (string, bool) {
		vals := c.Values(key)
		if len(vals) == 0 {
			return "", false
		}
		return vals[0], true
	}
}

// Joined returns all values under key joined with ", ".
func Joined(key string) Strategy {
	return func(c *Context) (string, bool) {
		vals := c.Values(key)
		if len(vals) == 0 {
			return "", false
		}
		return strings.Join(vals, ", "), true
	}
}

// BaseName returns the source base name.
func BaseName(c *Context) (string, bool) {
	return c.baseName, c.baseName != ""
}

// Byline finds "by <name>" in the leading paragraphs of the first section.
// The name ends at a newline or comma.
func Byline(c *Context) (string, bool) {
	return match(bylinePattern, c.head(1, bylineParagraphs, "\n"))
}

// PublisherLabel finds "publisher: <value>" in the leading paragraphs of the
// first section.
func PublisherLabel(c *Context) (string, bool) {
	return match(publisherPattern, c.head(1, publisherParagraphs, "\n"))
}

func match(re *regexp.Regexp, text string) (string, bool) {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	v := strings.TrimSpace(m[1])
	return v, v != ""
}

// AuthorFromBaseName derives an author from a base name such as
// "jane-austen_pride-and-prejudice": the part before the first underscore,
// hyphens as spaces, title-cased, accepted only when it has at most four
// words.
func AuthorFromBaseName(c *Context) (string, bool) {
	slug, _, _ := strings.Cut(c.baseName, "_")
	slug = strings.TrimSpace(strings.ReplaceAll(slug, "-", " "))
	if slug == "" || len(strings.Fields(slug)) > maxBaseNameWords {
		return "", false
	}
	return titleCase(slug), true
}

// PublisherMarker scans the leading paragraphs of the first sections for a
// known publisher marker.
func (r *Resolver) PublisherMarker(c *Context) (string, bool) {
	text := c.head(markerSections, markerParagraphs, "\n")
	if text == "" {
		return "", false
	}
	for _, p := range r.publishers {
		if p.Marker != "" && strings.Contains(text, p.Marker) {
			return p.Name, true
		}
	}
	return "", false
}

// LeadingParagraphs builds a description from up to three leading paragraphs
// of each of the first three sections, cut to 2000 characters.
func LeadingParagraphs(c *Context) (string, bool) {
	text := strings.TrimSpace(c.head(descSections, descParagraphs, "\n\n"))
	if text == "" {
		return "", false
	}
	return truncateRunes(text, maxDescriptionRunes), true
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

// titleCase upper-cases the first letter of every run of letters and
// lower-cases the rest.
func titleCase(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	prevLetter := false
	for _, r := range s {
		if unicode.IsLetter(r) {
			if prevLetter {
				r = unicode.ToLower(r)
			} else {
				r = unicode.ToTitle(r)
			}
			prevLetter = true
		} else {
			prevLetter = false
		}
		b.WriteRune(r)
	}
	return b.String()
}

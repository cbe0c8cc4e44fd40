// Package epub reads an EPUB container from memory: the OCF container
// document, the OPF package metadata and the ordered XHTML content
// documents listed in its manifest.
package epub

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"

	apperrors "github.com/Adithya-Monish-Kumar-K/book-ingest/pkg/errors"
)

// Well-known metadata namespaces.
const (
	NamespaceDC  = "http://purl.org/dc/elements/1.1/"
	NamespaceOPF = "http://www.idpf.org/2007/opf"
)

const containerPath = "META-INF/container.xml"

// Value is one metadata entry. ID is the element's id attribute, which is how
// the package marks its unique identifier.
type Value struct {
	Text  string
	ID    string
	Attrs map[string]string
}

// Item is one content document inside the container.
type Item struct {
	ID        string
	Name      string
	MediaType string
	Content   []byte
}

// Container is a parsed EPUB.
type Container struct {
	// UniqueIdentifier is the package's unique-identifier attribute: the id
	// of the identifier element the publisher designates as canonical.
	UniqueIdentifier string
	Items            []Item

	metadata map[string]map[string][]Value
}

// Metadata returns the values recorded under namespace and key, in document
// order. Unknown namespaces or keys yield nil.
func (c *Container) Metadata(namespace, key string) []Value {
	if c == nil || c.metadata == nil {
		return nil
	}
	return c.metadata[namespace][key]
}

type ocfContainer struct {
	RootFiles []struct {
		FullPath  string `xml:"full-path,attr"`
		MediaType string `xml:"media-type,attr"`
	} `xml:"rootfiles>rootfile"`
}

type opfPackage struct {
	UniqueIdentifier string `xml:"unique-identifier,attr"`
	Metadata         struct {
		Entries []opfMetaEntry `xml:",any"`
	} `xml:"metadata"`
	Manifest struct {
		Items []opfItem `xml:"item"`
	} `xml:"manifest"`
}

type opfMetaEntry struct {
	XMLName xml.Name
	Attrs   []xml.Attr `xml:",any,attr"`
	Text    string     `xml:",chardata"`
}

type opfItem struct {
	ID         string `xml:"id,attr"`
	Href       string `xml:"href,attr"`
	MediaType  string `xml:"media-type,attr"`
	Properties string `xml:"properties,attr"`
}

// Open parses raw as an EPUB. name identifies the source in errors. Any
// failure to read the zip, the container document or the package document
// is reported as a ParseError; individual content documents that are missing
// from the archive are skipped.
func Open(name string, raw []byte) (*Container, error) {
	c, err := open(raw)
	if err != nil {
		return nil, apperrors.NewParseError(name, err)
	}
	return c, nil
}

func open(raw []byte) (*Container, error) {
	zr, err := zip.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return nil, fmt.Errorf("opening zip: %w", err)
	}
	files := make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		files[f.Name] = f
	}

	var ocf ocfContainer
	if err := decodeXML(files, containerPath, &ocf); err != nil {
		return nil, err
	}
	if len(ocf.RootFiles) == 0 || ocf.RootFiles[0].FullPath == "" {
		return nil, errors.New("no rootfile in container.xml")
	}
	opfPath := ocf.RootFiles[0].FullPath

	var pkg opfPackage
	if err := decodeXML(files, opfPath, &pkg); err != nil {
		return nil, err
	}

	c := &Container{
		UniqueIdentifier: strings.TrimSpace(pkg.UniqueIdentifier),
		metadata:         make(map[string]map[string][]Value),
	}
	for _, e := range pkg.Metadata.Entries {
		c.addMetadata(e)
	}

	base := path.Dir(opfPath)
	for _, it := range pkg.Manifest.Items {
		if !isDocument(it) {
			continue
		}
		full := resolveHref(base, it.Href)
		content, err := readFile(files, full)
		if err != nil {
			continue
		}
		c.Items = append(c.Items, Item{
			ID:        it.ID,
			Name:      it.Href,
			MediaType: it.MediaType,
			Content:   content,
		})
	}
	return c, nil
}

func (c *Container) addMetadata(e opfMetaEntry) {
	ns, key := e.XMLName.Space, e.XMLName.Local
	switch ns {
	case "dc":
		ns = NamespaceDC
	case "", "opf":
		ns = NamespaceOPF
	}
	if ns == NamespaceOPF && key == "meta" {
		// EPUB2 <meta name=".." content=".."/> pairs are keyed by name.
		var name, content string
		for _, a := range e.Attrs {
			switch a.Name.Local {
			case "name":
				name = a.Value
			case "content":
				content = a.Value
			}
		}
		if name != "" {
			key = name
			e.Text = content
		}
	}
	v := Value{Text: strings.TrimSpace(e.Text)}
	if len(e.Attrs) > 0 {
		v.Attrs = make(map[string]string, len(e.Attrs))
		for _, a := range e.Attrs {
			v.Attrs[a.Name.Local] = a.Value
			if a.Name.Local == "id" {
				v.ID = a.Value
			}
		}
	}
	if c.metadata[ns] == nil {
		c.metadata[ns] = make(map[string][]Value)
	}
	c.metadata[ns][key] = append(c.metadata[ns][key], v)
}

func isDocument(it opfItem) bool {
	if strings.Contains(it.Properties, "nav") {
		return false
	}
	switch it.MediaType {
	case "application/xhtml+xml", "text/html":
		return true
	}
	return false
}

func resolveHref(base, href string) string {
	if i := strings.IndexByte(href, '#'); i >= 0 {
		href = href[:i]
	}
	if unescaped, err := url.PathUnescape(href); err == nil {
		href = unescaped
	}
	if base == "." || base == "" {
		return path.Clean(href)
	}
	return path.Join(base, href)
}

func readFile(files map[string]*zip.File, name string) ([]byte, error) {
	f, ok := files[name]
	if !ok {
		return nil, fmt.Errorf("%s not found in archive", name)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", name, err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", name, err)
	}
	return data, nil
}

func decodeXML(files map[string]*zip.File, name string, v any) error {
	data, err := readFile(files, name)
	if err != nil {
		return err
	}
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.Strict = false
	dec.CharsetReader = func(_ string, r io.Reader) (io.Reader, error) { return r, nil }
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("parsing %s: %w", name, err)
	}
	return nil
}

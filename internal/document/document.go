// Package document holds the canonical Document model, the Assembler that
// builds it from an EPUB and the JSON artifact codec.
package document

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path"
	"strings"
	"unicode/utf8"

	apperrors "github.com/Adithya-Monish-Kumar-K/book-ingest/pkg/errors"
)

// Section is one chapter: a label and its ordered, non-empty paragraphs.
type Section struct {
	Label      string   `json:"chapter"`
	Paragraphs []string `json:"paragraphs"`
}

// Document is the canonical record of one source book. It is the shape of
// the per-book JSON artifact.
type Document struct {
	BookID      string    `json:"book_id"`
	SourceUID   string    `json:"source_uid"`
	Title       string    `json:"title"`
	Author      string    `json:"author"`
	Publisher   string    `json:"publisher"`
	Description string    `json:"description"`
	Genres      string    `json:"genres"`
	Language    string    `json:"language"`
	Link        string    `json:"linkToBook"`
	Sections    []Section `json:"chapters"`
}

// ParagraphCount returns the total number of paragraphs across sections.
func (d *Document) ParagraphCount() int {
	n := 0
	for _, s := range d.Sections {
		n += len(s.Paragraphs)
	}
	return n
}

// Encode renders d as indented UTF-8 JSON without HTML escaping.
func Encode(d *Document) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(d); err != nil {
		return nil, fmt.Errorf("encoding document %s: %w", d.BookID, err)
	}
	return buf.Bytes(), nil
}

// Decode parses a JSON artifact. Invalid UTF-8 or JSON is a DecodeError.
func Decode(name string, data []byte) (*Document, error) {
	if !utf8.Valid(data) {
		return nil, apperrors.NewDecodeError(name, fmt.Errorf("invalid UTF-8"))
	}
	var d Document
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, apperrors.NewDecodeError(name, err)
	}
	return &d, nil
}

// ArtifactName returns the artifact file name for a source: its base name
// with the extension replaced by .json.
func ArtifactName(source string) string {
	return BaseName(source) + ".json"
}

// BaseName returns the file name of source without directory or extension.
func BaseName(source string) string {
	base := path.Base(strings.ReplaceAll(source, "\\", "/"))
	return strings.TrimSuffix(base, path.Ext(base))
}

// Package chunk flattens a Document into its Book summary record and its
// paragraph-level Chunk records.
package chunk

import (
	"fmt"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/book-ingest/internal/document"
)

// Suggest is the typeahead completion input of a book.
type Suggest struct {
	Input []string `json:"input"`
}

// Book is the summary record indexed once per document.
type Book struct {
	BookID      string  `json:"book_id"`
	SourceUID   string  `json:"source_uid"`
	Title       string  `json:"title"`
	Author      string  `json:"author"`
	Publisher   string  `json:"publisher"`
	Description string  `json:"description"`
	Genres      string  `json:"genres"`
	Link        string  `json:"linkToBook"`
	Language    string  `json:"language"`
	Suggest     Suggest `json:"suggest"`
}

// Chunk is one paragraph addressed by its position in the document.
type Chunk struct {
	BookID         string `json:"book_id"`
	ChunkID        string `json:"chunk_id"`
	Chapter        string `json:"chapter"`
	ChapterIndex   int    `json:"chapter_index"`
	ParagraphIndex int    `json:"paragraph_index"`
	Text           string `json:"text"`
}

// ChunkID formats the id of the seq-th paragraph of a book.
func ChunkID(bookID string, seq int) string {
	return fmt.Sprintf("%s-%06d", bookID, seq)
}

// BookRecord projects the scalar metadata of d.
func BookRecord(d *document.Document) Book {
	input := make([]string, 0, 2)
	if d.Title != "" {
		input = append(input, d.Title)
	}
	if d.Author != "" {
		input = append(input, d.Author)
	}
	return Book{
		BookID:      d.BookID,
		SourceUID:   d.SourceUID,
		Title:       d.Title,
		Author:      d.Author,
		Publisher:   d.Publisher,
		Description: d.Description,
		Genres:      d.Genres,
		Link:        d.Link,
		Language:    d.Language,
		Suggest:     Suggest{Input: input},
	}
}

// Chunks walks sections and paragraphs in order with one running counter
// across the whole document. Blank paragraphs are not emitted and do not
// consume a sequence number.
func Chunks(d *document.Document) []Chunk {
	out := make([]Chunk, 0, d.ParagraphCount())
	seq := 0
	for ci, s := range d.Sections {
		for pi, p := range s.Paragraphs {
			if strings.TrimSpace(p) == "" {
				continue
			}
			out = append(out, Chunk{
				BookID:         d.BookID,
				ChunkID:        ChunkID(d.BookID, seq),
				Chapter:        s.Label,
				ChapterIndex:   ci,
				ParagraphIndex: pi,
				Text:           p,
			})
			seq++
		}
	}
	return out
}

// Serialize returns the Book record and all Chunk records of d.
func Serialize(d *document.Document) (Book, []Chunk) {
	return BookRecord(d), Chunks(d)
}

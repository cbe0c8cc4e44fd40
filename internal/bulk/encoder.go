// Package bulk renders Book and Chunk records into the newline-delimited
// action/source format of the search engine's _bulk endpoint, reads such
// streams back, merges embedding vectors into them and batches them for
// posting.
package bulk

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/Adithya-Monish-Kumar-K/book-ingest/internal/chunk"
	"github.com/Adithya-Monish-Kumar-K/book-ingest/internal/document"
)

// Bulk operation names.
const (
	OpIndex  = "index"
	OpCreate = "create"
	OpUpdate = "update"
	OpDelete = "delete"
)

// IDPolicy decides whether chunk actions carry an explicit _id.
type IDPolicy string

const (
	// IDPolicyNone lets the index assign chunk ids. Re-ingesting a book
	// without deleting its old chunks duplicates them.
	IDPolicyNone IDPolicy = "none"
	// IDPolicyDeterministic sends chunk_id as _id so re-ingestion overwrites.
	IDPolicyDeterministic IDPolicy = "deterministic"
)

// ParseIDPolicy validates a policy name.
func ParseIDPolicy(s string) (IDPolicy, error) {
	switch IDPolicy(s) {
	case IDPolicyNone, IDPolicyDeterministic:
		return IDPolicy(s), nil
	case "":
		return IDPolicyNone, nil
	}
	return "", fmt.Errorf("unknown chunk id policy %q", s)
}

// Meta is the body of an action line.
type Meta struct {
	Index string `json:"_index"`
	ID    string `json:"_id,omitempty"`
}

// Pair is one action line and, except for deletes, the source line that
// follows it. Lines carry no trailing newline.
type Pair struct {
	Op     string
	Meta   Meta
	Action []byte
	Source []byte
}

// Size is the number of bytes the pair occupies in an NDJSON body.
func (p Pair) Size() int {
	n := len(p.Action) + 1
	if p.Source != nil {
		n += len(p.Source) + 1
	}
	return n
}

// NewPair encodes an action of kind op with the given source document. A nil
// source is only valid for deletes.
func NewPair(op string, meta Meta, source any) (Pair, error) {
	action, err := marshalLine(map[string]Meta{op: meta})
	if err != nil {
		return Pair{}, fmt.Errorf("encoding %s action: %w", op, err)
	}
	p := Pair{Op: op, Meta: meta, Action: action}
	if source != nil {
		if p.Source, err = marshalLine(source); err != nil {
			return Pair{}, fmt.Errorf("encoding %s source: %w", op, err)
		}
	}
	return p, nil
}

// marshalLine encodes v as one JSON line without HTML escaping.
func marshalLine(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// Encoder turns records into index actions for the books and content
// indices.
type Encoder struct {
	booksIndex   string
	contentIndex string
	policy       IDPolicy
}

// NewEncoder returns an Encoder targeting the given indices.
func NewEncoder(booksIndex, contentIndex string, policy IDPolicy) *Encoder {
	if policy == "" {
		policy = IDPolicyNone
	}
	return &Encoder{booksIndex: booksIndex, contentIndex: contentIndex, policy: policy}
}

// Book encodes the summary record with _id = book_id, so replaying it
// upserts.
func (e *Encoder) Book(b chunk.Book) (Pair, error) {
	return NewPair(OpIndex, Meta{Index: e.booksIndex, ID: b.BookID}, b)
}

// Chunk encodes one paragraph record. Whether it carries an _id depends on
// the policy.
func (e *Encoder) Chunk(c chunk.Chunk) (Pair, error) {
	meta := Meta{Index: e.contentIndex}
	if e.policy == IDPolicyDeterministic {
		meta.ID = c.ChunkID
	}
	return NewPair(OpIndex, meta, c)
}

// Document serializes d and encodes its book pair and all chunk pairs.
func (e *Encoder) Document(d *document.Document) (Pair, []Pair, error) {
	book, chunks := chunk.Serialize(d)
	bp, err := e.Book(book)
	if err != nil {
		return Pair{}, nil, err
	}
	cps := make([]Pair, 0, len(chunks))
	for _, c := range chunks {
		p, err := e.Chunk(c)
		if err != nil {
			return Pair{}, nil, err
		}
		cps = append(cps, p)
	}
	return bp, cps, nil
}

// Writer writes pairs as NDJSON.
type Writer struct {
	w     *bufio.Writer
	pairs int
}

// NewWriter returns a Writer on w. Call Flush when done.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: bufio.NewWriter(w)}
}

// Write appends p.
func (w *Writer) Write(p Pair) error {
	if err := appendPair(w.w, p); err != nil {
		return fmt.Errorf("writing bulk pair: %w", err)
	}
	w.pairs++
	return nil
}

// Flush flushes buffered output.
func (w *Writer) Flush() error {
	return w.w.Flush()
}

// Pairs reports how many pairs were written.
func (w *Writer) Pairs() int {
	return w.pairs
}

type byteWriter interface {
	Write(p []byte) (int, error)
	WriteByte(c byte) error
}

func appendPair(w byteWriter, p Pair) error {
	if _, err := w.Write(p.Action); err != nil {
		return err
	}
	if err := w.WriteByte('\n'); err != nil {
		return err
	}
	if p.Source == nil {
		return nil
	}
	if _, err := w.Write(p.Source); err != nil {
		return err
	}
	return w.WriteByte('\n')
}

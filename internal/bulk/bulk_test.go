package bulk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/book-ingest/internal/chunk"
	"github.com/Adithya-Monish-Kumar-K/book-ingest/internal/document"
	apperrors "github.com/Adithya-Monish-Kumar-K/book-ingest/pkg/errors"
)

func testDoc() *document.Document {
	return &document.Document{
		BookID:    "0123456789abcdef",
		SourceUID: "urn:uuid:abc",
		Title:     "T & Co",
		Author:    "A",
		Sections: []document.Section{
			{Label: "Chapter 1", Paragraphs: []string{"one", "two", "three"}},
		},
	}
}

func TestEncodeBookCarriesID(t *testing.T) {
	enc := NewEncoder("books", "book_content", IDPolicyNone)
	book := chunk.BookRecord(testDoc())
	p1, err := enc.Book(book)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	p2, _ := enc.Book(book)
	want := `{"index":{"_index":"books","_id":"0123456789abcdef"}}`
	if string(p1.Action) != want {
		t.Errorf("expected action %s, got %s", want, p1.Action)
	}
	if !bytes.Equal(p1.Action, p2.Action) || !bytes.Equal(p1.Source, p2.Source) {
		t.Error("expected identical pairs for the same book")
	}
	if !strings.Contains(string(p1.Source), `"title":"T & Co"`) {
		t.Errorf("expected unescaped title in source, got %s", p1.Source)
	}
}

// Replaying book actions against an id-keyed store must leave one record.
func TestBookReplayUpserts(t *testing.T) {
	enc := NewEncoder("books", "book_content", IDPolicyNone)
	book := chunk.BookRecord(testDoc())
	store := map[string]json.RawMessage{}
	for i := 0; i < 2; i++ {
		p, err := enc.Book(book)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		store[p.Meta.ID] = p.Source
	}
	if len(store) != 1 {
		t.Errorf("expected 1 stored record, got %d", len(store))
	}
}

func TestEncodeChunkPolicy(t *testing.T) {
	c := chunk.Chunk{BookID: "b", ChunkID: "b-000007", Text: "x"}

	p, err := NewEncoder("books", "book_content", IDPolicyNone).Chunk(c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(p.Action) != `{"index":{"_index":"book_content"}}` {
		t.Errorf("unexpected action %s", p.Action)
	}

	p, err = NewEncoder("books", "book_content", IDPolicyDeterministic).Chunk(c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(p.Action) != `{"index":{"_index":"book_content","_id":"b-000007"}}` {
		t.Errorf("unexpected action %s", p.Action)
	}
}

func TestParseIDPolicy(t *testing.T) {
	if p, err := ParseIDPolicy(""); err != nil || p != IDPolicyNone {
		t.Errorf("expected default none, got %q, %v", p, err)
	}
	if _, err := ParseIDPolicy("random"); err == nil {
		t.Error("expected error for unknown policy")
	}
}

func TestWriterAndReaderRoundTrip(t *testing.T) {
	enc := NewEncoder("books", "book_content", IDPolicyNone)
	bp, cps, err := enc.Document(testDoc())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var buf bytes.Buffer
	w := NewWriter(&buf)
	for _, p := range append([]Pair{bp}, cps...) {
		if err := w.Write(p); err != nil {
			t.Fatalf("unexpected write error: %v", err)
		}
	}
	if err := w.Flush(); err != nil {
		t.Fatalf("unexpected flush error: %v", err)
	}
	if w.Pairs() != 4 {
		t.Errorf("expected 4 pairs, got %d", w.Pairs())
	}
	if lines := strings.Count(buf.String(), "\n"); lines != 8 {
		t.Errorf("expected 8 lines, got %d", lines)
	}

	r := NewReader(&buf, "mem")
	var got []Pair
	for {
		p, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("unexpected read error: %v", err)
		}
		got = append(got, p)
	}
	if len(got) != 4 {
		t.Fatalf("expected 4 pairs, got %d", len(got))
	}
	if got[0].Meta.ID != "0123456789abcdef" || got[1].Meta.Index != "book_content" {
		t.Errorf("unexpected metas: %+v %+v", got[0].Meta, got[1].Meta)
	}
	var c chunk.Chunk
	if err := json.Unmarshal(got[3].Source, &c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.ChunkID != "0123456789abcdef-000002" || c.Text != "three" {
		t.Errorf("unexpected last chunk %+v", c)
	}
}

func TestReaderSkipsBlankAndOrphanLines(t *testing.T) {
	input := strings.Join([]string{
		`{"text":"orphan"}`,
		``,
		`{"index":{"_index":"c"}}`,
		`   `,
		`{"index":"looks like an action but is the source"}`,
		`{"delete":{"_index":"c","_id":"x"}}`,
		`{"other":1}`,
	}, "\n")
	r := NewReader(strings.NewReader(input), "mem")
	p, err := r.Next()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Op != OpIndex || !strings.Contains(string(p.Source), "looks like an action") {
		t.Errorf("unexpected first pair: %+v", p)
	}
	p, err = r.Next()
	if err != nil || p.Op != OpDelete || p.Source != nil {
		t.Errorf("expected delete pair without source, got %+v, %v", p, err)
	}
	if _, err := r.Next(); err != io.EOF {
		t.Errorf("expected EOF, got %v", err)
	}
}

func TestReaderInvalidJSON(t *testing.T) {
	r := NewReader(strings.NewReader("{\"index\":{}}\n{broken\n"), "bad.ndjson")
	_, err := r.Next()
	if !errors.Is(err, apperrors.ErrDecode) {
		t.Fatalf("expected ErrDecode, got %v", err)
	}
	if !strings.Contains(err.Error(), "bad.ndjson:2") {
		t.Errorf("expected line reference, got %v", err)
	}
}

func TestAccumulatorByBytes(t *testing.T) {
	p, _ := NewPair(OpIndex, Meta{Index: "i"}, map[string]string{"a": "b"})
	acc := NewAccumulator(p.Size()*2, 0)
	acc.Push(p)
	if acc.ShouldFlush() {
		t.Fatal("expected no flush after one pair")
	}
	acc.Push(p)
	if !acc.ShouldFlush() {
		t.Fatal("expected flush at byte threshold")
	}
	b := acc.Drain()
	if b.Items != 2 || len(b.Body) != p.Size()*2 {
		t.Errorf("unexpected batch: items=%d bytes=%d", b.Items, len(b.Body))
	}
	if !bytes.HasSuffix(b.Body, []byte("\n")) {
		t.Error("expected newline-terminated body")
	}
	if acc.Len() != 0 || acc.Size() != 0 || acc.ShouldFlush() {
		t.Error("expected empty accumulator after drain")
	}
}

func TestAccumulatorByItems(t *testing.T) {
	p, _ := NewPair(OpIndex, Meta{Index: "i"}, map[string]int{"n": 1})
	acc := NewAccumulator(0, 3)
	for i := 0; i < 2; i++ {
		acc.Push(p)
	}
	if acc.ShouldFlush() {
		t.Fatal("expected no flush below item threshold")
	}
	acc.Push(p)
	if !acc.ShouldFlush() {
		t.Fatal("expected flush at item threshold")
	}
}

type fakeEmbedder struct {
	calls int
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	f.calls++
	return []float32{float32(len(text)), 0.5}, nil
}

func TestMergeWithoutIDReindexes(t *testing.T) {
	emb := &fakeEmbedder{}
	m := NewMerger(emb, "text", "text_vector", "")
	in, _ := NewPair(OpIndex, Meta{Index: "book_content"}, map[string]any{"chunk_id": "b-000000", "text": "abcd"})
	out, ok, err := m.Merge(context.Background(), in)
	if err != nil || !ok {
		t.Fatalf("expected merged pair, got ok=%v err=%v", ok, err)
	}
	if string(out.Action) != `{"index":{"_index":"book_content"}}` {
		t.Errorf("unexpected action %s", out.Action)
	}
	var src map[string]any
	if err := json.Unmarshal(out.Source, &src); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if src["chunk_id"] != "b-000000" || src["text"] != "abcd" {
		t.Errorf("expected original fields kept, got %v", src)
	}
	vec, ok := src["text_vector"].([]any)
	if !ok || len(vec) != 2 || vec[0] != float64(4) {
		t.Errorf("unexpected vector %v", src["text_vector"])
	}
}

func TestMergeWithIDUpdates(t *testing.T) {
	m := NewMerger(&fakeEmbedder{}, "description", "description_vector", "books_v2")
	in, _ := NewPair(OpIndex, Meta{Index: "books", ID: "abc"}, map[string]any{"description": "d"})
	out, ok, err := m.Merge(context.Background(), in)
	if err != nil || !ok {
		t.Fatalf("expected merged pair, got ok=%v err=%v", ok, err)
	}
	if string(out.Action) != `{"update":{"_index":"books_v2","_id":"abc"}}` {
		t.Errorf("unexpected action %s", out.Action)
	}
	if string(out.Source) != `{"doc":{"description_vector":[1,0.5]}}` {
		t.Errorf("unexpected source %s", out.Source)
	}
}

func TestMergeSkipsEmptyText(t *testing.T) {
	emb := &fakeEmbedder{}
	m := NewMerger(emb, "text", "text_vector", "")
	for _, src := range []any{
		map[string]any{"text": ""},
		map[string]any{"chunk_id": "x"},
		map[string]any{"text": 12},
	} {
		in, _ := NewPair(OpIndex, Meta{Index: "c"}, src)
		if _, ok, err := m.Merge(context.Background(), in); ok || err != nil {
			t.Errorf("expected skip for %v, got ok=%v err=%v", src, ok, err)
		}
	}
	if emb.calls != 0 {
		t.Errorf("expected no embedding calls, got %d", emb.calls)
	}
}

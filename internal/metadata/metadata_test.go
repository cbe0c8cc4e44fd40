package metadata

import (
	"errors"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestResolveStructured(t *testing.T) {
	rec := Resolve(Input{
		Fields: MapFields{
			KeyTitle:       {" Emma ", "Other"},
			KeyCreator:     {"Jane Austen", "", "Editor"},
			KeyPublisher:   {"Penguin"},
			KeyLanguage:    {"en"},
			KeyDescription: {"A novel."},
			KeySubject:     {"Fiction", "Romance"},
		},
		BaseName: "emma",
	})
	want := Record{
		Title:       "Emma",
		Author:      "Jane Austen, Editor",
		Publisher:   "Penguin",
		Language:    "en",
		Description: "A novel.",
		Genres:      "Fiction, Romance",
	}
	if rec != want {
		t.Errorf("expected %+v, got %+v", want, rec)
	}
}

func TestResolveDefaultsWithNoMetadata(t *testing.T) {
	rec := Resolve(Input{BaseName: "some-very-long-file-name-here_x"})
	if rec.Title != "some-very-long-file-name-here_x" {
		t.Errorf("expected title from base name, got %q", rec.Title)
	}
	if rec.Author != "" || rec.Publisher != "" || rec.Genres != "" || rec.Description != "" || rec.Language != "" {
		t.Errorf("expected empty defaults, got %+v", rec)
	}
}

func TestResolveSurvivesFailingLookup(t *testing.T) {
	failing := FieldsFunc(func(string) ([]string, error) { return nil, errors.New("namespace unavailable") })
	rec := Resolve(Input{Fields: failing, BaseName: "book"})
	if rec.Title != "book" {
		t.Errorf("expected base name title, got %q", rec.Title)
	}
	if rec.Author != "Book" {
		t.Errorf("expected author from base name, got %q", rec.Author)
	}
}

func TestAuthorFromByline(t *testing.T) {
	rec := Resolve(Input{
		Sections: [][]string{{"By Jane Q. Author, a novel", "Chapter text"}},
		BaseName: "x_y",
	})
	if rec.Author != "Jane Q. Author" {
		t.Errorf("expected Jane Q. Author, got %q", rec.Author)
	}
}

func TestBylineOnlyLooksAtFirstSectionHead(t *testing.T) {
	first := make([]string, 11)
	for i := range first {
		first[i] = "filler"
	}
	first[10] = "by Late Name"
	c := NewContext(Input{Sections: [][]string{first, {"by Second Section"}}})
	if v, ok := Byline(c); ok {
		t.Errorf("expected no byline, got %q", v)
	}
}

func TestAuthorFromBaseName(t *testing.T) {
	tests := []struct {
		base string
		want string
		ok   bool
	}{
		{"jane-austen_pride-and-prejudice", "Jane Austen", true},
		{"MARY-SHELLEY", "Mary Shelley", true},
		{"a-b-c-d-e_title", "", false},
		{"_title", "", false},
		{"o'brien_x", "O'Brien", true},
	}
	for _, tt := range tests {
		got, ok := AuthorFromBaseName(NewContext(Input{BaseName: tt.base}))
		if got != tt.want || ok != tt.ok {
			t.Errorf("AuthorFromBaseName(%q) = %q, %v; want %q, %v", tt.base, got, ok, tt.want, tt.ok)
		}
	}
}

func TestPublisherChain(t *testing.T) {
	rec := Resolve(Input{Sections: [][]string{{"Title page", "Publisher: Acme Press\nLondon"}}, BaseName: "t"})
	if rec.Publisher != "Acme Press" {
		t.Errorf("expected Acme Press, got %q", rec.Publisher)
	}

	rec = Resolve(Input{Sections: [][]string{{"intro"}, {"Produced by Standard Ebooks volunteers"}}, BaseName: "t"})
	if rec.Publisher != "Standard Ebooks" {
		t.Errorf("expected Standard Ebooks marker, got %q", rec.Publisher)
	}

	r := NewResolver([]Publisher{{Marker: "Gutenberg", Name: "Project Gutenberg"}})
	rec = r.Resolve(Input{Sections: [][]string{{"This eBook is from Gutenberg"}}, BaseName: "t"})
	if rec.Publisher != "Project Gutenberg" {
		t.Errorf("expected custom marker, got %q", rec.Publisher)
	}
}

func TestDescriptionFromLeadingParagraphs(t *testing.T) {
	rec := Resolve(Input{
		Sections: [][]string{
			{"a1", "a2", "a3", "a4"},
			{"b1"},
			{"c1", "c2"},
			{"d1"},
		},
		BaseName: "t",
	})
	want := "a1\n\na2\n\na3\n\nb1\n\nc1\n\nc2"
	if rec.Description != want {
		t.Errorf("expected %q, got %q", want, rec.Description)
	}
}

func TestDescriptionTruncatedByCharacters(t *testing.T) {
	long := strings.Repeat("é", 2500)
	rec := Resolve(Input{Sections: [][]string{{long}}, BaseName: "t"})
	if n := utf8.RuneCountInString(rec.Description); n != 2000 {
		t.Errorf("expected 2000 characters, got %d", n)
	}
	if !utf8.ValidString(rec.Description) {
		t.Error("expected valid UTF-8 after truncation")
	}
}

func TestFirstOfStopsAtFirstSuccess(t *testing.T) {
	called := false
	got := FirstOf(NewContext(Input{}),
		func(*Context) (string, bool) { return "", false },
		func(*Context) (string, bool) { return "second", true },
		func(*Context) (string, bool) { called = true; return "third", true },
	)
	if got != "second" {
		t.Errorf("expected second, got %q", got)
	}
	if called {
		t.Error("expected chain to stop after first success")
	}
}

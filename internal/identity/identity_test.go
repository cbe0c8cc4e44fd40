package identity

import (
	"crypto/sha1"
	"encoding/hex"
	"testing"
)

func sha1Hex(s string) string {
	sum := sha1.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

func TestDerive(t *testing.T) {
	raw := []byte("epub bytes")
	tests := []struct {
		name      string
		ids       []Identifier
		preferred string
		want      string
	}{
		{
			name:      "preferred identifier wins",
			ids:       []Identifier{{Value: "isbn-1"}, {Value: "urn:uuid:pref", Ref: "BookId"}},
			preferred: "BookId",
			want:      "urn:uuid:pref",
		},
		{
			name: "first identifier when no preferred marker",
			ids:  []Identifier{{Value: "  "}, {Value: "urn:uuid:abc"}, {Value: "isbn"}},
			want: "urn:uuid:abc",
		},
		{
			name:      "first identifier when preferred marker unmatched",
			ids:       []Identifier{{Value: "first", Ref: "x"}},
			preferred: "BookId",
			want:      "first",
		},
		{
			name:      "blank preferred value is ignored",
			ids:       []Identifier{{Value: "first"}, {Value: " ", Ref: "BookId"}},
			preferred: "BookId",
			want:      "first",
		},
		{
			name: "content hash without identifiers",
			want: sha1Hex("epub bytes"),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Derive(tt.ids, tt.preferred, raw)
			if got.SourceUID != tt.want {
				t.Errorf("expected source_uid %q, got %q", tt.want, got.SourceUID)
			}
			if got.BookID != sha1Hex(tt.want)[:16] {
				t.Errorf("expected book_id %q, got %q", sha1Hex(tt.want)[:16], got.BookID)
			}
		})
	}
}

func TestDeriveIsDeterministic(t *testing.T) {
	ids := []Identifier{{Value: "urn:uuid:abc"}}
	a := Derive(ids, "", nil)
	b := Derive(ids, "", nil)
	if a != b {
		t.Errorf("expected identical identities, got %+v and %+v", a, b)
	}
	if len(a.BookID) != BookIDLength {
		t.Errorf("expected %d-character book_id, got %q", BookIDLength, a.BookID)
	}
	h1 := Derive(nil, "", []byte("same"))
	h2 := Derive(nil, "", []byte("same"))
	if h1 != h2 {
		t.Errorf("expected identical content-hash identities, got %+v and %+v", h1, h2)
	}
}

// Package identity derives the stable identifiers of a book: source_uid,
// which survives re-ingestion, and the short book_id derived from it.
package identity

import (
	"crypto/sha1"
	"encoding/hex"
	"strings"
)

// BookIDLength is the number of hex characters kept for book_id.
const BookIDLength = 16

// Identifier is one structured identifier value. Ref is the element's
// internal reference id, if any.
type Identifier struct {
	Value string
	Ref   string
}

// Identity is the derived pair of identifiers.
type Identity struct {
	SourceUID string
	BookID    string
}

// Derive picks source_uid in order: the identifier whose Ref equals
// preferred, the first non-blank identifier, the SHA-1 hex digest of raw.
// book_id is the first 16 hex characters of the SHA-1 of source_uid.
func Derive(ids []Identifier, preferred string, raw []byte) Identity {
	uid := SourceUID(ids, preferred, raw)
	return Identity{SourceUID: uid, BookID: BookID(uid)}
}

// SourceUID returns the stable source identifier.
func SourceUID(ids []Identifier, preferred string, raw []byte) string {
	first := ""
	for _, id := range ids {
		v := strings.TrimSpace(id.Value)
		if v == "" {
			continue
		}
		if preferred != "" && id.Ref == preferred {
			return v
		}
		if first == "" {
			first = v
		}
	}
	if first != "" {
		return first
	}
	return ContentHash(raw)
}

// ContentHash is the SHA-1 hex digest of raw.
func ContentHash(raw []byte) string {
	sum := sha1.Sum(raw)
	return hex.EncodeToString(sum[:])
}

// BookID returns the short identifier for sourceUID.
func BookID(sourceUID string) string {
	sum := sha1.Sum([]byte(sourceUID))
	return hex.EncodeToString(sum[:])[:BookIDLength]
}

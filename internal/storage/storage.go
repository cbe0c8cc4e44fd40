// Package storage reads and writes pipeline artifacts in a bucket-like
// namespace: an S3-compatible bucket or a local directory.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	apperrors "github.com/Adithya-Monish-Kumar-K/book-ingest/pkg/errors"
)

// Store is one bucket of artifacts addressed by slash-separated keys.
type Store interface {
	// List returns the keys under prefix, sorted.
	List(ctx context.Context, prefix string) ([]string, error)
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte, contentType string) error
	// Link is the locator recorded in artifacts for key.
	Link(key string) string
}

// WithSuffix keeps the keys ending in suffix, compared case-insensitively.
func WithSuffix(keys []string, suffix string) []string {
	suffix = strings.ToLower(suffix)
	out := keys[:0:0]
	for _, k := range keys {
		if strings.HasSuffix(strings.ToLower(k), suffix) {
			out = append(out, k)
		}
	}
	return out
}

// Local is a Store rooted at a directory.
type Local struct {
	root string
	// only, when set, is the single key List reports.
	only string
}

// NewLocal returns a Store on dir. The directory is created on first Put.
func NewLocal(dir string) *Local {
	return &Local{root: dir}
}

// NewLocalFile returns a Store on the directory holding path whose listing
// is path alone.
func NewLocalFile(path string) *Local {
	return &Local{root: filepath.Dir(path), only: filepath.Base(path)}
}

func (l *Local) path(key string) string {
	return filepath.Join(l.root, filepath.FromSlash(key))
}

// List walks the directory recursively.
func (l *Local) List(ctx context.Context, prefix string) ([]string, error) {
	if l.only != "" {
		if !strings.HasPrefix(l.only, prefix) {
			return nil, nil
		}
		return []string{l.only}, nil
	}
	var keys []string
	err := filepath.WalkDir(l.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(l.root, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", l.root, err)
	}
	sort.Strings(keys)
	return keys, nil
}

func (l *Local) Get(_ context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(l.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, apperrors.Newf(apperrors.ErrNotFound, "%s", key)
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", key, err)
	}
	return data, nil
}

func (l *Local) Put(_ context.Context, key string, data []byte, _ string) error {
	p := l.path(key)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("creating directory for %s: %w", key, err)
	}
	if err := os.WriteFile(p, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", key, err)
	}
	return nil
}

// Link returns a file:// URL of the absolute path, or the plain path when it
// cannot be made absolute.
func (l *Local) Link(key string) string {
	abs, err := filepath.Abs(l.path(key))
	if err != nil {
		return l.path(key)
	}
	return "file://" + filepath.ToSlash(abs)
}

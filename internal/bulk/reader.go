package bulk

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	apperrors "github.com/Adithya-Monish-Kumar-K/book-ingest/pkg/errors"
)

const maxLineBytes = 64 * 1024 * 1024

// Reader reads action/source pairs from an NDJSON stream. Blank lines are
// skipped, and so is a source line with no action before it. A line that
// follows an index, create or update action is always taken as its source.
type Reader struct {
	sc   *bufio.Scanner
	name string
	line int
}

// NewReader returns a Reader on r. name identifies the stream in errors.
func NewReader(r io.Reader, name string) *Reader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	return &Reader{sc: sc, name: name}
}

// Next returns the next pair, or io.EOF. A line that is not valid JSON is a
// DecodeError.
func (r *Reader) Next() (Pair, error) {
	var pending *Pair
	for r.sc.Scan() {
		r.line++
		line := bytes.TrimSpace(r.sc.Bytes())
		if len(line) == 0 {
			continue
		}
		if !json.Valid(line) {
			return Pair{}, apperrors.NewDecodeError(fmt.Sprintf("%s:%d", r.name, r.line), fmt.Errorf("invalid JSON line"))
		}
		if pending != nil {
			pending.Source = bytes.Clone(line)
			return *pending, nil
		}
		p, ok := parseAction(line)
		if !ok {
			continue
		}
		if p.Op == OpDelete {
			return p, nil
		}
		pending = &p
	}
	if err := r.sc.Err(); err != nil {
		return Pair{}, fmt.Errorf("reading %s: %w", r.name, err)
	}
	return Pair{}, io.EOF
}

// Line is the number of lines consumed so far.
func (r *Reader) Line() int {
	return r.line
}

func parseAction(line []byte) (Pair, bool) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(line, &obj); err != nil || len(obj) != 1 {
		return Pair{}, false
	}
	for op, raw := range obj {
		switch op {
		case OpIndex, OpCreate, OpUpdate, OpDelete:
		default:
			return Pair{}, false
		}
		var meta Meta
		if err := json.Unmarshal(raw, &meta); err != nil {
			return Pair{}, false
		}
		return Pair{Op: op, Meta: meta, Action: bytes.Clone(line)}, true
	}
	return Pair{}, false
}

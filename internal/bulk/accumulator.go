package bulk

import "bytes"

// Accumulator buffers pairs until a byte or item threshold is reached. The
// caller owns the flush loop:
//
//	acc.Push(p)
//	if acc.ShouldFlush() {
//		post(acc.Drain())
//	}
//
// and drains once more at the end. Pairs are never split across batches.
type Accumulator struct {
	buf      bytes.Buffer
	items    int
	maxBytes int
	maxItems int
}

// NewAccumulator returns an Accumulator that asks to be flushed once its body
// reaches maxBytes or it holds maxItems pairs. A zero limit is ignored.
func NewAccumulator(maxBytes, maxItems int) *Accumulator {
	return &Accumulator{maxBytes: maxBytes, maxItems: maxItems}
}

// Push appends a pair.
func (a *Accumulator) Push(p Pair) {
	_ = appendPair(&a.buf, p)
	a.items++
}

// ShouldFlush reports whether a threshold has been reached.
func (a *Accumulator) ShouldFlush() bool {
	if a.items == 0 {
		return false
	}
	if a.maxBytes > 0 && a.buf.Len() >= a.maxBytes {
		return true
	}
	return a.maxItems > 0 && a.items >= a.maxItems
}

// Len is the number of buffered pairs.
func (a *Accumulator) Len() int {
	return a.items
}

// Size is the number of buffered bytes.
func (a *Accumulator) Size() int {
	return a.buf.Len()
}

// Batch is a drained NDJSON body.
type Batch struct {
	Body  []byte
	Items int
}

// Drain returns the buffered body and resets the accumulator.
func (a *Accumulator) Drain() Batch {
	b := Batch{Body: bytes.Clone(a.buf.Bytes()), Items: a.items}
	a.buf.Reset()
	a.items = 0
	return b
}

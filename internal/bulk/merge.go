package bulk

import (
	"context"
	"encoding/json"
	"fmt"
)

// Embedder computes the vector of a text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Merger rewrites index pairs so that they carry the embedding of one source
// field in a target field.
type Merger struct {
	embedder      Embedder
	sourceField   string
	targetField   string
	indexOverride string
}

// NewMerger returns a Merger. indexOverride, when set, replaces the _index of
// every emitted action.
func NewMerger(embedder Embedder, sourceField, targetField, indexOverride string) *Merger {
	return &Merger{
		embedder:      embedder,
		sourceField:   sourceField,
		targetField:   targetField,
		indexOverride: indexOverride,
	}
}

// Fields returns the source and target field names.
func (m *Merger) Fields() (source, target string) {
	return m.sourceField, m.targetField
}

// Merge returns the action to send for p and whether there is one. Only index
// actions are considered, and records whose source field is missing, not a
// string or empty are skipped. A record without _id is re-emitted as a full
// index action with the vector added to its source; a record with an _id
// becomes a partial update of the target field.
func (m *Merger) Merge(ctx context.Context, p Pair) (Pair, bool, error) {
	if p.Op != OpIndex || p.Source == nil {
		return Pair{}, false, nil
	}
	var src map[string]json.RawMessage
	if err := json.Unmarshal(p.Source, &src); err != nil {
		return Pair{}, false, nil
	}
	var text string
	if raw, ok := src[m.sourceField]; !ok || json.Unmarshal(raw, &text) != nil || text == "" {
		return Pair{}, false, nil
	}

	vec, err := m.embedder.Embed(ctx, text)
	if err != nil {
		return Pair{}, false, fmt.Errorf("embedding %s: %w", m.sourceField, err)
	}

	index := p.Meta.Index
	if m.indexOverride != "" {
		index = m.indexOverride
	}
	if p.Meta.ID == "" {
		encoded, err := json.Marshal(vec)
		if err != nil {
			return Pair{}, false, fmt.Errorf("encoding vector: %w", err)
		}
		src[m.targetField] = encoded
		out, err := NewPair(OpIndex, Meta{Index: index}, src)
		return out, err == nil, err
	}
	doc := map[string]map[string][]float32{"doc": {m.targetField: vec}}
	out, err := NewPair(OpUpdate, Meta{Index: index, ID: p.Meta.ID}, doc)
	return out, err == nil, err
}

package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/book-ingest/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/book-ingest/pkg/redis"
)

// Store is the key/value store behind Cached. *redis.Client implements it.
type Store interface {
	GetBytes(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

var _ Store = (*redis.Client)(nil)

// Cached memoizes another Embedder per model and text. Store failures are
// logged and fall through to the wrapped Embedder.
type Cached struct {
	next    Embedder
	store   Store
	model   string
	ttl     time.Duration
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewCached wraps next. m may be nil.
func NewCached(next Embedder, store Store, model string, ttl time.Duration, m *metrics.Metrics) *Cached {
	return &Cached{
		next:    next,
		store:   store,
		model:   model,
		ttl:     ttl,
		metrics: m,
		logger:  slog.Default().With("component", "embedding-cache"),
	}
}

func (c *Cached) key(text string) string {
	sum := sha256.Sum256([]byte(text))
	return "emb:" + c.model + ":" + hex.EncodeToString(sum[:])
}

// Embed returns the cached vector for text or computes and stores it.
func (c *Cached) Embed(ctx context.Context, text string) ([]float32, error) {
	key := c.key(text)
	data, err := c.store.GetBytes(ctx, key)
	switch {
	case err == nil:
		var vec []float32
		if jerr := json.Unmarshal(data, &vec); jerr == nil {
			c.metrics.ObserveEmbedding(true)
			return vec, nil
		}
		c.logger.Warn("discarding corrupt cache entry", "key", key)
	case !redis.IsMiss(err):
		c.logger.Warn("embedding cache read failed", "error", err)
	}

	vec, err := c.next.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.metrics.ObserveEmbedding(false)
	encoded, err := json.Marshal(vec)
	if err != nil {
		return nil, fmt.Errorf("encoding vector: %w", err)
	}
	if err := c.store.Set(ctx, key, encoded, c.ttl); err != nil {
		c.logger.Warn("embedding cache write failed", "error", err)
	}
	return vec, nil
}

// Reset drops every cached vector of this model.
func (c *Cached) Reset(ctx context.Context) (int64, error) {
	n, err := c.store.FlushByPattern(ctx, "emb:"+c.model+":*")
	if err != nil {
		return n, fmt.Errorf("resetting embedding cache: %w", err)
	}
	return n, nil
}

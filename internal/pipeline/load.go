package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/Adithya-Monish-Kumar-K/book-ingest/internal/bulk"
	"github.com/Adithya-Monish-Kumar-K/book-ingest/internal/search"
	"github.com/Adithya-Monish-Kumar-K/book-ingest/pkg/logger"
)

// BulkPoster posts one NDJSON body to the search engine.
type BulkPoster interface {
	Bulk(ctx context.Context, body []byte) (*search.BulkResponse, error)
}

// LoadResult summarises a replay.
type LoadResult struct {
	Batches int
	Pairs   int
	Skipped int
}

// Loader replays an NDJSON stream into the search engine in batches bounded
// by body size.
type Loader struct {
	poster   BulkPoster
	maxBytes int
}

// NewLoader returns a Loader that flushes once a batch reaches maxBytes.
func NewLoader(poster BulkPoster, maxBytes int) *Loader {
	return &Loader{poster: poster, maxBytes: maxBytes}
}

// Load replays r. The first failing batch aborts the load.
func (l *Loader) Load(ctx context.Context, r io.Reader, name string) (LoadResult, error) {
	log := logger.FromContext(ctx).With("component", "bulk-loader", "stream", name)
	acc := bulk.NewAccumulator(l.maxBytes, 0)
	res, err := drain(ctx, bulk.NewReader(r, name), acc, l.poster, func(_ context.Context, p bulk.Pair) (bulk.Pair, bool, error) {
		return p, true, nil
	})
	if err != nil {
		return res, err
	}
	log.Info("stream loaded", "batches", res.Batches, "pairs", res.Pairs)
	return res, nil
}

// EmbedRunner reads a bulk stream, adds embeddings to every record that has
// text and posts the resulting actions in batches of a fixed item count.
type EmbedRunner struct {
	poster    BulkPoster
	merger    *bulk.Merger
	batchSize int
}

// NewEmbedRunner returns an EmbedRunner posting batchSize actions at a time.
func NewEmbedRunner(poster BulkPoster, merger *bulk.Merger, batchSize int) *EmbedRunner {
	return &EmbedRunner{poster: poster, merger: merger, batchSize: batchSize}
}

// Run processes r. Records without text are counted as skipped.
func (e *EmbedRunner) Run(ctx context.Context, r io.Reader, name string) (LoadResult, error) {
	log := logger.FromContext(ctx).With("component", "embed-runner", "stream", name)
	acc := bulk.NewAccumulator(0, e.batchSize)
	res, err := drain(ctx, bulk.NewReader(r, name), acc, e.poster, e.merger.Merge)
	if err != nil {
		return res, err
	}
	source, target := e.merger.Fields()
	if res.Pairs == 0 && res.Skipped > 0 {
		log.Warn("no record carried the source field", "source_field", source, "skipped", res.Skipped)
	}
	log.Info("embeddings merged", "batches", res.Batches, "pairs", res.Pairs, "skipped", res.Skipped,
		"source_field", source, "target_field", target)
	return res, nil
}

type transform func(ctx context.Context, p bulk.Pair) (bulk.Pair, bool, error)

func drain(ctx context.Context, rd *bulk.Reader, acc *bulk.Accumulator, poster BulkPoster, fn transform) (LoadResult, error) {
	var res LoadResult
	post := func() error {
		if acc.Len() == 0 {
			return nil
		}
		batch := acc.Drain()
		if _, err := poster.Bulk(ctx, batch.Body); err != nil {
			return fmt.Errorf("batch %d: %w", res.Batches+1, err)
		}
		res.Batches++
		res.Pairs += batch.Items
		return nil
	}
	for {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		p, err := rd.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return res, err
		}
		out, ok, err := fn(ctx, p)
		if err != nil {
			return res, fmt.Errorf("line %d: %w", rd.Line(), err)
		}
		if !ok {
			res.Skipped++
			continue
		}
		acc.Push(out)
		if acc.ShouldFlush() {
			if err := post(); err != nil {
				return res, err
			}
		}
	}
	return res, post()
}

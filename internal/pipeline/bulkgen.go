package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/Adithya-Monish-Kumar-K/book-ingest/internal/bulk"
	"github.com/Adithya-Monish-Kumar-K/book-ingest/internal/document"
	"github.com/Adithya-Monish-Kumar-K/book-ingest/internal/storage"
	apperrors "github.com/Adithya-Monish-Kumar-K/book-ingest/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/book-ingest/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/book-ingest/pkg/metrics"
)

const ndjsonContentType = "application/x-ndjson"

// Object names used when the streams are written to a store.
const (
	BooksStream   = "books.ndjson"
	ContentStream = "book_content.ndjson"
)

// GenerateResult summarises a bulkgen run.
type GenerateResult struct {
	Result
	Books  int
	Chunks int
}

// BulkGenerator turns JSON artifacts into the books and book_content bulk
// streams.
type BulkGenerator struct {
	src     storage.Store
	encoder *bulk.Encoder
	metrics *metrics.Metrics
}

// NewBulkGenerator returns a BulkGenerator reading artifacts from src.
func NewBulkGenerator(src storage.Store, encoder *bulk.Encoder, m *metrics.Metrics) *BulkGenerator {
	return &BulkGenerator{src: src, encoder: encoder, metrics: m}
}

// Run encodes every .json artifact under prefix, in sorted order, into
// books and content. An artifact that cannot be decoded is logged and
// skipped; its pairs are never partially written.
func (g *BulkGenerator) Run(ctx context.Context, prefix string, books, content io.Writer) (GenerateResult, error) {
	var res GenerateResult
	log := logger.FromContext(ctx).With("component", "bulkgen")

	keys, err := g.src.List(ctx, prefix)
	if err != nil {
		return res, fmt.Errorf("listing artifacts: %w", err)
	}
	keys = storage.WithSuffix(keys, ".json")

	bw, cw := bulk.NewWriter(books), bulk.NewWriter(content)
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		bp, cps, err := g.encode(ctx, key)
		if err != nil {
			if !apperrors.IsDocumentLocal(err) {
				return res, err
			}
			log.Error("skipping artifact", "source", key, "error", err)
			g.metrics.ObserveDocument("bulkgen", false, 0, 0)
			res.Failed++
			continue
		}
		if err := bw.Write(bp); err != nil {
			return res, err
		}
		for _, p := range cps {
			if err := cw.Write(p); err != nil {
				return res, err
			}
		}
		g.metrics.ObserveDocument("bulkgen", true, 0, 0)
		g.metrics.ObserveChunks(len(cps))
		res.Processed++
		res.Chunks += len(cps)
	}
	if err := bw.Flush(); err != nil {
		return res, fmt.Errorf("flushing books stream: %w", err)
	}
	if err := cw.Flush(); err != nil {
		return res, fmt.Errorf("flushing content stream: %w", err)
	}
	res.Books = bw.Pairs()
	log.Info("bulk streams generated", "books", res.Books, "chunks", res.Chunks, "skipped", res.Failed)
	return res, nil
}

// RunToStore is Run with both streams uploaded to dst as BooksStream and
// ContentStream.
func (g *BulkGenerator) RunToStore(ctx context.Context, prefix string, dst storage.Store) (GenerateResult, error) {
	var books, content bytes.Buffer
	res, err := g.Run(ctx, prefix, &books, &content)
	if err != nil {
		return res, err
	}
	if err := dst.Put(ctx, BooksStream, books.Bytes(), ndjsonContentType); err != nil {
		return res, fmt.Errorf("uploading %s: %w", BooksStream, err)
	}
	if err := dst.Put(ctx, ContentStream, content.Bytes(), ndjsonContentType); err != nil {
		return res, fmt.Errorf("uploading %s: %w", ContentStream, err)
	}
	return res, nil
}

func (g *BulkGenerator) encode(ctx context.Context, key string) (bulk.Pair, []bulk.Pair, error) {
	data, err := g.src.Get(ctx, key)
	if err != nil {
		return bulk.Pair{}, nil, fmt.Errorf("reading artifact %s: %w", key, err)
	}
	doc, err := document.Decode(key, data)
	if err != nil {
		return bulk.Pair{}, nil, err
	}
	return g.encoder.Document(doc)
}

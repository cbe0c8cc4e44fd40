// Package pipeline runs the batch jobs: extracting EPUB sources into JSON
// artifacts, generating bulk NDJSON streams from those artifacts, replaying
// streams into the search engine and merging embeddings. A failing document
// is logged and skipped; only infrastructure failures abort a run.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/book-ingest/internal/document"
	"github.com/Adithya-Monish-Kumar-K/book-ingest/internal/ledger"
	"github.com/Adithya-Monish-Kumar-K/book-ingest/internal/storage"
	"github.com/Adithya-Monish-Kumar-K/book-ingest/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/book-ingest/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/book-ingest/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/book-ingest/pkg/tracing"
)

const jsonContentType = "application/json; charset=utf-8"

// BookIngested is published once per successfully extracted book.
type BookIngested struct {
	RunID      string    `json:"run_id"`
	BookID     string    `json:"book_id"`
	SourceUID  string    `json:"source_uid"`
	Title      string    `json:"title"`
	Author     string    `json:"author"`
	Source     string    `json:"source"`
	Artifact   string    `json:"artifact"`
	Chapters   int       `json:"chapters"`
	Paragraphs int       `json:"paragraphs"`
	IngestedAt time.Time `json:"ingested_at"`
}

// Result summarises one run.
type Result struct {
	RunID     string
	Processed int
	Failed    int
}

// Extractor turns every .epub under a prefix of the source store into a
// <stem>.json artifact in the destination store.
type Extractor struct {
	src       storage.Store
	dst       storage.Store
	assembler *document.Assembler
	ledger    ledger.Recorder
	events    kafka.Publisher
	metrics   *metrics.Metrics
	workers   int
	now       func() time.Time
}

// ExtractorOption configures an Extractor.
type ExtractorOption func(*Extractor)

// WithLedger records every outcome in r.
func WithLedger(r ledger.Recorder) ExtractorOption {
	return func(e *Extractor) { e.ledger = r }
}

// WithEvents publishes a BookIngested event per extracted book.
func WithEvents(p kafka.Publisher) ExtractorOption {
	return func(e *Extractor) { e.events = p }
}

// WithMetrics records document metrics.
func WithMetrics(m *metrics.Metrics) ExtractorOption {
	return func(e *Extractor) { e.metrics = m }
}

// WithWorkers processes up to n documents concurrently. Documents share no
// state, so the output is the same as a sequential run.
func WithWorkers(n int) ExtractorOption {
	return func(e *Extractor) { e.workers = n }
}

// NewExtractor returns an Extractor reading from src and writing to dst.
func NewExtractor(src, dst storage.Store, assembler *document.Assembler, opts ...ExtractorOption) *Extractor {
	e := &Extractor{
		src:       src,
		dst:       dst,
		assembler: assembler,
		workers:   1,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.workers < 1 {
		e.workers = 1
	}
	return e
}

// Run processes every .epub key under prefix in sorted order.
func (e *Extractor) Run(ctx context.Context, prefix string) (Result, error) {
	res := Result{RunID: uuid.NewString()}
	ctx = logger.WithRunID(ctx, res.RunID)
	log := logger.FromContext(ctx).With("component", "extractor")

	keys, err := e.src.List(ctx, prefix)
	if err != nil {
		return res, fmt.Errorf("listing sources: %w", err)
	}
	keys = storage.WithSuffix(keys, ".epub")
	log.Info("extract run started", "sources", len(keys), "workers", e.workers)

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for _, key := range keys {
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			err := e.processOne(gctx, log, res.RunID, key)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return err
				}
				res.Failed++
				return nil
			}
			res.Processed++
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return res, fmt.Errorf("extract run aborted: %w", err)
	}
	log.Info("extract run finished", "processed", res.Processed, "failed", res.Failed)
	return res, nil
}

// processOne handles a single source. Its error is already logged.
func (e *Extractor) processOne(ctx context.Context, log *slog.Logger, runID, key string) error {
	ctx, span := tracing.Start(ctx, "document", runID)
	span.SetAttr("source", key)
	doc, artifact, err := e.extract(ctx, key)
	span.End(err)
	span.Log(ctx, log)
	entry := ledger.Entry{Source: e.src.Link(key), RunID: runID, Artifact: artifact}
	if err != nil {
		log.Error("extract failed", "source", key, "error", err)
		e.metrics.ObserveDocument("extract", false, 0, 0)
		entry.Status = ledger.StatusFailed
		entry.Error = err.Error()
		e.record(ctx, log, entry)
		return err
	}

	chapters, paragraphs := len(doc.Sections), doc.ParagraphCount()
	log.Info("extracted", "source", key, "artifact", artifact, "book_id", doc.BookID, "chapters", chapters, "paragraphs", paragraphs)
	e.metrics.ObserveDocument("extract", true, chapters, paragraphs)

	entry.Status = ledger.StatusOK
	entry.SourceUID = doc.SourceUID
	entry.BookID = doc.BookID
	entry.Chapters = chapters
	entry.Paragraphs = paragraphs
	e.record(ctx, log, entry)

	if e.events != nil {
		ev := kafka.Event{Key: doc.BookID, Value: BookIngested{
			RunID:      runID,
			BookID:     doc.BookID,
			SourceUID:  doc.SourceUID,
			Title:      doc.Title,
			Author:     doc.Author,
			Source:     doc.Link,
			Artifact:   artifact,
			Chapters:   chapters,
			Paragraphs: paragraphs,
			IngestedAt: e.now().UTC(),
		}}
		if err := e.events.Publish(ctx, ev); err != nil {
			log.Warn("publishing book event failed", "book_id", doc.BookID, "error", err)
		}
	}
	return nil
}

func (e *Extractor) extract(ctx context.Context, key string) (*document.Document, string, error) {
	_, read := tracing.StartChild(ctx, "read")
	raw, err := e.src.Get(ctx, key)
	read.SetAttr("bytes", len(raw))
	read.End(err)
	if err != nil {
		return nil, "", err
	}

	_, assemble := tracing.StartChild(ctx, "assemble")
	doc, err := e.assembler.Assemble(key, raw, e.src.Link(key))
	assemble.End(err)
	if err != nil {
		return nil, "", err
	}

	_, write := tracing.StartChild(ctx, "write")
	artifact := document.ArtifactName(key)
	data, err := document.Encode(doc)
	if err == nil {
		err = e.dst.Put(ctx, artifact, data, jsonContentType)
	}
	write.End(err)
	if err != nil {
		return nil, "", err
	}
	return doc, artifact, nil
}

func (e *Extractor) record(ctx context.Context, log *slog.Logger, entry ledger.Entry) {
	if e.ledger == nil {
		return
	}
	if err := e.ledger.Record(ctx, entry); err != nil {
		log.Warn("ledger write failed", "source", entry.Source, "error", err)
	}
}

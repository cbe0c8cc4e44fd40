// Command bulkgen turns per-book JSON artifacts into two bulk NDJSON streams:
// one summary record per book and one record per paragraph chunk.
//
// Artifacts come from a local directory (-in) or the parsed bucket. The
// streams go to -books/-content files, or to the index bucket as
// books.ndjson and book_content.ndjson when -in is empty.
//
// Usage:
//
//	go run ./cmd/bulkgen [-config configs/development.yaml] [-in parsed/ -books books.ndjson -content book_content.ndjson]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/Adithya-Monish-Kumar-K/book-ingest/internal/bulk"
	"github.com/Adithya-Monish-Kumar-K/book-ingest/internal/pipeline"
	"github.com/Adithya-Monish-Kumar-K/book-ingest/internal/storage"
	"github.com/Adithya-Monish-Kumar-K/book-ingest/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/book-ingest/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/book-ingest/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/book-ingest/pkg/metrics"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	inDir := flag.String("in", "", "local directory of .json artifacts (default: parsed bucket)")
	booksPath := flag.String("books", pipeline.BooksStream, "books stream output file (local mode)")
	contentPath := flag.String("content", pipeline.ContentStream, "content stream output file (local mode)")
	prefix := flag.String("prefix", "", "only process artifacts under this key prefix")
	flag.Parse()

	_ = godotenv.Load()
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New(nil)
		shutdown, err := metrics.StartServer(cfg.Metrics.Port)
		if err != nil {
			slog.Error("failed to start metrics server", "error", err)
			os.Exit(1)
		}
		defer shutdown(context.Background())
	}

	policy, err := bulk.ParseIDPolicy(cfg.Bulk.ChunkIDPolicy)
	if err != nil {
		slog.Error("invalid chunk id policy", "error", err)
		os.Exit(1)
	}
	enc := bulk.NewEncoder(cfg.Search.BooksIndex, cfg.Search.ContentIndex, policy)

	src, err := storage.Open(ctx, cfg.Storage, *inDir, cfg.Storage.ParsedBucket)
	if err != nil {
		slog.Error("failed to open artifact store", "error", err)
		os.Exit(1)
	}
	gen := pipeline.NewBulkGenerator(src, enc, m)

	var res pipeline.GenerateResult
	if *inDir != "" {
		res, err = generateFiles(ctx, gen, *prefix, *booksPath, *contentPath)
	} else {
		res, err = generateToBucket(ctx, gen, cfg.Storage, *prefix, src.(*storage.S3))
	}
	if err != nil {
		slog.Error("bulkgen failed", "error", err)
		os.Exit(1)
	}
	slog.Info("bulkgen complete", "books", res.Books, "chunks", res.Chunks, "skipped", res.Failed)
}

func generateFiles(ctx context.Context, gen *pipeline.BulkGenerator, prefix, booksPath, contentPath string) (pipeline.GenerateResult, error) {
	books, err := os.Create(booksPath)
	if err != nil {
		return pipeline.GenerateResult{}, fmt.Errorf("creating %s: %w", booksPath, err)
	}
	defer books.Close()
	content, err := os.Create(contentPath)
	if err != nil {
		return pipeline.GenerateResult{}, fmt.Errorf("creating %s: %w", contentPath, err)
	}
	defer content.Close()

	res, err := gen.Run(ctx, prefix, books, content)
	if err != nil {
		return res, err
	}
	if err := books.Sync(); err != nil {
		return res, err
	}
	return res, content.Sync()
}

func generateToBucket(ctx context.Context, gen *pipeline.BulkGenerator, cfg config.StorageConfig, prefix string, src *storage.S3) (pipeline.GenerateResult, error) {
	checker := health.NewChecker()
	checker.Register("object-store", health.PingCheck(5*time.Second, src.Ping))
	if err := checker.Preflight(ctx); err != nil {
		return pipeline.GenerateResult{}, err
	}
	client, err := storage.NewS3Client(ctx, cfg)
	if err != nil {
		return pipeline.GenerateResult{}, err
	}
	dst := storage.NewS3(client, cfg.IndexBucket)
	if err := dst.EnsureBucket(ctx); err != nil {
		return pipeline.GenerateResult{}, err
	}
	return gen.RunToStore(ctx, prefix, dst)
}

// Command extract turns EPUB sources into per-book JSON artifacts.
//
// Sources are read from a local file or directory (-in) or, when -in is
// empty, from the raw bucket. Artifacts are written to a local directory (-out) or the
// parsed bucket. A source that cannot be parsed is logged and skipped.
//
// Usage:
//
//	go run ./cmd/extract [-config configs/development.yaml] [-in books/] [-out parsed/]
//	go run ./cmd/extract -in books/moby-dick.epub -out parsed/
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

	"github.com/Adithya-Monish-Kumar-K/book-ingest/internal/document"
	"github.com/Adithya-Monish-Kumar-K/book-ingest/internal/ledger"
	"github.com/Adithya-Monish-Kumar-K/book-ingest/internal/metadata"
	"github.com/Adithya-Monish-Kumar-K/book-ingest/internal/pipeline"
	"github.com/Adithya-Monish-Kumar-K/book-ingest/internal/storage"
	"github.com/Adithya-Monish-Kumar-K/book-ingest/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/book-ingest/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/book-ingest/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/book-ingest/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/book-ingest/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/book-ingest/pkg/postgres"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	inPath := flag.String("in", "", "local .epub file or directory of .epub files (default: raw bucket)")
	outDir := flag.String("out", "", "local output directory (default: parsed bucket)")
	prefix := flag.String("prefix", "", "only process sources under this key prefix")
	workers := flag.Int("workers", 1, "documents processed concurrently")
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

	src, err := storage.OpenSource(ctx, cfg.Storage, *inPath, cfg.Storage.RawBucket)
	if err != nil {
		slog.Error("failed to open source store", "error", err)
		os.Exit(1)
	}
	dst, err := storage.Open(ctx, cfg.Storage, *outDir, cfg.Storage.ParsedBucket)
	if err != nil {
		slog.Error("failed to open output store", "error", err)
		os.Exit(1)
	}
	if s3dst, ok := dst.(*storage.S3); ok {
		if err := s3dst.EnsureBucket(ctx); err != nil {
			slog.Error("failed to prepare parsed bucket", "error", err)
			os.Exit(1)
		}
	}

	checker := health.NewChecker()
	opts := []pipeline.ExtractorOption{pipeline.WithWorkers(*workers), pipeline.WithMetrics(m)}
	var led *ledger.Ledger
	if cfg.Ledger.Enabled {
		db, err := postgres.Open(cfg.Postgres)
		if err != nil {
			slog.Error("failed to open postgres", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		checker.Register("postgres", health.PingCheck(5*time.Second, db.Ping))
		led = ledger.New(db)
		opts = append(opts, pipeline.WithLedger(led))
	}
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.BookIngested)
		defer producer.Close()
		opts = append(opts, pipeline.WithEvents(producer))
		slog.Info("kafka producer initialized", "topic", cfg.Kafka.Topics.BookIngested)
	}
	if s3src, ok := src.(*storage.S3); ok {
		checker.Register("object-store", health.PingCheck(5*time.Second, s3src.Ping))
	}
	if err := checker.Preflight(ctx); err != nil {
		slog.Error("preflight failed", "error", err)
		os.Exit(1)
	}
	if led != nil {
		if err := led.Migrate(ctx); err != nil {
			slog.Error("failed to migrate ledger", "error", err)
			os.Exit(1)
		}
	}

	assembler := document.NewAssembler(metadata.NewResolver(nil))
	res, err := pipeline.NewExtractor(src, dst, assembler, opts...).Run(ctx, *prefix)
	if err != nil {
		slog.Error("extract failed", "error", err)
		os.Exit(1)
	}
	slog.Info("extract complete", "run_id", res.RunID, "processed", res.Processed, "failed", res.Failed)
}

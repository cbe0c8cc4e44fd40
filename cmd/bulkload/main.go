// Command bulkload replays an NDJSON bulk stream into the search engine in
// batches bounded by search.bulkMaxBytes. With -init it first recreates the
// books and content indices from the mapping files in search.mappingsDir.
//
// Usage:
//
//	go run ./cmd/bulkload [-config configs/development.yaml] [-init] -file books.ndjson
//	go run ./cmd/bulkload -object book_content.ndjson   (read from the index bucket)
package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/Adithya-Monish-Kumar-K/book-ingest/internal/pipeline"
	"github.com/Adithya-Monish-Kumar-K/book-ingest/internal/search"
	"github.com/Adithya-Monish-Kumar-K/book-ingest/internal/storage"
	"github.com/Adithya-Monish-Kumar-K/book-ingest/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/book-ingest/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/book-ingest/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/book-ingest/pkg/metrics"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	file := flag.String("file", "", "local NDJSON file to load")
	object := flag.String("object", "", "NDJSON object in the index bucket to load")
	initIndices := flag.Bool("init", false, "recreate the books and content indices before loading")
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

	client := search.New(cfg.Search, m)
	checker := health.NewChecker()
	checker.Register("search", health.PingCheck(5*time.Second, client.Ping))
	if err := checker.Preflight(ctx); err != nil {
		slog.Error("preflight failed", "error", err)
		os.Exit(1)
	}

	if *initIndices {
		if err := client.InitIndices(ctx, cfg.Search.MappingsDir, cfg.Search.BooksIndex, cfg.Search.ContentIndex); err != nil {
			slog.Error("index init failed", "error", err)
			os.Exit(1)
		}
	}
	if *file == "" && *object == "" {
		return
	}

	r, name, err := openStream(ctx, cfg.Storage, *file, *object)
	if err != nil {
		slog.Error("failed to open stream", "error", err)
		os.Exit(1)
	}
	defer r.Close()

	res, err := pipeline.NewLoader(client, cfg.Search.BulkMaxBytes).Load(ctx, r, name)
	if err != nil {
		slog.Error("bulk load failed", "stream", name, "batches", res.Batches, "error", err)
		os.Exit(1)
	}
	slog.Info("bulk load complete", "stream", name, "batches", res.Batches, "docs", res.Pairs)
}

func openStream(ctx context.Context, cfg config.StorageConfig, file, object string) (io.ReadCloser, string, error) {
	if file != "" {
		f, err := os.Open(file)
		if err != nil {
			return nil, "", fmt.Errorf("opening %s: %w", file, err)
		}
		return f, file, nil
	}
	client, err := storage.NewS3Client(ctx, cfg)
	if err != nil {
		return nil, "", err
	}
	data, err := storage.NewS3(client, cfg.IndexBucket).Get(ctx, object)
	if err != nil {
		return nil, "", err
	}
	return io.NopCloser(bytes.NewReader(data)), object, nil
}

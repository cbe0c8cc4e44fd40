// Command embed reads an NDJSON bulk stream, computes an embedding for the
// source field of every record and posts the merge actions to the
// search engine in batches of bulk.embedBatchSize items. Records without _id
// are re-indexed with the vector added; records with _id get a partial
// update of the vector field.
//
// Usage:
//
//	go run ./cmd/embed [-config configs/development.yaml] -file book_content.ndjson [-index book_content_vec]
//	go run ./cmd/embed -file books.ndjson -source-field description -target-field description_vector
//	go run ./cmd/embed -reset-cache
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
	"github.com/Adithya-Monish-Kumar-K/book-ingest/internal/embedding"
	"github.com/Adithya-Monish-Kumar-K/book-ingest/internal/pipeline"
	"github.com/Adithya-Monish-Kumar-K/book-ingest/internal/search"
	"github.com/Adithya-Monish-Kumar-K/book-ingest/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/book-ingest/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/book-ingest/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/book-ingest/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/book-ingest/pkg/redis"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	file := flag.String("file", "", "NDJSON bulk stream to embed")
	indexOverride := flag.String("index", "", "send every action to this index instead of the one in the stream")
	sourceField := flag.String("source-field", "", "record field to embed (default embedding.sourceField)")
	targetField := flag.String("target-field", "", "field that receives the vector (default embedding.targetField)")
	resetCache := flag.Bool("reset-cache", false, "drop cached vectors of the configured model and exit")
	flag.Parse()

	_ = godotenv.Load()
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	if *sourceField != "" {
		cfg.Embedding.SourceField = *sourceField
	}
	if *targetField != "" {
		cfg.Embedding.TargetField = *targetField
	}

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

	checker := health.NewChecker()
	var rdb *redis.Client
	if cfg.Embedding.CacheEnable {
		rdb, err = redis.NewClient(cfg.Redis)
		if err != nil {
			slog.Error("failed to connect to redis", "error", err)
			os.Exit(1)
		}
		defer rdb.Close()
		checker.Register("redis", health.PingCheck(3*time.Second, rdb.Ping))
	}
	if *resetCache {
		if rdb == nil {
			slog.Warn("embedding cache is disabled, nothing to reset")
			return
		}
		n, err := embedding.NewCached(nil, rdb, cfg.Embedding.Model, cfg.Embedding.CacheTTL, m).Reset(ctx)
		if err != nil {
			slog.Error("cache reset failed", "error", err)
			os.Exit(1)
		}
		slog.Info("embedding cache reset", "model", cfg.Embedding.Model, "keys", n)
		return
	}

	gemini, err := embedding.NewGemini(ctx, cfg.Embedding.APIKey, cfg.Embedding.Model, cfg.Embedding.RequestsPerSecond)
	if err != nil {
		slog.Error("failed to create embedder", "error", err)
		os.Exit(1)
	}
	defer gemini.Close()
	var embedder embedding.Embedder = gemini
	if rdb != nil {
		embedder = embedding.NewCached(gemini, rdb, cfg.Embedding.Model, cfg.Embedding.CacheTTL, m)
	}

	if *file == "" {
		fmt.Fprintln(os.Stderr, "-file is required")
		os.Exit(2)
	}

	client := search.New(cfg.Search, m)
	checker.Register("search", health.PingCheck(5*time.Second, client.Ping))
	if err := checker.Preflight(ctx); err != nil {
		slog.Error("preflight failed", "error", err)
		os.Exit(1)
	}

	f, err := os.Open(*file)
	if err != nil {
		slog.Error("failed to open stream", "file", *file, "error", err)
		os.Exit(1)
	}
	defer f.Close()

	merger := bulk.NewMerger(embedder, cfg.Embedding.SourceField, cfg.Embedding.TargetField, *indexOverride)
	res, err := pipeline.NewEmbedRunner(client, merger, cfg.Bulk.EmbedBatchSize).Run(ctx, f, *file)
	if err != nil {
		slog.Error("embed failed", "batches", res.Batches, "error", err)
		os.Exit(1)
	}
	slog.Info("embed complete", "batches", res.Batches, "embedded", res.Pairs, "skipped", res.Skipped)
}

// Package search is a small HTTP client for the search engine: bulk posts,
// index lifecycle and a liveness ping. Transient failures are retried with
// backoff behind a circuit breaker.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/book-ingest/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/book-ingest/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/book-ingest/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/book-ingest/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/book-ingest/pkg/resilience"
)

const ndjsonContentType = "application/x-ndjson"

// StatusError is an HTTP response with status >= 400.
type StatusError struct {
	Method string
	URL    string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s -> %d: %s", e.Method, e.URL, e.Status, e.Body)
}

// Retryable reports whether err is worth retrying: gateway errors and
// transport failures are, everything else is not.
func Retryable(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		switch se.Status {
		case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return true
		}
		return false
	}
	return !errors.Is(err, context.Canceled)
}

// retryTransportOnly repeats a request only when no response came back.
// Used for writes that are not safe to replay after the engine answered.
func retryTransportOnly(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return false
	}
	return Retryable(err)
}

// idempotent reports whether replaying method cannot change the outcome.
func idempotent(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodPut, http.MethodDelete:
		return true
	}
	return false
}

// Client talks to one search engine endpoint.
type Client struct {
	baseURL string
	http    *http.Client
	policy  resilience.Policy
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// New returns a Client for cfg. m may be nil.
func New(cfg config.SearchConfig, m *metrics.Metrics) *Client {
	logger := slog.Default().With("component", "search-client")
	transport := middleware.Chain(http.DefaultTransport, middleware.Metrics(m), middleware.Logging(logger))
	return &Client{
		baseURL: strings.TrimRight(cfg.URL, "/"),
		http:    &http.Client{Timeout: cfg.RequestTimeout, Transport: transport},
		policy: resilience.Policy{
			Retry: resilience.RetryConfig{
				MaxAttempts:  cfg.RetryAttempts + 1,
				InitialDelay: cfg.RetryDelay,
				ShouldRetry:  Retryable,
			},
			Breaker: resilience.NewCircuitBreaker("search", resilience.CircuitBreakerConfig{
				FailureThreshold: 5,
				ResetTimeout:     30 * time.Second,
				IsFailure:        Retryable,
				OnStateChange: func(name string, to resilience.State) {
					m.SetBreakerState(name, int(to))
				},
			}),
		},
		metrics: m,
		logger:  logger,
	}
}

// do sends one request and returns the response body. Responses with status
// >= 400 become a StatusError. Only retryable failures count against the
// circuit breaker.
func (c *Client) do(ctx context.Context, method, path, contentType string, body []byte) ([]byte, error) {
	return c.send(ctx, method, path, contentType, body, idempotent(method))
}

// send is do with an explicit replay decision. When replayable is false a
// gateway status is returned as is and only transport errors are retried.
func (c *Client) send(ctx context.Context, method, path, contentType string, body []byte, replayable bool) ([]byte, error) {
	url := c.baseURL + path
	policy := c.policy
	if !replayable {
		policy.Retry.ShouldRetry = retryTransportOnly
	}
	var out []byte
	err := policy.Do(ctx, method+" "+path, func(attempt int) error {
		var rdr io.Reader
		if body != nil {
			rdr = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, rdr)
		if err != nil {
			return fmt.Errorf("building request: %w", err)
		}
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("reading response: %w", err)
		}
		if resp.StatusCode >= 400 {
			return &StatusError{Method: method, URL: url, Status: resp.StatusCode, Body: string(data)}
		}
		out = data
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// BulkResponse is the part of a _bulk response the client inspects.
type BulkResponse struct {
	Took   int               `json:"took"`
	Errors bool              `json:"errors"`
	Items  []json.RawMessage `json:"items"`
}

type bulkItemResult struct {
	Error json.RawMessage `json:"error"`
}

// Bulk posts one NDJSON body to /_bulk. When the engine reports item
// failures the first failing item is returned as a BulkIndexError. Bulk
// item failures are never retried, and a gateway status is retried only
// when every action names its _id.
func (c *Client) Bulk(ctx context.Context, body []byte) (*BulkResponse, error) {
	data, err := c.send(ctx, http.MethodPost, "/_bulk", ndjsonContentType, body, replayableBulk(body))
	if err != nil {
		c.metrics.ObserveBulkBatch(len(body), err)
		return nil, fmt.Errorf("posting bulk batch: %w", err)
	}
	var resp BulkResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		c.metrics.ObserveBulkBatch(len(body), err)
		return nil, fmt.Errorf("decoding bulk response: %w", err)
	}
	if resp.Errors {
		if item := firstFailedItem(resp.Items); item != nil {
			err := &apperrors.BulkIndexError{Item: item}
			c.metrics.ObserveBulkBatch(len(body), err)
			return &resp, err
		}
	}
	c.metrics.ObserveBulkBatch(len(body), nil)
	return &resp, nil
}

// replayableBulk reports whether every action in body targets an explicit
// _id, so that sending it twice overwrites instead of duplicating.
func replayableBulk(body []byte) bool {
	lines := bytes.Split(body, []byte("\n"))
	actions := 0
	for i := 0; i < len(lines); i++ {
		line := bytes.TrimSpace(lines[i])
		if len(line) == 0 {
			continue
		}
		var action map[string]struct {
			ID string `json:"_id"`
		}
		if err := json.Unmarshal(line, &action); err != nil || len(action) != 1 {
			return false
		}
		for op, meta := range action {
			if op == "create" || meta.ID == "" {
				return false
			}
			if op != "delete" {
				i++
			}
		}
		actions++
	}
	return actions > 0
}

func firstFailedItem(items []json.RawMessage) json.RawMessage {
	for _, raw := range items {
		var item map[string]bulkItemResult
		if err := json.Unmarshal(raw, &item); err != nil {
			continue
		}
		for _, op := range []string{"index", "create", "update", "delete"} {
			r, ok := item[op]
			if ok && len(r.Error) > 0 && string(r.Error) != "null" {
				return raw
			}
		}
	}
	return nil
}

// IndexExists reports whether the index exists.
func (c *Client) IndexExists(ctx context.Context, name string) (bool, error) {
	_, err := c.do(ctx, http.MethodHead, "/"+name, "", nil)
	if err == nil {
		return true, nil
	}
	var se *StatusError
	if errors.As(err, &se) && se.Status == http.StatusNotFound {
		return false, nil
	}
	return false, fmt.Errorf("checking index %s: %w", name, err)
}

// DeleteIndex removes an index.
func (c *Client) DeleteIndex(ctx context.Context, name string) error {
	if _, err := c.do(ctx, http.MethodDelete, "/"+name, "", nil); err != nil {
		return fmt.Errorf("deleting index %s: %w", name, err)
	}
	return nil
}

// CreateIndex creates an index with the given JSON settings and mappings.
func (c *Client) CreateIndex(ctx context.Context, name string, body []byte) error {
	if !json.Valid(body) {
		return apperrors.NewDecodeError(name, fmt.Errorf("index definition is not valid JSON"))
	}
	if _, err := c.do(ctx, http.MethodPut, "/"+name, "application/json", body); err != nil {
		return fmt.Errorf("creating index %s: %w", name, err)
	}
	return nil
}

// RecreateIndex deletes the index if it exists and creates it from body.
func (c *Client) RecreateIndex(ctx context.Context, name string, body []byte) error {
	exists, err := c.IndexExists(ctx, name)
	if err != nil {
		return err
	}
	if exists {
		if err := c.DeleteIndex(ctx, name); err != nil {
			return err
		}
	}
	if err := c.CreateIndex(ctx, name, body); err != nil {
		return err
	}
	c.logger.Info("index created", "index", name)
	return nil
}

// InitIndices recreates every named index from <dir>/<name>.json.
func (c *Client) InitIndices(ctx context.Context, dir string, names ...string) error {
	for _, name := range names {
		body, err := os.ReadFile(filepath.Join(dir, name+".json"))
		if err != nil {
			return fmt.Errorf("reading mapping for %s: %w", name, err)
		}
		if err := c.RecreateIndex(ctx, name, body); err != nil {
			return err
		}
	}
	return nil
}

// Ping checks that the engine answers on its root endpoint.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodGet, "/", "", nil)
	return err
}

package search

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/book-ingest/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/book-ingest/pkg/errors"
)

func newTestClient(url string) *Client {
	return New(config.SearchConfig{
		URL:            url,
		RequestTimeout: 5 * time.Second,
		RetryAttempts:  2,
		RetryDelay:     time.Millisecond,
	}, nil)
}

func TestBulkPostsNDJSON(t *testing.T) {
	var gotBody, gotType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/_bulk" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		gotType = r.Header.Get("Content-Type")
		w.Write([]byte(`{"took":3,"errors":false,"items":[{"index":{"status":201}}]}`))
	}))
	defer srv.Close()

	body := "{\"index\":{\"_index\":\"books\"}}\n{\"title\":\"T\"}\n"
	resp, err := newTestClient(srv.URL).Bulk(context.Background(), []byte(body))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotBody != body {
		t.Errorf("expected body %q, got %q", body, gotBody)
	}
	if gotType != "application/x-ndjson" {
		t.Errorf("expected ndjson content type, got %q", gotType)
	}
	if resp.Took != 3 || len(resp.Items) != 1 {
		t.Errorf("unexpected response %+v", resp)
	}
}

func TestBulkItemErrorReportsFirstFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"errors":true,"items":[
			{"index":{"status":201,"error":null}},
			{"update":{"status":404,"error":{"type":"document_missing_exception"}}},
			{"index":{"status":400,"error":{"type":"mapper_parsing_exception"}}}
		]}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Bulk(context.Background(), []byte("{}\n"))
	if !errors.Is(err, apperrors.ErrBulkIndex) {
		t.Fatalf("expected ErrBulkIndex, got %v", err)
	}
	var be *apperrors.BulkIndexError
	if !errors.As(err, &be) {
		t.Fatalf("expected BulkIndexError, got %T", err)
	}
	if !strings.Contains(string(be.Item), "document_missing_exception") {
		t.Errorf("expected first failing item, got %s", be.Item)
	}
}

func TestBulkErrorsFlagWithoutFailedItem(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"errors":true,"items":[{"index":{"status":201}}]}`))
	}))
	defer srv.Close()
	if _, err := newTestClient(srv.URL).Bulk(context.Background(), []byte("{}\n")); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

// flakyServer answers the first failures requests with status and the rest
// with body, counting every request.
func flakyServer(failures, status int, body string) (*httptest.Server, func() int) {
	var mu sync.Mutex
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		if n <= failures {
			w.WriteHeader(status)
			return
		}
		w.Write([]byte(body))
	}))
	return srv, func() int {
		mu.Lock()
		defer mu.Unlock()
		return calls
	}
}

func TestBulkWithIDsRetriesGatewayErrors(t *testing.T) {
	srv, calls := flakyServer(2, http.StatusServiceUnavailable, `{"errors":false,"items":[]}`)
	defer srv.Close()

	body := "{\"index\":{\"_index\":\"book_content\",\"_id\":\"abc_0001_0001\"}}\n{\"text\":\"x\"}\n"
	if _, err := newTestClient(srv.URL).Bulk(context.Background(), []byte(body)); err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if calls() != 3 {
		t.Errorf("expected 3 calls, got %d", calls())
	}
}

func TestBulkWithoutIDsIsPostedOnceOnGatewayTimeout(t *testing.T) {
	srv, calls := flakyServer(1, http.StatusGatewayTimeout, `{"errors":false,"items":[]}`)
	defer srv.Close()

	body := "{\"index\":{\"_index\":\"book_content\"}}\n{\"text\":\"x\"}\n"
	_, err := newTestClient(srv.URL).Bulk(context.Background(), []byte(body))
	var se *StatusError
	if !errors.As(err, &se) || se.Status != http.StatusGatewayTimeout {
		t.Fatalf("expected 504 StatusError, got %v", err)
	}
	if calls() != 1 {
		t.Errorf("expected a single POST, got %d", calls())
	}
}

func TestPingRetriesGatewayErrors(t *testing.T) {
	srv, calls := flakyServer(1, http.StatusBadGateway, `{}`)
	defer srv.Close()

	if err := newTestClient(srv.URL).Ping(context.Background()); err != nil {
		t.Fatalf("expected success after retry, got %v", err)
	}
	if calls() != 2 {
		t.Errorf("expected 2 calls, got %d", calls())
	}
}

func TestReplayableBulk(t *testing.T) {
	tests := []struct {
		name string
		body string
		want bool
	}{
		{"index with ids", "{\"index\":{\"_id\":\"a\"}}\n{\"t\":1}\n{\"index\":{\"_id\":\"b\"}}\n{\"t\":2}\n", true},
		{"update merge", "{\"update\":{\"_index\":\"books\",\"_id\":\"a\"}}\n{\"doc\":{\"v\":[1]}}\n", true},
		{"delete has no source", "{\"delete\":{\"_id\":\"a\"}}\n{\"index\":{\"_id\":\"b\"}}\n{\"t\":2}\n", true},
		{"one action without id", "{\"index\":{\"_id\":\"a\"}}\n{\"t\":1}\n{\"index\":{}}\n{\"t\":2}\n", false},
		{"create", "{\"create\":{\"_id\":\"a\"}}\n{\"t\":1}\n", false},
		{"empty", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := replayableBulk([]byte(tt.body)); got != tt.want {
				t.Errorf("replayableBulk = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestClientErrorsAreNotRetried(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"bad"}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Bulk(context.Background(), []byte("{}\n"))
	var se *StatusError
	if !errors.As(err, &se) || se.Status != http.StatusBadRequest {
		t.Fatalf("expected 400 StatusError, got %v", err)
	}
	if !strings.Contains(se.Body, "bad") {
		t.Errorf("expected body in error, got %q", se.Body)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestInitIndicesRecreates(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"books", "book_content"} {
		if err := os.WriteFile(filepath.Join(dir, name+".json"), []byte(`{"mappings":{}}`), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	var mu sync.Mutex
	var seen []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		seen = append(seen, r.Method+" "+r.URL.Path)
		mu.Unlock()
		if r.Method == http.MethodHead && r.URL.Path == "/book_content" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write([]byte(`{"acknowledged":true}`))
	}))
	defer srv.Close()

	if err := newTestClient(srv.URL).InitIndices(context.Background(), dir, "books", "book_content"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{
		"HEAD /books", "DELETE /books", "PUT /books",
		"HEAD /book_content", "PUT /book_content",
	}
	if !reflect.DeepEqual(seen, want) {
		t.Errorf("expected %v, got %v", want, seen)
	}
}

func TestInitIndicesMissingMapping(t *testing.T) {
	c := newTestClient("http://127.0.0.1:1")
	if err := c.InitIndices(context.Background(), t.TempDir(), "books"); err == nil {
		t.Fatal("expected error for missing mapping file")
	}
}

func TestRetryable(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{&StatusError{Status: 502}, true},
		{&StatusError{Status: 504}, true},
		{&StatusError{Status: 500}, false},
		{&StatusError{Status: 404}, false},
		{errors.New("connection reset"), true},
		{context.Canceled, false},
	}
	for _, tt := range tests {
		if got := Retryable(tt.err); got != tt.want {
			t.Errorf("Retryable(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

package middleware

import (
	"bytes"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/Adithya-Monish-Kumar-K/book-ingest/pkg/metrics"
)

func TestChainOrder(t *testing.T) {
	var order []string
	tag := func(name string) func(http.RoundTripper) http.RoundTripper {
		return func(next http.RoundTripper) http.RoundTripper {
			return RoundTripperFunc(func(r *http.Request) (*http.Response, error) {
				order = append(order, name)
				return next.RoundTrip(r)
			})
		}
	}
	base := RoundTripperFunc(func(r *http.Request) (*http.Response, error) {
		order = append(order, "base")
		return &http.Response{StatusCode: http.StatusOK, Body: http.NoBody}, nil
	})
	req := httptest.NewRequest(http.MethodGet, "http://search/", nil)
	if _, err := Chain(base, tag("outer"), tag("inner")).RoundTrip(req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := strings.Join(order, ","); got != "outer,inner,base" {
		t.Errorf("expected outer,inner,base, got %s", got)
	}
}

func TestMetricsRecordsStatus(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	ok := RoundTripperFunc(func(r *http.Request) (*http.Response, error) {
		return &http.Response{StatusCode: http.StatusServiceUnavailable, Body: http.NoBody}, nil
	})
	fail := RoundTripperFunc(func(r *http.Request) (*http.Response, error) {
		return nil, errors.New("connection refused")
	})
	req := httptest.NewRequest(http.MethodPost, "http://search/_bulk", nil)
	Chain(ok, Metrics(m)).RoundTrip(req)
	Chain(fail, Metrics(m)).RoundTrip(req)

	if got := testutil.ToFloat64(m.SearchRequestsTotal.WithLabelValues("POST", "503")); got != 1 {
		t.Errorf("expected 1 request with status 503, got %v", got)
	}
	if got := testutil.ToFloat64(m.SearchRequestsTotal.WithLabelValues("POST", "error")); got != 1 {
		t.Errorf("expected 1 failed request, got %v", got)
	}
}

func TestLoggingAtDebug(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	base := RoundTripperFunc(func(r *http.Request) (*http.Response, error) {
		return &http.Response{StatusCode: http.StatusOK, Body: http.NoBody}, nil
	})
	req := httptest.NewRequest(http.MethodHead, "http://search/books", nil)
	Chain(base, Logging(logger)).RoundTrip(req)
	if !strings.Contains(buf.String(), "path=/books") || !strings.Contains(buf.String(), "status=200") {
		t.Errorf("unexpected log output: %s", buf.String())
	}
}

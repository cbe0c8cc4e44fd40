// Package middleware provides http.RoundTripper middleware for outbound
// calls to the search engine: Prometheus request metrics and debug request
// logging.
package middleware

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/Adithya-Monish-Kumar-K/book-ingest/pkg/metrics"
)

// RoundTripperFunc adapts a function to http.RoundTripper.
type RoundTripperFunc func(*http.Request) (*http.Response, error)

func (f RoundTripperFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

// Chain wraps base with mws; the first middleware is outermost. A nil base
// is http.DefaultTransport.
func Chain(base http.RoundTripper, mws ...func(http.RoundTripper) http.RoundTripper) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	for i := len(mws) - 1; i >= 0; i-- {
		base = mws[i](base)
	}
	return base
}

// Metrics records request count by status code and latency.
func Metrics(m *metrics.Metrics) func(http.RoundTripper) http.RoundTripper {
	return func(next http.RoundTripper) http.RoundTripper {
		return RoundTripperFunc(func(r *http.Request) (*http.Response, error) {
			start := time.Now()
			resp, err := next.RoundTrip(r)
			m.ObserveSearchRequest(r.Method, statusLabel(resp, err), time.Since(start).Seconds())
			return resp, err
		})
	}
}

// Logging logs every request at debug level.
func Logging(logger *slog.Logger) func(http.RoundTripper) http.RoundTripper {
	return func(next http.RoundTripper) http.RoundTripper {
		return RoundTripperFunc(func(r *http.Request) (*http.Response, error) {
			start := time.Now()
			resp, err := next.RoundTrip(r)
			logger.DebugContext(r.Context(), "search request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", statusLabel(resp, err),
				"bytes", r.ContentLength,
				"duration_ms", time.Since(start).Milliseconds(),
			)
			return resp, err
		})
	}
}

func statusLabel(resp *http.Response, err error) string {
	if err != nil || resp == nil {
		return "error"
	}
	return strconv.Itoa(resp.StatusCode)
}

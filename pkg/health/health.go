// Package health runs preflight checks against the external dependencies a
// batch command needs (search engine, object store, Postgres, Redis) before
// any document is processed.
package health

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/book-ingest/pkg/resilience"
	"golang.org/x/sync/errgroup"
)

// Status is the outcome of one probe.
type Status string

const (
	StatusUp   Status = "up"
	StatusDown Status = "down"
)

// Check probes a single dependency.
type Check func(ctx context.Context) Result

// Result is what one Check reports. Name and Latency are filled in by Run.
type Result struct {
	Name    string
	Status  Status
	Message string
	Latency time.Duration
}

// PingCheck adapts a ping function into a Check bounded by timeout.
func PingCheck(timeout time.Duration, ping func(ctx context.Context) error) Check {
	return func(ctx context.Context) Result {
		if err := resilience.WithTimeout(ctx, timeout, "health ping", ping); err != nil {
			return Result{Status: StatusDown, Message: err.Error()}
		}
		return Result{Status: StatusUp}
	}
}

type namedCheck struct {
	name  string
	check Check
}

// Checker holds the dependencies registered by a command. It is built once
// at startup and not safe for concurrent Register calls.
type Checker struct {
	checks []namedCheck
	logger *slog.Logger
}

func NewChecker() *Checker {
	return &Checker{logger: slog.Default().With("component", "health")}
}

// Register adds a named check. Results are reported in registration order.
func (c *Checker) Register(name string, check Check) {
	c.checks = append(c.checks, namedCheck{name: name, check: check})
}

// Run probes every dependency concurrently.
func (c *Checker) Run(ctx context.Context) []Result {
	results := make([]Result, len(c.checks))
	var g errgroup.Group
	for i, nc := range c.checks {
		g.Go(func() error {
			start := time.Now()
			r := nc.check(ctx)
			r.Name = nc.name
			r.Latency = time.Since(start).Round(time.Millisecond)
			results[i] = r
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// Preflight runs all checks, logs each one and returns an error naming every
// dependency that is down.
func (c *Checker) Preflight(ctx context.Context) error {
	var down []string
	for _, r := range c.Run(ctx) {
		if r.Status == StatusDown {
			c.logger.Error("preflight", "dependency", r.Name, "latency", r.Latency, "error", r.Message)
			down = append(down, fmt.Sprintf("%s (%s)", r.Name, r.Message))
			continue
		}
		c.logger.Info("preflight", "dependency", r.Name, "latency", r.Latency)
	}
	if len(down) > 0 {
		return fmt.Errorf("preflight failed: %s", strings.Join(down, ", "))
	}
	return nil
}

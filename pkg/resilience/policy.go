package resilience

import "context"

// Policy retries an operation inside a circuit breaker: one breaker
// admission covers all attempts, and only the final outcome is recorded.
type Policy struct {
	Retry   RetryConfig
	Breaker *CircuitBreaker
}

// Do runs fn under the policy. A nil Breaker only retries.
func (p Policy) Do(ctx context.Context, name string, fn func(attempt int) error) error {
	run := func() error { return Retry(ctx, name, p.Retry, fn) }
	if p.Breaker == nil {
		return run()
	}
	return p.Breaker.Execute(run)
}

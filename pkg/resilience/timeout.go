package resilience

import (
	"context"
	"fmt"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/book-ingest/pkg/errors"
)

// WithTimeout runs fn under a deadline. When the deadline passes first the
// result is an error matching apperrors.ErrTimeout, and fn is left to
// observe its cancelled context. Cancellation of ctx itself is reported as
// ctx.Err(). A non-positive timeout runs fn directly.
func WithTimeout(ctx context.Context, timeout time.Duration, name string, fn func(ctx context.Context) error) error {
	if timeout <= 0 {
		return fn(ctx)
	}
	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result := make(chan error, 1)
	go func() { result <- fn(tctx) }()

	var err error
	select {
	case err = <-result:
		if err == nil || tctx.Err() == nil {
			return err
		}
	case <-tctx.Done():
	}
	if perr := ctx.Err(); perr != nil {
		return fmt.Errorf("%s: %w", name, perr)
	}
	return fmt.Errorf("%s: %w after %v", name, apperrors.ErrTimeout, timeout)
}

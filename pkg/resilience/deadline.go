package resilience

import (
	"context"
	"fmt"
	"time"
)

// WithDeadline runs fn under a context that expires after timeout. A
// non-positive timeout runs fn with ctx unchanged. fn must honour its context;
// WithDeadline does not abandon it.
func WithDeadline(ctx context.Context, timeout time.Duration, name string, fn func(ctx context.Context) error) error {
	if timeout <= 0 {
		return fn(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := fn(ctx); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("%s: exceeded %v: %w", name, timeout, err)
		}
		return err
	}
	return nil
}

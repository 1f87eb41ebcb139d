// Package execution runs independent units of work either in the calling
// goroutine or on a bounded errgroup pool. Every helper joins all of its units
// before returning, so callers can treat a parallel stage as a barrier.
package execution

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// Policy selects how a stage runs. Workers bounds the pool size for parallel
// stages; zero means GOMAXPROCS.
type Policy struct {
	Parallel bool
	Workers  int
}

var (
	Sequential = Policy{}
	Parallel   = Policy{Parallel: true}
)

// WithWorkers returns a copy of p limited to n concurrent workers.
func (p Policy) WithWorkers(n int) Policy {
	p.Workers = n
	return p
}

func (p Policy) String() string {
	if p.Parallel {
		return "par"
	}
	return "seq"
}

func (p Policy) limit() int {
	if p.Workers > 0 {
		return p.Workers
	}
	return runtime.GOMAXPROCS(0)
}

// ParsePolicy accepts "seq"/"sequential" and "par"/"parallel". The empty
// string selects Sequential.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "seq", "sequential":
		return Sequential, nil
	case "par", "parallel":
		return Parallel, nil
	default:
		return Policy{}, fmt.Errorf("unknown execution policy %q", s)
	}
}

// ForEach calls fn for every item. Under a parallel policy items are handled
// concurrently with no ordering guarantee. Every unit runs to completion; index
// mutations built on ForEach must never stop halfway.
func ForEach[T any](p Policy, items []T, fn func(item T)) {
	if !p.Parallel || len(items) < 2 {
		for _, item := range items {
			fn(item)
		}
		return
	}
	var g errgroup.Group
	g.SetLimit(p.limit())
	for _, item := range items {
		g.Go(func() error {
			fn(item)
			return nil
		})
	}
	_ = g.Wait()
}

// Map applies fn to every item and returns the results in input order. The
// first error returned by fn is reported; remaining parallel units see a
// cancelled context.
func Map[T, R any](ctx context.Context, p Policy, items []T, fn func(ctx context.Context, item T) (R, error)) ([]R, error) {
	results := make([]R, len(items))
	if !p.Parallel || len(items) < 2 {
		for i, item := range items {
			r, err := fn(ctx, item)
			if err != nil {
				return nil, err
			}
			results[i] = r
		}
		return results, nil
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.limit())
	for i, item := range items {
		g.Go(func() error {
			r, err := fn(gctx, item)
			if err != nil {
				return err
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// Any reports whether pred holds for at least one item. Parallel units that
// start after a hit skip their check.
func Any[T any](p Policy, items []T, pred func(item T) bool) bool {
	if !p.Parallel || len(items) < 2 {
		for _, item := range items {
			if pred(item) {
				return true
			}
		}
		return false
	}
	var found atomic.Bool
	var g errgroup.Group
	g.SetLimit(p.limit())
	for _, item := range items {
		if found.Load() {
			break
		}
		g.Go(func() error {
			if !found.Load() && pred(item) {
				found.Store(true)
			}
			return nil
		})
	}
	_ = g.Wait()
	return found.Load()
}

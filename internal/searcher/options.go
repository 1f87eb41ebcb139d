package searcher

import (
	"github.com/petersspain/SearchServer/internal/execution"
	"github.com/petersspain/SearchServer/internal/indexer/index"
)

// Option adjusts a single search, match or removal call.
type Option func(*searchOptions)

type searchOptions struct {
	policy    execution.Policy
	predicate index.Predicate
}

// WithPolicy runs the call sequentially or on the worker pool.
func WithPolicy(p execution.Policy) Option {
	return func(o *searchOptions) { o.policy = p }
}

// WithStatus keeps only documents with the given status.
func WithStatus(status index.Status) Option {
	return func(o *searchOptions) { o.predicate = index.ByStatus(status) }
}

// WithPredicate keeps only documents accepted by pred. Under the parallel
// policy pred may be called from several goroutines at once.
func WithPredicate(pred index.Predicate) Option {
	return func(o *searchOptions) {
		if pred != nil {
			o.predicate = pred
		}
	}
}

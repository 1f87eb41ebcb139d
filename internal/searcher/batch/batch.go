// Package batch answers many queries at once on the worker pool.
package batch

import (
	"context"
	"fmt"

	"github.com/petersspain/SearchServer/internal/execution"
	"github.com/petersspain/SearchServer/internal/searcher"
	"github.com/petersspain/SearchServer/internal/searcher/ranker"
)

// Searcher is the part of *searcher.Server a batch needs.
type Searcher interface {
	FindTopDocuments(ctx context.Context, rawQuery string, opts ...searcher.Option) ([]ranker.Document, error)
}

// ProcessQueries runs every query with the default search options, in
// parallel across queries, and returns one result list per query in input
// order. The first failing query aborts the batch.
func ProcessQueries(ctx context.Context, s Searcher, queries []string) ([][]ranker.Document, error) {
	return execution.Map(ctx, execution.Parallel, queries, func(ctx context.Context, q string) ([]ranker.Document, error) {
		docs, err := s.FindTopDocuments(ctx, q)
		if err != nil {
			return nil, fmt.Errorf("query %q: %w", q, err)
		}
		return docs, nil
	})
}

// ProcessQueriesJoined is ProcessQueries flattened into one list, query by
// query.
func ProcessQueriesJoined(ctx context.Context, s Searcher, queries []string) ([]ranker.Document, error) {
	perQuery, err := ProcessQueries(ctx, s, queries)
	if err != nil {
		return nil, err
	}
	total := 0
	for _, docs := range perQuery {
		total += len(docs)
	}
	joined := make([]ranker.Document, 0, total)
	for _, docs := range perQuery {
		joined = append(joined, docs...)
	}
	return joined, nil
}

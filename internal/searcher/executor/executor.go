// Package executor scores parsed queries against the index with TF-IDF and
// matches queries against single documents. Every operation has a
// sequential reference path and a parallel path that must agree with it.
package executor

import (
	"context"
	"log/slog"
	"maps"
	"net/http"
	"slices"

	"github.com/petersspain/SearchServer/internal/execution"
	"github.com/petersspain/SearchServer/internal/indexer"
	"github.com/petersspain/SearchServer/internal/indexer/index"
	"github.com/petersspain/SearchServer/internal/searcher/parser"
	"github.com/petersspain/SearchServer/internal/searcher/ranker"
	"github.com/petersspain/SearchServer/pkg/concurrent"
	apperrors "github.com/petersspain/SearchServer/pkg/errors"
)

// DefaultBucketCount is the shard count of the relevance accumulator used by
// parallel scoring.
const DefaultBucketCount = 90

// MatchResult lists the plus words of a query found in a document, sorted,
// together with the document's status. Words is empty when a minus word hit.
type MatchResult struct {
	Words  []string     `json:"words"`
	Status index.Status `json:"status"`
}

// Executor reads the engine without locking; the caller keeps mutations
// away while a call is in flight.
type Executor struct {
	engine      *indexer.Engine
	bucketCount int
	logger      *slog.Logger
}

func New(engine *indexer.Engine, bucketCount int) *Executor {
	if bucketCount <= 0 {
		bucketCount = DefaultBucketCount
	}
	return &Executor{
		engine:      engine,
		bucketCount: bucketCount,
		logger:      slog.Default().With("component", "query-executor"),
	}
}

// FindTopDocuments parses rawQuery, scores every document accepted by
// predicate and returns the best MaxResultDocumentCount of them.
func (e *Executor) FindTopDocuments(ctx context.Context, policy execution.Policy, rawQuery string, predicate index.Predicate) ([]ranker.Document, error) {
	query, err := parser.Parse(rawQuery, e.engine.StopWords())
	if err != nil {
		return nil, err
	}
	matched, err := e.FindAllDocuments(ctx, policy, query, predicate)
	if err != nil {
		return nil, err
	}
	ranked := ranker.Rank(matched, ranker.MaxResultDocumentCount)
	e.logger.Debug("query executed",
		"query", rawQuery,
		"policy", policy.String(),
		"plus_terms", len(query.Plus),
		"minus_terms", len(query.Minus),
		"candidates", len(matched),
		"results", len(ranked),
	)
	return ranked, nil
}

// FindAllDocuments returns every document relevant to query in ascending id
// order, unranked. ctx is checked once before scoring; a started scan runs to
// the end.
func (e *Executor) FindAllDocuments(ctx context.Context, policy execution.Policy, query *parser.Query, predicate index.Predicate) ([]ranker.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if predicate == nil {
		predicate = index.ByStatus(index.StatusActual)
	}
	if policy.Parallel {
		return e.findAllParallel(policy, query, predicate)
	}
	return e.findAllSequential(query, predicate)
}

func (e *Executor) findAllSequential(query *parser.Query, predicate index.Predicate) ([]ranker.Document, error) {
	relevance := make(map[int]float64)
	for _, term := range query.Plus {
		postings, ok := e.engine.Postings(term)
		if !ok {
			continue
		}
		idf, err := e.engine.InverseDocumentFrequency(term)
		if err != nil {
			return nil, err
		}
		for id, tf := range postings {
			if e.accepts(predicate, id) {
				relevance[id] += tf * idf
			}
		}
	}
	for _, term := range query.Minus {
		postings, ok := e.engine.Postings(term)
		if !ok {
			continue
		}
		for id := range postings {
			delete(relevance, id)
		}
	}

	matched := make([]ranker.Document, 0, len(relevance))
	for _, id := range slices.Sorted(maps.Keys(relevance)) {
		matched = append(matched, e.scored(id, relevance[id]))
	}
	return matched, nil
}

func (e *Executor) findAllParallel(policy execution.Policy, query *parser.Query, predicate index.Predicate) ([]ranker.Document, error) {
	relevance := concurrent.NewShardedMap[int, float64](e.bucketCount)

	// IDFs are resolved before the fan-out; workers only read.
	type weightedTerm struct {
		postings index.Postings
		idf      float64
	}
	terms := make([]weightedTerm, 0, len(query.Plus))
	for _, term := range query.Plus {
		postings, ok := e.engine.Postings(term)
		if !ok {
			continue
		}
		idf, err := e.engine.InverseDocumentFrequency(term)
		if err != nil {
			return nil, err
		}
		terms = append(terms, weightedTerm{postings: postings, idf: idf})
	}

	execution.ForEach(policy, terms, func(wt weightedTerm) {
		for id, tf := range wt.postings {
			if e.accepts(predicate, id) {
				relevance.Update(id, func(v *float64) { *v += tf * wt.idf })
			}
		}
	})

	execution.ForEach(policy, query.Minus, func(term string) {
		postings, ok := e.engine.Postings(term)
		if !ok {
			return
		}
		for id := range postings {
			relevance.Erase(id)
		}
	})

	entries := relevance.SortedEntries()
	matched := make([]ranker.Document, 0, len(entries))
	for _, entry := range entries {
		matched = append(matched, e.scored(entry.Key, entry.Value))
	}
	return matched, nil
}

// MatchDocument reports which plus words of rawQuery occur in document id.
// Any minus word in the document empties the list.
func (e *Executor) MatchDocument(ctx context.Context, policy execution.Policy, rawQuery string, id int) (MatchResult, error) {
	if err := ctx.Err(); err != nil {
		return MatchResult{}, err
	}
	query, err := parser.Parse(rawQuery, e.engine.StopWords())
	if err != nil {
		return MatchResult{}, err
	}
	doc, ok := e.engine.Document(id)
	if !ok {
		return MatchResult{}, apperrors.Newf(apperrors.ErrDocumentNotFound, http.StatusNotFound, "document %d does not exist", id)
	}

	contains := func(term string) bool {
		return e.engine.ContainsTerm(term, id)
	}
	if execution.Any(policy, query.Minus, contains) {
		return MatchResult{Words: []string{}, Status: doc.Status}, nil
	}

	hits := make([]bool, len(query.Plus))
	positions := make([]int, len(query.Plus))
	for i := range positions {
		positions[i] = i
	}
	execution.ForEach(policy, positions, func(i int) {
		hits[i] = contains(query.Plus[i])
	})
	words := make([]string, 0, len(query.Plus))
	for i, hit := range hits {
		if hit {
			words = append(words, query.Plus[i])
		}
	}
	return MatchResult{Words: words, Status: doc.Status}, nil
}

func (e *Executor) accepts(predicate index.Predicate, id int) bool {
	doc, ok := e.engine.Document(id)
	return ok && predicate(id, doc.Status, doc.Rating)
}

func (e *Executor) scored(id int, relevance float64) ranker.Document {
	doc, _ := e.engine.Document(id)
	return ranker.Document{ID: id, Relevance: relevance, Rating: doc.Rating}
}

// Package searcher is the entry point of the search engine: it owns the
// index, serialises mutations against searches and exposes the public
// operations with per-call options.
package searcher

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/petersspain/SearchServer/internal/execution"
	"github.com/petersspain/SearchServer/internal/indexer"
	"github.com/petersspain/SearchServer/internal/indexer/index"
	"github.com/petersspain/SearchServer/internal/indexer/tokenizer"
	"github.com/petersspain/SearchServer/internal/searcher/executor"
	"github.com/petersspain/SearchServer/internal/searcher/ranker"
	"github.com/petersspain/SearchServer/pkg/config"
	"github.com/petersspain/SearchServer/pkg/metrics"
)

// Server guards an Engine with a RWMutex. AddDocument and RemoveDocument are
// exclusive; everything else runs under the read lock and may overlap.
type Server struct {
	mu       sync.RWMutex
	engine   *indexer.Engine
	executor *executor.Executor

	defaultPolicy execution.Policy
	workers       int
	metrics       *metrics.Metrics
	logger        *slog.Logger
}

// ServerOption configures a Server at construction.
type ServerOption func(*Server)

// WithMetrics records search and index metrics into m.
func WithMetrics(m *metrics.Metrics) ServerOption {
	return func(s *Server) { s.metrics = m }
}

// New builds an empty server with the given stop words.
func New(stopWords tokenizer.StopWords, cfg config.SearchConfig, opts ...ServerOption) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	policy := execution.Sequential
	if cfg.DefaultPolicy != "" {
		p, err := execution.ParsePolicy(cfg.DefaultPolicy)
		if err != nil {
			return nil, err
		}
		policy = p
	}
	engine := indexer.NewEngine(stopWords)
	s := &Server{
		engine:        engine,
		executor:      executor.New(engine, cfg.BucketCount),
		defaultPolicy: policy.WithWorkers(cfg.Workers),
		workers:       cfg.Workers,
		logger:        slog.Default().With("component", "search-server"),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger.Info("search server created",
		"stop_words", stopWords.Len(),
		"bucket_count", cfg.BucketCount,
		"default_policy", s.defaultPolicy.String(),
	)
	return s, nil
}

// NewFromWords builds a server whose stop words are the given collection.
func NewFromWords(words []string, cfg config.SearchConfig, opts ...ServerOption) (*Server, error) {
	sw, err := tokenizer.NewStopWords(words)
	if err != nil {
		return nil, fmt.Errorf("building stop words: %w", err)
	}
	return New(sw, cfg, opts...)
}

// NewFromText builds a server whose stop words are the space-separated words
// of text.
func NewFromText(text string, cfg config.SearchConfig, opts ...ServerOption) (*Server, error) {
	sw, err := tokenizer.ParseStopWords(text)
	if err != nil {
		return nil, fmt.Errorf("building stop words: %w", err)
	}
	return New(sw, cfg, opts...)
}

// AddDocument indexes text under id. The id must be non-negative and unused.
func (s *Server) AddDocument(id int, text string, status index.Status, ratings []int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.engine.AddDocument(id, text, status, ratings); err != nil {
		return err
	}
	s.metrics.DocumentAdded()
	s.metrics.ObserveIndex(s.engine.DocumentCount(), s.engine.TermCount())
	return nil
}

// FindTopDocuments returns up to five best documents for rawQuery. Without
// options it searches sequentially among ACTUAL documents.
func (s *Server) FindTopDocuments(ctx context.Context, rawQuery string, opts ...Option) ([]ranker.Document, error) {
	o := s.resolve(opts)
	start := time.Now()

	s.mu.RLock()
	docs, err := s.executor.FindTopDocuments(ctx, o.policy, rawQuery, o.predicate)
	s.mu.RUnlock()

	s.metrics.ObserveSearch(o.policy.String(), len(docs), err, time.Since(start))
	return docs, err
}

// MatchDocument lists the plus words of rawQuery present in document id.
func (s *Server) MatchDocument(ctx context.Context, rawQuery string, id int, opts ...Option) (executor.MatchResult, error) {
	o := s.resolve(opts)
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.executor.MatchDocument(ctx, o.policy, rawQuery, id)
}

// RemoveDocument deletes document id. Unknown ids are ignored. A cancelled
// ctx is only honoured before the removal starts; once started it completes.
func (s *Server) RemoveDocument(ctx context.Context, id int, opts ...Option) error {
	o := s.resolve(opts)
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.engine.Has(id) {
		return nil
	}
	s.engine.RemoveDocument(o.policy, id)
	s.metrics.DocumentRemoved()
	s.metrics.ObserveIndex(s.engine.DocumentCount(), s.engine.TermCount())
	return nil
}

// WordFrequencies returns a copy of document id's term frequencies, empty for
// an unknown id.
func (s *Server) WordFrequencies(id int) map[string]float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine.WordFrequencies(id)
}

// DocumentIDs returns the live ids in ascending order.
func (s *Server) DocumentIDs() []int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine.DocumentIDs()
}

// All yields the ids live at the time of the call in ascending order. The
// loop body may add or remove documents.
func (s *Server) All() iter.Seq[int] {
	return slices.Values(s.DocumentIDs())
}

// DocumentCount returns the number of live documents.
func (s *Server) DocumentCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine.DocumentCount()
}

// StopWords returns the stop-word set fixed at construction.
func (s *Server) StopWords() tokenizer.StopWords {
	return s.engine.StopWords()
}

// Generation changes after every successful mutation.
func (s *Server) Generation() uint64 {
	return s.engine.Generation()
}

// DefaultPolicy is the policy used when a call passes no WithPolicy option.
func (s *Server) DefaultPolicy() execution.Policy {
	return s.defaultPolicy
}

func (s *Server) resolve(opts []Option) searchOptions {
	o := searchOptions{
		policy:    s.defaultPolicy,
		predicate: index.ByStatus(index.StatusActual),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.policy.Parallel && o.policy.Workers == 0 {
		o.policy = o.policy.WithWorkers(s.workers)
	}
	return o
}

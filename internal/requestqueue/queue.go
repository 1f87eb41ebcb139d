// Package requestqueue remembers whether each of the most recent searches
// found anything and counts the empty ones.
package requestqueue

import (
	"context"
	"log/slog"
	"sync"

	"github.com/petersspain/SearchServer/internal/searcher"
	"github.com/petersspain/SearchServer/internal/searcher/ranker"
)

// DefaultWindow is one request per minute over a day.
const DefaultWindow = 1440

// Searcher is the part of *searcher.Server the queue forwards to.
type Searcher interface {
	FindTopDocuments(ctx context.Context, rawQuery string, opts ...searcher.Option) ([]ranker.Document, error)
}

// Stats is a point-in-time view of the queue.
type Stats struct {
	Window           int    `json:"window"`
	Recorded         int    `json:"recorded"`
	NoResultRequests int    `json:"no_result_requests"`
	TotalRequests    uint64 `json:"total_requests"`
}

// Queue keeps a ring of the last Window outcomes. It is safe for concurrent
// use.
type Queue struct {
	searcher Searcher

	mu       sync.Mutex
	empty    []bool
	head     int
	size     int
	noResult int
	total    uint64

	logger *slog.Logger
}

// New returns a queue over s. A non-positive window selects DefaultWindow.
func New(s Searcher, window int) *Queue {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Queue{
		searcher: s,
		empty:    make([]bool, window),
		logger:   slog.Default().With("component", "request-queue"),
	}
}

// AddFindRequest runs the search and records whether it came back empty.
// Failed searches are returned to the caller and not recorded.
func (q *Queue) AddFindRequest(ctx context.Context, rawQuery string, opts ...searcher.Option) ([]ranker.Document, error) {
	docs, err := q.searcher.FindTopDocuments(ctx, rawQuery, opts...)
	if err != nil {
		return nil, err
	}
	q.Record(len(docs) == 0)
	return docs, nil
}

// Record pushes one outcome, evicting the oldest once the window is full.
func (q *Queue) Record(empty bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	window := len(q.empty)
	if q.size == window {
		if q.empty[q.head] {
			q.noResult--
		}
		q.head = (q.head + 1) % window
		q.size--
	}
	q.empty[(q.head+q.size)%window] = empty
	q.size++
	if empty {
		q.noResult++
	}
	q.total++
}

// NoResultRequests counts the empty searches inside the window.
func (q *Queue) NoResultRequests() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.noResult
}

func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Stats{
		Window:           len(q.empty),
		Recorded:         q.size,
		NoResultRequests: q.noResult,
		TotalRequests:    q.total,
	}
}

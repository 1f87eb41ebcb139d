// Package analytics tracks search and index events, publishes them to Kafka,
// folds them back into running statistics and snapshots the request log to
// Postgres.
package analytics

import "time"

type EventType string

const (
	EventSearch         EventType = "search"
	EventZeroResult     EventType = "zero_result"
	EventIndexDocument  EventType = "index_document"
	EventRemoveDocument EventType = "remove_document"
)

// Event is anything the Collector can publish.
type Event interface {
	EventType() EventType
}

type SearchEvent struct {
	Type      EventType `json:"type"`
	Query     string    `json:"query"`
	Status    string    `json:"status"`
	Policy    string    `json:"policy"`
	Returned  int       `json:"returned"`
	LatencyUs int64     `json:"latency_us"`
	CacheHit  bool      `json:"cache_hit"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id,omitempty"`
}

func (e SearchEvent) EventType() EventType { return e.Type }

// IndexEvent reports an add or a removal. Source is "http", "kafka" or
// "dedup".
type IndexEvent struct {
	Type       EventType `json:"type"`
	DocumentID int       `json:"document_id"`
	Status     string    `json:"status,omitempty"`
	WordCount  int       `json:"word_count,omitempty"`
	Source     string    `json:"source"`
	Timestamp  time.Time `json:"timestamp"`
}

func (e IndexEvent) EventType() EventType { return e.Type }

// NewSearchEvent classifies a finished search as search or zero_result.
func NewSearchEvent(query, status, policy string, returned int, latency time.Duration, cacheHit bool, requestID string) SearchEvent {
	t := EventSearch
	if returned == 0 {
		t = EventZeroResult
	}
	return SearchEvent{
		Type:      t,
		Query:     query,
		Status:    status,
		Policy:    policy,
		Returned:  returned,
		LatencyUs: latency.Microseconds(),
		CacheHit:  cacheHit,
		Timestamp: time.Now().UTC(),
		RequestID: requestID,
	}
}

// Package consumer applies document add/remove events read from Kafka to the
// search server.
package consumer

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/petersspain/SearchServer/internal/analytics"
	"github.com/petersspain/SearchServer/internal/execution"
	"github.com/petersspain/SearchServer/internal/indexer/index"
	"github.com/petersspain/SearchServer/internal/searcher"
	apperrors "github.com/petersspain/SearchServer/pkg/errors"
	"github.com/petersspain/SearchServer/pkg/kafka"
	"github.com/petersspain/SearchServer/pkg/metrics"
)

const (
	OpAdd    = "add"
	OpRemove = "remove"
)

// IngestEvent is the payload on the document ingest topic. Text, Status and
// Ratings are read for adds only; Policy applies to removes.
type IngestEvent struct {
	Op      string       `json:"op"`
	ID      int          `json:"id"`
	Text    string       `json:"text,omitempty"`
	Status  index.Status `json:"status,omitempty"`
	Ratings []int        `json:"ratings,omitempty"`
	Policy  string       `json:"policy,omitempty"`
}

// Indexer is the write side of *searcher.Server.
type Indexer interface {
	AddDocument(id int, text string, status index.Status, ratings []int) error
	RemoveDocument(ctx context.Context, id int, opts ...searcher.Option) error
	WordFrequencies(id int) map[string]float64
}

type IndexConsumer struct {
	indexer   Indexer
	collector *analytics.Collector
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// New returns a consumer over idx. collector and m may be nil.
func New(idx Indexer, collector *analytics.Collector, m *metrics.Metrics) *IndexConsumer {
	return &IndexConsumer{
		indexer:   idx,
		collector: collector,
		metrics:   m,
		logger:    slog.Default().With("component", "index-consumer"),
	}
}

// Handler returns the kafka.MessageHandler for the ingest topic. Malformed
// or rejected events are logged and acknowledged so they do not block the
// partition; any other failure leaves the message uncommitted.
func (ic *IndexConsumer) Handler() kafka.MessageHandler {
	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := kafka.DecodeJSON[IngestEvent](value)
		if err != nil {
			ic.metrics.IngestEvent("unknown", "malformed")
			ic.logger.Error("failed to decode ingest event", "error", err, "key", string(key))
			return nil
		}
		err = ic.Apply(ctx, event)
		switch {
		case err == nil:
			ic.metrics.IngestEvent(event.Op, "applied")
			return nil
		case apperrors.HTTPStatusCode(err) < http.StatusInternalServerError:
			ic.metrics.IngestEvent(event.Op, "rejected")
			ic.logger.Warn("ingest event rejected", "op", event.Op, "document_id", event.ID, "error", err)
			return nil
		default:
			ic.metrics.IngestEvent(event.Op, "failed")
			return fmt.Errorf("applying %s of document %d: %w", event.Op, event.ID, err)
		}
	}
}

// Apply performs a single event against the indexer.
func (ic *IndexConsumer) Apply(ctx context.Context, event IngestEvent) error {
	switch event.Op {
	case OpAdd:
		if err := ic.indexer.AddDocument(event.ID, event.Text, event.Status, event.Ratings); err != nil {
			return err
		}
		ic.collector.Track(analytics.IndexEvent{
			Type:       analytics.EventIndexDocument,
			DocumentID: event.ID,
			Status:     event.Status.String(),
			WordCount:  len(ic.indexer.WordFrequencies(event.ID)),
			Source:     "kafka",
			Timestamp:  time.Now().UTC(),
		})
		ic.logger.Info("document indexed", "document_id", event.ID, "status", event.Status.String())
	case OpRemove:
		var opts []searcher.Option
		if event.Policy != "" {
			p, err := execution.ParsePolicy(event.Policy)
			if err != nil {
				return apperrors.Invalidf(apperrors.ErrInvalidInput, "%v", err)
			}
			opts = append(opts, searcher.WithPolicy(p))
		}
		if err := ic.indexer.RemoveDocument(ctx, event.ID, opts...); err != nil {
			return err
		}
		ic.collector.Track(analytics.IndexEvent{
			Type:       analytics.EventRemoveDocument,
			DocumentID: event.ID,
			Source:     "kafka",
			Timestamp:  time.Now().UTC(),
		})
		ic.logger.Info("document removed", "document_id", event.ID)
	default:
		return apperrors.Invalidf(apperrors.ErrInvalidInput, "unknown ingest op %q", event.Op)
	}
	return nil
}

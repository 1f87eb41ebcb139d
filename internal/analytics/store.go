package analytics

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/petersspain/SearchServer/internal/requestqueue"
	"github.com/petersspain/SearchServer/pkg/postgres"
	"github.com/petersspain/SearchServer/pkg/resilience"
)

const schema = `CREATE TABLE IF NOT EXISTS request_log_snapshots (
    id          BIGSERIAL PRIMARY KEY,
    data        JSONB NOT NULL,
    captured_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// Snapshot is one persisted view of the request log and, when the
// aggregator runs, of the analytics stream.
type Snapshot struct {
	RequestLog requestqueue.Stats `json:"request_log"`
	Analytics  *AggregatedStats   `json:"analytics,omitempty"`
	CapturedAt time.Time          `json:"captured_at"`
}

const finalSaveTimeout = 5 * time.Second

// Store persists snapshots in PostgreSQL.
type Store struct {
	db     *postgres.Client
	logger *slog.Logger
}

func NewStore(db *postgres.Client) *Store {
	return &Store{
		db:     db,
		logger: slog.Default().With("component", "analytics-store"),
	}
}

// EnsureSchema creates the snapshot table if it is missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	return s.db.InTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, schema); err != nil {
			return fmt.Errorf("creating request_log_snapshots: %w", err)
		}
		return nil
	})
}

func (s *Store) SaveSnapshot(ctx context.Context, snap Snapshot) error {
	if snap.CapturedAt.IsZero() {
		snap.CapturedAt = time.Now().UTC()
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshaling snapshot: %w", err)
	}
	_, err = s.db.DB.ExecContext(ctx,
		`INSERT INTO request_log_snapshots (data, captured_at) VALUES ($1, $2)`,
		data, snap.CapturedAt,
	)
	if err != nil {
		return fmt.Errorf("saving request log snapshot: %w", err)
	}
	s.logger.Debug("request log snapshot saved",
		"recorded", snap.RequestLog.Recorded,
		"no_result_requests", snap.RequestLog.NoResultRequests,
	)
	return nil
}

// LatestSnapshot returns nil, nil if nothing has been saved yet.
func (s *Store) LatestSnapshot(ctx context.Context) (*Snapshot, error) {
	var data []byte
	err := s.db.DB.QueryRowContext(ctx,
		`SELECT data FROM request_log_snapshots ORDER BY captured_at DESC, id DESC LIMIT 1`,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying latest snapshot: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("unmarshaling snapshot: %w", err)
	}
	return &snap, nil
}

// StartPeriodicSave saves source() every interval and once more on shutdown.
func (s *Store) StartPeriodicSave(ctx context.Context, interval time.Duration, source func() Snapshot) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				err := resilience.WithDeadline(ctx, interval, "snapshot-save", func(ctx context.Context) error {
					return s.SaveSnapshot(ctx, source())
				})
				if err != nil {
					s.logger.Error("periodic snapshot failed", "error", err)
				}
			case <-ctx.Done():
				err := resilience.WithDeadline(context.Background(), finalSaveTimeout, "snapshot-save", func(ctx context.Context) error {
					return s.SaveSnapshot(ctx, source())
				})
				if err != nil {
					s.logger.Error("final snapshot failed", "error", err)
				}
				return
			}
		}
	}()
	s.logger.Info("periodic snapshot started", "interval", interval)
}

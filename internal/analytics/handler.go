package analytics

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// Handler serves the aggregated analytics and the last persisted snapshot.
// Either dependency may be nil.
type Handler struct {
	aggregator *Aggregator
	store      *Store
	logger     *slog.Logger
}

func NewHandler(aggregator *Aggregator, store *Store) *Handler {
	return &Handler{
		aggregator: aggregator,
		store:      store,
		logger:     slog.Default().With("component", "analytics-handler"),
	}
}

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	if h.aggregator == nil {
		h.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "analytics aggregation is disabled"})
		return
	}
	h.writeJSON(w, http.StatusOK, h.aggregator.Stats())
}

func (h *Handler) LatestSnapshot(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		h.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "snapshot storage is disabled"})
		return
	}
	snap, err := h.store.LatestSnapshot(r.Context())
	if err != nil {
		h.logger.Error("loading latest snapshot failed", "error", err)
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "loading snapshot failed"})
		return
	}
	if snap == nil {
		h.writeJSON(w, http.StatusNotFound, map[string]string{"error": "no snapshot saved yet"})
		return
	}
	h.writeJSON(w, http.StatusOK, snap)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write analytics response", "error", err)
	}
}

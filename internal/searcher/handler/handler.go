// Package handler exposes the search server over HTTP/JSON.
package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/petersspain/SearchServer/internal/analytics"
	"github.com/petersspain/SearchServer/internal/dedup"
	"github.com/petersspain/SearchServer/internal/execution"
	"github.com/petersspain/SearchServer/internal/indexer/index"
	"github.com/petersspain/SearchServer/internal/requestqueue"
	"github.com/petersspain/SearchServer/internal/searcher"
	"github.com/petersspain/SearchServer/internal/searcher/batch"
	"github.com/petersspain/SearchServer/internal/searcher/cache"
	"github.com/petersspain/SearchServer/internal/searcher/ranker"
	apperrors "github.com/petersspain/SearchServer/pkg/errors"
	"github.com/petersspain/SearchServer/pkg/logger"
	"github.com/petersspain/SearchServer/pkg/middleware"
)

const maxBodyBytes = 1 << 20

// Handler serves the search API. cache and collector may be nil.
type Handler struct {
	server    *searcher.Server
	queue     *requestqueue.Queue
	cache     *cache.QueryCache
	collector *analytics.Collector
	logger    *slog.Logger
}

func New(server *searcher.Server, queue *requestqueue.Queue, queryCache *cache.QueryCache, collector *analytics.Collector) *Handler {
	return &Handler{
		server:    server,
		queue:     queue,
		cache:     queryCache,
		collector: collector,
		logger:    slog.Default().With("component", "search-handler"),
	}
}

// Register mounts every route on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/search", h.Search)
	mux.HandleFunc("POST /api/v1/search/batch", h.SearchBatch)
	mux.HandleFunc("GET /api/v1/match", h.Match)
	mux.HandleFunc("GET /api/v1/documents", h.ListDocuments)
	mux.HandleFunc("POST /api/v1/documents", h.AddDocument)
	mux.HandleFunc("DELETE /api/v1/documents/{id}", h.RemoveDocument)
	mux.HandleFunc("GET /api/v1/documents/{id}/frequencies", h.WordFrequencies)
	mux.HandleFunc("POST /api/v1/documents/deduplicate", h.Deduplicate)
	mux.HandleFunc("GET /api/v1/requests/stats", h.RequestStats)
}

type searchResponse struct {
	Query    string            `json:"query"`
	Status   index.Status      `json:"status"`
	Policy   string            `json:"policy"`
	Results  []ranker.Document `json:"results"`
	CacheHit bool              `json:"cache_hit"`
}

func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	log := logger.FromContext(ctx)

	query := r.URL.Query().Get("q")
	status, err := parseStatus(r)
	if err != nil {
		h.writeAppError(w, err)
		return
	}
	policy, err := h.parsePolicy(r)
	if err != nil {
		h.writeAppError(w, err)
		return
	}
	opts := []searcher.Option{searcher.WithStatus(status), searcher.WithPolicy(policy)}

	var docs []ranker.Document
	cacheHit := false
	if h.cache != nil {
		key := cache.Key{Query: query, Status: status, Generation: h.server.Generation()}
		docs, cacheHit, err = h.cache.GetOrCompute(ctx, key, func() ([]ranker.Document, error) {
			return h.server.FindTopDocuments(ctx, query, opts...)
		})
		if err == nil {
			h.queue.Record(len(docs) == 0)
		}
	} else {
		docs, err = h.queue.AddFindRequest(ctx, query, opts...)
	}
	if err != nil {
		log.Debug("search rejected", "query", query, "error", err)
		h.writeAppError(w, err)
		return
	}
	if docs == nil {
		docs = []ranker.Document{}
	}

	latency := time.Since(start)
	log.Info("search completed",
		"query", query,
		"status", status.String(),
		"policy", policy.String(),
		"returned", len(docs),
		"cache_hit", cacheHit,
		"latency_us", latency.Microseconds(),
	)
	h.collector.Track(analytics.NewSearchEvent(query, status.String(), policy.String(),
		len(docs), latency, cacheHit, middleware.GetRequestID(ctx)))

	h.writeJSON(w, http.StatusOK, searchResponse{
		Query:    query,
		Status:   status,
		Policy:   policy.String(),
		Results:  docs,
		CacheHit: cacheHit,
	})
}

type batchRequest struct {
	Queries []string `json:"queries"`
	Joined  bool     `json:"joined"`
}

func (h *Handler) SearchBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.writeAppError(w, err)
		return
	}
	ctx := r.Context()
	if req.Joined {
		docs, err := batch.ProcessQueriesJoined(ctx, h.server, req.Queries)
		if err != nil {
			h.writeAppError(w, err)
			return
		}
		h.writeJSON(w, http.StatusOK, map[string]any{"results": docs})
		return
	}
	results, err := batch.ProcessQueries(ctx, h.server, req.Queries)
	if err != nil {
		h.writeAppError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

type matchResponse struct {
	DocumentID int          `json:"document_id"`
	Words      []string     `json:"words"`
	Status     index.Status `json:"status"`
}

func (h *Handler) Match(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r.URL.Query().Get("id"))
	if err != nil {
		h.writeAppError(w, err)
		return
	}
	policy, err := h.parsePolicy(r)
	if err != nil {
		h.writeAppError(w, err)
		return
	}
	result, err := h.server.MatchDocument(r.Context(), r.URL.Query().Get("q"), id, searcher.WithPolicy(policy))
	if err != nil {
		h.writeAppError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, matchResponse{DocumentID: id, Words: result.Words, Status: result.Status})
}

type addDocumentRequest struct {
	ID      *int         `json:"id"`
	Text    string       `json:"text"`
	Status  index.Status `json:"status"`
	Ratings []int        `json:"ratings"`
}

func (h *Handler) AddDocument(w http.ResponseWriter, r *http.Request) {
	var req addDocumentRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.writeAppError(w, err)
		return
	}
	if req.ID == nil {
		h.writeAppError(w, apperrors.Invalidf(apperrors.ErrInvalidInput, "field 'id' is required"))
		return
	}
	if err := h.server.AddDocument(*req.ID, req.Text, req.Status, req.Ratings); err != nil {
		h.writeAppError(w, err)
		return
	}
	h.collector.Track(analytics.IndexEvent{
		Type:       analytics.EventIndexDocument,
		DocumentID: *req.ID,
		Status:     req.Status.String(),
		WordCount:  len(h.server.WordFrequencies(*req.ID)),
		Source:     "http",
		Timestamp:  time.Now().UTC(),
	})
	h.writeJSON(w, http.StatusCreated, map[string]any{"id": *req.ID, "status": req.Status})
}

func (h *Handler) RemoveDocument(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r.PathValue("id"))
	if err != nil {
		h.writeAppError(w, err)
		return
	}
	policy, err := h.parsePolicy(r)
	if err != nil {
		h.writeAppError(w, err)
		return
	}
	if err := h.server.RemoveDocument(r.Context(), id, searcher.WithPolicy(policy)); err != nil {
		h.writeAppError(w, err)
		return
	}
	h.collector.Track(analytics.IndexEvent{
		Type:       analytics.EventRemoveDocument,
		DocumentID: id,
		Source:     "http",
		Timestamp:  time.Now().UTC(),
	})
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	ids := h.server.DocumentIDs()
	h.writeJSON(w, http.StatusOK, map[string]any{"ids": ids, "count": len(ids)})
}

func (h *Handler) WordFrequencies(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r.PathValue("id"))
	if err != nil {
		h.writeAppError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"document_id": id,
		"frequencies": h.server.WordFrequencies(id),
	})
}

func (h *Handler) Deduplicate(w http.ResponseWriter, r *http.Request) {
	removed, err := dedup.RemoveDuplicates(r.Context(), h.server)
	if err != nil {
		h.writeAppError(w, err)
		return
	}
	now := time.Now().UTC()
	for _, id := range removed {
		h.collector.Track(analytics.IndexEvent{
			Type:       analytics.EventRemoveDocument,
			DocumentID: id,
			Source:     "dedup",
			Timestamp:  now,
		})
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"removed": removed})
}

func (h *Handler) RequestStats(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.queue.Stats())
}

func (h *Handler) parsePolicy(r *http.Request) (execution.Policy, error) {
	raw := r.URL.Query().Get("policy")
	if raw == "" {
		return h.server.DefaultPolicy(), nil
	}
	p, err := execution.ParsePolicy(raw)
	if err != nil {
		return execution.Policy{}, apperrors.Invalidf(apperrors.ErrInvalidInput, "%v", err)
	}
	return p, nil
}

func parseStatus(r *http.Request) (index.Status, error) {
	s, err := index.ParseStatus(r.URL.Query().Get("status"))
	if err != nil {
		return 0, apperrors.Invalidf(apperrors.ErrInvalidInput, "%v", err)
	}
	return s, nil
}

func parseID(raw string) (int, error) {
	if raw == "" {
		return 0, apperrors.Invalidf(apperrors.ErrInvalidInput, "document id is required")
	}
	id, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperrors.Invalidf(apperrors.ErrInvalidInput, "document id %q is not an integer", raw)
	}
	return id, nil
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return apperrors.Invalidf(apperrors.ErrInvalidInput, "invalid request body: %v", err)
	}
	return nil
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeAppError(w http.ResponseWriter, err error) {
	status := apperrors.HTTPStatusCode(err)
	message := err.Error()
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", "error", err)
		message = "internal error"
	}
	h.writeJSON(w, status, map[string]string{"error": message})
}

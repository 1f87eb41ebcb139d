package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petersspain/SearchServer/internal/indexer/index"
	"github.com/petersspain/SearchServer/internal/requestqueue"
	"github.com/petersspain/SearchServer/internal/searcher"
	"github.com/petersspain/SearchServer/internal/searcher/cache"
	"github.com/petersspain/SearchServer/internal/searcher/ranker"
	"github.com/petersspain/SearchServer/pkg/config"
	pkgredis "github.com/petersspain/SearchServer/pkg/redis"
)

type fixture struct {
	server *searcher.Server
	queue  *requestqueue.Queue
	mux    *http.ServeMux
}

func newFixture(t *testing.T, queryCache *cache.QueryCache) *fixture {
	t.Helper()
	s, err := searcher.NewFromText("и в на", config.DefaultSearchConfig())
	require.NoError(t, err)
	require.NoError(t, s.AddDocument(0, "белый кот и модный ошейник", index.StatusActual, []int{8, -3}))
	require.NoError(t, s.AddDocument(1, "пушистый кот пушистый хвост", index.StatusActual, []int{7, 2, 7}))
	require.NoError(t, s.AddDocument(2, "ухоженный пёс выразительные глаза", index.StatusActual, []int{5, -12, 2, 1}))
	require.NoError(t, s.AddDocument(3, "ухоженный скворец евгений", index.StatusBanned, []int{9}))

	q := requestqueue.New(s, 10)
	mux := http.NewServeMux()
	New(s, q, queryCache, nil).Register(mux)
	return &fixture{server: s, queue: q, mux: mux}
}

func (f *fixture) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestSearch(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(t, http.MethodGet, "/api/v1/search?q=пушистый+ухоженный+кот", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[searchResponse](t, rec)
	require.Len(t, resp.Results, 3)
	assert.Equal(t, 1, resp.Results[0].ID)
	assert.Equal(t, index.StatusActual, resp.Status)
	assert.Equal(t, "seq", resp.Policy)

	rec = f.do(t, http.MethodGet, "/api/v1/search?q=ухоженный&status=banned&policy=par", "")
	require.Equal(t, http.StatusOK, rec.Code)
	resp = decode[searchResponse](t, rec)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, 3, resp.Results[0].ID)
	assert.Equal(t, "par", resp.Policy)

	rec = f.do(t, http.MethodGet, "/api/v1/search?q=жираф", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"results":[]`)

	assert.Equal(t, requestqueue.Stats{Window: 10, Recorded: 3, NoResultRequests: 1, TotalRequests: 3}, f.queue.Stats())
}

func TestSearchBadInput(t *testing.T) {
	f := newFixture(t, nil)
	for _, target := range []string{
		"/api/v1/search?q=кот+--хвост",
		"/api/v1/search?q=кот+-",
		"/api/v1/search?q=кот&status=deleted",
		"/api/v1/search?q=кот&policy=fast",
	} {
		rec := f.do(t, http.MethodGet, target, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, target)
		assert.Contains(t, rec.Body.String(), `"error"`)
	}
	assert.Zero(t, f.queue.Stats().Recorded)
}

func TestSearchBatch(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(t, http.MethodPost, "/api/v1/search/batch", `{"queries":["пушистый кот","ухоженный","жираф"]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	perQuery := decode[struct {
		Results [][]ranker.Document `json:"results"`
	}](t, rec)
	require.Len(t, perQuery.Results, 3)
	assert.Len(t, perQuery.Results[0], 2)
	assert.Len(t, perQuery.Results[1], 1)
	assert.Empty(t, perQuery.Results[2])

	rec = f.do(t, http.MethodPost, "/api/v1/search/batch", `{"queries":["пушистый кот","ухоженный"],"joined":true}`)
	require.Equal(t, http.StatusOK, rec.Code)
	joined := decode[struct {
		Results []ranker.Document `json:"results"`
	}](t, rec)
	require.Len(t, joined.Results, 3)
	assert.Equal(t, 2, joined.Results[2].ID)

	rec = f.do(t, http.MethodPost, "/api/v1/search/batch", `{"queries":["кот --"]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/v1/search/batch", `{"queries":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMatch(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(t, http.MethodGet, "/api/v1/match?q=пушистый+кот+-ошейник&id=1&policy=par", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[matchResponse](t, rec)
	assert.Equal(t, []string{"кот", "пушистый"}, resp.Words)
	assert.Equal(t, index.StatusActual, resp.Status)

	rec = f.do(t, http.MethodGet, "/api/v1/match?q=пушистый+кот+-ошейник&id=0", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[matchResponse](t, rec).Words)

	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/api/v1/match?q=кот&id=77", "").Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/api/v1/match?q=кот&id=abc", "").Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/api/v1/match?q=кот", "").Code)
}

func TestDocumentLifecycle(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(t, http.MethodPost, "/api/v1/documents", `{"id":10,"text":"рыжий кот","status":"IRRELEVANT","ratings":[1,2,3]}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodGet, "/api/v1/documents", "")
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[struct {
		IDs   []int `json:"ids"`
		Count int   `json:"count"`
	}](t, rec)
	assert.Equal(t, []int{0, 1, 2, 3, 10}, list.IDs)
	assert.Equal(t, 5, list.Count)

	rec = f.do(t, http.MethodGet, "/api/v1/documents/10/frequencies", "")
	require.Equal(t, http.StatusOK, rec.Code)
	freq := decode[struct {
		Frequencies map[string]float64 `json:"frequencies"`
	}](t, rec)
	assert.Equal(t, map[string]float64{"рыжий": 0.5, "кот": 0.5}, freq.Frequencies)

	rec = f.do(t, http.MethodDelete, "/api/v1/documents/10?policy=par", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, 4, f.server.DocumentCount())

	rec = f.do(t, http.MethodGet, "/api/v1/documents/10/frequencies", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"frequencies":{}`)
}

func TestAddDocumentErrors(t *testing.T) {
	f := newFixture(t, nil)
	tests := []struct {
		name string
		body string
		want int
	}{
		{"duplicate id", `{"id":1,"text":"кот"}`, http.StatusBadRequest},
		{"negative id", `{"id":-4,"text":"кот"}`, http.StatusBadRequest},
		{"missing id", `{"text":"кот"}`, http.StatusBadRequest},
		{"control char", `{"id":20,"text":"ко\u0001т"}`, http.StatusBadRequest},
		{"unknown status", `{"id":21,"text":"кот","status":"DELETED"}`, http.StatusBadRequest},
		{"unknown field", `{"id":22,"text":"кот","owner":"me"}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, http.MethodPost, "/api/v1/documents", tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}
	assert.Equal(t, 4, f.server.DocumentCount())
}

func TestDeduplicate(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.server.AddDocument(7, "кот пушистый хвост", index.StatusActual, nil))

	rec := f.do(t, http.MethodPost, "/api/v1/documents/deduplicate", "")
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[struct {
		Removed []int `json:"removed"`
	}](t, rec)
	assert.Equal(t, []int{7}, resp.Removed)
	assert.Equal(t, 4, f.server.DocumentCount())
}

func TestRequestStats(t *testing.T) {
	f := newFixture(t, nil)
	f.do(t, http.MethodGet, "/api/v1/search?q=жираф", "")
	f.do(t, http.MethodGet, "/api/v1/search?q=кот", "")

	rec := f.do(t, http.MethodGet, "/api/v1/requests/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decode[requestqueue.Stats](t, rec)
	assert.Equal(t, 2, stats.Recorded)
	assert.Equal(t, 1, stats.NoResultRequests)
}

type memStore struct {
	mu   sync.Mutex
	data map[string]string
}

func (s *memStore) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[key]
	if !ok {
		return "", pkgredis.Nil
	}
	return v, nil
}

func (s *memStore) Set(_ context.Context, key string, value any, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = string(value.([]byte))
	return nil
}

func (s *memStore) FlushByPattern(context.Context, string) (int64, error) {
	return 0, nil
}

func TestSearchWithCache(t *testing.T) {
	f := newFixture(t, cache.New(&memStore{data: map[string]string{}}, time.Minute, nil))

	first := decode[searchResponse](t, f.do(t, http.MethodGet, "/api/v1/search?q=кот", ""))
	assert.False(t, first.CacheHit)
	second := decode[searchResponse](t, f.do(t, http.MethodGet, "/api/v1/search?q=кот+кот", ""))
	assert.True(t, second.CacheHit)
	assert.Equal(t, first.Results, second.Results)

	// a mutation bumps the generation and bypasses stale entries
	require.NoError(t, f.server.AddDocument(9, "кот", index.StatusActual, []int{10}))
	third := decode[searchResponse](t, f.do(t, http.MethodGet, "/api/v1/search?q=кот", ""))
	assert.False(t, third.CacheHit)
	assert.Equal(t, 9, third.Results[0].ID)

	assert.Equal(t, 3, f.queue.Stats().Recorded)
}

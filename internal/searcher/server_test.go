package searcher

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petersspain/SearchServer/internal/execution"
	"github.com/petersspain/SearchServer/internal/indexer/index"
	"github.com/petersspain/SearchServer/pkg/config"
	apperrors "github.com/petersspain/SearchServer/pkg/errors"
	"github.com/petersspain/SearchServer/pkg/metrics"
)

func newTestServer(t testing.TB, opts ...ServerOption) *Server {
	t.Helper()
	s, err := NewFromText("и в на", config.DefaultSearchConfig(), opts...)
	require.NoError(t, err)
	require.NoError(t, s.AddDocument(0, "белый кот и модный ошейник", index.StatusActual, []int{8, -3}))
	require.NoError(t, s.AddDocument(1, "пушистый кот пушистый хвост", index.StatusActual, []int{7, 2, 7}))
	require.NoError(t, s.AddDocument(2, "ухоженный пёс выразительные глаза", index.StatusActual, []int{5, -12, 2, 1}))
	require.NoError(t, s.AddDocument(3, "ухоженный скворец евгений", index.StatusBanned, []int{9}))
	return s
}

func TestNewRejectsInvalidStopWords(t *testing.T) {
	_, err := NewFromWords([]string{"и", "в\x01"}, config.DefaultSearchConfig())
	assert.ErrorIs(t, err, apperrors.ErrInvalidStopWord)

	_, err = NewFromText("на\x1f", config.DefaultSearchConfig())
	assert.ErrorIs(t, err, apperrors.ErrInvalidStopWord)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := config.DefaultSearchConfig()
	cfg.BucketCount = 0
	_, err := NewFromText("", cfg)
	assert.Error(t, err)
}

func TestNewFromWordsIgnoresEmptyAndDuplicates(t *testing.T) {
	s, err := NewFromWords([]string{"и", "", "в", "и"}, config.DefaultSearchConfig())
	require.NoError(t, err)
	assert.Equal(t, []string{"в", "и"}, s.StopWords().Words())
}

func TestServerDefaultSearch(t *testing.T) {
	s := newTestServer(t)
	got, err := s.FindTopDocuments(context.Background(), "пушистый ухоженный кот")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, 1, got[0].ID)
	assert.Equal(t, 0, got[1].ID)
	assert.Equal(t, 2, got[2].ID)
}

func TestServerSearchOptions(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	banned, err := s.FindTopDocuments(ctx, "ухоженный", WithStatus(index.StatusBanned))
	require.NoError(t, err)
	require.Len(t, banned, 1)
	assert.Equal(t, 3, banned[0].ID)

	rated, err := s.FindTopDocuments(ctx, "кот ухоженный", WithPolicy(execution.Parallel),
		WithPredicate(func(_ int, _ index.Status, rating int) bool { return rating > 4 }))
	require.NoError(t, err)
	require.Len(t, rated, 2)
	assert.Equal(t, 3, rated[0].ID)
	assert.Equal(t, 1, rated[1].ID)
}

func TestServerMatchDocument(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	for _, p := range []execution.Policy{execution.Sequential, execution.Parallel} {
		m, err := s.MatchDocument(ctx, "пушистый кот -ошейник", 1, WithPolicy(p))
		require.NoError(t, err)
		assert.Equal(t, []string{"кот", "пушистый"}, m.Words)

		m, err = s.MatchDocument(ctx, "пушистый кот -ошейник", 0, WithPolicy(p))
		require.NoError(t, err)
		assert.Empty(t, m.Words)

		_, err = s.MatchDocument(ctx, "кот", 99, WithPolicy(p))
		assert.ErrorIs(t, err, apperrors.ErrDocumentNotFound)
	}
}

func TestServerRemoveDocument(t *testing.T) {
	for _, p := range []execution.Policy{execution.Sequential, execution.Parallel} {
		t.Run(p.String(), func(t *testing.T) {
			s := newTestServer(t)
			ctx := context.Background()
			gen := s.Generation()

			require.NoError(t, s.RemoveDocument(ctx, 1, WithPolicy(p)))
			assert.Equal(t, []int{0, 2, 3}, s.DocumentIDs())
			assert.Empty(t, s.WordFrequencies(1))
			assert.NotEqual(t, gen, s.Generation())

			got, err := s.FindTopDocuments(ctx, "пушистый")
			require.NoError(t, err)
			assert.Empty(t, got)

			gen = s.Generation()
			require.NoError(t, s.RemoveDocument(ctx, 1, WithPolicy(p)))
			require.NoError(t, s.RemoveDocument(ctx, -5, WithPolicy(p)))
			assert.Equal(t, gen, s.Generation())
			assert.Equal(t, 3, s.DocumentCount())
		})
	}
}

func TestServerHonoursContextBeforeStarting(t *testing.T) {
	s := newTestServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	gen := s.Generation()

	for _, p := range []execution.Policy{execution.Sequential, execution.Parallel} {
		assert.ErrorIs(t, s.RemoveDocument(ctx, 1, WithPolicy(p)), context.Canceled)
		_, err := s.FindTopDocuments(ctx, "кот", WithPolicy(p))
		assert.ErrorIs(t, err, context.Canceled)
		_, err = s.MatchDocument(ctx, "кот", 1, WithPolicy(p))
		assert.ErrorIs(t, err, context.Canceled)
	}
	assert.Equal(t, gen, s.Generation())
	assert.Equal(t, []int{0, 1, 2, 3}, s.DocumentIDs())
}

func TestServerAllAllowsRemovalWhileIterating(t *testing.T) {
	s := newTestServer(t)
	var seen []int
	for id := range s.All() {
		seen = append(seen, id)
		require.NoError(t, s.RemoveDocument(context.Background(), id))
	}
	assert.Equal(t, []int{0, 1, 2, 3}, seen)
	assert.Zero(t, s.DocumentCount())
}

func TestServerWordFrequenciesIsCopy(t *testing.T) {
	s := newTestServer(t)
	freq := s.WordFrequencies(1)
	freq["кот"] = 100
	assert.InDelta(t, 0.25, s.WordFrequencies(1)["кот"], 1e-9)
}

func TestServerAddDocumentErrors(t *testing.T) {
	s := newTestServer(t)
	assert.ErrorIs(t, s.AddDocument(1, "дубль", index.StatusActual, nil), apperrors.ErrInvalidDocumentID)
	assert.ErrorIs(t, s.AddDocument(-1, "минус", index.StatusActual, nil), apperrors.ErrInvalidDocumentID)
	assert.ErrorIs(t, s.AddDocument(9, "плохое сл\x02ово", index.StatusActual, nil), apperrors.ErrInvalidToken)
	assert.Equal(t, 4, s.DocumentCount())
}

func TestServerConcurrentReadsAndWrites(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for w := range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 50 {
				id := 100 + w*100 + i
				assert.NoError(t, s.AddDocument(id, fmt.Sprintf("кот номер%d", i), index.StatusActual, []int{i}))
				if i%3 == 0 {
					assert.NoError(t, s.RemoveDocument(ctx, id, WithPolicy(execution.Parallel)))
				}
			}
		}()
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 50 {
				_, err := s.FindTopDocuments(ctx, "кот -ошейник", WithPolicy(execution.Parallel))
				assert.NoError(t, err)
				_, err = s.MatchDocument(ctx, "кот", 1)
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	assert.True(t, slices.IsSorted(s.DocumentIDs()))
	assert.Equal(t, 4+4*(50-17), s.DocumentCount())
}

func TestServerRecordsMetrics(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	s := newTestServer(t, WithMetrics(m))

	_, err := s.FindTopDocuments(context.Background(), "кот")
	require.NoError(t, err)
	_, err = s.FindTopDocuments(context.Background(), "кот --")
	require.Error(t, err)
	require.NoError(t, s.RemoveDocument(context.Background(), 0))

	assert.Equal(t, 4.0, testutil.ToFloat64(m.DocsIndexedTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DocsRemovedTotal))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.IndexDocuments))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SearchQueriesTotal.WithLabelValues("hit", "seq")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SearchQueriesTotal.WithLabelValues("error", "seq")))
}

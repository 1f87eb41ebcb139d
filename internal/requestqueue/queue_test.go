package requestqueue

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petersspain/SearchServer/internal/indexer/index"
	"github.com/petersspain/SearchServer/internal/searcher"
	"github.com/petersspain/SearchServer/pkg/config"
	apperrors "github.com/petersspain/SearchServer/pkg/errors"
)

func newServer(t testing.TB) *searcher.Server {
	t.Helper()
	s, err := searcher.NewFromText("and in at", config.DefaultSearchConfig())
	require.NoError(t, err)
	require.NoError(t, s.AddDocument(1, "curly cat curly tail", index.StatusActual, []int{7, 2, 7}))
	require.NoError(t, s.AddDocument(2, "curly dog and fancy collar", index.StatusActual, []int{1, 2, 3}))
	require.NoError(t, s.AddDocument(3, "big cat fancy collar ", index.StatusActual, []int{1, 2, 8}))
	require.NoError(t, s.AddDocument(4, "big dog sparrow Eugene", index.StatusActual, []int{1, 3, 2}))
	require.NoError(t, s.AddDocument(5, "big dog sparrow Vasiliy", index.StatusActual, []int{1, 1, 1}))
	return s
}

func TestQueueSlidingWindow(t *testing.T) {
	q := New(newServer(t), DefaultWindow)
	ctx := context.Background()

	for range 1439 {
		_, err := q.AddFindRequest(ctx, "empty request")
		require.NoError(t, err)
	}
	assert.Equal(t, 1439, q.NoResultRequests())

	_, err := q.AddFindRequest(ctx, "curly dog")
	require.NoError(t, err)
	assert.Equal(t, 1439, q.NoResultRequests())

	// each new request pushes out one of the oldest empty ones
	_, err = q.AddFindRequest(ctx, "big collar")
	require.NoError(t, err)
	assert.Equal(t, 1438, q.NoResultRequests())

	_, err = q.AddFindRequest(ctx, "sparrow")
	require.NoError(t, err)
	assert.Equal(t, 1437, q.NoResultRequests())

	st := q.Stats()
	assert.Equal(t, Stats{Window: 1440, Recorded: 1440, NoResultRequests: 1437, TotalRequests: 1442}, st)
}

func TestQueueEvictsEmptyAndNonEmpty(t *testing.T) {
	q := New(newServer(t), 3)
	ctx := context.Background()

	_, _ = q.AddFindRequest(ctx, "nothing")
	_, _ = q.AddFindRequest(ctx, "cat")
	_, _ = q.AddFindRequest(ctx, "nothing")
	assert.Equal(t, 2, q.NoResultRequests())

	_, _ = q.AddFindRequest(ctx, "cat")
	assert.Equal(t, 1, q.NoResultRequests())
	_, _ = q.AddFindRequest(ctx, "cat")
	assert.Equal(t, 1, q.NoResultRequests())
	_, _ = q.AddFindRequest(ctx, "cat")
	assert.Equal(t, 0, q.NoResultRequests())
}

func TestQueueForwardsOptions(t *testing.T) {
	s := newServer(t)
	require.NoError(t, s.AddDocument(6, "banned cat", index.StatusBanned, nil))
	q := New(s, 10)

	docs, err := q.AddFindRequest(context.Background(), "banned", searcher.WithStatus(index.StatusBanned))
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, 6, docs[0].ID)

	docs, err = q.AddFindRequest(context.Background(), "banned")
	require.NoError(t, err)
	assert.Empty(t, docs)
	assert.Equal(t, 1, q.NoResultRequests())
}

func TestQueueSkipsFailedSearches(t *testing.T) {
	q := New(newServer(t), 10)
	_, err := q.AddFindRequest(context.Background(), "cat --dog")
	assert.ErrorIs(t, err, apperrors.ErrInvalidQueryTerm)
	assert.Equal(t, Stats{Window: 10}, q.Stats())
}

func TestQueueDefaultWindow(t *testing.T) {
	assert.Equal(t, DefaultWindow, New(nil, 0).Stats().Window)
}

func TestQueueConcurrentRecord(t *testing.T) {
	q := New(nil, 50)
	var wg sync.WaitGroup
	for w := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				q.Record(w%2 == 0)
			}
		}()
	}
	wg.Wait()

	st := q.Stats()
	assert.Equal(t, 50, st.Recorded)
	assert.Equal(t, uint64(800), st.TotalRequests)
	assert.GreaterOrEqual(t, st.NoResultRequests, 0)
	assert.LessOrEqual(t, st.NoResultRequests, 50)
}

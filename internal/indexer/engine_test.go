package indexer

import (
	"fmt"
	"math"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petersspain/SearchServer/internal/execution"
	"github.com/petersspain/SearchServer/internal/indexer/index"
	"github.com/petersspain/SearchServer/internal/indexer/tokenizer"
	apperrors "github.com/petersspain/SearchServer/pkg/errors"
)

func newTestEngine(t testing.TB) *Engine {
	t.Helper()
	sw, err := tokenizer.ParseStopWords("и в на")
	require.NoError(t, err)
	e := NewEngine(sw)
	require.NoError(t, e.AddDocument(0, "белый кот и модный ошейник", index.StatusActual, []int{8, -3}))
	require.NoError(t, e.AddDocument(1, "пушистый кот пушистый хвост", index.StatusActual, []int{7, 2, 7}))
	require.NoError(t, e.AddDocument(2, "ухоженный пёс выразительные глаза", index.StatusActual, []int{5, -12, 2, 1}))
	return e
}

func TestEngineAddDocument(t *testing.T) {
	e := newTestEngine(t)

	assert.Equal(t, 3, e.DocumentCount())
	assert.Equal(t, []int{0, 1, 2}, e.DocumentIDs())
	assert.Equal(t, map[string]float64{"пушистый": 0.5, "кот": 0.25, "хвост": 0.25}, e.WordFrequencies(1))

	doc, ok := e.Document(0)
	require.True(t, ok)
	assert.Equal(t, 2, doc.Rating)
	assert.NotContains(t, doc.Frequencies, "и")
	assert.Equal(t, "белый кот и модный ошейник", doc.Text)
}

func TestEngineAddDocumentRejectsBadIDs(t *testing.T) {
	e := newTestEngine(t)
	termsBefore := e.TermCount()
	genBefore := e.Generation()

	err := e.AddDocument(-1, "новый документ", index.StatusActual, nil)
	assert.ErrorIs(t, err, apperrors.ErrInvalidDocumentID)

	err = e.AddDocument(1, "новый документ", index.StatusActual, nil)
	assert.ErrorIs(t, err, apperrors.ErrInvalidDocumentID)

	assert.Equal(t, 3, e.DocumentCount())
	assert.Equal(t, termsBefore, e.TermCount())
	assert.Equal(t, genBefore, e.Generation())
	_, ok := e.Postings("новый")
	assert.False(t, ok)
}

func TestEngineAddDocumentRejectsControlCharacters(t *testing.T) {
	e := newTestEngine(t)
	termsBefore := e.TermCount()

	err := e.AddDocument(7, "хороший доку\x12мент", index.StatusActual, []int{1})
	assert.ErrorIs(t, err, apperrors.ErrInvalidToken)

	assert.Equal(t, 3, e.DocumentCount())
	assert.Equal(t, termsBefore, e.TermCount())
	_, ok := e.Postings("хороший")
	assert.False(t, ok, "no term may be inserted by a failed add")
}

func TestEngineStopWordOnlyDocument(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.AddDocument(10, "и в на", index.StatusActual, nil))

	assert.Empty(t, e.WordFrequencies(10))
	assert.Equal(t, 4, e.DocumentCount())
}

func TestEngineWordFrequenciesUnknownID(t *testing.T) {
	e := newTestEngine(t)
	freqs := e.WordFrequencies(100)
	assert.NotNil(t, freqs)
	assert.Empty(t, freqs)
}

func TestEngineWordFrequenciesIsACopy(t *testing.T) {
	e := newTestEngine(t)
	freqs := e.WordFrequencies(1)
	freqs["кот"] = 100
	assert.Equal(t, 0.25, e.WordFrequencies(1)["кот"])
}

func TestEngineInverseDocumentFrequency(t *testing.T) {
	e := newTestEngine(t)

	idf, err := e.InverseDocumentFrequency("кот")
	require.NoError(t, err)
	assert.InDelta(t, math.Log(3.0/2.0), idf, 1e-12)

	_, err = e.InverseDocumentFrequency("собака")
	assert.ErrorIs(t, err, apperrors.ErrUnknownTerm)
}

func TestEngineRemoveDocument(t *testing.T) {
	for _, policy := range []execution.Policy{execution.Sequential, execution.Parallel} {
		t.Run(policy.String(), func(t *testing.T) {
			e := newTestEngine(t)
			e.RemoveDocument(policy, 1)
			assert.Equal(t, []int{0, 2}, e.DocumentIDs())
			assert.Empty(t, e.WordFrequencies(1))

			_, ok := e.Postings("пушистый")
			assert.False(t, ok)
			docs, ok := e.Postings("кот")
			require.True(t, ok)
			assert.Equal(t, index.Postings{0: 0.25}, docs)

			gen := e.Generation()
			e.RemoveDocument(policy, 1)
			e.RemoveDocument(policy, 99)
			assert.Equal(t, gen, e.Generation())
			assert.Equal(t, 2, e.DocumentCount())
		})
	}
}

func TestEngineAddRemoveLiveIDs(t *testing.T) {
	sw, err := tokenizer.NewStopWords(nil)
	require.NoError(t, err)
	e := NewEngine(sw)

	want := make([]int, 0)
	for id := 20; id >= 0; id-- {
		require.NoError(t, e.AddDocument(id, fmt.Sprintf("doc w%d w%d", id%4, id%7), index.StatusActual, nil))
	}
	for id := 0; id <= 20; id++ {
		if id%3 == 0 {
			policy := execution.Sequential
			if id%2 == 0 {
				policy = execution.Parallel
			}
			e.RemoveDocument(policy, id)
			continue
		}
		want = append(want, id)
	}

	assert.Equal(t, want, e.DocumentIDs())
	assert.Equal(t, want, slices.Collect(e.All()))
}

func TestEngineAllAllowsRemovalWhileIterating(t *testing.T) {
	e := newTestEngine(t)

	seen := make([]int, 0)
	for id := range e.All() {
		seen = append(seen, id)
		e.RemoveDocument(execution.Sequential, id)
	}
	assert.Equal(t, []int{0, 1, 2}, seen)
	assert.Equal(t, 0, e.DocumentCount())
	assert.Equal(t, 0, e.TermCount())
}

func BenchmarkEngineAddDocument(b *testing.B) {
	sw, _ := tokenizer.ParseStopWords("a the and of")
	e := NewEngine(sw)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := e.AddDocument(i, "this is a benchmark document with several terms for testing the indexing performance", index.StatusActual, []int{1, 2, 3}); err != nil {
			b.Fatal(err)
		}
	}
}

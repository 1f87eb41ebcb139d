package indexer

import (
	"fmt"
	"iter"
	"log/slog"
	"maps"
	"slices"
	"sync/atomic"

	"github.com/petersspain/SearchServer/internal/execution"
	"github.com/petersspain/SearchServer/internal/indexer/index"
	"github.com/petersspain/SearchServer/internal/indexer/tokenizer"
	apperrors "github.com/petersspain/SearchServer/pkg/errors"
)

// Engine owns the inverted index and the stop-word set and implements the
// index side of the search server: adding, removing and inspecting
// documents.
//
// Engine is not safe for concurrent mutation. Reads from many goroutines are
// fine as long as no AddDocument or RemoveDocument runs at the same time.
type Engine struct {
	memIndex   *index.MemoryIndex
	stopWords  tokenizer.StopWords
	generation atomic.Uint64
	logger     *slog.Logger
}

func NewEngine(stopWords tokenizer.StopWords) *Engine {
	return &Engine{
		memIndex:  index.NewMemoryIndex(),
		stopWords: stopWords,
		logger:    slog.Default().With("component", "indexer"),
	}
}

func (e *Engine) StopWords() tokenizer.StopWords {
	return e.stopWords
}

// AddDocument indexes text under id. It fails without touching the index if
// id is negative or taken, or if any word contains a control character.
func (e *Engine) AddDocument(id int, text string, status index.Status, ratings []int) error {
	if id < 0 {
		return apperrors.Invalidf(apperrors.ErrInvalidDocumentID, "document id %d is negative", id)
	}
	if e.memIndex.Has(id) {
		return apperrors.Invalidf(apperrors.ErrInvalidDocumentID, "document id %d already exists", id)
	}
	words, err := e.splitIntoWordsNoStop(text)
	if err != nil {
		return fmt.Errorf("indexing document %d: %w", id, err)
	}

	rating := index.ComputeAverageRating(ratings)
	e.memIndex.AddDocument(id, text, status, rating, words)
	e.generation.Add(1)

	e.logger.Debug("document indexed",
		"doc_id", id,
		"status", status.String(),
		"rating", rating,
		"token_count", len(words),
		"doc_count", e.memIndex.DocCount(),
	)
	return nil
}

// RemoveDocument deletes id from the index; unknown ids are ignored. Under a
// parallel policy the per-term postings are erased concurrently, and the
// document record, whose frequency map drives those erasures, goes only after
// every worker has finished.
func (e *Engine) RemoveDocument(policy execution.Policy, id int) {
	doc, ok := e.memIndex.Document(id)
	if !ok {
		return
	}
	terms := slices.Collect(maps.Keys(doc.Frequencies))
	execution.ForEach(policy, terms, func(term string) {
		e.memIndex.ErasePosting(term, id)
	})
	e.memIndex.RemoveDocument(id)
	e.generation.Add(1)

	e.logger.Debug("document removed",
		"doc_id", id,
		"policy", policy.String(),
		"terms", len(terms),
		"doc_count", e.memIndex.DocCount(),
	)
}

// WordFrequencies returns a copy of the term frequencies of id, or an empty
// map if id is unknown.
func (e *Engine) WordFrequencies(id int) map[string]float64 {
	doc, ok := e.memIndex.Document(id)
	if !ok {
		return map[string]float64{}
	}
	return maps.Clone(doc.Frequencies)
}

// InverseDocumentFrequency returns ln(N/df) for an indexed term. Asking for a
// term that is not indexed is a caller bug reported as ErrUnknownTerm.
func (e *Engine) InverseDocumentFrequency(term string) (float64, error) {
	idf, ok := e.memIndex.InverseDocumentFrequency(term)
	if !ok {
		return 0, fmt.Errorf("%w: %q", apperrors.ErrUnknownTerm, term)
	}
	return idf, nil
}

// Postings returns the documents containing term. The map is shared with the
// index and must not be modified.
func (e *Engine) Postings(term string) (index.Postings, bool) {
	docs, ok := e.memIndex.Postings(term)
	if !ok || len(docs) == 0 {
		return nil, false
	}
	return docs, true
}

// Document returns the stored record for id. The record is shared with the
// index and must not be modified.
func (e *Engine) Document(id int) (*index.Document, bool) {
	return e.memIndex.Document(id)
}

// Has reports whether id is a live document.
func (e *Engine) Has(id int) bool {
	return e.memIndex.Has(id)
}

// ContainsTerm reports whether term occurs in document id.
func (e *Engine) ContainsTerm(term string, id int) bool {
	return e.memIndex.ContainsTerm(term, id)
}

// DocumentIDs returns the live ids in ascending order.
func (e *Engine) DocumentIDs() []int {
	return slices.Clone(e.memIndex.IDs())
}

// All iterates the live ids in ascending order over a snapshot taken when
// iteration starts, so the loop body may remove documents.
func (e *Engine) All() iter.Seq[int] {
	return func(yield func(int) bool) {
		for _, id := range e.DocumentIDs() {
			if !yield(id) {
				return
			}
		}
	}
}

// DocumentCount returns the number of live documents.
func (e *Engine) DocumentCount() int {
	return e.memIndex.DocCount()
}

// TermCount returns the number of distinct indexed terms.
func (e *Engine) TermCount() int {
	return e.memIndex.TermCount()
}

// Generation changes after every successful add or remove. Result caches key
// on it so entries never outlive the corpus they were computed from.
func (e *Engine) Generation() uint64 {
	return e.generation.Load()
}

func (e *Engine) splitIntoWordsNoStop(text string) ([]string, error) {
	all := tokenizer.SplitIntoWordsView(text)
	words := all[:0]
	for _, w := range all {
		if !tokenizer.IsValidWord(w) {
			return nil, apperrors.Invalidf(apperrors.ErrInvalidToken, "word %q is invalid", w)
		}
		if !e.stopWords.Contains(w) {
			words = append(words, w)
		}
	}
	return words, nil
}

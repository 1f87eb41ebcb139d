package parser

import (
	"slices"

	"github.com/petersspain/SearchServer/internal/indexer/tokenizer"
	apperrors "github.com/petersspain/SearchServer/pkg/errors"
)

// Query is a parsed search request. Plus and Minus are sorted and free of
// duplicates and stop words. A word may sit in both sets; scoring treats a
// minus hit as absolute exclusion.
type Query struct {
	RawQuery string
	Plus     []string
	Minus    []string
}

// Parse splits query on spaces and classifies each word. A single leading
// "-" marks a minus word.
func Parse(query string, stopWords tokenizer.StopWords) (*Query, error) {
	q := &Query{
		RawQuery: query,
		Plus:     make([]string, 0),
		Minus:    make([]string, 0),
	}
	for _, word := range tokenizer.SplitIntoWordsView(query) {
		term, minus, err := parseWord(word)
		if err != nil {
			return nil, err
		}
		if stopWords.Contains(term) {
			continue
		}
		if minus {
			q.Minus = append(q.Minus, term)
		} else {
			q.Plus = append(q.Plus, term)
		}
	}
	slices.Sort(q.Plus)
	q.Plus = slices.Compact(q.Plus)
	slices.Sort(q.Minus)
	q.Minus = slices.Compact(q.Minus)
	return q, nil
}

func parseWord(word string) (term string, minus bool, err error) {
	if word == "" {
		return "", false, apperrors.Invalidf(apperrors.ErrInvalidQueryTerm, "query word is empty")
	}
	if word[0] == '-' {
		minus = true
		word = word[1:]
	}
	if word == "" || word[0] == '-' {
		return "", false, apperrors.Invalidf(apperrors.ErrInvalidQueryTerm, "query word %q is invalid", word)
	}
	if !tokenizer.IsValidWord(word) {
		return "", false, apperrors.Invalidf(apperrors.ErrInvalidToken, "query word %q is invalid", word)
	}
	return word, minus, nil
}

// Package tokenizer splits document and query text into words and holds the
// stop-word set. Words are separated by ASCII spaces only; a word is valid as
// long as it carries no control characters (0x00-0x1F).
package tokenizer

import (
	"slices"
	"strings"

	apperrors "github.com/petersspain/SearchServer/pkg/errors"
)

// SplitIntoWords returns the non-empty space-separated words of text as
// independent copies.
func SplitIntoWords(text string) []string {
	words := SplitIntoWordsView(text)
	for i, w := range words {
		words[i] = strings.Clone(w)
	}
	return words
}

// SplitIntoWordsView returns the non-empty space-separated words of text as
// substrings sharing text's memory.
func SplitIntoWordsView(text string) []string {
	words := make([]string, 0, strings.Count(text, " ")+1)
	for len(text) > 0 {
		space := strings.IndexByte(text, ' ')
		if space < 0 {
			words = append(words, text)
			break
		}
		if space > 0 {
			words = append(words, text[:space])
		}
		text = text[space+1:]
	}
	return words
}

// IsValidWord reports whether word is free of control characters.
func IsValidWord(word string) bool {
	for i := 0; i < len(word); i++ {
		if word[i] < ' ' {
			return false
		}
	}
	return true
}

// StopWords is an immutable set of words excluded from indexing and querying.
// The zero value is an empty set.
type StopWords struct {
	set map[string]struct{}
}

// NewStopWords builds a set from words, dropping empty strings and
// duplicates. It fails if any word contains a control character.
func NewStopWords(words []string) (StopWords, error) {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		if w == "" {
			continue
		}
		if !IsValidWord(w) {
			return StopWords{}, apperrors.Invalidf(apperrors.ErrInvalidStopWord, "stop word %q contains a control character", w)
		}
		set[strings.Clone(w)] = struct{}{}
	}
	return StopWords{set: set}, nil
}

// ParseStopWords splits a space-separated list and builds a set from it.
func ParseStopWords(text string) (StopWords, error) {
	return NewStopWords(SplitIntoWordsView(text))
}

func (s StopWords) Contains(word string) bool {
	_, ok := s.set[word]
	return ok
}

func (s StopWords) Len() int {
	return len(s.set)
}

// Words returns the stop words in ascending order.
func (s StopWords) Words() []string {
	words := make([]string, 0, len(s.set))
	for w := range s.set {
		words = append(words, w)
	}
	slices.Sort(words)
	return words
}

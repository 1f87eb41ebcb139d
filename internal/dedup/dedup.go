// Package dedup removes documents whose set of indexed words repeats an
// earlier document's.
package dedup

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"maps"
	"slices"
	"strings"

	"github.com/petersspain/SearchServer/internal/searcher"
)

// Store is the part of *searcher.Server deduplication needs.
type Store interface {
	All() iter.Seq[int]
	WordFrequencies(id int) map[string]float64
	RemoveDocument(ctx context.Context, id int, opts ...searcher.Option) error
}

// RemoveDuplicates walks the documents in ascending id order and removes every
// document whose word set equals that of a lower id. Frequencies and ratings
// are ignored. It returns the removed ids in ascending order.
func RemoveDuplicates(ctx context.Context, store Store) ([]int, error) {
	logger := slog.Default().With("component", "dedup")

	seen := make(map[string]int)
	var duplicates []int
	for id := range store.All() {
		key := wordSetKey(store.WordFrequencies(id))
		if first, ok := seen[key]; ok {
			logger.Debug("duplicate word set", "document_id", id, "original_id", first)
			duplicates = append(duplicates, id)
			continue
		}
		seen[key] = id
	}

	for _, id := range duplicates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		logger.Info("found duplicate document", "document_id", id)
		if err := store.RemoveDocument(ctx, id); err != nil {
			return nil, fmt.Errorf("removing duplicate %d: %w", id, err)
		}
	}
	if duplicates == nil {
		duplicates = []int{}
	}
	return duplicates, nil
}

// Indexed words never contain a space, so the joined form is unambiguous.
func wordSetKey(freqs map[string]float64) string {
	return strings.Join(slices.Sorted(maps.Keys(freqs)), " ")
}

package ranker

import (
	"math"
	"sort"
)

const (
	// MaxResultDocumentCount is the K of a top-K search.
	MaxResultDocumentCount = 5
	// RelevanceEpsilon is the distance below which two relevances tie and
	// the rating decides.
	RelevanceEpsilon = 1e-6
)

type Document struct {
	ID        int     `json:"id"`
	Relevance float64 `json:"relevance"`
	Rating    int     `json:"rating"`
}

// Less orders by relevance descending, falling back to rating descending
// when relevances differ by less than RelevanceEpsilon.
func Less(a, b Document) bool {
	if math.Abs(a.Relevance-b.Relevance) < RelevanceEpsilon {
		return a.Rating > b.Rating
	}
	return a.Relevance > b.Relevance
}

// Rank sorts docs in place with Less and truncates to limit (no truncation
// when limit <= 0). The sort is stable: documents equal under Less keep
// their input order, which is ascending id for executor output.
func Rank(docs []Document, limit int) []Document {
	sort.SliceStable(docs, func(i, j int) bool {
		return Less(docs[i], docs[j])
	})
	if limit > 0 && len(docs) > limit {
		docs = docs[:limit]
	}
	return docs
}

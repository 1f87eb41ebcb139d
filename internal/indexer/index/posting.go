package index

// Postings maps a document id to the term frequency of one term inside that
// document.
type Postings map[int]float64

// Document is the per-document record kept by the index. Frequencies keys are
// substrings of Text.
type Document struct {
	ID          int
	Rating      int
	Status      Status
	Text        string
	Frequencies map[string]float64
}

// Predicate decides whether a document takes part in a search. Predicates
// may be called from several goroutines at once.
type Predicate func(id int, status Status, rating int) bool

// ByStatus accepts documents with the given status.
func ByStatus(status Status) Predicate {
	return func(_ int, s Status, _ int) bool {
		return s == status
	}
}

// ComputeAverageRating returns the integer mean of ratings, truncated toward
// zero, or 0 for an empty slice.
func ComputeAverageRating(ratings []int) int {
	if len(ratings) == 0 {
		return 0
	}
	sum := 0
	for _, r := range ratings {
		sum += r
	}
	return sum / len(ratings)
}

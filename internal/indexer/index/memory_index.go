package index

import (
	"math"
	"slices"
)

// MemoryIndex is the inverted index: term -> document -> term frequency, plus
// the per-document records and the ascending list of live ids.
//
// MemoryIndex does no locking. Concurrent readers are safe only while no
// AddDocument or Remove* call runs; callers serialize mutation themselves.
type MemoryIndex struct {
	postings  map[string]Postings
	documents map[int]*Document
	ids       []int
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{
		postings:  make(map[string]Postings),
		documents: make(map[int]*Document),
	}
}

// Has reports whether id is a live document.
func (m *MemoryIndex) Has(id int) bool {
	_, ok := m.documents[id]
	return ok
}

// AddDocument stores a document whose words are already validated and free
// of stop words. Each occurrence of a word contributes 1/len(words) to its
// frequency. The id must be new and non-negative.
func (m *MemoryIndex) AddDocument(id int, text string, status Status, rating int, words []string) {
	freqs := make(map[string]float64, len(words))
	if len(words) > 0 {
		inv := 1.0 / float64(len(words))
		for _, w := range words {
			freqs[w] += inv
		}
	}
	for term, tf := range freqs {
		docs, ok := m.postings[term]
		if !ok {
			docs = make(Postings)
			m.postings[term] = docs
		}
		docs[id] = tf
	}
	m.documents[id] = &Document{
		ID:          id,
		Rating:      rating,
		Status:      status,
		Text:        text,
		Frequencies: freqs,
	}
	pos, _ := slices.BinarySearch(m.ids, id)
	m.ids = slices.Insert(m.ids, pos, id)
}

// Document returns the stored record for id. The record must not be
// modified.
func (m *MemoryIndex) Document(id int) (*Document, bool) {
	d, ok := m.documents[id]
	return d, ok
}

// Postings returns the postings of term. The map must not be modified.
func (m *MemoryIndex) Postings(term string) (Postings, bool) {
	docs, ok := m.postings[term]
	return docs, ok
}

// ContainsTerm reports whether document id contains term.
func (m *MemoryIndex) ContainsTerm(term string, id int) bool {
	_, ok := m.postings[term][id]
	return ok
}

// InverseDocumentFrequency returns ln(N/df) for term. ok is false when term
// is not indexed.
func (m *MemoryIndex) InverseDocumentFrequency(term string) (idf float64, ok bool) {
	docs, ok := m.postings[term]
	if !ok || len(docs) == 0 {
		return 0, false
	}
	return math.Log(float64(len(m.documents)) / float64(len(docs))), true
}

// ErasePosting removes the (term, id) entry. Calls for distinct terms may run
// concurrently: each term owns its own postings map and the outer table is
// only read.
func (m *MemoryIndex) ErasePosting(term string, id int) {
	if docs, ok := m.postings[term]; ok {
		delete(docs, id)
	}
}

// RemoveDocument drops the document record and its id, then prunes any of
// its terms whose postings became empty. Postings for id must already be
// erased.
func (m *MemoryIndex) RemoveDocument(id int) {
	doc, ok := m.documents[id]
	if !ok {
		return
	}
	for term := range doc.Frequencies {
		if docs, ok := m.postings[term]; ok && len(docs) == 0 {
			delete(m.postings, term)
		}
	}
	delete(m.documents, id)
	if pos, found := slices.BinarySearch(m.ids, id); found {
		m.ids = slices.Delete(m.ids, pos, pos+1)
	}
}

// IDs returns the live ids in ascending order. The slice must not be
// modified.
func (m *MemoryIndex) IDs() []int {
	return m.ids
}

func (m *MemoryIndex) DocCount() int {
	return len(m.documents)
}

// TermCount returns the number of distinct indexed terms.
func (m *MemoryIndex) TermCount() int {
	return len(m.postings)
}

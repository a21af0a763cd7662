package vectorizer

import (
	"errors"
	"fmt"
	"sort"
)

// ErrIndexing is returned when a document cannot be analyzed or the index cannot be built.
var ErrIndexing = errors.New("indexing failed")

// Field is an independently indexed part of a document.
type Field string

const (
	FieldDescription Field = "description"
	FieldGenre       Field = "genre"
	FieldTheme       Field = "theme"
	FieldKeyword     Field = "keyword"
)

// Fields lists indexed fields in the order their contributions are summed.
var Fields = []Field{FieldDescription, FieldGenre, FieldTheme, FieldKeyword}

// Document is one item prepared for indexing. Missing fields are treated as empty.
type Document struct {
	ID     int64
	Name   string
	Fields map[Field]string
}

// ItemError reports a document that could not be indexed or vectorized.
type ItemError struct {
	ID  int64
	Err error
}

func (e ItemError) Error() string {
	return fmt.Sprintf("item %d: %v", e.ID, e.Err)
}

func (e ItemError) Unwrap() error {
	return e.Err
}

// posting is the statistics of one term in one field.
type posting struct {
	// docs maps item id to occurrences of the term in that item.
	docs  map[int64]int
	total int
}

// Index is a per-field inverted index over a corpus.
type Index struct {
	postings map[Field]map[string]*posting
	docTerms map[int64]map[Field]map[string]int
	ids      []int64
}

// NewIndex creates an empty index.
func NewIndex() *Index {
	postings := make(map[Field]map[string]*posting, len(Fields))
	for _, f := range Fields {
		postings[f] = make(map[string]*posting)
	}
	return &Index{
		postings: postings,
		docTerms: make(map[int64]map[Field]map[string]int),
	}
}

// Add analyzes every field of doc and adds it to the index. A document that fails
// analysis leaves the index unchanged.
func (idx *Index) Add(doc Document) error {
	if _, exists := idx.docTerms[doc.ID]; exists {
		return fmt.Errorf("%w: duplicate document %d", ErrIndexing, doc.ID)
	}

	terms := make(map[Field]map[string]int, len(Fields))
	for _, f := range Fields {
		text, ok := doc.Fields[f]
		if !ok || text == "" {
			continue
		}
		freqs, err := termFrequencies(text)
		if err != nil {
			return fmt.Errorf("field %s: %w", f, err)
		}
		if len(freqs) > 0 {
			terms[f] = freqs
		}
	}

	for f, freqs := range terms {
		for term, freq := range freqs {
			p, ok := idx.postings[f][term]
			if !ok {
				p = &posting{docs: make(map[int64]int)}
				idx.postings[f][term] = p
			}
			p.docs[doc.ID] = freq
			p.total += freq
		}
	}

	idx.docTerms[doc.ID] = terms
	idx.ids = append(idx.ids, doc.ID)
	return nil
}

// TotalDocs is the number of indexed documents.
func (idx *Index) TotalDocs() int {
	return len(idx.ids)
}

// IDs returns indexed document ids in ascending order.
func (idx *Index) IDs() []int64 {
	ids := make([]int64, len(idx.ids))
	copy(ids, idx.ids)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Contains reports whether a document was indexed.
func (idx *Index) Contains(id int64) bool {
	_, ok := idx.docTerms[id]
	return ok
}

// DocumentFrequency is the number of distinct documents containing term in field.
func (idx *Index) DocumentFrequency(field Field, term string) int {
	p, ok := idx.postings[field][term]
	if !ok {
		return 0
	}
	return len(p.docs)
}

// TotalOccurrences is the number of times term appears in field across the corpus.
func (idx *Index) TotalOccurrences(field Field, term string) int {
	p, ok := idx.postings[field][term]
	if !ok {
		return 0
	}
	return p.total
}

// TermFrequencies returns the term counts of one document field.
func (idx *Index) TermFrequencies(id int64, field Field) map[string]int {
	return idx.docTerms[id][field]
}

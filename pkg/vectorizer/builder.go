package vectorizer

import (
	"context"
	"fmt"
	"math"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/tracing"
)

// DefaultLogInterval is how many items are processed between progress log lines.
const DefaultLogInterval = 500

// FieldWeights scales the TF-IDF contribution of each field.
type FieldWeights map[Field]float64

// DefaultFieldWeights returns the built-in field weights. Tags drive similarity harder
// than free text.
func DefaultFieldWeights() FieldWeights {
	return FieldWeights{
		FieldDescription: 2.0,
		FieldGenre:       5.0,
		FieldTheme:       4.0,
		FieldKeyword:     2.5,
	}
}

// Builder turns documents into L2-normalized TF-IDF vectors.
type Builder struct {
	weights     FieldWeights
	logger      ectologger.Logger
	logInterval int
}

// NewBuilder copies weights into a new builder.
func NewBuilder(weights FieldWeights, logger ectologger.Logger) *Builder {
	copied := make(FieldWeights, len(weights))
	for f, w := range weights {
		copied[f] = w
	}
	return &Builder{
		weights:     copied,
		logger:      logger,
		logInterval: DefaultLogInterval,
	}
}

// BuildIndex indexes every document. Documents that fail analysis are reported and
// left out of the corpus.
func (b *Builder) BuildIndex(ctx context.Context, docs []Document) (*Index, []ItemError) {
	ctx, span := tracing.StartSpan(ctx, "vectorizer.Builder.BuildIndex")
	defer span.End()

	log := b.logger.WithContext(ctx)
	log.Infof("Building index for %d documents", len(docs))

	idx := NewIndex()
	var failures []ItemError
	for i, doc := range docs {
		if err := idx.Add(doc); err != nil {
			log.WithError(err).WithFields(map[string]any{
				"game_id":   doc.ID,
				"game_name": doc.Name,
			}).Warn("Failed to index document")
			failures = append(failures, ItemError{ID: doc.ID, Err: err})
			continue
		}
		if (i+1)%b.logInterval == 0 || i == len(docs)-1 {
			log.Infof("Indexed %d/%d documents", i+1, len(docs))
		}
	}

	return idx, failures
}

// VectorFor computes tf * ln(totalDocs/df) * fieldWeight per field, sums the fields
// into one vector and L2-normalizes it. An item without indexed terms gets an empty vector.
func (b *Builder) VectorFor(idx *Index, id int64) (Vector, error) {
	if !idx.Contains(id) {
		return nil, fmt.Errorf("%w: document %d is not indexed", ErrIndexing, id)
	}

	totalDocs := float64(idx.TotalDocs())
	combined := make(map[string]float64)
	for _, field := range Fields {
		weight := b.weights[field]
		for term, tf := range idx.TermFrequencies(id, field) {
			df := float64(idx.DocumentFrequency(field, term))
			combined[term] += float64(tf) * math.Log(totalDocs/df) * weight
		}
	}

	for term, w := range combined {
		if math.IsNaN(w) || math.IsInf(w, 0) {
			return nil, fmt.Errorf("%w: non-finite weight for term %q in document %d", ErrIndexing, term, id)
		}
		if w == 0 {
			delete(combined, term)
		}
	}

	return NewVector(combined).Normalize(), nil
}

// BuildVectors indexes docs and returns one vector per successfully indexed document.
// Per-item failures never abort the batch.
func (b *Builder) BuildVectors(ctx context.Context, docs []Document) (Vectors, []ItemError) {
	ctx, span := tracing.StartSpan(ctx, "vectorizer.Builder.BuildVectors")
	defer span.End()

	idx, failures := b.BuildIndex(ctx, docs)
	vectors, vectorFailures := b.Vectors(ctx, idx)
	return vectors, append(failures, vectorFailures...)
}

// Vectors computes the vector of every document in idx.
func (b *Builder) Vectors(ctx context.Context, idx *Index) (Vectors, []ItemError) {
	log := b.logger.WithContext(ctx)

	ids := idx.IDs()
	vectors := make(Vectors, len(ids))
	var failures []ItemError
	for i, id := range ids {
		v, err := b.VectorFor(idx, id)
		if err != nil {
			log.WithError(err).WithField("game_id", id).Warn("Failed to build vector")
			failures = append(failures, ItemError{ID: id, Err: err})
			continue
		}
		vectors[id] = v
		if (i+1)%b.logInterval == 0 || i == len(ids)-1 {
			log.Infof("Extracted vectors for %d/%d documents", i+1, len(ids))
		}
	}
	return vectors, failures
}

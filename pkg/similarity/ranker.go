// Package similarity ranks games by cosine similarity of their term vectors and
// persists the top results as precomputed edges.
package similarity

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/Ramsey-B/fern/pkg/vectorizer"
)

var (
	// ErrInvalidGameData is a precondition failure, such as a game without a description.
	ErrInvalidGameData = errors.New("invalid game data")
	// ErrComputation wraps every similarity computation failure.
	ErrComputation = errors.New("similarity computation failed")
	// ErrIndexBuild means the corpus index could not be built. It is fatal for a batch.
	ErrIndexBuild = fmt.Errorf("%w: index build failed", ErrComputation)
)

const (
	DefaultMinThreshold = 0.1
	DefaultTopN         = 20
	// ScoreScale is the number of decimal places stored scores are rounded to.
	ScoreScale = 4
)

// Cosine returns dot(a, b) / (|a| * |b|), or 0 when either vector has zero magnitude.
func Cosine(a, b vectorizer.Vector) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	magA, magB := a.Magnitude(), b.Magnitude()
	if magA == 0 || magB == 0 {
		return 0
	}
	return a.Dot(b) / (magA * magB)
}

// RoundScore rounds half up to ScoreScale decimal places.
func RoundScore(score float64) float64 {
	p := math.Pow10(ScoreScale)
	return math.Floor(score*p+0.5) / p
}

// Scored is one ranked candidate.
type Scored struct {
	ID    int64
	Score float64
}

// RankerConfig holds the ranking cut-offs.
type RankerConfig struct {
	MinThreshold float64 `koanf:"min_threshold" validate:"gte=0,lte=1"`
	TopN         int     `koanf:"top_n" validate:"gt=0"`
}

// DefaultRankerConfig returns the built-in cut-offs.
func DefaultRankerConfig() RankerConfig {
	return RankerConfig{
		MinThreshold: DefaultMinThreshold,
		TopN:         DefaultTopN,
	}
}

// Ranker orders a corpus by similarity to one source vector.
type Ranker struct {
	cfg RankerConfig
}

// NewRanker creates a Ranker.
func NewRanker(cfg RankerConfig) *Ranker {
	return &Ranker{cfg: cfg}
}

// Config returns the ranker cut-offs.
func (r *Ranker) Config() RankerConfig {
	return r.cfg
}

// Rank scores every corpus vector except excludeID against source, drops scores below
// the threshold, sorts by score descending then id ascending and keeps the top N.
// Returned scores are rounded.
func (r *Ranker) Rank(source vectorizer.Vector, corpus vectorizer.Vectors, excludeID int64) ([]Scored, error) {
	candidates := make([]Scored, 0)
	for id, target := range corpus {
		if id == excludeID {
			continue
		}
		score := Cosine(source, target)
		if math.IsNaN(score) || math.IsInf(score, 0) {
			return nil, fmt.Errorf("%w: non-finite score between %d and %d", ErrComputation, excludeID, id)
		}
		if score >= r.cfg.MinThreshold {
			candidates = append(candidates, Scored{ID: id, Score: score})
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].ID < candidates[j].ID
	})

	if r.cfg.TopN >= 0 && len(candidates) > r.cfg.TopN {
		candidates = candidates[:r.cfg.TopN]
	}
	for i := range candidates {
		candidates[i].Score = RoundScore(candidates[i].Score)
	}
	return candidates, nil
}

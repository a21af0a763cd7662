package vectorizer

import (
	"math"
	"sort"
)

// Component is one term weight of a sparse vector.
type Component struct {
	Term   string
	Weight float64
}

// Vector is a sparse term vector sorted by term. Keeping a fixed order makes every
// sum over the vector reproducible bit for bit.
type Vector []Component

// Vectors maps item id to its term vector.
type Vectors map[int64]Vector

// NewVector builds a sorted vector from a term map.
func NewVector(weights map[string]float64) Vector {
	v := make(Vector, 0, len(weights))
	for term, w := range weights {
		v = append(v, Component{Term: term, Weight: w})
	}
	sort.Slice(v, func(i, j int) bool { return v[i].Term < v[j].Term })
	return v
}

// Magnitude is the Euclidean norm.
func (v Vector) Magnitude() float64 {
	var sum float64
	for _, c := range v {
		sum += c.Weight * c.Weight
	}
	return math.Sqrt(sum)
}

// Dot is the dot product of two sorted vectors.
func (v Vector) Dot(other Vector) float64 {
	var dot float64
	i, j := 0, 0
	for i < len(v) && j < len(other) {
		switch {
		case v[i].Term == other[j].Term:
			dot += v[i].Weight * other[j].Weight
			i++
			j++
		case v[i].Term < other[j].Term:
			i++
		default:
			j++
		}
	}
	return dot
}

// Normalize scales the vector to unit length. A zero-norm vector becomes empty.
func (v Vector) Normalize() Vector {
	magnitude := v.Magnitude()
	if magnitude == 0 {
		return Vector{}
	}
	out := make(Vector, len(v))
	for i, c := range v {
		out[i] = Component{Term: c.Term, Weight: c.Weight / magnitude}
	}
	return out
}

// Weight returns the weight of term, or 0 when absent.
func (v Vector) Weight(term string) float64 {
	i := sort.Search(len(v), func(i int) bool { return v[i].Term >= term })
	if i < len(v) && v[i].Term == term {
		return v[i].Weight
	}
	return 0
}

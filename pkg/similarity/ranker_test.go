package similarity

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/vectorizer"
)

func vec(weights map[string]float64) vectorizer.Vector {
	return vectorizer.NewVector(weights)
}

func TestCosine(t *testing.T) {
	tests := []struct {
		name string
		a, b vectorizer.Vector
		want float64
	}{
		{"identical", vec(map[string]float64{"a": 1, "b": 2}), vec(map[string]float64{"a": 1, "b": 2}), 1},
		{"orthogonal", vec(map[string]float64{"a": 1}), vec(map[string]float64{"b": 1}), 0},
		{"empty source", vectorizer.Vector{}, vec(map[string]float64{"a": 1}), 0},
		{"zero magnitude", vec(map[string]float64{"a": 0}), vec(map[string]float64{"a": 1}), 0},
		{"partial overlap", vec(map[string]float64{"a": 1}), vec(map[string]float64{"a": 3, "b": 4}), 0.6},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Cosine(tt.a, tt.b), 1e-12)
		})
	}
}

func TestCosine_Symmetric(t *testing.T) {
	a := vec(map[string]float64{"space": 0.31, "shooter": 0.77, "aliens": 0.12})
	b := vec(map[string]float64{"space": 0.52, "farming": 0.4, "aliens": 0.9})
	assert.Equal(t, Cosine(a, b), Cosine(b, a))
}

func TestRoundScore(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{0.123456, 0.1235},
		{0.123449, 0.1234},
		{0.99996, 1},
		{0, 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, RoundScore(tt.in))
	}
}

func TestRanker_Rank(t *testing.T) {
	source := vec(map[string]float64{"a": 1})

	t.Run("excludes the source and drops scores below the threshold", func(t *testing.T) {
		corpus := vectorizer.Vectors{
			1: source,
			2: vec(map[string]float64{"a": 1, "b": 9}),
			3: vec(map[string]float64{"a": 1, "b": 20}),
			4: vectorizer.Vector{},
		}
		ranked, err := NewRanker(DefaultRankerConfig()).Rank(source, corpus, 1)
		require.NoError(t, err)
		assert.Equal(t, []Scored{{ID: 2, Score: 0.1104}}, ranked)
	})

	t.Run("breaks ties by ascending id", func(t *testing.T) {
		same := vec(map[string]float64{"a": 3, "b": 4})
		corpus := vectorizer.Vectors{9: same, 3: same, 5: same, 7: vec(map[string]float64{"a": 1})}
		ranked, err := NewRanker(DefaultRankerConfig()).Rank(source, corpus, 0)
		require.NoError(t, err)
		assert.Equal(t, []Scored{{7, 1}, {3, 0.6}, {5, 0.6}, {9, 0.6}}, ranked)
	})

	t.Run("keeps the top n", func(t *testing.T) {
		corpus := vectorizer.Vectors{}
		for id := int64(1); id <= 30; id++ {
			corpus[id] = vec(map[string]float64{"a": 1, "b": float64(id) / 10})
		}
		ranked, err := NewRanker(RankerConfig{MinThreshold: DefaultMinThreshold, TopN: 5}).Rank(source, corpus, 0)
		require.NoError(t, err)
		require.Len(t, ranked, 5)
		for i, want := range []int64{1, 2, 3, 4, 5} {
			assert.Equal(t, want, ranked[i].ID)
		}
		assert.True(t, ranked[0].Score >= ranked[4].Score)
	})

	t.Run("non finite scores are computation errors", func(t *testing.T) {
		corpus := vectorizer.Vectors{2: vec(map[string]float64{"a": math.Inf(1)})}
		_, err := NewRanker(DefaultRankerConfig()).Rank(source, corpus, 1)
		assert.ErrorIs(t, err, ErrComputation)
	})
}

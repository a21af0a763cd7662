package graph

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/merging"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/similarity"
)

var (
	_ similarity.Listener = (*Projector)(nil)
	_ merging.Listener    = (*Projector)(nil)
	_ Writer              = (*Client)(nil)
)

type fakeWriter struct {
	batches [][]Statement
	err     error
}

func (w *fakeWriter) Write(_ context.Context, statements ...Statement) error {
	w.batches = append(w.batches, statements)
	return w.err
}

func newTestProjector(w Writer) *Projector {
	return NewProjector(w, ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {}))
}

func TestReplaceStatements(t *testing.T) {
	t.Run("no edges only clears", func(t *testing.T) {
		stmts := ReplaceStatements(1, nil)
		require.Len(t, stmts, 1)
		assert.Equal(t, clearEdgesCypher, stmts[0].Cypher)
		assert.Equal(t, int64(1), stmts[0].Params["game_id"])
	})

	t.Run("edges are unwound after the clear", func(t *testing.T) {
		at := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
		stmts := ReplaceStatements(1, []models.GameSimilarity{
			{GameID: 1, SimilarGameID: 2, SimilarityScore: 0.9, ComputedAt: at},
			{GameID: 1, SimilarGameID: 3, SimilarityScore: 0.4, ComputedAt: at},
		})
		require.Len(t, stmts, 2)
		assert.Equal(t, writeEdgesCypher, stmts[1].Cypher)

		rows, ok := stmts[1].Params["edges"].([]map[string]any)
		require.True(t, ok)
		require.Len(t, rows, 2)
		assert.Equal(t, int64(2), rows[0]["similar_game_id"])
		assert.Equal(t, 0.4, rows[1]["score"])
		assert.Equal(t, at, rows[1]["computed_at"])
	})
}

func TestProjector(t *testing.T) {
	ctx := context.Background()

	t.Run("merge deletes the secondary node", func(t *testing.T) {
		w := &fakeWriter{}
		newTestProjector(w).GamesMerged(ctx, models.MergeResult{PrimaryID: 1, SecondaryID: 2})

		require.Len(t, w.batches, 1)
		require.Len(t, w.batches[0], 1)
		assert.Equal(t, deleteGameCypher, w.batches[0][0].Cypher)
		assert.Equal(t, int64(2), w.batches[0][0].Params["game_id"])
	})

	t.Run("write failures do not propagate", func(t *testing.T) {
		w := &fakeWriter{err: errors.New("bolt: connection refused")}
		assert.NotPanics(t, func() {
			newTestProjector(w).SimilaritiesReplaced(ctx, 1, []models.GameSimilarity{{GameID: 1, SimilarGameID: 2}})
		})
		assert.Len(t, w.batches, 1)
	})
}

func TestConfig_URI(t *testing.T) {
	assert.Equal(t, "bolt://neo4j:7687", Config{Host: "neo4j"}.URI())
	assert.Equal(t, "bolt://localhost:7688", Config{Host: "localhost", Port: 7688}.URI())
	assert.False(t, Config{}.Enabled())
}

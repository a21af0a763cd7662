package graph

import (
	"context"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

const (
	clearEdgesCypher = `
		MERGE (g:Game {id: $game_id})
		WITH g
		OPTIONAL MATCH (g)-[r:SIMILAR_TO]->()
		DELETE r`

	writeEdgesCypher = `
		MATCH (g:Game {id: $game_id})
		UNWIND $edges AS e
		MERGE (s:Game {id: e.similar_game_id})
		MERGE (g)-[r:SIMILAR_TO]->(s)
		SET r.score = e.score, r.computed_at = e.computed_at`

	deleteGameCypher = `
		MATCH (g:Game {id: $game_id})
		DETACH DELETE g`

	neighborsCypher = `
		MATCH (:Game {id: $game_id})-[r:SIMILAR_TO]->(s:Game)
		RETURN s.id AS id
		ORDER BY r.score DESC, s.id ASC
		LIMIT $limit`
)

// Writer executes statements atomically.
type Writer interface {
	Write(ctx context.Context, statements ...Statement) error
}

// Projector mirrors precomputed similarity edges as (:Game)-[:SIMILAR_TO]->(:Game).
// The relational store stays authoritative; projection failures are logged and counted.
type Projector struct {
	writer Writer
	logger ectologger.Logger
}

// NewProjector creates a Projector.
func NewProjector(writer Writer, logger ectologger.Logger) *Projector {
	return &Projector{
		writer: writer,
		logger: logger,
	}
}

// ReplaceStatements rebuilds gameID's outgoing edges.
func ReplaceStatements(gameID int64, edges []models.GameSimilarity) []Statement {
	statements := []Statement{{
		Cypher: clearEdgesCypher,
		Params: map[string]any{"game_id": gameID},
	}}
	if len(edges) == 0 {
		return statements
	}

	rows := make([]map[string]any, 0, len(edges))
	for _, edge := range edges {
		rows = append(rows, map[string]any{
			"similar_game_id": edge.SimilarGameID,
			"score":           edge.SimilarityScore,
			"computed_at":     edge.ComputedAt,
		})
	}
	return append(statements, Statement{
		Cypher: writeEdgesCypher,
		Params: map[string]any{"game_id": gameID, "edges": rows},
	})
}

// SimilaritiesReplaced projects the new edge set of a game.
func (p *Projector) SimilaritiesReplaced(ctx context.Context, gameID int64, edges []models.GameSimilarity) {
	ctx, span := tracing.StartSpan(ctx, "graph.Projector.SimilaritiesReplaced")
	defer span.End()

	p.write(ctx, "game_id", gameID, ReplaceStatements(gameID, edges)...)
}

// GamesMerged drops the absorbed game and everything attached to it.
func (p *Projector) GamesMerged(ctx context.Context, result models.MergeResult) {
	ctx, span := tracing.StartSpan(ctx, "graph.Projector.GamesMerged")
	defer span.End()

	p.write(ctx, "secondary_id", result.SecondaryID, Statement{
		Cypher: deleteGameCypher,
		Params: map[string]any{"game_id": result.SecondaryID},
	})
}

func (p *Projector) write(ctx context.Context, field string, id int64, statements ...Statement) {
	if err := p.writer.Write(ctx, statements...); err != nil {
		metrics.GraphProjections.WithLabelValues("error").Inc()
		p.logger.WithContext(ctx).WithError(err).WithField(field, id).Warn("Graph projection failed")
		return
	}
	metrics.GraphProjections.WithLabelValues("success").Inc()
}

package postgres

import (
	"context"
	"fmt"

	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/store"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

var similarityStruct = database.NewStruct(new(models.GameSimilarity))

func (s *Store) ReplaceSimilarities(ctx context.Context, gameID int64, simType models.SimilarityType, edges []models.GameSimilarity) error {
	ctx, span := tracing.StartSpan(ctx, "postgres.Store.ReplaceSimilarities")
	defer span.End()

	for _, e := range edges {
		if e.GameID != gameID || e.SimilarityType != simType {
			return fmt.Errorf("%w: edge %d->%d does not belong to game %d/%s", store.ErrConflict, e.GameID, e.SimilarGameID, gameID, simType)
		}
		if e.GameID == e.SimilarGameID {
			return fmt.Errorf("%w: self edge on game %d", store.ErrConflict, e.GameID)
		}
	}
	fields := map[string]any{"game_id": gameID, "similarity_type": simType, "edge_count": len(edges)}

	return database.WithTx(ctx, s.db, func(ctx context.Context, tx database.Tx) error {
		exists := database.NewSelectBuilder()
		exists.Select("id").From(gamesTable).Where(exists.Equal("id", gameID)).ForUpdate()
		query, args := exists.Build()
		var id int64
		if err := tx.GetContext(ctx, &id, query, args...); err != nil {
			return s.fail(ctx, err, fmt.Sprintf("get game %d", gameID), fields)
		}

		del := database.NewDeleteBuilder()
		del.DeleteFrom(similaritiesTable).Where(del.Equal("game_id", gameID), del.Equal("similarity_type", simType))
		query, args = del.Build()
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return s.fail(ctx, err, "delete similarities", fields)
		}

		if len(edges) == 0 {
			return nil
		}
		query, args = s.insertEdges(edges).Build()
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return s.fail(ctx, err, "insert similarities", fields)
		}
		return nil
	})
}

func (s *Store) InsertSimilarities(ctx context.Context, edges []models.GameSimilarity) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "postgres.Store.InsertSimilarities")
	defer span.End()

	for _, e := range edges {
		if e.GameID == e.SimilarGameID {
			return 0, fmt.Errorf("%w: self edge on game %d", store.ErrConflict, e.GameID)
		}
	}
	if len(edges) == 0 {
		return 0, nil
	}

	ib := s.insertEdges(edges).OnConflictDoNothing("game_id", "similar_game_id", "similarity_type")
	query, args := ib.Build()
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, s.fail(ctx, err, "insert similarities", map[string]any{"edge_count": len(edges)})
	}
	return rowsAffected(res)
}

func (s *Store) insertEdges(edges []models.GameSimilarity) *database.InsertBuilder {
	now := s.now()
	ib := database.NewInsertBuilder().
		InsertInto(similaritiesTable).
		Cols("game_id", "similar_game_id", "similarity_score", "similarity_type", "computed_at")
	for _, e := range edges {
		computedAt := e.ComputedAt
		if computedAt.IsZero() {
			computedAt = now
		}
		ib = ib.Values(e.GameID, e.SimilarGameID, e.SimilarityScore, e.SimilarityType, computedAt)
	}
	return ib
}

func (s *Store) ListSimilarGames(ctx context.Context, gameID int64, simType models.SimilarityType, limit int) ([]models.SimilarGame, error) {
	ctx, span := tracing.StartSpan(ctx, "postgres.Store.ListSimilarGames")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select("g.id AS game_id", "g.name", "g.slug", "g.rating", "g.rating_count", "g.release_date",
		"g.background_image_url", "gs.similarity_score", "gs.similarity_type").
		From(similaritiesTable+" gs").
		Join(gamesTable+" g", "g.id = gs.similar_game_id").
		Where(sb.Equal("gs.game_id", gameID), sb.Equal("gs.similarity_type", simType)).
		OrderBy("gs.similarity_score DESC", "g.id")
	if limit > 0 {
		sb.Limit(limit)
	}

	query, args := sb.Build()
	games := make([]models.SimilarGame, 0)
	if err := s.db.SelectContext(ctx, &games, query, args...); err != nil {
		return nil, s.fail(ctx, err, "list similar games", map[string]any{"game_id": gameID})
	}
	return games, nil
}

func (s *Store) ListSimilarities(ctx context.Context, gameID int64, simType models.SimilarityType) ([]models.GameSimilarity, error) {
	ctx, span := tracing.StartSpan(ctx, "postgres.Store.ListSimilarities")
	defer span.End()

	sb := similarityStruct.SelectFrom(similaritiesTable)
	sb.Where(sb.Equal("game_id", gameID), sb.Equal("similarity_type", simType))
	sb.OrderBy("similarity_score DESC", "similar_game_id")

	query, args := sb.Build()
	edges := make([]models.GameSimilarity, 0)
	if err := s.db.SelectContext(ctx, &edges, query, args...); err != nil {
		return nil, s.fail(ctx, err, "list similarities", map[string]any{"game_id": gameID})
	}
	return edges, nil
}

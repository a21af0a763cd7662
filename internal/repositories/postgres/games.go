package postgres

import (
	"context"
	"fmt"

	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/store"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

var gameStruct = database.NewStruct(new(models.Game))

func (s *Store) CreateGame(ctx context.Context, req models.CreateGameRequest) (*models.Game, error) {
	ctx, span := tracing.StartSpan(ctx, "postgres.Store.CreateGame")
	defer span.End()

	return s.insertGame(ctx, s.db, req)
}

func (s *Store) CreateGameWithTags(ctx context.Context, req models.CreateGameRequest, tags []models.TagAssignment) (*models.Game, error) {
	ctx, span := tracing.StartSpan(ctx, "postgres.Store.CreateGameWithTags")
	defer span.End()

	var game *models.Game
	err := database.WithTx(ctx, s.db, func(ctx context.Context, tx database.Tx) error {
		var err error
		if game, err = s.insertGame(ctx, tx, req); err != nil {
			return err
		}
		for _, assignment := range tags {
			tag, err := s.upsertTag(ctx, tx, assignment.Name, assignment.NormalizedName, assignment.Category)
			if err != nil {
				return err
			}
			if _, err := s.insertGameTag(ctx, tx, models.GameTag{GameID: game.ID, TagID: tag.ID, Weight: assignment.Weight}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return game, nil
}

func (s *Store) insertGame(ctx context.Context, q querier, req models.CreateGameRequest) (*models.Game, error) {
	now := s.now()
	ib := database.NewInsertBuilder()
	ib.InsertInto(gamesTable).
		Cols("rawg_id", "igdb_id", "name", "slug", "description", "rating", "rating_count",
			"release_date", "website_url", "background_image_url", "created_at", "updated_at").
		Values(req.RawgID, req.IgdbID, req.Name, req.Slug, req.Description, req.Rating, req.RatingCount,
			req.ReleaseDate, req.WebsiteURL, req.BackgroundImageURL, now, now).
		Returning(gameStruct.Columns()...)

	query, args := ib.Build()
	var game models.Game
	if err := q.GetContext(ctx, &game, query, args...); err != nil {
		return nil, s.fail(ctx, err, "create game", map[string]any{"slug": req.Slug})
	}

	s.logger.WithContext(ctx).WithFields(map[string]any{
		"game_id": game.ID,
		"slug":    game.Slug,
	}).Debugf("Created game")
	return &game, nil
}

func (s *Store) GetGame(ctx context.Context, id int64) (*models.Game, error) {
	ctx, span := tracing.StartSpan(ctx, "postgres.Store.GetGame")
	defer span.End()

	sb := gameStruct.SelectFrom(gamesTable)
	sb.Where(sb.Equal("id", id))
	return s.getGame(ctx, sb.Build, fmt.Sprintf("get game %d", id))
}

func (s *Store) GetGameBySlug(ctx context.Context, slug string) (*models.Game, error) {
	ctx, span := tracing.StartSpan(ctx, "postgres.Store.GetGameBySlug")
	defer span.End()

	sb := gameStruct.SelectFrom(gamesTable)
	sb.Where(database.Lower(sb, "slug", slug))
	sb.OrderBy("id").Limit(1)
	return s.getGame(ctx, sb.Build, fmt.Sprintf("get game with slug %s", slug))
}

func (s *Store) GetGameByExternalID(ctx context.Context, source models.Source, externalID int64) (*models.Game, error) {
	ctx, span := tracing.StartSpan(ctx, "postgres.Store.GetGameByExternalID")
	defer span.End()

	column, err := externalIDColumn(source)
	if err != nil {
		return nil, err
	}

	sb := gameStruct.SelectFrom(gamesTable)
	sb.Where(sb.Equal(column, externalID))
	return s.getGame(ctx, sb.Build, fmt.Sprintf("get game with %s id %d", source, externalID))
}

func (s *Store) FindGameByName(ctx context.Context, name string) (*models.Game, error) {
	ctx, span := tracing.StartSpan(ctx, "postgres.Store.FindGameByName")
	defer span.End()

	sb := gameStruct.SelectFrom(gamesTable)
	sb.Where(database.Lower(sb, "name", name))
	sb.OrderBy("id").Limit(1)
	return s.getGame(ctx, sb.Build, fmt.Sprintf("get game with name %s", name))
}

func (s *Store) getGame(ctx context.Context, build func() (string, []any), what string) (*models.Game, error) {
	query, args := build()
	var game models.Game
	if err := s.db.GetContext(ctx, &game, query, args...); err != nil {
		return nil, s.fail(ctx, err, what, nil)
	}
	return &game, nil
}

func (s *Store) ListGamesWithDescription(ctx context.Context) ([]models.Game, error) {
	ctx, span := tracing.StartSpan(ctx, "postgres.Store.ListGamesWithDescription")
	defer span.End()

	sb := gameStruct.SelectFrom(gamesTable)
	sb.Where(sb.IsNotNull("description"), "description ~ '[^[:space:]]'")
	sb.OrderBy("id")
	return s.listGames(ctx, sb.Build, "list games with description")
}

func (s *Store) ListGamesOnlyFrom(ctx context.Context, source models.Source) ([]models.Game, error) {
	ctx, span := tracing.StartSpan(ctx, "postgres.Store.ListGamesOnlyFrom")
	defer span.End()

	column, err := externalIDColumn(source)
	if err != nil {
		return nil, err
	}
	other := "rawg_id"
	if column == other {
		other = "igdb_id"
	}

	sb := gameStruct.SelectFrom(gamesTable)
	sb.Where(sb.IsNotNull(column), sb.IsNull(other))
	sb.OrderBy("id")
	return s.listGames(ctx, sb.Build, fmt.Sprintf("list %s-only games", source))
}

func (s *Store) ListGamesByTag(ctx context.Context, category models.TagCategory, normalizedName string) ([]models.Game, error) {
	ctx, span := tracing.StartSpan(ctx, "postgres.Store.ListGamesByTag")
	defer span.End()

	tagged := database.NewSelectBuilder()
	tagged.Select("gt.game_id").
		From(gameTagsTable+" gt").
		Join(tagsTable+" t", "t.id = gt.tag_id").
		Where(tagged.Equal("t.category", category), tagged.Equal("t.normalized_name", normalizedName))

	sb := gameStruct.SelectFrom(gamesTable)
	sb.Where(sb.In("id", tagged))
	sb.OrderBy("id")
	return s.listGames(ctx, sb.Build, fmt.Sprintf("list games tagged %s:%s", category, normalizedName))
}

func (s *Store) listGames(ctx context.Context, build func() (string, []any), what string) ([]models.Game, error) {
	query, args := build()
	games := make([]models.Game, 0)
	if err := s.db.SelectContext(ctx, &games, query, args...); err != nil {
		return nil, s.fail(ctx, err, what, nil)
	}
	return games, nil
}

func (s *Store) ApplyMerge(ctx context.Context, plan models.MergePlan) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "postgres.Store.ApplyMerge")
	defer span.End()

	primaryID, secondaryID := plan.Primary.ID, plan.SecondaryID
	if primaryID == secondaryID {
		return 0, fmt.Errorf("%w: cannot merge game %d into itself", store.ErrConflict, primaryID)
	}
	fields := map[string]any{"primary_id": primaryID, "secondary_id": secondaryID}

	copied := 0
	err := database.WithTx(ctx, s.db, func(ctx context.Context, tx database.Tx) error {
		locked := database.NewSelectBuilder()
		locked.Select("id").From(gamesTable).Where(locked.In("id", primaryID, secondaryID)).OrderBy("id").ForUpdate()
		query, args := locked.Build()
		var ids []int64
		if err := tx.SelectContext(ctx, &ids, query, args...); err != nil {
			return s.fail(ctx, err, "lock merge pair", fields)
		}
		if len(ids) != 2 {
			return fmt.Errorf("merge %d <- %d: %w", primaryID, secondaryID, store.ErrNotFound)
		}

		res, err := tx.ExecContext(ctx, copyTagsQuery, primaryID, secondaryID)
		if err != nil {
			return s.fail(ctx, err, "copy merged tags", fields)
		}
		if copied, err = rowsAffected(res); err != nil {
			return err
		}

		// Associations and edges of the secondary cascade with the row. It goes first
		// so its external ids are free for the primary.
		del := database.NewDeleteBuilder()
		del.DeleteFrom(gamesTable).Where(del.Equal("id", secondaryID))
		query, args = del.Build()
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return s.fail(ctx, err, "delete merged game", fields)
		}

		p := plan.Primary
		ub := database.NewUpdateBuilder()
		ub.Update(gamesTable).
			Set(
				ub.Assign("rawg_id", p.RawgID),
				ub.Assign("igdb_id", p.IgdbID),
				ub.Assign("name", p.Name),
				ub.Assign("slug", p.Slug),
				ub.Assign("description", p.Description),
				ub.Assign("rating", p.Rating),
				ub.Assign("rating_count", p.RatingCount),
				ub.Assign("release_date", p.ReleaseDate),
				ub.Assign("website_url", p.WebsiteURL),
				ub.Assign("background_image_url", p.BackgroundImageURL),
				ub.Assign("updated_at", s.now()),
			).
			Where(ub.Equal("id", primaryID))
		query, args = ub.Build()
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return s.fail(ctx, err, "update merged game", fields)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.logger.WithContext(ctx).WithFields(fields).WithField("tags_copied", copied).Info("Applied merge")
	return copied, nil
}

const copyTagsQuery = `INSERT INTO game_tags (game_id, tag_id, weight)
SELECT $1, tag_id, weight FROM game_tags WHERE game_id = $2
ON CONFLICT (game_id, tag_id) DO NOTHING`

func externalIDColumn(source models.Source) (string, error) {
	switch source {
	case models.SourceRawg:
		return "rawg_id", nil
	case models.SourceIgdb:
		return "igdb_id", nil
	}
	return "", fmt.Errorf("unknown source %q: %w", source, store.ErrNotFound)
}

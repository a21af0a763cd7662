package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/store"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

var tagStruct = database.NewStruct(new(models.Tag))

func (s *Store) GetOrCreateTag(ctx context.Context, name string, normalizedName string, category models.TagCategory) (*models.Tag, error) {
	ctx, span := tracing.StartSpan(ctx, "postgres.Store.GetOrCreateTag")
	defer span.End()

	return s.upsertTag(ctx, s.db, name, normalizedName, category)
}

func (s *Store) upsertTag(ctx context.Context, q querier, name string, normalizedName string, category models.TagCategory) (*models.Tag, error) {
	tag, err := s.getTag(ctx, q, normalizedName, category)
	if err == nil || !errors.Is(err, store.ErrNotFound) {
		return tag, err
	}

	// A concurrent insert of the same tag is absorbed by the conflict clause and read back below.
	ib := database.NewInsertBuilder()
	ib.InsertInto(tagsTable).
		Cols("name", "normalized_name", "category").
		Values(name, normalizedName, category).
		OnConflictDoNothing("normalized_name", "category")

	query, args := ib.Build()
	if _, err := q.ExecContext(ctx, query, args...); err != nil {
		return nil, s.fail(ctx, err, "create tag", map[string]any{
			"normalized_name": normalizedName,
			"category":        category,
		})
	}
	return s.getTag(ctx, q, normalizedName, category)
}

func (s *Store) getTag(ctx context.Context, q querier, normalizedName string, category models.TagCategory) (*models.Tag, error) {
	sb := tagStruct.SelectFrom(tagsTable)
	sb.Where(sb.Equal("normalized_name", normalizedName), sb.Equal("category", category))

	query, args := sb.Build()
	var tag models.Tag
	if err := q.GetContext(ctx, &tag, query, args...); err != nil {
		return nil, s.fail(ctx, err, fmt.Sprintf("get tag %s:%s", category, normalizedName), nil)
	}
	return &tag, nil
}

func (s *Store) AddGameTag(ctx context.Context, gameTag models.GameTag) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "postgres.Store.AddGameTag")
	defer span.End()

	return s.insertGameTag(ctx, s.db, gameTag)
}

func (s *Store) insertGameTag(ctx context.Context, q querier, gameTag models.GameTag) (bool, error) {
	ib := database.NewInsertBuilder()
	ib.InsertInto(gameTagsTable).
		Cols("game_id", "tag_id", "weight").
		Values(gameTag.GameID, gameTag.TagID, gameTag.Weight).
		OnConflictDoNothing("game_id", "tag_id")

	query, args := ib.Build()
	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return false, s.fail(ctx, err, "add game tag", map[string]any{
			"game_id": gameTag.GameID,
			"tag_id":  gameTag.TagID,
		})
	}
	n, err := rowsAffected(res)
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *Store) ListGameTags(ctx context.Context, gameIDs ...int64) ([]models.TaggedGame, error) {
	ctx, span := tracing.StartSpan(ctx, "postgres.Store.ListGameTags")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select("gt.game_id", "gt.tag_id", "gt.weight", "t.name", "t.normalized_name", "t.category").
		From(gameTagsTable+" gt").
		Join(tagsTable+" t", "t.id = gt.tag_id")
	if len(gameIDs) > 0 {
		sb.Where(sb.In("gt.game_id", int64Args(gameIDs)...))
	}
	sb.OrderBy("gt.game_id", "gt.tag_id")

	query, args := sb.Build()
	tags := make([]models.TaggedGame, 0)
	if err := s.db.SelectContext(ctx, &tags, query, args...); err != nil {
		return nil, s.fail(ctx, err, "list game tags", map[string]any{"game_count": len(gameIDs)})
	}
	return tags, nil
}

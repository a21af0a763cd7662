// Package store defines the persistence contracts the recommendation core depends on.
package store

import (
	"context"
	"errors"

	"github.com/Ramsey-B/fern/pkg/models"
)

var (
	// ErrNotFound is returned when a lookup matches nothing.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a write violates a uniqueness invariant.
	ErrConflict = errors.New("conflict")
)

// GameStore persists games.
type GameStore interface {
	CreateGame(ctx context.Context, req models.CreateGameRequest) (*models.Game, error)
	// CreateGameWithTags creates a game together with its tag associations, creating
	// missing tags. Nothing is written when any part fails.
	CreateGameWithTags(ctx context.Context, req models.CreateGameRequest, tags []models.TagAssignment) (*models.Game, error)
	GetGame(ctx context.Context, id int64) (*models.Game, error)
	// GetGameBySlug matches slugs ignoring case.
	GetGameBySlug(ctx context.Context, slug string) (*models.Game, error)
	GetGameByExternalID(ctx context.Context, source models.Source, externalID int64) (*models.Game, error)
	// FindGameByName matches display names ignoring case and returns the lowest id.
	FindGameByName(ctx context.Context, name string) (*models.Game, error)
	// ListGamesWithDescription returns games with a non-blank description ordered by id.
	ListGamesWithDescription(ctx context.Context) ([]models.Game, error)
	// ListGamesOnlyFrom returns games carrying the external id of source and no other, ordered by id.
	ListGamesOnlyFrom(ctx context.Context, source models.Source) ([]models.Game, error)
	ListGamesByTag(ctx context.Context, category models.TagCategory, normalizedName string) ([]models.Game, error)
	// ApplyMerge atomically updates the primary game, copies the secondary's tag
	// associations the primary lacks, and deletes the secondary with its associations
	// and similarity edges. It returns the number of copied associations.
	ApplyMerge(ctx context.Context, plan models.MergePlan) (int, error)
}

// TagStore persists tags and game-tag associations.
type TagStore interface {
	// GetOrCreateTag returns the tag with (normalizedName, category), creating it on first sight.
	GetOrCreateTag(ctx context.Context, name string, normalizedName string, category models.TagCategory) (*models.Tag, error)
	// AddGameTag inserts an association and reports false when it already existed.
	AddGameTag(ctx context.Context, gameTag models.GameTag) (bool, error)
	// ListGameTags returns associations joined with their tags for the given games,
	// or for every game when gameIDs is empty. Rows are ordered by game id then tag id.
	ListGameTags(ctx context.Context, gameIDs ...int64) ([]models.TaggedGame, error)
}

// SimilarityStore persists similarity edges.
type SimilarityStore interface {
	// ReplaceSimilarities deletes every edge of simType from gameID and inserts edges
	// as one atomic unit.
	ReplaceSimilarities(ctx context.Context, gameID int64, simType models.SimilarityType, edges []models.GameSimilarity) error
	// InsertSimilarities inserts edges, skipping any that already exist, and returns
	// how many were inserted.
	InsertSimilarities(ctx context.Context, edges []models.GameSimilarity) (int, error)
	// ListSimilarGames returns the top simType edges from gameID by score descending, then
	// target id.
	ListSimilarGames(ctx context.Context, gameID int64, simType models.SimilarityType, limit int) ([]models.SimilarGame, error)
	ListSimilarities(ctx context.Context, gameID int64, simType models.SimilarityType) ([]models.GameSimilarity, error)
}

// JobStore persists ingestion jobs and their logs.
type JobStore interface {
	CreateJob(ctx context.Context, job models.EtlJob) (*models.EtlJob, error)
	UpdateJob(ctx context.Context, job models.EtlJob) error
	GetJob(ctx context.Context, id int64) (*models.EtlJob, error)
	AddJobLog(ctx context.Context, entry models.EtlJobLog) error
	ListJobLogs(ctx context.Context, jobID int64) ([]models.EtlJobLog, error)
}

// Store is the shared entity store.
type Store interface {
	GameStore
	TagStore
	SimilarityStore
	JobStore
}

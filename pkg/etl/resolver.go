package etl

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/Gobusters/ectolinq"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/store"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// APIProvidedScore is the fixed score of edges taken from catalog references.
const APIProvidedScore = 0.80

// ResolverRepository is the store surface the similar-games resolver needs.
type ResolverRepository interface {
	GetGameByExternalID(ctx context.Context, source models.Source, externalID int64) (*models.Game, error)
	InsertSimilarities(ctx context.Context, edges []models.GameSimilarity) (int, error)
}

// ResolveResult counts what one resolution pass did.
type ResolveResult struct {
	Inserted int `json:"inserted"`
	Skipped  int `json:"skipped"`
}

// SimilarGamesResolver turns IGDB similar-games references into API_PROVIDED edges.
type SimilarGamesResolver struct {
	repo ResolverRepository
	now  func() time.Time
}

// NewSimilarGamesResolver creates a SimilarGamesResolver.
func NewSimilarGamesResolver(repo ResolverRepository) *SimilarGamesResolver {
	return &SimilarGamesResolver{repo: repo, now: time.Now}
}

// Resolve maps every reference of refs to internal game ids and inserts one edge per
// resolved pair. Unknown sources, unresolved targets, self references, repeated targets
// and edges that already exist are skipped and counted.
func (r *SimilarGamesResolver) Resolve(ctx context.Context, job *Job, refs map[int64][]int64) (ResolveResult, error) {
	ctx, span := tracing.StartSpan(ctx, "etl.SimilarGamesResolver.Resolve")
	defer span.End()

	var result ResolveResult
	if len(refs) == 0 {
		job.Infof(ctx, "No IGDB similar_games references to process")
		return result, nil
	}
	job.Infof(ctx, "Processing %d IGDB similar_games references...", len(refs))

	resolved := make(map[int64]int64)
	lookup := func(igdbID int64) (int64, bool, error) {
		if id, ok := resolved[igdbID]; ok {
			return id, id != 0, nil
		}
		game, err := r.repo.GetGameByExternalID(ctx, models.SourceIgdb, igdbID)
		if errors.Is(err, store.ErrNotFound) {
			resolved[igdbID] = 0
			return 0, false, nil
		}
		if err != nil {
			return 0, false, err
		}
		resolved[igdbID] = game.ID
		return game.ID, true, nil
	}

	sources := make([]int64, 0, len(refs))
	for igdbID := range refs {
		sources = append(sources, igdbID)
	}
	slices.Sort(sources)

	computedAt := r.now().UTC()
	for _, sourceIgdbID := range sources {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		targets := refs[sourceIgdbID]

		sourceID, ok, err := lookup(sourceIgdbID)
		if err != nil {
			return result, err
		}
		if !ok {
			job.Warnf(ctx, "Source game not found for IGDB ID: %d", sourceIgdbID)
			result.Skipped += len(targets)
			continue
		}

		edges := make([]models.GameSimilarity, 0, len(targets))
		linked := make([]int64, 0, len(targets))
		for _, targetIgdbID := range targets {
			targetID, ok, err := lookup(targetIgdbID)
			if err != nil {
				return result, err
			}
			if !ok || targetID == sourceID || ectolinq.Contains(linked, targetID) {
				result.Skipped++
				continue
			}
			linked = append(linked, targetID)
			edges = append(edges, models.GameSimilarity{
				GameID:          sourceID,
				SimilarGameID:   targetID,
				SimilarityScore: APIProvidedScore,
				SimilarityType:  models.SimilarityTypeAPIProvided,
				ComputedAt:      computedAt,
			})
		}
		if len(edges) == 0 {
			continue
		}

		inserted, err := r.repo.InsertSimilarities(ctx, edges)
		if err != nil {
			job.Errorf(ctx, err, "Failed to save similarities for game %d", sourceID)
			result.Skipped += len(edges)
			continue
		}
		result.Inserted += inserted
		result.Skipped += len(edges) - inserted
	}

	job.Infof(ctx, "IGDB similar_games processing complete. Inserted: %d, Skipped: %d", result.Inserted, result.Skipped)
	return result, nil
}

package etl

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/locks"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/normalizers"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// MaxSimilarGames caps how many similar-games references are kept per IGDB game.
const MaxSimilarGames = 10

// IgdbImporter loads an IGDB catalog export and collects its similar-games references.
type IgdbImporter struct {
	importer
}

// NewIgdbImporter creates an IgdbImporter.
func NewIgdbImporter(logger ectologger.Logger, repo Repository, locker locks.Locker, normalizer *normalizers.TagNormalizer, batch BatchConfig) *IgdbImporter {
	return &IgdbImporter{importer: newImporter(logger, repo, locker, normalizer, batch)}
}

// ImportFile reads the catalog at path and imports it.
func (i *IgdbImporter) ImportFile(ctx context.Context, job *Job, path string) (models.IgdbImportResult, error) {
	job.Infof(ctx, "Starting IGDB import from: %s", path)
	games, err := ReadCatalog[models.IgdbGame](path)
	if err != nil {
		job.Errorf(ctx, err, "Failed to parse IGDB JSON")
		return models.IgdbImportResult{}, err
	}
	return i.Import(ctx, job, games)
}

// Import inserts every new game of games. References of every valid record are
// collected, including duplicates, so edges can still be resolved for games that
// were loaded by an earlier run.
func (i *IgdbImporter) Import(ctx context.Context, job *Job, games []models.IgdbGame) (models.IgdbImportResult, error) {
	ctx, span := tracing.StartSpan(ctx, "etl.IgdbImporter.Import")
	defer span.End()

	job.Infof(ctx, "Parsed %d IGDB games from JSON", len(games))
	similar := make(map[int64][]int64)

	result, err := processBatched(ctx, job, models.SourceIgdb, i.batch, games, func(ctx context.Context, g models.IgdbGame) Result {
		if !i.checkSource(ctx, job, models.SourceIgdb, g.Name, g) {
			return Skip("invalid record")
		}
		res := i.insert(ctx, job, igdbRecord(g))
		if !res.Failed() {
			if refs := parseSimilarGames(g.SimilarGames); len(refs) > 0 {
				similar[g.IgdbID] = refs
			}
		}
		return res
	})
	out := models.IgdbImportResult{ImportResult: result, SimilarGames: similar}
	if err != nil {
		return out, err
	}

	job.Infof(ctx, "IGDB import complete. Inserted: %d, Skipped: %d, Similar games references: %d",
		result.Inserted, result.Skipped, len(similar))
	return out, nil
}

func igdbRecord(g models.IgdbGame) record {
	id := g.IgdbID
	req := models.CreateGameRequest{
		IgdbID:             &id,
		Name:               g.Name,
		Slug:               g.Slug,
		Description:        nonBlank(g.Summary),
		Rating:             normalizeIgdbRating(g.TotalRating, g.Rating),
		WebsiteURL:         nonBlank(g.URL),
		BackgroundImageURL: nonBlank(g.CoverURL),
	}
	if req.Description == nil {
		req.Description = nonBlank(g.Storyline)
	}
	switch {
	case g.TotalRatingCount != nil:
		req.RatingCount = *g.TotalRatingCount
	case g.RatingCount != nil:
		req.RatingCount = *g.RatingCount
	}
	if g.FirstReleaseDate != nil {
		released := time.Unix(*g.FirstReleaseDate, 0).UTC()
		req.ReleaseDate = &released
	}

	return record{
		source:     models.SourceIgdb,
		externalID: g.IgdbID,
		request:    req,
		tags:       igdbTagLists(g),
	}
}

// normalizeIgdbRating maps IGDB's 0-100 scale onto 0-10, preferring the total rating.
func normalizeIgdbRating(total, rating *float64) *float64 {
	src := total
	if src == nil {
		src = rating
	}
	if src == nil {
		return nil
	}
	normalized := min(max(*src/10, 0), 10)
	return &normalized
}

// parseSimilarGames keeps the first MaxSimilarGames integer references.
func parseSimilarGames(refs []string) []int64 {
	ids := make([]int64, 0, min(len(refs), MaxSimilarGames))
	for _, ref := range refs {
		if len(ids) == MaxSimilarGames {
			break
		}
		id, err := strconv.ParseInt(strings.TrimSpace(ref), 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

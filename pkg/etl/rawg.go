package etl

import (
	"context"
	"math"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/locks"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/normalizers"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

const rawgReleaseLayout = "2006-01-02"

// RawgImporter loads a RAWG catalog export.
type RawgImporter struct {
	importer
}

// NewRawgImporter creates a RawgImporter.
func NewRawgImporter(logger ectologger.Logger, repo Repository, locker locks.Locker, normalizer *normalizers.TagNormalizer, batch BatchConfig) *RawgImporter {
	return &RawgImporter{importer: newImporter(logger, repo, locker, normalizer, batch)}
}

// ImportFile reads the catalog at path and imports it.
func (r *RawgImporter) ImportFile(ctx context.Context, job *Job, path string) (models.ImportResult, error) {
	job.Infof(ctx, "Starting RAWG import from: %s", path)
	games, err := ReadCatalog[models.RawgGame](path)
	if err != nil {
		job.Errorf(ctx, err, "Failed to parse RAWG JSON")
		return models.ImportResult{}, err
	}
	return r.Import(ctx, job, games)
}

// Import inserts every new game of games. Duplicates and invalid records are skipped.
func (r *RawgImporter) Import(ctx context.Context, job *Job, games []models.RawgGame) (models.ImportResult, error) {
	ctx, span := tracing.StartSpan(ctx, "etl.RawgImporter.Import")
	defer span.End()

	job.Infof(ctx, "Parsed %d RAWG games from JSON", len(games))
	result, err := processBatched(ctx, job, models.SourceRawg, r.batch, games, func(ctx context.Context, g models.RawgGame) Result {
		return r.process(ctx, job, g)
	})
	if err != nil {
		return result, err
	}

	job.Infof(ctx, "RAWG import complete. Inserted: %d, Skipped: %d", result.Inserted, result.Skipped)
	return result, nil
}

func (r *RawgImporter) process(ctx context.Context, job *Job, g models.RawgGame) Result {
	if !r.checkSource(ctx, job, models.SourceRawg, g.Name, g) {
		return Skip("invalid record")
	}
	return r.insert(ctx, job, rawgRecord(g))
}

func rawgRecord(g models.RawgGame) record {
	id := g.RawgID
	req := models.CreateGameRequest{
		RawgID:             &id,
		Name:               g.Name,
		Slug:               g.Slug,
		Description:        nonBlank(g.DescriptionRaw),
		Rating:             normalizeRawgRating(g.Rating),
		WebsiteURL:         nonBlank(g.Website),
		BackgroundImageURL: nonBlank(g.BackgroundImage),
	}
	if g.RatingsCount != nil {
		req.RatingCount = *g.RatingsCount
	}
	if g.Released != nil {
		if released, err := time.Parse(rawgReleaseLayout, *g.Released); err == nil {
			req.ReleaseDate = &released
		}
	}

	return record{
		source:     models.SourceRawg,
		externalID: g.RawgID,
		request:    req,
		tags:       rawgTagLists(g),
	}
}

// normalizeRawgRating maps RAWG's 0-5 scale onto 0-10, rounded to two decimals.
func normalizeRawgRating(rating *float64) *float64 {
	if rating == nil {
		return nil
	}
	normalized := math.Round(math.Min(math.Max(*rating*2, 0), 10)*100) / 100
	return &normalized
}

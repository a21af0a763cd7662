package etl

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Gobusters/ectologger"
	"github.com/go-playground/validator/v10"

	"github.com/Ramsey-B/fern/pkg/locks"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/normalizers"
	"github.com/Ramsey-B/fern/pkg/store"
)

// Repository is the store surface the importers write through.
type Repository interface {
	store.GameStore
}

// importer holds what both catalog importers share: duplicate detection and creating
// a game with its tags.
type importer struct {
	logger    ectologger.Logger
	repo      Repository
	locker    locks.Locker
	extractor *TagExtractor
	validate  *validator.Validate
	batch     BatchConfig
}

func newImporter(logger ectologger.Logger, repo Repository, locker locks.Locker, normalizer *normalizers.TagNormalizer, batch BatchConfig) importer {
	return importer{
		logger:    logger,
		repo:      repo,
		locker:    locker,
		extractor: NewTagExtractor(normalizer),
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		batch:     batch,
	}
}

// record is a source record already normalized for the store.
type record struct {
	source     models.Source
	externalID int64
	request    models.CreateGameRequest
	tags       TagLists
}

// insert creates the game of rec with its tags unless it duplicates an existing game.
// The duplicate check and the creation run under the slug's write lock. A failure
// leaves nothing behind, so a later run imports the record again. A cancelled context
// is fatal for the whole import.
func (i *importer) insert(ctx context.Context, job *Job, rec record) Result {
	req := rec.request
	req.Name = strings.TrimSpace(req.Name)
	if req.Slug = strings.TrimSpace(req.Slug); req.Slug == "" {
		req.Slug = normalizers.NormalizeSlug(req.Name)
	}
	if req.Slug == "" {
		job.Warnf(ctx, "Skipping %s game %d: name '%s' has no usable slug", rec.source, rec.externalID, req.Name)
		return Skip("blank slug")
	}
	if err := i.validate.Struct(req); err != nil {
		job.Warnf(ctx, "Skipping invalid %s game %d: %s", rec.source, rec.externalID, err.Error())
		return Skip("invalid record")
	}

	tags, err := i.extractor.Extract(rec.tags)
	if err != nil {
		job.Errorf(ctx, err, "Failed to extract tags for %s game '%s'", rec.source, req.Name)
		return Fail("tag extraction failed", err)
	}

	var result Result
	err = i.locker.WithLock(ctx, []string{locks.SlugKey(req.Slug)}, func(ctx context.Context) error {
		result = i.create(ctx, job, rec, req, tags)
		return nil
	})
	if err != nil {
		result = Fail("lock failed", err)
		job.Errorf(ctx, err, "Failed to process %s game '%s'", rec.source, req.Name)
	}
	if result.Failed() && ctx.Err() != nil {
		return Fatal(fmt.Errorf("%s game '%s': %w", rec.source, req.Name, ctx.Err()))
	}
	return result
}

func (i *importer) create(ctx context.Context, job *Job, rec record, req models.CreateGameRequest, tags []models.TagAssignment) Result {
	existing, err := i.findExisting(ctx, rec.source, rec.externalID, req.Slug)
	if err != nil {
		job.Errorf(ctx, err, "Failed to process %s game '%s'", rec.source, req.Name)
		return Fail("lookup failed", err)
	}
	if existing != nil {
		job.Warnf(ctx, "Duplicate %s game detected: %s (%s ID: %d, existing ID: %d)",
			rec.source, req.Name, rec.source, rec.externalID, existing.ID)
		return Skip("duplicate")
	}

	game, err := i.repo.CreateGameWithTags(ctx, req, tags)
	if errors.Is(err, store.ErrConflict) {
		job.Warnf(ctx, "Duplicate %s game detected: %s (%s ID: %d)", rec.source, req.Name, rec.source, rec.externalID)
		return Skip("duplicate")
	}
	if err != nil {
		job.Errorf(ctx, err, "Failed to process %s game '%s'", rec.source, req.Name)
		return Fail("create failed", err)
	}
	return Success(game.ID)
}

func (i *importer) findExisting(ctx context.Context, source models.Source, externalID int64, slug string) (*models.Game, error) {
	game, err := i.repo.GetGameByExternalID(ctx, source, externalID)
	if err == nil {
		return game, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("find by %s id %d: %w", source, externalID, err)
	}

	game, err = i.repo.GetGameBySlug(ctx, slug)
	if err == nil {
		return game, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("find by slug %s: %w", slug, err)
	}
	return nil, nil
}

// checkSource validates a raw catalog record before normalization.
func (i *importer) checkSource(ctx context.Context, job *Job, source models.Source, name string, v any) bool {
	if err := i.validate.Struct(v); err != nil {
		job.Warnf(ctx, "Skipping invalid %s record '%s': %s", source, name, err.Error())
		return false
	}
	return true
}

func nonBlank(s *string) *string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil
	}
	return s
}

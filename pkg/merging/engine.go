// Package merging reconciles duplicate games found across catalogs into one game.
package merging

import (
	"context"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/locks"
	"github.com/Ramsey-B/fern/pkg/matching"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/store"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

const progressInterval = 100

// Listener is told about every committed merge.
type Listener interface {
	GamesMerged(ctx context.Context, result models.MergeResult)
}

// Engine handles game merging. IGDB games are primaries and absorb RAWG duplicates.
type Engine struct {
	logger      ectologger.Logger
	repo        store.GameStore
	locker      locks.Locker
	detector    *matching.Detector
	fieldMerger *FieldMerger
	listeners   []Listener
}

// NewEngine creates a new merge engine
func NewEngine(
	logger ectologger.Logger,
	repo store.GameStore,
	locker locks.Locker,
	detector *matching.Detector,
	listeners ...Listener,
) *Engine {
	return &Engine{
		logger:      logger,
		repo:        repo,
		locker:      locker,
		detector:    detector,
		fieldMerger: NewFieldMerger(DefaultFieldStrategies()),
		listeners:   listeners,
	}
}

// MergeAttributes reconciles secondary into primary with the default rules: the
// primary gains missing external ids, ratings are averaged, rating counts summed and
// every other optional attribute keeps the primary value unless it is missing.
func MergeAttributes(primary, secondary models.Game) models.Game {
	merged, _ := NewFieldMerger(DefaultFieldStrategies()).Merge(primary, secondary)
	return merged
}

// Merge absorbs the candidate's secondary game into its primary. Both games are
// re-read under their write locks so the merge applies to their current state, and the
// store applies the whole plan atomically.
func (e *Engine) Merge(ctx context.Context, candidate models.MergeCandidate) (*models.MergeResult, error) {
	ctx, span := tracing.StartSpan(ctx, "merging.Engine.Merge")
	defer span.End()

	primaryID, secondaryID := candidate.Primary.ID, candidate.Secondary.ID
	if primaryID == secondaryID {
		return nil, fmt.Errorf("%w: cannot merge game %d into itself", store.ErrConflict, primaryID)
	}

	log := e.logger.WithContext(ctx).WithFields(map[string]any{
		"primary_id":     primaryID,
		"secondary_id":   secondaryID,
		"merge_strategy": candidate.Strategy,
	})

	var result *models.MergeResult
	err := e.locker.WithLock(ctx, locks.GameKeys(primaryID, secondaryID), func(ctx context.Context) error {
		primary, err := e.repo.GetGame(ctx, primaryID)
		if err != nil {
			return err
		}
		secondary, err := e.repo.GetGame(ctx, secondaryID)
		if err != nil {
			return err
		}

		merged, err := e.fieldMerger.Merge(*primary, *secondary)
		if err != nil {
			return err
		}

		copied, err := e.repo.ApplyMerge(ctx, models.MergePlan{Primary: merged, SecondaryID: secondaryID})
		if err != nil {
			return err
		}

		result = &models.MergeResult{
			PrimaryID:   primaryID,
			SecondaryID: secondaryID,
			Strategy:    candidate.Strategy,
			TagsCopied:  copied,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.GamesMerged.WithLabelValues(string(candidate.Strategy)).Inc()
	log.WithField("tags_copied", result.TagsCopied).
		Infof("Merged '%s' (RAWG) into '%s' (IGDB)", candidate.Secondary.Name, candidate.Primary.Name)

	for _, l := range e.listeners {
		l.GamesMerged(ctx, *result)
	}
	return result, nil
}

// DetectAndMerge pairs RAWG-only games with IGDB-only duplicates and merges each pair.
// A failing pair is logged and skipped. It returns the number of merged pairs.
func (e *Engine) DetectAndMerge(ctx context.Context) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "merging.Engine.DetectAndMerge")
	defer span.End()

	start := time.Now()
	log := e.logger.WithContext(ctx)
	log.Info("Starting duplicate detection and merge process")

	primaries, err := e.repo.ListGamesOnlyFrom(ctx, models.SourceIgdb)
	if err != nil {
		return 0, err
	}
	secondaries, err := e.repo.ListGamesOnlyFrom(ctx, models.SourceRawg)
	if err != nil {
		return 0, err
	}
	log.Infof("Loaded %d RAWG games and %d IGDB games", len(secondaries), len(primaries))

	candidates := e.detector.Detect(primaries, secondaries)
	log.Infof("Detected %d duplicate pairs", len(candidates))

	merged := 0
	for i, candidate := range candidates {
		if err := ctx.Err(); err != nil {
			return merged, err
		}
		if i > 0 && i%progressInterval == 0 {
			log.Infof("Merge progress: %d/%d - merged so far: %d", i, len(candidates), merged)
		}

		if _, err := e.Merge(ctx, candidate); err != nil {
			log.WithError(err).WithFields(map[string]any{
				"primary_id":   candidate.Primary.ID,
				"secondary_id": candidate.Secondary.ID,
			}).Errorf("Failed to merge '%s' into '%s'", candidate.Secondary.Name, candidate.Primary.Name)
			continue
		}
		merged++
	}

	log.WithField("duration_ms", time.Since(start).Milliseconds()).Infof("Merge complete. Merged %d duplicates", merged)
	return merged, nil
}

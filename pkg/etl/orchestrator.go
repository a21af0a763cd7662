package etl

import (
	"context"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/fern/pkg/locks"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/normalizers"
	"github.com/Ramsey-B/fern/pkg/store"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// Phase names, also used as job names.
const (
	PhaseRawgImport          = "rawg-import"
	PhaseIgdbImport          = "igdb-import"
	PhaseSimilarGames        = "similar-games"
	PhaseMerge               = "merge"
	PhaseSimilarityRecompute = "similarity-recompute"
)

const sourceAll = "ALL"

// Merger reconciles duplicates across catalogs.
type Merger interface {
	DetectAndMerge(ctx context.Context) (int, error)
}

// Recomputer rebuilds content similarity for the whole corpus.
type Recomputer interface {
	ComputeAll(ctx context.Context) (*models.ComputationReport, error)
}

// Listener is told about every finished run, successful or not.
type Listener interface {
	RunCompleted(ctx context.Context, report models.EtlReport, runErr error)
}

// Config configures the pipeline.
type Config struct {
	Batch BatchConfig `koanf:"batch"`
	// RecomputeSimilarities adds a final phase that rebuilds content similarity.
	RecomputeSimilarities bool `koanf:"recompute_similarities"`
}

// DefaultConfig returns the default pipeline configuration.
func DefaultConfig() Config {
	return Config{Batch: DefaultBatchConfig()}
}

// RunRequest names the catalog exports of one run.
type RunRequest struct {
	RawgPath string `json:"rawg_path" validate:"required"`
	IgdbPath string `json:"igdb_path" validate:"required"`
}

// Orchestrator drives the full ingestion pipeline. The import phases must succeed;
// similar-games resolution, merging and recomputation are best effort.
type Orchestrator struct {
	logger     ectologger.Logger
	tracker    *JobTracker
	rawg       *RawgImporter
	igdb       *IgdbImporter
	resolver   *SimilarGamesResolver
	merger     Merger
	recomputer Recomputer
	cfg        Config
	listeners  []Listener
}

// NewOrchestrator creates an Orchestrator. recomputer may be nil.
func NewOrchestrator(
	logger ectologger.Logger,
	repo store.Store,
	locker locks.Locker,
	normalizer *normalizers.TagNormalizer,
	merger Merger,
	recomputer Recomputer,
	cfg Config,
	listeners ...Listener,
) *Orchestrator {
	return &Orchestrator{
		logger:     logger,
		tracker:    NewJobTracker(repo, logger),
		rawg:       NewRawgImporter(logger, repo, locker, normalizer, cfg.Batch),
		igdb:       NewIgdbImporter(logger, repo, locker, normalizer, cfg.Batch),
		resolver:   NewSimilarGamesResolver(repo),
		merger:     merger,
		recomputer: recomputer,
		cfg:        cfg,
		listeners:  listeners,
	}
}

// Run executes every phase in order and returns the run report. A failing import
// phase aborts the run; its job is marked failed and the error is returned together
// with the report built so far.
func (o *Orchestrator) Run(ctx context.Context, req RunRequest) (*models.EtlReport, error) {
	ctx, span := tracing.StartSpan(ctx, "etl.Orchestrator.Run")
	defer span.End()

	start := time.Now()
	report := &models.EtlReport{RunID: uuid.NewString()}
	log := o.logger.WithContext(ctx).WithField("run_id", report.RunID)
	log.Info("========== ETL PIPELINE START ==========")

	err := o.run(ctx, req, report)
	report.DurationMs = time.Since(start).Milliseconds()

	if err != nil {
		log.WithError(err).Errorf("========== ETL PIPELINE FAILED (%d ms) ==========", report.DurationMs)
	} else {
		log.Infof("========== ETL PIPELINE COMPLETE (%d ms) ==========", report.DurationMs)
	}
	for _, l := range o.listeners {
		l.RunCompleted(ctx, *report, err)
	}
	return report, err
}

func (o *Orchestrator) run(ctx context.Context, req RunRequest, report *models.EtlReport) error {
	err := o.mustSucceed(ctx, report, PhaseRawgImport, string(models.SourceRawg), func(ctx context.Context, job *Job) (int, int, error) {
		job.Infof(ctx, "Phase 1: Importing RAWG games...")
		res, err := o.rawg.ImportFile(ctx, job, req.RawgPath)
		report.RawgGamesInserted, report.RawgGamesSkipped = res.Inserted, res.Skipped
		return res.Inserted + res.Skipped, res.Failed, err
	})
	if err != nil {
		return err
	}

	var similar map[int64][]int64
	err = o.mustSucceed(ctx, report, PhaseIgdbImport, string(models.SourceIgdb), func(ctx context.Context, job *Job) (int, int, error) {
		job.Infof(ctx, "Phase 2: Importing IGDB games...")
		res, err := o.igdb.ImportFile(ctx, job, req.IgdbPath)
		report.IgdbGamesInserted, report.IgdbGamesSkipped = res.Inserted, res.Skipped
		similar = res.SimilarGames
		return res.Inserted + res.Skipped, res.Failed, err
	})
	if err != nil {
		return err
	}

	o.bestEffort(ctx, report, PhaseSimilarGames, string(models.SourceIgdb), func(ctx context.Context, job *Job) (int, int, error) {
		job.Infof(ctx, "Phase 3: Processing IGDB similar_games references...")
		res, err := o.resolver.Resolve(ctx, job, similar)
		if err != nil {
			return 0, 0, err
		}
		report.SimilaritiesInserted = res.Inserted
		return res.Inserted + res.Skipped, 0, nil
	})

	o.bestEffort(ctx, report, PhaseMerge, sourceAll, func(ctx context.Context, job *Job) (int, int, error) {
		job.Infof(ctx, "Phase 4: Detecting and merging duplicates...")
		merged, err := o.merger.DetectAndMerge(ctx)
		if err != nil {
			return 0, 0, err
		}
		report.GamesMerged = merged
		job.Infof(ctx, "Merged %d duplicate games", merged)
		return merged, 0, nil
	})

	if o.cfg.RecomputeSimilarities && o.recomputer != nil {
		o.bestEffort(ctx, report, PhaseSimilarityRecompute, sourceAll, func(ctx context.Context, job *Job) (int, int, error) {
			job.Infof(ctx, "Phase 5: Recomputing content similarities...")
			res, err := o.recomputer.ComputeAll(ctx)
			if err != nil {
				return 0, 0, err
			}
			report.Recompute = res
			job.Infof(ctx, "Similarity recompute %s. Processed: %d, Failed: %d, Similarities: %d",
				res.Status, res.GamesProcessed, res.GamesFailed, res.SimilaritiesComputed)
			return res.GamesProcessed, res.GamesFailed, nil
		})
	}
	return nil
}

type phaseFunc func(ctx context.Context, job *Job) (processed, failed int, err error)

// mustSucceed runs a phase whose failure aborts the run.
func (o *Orchestrator) mustSucceed(ctx context.Context, report *models.EtlReport, phase, source string, fn phaseFunc) error {
	if err := o.runPhase(ctx, report, phase, source, fn); err != nil {
		return fmt.Errorf("etl run %s: phase %s failed: %w", report.RunID, phase, err)
	}
	return nil
}

// bestEffort runs a phase whose failure is logged and leaves its report fields at zero.
func (o *Orchestrator) bestEffort(ctx context.Context, report *models.EtlReport, phase, source string, fn phaseFunc) {
	if err := o.runPhase(ctx, report, phase, source, fn); err != nil {
		o.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"run_id": report.RunID,
			"phase":  phase,
		}).Errorf("%s failed, continuing", phase)
	}
}

func (o *Orchestrator) runPhase(ctx context.Context, report *models.EtlReport, phase, source string, fn phaseFunc) error {
	start := time.Now()
	job, err := o.tracker.Start(ctx, report.RunID, phase, source)
	if err != nil {
		metrics.RecordEtlPhase(phase, string(models.JobStatusFailed), time.Since(start).Seconds())
		return err
	}
	report.JobIDs = append(report.JobIDs, job.ID())

	processed, failed, err := fn(ctx, job)
	if err != nil {
		job.Errorf(ctx, err, "%s failed", phase)
		if ferr := job.Fail(ctx, err); ferr != nil {
			o.logger.WithContext(ctx).WithError(ferr).Warn("Failed to mark job as failed")
		}
		metrics.RecordEtlPhase(phase, string(models.JobStatusFailed), time.Since(start).Seconds())
		return err
	}

	if err := job.Complete(ctx, processed, failed); err != nil {
		o.logger.WithContext(ctx).WithError(err).Warn("Failed to mark job as complete")
	}
	metrics.RecordEtlPhase(phase, string(job.Snapshot().Status), time.Since(start).Seconds())
	return nil
}

package etl

import (
	"context"
	"fmt"

	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
)

const (
	// DefaultBatchSize is how many records one import chunk holds.
	DefaultBatchSize = 1000
	// DefaultLogInterval is how often import progress is logged, in records.
	DefaultLogInterval = 500
)

// BatchConfig sizes import chunks and progress logging.
type BatchConfig struct {
	BatchSize   int `koanf:"batch_size" validate:"gt=0"`
	LogInterval int `koanf:"log_interval" validate:"gt=0"`
}

// DefaultBatchConfig returns the default batch sizing.
func DefaultBatchConfig() BatchConfig {
	return BatchConfig{BatchSize: DefaultBatchSize, LogInterval: DefaultLogInterval}
}

// processBatched runs process over items chunk by chunk and tallies the results.
// A Fatal result stops processing and is returned as an error. Cancellation is
// checked between chunks.
func processBatched[T any](
	ctx context.Context,
	job *Job,
	source models.Source,
	cfg BatchConfig,
	items []T,
	process func(ctx context.Context, item T) Result,
) (models.ImportResult, error) {
	var result models.ImportResult
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.LogInterval <= 0 {
		cfg.LogInterval = DefaultLogInterval
	}

	total := len(items)
	lastLogged := 0
	for start := 0; start < total; start += cfg.BatchSize {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		end := min(start+cfg.BatchSize, total)
		for _, item := range items[start:end] {
			r := process(ctx, item)
			switch {
			case r.Outcome == OutcomeFatal:
				metrics.RecordEtlRecord(string(source), "fatal")
				return result, fmt.Errorf("%w: %w", ErrFatalIngestion, r.Err)
			case r.Outcome == OutcomeSuccess:
				result.Inserted++
				metrics.RecordEtlRecord(string(source), "inserted")
			case r.Failed():
				result.Skipped++
				result.Failed++
				metrics.RecordEtlRecord(string(source), "failed")
			default:
				result.Skipped++
				metrics.RecordEtlRecord(string(source), "skipped")
			}
		}

		if end-lastLogged >= cfg.LogInterval || end == total {
			lastLogged = end
			job.Infof(ctx, "Progress: %d/%d (%d%%) - Inserted: %d, Skipped: %d",
				end, total, end*100/total, result.Inserted, result.Skipped)
		}
	}
	return result, nil
}

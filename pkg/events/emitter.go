// Package events publishes domain changes to Kafka.
package events

import (
	"context"
	"strconv"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/kafka"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// Publisher writes an event to a topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, event *kafka.Event) error
}

// Emitter turns similarity, merge and ETL notifications into events.
// Publish failures are logged and never fail the operation that triggered them.
type Emitter struct {
	publisher Publisher
	logger    ectologger.Logger
}

// NewEmitter creates a new event emitter
func NewEmitter(publisher Publisher, logger ectologger.Logger) *Emitter {
	return &Emitter{
		publisher: publisher,
		logger:    logger,
	}
}

// SimilaritiesReplaced emits similarities.recomputed.
func (e *Emitter) SimilaritiesReplaced(ctx context.Context, gameID int64, edges []models.GameSimilarity) {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.SimilaritiesReplaced")
	defer span.End()

	event := SimilaritiesRecomputedEvent{
		GameID: gameID,
		Type:   models.SimilarityTypePrecomputedTFIDF,
		Edges:  make([]SimilarEdge, 0, len(edges)),
	}
	for _, edge := range edges {
		event.Edges = append(event.Edges, SimilarEdge{SimilarGameID: edge.SimilarGameID, Score: edge.SimilarityScore})
		if edge.ComputedAt.After(event.ComputedAt) {
			event.ComputedAt = edge.ComputedAt
		}
	}

	e.emit(ctx, EventTypeSimilaritiesRecomputed, strconv.FormatInt(gameID, 10), event)
}

// GamesMerged emits games.merged keyed by the surviving game.
func (e *Emitter) GamesMerged(ctx context.Context, result models.MergeResult) {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.GamesMerged")
	defer span.End()

	e.emit(ctx, EventTypeGamesMerged, strconv.FormatInt(result.PrimaryID, 10), GamesMergedEvent{
		PrimaryID:   result.PrimaryID,
		SecondaryID: result.SecondaryID,
		Strategy:    result.Strategy,
		TagsCopied:  result.TagsCopied,
	})
}

// RunCompleted emits etl.completed keyed by the run id.
func (e *Emitter) RunCompleted(ctx context.Context, report models.EtlReport, runErr error) {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.RunCompleted")
	defer span.End()

	event := EtlCompletedEvent{Report: report, Failed: runErr != nil}
	if runErr != nil {
		event.Error = runErr.Error()
	}
	e.emit(ctx, EventTypeEtlCompleted, report.RunID, event)
}

func (e *Emitter) emit(ctx context.Context, eventType EventType, key string, data any) {
	event, err := kafka.NewEvent(string(eventType), key, data)
	if err != nil {
		e.logger.WithContext(ctx).WithError(err).Errorf("Failed to build %s event", eventType)
		return
	}
	if err := e.publisher.Publish(ctx, string(eventType), event); err != nil {
		e.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"event_type": eventType,
			"key":        key,
		}).Warn("Event dropped")
	}
}

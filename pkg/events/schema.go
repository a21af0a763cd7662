package events

import (
	"time"

	"github.com/Ramsey-B/fern/pkg/models"
)

// EventType defines the type of event. It doubles as the topic name.
type EventType string

const (
	EventTypeSimilaritiesRecomputed EventType = "similarities.recomputed"
	EventTypeGamesMerged            EventType = "games.merged"
	EventTypeEtlCompleted           EventType = "etl.completed"
)

// SimilarEdge is one outgoing edge in a SimilaritiesRecomputedEvent.
type SimilarEdge struct {
	SimilarGameID int64   `json:"similar_game_id"`
	Score         float64 `json:"score"`
}

// SimilaritiesRecomputedEvent is emitted after a game's precomputed edges are replaced
type SimilaritiesRecomputedEvent struct {
	GameID     int64                 `json:"game_id"`
	Type       models.SimilarityType `json:"similarity_type"`
	Edges      []SimilarEdge         `json:"edges"`
	ComputedAt time.Time             `json:"computed_at"`
}

// GamesMergedEvent is emitted after a duplicate is absorbed into its primary
type GamesMergedEvent struct {
	PrimaryID   int64                `json:"primary_id"`
	SecondaryID int64                `json:"secondary_id"`
	Strategy    models.MergeStrategy `json:"merge_strategy"`
	TagsCopied  int                  `json:"tags_copied"`
}

// EtlCompletedEvent is emitted when an ingestion run finishes
type EtlCompletedEvent struct {
	Report models.EtlReport `json:"report"`
	Failed bool             `json:"failed"`
	Error  string           `json:"error,omitempty"`
}

package models

import "time"

// SimilarityType is the provenance of a similarity edge.
type SimilarityType string

const (
	SimilarityTypePrecomputedTFIDF SimilarityType = "PRECOMPUTED_TFIDF"
	SimilarityTypeAPIProvided      SimilarityType = "API_PROVIDED"
	SimilarityTypeTagBased         SimilarityType = "TAG_BASED"
)

// GameSimilarity is a directed scored edge. (GameID, SimilarGameID, Type) is unique
// and GameID never equals SimilarGameID.
type GameSimilarity struct {
	ID              int64          `json:"id" db:"id"`
	GameID          int64          `json:"game_id" db:"game_id"`
	SimilarGameID   int64          `json:"similar_game_id" db:"similar_game_id"`
	SimilarityScore float64        `json:"similarity_score" db:"similarity_score"`
	SimilarityType  SimilarityType `json:"similarity_type" db:"similarity_type"`
	ComputedAt      time.Time      `json:"computed_at" db:"computed_at"`
}

// ComputationReport summarizes a corpus-wide similarity recomputation.
type ComputationReport struct {
	Status               string `json:"status"`
	GamesProcessed       int    `json:"games_processed"`
	GamesFailed          int    `json:"games_failed"`
	SimilaritiesComputed int    `json:"similarities_computed"`
	DurationMs           int64  `json:"duration_ms"`
}

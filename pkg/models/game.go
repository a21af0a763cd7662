package models

import (
	"strings"
	"time"
)

// Game is a catalog item. It is created by ingestion, reconciled by the merge
// engine and only removed when it loses a merge.
type Game struct {
	ID                 int64      `json:"id" db:"id"`
	RawgID             *int64     `json:"rawg_id,omitempty" db:"rawg_id"`
	IgdbID             *int64     `json:"igdb_id,omitempty" db:"igdb_id"`
	Name               string     `json:"name" db:"name"`
	Slug               string     `json:"slug" db:"slug"`
	Description        *string    `json:"description,omitempty" db:"description"`
	Rating             *float64   `json:"rating,omitempty" db:"rating"`
	RatingCount        int        `json:"rating_count" db:"rating_count"`
	ReleaseDate        *time.Time `json:"release_date,omitempty" db:"release_date"`
	WebsiteURL         *string    `json:"website_url,omitempty" db:"website_url"`
	BackgroundImageURL *string    `json:"background_image_url,omitempty" db:"background_image_url"`
	CreatedAt          time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at" db:"updated_at"`
}

// HasDescription reports whether the game takes part in content similarity.
func (g *Game) HasDescription() bool {
	return g.Description != nil && strings.TrimSpace(*g.Description) != ""
}

// ReleaseYear returns the release year, or nil when the release date is unknown.
func (g *Game) ReleaseYear() *int {
	if g.ReleaseDate == nil {
		return nil
	}
	year := g.ReleaseDate.Year()
	return &year
}

// CreateGameRequest carries a normalized source record into the store.
type CreateGameRequest struct {
	RawgID             *int64
	IgdbID             *int64
	Name               string `validate:"required"`
	Slug               string `validate:"required"`
	Description        *string
	Rating             *float64 `validate:"omitempty,gte=0,lte=10"`
	RatingCount        int      `validate:"gte=0"`
	ReleaseDate        *time.Time
	WebsiteURL         *string
	BackgroundImageURL *string
}

// SimilarGame is a read model joining a similarity edge with its target game.
type SimilarGame struct {
	GameID             int64          `json:"game_id" db:"game_id"`
	Name               string         `json:"name" db:"name"`
	Slug               string         `json:"slug" db:"slug"`
	Rating             *float64       `json:"rating,omitempty" db:"rating"`
	RatingCount        int            `json:"rating_count" db:"rating_count"`
	ReleaseDate        *time.Time     `json:"release_date,omitempty" db:"release_date"`
	BackgroundImageURL *string        `json:"background_image_url,omitempty" db:"background_image_url"`
	SimilarityScore    float64        `json:"similarity_score" db:"similarity_score"`
	SimilarityType     SimilarityType `json:"similarity_type" db:"similarity_type"`
}

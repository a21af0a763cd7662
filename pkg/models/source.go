package models

// Source names a catalog partition.
type Source string

const (
	SourceRawg Source = "RAWG"
	SourceIgdb Source = "IGDB"
)

// RawgGame is one record of a RAWG catalog export. Rating is on RAWG's 0-5 scale.
type RawgGame struct {
	RawgID          int64    `json:"rawg_id" validate:"required,gt=0"`
	Name            string   `json:"name" validate:"required"`
	Slug            string   `json:"slug"`
	Released        *string  `json:"released,omitempty"`
	Rating          *float64 `json:"rating,omitempty" validate:"omitempty,gte=0"`
	RatingsCount    *int     `json:"ratings_count,omitempty" validate:"omitempty,gte=0"`
	DescriptionRaw  *string  `json:"description_raw,omitempty"`
	BackgroundImage *string  `json:"background_image,omitempty"`
	Website         *string  `json:"website,omitempty"`
	Genres          []string `json:"genres,omitempty"`
	Platforms       []string `json:"platforms,omitempty"`
	Developers      []string `json:"developers,omitempty"`
	Publishers      []string `json:"publishers,omitempty"`
	Tags            []string `json:"tags,omitempty"`
	FetchedAt       *string  `json:"fetched_at,omitempty"`
}

// IgdbGame is one record of an IGDB catalog export. Ratings are on IGDB's 0-100 scale
// and FirstReleaseDate is unix seconds.
type IgdbGame struct {
	IgdbID             int64    `json:"igdb_id" validate:"required,gt=0"`
	Name               string   `json:"name" validate:"required"`
	Slug               string   `json:"slug"`
	Summary            *string  `json:"summary,omitempty"`
	Storyline          *string  `json:"storyline,omitempty"`
	URL                *string  `json:"url,omitempty"`
	CoverURL           *string  `json:"cover_url,omitempty"`
	FirstReleaseDate   *int64   `json:"first_release_date,omitempty"`
	Rating             *float64 `json:"rating,omitempty" validate:"omitempty,gte=0"`
	RatingCount        *int     `json:"rating_count,omitempty" validate:"omitempty,gte=0"`
	TotalRating        *float64 `json:"total_rating,omitempty" validate:"omitempty,gte=0"`
	TotalRatingCount   *int     `json:"total_rating_count,omitempty" validate:"omitempty,gte=0"`
	Genres             []string `json:"genres,omitempty"`
	Platforms          []string `json:"platforms,omitempty"`
	Themes             []string `json:"themes,omitempty"`
	GameModes          []string `json:"game_modes,omitempty"`
	Franchises         []string `json:"franchises,omitempty"`
	Keywords           []string `json:"keywords,omitempty"`
	PlayerPerspectives []string `json:"player_perspectives,omitempty"`
	// SimilarGames holds IGDB ids. Entries that are not integers are ignored.
	SimilarGames       []string `json:"similar_games,omitempty"`
	Developers         []string `json:"developers,omitempty"`
	Publishers         []string `json:"publishers,omitempty"`
	FetchedAt          *string  `json:"fetched_at,omitempty"`
}

// ImportResult counts what one catalog import did.
type ImportResult struct {
	Inserted int `json:"inserted"`
	Skipped  int `json:"skipped"`
	Failed   int `json:"failed"`
}

// IgdbImportResult adds the similar-games references collected for a later phase,
// keyed by the IGDB id of the referencing game.
type IgdbImportResult struct {
	ImportResult
	SimilarGames map[int64][]int64 `json:"-"`
}

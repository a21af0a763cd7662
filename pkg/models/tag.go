package models

import "strings"

// TagCategory is the closed set of tag categories.
type TagCategory string

const (
	TagCategoryGenre             TagCategory = "GENRE"
	TagCategoryTheme             TagCategory = "THEME"
	TagCategoryPlatform          TagCategory = "PLATFORM"
	TagCategoryGameMode          TagCategory = "GAME_MODE"
	TagCategoryFranchise         TagCategory = "FRANCHISE"
	TagCategoryPlayerPerspective TagCategory = "PLAYER_PERSPECTIVE"
	TagCategoryDeveloper         TagCategory = "DEVELOPER"
	TagCategoryPublisher         TagCategory = "PUBLISHER"
	TagCategoryKeyword           TagCategory = "KEYWORD"
)

// TagCategories lists every category in declaration order.
var TagCategories = []TagCategory{
	TagCategoryGenre,
	TagCategoryTheme,
	TagCategoryPlatform,
	TagCategoryGameMode,
	TagCategoryFranchise,
	TagCategoryPlayerPerspective,
	TagCategoryDeveloper,
	TagCategoryPublisher,
	TagCategoryKeyword,
}

// ParseTagCategory accepts either the enum value or its lowercase form.
func ParseTagCategory(s string) (TagCategory, bool) {
	candidate := TagCategory(strings.ToUpper(strings.TrimSpace(s)))
	for _, c := range TagCategories {
		if c == candidate {
			return c, true
		}
	}
	return "", false
}

// Tag is unique by (NormalizedName, Category). Tags are created lazily and never deleted.
type Tag struct {
	ID             int64       `json:"id" db:"id"`
	Name           string      `json:"name" db:"name"`
	NormalizedName string      `json:"normalized_name" db:"normalized_name"`
	Category       TagCategory `json:"category" db:"category"`
}

// GameTag associates a game with a tag. At most one exists per (GameID, TagID).
type GameTag struct {
	GameID int64   `json:"game_id" db:"game_id"`
	TagID  int64   `json:"tag_id" db:"tag_id"`
	Weight float64 `json:"weight" db:"weight"`
}

// TagAssignment is a normalized tag to associate with a game as it is created.
type TagAssignment struct {
	Name           string
	NormalizedName string
	Category       TagCategory
	Weight         float64
}

// TaggedGame is a GameTag joined with its tag, used when building term vectors.
type TaggedGame struct {
	GameID         int64       `db:"game_id"`
	TagID          int64       `db:"tag_id"`
	Weight         float64     `db:"weight"`
	Name           string      `db:"name"`
	NormalizedName string      `db:"normalized_name"`
	Category       TagCategory `db:"category"`
}

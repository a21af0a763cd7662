package etl

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/normalizers"
)

// TagLists holds the raw categorical values of one source record.
type TagLists map[models.TagCategory][]string

// TagExtractor turns raw categorical lists into normalized, weighted tag assignments.
type TagExtractor struct {
	normalizer *normalizers.TagNormalizer
}

// NewTagExtractor creates a TagExtractor.
func NewTagExtractor(normalizer *normalizers.TagNormalizer) *TagExtractor {
	return &TagExtractor{normalizer: normalizer}
}

// Extract returns an assignment for every non-blank value of lists. Categories are
// visited in declaration order and values that normalize to the same tag are
// assigned once.
func (e *TagExtractor) Extract(lists TagLists) ([]models.TagAssignment, error) {
	type tagKey struct {
		normalized string
		category   models.TagCategory
	}
	seen := map[tagKey]bool{}
	var assignments []models.TagAssignment

	for _, category := range models.TagCategories {
		for _, raw := range lists[category] {
			normalized, err := e.normalizer.Normalize(raw)
			if errors.Is(err, normalizers.ErrBlankTagName) {
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("normalize %s tag '%s': %w", category, raw, err)
			}

			key := tagKey{normalized: normalized, category: category}
			if seen[key] {
				continue
			}
			seen[key] = true

			assignments = append(assignments, models.TagAssignment{
				Name:           strings.TrimSpace(raw),
				NormalizedName: normalized,
				Category:       category,
				Weight:         e.normalizer.WeightFor(category),
			})
		}
	}
	return assignments, nil
}

func rawgTagLists(g models.RawgGame) TagLists {
	return TagLists{
		models.TagCategoryGenre:     g.Genres,
		models.TagCategoryPlatform:  g.Platforms,
		models.TagCategoryDeveloper: g.Developers,
		models.TagCategoryPublisher: g.Publishers,
		models.TagCategoryKeyword:   g.Tags,
	}
}

func igdbTagLists(g models.IgdbGame) TagLists {
	return TagLists{
		models.TagCategoryGenre:             g.Genres,
		models.TagCategoryPlatform:          g.Platforms,
		models.TagCategoryTheme:             g.Themes,
		models.TagCategoryGameMode:          g.GameModes,
		models.TagCategoryFranchise:         g.Franchises,
		models.TagCategoryKeyword:           g.Keywords,
		models.TagCategoryPlayerPerspective: g.PlayerPerspectives,
		models.TagCategoryDeveloper:         g.Developers,
		models.TagCategoryPublisher:         g.Publishers,
	}
}

package normalizers

import (
	"errors"
	"maps"
	"strings"

	"github.com/Ramsey-B/fern/pkg/models"
)

// ErrBlankTagName is returned when a tag name is empty after trimming.
var ErrBlankTagName = errors.New("tag name cannot be blank")

// DefaultCategoryWeight applies to categories missing from the weight table.
const DefaultCategoryWeight = 1.0

// TagTables holds the synonym and category weight tables used by a TagNormalizer.
type TagTables struct {
	// Synonyms maps a variant to its canonical key. Keys may be written with spaces;
	// they are normalized the same way input is before lookup.
	Synonyms map[string]string
	// CategoryWeights is the importance of each tag category.
	CategoryWeights map[models.TagCategory]float64
}

// DefaultTagTables returns fresh copies of the built-in tables.
func DefaultTagTables() TagTables {
	return TagTables{
		Synonyms: map[string]string{
			"sci-fi":               "sci-fi",
			"science fiction":      "sci-fi",
			"fps":                  "first-person-shooter",
			"first-person shooter": "first-person-shooter",
			"rpg":                  "role-playing-game",
			"role-playing":         "role-playing-game",
			"action-adventure":     "action-adventure",
			"open world":           "open-world",
		},
		CategoryWeights: map[models.TagCategory]float64{
			models.TagCategoryGenre:             1.00,
			models.TagCategoryTheme:             0.80,
			models.TagCategoryGameMode:          0.67,
			models.TagCategoryPlatform:          0.53,
			models.TagCategoryDeveloper:         0.40,
			models.TagCategoryPublisher:         0.40,
			models.TagCategoryKeyword:           0.67,
			models.TagCategoryFranchise:         0.47,
			models.TagCategoryPlayerPerspective: 0.60,
		},
	}
}

// TagNormalizer canonicalizes raw tag names and weighs tag categories.
// It is immutable after construction and safe for concurrent use.
type TagNormalizer struct {
	synonyms map[string]string
	weights  map[models.TagCategory]float64
}

// NewTagNormalizer copies the given tables into a new normalizer.
func NewTagNormalizer(tables TagTables) *TagNormalizer {
	synonyms := make(map[string]string, len(tables.Synonyms))
	for variant, canonical := range tables.Synonyms {
		synonyms[canonicalize(variant)] = canonicalize(canonical)
	}

	weights := make(map[models.TagCategory]float64, len(tables.CategoryWeights))
	maps.Copy(weights, tables.CategoryWeights)

	return &TagNormalizer{
		synonyms: synonyms,
		weights:  weights,
	}
}

// Normalize lowercases, trims, hyphenates whitespace runs and resolves synonyms.
// Normalize(Normalize(x)) == Normalize(x) as long as every canonical value maps to itself.
func (n *TagNormalizer) Normalize(raw string) (string, error) {
	key := canonicalize(raw)
	if key == "" {
		return "", ErrBlankTagName
	}
	if canonical, ok := n.synonyms[key]; ok {
		return canonical, nil
	}
	return key, nil
}

// WeightFor returns the weight of a category, or DefaultCategoryWeight when unknown.
func (n *TagNormalizer) WeightFor(category models.TagCategory) float64 {
	if weight, ok := n.weights[category]; ok {
		return weight
	}
	return DefaultCategoryWeight
}

func canonicalize(s string) string {
	return Hyphenate(strings.ToLower(s))
}

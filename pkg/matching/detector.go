// Package matching finds games that two catalogs describe twice.
package matching

import (
	"strings"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/normalizers"
)

const (
	DefaultMaxDistance   = 1
	DefaultMinNameLength = 3
)

// DetectorConfig holds the fuzzy name match limits.
type DetectorConfig struct {
	// MaxDistance is the largest edit distance between normalized names that still matches.
	MaxDistance int `koanf:"max_distance" validate:"gte=0"`
	// MinNameLength excludes short normalized names from fuzzy matching.
	MinNameLength int `koanf:"min_name_length" validate:"gte=0"`
}

// DefaultDetectorConfig returns the built-in limits.
func DefaultDetectorConfig() DetectorConfig {
	return DetectorConfig{
		MaxDistance:   DefaultMaxDistance,
		MinNameLength: DefaultMinNameLength,
	}
}

// Detector pairs secondary-source games with the primary-source game they duplicate.
type Detector struct {
	scorer *Scorer
	cfg    DetectorConfig
}

// NewDetector creates a Detector.
func NewDetector(cfg DetectorConfig) *Detector {
	return &Detector{scorer: NewScorer(), cfg: cfg}
}

// Match reports whether secondary duplicates primary and by which strategy. The
// returned distance is the edit distance of the normalized names, or 0 for slug matches.
func (d *Detector) Match(primary, secondary *models.Game) (models.MergeStrategy, int, bool) {
	if d.scorer.ExactMatch(primary.Slug, secondary.Slug, false) == 1.0 {
		return models.MergeStrategyExactSlug, 0, true
	}

	a := normalizers.NormalizeSlug(primary.Name)
	b := normalizers.NormalizeSlug(secondary.Name)
	if len([]rune(a)) < d.cfg.MinNameLength || len([]rune(b)) < d.cfg.MinNameLength {
		return "", 0, false
	}
	if !sameYear(primary.ReleaseYear(), secondary.ReleaseYear()) {
		return "", 0, false
	}

	distance := d.scorer.LevenshteinDistance(a, b)
	if distance > d.cfg.MaxDistance {
		return "", 0, false
	}
	return models.MergeStrategyFuzzyName, distance, true
}

// Detect walks secondaries in order and pairs each with the first unused primary that
// matches it. Only primaries released the same year, or with no release date, are
// compared. A primary is paired at most once.
func (d *Detector) Detect(primaries, secondaries []models.Game) []models.MergeCandidate {
	byYear := make(map[int][]int)
	var undated []int
	for i := range primaries {
		if year := primaries[i].ReleaseYear(); year != nil {
			byYear[*year] = append(byYear[*year], i)
		} else {
			undated = append(undated, i)
		}
	}

	used := make(map[int]bool)
	var candidates []models.MergeCandidate
	for si := range secondaries {
		secondary := &secondaries[si]

		var bucket []int
		if year := secondary.ReleaseYear(); year != nil {
			bucket = append(bucket, byYear[*year]...)
		}
		bucket = append(bucket, undated...)

		for _, pi := range bucket {
			if used[pi] {
				continue
			}
			strategy, distance, ok := d.Match(&primaries[pi], secondary)
			if !ok {
				continue
			}
			used[pi] = true
			candidates = append(candidates, models.MergeCandidate{
				Primary:        primaries[pi],
				Secondary:      *secondary,
				Strategy:       strategy,
				Distance:       distance,
				NameSimilarity: d.scorer.JaroWinkler(strings.ToLower(primaries[pi].Name), strings.ToLower(secondary.Name)),
			})
			break
		}
	}
	return candidates
}

func sameYear(a, b *int) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

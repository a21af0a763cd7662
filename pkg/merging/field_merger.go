package merging

import (
	"fmt"

	"github.com/Ramsey-B/fern/pkg/models"
)

// FieldStrategy names how the primary and secondary values of one attribute combine.
type FieldStrategy string

const (
	// StrategyPreferPrimary keeps the primary value and falls back to the secondary's.
	StrategyPreferPrimary FieldStrategy = "prefer_primary"
	// StrategyAverage is the mean when both are present, otherwise the one present.
	StrategyAverage FieldStrategy = "average"
	// StrategySum adds both values.
	StrategySum FieldStrategy = "sum"
)

// FieldStrategies maps game attributes to their merge strategy.
type FieldStrategies map[string]FieldStrategy

// DefaultFieldStrategies returns the reconciliation rules for games.
func DefaultFieldStrategies() FieldStrategies {
	return FieldStrategies{
		"rawg_id":              StrategyPreferPrimary,
		"igdb_id":              StrategyPreferPrimary,
		"description":          StrategyPreferPrimary,
		"release_date":         StrategyPreferPrimary,
		"rating":               StrategyAverage,
		"rating_count":         StrategySum,
		"website_url":          StrategyPreferPrimary,
		"background_image_url": StrategyPreferPrimary,
	}
}

// FieldMerger handles field-level merge logic
type FieldMerger struct {
	strategies FieldStrategies
}

// NewFieldMerger creates a new FieldMerger
func NewFieldMerger(strategies FieldStrategies) *FieldMerger {
	if strategies == nil {
		strategies = DefaultFieldStrategies()
	}
	return &FieldMerger{strategies: strategies}
}

// Merge returns primary with every configured attribute reconciled against secondary.
// Identity fields (id, name, slug, timestamps) always come from primary.
func (m *FieldMerger) Merge(primary, secondary models.Game) (models.Game, error) {
	merged := primary
	var err error

	if merged.RawgID, err = mergePointer(m.strategy("rawg_id"), primary.RawgID, secondary.RawgID); err != nil {
		return merged, err
	}
	if merged.IgdbID, err = mergePointer(m.strategy("igdb_id"), primary.IgdbID, secondary.IgdbID); err != nil {
		return merged, err
	}
	if merged.Description, err = mergePointer(m.strategy("description"), primary.Description, secondary.Description); err != nil {
		return merged, err
	}
	if merged.ReleaseDate, err = mergePointer(m.strategy("release_date"), primary.ReleaseDate, secondary.ReleaseDate); err != nil {
		return merged, err
	}
	if merged.WebsiteURL, err = mergePointer(m.strategy("website_url"), primary.WebsiteURL, secondary.WebsiteURL); err != nil {
		return merged, err
	}
	if merged.BackgroundImageURL, err = mergePointer(m.strategy("background_image_url"), primary.BackgroundImageURL, secondary.BackgroundImageURL); err != nil {
		return merged, err
	}
	if merged.Rating, err = mergeNumber(m.strategy("rating"), primary.Rating, secondary.Rating); err != nil {
		return merged, err
	}

	count, err := mergeNumber(m.strategy("rating_count"), &primary.RatingCount, &secondary.RatingCount)
	if err != nil {
		return merged, err
	}
	merged.RatingCount = *count

	return merged, nil
}

func (m *FieldMerger) strategy(field string) FieldStrategy {
	if s, ok := m.strategies[field]; ok {
		return s
	}
	return StrategyPreferPrimary
}

// mergePointer combines optional values that have no arithmetic.
func mergePointer[T any](strategy FieldStrategy, primary, secondary *T) (*T, error) {
	if strategy != StrategyPreferPrimary {
		return nil, fmt.Errorf("strategy %s is not supported for this field", strategy)
	}
	if primary != nil {
		return primary, nil
	}
	return secondary, nil
}

func mergeNumber[T int | float64](strategy FieldStrategy, primary, secondary *T) (*T, error) {
	if primary == nil || secondary == nil {
		return mergePointer(StrategyPreferPrimary, primary, secondary)
	}

	var out T
	switch strategy {
	case StrategyPreferPrimary:
		out = *primary
	case StrategyAverage:
		out = (*primary + *secondary) / 2
	case StrategySum:
		out = *primary + *secondary
	default:
		return nil, fmt.Errorf("unknown merge strategy %s", strategy)
	}
	return &out, nil
}

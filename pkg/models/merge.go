package models

// MergeStrategy records why two games were considered the same game.
type MergeStrategy string

const (
	// MergeStrategyExactSlug means the slugs matched ignoring case.
	MergeStrategyExactSlug MergeStrategy = "EXACT_SLUG_MATCH"
	// MergeStrategyFuzzyName means the normalized names were within the edit distance limit
	// and the release years matched.
	MergeStrategyFuzzyName MergeStrategy = "FUZZY_NAME_MATCH"
)

// MergeCandidate is a detected duplicate pair. Primary survives, Secondary is absorbed.
// NameSimilarity is the Jaro-Winkler similarity of the display names, kept for audit.
type MergeCandidate struct {
	Primary        Game          `json:"primary"`
	Secondary      Game          `json:"secondary"`
	Strategy       MergeStrategy `json:"merge_strategy"`
	Distance       int           `json:"distance"`
	NameSimilarity float64       `json:"name_similarity"`
}

// MergePlan is the full set of changes one merge applies. Stores apply it atomically.
type MergePlan struct {
	// Primary holds the reconciled attributes of the surviving game.
	Primary     Game
	SecondaryID int64
}

// MergeResult summarizes an applied merge.
type MergeResult struct {
	PrimaryID   int64         `json:"primary_id"`
	SecondaryID int64         `json:"secondary_id"`
	Strategy    MergeStrategy `json:"merge_strategy"`
	TagsCopied  int           `json:"tags_copied"`
}

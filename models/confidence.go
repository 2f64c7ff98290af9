package models

// ConfidenceCategory is the ordinal label derived from a confidence score.
type ConfidenceCategory string

const (
	ConfidenceVeryLow  ConfidenceCategory = "Very Low"
	ConfidenceLow      ConfidenceCategory = "Low"
	ConfidenceModerate ConfidenceCategory = "Moderate"
	ConfidenceHigh     ConfidenceCategory = "High"
	ConfidenceVeryHigh ConfidenceCategory = "Very High"
)

// ConfidenceCategories lists every category from least to most certain.
var ConfidenceCategories = []ConfidenceCategory{
	ConfidenceVeryLow,
	ConfidenceLow,
	ConfidenceModerate,
	ConfidenceHigh,
	ConfidenceVeryHigh,
}

// CategoryForScore maps a 0-100 confidence score onto its category. This is
// the single threshold table for the whole service; the filter path and the
// labeling path must never diverge from it. Cut points follow the
// predictor's categorizer: 90, 75, 50, 25.
func CategoryForScore(score float64) ConfidenceCategory {
	switch {
	case score >= 90:
		return ConfidenceVeryHigh
	case score >= 75:
		return ConfidenceHigh
	case score >= 50:
		return ConfidenceModerate
	case score >= 25:
		return ConfidenceLow
	default:
		return ConfidenceVeryLow
	}
}

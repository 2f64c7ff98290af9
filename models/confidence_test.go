package models

import (
	"testing"
)

func TestCategoryForScoreCutPoints(t *testing.T) {
	cases := map[float64]ConfidenceCategory{
		100:  ConfidenceVeryHigh,
		92:   ConfidenceVeryHigh,
		90:   ConfidenceVeryHigh,
		89.9: ConfidenceHigh,
		80:   ConfidenceHigh,
		75:   ConfidenceHigh,
		74.9: ConfidenceModerate,
		50:   ConfidenceModerate,
		49.9: ConfidenceLow,
		25:   ConfidenceLow,
		24.9: ConfidenceVeryLow,
		0:    ConfidenceVeryLow,
	}

	for score, want := range cases {
		if got := CategoryForScore(score); got != want {
			t.Errorf("CategoryForScore(%v) = %q, want %q", score, got, want)
		}
	}
}

func TestCategoryForScoreIsDeterministic(t *testing.T) {
	for score := 0.0; score <= 100; score += 0.5 {
		first := CategoryForScore(score)
		for i := 0; i < 3; i++ {
			if got := CategoryForScore(score); got != first {
				t.Fatalf("CategoryForScore(%v) changed between calls: %q then %q", score, first, got)
			}
		}
	}
}

func TestConfidenceCategoriesOrdered(t *testing.T) {
	if len(ConfidenceCategories) != 5 {
		t.Fatalf("expected 5 categories, got %d", len(ConfidenceCategories))
	}
	if ConfidenceCategories[0] != ConfidenceVeryLow || ConfidenceCategories[4] != ConfidenceVeryHigh {
		t.Fatalf("categories not ordered least to most certain: %v", ConfidenceCategories)
	}
}

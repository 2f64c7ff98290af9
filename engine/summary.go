package engine

import (
	"encoding/json"
	"fmt"
	"sort"

	"propflow/models"
)

const (
	// featuredMinScore is the confidence floor a record must clear to
	// appear in a summary's featured picks.
	featuredMinScore = 80.0
	// featuredCap bounds how many featured picks a summary carries.
	featuredCap = 3
)

// Summarize computes the aggregate view over a full snapshot. Confidence
// buckets are derived from scores through the canonical threshold table, not
// read off the records, and every record lands in exactly one bucket: the
// breakdown always sums to TotalPredictions. Both breakdowns carry all of
// their keys so the response shape does not shift between snapshots.
func Summarize(snap *models.Snapshot) models.Summary {
	summary := models.Summary{
		TotalPredictions:    len(snap.Records),
		SportBreakdown:      make(map[string]int, len(models.KnownSports)),
		ConfidenceBreakdown: make(map[models.ConfidenceCategory]int, len(models.ConfidenceCategories)),
		LastUpdated:         snap.PublishedAt,
	}

	for _, sport := range models.KnownSports {
		summary.SportBreakdown[sport] = 0
	}
	for _, cat := range models.ConfidenceCategories {
		summary.ConfidenceBreakdown[cat] = 0
	}

	featured := make([]models.PredictionRecord, 0, featuredCap)
	for _, rec := range snap.Records {
		summary.SportBreakdown[rec.Sport]++
		summary.ConfidenceBreakdown[models.CategoryForScore(rec.ConfidenceScore)]++
		if rec.ConfidenceScore >= featuredMinScore {
			featured = append(featured, rec)
		}
	}

	sort.SliceStable(featured, func(i, j int) bool {
		return featured[i].ConfidenceScore > featured[j].ConfidenceScore
	})
	if len(featured) > featuredCap {
		featured = featured[:featuredCap]
	}
	summary.FeaturedPredictions = featured

	return summary
}

// ValidatePerformance checks that raw is a structurally complete performance
// report from the external monitoring process. The report is served to
// clients byte-for-byte, so only its shape is inspected here; new metric
// names inside the sections flow through without a service change.
func ValidatePerformance(raw []byte) error {
	var report models.PerformanceReport
	if err := json.Unmarshal(raw, &report); err != nil {
		return fmt.Errorf("performance report is not a valid report document: %w", err)
	}
	if report.Overall == nil {
		return fmt.Errorf("performance report missing overall section")
	}
	if report.BySport == nil {
		return fmt.Errorf("performance report missing by_sport section")
	}
	if report.ByConfidence == nil {
		return fmt.Errorf("performance report missing by_confidence section")
	}
	if report.Trend == nil {
		return fmt.Errorf("performance report missing trend section")
	}
	return nil
}

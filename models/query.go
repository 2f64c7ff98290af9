package models

import (
	"time"
)

// QueryFilter holds the optional predicates of a list query. Zero values
// mean "no constraint"; active predicates are combined with AND.
//
// Date matches the calendar day of a record's GameTime in UTC. The predictor
// schedules and keys everything in UTC, so a game that tips off late evening
// US time belongs to the following UTC day.
type QueryFilter struct {
	Sport         string
	Date          time.Time
	MinConfidence float64
	Stat          string
	Team          string
	Player        string
}

// Empty reports whether no predicate is active.
func (f QueryFilter) Empty() bool {
	return f.Sport == "" && f.Date.IsZero() && f.MinConfidence <= 0 &&
		f.Stat == "" && f.Team == "" && f.Player == ""
}

// SortField identifies the key a list query is ordered by.
type SortField string

const (
	SortByConfidence     SortField = "confidence"
	SortByGameTime       SortField = "gameTime"
	SortByPlayer         SortField = "player"
	SortByLine           SortField = "line"
	SortByPredictedValue SortField = "predictedValue"
)

// SortDirection is the requested ordering direction.
type SortDirection string

const (
	SortAsc  SortDirection = "asc"
	SortDesc SortDirection = "desc"
)

// SortSpec pairs a sort field with a direction.
type SortSpec struct {
	Field     SortField
	Direction SortDirection
}

// DefaultSort is the ordering used when a query does not specify one, or
// specifies one the service does not recognise.
func DefaultSort() SortSpec {
	return SortSpec{Field: SortByConfidence, Direction: SortDesc}
}

// PageRequest selects one page of an ordered result. Page is 1-based.
type PageRequest struct {
	Page  int
	Limit int
}

// PageResult is one page of a filtered, ordered query along with the
// pagination arithmetic the presentation layer renders controls from.
type PageResult struct {
	Items      []PredictionRecord `json:"predictions"`
	Total      int                `json:"total"`
	Page       int                `json:"page"`
	Limit      int                `json:"limit"`
	TotalPages int                `json:"totalPages"`
}

// Summary is the cross-cutting aggregate view over the full snapshot.
type Summary struct {
	TotalPredictions    int                        `json:"totalPredictions"`
	SportBreakdown      map[string]int             `json:"sportBreakdown"`
	ConfidenceBreakdown map[ConfidenceCategory]int `json:"confidenceBreakdown"`
	FeaturedPredictions []PredictionRecord         `json:"featuredPredictions"`
	LastUpdated         time.Time                  `json:"lastUpdated"`
}

// PerformanceReport mirrors the monitoring process's report shape. It exists
// only so the shape of an incoming report can be checked; the stored and
// served document is the raw payload, untouched.
type PerformanceReport struct {
	GeneratedAt  time.Time                     `json:"generated_at"`
	Overall      map[string]float64            `json:"overall"`
	BySport      map[string]map[string]float64 `json:"by_sport"`
	ByConfidence map[string]map[string]float64 `json:"by_confidence"`
	Trend        []map[string]any              `json:"trend"`
}

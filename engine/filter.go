package engine

import (
	"strings"
	"time"

	"propflow/models"
)

// Filter returns the records satisfying every predicate set on f, preserving
// their original relative order. Predicates are combined with AND; a zero
// predicate never excludes anything. The input slice is not modified.
func Filter(records []models.PredictionRecord, f models.QueryFilter) []models.PredictionRecord {
	out := make([]models.PredictionRecord, 0, len(records))
	for _, rec := range records {
		if matchesFilter(rec, f) {
			out = append(out, rec)
		}
	}
	return out
}

func matchesFilter(rec models.PredictionRecord, f models.QueryFilter) bool {
	if f.Sport != "" && rec.Sport != f.Sport {
		return false
	}
	if !f.Date.IsZero() && !sameUTCDay(rec.GameTime, f.Date) {
		return false
	}
	if f.MinConfidence > 0 && rec.ConfidenceScore < f.MinConfidence {
		return false
	}
	if f.Stat != "" && rec.Stat != f.Stat {
		return false
	}
	if f.Team != "" && rec.Team != f.Team && rec.Opponent != f.Team {
		return false
	}
	if f.Player != "" && !strings.Contains(strings.ToLower(rec.Player), strings.ToLower(f.Player)) {
		return false
	}
	return true
}

// sameUTCDay reports whether two instants fall on the same UTC calendar day.
// Game times are stored as instants, so a tip-off late in a US evening can
// belong to the following UTC day.
func sameUTCDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}

package engine

import (
	"sort"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"propflow/models"
)

// Sort returns a new slice holding records ordered by spec. The sort is
// stable, so records comparing equal on the key keep their input order and
// repeated queries over one snapshot paginate identically. The input slice
// is not modified.
func Sort(records []models.PredictionRecord, spec models.SortSpec) []models.PredictionRecord {
	spec = normalizeSort(spec)

	out := make([]models.PredictionRecord, len(records))
	copy(out, records)

	cmp := comparatorFor(spec.Field)
	desc := spec.Direction == models.SortDesc

	sort.SliceStable(out, func(i, j int) bool {
		c := cmp(out[i], out[j])
		if desc {
			return c > 0
		}
		return c < 0
	})
	return out
}

// normalizeSort substitutes defaults for values the service does not
// recognise. An unknown field discards the whole spec in favour of the
// default ordering; an unknown direction keeps the field and falls back to
// descending. Queries never fail on a bad sort parameter.
func normalizeSort(spec models.SortSpec) models.SortSpec {
	switch spec.Field {
	case models.SortByConfidence, models.SortByGameTime, models.SortByPlayer,
		models.SortByLine, models.SortByPredictedValue:
	default:
		return models.DefaultSort()
	}

	if spec.Direction != models.SortAsc && spec.Direction != models.SortDesc {
		spec.Direction = models.SortDesc
	}
	return spec
}

// comparatorFor returns the ascending three-way comparison for a sort field.
// Player names compare under English collation rather than raw bytes, so
// accented names file where a reader expects them. The collator is built per
// call because collate.Collator is not safe for concurrent use.
func comparatorFor(field models.SortField) func(a, b models.PredictionRecord) int {
	switch field {
	case models.SortByGameTime:
		return func(a, b models.PredictionRecord) int {
			return a.GameTime.Compare(b.GameTime)
		}
	case models.SortByPlayer:
		col := collate.New(language.English)
		return func(a, b models.PredictionRecord) int {
			return col.CompareString(a.Player, b.Player)
		}
	case models.SortByLine:
		return func(a, b models.PredictionRecord) int {
			return compareFloats(a.Line, b.Line)
		}
	case models.SortByPredictedValue:
		return func(a, b models.PredictionRecord) int {
			return compareFloats(a.PredictedValue, b.PredictedValue)
		}
	default:
		return func(a, b models.PredictionRecord) int {
			return compareFloats(a.ConfidenceScore, b.ConfidenceScore)
		}
	}
}

func compareFloats(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

package engine

import (
	"propflow/models"
)

// Paginate slices one page out of an already filtered and ordered sequence.
// Pages are 1-based; a page past the end yields an empty page while Total and
// TotalPages still describe the full sequence. TotalPages never drops below
// one, even for an empty sequence, so clients can always render a pager.
func Paginate(records []models.PredictionRecord, page models.PageRequest) models.PageResult {
	p := page.Page
	if p < 1 {
		p = 1
	}
	limit := page.Limit
	if limit < 1 {
		limit = 1
	}

	total := len(records)
	totalPages := total / limit
	if total%limit != 0 || totalPages == 0 {
		totalPages++
	}

	start := (p - 1) * limit
	if start < 0 || start > total {
		start = total
	}
	end := start + limit
	if end > total || end < start {
		end = total
	}

	items := make([]models.PredictionRecord, end-start)
	copy(items, records[start:end])

	return models.PageResult{
		Items:      items,
		Total:      total,
		Page:       p,
		Limit:      limit,
		TotalPages: totalPages,
	}
}

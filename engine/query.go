// Package engine implements the deterministic query pipeline over published
// prediction snapshots: filtering, ordering, pagination, and aggregation.
// Filter, Sort, and Paginate are pure functions over record slices; Service
// binds them to the store so every query runs against exactly one snapshot.
package engine

import (
	"errors"
	"time"

	"propflow/logger"
	"propflow/models"
	"propflow/store"
)

// ErrNoPerformanceReport is returned by Performance before the first
// monitoring report has been ingested.
var ErrNoPerformanceReport = errors.New("no performance report available")

// Service answers read queries against the store's current snapshot. The
// snapshot pointer is fetched once per call, so a publish landing mid-query
// can never mix two snapshot generations inside one response.
type Service struct {
	store *store.Store
	log   *logger.Log
}

// NewService returns a query service bound to st.
func NewService(st *store.Store) *Service {
	return &Service{
		store: st,
		log:   logger.GetLogger(),
	}
}

// List runs the query pipeline in its fixed order: filter, then sort, then
// paginate. Total and TotalPages describe the filtered set, never the page.
func (s *Service) List(filter models.QueryFilter, sortSpec models.SortSpec, page models.PageRequest) models.PageResult {
	snap := s.store.Snapshot()
	start := time.Now()

	matched := Filter(snap.Records, filter)
	ordered := Sort(matched, sortSpec)
	result := Paginate(ordered, page)

	s.log.WithComponent("query").WithFields(logger.Fields{
		"snapshot_version": snap.Version,
		"total":            result.Total,
		"page":             result.Page,
		"limit":            result.Limit,
		"returned":         len(result.Items),
		"duration_ms":      time.Since(start).Milliseconds(),
	}).Debug("list query served")

	return result
}

// Summary aggregates over the full current snapshot. Filters never apply
// here; the summary describes everything the service knows right now.
func (s *Service) Summary() models.Summary {
	return Summarize(s.store.Snapshot())
}

// Performance returns the latest raw monitoring report and when it was
// fetched.
func (s *Service) Performance() ([]byte, time.Time, error) {
	raw, fetchedAt, ok := s.store.Performance()
	if !ok {
		return nil, time.Time{}, ErrNoPerformanceReport
	}
	return raw, fetchedAt, nil
}

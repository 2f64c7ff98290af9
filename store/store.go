// Package store owns the published prediction snapshot. Queries read the
// current snapshot without locking; each ingestion cycle replaces it wholesale
// with an atomic pointer swap, so an in-flight query sees either the old or
// the new snapshot in full, never a mixture.
package store

import (
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"propflow/logger"
	"propflow/models"
)

// Store holds the current prediction snapshot, the latest raw performance
// report, and the diff produced by the most recent publish.
type Store struct {
	current  atomic.Pointer[models.Snapshot]
	perf     atomic.Pointer[perfDocument]
	lastDiff atomic.Pointer[models.SnapshotDiff]
	log      *logger.Log
}

type perfDocument struct {
	raw       []byte
	fetchedAt time.Time
}

// New returns a store publishing an empty snapshot so queries are serveable
// before the first ingestion cycle completes.
func New() *Store {
	s := &Store{log: logger.GetLogger()}
	s.current.Store(&models.Snapshot{
		Version:     uuid.NewString(),
		PublishedAt: time.Now().UTC(),
		Records:     []models.PredictionRecord{},
	})
	return s
}

// Snapshot returns the currently published snapshot. The snapshot and its
// records are read-only; callers must never modify them.
func (s *Store) Snapshot() *models.Snapshot {
	return s.current.Load()
}

// Publish replaces the current snapshot with a new one holding records. The
// slice is copied so the caller keeps no handle into published state.
func (s *Store) Publish(records []models.PredictionRecord) *models.Snapshot {
	copied := make([]models.PredictionRecord, len(records))
	copy(copied, records)

	snap := &models.Snapshot{
		Version:     uuid.NewString(),
		PublishedAt: time.Now().UTC(),
		Records:     copied,
	}
	s.current.Store(snap)

	logger.IncrementSnapshotPublish(len(copied))
	s.log.WithComponent("snapshot_store").WithFields(logger.Fields{
		"version": snap.Version,
		"records": len(copied),
	}).Info("published prediction snapshot")

	return snap
}

// RecordDiff stores the diff computed for the most recent publish.
func (s *Store) RecordDiff(diff models.SnapshotDiff) {
	s.lastDiff.Store(&diff)
}

// LastDiff returns the diff of the most recent publish, if any.
func (s *Store) LastDiff() (models.SnapshotDiff, bool) {
	d := s.lastDiff.Load()
	if d == nil {
		return models.SnapshotDiff{}, false
	}
	return *d, true
}

// PublishPerformance stores a validated raw performance report. The bytes are
// copied; the served document is exactly what was stored.
func (s *Store) PublishPerformance(raw []byte, fetchedAt time.Time) {
	copied := make([]byte, len(raw))
	copy(copied, raw)
	s.perf.Store(&perfDocument{raw: copied, fetchedAt: fetchedAt})

	s.log.WithComponent("snapshot_store").WithFields(logger.Fields{
		"bytes":      len(copied),
		"fetched_at": fetchedAt,
	}).Info("published performance report")
}

// Performance returns the latest raw performance report and its fetch time.
// ok is false when no report has been ingested yet.
func (s *Store) Performance() (raw []byte, fetchedAt time.Time, ok bool) {
	doc := s.perf.Load()
	if doc == nil {
		return nil, time.Time{}, false
	}
	return doc.raw, doc.fetchedAt, true
}

// Stats summarises the store for health and ops endpoints.
type Stats struct {
	Version       string    `json:"version"`
	PublishedAt   time.Time `json:"published_at"`
	Records       int       `json:"records"`
	HasPerfReport bool      `json:"has_perf_report"`
}

func (s *Store) Stats() Stats {
	snap := s.Snapshot()
	_, _, hasPerf := s.Performance()
	return Stats{
		Version:       snap.Version,
		PublishedAt:   snap.PublishedAt,
		Records:       len(snap.Records),
		HasPerfReport: hasPerf,
	}
}

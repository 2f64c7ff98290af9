// Package mirror keeps the published snapshot queryable from Redis so
// consumers outside this process read predictions without hitting the API.
package mirror

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"propflow/config"
	"propflow/engine"
	"propflow/internal/channel"
	"propflow/logger"
	"propflow/models"
)

const (
	keyLatest      = "predictions:latest"
	keySportPrefix = "predictions:latest:"
	keySummary     = "predictions:summary"

	defaultTTL          = 5 * time.Minute
	defaultStream       = "predictions.updates"
	defaultStreamMaxLen = 1024
	writeTimeout        = 5 * time.Second
)

// Mirror consumes snapshot updates and writes them to Redis with TTLs plus a
// capped update stream. Redis being down never affects the serving path;
// failures are logged and counted.
type Mirror struct {
	config   *config.Config
	channels *channel.Channels
	client   *redis.Client
	ctx      context.Context
	wg       *sync.WaitGroup
	mu       sync.RWMutex
	running  bool
	log      *logger.Log

	updatesMirrored int64
	writeFails      int64
}

// MirrorStats is a point-in-time view of mirror counters.
type MirrorStats struct {
	UpdatesMirrored int64 `json:"updates_mirrored"`
	WriteFails      int64 `json:"write_fails"`
}

func NewMirror(cfg *config.Config, chans *channel.Channels) *Mirror {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Mirror.Address,
		Password: cfg.Mirror.Password,
		DB:       cfg.Mirror.DB,
	})

	m := &Mirror{
		config:   cfg,
		channels: chans,
		client:   client,
		wg:       &sync.WaitGroup{},
		log:      logger.GetLogger(),
	}

	m.log.WithComponent("mirror").WithFields(logger.Fields{
		"address": cfg.Mirror.Address,
		"db":      cfg.Mirror.DB,
		"stream":  m.streamName(),
	}).Info("redis mirror initialized")

	return m
}

func (m *Mirror) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return fmt.Errorf("mirror already running")
	}
	m.running = true
	m.ctx = ctx
	m.mu.Unlock()

	log := m.log.WithComponent("mirror").WithFields(logger.Fields{"operation": "start"})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	if err := m.client.Ping(pingCtx).Err(); err != nil {
		log.WithError(err).Warn("redis unreachable, mirror will keep retrying per update")
	}
	cancel()

	m.wg.Add(1)
	go m.worker()

	go m.metricsReporter(ctx)

	log.Info("mirror started successfully")
	return nil
}

func (m *Mirror) Stop() {
	m.mu.Lock()
	m.running = false
	m.mu.Unlock()

	m.log.WithComponent("mirror").Info("stopping mirror")
	m.wg.Wait()
	if err := m.client.Close(); err != nil {
		m.log.WithComponent("mirror").WithError(err).Warn("failed to close redis client")
	}
	m.log.WithComponent("mirror").Info("mirror stopped")
}

// Stats returns current mirror counters.
func (m *Mirror) Stats() MirrorStats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return MirrorStats{
		UpdatesMirrored: m.updatesMirrored,
		WriteFails:      m.writeFails,
	}
}

func (m *Mirror) worker() {
	defer m.wg.Done()

	log := m.log.WithComponent("mirror").WithFields(logger.Fields{"worker": "mirror"})
	log.Info("starting mirror worker")

	for {
		select {
		case <-m.ctx.Done():
			log.Info("worker stopped due to context cancellation")
			return
		case update, ok := <-m.channels.Updates:
			if !ok {
				log.Info("updates channel closed, worker stopping")
				return
			}
			m.mirrorUpdate(update)
		}
	}
}

func (m *Mirror) mirrorUpdate(update models.SnapshotUpdate) {
	start := time.Now()
	snap := update.Snapshot

	log := m.log.WithComponent("mirror").WithFields(logger.Fields{
		"version":   snap.Version,
		"records":   len(snap.Records),
		"operation": "mirror_update",
	})

	snapPayload, err := json.Marshal(snap)
	if err != nil {
		m.incrementFails()
		log.WithError(err).Error("failed to marshal snapshot")
		return
	}
	summaryPayload, err := json.Marshal(engine.Summarize(snap))
	if err != nil {
		m.incrementFails()
		log.WithError(err).Error("failed to marshal summary")
		return
	}
	sportPayloads, err := sportPayloads(m.config.Ingest.Feeds.Sports, snap.Records)
	if err != nil {
		m.incrementFails()
		log.WithError(err).Error("failed to marshal per-sport records")
		return
	}

	ttl := m.config.Mirror.TTL
	if ttl <= 0 {
		ttl = defaultTTL
	}

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(m.ctx), writeTimeout)
	defer cancel()

	pipe := m.client.Pipeline()
	pipe.Set(writeCtx, keyLatest, snapPayload, ttl)
	pipe.Set(writeCtx, keySummary, summaryPayload, ttl)
	written := len(snapPayload) + len(summaryPayload)
	for sport, payload := range sportPayloads {
		pipe.Set(writeCtx, keySportPrefix+sport, payload, ttl)
		written += len(payload)
	}
	pipe.XAdd(writeCtx, &redis.XAddArgs{
		Stream: m.streamName(),
		MaxLen: m.streamMaxLen(),
		Approx: true,
		Values: streamValues(snap, update.Diff),
	})

	if _, err := pipe.Exec(writeCtx); err != nil {
		m.incrementFails()
		log.WithError(err).Error("failed to mirror snapshot to redis")
		return
	}

	m.mu.Lock()
	m.updatesMirrored++
	m.mu.Unlock()

	logger.IncrementMirrorWrite(written)
	logger.LogPerformanceEntry(log, "mirror", "mirror_update", time.Since(start), logger.Fields{
		"bytes": written,
	})
	logger.LogDataFlowEntry(log, "updates_channel", "redis", len(snap.Records), "prediction_records")
}

func (m *Mirror) incrementFails() {
	m.mu.Lock()
	m.writeFails++
	m.mu.Unlock()
}

func (m *Mirror) streamName() string {
	if m.config.Mirror.Stream != "" {
		return m.config.Mirror.Stream
	}
	return defaultStream
}

func (m *Mirror) streamMaxLen() int64 {
	if m.config.Mirror.StreamMaxLen > 0 {
		return m.config.Mirror.StreamMaxLen
	}
	return defaultStreamMaxLen
}

// sportPayloads marshals the snapshot's records into one JSON array per
// configured sport. Sports without records this snapshot get an explicit
// empty array so stale mirror keys are overwritten, not left to expire.
func sportPayloads(sports []string, records []models.PredictionRecord) (map[string][]byte, error) {
	grouped := make(map[string][]models.PredictionRecord, len(sports))
	for _, sport := range sports {
		grouped[sport] = make([]models.PredictionRecord, 0)
	}
	for _, rec := range records {
		if _, ok := grouped[rec.Sport]; !ok {
			grouped[rec.Sport] = make([]models.PredictionRecord, 0)
		}
		grouped[rec.Sport] = append(grouped[rec.Sport], rec)
	}

	payloads := make(map[string][]byte, len(grouped))
	for sport, recs := range grouped {
		payload, err := json.Marshal(recs)
		if err != nil {
			return nil, fmt.Errorf("marshaling %s records: %w", sport, err)
		}
		payloads[sport] = payload
	}
	return payloads, nil
}

// streamValues builds the compact stream entry describing one publish.
func streamValues(snap *models.Snapshot, diff models.SnapshotDiff) map[string]interface{} {
	return map[string]interface{}{
		"version":      snap.Version,
		"published_at": snap.PublishedAt.Format(time.RFC3339),
		"records":      len(snap.Records),
		"added":        diff.Added,
		"removed":      diff.Removed,
		"changed":      diff.Changed,
		"unchanged":    diff.Unchanged,
	}
}

func (m *Mirror) metricsReporter(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.reportMetrics()
		}
	}
}

func (m *Mirror) reportMetrics() {
	stats := m.Stats()

	m.log.LogMetric("mirror", "updates_mirrored", stats.UpdatesMirrored, "counter", logger.Fields{})
	m.log.LogMetric("mirror", "write_fails", stats.WriteFails, "counter", logger.Fields{})

	m.log.WithComponent("mirror").WithFields(logger.Fields{
		"updates_mirrored":    stats.UpdatesMirrored,
		"write_fails":         stats.WriteFails,
		"updates_channel_len": len(m.channels.Updates),
		"updates_channel_cap": cap(m.channels.Updates),
	}).Info("mirror metrics")
}

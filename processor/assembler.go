package processor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"propflow/config"
	"propflow/internal/channel"
	"propflow/logger"
	"propflow/models"
	"propflow/store"
)

// Assembler collects the record batches of one ingest cycle and publishes
// them as a single snapshot. A cycle closes when every configured sport has
// delivered a batch or when the cycle timeout lapses; sports that miss a
// cycle keep the records they contributed to the previous snapshot.
//
// The assembler is the only writer to the store. Performance reports flow
// through it for the same reason.
type Assembler struct {
	config   *config.Config
	channels *channel.Channels
	store    *store.Store
	ctx      context.Context
	wg       *sync.WaitGroup
	mu       sync.RWMutex
	running  bool
	log      *logger.Log

	pending    map[string]models.RecordBatch
	current    map[string][]models.PredictionRecord
	prevHashes map[string]uint64
	cycleStart time.Time

	batchesConsumed    int64
	batchesIgnored     int64
	snapshotsPublished int64
	reportsApplied     int64
}

func NewAssembler(cfg *config.Config, chans *channel.Channels, st *store.Store) *Assembler {
	return &Assembler{
		config:     cfg,
		channels:   chans,
		store:      st,
		wg:         &sync.WaitGroup{},
		log:        logger.GetLogger(),
		pending:    make(map[string]models.RecordBatch),
		current:    make(map[string][]models.PredictionRecord),
		prevHashes: make(map[string]uint64),
	}
}

func (a *Assembler) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return fmt.Errorf("assembler already running")
	}
	a.running = true
	a.ctx = ctx
	a.mu.Unlock()

	log := a.log.WithComponent("assembler").WithFields(logger.Fields{"operation": "start"})
	log.WithFields(logger.Fields{
		"sports":        a.config.Ingest.Feeds.Sports,
		"cycle_timeout": a.config.Ingest.CycleTimeout.String(),
	}).Info("starting snapshot assembler")

	a.wg.Add(1)
	go a.run()

	go a.metricsReporter(ctx)

	log.Info("assembler started successfully")
	return nil
}

func (a *Assembler) Stop() {
	a.mu.Lock()
	a.running = false
	a.mu.Unlock()

	a.log.WithComponent("assembler").Info("stopping assembler")
	a.wg.Wait()
	a.log.WithComponent("assembler").Info("assembler stopped")
}

func (a *Assembler) run() {
	defer a.wg.Done()

	log := a.log.WithComponent("assembler")

	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-a.ctx.Done():
			log.Info("assembler stopped due to context cancellation")
			return
		case batch, ok := <-a.channels.Batches:
			if !ok {
				log.Info("batches channel closed, assembler stopping")
				return
			}
			a.acceptBatch(batch)
		case report, ok := <-a.channels.Reports:
			if !ok {
				log.Info("reports channel closed, assembler stopping")
				return
			}
			a.applyReport(report)
		case <-ticker.C:
			a.checkCycleTimeout()
		}
	}
}

func (a *Assembler) acceptBatch(batch models.RecordBatch) {
	// A feed envelope can carry any known sport, including one this
	// deployment does not ingest. Such a batch must neither count toward
	// cycle completion nor park records that no snapshot will ever carry.
	if !a.sportEnabled(batch.Sport) {
		a.mu.Lock()
		a.batchesIgnored++
		a.mu.Unlock()

		a.log.WithComponent("assembler").WithFields(logger.Fields{
			"batch_id": batch.BatchID,
			"sport":    batch.Sport,
			"records":  len(batch.Records),
		}).Warn("batch carries a sport not enabled for ingest, ignoring")
		return
	}

	a.mu.Lock()
	if len(a.pending) == 0 {
		a.cycleStart = time.Now()
	}
	// A newer batch for the same sport within one cycle wins outright.
	a.pending[batch.Sport] = batch
	a.batchesConsumed++
	complete := len(a.pending) >= len(a.config.Ingest.Feeds.Sports)
	a.mu.Unlock()

	a.log.WithComponent("assembler").WithFields(logger.Fields{
		"batch_id": batch.BatchID,
		"sport":    batch.Sport,
		"records":  len(batch.Records),
		"rejected": batch.Rejected,
	}).Debug("batch accepted into cycle")

	if complete {
		a.publishSnapshot("cycle_complete")
	}
}

func (a *Assembler) checkCycleTimeout() {
	a.mu.RLock()
	open := len(a.pending) > 0
	expired := open && time.Since(a.cycleStart) >= a.config.Ingest.CycleTimeout
	a.mu.RUnlock()

	if expired {
		a.publishSnapshot("cycle_timeout")
	}
}

func (a *Assembler) sportEnabled(sport string) bool {
	for _, enabled := range a.config.Ingest.Feeds.Sports {
		if sport == enabled {
			return true
		}
	}
	return false
}

// publishSnapshot folds the pending batches into the per-sport record sets,
// concatenates them in configured sport order and publishes the result.
func (a *Assembler) publishSnapshot(reason string) {
	start := time.Now()

	a.mu.Lock()
	for sport, batch := range a.pending {
		a.current[sport] = batch.Records
	}

	total := 0
	for _, records := range a.current {
		total += len(records)
	}
	records := make([]models.PredictionRecord, 0, total)
	sportCounts := logger.Fields{}
	for _, sport := range a.config.Ingest.Feeds.Sports {
		records = append(records, a.current[sport]...)
		sportCounts[sport] = len(a.current[sport])
	}

	diff, hashes := a.diffRecords(records)
	a.prevHashes = hashes
	a.pending = make(map[string]models.RecordBatch)
	a.cycleStart = time.Time{}
	a.snapshotsPublished++
	a.mu.Unlock()

	snapshot := a.store.Publish(records)
	a.store.RecordDiff(diff)

	update := models.SnapshotUpdate{Snapshot: snapshot, Diff: diff}
	log := a.log.WithComponent("assembler")
	if !a.channels.SendUpdate(a.ctx, update) {
		log.Warn("updates channel is full, dropping snapshot update")
	}
	if !a.channels.SendArchive(a.ctx, update) {
		log.Warn("archive channel is full, dropping snapshot update")
	}

	logger.LogPerformanceEntry(log, "assembler", "publish_snapshot", time.Since(start), logger.Fields{
		"version": snapshot.Version,
		"records": len(records),
	})
	log.WithFields(logger.Fields{
		"version":      snapshot.Version,
		"reason":       reason,
		"records":      len(records),
		"sport_counts": sportCounts,
		"added":        diff.Added,
		"removed":      diff.Removed,
		"changed":      diff.Changed,
		"unchanged":    diff.Unchanged,
	}).Info("snapshot published")
	logger.LogDataFlowEntry(log, "batches_channel", "store", len(records), "prediction_records")
}

// diffRecords compares the outgoing snapshot against the previous one by
// record ID and content hash. Caller holds the lock.
func (a *Assembler) diffRecords(records []models.PredictionRecord) (models.SnapshotDiff, map[string]uint64) {
	diff := models.SnapshotDiff{}
	hashes := make(map[string]uint64, len(records))

	for _, rec := range records {
		h := rec.ContentHash()
		hashes[rec.ID] = h

		prev, existed := a.prevHashes[rec.ID]
		switch {
		case !existed:
			diff.Added++
		case prev != h:
			diff.Changed++
		default:
			diff.Unchanged++
		}
	}
	for id := range a.prevHashes {
		if _, still := hashes[id]; !still {
			diff.Removed++
		}
	}

	return diff, hashes
}

func (a *Assembler) applyReport(report models.PerformanceUpdate) {
	a.store.PublishPerformance(report.Raw, report.FetchedAt)

	a.mu.Lock()
	a.reportsApplied++
	a.mu.Unlock()

	log := a.log.WithComponent("assembler")
	log.WithFields(logger.Fields{
		"source":     report.Source,
		"size_bytes": len(report.Raw),
		"fetched_at": report.FetchedAt.Format(time.RFC3339),
	}).Info("performance report applied")
	logger.LogDataFlowEntry(log, "reports_channel", "store", 1, "performance_report")
}

func (a *Assembler) metricsReporter(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.reportMetrics()
		}
	}
}

func (a *Assembler) reportMetrics() {
	a.mu.RLock()
	batchesConsumed := a.batchesConsumed
	batchesIgnored := a.batchesIgnored
	snapshotsPublished := a.snapshotsPublished
	reportsApplied := a.reportsApplied
	pendingSports := len(a.pending)
	a.mu.RUnlock()

	a.log.LogMetric("assembler", "batches_consumed", batchesConsumed, "counter", logger.Fields{})
	a.log.LogMetric("assembler", "batches_ignored", batchesIgnored, "counter", logger.Fields{})
	a.log.LogMetric("assembler", "snapshots_published", snapshotsPublished, "counter", logger.Fields{})
	a.log.LogMetric("assembler", "reports_applied", reportsApplied, "counter", logger.Fields{})
	a.log.LogMetric("assembler", "pending_sports", pendingSports, "gauge", logger.Fields{})

	a.log.WithComponent("assembler").WithFields(logger.Fields{
		"batches_consumed":    batchesConsumed,
		"batches_ignored":     batchesIgnored,
		"snapshots_published": snapshotsPublished,
		"reports_applied":     reportsApplied,
		"pending_sports":      pendingSports,
		"batches_channel_len": len(a.channels.Batches),
		"batches_channel_cap": cap(a.channels.Batches),
	}).Info("assembler metrics")
}

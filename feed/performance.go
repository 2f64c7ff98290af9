package feed

import (
	"context"
	"fmt"
	"sync"
	"time"

	"propflow/config"
	"propflow/engine"
	"propflow/internal/channel"
	"propflow/logger"
	"propflow/models"
)

// PerfWatcher follows the monitoring process's performance report on its own
// interval. Reports are shape-validated before they enter the pipeline; the
// payload itself is never modified.
type PerfWatcher struct {
	config   *config.Config
	source   Source
	channels *channel.Channels
	ctx      context.Context
	wg       *sync.WaitGroup
	mu       sync.RWMutex
	running  bool
	log      *logger.Log

	reads   int64
	rejects int64
}

func NewPerfWatcher(cfg *config.Config, source Source, chans *channel.Channels) *PerfWatcher {
	log := logger.GetLogger()

	watcher := &PerfWatcher{
		config:   cfg,
		source:   source,
		channels: chans,
		wg:       &sync.WaitGroup{},
		log:      log,
	}

	log.WithComponent("perf_watcher").WithFields(logger.Fields{
		"mode":     source.Name(),
		"interval": cfg.Ingest.Performance.Interval.String(),
	}).Info("performance watcher initialized")

	return watcher
}

func (w *PerfWatcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("performance watcher already running")
	}
	w.running = true
	w.ctx = ctx
	w.mu.Unlock()

	w.log.WithComponent("perf_watcher").Info("starting performance watcher")

	w.wg.Add(1)
	go w.watchWorker()

	return nil
}

func (w *PerfWatcher) Stop() {
	w.mu.Lock()
	w.running = false
	w.mu.Unlock()

	w.log.WithComponent("perf_watcher").Info("stopping performance watcher")
	w.wg.Wait()
	w.log.WithComponent("perf_watcher").Info("performance watcher stopped")
}

func (w *PerfWatcher) watchWorker() {
	defer w.wg.Done()

	log := w.log.WithComponent("perf_watcher").WithFields(logger.Fields{"worker": "report_fetcher"})
	log.Info("starting report worker")

	interval := w.config.Ingest.Performance.Interval
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	w.fetchReport()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			log.Info("worker stopped due to context cancellation")
			return
		case <-ticker.C:
			w.fetchReport()
		}
	}
}

func (w *PerfWatcher) fetchReport() {
	log := w.log.WithComponent("perf_watcher").WithFields(logger.Fields{"operation": "fetch_report"})

	start := time.Now()
	payload, err := w.source.FetchPerformance(w.ctx)
	if err != nil {
		log.WithError(err).Warn("failed to fetch performance report")
		return
	}

	logger.IncrementPerfRead(len(payload))
	logger.LogPerformanceEntry(log, "perf_watcher", "report_fetch", time.Since(start), logger.Fields{
		"bytes": len(payload),
	})

	if err := engine.ValidatePerformance(payload); err != nil {
		w.incrementRejects()
		log.WithError(err).Warn("rejecting malformed performance report")
		return
	}
	w.incrementReads()

	update := models.PerformanceUpdate{
		Raw:       payload,
		Source:    w.source.Name(),
		FetchedAt: time.Now().UTC(),
	}

	if w.channels.SendReport(w.ctx, update) {
		logger.LogDataFlowEntry(log, "feed_source", "reports_channel", len(payload), "report_bytes")
	} else {
		log.Warn("reports channel is full, dropping report")
	}
}

func (w *PerfWatcher) incrementReads() {
	w.mu.Lock()
	w.reads++
	w.mu.Unlock()
}

func (w *PerfWatcher) incrementRejects() {
	w.mu.Lock()
	w.rejects++
	w.mu.Unlock()
}

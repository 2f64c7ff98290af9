// Package feed pulls prediction documents out of the external predictor and
// hands the raw payloads to the processing pipeline. One worker per sport
// fetches on the shared ingest interval; a separate watcher follows the
// predictor's performance report on its own schedule.
package feed

import (
	"context"
	"fmt"
	"sync"
	"time"

	"propflow/config"
	"propflow/internal/channel"
	"propflow/logger"
	"propflow/models"
)

// Reader runs one fetch worker per configured sport.
type Reader struct {
	config   *config.Config
	source   Source
	channels *channel.Channels
	ctx      context.Context
	wg       *sync.WaitGroup
	mu       sync.RWMutex
	running  bool
	log      *logger.Log

	fetches    int64
	fetchFails int64
}

// ReaderStats reports fetch outcomes since startup.
type ReaderStats struct {
	Fetches    int64 `json:"fetches"`
	FetchFails int64 `json:"fetch_fails"`
}

func NewReader(cfg *config.Config, source Source, chans *channel.Channels) *Reader {
	log := logger.GetLogger()

	reader := &Reader{
		config:   cfg,
		source:   source,
		channels: chans,
		wg:       &sync.WaitGroup{},
		log:      log,
	}

	log.WithComponent("feed_reader").WithFields(logger.Fields{
		"mode":   source.Name(),
		"sports": cfg.Ingest.Feeds.Sports,
	}).Info("feed reader initialized")

	return reader
}

// Start launches the per-sport fetch workers.
func (r *Reader) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("feed reader already running")
	}
	r.running = true
	r.ctx = ctx
	r.mu.Unlock()

	log := r.log.WithComponent("feed_reader").WithFields(logger.Fields{"operation": "start"})
	log.WithFields(logger.Fields{
		"sports":   r.config.Ingest.Feeds.Sports,
		"interval": r.config.Ingest.Interval.String(),
	}).Info("starting feed reader")

	for _, sport := range r.config.Ingest.Feeds.Sports {
		r.wg.Add(1)
		go r.fetchWorker(sport)
	}

	log.Info("feed reader started successfully")
	return nil
}

// Stop signals all workers to stop and waits for completion.
func (r *Reader) Stop() {
	r.mu.Lock()
	r.running = false
	r.mu.Unlock()

	r.log.WithComponent("feed_reader").Info("stopping feed reader")
	r.wg.Wait()
	r.log.WithComponent("feed_reader").Info("feed reader stopped")
}

func (r *Reader) Stats() ReaderStats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return ReaderStats{Fetches: r.fetches, FetchFails: r.fetchFails}
}

func (r *Reader) fetchWorker(sport string) {
	defer r.wg.Done()

	log := r.log.WithComponent("feed_reader").WithFields(logger.Fields{
		"sport":  sport,
		"worker": "feed_fetcher",
	})
	log.Info("starting feed worker")

	interval := r.config.Ingest.Interval

	// First fetch runs immediately; afterwards workers stay aligned to the
	// interval so every sport reports within the same cycle window.
	r.fetchFeed(sport)

	now := time.Now()
	nextTick := now.Truncate(interval).Add(interval)
	timer := time.NewTimer(nextTick.Sub(now))
	defer timer.Stop()

	for {
		select {
		case <-r.ctx.Done():
			log.Info("worker stopped due to context cancellation")
			return
		case <-timer.C:
			start := time.Now()
			r.fetchFeed(sport)
			duration := time.Since(start)

			if duration > interval {
				log.WithFields(logger.Fields{
					"duration": duration.Milliseconds(),
					"interval": interval.String(),
				}).Warn("fetch took longer than interval")
			}

			nextTick = start.Truncate(interval).Add(interval)
			timer.Reset(time.Until(nextTick))
		}
	}
}

func (r *Reader) fetchFeed(sport string) {
	log := r.log.WithComponent("feed_reader").WithFields(logger.Fields{
		"sport":     sport,
		"operation": "fetch_feed",
	})

	start := time.Now()
	payload, err := r.source.Fetch(r.ctx, sport)
	if err != nil {
		r.incrementFetchFails()
		log.WithError(err).Warn("failed to fetch prediction feed")
		return
	}
	duration := time.Since(start)

	r.incrementFetches()
	logger.IncrementFeedRead(len(payload))
	logger.LogPerformanceEntry(log, "feed_reader", "feed_fetch", duration, logger.Fields{
		"sport": sport,
		"bytes": len(payload),
	})

	msg := models.RawFeedMessage{
		Sport:     sport,
		Source:    r.source.Name(),
		Payload:   payload,
		FetchedAt: time.Now().UTC(),
	}

	if r.channels.SendRaw(r.ctx, msg) {
		logger.LogDataFlowEntry(log, "feed_source", "raw_channel", len(payload), "feed_bytes")
	} else {
		log.Warn("raw channel is full, dropping feed payload")
	}
}

func (r *Reader) incrementFetches() {
	r.mu.Lock()
	r.fetches++
	r.mu.Unlock()
}

func (r *Reader) incrementFetchFails() {
	r.mu.Lock()
	r.fetchFails++
	r.mu.Unlock()
}

// Package processor turns raw feed payloads into validated record batches
// and assembles the batches of each ingest cycle into published snapshots.
package processor

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"propflow/config"
	"propflow/internal/channel"
	"propflow/internal/teams"
	"propflow/logger"
	"propflow/models"
)

// Normalizer validates and normalizes raw prediction feeds. Records that
// fail validation are dropped one by one; a payload that cannot be parsed at
// all produces no batch, which downstream counts as a missed cycle for that
// sport.
type Normalizer struct {
	config   *config.Config
	channels *channel.Channels
	ctx      context.Context
	wg       *sync.WaitGroup
	mu       sync.RWMutex
	running  bool
	log      *logger.Log

	messagesProcessed int64
	recordsAccepted   int64
	recordsRejected   int64
	errorsCount       int64
}

func NewNormalizer(cfg *config.Config, chans *channel.Channels) *Normalizer {
	return &Normalizer{
		config:   cfg,
		channels: chans,
		wg:       &sync.WaitGroup{},
		log:      logger.GetLogger(),
	}
}

func (n *Normalizer) Start(ctx context.Context) error {
	n.mu.Lock()
	if n.running {
		n.mu.Unlock()
		return fmt.Errorf("normalizer already running")
	}
	n.running = true
	n.ctx = ctx
	n.mu.Unlock()

	log := n.log.WithComponent("normalizer").WithFields(logger.Fields{"operation": "start"})

	numWorkers := n.config.Processor.MaxWorkers
	if numWorkers < 1 {
		numWorkers = 1
	}
	log.WithFields(logger.Fields{"workers": numWorkers}).Info("starting normalizer workers")

	for i := 0; i < numWorkers; i++ {
		n.wg.Add(1)
		go n.worker(i)
	}

	go n.metricsReporter(ctx)

	log.Info("normalizer started successfully")
	return nil
}

func (n *Normalizer) Stop() {
	n.mu.Lock()
	n.running = false
	n.mu.Unlock()

	n.log.WithComponent("normalizer").Info("stopping normalizer")
	n.wg.Wait()
	n.log.WithComponent("normalizer").Info("normalizer stopped")
}

func (n *Normalizer) worker(workerID int) {
	defer n.wg.Done()

	log := n.log.WithComponent("normalizer").WithFields(logger.Fields{
		"worker_id": workerID,
		"worker":    "normalizer",
	})
	log.Info("starting normalizer worker")

	for {
		select {
		case <-n.ctx.Done():
			log.Info("worker stopped due to context cancellation")
			return
		case rawMsg, ok := <-n.channels.Raw:
			if !ok {
				log.Info("raw channel closed, worker stopping")
				return
			}

			start := time.Now()
			accepted, rejected := n.processMessage(rawMsg)
			duration := time.Since(start)

			n.mu.Lock()
			n.messagesProcessed++
			n.recordsAccepted += int64(accepted)
			n.recordsRejected += int64(rejected)
			n.mu.Unlock()

			logger.LogPerformanceEntry(log, "normalizer", "process_message", duration, logger.Fields{
				"worker_id": workerID,
				"sport":     rawMsg.Sport,
				"accepted":  accepted,
				"rejected":  rejected,
			})
		}
	}
}

// processMessage parses one feed payload and emits a RecordBatch. An empty
// predictions array is still a batch: the predictor explicitly reporting no
// playable lines for a sport replaces that sport's records, while an
// unparseable payload leaves the previous ones standing.
func (n *Normalizer) processMessage(rawMsg models.RawFeedMessage) (int, int) {
	log := n.log.WithComponent("normalizer").WithFields(logger.Fields{
		"sport":     rawMsg.Sport,
		"source":    rawMsg.Source,
		"operation": "process_message",
	})

	var envelope models.FeedEnvelope
	if err := json.Unmarshal(rawMsg.Payload, &envelope); err != nil {
		n.incrementErrors()
		log.WithError(err).Warn("failed to unmarshal feed payload")
		return 0, 0
	}

	// The envelope's own sport tag wins over the worker's when both exist;
	// a feed file dropped into the wrong slot still lands correctly.
	sport := rawMsg.Sport
	if envelope.Sport != "" {
		sport = envelope.Sport
	}
	if !models.IsKnownSport(sport) {
		n.incrementErrors()
		log.WithFields(logger.Fields{"envelope_sport": envelope.Sport}).Warn("feed carries unknown sport, dropping payload")
		return 0, 0
	}

	records := make([]models.PredictionRecord, 0, len(envelope.Predictions))
	rejected := 0
	for _, feedRec := range envelope.Predictions {
		rec, err := n.normalizeRecord(sport, feedRec)
		if err != nil {
			rejected++
			log.WithError(err).WithFields(logger.Fields{
				"player": feedRec.Player,
				"stat":   feedRec.Stat,
			}).Warn("dropping invalid prediction record")
			continue
		}
		records = append(records, rec)
	}

	batch := models.RecordBatch{
		BatchID:     uuid.New().String(),
		Sport:       sport,
		Records:     records,
		SourceCount: len(envelope.Predictions),
		Rejected:    rejected,
		FetchedAt:   rawMsg.FetchedAt,
		ProcessedAt: time.Now().UTC(),
	}

	if n.channels.SendBatch(n.ctx, batch) {
		log.WithFields(logger.Fields{
			"batch_id":      batch.BatchID,
			"accepted":      len(records),
			"rejected":      rejected,
			"model_version": envelope.ModelVersion,
		}).Info("feed payload normalized")
		logger.LogDataFlowEntry(log, "raw_channel", "batches_channel", len(records), "prediction_records")
	} else {
		log.Warn("batches channel is full, dropping batch")
	}

	return len(records), rejected
}

func (n *Normalizer) normalizeRecord(sport string, feedRec models.FeedRecord) (models.PredictionRecord, error) {
	return NormalizeRecord(sport, feedRec)
}

// NormalizeRecord validates one feed record and produces its canonical form.
// The service's normalizer workers and the feedcheck utility share these
// rules so a feed that passes offline inspection ingests cleanly.
func NormalizeRecord(sport string, feedRec models.FeedRecord) (models.PredictionRecord, error) {
	rec := feedRec.PredictionRecord

	rec.Player = strings.TrimSpace(rec.Player)
	if rec.Player == "" {
		return rec, fmt.Errorf("missing player")
	}

	rec.Stat = strings.TrimSpace(rec.Stat)
	if rec.Stat == "" {
		return rec, fmt.Errorf("missing stat")
	}

	if rec.OverProbability < 0 || rec.OverProbability > 1 {
		return rec, fmt.Errorf("over_probability %v outside [0,1]", rec.OverProbability)
	}
	if rec.ConfidenceScore < 0 || rec.ConfidenceScore > 100 {
		return rec, fmt.Errorf("confidence_score %v outside [0,100]", rec.ConfidenceScore)
	}
	if math.IsNaN(rec.Line) || math.IsInf(rec.Line, 0) {
		return rec, fmt.Errorf("line is not finite")
	}
	if math.IsNaN(rec.PredictedValue) || math.IsInf(rec.PredictedValue, 0) {
		return rec, fmt.Errorf("predicted_value is not finite")
	}

	if rec.GameTime.IsZero() {
		if feedRec.Date == "" {
			return rec, fmt.Errorf("missing game_time")
		}
		day, err := time.Parse("2006-01-02", feedRec.Date)
		if err != nil {
			return rec, fmt.Errorf("unparseable date %q: %w", feedRec.Date, err)
		}
		rec.GameTime = day
	}
	rec.GameTime = rec.GameTime.UTC()

	rec.Sport = sport
	rec.Team = teams.ToCode(sport, rec.Team)
	rec.Opponent = teams.ToCode(sport, rec.Opponent)

	// Feed labels are never trusted; the category always comes from the
	// canonical threshold table.
	rec.Confidence = models.CategoryForScore(rec.ConfidenceScore)

	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}

	return rec, nil
}

func (n *Normalizer) incrementErrors() {
	n.mu.Lock()
	n.errorsCount++
	n.mu.Unlock()
}

func (n *Normalizer) metricsReporter(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n.reportMetrics()
		}
	}
}

func (n *Normalizer) reportMetrics() {
	n.mu.RLock()
	messagesProcessed := n.messagesProcessed
	recordsAccepted := n.recordsAccepted
	recordsRejected := n.recordsRejected
	errorsCount := n.errorsCount
	n.mu.RUnlock()

	rejectRate := float64(0)
	if recordsAccepted+recordsRejected > 0 {
		rejectRate = float64(recordsRejected) / float64(recordsAccepted+recordsRejected)
	}

	log := n.log.WithComponent("normalizer")
	n.log.LogMetric("normalizer", "messages_processed", messagesProcessed, "counter", logger.Fields{})
	n.log.LogMetric("normalizer", "records_accepted", recordsAccepted, "counter", logger.Fields{})
	n.log.LogMetric("normalizer", "records_rejected", recordsRejected, "counter", logger.Fields{})
	n.log.LogMetric("normalizer", "errors_count", errorsCount, "counter", logger.Fields{})
	n.log.LogMetric("normalizer", "reject_rate", rejectRate, "gauge", logger.Fields{})

	log.WithFields(logger.Fields{
		"messages_processed": messagesProcessed,
		"records_accepted":   recordsAccepted,
		"records_rejected":   recordsRejected,
		"errors_count":       errorsCount,
		"reject_rate":        rejectRate,
		"raw_channel_len":    len(n.channels.Raw),
		"raw_channel_cap":    cap(n.channels.Raw),
	}).Info("normalizer metrics")
}

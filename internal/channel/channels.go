package channel

import (
	"context"
	"sync"
	"time"

	"propflow/config"
	"propflow/logger"
	"propflow/models"
)

// ChannelStats counts traffic through the pipeline channels. Drops happen
// when a downstream stage falls behind and a buffer fills; senders never
// block the ingest loop on a slow consumer.
type ChannelStats struct {
	RawSent        int64
	BatchesSent    int64
	UpdatesSent    int64
	ArchiveSent    int64
	ReportsSent    int64
	RawDropped     int64
	BatchesDropped int64
	UpdatesDropped int64
	ArchiveDropped int64
	ReportsDropped int64
}

// Channels wires the pipeline stages together: feed workers write Raw, the
// normalizer turns Raw into Batches, the assembler publishes and fans out
// Updates (mirror) and Archive (parquet writer), and the performance watcher
// writes Reports.
type Channels struct {
	Raw     chan models.RawFeedMessage
	Batches chan models.RecordBatch
	Updates chan models.SnapshotUpdate
	Archive chan models.SnapshotUpdate
	Reports chan models.PerformanceUpdate

	stats           ChannelStats
	statsMutex      sync.RWMutex
	log             *logger.Log
	metricsInterval time.Duration
}

func NewChannels(cfg config.ChannelsConfig) *Channels {
	log := logger.GetLogger()

	c := &Channels{
		Raw:             make(chan models.RawFeedMessage, cfg.RawBuffer),
		Batches:         make(chan models.RecordBatch, cfg.BatchBuffer),
		Updates:         make(chan models.SnapshotUpdate, cfg.UpdateBuffer),
		Archive:         make(chan models.SnapshotUpdate, cfg.UpdateBuffer),
		Reports:         make(chan models.PerformanceUpdate, cfg.ReportBuffer),
		log:             log,
		metricsInterval: cfg.MetricsInterval,
	}
	if c.metricsInterval <= 0 {
		c.metricsInterval = 30 * time.Second
	}

	log.WithComponent("channels").WithFields(logger.Fields{
		"raw_buffer_size":    cfg.RawBuffer,
		"batch_buffer_size":  cfg.BatchBuffer,
		"update_buffer_size": cfg.UpdateBuffer,
		"report_buffer_size": cfg.ReportBuffer,
	}).Info("channels initialized")

	return c
}

// SendRaw offers a fetched feed payload to the normalizer without blocking.
func (c *Channels) SendRaw(ctx context.Context, msg models.RawFeedMessage) bool {
	select {
	case c.Raw <- msg:
		c.incrementRawSent()
		logger.RecordChannelMessage("raw", len(msg.Payload))
		return true
	case <-ctx.Done():
		return false
	default:
		c.incrementRawDropped()
		return false
	}
}

// SendBatch offers a normalized record batch to the assembler.
func (c *Channels) SendBatch(ctx context.Context, batch models.RecordBatch) bool {
	select {
	case c.Batches <- batch:
		c.incrementBatchesSent()
		logger.RecordChannelMessage("batches", len(batch.Records))
		return true
	case <-ctx.Done():
		return false
	default:
		c.incrementBatchesDropped()
		return false
	}
}

// SendUpdate offers a published snapshot to the mirror.
func (c *Channels) SendUpdate(ctx context.Context, update models.SnapshotUpdate) bool {
	select {
	case c.Updates <- update:
		c.incrementUpdatesSent()
		logger.RecordChannelMessage("updates", len(update.Snapshot.Records))
		return true
	case <-ctx.Done():
		return false
	default:
		c.incrementUpdatesDropped()
		return false
	}
}

// SendArchive offers a published snapshot to the archiver.
func (c *Channels) SendArchive(ctx context.Context, update models.SnapshotUpdate) bool {
	select {
	case c.Archive <- update:
		c.incrementArchiveSent()
		logger.RecordChannelMessage("archive", len(update.Snapshot.Records))
		return true
	case <-ctx.Done():
		return false
	default:
		c.incrementArchiveDropped()
		return false
	}
}

// SendReport offers a raw performance document to the report ingester.
func (c *Channels) SendReport(ctx context.Context, update models.PerformanceUpdate) bool {
	select {
	case c.Reports <- update:
		c.incrementReportsSent()
		logger.RecordChannelMessage("reports", len(update.Raw))
		return true
	case <-ctx.Done():
		return false
	default:
		c.incrementReportsDropped()
		return false
	}
}

// StartMetricsReporting logs channel occupancy and send/drop counters until
// ctx is cancelled.
func (c *Channels) StartMetricsReporting(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(c.metricsInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.logChannelStats()
			}
		}
	}()
}

func (c *Channels) logChannelStats() {
	stats := c.GetStats()

	c.log.WithComponent("channels").WithFields(logger.Fields{
		"raw_sent":        stats.RawSent,
		"raw_dropped":     stats.RawDropped,
		"raw_len":         len(c.Raw),
		"raw_cap":         cap(c.Raw),
		"batches_sent":    stats.BatchesSent,
		"batches_dropped": stats.BatchesDropped,
		"batches_len":     len(c.Batches),
		"batches_cap":     cap(c.Batches),
		"updates_sent":    stats.UpdatesSent,
		"updates_dropped": stats.UpdatesDropped,
		"updates_len":     len(c.Updates),
		"updates_cap":     cap(c.Updates),
		"archive_sent":    stats.ArchiveSent,
		"archive_dropped": stats.ArchiveDropped,
		"archive_len":     len(c.Archive),
		"archive_cap":     cap(c.Archive),
		"reports_sent":    stats.ReportsSent,
		"reports_dropped": stats.ReportsDropped,
		"reports_len":     len(c.Reports),
		"reports_cap":     cap(c.Reports),
	}).Info("channel statistics")
}

// Close closes every pipeline channel. Call only after all senders have
// stopped.
func (c *Channels) Close() {
	close(c.Raw)
	close(c.Batches)
	close(c.Updates)
	close(c.Archive)
	close(c.Reports)

	c.log.WithComponent("channels").Info("all channels closed")
}

func (c *Channels) GetStats() ChannelStats {
	c.statsMutex.RLock()
	defer c.statsMutex.RUnlock()
	return c.stats
}

func (c *Channels) incrementRawSent() {
	c.statsMutex.Lock()
	c.stats.RawSent++
	c.statsMutex.Unlock()
}

func (c *Channels) incrementBatchesSent() {
	c.statsMutex.Lock()
	c.stats.BatchesSent++
	c.statsMutex.Unlock()
}

func (c *Channels) incrementUpdatesSent() {
	c.statsMutex.Lock()
	c.stats.UpdatesSent++
	c.statsMutex.Unlock()
}

func (c *Channels) incrementArchiveSent() {
	c.statsMutex.Lock()
	c.stats.ArchiveSent++
	c.statsMutex.Unlock()
}

func (c *Channels) incrementReportsSent() {
	c.statsMutex.Lock()
	c.stats.ReportsSent++
	c.statsMutex.Unlock()
}

func (c *Channels) incrementRawDropped() {
	c.statsMutex.Lock()
	c.stats.RawDropped++
	c.statsMutex.Unlock()
}

func (c *Channels) incrementBatchesDropped() {
	c.statsMutex.Lock()
	c.stats.BatchesDropped++
	c.statsMutex.Unlock()
}

func (c *Channels) incrementUpdatesDropped() {
	c.statsMutex.Lock()
	c.stats.UpdatesDropped++
	c.statsMutex.Unlock()
}

func (c *Channels) incrementArchiveDropped() {
	c.statsMutex.Lock()
	c.stats.ArchiveDropped++
	c.statsMutex.Unlock()
}

func (c *Channels) incrementReportsDropped() {
	c.statsMutex.Lock()
	c.stats.ReportsDropped++
	c.statsMutex.Unlock()
}

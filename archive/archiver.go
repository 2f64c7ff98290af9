// Package archive persists published predictions as parquet files in a
// partitioned lake, on S3 or a local directory, with Iceberg-style table
// metadata for downstream readers.
package archive

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"propflow/config"
	"propflow/internal/channel"
	"propflow/internal/metadata"
	"propflow/logger"
	"propflow/models"
)

// Archiver consumes snapshot updates and buffers record versions keyed by
// sport and game day. A buffer flushes into one parquet file when it reaches
// the row bound or on the flush ticker. Records are deduplicated by content
// hash so a record is archived once per version, not once per snapshot.
type Archiver struct {
	config   *config.Config
	channels *channel.Channels
	uploader    uploader
	metaGen     *metadata.Generator
	metaMu      sync.Mutex
	catalogDir  string
	catalogOnce sync.Once
	ctx      context.Context
	wg       *sync.WaitGroup
	mu       sync.RWMutex
	running  bool
	log      *logger.Log

	buffer      map[string][]models.PredictionRecord
	seen        map[string]uint64
	flushTicker *time.Ticker

	snapshotsSeen int64
	filesWritten  int64
	rowsWritten   int64
	uploadFails   int64
}

// ArchiverStats is a point-in-time view of archiver counters.
type ArchiverStats struct {
	SnapshotsSeen int64 `json:"snapshots_seen"`
	FilesWritten  int64 `json:"files_written"`
	RowsWritten   int64 `json:"rows_written"`
	UploadFails   int64 `json:"upload_fails"`
}

func NewArchiver(cfg *config.Config, chans *channel.Channels) (*Archiver, error) {
	log := logger.GetLogger()

	var up uploader
	var metaDir string
	if cfg.Storage.S3.Enabled {
		s3up, err := newS3Uploader(cfg)
		if err != nil {
			return nil, err
		}
		up = s3up

		dir, err := os.MkdirTemp("", "propflow-lake")
		if err != nil {
			return nil, fmt.Errorf("failed to create metadata directory: %w", err)
		}
		metaDir = dir
	} else {
		up = newLocalUploader(cfg.Archive.LocalDir)
		metaDir = cfg.Archive.LocalDir
	}

	a := &Archiver{
		config:     cfg,
		channels:   chans,
		uploader:   up,
		metaGen:    metadata.NewGenerator(metaDir, "predictions"),
		catalogDir: filepath.Join(metaDir, "catalog"),
		wg:         &sync.WaitGroup{},
		log:        log,
	}

	log.WithComponent("archiver").WithFields(logger.Fields{
		"uploader":       up.Name(),
		"max_rows":       cfg.Archive.Buffer.MaxRows,
		"flush_interval": cfg.Archive.Buffer.FlushInterval.String(),
		"compression":    cfg.Archive.Parquet.Compression,
	}).Info("archiver initialized")

	return a, nil
}

func (a *Archiver) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return fmt.Errorf("archiver already running")
	}
	a.running = true
	a.ctx = ctx
	a.buffer = make(map[string][]models.PredictionRecord)
	a.seen = make(map[string]uint64)
	a.mu.Unlock()

	log := a.log.WithComponent("archiver").WithFields(logger.Fields{"operation": "start"})

	a.flushTicker = time.NewTicker(a.config.Archive.Buffer.FlushInterval)

	numWorkers := a.config.Archive.MaxWorkers
	if numWorkers < 1 {
		numWorkers = 1
	}
	log.WithFields(logger.Fields{"workers": numWorkers}).Info("starting archiver workers")

	for i := 0; i < numWorkers; i++ {
		a.wg.Add(1)
		go a.worker(i)
	}

	a.wg.Add(1)
	go a.flushWorker()

	log.Info("archiver started successfully")
	return nil
}

func (a *Archiver) Stop() {
	a.mu.Lock()
	a.running = false
	a.mu.Unlock()

	if a.flushTicker != nil {
		a.flushTicker.Stop()
	}

	a.log.WithComponent("archiver").Info("stopping archiver")
	a.wg.Wait()
	a.log.WithComponent("archiver").Info("archiver stopped")
}

// Stats returns current archiver counters.
func (a *Archiver) Stats() ArchiverStats {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return ArchiverStats{
		SnapshotsSeen: a.snapshotsSeen,
		FilesWritten:  a.filesWritten,
		RowsWritten:   a.rowsWritten,
		UploadFails:   a.uploadFails,
	}
}

func (a *Archiver) worker(workerID int) {
	defer a.wg.Done()

	log := a.log.WithComponent("archiver").WithFields(logger.Fields{
		"worker_id": workerID,
		"worker":    "archiver",
	})
	log.Info("starting archiver worker")

	for {
		select {
		case <-a.ctx.Done():
			log.Info("worker stopped due to context cancellation")
			return
		case update, ok := <-a.channels.Archive:
			if !ok {
				log.Info("archive channel closed, worker stopping")
				return
			}
			a.addSnapshot(update)
		}
	}
}

func (a *Archiver) flushWorker() {
	defer a.wg.Done()

	log := a.log.WithComponent("archiver").WithFields(logger.Fields{"worker": "flush"})
	log.Info("starting flush worker")

	for {
		select {
		case <-a.ctx.Done():
			a.flushBuffers("shutdown")
			log.Info("flush worker stopped due to context cancellation")
			return
		case <-a.flushTicker.C:
			a.flushBuffers("interval")
		}
	}
}

// addSnapshot buffers the record versions of one published snapshot that
// have not been archived before and prunes dedup state for records that left
// the snapshot.
func (a *Archiver) addSnapshot(update models.SnapshotUpdate) {
	snap := update.Snapshot
	live := make(map[string]struct{}, len(snap.Records))
	buffered := 0

	a.mu.Lock()
	a.snapshotsSeen++
	for _, rec := range snap.Records {
		live[rec.ID] = struct{}{}
		h := rec.ContentHash()
		if prev, ok := a.seen[rec.ID]; ok && prev == h {
			continue
		}
		a.seen[rec.ID] = h
		key := bufferKey(rec.Sport, rec.GameTime)
		a.buffer[key] = append(a.buffer[key], rec)
		buffered++
	}
	for id := range a.seen {
		if _, ok := live[id]; !ok {
			delete(a.seen, id)
		}
	}

	var full []string
	if maxRows := a.config.Archive.Buffer.MaxRows; maxRows > 0 {
		for key, records := range a.buffer {
			if len(records) >= maxRows {
				full = append(full, key)
			}
		}
	}
	a.mu.Unlock()

	a.log.WithComponent("archiver").WithFields(logger.Fields{
		"version":  snap.Version,
		"records":  len(snap.Records),
		"buffered": buffered,
	}).Debug("snapshot buffered for archive")

	for _, key := range full {
		a.flushKey(key, "row_bound")
	}
}

func bufferKey(sport string, gameTime time.Time) string {
	return fmt.Sprintf("%s|%s", sport, gameTime.UTC().Format("2006-01-02"))
}

func (a *Archiver) flushKey(key, reason string) {
	a.mu.Lock()
	records := a.buffer[key]
	delete(a.buffer, key)
	a.mu.Unlock()

	if len(records) == 0 {
		return
	}
	a.writeFile(key, records, reason)
}

func (a *Archiver) flushBuffers(reason string) {
	a.mu.Lock()
	buffers := a.buffer
	a.buffer = make(map[string][]models.PredictionRecord)
	a.mu.Unlock()

	if len(buffers) == 0 {
		return
	}

	a.log.WithComponent("archiver").WithFields(logger.Fields{
		"flushed_buffers": len(buffers),
		"reason":          reason,
	}).Info("flushing archive buffers")

	for key, records := range buffers {
		if len(records) == 0 {
			continue
		}
		a.writeFile(key, records, reason)
	}
}

func (a *Archiver) writeFile(key string, records []models.PredictionRecord, reason string) {
	start := time.Now()

	parts := strings.SplitN(key, "|", 2)
	sport, day := parts[0], parts[1]

	log := a.log.WithComponent("archiver").WithFields(logger.Fields{
		"sport":     sport,
		"game_date": day,
		"rows":      len(records),
		"reason":    reason,
		"operation": "write_file",
	})

	objectKey := a.objectKey(sport, day)
	log = log.WithFields(logger.Fields{"key": objectKey})

	data, size, err := buildParquetFile(records, a.config.Archive.Parquet)
	if err != nil {
		log.WithError(err).Error("failed to create parquet file")
		return
	}

	path, err := a.uploader.Upload(context.WithoutCancel(a.ctx), objectKey, data)
	if err != nil {
		a.mu.Lock()
		a.uploadFails++
		a.mu.Unlock()
		log.WithError(err).Error("failed to store parquet file")
		return
	}

	a.mu.Lock()
	a.filesWritten++
	a.rowsWritten += int64(len(records))
	a.mu.Unlock()

	logger.IncrementArchiveWrite(size)
	logger.LogPerformanceEntry(log, "archiver", "write_file", time.Since(start), logger.Fields{
		"file_size": size,
	})
	log.WithFields(logger.Fields{"file_size": size, "path": path}).Info("parquet file archived")

	df := metadata.DataFile{
		Path:        path,
		FileSize:    size,
		RecordCount: int64(len(records)),
		Partition: map[string]any{
			"sport": sport,
			"date":  day,
		},
		Timestamp: time.Now().UTC(),
	}
	a.metaMu.Lock()
	err = a.metaGen.AddFile(df)
	a.metaMu.Unlock()
	if err != nil {
		log.WithError(err).Warn("failed to update lake metadata")
		return
	}

	// The catalog entry names the metadata location, which never moves, so
	// publishing it once per process is enough.
	a.catalogOnce.Do(func() {
		if err := a.metaGen.WriteCatalogEntry(a.catalogDir); err != nil {
			log.WithError(err).Warn("failed to publish catalog entry")
		}
	})
}

func (a *Archiver) objectKey(sport, day string) string {
	gameDay, err := time.Parse("2006-01-02", day)
	if err != nil {
		gameDay = time.Now().UTC()
	}

	timeFormat := a.config.Archive.Partitioning.TimeFormat
	if timeFormat == "" {
		timeFormat = "year={year}/month={month}/day={day}"
	}
	timePath := strings.ReplaceAll(timeFormat, "{year}", fmt.Sprintf("%04d", gameDay.Year()))
	timePath = strings.ReplaceAll(timePath, "{month}", fmt.Sprintf("%02d", gameDay.Month()))
	timePath = strings.ReplaceAll(timePath, "{day}", fmt.Sprintf("%02d", gameDay.Day()))

	var parts []string
	if prefix := a.config.Storage.S3.Prefix; prefix != "" {
		parts = append(parts, prefix)
	}
	parts = append(parts, fmt.Sprintf("sport=%s", sport), timePath,
		fmt.Sprintf("predictions_%s.parquet", uuid.New().String()))

	return filepath.ToSlash(filepath.Join(parts...))
}

package api

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"

	"propflow/logger"
)

// resourceSample is one reading of host utilisation plus the process
// internals that matter here: goroutine count for the pipeline workers and
// heap size for the in-memory snapshot and archive buffers.
type resourceSample struct {
	Timestamp   time.Time `json:"timestamp"`
	CPUPercent  float64   `json:"cpu_percent"`
	MemoryUsed  uint64    `json:"memory_used"`
	MemoryTotal uint64    `json:"memory_total"`
	MemoryPct   float64   `json:"memory_percent"`
	DiskUsed    uint64    `json:"disk_used"`
	DiskTotal   uint64    `json:"disk_total"`
	DiskPct     float64   `json:"disk_percent"`
	Goroutines  int       `json:"goroutines"`
	HeapBytes   uint64    `json:"heap_bytes"`
}

type resourceSampler struct {
	mu       sync.RWMutex
	items    []resourceSample
	limit    int
	interval time.Duration
	diskPath string

	cancel  context.CancelFunc
	running atomic.Bool
	wg      sync.WaitGroup
	log     *logger.Log
}

var (
	cpuPercentFn = func(ctx context.Context, interval time.Duration) ([]float64, error) {
		return cpu.PercentWithContext(ctx, interval, false)
	}
	memoryStatsFn = mem.VirtualMemoryWithContext
	diskUsageFn   = disk.UsageWithContext
)

// newResourceSampler keeps the most recent samples in a bounded window.
// diskPath should point at the filesystem the parquet lake lands on; the
// root filesystem is only a last resort.
func newResourceSampler(limit int, interval time.Duration, diskPath string, log *logger.Log) *resourceSampler {
	if limit <= 0 {
		limit = 200
	}
	if interval <= 0 {
		interval = time.Second
	}
	if diskPath == "" {
		diskPath = "/"
	}
	return &resourceSampler{
		limit:    limit,
		interval: interval,
		diskPath: diskPath,
		log:      log,
	}
}

func (s *resourceSampler) start(ctx context.Context) {
	if s == nil {
		return
	}
	if s.running.Swap(true) {
		return
	}
	childCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(childCtx)
	}()
}

func (s *resourceSampler) stop() {
	if s == nil {
		return
	}
	if cancel := s.cancel; cancel != nil {
		cancel()
	}
	s.wg.Wait()
	s.running.Store(false)
}

func (s *resourceSampler) snapshot() []resourceSample {
	if s == nil {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]resourceSample, len(s.items))
	copy(out, s.items)
	return out
}

func (s *resourceSampler) append(sample resourceSample) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append(s.items, sample)
	if len(s.items) > s.limit {
		s.items = append([]resourceSample(nil), s.items[len(s.items)-s.limit:]...)
	}
}

func (s *resourceSampler) run(ctx context.Context) {
	defer s.running.Store(false)
	for ctx.Err() == nil {
		sample, ok := s.collect(ctx)
		if !ok {
			continue
		}
		s.append(sample)
	}
}

// collect measures CPU over one sampler interval and fills in whatever else
// it can. Memory or disk probe failures degrade the sample instead of
// discarding it; the process-level numbers are always available.
func (s *resourceSampler) collect(ctx context.Context) (resourceSample, bool) {
	cpuSamples, err := cpuPercentFn(ctx, s.interval)
	if err != nil {
		s.log.WithComponent("resource_sampler").WithError(err).Debug("failed to sample cpu usage")
		select {
		case <-ctx.Done():
		case <-time.After(s.interval):
		}
		return resourceSample{}, false
	}

	var heap runtime.MemStats
	runtime.ReadMemStats(&heap)

	sample := resourceSample{
		Timestamp:  time.Now().UTC(),
		CPUPercent: firstSample(cpuSamples),
		Goroutines: runtime.NumGoroutine(),
		HeapBytes:  heap.HeapAlloc,
	}

	if memStats, err := memoryStatsFn(ctx); err != nil {
		s.log.WithComponent("resource_sampler").WithError(err).Debug("failed to sample memory usage")
	} else {
		sample.MemoryUsed = memStats.Used
		sample.MemoryTotal = memStats.Total
		sample.MemoryPct = memStats.UsedPercent
	}

	if diskStats, err := diskUsageFn(ctx, s.diskPath); err != nil {
		s.log.WithComponent("resource_sampler").WithError(err).Debug("failed to sample disk usage")
	} else {
		sample.DiskUsed = diskStats.Used
		sample.DiskTotal = diskStats.Total
		sample.DiskPct = diskStats.UsedPercent
	}

	return sample, true
}

func firstSample(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	return samples[0]
}

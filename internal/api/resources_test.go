package api

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"

	"propflow/engine"
	"propflow/logger"
	"propflow/store"
)

func stubCollectors(t *testing.T) *atomic.Int32 {
	t.Helper()

	originalCPU := cpuPercentFn
	originalMem := memoryStatsFn
	originalDisk := diskUsageFn
	t.Cleanup(func() {
		cpuPercentFn = originalCPU
		memoryStatsFn = originalMem
		diskUsageFn = originalDisk
	})

	cpuCalls := &atomic.Int32{}
	cpuPercentFn = func(ctx context.Context, interval time.Duration) ([]float64, error) {
		cpuCalls.Add(1)
		return []float64{42.5}, nil
	}
	memoryStatsFn = func(ctx context.Context) (*mem.VirtualMemoryStat, error) {
		return &mem.VirtualMemoryStat{Used: 1024, Total: 2048, UsedPercent: 50}, nil
	}
	diskUsageFn = func(ctx context.Context, path string) (*disk.UsageStat, error) {
		return &disk.UsageStat{Used: 4096, Total: 8192, UsedPercent: 50}, nil
	}
	return cpuCalls
}

func waitForSample(t *testing.T, sampler *resourceSampler) {
	t.Helper()
	deadline := time.Now().Add(250 * time.Millisecond)
	for {
		if time.Now().After(deadline) {
			t.Fatal("resource sampler did not collect samples in time")
		}
		if len(sampler.snapshot()) > 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestResourceSamplerCollectsSamples(t *testing.T) {
	cpuCalls := stubCollectors(t)
	sampler := newResourceSampler(3, time.Millisecond*10, "/var/lib/propflow/lake", logger.Logger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sampler.start(ctx)
	waitForSample(t, sampler)
	cancel()
	sampler.stop()

	samples := sampler.snapshot()
	if len(samples) == 0 {
		t.Fatal("expected at least one resource sample")
	}

	latest := samples[len(samples)-1]
	if latest.CPUPercent != 42.5 || latest.MemoryPct != 50 || latest.DiskPct != 50 {
		t.Fatalf("unexpected sample data: %#v", latest)
	}
	if latest.Goroutines <= 0 {
		t.Errorf("Goroutines = %d, want a live count", latest.Goroutines)
	}
	if latest.HeapBytes == 0 {
		t.Error("HeapBytes = 0, want the process heap size")
	}
	if cpuCalls.Load() == 0 {
		t.Fatal("expected cpu sampler to be invoked")
	}
}

func TestResourceSamplerDegradesOnDiskProbeFailure(t *testing.T) {
	stubCollectors(t)
	diskUsageFn = func(ctx context.Context, path string) (*disk.UsageStat, error) {
		return nil, errors.New("mount gone")
	}
	sampler := newResourceSampler(3, time.Millisecond*10, "/gone", logger.Logger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sampler.start(ctx)
	waitForSample(t, sampler)
	cancel()
	sampler.stop()

	samples := sampler.snapshot()
	latest := samples[len(samples)-1]
	if latest.CPUPercent != 42.5 || latest.MemoryPct != 50 {
		t.Fatalf("cpu and memory should survive a disk probe failure: %#v", latest)
	}
	if latest.DiskTotal != 0 || latest.DiskPct != 0 {
		t.Errorf("disk fields should stay zero when the probe fails: %#v", latest)
	}
}

func TestResourceSamplerDiskPathFollowsLake(t *testing.T) {
	buildServer := func(t *testing.T, diskPath, localDir string) *Server {
		t.Helper()
		cfg := serverConfig()
		cfg.Ops.Resources.Enabled = true
		cfg.Ops.Resources.DiskPath = diskPath
		cfg.Archive.LocalDir = localDir

		st := store.New()
		srv, err := NewServer(cfg, engine.NewService(st), st, logger.Logger())
		if err != nil {
			t.Fatalf("NewServer returned error: %v", err)
		}
		t.Cleanup(srv.cleanup)
		return srv
	}

	srv := buildServer(t, "", "/srv/propflow/lake")
	if srv.resourceSampler == nil {
		t.Fatal("expected a resource sampler when ops resources are enabled")
	}
	if got := srv.resourceSampler.diskPath; got != "/srv/propflow/lake" {
		t.Errorf("diskPath = %q, want the local lake directory", got)
	}

	srv = buildServer(t, "/data", "/srv/propflow/lake")
	if got := srv.resourceSampler.diskPath; got != "/data" {
		t.Errorf("diskPath = %q, want the configured override", got)
	}
}

package logger

import (
	"context"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
	gnet "github.com/shirou/gopsutil/v3/net"

	"github.com/aws/aws-sdk-go-v2/aws"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

type channelStat struct {
	messages int64
	bytes    int64
}

var (
	errorsPredictions  int64
	errorsPerformance  int64
	warnsPredictions   int64
	warnsPerformance   int64
	feedReads          int64
	perfReads          int64
	archiveWrites      int64
	mirrorWrites       int64
	snapshotsPublished int64
	channels           sync.Map // map[string]*channelStat
)

func recordWarn(component string) {
	if strings.Contains(component, "perf") {
		atomic.AddInt64(&warnsPerformance, 1)
	} else {
		atomic.AddInt64(&warnsPredictions, 1)
	}
}

func recordError(component string) {
	if strings.Contains(component, "perf") {
		atomic.AddInt64(&errorsPerformance, 1)
	} else {
		atomic.AddInt64(&errorsPredictions, 1)
	}
}

// IncrementFeedRead counts one fetched prediction feed payload.
func IncrementFeedRead(size int) {
	atomic.AddInt64(&feedReads, 1)
	recordChannel("feed_fetch", size)
}

// IncrementPerfRead counts one fetched performance report.
func IncrementPerfRead(size int) {
	atomic.AddInt64(&perfReads, 1)
	recordChannel("perf_fetch", size)
}

// IncrementArchiveWrite counts one file written to the prediction lake.
func IncrementArchiveWrite(size int64) {
	atomic.AddInt64(&archiveWrites, 1)
	recordChannel("archive_write", int(size))
}

// IncrementMirrorWrite counts one snapshot mirrored to redis.
func IncrementMirrorWrite(size int) {
	atomic.AddInt64(&mirrorWrites, 1)
	recordChannel("mirror_write", size)
}

// IncrementSnapshotPublish counts one published snapshot.
func IncrementSnapshotPublish(records int) {
	atomic.AddInt64(&snapshotsPublished, 1)
	recordChannel("snapshot_publish", records)
}

func RecordChannelMessage(name string, size int) {
	recordChannel(name, size)
}

func recordChannel(name string, size int) {
	v, _ := channels.LoadOrStore(name, &channelStat{})
	cs := v.(*channelStat)
	atomic.AddInt64(&cs.messages, 1)
	atomic.AddInt64(&cs.bytes, int64(size))
}

func startReport(ctx context.Context, log *Log, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		for {
			select {
			case <-ctx.Done():
				ticker.Stop()
				return
			case <-ticker.C:
				logReport(ctx, log)
			}
		}
	}()
}

// StartReport begins periodic logging of system and pipeline statistics.
// It exposes the internal startReport function for use by other packages.
func StartReport(ctx context.Context, log *Log, interval time.Duration) {
	startReport(ctx, log, interval)
}

func logReport(ctx context.Context, log *Log) {
	cpuPercent, _ := cpu.Percent(0, false)
	memStats, _ := mem.VirtualMemory()
	diskStats, _ := disk.Usage("/")
	netStats, _ := gnet.IOCounters(false)
	channelData := map[string]map[string]int64{}
	channels.Range(func(k, v any) bool {
		name := k.(string)
		cs := v.(*channelStat)
		channelData[name] = map[string]int64{
			"messages": atomic.LoadInt64(&cs.messages),
			"bytes":    atomic.LoadInt64(&cs.bytes),
		}
		return true
	})

	cpuPct := 0.0
	if len(cpuPercent) > 0 {
		cpuPct = cpuPercent[0]
	}

	bytesSent := uint64(0)
	bytesRecv := uint64(0)
	if len(netStats) > 0 {
		bytesSent = netStats[0].BytesSent
		bytesRecv = netStats[0].BytesRecv
	}

	fields := Fields{
		"errors_predictions":  atomic.LoadInt64(&errorsPredictions),
		"errors_performance":  atomic.LoadInt64(&errorsPerformance),
		"warns_predictions":   atomic.LoadInt64(&warnsPredictions),
		"warns_performance":   atomic.LoadInt64(&warnsPerformance),
		"feed_reads":          atomic.LoadInt64(&feedReads),
		"perf_reads":          atomic.LoadInt64(&perfReads),
		"archive_writes":      atomic.LoadInt64(&archiveWrites),
		"mirror_writes":       atomic.LoadInt64(&mirrorWrites),
		"snapshots_published": atomic.LoadInt64(&snapshotsPublished),
		"goroutines":          runtime.NumGoroutine(),
		"cpu_percent":         cpuPct,
		"memory_mb":           int64(memStats.Used) / 1024 / 1024,
		"disk_mb":             int64(diskStats.Used) / 1024 / 1024,
		"channels":            channelData,
		"net_bytes_sent":      int64(bytesSent),
		"net_bytes_recv":      int64(bytesRecv),
	}

	log.WithComponent("report").WithFields(fields).Info("runtime report")

	var data []cwtypes.MetricDatum
	data = append(data,
		cwtypes.MetricDatum{MetricName: aws.String("CPUPercent"), Unit: cwtypes.StandardUnitPercent, Value: aws.Float64(cpuPct)},
		cwtypes.MetricDatum{MetricName: aws.String("MemoryMB"), Unit: cwtypes.StandardUnitMegabytes, Value: aws.Float64(float64(memStats.Used) / 1024 / 1024)},
		cwtypes.MetricDatum{MetricName: aws.String("DiskMB"), Unit: cwtypes.StandardUnitMegabytes, Value: aws.Float64(float64(diskStats.Used) / 1024 / 1024)},
		cwtypes.MetricDatum{MetricName: aws.String("ErrorsPredictions"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["errors_predictions"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("ErrorsPerformance"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["errors_performance"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("WarnsPredictions"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["warns_predictions"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("WarnsPerformance"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["warns_performance"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("FeedReads"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["feed_reads"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("PerfReads"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["perf_reads"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("ArchiveWrites"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["archive_writes"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("MirrorWrites"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["mirror_writes"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("SnapshotsPublished"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["snapshots_published"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("NetBytesSent"), Unit: cwtypes.StandardUnitBytes, Value: aws.Float64(float64(bytesSent))},
		cwtypes.MetricDatum{MetricName: aws.String("NetBytesRecv"), Unit: cwtypes.StandardUnitBytes, Value: aws.Float64(float64(bytesRecv))},
	)

	for name, stats := range channelData {
		data = append(data,
			cwtypes.MetricDatum{
				MetricName: aws.String("ChannelMessages"),
				Unit:       cwtypes.StandardUnitCount,
				Dimensions: []cwtypes.Dimension{{Name: aws.String("Channel"), Value: aws.String(name)}},
				Value:      aws.Float64(float64(stats["messages"])),
			},
			cwtypes.MetricDatum{
				MetricName: aws.String("ChannelBytes"),
				Unit:       cwtypes.StandardUnitBytes,
				Dimensions: []cwtypes.Dimension{{Name: aws.String("Channel"), Value: aws.String(name)}},
				Value:      aws.Float64(float64(stats["bytes"])),
			},
		)
	}

	publishMetrics(ctx, data)
}

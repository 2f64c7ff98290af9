package api

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// metricPoint is one named measurement captured for the ops surface.
type metricPoint struct {
	Timestamp time.Time              `json:"timestamp"`
	Component string                 `json:"component"`
	Name      string                 `json:"name"`
	Value     float64                `json:"value"`
	Type      string                 `json:"type"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// metricStore retains a bounded collection of the most recent metric points
// emitted by the application. Points arrive two ways: directly from the HTTP
// layer's per-request accounting, and through the logrus hook for every
// metric the components publish via logger.LogMetric. Safe for concurrent use.
type metricStore struct {
	mu      sync.RWMutex
	items   []metricPoint
	limit   int
	enabled atomic.Bool
}

func newMetricStore(limit int) *metricStore {
	if limit <= 0 {
		limit = 200
	}
	ms := &metricStore{limit: limit}
	ms.enabled.Store(true)
	return ms
}

func (s *metricStore) record(point metricPoint) {
	if !s.enabled.Load() {
		return
	}
	if point.Timestamp.IsZero() {
		point.Timestamp = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.items = append(s.items, point)
	if len(s.items) > s.limit {
		// keep the most recent entries only
		s.items = append([]metricPoint(nil), s.items[len(s.items)-s.limit:]...)
	}
}

func (s *metricStore) snapshot() []metricPoint {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]metricPoint, len(s.items))
	copy(out, s.items)
	return out
}

func (s *metricStore) close() {
	s.enabled.Store(false)
}

// Levels limits the hook to Info, the level logger.LogMetric emits at.
func (s *metricStore) Levels() []logrus.Level {
	return []logrus.Level{logrus.InfoLevel}
}

// Fire captures metric entries published through the logger. Entries without
// a "metric" field are ordinary logs and are ignored here.
func (s *metricStore) Fire(entry *logrus.Entry) error {
	name, ok := entry.Data["metric"].(string)
	if !ok {
		return nil
	}

	point := metricPoint{
		Timestamp: entry.Time,
		Name:      name,
		Value:     toFloat(entry.Data["value"]),
	}
	if component, ok := entry.Data["component"].(string); ok {
		point.Component = component
	}
	if metricType, ok := entry.Data["metric_type"].(string); ok {
		point.Type = metricType
	}

	for k, v := range entry.Data {
		switch k {
		case "metric", "value", "metric_type", "component":
			continue
		}
		if point.Fields == nil {
			point.Fields = make(map[string]interface{})
		}
		point.Fields[k] = v
	}

	s.record(point)
	return nil
}

func toFloat(value interface{}) float64 {
	switch v := value.(type) {
	case int:
		return float64(v)
	case int32:
		return float64(v)
	case int64:
		return float64(v)
	case float32:
		return float64(v)
	case float64:
		return v
	default:
		return 0
	}
}

// logRecord is the serialisable representation of a captured log entry served
// on the ops logs endpoint.
type logRecord struct {
	Timestamp time.Time              `json:"timestamp"`
	Level     string                 `json:"level"`
	Component string                 `json:"component,omitempty"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// logStore retains the most recent logs that flow through the global logger.
// The store implements the logrus Hook interface so that it can be attached
// directly to the application's logger.
type logStore struct {
	mu       sync.RWMutex
	items    []logRecord
	limit    int
	minLevel logrus.Level
	enabled  atomic.Bool
}

func newLogStore(limit int, minLevel logrus.Level) *logStore {
	if limit <= 0 {
		limit = 200
	}
	ls := &logStore{limit: limit, minLevel: minLevel}
	ls.enabled.Store(true)
	return ls
}

func (s *logStore) Levels() []logrus.Level {
	levels := make([]logrus.Level, 0, len(logrus.AllLevels))
	for _, level := range logrus.AllLevels {
		if level <= s.minLevel {
			levels = append(levels, level)
		}
	}
	return levels
}

func (s *logStore) Fire(entry *logrus.Entry) error {
	if !s.enabled.Load() {
		return nil
	}

	record := logRecord{
		Timestamp: entry.Time,
		Level:     entry.Level.String(),
		Message:   entry.Message,
	}

	if component, ok := entry.Data["component"].(string); ok {
		record.Component = component
	}

	if len(entry.Data) > 0 {
		record.Fields = make(map[string]interface{}, len(entry.Data))
		for k, v := range entry.Data {
			if k == "component" {
				continue
			}

			switch val := v.(type) {
			case error:
				record.Fields[k] = val.Error()
			case fmt.Stringer:
				record.Fields[k] = val.String()
			default:
				record.Fields[k] = val
			}
		}
	}

	s.mu.Lock()
	s.items = append(s.items, record)
	if len(s.items) > s.limit {
		s.items = append([]logRecord(nil), s.items[len(s.items)-s.limit:]...)
	}
	s.mu.Unlock()
	return nil
}

func (s *logStore) snapshot() []logRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]logRecord, len(s.items))
	copy(out, s.items)
	return out
}

func (s *logStore) close() {
	s.enabled.Store(false)
}

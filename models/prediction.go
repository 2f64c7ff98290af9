package models

import (
	"encoding/json"
	"hash/fnv"
	"time"
)

// Sport codes recognised by the service. Feeds are configured per sport and
// records carrying any other value are rejected during normalization.
const (
	SportNBA    = "NBA"
	SportNFL    = "NFL"
	SportMLB    = "MLB"
	SportNHL    = "NHL"
	SportSoccer = "Soccer"
)

// KnownSports lists every sport the predictor produces feeds for.
var KnownSports = []string{SportNBA, SportNFL, SportMLB, SportNHL, SportSoccer}

// IsKnownSport reports whether s is one of the configured sport codes.
func IsKnownSport(s string) bool {
	for _, known := range KnownSports {
		if s == known {
			return true
		}
	}
	return false
}

// PredictionRecord is one predicted player-stat line as produced by the
// external predictor. Records are immutable once published in a snapshot.
type PredictionRecord struct {
	ID              string             `json:"id"`
	Player          string             `json:"player"`
	Team            string             `json:"team"`
	Opponent        string             `json:"opponent"`
	Sport           string             `json:"sport"`
	Stat            string             `json:"stat"`
	GameTime        time.Time          `json:"game_time"`
	Line            float64            `json:"line"`
	PredictedValue  float64            `json:"predicted_value"`
	OverProbability float64            `json:"over_probability"`
	ConfidenceScore float64            `json:"confidence_score"`
	Confidence      ConfidenceCategory `json:"confidence"`
	PredictionRange [2]float64         `json:"prediction_range"`
	TopFactors      []string           `json:"top_factors"`
}

// ContentHash fingerprints every published field of the record. Snapshot
// diffing and archive dedup compare record versions by this hash.
func (r PredictionRecord) ContentHash() uint64 {
	h := fnv.New64a()
	payload, err := json.Marshal(r)
	if err != nil {
		return 0
	}
	h.Write(payload)
	return h.Sum64()
}

// FeedRecord is the lenient ingest shape of a prediction. Older predictor
// builds emit a bare calendar date instead of a game timestamp; the
// normalizer resolves Date into GameTime (midnight UTC) when GameTime is
// absent.
type FeedRecord struct {
	PredictionRecord
	Date string `json:"date,omitempty"`
}

// FeedEnvelope is one per-sport prediction feed document.
type FeedEnvelope struct {
	Sport        string       `json:"sport"`
	GeneratedAt  time.Time    `json:"generated_at"`
	ModelVersion string       `json:"model_version"`
	Predictions  []FeedRecord `json:"predictions"`
}

// RawFeedMessage carries one fetched feed payload from a feed worker to the
// normalizer.
type RawFeedMessage struct {
	Sport     string
	Source    string
	Payload   []byte
	FetchedAt time.Time
}

// RecordBatch is the normalizer's output for one feed payload: the records
// that survived validation plus rejection accounting.
type RecordBatch struct {
	BatchID     string             `json:"batch_id"`
	Sport       string             `json:"sport"`
	Records     []PredictionRecord `json:"records"`
	SourceCount int                `json:"source_count"`
	Rejected    int                `json:"rejected"`
	FetchedAt   time.Time          `json:"fetched_at"`
	ProcessedAt time.Time          `json:"processed_at"`
}

// Snapshot is an immutable point-in-time view of every prediction record.
// A new snapshot wholly replaces the previous one on each ingestion cycle;
// neither the slice nor the records are modified after publication.
type Snapshot struct {
	Version     string             `json:"version"`
	PublishedAt time.Time          `json:"published_at"`
	Records     []PredictionRecord `json:"records"`
}

// SnapshotDiff summarises how one published snapshot differs from the one it
// replaced. Records are matched by ID and compared by content.
type SnapshotDiff struct {
	Added     int `json:"added"`
	Removed   int `json:"removed"`
	Changed   int `json:"changed"`
	Unchanged int `json:"unchanged"`
}

// SnapshotUpdate notifies downstream consumers (mirror, archiver) that a new
// snapshot has been published.
type SnapshotUpdate struct {
	Snapshot *Snapshot    `json:"snapshot"`
	Diff     SnapshotDiff `json:"diff"`
}

// PerformanceUpdate carries one raw monitoring report through the pipeline.
// The payload is forwarded byte-for-byte; only its shape is ever inspected.
type PerformanceUpdate struct {
	Raw       []byte
	Source    string
	FetchedAt time.Time
}

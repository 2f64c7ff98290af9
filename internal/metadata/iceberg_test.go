package metadata

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestGeneratorCreatesMetadata(t *testing.T) {
	dir := t.TempDir()
	gen := NewGenerator(dir, "predictions")
	df := DataFile{
		Path:        "s3://bucket/lake/sport=NBA/year=2025/month=01/day=15/predictions_abc.parquet",
		FileSize:    100,
		RecordCount: 10,
		Partition: map[string]any{
			"sport": "NBA",
			"date":  "2025-01-15",
		},
		Timestamp: time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC),
	}
	if err := gen.AddFile(df); err != nil {
		t.Fatalf("AddFile: %v", err)
	}

	metaPath := filepath.Join(dir, "metadata", "metadata.json")
	raw, err := os.ReadFile(metaPath)
	if err != nil {
		t.Fatalf("metadata not written: %v", err)
	}
	var tm TableMetadata
	if err := json.Unmarshal(raw, &tm); err != nil {
		t.Fatalf("metadata not valid json: %v", err)
	}
	if tm.FormatVersion != 2 {
		t.Errorf("format version = %d, want 2", tm.FormatVersion)
	}
	if len(tm.Snapshots) != 1 {
		t.Fatalf("metadata has %d snapshots, want 1", len(tm.Snapshots))
	}
	if tm.CurrentSnapshotID != tm.Snapshots[0].SnapshotID {
		t.Errorf("current snapshot id %d does not match recorded snapshot %d",
			tm.CurrentSnapshotID, tm.Snapshots[0].SnapshotID)
	}

	catalogDir := filepath.Join(dir, "catalog")
	if err := gen.WriteCatalogEntry(catalogDir); err != nil {
		t.Fatalf("catalog entry: %v", err)
	}
	if _, err := os.Stat(filepath.Join(catalogDir, "predictions.json")); err != nil {
		t.Fatalf("catalog entry not written: %v", err)
	}
}

func TestGeneratorAccumulatesSnapshots(t *testing.T) {
	dir := t.TempDir()
	gen := NewGenerator(dir, "predictions")

	for i := 0; i < 3; i++ {
		df := DataFile{
			Path:        "file.parquet",
			FileSize:    10,
			RecordCount: 1,
			Partition:   map[string]any{"sport": "NBA"},
			Timestamp:   time.Date(2025, 1, 15, 12, i, 0, 0, time.UTC),
		}
		if err := gen.AddFile(df); err != nil {
			t.Fatalf("AddFile %d: %v", i, err)
		}
	}

	snaps := gen.Snapshots()
	if len(snaps) != 3 {
		t.Fatalf("generator recorded %d snapshots, want 3", len(snaps))
	}
	for i := 1; i < len(snaps); i++ {
		if snaps[i].SnapshotID <= snaps[i-1].SnapshotID {
			t.Errorf("snapshot ids not increasing: %d then %d", snaps[i-1].SnapshotID, snaps[i].SnapshotID)
		}
	}
}

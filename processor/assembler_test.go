package processor

import (
	"bytes"
	"context"
	"testing"
	"time"

	"propflow/config"
	"propflow/internal/channel"
	"propflow/models"
	"propflow/store"
)

func assemblerConfig(cycleTimeout time.Duration, sports ...string) *config.Config {
	return &config.Config{
		Ingest: config.IngestConfig{
			CycleTimeout: cycleTimeout,
			Feeds: config.FeedsConfig{
				Mode:   "file",
				Sports: sports,
			},
		},
	}
}

func startAssembler(t *testing.T, cfg *config.Config) (*Assembler, *channel.Channels, *store.Store, context.CancelFunc) {
	t.Helper()

	chans := testProcessorChannels()
	st := store.New()
	a := NewAssembler(cfg, chans, st)

	ctx, cancel := context.WithCancel(context.Background())
	if err := a.Start(ctx); err != nil {
		cancel()
		t.Fatalf("starting assembler: %v", err)
	}
	return a, chans, st, cancel
}

func predRecord(id, sport, player string, line float64) models.PredictionRecord {
	return models.PredictionRecord{
		ID:              id,
		Player:          player,
		Team:            "AAA",
		Opponent:        "BBB",
		Sport:           sport,
		Stat:            "points",
		GameTime:        time.Date(2025, 1, 15, 2, 0, 0, 0, time.UTC),
		Line:            line,
		PredictedValue:  line + 1,
		OverProbability: 0.6,
		ConfidenceScore: 80,
		Confidence:      models.ConfidenceHigh,
	}
}

func batchOf(sport string, records ...models.PredictionRecord) models.RecordBatch {
	return models.RecordBatch{
		BatchID:     "batch-" + sport,
		Sport:       sport,
		Records:     records,
		SourceCount: len(records),
		FetchedAt:   time.Now().UTC(),
		ProcessedAt: time.Now().UTC(),
	}
}

func waitUpdate(t *testing.T, chans *channel.Channels, timeout time.Duration) models.SnapshotUpdate {
	t.Helper()
	select {
	case update := <-chans.Updates:
		return update
	case <-time.After(timeout):
		t.Fatal("timed out waiting for snapshot update")
		return models.SnapshotUpdate{}
	}
}

func TestAssemblerPublishesWhenAllSportsReport(t *testing.T) {
	a, chans, st, cancel := startAssembler(t, assemblerConfig(time.Minute, models.SportNBA, models.SportNFL))
	defer func() {
		cancel()
		a.Stop()
	}()

	ctx := context.Background()
	chans.SendBatch(ctx, batchOf(models.SportNBA,
		predRecord("nba-1", models.SportNBA, "Stephen Curry", 28.5),
		predRecord("nba-2", models.SportNBA, "Jayson Tatum", 27.5)))

	select {
	case update := <-chans.Updates:
		t.Fatalf("snapshot published before all sports reported: %+v", update.Diff)
	case <-time.After(300 * time.Millisecond):
	}

	chans.SendBatch(ctx, batchOf(models.SportNFL,
		predRecord("nfl-1", models.SportNFL, "Patrick Mahomes", 275.5)))

	update := waitUpdate(t, chans, 3*time.Second)
	if got := len(update.Snapshot.Records); got != 3 {
		t.Fatalf("snapshot has %d records, want 3", got)
	}
	wantDiff := models.SnapshotDiff{Added: 3}
	if update.Diff != wantDiff {
		t.Errorf("diff = %+v, want %+v", update.Diff, wantDiff)
	}

	// Records are concatenated in configured sport order.
	gotSports := []string{
		update.Snapshot.Records[0].Sport,
		update.Snapshot.Records[1].Sport,
		update.Snapshot.Records[2].Sport,
	}
	if gotSports[0] != models.SportNBA || gotSports[1] != models.SportNBA || gotSports[2] != models.SportNFL {
		t.Errorf("record sport order = %v, want [NBA NBA NFL]", gotSports)
	}

	if st.Snapshot().Version != update.Snapshot.Version {
		t.Errorf("store snapshot version %q does not match published update %q",
			st.Snapshot().Version, update.Snapshot.Version)
	}

	select {
	case archived := <-chans.Archive:
		if archived.Snapshot.Version != update.Snapshot.Version {
			t.Errorf("archive update version = %q, want %q", archived.Snapshot.Version, update.Snapshot.Version)
		}
	case <-time.After(time.Second):
		t.Error("snapshot update never reached the archive channel")
	}
}

func TestAssemblerIgnoresBatchesForUnconfiguredSports(t *testing.T) {
	a, chans, _, cancel := startAssembler(t, assemblerConfig(time.Minute, models.SportNBA, models.SportNFL))
	defer func() {
		cancel()
		a.Stop()
	}()

	ctx := context.Background()
	// MLB is a known sport but not enabled here; its batch must not count
	// toward cycle completion.
	chans.SendBatch(ctx, batchOf(models.SportMLB, predRecord("mlb-1", models.SportMLB, "Shohei Ohtani", 1.5)))
	chans.SendBatch(ctx, batchOf(models.SportNBA, predRecord("nba-1", models.SportNBA, "Stephen Curry", 28.5)))

	select {
	case update := <-chans.Updates:
		t.Fatalf("snapshot published before every enabled sport reported: %+v", update.Diff)
	case <-time.After(300 * time.Millisecond):
	}

	chans.SendBatch(ctx, batchOf(models.SportNFL, predRecord("nfl-1", models.SportNFL, "Patrick Mahomes", 275.5)))

	update := waitUpdate(t, chans, 3*time.Second)
	ids := make([]string, 0, len(update.Snapshot.Records))
	for _, rec := range update.Snapshot.Records {
		ids = append(ids, rec.ID)
	}
	if len(ids) != 2 || ids[0] != "nba-1" || ids[1] != "nfl-1" {
		t.Fatalf("snapshot records = %v, want [nba-1 nfl-1]", ids)
	}

	a.mu.RLock()
	ignored := a.batchesIgnored
	a.mu.RUnlock()
	if ignored != 1 {
		t.Errorf("batchesIgnored = %d, want 1", ignored)
	}
}

func TestAssemblerCycleTimeoutPublishesPartial(t *testing.T) {
	a, chans, st, cancel := startAssembler(t, assemblerConfig(100*time.Millisecond, models.SportNBA, models.SportNFL))
	defer func() {
		cancel()
		a.Stop()
	}()

	chans.SendBatch(context.Background(), batchOf(models.SportNBA,
		predRecord("nba-1", models.SportNBA, "Stephen Curry", 28.5)))

	update := waitUpdate(t, chans, 3*time.Second)
	if got := len(update.Snapshot.Records); got != 1 {
		t.Fatalf("snapshot has %d records, want 1", got)
	}
	if update.Snapshot.Records[0].ID != "nba-1" {
		t.Errorf("published record = %q, want nba-1", update.Snapshot.Records[0].ID)
	}
	if got := len(st.Snapshot().Records); got != 1 {
		t.Errorf("store snapshot has %d records, want 1", got)
	}
}

func TestAssemblerRetainsMissingSportRecords(t *testing.T) {
	a, chans, _, cancel := startAssembler(t, assemblerConfig(100*time.Millisecond, models.SportNBA, models.SportNFL))
	defer func() {
		cancel()
		a.Stop()
	}()

	ctx := context.Background()
	chans.SendBatch(ctx, batchOf(models.SportNBA, predRecord("nba-1", models.SportNBA, "Stephen Curry", 28.5)))
	chans.SendBatch(ctx, batchOf(models.SportNFL, predRecord("nfl-1", models.SportNFL, "Patrick Mahomes", 275.5)))
	waitUpdate(t, chans, 3*time.Second)

	// Next cycle only the NBA feed reports; the NFL records carry over.
	chans.SendBatch(ctx, batchOf(models.SportNBA, predRecord("nba-2", models.SportNBA, "Luka Doncic", 29.5)))

	update := waitUpdate(t, chans, 3*time.Second)
	ids := make([]string, 0, len(update.Snapshot.Records))
	for _, rec := range update.Snapshot.Records {
		ids = append(ids, rec.ID)
	}
	if len(ids) != 2 || ids[0] != "nba-2" || ids[1] != "nfl-1" {
		t.Fatalf("snapshot records = %v, want [nba-2 nfl-1]", ids)
	}

	wantDiff := models.SnapshotDiff{Added: 1, Removed: 1, Unchanged: 1}
	if update.Diff != wantDiff {
		t.Errorf("diff = %+v, want %+v", update.Diff, wantDiff)
	}
}

func TestAssemblerEmptyBatchClearsSport(t *testing.T) {
	a, chans, _, cancel := startAssembler(t, assemblerConfig(100*time.Millisecond, models.SportNBA, models.SportNFL))
	defer func() {
		cancel()
		a.Stop()
	}()

	ctx := context.Background()
	chans.SendBatch(ctx, batchOf(models.SportNBA, predRecord("nba-1", models.SportNBA, "Stephen Curry", 28.5)))
	chans.SendBatch(ctx, batchOf(models.SportNFL, predRecord("nfl-1", models.SportNFL, "Patrick Mahomes", 275.5)))
	waitUpdate(t, chans, 3*time.Second)

	// An explicitly empty feed clears its sport rather than carrying over.
	chans.SendBatch(ctx, batchOf(models.SportNBA))

	update := waitUpdate(t, chans, 3*time.Second)
	if got := len(update.Snapshot.Records); got != 1 {
		t.Fatalf("snapshot has %d records, want 1", got)
	}
	if update.Snapshot.Records[0].ID != "nfl-1" {
		t.Errorf("remaining record = %q, want nfl-1", update.Snapshot.Records[0].ID)
	}
	wantDiff := models.SnapshotDiff{Removed: 1, Unchanged: 1}
	if update.Diff != wantDiff {
		t.Errorf("diff = %+v, want %+v", update.Diff, wantDiff)
	}
}

func TestAssemblerDiffCountsChangedRecords(t *testing.T) {
	a, chans, _, cancel := startAssembler(t, assemblerConfig(time.Minute, models.SportNBA, models.SportNFL))
	defer func() {
		cancel()
		a.Stop()
	}()

	ctx := context.Background()
	chans.SendBatch(ctx, batchOf(models.SportNBA, predRecord("nba-1", models.SportNBA, "Stephen Curry", 28.5)))
	chans.SendBatch(ctx, batchOf(models.SportNFL, predRecord("nfl-1", models.SportNFL, "Patrick Mahomes", 275.5)))
	waitUpdate(t, chans, 3*time.Second)

	// Same IDs, but the NBA line moved.
	chans.SendBatch(ctx, batchOf(models.SportNBA, predRecord("nba-1", models.SportNBA, "Stephen Curry", 29.5)))
	chans.SendBatch(ctx, batchOf(models.SportNFL, predRecord("nfl-1", models.SportNFL, "Patrick Mahomes", 275.5)))

	update := waitUpdate(t, chans, 3*time.Second)
	wantDiff := models.SnapshotDiff{Changed: 1, Unchanged: 1}
	if update.Diff != wantDiff {
		t.Errorf("diff = %+v, want %+v", update.Diff, wantDiff)
	}
}

func TestAssemblerNewerBatchReplacesOlderWithinCycle(t *testing.T) {
	a, chans, _, cancel := startAssembler(t, assemblerConfig(time.Minute, models.SportNBA, models.SportNFL))
	defer func() {
		cancel()
		a.Stop()
	}()

	ctx := context.Background()
	chans.SendBatch(ctx, batchOf(models.SportNBA, predRecord("nba-1", models.SportNBA, "Stephen Curry", 28.5)))
	chans.SendBatch(ctx, batchOf(models.SportNBA, predRecord("nba-2", models.SportNBA, "Jayson Tatum", 27.5)))
	chans.SendBatch(ctx, batchOf(models.SportNFL, predRecord("nfl-1", models.SportNFL, "Patrick Mahomes", 275.5)))

	update := waitUpdate(t, chans, 3*time.Second)
	ids := make([]string, 0, len(update.Snapshot.Records))
	for _, rec := range update.Snapshot.Records {
		ids = append(ids, rec.ID)
	}
	if len(ids) != 2 || ids[0] != "nba-2" || ids[1] != "nfl-1" {
		t.Errorf("snapshot records = %v, want [nba-2 nfl-1]", ids)
	}
}

func TestAssemblerAppliesPerformanceReports(t *testing.T) {
	a, chans, st, cancel := startAssembler(t, assemblerConfig(time.Minute, models.SportNBA))
	defer func() {
		cancel()
		a.Stop()
	}()

	raw := []byte(`{"overall": {"accuracy": 0.61}, "by_sport": {}, "by_confidence": {}, "trend": []}`)
	fetchedAt := time.Date(2025, 1, 15, 6, 0, 0, 0, time.UTC)
	chans.SendReport(context.Background(), models.PerformanceUpdate{
		Raw:       raw,
		Source:    "file",
		FetchedAt: fetchedAt,
	})

	deadline := time.Now().Add(2 * time.Second)
	for {
		stored, storedAt, ok := st.Performance()
		if ok {
			if !bytes.Equal(stored, raw) {
				t.Errorf("stored report = %s, want %s", stored, raw)
			}
			if !storedAt.Equal(fetchedAt) {
				t.Errorf("stored fetch time = %v, want %v", storedAt, fetchedAt)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("performance report never reached the store")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestAssemblerDoubleStartErrors(t *testing.T) {
	a, _, _, cancel := startAssembler(t, assemblerConfig(time.Minute, models.SportNBA))
	defer func() {
		cancel()
		a.Stop()
	}()

	if err := a.Start(context.Background()); err == nil {
		t.Error("second Start returned nil, want already-running error")
	}
}

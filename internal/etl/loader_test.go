package etl

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Davidrsdiaz/Hyperliquid-TWAP-API-Open-Source/internal/clock"
	"github.com/Davidrsdiaz/Hyperliquid-TWAP-API-Open-Source/internal/domain"
	"github.com/rs/zerolog"
)

// fakeSnapshotStore mimics the conflict-ignoring insert: rows whose
// natural key was seen before count as duplicates, not errors.
type fakeSnapshotStore struct {
	mu          sync.Mutex
	seen        map[string]struct{}
	batches     int
	failAtBatch int // 1-based, 0 means never fail
	// transientFailures makes the next N calls fail before recovering.
	transientFailures int
}

func newFakeSnapshotStore() *fakeSnapshotStore {
	return &fakeSnapshotStore{seen: map[string]struct{}{}}
}

func (f *fakeSnapshotStore) InsertBatch(ctx context.Context, snapshots []domain.Snapshot) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches++
	if f.transientFailures > 0 {
		f.transientFailures--
		return 0, context.DeadlineExceeded
	}
	if f.failAtBatch != 0 && f.batches >= f.failAtBatch {
		return 0, errors.New("connection reset")
	}
	inserted := 0
	for _, s := range snapshots {
		key := s.OrderID + "|" + s.HolderID + "|" + s.ObservedAt.Format(time.RFC3339Nano)
		if _, dup := f.seen[key]; dup {
			continue
		}
		f.seen[key] = struct{}{}
		inserted++
	}
	return inserted, nil
}

type fakeIngestLog struct {
	mu      sync.Mutex
	entries []domain.IngestLogEntry
	err     error
}

func (f *fakeIngestLog) Upsert(ctx context.Context, entry domain.IngestLogEntry) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, entry)
	return nil
}

func (f *fakeIngestLog) ProcessedObjectIDs(ctx context.Context) (map[string]struct{}, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]struct{}, len(f.entries))
	for _, e := range f.entries {
		out[e.SourceObjectID] = struct{}{}
	}
	return out, nil
}

func validRows(n int) []domain.Row {
	rows := make([]domain.Row, 0, n)
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		rows = append(rows, domain.Row{Fields: []domain.Field{
			{Name: colOrderID, Value: domain.Int(int64(1000 + i))},
			{Name: colHolderID, Value: domain.String("0xholder")},
			{Name: colObservedAt, Value: domain.Time(base.Add(time.Duration(i) * time.Minute))},
			{Name: colSizeFilled, Value: domain.String(fmt.Sprintf("%d.5", i))},
		}})
	}
	return rows
}

func newTestLoader(store SnapshotWriter, log IngestLogWriter, batchSize int) *Loader {
	clk := clock.NewFixed(time.Date(2025, 3, 2, 9, 0, 0, 0, time.UTC))
	loader := NewLoader(store, log, clk, zerolog.Nop(), batchSize, time.Second, 3)
	loader.backoff = time.Millisecond
	return loader
}

func TestLoad_CleanObject(t *testing.T) {
	store := newFakeSnapshotStore()
	log := &fakeIngestLog{}
	loader := newTestLoader(store, log, 2)

	res, err := loader.Load(context.Background(), "obj-1", time.Now(), validRows(5))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if res.RowsDecoded != 5 || res.RowsInserted != 5 || res.RowsSkipped != 0 || res.RowsDuplicate != 0 {
		t.Errorf("result = %+v", res)
	}
	if res.ErrorText != nil {
		t.Errorf("ErrorText = %q, want nil", *res.ErrorText)
	}
	if store.batches != 3 {
		t.Errorf("batches = %d, want 3 for 5 rows at batch size 2", store.batches)
	}
	if len(log.entries) != 1 {
		t.Fatalf("log entries = %d, want 1", len(log.entries))
	}
	entry := log.entries[0]
	if entry.SourceObjectID != "obj-1" || entry.RowsIngested == nil || *entry.RowsIngested != 5 || entry.ErrorText != nil {
		t.Errorf("entry = %+v", entry)
	}
}

func TestLoad_SkipsMalformedRows(t *testing.T) {
	store := newFakeSnapshotStore()
	log := &fakeIngestLog{}
	loader := newTestLoader(store, log, 100)

	rows := validRows(3)
	rows = append(rows, domain.Row{Fields: []domain.Field{
		{Name: colHolderID, Value: domain.String("0xholder")},
		{Name: colObservedAt, Value: domain.Time(time.Now())},
	}})

	res, err := loader.Load(context.Background(), "obj-2", time.Now(), rows)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if res.RowsDecoded != 4 || res.RowsInserted != 3 || res.RowsSkipped != 1 {
		t.Errorf("result = %+v", res)
	}
	if res.ErrorText == nil || !strings.Contains(*res.ErrorText, "skipped 1 of 4 rows") {
		t.Errorf("ErrorText = %v", res.ErrorText)
	}
	if len(log.entries) != 1 || log.entries[0].ErrorText == nil {
		t.Fatalf("expected one log entry carrying the skip summary, got %+v", log.entries)
	}
}

func TestLoad_ReprocessingIsIdempotent(t *testing.T) {
	store := newFakeSnapshotStore()
	log := &fakeIngestLog{}
	loader := newTestLoader(store, log, 2)
	rows := validRows(4)

	if _, err := loader.Load(context.Background(), "obj-3", time.Now(), rows); err != nil {
		t.Fatalf("first Load: %v", err)
	}
	res, err := loader.Load(context.Background(), "obj-3", time.Now(), rows)
	if err != nil {
		t.Fatalf("second Load: %v", err)
	}

	if res.RowsInserted != 0 || res.RowsDuplicate != 4 {
		t.Errorf("second pass result = %+v, want all duplicates", res)
	}
	if res.ErrorText != nil {
		t.Errorf("duplicates are not an error, got %q", *res.ErrorText)
	}
	if len(log.entries) != 2 {
		t.Fatalf("log entries = %d, want 2", len(log.entries))
	}
	if last := log.entries[1]; last.RowsIngested == nil || *last.RowsIngested != 0 {
		t.Errorf("second entry RowsIngested = %v, want 0", last.RowsIngested)
	}
}

func TestLoad_WriteFailureKeepsPartialProgress(t *testing.T) {
	store := newFakeSnapshotStore()
	store.failAtBatch = 2
	log := &fakeIngestLog{}
	loader := newTestLoader(store, log, 2)

	res, err := loader.Load(context.Background(), "obj-4", time.Now(), validRows(6))
	if err == nil {
		t.Fatal("expected write error")
	}

	if res.RowsInserted != 2 {
		t.Errorf("RowsInserted = %d, want 2 (first batch only)", res.RowsInserted)
	}
	if res.RowsDuplicate != 0 {
		t.Errorf("RowsDuplicate = %d, want 0 after a write failure", res.RowsDuplicate)
	}
	if res.ErrorText == nil || !strings.Contains(*res.ErrorText, "store write failed after 2 rows") {
		t.Errorf("ErrorText = %v", res.ErrorText)
	}
	if len(log.entries) != 1 {
		t.Fatalf("log entries = %d, want 1", len(log.entries))
	}
	entry := log.entries[0]
	if entry.RowsIngested == nil || *entry.RowsIngested != 2 || entry.ErrorText == nil {
		t.Errorf("entry = %+v", entry)
	}
}

func TestLoad_RetriesTransientWriteFailure(t *testing.T) {
	store := newFakeSnapshotStore()
	store.transientFailures = 1
	log := &fakeIngestLog{}
	loader := newTestLoader(store, log, 2)

	res, err := loader.Load(context.Background(), "obj-6", time.Now(), validRows(4))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if res.RowsInserted != 4 || res.RowsDuplicate != 0 {
		t.Errorf("result = %+v, want all rows inserted after retry", res)
	}
	if res.ErrorText != nil {
		t.Errorf("ErrorText = %q, want nil after a recovered write", *res.ErrorText)
	}
	if store.batches != 3 {
		t.Errorf("batches = %d, want 3 (timed-out first attempt plus 2 clean batches)", store.batches)
	}
	if len(log.entries) != 1 {
		t.Fatalf("log entries = %d, want 1", len(log.entries))
	}
	if entry := log.entries[0]; entry.RowsIngested == nil || *entry.RowsIngested != 4 || entry.ErrorText != nil {
		t.Errorf("entry = %+v", entry)
	}
}

func TestLoad_WriteRetriesExhausted(t *testing.T) {
	store := newFakeSnapshotStore()
	store.transientFailures = 3
	log := &fakeIngestLog{}
	loader := newTestLoader(store, log, 10)

	res, err := loader.Load(context.Background(), "obj-7", time.Now(), validRows(2))
	if err == nil || !strings.Contains(err.Error(), "after 3 attempts") {
		t.Fatalf("expected exhausted retries, got %v", err)
	}
	if res.RowsInserted != 0 {
		t.Errorf("RowsInserted = %d, want 0", res.RowsInserted)
	}
	if res.ErrorText == nil || !strings.Contains(*res.ErrorText, "store write failed") {
		t.Errorf("ErrorText = %v", res.ErrorText)
	}
}

func TestLoad_LogUpsertFailure(t *testing.T) {
	store := newFakeSnapshotStore()
	log := &fakeIngestLog{err: errors.New("log table gone")}
	loader := newTestLoader(store, log, 10)

	_, err := loader.Load(context.Background(), "obj-5", time.Now(), validRows(1))
	if err == nil || !strings.Contains(err.Error(), "finalize ingest log") {
		t.Fatalf("expected ingest log failure, got %v", err)
	}
}

package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/Davidrsdiaz/Hyperliquid-TWAP-API-Open-Source/internal/domain"
	"github.com/Davidrsdiaz/Hyperliquid-TWAP-API-Open-Source/internal/storage/postgres"
	"github.com/Davidrsdiaz/Hyperliquid-TWAP-API-Open-Source/internal/testutil"
	"github.com/shopspring/decimal"
)

func testSnapshot(orderID, holderID string, observedAt time.Time) domain.Snapshot {
	instrument := "ETH"
	status := "activated"
	return domain.Snapshot{
		OrderID:         orderID,
		HolderID:        holderID,
		ObservedAt:      observedAt,
		Instrument:      &instrument,
		LifecycleStatus: &status,
		SizeFilled:      decimal.NewNullDecimal(decimal.RequireFromString("4.25")),
		SourceObjectID:  "raw/twap_statuses/test.parquet",
		Raw:             map[string]any{"twap_id": orderID},
	}
}

func TestInsertBatch_IgnoresNaturalKeyConflicts(t *testing.T) {
	pool := testutil.NewTestPool(t)
	ctx := context.Background()
	testutil.ApplyMigrations(t, ctx, pool)
	testutil.TruncateAll(t, ctx, pool)

	repo := postgres.NewSnapshotRepository(pool)
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	batch := []domain.Snapshot{
		testSnapshot("order-1", "0xaaa", base),
		testSnapshot("order-1", "0xaaa", base.Add(time.Minute)),
		testSnapshot("order-2", "0xaaa", base),
	}
	inserted, err := repo.InsertBatch(ctx, batch)
	if err != nil {
		t.Fatalf("InsertBatch: %v", err)
	}
	if inserted != 3 {
		t.Fatalf("inserted = %d, want 3", inserted)
	}

	// Same batch again: every row is a natural-key collision.
	inserted, err = repo.InsertBatch(ctx, batch)
	if err != nil {
		t.Fatalf("re-insert: %v", err)
	}
	if inserted != 0 {
		t.Fatalf("re-insert inserted = %d, want 0", inserted)
	}

	// A changed payload under the same key stays a no-op: first write wins.
	changed := testSnapshot("order-1", "0xaaa", base)
	other := "BTC"
	changed.Instrument = &other
	inserted, err = repo.InsertBatch(ctx, []domain.Snapshot{changed})
	if err != nil {
		t.Fatalf("conflicting insert: %v", err)
	}
	if inserted != 0 {
		t.Fatalf("conflicting insert inserted = %d, want 0", inserted)
	}

	rows, err := repo.GetByOrderID(ctx, "order-1")
	if err != nil {
		t.Fatalf("GetByOrderID: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("order-1 rows = %d, want 2", len(rows))
	}
	if rows[0].Instrument == nil || *rows[0].Instrument != "ETH" {
		t.Errorf("instrument = %v, want original ETH", rows[0].Instrument)
	}
}

func TestInsertBatch_RoundTripsDecimalsAndRaw(t *testing.T) {
	pool := testutil.NewTestPool(t)
	ctx := context.Background()
	testutil.ApplyMigrations(t, ctx, pool)
	testutil.TruncateAll(t, ctx, pool)

	repo := postgres.NewSnapshotRepository(pool)

	snap := testSnapshot("order-dec", "0xbbb", time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC))
	snap.SizeRequested = decimal.NewNullDecimal(decimal.RequireFromString("123456789.000000001"))
	snap.ValueFilled = decimal.NewNullDecimal(decimal.RequireFromString("0.000001"))
	minutes := 90
	snap.DurationMinutes = &minutes

	if _, err := repo.InsertBatch(ctx, []domain.Snapshot{snap}); err != nil {
		t.Fatalf("InsertBatch: %v", err)
	}

	rows, err := repo.GetByOrderID(ctx, "order-dec")
	if err != nil {
		t.Fatalf("GetByOrderID: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("rows = %d, want 1", len(rows))
	}
	got := rows[0]
	if !got.SizeRequested.Valid || !got.SizeRequested.Decimal.Equal(snap.SizeRequested.Decimal) {
		t.Errorf("SizeRequested = %v, want %v", got.SizeRequested, snap.SizeRequested)
	}
	if !got.ValueFilled.Valid || !got.ValueFilled.Decimal.Equal(snap.ValueFilled.Decimal) {
		t.Errorf("ValueFilled = %v, want %v", got.ValueFilled, snap.ValueFilled)
	}
	if !got.SizeFilled.Valid || !got.SizeFilled.Decimal.Equal(snap.SizeFilled.Decimal) {
		t.Errorf("SizeFilled = %v", got.SizeFilled)
	}
	if got.DurationMinutes == nil || *got.DurationMinutes != 90 {
		t.Errorf("DurationMinutes = %v", got.DurationMinutes)
	}
	if got.Raw["twap_id"] != "order-dec" {
		t.Errorf("Raw = %v", got.Raw)
	}
	if got.InsertedAt.IsZero() {
		t.Error("InsertedAt not populated")
	}
}

func TestQueryRange(t *testing.T) {
	pool := testutil.NewTestPool(t)
	ctx := context.Background()
	testutil.ApplyMigrations(t, ctx, pool)
	testutil.TruncateAll(t, ctx, pool)

	repo := postgres.NewSnapshotRepository(pool)
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	btc := testSnapshot("order-b", "0xholder", base.Add(time.Hour))
	instrument := "BTC"
	btc.Instrument = &instrument

	seed := []domain.Snapshot{
		testSnapshot("order-a", "0xholder", base),
		testSnapshot("order-a", "0xholder", base.Add(2*time.Hour)),
		btc,
		testSnapshot("order-c", "0xother", base.Add(time.Hour)),
		testSnapshot("order-d", "0xholder", base.Add(48*time.Hour)),
	}
	if _, err := repo.InsertBatch(ctx, seed); err != nil {
		t.Fatalf("seed: %v", err)
	}

	t.Run("filters by holder and range", func(t *testing.T) {
		rows, err := repo.QueryRange(ctx, "0xholder", base, base.Add(3*time.Hour), nil)
		if err != nil {
			t.Fatalf("QueryRange: %v", err)
		}
		if len(rows) != 3 {
			t.Fatalf("rows = %d, want 3", len(rows))
		}
		// order-a before order-b, and within order-a newest first.
		if rows[0].OrderID != "order-a" || !rows[0].ObservedAt.Equal(base.Add(2*time.Hour)) {
			t.Errorf("first row = %s at %v", rows[0].OrderID, rows[0].ObservedAt)
		}
		if rows[1].OrderID != "order-a" || !rows[1].ObservedAt.Equal(base) {
			t.Errorf("second row = %s at %v", rows[1].OrderID, rows[1].ObservedAt)
		}
		if rows[2].OrderID != "order-b" {
			t.Errorf("third row = %s", rows[2].OrderID)
		}
	})

	t.Run("filters by instrument", func(t *testing.T) {
		instrument := "BTC"
		rows, err := repo.QueryRange(ctx, "0xholder", base, base.Add(3*time.Hour), &instrument)
		if err != nil {
			t.Fatalf("QueryRange: %v", err)
		}
		if len(rows) != 1 || rows[0].OrderID != "order-b" {
			t.Fatalf("rows = %+v, want only order-b", rows)
		}
	})

	t.Run("range bounds are inclusive", func(t *testing.T) {
		rows, err := repo.QueryRange(ctx, "0xholder", base, base, nil)
		if err != nil {
			t.Fatalf("QueryRange: %v", err)
		}
		if len(rows) != 1 || !rows[0].ObservedAt.Equal(base) {
			t.Fatalf("rows = %+v, want the boundary row", rows)
		}
	})
}

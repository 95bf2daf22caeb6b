package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/Davidrsdiaz/Hyperliquid-TWAP-API-Open-Source/internal/domain"
	"github.com/Davidrsdiaz/Hyperliquid-TWAP-API-Open-Source/internal/storage/postgres"
	"github.com/Davidrsdiaz/Hyperliquid-TWAP-API-Open-Source/internal/testutil"
)

func TestIngestLogUpsert(t *testing.T) {
	pool := testutil.NewTestPool(t)
	ctx := context.Background()
	testutil.ApplyMigrations(t, ctx, pool)
	testutil.TruncateAll(t, ctx, pool)

	repo := postgres.NewIngestLogRepository(pool)
	modified := time.Date(2025, 3, 1, 6, 0, 0, 0, time.UTC)

	// First pass fails.
	reason := "fetch: after 3 attempts: 503 slow down"
	err := repo.Upsert(ctx, domain.IngestLogEntry{
		SourceObjectID:   "raw/obj-1.parquet",
		SourceModifiedAt: modified,
		ErrorText:        &reason,
		ProcessedAt:      time.Date(2025, 3, 1, 7, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("Upsert failure entry: %v", err)
	}

	// Reprocessing succeeds and must replace the entry, not add one.
	count := 120
	err = repo.Upsert(ctx, domain.IngestLogEntry{
		SourceObjectID:   "raw/obj-1.parquet",
		SourceModifiedAt: modified,
		RowsIngested:     &count,
		ProcessedAt:      time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("Upsert success entry: %v", err)
	}

	ids, err := repo.ProcessedObjectIDs(ctx)
	if err != nil {
		t.Fatalf("ProcessedObjectIDs: %v", err)
	}
	if len(ids) != 1 {
		t.Fatalf("ids = %v, want exactly one entry", ids)
	}

	latest, err := repo.LatestSuccess(ctx)
	if err != nil {
		t.Fatalf("LatestSuccess: %v", err)
	}
	if latest == nil || latest.SourceObjectID != "raw/obj-1.parquet" {
		t.Fatalf("latest = %+v", latest)
	}
	if latest.RowsIngested == nil || *latest.RowsIngested != 120 || latest.ErrorText != nil {
		t.Errorf("latest = %+v", latest)
	}
}

func TestProcessedObjectIDs_IncludesFailures(t *testing.T) {
	pool := testutil.NewTestPool(t)
	ctx := context.Background()
	testutil.ApplyMigrations(t, ctx, pool)
	testutil.TruncateAll(t, ctx, pool)

	repo := postgres.NewIngestLogRepository(pool)
	now := time.Now().UTC()

	count := 10
	if err := repo.Upsert(ctx, domain.IngestLogEntry{
		SourceObjectID:   "raw/good.parquet",
		SourceModifiedAt: now,
		RowsIngested:     &count,
		ProcessedAt:      now,
	}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	reason := "decode: not parquet"
	if err := repo.Upsert(ctx, domain.IngestLogEntry{
		SourceObjectID:   "raw/bad.parquet",
		SourceModifiedAt: now,
		ErrorText:        &reason,
		ProcessedAt:      now,
	}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	ids, err := repo.ProcessedObjectIDs(ctx)
	if err != nil {
		t.Fatalf("ProcessedObjectIDs: %v", err)
	}
	if _, ok := ids["raw/good.parquet"]; !ok {
		t.Error("successful object missing from index")
	}
	if _, ok := ids["raw/bad.parquet"]; !ok {
		t.Error("failed object missing from index; incremental would retry it forever")
	}
}

func TestLatestSuccess_SkipsFailuresAndEmptyLog(t *testing.T) {
	pool := testutil.NewTestPool(t)
	ctx := context.Background()
	testutil.ApplyMigrations(t, ctx, pool)
	testutil.TruncateAll(t, ctx, pool)

	repo := postgres.NewIngestLogRepository(pool)

	latest, err := repo.LatestSuccess(ctx)
	if err != nil {
		t.Fatalf("LatestSuccess on empty log: %v", err)
	}
	if latest != nil {
		t.Fatalf("latest = %+v, want nil", latest)
	}

	now := time.Now().UTC()
	reason := "store write failed after 0 rows"
	if err := repo.Upsert(ctx, domain.IngestLogEntry{
		SourceObjectID:   "raw/only-failure.parquet",
		SourceModifiedAt: now,
		ErrorText:        &reason,
		ProcessedAt:      now,
	}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	latest, err = repo.LatestSuccess(ctx)
	if err != nil {
		t.Fatalf("LatestSuccess: %v", err)
	}
	if latest != nil {
		t.Fatalf("latest = %+v, want nil when only failures are logged", latest)
	}

	count := 5
	older := now.Add(-time.Hour)
	if err := repo.Upsert(ctx, domain.IngestLogEntry{
		SourceObjectID:   "raw/older-success.parquet",
		SourceModifiedAt: older,
		RowsIngested:     &count,
		ProcessedAt:      older,
	}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	latest, err = repo.LatestSuccess(ctx)
	if err != nil {
		t.Fatalf("LatestSuccess: %v", err)
	}
	if latest == nil || latest.SourceObjectID != "raw/older-success.parquet" {
		t.Fatalf("latest = %+v", latest)
	}
}

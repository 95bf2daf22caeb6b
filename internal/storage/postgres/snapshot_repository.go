package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/Davidrsdiaz/Hyperliquid-TWAP-API-Open-Source/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type SnapshotRepository struct {
	pool *pgxpool.Pool
}

func NewSnapshotRepository(pool *pgxpool.Pool) *SnapshotRepository {
	return &SnapshotRepository{pool: pool}
}

const insertSnapshotStmt = `
INSERT INTO twap_snapshots (
	order_id, holder_id, observed_at,
	instrument, direction,
	size_requested, size_filled, value_filled,
	lifecycle_status, duration_minutes,
	source_object_id, raw
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
ON CONFLICT (order_id, holder_id, observed_at) DO NOTHING`

// InsertBatch writes one batch of snapshots inside a single transaction.
// Natural-key collisions are ignored; the returned count is the number of
// rows actually inserted, so callers can account for duplicates.
func (r *SnapshotRepository) InsertBatch(ctx context.Context, snapshots []domain.Snapshot) (int, error) {
	if len(snapshots) == 0 {
		return 0, nil
	}

	var inserted int
	err := withTx(ctx, r.pool, func(txCtx context.Context) error {
		batch := &pgx.Batch{}
		for _, s := range snapshots {
			batch.Queue(insertSnapshotStmt,
				s.OrderID,
				s.HolderID,
				s.ObservedAt,
				s.Instrument,
				s.Direction,
				s.SizeRequested,
				s.SizeFilled,
				s.ValueFilled,
				s.LifecycleStatus,
				s.DurationMinutes,
				s.SourceObjectID,
				s.Raw,
			)
		}

		results := txFromContext(txCtx).SendBatch(txCtx, batch)
		defer func() { _ = results.Close() }()

		for range snapshots {
			tag, err := results.Exec()
			if err != nil {
				return fmt.Errorf("insert snapshot: %w", err)
			}
			inserted += int(tag.RowsAffected())
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

const snapshotColumns = `
	order_id, holder_id, observed_at,
	instrument, direction,
	size_requested, size_filled, value_filled,
	lifecycle_status, duration_minutes,
	source_object_id, raw, inserted_at`

// QueryRange returns all snapshots for a holder within [start, end],
// optionally filtered by instrument. Rows come back ordered by order_id
// ascending, then observed_at and inserted_at descending; the query engine
// relies on this ordering for grouping and its latest-wins tie-break.
func (r *SnapshotRepository) QueryRange(ctx context.Context, holderID string, start, end time.Time, instrument *string) ([]domain.Snapshot, error) {
	query := `
SELECT ` + snapshotColumns + `
FROM twap_snapshots
WHERE holder_id = $1 AND observed_at >= $2 AND observed_at <= $3`

	args := []any{holderID, start, end}
	if instrument != nil {
		query += ` AND instrument = $4`
		args = append(args, *instrument)
	}
	query += ` ORDER BY order_id ASC, observed_at DESC, inserted_at DESC`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query snapshots: %w", err)
	}
	defer rows.Close()

	return scanSnapshots(rows)
}

// GetByOrderID returns every snapshot for an order across all holders and
// time, newest first.
func (r *SnapshotRepository) GetByOrderID(ctx context.Context, orderID string) ([]domain.Snapshot, error) {
	query := `
SELECT ` + snapshotColumns + `
FROM twap_snapshots
WHERE order_id = $1
ORDER BY observed_at DESC, inserted_at DESC`

	rows, err := r.pool.Query(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("query snapshots by order id: %w", err)
	}
	defer rows.Close()

	return scanSnapshots(rows)
}

func scanSnapshots(rows pgx.Rows) ([]domain.Snapshot, error) {
	var out []domain.Snapshot
	for rows.Next() {
		var s domain.Snapshot
		if err := rows.Scan(
			&s.OrderID,
			&s.HolderID,
			&s.ObservedAt,
			&s.Instrument,
			&s.Direction,
			&s.SizeRequested,
			&s.SizeFilled,
			&s.ValueFilled,
			&s.LifecycleStatus,
			&s.DurationMinutes,
			&s.SourceObjectID,
			&s.Raw,
			&s.InsertedAt,
		); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshots: %w", err)
	}
	return out, nil
}

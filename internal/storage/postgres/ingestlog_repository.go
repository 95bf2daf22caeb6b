package postgres

import (
	"context"
	"fmt"

	"github.com/Davidrsdiaz/Hyperliquid-TWAP-API-Open-Source/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type IngestLogRepository struct {
	pool *pgxpool.Pool
}

func NewIngestLogRepository(pool *pgxpool.Pool) *IngestLogRepository {
	return &IngestLogRepository{pool: pool}
}

// Upsert records the ingestion outcome for one source object. The key is
// source_object_id; concurrent runs racing on the same object converge on
// a single entry rather than two.
func (r *IngestLogRepository) Upsert(ctx context.Context, entry domain.IngestLogEntry) error {
	const stmt = `
INSERT INTO ingest_log (source_object_id, source_modified_at, rows_ingested, error_text, processed_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (source_object_id) DO UPDATE SET
	source_modified_at = EXCLUDED.source_modified_at,
	rows_ingested = EXCLUDED.rows_ingested,
	error_text = EXCLUDED.error_text,
	processed_at = EXCLUDED.processed_at`

	_, err := r.pool.Exec(ctx, stmt,
		entry.SourceObjectID,
		entry.SourceModifiedAt,
		entry.RowsIngested,
		entry.ErrorText,
		entry.ProcessedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert ingest log: %w", err)
	}
	return nil
}

// ProcessedObjectIDs returns the ids of every logged object, success or
// failure. Incremental runs skip all of them; reprocessing an errored
// object requires the since-date or single-object mode.
func (r *IngestLogRepository) ProcessedObjectIDs(ctx context.Context) (map[string]struct{}, error) {
	rows, err := r.pool.Query(ctx, `SELECT source_object_id FROM ingest_log`)
	if err != nil {
		return nil, fmt.Errorf("list processed objects: %w", err)
	}
	defer rows.Close()

	out := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan processed object id: %w", err)
		}
		out[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate processed objects: %w", err)
	}
	return out, nil
}

// LatestSuccess returns the most recently processed error-free entry, or
// nil when nothing has been ingested yet.
func (r *IngestLogRepository) LatestSuccess(ctx context.Context) (*domain.IngestLogEntry, error) {
	const query = `
SELECT source_object_id, source_modified_at, rows_ingested, error_text, processed_at
FROM ingest_log
WHERE error_text IS NULL
ORDER BY processed_at DESC
LIMIT 1`

	var entry domain.IngestLogEntry
	err := r.pool.QueryRow(ctx, query).Scan(
		&entry.SourceObjectID,
		&entry.SourceModifiedAt,
		&entry.RowsIngested,
		&entry.ErrorText,
		&entry.ProcessedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("latest ingest log entry: %w", err)
	}
	return &entry, nil
}

// Ping reports store connectivity for health checks.
func (r *IngestLogRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

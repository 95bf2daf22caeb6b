package etl

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/Davidrsdiaz/Hyperliquid-TWAP-API-Open-Source/internal/clock"
	"github.com/Davidrsdiaz/Hyperliquid-TWAP-API-Open-Source/internal/domain"
	"github.com/Davidrsdiaz/Hyperliquid-TWAP-API-Open-Source/internal/metrics"
	"github.com/rs/zerolog"
)

// SnapshotWriter is the store capability the loader needs: conflict-safe
// batch insertion returning the number of rows actually written.
type SnapshotWriter interface {
	InsertBatch(ctx context.Context, snapshots []domain.Snapshot) (int, error)
}

// IngestLogWriter upserts the per-object ingestion outcome.
type IngestLogWriter interface {
	Upsert(ctx context.Context, entry domain.IngestLogEntry) error
}

// Loader maps decoded rows and writes them to the snapshot store in
// bounded batches, then finalizes the ingest log entry for the object.
type Loader struct {
	snapshots    SnapshotWriter
	log          IngestLogWriter
	clock        clock.Clock
	logger       zerolog.Logger
	batchSize    int
	writeTimeout time.Duration
	maxRetries   int
	// backoff is lowered in tests; runs use initialBackoff.
	backoff time.Duration
}

func NewLoader(snapshots SnapshotWriter, log IngestLogWriter, clk clock.Clock, logger zerolog.Logger, batchSize int, writeTimeout time.Duration, maxRetries int) *Loader {
	if maxRetries < 1 {
		maxRetries = 1
	}
	return &Loader{
		snapshots:    snapshots,
		log:          log,
		clock:        clk,
		logger:       logger,
		batchSize:    batchSize,
		writeTimeout: writeTimeout,
		maxRetries:   maxRetries,
		backoff:      initialBackoff,
	}
}

// LoadResult is the outcome of loading one object's rows.
type LoadResult struct {
	RowsDecoded  int
	RowsInserted int
	// RowsSkipped counts rows dropped by mapping errors.
	RowsSkipped int
	// RowsDuplicate counts rows the store already held (natural-key
	// collision). Expected on reprocessing and overlapping source files.
	RowsDuplicate int
	// ErrorText is the summary recorded in the ingest log, nil when the
	// object loaded cleanly.
	ErrorText *string
}

// Load writes all rows of one source object. Malformed rows are skipped
// and summarized rather than aborting the object. Each batch write runs
// under the configured timeout and is retried with jittered backoff;
// only after the retries are exhausted does the write failure stop
// further batches, and rows already committed stay committed.
// Exactly one ingest log entry is upserted per call. Re-invoking Load for
// the same object and rows changes nothing: every insert is a natural-key
// no-op on the second pass.
func (l *Loader) Load(ctx context.Context, sourceObjectID string, sourceModifiedAt time.Time, rows []domain.Row) (LoadResult, error) {
	res := LoadResult{RowsDecoded: len(rows)}

	mapped := make([]domain.Snapshot, 0, len(rows))
	var firstMapErr error
	for _, row := range rows {
		snap, err := MapRow(row, sourceObjectID)
		if err != nil {
			res.RowsSkipped++
			if firstMapErr == nil {
				firstMapErr = err
			}
			continue
		}
		mapped = append(mapped, snap)
	}

	var writeErr error
	for start := 0; start < len(mapped); start += l.batchSize {
		end := start + l.batchSize
		if end > len(mapped) {
			end = len(mapped)
		}

		inserted, err := l.insertWithRetry(ctx, sourceObjectID, mapped[start:end])
		if err != nil {
			writeErr = fmt.Errorf("insert batch at row %d: %w", start, err)
			break
		}
		res.RowsInserted += inserted
		l.logger.Debug().
			Str("object", sourceObjectID).
			Int("batch_rows", end-start).
			Int("inserted", inserted).
			Msg("batch written")
	}
	res.RowsDuplicate = len(mapped) - res.RowsInserted
	if writeErr != nil {
		// Rows in the failed and unattempted batches were neither
		// inserted nor duplicates.
		res.RowsDuplicate = 0
	}

	res.ErrorText = summarize(res, firstMapErr, writeErr)

	metrics.RowsDecodedTotal.Add(float64(res.RowsDecoded))
	metrics.RowsInsertedTotal.Add(float64(res.RowsInserted))
	metrics.RowsSkippedTotal.Add(float64(res.RowsSkipped))
	metrics.RowsDuplicateTotal.Add(float64(res.RowsDuplicate))

	rowsIngested := res.RowsInserted
	entry := domain.IngestLogEntry{
		SourceObjectID:   sourceObjectID,
		SourceModifiedAt: sourceModifiedAt,
		RowsIngested:     &rowsIngested,
		ErrorText:        res.ErrorText,
		ProcessedAt:      l.clock.Now(),
	}
	if err := l.log.Upsert(ctx, entry); err != nil {
		return res, fmt.Errorf("finalize ingest log for %s: %w", sourceObjectID, err)
	}

	l.logger.Info().
		Str("object", sourceObjectID).
		Int("decoded", res.RowsDecoded).
		Int("inserted", res.RowsInserted).
		Int("skipped", res.RowsSkipped).
		Int("duplicates", res.RowsDuplicate).
		Msg("object loaded")

	if writeErr != nil {
		return res, writeErr
	}
	return res, nil
}

// insertWithRetry writes one batch under the per-operation timeout.
// A write error, timeout included, is treated as transient and retried
// with jittered backoff until the attempts are exhausted. The insert is
// conflict-ignoring, so a retry of a partially applied batch is safe.
func (l *Loader) insertWithRetry(ctx context.Context, sourceObjectID string, batch []domain.Snapshot) (int, error) {
	backoff := l.backoff
	var lastErr error
	for attempt := 1; attempt <= l.maxRetries; attempt++ {
		batchCtx, cancel := context.WithTimeout(ctx, l.writeTimeout)
		began := time.Now()
		inserted, err := l.snapshots.InsertBatch(batchCtx, batch)
		cancel()
		metrics.BatchInsertDuration.Observe(time.Since(began).Seconds())
		if err == nil {
			return inserted, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		if attempt == l.maxRetries {
			break
		}

		metrics.WriteRetriesTotal.Inc()
		sleep := backoff + time.Duration(rand.Int63n(int64(backoff/2)+1))
		l.logger.Warn().
			Str("object", sourceObjectID).
			Int("attempt", attempt).
			Dur("backoff", sleep).
			Err(err).
			Msg("transient batch write failure, retrying")

		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-time.After(sleep):
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
	return 0, fmt.Errorf("after %d attempts: %w", l.maxRetries, lastErr)
}

func summarize(res LoadResult, mapErr, writeErr error) *string {
	var msg string
	switch {
	case writeErr != nil:
		msg = fmt.Sprintf("store write failed after %d rows: %v", res.RowsInserted, writeErr)
	case res.RowsSkipped > 0:
		msg = fmt.Sprintf("skipped %d of %d rows: first error: %v", res.RowsSkipped, res.RowsDecoded, mapErr)
	default:
		return nil
	}
	return &msg
}

package etl

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/Davidrsdiaz/Hyperliquid-TWAP-API-Open-Source/internal/clock"
	"github.com/Davidrsdiaz/Hyperliquid-TWAP-API-Open-Source/internal/domain"
	"github.com/Davidrsdiaz/Hyperliquid-TWAP-API-Open-Source/internal/metrics"
	"github.com/Davidrsdiaz/Hyperliquid-TWAP-API-Open-Source/internal/objstore"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Retry bounds for transient fetch failures. Decode and mapping failures
// are deterministic and never retried.
const (
	initialBackoff = 1 * time.Second
	maxBackoff     = 30 * time.Second
)

// ObjectStore is the listing/retrieval capability the orchestrator runs
// against.
type ObjectStore interface {
	List(ctx context.Context, since *time.Time) ([]objstore.ObjectInfo, error)
	Head(ctx context.Context, key string) (objstore.ObjectInfo, error)
	Fetch(ctx context.Context, key string) ([]byte, error)
}

// Decoder turns one object's bytes into rows, atomically.
type Decoder interface {
	Decode(ctx context.Context, content []byte) ([]domain.Row, error)
}

// ProcessedIndex exposes which objects the ingest log already covers.
type ProcessedIndex interface {
	ProcessedObjectIDs(ctx context.Context) (map[string]struct{}, error)
}

// FailureLogger records per-object failures that happen before any row
// reaches the loader (fetch and decode errors).
type FailureLogger interface {
	Upsert(ctx context.Context, entry domain.IngestLogEntry) error
}

// Orchestrator drives one ingestion run: select candidate objects,
// process each in isolation on a bounded worker pool, aggregate results.
type Orchestrator struct {
	store        ObjectStore
	decoder      Decoder
	loader       *Loader
	index        ProcessedIndex
	failures     FailureLogger
	clock        clock.Clock
	logger       zerolog.Logger
	workers      int
	fetchTimeout time.Duration
	maxRetries   int
	// backoff is lowered in tests; runs use initialBackoff.
	backoff time.Duration
}

type OrchestratorConfig struct {
	Workers      int
	FetchTimeout time.Duration
	MaxRetries   int
}

func NewOrchestrator(store ObjectStore, decoder Decoder, loader *Loader, index ProcessedIndex, failures FailureLogger, clk clock.Clock, logger zerolog.Logger, cfg OrchestratorConfig) *Orchestrator {
	workers := cfg.Workers
	if workers < 1 {
		workers = 1
	}
	maxRetries := cfg.MaxRetries
	if maxRetries < 1 {
		maxRetries = 1
	}
	return &Orchestrator{
		store:        store,
		decoder:      decoder,
		loader:       loader,
		index:        index,
		failures:     failures,
		clock:        clk,
		logger:       logger,
		workers:      workers,
		fetchTimeout: cfg.FetchTimeout,
		maxRetries:   maxRetries,
		backoff:      initialBackoff,
	}
}

// ObjectResult is the per-object outcome within a run.
type ObjectResult struct {
	Key          string
	RowsIngested int
	Err          error
}

// RunReport aggregates one run. A run always completes once candidate
// selection succeeds; individual object failures never abort it.
type RunReport struct {
	RunID     string
	Attempted int
	Succeeded int
	Failed    int
	Objects   []ObjectResult
}

// RunIncremental processes every object under the prefix that has no
// ingest log entry yet. An entry suppresses reprocessing whether it
// records success or failure; recovering an errored object requires
// RunSince or RunObject.
func (o *Orchestrator) RunIncremental(ctx context.Context) (RunReport, error) {
	objects, err := o.store.List(ctx, nil)
	if err != nil {
		return RunReport{}, fmt.Errorf("list objects: %w", err)
	}
	processed, err := o.index.ProcessedObjectIDs(ctx)
	if err != nil {
		return RunReport{}, fmt.Errorf("load ingest log index: %w", err)
	}

	candidates := objects[:0:0]
	for _, obj := range objects {
		if _, done := processed[obj.Key]; done {
			continue
		}
		candidates = append(candidates, obj)
	}
	o.logger.Info().
		Int("listed", len(objects)).
		Int("already_processed", len(objects)-len(candidates)).
		Int("candidates", len(candidates)).
		Msg("incremental selection complete")

	return o.processAll(ctx, candidates), nil
}

// RunSince processes every object modified at or after the given instant,
// regardless of log presence. This is the explicit reprocessing override.
func (o *Orchestrator) RunSince(ctx context.Context, since time.Time) (RunReport, error) {
	objects, err := o.store.List(ctx, &since)
	if err != nil {
		return RunReport{}, fmt.Errorf("list objects since %s: %w", since, err)
	}
	return o.processAll(ctx, objects), nil
}

// RunObject processes exactly one named object.
func (o *Orchestrator) RunObject(ctx context.Context, key string) (RunReport, error) {
	info, err := o.store.Head(ctx, key)
	if err != nil {
		return RunReport{}, fmt.Errorf("stat object %s: %w", key, err)
	}
	return o.processAll(ctx, []objstore.ObjectInfo{info}), nil
}

// RunLocalFile bypasses the object store and ingests a local file under a
// synthetic object id. Used for offline and test ingestion.
func (o *Orchestrator) RunLocalFile(ctx context.Context, path string) (RunReport, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return RunReport{}, fmt.Errorf("read local file: %w", err)
	}
	modifiedAt := o.clock.Now()
	if st, err := os.Stat(path); err == nil {
		modifiedAt = st.ModTime().UTC()
	}

	key := "local:" + filepath.ToSlash(path)
	report := RunReport{RunID: uuid.NewString(), Attempted: 1}
	result := o.ingest(ctx, key, modifiedAt, content)
	report.Objects = []ObjectResult{result}
	if result.Err != nil {
		report.Failed = 1
	} else {
		report.Succeeded = 1
	}
	o.logReport(report)
	return report, nil
}

func (o *Orchestrator) processAll(ctx context.Context, candidates []objstore.ObjectInfo) RunReport {
	report := RunReport{
		RunID:     uuid.NewString(),
		Attempted: len(candidates),
		Objects:   make([]ObjectResult, len(candidates)),
	}

	sem := make(chan struct{}, o.workers)
	var wg sync.WaitGroup
	for i, obj := range candidates {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, obj objstore.ObjectInfo) {
			defer wg.Done()
			defer func() { <-sem }()
			report.Objects[i] = o.processObject(ctx, obj)
		}(i, obj)
	}
	wg.Wait()

	for _, res := range report.Objects {
		if res.Err != nil {
			report.Failed++
		} else {
			report.Succeeded++
		}
	}
	o.logReport(report)
	return report
}

// processObject runs fetch → decode → load for one object. All failures
// are contained here: the object gets a failed ingest log entry and the
// run moves on.
func (o *Orchestrator) processObject(ctx context.Context, obj objstore.ObjectInfo) ObjectResult {
	content, err := o.fetchWithRetry(ctx, obj.Key)
	if err != nil {
		o.recordFailure(ctx, obj, fmt.Sprintf("fetch: %v", err))
		return ObjectResult{Key: obj.Key, Err: fmt.Errorf("fetch %s: %w", obj.Key, err)}
	}

	rows, err := o.decoder.Decode(ctx, content)
	if err != nil {
		o.recordFailure(ctx, obj, fmt.Sprintf("decode: %v", err))
		return ObjectResult{Key: obj.Key, Err: fmt.Errorf("decode %s: %w", obj.Key, err)}
	}

	return o.ingestRows(ctx, obj.Key, obj.LastModified, rows)
}

func (o *Orchestrator) ingest(ctx context.Context, key string, modifiedAt time.Time, content []byte) ObjectResult {
	rows, err := o.decoder.Decode(ctx, content)
	if err != nil {
		o.recordFailure(ctx, objstore.ObjectInfo{Key: key, LastModified: modifiedAt}, fmt.Sprintf("decode: %v", err))
		return ObjectResult{Key: key, Err: fmt.Errorf("decode %s: %w", key, err)}
	}
	return o.ingestRows(ctx, key, modifiedAt, rows)
}

func (o *Orchestrator) ingestRows(ctx context.Context, key string, modifiedAt time.Time, rows []domain.Row) ObjectResult {
	res, err := o.loader.Load(ctx, key, modifiedAt, rows)
	if err != nil {
		metrics.ObjectsProcessedTotal.WithLabelValues("failed").Inc()
		return ObjectResult{Key: key, RowsIngested: res.RowsInserted, Err: err}
	}
	metrics.ObjectsProcessedTotal.WithLabelValues("succeeded").Inc()
	return ObjectResult{Key: key, RowsIngested: res.RowsInserted}
}

func (o *Orchestrator) fetchWithRetry(ctx context.Context, key string) ([]byte, error) {
	backoff := o.backoff
	var lastErr error
	for attempt := 1; attempt <= o.maxRetries; attempt++ {
		fetchCtx, cancel := context.WithTimeout(ctx, o.fetchTimeout)
		content, err := o.store.Fetch(fetchCtx, key)
		cancel()
		if err == nil {
			return content, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if attempt == o.maxRetries {
			break
		}

		metrics.FetchRetriesTotal.Inc()
		sleep := backoff + time.Duration(rand.Int63n(int64(backoff/2)+1))
		o.logger.Warn().
			Str("object", key).
			Int("attempt", attempt).
			Dur("backoff", sleep).
			Err(err).
			Msg("transient fetch failure, retrying")

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(sleep):
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
	return nil, fmt.Errorf("after %d attempts: %w", o.maxRetries, lastErr)
}

// recordFailure writes the failed ingest log entry for an object that
// never reached the loader. RowsIngested stays null: the row count is
// unknown, not zero.
func (o *Orchestrator) recordFailure(ctx context.Context, obj objstore.ObjectInfo, reason string) {
	metrics.ObjectsProcessedTotal.WithLabelValues("failed").Inc()
	entry := domain.IngestLogEntry{
		SourceObjectID:   obj.Key,
		SourceModifiedAt: obj.LastModified,
		ErrorText:        &reason,
		ProcessedAt:      o.clock.Now(),
	}
	if err := o.failures.Upsert(ctx, entry); err != nil {
		o.logger.Error().
			Str("object", obj.Key).
			Err(err).
			Msg("failed to record ingest failure")
	}
}

func (o *Orchestrator) logReport(report RunReport) {
	o.logger.Info().
		Str("run_id", report.RunID).
		Int("attempted", report.Attempted).
		Int("succeeded", report.Succeeded).
		Int("failed", report.Failed).
		Msg("ingestion run complete")
}

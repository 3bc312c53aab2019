// Package batch implements the Batch Coordinator (spec.md §4.C): it
// allocates one batch ID per ingest tick, fans provider adapters out
// concurrently with a per-provider concurrency cap of 1, and forwards each
// adapter's rows and raw payload to the Warehouse Loader and Blob Archiver
// under that shared batch ID. A single source's failure never aborts the
// others — partial batches are allowed by design.
package batch

import (
	"context"
	"sync"
	"time"

	"github.com/adflow/pipeline/internal/logging"
	"github.com/adflow/pipeline/internal/metrics"
	"github.com/adflow/pipeline/internal/model"
	"github.com/adflow/pipeline/internal/pipeline/errs"
	"github.com/adflow/pipeline/internal/provider"
)

// Loader appends normalized rows to the warehouse loader under a batch ID.
type Loader interface {
	Append(ctx context.Context, table string, rows []any, batchID string, fetchedAt time.Time) error
}

// Archiver mirrors a source's raw payload to the blob store.
type Archiver interface {
	Put(ctx context.Context, key string, payload []byte) error
}

// Alarmer raises an alarm for a failed source or a validation warning.
type Alarmer interface {
	Alarm(ctx context.Context, level errs.AlarmLevel, title, body string)
}

// Source pairs an adapter with the warehouse table its rows load into.
type Source struct {
	Adapter provider.Adapter
	Table   string
}

// SourceResult records the outcome of one source within a batch tick.
type SourceResult struct {
	Source   string
	RowCount int
	Err      error
}

// Result is the outcome of one RunIngest call.
type Result struct {
	BatchID string
	Sources []SourceResult
}

// Coordinator orchestrates one ingest tick across the pipeline's
// components. It never runs two ticks concurrently — callers
// (the Scheduler) are responsible for that serialization, per spec.md §5.
type Coordinator struct {
	Warehouse Loader
	Blob      Archiver
	Alarm     Alarmer
	Clock     func() time.Time
}

// New builds a Coordinator.
func New(warehouse Loader, blob Archiver, alarm Alarmer) *Coordinator {
	return &Coordinator{Warehouse: warehouse, Blob: blob, Alarm: alarm, Clock: time.Now}
}

// RunIngest allocates one batch_id and fans sources out concurrently over
// window, joined on a semaphore sized to len(sources) (spec.md §5's "global
// cap equal to the number of providers"). Sources whose adapters share a
// provider name are serialized, so at most one call per provider is in
// flight. A source's fatal error is recorded and alarmed; the batch still
// completes for the rest.
func (c *Coordinator) RunIngest(ctx context.Context, window model.Window, sources []Source) (Result, error) {
	batchID := model.NewBatchID(c.Clock())
	start := c.Clock()

	results := make([]SourceResult, len(sources))
	sem := make(chan struct{}, len(sources))
	perProvider := make(map[string]*sync.Mutex)
	for _, src := range sources {
		if _, ok := perProvider[src.Adapter.Name()]; !ok {
			perProvider[src.Adapter.Name()] = &sync.Mutex{}
		}
	}
	var wg sync.WaitGroup

	for i, src := range sources {
		wg.Add(1)
		sem <- struct{}{}
		go func(idx int, src Source) {
			defer wg.Done()
			defer func() { <-sem }()
			lock := perProvider[src.Adapter.Name()]
			lock.Lock()
			defer lock.Unlock()
			results[idx] = c.runSource(ctx, batchID, window, src)
		}(i, src)
	}
	wg.Wait()

	metrics.BatchDuration.Observe(c.Clock().Sub(start).Seconds())
	return Result{BatchID: batchID, Sources: results}, nil
}

func (c *Coordinator) runSource(ctx context.Context, batchID string, window model.Window, src Source) SourceResult {
	name := src.Adapter.Name()
	start := c.Clock()

	extraction, err := src.Adapter.Extract(ctx, window)
	metrics.AdapterCallDuration.WithLabelValues(name).Observe(c.Clock().Sub(start).Seconds())

	if err != nil {
		kind, _ := errs.KindOf(err)
		metrics.AdapterCalls.WithLabelValues(name, "failure").Inc()
		metrics.BatchSourceFailures.WithLabelValues(name, string(kind)).Inc()
		logging.Warn().Str("source", name).Str("batch_id", batchID).Err(err).Msg("source extraction failed, excluded from this batch")
		if c.Alarm != nil {
			c.Alarm.Alarm(ctx, kind.Level(), "source extraction failed", name+": "+err.Error())
		}
		return SourceResult{Source: name, Err: err}
	}
	metrics.AdapterCalls.WithLabelValues(name, "success").Inc()

	for _, raw := range extraction.Raw {
		if c.Blob == nil {
			continue
		}
		if putErr := c.Blob.Put(ctx, raw.BlobKey(), raw.Body); putErr != nil {
			logging.Warn().Str("source", name).Str("batch_id", batchID).Err(putErr).Msg("blob archive mirror failed")
			if c.Alarm != nil {
				c.Alarm.Alarm(ctx, errs.LevelWarning, "blob archive failed", name+": "+putErr.Error())
			}
		}
	}

	if c.Warehouse != nil && len(extraction.Rows) > 0 {
		if appendErr := c.Warehouse.Append(ctx, src.Table, extraction.Rows, batchID, c.Clock()); appendErr != nil {
			logging.Error().Str("source", name).Str("batch_id", batchID).Err(appendErr).Msg("warehouse append failed")
			if c.Alarm != nil {
				c.Alarm.Alarm(ctx, errs.LevelError, "warehouse append failed", name+": "+appendErr.Error())
			}
			return SourceResult{Source: name, Err: appendErr}
		}
		metrics.BatchRowsLoaded.WithLabelValues(src.Table).Add(float64(len(extraction.Rows)))
	}

	for _, w := range extraction.Warning {
		if c.Alarm != nil {
			c.Alarm.Alarm(ctx, errs.LevelWarning, "data validation warning", w.Source+"/"+w.Kind+": "+w.Message)
		}
	}

	return SourceResult{Source: name, RowCount: len(extraction.Rows)}
}

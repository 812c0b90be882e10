package engine

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/vormlabs/vorm/orm"
	"github.com/vormlabs/vorm/pkg/fn"
)

// ChunkStatus reports the outcome of one chunk of a bulk operation. Start
// and End give the half-open input index range [Start, End) the chunk
// covered, so callers know exactly which records to retry.
type ChunkStatus struct {
	Index int
	Start int
	End   int
	Err   error
}

// Committed reports whether the chunk was written.
func (c ChunkStatus) Committed() bool { return c.Err == nil }

// BulkResult is the per-chunk outcome of a bulk operation. It is never
// collapsed to a boolean: callers can distinguish full success, definitive
// failure, and partial failure with retryable chunks.
type BulkResult struct {
	Chunks []ChunkStatus
}

// Ok reports whether every chunk committed.
func (r BulkResult) Ok() bool {
	for _, c := range r.Chunks {
		if c.Err != nil {
			return false
		}
	}
	return true
}

// Failed returns the chunks that did not commit.
func (r BulkResult) Failed() []ChunkStatus {
	return fn.Filter(r.Chunks, func(c ChunkStatus) bool { return c.Err != nil })
}

// Err summarizes the failed chunks, or nil if all committed. Individual
// chunk errors stay reachable through errors.Is/As.
func (r BulkResult) Err() error {
	failed := r.Failed()
	if len(failed) == 0 {
		return nil
	}
	errs := make([]error, 0, len(failed))
	for _, c := range failed {
		errs = append(errs, fmt.Errorf("chunk %d [%d:%d): %w", c.Index, c.Start, c.End, c.Err))
	}
	return fmt.Errorf("engine: %d of %d chunks failed: %w", len(failed), len(r.Chunks), errors.Join(errs...))
}

// BulkInsert writes records in chunks of at most batchSize. All records must
// belong to the engine's type; serialization happens up front so a malformed
// record fails the whole call before any store traffic. The returned
// BulkResult attributes success or failure to every chunk even when the
// error is non-nil.
//
// Fresh primary keys are the caller's responsibility: the store's write
// primitive replaces rows whose primary key already exists.
func (e *Engine[T]) BulkInsert(ctx context.Context, records []T, batchSize int) (BulkResult, error) {
	return e.bulk(ctx, "insert", records, batchSize, e.driver.Insert)
}

// BulkUpsert writes records in chunks of at most batchSize, replacing
// existing rows with matching primary keys and inserting the rest. Chunk
// failure reporting matches BulkInsert.
func (e *Engine[T]) BulkUpsert(ctx context.Context, records []T, batchSize int) (BulkResult, error) {
	return e.bulk(ctx, "upsert", records, batchSize, e.driver.Upsert)
}

func (e *Engine[T]) bulk(
	ctx context.Context,
	op string,
	records []T,
	batchSize int,
	write func(ctx context.Context, collection string, schema orm.Schema, rows []orm.Row) error,
) (BulkResult, error) {
	if batchSize < 1 {
		return BulkResult{}, fmt.Errorf("engine: %s: batch size must be at least 1, got %d", op, batchSize)
	}
	if len(records) == 0 {
		return BulkResult{}, nil
	}

	rows := make([]orm.Row, len(records))
	for i, rec := range records {
		row, err := orm.ToRow(rec)
		if err != nil {
			return BulkResult{}, fmt.Errorf("engine: %s record %d: %w", op, i, err)
		}
		rows[i] = row
	}

	chunks := fn.Chunk(rows, batchSize)
	result := BulkResult{Chunks: make([]ChunkStatus, len(chunks))}

	run := func(ctx context.Context, i int, chunk []orm.Row) {
		err := e.storeCall(ctx, op, func(ctx context.Context) error {
			return write(ctx, e.coll.Name(), e.schema, chunk)
		})
		result.Chunks[i] = ChunkStatus{
			Index: i,
			Start: i * batchSize,
			End:   i*batchSize + len(chunk),
			Err:   err,
		}
	}

	if e.opts.Parallelism > 1 {
		// Each goroutine owns a distinct slot of result.Chunks, so
		// attribution stays deterministic under parallel execution.
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(e.opts.Parallelism)
		for i, chunk := range chunks {
			g.Go(func() error {
				run(gctx, i, chunk)
				return nil
			})
		}
		_ = g.Wait()
	} else {
		for i, chunk := range chunks {
			if err := ctx.Err(); err != nil {
				result.Chunks[i] = ChunkStatus{Index: i, Start: i * batchSize, End: i*batchSize + len(chunk), Err: err}
				continue
			}
			run(ctx, i, chunk)
		}
	}

	if err := result.Err(); err != nil {
		e.logger.Warn("bulk operation partially failed", "op", op, "failed_chunks", len(result.Failed()), "total_chunks", len(result.Chunks))
		return result, err
	}
	e.logger.Debug("bulk operation committed", "op", op, "records", len(records), "chunks", len(result.Chunks))
	return result, nil
}

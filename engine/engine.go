// Package engine executes CRUD, batch, and similarity-search operations for
// registered record types against a collection session.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	otelcodes "go.opentelemetry.io/otel/codes"

	"github.com/vormlabs/vorm/orm"
	"github.com/vormlabs/vorm/pkg/fn"
	"github.com/vormlabs/vorm/pkg/metrics"
	"github.com/vormlabs/vorm/pkg/resilience"
	"github.com/vormlabs/vorm/session"
	"github.com/vormlabs/vorm/store"
)

// Options configures an Engine.
type Options struct {
	// CallTimeout bounds each store round-trip. Expiry surfaces as
	// orm.ErrStoreUnavailable.
	CallTimeout time.Duration
	// Retry governs internal retries. Only store unavailability is retried;
	// every other failure propagates immediately.
	Retry fn.RetryOpts
	// Parallelism is the number of chunks a bulk operation runs
	// concurrently. Values <= 1 run chunks sequentially.
	Parallelism int
	// PageSize is the internal page for unbounded GetAll retrievals.
	PageSize int
	// Metrics, when set, receives store-call counters and latencies.
	Metrics *metrics.Registry
	// Breaker, when set, guards store calls; an open circuit surfaces as
	// orm.ErrStoreUnavailable.
	Breaker *resilience.Breaker
}

// DefaultOptions provides sensible defaults.
func DefaultOptions() Options {
	return Options{
		CallTimeout: 30 * time.Second,
		Retry: fn.RetryOpts{
			MaxAttempts: 3,
			InitialWait: 250 * time.Millisecond,
			MaxWait:     5 * time.Second,
			Jitter:      true,
		},
		Parallelism: 1,
		PageSize:    1024,
	}
}

// Engine runs persistence operations for one record type. It holds no
// cross-call state beyond the collection handle, so a single Engine is safe
// for concurrent callers.
type Engine[T orm.Record] struct {
	coll    *session.Collection
	driver  store.Driver
	schema  orm.Schema
	factory func() T
	opts    Options
	logger  *slog.Logger
}

// Open registers the record type produced by factory under name (idempotent;
// a structurally different re-registration fails with
// orm.ErrRegistryConflict), ensures its collection exists, and returns an
// engine bound to it.
func Open[T orm.Record](ctx context.Context, sess *session.Session, reg *orm.Registry, name string, factory func() T, opts Options, logger *slog.Logger) (*Engine[T], error) {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = DefaultOptions().CallTimeout
	}
	if opts.Retry.MaxAttempts <= 0 {
		opts.Retry = DefaultOptions().Retry
	}
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultOptions().PageSize
	}
	opts.Retry.RetryIf = func(err error) bool {
		return errors.Is(err, orm.ErrStoreUnavailable)
	}

	entry, err := reg.Register(name, func() orm.Record { return factory() })
	if err != nil {
		return nil, err
	}
	coll, err := sess.Collection(ctx, entry)
	if err != nil {
		return nil, err
	}
	return &Engine[T]{
		coll:    coll,
		driver:  sess.Driver(),
		schema:  entry.Schema,
		factory: factory,
		opts:    opts,
		logger:  logger.With("collection", entry.Schema.Collection),
	}, nil
}

// Collection returns the engine's collection handle.
func (e *Engine[T]) Collection() *session.Collection { return e.coll }

// Schema returns the derived collection schema.
func (e *Engine[T]) Schema() orm.Schema { return e.schema }

// storeCall runs one logical store operation with tracing, metrics, a
// per-attempt timeout, optional circuit breaking, and bounded retries for
// unavailability.
func (e *Engine[T]) storeCall(ctx context.Context, op string, f func(context.Context) error) error {
	ctx, span := otel.Tracer("vorm/engine").Start(ctx, "store."+op)
	defer span.End()
	start := time.Now()

	res := fn.Retry(ctx, e.opts.Retry, func(ctx context.Context) fn.Result[struct{}] {
		return fn.FromPair(struct{}{}, e.attempt(ctx, f))
	})
	_, err := res.Unwrap()

	if m := e.opts.Metrics; m != nil {
		m.Counter(metrics.WithLabels("vorm_store_calls_total", "op", op, "collection", e.coll.Name()),
			"Store calls issued, including retries' final outcome.").Inc()
		m.Histogram(metrics.WithLabels("vorm_store_call_seconds", "op", op),
			"Store call latency in seconds.", nil).Since(start)
		if err != nil {
			m.Counter(metrics.WithLabels("vorm_store_call_failures_total", "op", op),
				"Store calls that failed after retries.").Inc()
		}
	}
	if err != nil {
		span.SetStatus(otelcodes.Error, err.Error())
		return err
	}
	return nil
}

// attempt runs one bounded attempt of f and classifies its failure.
func (e *Engine[T]) attempt(ctx context.Context, f func(context.Context) error) error {
	cctx, cancel := context.WithTimeout(ctx, e.opts.CallTimeout)
	defer cancel()

	var err error
	if e.opts.Breaker != nil {
		err = e.opts.Breaker.Call(cctx, f)
	} else {
		err = f(cctx)
	}
	switch {
	case err == nil:
		return nil
	case errors.Is(err, resilience.ErrCircuitOpen):
		return fmt.Errorf("engine: %w: %w", orm.ErrStoreUnavailable, err)
	case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
		// Our per-call timeout fired, not the caller's context.
		return fmt.Errorf("engine: store call timed out after %s: %w", e.opts.CallTimeout, orm.ErrStoreUnavailable)
	}
	return err
}

// queryRows is storeCall around Driver.Query.
func (e *Engine[T]) queryRows(ctx context.Context, q store.Query) ([]orm.Row, error) {
	var rows []orm.Row
	err := e.storeCall(ctx, "query", func(ctx context.Context) error {
		r, err := e.driver.Query(ctx, e.coll.Name(), e.schema, q)
		rows = r
		return err
	})
	return rows, err
}

// decodeRows materializes store rows into record instances. Rows from a
// restricted projection decode leniently; full rows decode strictly.
func (e *Engine[T]) decodeRows(rows []orm.Row, partial bool) ([]T, error) {
	out := make([]T, 0, len(rows))
	for _, row := range rows {
		rec := e.factory()
		var err error
		if partial {
			err = orm.FromRowPartial(rec, row)
		} else {
			err = orm.FromRow(rec, row)
		}
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// pkLiteral renders a primary-key value for use in a filter expression.
func (e *Engine[T]) pkLiteral(v any) (string, error) {
	return literal(e.schema.PrimaryKey(), v)
}

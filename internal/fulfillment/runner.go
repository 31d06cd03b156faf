package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ariefcatur/go-order-fulfillment/internal/cache"
	"github.com/ariefcatur/go-order-fulfillment/internal/orders"
)

type Reserver interface {
	Reserve(ctx context.Context, order orders.Order) (Outcome, error)
}

// Publisher announces reservation outcomes to other services.
type Publisher interface {
	PublishOutcome(ctx context.Context, out Outcome) error
}

// Runner executes fulfillment passes over the PENDING orders snapshot.
type Runner struct {
	orders  orders.OrderStore
	engine  Reserver
	cache   cache.Invalidator
	pub     Publisher
	workers int
	log     *zap.Logger
	tracer  trace.Tracer
	metrics *metrics
}

type RunnerOption func(*Runner)

// WithWorkers sets how many orders are reserved concurrently. One worker
// processes the snapshot strictly in ascending id order.
func WithWorkers(n int) RunnerOption {
	return func(r *Runner) {
		if n >= 1 {
			r.workers = n
		}
	}
}

func WithPublisher(p Publisher) RunnerOption {
	return func(r *Runner) { r.pub = p }
}

func WithRunnerMeter(m metric.Meter) RunnerOption {
	return func(r *Runner) { r.metrics = newMetrics(m) }
}

func NewRunner(store orders.OrderStore, engine Reserver, inv cache.Invalidator, log *zap.Logger, opts ...RunnerOption) *Runner {
	r := &Runner{
		orders:  store,
		engine:  engine,
		cache:   inv,
		workers: 1,
		log:     log,
		tracer:  otel.Tracer(instrumentationName),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.cache == nil {
		r.cache = cache.Nop{}
	}
	if r.log == nil {
		r.log = zap.NewNop()
	}
	if r.metrics == nil {
		r.metrics = newMetrics(nil)
	}
	return r
}

type tally struct {
	mu sync.Mutex
	s  PassSummary
}

func (t *tally) add(fn func(s *PassSummary)) {
	t.mu.Lock()
	fn(&t.s)
	t.mu.Unlock()
}

// RunPass reserves every order that was PENDING when the pass started. A
// failure on one order never aborts the pass; the error is returned only when
// the snapshot itself could not be read.
func (r *Runner) RunPass(ctx context.Context) (PassSummary, error) {
	start := time.Now()
	ctx, span := r.tracer.Start(ctx, "fulfillment.pass")
	defer span.End()

	pending, err := r.orders.FindByStatus(ctx, orders.StatusPending)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "load pending orders")
		return PassSummary{Duration: time.Since(start)}, fmt.Errorf("%w: load pending orders: %w", orders.ErrStoreFailure, err)
	}
	if len(pending) == 0 {
		r.log.Debug("no pending orders")
		return PassSummary{Duration: time.Since(start)}, nil
	}
	r.log.Info("processing pending orders", zap.Int("count", len(pending)), zap.Int("workers", r.workers))

	var t tally
	var g errgroup.Group
	g.SetLimit(r.workers)
	for _, o := range pending {
		g.Go(func() error {
			r.process(ctx, o, &t)
			return nil
		})
	}
	_ = g.Wait()

	summary := t.s
	summary.Duration = time.Since(start)

	r.metrics.passes.Add(ctx, 1)
	r.metrics.passDuration.Record(ctx, summary.Duration.Seconds())
	span.SetAttributes(
		attribute.Int("pass.orders", len(pending)),
		attribute.Int("pass.processed", summary.Processed),
		attribute.Int("pass.cancelled", summary.Cancelled),
		attribute.Int("pass.failed", summary.Failed),
		attribute.Int("pass.skipped", summary.Skipped),
	)
	return summary, nil
}

func (r *Runner) process(ctx context.Context, o orders.Order, t *tally) {
	out, err := r.reserve(ctx, o)
	log := r.log.With(zap.Int64("order_id", o.ID))

	switch {
	case err != nil:
		// order stays PENDING; the next pass picks it up again
		log.Error("order reservation failed", zap.Error(err))
		r.metrics.failed.Add(ctx, 1)
		r.metrics.cancelled.Add(ctx, 1)
		t.add(func(s *PassSummary) { s.Failed++; s.Cancelled++ })
		return
	case out.Skipped:
		log.Info("order no longer pending, skipped", zap.String("status", string(out.Status)))
		r.metrics.skipped.Add(ctx, 1)
		t.add(func(s *PassSummary) { s.Skipped++ })
		return
	case out.Reserved:
		log.Info("order reserved", zap.Int64s("product_ids", out.ProductIDs), zap.Int("attempts", out.Attempts))
		r.metrics.processed.Add(ctx, 1)
		t.add(func(s *PassSummary) { s.Processed++ })
	default:
		fields := []zap.Field{zap.String("reason", string(out.Reason))}
		if out.Detail != nil {
			fields = append(fields,
				zap.Int64("product_id", out.Detail.ProductID),
				zap.Int("required", out.Detail.Required),
				zap.Int("available", out.Detail.Available))
		}
		log.Warn("order cancelled", fields...)
		r.metrics.cancelled.Add(ctx, 1)
		t.add(func(s *PassSummary) { s.Cancelled++ })
	}

	if err := r.invalidate(ctx, out); err != nil {
		log.Warn("cache invalidation failed", zap.Error(err))
	}
	if r.pub != nil {
		if err := r.pub.PublishOutcome(ctx, out); err != nil {
			log.Warn("publish outcome failed", zap.Error(err))
		}
	}
}

func (r *Runner) reserve(ctx context.Context, o orders.Order) (out Outcome, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			out = Outcome{OrderID: o.ID}
			err = fmt.Errorf("%w: panic reserving order %d: %v", orders.ErrStoreFailure, o.ID, rec)
		}
	}()
	return r.engine.Reserve(ctx, o)
}

func (r *Runner) invalidate(ctx context.Context, out Outcome) error {
	id := strconv.FormatInt(out.OrderID, 10)
	errs := []error{
		r.cache.Invalidate(ctx, cache.ScopeOrders),
		r.cache.Invalidate(ctx, cache.ScopeOrderByID, id),
		r.cache.Invalidate(ctx, cache.ScopeOrdersByStatus, string(orders.StatusPending), string(out.Status)),
	}
	if len(out.ProductIDs) > 0 {
		keys := make([]string, len(out.ProductIDs))
		for i, pid := range out.ProductIDs {
			keys[i] = strconv.FormatInt(pid, 10)
		}
		errs = append(errs, r.cache.Invalidate(ctx, cache.ScopeProducts, keys...))
	}
	return errors.Join(errs...)
}

package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-order-fulfillment/internal/orders"
)

const (
	DefaultMaxAttempts  = 3
	defaultRetryInitial = 50 * time.Millisecond
	defaultRetryMax     = time.Second
)

// Engine reserves stock for a single order inside one transaction: either
// every line is decremented and the order moves to PROCESSING, or nothing
// changes and the order is CANCELLED.
type Engine struct {
	tx           orders.Transactor
	log          *zap.Logger
	maxAttempts  int
	retryInitial time.Duration
	tracer       trace.Tracer
	metrics      *metrics
}

type EngineOption func(*Engine)

// WithMaxAttempts bounds how often a reservation is retried after a write
// conflict. Values below 1 are ignored.
func WithMaxAttempts(n int) EngineOption {
	return func(e *Engine) {
		if n >= 1 {
			e.maxAttempts = n
		}
	}
}

func WithRetryInterval(d time.Duration) EngineOption {
	return func(e *Engine) { e.retryInitial = d }
}

func WithEngineMeter(m metric.Meter) EngineOption {
	return func(e *Engine) { e.metrics = newMetrics(m) }
}

func NewEngine(tx orders.Transactor, log *zap.Logger, opts ...EngineOption) *Engine {
	e := &Engine{
		tx:           tx,
		log:          log,
		maxAttempts:  DefaultMaxAttempts,
		retryInitial: defaultRetryInitial,
		tracer:       otel.Tracer(instrumentationName),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.metrics == nil {
		e.metrics = newMetrics(nil)
	}
	if e.log == nil {
		e.log = zap.NewNop()
	}
	return e
}

// Reserve attempts the all-or-nothing reservation for order. A rejection is a
// normal outcome, not an error. The returned error is non-nil only when the
// store failed; it then wraps orders.ErrStoreFailure and nothing was changed.
func (e *Engine) Reserve(ctx context.Context, order orders.Order) (Outcome, error) {
	ctx, span := e.tracer.Start(ctx, "fulfillment.reserve",
		trace.WithAttributes(attribute.Int64("order.id", order.ID)))
	defer span.End()

	attempts := 0
	op := func() (Outcome, error) {
		attempts++
		out, err := e.reserveOnce(ctx, order.ID)
		if err == nil {
			return out, nil
		}
		if errors.Is(err, orders.ErrConcurrencyConflict) {
			e.metrics.conflicts.Add(ctx, 1)
			return Outcome{}, err
		}
		return Outcome{}, backoff.Permanent(err)
	}

	out, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(e.newBackOff()),
		backoff.WithMaxTries(uint(e.maxAttempts)),
		backoff.WithNotify(func(err error, next time.Duration) {
			e.log.Warn("reservation conflict, retrying",
				zap.Int64("order_id", order.ID),
				zap.Int("attempt", attempts),
				zap.Duration("backoff", next),
				zap.Error(err))
		}),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "reservation failed")
		if !errors.Is(err, orders.ErrStoreFailure) {
			err = fmt.Errorf("%w: reserve order %d after %d attempt(s): %w",
				orders.ErrStoreFailure, order.ID, attempts, err)
		}
		return Outcome{OrderID: order.ID, Attempts: attempts}, err
	}

	out.Attempts = attempts
	span.SetAttributes(
		attribute.String("order.status", string(out.Status)),
		attribute.Bool("order.reserved", out.Reserved),
		attribute.Int("reservation.attempts", attempts),
	)
	if out.Reason != "" {
		span.SetAttributes(attribute.String("order.reject_reason", string(out.Reason)))
	}
	return out, nil
}

func (e *Engine) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = e.retryInitial
	b.MaxInterval = defaultRetryMax
	return b
}

func (e *Engine) reserveOnce(ctx context.Context, orderID int64) (Outcome, error) {
	var out Outcome
	err := e.tx.RunInTx(ctx, func(ctx context.Context, tx orders.Tx) error {
		out = Outcome{OrderID: orderID}

		// lock the order row first so a concurrent pass skips it
		order, ok, err := tx.Orders().FindByID(ctx, orderID)
		if err != nil {
			return err
		}
		if !ok {
			out.Skipped = true
			return nil
		}
		if order.Status != orders.StatusPending {
			out.Skipped = true
			out.Status = order.Status
			return nil
		}

		demand := order.ProductDemand()
		ids := make([]int64, 0, len(demand))
		for id := range demand {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

		// ascending product id keeps lock order identical across workers
		stock := make(map[int64]orders.Product, len(ids))
		for _, id := range ids {
			p, found, err := tx.Inventory().FindByID(ctx, id)
			if err != nil {
				return err
			}
			if found {
				stock[id] = p
			}
		}

		reason, detail := validate(order.Items, stock)
		if reason != "" {
			order.Status = orders.StatusCancelled
			out.Reason = reason
			out.Detail = detail
		} else {
			for _, id := range ids {
				p := stock[id]
				p.StockQuantity -= demand[id]
				if _, err := tx.Inventory().Save(ctx, p); err != nil {
					return fmt.Errorf("decrement product %d: %w", id, err)
				}
			}
			order.Status = orders.StatusProcessing
			out.Reserved = true
			out.ProductIDs = ids
			out.Items = make([]orders.ItemQty, 0, len(order.Items))
			for _, it := range order.Items {
				out.Items = append(out.Items, orders.ItemQty{ProductID: it.ProductID, Qty: it.Quantity})
			}
		}

		if _, err := tx.Orders().Save(ctx, order); err != nil {
			return fmt.Errorf("save order %d: %w", order.ID, err)
		}
		out.Status = order.Status
		return nil
	})
	if err != nil {
		return Outcome{}, err
	}
	return out, nil
}

// validate walks the lines in order and reports the first one that cannot be
// satisfied. Quantities of lines sharing a product are checked cumulatively.
func validate(items []orders.OrderItem, stock map[int64]orders.Product) (RejectReason, *orders.StockRejectedDetail) {
	need := make(map[int64]int, len(items))
	for _, it := range items {
		if it.Quantity <= 0 {
			return ReasonInvalidQuantity, &orders.StockRejectedDetail{ProductID: it.ProductID, Required: it.Quantity}
		}
		p, ok := stock[it.ProductID]
		if !ok {
			return ReasonProductNotFound, &orders.StockRejectedDetail{ProductID: it.ProductID, Required: it.Quantity}
		}
		need[it.ProductID] += it.Quantity
		if p.StockQuantity < need[it.ProductID] {
			return ReasonInsufficientStock, &orders.StockRejectedDetail{
				ProductID: it.ProductID,
				Required:  need[it.ProductID],
				Available: p.StockQuantity,
			}
		}
	}
	return "", nil
}

package fulfillment

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/go-order-fulfillment/internal/cache"
	"github.com/ariefcatur/go-order-fulfillment/internal/memstore"
	"github.com/ariefcatur/go-order-fulfillment/internal/orders"
)

func seedProduct(t *testing.T, s *memstore.Store, name string, stock int) orders.Product {
	t.Helper()
	p, err := s.Inventory().Save(context.Background(), orders.Product{
		Name:          name,
		Price:         decimal.RequireFromString("19.99"),
		StockQuantity: stock,
	})
	require.NoError(t, err)
	return p
}

func seedOrder(t *testing.T, s *memstore.Store, status orders.Status, items ...orders.OrderItem) orders.Order {
	t.Helper()
	o, err := s.Orders().Save(context.Background(), orders.Order{Status: status, Items: items})
	require.NoError(t, err)
	return o
}

func line(productID int64, qty int) orders.OrderItem {
	return orders.OrderItem{ProductID: productID, Quantity: qty}
}

func stockOf(t *testing.T, s *memstore.Store, id int64) int {
	t.Helper()
	p, ok, err := s.Inventory().FindByID(context.Background(), id)
	require.NoError(t, err)
	require.True(t, ok)
	return p.StockQuantity
}

func statusOf(t *testing.T, s *memstore.Store, id int64) orders.Status {
	t.Helper()
	o, ok, err := s.Orders().FindByID(context.Background(), id)
	require.NoError(t, err)
	require.True(t, ok)
	return o.Status
}

// flakyTx fails the first n transactions with err before touching the store.
type flakyTx struct {
	inner orders.Transactor
	err   error
	n     atomic.Int32
	calls atomic.Int32
}

func newFlakyTx(inner orders.Transactor, err error, n int) *flakyTx {
	f := &flakyTx{inner: inner, err: err}
	f.n.Store(int32(n))
	return f
}

func (f *flakyTx) RunInTx(ctx context.Context, fn func(ctx context.Context, tx orders.Tx) error) error {
	f.calls.Add(1)
	if f.n.Add(-1) >= 0 {
		return f.err
	}
	return f.inner.RunInTx(ctx, fn)
}

type invalidation struct {
	scope cache.Scope
	keys  []string
}

type recordingInvalidator struct {
	mu    sync.Mutex
	calls []invalidation
	err   error
}

func (r *recordingInvalidator) Invalidate(_ context.Context, scope cache.Scope, keys ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, invalidation{scope: scope, keys: keys})
	return r.err
}

func (r *recordingInvalidator) scopes() map[cache.Scope][][]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := map[cache.Scope][][]string{}
	for _, c := range r.calls {
		out[c.scope] = append(out[c.scope], c.keys)
	}
	return out
}

type recordingPublisher struct {
	mu   sync.Mutex
	outs []Outcome
	err  error
}

func (p *recordingPublisher) PublishOutcome(_ context.Context, out Outcome) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.outs = append(p.outs, out)
	return p.err
}

// stubReserver answers from a per-order table; unknown orders are reserved.
type stubReserver struct {
	mu     sync.Mutex
	seen   []int64
	errs   map[int64]error
	panics map[int64]bool
}

func (s *stubReserver) Reserve(_ context.Context, o orders.Order) (Outcome, error) {
	s.mu.Lock()
	s.seen = append(s.seen, o.ID)
	err, panics := s.errs[o.ID], s.panics[o.ID]
	s.mu.Unlock()
	if panics {
		panic("engine exploded")
	}
	if err != nil {
		return Outcome{OrderID: o.ID}, err
	}
	return Outcome{OrderID: o.ID, Status: orders.StatusProcessing, Reserved: true}, nil
}

func (s *stubReserver) calls() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int64(nil), s.seen...)
}

var errBoom = errors.New("connection reset")

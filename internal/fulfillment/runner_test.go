package fulfillment

import (
	"context"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ariefcatur/go-order-fulfillment/internal/cache"
	"github.com/ariefcatur/go-order-fulfillment/internal/memstore"
	"github.com/ariefcatur/go-order-fulfillment/internal/orders"
)

func newTestRunner(t *testing.T, s *memstore.Store, inv cache.Invalidator, opts ...RunnerOption) *Runner {
	log := zaptest.NewLogger(t)
	return NewRunner(s.Orders(), NewEngine(s, log), inv, log, opts...)
}

func TestRunPass_EarlierOrderWinsSharedStock(t *testing.T) {
	s := memstore.New()
	p := seedProduct(t, s, "keyboard", 5)
	o1 := seedOrder(t, s, orders.StatusPending, line(p.ID, 3))
	o2 := seedOrder(t, s, orders.StatusPending, line(p.ID, 4))

	sum, err := newTestRunner(t, s, nil).RunPass(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, sum.Processed)
	assert.Equal(t, 1, sum.Cancelled)
	assert.Zero(t, sum.Failed)
	assert.Equal(t, orders.StatusProcessing, statusOf(t, s, o1.ID))
	assert.Equal(t, orders.StatusCancelled, statusOf(t, s, o2.ID))
	assert.Equal(t, 2, stockOf(t, s, p.ID))
}

func TestRunPass_NoPendingOrders(t *testing.T) {
	s := memstore.New()
	seedOrder(t, s, orders.StatusProcessing)
	engine := &stubReserver{}
	inv := &recordingInvalidator{}

	sum, err := NewRunner(s.Orders(), engine, inv, zaptest.NewLogger(t)).RunPass(context.Background())
	require.NoError(t, err)

	assert.Zero(t, sum.Processed)
	assert.Zero(t, sum.Cancelled)
	assert.Empty(t, engine.calls())
	assert.Empty(t, inv.scopes())
}

func TestRunPass_SecondPassIsNoop(t *testing.T) {
	s := memstore.New()
	p := seedProduct(t, s, "keyboard", 5)
	seedOrder(t, s, orders.StatusPending, line(p.ID, 3))
	seedOrder(t, s, orders.StatusPending, line(p.ID, 4))
	r := newTestRunner(t, s, nil)

	_, err := r.RunPass(context.Background())
	require.NoError(t, err)
	sum, err := r.RunPass(context.Background())
	require.NoError(t, err)

	assert.Zero(t, sum.Processed+sum.Cancelled+sum.Skipped)
	assert.Equal(t, 2, stockOf(t, s, p.ID))
}

func TestRunPass_ConcurrentWorkersNeverOversell(t *testing.T) {
	s := memstore.New()
	p := seedProduct(t, s, "last unit", 1)
	for range 10 {
		seedOrder(t, s, orders.StatusPending, line(p.ID, 1))
	}

	sum, err := newTestRunner(t, s, nil, WithWorkers(4)).RunPass(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, sum.Processed)
	assert.Equal(t, 9, sum.Cancelled)
	assert.Equal(t, 0, stockOf(t, s, p.ID))

	stats, err := s.Orders().CountByStatus(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, stats[orders.StatusProcessing])
	assert.EqualValues(t, 9, stats[orders.StatusCancelled])
}

func TestRunPass_FailuresAreIsolated(t *testing.T) {
	s := memstore.New()
	o1 := seedOrder(t, s, orders.StatusPending)
	o2 := seedOrder(t, s, orders.StatusPending)
	o3 := seedOrder(t, s, orders.StatusPending)
	o4 := seedOrder(t, s, orders.StatusPending)
	engine := &stubReserver{
		errs:   map[int64]error{o2.ID: errBoom},
		panics: map[int64]bool{o3.ID: true},
	}
	inv := &recordingInvalidator{}
	pub := &recordingPublisher{}

	sum, err := NewRunner(s.Orders(), engine, inv, zaptest.NewLogger(t), WithPublisher(pub)).
		RunPass(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []int64{o1.ID, o2.ID, o3.ID, o4.ID}, engine.calls())
	assert.Equal(t, 2, sum.Processed)
	assert.Equal(t, 2, sum.Failed)
	assert.Equal(t, 2, sum.Cancelled, "failures count as cancelled")
	require.Len(t, pub.outs, 2)
	assert.Equal(t, o1.ID, pub.outs[0].OrderID)
	assert.Equal(t, o4.ID, pub.outs[1].OrderID)
}

func TestRunPass_InvalidatesAndPublishes(t *testing.T) {
	s := memstore.New()
	a := seedProduct(t, s, "keyboard", 5)
	b := seedProduct(t, s, "mouse", 5)
	o := seedOrder(t, s, orders.StatusPending, line(b.ID, 1), line(a.ID, 1))
	inv := &recordingInvalidator{err: errBoom}
	pub := &recordingPublisher{err: errBoom}

	sum, err := newTestRunner(t, s, inv, WithPublisher(pub)).RunPass(context.Background())
	require.NoError(t, err, "notifier errors must not fail the pass")
	assert.Equal(t, 1, sum.Processed)

	scopes := inv.scopes()
	assert.Equal(t, [][]string{nil}, scopes[cache.ScopeOrders])
	assert.Equal(t, [][]string{{strconv.FormatInt(o.ID, 10)}}, scopes[cache.ScopeOrderByID])
	assert.Equal(t, [][]string{{"PENDING", "PROCESSING"}}, scopes[cache.ScopeOrdersByStatus])
	assert.Equal(t, [][]string{{strconv.FormatInt(a.ID, 10), strconv.FormatInt(b.ID, 10)}}, scopes[cache.ScopeProducts])

	require.Len(t, pub.outs, 1)
	assert.True(t, pub.outs[0].Reserved)
}

func TestRunPass_RejectionSkipsProductInvalidation(t *testing.T) {
	s := memstore.New()
	a := seedProduct(t, s, "keyboard", 1)
	seedOrder(t, s, orders.StatusPending, line(a.ID, 2))
	inv := &recordingInvalidator{}

	sum, err := newTestRunner(t, s, inv).RunPass(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Cancelled)

	scopes := inv.scopes()
	assert.NotContains(t, scopes, cache.ScopeProducts)
	assert.Equal(t, [][]string{{"PENDING", "CANCELLED"}}, scopes[cache.ScopeOrdersByStatus])
}

type failingOrders struct{ orders.OrderStore }

func (failingOrders) FindByStatus(context.Context, orders.Status) ([]orders.Order, error) {
	return nil, errBoom
}

func TestRunPass_SnapshotFailure(t *testing.T) {
	s := memstore.New()
	engine := &stubReserver{}

	_, err := NewRunner(failingOrders{s.Orders()}, engine, nil, zaptest.NewLogger(t)).RunPass(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, orders.ErrStoreFailure)
	assert.Empty(t, engine.calls())
}

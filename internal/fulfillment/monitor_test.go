package fulfillment

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ariefcatur/go-order-fulfillment/internal/memstore"
	"github.com/ariefcatur/go-order-fulfillment/internal/orders"
)

type fixedStatus SchedulerState

func (f fixedStatus) Status() SchedulerState { return SchedulerState(f) }

type mapStatsCache struct {
	stats map[string]int64
	sets  int
}

func (c *mapStatsCache) GetStats(context.Context) (map[string]int64, bool, error) {
	return c.stats, c.stats != nil, nil
}

func (c *mapStatsCache) SetStats(_ context.Context, stats map[string]int64) error {
	c.stats = stats
	c.sets++
	return nil
}

func TestMonitor_SchedulerStatus(t *testing.T) {
	s := memstore.New()
	seedOrder(t, s, orders.StatusPending)
	seedOrder(t, s, orders.StatusPending)
	seedOrder(t, s, orders.StatusCancelled)
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	src := fixedStatus{
		Active:      true,
		State:       StateIdle,
		Interval:    120 * time.Second,
		Description: "active",
		LastPassAt:  at,
		LastPass:    &PassSummary{Processed: 4},
	}

	info, err := NewMonitor(src, s.Orders(), nil, zaptest.NewLogger(t)).SchedulerStatus(context.Background())
	require.NoError(t, err)

	assert.True(t, info.Active)
	assert.False(t, info.Running)
	assert.EqualValues(t, 120000, info.IntervalMillis)
	assert.EqualValues(t, 2, info.CurrentPendingOrders)
	require.NotNil(t, info.LastPassAt)
	assert.Equal(t, at, *info.LastPassAt)
	assert.Equal(t, 4, info.LastPass.Processed)
}

func TestMonitor_SchedulerStatusNeverRan(t *testing.T) {
	s := memstore.New()
	info, err := NewMonitor(fixedStatus{State: StateStopped}, s.Orders(), nil, nil).SchedulerStatus(context.Background())
	require.NoError(t, err)
	assert.Nil(t, info.LastPassAt)
	assert.Zero(t, info.CurrentPendingOrders)
}

func TestMonitor_OrderStats(t *testing.T) {
	s := memstore.New()
	seedOrder(t, s, orders.StatusPending)
	seedOrder(t, s, orders.StatusProcessing)
	seedOrder(t, s, orders.StatusProcessing)
	seedOrder(t, s, orders.StatusCancelled)

	stats, err := NewMonitor(fixedStatus{}, s.Orders(), nil, zaptest.NewLogger(t)).OrderStats(context.Background())
	require.NoError(t, err)

	assert.Len(t, stats, len(orders.AllStatuses)+1)
	assert.EqualValues(t, 1, stats["PENDING"])
	assert.EqualValues(t, 2, stats["PROCESSING"])
	assert.EqualValues(t, 1, stats["CANCELLED"])
	assert.EqualValues(t, 0, stats["SHIPPED"])
	assert.EqualValues(t, 4, stats[StatsTotalKey])
}

func TestMonitor_OrderStatsCached(t *testing.T) {
	s := memstore.New()
	seedOrder(t, s, orders.StatusPending)
	c := &mapStatsCache{}
	m := NewMonitor(fixedStatus{}, s.Orders(), c, zaptest.NewLogger(t))

	first, err := m.OrderStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, c.sets)

	seedOrder(t, s, orders.StatusPending)
	second, err := m.OrderStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first, second, "served from cache until invalidated")
	assert.Equal(t, 1, c.sets)
}

package fulfillment

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ariefcatur/go-order-fulfillment/internal/orders"
)

const StatsTotalKey = "TOTAL"

// SchedulerInfo is the read-only status document served to operators.
type SchedulerInfo struct {
	Active               bool         `json:"active"`
	State                State        `json:"state"`
	Running              bool         `json:"running"`
	IntervalMillis       int64        `json:"intervalMillis"`
	Description          string       `json:"description"`
	CurrentPendingOrders int64        `json:"currentPendingOrders"`
	SkippedTicks         int64        `json:"skippedTicks"`
	LastPassAt           *time.Time   `json:"lastPassAt,omitempty"`
	LastPass             *PassSummary `json:"lastPass,omitempty"`
	LastError            string       `json:"lastError,omitempty"`
}

type StatusSource interface {
	Status() SchedulerState
}

// StatsCache holds the last computed order stats.
type StatsCache interface {
	GetStats(ctx context.Context) (map[string]int64, bool, error)
	SetStats(ctx context.Context, stats map[string]int64) error
}

type Monitor struct {
	scheduler StatusSource
	orders    orders.OrderStore
	cache     StatsCache
	log       *zap.Logger
}

// NewMonitor accepts a nil cache; stats are then counted on every call.
func NewMonitor(scheduler StatusSource, store orders.OrderStore, cache StatsCache, log *zap.Logger) *Monitor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Monitor{scheduler: scheduler, orders: store, cache: cache, log: log}
}

func (m *Monitor) SchedulerStatus(ctx context.Context) (SchedulerInfo, error) {
	counts, err := m.orders.CountByStatus(ctx)
	if err != nil {
		return SchedulerInfo{}, fmt.Errorf("%w: count pending orders: %w", orders.ErrStoreFailure, err)
	}
	st := m.scheduler.Status()
	info := SchedulerInfo{
		Active:               st.Active,
		State:                st.State,
		Running:              st.State == StateRunning,
		IntervalMillis:       st.Interval.Milliseconds(),
		Description:          st.Description,
		CurrentPendingOrders: counts[orders.StatusPending],
		SkippedTicks:         st.SkippedTicks,
		LastPass:             st.LastPass,
		LastError:            st.LastError,
	}
	if !st.LastPassAt.IsZero() {
		at := st.LastPassAt
		info.LastPassAt = &at
	}
	return info, nil
}

// OrderStats counts orders per status. Every status is present, zero when
// no order has it, plus TOTAL.
func (m *Monitor) OrderStats(ctx context.Context) (map[string]int64, error) {
	if m.cache != nil {
		stats, ok, err := m.cache.GetStats(ctx)
		if err != nil {
			m.log.Warn("read cached order stats", zap.Error(err))
		} else if ok {
			return stats, nil
		}
	}

	counts, err := m.orders.CountByStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: count orders: %w", orders.ErrStoreFailure, err)
	}
	stats := make(map[string]int64, len(orders.AllStatuses)+1)
	var total int64
	for _, s := range orders.AllStatuses {
		stats[string(s)] = counts[s]
	}
	for _, n := range counts {
		total += n
	}
	stats[StatsTotalKey] = total

	if m.cache != nil {
		if err := m.cache.SetStats(ctx, stats); err != nil {
			m.log.Warn("cache order stats", zap.Error(err))
		}
	}
	return stats, nil
}

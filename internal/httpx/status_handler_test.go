package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ariefcatur/go-order-fulfillment/internal/fulfillment"
	"github.com/ariefcatur/go-order-fulfillment/internal/memstore"
	"github.com/ariefcatur/go-order-fulfillment/internal/orders"
)

type mockMonitor struct{ mock.Mock }

func (m *mockMonitor) SchedulerStatus(ctx context.Context) (fulfillment.SchedulerInfo, error) {
	args := m.Called(ctx)
	return args.Get(0).(fulfillment.SchedulerInfo), args.Error(1)
}

func (m *mockMonitor) OrderStats(ctx context.Context) (map[string]int64, error) {
	args := m.Called(ctx)
	stats, _ := args.Get(0).(map[string]int64)
	return stats, args.Error(1)
}

func newTestServer(t *testing.T, mon StatusReader) *httptest.Server {
	t.Helper()
	log := zaptest.NewLogger(t)
	r := NewRouter(log)
	(&StatusHandler{Monitor: mon, Log: log}).Register(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t, &mockMonitor{})
	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "ok", string(b))
}

func TestSchedulerInfo(t *testing.T) {
	m := &mockMonitor{}
	m.On("SchedulerStatus", mock.Anything).Return(fulfillment.SchedulerInfo{
		Active:               true,
		State:                fulfillment.StateIdle,
		IntervalMillis:       120000,
		Description:          "Order fulfillment scheduler is active.",
		CurrentPendingOrders: 3,
	}, nil)
	srv := newTestServer(t, m)

	var body map[string]any
	code := getJSON(t, srv.URL+"/api/scheduler/info", &body)

	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["active"])
	assert.EqualValues(t, 120000, body["intervalMillis"])
	assert.EqualValues(t, 3, body["currentPendingOrders"])
	assert.Equal(t, "IDLE", body["state"])
	assert.NotContains(t, body, "lastPassAt")
	m.AssertExpectations(t)
}

func TestSchedulerInfo_StoreDown(t *testing.T) {
	m := &mockMonitor{}
	m.On("SchedulerStatus", mock.Anything).Return(fulfillment.SchedulerInfo{}, errors.New("db down"))
	srv := newTestServer(t, m)

	var body map[string]string
	assert.Equal(t, http.StatusServiceUnavailable, getJSON(t, srv.URL+"/api/scheduler/info", &body))
	assert.Equal(t, "scheduler status unavailable", body["error"])
}

func TestOrderStats_EndToEnd(t *testing.T) {
	s := memstore.New()
	ctx := context.Background()
	for _, st := range []orders.Status{orders.StatusPending, orders.StatusPending, orders.StatusCancelled} {
		_, err := s.Orders().Save(ctx, orders.Order{Status: st})
		require.NoError(t, err)
	}
	sched := fulfillment.NewScheduler(nil, time.Minute, nil)
	mon := fulfillment.NewMonitor(sched, s.Orders(), nil, nil)
	srv := newTestServer(t, mon)

	var stats map[string]int64
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/scheduler/stats", &stats))
	assert.EqualValues(t, 2, stats["PENDING"])
	assert.EqualValues(t, 1, stats["CANCELLED"])
	assert.EqualValues(t, 0, stats["DELIVERED"])
	assert.EqualValues(t, 3, stats[fulfillment.StatsTotalKey])

	var info fulfillment.SchedulerInfo
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/scheduler/info", &info))
	assert.False(t, info.Active)
	assert.EqualValues(t, 60000, info.IntervalMillis)
	assert.EqualValues(t, 2, info.CurrentPendingOrders)
}

func TestOrderStats_Error(t *testing.T) {
	m := &mockMonitor{}
	m.On("OrderStats", mock.Anything).Return(nil, errors.New("db down"))
	srv := newTestServer(t, m)

	var body map[string]string
	assert.Equal(t, http.StatusServiceUnavailable, getJSON(t, srv.URL+"/api/scheduler/stats", &body))
}

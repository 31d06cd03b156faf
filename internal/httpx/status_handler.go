package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-order-fulfillment/internal/fulfillment"
)

type StatusReader interface {
	SchedulerStatus(ctx context.Context) (fulfillment.SchedulerInfo, error)
	OrderStats(ctx context.Context) (map[string]int64, error)
}

// StatusHandler serves the read-only fulfillment monitoring endpoints.
type StatusHandler struct {
	Monitor StatusReader
	Log     *zap.Logger
}

func (h *StatusHandler) Register(r chi.Router) {
	r.Route("/api/scheduler", func(r chi.Router) {
		r.Get("/info", h.schedulerInfo)
		r.Get("/stats", h.orderStats)
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *StatusHandler) schedulerInfo(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	info, err := h.Monitor.SchedulerStatus(ctx)
	if err != nil {
		h.Log.Error("scheduler status", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "scheduler status unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (h *StatusHandler) orderStats(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	stats, err := h.Monitor.OrderStats(ctx)
	if err != nil {
		h.Log.Error("order stats", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "order stats unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

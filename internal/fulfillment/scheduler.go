package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const DefaultInterval = 120 * time.Second

var ErrSchedulerStarted = errors.New("scheduler already started")

type PassRunner interface {
	RunPass(ctx context.Context) (PassSummary, error)
}

type State string

const (
	StateIdle    State = "IDLE"
	StateRunning State = "RUNNING"
	StateStopped State = "STOPPED"
)

// SchedulerState is a point-in-time view of the scheduler.
type SchedulerState struct {
	Active       bool
	State        State
	Interval     time.Duration
	Description  string
	SkippedTicks int64
	LastPassAt   time.Time
	LastPass     *PassSummary
	LastError    string
}

// Scheduler triggers a pass once on Start and then on every interval. A tick
// that arrives while a pass is running is dropped, so passes never overlap.
type Scheduler struct {
	runner   PassRunner
	interval time.Duration
	log      *zap.Logger
	metrics  *metrics

	mu         sync.Mutex
	started    bool
	stopped    bool
	cancel     context.CancelFunc
	loopDone   chan struct{}
	lastPassAt time.Time
	lastPass   *PassSummary
	lastErr    string

	running  atomic.Bool
	skipped  atomic.Int64
	inflight sync.WaitGroup
}

type SchedulerOption func(*Scheduler)

func WithSchedulerMeter(m metric.Meter) SchedulerOption {
	return func(s *Scheduler) { s.metrics = newMetrics(m) }
}

// NewScheduler falls back to DefaultInterval when interval is not positive.
func NewScheduler(runner PassRunner, interval time.Duration, log *zap.Logger, opts ...SchedulerOption) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	s := &Scheduler{runner: runner, interval: interval, log: log}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	if s.metrics == nil {
		s.metrics = newMetrics(nil)
	}
	return s
}

// Start launches the tick loop. Cancelling ctx stops ticking; a pass already
// running is not cancelled with it. Use Stop to wait for it.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return ErrSchedulerStarted
	}
	s.started = true
	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.loopDone = make(chan struct{})
	s.mu.Unlock()

	s.log.Info("fulfillment scheduler started", zap.Duration("interval", s.interval))
	go s.loop(loopCtx, context.WithoutCancel(ctx))
	return nil
}

// Stop halts ticking and waits for an in-flight pass until ctx expires.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.started || s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	cancel, loopDone := s.cancel, s.loopDone
	s.mu.Unlock()

	cancel()
	<-loopDone

	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.log.Info("fulfillment scheduler stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for running pass: %w", ctx.Err())
	}
}

func (s *Scheduler) loop(loopCtx, passCtx context.Context) {
	defer close(s.loopDone)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.tick(passCtx)
	for {
		select {
		case <-loopCtx.Done():
			return
		case <-ticker.C:
			s.tick(passCtx)
		}
	}
}

// tick starts a pass unless one is already running. It reports whether a
// pass was started.
func (s *Scheduler) tick(ctx context.Context) bool {
	if !s.running.CompareAndSwap(false, true) {
		n := s.skipped.Add(1)
		s.metrics.ticksSkipped.Add(ctx, 1)
		s.log.Warn("previous pass still running, tick skipped", zap.Int64("skipped_ticks", n))
		return false
	}
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		defer s.running.Store(false)
		s.runPass(ctx)
	}()
	return true
}

func (s *Scheduler) runPass(ctx context.Context) {
	start := time.Now()
	var (
		summary PassSummary
		err     error
	)
	func() {
		defer func() {
			if rec := recover(); rec != nil {
				err = fmt.Errorf("pass panicked: %v", rec)
			}
		}()
		summary, err = s.runner.RunPass(ctx)
	}()

	s.mu.Lock()
	s.lastPassAt = start
	s.lastPass = &summary
	s.lastErr = ""
	if err != nil {
		s.lastErr = err.Error()
	}
	s.mu.Unlock()

	if err != nil {
		s.log.Error("fulfillment pass failed", zap.Error(err))
		return
	}
	if summary.Processed+summary.Cancelled+summary.Skipped == 0 {
		return
	}
	s.log.Info("fulfillment pass completed",
		zap.Int("processed", summary.Processed),
		zap.Int("cancelled", summary.Cancelled),
		zap.Int("failed", summary.Failed),
		zap.Int("skipped", summary.Skipped),
		zap.Duration("duration", summary.Duration))
}

func (s *Scheduler) Status() SchedulerState {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := SchedulerState{
		Active:       s.started && !s.stopped,
		Interval:     s.interval,
		SkippedTicks: s.skipped.Load(),
		LastPassAt:   s.lastPassAt,
		LastError:    s.lastErr,
	}
	if s.lastPass != nil {
		p := *s.lastPass
		st.LastPass = &p
	}
	switch {
	case !st.Active:
		st.State = StateStopped
		st.Description = "Order fulfillment scheduler is not running."
	case s.running.Load():
		st.State = StateRunning
		st.Description = fmt.Sprintf("Order fulfillment scheduler is active. Runs every %s to process pending orders. A pass is in progress.", s.interval)
	default:
		st.State = StateIdle
		st.Description = fmt.Sprintf("Order fulfillment scheduler is active. Runs every %s to process pending orders.", s.interval)
	}
	return st
}

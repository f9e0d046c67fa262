// Package scheduler runs periodic actions on independently paced goroutines.
//
// Each task owns one goroutine that calls its action once per frame period.
// Waiting is hybrid: the goroutine sleeps while more than the spin threshold
// remains before the next deadline, then busy-waits the rest, trading a little
// CPU for lower jitter than sleeping alone. A tick that runs a full period or
// longer drops the missed frames instead of bursting to catch up.
//
//	sched := scheduler.New(scheduler.WithLogger(logger))
//	h := sched.ScheduleTask(render, 30, scheduler.WithName("rainbow"))
//	defer h.Stop()
package scheduler

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/reosfire/xywire-sub000/metric"
)

// DefaultSpinThreshold is how close to a deadline the task stops sleeping
// and starts spinning.
const DefaultSpinThreshold = 2 * time.Millisecond

var (
	// ErrNilAction is the panic value for ScheduleTask(nil, ...)
	ErrNilAction = errors.New("scheduler: action must not be nil")
	// ErrInvalidFPS is wrapped in the panic value for a non-positive fps
	ErrInvalidFPS = errors.New("scheduler: fps must be positive")
)

// Scheduler creates tasks. It holds no per-task state, so one Scheduler is
// shared by every node of every compiled graph.
type Scheduler struct {
	logger  *slog.Logger
	metrics *schedulerMetrics
	spin    time.Duration

	now   func() time.Time
	sleep func(time.Duration)

	seq    atomic.Uint64
	active atomic.Int64
}

// Option configures a Scheduler
type Option func(*Scheduler)

// WithLogger sets the logger used for task lifecycle and panics
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics registers scheduler metrics with the registry
func WithMetrics(registry *metric.MetricsRegistry) Option {
	return func(s *Scheduler) {
		m, err := newSchedulerMetrics(registry)
		if err != nil {
			s.logger.Error("Failed to initialize scheduler metrics", "error", err)
			return
		}
		s.metrics = m
	}
}

// WithSpinThreshold overrides DefaultSpinThreshold
func WithSpinThreshold(d time.Duration) Option {
	return func(s *Scheduler) {
		if d >= 0 {
			s.spin = d
		}
	}
}

// New creates a Scheduler
func New(opts ...Option) *Scheduler {
	s := &Scheduler{
		logger: slog.Default().With("component", "scheduler"),
		spin:   DefaultSpinThreshold,
		now:    time.Now,
		sleep:  time.Sleep,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Active returns the number of tasks whose goroutine has not exited
func (s *Scheduler) Active() int {
	return int(s.active.Load())
}

// ScheduleTask starts action on its own goroutine at fps frames per second.
// It panics if action is nil or fps is not positive; both are caller bugs.
func (s *Scheduler) ScheduleTask(action func(), fps int, opts ...TaskOption) *TaskHandle {
	if action == nil {
		panic(ErrNilAction)
	}
	if fps <= 0 {
		panic(fmt.Errorf("%w: got %d", ErrInvalidFPS, fps))
	}

	h := &TaskHandle{
		sched:  s,
		name:   fmt.Sprintf("task-%d", s.seq.Add(1)),
		fps:    fps,
		period: time.Second / time.Duration(fps),
		action: action,
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.state.Store(int32(StateCreated))
	h.running.Store(true)

	s.active.Add(1)
	s.metrics.taskStarted()
	go h.run()

	return h
}

// nextDeadline advances the deadline by one period. When now has already
// reached the advanced deadline the frame is lost: the deadline resyncs to
// now, so missed frames are never run back to back, and the second result
// reports the overrun.
func nextDeadline(deadline, now time.Time, period time.Duration) (time.Time, bool) {
	next := deadline.Add(period)
	if !now.Before(next) {
		return now, true
	}
	return next, false
}

// waitUntil sleeps while more than the spin threshold remains, then spins.
// It returns early when the task is asked to stop.
func (s *Scheduler) waitUntil(deadline time.Time, running *atomic.Bool) {
	for running.Load() {
		remaining := deadline.Sub(s.now())
		if remaining <= 0 {
			return
		}
		if remaining > s.spin {
			s.sleep(remaining - s.spin)
			continue
		}
		runtime.Gosched()
	}
}

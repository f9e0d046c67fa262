package scheduler

import (
	"sync/atomic"
	"time"
)

// State is the lifecycle of a TaskHandle
type State int32

const (
	StateCreated State = iota
	StateRunning
	StateStopRequested
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateRunning:
		return "running"
	case StateStopRequested:
		return "stop_requested"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// TaskOption configures a task at schedule time
type TaskOption func(*TaskHandle)

// WithName labels the task in logs
func WithName(name string) TaskOption {
	return func(h *TaskHandle) {
		if name != "" {
			h.name = name
		}
	}
}

// Stats is a snapshot of task counters
type Stats struct {
	Ticks    uint64
	Overruns uint64
}

// TaskHandle controls one scheduled task. A nil *TaskHandle is valid and
// behaves like an already stopped task.
type TaskHandle struct {
	sched  *Scheduler
	name   string
	fps    int
	period time.Duration
	action func()

	running atomic.Bool
	state   atomic.Int32
	done    chan struct{}

	ticks    atomic.Uint64
	overruns atomic.Uint64
}

// Name returns the task label
func (h *TaskHandle) Name() string {
	if h == nil {
		return ""
	}
	return h.name
}

// FPS returns the requested frame rate
func (h *TaskHandle) FPS() int {
	if h == nil {
		return 0
	}
	return h.fps
}

// Period returns the frame period
func (h *TaskHandle) Period() time.Duration {
	if h == nil {
		return 0
	}
	return h.period
}

// State returns the current lifecycle state
func (h *TaskHandle) State() State {
	if h == nil {
		return StateStopped
	}
	return State(h.state.Load())
}

// Done is closed once the task goroutine has exited
func (h *TaskHandle) Done() <-chan struct{} {
	if h == nil {
		closed := make(chan struct{})
		close(closed)
		return closed
	}
	return h.done
}

// Stats returns tick and overrun counts
func (h *TaskHandle) Stats() Stats {
	if h == nil {
		return Stats{}
	}
	return Stats{Ticks: h.ticks.Load(), Overruns: h.overruns.Load()}
}

// Stop asks the task to exit and blocks until its goroutine has returned.
// That can take up to one frame period plus the in-flight action. Stop is
// idempotent and safe to call concurrently, but calling it from the task's
// own action deadlocks.
func (h *TaskHandle) Stop() {
	if h == nil {
		return
	}
	if h.running.CompareAndSwap(true, false) {
		if !h.state.CompareAndSwap(int32(StateRunning), int32(StateStopRequested)) {
			h.state.CompareAndSwap(int32(StateCreated), int32(StateStopRequested))
		}
	}
	<-h.done
}

func (h *TaskHandle) run() {
	s := h.sched
	defer func() {
		h.state.Store(int32(StateStopped))
		s.active.Add(-1)
		s.metrics.taskStopped()
		close(h.done)
	}()

	h.state.CompareAndSwap(int32(StateCreated), int32(StateRunning))
	s.logger.Debug("Task started", "task", h.name, "fps", h.fps)

	deadline := s.now()
	for h.running.Load() {
		start := s.now()
		if !h.tick() {
			h.running.Store(false)
			return
		}
		now := s.now()
		s.metrics.observeTick(now.Sub(start))
		h.ticks.Add(1)

		var overrun bool
		deadline, overrun = nextDeadline(deadline, now, h.period)
		if overrun {
			h.overruns.Add(1)
			s.metrics.recordOverrun()
		}
		s.waitUntil(deadline, &h.running)
	}
	s.logger.Debug("Task stopped", "task", h.name, "ticks", h.ticks.Load())
}

// tick runs the action once. A panicking action is logged and ends the task.
func (h *TaskHandle) tick() (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			h.sched.logger.Error("Task action panicked, stopping task", "task", h.name, "panic", r)
			ok = false
		}
	}()
	h.action()
	return true
}

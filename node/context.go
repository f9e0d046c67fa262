package node

import (
	"log/slog"
	"slices"
	"sync"

	"github.com/reosfire/xywire-sub000/frame"
	"github.com/reosfire/xywire-sub000/scheduler"
)

// FrameSink accepts frames for a device
type FrameSink interface {
	SendFrame(buf frame.Buffer) error
}

// DeviceDirectory resolves device names for sink nodes
type DeviceDirectory interface {
	Device(name string) (FrameSink, bool)
}

// DeviceFunc adapts a function to DeviceDirectory
type DeviceFunc func(name string) (FrameSink, bool)

// Device calls f
func (f DeviceFunc) Device(name string) (FrameSink, bool) { return f(name) }

// EffectContext is handed to every node's Initialize. One context exists per
// compiled graph; Close tears the graph down by stopping every task that was
// scheduled through it.
type EffectContext struct {
	sched   *scheduler.Scheduler
	devices DeviceDirectory
	logger  *slog.Logger

	mu      sync.Mutex
	tasks   []*scheduler.TaskHandle
	closers []func()
	closed  bool
}

// NewEffectContext creates a context. devices may be nil.
func NewEffectContext(sched *scheduler.Scheduler, devices DeviceDirectory, logger *slog.Logger) *EffectContext {
	if sched == nil {
		sched = scheduler.New()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &EffectContext{sched: sched, devices: devices, logger: logger}
}

// Logger returns the graph logger
func (c *EffectContext) Logger() *slog.Logger { return c.logger }

// ScheduleTask starts a task owned by this context. After Close it returns
// nil, which behaves as a stopped handle.
func (c *EffectContext) ScheduleTask(action func(), fps int, opts ...scheduler.TaskOption) *scheduler.TaskHandle {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}

	c.tasks = slices.DeleteFunc(c.tasks, func(h *scheduler.TaskHandle) bool {
		return h.State() == scheduler.StateStopped
	})
	h := c.sched.ScheduleTask(action, fps, opts...)
	c.tasks = append(c.tasks, h)
	return h
}

// Device resolves a device by name
func (c *EffectContext) Device(name string) (FrameSink, bool) {
	if c.devices == nil {
		return nil, false
	}
	return c.devices.Device(name)
}

// OnClose registers fn to run during Close, after all tasks stopped. On a
// closed context fn runs immediately.
func (c *EffectContext) OnClose(fn func()) {
	c.mu.Lock()
	if !c.closed {
		c.closers = append(c.closers, fn)
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()
	fn()
}

// Tasks returns the number of tasks that have not stopped
func (c *EffectContext) Tasks() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, h := range c.tasks {
		if h.State() != scheduler.StateStopped {
			n++
		}
	}
	return n
}

// Close stops every task and runs the close hooks. It is idempotent.
func (c *EffectContext) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	tasks, closers := c.tasks, c.closers
	c.tasks, c.closers = nil, nil
	c.mu.Unlock()

	for i := len(tasks) - 1; i >= 0; i-- {
		tasks[i].Stop()
	}
	for _, fn := range closers {
		fn()
	}
}

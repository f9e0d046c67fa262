package effects

import (
	"log/slog"
	"sync"

	"golang.org/x/time/rate"

	"github.com/reosfire/xywire-sub000/frame"
	"github.com/reosfire/xywire-sub000/node"
)

// log the first failure and then every logEvery-th one
const logEvery = 100

// deviceSink forwards buffers to a device's data channel. Frames above
// max_fps are dropped. A missing device or a failing send is logged and
// never stops the graph.
type deviceSink struct {
	node.Ports

	mu      sync.Mutex
	device  string
	limiter *rate.Limiter
	ectx    *node.EffectContext
	logger  *slog.Logger
	sink    node.FrameSink

	missing  int
	failures int
	dropped  int
	sent     int
}

func newDeviceSink() *deviceSink {
	s := &deviceSink{logger: slog.Default()}
	node.TypedInput(&s.Ports, "device", node.String, s.setDevice)
	node.TypedInput(&s.Ports, "max_fps", node.Int32, s.setMaxFPS)
	node.TypedInput(&s.Ports, "buffer", node.ColorBuffer, s.send)
	return s
}

func (s *deviceSink) setDevice(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.device = name
	s.sink = nil
	s.missing, s.failures = 0, 0
}

func (s *deviceSink) setMaxFPS(fps int32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fps <= 0 {
		s.limiter = nil
		return
	}
	s.limiter = rate.NewLimiter(rate.Limit(fps), 1)
}

func (s *deviceSink) Initialize(ectx *node.EffectContext) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ectx = ectx
	s.logger = ectx.Logger().With("node", DeviceSinkEffect)
	if s.device == "" {
		s.logger.Warn("Device sink has no device configured")
	}
	return nil
}

func (s *deviceSink) send(buf frame.Buffer) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ectx == nil {
		return
	}
	if s.limiter != nil && !s.limiter.Allow() {
		s.dropped++
		return
	}

	if s.sink == nil {
		sink, ok := s.ectx.Device(s.device)
		if !ok {
			s.missing++
			if s.missing == 1 || s.missing%logEvery == 0 {
				s.logger.Warn("Device not found, dropping frames", "device", s.device, "dropped", s.missing)
			}
			return
		}
		s.sink = sink
	}

	if err := s.sink.SendFrame(buf); err != nil {
		s.failures++
		if s.failures == 1 || s.failures%logEvery == 0 {
			s.logger.Error("Failed to send frame", "device", s.device, "failures", s.failures, "error", err)
		}
		return
	}
	s.sent++
}

func (s *deviceSink) stats() (sent, dropped, failures, missing int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sent, s.dropped, s.failures, s.missing
}

func deviceSinkDescriptor() *node.Descriptor {
	embedded := []node.PortSpec{port("device", node.String), port("max_fps", node.Int32)}
	return &node.Descriptor{
		TypeID:         DeviceSinkEffect,
		Name:           "Device output",
		Description:    "Streams buffers to an LED device",
		Inputs:         append(append([]node.PortSpec{}, embedded...), port("buffer", node.ColorBuffer)),
		EmbeddedInputs: embedded,
		Factory:        func() node.Instance { return newDeviceSink() },
	}
}

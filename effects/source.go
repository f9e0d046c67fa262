package effects

import (
	"sync"

	"github.com/reosfire/xywire-sub000/frame"
	"github.com/reosfire/xywire-sub000/node"
	"github.com/reosfire/xywire-sub000/scheduler"
)

// bufferSource owns the render task shared by the buffer-producing nodes.
// Changing width, height or fps after Initialize restarts the task with a
// freshly sized buffer.
type bufferSource struct {
	node.Ports
	name string
	out  *node.OutputSlot
	// render fills buf for the next frame; it runs on the task goroutine
	render func(buf frame.Buffer)

	restartMu sync.Mutex

	mu                 sync.Mutex
	width, height, fps int
	ectx               *node.EffectContext
	task               *scheduler.TaskHandle
}

func (s *bufferSource) init(name string, render func(frame.Buffer)) {
	s.name = name
	s.render = render
	s.width, s.height, s.fps = DefaultWidth, DefaultHeight, DefaultFPS
	s.out = s.RegisterOutput("buffer", node.ColorBuffer)
	node.TypedInput(&s.Ports, "width", node.Int32, func(v int32) { s.reconfigure(func() { s.width = int(v) }) })
	node.TypedInput(&s.Ports, "height", node.Int32, func(v int32) { s.reconfigure(func() { s.height = int(v) }) })
	node.TypedInput(&s.Ports, "fps", node.Int32, func(v int32) { s.reconfigure(func() { s.fps = int(v) }) })
}

func geometryPorts() []node.PortSpec {
	return []node.PortSpec{port("width", node.Int32), port("height", node.Int32), port("fps", node.Int32)}
}

func (s *bufferSource) reconfigure(change func()) {
	s.mu.Lock()
	before := [3]int{s.width, s.height, s.fps}
	change()
	changed := before != [3]int{s.width, s.height, s.fps}
	started := s.ectx != nil
	s.mu.Unlock()

	if changed && started {
		s.restart()
	}
}

func (s *bufferSource) Initialize(ectx *node.EffectContext) error {
	s.mu.Lock()
	s.ectx = ectx
	s.mu.Unlock()
	s.restart()
	return nil
}

func (s *bufferSource) restart() {
	s.restartMu.Lock()
	defer s.restartMu.Unlock()

	s.mu.Lock()
	old := s.task
	s.task = nil
	ectx, w, h, fps := s.ectx, s.width, s.height, s.fps
	s.mu.Unlock()

	old.Stop()
	if ectx == nil {
		return
	}
	if fps <= 0 {
		ectx.Logger().Warn("Buffer source paused, fps must be positive", "node", s.name, "fps", fps)
		return
	}
	if pixels := int64(w) * int64(h); pixels > MaxPixels {
		ectx.Logger().Warn("Buffer source paused, matrix too large",
			"node", s.name, "width", w, "height", h, "max_pixels", MaxPixels)
		return
	}

	buf := frame.NewBuffer(w, h)
	task := ectx.ScheduleTask(func() {
		s.render(buf)
		s.out.Invoke(buf)
	}, fps, scheduler.WithName(s.name))

	s.mu.Lock()
	s.task = task
	s.mu.Unlock()
}

// solidColor fills its buffer with the current color every frame
type solidColor struct {
	bufferSource

	colorMu sync.Mutex
	color   frame.Color
}

func newSolidColor() *solidColor {
	n := &solidColor{color: frame.Black}
	n.init(SolidColorEffect, n.draw)
	node.TypedInput(&n.Ports, "color", node.Color, func(c frame.Color) {
		n.colorMu.Lock()
		n.color = c
		n.colorMu.Unlock()
	})
	return n
}

func (n *solidColor) draw(buf frame.Buffer) {
	n.colorMu.Lock()
	c := n.color
	n.colorMu.Unlock()
	buf.Fill(c)
}

func solidColorDescriptor() *node.Descriptor {
	geometry := geometryPorts()
	return &node.Descriptor{
		TypeID:         SolidColorEffect,
		Name:           "Solid color",
		Description:    "Fills the whole matrix with one color",
		Inputs:         append(append([]node.PortSpec{}, geometry...), port("color", node.Color)),
		Outputs:        []node.PortSpec{port("buffer", node.ColorBuffer)},
		EmbeddedInputs: geometry,
		Factory:        func() node.Instance { return newSolidColor() },
	}
}

// rainbow scrolls a diagonal hue gradient; speed is degrees per frame
type rainbow struct {
	bufferSource

	speedMu sync.Mutex
	speed   float64
	offset  float64
}

func newRainbow() *rainbow {
	n := &rainbow{speed: 1}
	n.init(RainbowEffect, n.draw)
	node.TypedInput(&n.Ports, "speed", node.Float32, func(v float32) {
		n.speedMu.Lock()
		n.speed = float64(v)
		n.speedMu.Unlock()
	})
	return n
}

func (n *rainbow) draw(buf frame.Buffer) {
	n.speedMu.Lock()
	n.offset += n.speed
	offset := n.offset
	n.speedMu.Unlock()

	span := float64(buf.Width + buf.Height)
	if span == 0 {
		return
	}
	for y := range buf.Height {
		for x := range buf.Width {
			buf.Set(x, y, frame.HSV(float64(x+y)*360/span+offset, 1, 1))
		}
	}
}

func rainbowDescriptor() *node.Descriptor {
	embedded := append(geometryPorts(), port("speed", node.Float32))
	return &node.Descriptor{
		TypeID:         RainbowEffect,
		Name:           "Rainbow",
		Description:    "Scrolling hue gradient",
		Inputs:         append([]node.PortSpec{}, embedded...),
		Outputs:        []node.PortSpec{port("buffer", node.ColorBuffer)},
		EmbeddedInputs: embedded,
		Factory:        func() node.Instance { return newRainbow() },
	}
}

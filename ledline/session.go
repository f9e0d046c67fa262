package ledline

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/reosfire/xywire-sub000/errors"
	"github.com/reosfire/xywire-sub000/frame"
	"github.com/reosfire/xywire-sub000/health"
	"github.com/reosfire/xywire-sub000/pkg/retry"
)

const (
	// DefaultAckTimeout is how long a reliable packet waits for a reply before
	// it is resent.
	DefaultAckTimeout = 200 * time.Millisecond

	readPollInterval = 100 * time.Millisecond
	readBufferSize   = 512
)

var (
	// ErrSessionClosed is returned by every send after Close
	ErrSessionClosed = stderrors.New("device session closed")
	// ErrSessionFaulted marks the captured socket error of a faulted session
	ErrSessionFaulted = stderrors.New("device session faulted")
)

// Config identifies a device and its wiring
type Config struct {
	Name       string
	Address    string // host:port
	Layout     Layout
	AckTimeout time.Duration
	// MaxFPS caps SendFrame; frames over the cap are dropped. 0 is unlimited.
	MaxFPS int
}

func (c Config) withDefaults() Config {
	if c.AckTimeout <= 0 {
		c.AckTimeout = DefaultAckTimeout
	}
	if c.Name == "" {
		c.Name = c.Address
	}
	return c
}

// Validate checks the session configuration
func (c Config) Validate() error {
	if c.Address == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "Config", "Validate", "device address")
	}
	if c.MaxFPS < 0 {
		return errors.WrapInvalid(
			fmt.Errorf("max fps cannot be negative: %d", c.MaxFPS),
			"Config", "Validate", "check max fps")
	}
	return c.Layout.Validate()
}

type options struct {
	logger  *slog.Logger
	metrics *Metrics
	retry   retry.Config
}

// Option configures Dial
type Option func(*options)

// WithLogger sets the session logger
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithMetrics attaches shared transport metrics
func WithMetrics(m *Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithDialRetry overrides the backoff used while resolving and dialing
func WithDialRetry(cfg retry.Config) Option {
	return func(o *options) { o.retry = cfg }
}

// Stats is a snapshot of session counters
type Stats struct {
	Generation       uint32
	FramesSent       uint64
	FramesDropped    uint64
	BytesSent        uint64
	ReliableAttempts uint64
	ReliableAcks     uint64
	Errors           uint64
}

// Session is the connection to one LED device. It owns a connected UDP socket
// and one receive goroutine. All writes are serialized; at most one reliable
// exchange is in flight at a time.
type Session struct {
	id      uuid.UUID
	cfg     Config
	logger  *slog.Logger
	metrics *Metrics
	conn    *net.UDPConn
	started time.Time

	writeMu    sync.Mutex
	frameBuf   []byte
	generation atomic.Uint32
	limiter    *rate.Limiter

	reliableMu sync.Mutex

	mu      sync.Mutex
	waiters []chan error
	fault   error
	closed  bool

	running atomic.Bool
	done    chan struct{}

	framesSent       atomic.Uint64
	framesDropped    atomic.Uint64
	bytesSent        atomic.Uint64
	reliableAttempts atomic.Uint64
	reliableAcks     atomic.Uint64
	errorCount       atomic.Uint64
	lastAttempts     atomic.Int64
	lastActivity     atomic.Int64
}

// Dial opens a session to the device at cfg.Address and starts receiving
// replies. Address resolution and socket creation are retried.
func Dial(ctx context.Context, cfg Config, opts ...Option) (*Session, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := options{retry: retry.Quick()}
	for _, opt := range opts {
		opt(&o)
	}
	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "ledline", "device", cfg.Name)

	rc := o.retry
	if rc.Retryable == nil {
		rc.Retryable = func(err error) bool {
			var addrErr *net.AddrError
			return !stderrors.As(err, &addrErr)
		}
	}
	if rc.OnRetry == nil {
		rc.OnRetry = func(attempt int, err error, delay time.Duration) {
			logger.Warn("Device dial failed, retrying", "attempt", attempt, "delay", delay, "error", err)
		}
	}

	conn, err := retry.DoWithResult(ctx, rc, func() (*net.UDPConn, error) {
		raddr, err := net.ResolveUDPAddr("udp", cfg.Address)
		if err != nil {
			return nil, err
		}
		return net.DialUDP("udp", nil, raddr)
	})
	if err != nil {
		return nil, errors.WrapTransient(
			fmt.Errorf("%w: %s: %w", errors.ErrDeviceUnreachable, cfg.Address, err),
			"Session", "Dial", "open socket")
	}

	s := &Session{
		id:       uuid.New(),
		cfg:      cfg,
		logger:   logger,
		metrics:  o.metrics,
		conn:     conn,
		started:  time.Now(),
		frameBuf: make([]byte, 0, cfg.Layout.PacketSize()),
		done:     make(chan struct{}),
	}
	if cfg.MaxFPS > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.MaxFPS), 1)
	}
	s.running.Store(true)
	s.metrics.setFaulted(cfg.Name, false)

	go s.readLoop()

	logger.Info("Device session opened",
		"session_id", s.id,
		"address", conn.RemoteAddr().String(),
		"rows", cfg.Layout.Rows,
		"columns", cfg.Layout.Columns,
		"dead_leds", cfg.Layout.DeadLeds)
	return s, nil
}

// ID returns the session id
func (s *Session) ID() uuid.UUID { return s.id }

// Name returns the device name
func (s *Session) Name() string { return s.cfg.Name }

// Layout returns the device wiring
func (s *Session) Layout() Layout { return s.cfg.Layout }

// Generation returns the generation stamped on the most recent data packet
func (s *Session) Generation() uint32 { return s.generation.Load() }

// Err returns the captured fault, ErrSessionClosed after Close, or nil.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errLocked()
}

func (s *Session) errLocked() error {
	if s.fault != nil {
		return s.fault
	}
	if s.closed {
		return ErrSessionClosed
	}
	return nil
}

// SendFrame writes buf on the best-effort data channel. The frame is never
// retried. Each call stamps the next generation number, wrapping at 2^32.
// With MaxFPS set, frames arriving faster than the cap are dropped without
// consuming a generation.
func (s *Session) SendFrame(buf frame.Buffer) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.Err(); err != nil {
		return err
	}
	if s.limiter != nil && !s.limiter.Allow() {
		s.framesDropped.Add(1)
		return nil
	}

	gen := s.generation.Add(1)
	s.frameBuf = EncodeFrame(s.frameBuf[:0], gen, s.cfg.Layout, buf)
	n, err := s.writeLocked(s.frameBuf, "SendFrame")
	if err != nil {
		return err
	}

	s.framesSent.Add(1)
	s.metrics.frameSent(s.cfg.Name, n)
	return nil
}

// SendAcked sends packet on the reliable channel. The packet is resent every
// AckTimeout until the device answers with any datagram, the session faults
// or closes, or ctx is done.
func (s *Session) SendAcked(ctx context.Context, packet []byte) error {
	if len(packet) == 0 {
		return errors.WrapInvalid(errors.ErrInvalidData, "Session", "SendAcked", "empty packet")
	}

	s.reliableMu.Lock()
	defer s.reliableMu.Unlock()

	w, err := s.addWaiter()
	if err != nil {
		return err
	}
	defer s.dropWaiter(w)

	start := time.Now()
	for attempt := 1; ; attempt++ {
		n, err := s.write(packet, "SendAcked")
		if err != nil {
			return err
		}
		s.reliableAttempts.Add(1)
		s.metrics.reliableSent(s.cfg.Name, n)

		timer := time.NewTimer(s.cfg.AckTimeout)
		select {
		case err := <-w:
			timer.Stop()
			if err != nil {
				return err
			}
			s.reliableAcks.Add(1)
			s.lastAttempts.Store(int64(attempt))
			s.metrics.ackReceived(s.cfg.Name, time.Since(start))
			if attempt > 1 {
				s.logger.Debug("Reliable packet acknowledged after resend",
					"opcode", packet[0], "attempts", attempt)
			}
			return nil
		case <-timer.C:
			s.logger.Debug("No reply from device, resending", "opcode", packet[0], "attempt", attempt)
		case <-ctx.Done():
			timer.Stop()
			return errors.WrapTransient(ctx.Err(), "Session", "SendAcked",
				fmt.Sprintf("await reply after %d attempts", attempt))
		}
	}
}

// Clear turns every LED off
func (s *Session) Clear(ctx context.Context) error {
	return s.SendAcked(ctx, ClearPacket())
}

// SetBrightness sets the global brightness
func (s *Session) SetBrightness(ctx context.Context, level uint8) error {
	return s.SendAcked(ctx, BrightnessPacket(level))
}

// Close stops the receive loop and fails pending reliable sends with
// ErrSessionClosed. Closing twice is a no-op.
func (s *Session) Close() error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}

	s.mu.Lock()
	s.closed = true
	waiters := s.waiters
	s.waiters = nil
	s.mu.Unlock()

	for _, w := range waiters {
		w <- ErrSessionClosed
	}

	err := s.conn.Close()
	<-s.done

	s.logger.Info("Device session closed",
		"frames_sent", s.framesSent.Load(),
		"generation", s.generation.Load())
	if err != nil {
		return errors.Wrap(err, "Session", "Close", "close socket")
	}
	return nil
}

// Stats returns a snapshot of the session counters
func (s *Session) Stats() Stats {
	return Stats{
		Generation:       s.generation.Load(),
		FramesSent:       s.framesSent.Load(),
		FramesDropped:    s.framesDropped.Load(),
		BytesSent:        s.bytesSent.Load(),
		ReliableAttempts: s.reliableAttempts.Load(),
		ReliableAcks:     s.reliableAcks.Load(),
		Errors:           s.errorCount.Load(),
	}
}

// Health reports the session as unhealthy once faulted or closed and as
// degraded when the last reliable exchange needed a resend.
func (s *Session) Health() health.Status {
	err := s.Err()
	r := health.Report{
		Healthy:    err == nil,
		Degraded:   s.lastAttempts.Load() > 1,
		Started:    s.started,
		ErrorCount: int(s.errorCount.Load()),
		FramesSent: s.framesSent.Load(),
	}
	if ts := s.lastActivity.Load(); ts != 0 {
		r.LastActivity = time.Unix(0, ts)
	}
	if err != nil {
		r.LastError = err.Error()
	}
	return health.FromReport(s.cfg.Name, r)
}

func (s *Session) readLoop() {
	defer close(s.done)

	buf := make([]byte, readBufferSize)
	for s.running.Load() {
		_ = s.conn.SetReadDeadline(time.Now().Add(readPollInterval))

		if _, err := s.conn.Read(buf); err != nil {
			var ne net.Error
			if stderrors.As(err, &ne) && ne.Timeout() {
				continue
			}
			if !s.running.Load() {
				return
			}
			s.fail(errors.WrapFatal(err, "Session", "readLoop", "read datagram"))
			return
		}

		s.touch()
		s.resolveNewest()
	}
}

func (s *Session) write(p []byte, method string) (int, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.Err(); err != nil {
		return 0, err
	}
	return s.writeLocked(p, method)
}

func (s *Session) writeLocked(p []byte, method string) (int, error) {
	n, err := s.conn.Write(p)
	if err != nil {
		if !s.running.Load() {
			return n, ErrSessionClosed
		}
		s.errorCount.Add(1)
		var ne net.Error
		if stderrors.As(err, &ne) && ne.Timeout() {
			return n, errors.WrapTransient(err, "Session", method, "write packet")
		}
		return n, s.fail(errors.WrapFatal(err, "Session", method, "write packet"))
	}
	s.bytesSent.Add(uint64(n))
	s.touch()
	return n, nil
}

// fail captures the first fatal error and fails every pending waiter with it.
// It returns the captured fault.
func (s *Session) fail(cause error) error {
	s.mu.Lock()
	first := s.fault == nil
	if first {
		s.fault = fmt.Errorf("%w: %w", ErrSessionFaulted, cause)
	}
	fault := s.fault
	waiters := s.waiters
	s.waiters = nil
	s.mu.Unlock()

	if first {
		s.errorCount.Add(1)
		s.metrics.setFaulted(s.cfg.Name, true)
		s.logger.Error("Device session faulted", "error", cause)
	}
	for _, w := range waiters {
		w <- fault
	}
	return fault
}

func (s *Session) addWaiter() (chan error, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.errLocked(); err != nil {
		return nil, err
	}
	w := make(chan error, 1)
	s.waiters = append(s.waiters, w)
	return w, nil
}

func (s *Session) dropWaiter(w chan error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.waiters = slices.DeleteFunc(s.waiters, func(x chan error) bool { return x == w })
}

// resolveNewest completes the most recently registered waiter. Datagrams that
// arrive with nobody waiting are dropped.
func (s *Session) resolveNewest() {
	s.mu.Lock()
	n := len(s.waiters)
	if n == 0 {
		s.mu.Unlock()
		return
	}
	w := s.waiters[n-1]
	s.waiters = s.waiters[:n-1]
	s.mu.Unlock()

	w <- nil
}

func (s *Session) touch() {
	s.lastActivity.Store(time.Now().UnixNano())
}

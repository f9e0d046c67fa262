package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/reosfire/xywire-sub000/frame"
)

// RecordingSink stores every frame it is sent
type RecordingSink struct {
	mu     sync.Mutex
	frames []frame.Buffer
	err    error
	calls  int
}

// NewRecordingSink creates an empty sink
func NewRecordingSink() *RecordingSink {
	return &RecordingSink{}
}

// SendFrame records a copy of buf, or returns the configured error.
func (s *RecordingSink) SendFrame(buf frame.Buffer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return s.err
	}
	s.frames = append(s.frames, buf.Clone())
	return nil
}

// FailWith makes every following SendFrame return err. nil restores success.
func (s *RecordingSink) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// Frames returns the recorded frames
func (s *RecordingSink) Frames() []frame.Buffer {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]frame.Buffer, len(s.frames))
	copy(out, s.frames)
	return out
}

// Calls counts SendFrame invocations including failed ones
func (s *RecordingSink) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// Last returns the most recent frame
func (s *RecordingSink) Last() (frame.Buffer, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.frames) == 0 {
		return frame.Buffer{}, false
	}
	return s.frames[len(s.frames)-1], true
}

// WaitForFrames blocks until at least n frames were recorded.
func (s *RecordingSink) WaitForFrames(t testing.TB, n int, timeout time.Duration) []frame.Buffer {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for {
		frames := s.Frames()
		if len(frames) >= n {
			return frames
		}
		if time.Now().After(deadline) {
			t.Fatalf("timeout waiting for %d frames (got %d)", n, len(frames))
			return nil
		}
		time.Sleep(5 * time.Millisecond)
	}
}

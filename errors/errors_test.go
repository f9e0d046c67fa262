package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorClass_String(t *testing.T) {
	assert.Equal(t, "transient", ErrorTransient.String())
	assert.Equal(t, "invalid", ErrorInvalid.String())
	assert.Equal(t, "fatal", ErrorFatal.String())
	assert.Equal(t, "unknown", ErrorClass(42).String())
}

func TestWrap(t *testing.T) {
	assert.Nil(t, Wrap(nil, "Session", "Clear", "send packet"))

	base := errors.New("boom")
	err := Wrap(base, "Session", "Clear", "send packet")
	assert.Equal(t, "Session.Clear: send packet failed: boom", err.Error())
	assert.ErrorIs(t, err, base)
}

func TestClassifiedWrappers(t *testing.T) {
	base := errors.New("socket closed")

	tests := []struct {
		name  string
		err   error
		class ErrorClass
	}{
		{"transient", WrapTransient(base, "Session", "SendFrame", "write"), ErrorTransient},
		{"invalid", WrapInvalid(base, "Loader", "Load", "parse"), ErrorInvalid},
		{"fatal", WrapFatal(base, "Session", "readLoop", "read"), ErrorFatal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ce *ClassifiedError
			require.True(t, errors.As(tt.err, &ce))
			assert.Equal(t, tt.class, ce.Class)
			assert.Equal(t, tt.class, Classify(tt.err))
			assert.ErrorIs(t, tt.err, base)
			assert.Contains(t, tt.err.Error(), "failed: socket closed")
		})
	}

	assert.Nil(t, WrapTransient(nil, "a", "b", "c"))
	assert.Nil(t, WrapFatal(nil, "a", "b", "c"))
	assert.Nil(t, WrapInvalid(nil, "a", "b", "c"))
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil", nil, false},
		{"connection timeout", ErrConnectionTimeout, true},
		{"device unreachable", fmt.Errorf("dial: %w", ErrDeviceUnreachable), true},
		{"deadline", context.DeadlineExceeded, true},
		{"timeout text", errors.New("read udp 127.0.0.1:7777: i/o timeout"), true},
		{"refused text", errors.New("write udp: connection refused"), true},
		{"other text", errors.New("resource temporarily unavailable"), false},
		{"invalid data", ErrInvalidData, false},
		{"classified fatal", &ClassifiedError{Class: ErrorFatal, Err: ErrConnectionTimeout}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsTransient(tt.err))
		})
	}
}

func TestIsFatalAndInvalid(t *testing.T) {
	assert.True(t, IsFatal(ErrInvalidConfig))
	assert.True(t, IsFatal(fmt.Errorf("load: %w", ErrMissingConfig)))
	assert.False(t, IsFatal(ErrConnectionLost))
	assert.False(t, IsFatal(nil))

	assert.True(t, IsInvalid(ErrParsingFailed))
	assert.False(t, IsInvalid(ErrConnectionLost))
	assert.False(t, IsInvalid(nil))

	assert.Equal(t, ErrorFatal, Classify(ErrInvalidConfig))
	assert.Equal(t, ErrorInvalid, Classify(ErrInvalidData))
	assert.Equal(t, ErrorTransient, Classify(errors.New("something odd")))
}

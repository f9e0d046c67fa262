// Package retry runs an operation again, with exponential backoff, while it
// keeps failing with errors worth retrying. Device sessions use it to open
// their sockets and the KV graph store for compare-and-set writes.
//
//	conn, err := retry.DoWithResult(ctx, retry.Quick(), func() (*net.UDPConn, error) {
//		return net.DialUDP("udp", nil, raddr)
//	})
//
// An error wrapped with NonRetryable, or rejected by Config.Retryable, ends
// the loop at once.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"
)

// NonRetryableError marks an error that retrying cannot fix
type NonRetryableError struct {
	Err error
}

func (e *NonRetryableError) Error() string { return "non-retryable: " + e.Err.Error() }

func (e *NonRetryableError) Unwrap() error { return e.Err }

// NonRetryable wraps err so Do returns it without another attempt
func NonRetryable(err error) error {
	if err == nil {
		return nil
	}
	return &NonRetryableError{Err: err}
}

// IsNonRetryable reports whether err carries a NonRetryableError
func IsNonRetryable(err error) bool {
	var nre *NonRetryableError
	return errors.As(err, &nre)
}

// Config controls the attempt count and the backoff between attempts.
// Zero delays and multiplier fall back to 100ms, 5s and 2.
type Config struct {
	MaxAttempts  int // 0 runs fn once
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	AddJitter    bool // up to +25%

	Retryable func(error) bool
	OnRetry   func(attempt int, err error, delay time.Duration)
}

// Quick suits short control exchanges and startup probes
func Quick() Config {
	return Config{
		MaxAttempts:  10,
		InitialDelay: 50 * time.Millisecond,
		MaxDelay:     time.Second,
		Multiplier:   1.5,
		AddJitter:    true,
	}
}

func (c Config) withDefaults() (Config, error) {
	if c.InitialDelay < 0 || c.MaxDelay < 0 || c.Multiplier < 0 {
		return c, errors.New("retry: delays and multiplier cannot be negative")
	}
	c.MaxAttempts = max(c.MaxAttempts, 1)
	if c.InitialDelay == 0 {
		c.InitialDelay = 100 * time.Millisecond
	}
	if c.MaxDelay == 0 {
		c.MaxDelay = 5 * time.Second
	}
	if c.Multiplier == 0 {
		c.Multiplier = 2
	}
	c.Multiplier = min(c.Multiplier, 1000)
	if c.MaxDelay < c.InitialDelay {
		return c, errors.New("retry: MaxDelay must be >= InitialDelay")
	}
	return c, nil
}

// givesUp reports whether err ends the loop regardless of attempts left
func (c Config) givesUp(err error) bool {
	return IsNonRetryable(err) || (c.Retryable != nil && !c.Retryable(err))
}

type backoff struct {
	cfg   Config
	delay time.Duration
}

// wait sleeps for the current delay and grows it. It returns ctx.Err() if
// ctx ends first.
func (b *backoff) wait(ctx context.Context, attempt int, lastErr error) error {
	sleep := b.delay
	if b.cfg.AddJitter && sleep >= 4 {
		sleep += rand.N(sleep / 4)
	}
	if b.cfg.OnRetry != nil {
		b.cfg.OnRetry(attempt, lastErr, sleep)
	}

	timer := time.NewTimer(sleep)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
	}

	b.delay = min(time.Duration(float64(b.delay)*b.cfg.Multiplier), b.cfg.MaxDelay)
	return nil
}

// Do calls fn until it succeeds, gives up or runs out of attempts
func Do(ctx context.Context, cfg Config, fn func() error) error {
	cfg, err := cfg.withDefaults()
	if err != nil {
		return err
	}
	b := backoff{cfg: cfg, delay: cfg.InitialDelay}

	var lastErr error
	for attempt := 1; ; attempt++ {
		if lastErr = fn(); lastErr == nil {
			return nil
		}
		if cfg.givesUp(lastErr) {
			return lastErr
		}
		if attempt == cfg.MaxAttempts {
			return fmt.Errorf("retry failed after %d attempts: %w", cfg.MaxAttempts, lastErr)
		}
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("retry cancelled before attempt %d: %w", attempt+1, err)
		}
		if err := b.wait(ctx, attempt, lastErr); err != nil {
			return fmt.Errorf("retry cancelled during backoff for attempt %d: %w", attempt+1, err)
		}
	}
}

// DoWithResult is Do for functions that also return a value
func DoWithResult[T any](ctx context.Context, cfg Config, fn func() (T, error)) (T, error) {
	var result T
	err := Do(ctx, cfg, func() error {
		var err error
		result, err = fn()
		return err
	})
	return result, err
}

package natsclient

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/reosfire/xywire-sub000/metric"
)

// ClientOption configures a Client. Options that reject their argument make
// NewClient fail.
type ClientOption func(*Client) error

// Auth holds connection credentials. Either a user/password pair or a token.
type Auth struct {
	Username string
	Password string
	Token    string
}

func (a Auth) validate() error {
	if a.Password != "" && a.Username == "" {
		return fmt.Errorf("password given without username")
	}
	if a.Token != "" && a.Username != "" {
		return fmt.Errorf("use either a token or a username, not both")
	}
	return nil
}

// WithReconnect sets how often and how fast a dropped connection is
// re-established. max -1 retries forever.
func WithReconnect(max int, wait time.Duration) ClientOption {
	return func(c *Client) error {
		if wait < 0 {
			return fmt.Errorf("reconnect wait must not be negative, got %v", wait)
		}
		c.maxReconnects = max
		c.reconnectWait = wait
		return nil
	}
}

// WithTimeout sets the dial timeout
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) error {
		if d <= 0 {
			return fmt.Errorf("timeout must be positive, got %v", d)
		}
		c.timeout = d
		return nil
	}
}

// WithDrainTimeout bounds how long Close waits for in-flight messages
func WithDrainTimeout(d time.Duration) ClientOption {
	return func(c *Client) error {
		if d <= 0 {
			return fmt.Errorf("drain timeout must be positive, got %v", d)
		}
		c.drainTimeout = d
		return nil
	}
}

// WithName sets the client name shown in server monitoring
func WithName(name string) ClientOption {
	return func(c *Client) error {
		c.clientName = name
		return nil
	}
}

// WithAuth sets the connection credentials
func WithAuth(auth Auth) ClientOption {
	return func(c *Client) error {
		if err := auth.validate(); err != nil {
			return err
		}
		c.auth = auth
		return nil
	}
}

func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) error {
		if logger != nil {
			c.logger = logger.With("component", "natsclient")
		}
		return nil
	}
}

// WithCoreMetrics mirrors connection state and reconnects into m
func WithCoreMetrics(m *metric.Metrics) ClientOption {
	return func(c *Client) error {
		c.metrics = m
		return nil
	}
}

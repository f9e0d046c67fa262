package config

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/reosfire/xywire-sub000/errors"
	"github.com/reosfire/xywire-sub000/graphstore"
	"github.com/reosfire/xywire-sub000/ledline"
	"github.com/reosfire/xywire-sub000/scheduler"
)

// Store modes
const (
	StoreModeFile = "file" // graphs on local disk
	StoreModeKV   = "kv"   // graphs in a NATS KV bucket, hot reload
)

// Config is the controller configuration
type Config struct {
	// Graph is the name of the graph to deploy
	Graph     string          `json:"graph" validate:"required,graphname"`
	Devices   []DeviceConfig  `json:"devices" validate:"unique=Name,dive"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Store     StoreConfig     `json:"store"`
	NATS      NATSConfig      `json:"nats"`
	Metrics   MetricsConfig   `json:"metrics"`
}

// DeviceConfig describes one LED matrix on the network
type DeviceConfig struct {
	Name       string `json:"name" validate:"required"`
	Address    string `json:"address" validate:"required,hostname_port"`
	Rows       int    `json:"rows" validate:"gte=1"`
	Columns    int    `json:"columns" validate:"gte=1"`
	DeadLeds   int    `json:"dead_leds" validate:"gte=0"`
	Brightness *int   `json:"brightness,omitempty" validate:"omitempty,gte=0,lte=255"`
	// MaxFPS caps frames sent to the device, 0 = unlimited
	MaxFPS     int           `json:"max_fps" validate:"gte=0"`
	AckTimeout time.Duration `json:"ack_timeout" validate:"gte=0"`
}

// Session converts the device entry into a ledline session config
func (d DeviceConfig) Session() ledline.Config {
	return ledline.Config{
		Name:    d.Name,
		Address: d.Address,
		Layout: ledline.Layout{
			Rows:     d.Rows,
			Columns:  d.Columns,
			DeadLeds: d.DeadLeds,
		},
		AckTimeout: d.AckTimeout,
		MaxFPS:     d.MaxFPS,
	}
}

// SchedulerConfig tunes frame timing
type SchedulerConfig struct {
	SpinThreshold time.Duration `json:"spin_threshold" validate:"gte=0"`
}

// StoreConfig selects where graphs are loaded from
type StoreConfig struct {
	Mode     string `json:"mode" validate:"required,oneof=file kv"`
	Path     string `json:"path,omitempty"`
	Format   string `json:"format,omitempty" validate:"omitempty,oneof=json yaml"`
	Bucket   string `json:"bucket,omitempty"`
	Compress bool   `json:"compress,omitempty"`
}

// NATSConfig configures the NATS connection used by the kv store and for
// deploy reports
type NATSConfig struct {
	URLs          []string      `json:"urls" validate:"dive,url"`
	MaxReconnects int           `json:"max_reconnects"`
	ReconnectWait time.Duration `json:"reconnect_wait" validate:"gte=0"`
	Name          string        `json:"name,omitempty"`
	Username      string        `json:"username,omitempty"`
	Password      string        `json:"password,omitempty"`
	Token         string        `json:"token,omitempty"`
}

// Enabled reports whether any NATS server is configured
func (n NATSConfig) Enabled() bool {
	return len(n.URLs) > 0
}

// MetricsConfig configures the Prometheus endpoint
type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Port    int    `json:"port" validate:"omitempty,min=1,max=65535"`
	Path    string `json:"path,omitempty"`
}

var validate = func() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("graphname", func(fl validator.FieldLevel) bool {
		return graphstore.ValidateName(fl.Field().String()) == nil
	})
	return v
}()

// Default returns the built-in configuration every layer is merged over
func Default() *Config {
	return &Config{
		Scheduler: SchedulerConfig{
			SpinThreshold: scheduler.DefaultSpinThreshold,
		},
		Store: StoreConfig{
			Mode:   StoreModeFile,
			Path:   "graphs",
			Format: "json",
			Bucket: graphstore.DefaultBucket,
		},
		NATS: NATSConfig{
			MaxReconnects: -1,
			ReconnectWait: 2 * time.Second,
			Name:          "xywire",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Port:    9090,
			Path:    "/metrics",
		},
	}
}

// applyDefaults fills per-device settings that a layer cannot express by
// omission, since a device list replaces the previous one wholesale
func (c *Config) applyDefaults() {
	for i := range c.Devices {
		if c.Devices[i].AckTimeout == 0 {
			c.Devices[i].AckTimeout = ledline.DefaultAckTimeout
		}
	}
}

// Validate checks struct tags and the rules that span fields
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return errors.WrapInvalid(err, "Config", "Validate", "check fields")
	}

	switch c.Store.Mode {
	case StoreModeFile:
		if c.Store.Path == "" {
			return errors.WrapInvalid(errors.ErrMissingConfig, "Config", "Validate", "store.path is required in file mode")
		}
	case StoreModeKV:
		if !c.NATS.Enabled() {
			return errors.WrapInvalid(errors.ErrMissingConfig, "Config", "Validate", "nats.urls is required in kv mode")
		}
	}

	if c.Metrics.Enabled && c.Metrics.Port == 0 {
		return errors.WrapInvalid(errors.ErrMissingConfig, "Config", "Validate", "metrics.port is required when metrics are enabled")
	}
	return nil
}

// SaveToFile writes the configuration as JSON or YAML, by extension
func (c *Config) SaveToFile(path string) error {
	data, err := marshal(c, path)
	if err != nil {
		return errors.WrapInvalid(err, "Config", "SaveToFile", "encode config")
	}
	if err := safeWriteFile(path, data); err != nil {
		return errors.WrapTransient(err, "Config", "SaveToFile", "write "+path)
	}
	return nil
}

// String returns the configuration as JSON with credentials masked
func (c *Config) String() string {
	redacted := *c
	redacted.NATS.Password = mask(c.NATS.Password)
	redacted.NATS.Token = mask(c.NATS.Token)
	data, err := json.MarshalIndent(redacted, "", "  ")
	if err != nil {
		return fmt.Sprintf("config: %v", err)
	}
	return string(data)
}

func mask(secret string) string {
	if secret == "" {
		return ""
	}
	return "***"
}

// Package main implements the xywire controller. It loads a stored effect
// graph, compiles it against the built-in effect catalog and drives the
// configured LED matrices until it receives SIGINT or SIGTERM.
package main

import (
	"context"
	stderrors "errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/reosfire/xywire-sub000/catalog"
	"github.com/reosfire/xywire-sub000/config"
	"github.com/reosfire/xywire-sub000/effects"
	"github.com/reosfire/xywire-sub000/engine"
	"github.com/reosfire/xywire-sub000/graph"
	"github.com/reosfire/xywire-sub000/graphstore"
	"github.com/reosfire/xywire-sub000/health"
	"github.com/reosfire/xywire-sub000/ledline"
	"github.com/reosfire/xywire-sub000/metric"
	"github.com/reosfire/xywire-sub000/natsclient"
	"github.com/reosfire/xywire-sub000/scheduler"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "xywire"
)

// errInvalidGraph makes --validate exit non-zero without a second log line
var errInvalidGraph = stderrors.New("graph has compile issues")

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdout)
	stop()

	switch {
	case err == nil:
	case stderrors.Is(err, flag.ErrHelp):
	case stderrors.Is(err, errInvalidGraph):
		os.Exit(1)
	default:
		slog.Error("Application failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	cli, err := parseFlags(args)
	if err != nil {
		return err
	}
	if cli.ShowVersion {
		_, _ = fmt.Fprintf(stdout, "%s version %s\n", appName, Version)
		return nil
	}
	if err := validateFlags(cli); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}

	logger := setupLogger(stdout, cli.LogLevel, cli.LogFormat)
	slog.SetDefault(logger)

	cfg, err := loadConfig(cli)
	if err != nil {
		return err
	}
	logger.Info("Starting xywire",
		"build_time", BuildTime,
		"config_path", cli.ConfigPath,
		"graph", cfg.Graph,
		"devices", len(cfg.Devices),
		"store", cfg.Store.Mode)

	var registry *metric.MetricsRegistry
	if cfg.Metrics.Enabled && !cli.Validate {
		registry = metric.NewMetricsRegistry()
	}

	var client *natsclient.Client
	if cfg.NATS.Enabled() {
		client, err = connectNATS(ctx, cfg.NATS, cli.ShutdownTimeout, registry, logger)
		if err != nil {
			return err
		}
		defer func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), cli.ShutdownTimeout)
			defer cancel()
			if err := client.Close(closeCtx); err != nil {
				logger.Warn("Closing NATS connection failed", "error", err)
			}
		}()
	}

	store, err := openStore(ctx, cfg.Store, client, logger)
	if err != nil {
		return err
	}

	effectCatalog, err := effects.NewCatalog(logger)
	if err != nil {
		return fmt.Errorf("register effects: %w", err)
	}

	if cli.Validate {
		return validateGraph(ctx, stdout, effectCatalog, store, cfg.Graph, logger)
	}

	devices, err := dialDevices(ctx, cfg.Devices, registry, logger)
	if devices != nil {
		defer func() {
			if err := devices.CloseAll(); err != nil {
				logger.Warn("Closing device sessions failed", "error", err)
			}
		}()
	}
	if err != nil {
		return err
	}

	monitor := health.NewMonitor()
	monitor.Register("devices", func() health.Status {
		return health.Aggregate("devices", devices.Health())
	})
	if client != nil {
		monitor.Register("nats", client.Health)
	}

	eng, err := engine.New(engine.Deps{
		Catalog: effectCatalog,
		Devices: devices,
		Scheduler: scheduler.New(
			scheduler.WithLogger(logger.With("component", "scheduler")),
			scheduler.WithMetrics(registry),
			scheduler.WithSpinThreshold(cfg.Scheduler.SpinThreshold),
		),
		Logger:    logger,
		Registry:  registry,
		Publisher: publisher(client),
		Monitor:   monitor,
	})
	if err != nil {
		return fmt.Errorf("create engine: %w", err)
	}
	defer eng.Teardown()

	if _, err := eng.DeployFromStore(ctx, store, cfg.Graph); err != nil {
		return fmt.Errorf("deploy graph: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	if registry != nil {
		server := metric.NewServer(cfg.Metrics.Port, cfg.Metrics.Path, registry, func() health.Status {
			return monitor.AggregateHealth(appName)
		})
		g.Go(server.Start)
		g.Go(func() error {
			<-gctx.Done()
			stopCtx, cancel := context.WithTimeout(context.Background(), cli.ShutdownTimeout)
			defer cancel()
			return server.Stop(stopCtx)
		})
		logger.Info("Metrics server listening", "address", server.Address())
	}

	g.Go(func() error {
		return eng.Watch(gctx, store, cfg.Graph)
	})

	logger.Info("xywire running")
	<-gctx.Done()
	logger.Info("Shutting down")

	if err := g.Wait(); err != nil && !stderrors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("xywire shutdown complete")
	return nil
}

func loadConfig(cli *CLIConfig) (*config.Config, error) {
	loader := config.NewLoader()
	cfg, err := loader.LoadFile(cli.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if cli.Graph != "" {
		cfg.Graph = cli.Graph
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func connectNATS(
	ctx context.Context,
	cfg config.NATSConfig,
	drain time.Duration,
	registry *metric.MetricsRegistry,
	logger *slog.Logger,
) (*natsclient.Client, error) {
	opts := []natsclient.ClientOption{
		natsclient.WithReconnect(cfg.MaxReconnects, cfg.ReconnectWait),
		natsclient.WithDrainTimeout(drain),
		natsclient.WithName(cfg.Name),
		natsclient.WithAuth(natsclient.Auth{Username: cfg.Username, Password: cfg.Password, Token: cfg.Token}),
		natsclient.WithLogger(logger),
	}
	if registry != nil {
		opts = append(opts, natsclient.WithCoreMetrics(registry.CoreMetrics()))
	}

	client, err := natsclient.NewClient(strings.Join(cfg.URLs, ","), opts...)
	if err != nil {
		return nil, fmt.Errorf("create NATS client: %w", err)
	}

	logger.Info("Connecting to NATS", "urls", cfg.URLs)
	if err := client.Connect(ctx); err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	connCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.WaitForConnection(connCtx); err != nil {
		_ = client.Close(context.Background())
		return nil, fmt.Errorf("NATS connection timeout: %w", err)
	}
	return client, nil
}

func openStore(
	ctx context.Context,
	cfg config.StoreConfig,
	client *natsclient.Client,
	logger *slog.Logger,
) (graphstore.Store, error) {
	switch cfg.Mode {
	case config.StoreModeKV:
		store, err := graphstore.NewKVStore(ctx, client, graphstore.KVOptions{
			Bucket:   cfg.Bucket,
			Compress: cfg.Compress,
			Logger:   logger,
		})
		if err != nil {
			return nil, fmt.Errorf("open kv graph store: %w", err)
		}
		return store, nil
	default:
		store, err := graphstore.NewFileStore(cfg.Path, graph.Format(cfg.Format), logger)
		if err != nil {
			return nil, fmt.Errorf("open file graph store: %w", err)
		}
		return store, nil
	}
}

// dialDevices opens a session per device, sets its brightness and blanks it.
// The directory is returned even on error so the caller can close what was
// opened.
func dialDevices(
	ctx context.Context,
	devices []config.DeviceConfig,
	registry *metric.MetricsRegistry,
	logger *slog.Logger,
) (*ledline.Directory, error) {
	metrics, err := ledline.NewMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("register device metrics: %w", err)
	}

	dir := ledline.NewDirectory()
	for _, dev := range devices {
		session, err := ledline.Dial(ctx, dev.Session(),
			ledline.WithLogger(logger),
			ledline.WithMetrics(metrics))
		if err != nil {
			return dir, fmt.Errorf("dial device %s: %w", dev.Name, err)
		}
		if err := dir.Add(session); err != nil {
			_ = session.Close()
			return dir, fmt.Errorf("register device %s: %w", dev.Name, err)
		}

		if dev.Brightness != nil {
			if err := session.SetBrightness(ctx, uint8(*dev.Brightness)); err != nil {
				return dir, fmt.Errorf("set brightness on %s: %w", dev.Name, err)
			}
		}
		if err := session.Clear(ctx); err != nil {
			return dir, fmt.Errorf("clear device %s: %w", dev.Name, err)
		}
	}
	return dir, nil
}

// validateGraph compiles the graph without devices and prints every issue
func validateGraph(
	ctx context.Context,
	out io.Writer,
	cat *catalog.Catalog,
	store graphstore.Store,
	name string,
	logger *slog.Logger,
) error {
	doc, err := store.Load(ctx, name)
	if err != nil {
		return fmt.Errorf("load graph %s: %w", name, err)
	}

	eng, err := engine.New(engine.Deps{Catalog: cat, Logger: logger})
	if err != nil {
		return fmt.Errorf("create engine: %w", err)
	}

	res := eng.Validate(doc.Graph)
	if res.Success() {
		_, _ = fmt.Fprintf(out, "graph %s (version %d) is valid: %d nodes\n", name, doc.Version, len(res.Instances))
		return nil
	}
	_, _ = fmt.Fprintf(out, "graph %s (version %d) has %d issues:\n", name, doc.Version, len(res.Issues))
	for _, issue := range res.Issues {
		_, _ = fmt.Fprintf(out, "  [%s] %s\n", issue.Kind, issue.Error())
	}
	return errInvalidGraph
}

// publisher avoids handing the engine a typed nil client
func publisher(client *natsclient.Client) engine.Publisher {
	if client == nil {
		return nil
	}
	return client
}

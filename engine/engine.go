package engine

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/reosfire/xywire-sub000/compiler"
	"github.com/reosfire/xywire-sub000/errors"
	"github.com/reosfire/xywire-sub000/graph"
	"github.com/reosfire/xywire-sub000/graphstore"
	"github.com/reosfire/xywire-sub000/health"
	"github.com/reosfire/xywire-sub000/metric"
	"github.com/reosfire/xywire-sub000/node"
	"github.com/reosfire/xywire-sub000/scheduler"
)

// DeployedSubject is where deploy reports are published
const DeployedSubject = "xywire.graph.deployed"

// Publisher sends deploy reports; *natsclient.Client satisfies it
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
}

// HealthReporter is implemented by device directories that track session
// health, such as *ledline.Directory
type HealthReporter interface {
	Health() []health.Status
}

// Deps are the collaborators of an Engine. Only Catalog is required.
type Deps struct {
	Catalog   compiler.Catalog
	Devices   node.DeviceDirectory
	Scheduler *scheduler.Scheduler
	Logger    *slog.Logger
	Registry  *metric.MetricsRegistry
	Publisher Publisher
	Monitor   *health.Monitor
}

// Deployment is the graph currently running
type Deployment struct {
	Name       string
	Result     *compiler.Result
	DeployedAt time.Time
}

// Engine owns the running graph. Deploying a graph tears the previous one
// down first, so at most one graph drives the devices at any time.
type Engine struct {
	deps     Deps
	compiler *compiler.Compiler
	logger   *slog.Logger
	metrics  *engineMetrics

	mu      sync.Mutex
	current *Deployment
}

// New creates an engine
func New(deps Deps) (*Engine, error) {
	if deps.Catalog == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Engine", "New", "check catalog")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Scheduler == nil {
		deps.Scheduler = scheduler.New(scheduler.WithLogger(deps.Logger))
	}
	logger := deps.Logger.With("component", "engine")

	metrics, err := newEngineMetrics(deps.Registry)
	if err != nil {
		return nil, errors.Wrap(err, "Engine", "New", "register metrics")
	}

	e := &Engine{
		deps:     deps,
		compiler: compiler.New(deps.Catalog, compiler.WithLogger(deps.Logger.With("component", "compiler"))),
		logger:   logger,
		metrics:  metrics,
	}
	if deps.Monitor != nil {
		deps.Monitor.Register("engine", e.graphHealth)
	}
	return e, nil
}

// Deploy replaces the running graph with g. Compile issues do not fail the
// deploy: whatever could be built keeps running and the issues are on the
// returned result. The error is reserved for unusable input.
func (e *Engine) Deploy(ctx context.Context, name string, g *graph.Graph) (*compiler.Result, error) {
	if g == nil {
		return nil, errors.WrapInvalid(errors.ErrInvalidData, "Engine", "Deploy", "check graph")
	}

	start := time.Now()

	e.mu.Lock()
	e.teardownLocked()
	ectx := node.NewEffectContext(e.deps.Scheduler, e.deps.Devices, e.deps.Logger.With("graph", name))
	res := e.compiler.Compile(g, ectx)
	e.current = &Deployment{Name: name, Result: res, DeployedAt: start}
	e.mu.Unlock()

	elapsed := time.Since(start)
	e.metrics.recordDeploy(res, elapsed.Seconds())

	if res.Success() {
		e.logger.Info("Graph deployed", "graph", name, "nodes", len(res.Instances), "duration", elapsed)
	} else {
		e.logger.Warn("Graph deployed with issues",
			"graph", name, "nodes", len(res.Instances), "issues", len(res.Issues), "error", res.Err())
	}

	e.publish(ctx, newReport(name, res, start, elapsed))
	return res, nil
}

// DeployFromStore loads name from store and deploys it
func (e *Engine) DeployFromStore(ctx context.Context, store graphstore.Store, name string) (*compiler.Result, error) {
	doc, err := store.Load(ctx, name)
	if err != nil {
		return nil, errors.Wrap(err, "Engine", "DeployFromStore", "load graph "+name)
	}
	e.logger.Debug("Loaded graph", "graph", name, "version", doc.Version, "id", doc.ID)
	return e.Deploy(ctx, name, doc.Graph)
}

// Watch redeploys name on every update until ctx ends. Stores that cannot
// push updates make Watch return immediately.
func (e *Engine) Watch(ctx context.Context, store graphstore.Store, name string) error {
	watcher, ok := store.(graphstore.Watcher)
	if !ok {
		e.logger.Debug("Store does not support watching, hot reload disabled", "graph", name)
		return nil
	}

	updates, err := watcher.Watch(ctx, name)
	if err != nil {
		return errors.Wrap(err, "Engine", "Watch", "watch graph "+name)
	}
	e.logger.Info("Watching graph for changes", "graph", name)

	for g := range updates {
		e.logger.Info("Graph changed, redeploying", "graph", name)
		if _, err := e.Deploy(ctx, name, g); err != nil {
			e.logger.Error("Redeploy failed", "graph", name, "error", err)
		}
	}

	if err := ctx.Err(); err != nil && !stderrors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// Validate compiles g without devices and tears it down again
func (e *Engine) Validate(g *graph.Graph) *compiler.Result {
	res := e.compiler.Compile(g, node.NewEffectContext(scheduler.New(), nil, e.deps.Logger))
	res.Close()
	return res
}

// Teardown stops the running graph. It is idempotent.
func (e *Engine) Teardown() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.teardownLocked()
}

func (e *Engine) teardownLocked() {
	if e.current == nil {
		return
	}
	e.current.Result.Close()
	e.logger.Info("Graph stopped", "graph", e.current.Name)
	e.current = nil
	e.metrics.recordTeardown()
}

// Current returns the running deployment, or nil
func (e *Engine) Current() *Deployment {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current == nil {
		return nil
	}
	d := *e.current
	return &d
}

// Health aggregates the running graph and every device session
func (e *Engine) Health() health.Status {
	subs := []health.Status{e.graphHealth()}
	if reporter, ok := e.deps.Devices.(HealthReporter); ok {
		subs = append(subs, reporter.Health()...)
	}
	return health.Aggregate("xywire", subs)
}

func (e *Engine) graphHealth() health.Status {
	d := e.Current()
	switch {
	case d == nil:
		return health.NewDegraded("engine", "no graph deployed")
	case !d.Result.Success():
		return health.NewDegraded("engine", "graph "+d.Name+" has compile issues")
	default:
		return health.NewHealthy("engine", "graph "+d.Name+" running")
	}
}

// Report is the JSON document published after each deploy
type Report struct {
	Graph      string        `json:"graph"`
	Success    bool          `json:"success"`
	Nodes      int           `json:"nodes"`
	Issues     []ReportIssue `json:"issues,omitempty"`
	DeployedAt time.Time     `json:"deployed_at"`
	DurationMs float64       `json:"duration_ms"`
}

// ReportIssue is one compile issue in a Report
type ReportIssue struct {
	Kind    string `json:"kind"`
	NodeID  int    `json:"node_id"`
	Message string `json:"message"`
}

func newReport(name string, res *compiler.Result, at time.Time, elapsed time.Duration) Report {
	r := Report{
		Graph:      name,
		Success:    res.Success(),
		Nodes:      len(res.Instances),
		DeployedAt: at.UTC(),
		DurationMs: float64(elapsed.Microseconds()) / 1000,
	}
	for _, is := range res.Issues {
		r.Issues = append(r.Issues, ReportIssue{Kind: is.Kind.String(), NodeID: is.NodeID, Message: is.Error()})
	}
	sort.SliceStable(r.Issues, func(i, j int) bool { return r.Issues[i].NodeID < r.Issues[j].NodeID })
	return r
}

func (e *Engine) publish(ctx context.Context, r Report) {
	if e.deps.Publisher == nil {
		return
	}
	data, err := json.Marshal(r)
	if err != nil {
		e.logger.Error("Failed to encode deploy report", "error", err)
		return
	}
	if err := e.deps.Publisher.Publish(ctx, DeployedSubject, data); err != nil {
		e.logger.Warn("Failed to publish deploy report", "graph", r.Graph, "error", err)
	}
}

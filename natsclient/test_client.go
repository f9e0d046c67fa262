package natsclient

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	testImage        = "nats:2.11.7-alpine"
	testConnectLimit = 5 * time.Second
)

// TestClient is a connected Client backed by a NATS container
type TestClient struct {
	Client *Client
	URL    string

	container testcontainers.Container
}

type testServer struct {
	jetstream    bool
	startTimeout time.Duration
}

// TestOption configures the test server
type TestOption func(*testServer)

// WithJetStream starts the server with -js
func WithJetStream() TestOption {
	return func(s *testServer) { s.jetstream = true }
}

// WithKV is WithJetStream; graph buckets live in JetStream
func WithKV() TestOption {
	return WithJetStream()
}

// WithStartTimeout bounds container startup
func WithStartTimeout(d time.Duration) TestOption {
	return func(s *testServer) { s.startTimeout = d }
}

// NewTestClient starts a NATS container and returns a client connected to
// it. The client and container are released through t.Cleanup.
func NewTestClient(t testing.TB, opts ...TestOption) *TestClient {
	t.Helper()

	srv := testServer{startTimeout: 30 * time.Second}
	for _, opt := range opts {
		opt(&srv)
	}

	tc, err := srv.start(context.Background())
	if err != nil {
		t.Fatalf("start NATS test server: %v", err)
	}
	t.Cleanup(tc.Terminate)
	return tc
}

func (s testServer) start(ctx context.Context) (*TestClient, error) {
	cmd := []string{"--port", "4222", "--http_port", "8222"}
	if s.jetstream {
		cmd = append(cmd, "--js")
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        testImage,
			ExposedPorts: []string{"4222/tcp", "8222/tcp"},
			Cmd:          cmd,
			WaitingFor: wait.ForAll(
				wait.ForListeningPort("4222/tcp"),
				wait.ForHTTP("/healthz").WithPort("8222/tcp").WithStartupTimeout(s.startTimeout),
			),
		},
		Started: true,
	})
	if err != nil {
		return nil, fmt.Errorf("nats container: %w", err)
	}

	tc := &TestClient{container: container}
	if err := tc.connect(ctx); err != nil {
		tc.Terminate()
		return nil, err
	}
	return tc, nil
}

func (tc *TestClient) connect(ctx context.Context) error {
	host, err := tc.container.Host(ctx)
	if err != nil {
		return fmt.Errorf("container host: %w", err)
	}
	port, err := tc.container.MappedPort(ctx, "4222")
	if err != nil {
		return fmt.Errorf("mapped port: %w", err)
	}
	tc.URL = fmt.Sprintf("nats://%s:%s", host, port.Port())

	client, err := NewClient(tc.URL, WithTimeout(testConnectLimit), WithReconnect(0, 0), WithName("xywire-test"))
	if err != nil {
		return err
	}

	connectCtx, cancel := context.WithTimeout(ctx, testConnectLimit)
	defer cancel()
	if err := client.Connect(connectCtx); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	tc.Client = client
	return nil
}

// Terminate closes the client and removes the container. It is safe to
// call more than once.
func (tc *TestClient) Terminate() {
	if tc.Client != nil {
		_ = tc.Client.Close(context.Background())
		tc.Client = nil
	}
	if tc.container != nil {
		_ = tc.container.Terminate(context.Background())
		tc.container = nil
	}
}

// CreateKVBucket creates or reuses a bucket with default settings
func (tc *TestClient) CreateKVBucket(ctx context.Context, name string) (jetstream.KeyValue, error) {
	return tc.Client.CreateKeyValueBucket(ctx, jetstream.KeyValueConfig{Bucket: name})
}

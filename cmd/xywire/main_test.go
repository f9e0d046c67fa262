package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reosfire/xywire-sub000/ledline"
	"github.com/reosfire/xywire-sub000/testutil"
)

const rainbowGraph = `{
  "nodes": [
    {"id": 0, "typeId": "RainbowEffect", "embeddedInputValues": {"width": 2, "height": 2, "fps": 50, "speed": 10}},
    {"id": 1, "typeId": "DeviceSinkEffect", "embeddedInputValues": {"device": "matrix"}}
  ],
  "connections": [
    {"fromNodeId": 0, "fromPort": "buffer", "toNodeId": 1, "toPort": "buffer"}
  ]
}`

const brokenGraph = `{
  "nodes": [
    {"id": 0, "typeId": "PlasmaEffect"},
    {"id": 1, "typeId": "DeviceSinkEffect", "embeddedInputValues": {"device": "matrix"}}
  ],
  "connections": [
    {"fromNodeId": 0, "fromPort": "buffer", "toNodeId": 1, "toPort": "buffer"}
  ]
}`

// writeSetup creates a config file and a graph directory holding the given
// graphs, and returns the config path
func writeSetup(t *testing.T, deviceAddr string, graphs map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	graphDir := filepath.Join(dir, "graphs")
	require.NoError(t, os.MkdirAll(graphDir, 0o755))
	for name, body := range graphs {
		require.NoError(t, os.WriteFile(filepath.Join(graphDir, name+".json"), []byte(body), 0o600))
	}

	cfg := fmt.Sprintf(`
graph: rainbow
devices:
  - name: matrix
    address: "%s"
    rows: 2
    columns: 2
    brightness: 64
store:
  mode: file
  path: %s
`, deviceAddr, graphDir)
	path := filepath.Join(dir, "xywire.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o600))
	return path
}

func TestParseFlags(t *testing.T) {
	t.Setenv("XYWIRE_LOG_LEVEL", "warn")

	cli, err := parseFlags([]string{"--config", "site.yaml", "--graph", "plasma", "--validate", "--shutdown-timeout", "3s"})
	require.NoError(t, err)
	assert.Equal(t, "site.yaml", cli.ConfigPath)
	assert.Equal(t, "plasma", cli.Graph)
	assert.True(t, cli.Validate)
	assert.Equal(t, "warn", cli.LogLevel)
	assert.Equal(t, "text", cli.LogFormat)
	assert.Equal(t, 3*time.Second, cli.ShutdownTimeout)

	_, err = parseFlags([]string{"--no-such-flag"})
	assert.Error(t, err)
}

func TestValidateFlags(t *testing.T) {
	path := filepath.Join(t.TempDir(), "xywire.yaml")
	require.NoError(t, os.WriteFile(path, []byte("graph: rainbow\n"), 0o600))

	valid := func() *CLIConfig {
		return &CLIConfig{ConfigPath: path, LogLevel: "info", LogFormat: "json", ShutdownTimeout: time.Second}
	}
	assert.NoError(t, validateFlags(valid()))

	cli := valid()
	cli.ConfigPath = filepath.Join(t.TempDir(), "missing.yaml")
	assert.Error(t, validateFlags(cli))

	cli = valid()
	cli.LogLevel = "verbose"
	assert.Error(t, validateFlags(cli))

	cli = valid()
	cli.LogFormat = "xml"
	assert.Error(t, validateFlags(cli))

	cli = valid()
	cli.ShutdownTimeout = 0
	assert.Error(t, validateFlags(cli))

	assert.NoError(t, validateFlags(&CLIConfig{ShowVersion: true}))
}

func TestSetupLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := setupLogger(&buf, "warn", "json")
	logger.Info("hidden")
	logger.Warn("shown", "device", "matrix")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"msg":"shown"`)
	assert.Contains(t, out, `"service":"xywire"`)
}

func TestRun_Version(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, run(context.Background(), []string{"--version"}, &out))
	assert.Equal(t, "xywire version "+Version+"\n", out.String())
}

func TestRun_ValidateGraph(t *testing.T) {
	path := writeSetup(t, "127.0.0.1:1", map[string]string{"rainbow": rainbowGraph, "broken": brokenGraph})

	var out bytes.Buffer
	err := run(context.Background(), []string{"--config", path, "--validate"}, &out)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "graph rainbow (version 0) is valid: 2 nodes")

	out.Reset()
	err = run(context.Background(), []string{"--config", path, "--validate", "--graph", "broken"}, &out)
	require.ErrorIs(t, err, errInvalidGraph)
	assert.Contains(t, out.String(), "[unknown_node_type]")
}

func TestRun_MissingGraph(t *testing.T) {
	path := writeSetup(t, "127.0.0.1:1", nil)

	err := run(context.Background(), []string{"--config", path, "--validate"}, &bytes.Buffer{})
	assert.Error(t, err)
}

func TestRun_DrivesDeviceUntilCancelled(t *testing.T) {
	dev := testutil.NewFakeDevice(t)
	path := writeSetup(t, dev.Addr(), map[string]string{"rainbow": rainbowGraph})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- run(ctx, []string{"--config", path, "--shutdown-timeout", "2s"}, &bytes.Buffer{})
	}()

	require.Eventually(t, func() bool {
		return len(dev.PacketsWithOpcode(ledline.OpData)) >= 3
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("controller did not shut down")
	}

	assert.Len(t, dev.PacketsWithOpcode(ledline.OpBrightness), 1)
	assert.NotEmpty(t, dev.PacketsWithOpcode(ledline.OpClear))
}

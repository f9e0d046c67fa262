// Package xywire drives networked LED matrices from a graph of composable
// effect nodes.
//
// An effect graph is a set of nodes (constants, math, fan-out, buffer
// sources, device sinks) wired output-to-input through typed ports. The
// compiler instantiates each node from the catalog, binds the connections
// and initializes the nodes; sources then render on their own frame clock
// and push color buffers downstream until a sink hands them to a device.
//
// # Architecture
//
//	┌─────────────────────────────────────┐
//	│   graphstore (file | NATS KV)       │  Named, versioned graph documents
//	└─────────────────────────────────────┘
//	           ↓ load / watch
//	┌─────────────────────────────────────┐
//	│   engine → compiler → catalog       │  Deploy, teardown, hot reload
//	└─────────────────────────────────────┘
//	           ↓ instantiates
//	┌─────────────────────────────────────┐
//	│   effects (node ports + scheduler)  │  Per-source frame tasks
//	└─────────────────────────────────────┘
//	           ↓ frames
//	┌─────────────────────────────────────┐
//	│   ledline sessions (UDP)            │  Best-effort data, acked control
//	└─────────────────────────────────────┘
//
// # Packages
//
//   - frame: colors and row-major color buffers
//   - node: ports, port types, descriptors and the effect context
//   - scheduler: fixed-rate tasks with a sleep-then-spin wait
//   - catalog, effects: node type registry and the built-in effects
//   - graph, compiler: graph documents and graph compilation
//   - ledline: the UDP device protocol and device sessions
//   - graphstore, engine: persistence and the running graph
//   - config, metric, health, natsclient, errors, pkg/retry: ambient services
//
// The cmd/xywire binary ties these together:
//
//	xywire --config=/etc/xywire/living-room.yaml
//	xywire --graph=plasma --validate
package xywire

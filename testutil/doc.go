// Package testutil provides test doubles shared by xywire package tests.
//
// # Core Components
//
// FakeDevice - In-process UDP LED device:
//   - Listens on an ephemeral loopback port
//   - Records every packet it receives
//   - Answers control packets (clear, brightness) with a one-byte reply
//   - Can drop a configurable number of replies to exercise resends
//
// RecordingSink - Frame sink that stores every frame handed to it and can be
// told to fail, for sink nodes that should never crash on device errors.
//
// MockPublisher - Records publishes in order and can be told to fail, for the
// engine's deploy reports.
//
// # Thread Safety
//
// All types are safe for concurrent use. Accessors return copies so tests can
// inspect recorded data while traffic is still flowing.
package testutil

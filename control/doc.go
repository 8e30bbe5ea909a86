// Package control
// Author: momentics <momentics@gmail.com>
//
// Runtime configuration, metrics and debug introspection for the TCP engine.
//
// Provides concurrent-safe state handling primitives including:
//   - Snapshot config reads, merges and synchronous reload listeners
//   - Prometheus-backed counters and gauges with a flat snapshot view
//   - Named debug probes, including Linux platform probes
package control

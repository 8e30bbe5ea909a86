// File: internal/concurrency/doc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Concurrency primitives for hioload-net: the hierarchical timer wheel that
// backs loop timers, and CPU pinning for loop threads.
package concurrency

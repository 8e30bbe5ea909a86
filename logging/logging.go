// File: logging/logging.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Process-wide structured logger shared by loops, connections and facades.

package logging

import (
	"sync/atomic"

	"go.uber.org/zap"
)

var global atomic.Pointer[zap.Logger]

func init() {
	l, err := zap.NewProduction()
	if err != nil {
		l = zap.NewNop()
	}
	global.Store(l)
}

// L returns the current process-wide logger.
func L() *zap.Logger {
	return global.Load()
}

// SetLogger replaces the process-wide logger. A nil logger installs a no-op one.
func SetLogger(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	global.Store(l)
}

// Named returns a child of the process-wide logger for one subsystem.
func Named(name string) *zap.Logger {
	return L().Named(name)
}

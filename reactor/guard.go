// File: reactor/guard.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package reactor

import "sync/atomic"

// Guard is a liveness flag tied to a channel so events stop reaching an
// owner that has been torn down while a dispatch was still pending.
type Guard struct {
	alive atomic.Bool
}

// NewGuard returns a live guard.
func NewGuard() *Guard {
	g := &Guard{}
	g.alive.Store(true)
	return g
}

// Alive reports whether the owner is still live.
func (g *Guard) Alive() bool { return g.alive.Load() }

// Release marks the owner dead. It is idempotent.
func (g *Guard) Release() { g.alive.Store(false) }

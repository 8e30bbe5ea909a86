// File: reactor/callbacks.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package reactor

import (
	"time"

	"github.com/momentics/hioload-net/core/buffer"
	"github.com/momentics/hioload-net/transport/tcp"
)

// ConnectionCallback is invoked once a connection is established.
type ConnectionCallback func(c *Connection)

// CloseCallback is invoked once a connection reached Disconnected.
type CloseCallback func(c *Connection)

// MessageCallback receives the input buffer after each successful read. The
// callee consumes what it handles; unconsumed bytes stay for the next read.
type MessageCallback func(c *Connection, in *buffer.Buffer, receiveTime time.Time)

// WriteCompleteCallback is invoked when the output buffer drained.
type WriteCompleteCallback func(c *Connection)

// HighWaterMarkCallback is invoked when queued output rises above the mark.
type HighWaterMarkCallback func(c *Connection, queued int)

// NewConnectionCallback receives an accepted descriptor and its peer.
type NewConnectionCallback func(fd int, peer tcp.Address)

// DefaultMessageCallback discards everything that was read.
func DefaultMessageCallback(_ *Connection, in *buffer.Buffer, _ time.Time) {
	in.RetrieveAll()
}

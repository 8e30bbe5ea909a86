// File: server/types.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/momentics/hioload-net/adapters"
	"github.com/momentics/hioload-net/reactor"
	"github.com/momentics/hioload-net/transport/tcp"
)

// Config holds all server-side configuration parameters.
type Config struct {
	Name          string // connection name prefix; generated when empty
	ReusePort     bool   // SO_REUSEPORT on the listening socket
	ThreadNum     int    // I/O loops besides the base loop (0 = base loop only)
	HighWaterMark int    // queued-output threshold per connection
	TCPNoDelay    bool   // disable Nagle on accepted connections
	CPUAffinity   bool   // pin I/O loop i to CPU i
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		ThreadNum:     0,
		HighWaterMark: reactor.DefaultHighWaterMark,
	}
}

// serverMetrics are the Prometheus series one server maintains.
type serverMetrics struct {
	accepted     prometheus.Counter
	active       prometheus.Gauge
	bytesRead    prometheus.Counter
	bytesWritten prometheus.Counter
}

// Server accepts on a base loop and spreads connections over an I/O loop
// pool. The connection map is only touched on the base loop.
type Server struct {
	cfg      *Config
	loop     *reactor.EventLoop
	acceptor *reactor.Acceptor
	pool     *reactor.EventLoopThreadPool
	addr     tcp.Address
	name     string
	ipPort   string
	logger   *zap.Logger
	control  *adapters.ControlAdapter
	metrics  serverMetrics
	loopOpts []reactor.LoopOption

	started     atomic.Bool
	stopped     atomic.Bool
	nextConnID  int
	connections map[string]*reactor.Connection
	active      atomic.Int64

	highWaterMark atomic.Int64
	tcpNoDelay    atomic.Bool

	connectionCb    reactor.ConnectionCallback
	messageCb       reactor.MessageCallback
	writeCompleteCb reactor.WriteCompleteCallback
	closeCb         reactor.CloseCallback
	highWaterMarkCb reactor.HighWaterMarkCallback
	threadInitCb    reactor.ThreadInitCallback
}

// File: server/server.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Server is the TCP server facade: an Acceptor on the base loop plus a pool
// of I/O loops that own the accepted connections.

package server

import (
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-net/adapters"
	"github.com/momentics/hioload-net/api"
	"github.com/momentics/hioload-net/logging"
	"github.com/momentics/hioload-net/reactor"
	"github.com/momentics/hioload-net/transport/tcp"
)

var _ api.Stopper = (*Server)(nil)

// NewServer binds addr on loop. Nothing is accepted before Start.
func NewServer(loop *reactor.EventLoop, addr tcp.Address, opts ...ServerOption) (*Server, error) {
	if loop == nil {
		return nil, fmt.Errorf("%w: nil loop", api.ErrInvalidArgument)
	}
	s := &Server{
		cfg:         DefaultConfig(),
		loop:        loop,
		logger:      logging.Named("server"),
		control:     adapters.NewControlAdapter(),
		connections: make(map[string]*reactor.Connection),
		messageCb:   reactor.DefaultMessageCallback,
	}
	for _, o := range opts {
		o(s)
	}
	if s.cfg.Name == "" {
		s.cfg.Name = "server-" + uuid.NewString()[:8]
	}
	if s.cfg.ThreadNum < 0 {
		return nil, api.NewError(api.ErrCodeInvalidArgument, "negative thread count").
			WithContext("threads", s.cfg.ThreadNum).
			WithCause(api.ErrInvalidArgument)
	}
	s.name = s.cfg.Name
	s.highWaterMark.Store(int64(s.cfg.HighWaterMark))
	s.tcpNoDelay.Store(s.cfg.TCPNoDelay)

	acceptor, err := reactor.NewAcceptor(loop, addr, s.cfg.ReusePort)
	if err != nil {
		return nil, fmt.Errorf("server %s: %w", s.name, err)
	}
	acceptor.SetNewConnectionCallback(s.newConnection)
	s.acceptor = acceptor
	s.addr = acceptor.Addr()
	s.ipPort = s.addr.IPPort()
	s.logger = s.logger.With(zap.String("server", s.name), zap.String("addr", s.ipPort))

	s.initControl()
	return s, nil
}

func (s *Server) initControl() {
	m := s.control.Metrics()
	s.metrics = serverMetrics{
		accepted:     m.Counter("hioload_server_accepted_total", "Connections accepted."),
		active:       m.Gauge("hioload_server_active_connections", "Connections currently open."),
		bytesRead:    m.Counter("hioload_server_bytes_read_total", "Bytes read by closed connections."),
		bytesWritten: m.Counter("hioload_server_bytes_written_total", "Bytes written by closed connections."),
	}
	_ = s.control.SetConfig(map[string]any{
		api.ConfigHighWaterMark: s.cfg.HighWaterMark,
		api.ConfigTCPNoDelay:    s.cfg.TCPNoDelay,
	})
	s.control.OnReload(s.applyConfig)
	s.control.RegisterDebugProbe("server.name", func() any { return s.name })
	s.control.RegisterDebugProbe("server.addr", func() any { return s.ipPort })
	s.control.RegisterDebugProbe("server.connections", func() any { return s.Connections() })
	s.control.RegisterDebugProbe("server.threads", func() any { return s.cfg.ThreadNum })
}

// applyConfig picks up reloaded values; they apply to connections accepted
// afterwards.
func (s *Server) applyConfig() {
	cfg := s.control.GetConfig()
	if v, ok := cfg[api.ConfigHighWaterMark]; ok {
		switch mark := v.(type) {
		case int:
			s.highWaterMark.Store(int64(mark))
		case int64:
			s.highWaterMark.Store(mark)
		case float64:
			s.highWaterMark.Store(int64(mark))
		default:
			s.logger.Warn("ignoring high water mark", zap.Any("value", v))
		}
	}
	if v, ok := cfg[api.ConfigTCPNoDelay].(bool); ok {
		s.tcpNoDelay.Store(v)
	}
}

// Name returns the connection name prefix.
func (s *Server) Name() string { return s.name }

// IPPort returns the bound address as "ip:port".
func (s *Server) IPPort() string { return s.ipPort }

// Addr returns the bound address.
func (s *Server) Addr() tcp.Address { return s.addr }

// Loop returns the base loop.
func (s *Server) Loop() *reactor.EventLoop { return s.loop }

// Connections returns the number of open connections.
func (s *Server) Connections() int { return int(s.active.Load()) }

// Control exposes config, metrics and probes.
func (s *Server) Control() api.Control { return s.control }

// ControlAdapter exposes the concrete adapter, including Prometheus metrics.
func (s *Server) ControlAdapter() *adapters.ControlAdapter { return s.control }

// SetThreadNum sets the I/O loop count. Must precede Start.
func (s *Server) SetThreadNum(n int) { s.cfg.ThreadNum = n }

// SetThreadInitCallback runs cb on every I/O loop thread before it loops.
func (s *Server) SetThreadInitCallback(cb reactor.ThreadInitCallback) { s.threadInitCb = cb }

// SetConnectionCallback is invoked on the I/O loop once a connection is up.
// Callback setters must precede Start.
func (s *Server) SetConnectionCallback(cb reactor.ConnectionCallback) { s.connectionCb = cb }

// SetMessageCallback receives input of every connection.
func (s *Server) SetMessageCallback(cb reactor.MessageCallback) { s.messageCb = cb }

func (s *Server) SetWriteCompleteCallback(cb reactor.WriteCompleteCallback) { s.writeCompleteCb = cb }

func (s *Server) SetCloseCallback(cb reactor.CloseCallback) { s.closeCb = cb }

// SetHighWaterMarkCallback installs cb on every new connection with mark.
func (s *Server) SetHighWaterMarkCallback(cb reactor.HighWaterMarkCallback, mark int) {
	s.highWaterMarkCb = cb
	s.highWaterMark.Store(int64(mark))
}

// Start spawns the I/O loops and starts listening. It is idempotent and
// safe from any thread.
func (s *Server) Start() error {
	if !s.started.CompareAndSwap(false, true) {
		return nil
	}
	s.pool = reactor.NewEventLoopThreadPool(s.loop, s.name+"-io", s.loopOpts...)
	s.pool.SetThreadNum(s.cfg.ThreadNum)
	s.pool.SetCPUAffinity(s.cfg.CPUAffinity)
	if err := s.pool.Start(s.threadInitCb); err != nil {
		s.started.Store(false)
		return fmt.Errorf("server %s: start loops: %w", s.name, err)
	}
	if err := s.acceptor.Listen(); err != nil {
		s.pool.Stop()
		s.started.Store(false)
		return fmt.Errorf("server %s: listen: %w", s.name, err)
	}
	s.logger.Info("server started", zap.Int("threads", s.cfg.ThreadNum))
	return nil
}

// newConnection runs on the base loop for every accepted descriptor.
func (s *Server) newConnection(fd int, peer tcp.Address) {
	local, err := tcp.LocalAddr(fd)
	if err != nil {
		s.logger.Error("getsockname failed", zap.Int("fd", fd), zap.Error(err))
		unix.Close(fd)
		return
	}
	ioLoop := s.pool.NextLoop()
	s.nextConnID++
	name := fmt.Sprintf("%s-%s#%d", s.name, s.ipPort, s.nextConnID)
	s.logger.Debug("new connection", zap.String("conn", name), zap.Stringer("peer", peer))

	conn := reactor.NewConnection(ioLoop, name, fd, local, peer)
	s.connections[name] = conn
	s.active.Add(1)
	s.metrics.accepted.Inc()
	s.metrics.active.Inc()

	if s.tcpNoDelay.Load() {
		if err := conn.SetTCPNoDelay(true); err != nil {
			s.logger.Warn("set TCP_NODELAY failed", zap.String("conn", name), zap.Error(err))
		}
	}
	conn.SetHighWaterMark(int(s.highWaterMark.Load()))
	if s.highWaterMarkCb != nil {
		conn.SetHighWaterMarkCallback(s.highWaterMarkCb, int(s.highWaterMark.Load()))
	}
	conn.SetConnectionCallback(s.connectionCb)
	conn.SetMessageCallback(s.messageCb)
	conn.SetWriteCompleteCallback(s.writeCompleteCb)
	conn.SetCloseCallback(s.closeCb)
	conn.SetRemoveCallback(s.removeConnection)
	ioLoop.RunInLoop(conn.ConnectEstablished)
}

// removeConnection runs on the connection's loop and hops to the base loop.
func (s *Server) removeConnection(conn *reactor.Connection) {
	s.loop.RunInLoop(func() { s.removeConnectionInLoop(conn) })
}

func (s *Server) removeConnectionInLoop(conn *reactor.Connection) {
	if _, ok := s.connections[conn.Name()]; !ok {
		return
	}
	delete(s.connections, conn.Name())
	s.active.Add(-1)
	s.metrics.active.Dec()
	s.logger.Debug("remove connection", zap.String("conn", conn.Name()))
	conn.Loop().QueueInLoop(func() {
		s.metrics.bytesRead.Add(float64(conn.BytesRead()))
		s.metrics.bytesWritten.Add(float64(conn.BytesWritten()))
		conn.ConnectDestroyed()
	})
}

// Stop closes the listener, tears down every connection and joins the I/O
// loops. Open connections get their close callback. The base loop must
// still be running, and Stop must not be called from an I/O loop thread.
func (s *Server) Stop() error {
	if !s.started.Load() || !s.stopped.CompareAndSwap(false, true) {
		return nil
	}
	var err error
	done := make(chan struct{})
	s.loop.RunInLoop(func() {
		err = multierr.Append(err, s.acceptor.Close())
		for name, conn := range s.connections {
			delete(s.connections, name)
			s.active.Add(-1)
			s.metrics.active.Dec()
			c := conn
			c.Loop().RunInLoop(c.ConnectDestroyed)
		}
		close(done)
	})
	<-done
	s.pool.Stop()
	s.logger.Info("server stopped")
	return err
}

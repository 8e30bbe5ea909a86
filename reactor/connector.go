//go:build linux
// +build linux

// File: reactor/connector.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Connector establishes one outbound TCP connection with retry.

package reactor

import (
	"errors"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-net/api"
	"github.com/momentics/hioload-net/transport/tcp"
)

// ConnectorState is the connect progress.
type ConnectorState int32

const (
	ConnectorDisconnected ConnectorState = iota
	ConnectorConnecting
	ConnectorConnected
)

func (s ConnectorState) String() string {
	switch s {
	case ConnectorDisconnected:
		return "Disconnected"
	case ConnectorConnecting:
		return "Connecting"
	case ConnectorConnected:
		return "Connected"
	}
	return "Unknown"
}

type connectOutcome int

const (
	connectInProgress connectOutcome = iota
	connectRetry
	connectFatal
)

// classifyConnect maps connect(2)'s errno to the next step.
func classifyConnect(err error) connectOutcome {
	if err == nil {
		return connectInProgress
	}
	var errno unix.Errno
	if !errors.As(err, &errno) {
		return connectFatal
	}
	switch errno {
	case unix.EINPROGRESS, unix.EINTR, unix.EISCONN:
		return connectInProgress
	case unix.EAGAIN, unix.EADDRINUSE, unix.EADDRNOTAVAIL, unix.ECONNREFUSED, unix.ENETUNREACH:
		return connectRetry
	default:
		// EACCES, EPERM, EAFNOSUPPORT, EALREADY, EBADF, EFAULT, ENOTSOCK and
		// anything unexpected.
		return connectFatal
	}
}

// ConnectCallback receives the connected descriptor; ownership passes to it.
type ConnectCallback func(fd int)

// Connector runs on its loop; Start, Stop and State are safe from any thread.
type Connector struct {
	loop       *EventLoop
	serverAddr tcp.Address
	connect    atomic.Bool
	state      atomic.Int32
	socket     *tcp.Socket
	channel    *Channel
	backoff    Backoff
	retryTimer api.TimerID
	newConnCb  ConnectCallback
	logger     *zap.Logger

	attempts atomic.Uint64
}

// NewConnector targets serverAddr from loop.
func NewConnector(loop *EventLoop, serverAddr tcp.Address) *Connector {
	return &Connector{
		loop:       loop,
		serverAddr: serverAddr,
		logger:     loop.logger.With(zap.Stringer("server", serverAddr)),
	}
}

// SetNewConnectionCallback installs the receiver of the connected descriptor.
func (c *Connector) SetNewConnectionCallback(cb ConnectCallback) { c.newConnCb = cb }

// SetRetryDelays overrides the backoff bounds.
func (c *Connector) SetRetryDelays(initial, max time.Duration) {
	c.backoff = Backoff{Initial: initial, Max: max}
}

// ServerAddr returns the target.
func (c *Connector) ServerAddr() tcp.Address { return c.serverAddr }

// State returns the connect progress.
func (c *Connector) State() ConnectorState { return ConnectorState(c.state.Load()) }

// Attempts counts connect(2) calls made so far.
func (c *Connector) Attempts() uint64 { return c.attempts.Load() }

func (c *Connector) setState(s ConnectorState) { c.state.Store(int32(s)) }

// Start begins connecting.
func (c *Connector) Start() {
	c.connect.Store(true)
	c.loop.RunInLoop(c.startInLoop)
}

// Restart resets the backoff and connects again. Owner loop only.
func (c *Connector) Restart() {
	c.loop.assertInLoopThread("Connector.Restart")
	c.setState(ConnectorDisconnected)
	c.backoff.Reset()
	c.connect.Store(true)
	c.startInLoop()
}

// Stop abandons an in-progress connect and any pending retry.
func (c *Connector) Stop() {
	c.connect.Store(false)
	c.loop.QueueInLoop(c.stopInLoop)
}

func (c *Connector) startInLoop() {
	c.retryTimer = 0
	if !c.connect.Load() {
		c.logger.Debug("do not connect")
		return
	}
	if c.State() != ConnectorDisconnected {
		return
	}
	c.doConnect()
}

func (c *Connector) stopInLoop() {
	if c.retryTimer != 0 {
		c.loop.Cancel(c.retryTimer)
		c.retryTimer = 0
	}
	if c.State() == ConnectorConnecting {
		c.removeChannel()
		c.retry()
	}
}

func (c *Connector) doConnect() {
	sock, err := tcp.NewNonblockingSocket(c.serverAddr.Family())
	if err != nil {
		c.logger.Error("create socket failed", zap.Error(err))
		return
	}
	c.socket = sock
	c.attempts.Add(1)
	err = sock.Connect(c.serverAddr)
	switch classifyConnect(err) {
	case connectInProgress:
		c.connecting()
	case connectRetry:
		c.logger.Info("connect failed, will retry", zap.Error(err))
		c.retry()
	default:
		c.logger.Error("connect failed", zap.Error(err))
		c.closeSocket()
		c.setState(ConnectorDisconnected)
	}
}

func (c *Connector) connecting() {
	c.setState(ConnectorConnecting)
	c.channel = newChannel(c.loop, c.socket.Fd(), c)
	c.channel.EnableWriting()
}

func (c *Connector) removeChannel() {
	if c.channel == nil {
		return
	}
	c.channel.DisableAll()
	c.channel.Remove()
	c.channel = nil
}

func (c *Connector) closeSocket() {
	if c.socket == nil {
		return
	}
	if err := c.socket.Close(); err != nil {
		c.logger.Warn("close socket failed", zap.Error(err))
	}
	c.socket = nil
}

// handleWrite confirms completion through SO_ERROR; writability alone
// does not mean the connect succeeded.
func (c *Connector) handleWrite() {
	if c.State() != ConnectorConnecting {
		return
	}
	c.removeChannel()
	fd := c.socket.Fd()
	if err := tcp.SocketError(fd); err != nil {
		c.logger.Warn("connect completed with error", zap.Error(err))
		c.retry()
		return
	}
	if tcp.IsSelfConnect(fd) {
		c.logger.Warn("self connect")
		c.retry()
		return
	}
	c.setState(ConnectorConnected)
	if !c.connect.Load() || c.newConnCb == nil {
		c.closeSocket()
		return
	}
	c.socket = nil
	c.newConnCb(fd)
}

func (c *Connector) handleError() {
	if c.State() != ConnectorConnecting {
		return
	}
	c.removeChannel()
	c.logger.Warn("connect error", zap.Error(tcp.SocketError(c.socket.Fd())))
	c.retry()
}

func (c *Connector) handleRead(time.Time) {}
func (c *Connector) handleClose()         {}

func (c *Connector) retry() {
	c.closeSocket()
	c.setState(ConnectorDisconnected)
	if !c.connect.Load() {
		c.logger.Debug("do not connect")
		return
	}
	delay := c.backoff.Next()
	c.logger.Info("retry connecting", zap.Duration("delay", delay))
	id, err := c.loop.RunAfter(delay, c.startInLoop)
	if err != nil {
		c.logger.Error("schedule retry failed", zap.Error(err))
		return
	}
	c.retryTimer = id
}

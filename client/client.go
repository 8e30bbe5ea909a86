// File: client/client.go
// Package client provides a reconnecting TCP client bound to one event loop.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// The client owns a Connector and at most one Connection at a time:
// - Connect starts the Connector; its descriptor becomes a Connection on the loop
// - Disconnect half-closes the live connection, Stop abandons connecting
// - With retry enabled a dropped connection is re-established with backoff

package client

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-net/api"
	"github.com/momentics/hioload-net/logging"
	"github.com/momentics/hioload-net/reactor"
	"github.com/momentics/hioload-net/transport/tcp"
)

// Client is safe to drive from any thread; callbacks run on its loop.
type Client struct {
	cfg       *Config
	loop      *reactor.EventLoop
	connector *reactor.Connector
	name      string
	logger    *zap.Logger

	retry      atomic.Bool
	connect    atomic.Bool
	nextConnID int

	mu   sync.Mutex
	conn *reactor.Connection

	connectionCb    reactor.ConnectionCallback
	messageCb       reactor.MessageCallback
	writeCompleteCb reactor.WriteCompleteCallback
	closeCb         reactor.CloseCallback
	highWaterMarkCb reactor.HighWaterMarkCallback
}

// NewClient prepares a client for serverAddr. Nothing happens before Connect.
func NewClient(loop *reactor.EventLoop, serverAddr tcp.Address, opts ...ClientOption) (*Client, error) {
	if loop == nil {
		return nil, fmt.Errorf("%w: nil loop", api.ErrInvalidArgument)
	}
	if !serverAddr.IsValid() {
		return nil, fmt.Errorf("%w: %s", api.ErrInvalidAddress, serverAddr)
	}
	c := &Client{
		cfg:       DefaultConfig(),
		loop:      loop,
		logger:    logging.Named("client"),
		messageCb: reactor.DefaultMessageCallback,
	}
	for _, o := range opts {
		o(c)
	}
	if c.cfg.Name == "" {
		c.cfg.Name = "client-" + uuid.NewString()[:8]
	}
	c.name = c.cfg.Name
	c.retry.Store(c.cfg.Retry)
	c.logger = c.logger.With(zap.String("client", c.name), zap.Stringer("server", serverAddr))

	c.connector = reactor.NewConnector(loop, serverAddr)
	c.connector.SetRetryDelays(c.cfg.RetryInitial, c.cfg.RetryMax)
	c.connector.SetNewConnectionCallback(c.newConnection)
	return c, nil
}

// Name returns the connection name prefix.
func (c *Client) Name() string { return c.name }

// Loop returns the owning loop.
func (c *Client) Loop() *reactor.EventLoop { return c.loop }

// Connector exposes the underlying connector, e.g. for its attempt count.
func (c *Client) Connector() *reactor.Connector { return c.connector }

// Connection returns the live connection, or nil.
func (c *Client) Connection() *reactor.Connection {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn
}

// EnableRetry turns on reconnecting after a dropped connection.
func (c *Client) EnableRetry() { c.retry.Store(true) }

// Retry reports whether reconnecting is on.
func (c *Client) Retry() bool { return c.retry.Load() }

// Callback setters must precede Connect.
func (c *Client) SetConnectionCallback(cb reactor.ConnectionCallback) { c.connectionCb = cb }

func (c *Client) SetMessageCallback(cb reactor.MessageCallback) { c.messageCb = cb }

func (c *Client) SetWriteCompleteCallback(cb reactor.WriteCompleteCallback) { c.writeCompleteCb = cb }

func (c *Client) SetCloseCallback(cb reactor.CloseCallback) { c.closeCb = cb }

// SetHighWaterMarkCallback installs cb with mark on every new connection.
func (c *Client) SetHighWaterMarkCallback(cb reactor.HighWaterMarkCallback, mark int) {
	c.highWaterMarkCb = cb
	c.cfg.HighWaterMark = mark
}

// Connect starts connecting.
func (c *Client) Connect() {
	c.logger.Info("connecting")
	c.connect.Store(true)
	c.connector.Start()
}

// Disconnect half-closes the live connection once its output drained.
func (c *Client) Disconnect() {
	c.connect.Store(false)
	if conn := c.Connection(); conn != nil {
		conn.Shutdown()
	}
}

// Stop abandons connecting; an established connection is left alone.
func (c *Client) Stop() {
	c.connect.Store(false)
	c.connector.Stop()
}

// Close stops connecting and force-closes the live connection. The close
// callback still fires for it.
func (c *Client) Close() {
	c.Stop()
	if conn := c.Connection(); conn != nil {
		conn.ForceClose()
	}
}

// newConnection runs on the loop with a connected descriptor.
func (c *Client) newConnection(fd int) {
	peer, err := tcp.PeerAddr(fd)
	if err != nil {
		c.logger.Warn("getpeername failed", zap.Int("fd", fd), zap.Error(err))
		unix.Close(fd)
		return
	}
	local, err := tcp.LocalAddr(fd)
	if err != nil {
		c.logger.Warn("getsockname failed", zap.Int("fd", fd), zap.Error(err))
		unix.Close(fd)
		return
	}
	c.nextConnID++
	name := fmt.Sprintf("%s:%s#%d", c.name, peer.IPPort(), c.nextConnID)

	conn := reactor.NewConnection(c.loop, name, fd, local, peer)
	if c.cfg.TCPNoDelay {
		if err := conn.SetTCPNoDelay(true); err != nil {
			c.logger.Warn("set TCP_NODELAY failed", zap.Error(err))
		}
	}
	conn.SetHighWaterMark(c.cfg.HighWaterMark)
	if c.highWaterMarkCb != nil {
		conn.SetHighWaterMarkCallback(c.highWaterMarkCb, c.cfg.HighWaterMark)
	}
	conn.SetConnectionCallback(c.connectionCb)
	conn.SetMessageCallback(c.messageCb)
	conn.SetWriteCompleteCallback(c.writeCompleteCb)
	conn.SetCloseCallback(c.closeCb)
	conn.SetRemoveCallback(c.removeConnection)

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	conn.ConnectEstablished()
}

// removeConnection runs on the loop after the close callback.
func (c *Client) removeConnection(conn *reactor.Connection) {
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	c.mu.Unlock()

	c.loop.QueueInLoop(conn.ConnectDestroyed)
	if c.retry.Load() && c.connect.Load() {
		c.logger.Info("reconnecting", zap.String("conn", conn.Name()))
		c.connector.Restart()
	}
}

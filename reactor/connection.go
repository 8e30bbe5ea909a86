//go:build linux
// +build linux

// File: reactor/connection.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Connection is one established TCP stream bound to a single loop.

package reactor

import (
	"errors"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-net/api"
	"github.com/momentics/hioload-net/core/buffer"
	"github.com/momentics/hioload-net/transport/tcp"
)

// DefaultHighWaterMark is the queued-output threshold for back-pressure.
const DefaultHighWaterMark = 64 * 1024 * 1024

// ConnState is the connection lifecycle state.
type ConnState int32

const (
	StateConnecting ConnState = iota
	StateConnected
	StateDisconnecting
	StateDisconnected
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "Connecting"
	case StateConnected:
		return "Connected"
	case StateDisconnecting:
		return "Disconnecting"
	case StateDisconnected:
		return "Disconnected"
	}
	return "Unknown"
}

// validTransition lists the only forward edges of the state machine.
func validTransition(from, to ConnState) bool {
	switch from {
	case StateConnecting:
		return to == StateConnected
	case StateConnected:
		return to == StateDisconnecting || to == StateDisconnected
	case StateDisconnecting:
		return to == StateDisconnected
	}
	return false
}

// Connection owns its socket. Send, SendString, SendBuffer, Shutdown,
// ForceClose, State, Connected and the context accessors are safe from any
// thread; everything else runs on the owning loop.
type Connection struct {
	loop    *EventLoop
	name    string
	state   atomic.Int32
	socket  *tcp.Socket
	channel *Channel
	guard   *Guard
	local   tcp.Address
	peer    tcp.Address
	logger  *zap.Logger

	input         *buffer.Buffer
	output        *buffer.Buffer
	highWaterMark int

	bytesRead    atomic.Uint64
	bytesWritten atomic.Uint64
	context      atomic.Pointer[any]

	connectionCb    ConnectionCallback
	messageCb       MessageCallback
	writeCompleteCb WriteCompleteCallback
	highWaterMarkCb HighWaterMarkCallback
	closeCb         CloseCallback
	removeCb        CloseCallback
}

// NewConnection adopts fd, which must be a connected non-blocking socket.
// Keep-alive is enabled; the connection starts in Connecting until
// ConnectEstablished runs on loop.
func NewConnection(loop *EventLoop, name string, fd int, local, peer tcp.Address) *Connection {
	c := &Connection{
		loop:          loop,
		name:          name,
		socket:        tcp.NewSocket(fd),
		guard:         NewGuard(),
		local:         local,
		peer:          peer,
		logger:        loop.logger.With(zap.String("conn", name)),
		input:         buffer.New(),
		output:        buffer.New(),
		highWaterMark: DefaultHighWaterMark,
		messageCb:     DefaultMessageCallback,
	}
	c.state.Store(int32(StateConnecting))
	c.channel = newChannel(loop, fd, c)
	if err := c.socket.SetKeepAlive(true); err != nil {
		c.logger.Warn("set keepalive failed", zap.Error(err))
	}
	c.logger.Debug("connection created", logFd(fd))
	return c
}

// Name returns the name given by the owner, unique per server or client.
func (c *Connection) Name() string { return c.name }

// Loop returns the owning loop; every callback runs on it.
func (c *Connection) Loop() *EventLoop { return c.loop }

// LocalAddr returns the local end of the socket.
func (c *Connection) LocalAddr() tcp.Address { return c.local }

// PeerAddr returns the remote end of the socket.
func (c *Connection) PeerAddr() tcp.Address { return c.peer }

// State returns the current state. Safe from any thread.
func (c *Connection) State() ConnState { return ConnState(c.state.Load()) }

// Connected reports StateConnected.
func (c *Connection) Connected() bool { return c.State() == StateConnected }

// Disconnected reports StateDisconnected.
func (c *Connection) Disconnected() bool { return c.State() == StateDisconnected }

// BytesRead counts bytes read from the socket.
func (c *Connection) BytesRead() uint64 { return c.bytesRead.Load() }

// BytesWritten counts bytes written to the socket.
func (c *Connection) BytesWritten() uint64 { return c.bytesWritten.Load() }

// SetContext attaches an arbitrary value owned by the application.
func (c *Connection) SetContext(v any) { c.context.Store(&v) }

// Context returns the value set by SetContext, or nil.
func (c *Connection) Context() any {
	if p := c.context.Load(); p != nil {
		return *p
	}
	return nil
}

// SetConnectionCallback installs the callback run once the connection is established.
func (c *Connection) SetConnectionCallback(cb ConnectionCallback) { c.connectionCb = cb }

// SetMessageCallback installs the input handler; nil restores
// DefaultMessageCallback.
func (c *Connection) SetMessageCallback(cb MessageCallback) {
	if cb == nil {
		cb = DefaultMessageCallback
	}
	c.messageCb = cb
}

// SetWriteCompleteCallback installs the callback queued whenever the output buffer drains.
func (c *Connection) SetWriteCompleteCallback(cb WriteCompleteCallback) { c.writeCompleteCb = cb }

// SetCloseCallback installs the callback run once when the connection goes down.
func (c *Connection) SetCloseCallback(cb CloseCallback) { c.closeCb = cb }

// SetHighWaterMarkCallback installs cb and sets the threshold in bytes.
func (c *Connection) SetHighWaterMarkCallback(cb HighWaterMarkCallback, mark int) {
	c.highWaterMarkCb = cb
	if mark > 0 {
		c.highWaterMark = mark
	}
}

// SetHighWaterMark changes the threshold without touching the callback.
func (c *Connection) SetHighWaterMark(mark int) {
	if mark > 0 {
		c.highWaterMark = mark
	}
}

// HighWaterMark returns the current threshold in bytes.
func (c *Connection) HighWaterMark() int { return c.highWaterMark }

// SetRemoveCallback is used by the owning facade to learn about closes and
// schedule ConnectDestroyed. Without one the connection destroys itself.
func (c *Connection) SetRemoveCallback(cb CloseCallback) { c.removeCb = cb }

// SetTCPNoDelay toggles Nagle's algorithm on the socket.
func (c *Connection) SetTCPNoDelay(on bool) error { return c.socket.SetTCPNoDelay(on) }

// InputBuffer exposes received bytes not yet consumed. Owner loop only.
func (c *Connection) InputBuffer() *buffer.Buffer { return c.input }

// OutputBuffer exposes bytes waiting for the socket. Owner loop only.
func (c *Connection) OutputBuffer() *buffer.Buffer { return c.output }

func (c *Connection) transition(to ConnState) bool {
	from := c.State()
	if !validTransition(from, to) {
		c.logger.Warn("refused state transition",
			zap.Stringer("from", from),
			zap.Stringer("to", to),
			zap.Error(api.ErrInvalidTransition))
		return false
	}
	c.state.Store(int32(to))
	return true
}

// ConnectEstablished starts reading and reports the new connection.
// Called once, on the owner loop.
func (c *Connection) ConnectEstablished() {
	c.loop.assertInLoopThread("ConnectEstablished")
	if !c.transition(StateConnected) {
		return
	}
	c.channel.Tie(c.guard)
	c.channel.EnableReading()
	if c.connectionCb != nil {
		c.connectionCb(c)
	}
}

// ConnectDestroyed is the last call a connection receives. When the owner
// tears the connection down while it is still connected, the close
// callback fires here.
func (c *Connection) ConnectDestroyed() {
	c.loop.assertInLoopThread("ConnectDestroyed")
	if c.State() == StateConnected || c.State() == StateDisconnecting {
		c.transition(StateDisconnected)
		c.channel.DisableAll()
		if c.closeCb != nil {
			c.closeCb(c)
		}
	}
	c.channel.Remove()
	c.guard.Release()
	if err := c.socket.Close(); err != nil {
		c.logger.Warn("close socket failed", zap.Error(err))
	}
	c.input.Release()
	c.output.Release()
	c.logger.Debug("connection destroyed")
}

// Send queues data for writing. Off the owner thread the bytes are copied
// before marshalling. It fails once the connection left Connected.
func (c *Connection) Send(data []byte) error {
	if c.State() != StateConnected {
		return api.ErrConnectionClosed
	}
	if c.loop.InLoopThread() {
		c.sendInLoop(data)
		return nil
	}
	cp := append([]byte(nil), data...)
	c.loop.RunInLoop(func() { c.sendInLoop(cp) })
	return nil
}

// SendString is Send for text.
func (c *Connection) SendString(s string) error {
	if c.State() != StateConnected {
		return api.ErrConnectionClosed
	}
	if c.loop.InLoopThread() {
		c.sendInLoop([]byte(s))
		return nil
	}
	c.loop.RunInLoop(func() { c.sendInLoop([]byte(s)) })
	return nil
}

// SendBuffer sends and consumes the readable bytes of buf.
func (c *Connection) SendBuffer(buf *buffer.Buffer) error {
	if c.State() != StateConnected {
		return api.ErrConnectionClosed
	}
	if c.loop.InLoopThread() {
		c.sendInLoop(buf.Peek())
		buf.RetrieveAll()
		return nil
	}
	data := buf.RetrieveAllString()
	c.loop.RunInLoop(func() { c.sendInLoop([]byte(data)) })
	return nil
}

func (c *Connection) sendInLoop(data []byte) {
	if c.State() == StateDisconnected {
		c.logger.Warn("disconnected, give up writing")
		return
	}
	written := 0
	remaining := len(data)
	fault := false

	if !c.channel.IsWriting() && c.output.Readable() == 0 {
		n, err := unix.Write(c.socket.Fd(), data)
		switch {
		case err == nil:
			written = n
			remaining -= n
			c.bytesWritten.Add(uint64(n))
			if remaining == 0 && c.writeCompleteCb != nil {
				c.loop.QueueInLoop(func() { c.writeCompleteCb(c) })
			}
		case errors.Is(err, unix.EAGAIN), errors.Is(err, unix.EINTR):
		default:
			c.logger.Warn("write failed", zap.Error(err))
			if errors.Is(err, unix.EPIPE) || errors.Is(err, unix.ECONNRESET) {
				fault = true
			}
		}
	}

	if fault || remaining == 0 {
		return
	}
	old := c.output.Readable()
	if old <= c.highWaterMark && old+remaining > c.highWaterMark && c.highWaterMarkCb != nil {
		queued := old + remaining
		c.loop.QueueInLoop(func() { c.highWaterMarkCb(c, queued) })
	}
	c.output.Append(data[written:])
	if !c.channel.IsWriting() {
		c.channel.EnableWriting()
	}
}

// Shutdown half-closes the write side once queued output drained.
func (c *Connection) Shutdown() {
	if c.state.CompareAndSwap(int32(StateConnected), int32(StateDisconnecting)) {
		c.loop.RunInLoop(c.shutdownInLoop)
	}
}

func (c *Connection) shutdownInLoop() {
	if c.channel.IsWriting() {
		return
	}
	if err := c.socket.ShutdownWrite(); err != nil {
		c.logger.Warn("shutdown write failed", zap.Error(err))
	}
}

// ForceClose closes the connection without waiting for queued output.
func (c *Connection) ForceClose() {
	if c.state.CompareAndSwap(int32(StateConnected), int32(StateDisconnecting)) ||
		c.State() == StateDisconnecting {
		c.loop.QueueInLoop(c.forceCloseInLoop)
	}
}

func (c *Connection) forceCloseInLoop() {
	if s := c.State(); s == StateConnected || s == StateDisconnecting {
		c.handleClose()
	}
}

func (c *Connection) handleRead(receiveTime time.Time) {
	if c.State() == StateDisconnected {
		return
	}
	n, err := c.input.ReadFd(c.socket.Fd())
	switch {
	case err == nil && n > 0:
		c.bytesRead.Add(uint64(n))
		c.messageCb(c, c.input, receiveTime)
	case err == nil:
		c.handleClose()
	case errors.Is(err, unix.EAGAIN), errors.Is(err, unix.EINTR):
	default:
		c.logger.Warn("read failed", zap.Error(err))
		c.handleError()
		c.handleClose()
	}
}

func (c *Connection) handleWrite() {
	if !c.channel.IsWriting() {
		c.logger.Debug("connection is down, no more writing")
		return
	}
	n, err := c.output.WriteFd(c.socket.Fd())
	if err != nil {
		if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EINTR) {
			return
		}
		c.logger.Warn("write failed", zap.Error(err))
		if !errors.Is(err, unix.EPIPE) && !errors.Is(err, unix.ECONNRESET) {
			c.handleError()
		}
		c.handleClose()
		return
	}
	c.bytesWritten.Add(uint64(n))
	c.output.Retrieve(n)
	if c.output.Readable() > 0 {
		return
	}
	c.channel.DisableWriting()
	if c.writeCompleteCb != nil {
		c.loop.QueueInLoop(func() { c.writeCompleteCb(c) })
	}
	if c.State() == StateDisconnecting {
		c.shutdownInLoop()
	}
}

// handleClose is the single close path for peer close, fatal errors and
// ForceClose.
func (c *Connection) handleClose() {
	if c.State() == StateDisconnected {
		return
	}
	c.logger.Debug("connection closing", zap.Stringer("state", c.State()))
	c.transition(StateDisconnected)
	c.channel.DisableAll()

	if c.closeCb != nil {
		c.closeCb(c)
	}
	if c.removeCb != nil {
		c.removeCb(c)
		return
	}
	c.loop.QueueInLoop(c.ConnectDestroyed)
}

func (c *Connection) handleError() {
	err := tcp.SocketError(c.socket.Fd())
	c.logger.Warn("connection error", zap.Error(err))
}

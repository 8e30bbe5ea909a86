// File: reactor/channel.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Channel binds one descriptor to its interest mask and dispatches
// readiness to the owner's handler.

package reactor

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/sys/unix"
)

const (
	eventNone  uint32 = 0
	eventRead  uint32 = unix.EPOLLIN | unix.EPOLLPRI
	eventWrite uint32 = unix.EPOLLOUT
)

// channelStatus tracks registration with the poller.
type channelStatus int

const (
	statusNew     channelStatus = iota // never added, or removed
	statusAdded                        // registered with epoll
	statusDeleted                      // known to the poller, not registered
)

// eventHandler is implemented by the closed set of channel owners:
// Connection, Acceptor, Connector and funcHandler.
type eventHandler interface {
	handleRead(receiveTime time.Time)
	handleWrite()
	handleClose()
	handleError()
}

// funcHandler serves internal descriptors that only ever become readable.
type funcHandler func(receiveTime time.Time)

func (f funcHandler) handleRead(t time.Time) { f(t) }
func (funcHandler) handleWrite()             {}
func (funcHandler) handleClose()             {}
func (funcHandler) handleError()             {}

// Channel does not own its descriptor.
type Channel struct {
	loop    *EventLoop
	fd      int
	events  uint32
	revents uint32
	status  channelStatus
	handler eventHandler
	guard   *Guard
}

func newChannel(loop *EventLoop, fd int, h eventHandler) *Channel {
	return &Channel{loop: loop, fd: fd, handler: h, status: statusNew}
}

// Fd returns the watched descriptor.
func (c *Channel) Fd() int { return c.fd }

// Loop returns the owning loop.
func (c *Channel) Loop() *EventLoop { return c.loop }

// Tie attaches a liveness guard; events are dropped once it is released.
func (c *Channel) Tie(g *Guard) { c.guard = g }

// EnableReading adds read interest and syncs the poller.
func (c *Channel) EnableReading() { c.events |= eventRead; c.update() }

// DisableReading drops read interest.
func (c *Channel) DisableReading() { c.events &^= eventRead; c.update() }

// EnableWriting adds write interest; it is kept only while output is pending.
func (c *Channel) EnableWriting() { c.events |= eventWrite; c.update() }

// DisableWriting drops write interest.
func (c *Channel) DisableWriting() { c.events &^= eventWrite; c.update() }

// DisableAll clears the interest mask, which unregisters the fd from epoll.
func (c *Channel) DisableAll() { c.events = eventNone; c.update() }

// IsNoneEvent reports an empty interest mask.
func (c *Channel) IsNoneEvent() bool { return c.events == eventNone }

// IsWriting reports write interest.
func (c *Channel) IsWriting() bool { return c.events&eventWrite != 0 }

// IsReading reports read interest.
func (c *Channel) IsReading() bool { return c.events&eventRead != 0 }

// Remove unregisters the channel. Interest must be empty first.
func (c *Channel) Remove() {
	if !c.IsNoneEvent() {
		c.loop.logger.DPanic("removing channel with live interest", logFd(c.fd))
	}
	c.loop.RemoveChannel(c)
}

func (c *Channel) update() {
	c.loop.UpdateChannel(c)
}

// handleEvent dispatches the last revents in fixed order: hang-up without
// readable data, error, readable, writable.
func (c *Channel) handleEvent(receiveTime time.Time) {
	if c.guard != nil && !c.guard.Alive() {
		return
	}
	r := c.revents
	if r&unix.EPOLLHUP != 0 && r&unix.EPOLLIN == 0 {
		c.handler.handleClose()
	}
	if r&unix.EPOLLERR != 0 {
		c.handler.handleError()
	}
	if r&(unix.EPOLLIN|unix.EPOLLPRI|unix.EPOLLRDHUP) != 0 {
		c.handler.handleRead(receiveTime)
	}
	if r&unix.EPOLLOUT != 0 {
		c.handler.handleWrite()
	}
}

// String renders the interest mask for logs.
func (c *Channel) String() string {
	return fmt.Sprintf("fd=%d events=%s revents=%s", c.fd, eventsString(c.events), eventsString(c.revents))
}

func eventsString(ev uint32) string {
	var parts []string
	for _, f := range []struct {
		bit  uint32
		name string
	}{
		{unix.EPOLLIN, "IN"},
		{unix.EPOLLPRI, "PRI"},
		{unix.EPOLLOUT, "OUT"},
		{unix.EPOLLHUP, "HUP"},
		{unix.EPOLLRDHUP, "RDHUP"},
		{unix.EPOLLERR, "ERR"},
	} {
		if ev&f.bit != 0 {
			parts = append(parts, f.name)
		}
	}
	if len(parts) == 0 {
		return "NONE"
	}
	return strings.Join(parts, "|")
}

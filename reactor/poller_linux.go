//go:build linux
// +build linux

// File: reactor/poller_linux.go
// Author: momentics <momentics@gmail.com>
//
// Level-triggered epoll(7) poller owned by exactly one EventLoop.

package reactor

import (
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

const initEventListSize = 16

type poller struct {
	epfd     int
	events   []unix.EpollEvent
	channels map[int]*Channel
	logger   *zap.Logger
}

func newPoller(logger *zap.Logger) (*poller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("epoll create: %w", err)
	}
	return &poller{
		epfd:     epfd,
		events:   make([]unix.EpollEvent, initEventListSize),
		channels: make(map[int]*Channel),
		logger:   logger,
	}, nil
}

// poll waits for readiness and appends ready channels to active in kernel
// order. An interrupted wait yields no channels and no error.
func (p *poller) poll(timeoutMs int, active []*Channel) ([]*Channel, error) {
	n, err := unix.EpollWait(p.epfd, p.events, timeoutMs)
	if err != nil {
		if errors.Is(err, unix.EINTR) {
			return active, nil
		}
		return active, fmt.Errorf("epoll wait: %w", err)
	}
	for i := 0; i < n; i++ {
		ev := &p.events[i]
		ch, ok := p.channels[int(ev.Fd)]
		if !ok {
			continue
		}
		ch.revents = ev.Events
		active = append(active, ch)
	}
	if n == len(p.events) {
		p.events = make([]unix.EpollEvent, 2*len(p.events))
	}
	return active, nil
}

func (p *poller) updateChannel(ch *Channel) {
	switch ch.status {
	case statusNew, statusDeleted:
		if ch.status == statusNew {
			p.channels[ch.fd] = ch
		}
		ch.status = statusAdded
		p.ctl(unix.EPOLL_CTL_ADD, ch)
	default:
		if ch.IsNoneEvent() {
			p.ctl(unix.EPOLL_CTL_DEL, ch)
			ch.status = statusDeleted
		} else {
			p.ctl(unix.EPOLL_CTL_MOD, ch)
		}
	}
}

func (p *poller) removeChannel(ch *Channel) {
	delete(p.channels, ch.fd)
	if ch.status == statusAdded {
		p.ctl(unix.EPOLL_CTL_DEL, ch)
	}
	ch.status = statusNew
}

func (p *poller) hasChannel(ch *Channel) bool {
	c, ok := p.channels[ch.fd]
	return ok && c == ch
}

func (p *poller) ctl(op int, ch *Channel) {
	ev := unix.EpollEvent{Events: ch.events, Fd: int32(ch.fd)}
	if err := unix.EpollCtl(p.epfd, op, ch.fd, &ev); err != nil {
		p.logger.Error("epoll_ctl failed",
			zap.String("op", ctlName(op)),
			logFd(ch.fd),
			zap.Error(err))
	}
}

func ctlName(op int) string {
	switch op {
	case unix.EPOLL_CTL_ADD:
		return "ADD"
	case unix.EPOLL_CTL_MOD:
		return "MOD"
	case unix.EPOLL_CTL_DEL:
		return "DEL"
	}
	return "?"
}

func (p *poller) close() error {
	return unix.Close(p.epfd)
}

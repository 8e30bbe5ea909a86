//go:build linux
// +build linux

// File: reactor/acceptor.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Acceptor owns a listening socket and hands accepted descriptors over.

package reactor

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-net/transport/tcp"
)

// Acceptor accepts one connection per readiness notification.
type Acceptor struct {
	loop      *EventLoop
	socket    *tcp.Socket
	channel   *Channel
	addr      tcp.Address
	newConnCb NewConnectionCallback
	listening bool
	idleFd    int
	logger    *zap.Logger
}

// NewAcceptor creates and binds a listening socket with SO_REUSEADDR and,
// optionally, SO_REUSEPORT. A descriptor on /dev/null is reserved for the
// out-of-descriptors case.
func NewAcceptor(loop *EventLoop, addr tcp.Address, reusePort bool) (*Acceptor, error) {
	sock, err := tcp.NewNonblockingSocket(addr.Family())
	if err != nil {
		return nil, err
	}
	if err := sock.SetReuseAddr(true); err != nil {
		sock.Close()
		return nil, fmt.Errorf("set SO_REUSEADDR: %w", err)
	}
	if err := sock.SetReusePort(reusePort); err != nil {
		sock.Close()
		return nil, fmt.Errorf("set SO_REUSEPORT: %w", err)
	}
	if err := sock.Bind(addr); err != nil {
		sock.Close()
		return nil, err
	}
	idle, err := openIdleFd()
	if err != nil {
		sock.Close()
		return nil, err
	}
	bound, err := tcp.LocalAddr(sock.Fd())
	if err != nil {
		bound = addr
	}
	a := &Acceptor{
		loop:   loop,
		socket: sock,
		addr:   bound,
		idleFd: idle,
		logger: loop.logger.With(zap.Stringer("listen", bound)),
	}
	a.channel = newChannel(loop, sock.Fd(), a)
	return a, nil
}

func openIdleFd() (int, error) {
	fd, err := unix.Open("/dev/null", unix.O_RDONLY|unix.O_CLOEXEC, 0)
	if err != nil {
		return -1, fmt.Errorf("open idle fd: %w", err)
	}
	return fd, nil
}

// SetNewConnectionCallback installs the receiver of accepted descriptors.
// Without one, accepted descriptors are closed.
func (a *Acceptor) SetNewConnectionCallback(cb NewConnectionCallback) { a.newConnCb = cb }

// Addr returns the bound address, with the kernel-chosen port resolved.
func (a *Acceptor) Addr() tcp.Address { return a.addr }

// Listening reports whether Listen succeeded.
func (a *Acceptor) Listening() bool { return a.listening }

// Listen starts listening and, on the owner loop, watches for readability.
// Safe from any thread.
func (a *Acceptor) Listen() error {
	if err := a.socket.Listen(); err != nil {
		return err
	}
	a.listening = true
	a.loop.RunInLoop(a.channel.EnableReading)
	return nil
}

func (a *Acceptor) handleRead(time.Time) {
	fd, peer, err := a.socket.Accept()
	if err == nil {
		if a.newConnCb != nil {
			a.newConnCb(fd, peer)
			return
		}
		unix.Close(fd)
		return
	}

	switch {
	case errors.Is(err, unix.EAGAIN), errors.Is(err, unix.EINTR),
		errors.Is(err, unix.ECONNABORTED), errors.Is(err, unix.EPROTO):
	case errors.Is(err, unix.EMFILE), errors.Is(err, unix.ENFILE):
		// Out of descriptors: free the reserve, take the pending connection
		// off the backlog and drop it, then re-reserve.
		a.logger.Error("accept: out of descriptors, dropping connection", zap.Error(err))
		unix.Close(a.idleFd)
		if nfd, _, err := unix.Accept4(a.socket.Fd(), unix.SOCK_CLOEXEC); err == nil {
			unix.Close(nfd)
		}
		if a.idleFd, err = openIdleFd(); err != nil {
			a.logger.Error("reopen idle fd failed", zap.Error(err))
		}
	default:
		a.logger.Error("accept failed", zap.Error(err))
	}
}

func (a *Acceptor) handleWrite() {}
func (a *Acceptor) handleClose() {}

func (a *Acceptor) handleError() {
	a.logger.Error("listening socket error", zap.Error(tcp.SocketError(a.socket.Fd())))
}

// Close stops watching and closes the listening socket and the reserve.
// Owner loop only.
func (a *Acceptor) Close() error {
	if a.channel.status == statusAdded || a.channel.status == statusDeleted {
		a.channel.DisableAll()
		a.channel.Remove()
	}
	a.listening = false
	var err error
	err = multierr.Append(err, a.socket.Close())
	if a.idleFd >= 0 {
		err = multierr.Append(err, unix.Close(a.idleFd))
		a.idleFd = -1
	}
	return err
}

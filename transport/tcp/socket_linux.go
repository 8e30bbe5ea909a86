//go:build linux
// +build linux

// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package tcp - Linux socket descriptor wrapper.

package tcp

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Socket owns a TCP descriptor and closes it exactly once.
type Socket struct {
	fd int
}

// NewSocket adopts an existing descriptor.
func NewSocket(fd int) *Socket {
	return &Socket{fd: fd}
}

// NewNonblockingSocket creates a non-blocking, close-on-exec stream socket.
func NewNonblockingSocket(family int) (*Socket, error) {
	fd, err := unix.Socket(family, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, unix.IPPROTO_TCP)
	if err != nil {
		return nil, fmt.Errorf("socket: %w", err)
	}
	return &Socket{fd: fd}, nil
}

// Fd returns the raw descriptor.
func (s *Socket) Fd() int { return s.fd }

// Bind binds to addr.
func (s *Socket) Bind(addr Address) error {
	if err := unix.Bind(s.fd, addr.Sockaddr()); err != nil {
		return fmt.Errorf("bind %s: %w", addr, err)
	}
	return nil
}

// Listen starts listening with the system maximum backlog.
func (s *Socket) Listen() error {
	if err := unix.Listen(s.fd, unix.SOMAXCONN); err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	return nil
}

// Accept returns a non-blocking, close-on-exec connection descriptor and the
// peer address. Errors are returned raw so callers can match errno values.
func (s *Socket) Accept() (int, Address, error) {
	nfd, sa, err := unix.Accept4(s.fd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
	if err != nil {
		return -1, Address{}, err
	}
	return nfd, AddressFromSockaddr(sa), nil
}

// Connect starts a connect; the raw errno is returned for classification.
func (s *Socket) Connect(addr Address) error {
	return unix.Connect(s.fd, addr.Sockaddr())
}

// ShutdownWrite half-closes the write side.
func (s *Socket) ShutdownWrite() error {
	return unix.Shutdown(s.fd, unix.SHUT_WR)
}

// Close closes the descriptor. Further calls are no-ops.
func (s *Socket) Close() error {
	if s.fd < 0 {
		return nil
	}
	fd := s.fd
	s.fd = -1
	return unix.Close(fd)
}

func (s *Socket) setBool(level, opt int, on bool) error {
	v := 0
	if on {
		v = 1
	}
	return unix.SetsockoptInt(s.fd, level, opt, v)
}

func (s *Socket) SetReuseAddr(on bool) error {
	return s.setBool(unix.SOL_SOCKET, unix.SO_REUSEADDR, on)
}

func (s *Socket) SetReusePort(on bool) error {
	return s.setBool(unix.SOL_SOCKET, unix.SO_REUSEPORT, on)
}

func (s *Socket) SetKeepAlive(on bool) error {
	return s.setBool(unix.SOL_SOCKET, unix.SO_KEEPALIVE, on)
}

// SetTCPNoDelay toggles Nagle's algorithm.
func (s *Socket) SetTCPNoDelay(on bool) error {
	return s.setBool(unix.IPPROTO_TCP, unix.TCP_NODELAY, on)
}

// SocketError reads and clears SO_ERROR. A nil result means no pending error.
func SocketError(fd int) error {
	v, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		return err
	}
	if v != 0 {
		return unix.Errno(v)
	}
	return nil
}

// LocalAddr returns the bound address of fd.
func LocalAddr(fd int) (Address, error) {
	sa, err := unix.Getsockname(fd)
	if err != nil {
		return Address{}, err
	}
	return AddressFromSockaddr(sa), nil
}

// PeerAddr returns the remote address of fd.
func PeerAddr(fd int) (Address, error) {
	sa, err := unix.Getpeername(fd)
	if err != nil {
		return Address{}, err
	}
	return AddressFromSockaddr(sa), nil
}

// IsSelfConnect reports a loopback connection whose local and peer
// endpoints coincide.
func IsSelfConnect(fd int) bool {
	local, err := LocalAddr(fd)
	if err != nil {
		return false
	}
	peer, err := PeerAddr(fd)
	if err != nil {
		return false
	}
	return local.AddrPort() == peer.AddrPort()
}

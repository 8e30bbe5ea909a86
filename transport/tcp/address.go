// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

package tcp

import (
	"fmt"
	"net"
	"net/netip"
	"strconv"

	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-net/api"
)

// Address is an IPv4 or IPv6 TCP endpoint.
type Address struct {
	ap netip.AddrPort
}

// NewAddress returns the wildcard (or loopback) address on port.
func NewAddress(port uint16, loopbackOnly, ipv6 bool) Address {
	var ip netip.Addr
	switch {
	case ipv6 && loopbackOnly:
		ip = netip.IPv6Loopback()
	case ipv6:
		ip = netip.IPv6Unspecified()
	case loopbackOnly:
		ip = netip.AddrFrom4([4]byte{127, 0, 0, 1})
	default:
		ip = netip.IPv4Unspecified()
	}
	return Address{ap: netip.AddrPortFrom(ip, port)}
}

// ParseAddress parses "ip:port", "[ipv6]:port" or ":port". Host names are
// not resolved.
func ParseAddress(s string) (Address, error) {
	host, portStr, err := net.SplitHostPort(s)
	if err != nil {
		return Address{}, fmt.Errorf("%w: %q: %v", api.ErrInvalidAddress, s, err)
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return Address{}, fmt.Errorf("%w: bad port %q", api.ErrInvalidAddress, portStr)
	}
	if host == "" {
		return NewAddress(uint16(port), false, false), nil
	}
	ip, err := netip.ParseAddr(host)
	if err != nil {
		return Address{}, fmt.Errorf("%w: bad host %q", api.ErrInvalidAddress, host)
	}
	return Address{ap: netip.AddrPortFrom(ip.Unmap(), uint16(port))}, nil
}

// MustParseAddress is ParseAddress that panics on error.
func MustParseAddress(s string) Address {
	a, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return a
}

// AddressFromSockaddr converts a kernel socket address.
func AddressFromSockaddr(sa unix.Sockaddr) Address {
	switch v := sa.(type) {
	case *unix.SockaddrInet4:
		return Address{ap: netip.AddrPortFrom(netip.AddrFrom4(v.Addr), uint16(v.Port))}
	case *unix.SockaddrInet6:
		return Address{ap: netip.AddrPortFrom(netip.AddrFrom16(v.Addr).Unmap(), uint16(v.Port))}
	}
	return Address{}
}

// Sockaddr returns the kernel representation of a.
func (a Address) Sockaddr() unix.Sockaddr {
	ip := a.ap.Addr()
	if ip.Is4() {
		return &unix.SockaddrInet4{Port: int(a.ap.Port()), Addr: ip.As4()}
	}
	return &unix.SockaddrInet6{Port: int(a.ap.Port()), Addr: ip.As16()}
}

// Family returns AF_INET or AF_INET6.
func (a Address) Family() int {
	if a.ap.Addr().Is6() {
		return unix.AF_INET6
	}
	return unix.AF_INET
}

// IP returns the textual IP.
func (a Address) IP() string { return a.ap.Addr().String() }

// Port returns the port in host order.
func (a Address) Port() uint16 { return a.ap.Port() }

// IPPort returns "ip:port" ("[ip]:port" for IPv6).
func (a Address) IPPort() string { return a.ap.String() }

func (a Address) String() string { return a.IPPort() }

// IsValid reports whether a holds an address.
func (a Address) IsValid() bool { return a.ap.IsValid() }

// AddrPort exposes the underlying value.
func (a Address) AddrPort() netip.AddrPort { return a.ap }

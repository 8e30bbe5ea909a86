//go:build linux

package tcp_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-net/api"
	"github.com/momentics/hioload-net/transport/tcp"
)

func TestParseAddress(t *testing.T) {
	a, err := tcp.ParseAddress("127.0.0.1:8080")
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1", a.IP())
	assert.Equal(t, uint16(8080), a.Port())
	assert.Equal(t, "127.0.0.1:8080", a.IPPort())
	assert.Equal(t, unix.AF_INET, a.Family())

	b, err := tcp.ParseAddress("[::1]:9")
	require.NoError(t, err)
	assert.Equal(t, unix.AF_INET6, b.Family())
	assert.Equal(t, "[::1]:9", b.String())

	c, err := tcp.ParseAddress(":7000")
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:7000", c.IPPort())

	for _, bad := range []string{"nope", "1.2.3.4:99999", "host.example:80"} {
		_, err := tcp.ParseAddress(bad)
		assert.True(t, errors.Is(err, api.ErrInvalidAddress), bad)
	}
}

func TestSockaddrRoundTrip(t *testing.T) {
	a := tcp.NewAddress(4242, true, false)
	assert.Equal(t, a, tcp.AddressFromSockaddr(a.Sockaddr()))
	b := tcp.NewAddress(4242, true, true)
	assert.Equal(t, b, tcp.AddressFromSockaddr(b.Sockaddr()))
}

func TestListenAcceptConnect(t *testing.T) {
	ln, err := tcp.NewNonblockingSocket(unix.AF_INET)
	require.NoError(t, err)
	defer ln.Close()
	require.NoError(t, ln.SetReuseAddr(true))
	require.NoError(t, ln.Bind(tcp.NewAddress(0, true, false)))
	require.NoError(t, ln.Listen())

	local, err := tcp.LocalAddr(ln.Fd())
	require.NoError(t, err)
	require.NotZero(t, local.Port())

	// nothing pending yet
	_, _, err = ln.Accept()
	assert.ErrorIs(t, err, unix.EAGAIN)

	cli, err := tcp.NewNonblockingSocket(unix.AF_INET)
	require.NoError(t, err)
	defer cli.Close()
	err = cli.Connect(local)
	if err != nil {
		require.ErrorIs(t, err, unix.EINPROGRESS)
	}

	var fd int
	var peer tcp.Address
	require.Eventually(t, func() bool {
		fd, peer, err = ln.Accept()
		return err == nil
	}, 2*time.Second, 5*time.Millisecond)
	conn := tcp.NewSocket(fd)
	defer conn.Close()

	cliLocal, err := tcp.LocalAddr(cli.Fd())
	require.NoError(t, err)
	assert.Equal(t, cliLocal, peer)
	assert.NoError(t, tcp.SocketError(cli.Fd()))
	assert.NoError(t, conn.SetKeepAlive(true))
	assert.NoError(t, conn.SetTCPNoDelay(true))
	assert.False(t, tcp.IsSelfConnect(cli.Fd()))

	flags, err := unix.FcntlInt(uintptr(fd), unix.F_GETFL, 0)
	require.NoError(t, err)
	assert.NotZero(t, flags&unix.O_NONBLOCK)

	require.NoError(t, cli.ShutdownWrite())
	buf := make([]byte, 8)
	require.Eventually(t, func() bool {
		n, err := unix.Read(fd, buf)
		return err == nil && n == 0
	}, 2*time.Second, 5*time.Millisecond)
}

func TestCloseIsIdempotent(t *testing.T) {
	s, err := tcp.NewNonblockingSocket(unix.AF_INET)
	require.NoError(t, err)
	require.NoError(t, s.Close())
	assert.NoError(t, s.Close())
	assert.Equal(t, -1, s.Fd())
}

//go:build linux

package reactor_test

import (
	"io"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/momentics/hioload-net/reactor"
	"github.com/momentics/hioload-net/transport/tcp"
)

func TestCloseRunsTasksQueuedByTheLastDrain(t *testing.T) {
	th := reactor.NewEventLoopThread("drain", -1, nil, reactor.WithLoopLogger(zap.NewNop()))
	l, err := th.StartLoop()
	require.NoError(t, err)
	t.Cleanup(th.Stop)

	var ran atomic.Int32
	runSync(l, func() {
		l.Quit()
		// each task queues the next one while the previous drain runs
		l.QueueInLoop(func() {
			ran.Add(1)
			l.QueueInLoop(func() {
				ran.Add(1)
				l.QueueInLoop(func() { ran.Add(1) })
			})
		})
	})
	th.Stop()
	assert.Equal(t, int32(3), ran.Load())
}

func TestForceCloseAfterQuitClosesSocket(t *testing.T) {
	th := reactor.NewEventLoopThread("force-close", -1, nil, reactor.WithLoopLogger(zap.NewNop()))
	l, err := th.StartLoop()
	require.NoError(t, err)
	t.Cleanup(th.Stop)

	var closes atomic.Int32
	conns := make(chan *reactor.Connection, 1)
	var a *reactor.Acceptor
	runSync(l, func() {
		a, err = reactor.NewAcceptor(l, tcp.NewAddress(0, true, false), false)
		if err != nil {
			return
		}
		a.SetNewConnectionCallback(func(fd int, peer tcp.Address) {
			local, _ := tcp.LocalAddr(fd)
			c := reactor.NewConnection(l, "force-close", fd, local, peer)
			c.SetCloseCallback(func(*reactor.Connection) { closes.Add(1) })
			c.ConnectEstablished()
			conns <- c
		})
		err = a.Listen()
	})
	require.NoError(t, err)

	peer, err := net.DialTimeout("tcp", a.Addr().IPPort(), 2*time.Second)
	require.NoError(t, err)
	defer peer.Close()
	conn := accepted(t, conns)

	runSync(l, func() {
		_ = a.Close()
		l.Quit()
		conn.ForceClose()
	})
	th.Stop()

	assert.Equal(t, int32(1), closes.Load())
	assert.Equal(t, reactor.StateDisconnected, conn.State())
	require.NoError(t, peer.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, err = peer.Read(make([]byte, 1))
	assert.ErrorIs(t, err, io.EOF, "socket must be closed by the final drain")
}

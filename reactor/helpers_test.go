//go:build linux

package reactor_test

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/momentics/hioload-net/logging"
	"github.com/momentics/hioload-net/reactor"
	"github.com/momentics/hioload-net/transport/tcp"
)

func init() {
	logging.SetLogger(zap.NewNop())
}

const fastTick = 10 * time.Millisecond

// startLoop runs a loop on its own thread for the duration of the test.
func startLoop(t *testing.T, opts ...reactor.LoopOption) *reactor.EventLoop {
	t.Helper()
	opts = append([]reactor.LoopOption{reactor.WithLoopLogger(zap.NewNop())}, opts...)
	th := reactor.NewEventLoopThread(t.Name(), -1, nil, opts...)
	l, err := th.StartLoop()
	require.NoError(t, err)
	t.Cleanup(th.Stop)
	return l
}

// runSync runs fn on l and waits for it.
func runSync(l *reactor.EventLoop, fn func()) {
	done := make(chan struct{})
	l.RunInLoop(func() {
		fn()
		close(done)
	})
	<-done
}

// listen creates a listening acceptor on a kernel-chosen loopback port.
func listen(t *testing.T, l *reactor.EventLoop, cb reactor.NewConnectionCallback) *reactor.Acceptor {
	t.Helper()
	var a *reactor.Acceptor
	var err error
	runSync(l, func() {
		a, err = reactor.NewAcceptor(l, tcp.NewAddress(0, true, false), false)
		if err == nil {
			a.SetNewConnectionCallback(cb)
			err = a.Listen()
		}
	})
	require.NoError(t, err)
	t.Cleanup(func() { runSync(l, func() { _ = a.Close() }) })
	return a
}

func dial(t *testing.T, a *reactor.Acceptor) net.Conn {
	t.Helper()
	c, err := net.DialTimeout("tcp", a.Addr().IPPort(), 2*time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func waitFor(t *testing.T, ch <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
}

//go:build linux

package reactor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-net/transport/tcp"
)

func TestWriteErrorTakesClosePath(t *testing.T) {
	th := NewEventLoopThread("write-error", -1, nil, WithLoopLogger(zap.NewNop()))
	l, err := th.StartLoop()
	require.NoError(t, err)
	t.Cleanup(th.Stop)

	// writing to the read end of a pipe fails with EBADF
	var p [2]int
	require.NoError(t, unix.Pipe2(p[:], unix.O_NONBLOCK|unix.O_CLOEXEC))
	t.Cleanup(func() { unix.Close(p[1]) })

	closed := make(chan ConnState, 1)
	var writing bool
	done := make(chan struct{})
	l.RunInLoop(func() {
		defer close(done)
		c := NewConnection(l, "pipe", p[0], tcp.Address{}, tcp.Address{})
		c.SetCloseCallback(func(c *Connection) { closed <- c.State() })
		c.ConnectEstablished()
		c.output.AppendString("x")
		c.channel.EnableWriting()
		c.handleWrite()
		writing = c.channel.IsWriting()
	})
	<-done

	select {
	case s := <-closed:
		assert.Equal(t, StateDisconnected, s)
	case <-time.After(5 * time.Second):
		t.Fatal("write error did not close the connection")
	}
	assert.False(t, writing)
}

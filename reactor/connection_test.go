//go:build linux

package reactor_test

import (
	"bytes"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-net/api"
	"github.com/momentics/hioload-net/core/buffer"
	"github.com/momentics/hioload-net/reactor"
	"github.com/momentics/hioload-net/transport/tcp"
)

// serve accepts on a fresh loop and wraps every accepted descriptor in a
// Connection configured by setup before it is established.
func serve(t *testing.T, setup func(fd int, c *reactor.Connection)) (*reactor.EventLoop, *reactor.Acceptor, <-chan *reactor.Connection) {
	t.Helper()
	l := startLoop(t, reactor.WithTickInterval(fastTick))
	conns := make(chan *reactor.Connection, 4)
	a := listen(t, l, func(fd int, peer tcp.Address) {
		local, err := tcp.LocalAddr(fd)
		if err != nil {
			unix.Close(fd)
			return
		}
		c := reactor.NewConnection(l, "test-"+peer.IPPort(), fd, local, peer)
		if setup != nil {
			setup(fd, c)
		}
		c.ConnectEstablished()
		conns <- c
	})
	return l, a, conns
}

func accepted(t *testing.T, conns <-chan *reactor.Connection) *reactor.Connection {
	t.Helper()
	select {
	case c := <-conns:
		return c
	case <-time.After(5 * time.Second):
		t.Fatal("no connection accepted")
		return nil
	}
}

func TestConnectionEcho(t *testing.T) {
	var up atomic.Bool
	_, a, conns := serve(t, func(_ int, c *reactor.Connection) {
		c.SetConnectionCallback(func(c *reactor.Connection) { up.Store(c.Connected()) })
		c.SetMessageCallback(func(c *reactor.Connection, in *buffer.Buffer, _ time.Time) {
			assert.NoError(t, c.SendBuffer(in))
		})
	})
	client := dial(t, a)
	conn := accepted(t, conns)
	assert.True(t, up.Load())
	assert.Equal(t, reactor.StateConnected, conn.State())
	assert.Equal(t, client.LocalAddr().String(), conn.PeerAddr().IPPort())
	assert.Equal(t, a.Addr().Port(), conn.LocalAddr().Port())

	msg := []byte("hello, reactor")
	_, err := client.Write(msg)
	require.NoError(t, err)
	got := make([]byte, len(msg))
	require.NoError(t, client.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, err = io.ReadFull(client, got)
	require.NoError(t, err)
	assert.Equal(t, msg, got)

	require.Eventually(t, func() bool { return conn.BytesWritten() == uint64(len(msg)) }, 5*time.Second, fastTick)
	assert.Equal(t, uint64(len(msg)), conn.BytesRead())
}

func TestConnectionSendFromOtherThread(t *testing.T) {
	_, a, conns := serve(t, nil)
	client := dial(t, a)
	conn := accepted(t, conns)

	payload := bytes.Repeat([]byte("x"), 256*1024)
	require.NoError(t, conn.Send(payload))
	// the caller may reuse its slice immediately
	for i := range payload {
		payload[i] = 'y'
	}
	require.NoError(t, conn.SendString("tail"))

	got := make([]byte, len(payload)+4)
	require.NoError(t, client.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, err := io.ReadFull(client, got)
	require.NoError(t, err)
	assert.Equal(t, bytes.Repeat([]byte("x"), len(payload)), got[:len(payload)])
	assert.Equal(t, "tail", string(got[len(payload):]))
}

func TestConnectionPeerClose(t *testing.T) {
	var closes atomic.Int32
	closed := make(chan struct{})
	_, a, conns := serve(t, func(_ int, c *reactor.Connection) {
		c.SetCloseCallback(func(c *reactor.Connection) {
			if closes.Add(1) == 1 {
				close(closed)
			}
		})
	})
	client := dial(t, a)
	conn := accepted(t, conns)

	require.NoError(t, client.Close())
	waitFor(t, closed, "close callback")
	assert.Equal(t, reactor.StateDisconnected, conn.State())
	assert.ErrorIs(t, conn.Send([]byte("late")), api.ErrConnectionClosed)
	assert.ErrorIs(t, conn.SendString("late"), api.ErrConnectionClosed)

	time.Sleep(5 * fastTick)
	assert.Equal(t, int32(1), closes.Load())
}

func TestConnectionShutdownFlushesOutput(t *testing.T) {
	const size = 1 << 20
	_, a, conns := serve(t, func(_ int, c *reactor.Connection) {
		c.SetConnectionCallback(func(c *reactor.Connection) {
			assert.NoError(t, c.Send(bytes.Repeat([]byte{0xab}, size)))
			c.Shutdown()
			assert.Equal(t, reactor.StateDisconnecting, c.State())
			assert.ErrorIs(t, c.Send([]byte{1}), api.ErrConnectionClosed)
		})
	})
	client := dial(t, a)
	accepted(t, conns)

	require.NoError(t, client.SetReadDeadline(time.Now().Add(5*time.Second)))
	got, err := io.ReadAll(client)
	require.NoError(t, err)
	assert.Len(t, got, size)
}

func TestConnectionForceClose(t *testing.T) {
	var closes atomic.Int32
	closed := make(chan struct{})
	_, a, conns := serve(t, func(_ int, c *reactor.Connection) {
		c.SetCloseCallback(func(*reactor.Connection) {
			if closes.Add(1) == 1 {
				close(closed)
			}
		})
	})
	client := dial(t, a)
	conn := accepted(t, conns)

	conn.ForceClose()
	conn.ForceClose()
	waitFor(t, closed, "close callback")
	assert.True(t, conn.Disconnected())

	require.NoError(t, client.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, err := client.Read(make([]byte, 1))
	assert.Equal(t, io.EOF, err)
	assert.Equal(t, int32(1), closes.Load())
}

func TestConnectionHighWaterMarkFiresOnce(t *testing.T) {
	const (
		chunk  = 64 * 1024
		chunks = 128
	)
	var marks atomic.Int32
	var queuedAtMark atomic.Int64
	drained := make(chan struct{}, 1)
	_, a, conns := serve(t, func(fd int, c *reactor.Connection) {
		// a tiny send buffer keeps the bulk queued in user space
		_ = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_SNDBUF, 4096)
		c.SetHighWaterMarkCallback(func(_ *reactor.Connection, queued int) {
			marks.Add(1)
			queuedAtMark.Store(int64(queued))
		}, 1)
		c.SetWriteCompleteCallback(func(c *reactor.Connection) {
			if c.OutputBuffer().Readable() == 0 {
				select {
				case drained <- struct{}{}:
				default:
				}
			}
		})
		c.SetConnectionCallback(func(c *reactor.Connection) {
			block := bytes.Repeat([]byte{0x5a}, chunk)
			for i := 0; i < chunks; i++ {
				assert.NoError(t, c.Send(block))
			}
		})
	})
	client := dial(t, a)
	accepted(t, conns)

	require.Eventually(t, func() bool { return marks.Load() > 0 }, 5*time.Second, fastTick)
	assert.Greater(t, queuedAtMark.Load(), int64(1))

	require.NoError(t, client.SetReadDeadline(time.Now().Add(10*time.Second)))
	_, err := io.ReadFull(client, make([]byte, chunk*chunks))
	require.NoError(t, err)
	waitFor(t, drained, "write complete")
	assert.Equal(t, int32(1), marks.Load())
}

func TestConnectionContext(t *testing.T) {
	_, a, conns := serve(t, nil)
	dial(t, a)
	conn := accepted(t, conns)

	assert.Nil(t, conn.Context())
	conn.SetContext("session-7")
	assert.Equal(t, "session-7", conn.Context())
	conn.SetContext(42)
	assert.Equal(t, 42, conn.Context())
}

func TestConnectionRemoveCallbackOwnsTeardown(t *testing.T) {
	removed := make(chan *reactor.Connection, 1)
	l, a, conns := serve(t, func(_ int, c *reactor.Connection) {
		c.SetRemoveCallback(func(c *reactor.Connection) {
			removed <- c
			c.Loop().QueueInLoop(c.ConnectDestroyed)
		})
	})
	client := dial(t, a)
	conn := accepted(t, conns)
	client.Close()

	select {
	case got := <-removed:
		assert.Same(t, conn, got)
	case <-time.After(5 * time.Second):
		t.Fatal("remove callback not invoked")
	}
	runSync(l, func() {})
	assert.True(t, conn.Disconnected())
}

func TestConnStateString(t *testing.T) {
	assert.Equal(t, "Connecting", reactor.StateConnecting.String())
	assert.Equal(t, "Connected", reactor.StateConnected.String())
	assert.Equal(t, "Disconnecting", reactor.StateDisconnecting.String())
	assert.Equal(t, "Disconnected", reactor.StateDisconnected.String())
	assert.Equal(t, "Unknown", reactor.ConnState(9).String())
}

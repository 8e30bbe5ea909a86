//go:build linux

package reactor_test

import (
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/momentics/hioload-net/api"
	"github.com/momentics/hioload-net/reactor"
)

func TestOneLoopPerThread(t *testing.T) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()

		first, err := reactor.NewEventLoop(reactor.WithLoopLogger(zap.NewNop()))
		if !assert.NoError(t, err) {
			return
		}
		assert.Same(t, first, reactor.LoopOfThread(first.ThreadID()))

		_, err = reactor.NewEventLoop(reactor.WithLoopLogger(zap.NewNop()))
		assert.ErrorIs(t, err, api.ErrLoopExists)

		assert.NoError(t, first.Close())
		assert.Nil(t, reactor.LoopOfThread(first.ThreadID()))

		// the thread is free again
		again, err := reactor.NewEventLoop(reactor.WithLoopLogger(zap.NewNop()))
		if assert.NoError(t, err) {
			assert.NoError(t, again.Close())
		}
	}()
	<-done
}

func TestLoopRejectsForeignThread(t *testing.T) {
	l := startLoop(t)
	assert.False(t, l.InLoopThread())
	assert.ErrorIs(t, l.Loop(), api.ErrNotInLoopThread)
	assert.ErrorIs(t, l.Close(), api.ErrNotInLoopThread)
}

func TestRunInLoopRunsOnOwnerThread(t *testing.T) {
	l := startLoop(t)
	var inLoop bool
	runSync(l, func() { inLoop = l.InLoopThread() })
	assert.True(t, inLoop)

	// on the owner thread RunInLoop is synchronous
	var nested bool
	runSync(l, func() {
		ran := false
		l.RunInLoop(func() { ran = true })
		nested = ran
	})
	assert.True(t, nested)
}

func TestQueueInLoopKeepsOrder(t *testing.T) {
	l := startLoop(t)
	var mu sync.Mutex
	var order []int
	for i := 0; i < 200; i++ {
		i := i
		l.QueueInLoop(func() {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		})
	}
	runSync(l, func() {})
	mu.Lock()
	defer mu.Unlock()
	require.Len(t, order, 200)
	for i, v := range order {
		assert.Equal(t, i, v)
	}
}

func TestQueueInLoopDuringDrainWakes(t *testing.T) {
	// one-second ticks: without a wake the nested task would wait for the timer
	l := startLoop(t)
	done := make(chan struct{})
	start := time.Now()
	l.QueueInLoop(func() {
		l.QueueInLoop(func() { close(done) })
	})
	waitFor(t, done, "nested task")
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestConcurrentQueueInLoop(t *testing.T) {
	l := startLoop(t)
	var n atomic.Int64
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				l.QueueInLoop(func() { n.Add(1) })
			}
		}()
	}
	wg.Wait()
	runSync(l, func() {})
	assert.Equal(t, int64(4000), n.Load())
}

func TestRunAfterFires(t *testing.T) {
	l := startLoop(t, reactor.WithTickInterval(fastTick))
	done := make(chan struct{})
	var inLoop atomic.Bool
	start := time.Now()
	id, err := l.RunAfter(5*fastTick, func() {
		inLoop.Store(l.InLoopThread())
		close(done)
	})
	require.NoError(t, err)
	assert.NotZero(t, id)
	waitFor(t, done, "timer")
	assert.True(t, inLoop.Load())
	// at most one tick early because ticks are aligned to loop creation
	assert.GreaterOrEqual(t, time.Since(start), 4*fastTick)
}

func TestRunEveryAndCancel(t *testing.T) {
	l := startLoop(t, reactor.WithTickInterval(fastTick))
	var n atomic.Int32
	third := make(chan struct{})
	id, err := l.RunEvery(fastTick, func() {
		if n.Add(1) == 3 {
			close(third)
		}
	})
	require.NoError(t, err)
	waitFor(t, third, "three periods")

	l.Cancel(id)
	runSync(l, func() {})
	after := n.Load()
	time.Sleep(10 * fastTick)
	assert.Equal(t, after, n.Load())
}

func TestCancelBeforeFire(t *testing.T) {
	l := startLoop(t, reactor.WithTickInterval(fastTick))
	var fired atomic.Bool
	id, err := l.RunAfter(20*fastTick, func() { fired.Store(true) })
	require.NoError(t, err)
	l.Cancel(id)
	time.Sleep(30 * fastTick)
	assert.False(t, fired.Load())
}

func TestRunAtUsesLoopClock(t *testing.T) {
	mock := clock.NewMock()
	mock.Set(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	l := startLoop(t, reactor.WithTickInterval(fastTick), reactor.WithClock(mock))

	done := make(chan struct{})
	_, err := l.RunAt(mock.Now().Add(3*fastTick), func() { close(done) })
	require.NoError(t, err)
	waitFor(t, done, "RunAt")

	// a time in the past fires on the next tick
	past := make(chan struct{})
	_, err = l.RunAt(mock.Now().Add(-time.Hour), func() { close(past) })
	require.NoError(t, err)
	waitFor(t, past, "past RunAt")

	var stamp time.Time
	runSync(l, func() { stamp = l.PollReturnTime() })
	assert.Equal(t, mock.Now(), stamp)
}

func TestRunAfterTooLong(t *testing.T) {
	l := startLoop(t)
	_, err := l.RunAfter(31*24*time.Hour, func() {})
	assert.ErrorIs(t, err, api.ErrDelayTooLong)
	_, err = l.RunEvery(31*24*time.Hour, func() {})
	assert.ErrorIs(t, err, api.ErrDelayTooLong)
}

func TestQuitFromOtherThread(t *testing.T) {
	th := reactor.NewEventLoopThread("quit", -1, nil, reactor.WithLoopLogger(zap.NewNop()))
	l, err := th.StartLoop()
	require.NoError(t, err)

	stopped := make(chan struct{})
	go func() {
		th.Stop()
		close(stopped)
	}()
	waitFor(t, stopped, "loop exit")
	assert.False(t, l.Looping())
}

func TestThreadInitCallback(t *testing.T) {
	var onThread atomic.Bool
	th := reactor.NewEventLoopThread("init", -1, func(l *reactor.EventLoop) {
		onThread.Store(l.InLoopThread())
	}, reactor.WithLoopLogger(zap.NewNop()))
	l, err := th.StartLoop()
	require.NoError(t, err)
	defer th.Stop()
	assert.True(t, onThread.Load())
	assert.Equal(t, "init", l.Name())
}

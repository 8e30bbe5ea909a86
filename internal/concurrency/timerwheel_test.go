package concurrency_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-net/api"
	"github.com/momentics/hioload-net/internal/concurrency"
)

func advance(w *concurrency.TimerWheel, n int64) {
	for i := int64(0); i < n; i++ {
		w.OnTime()
	}
}

func TestTimerWheelFiresExactly(t *testing.T) {
	delays := []int64{1, 2, 59, 60, 61, 119, 3599, 3600, 3601, 7261, 86399, 86400, 86401, 90061, 2 * 86400}
	starts := []int64{0, 1, 37, 59, 3599, 86399}

	for _, start := range starts {
		for _, d := range delays {
			w := concurrency.NewTimerWheel()
			advance(w, start)
			var firedAt int64 = -1
			_, err := w.RunAfter(d, func() { firedAt = w.Tick() })
			require.NoError(t, err)
			advance(w, d+1)
			assert.Equal(t, start+d, firedAt, "start=%d delay=%d", start, d)
			assert.Equal(t, 0, w.Len())
		}
	}
}

func TestTimerWheelMaxDelay(t *testing.T) {
	w := concurrency.NewTimerWheel()
	advance(w, 12345)
	fired := 0
	_, err := w.RunAfter(concurrency.MaxDelayTicks, func() { fired++ })
	require.NoError(t, err)

	advance(w, concurrency.MaxDelayTicks-1)
	assert.Equal(t, 0, fired)
	w.OnTime()
	assert.Equal(t, 1, fired)
}

func TestTimerWheelRejectsTooLong(t *testing.T) {
	w := concurrency.NewTimerWheel()
	_, err := w.RunAfter(concurrency.MaxDelayTicks+1, func() {})
	assert.ErrorIs(t, err, api.ErrDelayTooLong)
	assert.Equal(t, 0, w.Len())
}

func TestTimerWheelClampsToOneTick(t *testing.T) {
	w := concurrency.NewTimerWheel()
	fired := false
	_, err := w.RunAfter(0, func() { fired = true })
	require.NoError(t, err)
	w.OnTime()
	assert.True(t, fired)
}

func TestTimerWheelPeriodic(t *testing.T) {
	w := concurrency.NewTimerWheel()
	var ticks []int64
	id, err := w.RunEvery(3, func() { ticks = append(ticks, w.Tick()) })
	require.NoError(t, err)

	advance(w, 10)
	assert.Equal(t, []int64{3, 6, 9}, ticks)

	assert.True(t, w.Cancel(id))
	advance(w, 10)
	assert.Len(t, ticks, 3)
	assert.False(t, w.Cancel(id))
}

func TestTimerWheelPeriodicCancelsItself(t *testing.T) {
	w := concurrency.NewTimerWheel()
	count := 0
	var id api.TimerID
	id, _ = w.RunEvery(1, func() {
		count++
		if count == 2 {
			w.Cancel(id)
		}
	})
	advance(w, 5)
	assert.Equal(t, 2, count)
	assert.Equal(t, 0, w.Len())
}

func TestTimerWheelCancelBeforeFire(t *testing.T) {
	w := concurrency.NewTimerWheel()
	fired := false
	id, _ := w.RunAfter(4000, func() { fired = true })
	advance(w, 100)
	require.True(t, w.Cancel(id))
	advance(w, 4000)
	assert.False(t, fired)
}

func TestTimerWheelTaskSchedulesTimer(t *testing.T) {
	w := concurrency.NewTimerWheel()
	var second int64
	_, _ = w.RunAfter(2, func() {
		_, _ = w.RunAfter(1, func() { second = w.Tick() })
	})
	advance(w, 3)
	assert.Equal(t, int64(3), second)
}

func TestTimerWheelSameTickOrder(t *testing.T) {
	w := concurrency.NewTimerWheel()
	var order []int
	for i := 0; i < 5; i++ {
		i := i
		_, _ = w.RunAfter(70, func() { order = append(order, i) })
	}
	advance(w, 70)
	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestTimerWheelIDsUnique(t *testing.T) {
	w := concurrency.NewTimerWheel()
	seen := map[api.TimerID]bool{}
	for i := 0; i < 100; i++ {
		id := w.NewID()
		require.NotZero(t, id)
		require.False(t, seen[id])
		seen[id] = true
	}
}

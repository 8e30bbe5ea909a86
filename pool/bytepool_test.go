package pool_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-net/pool"
)

func TestBytePoolSizeClasses(t *testing.T) {
	bp := pool.NewBytePool()

	b := bp.GetBuffer(100)
	assert.Len(t, b, 100)
	assert.Equal(t, 128, cap(b))

	small := bp.GetBuffer(1)
	assert.Len(t, small, 1)
	assert.Equal(t, 64, cap(small))

	exact := bp.GetBuffer(4096)
	assert.Equal(t, 4096, cap(exact))
}

func TestBytePoolReuse(t *testing.T) {
	bp := pool.NewBytePool()
	b1 := bp.GetBuffer(1000)
	bp.PutBuffer(b1)
	b2 := bp.GetBuffer(900)
	// same class, capacity never shrinks
	require.GreaterOrEqual(t, cap(b2), 1000)
}

func TestBytePoolOversized(t *testing.T) {
	bp := pool.NewBytePool()
	b := bp.GetBuffer(32 << 20)
	require.Len(t, b, 32<<20)
	// not a class size, must not panic
	bp.PutBuffer(b)
	bp.PutBuffer(make([]byte, 100))
}

func TestScratchPool(t *testing.T) {
	base := pool.ScratchOutstanding()
	s := pool.GetScratch()
	require.NotNil(t, s)
	assert.Len(t, s[:], pool.ScratchSize)
	assert.Equal(t, base+1, pool.ScratchOutstanding())
	pool.PutScratch(s)
	assert.Equal(t, base, pool.ScratchOutstanding())
}

func TestSyncPoolTracksBorrows(t *testing.T) {
	created := 0
	sp := pool.NewSyncPool(func() *int {
		created++
		v := created
		return &v
	})
	a, b := sp.Get(), sp.Get()
	assert.NotSame(t, a, b)
	assert.Equal(t, int64(2), sp.Outstanding())
	sp.Put(a)
	sp.Put(b)
	assert.Zero(t, sp.Outstanding())
}

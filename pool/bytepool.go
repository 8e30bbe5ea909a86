// File: pool/bytepool.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package pool

import (
	"math/bits"
	"sync"
)

const (
	minClassShift = 6  // 64 B
	maxClassShift = 24 // 16 MiB
)

// BytePool hands out byte slices from power-of-two size classes.
// Requests above the largest class are allocated directly and dropped on Put.
type BytePool struct {
	classes [maxClassShift - minClassShift + 1]sync.Pool
}

// NewBytePool builds an empty pool.
func NewBytePool() *BytePool {
	bp := &BytePool{}
	for i := range bp.classes {
		size := 1 << (i + minClassShift)
		bp.classes[i].New = func() any {
			b := make([]byte, size)
			return &b
		}
	}
	return bp
}

func classOf(size int) int {
	if size <= 1<<minClassShift {
		return 0
	}
	shift := bits.Len(uint(size - 1))
	if shift > maxClassShift {
		return -1
	}
	return shift - minClassShift
}

// GetBuffer returns a slice with len == size and cap rounded up to the size class.
func (b *BytePool) GetBuffer(size int) []byte {
	c := classOf(size)
	if c < 0 {
		return make([]byte, size)
	}
	p := b.classes[c].Get().(*[]byte)
	return (*p)[:size]
}

// PutBuffer returns a buffer to the pool. Slices whose capacity is not an
// exact size class are left to the GC.
func (b *BytePool) PutBuffer(buf []byte) {
	c := cap(buf)
	if c < 1<<minClassShift || c > 1<<maxClassShift || c&(c-1) != 0 {
		return
	}
	buf = buf[:c]
	b.classes[bits.Len(uint(c))-1-minClassShift].Put(&buf)
}

// File: pool/default.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package pool

import "sync"

// ScratchSize is the size of the overflow region used by vectored socket reads.
const ScratchSize = 64 * 1024

var (
	defaultOnce sync.Once
	defaultPool *BytePool
	scratch     = NewSyncPool(func() *[ScratchSize]byte { return new([ScratchSize]byte) })
)

// Default returns the process-wide BytePool so all buffers share one set of
// size classes instead of fragmenting allocations.
func Default() *BytePool {
	defaultOnce.Do(func() {
		defaultPool = NewBytePool()
	})
	return defaultPool
}

// GetScratch borrows a 64 KiB scratch region.
func GetScratch() *[ScratchSize]byte {
	return scratch.Get()
}

// PutScratch returns a region obtained from GetScratch.
func PutScratch(b *[ScratchSize]byte) {
	scratch.Put(b)
}

// ScratchOutstanding reports scratch regions currently borrowed.
func ScratchOutstanding() int64 {
	return scratch.Outstanding()
}

// File: pool/objpool.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package pool

import (
	"sync"
	"sync/atomic"
)

// SyncPool is a typed sync.Pool that tracks borrowed objects, so a leak on
// a read path shows up in the debug probes.
type SyncPool[T any] struct {
	pool        sync.Pool
	outstanding atomic.Int64
}

// NewSyncPool builds a pool whose misses are served by creator.
func NewSyncPool[T any](creator func() T) *SyncPool[T] {
	sp := &SyncPool[T]{}
	sp.pool.New = func() any { return creator() }
	return sp
}

// Get borrows an object.
func (sp *SyncPool[T]) Get() T {
	sp.outstanding.Add(1)
	return sp.pool.Get().(T)
}

// Put returns an object obtained from Get.
func (sp *SyncPool[T]) Put(obj T) {
	sp.outstanding.Add(-1)
	sp.pool.Put(obj)
}

// Outstanding is the number of objects borrowed and not yet returned.
func (sp *SyncPool[T]) Outstanding() int64 { return sp.outstanding.Load() }

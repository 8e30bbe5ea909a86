// File: reactor/registry.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package reactor

import "sync"

// loops maps kernel thread ids to the loop they own.
var loops = struct {
	sync.Mutex
	byTid map[int]*EventLoop
}{byTid: make(map[int]*EventLoop)}

func registerLoop(tid int, l *EventLoop) bool {
	loops.Lock()
	defer loops.Unlock()
	if _, ok := loops.byTid[tid]; ok {
		return false
	}
	loops.byTid[tid] = l
	return true
}

func unregisterLoop(tid int, l *EventLoop) {
	loops.Lock()
	defer loops.Unlock()
	if loops.byTid[tid] == l {
		delete(loops.byTid, tid)
	}
}

// LoopOfThread returns the loop owned by thread tid, or nil.
func LoopOfThread(tid int) *EventLoop {
	loops.Lock()
	defer loops.Unlock()
	return loops.byTid[tid]
}

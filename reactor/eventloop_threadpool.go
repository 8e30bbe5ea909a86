//go:build linux
// +build linux

// File: reactor/eventloop_threadpool.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// EventLoopThreadPool owns the I/O loops that serve a base loop.

package reactor

import (
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/momentics/hioload-net/api"
	"github.com/momentics/hioload-net/internal/concurrency"
)

// EventLoopThreadPool hands out loops round-robin. All methods run on the
// base loop's thread except AllLoops after Start.
type EventLoopThreadPool struct {
	base       *EventLoop
	name       string
	numThreads int
	pinCPUs    bool
	opts       []LoopOption
	started    bool
	next       int
	threads    []*EventLoopThread
	loops      []*EventLoop
}

// NewEventLoopThreadPool creates an empty pool around base.
func NewEventLoopThreadPool(base *EventLoop, name string, opts ...LoopOption) *EventLoopThreadPool {
	return &EventLoopThreadPool{base: base, name: name, opts: opts}
}

// SetThreadNum sets how many extra loops Start spawns. Zero keeps all work
// on the base loop.
func (p *EventLoopThreadPool) SetThreadNum(n int) {
	if n < 0 {
		n = 0
	}
	p.numThreads = n
}

// SetCPUAffinity pins loop i to CPU i modulo the CPU count.
func (p *EventLoopThreadPool) SetCPUAffinity(on bool) { p.pinCPUs = on }

// Started reports whether Start succeeded.
func (p *EventLoopThreadPool) Started() bool { return p.started }

// Start spawns the loops concurrently and runs initCb on each; with zero
// threads initCb runs on the base loop's thread. On failure every started loop is
// stopped again.
func (p *EventLoopThreadPool) Start(initCb ThreadInitCallback) error {
	if p.started {
		return api.ErrAlreadyStarted
	}
	p.threads = make([]*EventLoopThread, p.numThreads)
	loops := make([]*EventLoop, p.numThreads)
	var g errgroup.Group
	for i := 0; i < p.numThreads; i++ {
		cpu := -1
		if p.pinCPUs {
			cpu = concurrency.CPUForIndex(i)
		}
		th := NewEventLoopThread(fmt.Sprintf("%s%d", p.name, i), cpu, initCb, p.opts...)
		p.threads[i] = th
		i := i
		g.Go(func() error {
			l, err := th.StartLoop()
			loops[i] = l
			return err
		})
	}
	if err := g.Wait(); err != nil {
		p.Stop()
		return err
	}
	p.loops = loops
	p.started = true
	if p.numThreads == 0 && initCb != nil {
		base := p.base
		base.RunInLoop(func() { initCb(base) })
	}
	return nil
}

// NextLoop returns the next loop round-robin, or the base loop when the
// pool has no threads.
func (p *EventLoopThreadPool) NextLoop() *EventLoop {
	if len(p.loops) == 0 {
		return p.base
	}
	l := p.loops[p.next]
	p.next = (p.next + 1) % len(p.loops)
	return l
}

// LoopForHash picks a loop deterministically.
func (p *EventLoopThreadPool) LoopForHash(h uint64) *EventLoop {
	if len(p.loops) == 0 {
		return p.base
	}
	return p.loops[h%uint64(len(p.loops))]
}

// AllLoops returns the pool loops, or just the base loop.
func (p *EventLoopThreadPool) AllLoops() []*EventLoop {
	if len(p.loops) == 0 {
		return []*EventLoop{p.base}
	}
	return append([]*EventLoop(nil), p.loops...)
}

// Stop quits every loop thread and waits for them.
func (p *EventLoopThreadPool) Stop() {
	for _, th := range p.threads {
		if th != nil {
			th.Stop()
		}
	}
	p.threads = nil
	p.loops = nil
	p.started = false
}

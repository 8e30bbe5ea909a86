//go:build linux
// +build linux

// File: reactor/eventloop_thread.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// EventLoopThread runs one EventLoop on a dedicated, locked OS thread.

package reactor

import (
	"sync"

	"go.uber.org/zap"

	"github.com/momentics/hioload-net/internal/concurrency"
)

// ThreadInitCallback runs on the new loop's thread before it starts looping.
type ThreadInitCallback func(l *EventLoop)

// EventLoopThread is started once and stopped once.
type EventLoopThread struct {
	name   string
	cpu    int
	initCb ThreadInitCallback
	opts   []LoopOption

	once sync.Once
	loop *EventLoop
	done chan struct{}
}

// NewEventLoopThread prepares a thread; cpu < 0 leaves it unpinned.
func NewEventLoopThread(name string, cpu int, initCb ThreadInitCallback, opts ...LoopOption) *EventLoopThread {
	return &EventLoopThread{
		name:   name,
		cpu:    cpu,
		initCb: initCb,
		opts:   opts,
		done:   make(chan struct{}),
	}
}

// StartLoop spawns the thread and returns its loop once the loop exists.
// Construction failures are returned and leave no thread behind.
func (t *EventLoopThread) StartLoop() (*EventLoop, error) {
	type result struct {
		loop *EventLoop
		err  error
	}
	ready := make(chan result, 1)
	go func() {
		defer close(t.done)
		opts := append([]LoopOption{WithLoopName(t.name)}, t.opts...)
		cfg := DefaultLoopConfig()
		for _, o := range opts {
			o(cfg)
		}
		if t.cpu >= 0 {
			if err := concurrency.PinCurrentThread(t.cpu); err != nil {
				cfg.Logger.Warn("pin loop thread failed", zap.String("loop", t.name), zap.Error(err))
			}
		}
		loop, err := NewEventLoop(opts...)
		if err != nil {
			ready <- result{err: err}
			return
		}
		if t.initCb != nil {
			t.initCb(loop)
		}
		ready <- result{loop: loop}

		if err := loop.Loop(); err != nil {
			loop.logger.Error("loop exited", zap.Error(err))
		}
		if err := loop.Close(); err != nil {
			loop.logger.Warn("loop close", zap.Error(err))
		}
	}()
	r := <-ready
	t.loop = r.loop
	return r.loop, r.err
}

// Loop returns the started loop, or nil.
func (t *EventLoopThread) Loop() *EventLoop { return t.loop }

// Stop quits the loop and waits for its thread to finish.
func (t *EventLoopThread) Stop() {
	t.once.Do(func() {
		if t.loop == nil {
			return
		}
		select {
		case <-t.done:
			// the loop already quit and released its descriptors
			return
		default:
		}
		t.loop.Quit()
		<-t.done
	})
}

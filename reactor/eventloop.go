//go:build linux
// +build linux

// File: reactor/eventloop.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// EventLoop: one per OS thread. Each iteration waits on the poller,
// dispatches ready channels in kernel order, then drains tasks queued
// from other threads. A timerfd advances the timer wheel.

package reactor

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/eapache/queue"
	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-net/api"
	"github.com/momentics/hioload-net/internal/concurrency"
)

// EventLoop is created on, and bound to, the calling OS thread.
type EventLoop struct {
	name   string
	tid    int
	clock  clock.Clock
	logger *zap.Logger

	poller *poller
	wheel  *concurrency.TimerWheel
	tick   time.Duration

	wakeFd    int
	wakeCh    *Channel
	timerFd   int
	timerCh   *Channel
	active    []*Channel
	pollStamp time.Time
	iteration uint64

	mu             sync.Mutex
	pending        *queue.Queue
	spare          *queue.Queue
	callingPending atomic.Bool

	looping atomic.Bool
	quit    atomic.Bool
	closed  bool
}

var _ api.Executor = (*EventLoop)(nil)
var _ api.Scheduler = (*EventLoop)(nil)

// NewEventLoop creates a loop owned by the calling goroutine's OS thread,
// which stays locked to it until Close. It fails when the thread already
// owns a loop or a kernel descriptor cannot be created.
func NewEventLoop(opts ...LoopOption) (*EventLoop, error) {
	cfg := DefaultLoopConfig()
	for _, o := range opts {
		o(cfg)
	}
	if cfg.Name == "" {
		cfg.Name = "loop-" + uuid.NewString()[:8]
	}

	runtime.LockOSThread()
	tid := unix.Gettid()
	l := &EventLoop{
		name:    cfg.Name,
		tid:     tid,
		clock:   cfg.Clock,
		logger:  cfg.Logger.With(zap.String("loop", cfg.Name)),
		wheel:   concurrency.NewTimerWheel(),
		tick:    cfg.TickInterval,
		wakeFd:  -1,
		timerFd: -1,
		pending: queue.New(),
		spare:   queue.New(),
	}
	if !registerLoop(tid, l) {
		runtime.UnlockOSThread()
		l.logger.Error("another event loop exists in this thread", zap.Int("tid", tid))
		return nil, fmt.Errorf("%w: tid %d", api.ErrLoopExists, tid)
	}

	var err error
	if l.poller, err = newPoller(l.logger); err != nil {
		l.abort()
		return nil, err
	}
	if l.wakeFd, err = createWakeFd(); err != nil {
		l.abort()
		return nil, err
	}
	if l.timerFd, err = createTimerFd(l.tick.Nanoseconds()); err != nil {
		l.abort()
		return nil, err
	}
	l.wakeCh = newChannel(l, l.wakeFd, funcHandler(l.handleWake))
	l.wakeCh.EnableReading()
	l.timerCh = newChannel(l, l.timerFd, funcHandler(l.handleTimer))
	l.timerCh.EnableReading()

	l.logger.Debug("event loop created", zap.Int("tid", tid))
	return l, nil
}

func (l *EventLoop) abort() {
	_ = l.releaseFds()
	unregisterLoop(l.tid, l)
	runtime.UnlockOSThread()
}

func (l *EventLoop) releaseFds() error {
	var err error
	if l.timerFd >= 0 {
		err = multierr.Append(err, unix.Close(l.timerFd))
		l.timerFd = -1
	}
	if l.wakeFd >= 0 {
		err = multierr.Append(err, unix.Close(l.wakeFd))
		l.wakeFd = -1
	}
	if l.poller != nil {
		err = multierr.Append(err, l.poller.close())
		l.poller = nil
	}
	return err
}

// Name returns the loop name.
func (l *EventLoop) Name() string { return l.name }

// ThreadID returns the kernel id of the owner thread.
func (l *EventLoop) ThreadID() int { return l.tid }

// InLoopThread reports whether the caller runs on the owner thread.
func (l *EventLoop) InLoopThread() bool { return unix.Gettid() == l.tid }

// PollReturnTime is the timestamp taken when the last wait returned.
// Owner thread only.
func (l *EventLoop) PollReturnTime() time.Time { return l.pollStamp }

// Iteration counts completed loop iterations. Owner thread only.
func (l *EventLoop) Iteration() uint64 { return l.iteration }

// Clock returns the loop's timestamp source.
func (l *EventLoop) Clock() clock.Clock { return l.clock }

// Logger returns the loop's logger.
func (l *EventLoop) Logger() *zap.Logger { return l.logger }

// Loop runs until Quit. It must be called on the owner thread.
func (l *EventLoop) Loop() error {
	if !l.InLoopThread() {
		return fmt.Errorf("%w: loop %s owned by tid %d, called from %d", api.ErrNotInLoopThread, l.name, l.tid, unix.Gettid())
	}
	if l.closed {
		return api.ErrLoopClosed
	}
	l.looping.Store(true)
	defer l.looping.Store(false)
	l.logger.Debug("event loop start looping")

	for !l.quit.Load() {
		var err error
		l.active, err = l.poller.poll(-1, l.active[:0])
		l.pollStamp = l.clock.Now()
		if err != nil {
			l.logger.Error("poll failed", zap.Error(err))
		}
		l.iteration++

		for _, ch := range l.active {
			ch.handleEvent(l.pollStamp)
		}

		l.doPendingFunctors()
	}

	l.logger.Debug("event loop stop looping")
	return nil
}

// Quit asks the loop to exit after the current iteration. Safe from any thread.
func (l *EventLoop) Quit() {
	l.quit.Store(true)
	if !l.InLoopThread() {
		l.wakeup()
	}
}

// Looping reports whether Loop is running.
func (l *EventLoop) Looping() bool { return l.looping.Load() }

// RunInLoop runs task now when called on the owner thread, otherwise queues it.
func (l *EventLoop) RunInLoop(task func()) {
	if l.InLoopThread() {
		task()
		return
	}
	l.QueueInLoop(task)
}

// QueueInLoop defers task to the pending-task drain. The loop is woken when
// the caller is another thread, or when the loop is already draining so the
// new task is not stranded until the next readiness event.
func (l *EventLoop) QueueInLoop(task func()) {
	l.mu.Lock()
	l.pending.Add(task)
	l.mu.Unlock()

	if !l.InLoopThread() || l.callingPending.Load() {
		l.wakeup()
	}
}

// PendingTasks returns the number of queued tasks.
func (l *EventLoop) PendingTasks() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.pending.Length()
}

func (l *EventLoop) doPendingFunctors() {
	l.callingPending.Store(true)
	l.mu.Lock()
	tasks := l.pending
	l.pending = l.spare
	l.mu.Unlock()

	for tasks.Length() > 0 {
		tasks.Remove().(func())()
	}
	l.spare = tasks
	l.callingPending.Store(false)
}

func (l *EventLoop) wakeup() {
	n, err := writeWake(l.wakeFd)
	if err != nil || n != 8 {
		l.logger.Error("wakeup writes wrong byte count", zap.Int("bytes", n), zap.Error(err))
	}
}

func (l *EventLoop) handleWake(time.Time) {
	if _, n, err := readCounter(l.wakeFd); err != nil || n != 8 {
		l.logger.Error("wakeup reads wrong byte count", zap.Int("bytes", n), zap.Error(err))
	}
}

func (l *EventLoop) handleTimer(time.Time) {
	expirations, n, err := readCounter(l.timerFd)
	if err != nil || n != 8 {
		l.logger.Error("timerfd reads wrong byte count", zap.Int("bytes", n), zap.Error(err))
		return
	}
	for i := uint64(0); i < expirations; i++ {
		l.wheel.OnTime()
	}
}

// ticksFor rounds d up to whole ticks.
func (l *EventLoop) ticksFor(d time.Duration) int64 {
	if d <= 0 {
		return 1
	}
	return int64((d + l.tick - 1) / l.tick)
}

// RunAt schedules task at t, rounded up to the next tick.
func (l *EventLoop) RunAt(t time.Time, task func()) (api.TimerID, error) {
	return l.RunAfter(t.Sub(l.clock.Now()), task)
}

// RunAfter schedules task once after delay. Safe from any thread; the
// insertion itself happens on the owner thread.
func (l *EventLoop) RunAfter(delay time.Duration, task func()) (api.TimerID, error) {
	return l.schedule(l.ticksFor(delay), 0, task)
}

// RunEvery schedules task every interval until cancelled.
func (l *EventLoop) RunEvery(interval time.Duration, task func()) (api.TimerID, error) {
	ticks := l.ticksFor(interval)
	return l.schedule(ticks, ticks, task)
}

func (l *EventLoop) schedule(delay, interval int64, task func()) (api.TimerID, error) {
	if err := concurrency.CheckDelay(delay); err != nil {
		return 0, err
	}
	id := l.wheel.NewID()
	l.RunInLoop(func() {
		if err := l.wheel.Add(id, delay, interval, task); err != nil {
			l.logger.Error("timer rejected", zap.Uint64("timer", uint64(id)), zap.Error(err))
		}
	})
	return id, nil
}

// Cancel cancels a timer. A task already popped for execution still runs.
func (l *EventLoop) Cancel(id api.TimerID) {
	l.RunInLoop(func() { l.wheel.Cancel(id) })
}

// UpdateChannel pushes a channel's interest mask to the poller.
func (l *EventLoop) UpdateChannel(ch *Channel) {
	l.assertInLoopThread("UpdateChannel")
	l.poller.updateChannel(ch)
}

// RemoveChannel forgets a channel.
func (l *EventLoop) RemoveChannel(ch *Channel) {
	l.assertInLoopThread("RemoveChannel")
	l.poller.removeChannel(ch)
}

// HasChannel reports whether ch is registered with this loop's poller.
func (l *EventLoop) HasChannel(ch *Channel) bool {
	l.assertInLoopThread("HasChannel")
	return l.poller.hasChannel(ch)
}

func (l *EventLoop) assertInLoopThread(op string) {
	if !l.InLoopThread() {
		l.logger.DPanic("called off the loop thread",
			zap.String("op", op),
			zap.Int("owner", l.tid),
			zap.Int("caller", unix.Gettid()))
	}
}

// maxCloseDrains bounds Close against tasks that keep requeueing themselves.
const maxCloseDrains = 1024

// Close releases the loop's descriptors, unregisters it from its thread and
// unlocks the thread. It must run on the owner thread after Loop returned.
func (l *EventLoop) Close() error {
	if l.closed {
		return nil
	}
	if !l.InLoopThread() {
		return api.ErrNotInLoopThread
	}
	l.closed = true
	// tasks queued by the last drain (ConnectDestroyed after a close) still
	// own descriptors, so keep draining
	for round := 0; l.PendingTasks() > 0; round++ {
		if round == maxCloseDrains {
			l.logger.Warn("dropping tasks queued during close", zap.Int("pending", l.PendingTasks()))
			break
		}
		l.doPendingFunctors()
	}
	l.wakeCh.DisableAll()
	l.wakeCh.Remove()
	l.timerCh.DisableAll()
	l.timerCh.Remove()
	err := l.releaseFds()
	unregisterLoop(l.tid, l)
	runtime.UnlockOSThread()
	return err
}

func logFd(fd int) zap.Field { return zap.Int("fd", fd) }

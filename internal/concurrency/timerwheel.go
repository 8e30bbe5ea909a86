// File: internal/concurrency/timerwheel.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Hierarchical timing wheel with second/minute/hour/day levels advanced
// once per second by the owning event loop.

package concurrency

import (
	"sync/atomic"

	"github.com/momentics/hioload-net/api"
)

const (
	secondSlots = 60
	minuteSlots = 60
	hourSlots   = 24
	daySlots    = 30

	ticksPerMinute = secondSlots
	ticksPerHour   = ticksPerMinute * minuteSlots
	ticksPerDay    = ticksPerHour * hourSlots

	// MaxDelayTicks is the longest delay the wheel accepts: 30 days of one-second ticks.
	MaxDelayTicks = ticksPerDay * daySlots
)

const (
	levelSecond = iota
	levelMinute
	levelHour
	levelDay
)

type timerEntry struct {
	id        api.TimerID
	expire    int64 // absolute tick
	interval  int64 // 0 for one-shot
	task      func()
	cancelled bool
}

// TimerWheel is driven from a single goroutine; only NewID may be called
// concurrently. Entries carry their absolute expiry tick and cascade from
// coarse to fine levels at period boundaries, so a timer added with delay d
// at tick t fires during the advance to tick t+d.
type TimerWheel struct {
	tick   int64
	levels [4][][]*timerEntry
	index  map[api.TimerID]*timerEntry
	lastID atomic.Uint64
}

// NewTimerWheel returns an empty wheel at tick 0.
func NewTimerWheel() *TimerWheel {
	w := &TimerWheel{index: make(map[api.TimerID]*timerEntry)}
	w.levels[levelSecond] = make([][]*timerEntry, secondSlots)
	w.levels[levelMinute] = make([][]*timerEntry, minuteSlots)
	w.levels[levelHour] = make([][]*timerEntry, hourSlots)
	w.levels[levelDay] = make([][]*timerEntry, daySlots)
	return w
}

// NewID reserves a timer id. Safe for concurrent use.
func (w *TimerWheel) NewID() api.TimerID {
	return api.TimerID(w.lastID.Add(1))
}

// Tick returns the number of advances so far.
func (w *TimerWheel) Tick() int64 { return w.tick }

// Len returns the number of live timers.
func (w *TimerWheel) Len() int { return len(w.index) }

// RunAfter schedules task once after delay ticks.
func (w *TimerWheel) RunAfter(delay int64, task func()) (api.TimerID, error) {
	id := w.NewID()
	return id, w.Add(id, delay, 0, task)
}

// RunEvery schedules task every interval ticks, first after one interval.
func (w *TimerWheel) RunEvery(interval int64, task func()) (api.TimerID, error) {
	id := w.NewID()
	return id, w.Add(id, interval, interval, task)
}

// CheckDelay reports whether delay ticks can be scheduled.
func CheckDelay(delay int64) error {
	if delay > MaxDelayTicks {
		return api.ErrDelayTooLong
	}
	return nil
}

// Add inserts a timer under a previously reserved id. Delays below one tick
// are rounded up to one. A positive interval makes the timer periodic.
func (w *TimerWheel) Add(id api.TimerID, delay, interval int64, task func()) error {
	if err := CheckDelay(delay); err != nil {
		return err
	}
	if interval > MaxDelayTicks {
		return api.ErrDelayTooLong
	}
	if delay < 1 {
		delay = 1
	}
	if interval < 0 {
		interval = 0
	}
	e := &timerEntry{id: id, expire: w.tick + delay, interval: interval, task: task}
	w.index[id] = e
	w.place(e)
	return nil
}

// Cancel removes a timer. Cancelling an unknown or already fired one-shot id
// is a no-op; a periodic timer cancelled from its own task is not re-armed.
func (w *TimerWheel) Cancel(id api.TimerID) bool {
	e, ok := w.index[id]
	if !ok {
		return false
	}
	e.cancelled = true
	delete(w.index, id)
	return true
}

func (w *TimerWheel) place(e *timerEntry) {
	r := e.expire - w.tick
	var level, slot int64
	switch {
	case r < ticksPerMinute:
		level, slot = levelSecond, e.expire%secondSlots
	case r < ticksPerHour:
		level, slot = levelMinute, (e.expire/ticksPerMinute)%minuteSlots
	case r < ticksPerDay:
		level, slot = levelHour, (e.expire/ticksPerHour)%hourSlots
	default:
		level, slot = levelDay, (e.expire/ticksPerDay)%daySlots
	}
	w.levels[level][slot] = append(w.levels[level][slot], e)
}

func (w *TimerWheel) take(level int, slot int64) []*timerEntry {
	list := w.levels[level][slot]
	w.levels[level][slot] = nil
	return list
}

func (w *TimerWheel) cascade(level int, slot int64) {
	for _, e := range w.take(level, slot) {
		if !e.cancelled {
			w.place(e)
		}
	}
}

// OnTime advances the wheel by one tick and runs every task due at the new
// tick. Tasks may add and cancel timers.
func (w *TimerWheel) OnTime() {
	w.tick++
	t := w.tick
	if t%ticksPerDay == 0 {
		w.cascade(levelDay, (t/ticksPerDay)%daySlots)
	}
	if t%ticksPerHour == 0 {
		w.cascade(levelHour, (t/ticksPerHour)%hourSlots)
	}
	if t%ticksPerMinute == 0 {
		w.cascade(levelMinute, (t/ticksPerMinute)%minuteSlots)
	}

	for _, e := range w.take(levelSecond, t%secondSlots) {
		if e.cancelled {
			continue
		}
		if e.interval == 0 {
			delete(w.index, e.id)
			e.task()
			continue
		}
		e.task()
		if !e.cancelled {
			e.expire = w.tick + e.interval
			w.place(e)
		}
	}
}

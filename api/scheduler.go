// Package api
// Author: momentics
//
// Scheduler contract for second-granularity timed job execution on a loop.

package api

import "time"

// TimerID identifies a scheduled task so it can be cancelled.
// The zero value never refers to a live timer.
type TimerID uint64

// Scheduler abstracts deferred and periodic execution on an event loop.
type Scheduler interface {
	// RunAt schedules fn at the absolute time t.
	RunAt(t time.Time, fn func()) (TimerID, error)

	// RunAfter schedules fn once after delay.
	RunAfter(delay time.Duration, fn func()) (TimerID, error)

	// RunEvery schedules fn repeatedly every interval.
	RunEvery(interval time.Duration, fn func()) (TimerID, error)

	// Cancel cancels a previously scheduled callback.
	Cancel(id TimerID)
}

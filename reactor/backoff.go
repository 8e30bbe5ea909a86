// File: reactor/backoff.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package reactor

import "time"

const (
	// InitRetryDelay is the first reconnect delay.
	InitRetryDelay = time.Second
	// MaxRetryDelay caps the doubling.
	MaxRetryDelay = 30 * time.Second
)

// Backoff yields exponentially growing delays. The zero value uses
// InitRetryDelay and MaxRetryDelay.
type Backoff struct {
	Initial time.Duration
	Max     time.Duration
	current time.Duration
}

// Next returns the delay to wait now and doubles the following one.
func (b *Backoff) Next() time.Duration {
	initial, max := b.Initial, b.Max
	if initial <= 0 {
		initial = InitRetryDelay
	}
	if max <= 0 {
		max = MaxRetryDelay
	}
	if b.current == 0 {
		b.current = initial
	}
	d := b.current
	b.current *= 2
	if b.current > max {
		b.current = max
	}
	return d
}

// Reset starts the sequence over.
func (b *Backoff) Reset() { b.current = 0 }

// File: reactor/options.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package reactor

import (
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/momentics/hioload-net/logging"
)

// LoopConfig holds event loop construction parameters.
type LoopConfig struct {
	Name         string
	TickInterval time.Duration // timer wheel resolution
	Clock        clock.Clock   // source of poll and RunAt timestamps
	Logger       *zap.Logger
}

// DefaultLoopConfig returns the one-second wheel on the wall clock.
func DefaultLoopConfig() *LoopConfig {
	return &LoopConfig{
		TickInterval: time.Second,
		Clock:        clock.New(),
		Logger:       logging.Named("reactor"),
	}
}

// LoopOption customizes loop construction.
type LoopOption func(*LoopConfig)

// WithLoopName names the loop in logs.
func WithLoopName(name string) LoopOption {
	return func(c *LoopConfig) { c.Name = name }
}

// WithClock replaces the timestamp source, typically with clock.NewMock in tests.
func WithClock(clk clock.Clock) LoopOption {
	return func(c *LoopConfig) { c.Clock = clk }
}

// WithLoopLogger sets the loop's logger.
func WithLoopLogger(l *zap.Logger) LoopOption {
	return func(c *LoopConfig) { c.Logger = l }
}

// WithTickInterval changes the wheel resolution. Delays are rounded up to
// whole ticks and the wheel still holds at most 30 days' worth of
// one-second ticks, so a finer tick shortens the longest schedulable delay.
func WithTickInterval(d time.Duration) LoopOption {
	return func(c *LoopConfig) {
		if d > 0 {
			c.TickInterval = d
		}
	}
}

// File: client/options.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package client

import (
	"time"

	"go.uber.org/zap"

	"github.com/momentics/hioload-net/reactor"
)

// Config holds client parameters.
type Config struct {
	Name          string        // connection name prefix; generated when empty
	Retry         bool          // reconnect after an established connection drops
	TCPNoDelay    bool          // disable Nagle on the connection
	HighWaterMark int           // queued-output threshold
	RetryInitial  time.Duration // first connect retry delay
	RetryMax      time.Duration // retry delay cap
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		HighWaterMark: reactor.DefaultHighWaterMark,
		RetryInitial:  reactor.InitRetryDelay,
		RetryMax:      reactor.MaxRetryDelay,
	}
}

// ClientOption customizes client initialization.
type ClientOption func(*Client)

// WithName sets the connection name prefix.
func WithName(name string) ClientOption {
	return func(c *Client) { c.cfg.Name = name }
}

// WithRetry reconnects after an established connection is lost.
func WithRetry(on bool) ClientOption {
	return func(c *Client) { c.cfg.Retry = on }
}

// WithTCPNoDelay disables Nagle on the connection.
func WithTCPNoDelay(on bool) ClientOption {
	return func(c *Client) { c.cfg.TCPNoDelay = on }
}

// WithHighWaterMark sets the output threshold.
func WithHighWaterMark(mark int) ClientOption {
	return func(c *Client) { c.cfg.HighWaterMark = mark }
}

// WithRetryDelays bounds the connect backoff.
func WithRetryDelays(initial, max time.Duration) ClientOption {
	return func(c *Client) {
		c.cfg.RetryInitial = initial
		c.cfg.RetryMax = max
	}
}

// WithLogger overrides the client logger.
func WithLogger(l *zap.Logger) ClientOption {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// File: server/options.go
// Package server defines functional options for the Server facade.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import (
	"go.uber.org/zap"

	"github.com/momentics/hioload-net/reactor"
)

// ServerOption customizes server initialization.
type ServerOption func(*Server)

// WithName sets the prefix of connection names.
func WithName(name string) ServerOption {
	return func(s *Server) {
		s.cfg.Name = name
	}
}

// WithReusePort enables SO_REUSEPORT so several servers share one port.
func WithReusePort(on bool) ServerOption {
	return func(s *Server) {
		s.cfg.ReusePort = on
	}
}

// WithThreadNum sets the number of I/O loops.
func WithThreadNum(n int) ServerOption {
	return func(s *Server) {
		s.cfg.ThreadNum = n
	}
}

// WithHighWaterMark sets the per-connection output threshold.
func WithHighWaterMark(mark int) ServerOption {
	return func(s *Server) {
		s.cfg.HighWaterMark = mark
	}
}

// WithTCPNoDelay disables Nagle on accepted connections.
func WithTCPNoDelay(on bool) ServerOption {
	return func(s *Server) {
		s.cfg.TCPNoDelay = on
	}
}

// WithCPUAffinity pins I/O loops to CPUs.
func WithCPUAffinity(on bool) ServerOption {
	return func(s *Server) {
		s.cfg.CPUAffinity = on
	}
}

// WithLogger overrides the server logger.
func WithLogger(l *zap.Logger) ServerOption {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithLoopOptions passes options to every I/O loop the server spawns.
func WithLoopOptions(opts ...reactor.LoopOption) ServerOption {
	return func(s *Server) {
		s.loopOpts = append(s.loopOpts, opts...)
	}
}

// WithConfig replaces the whole configuration; later options still apply.
func WithConfig(cfg *Config) ServerOption {
	return func(s *Server) {
		if cfg != nil {
			c := *cfg
			s.cfg = &c
		}
	}
}

// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package reactor provides the one-loop-per-thread epoll reactor: event
// loops with their poller and timers, channels, TCP connections, the
// acceptor and connector, and loop thread pools.
//
// Every object except EventLoop's cross-thread entry points (RunInLoop,
// QueueInLoop, RunAfter/RunEvery/RunAt, Cancel, Quit) and the Connection
// methods documented as thread-safe must be used on its owning loop thread.
package reactor

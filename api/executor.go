// Package api
// Author: momentics
//
// Executor contract for marshalling work onto an owner loop thread.

package api

// Executor runs tasks on the thread that owns it.
type Executor interface {
	// RunInLoop runs task immediately when called on the owner thread,
	// otherwise queues it.
	RunInLoop(task func())

	// QueueInLoop always defers task to the next pending-task drain.
	QueueInLoop(task func())

	// InLoopThread reports whether the caller is on the owner thread.
	InLoopThread() bool
}

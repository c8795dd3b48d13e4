package adapter

import "errors"

var (
	// ErrClosed is returned when submitting to a closed adapter, and
	// is the result of operations still queued at close.
	ErrClosed = errors.New("adapter: closed")

	// ErrCancelled is the result of an operation cancelled while
	// queued.
	ErrCancelled = errors.New("adapter: operation cancelled")

	// ErrQueueFull is returned when the operation queue is at
	// capacity. The submitter decides whether to retry or shed load.
	ErrQueueFull = errors.New("adapter: operation queue full")

	// ErrNotDone is returned by Result before the operation has
	// finished.
	ErrNotDone = errors.New("adapter: operation not finished")
)

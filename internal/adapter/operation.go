package adapter

import (
	"context"
	"sync/atomic"
	"time"
)

// Kind identifies what an operation does to its command.
type Kind uint8

const (
	// KindGet queries the command and decodes the payload.
	KindGet Kind = iota

	// KindSet writes a value to the command.
	KindSet

	// KindInvoke fires a side-effect command with no value.
	KindInvoke
)

// String returns the lowercase verb used in topics and logs.
func (k Kind) String() string {
	switch k {
	case KindGet:
		return "get"
	case KindSet:
		return "set"
	case KindInvoke:
		return "invoke"
	default:
		return "unknown"
	}
}

// Operation lifecycle states.
const (
	opQueued int32 = iota
	opRunning
	opCancelled
	opDone
)

// Pending is a submitted operation. It completes exactly once: with the
// exchange outcome, with ErrCancelled, or with ErrClosed if the adapter
// shuts down first.
type Pending struct {
	id        string
	path      string
	kind      Kind
	value     any
	submitted time.Time

	adapter *Adapter
	state   atomic.Int32
	done    chan struct{}

	// result and err are written before done closes and must only be
	// read after it.
	result any
	err    error
}

// ID returns the operation's identifier.
func (p *Pending) ID() string { return p.id }

// Path returns the dotted command path.
func (p *Pending) Path() string { return p.path }

// Kind returns the operation kind.
func (p *Pending) Kind() Kind { return p.kind }

// Done is closed when the operation finishes for any reason.
func (p *Pending) Done() <-chan struct{} { return p.done }

// Result returns the outcome, or ErrNotDone while the operation is
// still queued or on the wire.
func (p *Pending) Result() (any, error) {
	select {
	case <-p.done:
		return p.result, p.err
	default:
		return nil, ErrNotDone
	}
}

// Await blocks until the operation finishes or ctx is done. The
// operation itself keeps running if ctx expires first; cancel it
// explicitly to take it out of the queue.
func (p *Pending) Await(ctx context.Context) (any, error) {
	select {
	case <-p.done:
		return p.result, p.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Cancel removes the operation from the queue. It reports whether the
// cancellation won: false means the operation already reached the wire
// or finished.
func (p *Pending) Cancel() bool {
	if !p.state.CompareAndSwap(opQueued, opCancelled) {
		return false
	}
	p.adapter.cancelled.Add(1)
	p.finish(nil, ErrCancelled)
	return true
}

// finish records the outcome and releases waiters. Called exactly once
// per operation.
func (p *Pending) finish(result any, err error) {
	p.result = result
	p.err = err
	close(p.done)
}

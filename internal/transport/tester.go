package transport

import (
	"fmt"
	"sync"
	"time"

	"github.com/benchrig/benchrig-core/internal/driver"
)

// Exchange is one scripted request/response pair. Respond may carry
// several lines in a single burst; reads consume them one terminator at
// a time. An empty Respond models a device that accepts the write
// silently.
type Exchange struct {
	// Expect is the exact payload the next Write must carry.
	Expect string

	// Respond is queued for subsequent Reads once Expect matches.
	Respond string
}

// Tester is an in-memory transport driven by an ordered exchange
// script. Writes are matched against the script in order; any deviation
// fails the exchange immediately, so a test asserts the full wire
// conversation just by running it.
//
// A Read with nothing buffered returns ErrTimeout without waiting,
// which stands in for a silent device.
type Tester struct {
	mu     sync.Mutex
	script []Exchange
	next   int
	buf    lineBuffer
	closed bool
}

var _ driver.Transport = (*Tester)(nil)

// NewTester builds a Tester for the given script.
func NewTester(script []Exchange) *Tester {
	copied := make([]Exchange, len(script))
	copy(copied, script)
	return &Tester{script: copied}
}

// Read serves buffered response bytes. The timeout is not waited out:
// an empty buffer means the scripted device has nothing to say, which
// is exactly the silence a timeout guards against.
func (t *Tester) Read(terminator []byte, _ time.Duration) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil, ErrClosed
	}

	if len(terminator) == 0 {
		by, ok := t.buf.takeByte()
		if !ok {
			return nil, fmt.Errorf("%w: script has no byte to serve", ErrTimeout)
		}
		return []byte{by}, nil
	}

	line, ok := t.buf.takeLine(terminator)
	if !ok {
		if t.buf.len() > 0 {
			return nil, fmt.Errorf("%w: buffered %d bytes carry no terminator", ErrTimeout, t.buf.len())
		}
		return nil, fmt.Errorf("%w: script has no line to serve", ErrTimeout)
	}
	return line, nil
}

// Write matches p against the next scripted exchange and queues its
// response.
func (t *Tester) Write(p []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return ErrClosed
	}
	if t.next >= len(t.script) {
		return fmt.Errorf("%w: got %q after %d exchanges", ErrExhausted, p, len(t.script))
	}

	ex := t.script[t.next]
	if string(p) != ex.Expect {
		return fmt.Errorf("%w: got %q, want %q (exchange %d)", ErrMismatch, p, ex.Expect, t.next)
	}
	t.next++
	t.buf.push([]byte(ex.Respond))
	return nil
}

// Close marks the tester closed.
func (t *Tester) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

// Remaining reports how many scripted exchanges have not been consumed.
// Tests assert zero to prove the full conversation ran.
func (t *Tester) Remaining() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.script) - t.next
}

// Buffered reports unconsumed response bytes, useful for asserting a
// protocol drained everything it was served.
func (t *Tester) Buffered() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.buf.len()
}

package transport

import "errors"

var (
	// ErrTimeout indicates no terminator arrived within the read
	// deadline. Protocol engines surface this when a device stays
	// silent or a busy handshake never resolves.
	ErrTimeout = errors.New("transport: read timeout")

	// ErrClosed indicates the transport has been closed.
	ErrClosed = errors.New("transport: closed")

	// ErrOpenFailed indicates the port or connection could not be
	// established.
	ErrOpenFailed = errors.New("transport: open failed")

	// ErrMismatch indicates a Tester received a write that differs
	// from the next scripted exchange.
	ErrMismatch = errors.New("transport: unexpected write")

	// ErrExhausted indicates a Tester received a write after its
	// script ran out.
	ErrExhausted = errors.New("transport: script exhausted")
)

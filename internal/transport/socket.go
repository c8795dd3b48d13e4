package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/benchrig/benchrig-core/internal/driver"
)

const (
	// defaultDialTimeout is the maximum time to wait for the initial
	// connection.
	defaultDialTimeout = 10 * time.Second

	// defaultWriteTimeout bounds socket writes; instrument requests
	// are a handful of bytes, so anything slower is a dead peer.
	defaultWriteTimeout = 5 * time.Second

	// socketChunkSize is the read chunk for draining the connection.
	socketChunkSize = 256
)

// SocketConfig holds TCP connection parameters for ethernet-attached
// instruments and terminal servers.
type SocketConfig struct {
	// Address is the host:port to dial.
	Address string

	// DialTimeout is the maximum time to wait for the connection.
	// Default: 10 seconds.
	DialTimeout time.Duration

	// WriteTimeout bounds individual writes. Default: 5 seconds.
	WriteTimeout time.Duration
}

// Socket is a TCP transport.
type Socket struct {
	conn         net.Conn
	writeTimeout time.Duration

	mu     sync.Mutex
	buf    lineBuffer
	closed bool

	closeOnce sync.Once
	closeErr  error
}

var _ driver.Transport = (*Socket)(nil)

// DialSocket connects to the instrument at cfg.Address.
func DialSocket(ctx context.Context, cfg SocketConfig) (*Socket, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("%w: no address", ErrOpenFailed)
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = defaultDialTimeout
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}

	if ctx == nil {
		ctx = context.Background()
	}
	dialCtx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
	defer cancel()

	var dialer net.Dialer
	conn, err := dialer.DialContext(dialCtx, "tcp", cfg.Address)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %w", ErrOpenFailed, cfg.Address, err)
	}

	return &Socket{conn: conn, writeTimeout: cfg.WriteTimeout}, nil
}

// Read accumulates bytes until terminator arrives or timeout elapses.
// An empty terminator reads exactly one byte. Bytes received past the
// terminator stay buffered for the next call.
func (s *Socket) Read(terminator []byte, timeout time.Duration) ([]byte, error) {
	deadline := time.Now().Add(timeout)
	chunk := make([]byte, socketChunkSize)

	for {
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return nil, ErrClosed
		}
		if len(terminator) == 0 {
			if by, ok := s.buf.takeByte(); ok {
				s.mu.Unlock()
				return []byte{by}, nil
			}
		} else if line, ok := s.buf.takeLine(terminator); ok {
			s.mu.Unlock()
			return line, nil
		}
		s.mu.Unlock()

		if !time.Now().Before(deadline) {
			return nil, fmt.Errorf("%w: no terminator within %v", ErrTimeout, timeout)
		}

		if err := s.conn.SetReadDeadline(deadline); err != nil {
			return nil, fmt.Errorf("transport: socket set deadline: %w", err)
		}
		n, err := s.conn.Read(chunk)
		if n > 0 {
			s.mu.Lock()
			s.buf.push(chunk[:n])
			s.mu.Unlock()
			continue
		}
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				return nil, fmt.Errorf("%w: no terminator within %v", ErrTimeout, timeout)
			}
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if closed {
				return nil, ErrClosed
			}
			return nil, fmt.Errorf("transport: socket read: %w", err)
		}
	}
}

// Write sends the full payload.
func (s *Socket) Write(p []byte) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.mu.Unlock()

	if err := s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout)); err != nil {
		return fmt.Errorf("transport: socket set deadline: %w", err)
	}
	if _, err := s.conn.Write(p); err != nil {
		return fmt.Errorf("transport: socket write: %w", err)
	}
	return nil
}

// Close releases the connection. Safe to call multiple times, and
// unblocks any pending Read.
func (s *Socket) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		s.closeErr = s.conn.Close()
	})
	return s.closeErr
}

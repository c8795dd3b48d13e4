package transport

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/tarm/serial"

	"github.com/benchrig/benchrig-core/internal/driver"
)

// Default serial port parameters.
const (
	// defaultBaud matches the rate most bench instruments ship with.
	defaultBaud = 9600

	// defaultDataBits is the character size in bits.
	defaultDataBits = 8

	// defaultPollInterval bounds how long a single port read blocks,
	// which in turn bounds how late a Close or deadline is noticed.
	defaultPollInterval = 20 * time.Millisecond

	// serialChunkSize is the read chunk for draining the port.
	serialChunkSize = 256
)

// SerialConfig holds serial port parameters.
type SerialConfig struct {
	// Device is the port path, e.g. "/dev/ttyUSB0".
	Device string

	// Baud is the line rate. Default: 9600.
	Baud int

	// DataBits is the character size, 5 to 8. Default: 8.
	DataBits int

	// Parity is "none", "odd" or "even". Default: "none".
	Parity string

	// StopBits is 1 or 2. Default: 1.
	StopBits int

	// PollInterval bounds individual port reads while waiting for a
	// terminator. Default: 20ms.
	PollInterval time.Duration
}

// Serial is an RS-232 transport over github.com/tarm/serial.
type Serial struct {
	port *serial.Port
	poll time.Duration

	// mu guards buf and closed. The instrument lock already
	// serialises exchanges; this guard keeps Close safe alongside a
	// blocked Read.
	mu     sync.Mutex
	buf    lineBuffer
	closed bool

	closeOnce sync.Once
	closeErr  error
}

var _ driver.Transport = (*Serial)(nil)

// OpenSerial opens the port described by cfg.
func OpenSerial(cfg SerialConfig) (*Serial, error) {
	if cfg.Device == "" {
		return nil, fmt.Errorf("%w: no device path", ErrOpenFailed)
	}
	if cfg.Baud == 0 {
		cfg.Baud = defaultBaud
	}
	if cfg.DataBits == 0 {
		cfg.DataBits = defaultDataBits
	}
	if cfg.DataBits < 5 || cfg.DataBits > 8 {
		return nil, fmt.Errorf("%w: data bits %d out of range", ErrOpenFailed, cfg.DataBits)
	}
	if cfg.StopBits == 0 {
		cfg.StopBits = 1
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}

	parity, err := parseParity(cfg.Parity)
	if err != nil {
		return nil, err
	}
	stopBits, err := parseStopBits(cfg.StopBits)
	if err != nil {
		return nil, err
	}

	port, err := serial.OpenPort(&serial.Config{
		Name:        cfg.Device,
		Baud:        cfg.Baud,
		Size:        byte(cfg.DataBits),
		Parity:      parity,
		StopBits:    stopBits,
		ReadTimeout: cfg.PollInterval,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrOpenFailed, cfg.Device, err)
	}

	return &Serial{port: port, poll: cfg.PollInterval}, nil
}

func parseParity(s string) (serial.Parity, error) {
	switch s {
	case "", "none":
		return serial.ParityNone, nil
	case "odd":
		return serial.ParityOdd, nil
	case "even":
		return serial.ParityEven, nil
	default:
		return 0, fmt.Errorf("%w: unknown parity %q", ErrOpenFailed, s)
	}
}

func parseStopBits(n int) (serial.StopBits, error) {
	switch n {
	case 1:
		return serial.Stop1, nil
	case 2:
		return serial.Stop2, nil
	default:
		return 0, fmt.Errorf("%w: stop bits %d out of range", ErrOpenFailed, n)
	}
}

// Read accumulates bytes until terminator arrives or timeout elapses.
// An empty terminator reads exactly one byte. Bytes received past the
// terminator stay buffered for the next call.
func (s *Serial) Read(terminator []byte, timeout time.Duration) ([]byte, error) {
	deadline := time.Now().Add(timeout)
	chunk := make([]byte, serialChunkSize)

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

		// The port read returns within PollInterval. A timed-out
		// tarm read surfaces as io.EOF with zero bytes.
		n, err := s.port.Read(chunk)
		if n > 0 {
			s.mu.Lock()
			s.buf.push(chunk[:n])
			s.mu.Unlock()
			continue
		}
		if err != nil && !errors.Is(err, io.EOF) {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if closed {
				return nil, ErrClosed
			}
			return nil, fmt.Errorf("transport: serial read: %w", err)
		}
	}
}

// Write sends the full payload to the port.
func (s *Serial) Write(p []byte) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.mu.Unlock()

	n, err := s.port.Write(p)
	if err != nil {
		return fmt.Errorf("transport: serial write: %w", err)
	}
	if n != len(p) {
		return fmt.Errorf("transport: serial write: short write %d of %d bytes", n, len(p))
	}
	return nil
}

// Close releases the port. Safe to call multiple times.
func (s *Serial) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		s.closeErr = s.port.Close()
	})
	return s.closeErr
}

package protocol

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/benchrig/benchrig-core/internal/driver"
	"github.com/benchrig/benchrig-core/internal/transport"
)

// Default framing parameters.
const (
	// defaultTerminator delimits response lines for most RS-232
	// instruments.
	defaultTerminator = "\r"

	// defaultTimeout is the per-phase read budget.
	defaultTimeout = time.Second
)

// StatusSpec declares an acknowledge line that precedes the payload.
//
// With OK set, the stripped line must equal OK exactly; any code listed
// in Codes becomes a DeviceError and anything else fails as a decode
// error. This is the ACK/NAK shape.
//
// With OK empty, the line is a status number where "0" means success
// and any other integer becomes a DeviceError carrying that code. This
// is the acknowledge-digit shape.
type StatusSpec struct {
	OK    string
	Codes map[string]string
}

// HandshakeSpec declares single-byte busy/ready flow control sent
// before the response: Busy bytes are discarded while the device
// settles and Ready hands over to the response proper. A device that
// stays busy past the exchange timeout fails with the transport's
// timeout error.
type HandshakeSpec struct {
	Busy  byte
	Ready byte
}

// TrailerSpec declares a status line following the payload: OK closes
// the exchange, an ErrPrefix line carries a device error code, anything
// else fails as a decode error. Trailers apply to query exchanges only.
type TrailerSpec struct {
	OK        string
	ErrPrefix string
	Codes     map[string]string
}

// VerifySpec declares a follow-up query of the device's error register
// after each exchange. Request is written raw, the handshake (when
// configured) runs again, and the answer line is a status number where
// "0" means success.
type VerifySpec struct {
	Request string
	Codes   map[string]string
}

// Config declares one device dialect for NewSerial.
//
// Templates render the complete request including its terminator;
// Terminator only delimits response lines. At least one template is
// required; a protocol without a read template rejects queries and one
// without a write template rejects sets.
type Config struct {
	// ReadTemplate frames query requests. Must not reference {value}.
	ReadTemplate string

	// WriteTemplate frames set requests.
	WriteTemplate string

	// Terminator delimits response lines. Default: "\r".
	Terminator string

	// Timeout is the read budget per response phase. Default: 1s.
	Timeout time.Duration

	// Echo declares that the device echoes each query request line
	// before answering. The echo must match the request.
	Echo bool

	// Handshake declares busy/ready flow control.
	Handshake *HandshakeSpec

	// Status declares an acknowledge line before the payload.
	Status *StatusSpec

	// Enquiry, when set, is written raw after a successful status
	// check to solicit the payload line.
	Enquiry string

	// Trailer declares a status line after the payload.
	Trailer *TrailerSpec

	// Verify declares a post-exchange error register query.
	Verify *VerifySpec
}

// Serial frames exchanges for line-oriented instrument dialects.
type Serial struct {
	read       *Template
	write      *Template
	terminator []byte
	timeout    time.Duration
	echo       bool
	handshake  *HandshakeSpec
	status     *StatusSpec
	enquiry    string
	trailer    *TrailerSpec
	verify     *VerifySpec
}

var _ driver.Protocol = (*Serial)(nil)

// NewSerial validates cfg and builds the framing engine. Template
// errors surface here, at driver-definition time, never mid-exchange.
func NewSerial(cfg Config) (*Serial, error) {
	if cfg.ReadTemplate == "" && cfg.WriteTemplate == "" {
		return nil, fmt.Errorf("%w: no templates", ErrConfig)
	}

	s := &Serial{
		terminator: []byte(defaultTerminator),
		timeout:    defaultTimeout,
		echo:       cfg.Echo,
		handshake:  cfg.Handshake,
		status:     cfg.Status,
		enquiry:    cfg.Enquiry,
		trailer:    cfg.Trailer,
		verify:     cfg.Verify,
	}
	if cfg.Terminator != "" {
		s.terminator = []byte(cfg.Terminator)
	}
	if cfg.Timeout > 0 {
		s.timeout = cfg.Timeout
	}

	if cfg.ReadTemplate != "" {
		tpl, err := ParseTemplate(cfg.ReadTemplate)
		if err != nil {
			return nil, err
		}
		if tpl.HasValue() {
			return nil, fmt.Errorf("%w: read template %q references {value}", ErrConfig, cfg.ReadTemplate)
		}
		s.read = tpl
	}
	if cfg.WriteTemplate != "" {
		tpl, err := ParseTemplate(cfg.WriteTemplate)
		if err != nil {
			return nil, err
		}
		s.write = tpl
	}

	if cfg.Handshake != nil && cfg.Handshake.Busy == cfg.Handshake.Ready {
		return nil, fmt.Errorf("%w: handshake busy and ready bytes are identical", ErrConfig)
	}
	if cfg.Verify != nil && cfg.Verify.Request == "" {
		return nil, fmt.Errorf("%w: verify without a request", ErrConfig)
	}
	if cfg.Trailer != nil && cfg.Trailer.OK == "" {
		return nil, fmt.Errorf("%w: trailer without a success line", ErrConfig)
	}

	return s, nil
}

// Read performs one query exchange and returns the stripped payload.
func (s *Serial) Read(t driver.Transport, ctx driver.Context) (string, error) {
	if s.read == nil {
		return "", fmt.Errorf("%w: dialect has no read template", ErrConfig)
	}
	request, err := s.read.Render(ctx, "")
	if err != nil {
		return "", err
	}

	deadline := time.Now().Add(s.timeout)
	if err := t.Write([]byte(request)); err != nil {
		return "", err
	}
	if s.echo {
		if err := s.expectEcho(t, deadline, request); err != nil {
			return "", err
		}
	}
	if s.handshake != nil {
		if err := s.awaitReady(t, deadline); err != nil {
			return "", err
		}
	}
	if s.status != nil {
		if err := s.checkStatus(t, deadline); err != nil {
			return "", err
		}
	}
	if s.enquiry != "" {
		if err := t.Write([]byte(s.enquiry)); err != nil {
			return "", err
		}
	}

	payload, err := s.readLine(t, deadline)
	if err != nil {
		return "", err
	}

	if s.trailer != nil {
		if err := s.checkTrailer(t, deadline); err != nil {
			return "", err
		}
	}
	if s.verify != nil {
		if err := s.runVerify(t); err != nil {
			return "", err
		}
	}
	return payload, nil
}

// Write performs one set exchange. Action commands pass an empty value.
func (s *Serial) Write(t driver.Transport, ctx driver.Context, value string) error {
	if s.write == nil {
		return fmt.Errorf("%w: dialect has no write template", ErrConfig)
	}
	request, err := s.write.Render(ctx, value)
	if err != nil {
		return err
	}

	deadline := time.Now().Add(s.timeout)
	if err := t.Write([]byte(request)); err != nil {
		return err
	}
	if s.handshake != nil {
		if err := s.awaitReady(t, deadline); err != nil {
			return err
		}
	}
	if s.status != nil {
		if err := s.checkStatus(t, deadline); err != nil {
			return err
		}
	}
	if s.verify != nil {
		if err := s.runVerify(t); err != nil {
			return err
		}
	}
	return nil
}

// readLine reads one response line and strips the terminator plus
// surrounding whitespace.
func (s *Serial) readLine(t driver.Transport, deadline time.Time) (string, error) {
	raw, err := t.Read(s.terminator, time.Until(deadline))
	if err != nil {
		return "", err
	}
	line := strings.TrimSuffix(string(raw), string(s.terminator))
	return strings.TrimSpace(line), nil
}

// expectEcho reads the echoed request line and fails loudly on any
// difference: a wrong echo means the conversation is desynchronised.
func (s *Serial) expectEcho(t driver.Transport, deadline time.Time, request string) error {
	echo, err := s.readLine(t, deadline)
	if err != nil {
		return err
	}
	want := strings.TrimSpace(strings.TrimSuffix(request, string(s.terminator)))
	if echo != want {
		return fmt.Errorf("%w: echo %q does not match request %q", driver.ErrDecode, echo, want)
	}
	return nil
}

// awaitReady consumes busy bytes until the ready byte arrives. Silence
// or an exhausted budget surfaces the transport's timeout; any byte
// outside the declared pair is a framing fault.
func (s *Serial) awaitReady(t driver.Transport, deadline time.Time) error {
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return fmt.Errorf("%w: ready signal not observed within %v", transport.ErrTimeout, s.timeout)
		}
		b, err := t.Read(nil, remaining)
		if err != nil {
			return err
		}
		switch b[0] {
		case s.handshake.Ready:
			return nil
		case s.handshake.Busy:
			// Device still settling.
		default:
			return fmt.Errorf("%w: unexpected handshake byte %#x", driver.ErrDecode, b[0])
		}
	}
}

// checkStatus reads and validates the acknowledge line.
func (s *Serial) checkStatus(t driver.Transport, deadline time.Time) error {
	line, err := s.readLine(t, deadline)
	if err != nil {
		return err
	}

	if s.status.OK != "" {
		if line == s.status.OK {
			return nil
		}
		if _, known := s.status.Codes[line]; known {
			return deviceError(line, s.status.Codes)
		}
		return fmt.Errorf("%w: unknown acknowledge %q", driver.ErrDecode, line)
	}

	return numericStatus(line, s.status.Codes)
}

// checkTrailer reads and validates the line following the payload.
func (s *Serial) checkTrailer(t driver.Transport, deadline time.Time) error {
	line, err := s.readLine(t, deadline)
	if err != nil {
		return err
	}
	if line == s.trailer.OK {
		return nil
	}
	if s.trailer.ErrPrefix != "" && strings.HasPrefix(line, s.trailer.ErrPrefix) {
		code := strings.TrimSpace(strings.TrimPrefix(line, s.trailer.ErrPrefix))
		return deviceError(code, s.trailer.Codes)
	}
	return fmt.Errorf("%w: unknown trailer %q", driver.ErrDecode, line)
}

// runVerify queries the device's error register after an exchange. The
// verify phase gets its own read budget since it is a full round trip.
func (s *Serial) runVerify(t driver.Transport) error {
	if err := t.Write([]byte(s.verify.Request)); err != nil {
		return err
	}
	deadline := time.Now().Add(s.timeout)
	if s.handshake != nil {
		if err := s.awaitReady(t, deadline); err != nil {
			return err
		}
	}
	line, err := s.readLine(t, deadline)
	if err != nil {
		return err
	}
	return numericStatus(line, s.verify.Codes)
}

// numericStatus interprets a status number where "0" is success.
func numericStatus(line string, codes map[string]string) error {
	if line == "0" {
		return nil
	}
	if _, err := strconv.Atoi(line); err != nil {
		return fmt.Errorf("%w: status %q is not a number", driver.ErrDecode, line)
	}
	return deviceError(line, codes)
}

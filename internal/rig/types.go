package rig

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// TransportKind selects how an instrument's wire connection is opened.
type TransportKind string

const (
	// TransportSerial opens a local serial port.
	TransportSerial TransportKind = "serial"

	// TransportSocket dials a TCP serial server or terminal server.
	TransportSocket TransportKind = "socket"

	// TransportVirtual runs a simulated device in-process.
	TransportVirtual TransportKind = "virtual"
)

// TransportSpec describes an instrument's wire connection. Fields are
// populated according to Kind; unused fields stay zero.
type TransportSpec struct {
	Kind TransportKind `json:"kind"`

	// Serial fields
	Device   string `json:"device,omitempty"`
	Baud     int    `json:"baud,omitempty"`
	Parity   string `json:"parity,omitempty"`
	StopBits int    `json:"stop_bits,omitempty"`

	// Socket fields
	Address string `json:"address,omitempty"`
}

// InstrumentRecord is the persisted description of one instrument.
type InstrumentRecord struct {
	// Identity
	ID   string `json:"id"`
	Name string `json:"name"` // Unique across the rig, used in topics and URLs

	// Driver is the catalog name of the builder that assembles the
	// instrument, e.g. "virtual.furnace" or "fluke.18x".
	Driver string `json:"driver"`

	// Transport describes the wire connection.
	Transport TransportSpec `json:"transport"`

	// Params carries driver-specific settings such as a bus node
	// number or channel letter.
	Params map[string]string `json:"params,omitempty"`

	// Enabled records start this instrument at daemon startup.
	Enabled bool `json:"enabled"`

	// Notes is free-form operator text.
	Notes *string `json:"notes,omitempty"`

	// Timestamps
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DeepCopy creates an independent copy of the record. Map fields are
// cloned so modifications to the copy do not affect the original.
func (r *InstrumentRecord) DeepCopy() *InstrumentRecord {
	if r == nil {
		return nil
	}

	cpy := *r
	if r.Params != nil {
		cpy.Params = make(map[string]string, len(r.Params))
		for k, v := range r.Params {
			cpy.Params[k] = v
		}
	}
	if r.Notes != nil {
		notes := *r.Notes
		cpy.Notes = &notes
	}
	return &cpy
}

// Bounds enforced by ValidateRecord.
const (
	maxNameLength  = 50
	maxParamKeys   = 20
	maxNotesLength = 1024
	namePattern    = `^[a-z0-9]+(?:-[a-z0-9]+)*$`
)

var nameRegex = regexp.MustCompile(namePattern)

// ValidateName checks an instrument name: lowercase slug form, since
// names appear in MQTT topics and URLs.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidRecord)
	}
	if len(name) > maxNameLength {
		return fmt.Errorf("%w: name exceeds %d characters", ErrInvalidRecord, maxNameLength)
	}
	if !nameRegex.MatchString(name) {
		return fmt.Errorf("%w: name %q must be lowercase letters, digits and hyphens", ErrInvalidRecord, name)
	}
	return nil
}

// ValidateTransportSpec checks that the spec carries what its kind
// needs.
func ValidateTransportSpec(spec TransportSpec) error {
	switch spec.Kind {
	case TransportSerial:
		if spec.Device == "" {
			return fmt.Errorf("%w: serial transport requires a device", ErrInvalidTransport)
		}
		if spec.Baud < 0 {
			return fmt.Errorf("%w: negative baud rate %d", ErrInvalidTransport, spec.Baud)
		}
		switch strings.ToLower(spec.Parity) {
		case "", "none", "odd", "even":
		default:
			return fmt.Errorf("%w: parity %q", ErrInvalidTransport, spec.Parity)
		}
		if spec.StopBits != 0 && spec.StopBits != 1 && spec.StopBits != 2 {
			return fmt.Errorf("%w: stop bits %d", ErrInvalidTransport, spec.StopBits)
		}
	case TransportSocket:
		if spec.Address == "" {
			return fmt.Errorf("%w: socket transport requires an address", ErrInvalidTransport)
		}
		if !strings.Contains(spec.Address, ":") {
			return fmt.Errorf("%w: address %q is not host:port", ErrInvalidTransport, spec.Address)
		}
	case TransportVirtual:
		// Nothing to open.
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidTransport, spec.Kind)
	}
	return nil
}

// ValidateRecord performs full validation on an instrument record.
// Returns an error describing the first failure found.
func ValidateRecord(r *InstrumentRecord) error {
	if r == nil {
		return ErrInvalidRecord
	}
	if err := ValidateName(r.Name); err != nil {
		return err
	}
	if r.Driver == "" {
		return fmt.Errorf("%w: driver is required", ErrInvalidRecord)
	}
	if err := ValidateTransportSpec(r.Transport); err != nil {
		return err
	}
	if len(r.Params) > maxParamKeys {
		return fmt.Errorf("%w: params exceed %d keys", ErrInvalidRecord, maxParamKeys)
	}
	for k := range r.Params {
		if k == "" {
			return fmt.Errorf("%w: empty param key", ErrInvalidRecord)
		}
	}
	if r.Notes != nil && len(*r.Notes) > maxNotesLength {
		return fmt.Errorf("%w: notes exceed %d characters", ErrInvalidRecord, maxNotesLength)
	}
	return nil
}

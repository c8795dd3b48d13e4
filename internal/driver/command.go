package driver

import (
	"fmt"
)

// Access describes which directions a command supports. The zero value
// is ReadWrite.
type Access uint8

const (
	// ReadWrite commands carry both a query and a set mnemonic.
	ReadWrite Access = iota

	// ReadOnly commands carry a query mnemonic only. Writes are
	// rejected with ErrAccessViolation before touching the transport.
	ReadOnly

	// WriteOnly commands carry a set mnemonic only. Reads are
	// rejected with ErrAccessViolation before touching the transport.
	WriteOnly
)

// String returns the access mode name.
func (a Access) String() string {
	switch a {
	case ReadOnly:
		return "read-only"
	case WriteOnly:
		return "write-only"
	case ReadWrite:
		return "read-write"
	default:
		return fmt.Sprintf("access(%d)", uint8(a))
	}
}

// CanRead reports whether queries are permitted.
func (a Access) CanRead() bool { return a != WriteOnly }

// CanWrite reports whether sets are permitted.
func (a Access) CanWrite() bool { return a != ReadOnly }

// Bounds is an inclusive range gate applied to decoded values on write.
// Reads are never bounds checked: an instrument reporting a value
// outside its settable range is information, not an error.
type Bounds struct {
	Min float64
	Max float64
}

// Contains reports whether v lies inside the range.
func (b Bounds) Contains(v float64) bool {
	return v >= b.Min && v <= b.Max
}

// Spec declares a command for NewCommand. Mnemonics are the
// device-specific fragments substituted into the owning instrument's
// framing templates; they carry no terminators or framing of their own.
type Spec struct {
	// Read is the query mnemonic. Required unless Access is WriteOnly.
	Read string

	// Write is the set mnemonic. Required unless Access is ReadOnly.
	Write string

	// Access selects the permitted directions. Defaults to ReadWrite.
	Access Access

	// Bounds, when non-nil, gates decoded values on write.
	Bounds *Bounds

	// Codec converts between decoded values and wire text.
	// Defaults to StringCodec.
	Codec Codec

	// Attrs are free-form addressing attributes exposed to framing
	// templates under the param namespace. The keys "read" and
	// "write" are reserved for the mnemonics.
	Attrs map[string]string
}

// Command is a leaf in an instrument's subsystem tree: one queryable or
// settable quantity. Commands are immutable after construction; all
// exchange state lives in the owning instrument.
type Command struct {
	read   string
	write  string
	access Access
	bounds *Bounds
	codec  Codec
	attrs  map[string]string

	// owner is set by Subsystem.Define and fixed once the tree seals.
	owner *Subsystem
}

// NewCommand validates a Spec and builds a Command.
//
// Validation is strict at construction so that exchange paths never
// discover a malformed descriptor: a ReadOnly spec must carry a read
// mnemonic and no write mnemonic, WriteOnly the reverse, and ReadWrite
// both. Bounds with Min above Max are rejected, as are attribute keys
// that collide with the reserved mnemonic names.
func NewCommand(spec Spec) (*Command, error) {
	switch spec.Access {
	case ReadOnly:
		if spec.Read == "" {
			return nil, fmt.Errorf("driver: read-only command requires a read mnemonic")
		}
		if spec.Write != "" {
			return nil, fmt.Errorf("driver: read-only command must not carry a write mnemonic %q", spec.Write)
		}
	case WriteOnly:
		if spec.Write == "" {
			return nil, fmt.Errorf("driver: write-only command requires a write mnemonic")
		}
		if spec.Read != "" {
			return nil, fmt.Errorf("driver: write-only command must not carry a read mnemonic %q", spec.Read)
		}
	case ReadWrite:
		if spec.Read == "" || spec.Write == "" {
			return nil, fmt.Errorf("driver: read-write command requires both mnemonics")
		}
	default:
		return nil, fmt.Errorf("driver: unknown access mode %d", spec.Access)
	}

	if spec.Bounds != nil && spec.Bounds.Min > spec.Bounds.Max {
		return nil, fmt.Errorf("driver: bounds min %v above max %v", spec.Bounds.Min, spec.Bounds.Max)
	}

	codec := spec.Codec
	if codec == nil {
		codec = StringCodec{}
	}

	var bounds *Bounds
	if spec.Bounds != nil {
		b := *spec.Bounds
		bounds = &b
	}

	attrs := make(map[string]string, len(spec.Attrs))
	for k, v := range spec.Attrs {
		if k == "read" || k == "write" {
			return nil, fmt.Errorf("driver: attribute key %q is reserved", k)
		}
		attrs[k] = v
	}

	return &Command{
		read:   spec.Read,
		write:  spec.Write,
		access: spec.Access,
		bounds: bounds,
		codec:  codec,
		attrs:  attrs,
	}, nil
}

// NewAction builds a write-only command with no value payload, the
// shape used for one-shot device operations such as reset or acknowledge.
func NewAction(write string, attrs map[string]string) (*Command, error) {
	return NewCommand(Spec{
		Write:  write,
		Access: WriteOnly,
		Attrs:  attrs,
	})
}

// node marks Command as a resolvable tree node.
func (*Command) node() {}

// ReadMnemonic returns the query mnemonic, empty for write-only commands.
func (c *Command) ReadMnemonic() string { return c.read }

// WriteMnemonic returns the set mnemonic, empty for read-only commands.
func (c *Command) WriteMnemonic() string { return c.write }

// Access returns the permitted directions.
func (c *Command) Access() Access { return c.access }

// Bounds returns a copy of the write gate, or nil when unbounded.
func (c *Command) Bounds() *Bounds {
	if c.bounds == nil {
		return nil
	}
	b := *c.bounds
	return &b
}

// Attr returns the named addressing attribute, empty when absent.
func (c *Command) Attr(key string) string { return c.attrs[key] }

// Subsystem returns the subsystem this command is defined under, nil
// until Define has placed it in a tree.
func (c *Command) Subsystem() *Subsystem { return c.owner }

// Path returns the dotted path from the tree root to this command.
func (c *Command) Path() string {
	if c.owner == nil {
		return ""
	}
	prefix := c.owner.Path()
	name := c.owner.nameOf(c)
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}

// Get performs one query exchange and returns the decoded value.
//
// The exchange runs under the owning instrument's mutex: concurrent
// calls against the same instrument serialise, and no other exchange
// interleaves with this one on the transport.
func (c *Command) Get() (any, error) {
	if !c.access.CanRead() {
		return nil, fmt.Errorf("%w: %s command cannot be queried", ErrAccessViolation, c.access)
	}
	inst, err := c.instrument()
	if err != nil {
		return nil, err
	}
	return inst.execRead(c)
}

// Set encodes v, checks it against the bounds gate, and performs one
// set exchange.
func (c *Command) Set(v any) error {
	if !c.access.CanWrite() {
		return fmt.Errorf("%w: %s command cannot be set", ErrAccessViolation, c.access)
	}
	if c.bounds != nil {
		f, ok := toFloat(v)
		if !ok {
			return fmt.Errorf("%w: bounded command requires a numeric value, got %T", ErrOutOfRange, v)
		}
		if !c.bounds.Contains(f) {
			return fmt.Errorf("%w: %v outside [%v, %v]", ErrOutOfRange, f, c.bounds.Min, c.bounds.Max)
		}
	}
	wire, err := c.codec.Encode(v)
	if err != nil {
		return err
	}
	inst, err := c.instrument()
	if err != nil {
		return err
	}
	return inst.execWrite(c, wire)
}

// Invoke performs one set exchange with an empty value, the calling
// convention for action commands. Bounds do not apply.
func (c *Command) Invoke() error {
	if !c.access.CanWrite() {
		return fmt.Errorf("%w: %s command cannot be invoked", ErrAccessViolation, c.access)
	}
	inst, err := c.instrument()
	if err != nil {
		return err
	}
	return inst.execWrite(c, "")
}

// instrument walks owner to the tree root and returns the bound
// instrument.
func (c *Command) instrument() (*Instrument, error) {
	if c.owner == nil {
		return nil, fmt.Errorf("%w: command is not in a subsystem tree", ErrNotBound)
	}
	root := c.owner.root()
	if root.inst == nil {
		return nil, fmt.Errorf("%w: subsystem tree has no instrument", ErrNotBound)
	}
	return root.inst, nil
}

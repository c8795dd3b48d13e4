package driver

import (
	"fmt"
	"sync"
	"time"
)

// Transport moves raw bytes to and from a device. Implementations live
// in the transport package; the interface sits here so that protocol
// engines and instruments agree on it without an import cycle.
type Transport interface {
	// Read accumulates bytes until terminator arrives or timeout
	// elapses. The returned slice includes the terminator. An empty
	// terminator reads exactly one byte, the shape used by
	// single-byte acknowledge handshakes.
	Read(terminator []byte, timeout time.Duration) ([]byte, error)

	// Write sends the full payload.
	Write(p []byte) error

	// Close releases the underlying port or connection.
	Close() error
}

// Protocol frames command exchanges onto a transport. Implementations
// live in the protocol package.
type Protocol interface {
	// Read performs one query exchange and returns the raw payload
	// with framing stripped, ready for the command's codec.
	Read(t Transport, ctx Context) (string, error)

	// Write performs one set exchange. The value is already encoded
	// wire text; action commands pass the empty string.
	Write(t Transport, ctx Context, value string) error
}

// Context carries the addressing attributes a protocol template can
// reference during one exchange: the command's own attributes and
// mnemonics, the merged attributes of its enclosing subsystems, and the
// instrument's attributes.
type Context struct {
	// Param holds the command's attributes plus the reserved keys
	// "read" and "write" for its mnemonics.
	Param map[string]string

	// Subsys holds subsystem attributes merged from the command's
	// owner up to the root. When the same key appears at several
	// levels the nearest enclosing subsystem wins.
	Subsys map[string]string

	// Instr holds the instrument's attributes, typically bus node
	// addresses shared by every command.
	Instr map[string]string
}

// InstrumentOptions configures NewInstrument.
type InstrumentOptions struct {
	// Name identifies the instrument in logs and registries.
	Name string

	// Transport carries the wire connection. Required.
	Transport Transport

	// Protocol frames exchanges onto the transport. Required.
	Protocol Protocol

	// Root is the top of the subsystem tree. Required; must not
	// already belong to another instrument and must not have a
	// parent.
	Root *Subsystem

	// Attrs are instrument-level addressing attributes exposed to
	// framing templates under the instr namespace.
	Attrs map[string]string
}

// Instrument binds one subsystem tree to one transport and one
// protocol, and is the unit of mutual exclusion: every exchange against
// the device runs under its lock, so two concurrent operations can
// never interleave their wire traffic.
type Instrument struct {
	name      string
	transport Transport
	protocol  Protocol
	root      *Subsystem
	attrs     map[string]string

	// mu serialises exchanges on the transport.
	mu sync.Mutex

	closeOnce sync.Once
	closeErr  error
}

// NewInstrument validates options, binds the root, and seals the tree.
// After this call the tree cannot be mutated and every command beneath
// the root routes its exchanges through this instrument.
func NewInstrument(opts InstrumentOptions) (*Instrument, error) {
	if opts.Name == "" {
		return nil, fmt.Errorf("driver: instrument requires a name")
	}
	if opts.Transport == nil {
		return nil, fmt.Errorf("driver: instrument %q requires a transport", opts.Name)
	}
	if opts.Protocol == nil {
		return nil, fmt.Errorf("driver: instrument %q requires a protocol", opts.Name)
	}
	if opts.Root == nil {
		return nil, fmt.Errorf("driver: instrument %q requires a subsystem root", opts.Name)
	}
	if opts.Root.parent != nil {
		return nil, fmt.Errorf("driver: root of instrument %q has a parent subsystem", opts.Name)
	}
	if opts.Root.inst != nil {
		return nil, fmt.Errorf("%w: root already bound to instrument %q", ErrAlreadyAttached, opts.Root.inst.name)
	}

	attrs := make(map[string]string, len(opts.Attrs))
	for k, v := range opts.Attrs {
		attrs[k] = v
	}

	inst := &Instrument{
		name:      opts.Name,
		transport: opts.Transport,
		protocol:  opts.Protocol,
		root:      opts.Root,
		attrs:     attrs,
	}
	opts.Root.inst = inst
	opts.Root.seal()
	return inst, nil
}

// Name returns the instrument identifier.
func (in *Instrument) Name() string { return in.name }

// Root returns the top of the subsystem tree.
func (in *Instrument) Root() *Subsystem { return in.root }

// Transport returns the wire connection, letting callers reach
// capabilities beyond the exchange contract, such as advancing a
// simulated device.
func (in *Instrument) Transport() Transport { return in.transport }

// Attr returns the named instrument attribute, empty when absent.
func (in *Instrument) Attr(key string) string { return in.attrs[key] }

// Resolve walks a dotted path from the root.
func (in *Instrument) Resolve(path string) (Node, error) {
	return in.root.Resolve(path)
}

// Command resolves a dotted path that must name a command.
func (in *Instrument) Command(path string) (*Command, error) {
	return in.root.ResolveCommand(path)
}

// Get resolves path and performs one query exchange.
func (in *Instrument) Get(path string) (any, error) {
	cmd, err := in.Command(path)
	if err != nil {
		return nil, err
	}
	return cmd.Get()
}

// Set resolves path and performs one set exchange.
func (in *Instrument) Set(path string, v any) error {
	cmd, err := in.Command(path)
	if err != nil {
		return err
	}
	return cmd.Set(v)
}

// Invoke resolves path and performs one action exchange.
func (in *Instrument) Invoke(path string) error {
	cmd, err := in.Command(path)
	if err != nil {
		return err
	}
	return cmd.Invoke()
}

// Close releases the transport. Safe to call multiple times.
func (in *Instrument) Close() error {
	in.closeOnce.Do(func() {
		in.closeErr = in.transport.Close()
	})
	return in.closeErr
}

// execRead runs one query exchange under the instrument lock and
// decodes the payload with the command's codec.
func (in *Instrument) execRead(cmd *Command) (any, error) {
	ctx := in.contextFor(cmd)

	in.mu.Lock()
	payload, err := in.protocol.Read(in.transport, ctx)
	in.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return cmd.codec.Decode(payload)
}

// execWrite runs one set exchange under the instrument lock. The value
// is already encoded wire text.
func (in *Instrument) execWrite(cmd *Command, value string) error {
	ctx := in.contextFor(cmd)

	in.mu.Lock()
	err := in.protocol.Write(in.transport, ctx, value)
	in.mu.Unlock()
	return err
}

// contextFor assembles the template context for one exchange. Subsystem
// attributes merge from the command's owner up to the root with the
// nearest level winning on key collisions.
func (in *Instrument) contextFor(cmd *Command) Context {
	param := make(map[string]string, len(cmd.attrs)+2)
	for k, v := range cmd.attrs {
		param[k] = v
	}
	param["read"] = cmd.read
	param["write"] = cmd.write

	subsys := make(map[string]string)
	for s := cmd.owner; s != nil; s = s.parent {
		for k, v := range s.attrs {
			if _, ok := subsys[k]; !ok {
				subsys[k] = v
			}
		}
	}

	instr := make(map[string]string, len(in.attrs))
	for k, v := range in.attrs {
		instr[k] = v
	}

	return Context{Param: param, Subsys: subsys, Instr: instr}
}

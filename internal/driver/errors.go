package driver

import "errors"

// Sentinel errors for the command model, matched with errors.Is.
var (
	// ErrAccessViolation is returned when reading a write-only command or
	// writing a read-only command. The transport is never touched.
	ErrAccessViolation = errors.New("driver: access violation")

	// ErrOutOfRange is returned when a write value falls outside the
	// command's declared bounds. Bounds gate writes only; reads return
	// whatever the hardware reports.
	ErrOutOfRange = errors.New("driver: value out of range")

	// ErrPathNotFound is returned when a dotted path does not resolve to
	// a command or subsystem in the tree.
	ErrPathNotFound = errors.New("driver: path not found")

	// ErrDecode is returned when a response payload does not parse into
	// the command's value domain.
	ErrDecode = errors.New("driver: payload decode failed")

	// ErrEncode is returned when a value cannot be converted to its wire
	// representation (wrong type, unrepresentable value).
	ErrEncode = errors.New("driver: value encode failed")

	// ErrSealed is returned on structural mutation of a tree after its
	// instrument has been built.
	ErrSealed = errors.New("driver: subsystem tree is sealed")

	// ErrDuplicateName is returned when defining a command or attaching a
	// child under a name already taken in that subsystem.
	ErrDuplicateName = errors.New("driver: duplicate name in subsystem")

	// ErrAlreadyAttached is returned when attaching a subsystem that
	// already has a parent, or defining a command already owned by
	// another subsystem.
	ErrAlreadyAttached = errors.New("driver: node already attached")

	// ErrCycle is returned when an attachment would make a subsystem its
	// own ancestor.
	ErrCycle = errors.New("driver: attachment would create a cycle")

	// ErrNotBound is returned when evaluating a command whose tree is not
	// yet bound to an instrument.
	ErrNotBound = errors.New("driver: command tree not bound to an instrument")
)

package driver

import (
	"fmt"
	"strings"
)

// Node is a resolvable member of a subsystem tree: either a *Subsystem
// or a *Command.
type Node interface {
	node()
}

// Subsystem is an interior node in an instrument's command tree. It
// groups commands and child subsystems under names, and carries
// addressing attributes that framing templates can reference from any
// command beneath it.
//
// Trees are assembled once, bottom-up or top-down, then sealed when an
// instrument binds the root. After sealing, Define and Attach reject
// further mutation and the tree is safe for concurrent traversal.
type Subsystem struct {
	attrs    map[string]string
	commands map[string]*Command
	children map[string]*Subsystem

	// cmdOrder and childOrder preserve definition order for
	// introspection listings.
	cmdOrder   []string
	childOrder []string

	parent *Subsystem

	// inst is set on the root only, by NewInstrument.
	inst *Instrument

	sealed bool
}

// NewSubsystem builds an empty subsystem carrying the given addressing
// attributes. A nil map is allowed.
func NewSubsystem(attrs map[string]string) *Subsystem {
	copied := make(map[string]string, len(attrs))
	for k, v := range attrs {
		copied[k] = v
	}
	return &Subsystem{
		attrs:    copied,
		commands: make(map[string]*Command),
		children: make(map[string]*Subsystem),
	}
}

// node marks Subsystem as a resolvable tree node.
func (*Subsystem) node() {}

// Define places a command under name. The name must be unused by both
// commands and children, must not contain a dot, and the command must
// not already belong to a subsystem.
func (s *Subsystem) Define(name string, cmd *Command) error {
	if s.sealed {
		return fmt.Errorf("%w: cannot define %q", ErrSealed, name)
	}
	if err := validateName(name); err != nil {
		return err
	}
	if cmd == nil {
		return fmt.Errorf("driver: nil command for %q", name)
	}
	if cmd.owner != nil {
		return fmt.Errorf("%w: command %q already belongs to a subsystem", ErrAlreadyAttached, name)
	}
	if _, ok := s.commands[name]; ok {
		return fmt.Errorf("%w: command %q", ErrDuplicateName, name)
	}
	if _, ok := s.children[name]; ok {
		return fmt.Errorf("%w: %q names a child subsystem", ErrDuplicateName, name)
	}
	cmd.owner = s
	s.commands[name] = cmd
	s.cmdOrder = append(s.cmdOrder, name)
	return nil
}

// Attach places a child subsystem under name. The child must not
// already have a parent, and attaching must not create a cycle.
func (s *Subsystem) Attach(name string, child *Subsystem) error {
	if s.sealed {
		return fmt.Errorf("%w: cannot attach %q", ErrSealed, name)
	}
	if err := validateName(name); err != nil {
		return err
	}
	if child == nil {
		return fmt.Errorf("driver: nil subsystem for %q", name)
	}
	if child.parent != nil {
		return fmt.Errorf("%w: subsystem %q already has a parent", ErrAlreadyAttached, name)
	}
	for anc := s; anc != nil; anc = anc.parent {
		if anc == child {
			return fmt.Errorf("%w: attaching %q would create a cycle", ErrCycle, name)
		}
	}
	if _, ok := s.children[name]; ok {
		return fmt.Errorf("%w: subsystem %q", ErrDuplicateName, name)
	}
	if _, ok := s.commands[name]; ok {
		return fmt.Errorf("%w: %q names a command", ErrDuplicateName, name)
	}
	child.parent = s
	s.children[name] = child
	s.childOrder = append(s.childOrder, name)
	return nil
}

// Command returns the named command, nil when absent.
func (s *Subsystem) Command(name string) *Command {
	return s.commands[name]
}

// Child returns the named child subsystem, nil when absent.
func (s *Subsystem) Child(name string) *Subsystem {
	return s.children[name]
}

// Commands lists command names in definition order.
func (s *Subsystem) Commands() []string {
	out := make([]string, len(s.cmdOrder))
	copy(out, s.cmdOrder)
	return out
}

// Children lists child subsystem names in attachment order.
func (s *Subsystem) Children() []string {
	out := make([]string, len(s.childOrder))
	copy(out, s.childOrder)
	return out
}

// Attr returns the named addressing attribute, empty when absent.
func (s *Subsystem) Attr(key string) string { return s.attrs[key] }

// Parent returns the enclosing subsystem, nil for the root.
func (s *Subsystem) Parent() *Subsystem { return s.parent }

// Path returns the dotted path from the root to this subsystem. The
// root itself has the empty path.
func (s *Subsystem) Path() string {
	if s.parent == nil {
		return ""
	}
	prefix := s.parent.Path()
	name := s.parent.nameOfChild(s)
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}

// Resolve walks a dotted path and returns the node it names. The empty
// path resolves to the receiver. A missing segment, or a path that
// descends through a command, fails with ErrPathNotFound.
func (s *Subsystem) Resolve(path string) (Node, error) {
	if path == "" {
		return s, nil
	}
	cur := s
	segments := strings.Split(path, ".")
	for i, seg := range segments {
		if seg == "" {
			return nil, fmt.Errorf("%w: empty segment in %q", ErrPathNotFound, path)
		}
		if child, ok := cur.children[seg]; ok {
			cur = child
			continue
		}
		if cmd, ok := cur.commands[seg]; ok {
			if i != len(segments)-1 {
				return nil, fmt.Errorf("%w: %q is a command, cannot descend into %q",
					ErrPathNotFound, strings.Join(segments[:i+1], "."), path)
			}
			return cmd, nil
		}
		return nil, fmt.Errorf("%w: %q", ErrPathNotFound, strings.Join(segments[:i+1], "."))
	}
	return cur, nil
}

// ResolveCommand resolves a dotted path that must name a command.
func (s *Subsystem) ResolveCommand(path string) (*Command, error) {
	n, err := s.Resolve(path)
	if err != nil {
		return nil, err
	}
	cmd, ok := n.(*Command)
	if !ok {
		return nil, fmt.Errorf("%w: %q names a subsystem, not a command", ErrPathNotFound, path)
	}
	return cmd, nil
}

// ResolveSubsystem resolves a dotted path that must name a subsystem.
func (s *Subsystem) ResolveSubsystem(path string) (*Subsystem, error) {
	n, err := s.Resolve(path)
	if err != nil {
		return nil, err
	}
	sub, ok := n.(*Subsystem)
	if !ok {
		return nil, fmt.Errorf("%w: %q names a command, not a subsystem", ErrPathNotFound, path)
	}
	return sub, nil
}

// root walks parents to the top of the tree.
func (s *Subsystem) root() *Subsystem {
	cur := s
	for cur.parent != nil {
		cur = cur.parent
	}
	return cur
}

// seal freezes this subsystem and everything beneath it.
func (s *Subsystem) seal() {
	s.sealed = true
	for _, child := range s.children {
		child.seal()
	}
}

// nameOf returns the name a command is defined under, empty if it is
// not in this subsystem.
func (s *Subsystem) nameOf(cmd *Command) string {
	for name, c := range s.commands {
		if c == cmd {
			return name
		}
	}
	return ""
}

// nameOfChild returns the name a child is attached under, empty if it
// is not in this subsystem.
func (s *Subsystem) nameOfChild(child *Subsystem) string {
	for name, c := range s.children {
		if c == child {
			return name
		}
	}
	return ""
}

// validateName rejects names that would break dotted-path resolution.
func validateName(name string) error {
	if name == "" {
		return fmt.Errorf("driver: empty node name")
	}
	if strings.Contains(name, ".") {
		return fmt.Errorf("driver: node name %q must not contain a dot", name)
	}
	return nil
}

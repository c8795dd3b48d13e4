package driver

import (
	"errors"
	"testing"
)

// testCommand builds a minimal read-only command for tree tests.
func testCommand(t *testing.T) *Command {
	t.Helper()
	cmd, err := NewCommand(Spec{Read: "Q", Access: ReadOnly})
	if err != nil {
		t.Fatalf("NewCommand() error = %v", err)
	}
	return cmd
}

// =============================================================================
// Define Tests
// =============================================================================

func TestDefine(t *testing.T) {
	root := NewSubsystem(nil)
	cmd := testCommand(t)

	if err := root.Define("measure", cmd); err != nil {
		t.Fatalf("Define() error = %v", err)
	}

	if got := root.Command("measure"); got != cmd {
		t.Error("Command() did not return the defined command")
	}
	if cmd.Subsystem() != root {
		t.Error("Subsystem() did not return the owner")
	}
}

func TestDefineDuplicate(t *testing.T) {
	root := NewSubsystem(nil)
	if err := root.Define("measure", testCommand(t)); err != nil {
		t.Fatalf("Define() error = %v", err)
	}

	err := root.Define("measure", testCommand(t))
	if !errors.Is(err, ErrDuplicateName) {
		t.Errorf("Define() error = %v, want ErrDuplicateName", err)
	}
}

func TestDefineCollidesWithChild(t *testing.T) {
	root := NewSubsystem(nil)
	if err := root.Attach("loop", NewSubsystem(nil)); err != nil {
		t.Fatalf("Attach() error = %v", err)
	}

	err := root.Define("loop", testCommand(t))
	if !errors.Is(err, ErrDuplicateName) {
		t.Errorf("Define() error = %v, want ErrDuplicateName", err)
	}
}

func TestDefineRejectsDottedName(t *testing.T) {
	root := NewSubsystem(nil)
	if err := root.Define("a.b", testCommand(t)); err == nil {
		t.Error("Define() accepted a dotted name")
	}
}

func TestDefineStolenCommand(t *testing.T) {
	a := NewSubsystem(nil)
	b := NewSubsystem(nil)
	cmd := testCommand(t)

	if err := a.Define("x", cmd); err != nil {
		t.Fatalf("Define() error = %v", err)
	}

	err := b.Define("y", cmd)
	if !errors.Is(err, ErrAlreadyAttached) {
		t.Errorf("Define() error = %v, want ErrAlreadyAttached", err)
	}
}

// =============================================================================
// Attach Tests
// =============================================================================

func TestAttach(t *testing.T) {
	root := NewSubsystem(nil)
	child := NewSubsystem(nil)

	if err := root.Attach("pid", child); err != nil {
		t.Fatalf("Attach() error = %v", err)
	}

	if root.Child("pid") != child {
		t.Error("Child() did not return the attached subsystem")
	}
	if child.Parent() != root {
		t.Error("Parent() did not return the root")
	}
}

func TestAttachTwice(t *testing.T) {
	root := NewSubsystem(nil)
	other := NewSubsystem(nil)
	child := NewSubsystem(nil)

	if err := root.Attach("pid", child); err != nil {
		t.Fatalf("Attach() error = %v", err)
	}

	err := other.Attach("pid", child)
	if !errors.Is(err, ErrAlreadyAttached) {
		t.Errorf("Attach() error = %v, want ErrAlreadyAttached", err)
	}
}

func TestAttachCycle(t *testing.T) {
	a := NewSubsystem(nil)
	b := NewSubsystem(nil)
	c := NewSubsystem(nil)

	if err := a.Attach("b", b); err != nil {
		t.Fatalf("Attach() error = %v", err)
	}
	if err := b.Attach("c", c); err != nil {
		t.Fatalf("Attach() error = %v", err)
	}

	// Attaching an ancestor below its own descendant must fail.
	err := c.Attach("a", a)
	if !errors.Is(err, ErrCycle) {
		t.Errorf("Attach() error = %v, want ErrCycle", err)
	}

	err = a.Attach("self", a)
	if !errors.Is(err, ErrCycle) {
		t.Errorf("Attach(self) error = %v, want ErrCycle", err)
	}
}

func TestAttachCollidesWithCommand(t *testing.T) {
	root := NewSubsystem(nil)
	if err := root.Define("measure", testCommand(t)); err != nil {
		t.Fatalf("Define() error = %v", err)
	}

	err := root.Attach("measure", NewSubsystem(nil))
	if !errors.Is(err, ErrDuplicateName) {
		t.Errorf("Attach() error = %v, want ErrDuplicateName", err)
	}
}

// =============================================================================
// Resolve Tests
// =============================================================================

func TestResolve(t *testing.T) {
	// root
	//  ├── measure        (command)
	//  └── loop
	//       └── pid
	//            └── gain  (command)
	root := NewSubsystem(nil)
	loop := NewSubsystem(nil)
	pid := NewSubsystem(nil)
	measure := testCommand(t)
	gain := testCommand(t)

	if err := root.Define("measure", measure); err != nil {
		t.Fatalf("Define() error = %v", err)
	}
	if err := root.Attach("loop", loop); err != nil {
		t.Fatalf("Attach() error = %v", err)
	}
	if err := loop.Attach("pid", pid); err != nil {
		t.Fatalf("Attach() error = %v", err)
	}
	if err := pid.Define("gain", gain); err != nil {
		t.Fatalf("Define() error = %v", err)
	}

	tests := []struct {
		name string
		path string
		want Node
	}{
		{name: "empty path is the receiver", path: "", want: root},
		{name: "command at root", path: "measure", want: measure},
		{name: "one level", path: "loop", want: loop},
		{name: "two levels", path: "loop.pid", want: pid},
		{name: "deep command", path: "loop.pid.gain", want: gain},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := root.Resolve(tt.path)
			if err != nil {
				t.Fatalf("Resolve(%q) error = %v", tt.path, err)
			}
			if got != tt.want {
				t.Errorf("Resolve(%q) returned the wrong node", tt.path)
			}
		})
	}

	// Dotted resolution must agree with manual chaining.
	chained := root.Child("loop").Child("pid").Command("gain")
	resolved, err := root.ResolveCommand("loop.pid.gain")
	if err != nil {
		t.Fatalf("ResolveCommand() error = %v", err)
	}
	if chained != resolved {
		t.Error("Resolve and chained lookup disagree")
	}
}

func TestResolveNotFound(t *testing.T) {
	root := NewSubsystem(nil)
	loop := NewSubsystem(nil)
	if err := root.Attach("loop", loop); err != nil {
		t.Fatalf("Attach() error = %v", err)
	}
	if err := loop.Define("gain", testCommand(t)); err != nil {
		t.Fatalf("Define() error = %v", err)
	}

	tests := []struct {
		name string
		path string
	}{
		{name: "missing leaf", path: "loop.missing"},
		{name: "missing root segment", path: "nope.gain"},
		{name: "descend through command", path: "loop.gain.deeper"},
		{name: "empty segment", path: "loop..gain"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := root.Resolve(tt.path)
			if !errors.Is(err, ErrPathNotFound) {
				t.Errorf("Resolve(%q) error = %v, want ErrPathNotFound", tt.path, err)
			}
		})
	}
}

func TestResolveCommandOnSubsystem(t *testing.T) {
	root := NewSubsystem(nil)
	if err := root.Attach("loop", NewSubsystem(nil)); err != nil {
		t.Fatalf("Attach() error = %v", err)
	}

	_, err := root.ResolveCommand("loop")
	if !errors.Is(err, ErrPathNotFound) {
		t.Errorf("ResolveCommand() error = %v, want ErrPathNotFound", err)
	}

	if err := root.Define("measure", testCommand(t)); err != nil {
		t.Fatalf("Define() error = %v", err)
	}
	_, err = root.ResolveSubsystem("measure")
	if !errors.Is(err, ErrPathNotFound) {
		t.Errorf("ResolveSubsystem() error = %v, want ErrPathNotFound", err)
	}
}

// =============================================================================
// Path and Listing Tests
// =============================================================================

func TestPath(t *testing.T) {
	root := NewSubsystem(nil)
	loop := NewSubsystem(nil)
	pid := NewSubsystem(nil)
	gain := testCommand(t)

	if err := root.Attach("loop", loop); err != nil {
		t.Fatalf("Attach() error = %v", err)
	}
	if err := loop.Attach("pid", pid); err != nil {
		t.Fatalf("Attach() error = %v", err)
	}
	if err := pid.Define("gain", gain); err != nil {
		t.Fatalf("Define() error = %v", err)
	}

	if got := root.Path(); got != "" {
		t.Errorf("root.Path() = %q, want empty", got)
	}
	if got := loop.Path(); got != "loop" {
		t.Errorf("loop.Path() = %q, want \"loop\"", got)
	}
	if got := pid.Path(); got != "loop.pid" {
		t.Errorf("pid.Path() = %q, want \"loop.pid\"", got)
	}
	if got := gain.Path(); got != "loop.pid.gain" {
		t.Errorf("gain.Path() = %q, want \"loop.pid.gain\"", got)
	}
}

func TestListingOrder(t *testing.T) {
	root := NewSubsystem(nil)
	names := []string{"setpoint", "measure", "output"}
	for _, name := range names {
		if err := root.Define(name, testCommand(t)); err != nil {
			t.Fatalf("Define(%s) error = %v", name, err)
		}
	}

	got := root.Commands()
	if len(got) != len(names) {
		t.Fatalf("Commands() returned %d names, want %d", len(got), len(names))
	}
	for i, name := range names {
		if got[i] != name {
			t.Errorf("Commands()[%d] = %q, want %q", i, got[i], name)
		}
	}
}

// =============================================================================
// Sealing Tests
// =============================================================================

func TestSealedRejectsMutation(t *testing.T) {
	root := NewSubsystem(nil)
	child := NewSubsystem(nil)
	if err := root.Attach("loop", child); err != nil {
		t.Fatalf("Attach() error = %v", err)
	}
	root.seal()

	if err := root.Define("late", testCommand(t)); !errors.Is(err, ErrSealed) {
		t.Errorf("Define() error = %v, want ErrSealed", err)
	}
	if err := root.Attach("late", NewSubsystem(nil)); !errors.Is(err, ErrSealed) {
		t.Errorf("Attach() error = %v, want ErrSealed", err)
	}

	// Sealing recurses into children.
	if err := child.Define("late", testCommand(t)); !errors.Is(err, ErrSealed) {
		t.Errorf("child Define() error = %v, want ErrSealed", err)
	}
}

// =============================================================================
// Attribute Tests
// =============================================================================

func TestSubsystemAttrs(t *testing.T) {
	attrs := map[string]string{"node": "1"}
	s := NewSubsystem(attrs)

	// Construction copies the map.
	attrs["node"] = "9"

	if got := s.Attr("node"); got != "1" {
		t.Errorf("Attr(node) = %q, want \"1\"", got)
	}
	if got := s.Attr("missing"); got != "" {
		t.Errorf("Attr(missing) = %q, want empty", got)
	}
}

package adapter

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/benchrig/benchrig-core/internal/driver"
	"github.com/benchrig/benchrig-core/internal/virtual"
)

// nullTransport satisfies driver.Transport for protocols that never
// touch the wire.
type nullTransport struct{}

func (nullTransport) Read([]byte, time.Duration) ([]byte, error) { return nil, nil }
func (nullTransport) Write([]byte) error                         { return nil }
func (nullTransport) Close() error                               { return nil }

// gateProtocol is an in-memory device. With a gate set, every exchange
// announces itself on started and then blocks until the gate closes,
// which lets tests pin an operation on the wire while others queue.
type gateProtocol struct {
	gate    chan struct{}
	started chan struct{}

	mu     sync.Mutex
	log    []string
	values map[string]string
}

func newGateProtocol(gate chan struct{}) *gateProtocol {
	return &gateProtocol{
		gate:    gate,
		started: make(chan struct{}, 16),
		values:  map[string]string{"measure": "23.0"},
	}
}

func (p *gateProtocol) wait() {
	p.started <- struct{}{}
	if p.gate != nil {
		<-p.gate
	}
}

func (p *gateProtocol) Read(_ driver.Transport, ctx driver.Context) (string, error) {
	p.wait()
	p.mu.Lock()
	defer p.mu.Unlock()
	key := ctx.Param["key"]
	p.log = append(p.log, "get "+key)
	return p.values[key], nil
}

func (p *gateProtocol) Write(_ driver.Transport, ctx driver.Context, value string) error {
	p.wait()
	p.mu.Lock()
	defer p.mu.Unlock()
	key := ctx.Param["key"]
	p.log = append(p.log, strings.TrimSpace("set "+key+" "+value))
	p.values[key] = value
	return nil
}

func (p *gateProtocol) exchanges() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.log))
	copy(out, p.log)
	return out
}

// buildAdapter wires a stub instrument with commands measure (RO),
// setpoint (RW) and reset (action) behind a gateProtocol.
func buildAdapter(t *testing.T, gate chan struct{}, queueSize int) (*Adapter, *gateProtocol) {
	t.Helper()

	proto := newGateProtocol(gate)
	root := driver.NewSubsystem(nil)

	measure, err := driver.NewCommand(driver.Spec{
		Read: "M?", Access: driver.ReadOnly, Codec: driver.FloatCodec{},
		Attrs: map[string]string{"key": "measure"},
	})
	if err != nil {
		t.Fatalf("NewCommand(measure) error = %v", err)
	}
	setpoint, err := driver.NewCommand(driver.Spec{
		Read: "SP?", Write: "SP", Codec: driver.FloatCodec{},
		Attrs: map[string]string{"key": "setpoint"},
	})
	if err != nil {
		t.Fatalf("NewCommand(setpoint) error = %v", err)
	}
	reset, err := driver.NewAction("RST", map[string]string{"key": "reset"})
	if err != nil {
		t.Fatalf("NewAction(reset) error = %v", err)
	}
	for name, cmd := range map[string]*driver.Command{
		"measure": measure, "setpoint": setpoint, "reset": reset,
	} {
		if err := root.Define(name, cmd); err != nil {
			t.Fatalf("Define(%s) error = %v", name, err)
		}
	}

	inst, err := driver.NewInstrument(driver.InstrumentOptions{
		Name:      "stub-1",
		Transport: nullTransport{},
		Protocol:  proto,
		Root:      root,
	})
	if err != nil {
		t.Fatalf("NewInstrument() error = %v", err)
	}

	a, err := New(Options{Instrument: inst, QueueSize: queueSize})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { a.Close() })
	return a, proto
}

func testCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// =============================================================================
// Submission Tests
// =============================================================================

func TestAdapterGet(t *testing.T) {
	a, _ := buildAdapter(t, nil, 0)

	op, err := a.Get("measure")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !strings.HasPrefix(op.ID(), "op-") {
		t.Errorf("ID() = %q, want op- prefix", op.ID())
	}

	got, err := op.Await(testCtx(t))
	if err != nil {
		t.Fatalf("Await() error = %v", err)
	}
	if got != 23.0 {
		t.Errorf("Await() = %v, want 23.0", got)
	}
}

func TestAdapterSubmitResolvesEagerly(t *testing.T) {
	a, proto := buildAdapter(t, nil, 0)

	if _, err := a.Get("no.such.path"); !errors.Is(err, driver.ErrPathNotFound) {
		t.Fatalf("Get() error = %v, want ErrPathNotFound", err)
	}
	if got := proto.exchanges(); len(got) != 0 {
		t.Errorf("exchanges = %v, want none for a rejected submit", got)
	}
}

func TestAdapterFIFO(t *testing.T) {
	a, proto := buildAdapter(t, nil, 0)

	ops := make([]*Pending, 0, 4)
	for _, v := range []float64{1, 2, 3} {
		op, err := a.Set("setpoint", v)
		if err != nil {
			t.Fatalf("Set() error = %v", err)
		}
		ops = append(ops, op)
	}
	op, err := a.Get("setpoint")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	ops = append(ops, op)

	got, err := ops[3].Await(testCtx(t))
	if err != nil {
		t.Fatalf("Await() error = %v", err)
	}
	if got != 3.0 {
		t.Errorf("Get after sets = %v, want 3.0", got)
	}

	want := []string{"set setpoint 1", "set setpoint 2", "set setpoint 3", "get setpoint"}
	log := proto.exchanges()
	if len(log) != len(want) {
		t.Fatalf("exchanges = %v, want %v", log, want)
	}
	for i := range want {
		if log[i] != want[i] {
			t.Errorf("exchange %d = %q, want %q", i, log[i], want[i])
		}
	}
}

func TestAdapterQueueFull(t *testing.T) {
	gate := make(chan struct{})
	a, proto := buildAdapter(t, gate, 1)

	if _, err := a.Get("measure"); err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	<-proto.started // first operation is on the wire

	if _, err := a.Set("setpoint", 1.0); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	_, err := a.Set("setpoint", 2.0)
	if !errors.Is(err, ErrQueueFull) {
		t.Errorf("Set() error = %v, want ErrQueueFull", err)
	}
	if s := a.Stats(); s.Rejected != 1 {
		t.Errorf("Stats().Rejected = %d, want 1", s.Rejected)
	}

	close(gate)
}

// =============================================================================
// Cancellation Tests
// =============================================================================

func TestAdapterCancelQueued(t *testing.T) {
	gate := make(chan struct{})
	a, proto := buildAdapter(t, gate, 0)

	first, err := a.Get("measure")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	<-proto.started

	second, err := a.Set("setpoint", 5.0)
	if err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if !second.Cancel() {
		t.Fatal("Cancel() = false, want true for a queued operation")
	}
	if _, err := second.Result(); !errors.Is(err, ErrCancelled) {
		t.Errorf("Result() error = %v, want ErrCancelled", err)
	}

	close(gate)
	if _, err := first.Await(testCtx(t)); err != nil {
		t.Fatalf("Await() error = %v", err)
	}

	if log := proto.exchanges(); len(log) != 1 || log[0] != "get measure" {
		t.Errorf("exchanges = %v, want the uncancelled get only", log)
	}
	if s := a.Stats(); s.Cancelled != 1 {
		t.Errorf("Stats().Cancelled = %d, want 1", s.Cancelled)
	}
}

func TestAdapterCancelInFlight(t *testing.T) {
	gate := make(chan struct{})
	a, proto := buildAdapter(t, gate, 0)

	op, err := a.Get("measure")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	<-proto.started

	if op.Cancel() {
		t.Error("Cancel() = true, want false once the exchange started")
	}

	close(gate)
	if _, err := op.Await(testCtx(t)); err != nil {
		t.Fatalf("Await() error = %v", err)
	}
}

func TestAdapterResultBeforeCompletion(t *testing.T) {
	gate := make(chan struct{})
	a, proto := buildAdapter(t, gate, 0)

	op, err := a.Get("measure")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	<-proto.started

	if _, err := op.Result(); !errors.Is(err, ErrNotDone) {
		t.Errorf("Result() error = %v, want ErrNotDone", err)
	}

	close(gate)
}

func TestAdapterAwaitContext(t *testing.T) {
	gate := make(chan struct{})
	a, proto := buildAdapter(t, gate, 0)

	op, err := a.Get("measure")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	<-proto.started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := op.Await(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Await() error = %v, want DeadlineExceeded", err)
	}

	// The operation itself kept running.
	close(gate)
	got, err := op.Await(testCtx(t))
	if err != nil {
		t.Fatalf("Await() after release error = %v", err)
	}
	if got != 23.0 {
		t.Errorf("Await() = %v, want 23.0", got)
	}
}

// =============================================================================
// Shutdown Tests
// =============================================================================

func TestAdapterCloseCancelsQueued(t *testing.T) {
	gate := make(chan struct{})
	a, proto := buildAdapter(t, gate, 0)

	first, err := a.Get("measure")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	<-proto.started

	second, err := a.Set("setpoint", 1.0)
	if err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	closed := make(chan struct{})
	go func() {
		a.Close()
		close(closed)
	}()

	// Close waits for the in-flight operation.
	select {
	case <-closed:
		t.Fatal("Close() returned while an operation was on the wire")
	case <-time.After(50 * time.Millisecond):
	}

	close(gate)
	select {
	case <-closed:
	case <-time.After(5 * time.Second):
		t.Fatal("Close() did not return")
	}

	if _, err := first.Result(); err != nil {
		t.Errorf("in-flight Result() error = %v, want completion", err)
	}
	if _, err := second.Result(); !errors.Is(err, ErrClosed) {
		t.Errorf("queued Result() error = %v, want ErrClosed", err)
	}
}

func TestAdapterSubmitAfterClose(t *testing.T) {
	a, _ := buildAdapter(t, nil, 0)
	if err := a.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if _, err := a.Get("measure"); !errors.Is(err, ErrClosed) {
		t.Errorf("Get() error = %v, want ErrClosed", err)
	}
	if err := a.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

// =============================================================================
// Observer and Stats Tests
// =============================================================================

func TestAdapterObserver(t *testing.T) {
	a, _ := buildAdapter(t, nil, 0)

	var mu sync.Mutex
	var events []Event
	donech := make(chan struct{})
	a.SetObserver(func(ev Event) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, ev)
		if len(events) == 3 {
			close(donech)
		}
	})

	if _, err := a.Set("setpoint", 42.0); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if _, err := a.Invoke("reset"); err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if _, err := a.Get("setpoint"); err != nil {
		t.Fatalf("Get() error = %v", err)
	}

	select {
	case <-donech:
	case <-time.After(5 * time.Second):
		t.Fatal("observer did not receive all events")
	}

	mu.Lock()
	defer mu.Unlock()
	kinds := []Kind{KindSet, KindInvoke, KindGet}
	for i, k := range kinds {
		if events[i].Kind != k {
			t.Errorf("event %d kind = %v, want %v", i, events[i].Kind, k)
		}
		if events[i].Instrument != "stub-1" {
			t.Errorf("event %d instrument = %q, want stub-1", i, events[i].Instrument)
		}
		if events[i].Err != nil {
			t.Errorf("event %d error = %v", i, events[i].Err)
		}
	}
	if events[0].Value != 42.0 {
		t.Errorf("set event value = %v, want the submitted 42.0", events[0].Value)
	}
	if events[2].Value != 42.0 {
		t.Errorf("get event value = %v, want the decoded 42.0", events[2].Value)
	}
}

func TestAdapterObserverPanicContained(t *testing.T) {
	a, _ := buildAdapter(t, nil, 0)
	a.SetObserver(func(Event) { panic("observer bug") })

	op, err := a.Get("measure")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if _, err := op.Await(testCtx(t)); err != nil {
		t.Fatalf("Await() error = %v", err)
	}

	// A second operation still executes after the panic.
	op, err = a.Get("measure")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if _, err := op.Await(testCtx(t)); err != nil {
		t.Fatalf("Await() after panic error = %v", err)
	}
}

func TestAdapterStats(t *testing.T) {
	a, _ := buildAdapter(t, nil, 0)

	ops := []*Pending{}
	op, err := a.Get("measure")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	ops = append(ops, op)
	op, err = a.Set("setpoint", 1.0)
	if err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	ops = append(ops, op)
	// Reading an action is an access violation at execution time.
	op, err = a.Get("reset")
	if err != nil {
		t.Fatalf("Get(reset) error = %v", err)
	}
	ops = append(ops, op)

	for _, op := range ops {
		op.Await(testCtx(t))
	}
	if _, err := ops[2].Result(); !errors.Is(err, driver.ErrAccessViolation) {
		t.Errorf("Get(reset) Result() error = %v, want ErrAccessViolation", err)
	}

	s := a.Stats()
	if s.Submitted != 3 || s.Completed != 2 || s.Failed != 1 {
		t.Errorf("Stats() = %+v, want 3 submitted, 2 completed, 1 failed", s)
	}
}

// =============================================================================
// End To End Tests
// =============================================================================

func TestAdapterSetThenGetOnFurnace(t *testing.T) {
	inst, _, err := virtual.NewInstrument("furnace-1")
	if err != nil {
		t.Fatalf("NewInstrument() error = %v", err)
	}
	a, err := New(Options{Instrument: inst})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer a.Close()

	// A set followed immediately by a get must observe the written
	// value: the queue serializes them in submission order.
	setOp, err := a.Set("setpoint", 150.0)
	if err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	getOp, err := a.Get("setpoint")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}

	got, err := getOp.Await(testCtx(t))
	if err != nil {
		t.Fatalf("Await() error = %v", err)
	}
	if got != 150.0 {
		t.Errorf("Get after Set = %v, want 150.0", got)
	}
	if _, err := setOp.Result(); err != nil {
		t.Errorf("Set Result() error = %v", err)
	}
}

package adapter

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/benchrig/benchrig-core/internal/driver"
)

// closeOnce is a channel that tolerates being closed from several paths.
type closeOnce struct {
	ch   chan struct{}
	once sync.Once
}

func newCloseOnce() *closeOnce {
	return &closeOnce{ch: make(chan struct{})}
}

func (c *closeOnce) Close() {
	c.once.Do(func() { close(c.ch) })
}

func (c *closeOnce) Done() <-chan struct{} {
	return c.ch
}

// Queue sizing.
const (
	// defaultQueueSize bounds operations waiting for the wire. At
	// roughly a second per serial exchange this is already a minute
	// of backlog; past it the submitter should shed load.
	defaultQueueSize = 64

	// eventQueueSize bounds completion events waiting for the
	// observer. A slow observer drops events rather than stalling
	// the worker.
	eventQueueSize = 100
)

// Logger is the slog-shaped subset the adapter emits to when one is set.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Event is a completion notification. Value carries the decoded reading
// for gets and the submitted value for sets.
type Event struct {
	Instrument string
	ID         string
	Path       string
	Kind       Kind
	Value      any
	Err        error
	Elapsed    time.Duration
}

// Observer receives completion events on a dedicated goroutine, in
// completion order.
type Observer func(Event)

// Stats holds operational counters.
type Stats struct {
	Submitted     uint64
	Completed     uint64
	Failed        uint64
	Cancelled     uint64
	Rejected      uint64 // Submissions refused because the queue was full
	EventsDropped uint64 // Events dropped because the observer lagged
	QueueDepth    int
}

// Options configures New.
type Options struct {
	// Instrument is the device the adapter serializes access to.
	// Required.
	Instrument *driver.Instrument

	// QueueSize bounds the operation queue. Default: 64.
	QueueSize int

	// Logger is optional.
	Logger Logger
}

// Adapter owns an instrument's operation queue and executes submissions
// strictly in order on a single worker goroutine.
type Adapter struct {
	inst   *driver.Instrument
	queue  chan *Pending
	events chan Event

	observerMu sync.RWMutex
	observer   Observer

	mu     sync.RWMutex
	closed bool

	done *closeOnce
	wg   sync.WaitGroup

	logger   Logger
	loggerMu sync.RWMutex

	// Statistics (atomic for concurrent access)
	submitted     atomic.Uint64
	completed     atomic.Uint64
	failed        atomic.Uint64
	cancelled     atomic.Uint64
	rejected      atomic.Uint64
	eventsDropped atomic.Uint64
}

// New builds an adapter and starts its worker goroutines.
func New(opts Options) (*Adapter, error) {
	if opts.Instrument == nil {
		return nil, fmt.Errorf("adapter: instrument is required")
	}
	size := opts.QueueSize
	if size <= 0 {
		size = defaultQueueSize
	}

	a := &Adapter{
		inst:   opts.Instrument,
		queue:  make(chan *Pending, size),
		events: make(chan Event, eventQueueSize),
		done:   newCloseOnce(),
		logger: opts.Logger,
	}

	a.wg.Add(2)
	go a.worker()
	go a.eventWorker()
	return a, nil
}

// Instrument returns the device this adapter serializes.
func (a *Adapter) Instrument() *driver.Instrument { return a.inst }

// Name returns the instrument's name.
func (a *Adapter) Name() string { return a.inst.Name() }

// Get queues a query of the command at path.
func (a *Adapter) Get(path string) (*Pending, error) {
	return a.submit(KindGet, path, nil)
}

// Set queues a write of value to the command at path.
func (a *Adapter) Set(path string, value any) (*Pending, error) {
	return a.submit(KindSet, path, value)
}

// Invoke queues a fire of the command at path.
func (a *Adapter) Invoke(path string) (*Pending, error) {
	return a.submit(KindInvoke, path, nil)
}

// submit resolves the path, then queues the operation. Resolution
// happens here so a bad path fails immediately instead of behind the
// backlog; access, bounds and device faults surface through the
// operation's result.
func (a *Adapter) submit(kind Kind, path string, value any) (*Pending, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return nil, ErrClosed
	}

	if _, err := a.inst.Command(path); err != nil {
		return nil, err
	}

	op := &Pending{
		id:        "op-" + uuid.NewString()[:8],
		path:      path,
		kind:      kind,
		value:     value,
		submitted: time.Now(),
		adapter:   a,
		done:      make(chan struct{}),
	}

	select {
	case a.queue <- op:
	default:
		a.rejected.Add(1)
		return nil, fmt.Errorf("%w: %d operations queued", ErrQueueFull, len(a.queue))
	}
	a.submitted.Add(1)
	return op, nil
}

// SetObserver installs the completion observer. A nil observer turns
// event delivery off.
func (a *Adapter) SetObserver(fn Observer) {
	a.observerMu.Lock()
	a.observer = fn
	a.observerMu.Unlock()
}

// Stats returns a snapshot of the operational counters.
func (a *Adapter) Stats() Stats {
	return Stats{
		Submitted:     a.submitted.Load(),
		Completed:     a.completed.Load(),
		Failed:        a.failed.Load(),
		Cancelled:     a.cancelled.Load(),
		Rejected:      a.rejected.Load(),
		EventsDropped: a.eventsDropped.Load(),
		QueueDepth:    len(a.queue),
	}
}

// Close rejects further submissions, cancels everything still queued,
// waits for the in-flight operation and stops the workers.
func (a *Adapter) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	a.mu.Unlock()

	a.done.Close()
	a.wg.Wait()
	return nil
}

// worker executes queued operations one at a time. Shutdown is checked
// before each dequeue so operations still queued at close are cancelled
// rather than raced onto the wire.
func (a *Adapter) worker() {
	defer a.wg.Done()

	for {
		select {
		case <-a.done.Done():
			a.drainQueue()
			return
		default:
		}

		select {
		case <-a.done.Done():
			a.drainQueue()
			return
		case op := <-a.queue:
			a.execute(op)
		}
	}
}

// execute runs one operation against the instrument. An operation
// cancelled while queued is skipped without touching the wire.
func (a *Adapter) execute(op *Pending) {
	if !op.state.CompareAndSwap(opQueued, opRunning) {
		return
	}

	start := time.Now()
	var result any
	var err error
	switch op.kind {
	case KindGet:
		result, err = a.inst.Get(op.path)
	case KindSet:
		err = a.inst.Set(op.path, op.value)
	case KindInvoke:
		err = a.inst.Invoke(op.path)
	}
	elapsed := time.Since(start)

	op.state.Store(opDone)
	op.finish(result, err)

	if err != nil {
		a.failed.Add(1)
	} else {
		a.completed.Add(1)
	}

	value := result
	if op.kind == KindSet {
		value = op.value
	}
	a.emit(Event{
		Instrument: a.inst.Name(),
		ID:         op.id,
		Path:       op.path,
		Kind:       op.kind,
		Value:      value,
		Err:        err,
		Elapsed:    elapsed,
	})
}

// drainQueue finishes everything still queued at close.
func (a *Adapter) drainQueue() {
	for {
		select {
		case op := <-a.queue:
			if op.state.CompareAndSwap(opQueued, opCancelled) {
				a.cancelled.Add(1)
				op.finish(nil, ErrClosed)
			}
		default:
			return
		}
	}
}

// emit queues a completion event without blocking the worker.
func (a *Adapter) emit(ev Event) {
	a.observerMu.RLock()
	installed := a.observer != nil
	a.observerMu.RUnlock()
	if !installed {
		return
	}

	select {
	case a.events <- ev:
	default:
		a.eventsDropped.Add(1)
		a.logWarn("event dropped, observer lagging",
			"instrument", ev.Instrument, "path", ev.Path)
	}
}

// eventWorker delivers completion events in order.
func (a *Adapter) eventWorker() {
	defer a.wg.Done()

	for {
		select {
		case <-a.done.Done():
			// Drain any remaining events (best-effort, non-blocking)
			for {
				select {
				case ev := <-a.events:
					a.deliver(ev)
				default:
					return
				}
			}
		case ev := <-a.events:
			a.deliver(ev)
		}
	}
}

// deliver invokes the observer, containing any panic it raises.
func (a *Adapter) deliver(ev Event) {
	a.observerMu.RLock()
	fn := a.observer
	a.observerMu.RUnlock()
	if fn == nil {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			a.logError("observer panic", fmt.Errorf("%v", r))
		}
	}()
	fn(ev)
}

// logWarn logs a warning if a logger is set.
func (a *Adapter) logWarn(msg string, keysAndValues ...any) {
	a.loggerMu.RLock()
	logger := a.logger
	a.loggerMu.RUnlock()

	if logger != nil {
		logger.Warn(msg, keysAndValues...)
	}
}

// logError logs an error if a logger is set.
func (a *Adapter) logError(msg string, err error) {
	a.loggerMu.RLock()
	logger := a.logger
	a.loggerMu.RUnlock()

	if logger != nil {
		logger.Error(msg, "error", err)
	}
}

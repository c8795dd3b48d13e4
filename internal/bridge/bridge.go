package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benchrig/benchrig-core/internal/adapter"
	"github.com/benchrig/benchrig-core/internal/infrastructure/mqtt"
)

const (
	// defaultTimeout bounds one command from receipt to completion,
	// queueing included. Serial exchanges run about a second; ten
	// covers a full queue in front plus a slow device.
	defaultTimeout = 10 * time.Second

	// commandTopicParts is the level count of a command topic with a
	// single-level namespace prefix.
	commandTopicParts = 5
)

// MQTTClient is the broker surface the bridge needs. *mqtt.Client
// satisfies it; tests substitute a capture fake.
type MQTTClient interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
}

var _ MQTTClient = (*mqtt.Client)(nil)

// Submitter queues operations against one instrument. *adapter.Adapter
// satisfies it.
type Submitter interface {
	Get(path string) (*adapter.Pending, error)
	Set(path string, value any) (*adapter.Pending, error)
	Invoke(path string) (*adapter.Pending, error)
}

// InstrumentSource resolves instrument names to their submitters,
// typically a thin wrapper over the rig registry.
type InstrumentSource interface {
	Lookup(name string) (Submitter, bool)
}

// Logger is a minimal logging interface to avoid coupling to a
// specific logging library.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// noopLogger is used when no logger is provided.
type noopLogger struct{}

func (noopLogger) Debug(msg string, keysAndValues ...any) {}
func (noopLogger) Info(msg string, keysAndValues ...any)  {}
func (noopLogger) Warn(msg string, keysAndValues ...any)  {}
func (noopLogger) Error(msg string, keysAndValues ...any) {}

// Stats holds operational counters.
type Stats struct {
	Commands        uint64 // commands received on well-formed topics
	Failures        uint64 // commands answered with a failure ack
	StatesPublished uint64
	Dropped         uint64 // messages the bridge could not route at all
}

// Options configures New.
type Options struct {
	// MQTT carries the command subscription and publishes acks and
	// state. Required.
	MQTT MQTTClient

	// Instruments resolves instrument names to their adapters.
	// Required.
	Instruments InstrumentSource

	// Topics is the namespace the bridge serves. The zero value uses
	// the default prefix.
	Topics mqtt.Topics

	// QoS applies to the command subscription and every publish.
	QoS byte

	// Timeout bounds one command from receipt to completion. Default:
	// 10s.
	Timeout time.Duration

	// Logger is optional.
	Logger Logger
}

// Bridge serves the MQTT command surface: it subscribes to the command
// namespace, runs each command against the named instrument's adapter,
// answers with an ack, and mirrors completed operations onto retained
// state topics. All methods are safe for concurrent use.
type Bridge struct {
	mqtt        MQTTClient
	instruments InstrumentSource
	topics      mqtt.Topics
	qos         byte
	timeout     time.Duration
	logger      Logger

	// State cache for change suppression on retained topics.
	stateMu    sync.Mutex
	stateCache map[string]map[string]any

	// Shutdown coordination. Handlers register with wg under mu so
	// Stop can block until the in-flight ones drain.
	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup

	ctx       context.Context
	ctxCancel context.CancelFunc
	stopOnce  sync.Once

	commands atomic.Uint64
	failures atomic.Uint64
	states   atomic.Uint64
	dropped  atomic.Uint64
}

// New builds a bridge. Call Start to begin serving commands.
func New(opts Options) (*Bridge, error) {
	if opts.MQTT == nil {
		return nil, fmt.Errorf("bridge: MQTT client is required")
	}
	if opts.Instruments == nil {
		return nil, fmt.Errorf("bridge: instrument source is required")
	}
	if opts.QoS > 2 {
		return nil, fmt.Errorf("bridge: QoS %d is not a valid MQTT level", opts.QoS)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Bridge{
		mqtt:        opts.MQTT,
		instruments: opts.Instruments,
		topics:      opts.Topics,
		qos:         opts.QoS,
		timeout:     timeout,
		logger:      logger,
		stateCache:  make(map[string]map[string]any),
		ctx:         ctx,
		ctxCancel:   cancel,
	}, nil
}

// Start subscribes to the command namespace. The bridge serves
// commands until Stop.
func (b *Bridge) Start() error {
	pattern := b.topics.AllCommands()
	if err := b.mqtt.Subscribe(pattern, b.qos, b.handleCommand); err != nil {
		return fmt.Errorf("subscribing to commands: %w", err)
	}
	b.logger.Info("bridge started", "pattern", pattern, "qos", b.qos)
	return nil
}

// Stop rejects new commands, aborts the ones still waiting and blocks
// until in-flight handlers return. Safe to call more than once.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		b.mu.Lock()
		b.closed = true
		b.mu.Unlock()

		b.ctxCancel()
		b.wg.Wait()
		b.logger.Info("bridge stopped")
	})
}

// Stats returns a snapshot of the operational counters.
func (b *Bridge) Stats() Stats {
	return Stats{
		Commands:        b.commands.Load(),
		Failures:        b.failures.Load(),
		StatesPublished: b.states.Load(),
		Dropped:         b.dropped.Load(),
	}
}

// track registers a handler with the shutdown group. It reports false
// once Stop has begun, after which messages are dropped unanswered.
func (b *Bridge) track() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return false
	}
	b.wg.Add(1)
	return true
}

// handleCommand serves one command message. A returned error means the
// message could not be routed at all and is logged by the MQTT client;
// every routable command is answered with an ack and returns nil.
func (b *Bridge) handleCommand(topic string, payload []byte) error {
	if !b.track() {
		return nil
	}
	defer b.wg.Done()

	start := time.Now()

	instrument, path, verb, err := splitCommandTopic(topic)
	if err != nil {
		b.dropped.Add(1)
		return err
	}

	var cmd CommandMessage
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &cmd); err != nil {
			b.dropped.Add(1)
			return fmt.Errorf("command payload on %q: %w", topic, err)
		}
	}
	b.commands.Add(1)

	sub, ok := b.instruments.Lookup(instrument)
	if !ok {
		b.publishAck(newErrorAck(cmd.ID, instrument, path, verb,
			fmt.Errorf("%w: %s", ErrNotRunning, instrument), time.Since(start)))
		return nil
	}

	var op *adapter.Pending
	switch verb {
	case "get":
		op, err = sub.Get(path)
	case "set":
		op, err = sub.Set(path, cmd.Value)
	case "invoke":
		op, err = sub.Invoke(path)
	default:
		b.publishAck(newErrorAck(cmd.ID, instrument, path, verb,
			fmt.Errorf("%w: %q", ErrUnknownVerb, verb), time.Since(start)))
		return nil
	}
	if err != nil {
		b.publishAck(newErrorAck(cmd.ID, instrument, path, verb, err, time.Since(start)))
		return nil
	}

	ctx, cancel := context.WithTimeout(b.ctx, b.timeout)
	defer cancel()
	result, err := op.Await(ctx)
	if err != nil {
		// Pull the operation from the queue if it has not reached the
		// wire; one that has keeps running and completes unobserved.
		op.Cancel()
		if errors.Is(err, context.Canceled) {
			return nil // shutting down, no ack for an abandoned command
		}
		b.publishAck(newErrorAck(cmd.ID, instrument, path, verb, err, time.Since(start)))
		return nil
	}

	value := result
	if verb == "set" {
		value = cmd.Value
	}
	b.publishAck(newAck(cmd.ID, instrument, path, verb, value, time.Since(start)))
	return nil
}

// splitCommandTopic extracts the instrument, path and verb from a
// command topic. Fields anchor on the trailing levels so a namespace
// prefix containing slashes cannot shift them.
func splitCommandTopic(topic string) (instrument, path, verb string, err error) {
	parts := strings.Split(topic, "/")
	if len(parts) < commandTopicParts {
		return "", "", "", fmt.Errorf("%w: %q has %d levels", ErrBadTopic, topic, len(parts))
	}
	n := len(parts)
	if parts[n-4] != "command" {
		return "", "", "", fmt.Errorf("%w: %q is on channel %q", ErrBadTopic, topic, parts[n-4])
	}
	instrument, path, verb = parts[n-3], parts[n-2], parts[n-1]
	if instrument == "" || path == "" || verb == "" {
		return "", "", "", fmt.Errorf("%w: %q has an empty level", ErrBadTopic, topic)
	}
	return instrument, path, verb, nil
}

// publishAck marshals and publishes one acknowledgement.
func (b *Bridge) publishAck(ack AckMessage) {
	if !ack.OK {
		b.failures.Add(1)
	}

	payload, err := json.Marshal(ack)
	if err != nil {
		b.logger.Error("marshalling ack failed", "error", err, "instrument", ack.Instrument)
		return
	}
	topic := b.topics.Ack(ack.Instrument)
	if err := b.mqtt.Publish(topic, payload, b.qos, false); err != nil {
		b.logger.Error("publishing ack failed", "error", err, "topic", topic)
	}
}

// HandleEvent mirrors completed operations onto retained state topics.
// Wire it as the registry's completion observer, or into a fan-out
// when other consumers need events too. Failed operations and invokes
// carry no state; repeat values are suppressed so a retained topic
// only moves when the instrument does.
func (b *Bridge) HandleEvent(ev adapter.Event) {
	if ev.Err != nil || ev.Kind == adapter.KindInvoke {
		return
	}
	if b.stateUnchanged(ev.Instrument, ev.Path, ev.Value) {
		return
	}

	payload, err := json.Marshal(newStateMessage(ev.Value))
	if err != nil {
		b.logger.Error("marshalling state failed", "error", err, "instrument", ev.Instrument)
		return
	}
	topic := b.topics.State(ev.Instrument, ev.Path)
	if err := b.mqtt.Publish(topic, payload, b.qos, true); err != nil {
		b.logger.Error("publishing state failed", "error", err, "topic", topic)
		return
	}
	b.states.Add(1)
}

// stateUnchanged reports whether the cache already holds value for the
// instrument's path, recording it when not.
func (b *Bridge) stateUnchanged(instrument, path string, value any) bool {
	b.stateMu.Lock()
	defer b.stateMu.Unlock()

	paths := b.stateCache[instrument]
	if paths == nil {
		paths = make(map[string]any)
		b.stateCache[instrument] = paths
	}
	if prev, seen := paths[path]; seen && valuesEqual(prev, value) {
		return true
	}
	paths[path] = value
	return false
}

// valuesEqual compares two decoded values. []byte gets element
// comparison; everything else the codecs produce is a comparable
// scalar.
func valuesEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == b
	}
	aBytes, aOK := a.([]byte)
	bBytes, bOK := b.([]byte)
	if aOK || bOK {
		return aOK && bOK && string(aBytes) == string(bBytes)
	}
	return a == b
}

package bridge

import (
	"context"
	"errors"
	"time"

	"github.com/benchrig/benchrig-core/internal/adapter"
	"github.com/benchrig/benchrig-core/internal/driver"
	"github.com/benchrig/benchrig-core/internal/protocol"
	"github.com/benchrig/benchrig-core/internal/transport"
)

// MQTT message schemas for the instrument bus. Commands arrive from
// bench clients, every command is answered by exactly one ack, and
// state topics carry retained values for late joiners.

// CommandMessage is the payload clients publish on command topics.
// Topic: {prefix}/command/{instrument}/{path}/{verb}
//
// An empty payload is a valid command with no ID and no value, the
// shape a quick mosquitto_pub produces.
type CommandMessage struct {
	// ID correlates the command with its acknowledgement. The bridge
	// echoes it verbatim; an empty ID is accepted but leaves the ack
	// unmatched.
	ID string `json:"id"`

	// Value is the value to write for set commands. Ignored for get
	// and invoke.
	Value any `json:"value"`
}

// AckMessage answers exactly one command, successful or not.
// Topic: {prefix}/ack/{instrument}
type AckMessage struct {
	// ID is the client's correlation ID, echoed from the command.
	ID string `json:"id"`

	// Instrument, Path and Verb restate the command's target so
	// subscribers sharing the ack topic can filter.
	Instrument string `json:"instrument"`
	Path       string `json:"path"`
	Verb       string `json:"verb"`

	// OK reports whether the operation completed.
	OK bool `json:"ok"`

	// Value carries the decoded reading for gets and echoes the
	// written value for sets. Null for invokes and failures.
	Value any `json:"value"`

	// Error is the failure description. Empty on success.
	Error string `json:"error,omitempty"`

	// Code classifies the failure for programmatic handling. Empty on
	// success.
	Code string `json:"code,omitempty"`

	// ElapsedMs is the time from command receipt to completion,
	// queueing included.
	ElapsedMs int64 `json:"elapsed_ms"`
}

// Ack failure codes, assigned by classify.
const (
	CodeAccessViolation = "access_violation"
	CodeRange           = "range"
	CodeNotFound        = "not_found"
	CodeTimeout         = "timeout"
	CodeDevice          = "device"
	CodeDecode          = "decode"
	CodeBusy            = "busy"
	CodeInternal        = "internal"
)

// StateMessage is the retained payload on state topics: the last
// observed value of one command node.
// Topic: {prefix}/state/{instrument}/{path}
// Retained: yes
type StateMessage struct {
	// Value is the decoded reading for gets, or the accepted value
	// for sets.
	Value any `json:"value"`

	// Timestamp is when the value last changed (UTC, RFC3339).
	// Repeat observations of the same value do not refresh it.
	Timestamp string `json:"timestamp"`
}

// newAck builds a success acknowledgement.
func newAck(id, instrument, path, verb string, value any, elapsed time.Duration) AckMessage {
	return AckMessage{
		ID:         id,
		Instrument: instrument,
		Path:       path,
		Verb:       verb,
		OK:         true,
		Value:      value,
		ElapsedMs:  elapsed.Milliseconds(),
	}
}

// newErrorAck builds a failure acknowledgement, classifying err into
// an ack code.
func newErrorAck(id, instrument, path, verb string, err error, elapsed time.Duration) AckMessage {
	return AckMessage{
		ID:         id,
		Instrument: instrument,
		Path:       path,
		Verb:       verb,
		Error:      err.Error(),
		Code:       classify(err),
		ElapsedMs:  elapsed.Milliseconds(),
	}
}

// newStateMessage builds a retained state payload stamped now.
func newStateMessage(value any) StateMessage {
	return StateMessage{
		Value:     value,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// classify maps an operation error to its ack code. Sentinels from
// the driver, transport and adapter layers identify the client-facing
// categories; anything unrecognised is internal.
func classify(err error) string {
	var devErr *protocol.DeviceError
	switch {
	case errors.Is(err, driver.ErrAccessViolation):
		return CodeAccessViolation
	case errors.Is(err, driver.ErrOutOfRange), errors.Is(err, driver.ErrEncode):
		return CodeRange
	case errors.Is(err, driver.ErrPathNotFound),
		errors.Is(err, ErrNotRunning),
		errors.Is(err, ErrUnknownVerb):
		return CodeNotFound
	case errors.Is(err, transport.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return CodeTimeout
	case errors.As(err, &devErr):
		return CodeDevice
	case errors.Is(err, driver.ErrDecode):
		return CodeDecode
	case errors.Is(err, adapter.ErrQueueFull):
		return CodeBusy
	default:
		return CodeInternal
	}
}

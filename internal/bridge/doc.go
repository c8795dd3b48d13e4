// Package bridge exposes the instrument registry over MQTT.
//
// It is the translation layer between bench clients and the serial
// instruments the rig manages:
//
//	┌──────────────────┐          ┌─────────────────┐          ┌─────────────┐
//	│  bench clients   │   MQTT   │     bridge      │          │  instrument │
//	│ (dashboards,     │◄────────►│   (this pkg)    │◄────────►│  adapters   │
//	│  loggers, CLIs)  │          │                 │          │             │
//	└──────────────────┘          └─────────────────┘          └─────────────┘
//
// # Topic Namespace
//
// Commands arrive on {prefix}/command/{instrument}/{path}/{verb} where
// path is the instrument's dotted command path ("measure", "pid.gain")
// and verb is get, set or invoke. The payload is a CommandMessage;
// empty payloads are valid commands without ID or value.
//
// Every command is answered by exactly one AckMessage on
// {prefix}/ack/{instrument}, carrying the client's correlation ID, the
// outcome, the value, and on failure a classification code such as
// "range" or "timeout".
//
// Completed gets and sets additionally refresh the retained topic
// {prefix}/state/{instrument}/{path}. Repeat values are suppressed, so
// state topics are a current-value surface: a late subscriber receives
// the last known value immediately, and updates only when a value
// actually changes. Clients that want every sample subscribe to the
// ack topic instead.
//
// # Flow
//
// Incoming commands resolve against the rig registry, queue on the
// named instrument's adapter, and block the handler until the exchange
// completes or the bridge timeout expires. The MQTT client runs each
// handler on its own goroutine, so a slow instrument delays only its
// own callers.
//
// # Thread Safety
//
// All exported methods are safe for concurrent use.
package bridge

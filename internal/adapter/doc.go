// Package adapter provides serialized asynchronous access to an
// instrument.
//
// Driver calls block for the full wire exchange, which can take most of
// a second on slow serial devices. The adapter turns them into queued
// operations so callers such as the MQTT bridge and the HTTP API can
// submit work without holding a goroutine per exchange.
//
// # Architecture
//
//	Get / Set / Invoke
//	      │  resolve path, enqueue
//	      ▼
//	┌───────────┐     ┌────────────┐     ┌──────────────┐
//	│ op queue  │────▶│   worker   │────▶│  Instrument  │
//	│  (FIFO)   │     │ (1 per     │     │  (exclusive  │
//	└───────────┘     │  adapter)  │     │   exchange)  │
//	                  └─────┬──────┘     └──────────────┘
//	                        │ completion events
//	                        ▼
//	                  ┌────────────┐
//	                  │event queue │────▶ Observer
//	                  └────────────┘
//
// # Key Types
//
//   - Adapter: owns the queue and the single worker goroutine.
//   - Pending: a submitted operation; await, poll or cancel it.
//   - Event: completion notification delivered to the observer.
//
// # Semantics
//
// Operations execute strictly in submission order. The path is resolved
// at submit time, so a misspelled path fails immediately rather than
// after queueing behind a slow exchange. Queued operations can be
// cancelled; an operation that has reached the wire cannot, since
// half-finished exchanges would desynchronise the device conversation.
// Close cancels everything still queued and waits for the in-flight
// operation to finish.
//
// # Usage
//
//	a, err := adapter.New(adapter.Options{Instrument: inst})
//	if err != nil {
//		...
//	}
//	defer a.Close()
//
//	op, err := a.Set("setpoint", 150.0)
//	if err != nil {
//		...
//	}
//	if _, err := op.Await(ctx); err != nil {
//		...
//	}
//
// # Thread Safety
//
// All Adapter and Pending methods are safe for concurrent use. The
// observer runs on a dedicated goroutine; a slow observer drops events
// rather than stalling operations.
package adapter

// Package driver provides the command model at the heart of BenchRig Core.
//
// A driver describes an instrument as a tree of named, typed command
// descriptors. The tree is assembled once at driver-definition time,
// bound to exactly one transport and one protocol, and is immutable from
// then on. Everything above this package (rig registry, MQTT bridge,
// REST API) addresses commands through this model; everything below it
// (protocol framing, transports) only ever sees the evaluation context
// the model produces.
//
// # Architecture
//
//	┌──────────────────────────────────────────────────────────────┐
//	│                        Instrument                            │
//	│                                                              │
//	│  root Subsystem ── child Subsystem ── ...                    │
//	│        │                  │                                  │
//	│     Command            Command      (named, typed, bounded)  │
//	│                                                              │
//	│  one Transport + one Protocol + one mutex                    │
//	└──────────────────────────────────────────────────────────────┘
//
// # Key Types
//
//   - Command: immutable descriptor for one controllable quantity
//     (mnemonics, access mode, bounds, value codec)
//   - Subsystem: a named grouping node owning commands and nested
//     subsystems, mirroring the device's menu structure
//   - Instrument: the root of one tree bound to one transport and one
//     protocol; the unit of mutual exclusion
//   - Codec: converts between decoded values and their wire text
//   - Context: the addressing attributes handed to the framing engine
//
// # Usage
//
//	meter := driver.NewSubsystem(nil)
//	measure, _ := driver.NewCommand(driver.Spec{
//	    Read:   "QM",
//	    Access: driver.ReadOnly,
//	    Codec:  driver.FloatCodec{},
//	})
//	_ = meter.Define("measure", measure)
//
//	inst, _ := driver.NewInstrument(driver.InstrumentOptions{
//	    Name:      "bench-dmm",
//	    Transport: port,
//	    Protocol:  proto,
//	    Root:      meter,
//	})
//
//	value, err := inst.Get("measure")
//
// # Thread Safety
//
// Trees are read-only after the instrument is built; wire traffic is
// serialised by the instrument's mutex. Callers that need asynchronous,
// queued access should wrap the instrument in an adapter.Adapter.
package driver

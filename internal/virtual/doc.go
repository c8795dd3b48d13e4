// Package virtual implements a simulated bench furnace: a first-order
// thermal plant regulated by a software PID controller, exposed through
// the same transport and protocol layers as real hardware.
//
// # Architecture
//
//	┌───────────────────────────────────────────────┐
//	│              driver.Instrument                │
//	│   measure / setpoint / output / pid.* tree    │
//	└──────────────────────┬────────────────────────┘
//	                       │ ack-digit serial dialect
//	                       ▼
//	┌───────────────────────────────────────────────┐
//	│               virtual.Furnace                 │
//	│  line grammar ("MEAS?", "SP 40", "RST", ...)  │
//	│        ┌─────────┐      ┌──────────┐          │
//	│        │   PID   │─────▶│  plant   │          │
//	│        └─────────┘      └──────────┘          │
//	└───────────────────────────────────────────────┘
//
// The furnace implements driver.Transport, so everything above it is
// byte-identical to a serial instrument: requests render through
// templates, responses carry an acknowledge digit, and malformed
// requests produce device error codes. Time never flows on its own;
// callers step the simulation explicitly with Advance, which keeps
// every run reproducible.
//
// # Key Types
//
//   - PID: the control algorithm, standard form with anti-windup
//   - Profile: piecewise-linear setpoint ramps
//   - Furnace: the simulated device behind a transport
//
// # Usage
//
//	inst, furnace, err := virtual.NewInstrument("furnace-1")
//	if err != nil {
//		return err
//	}
//	if err := inst.Set("setpoint", 100.0); err != nil {
//		return err
//	}
//	furnace.Advance(time.Second)
//	temp, err := inst.Get("measure")
//
// # Thread Safety
//
// Furnace guards its state with a mutex: exchanges arriving through the
// instrument and Advance calls from a ticker goroutine interleave
// safely. PID and Profile are not synchronised on their own.
package virtual

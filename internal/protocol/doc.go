// Package protocol implements the framing engine that turns command
// exchanges into wire traffic: request templates, acknowledge and
// status lines, busy/ready handshakes, enquiry follow-ups, and
// post-write verification queries.
//
// # Architecture
//
//	┌──────────────────────────────────────────────────────┐
//	│                  driver.Instrument                   │
//	│            (one exchange under one lock)             │
//	└──────────────────────────┬───────────────────────────┘
//	                           │ driver.Protocol
//	                           ▼
//	┌──────────────────────────────────────────────────────┐
//	│                    protocol.Serial                   │
//	│  render template → write request                     │
//	│    → [echo] → [handshake] → [status] → [enquiry]     │
//	│    → payload → [trailer] → [verify]                  │
//	└──────────────────────────┬───────────────────────────┘
//	                           │ driver.Transport
//	                           ▼
//	                 serial port / socket / tester
//
// Every bracketed phase is optional and declared in Config; the
// composition covers the common bench-instrument dialects: a bare
// request/response, a numeric acknowledge digit before the payload, an
// ACK/NAK byte followed by an enquiry, XON/XOFF busy signalling with a
// follow-up error register query, and echoed requests with an OK/ERR
// trailer line.
//
// # Key Types
//
//   - Template: the {param[x]}/{subsys[x]}/{instr[x]}/{value} request
//     mini-language, validated at construction
//   - Serial: the framing engine, configured per device dialect
//   - DeviceError: a non-success status reported by the hardware
//
// # Usage
//
//	p, err := protocol.NewSerial(protocol.Config{
//		ReadTemplate: "{param[read]}\r",
//		Status:       &protocol.StatusSpec{},
//	})
//	if err != nil {
//		return err
//	}
//	inst, err := driver.NewInstrument(driver.InstrumentOptions{
//		Name:      "dmm",
//		Transport: tr,
//		Protocol:  p,
//		Root:      root,
//	})
//
// # Error Handling
//
// Hardware-reported failures surface as *DeviceError. Malformed
// envelopes (wrong echo, unknown acknowledge, garbled trailer) wrap
// driver.ErrDecode: a response that does not match the declared dialect
// fails loudly rather than being truncated to its first line. Silence
// propagates the transport's timeout error unchanged.
//
// # Thread Safety
//
// Serial holds no exchange state; the owning instrument's lock is the
// only serialisation required.
package protocol

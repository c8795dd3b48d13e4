// Package transport provides byte-level connections to laboratory
// instruments: serial ports, TCP sockets, and a scripted tester for
// exercising protocol engines without hardware.
//
// # Architecture
//
//	┌─────────────────────────────────────────────────┐
//	│                Protocol Engine                  │
//	│        (framing, handshakes, status codes)      │
//	└───────────────────┬─────────────────────────────┘
//	                    │ driver.Transport
//	      ┌─────────────┼─────────────┐
//	      ▼             ▼             ▼
//	 ┌─────────┐   ┌─────────┐   ┌─────────┐
//	 │ Serial  │   │ Socket  │   │ Tester  │
//	 │ (tarm)  │   │  (TCP)  │   │(scripted)│
//	 └─────────┘   └─────────┘   └─────────┘
//
// All three implement driver.Transport: terminator-delimited reads with
// a per-call timeout, whole-payload writes, and idempotent Close. Reads
// retain any bytes received past the terminator, so burst responses
// spanning several lines are served line by line.
//
// # Key Types
//
//   - Serial: RS-232 port via github.com/tarm/serial
//   - Socket: TCP connection for ethernet-attached instruments
//   - Tester: in-memory scripted exchange list for tests
//
// # Usage
//
//	tr, err := transport.OpenSerial(transport.SerialConfig{
//		Device: "/dev/ttyUSB0",
//		Baud:   9600,
//	})
//	if err != nil {
//		return err
//	}
//	defer tr.Close()
//
//	if err := tr.Write([]byte("QM\r")); err != nil {
//		return err
//	}
//	line, err := tr.Read([]byte("\r"), time.Second)
//
// # Thread Safety
//
// A transport carries exactly one conversation: callers serialise
// access, normally by routing every exchange through a driver.Instrument.
// Close is safe to call concurrently with a blocked Read.
package transport

package virtual

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/benchrig/benchrig-core/internal/driver"
	"github.com/benchrig/benchrig-core/internal/protocol"
	"github.com/benchrig/benchrig-core/internal/transport"
)

// Furnace simulation parameters.
const (
	// furnaceAmbient is the resting temperature in degrees C.
	furnaceAmbient = 23.0

	// furnaceGain is the steady-state rise above ambient per percent
	// of heater output.
	furnaceGain = 5.0

	// furnaceTau is the thermal time constant in seconds.
	furnaceTau = 30.0

	// furnaceTick is the controller period used when stepping the
	// simulation; Advance splits larger durations into these.
	furnaceTick = 100 * time.Millisecond

	// furnaceTerminator delimits grammar lines in both directions.
	furnaceTerminator = "\r"
)

// Furnace grammar status codes, reported on the acknowledge line.
const (
	statusOK         = "0"
	statusUnknownCmd = "2"
	statusBadArg     = "3"
)

// furnaceStatusCodes names the non-success codes for device errors.
var furnaceStatusCodes = map[string]string{
	statusUnknownCmd: "unknown command",
	statusBadArg:     "invalid argument",
}

// plant is a first-order thermal model: the temperature relaxes toward
// ambient plus heater contribution with time constant tau.
type plant struct {
	ambient float64
	gain    float64
	tau     float64
	temp    float64
}

func (pl *plant) step(output, dt float64) {
	target := pl.ambient + pl.gain*output
	pl.temp += (target - pl.temp) * dt / pl.tau
}

// Furnace is a simulated heating device behind a driver.Transport.
//
// The grammar is line-oriented with an acknowledge digit, queries
// answering "0" then the value and sets answering "0" alone:
//
//	MEAS?                 current temperature
//	SP? / SP <v>          setpoint
//	OUT?                  last controller output, percent
//	KP?  / KP <v>         proportional gain
//	TI?  / TI <v>         integral time, seconds
//	TD?  / TD <v>         derivative time, seconds
//	OMIN? / OMIN <v>      output clamp floor
//	OMAX? / OMAX <v>      output clamp ceiling
//	PROG? / PROG <t:sp;…> setpoint ramp; "PROG OFF" cancels
//	RST                   reset controller, plant and ramp
//
// Unknown mnemonics answer "2", malformed arguments "3". Time advances
// only through Advance, so simulations replay identically.
type Furnace struct {
	mu sync.Mutex

	pid    *PID
	plant  plant
	output float64
	clock  time.Time

	profile      *Profile
	profileStart time.Time

	pending []byte
	closed  bool
}

var _ driver.Transport = (*Furnace)(nil)

// NewFurnace builds a furnace at ambient temperature with default
// tuning.
func NewFurnace() *Furnace {
	now := time.Now()
	return &Furnace{
		pid: NewPID(now),
		plant: plant{
			ambient: furnaceAmbient,
			gain:    furnaceGain,
			tau:     furnaceTau,
			temp:    furnaceAmbient,
		},
		clock: now,
	}
}

// Advance steps the simulation by d: the ramp (when active) moves the
// setpoint, the controller computes a fresh output, and the plant
// integrates it, in slices of the controller period.
func (f *Furnace) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for d > 0 {
		step := furnaceTick
		if d < step {
			step = d
		}
		f.clock = f.clock.Add(step)

		if f.profile != nil {
			elapsed := f.clock.Sub(f.profileStart)
			f.pid.Setpoint = f.profile.Setpoint(elapsed)
			if elapsed >= f.profile.Duration() {
				f.profile = nil
			}
		}

		f.output = f.pid.Compute(f.plant.temp, f.clock)
		f.plant.step(f.output, step.Seconds())
		d -= step
	}
}

// Temperature returns the current plant temperature.
func (f *Furnace) Temperature() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.plant.temp
}

// Read serves queued response bytes. The timeout is not waited out: an
// empty queue means the grammar produced no response, the simulated
// equivalent of a silent device.
func (f *Furnace) Read(terminator []byte, _ time.Duration) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return nil, transport.ErrClosed
	}
	if len(terminator) == 0 {
		if len(f.pending) == 0 {
			return nil, fmt.Errorf("%w: furnace has no byte to serve", transport.ErrTimeout)
		}
		by := f.pending[0]
		f.pending = f.pending[1:]
		return []byte{by}, nil
	}

	idx := bytes.Index(f.pending, terminator)
	if idx < 0 {
		return nil, fmt.Errorf("%w: furnace has no line to serve", transport.ErrTimeout)
	}
	end := idx + len(terminator)
	line := make([]byte, end)
	copy(line, f.pending[:end])
	f.pending = f.pending[end:]
	return line, nil
}

// Write parses one request line and queues the grammar's response.
func (f *Furnace) Write(p []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return transport.ErrClosed
	}

	line := strings.TrimSuffix(string(p), furnaceTerminator)
	for _, resp := range f.handle(strings.Fields(line)) {
		f.pending = append(f.pending, resp...)
		f.pending = append(f.pending, furnaceTerminator...)
	}
	return nil
}

// Close marks the furnace closed.
func (f *Furnace) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// handle executes one parsed request and returns the response lines.
// Callers hold f.mu.
func (f *Furnace) handle(fields []string) []string {
	if len(fields) == 0 {
		return []string{statusBadArg}
	}
	mnemonic, args := fields[0], fields[1:]

	if strings.HasSuffix(mnemonic, "?") {
		if len(args) != 0 {
			return []string{statusBadArg}
		}
		return f.query(strings.TrimSuffix(mnemonic, "?"))
	}

	switch mnemonic {
	case "RST":
		if len(args) != 0 {
			return []string{statusBadArg}
		}
		f.pid = NewPID(f.clock)
		f.plant.temp = f.plant.ambient
		f.output = 0
		f.profile = nil
		return []string{statusOK}
	case "PROG":
		if len(args) != 1 {
			return []string{statusBadArg}
		}
		if args[0] == "OFF" {
			f.profile = nil
			return []string{statusOK}
		}
		prof, err := ParseProfile(args[0])
		if err != nil {
			return []string{statusBadArg}
		}
		f.profile = prof
		f.profileStart = f.clock
		return []string{statusOK}
	}

	if len(args) != 1 {
		return []string{statusBadArg}
	}
	value, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		return []string{statusBadArg}
	}
	switch mnemonic {
	case "SP":
		f.pid.Setpoint = value
	case "KP":
		f.pid.Gain = value
	case "TI":
		f.pid.SetIntegralTime(value)
	case "TD":
		f.pid.SetDerivativeTime(value)
	case "OMIN":
		f.pid.OutputMin = value
	case "OMAX":
		f.pid.OutputMax = value
	default:
		return []string{statusUnknownCmd}
	}
	return []string{statusOK}
}

// query answers one "<mnemonic>?" request. Callers hold f.mu.
func (f *Furnace) query(mnemonic string) []string {
	var value float64
	switch mnemonic {
	case "MEAS":
		value = f.plant.temp
	case "SP":
		value = f.pid.Setpoint
	case "OUT":
		value = f.output
	case "KP":
		value = f.pid.Gain
	case "TI":
		value = f.pid.IntegralTime()
	case "TD":
		value = f.pid.DerivativeTime()
	case "OMIN":
		value = f.pid.OutputMin
	case "OMAX":
		value = f.pid.OutputMax
	case "PROG":
		if f.profile != nil {
			remaining := f.profile.Duration() - f.clock.Sub(f.profileStart)
			if remaining > 0 {
				value = remaining.Seconds()
			}
		}
	default:
		return []string{statusUnknownCmd}
	}
	return []string{statusOK, strconv.FormatFloat(value, 'g', -1, 64)}
}

// NewInstrument assembles a fully wired virtual furnace: the simulated
// device, its acknowledge-digit dialect, and the command tree.
func NewInstrument(name string) (*driver.Instrument, *Furnace, error) {
	furnace := NewFurnace()
	inst, err := Bind(name, furnace)
	if err != nil {
		return nil, nil, err
	}
	return inst, furnace, nil
}

// Bind assembles the dialect and command tree around an existing
// furnace, for callers that open transports themselves.
func Bind(name string, furnace *Furnace) (*driver.Instrument, error) {
	dialect, err := protocol.NewSerial(protocol.Config{
		ReadTemplate:  "{param[read]}" + furnaceTerminator,
		WriteTemplate: "{param[write]} {value}" + furnaceTerminator,
		Terminator:    furnaceTerminator,
		Status:        &protocol.StatusSpec{Codes: furnaceStatusCodes},
	})
	if err != nil {
		return nil, err
	}

	root, err := furnaceTree()
	if err != nil {
		return nil, err
	}

	return driver.NewInstrument(driver.InstrumentOptions{
		Name:      name,
		Transport: furnace,
		Protocol:  dialect,
		Root:      root,
	})
}

// furnaceTree declares the furnace command tree:
//
//	measure, setpoint, output, program, reset
//	pid
//	 ├── gain, integral_time, derivative_time
//	 └── output_min, output_max
func furnaceTree() (*driver.Subsystem, error) {
	root := driver.NewSubsystem(nil)
	pid := driver.NewSubsystem(nil)

	rootCmds := []struct {
		name string
		spec driver.Spec
	}{
		{"measure", driver.Spec{
			Read: "MEAS?", Access: driver.ReadOnly, Codec: driver.FloatCodec{},
		}},
		{"setpoint", driver.Spec{
			Read: "SP?", Write: "SP",
			Bounds: &driver.Bounds{Min: 0, Max: 500},
			Codec:  driver.FloatCodec{},
		}},
		{"output", driver.Spec{
			Read: "OUT?", Access: driver.ReadOnly, Codec: driver.FloatCodec{},
		}},
		{"program", driver.Spec{
			Read: "PROG?", Write: "PROG",
			Codec: driver.FuncCodec{
				// Queries answer the remaining ramp seconds; sets
				// carry the ramp text unchanged.
				EncodeFunc: driver.StringCodec{}.Encode,
				DecodeFunc: driver.FloatCodec{}.Decode,
			},
		}},
	}

	pidCmds := []struct {
		name  string
		read  string
		write string
	}{
		{"gain", "KP?", "KP"},
		{"integral_time", "TI?", "TI"},
		{"derivative_time", "TD?", "TD"},
		{"output_min", "OMIN?", "OMIN"},
		{"output_max", "OMAX?", "OMAX"},
	}

	for _, c := range rootCmds {
		cmd, err := driver.NewCommand(c.spec)
		if err != nil {
			return nil, err
		}
		if err := root.Define(c.name, cmd); err != nil {
			return nil, err
		}
	}
	reset, err := driver.NewAction("RST", nil)
	if err != nil {
		return nil, err
	}
	if err := root.Define("reset", reset); err != nil {
		return nil, err
	}

	for _, c := range pidCmds {
		cmd, err := driver.NewCommand(driver.Spec{
			Read: c.read, Write: c.write, Codec: driver.FloatCodec{},
		})
		if err != nil {
			return nil, err
		}
		if err := pid.Define(c.name, cmd); err != nil {
			return nil, err
		}
	}
	if err := root.Attach("pid", pid); err != nil {
		return nil, err
	}
	return root, nil
}

// Package fl18x drives Fluke series 18x digital multimeters (models
// 189, 187, 89-IV and 87-IV) over their RS-232 remote interface.
//
// The meter speaks two-letter mnemonics terminated by carriage return
// and acknowledges every request with a digit line before any payload:
// "0" for success, "1" for a syntax error, "2" for an execution error.
// Queries then answer one payload line. The QM measurement reading
// carries the value and its unit in a single comma-separated line, so
// the measure and unit commands share the mnemonic and pick their field
// out of the same payload shape.
//
// Front panel keys are exposed as actions under the press subsystem;
// each one sends the SF key code the meter assigns to that button.
package fl18x

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/benchrig/benchrig-core/internal/driver"
	"github.com/benchrig/benchrig-core/internal/protocol"
)

const terminator = "\r"

// ackCodes describes the meter's acknowledge digits beyond success.
var ackCodes = map[string]string{
	"1": "command syntax error",
	"2": "command execution error",
}

// buttonCodes lists the SF key codes of the front panel buttons.
var buttonCodes = []struct {
	name string
	code int
}{
	{"blue", 10},
	{"hold", 11},
	{"min_max", 12},
	{"rel", 13},
	{"up_arrow", 14},
	{"shift", 15},
	{"hz", 16},
	{"range", 17},
	{"down_arrow", 18},
	{"backlight", 19},
	{"calibration", 20},
	{"auto_hold", 21},
	{"fast_min_max", 22},
	{"logging", 23},
	{"cancel", 27},
	{"wake_up", 28},
	{"setup", 29},
	{"save", 30},
}

// parseMeasure extracts the numeric value from a "value,unit" reading.
func parseMeasure(s string) (any, error) {
	value, _, err := splitReading(s)
	if err != nil {
		return nil, err
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: reading value %q is not a number", driver.ErrDecode, value)
	}
	return f, nil
}

// parseUnit extracts the unit from a "value,unit" reading.
func parseUnit(s string) (any, error) {
	_, unit, err := splitReading(s)
	if err != nil {
		return nil, err
	}
	return unit, nil
}

func splitReading(s string) (value, unit string, err error) {
	fields := strings.SplitN(s, ",", 2)
	if len(fields) != 2 {
		return "", "", fmt.Errorf("%w: reading %q has no unit field", driver.ErrDecode, s)
	}
	return strings.TrimSpace(fields[0]), strings.TrimSpace(fields[1]), nil
}

// NewInstrument assembles a Fluke 18x driver over the given transport.
func NewInstrument(name string, tr driver.Transport) (*driver.Instrument, error) {
	dialect, err := protocol.NewSerial(protocol.Config{
		ReadTemplate:  "{param[read]}" + terminator,
		WriteTemplate: "{param[write]}" + terminator,
		Terminator:    terminator,
		Status:        &protocol.StatusSpec{Codes: ackCodes},
	})
	if err != nil {
		return nil, err
	}

	root, err := tree()
	if err != nil {
		return nil, err
	}

	return driver.NewInstrument(driver.InstrumentOptions{
		Name:      name,
		Transport: tr,
		Protocol:  dialect,
		Root:      root,
	})
}

// tree declares the meter's command tree:
//
//	identification, measure, unit, default_setup, reset
//	press
//	 └── one action per front panel button
func tree() (*driver.Subsystem, error) {
	root := driver.NewSubsystem(nil)

	rootCmds := []struct {
		name string
		spec driver.Spec
	}{
		{"identification", driver.Spec{
			Read: "ID", Access: driver.ReadOnly, Codec: driver.StringCodec{},
		}},
		{"measure", driver.Spec{
			Read: "QM", Access: driver.ReadOnly,
			Codec: driver.FuncCodec{DecodeFunc: parseMeasure},
		}},
		{"unit", driver.Spec{
			Read: "QM", Access: driver.ReadOnly,
			Codec: driver.FuncCodec{DecodeFunc: parseUnit},
		}},
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

	for name, mnemonic := range map[string]string{
		"default_setup": "DS",
		"reset":         "RI",
	} {
		action, err := driver.NewAction(mnemonic, nil)
		if err != nil {
			return nil, err
		}
		if err := root.Define(name, action); err != nil {
			return nil, err
		}
	}

	press := driver.NewSubsystem(nil)
	for _, b := range buttonCodes {
		action, err := driver.NewAction(fmt.Sprintf("SF %d", b.code), nil)
		if err != nil {
			return nil, err
		}
		if err := press.Define(b.name, action); err != nil {
			return nil, err
		}
	}
	if err := root.Attach("press", press); err != nil {
		return nil, err
	}

	return root, nil
}

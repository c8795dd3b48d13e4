// Package tpg drives Pfeiffer TPG series vacuum gauge controllers
// (TPG 261/262 single and dual gauge, TPG 256 A MaxiGauge).
//
// The controller speaks a dialect close to ANSI X3: every request is
// acknowledged with ACK or NAK, and an ENQ enquiry then solicits the
// answer line for queries. Gauge mnemonics carry the sensor channel as
// a digit suffix (PR1, PR2, ...) while controller-wide mnemonics (ERR,
// UNI) take none, so the channel rides on the subsystem node attribute
// and the controller subsystem overrides it away.
//
// Pressure answers arrive as "status,value"; a non-zero sensor status
// surfaces as a device error instead of a reading. One instrument
// addresses one sensor channel; multi-channel controllers get one
// record per channel.
package tpg

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/benchrig/benchrig-core/internal/driver"
	"github.com/benchrig/benchrig-core/internal/protocol"
)

// Control bytes of the acknowledge dialect.
const (
	ack = "\x06"
	nak = "\x15"
	enq = "\x05"

	terminator = "\r\n"
)

// sensorStatus describes the status digit leading every pressure
// answer. "0" means the reading is valid.
var sensorStatus = map[string]string{
	"1": "underrange",
	"2": "overrange",
	"3": "sensor error",
	"4": "sensor off",
	"5": "no sensor",
	"6": "identification error",
}

// pressureUnits maps the UNI answer to the display unit.
var pressureUnits = map[string]string{
	"0": "mbar",
	"1": "Torr",
	"2": "Pascal",
}

// controllerFaults decodes the first word of the ERR answer.
var controllerFaults = []struct {
	mask int
	desc string
}{
	{1, "watchdog has responded"},
	{2, "task fail error"},
	{4, "IDCX idle error"},
	{16, "EPROM error"},
	{32, "RAM error"},
	{64, "EEPROM error"},
	{128, "key error"},
	{4096, "syntax error"},
	{8192, "inadmissible parameter"},
	{16384, "no hardware"},
	{32768, "fatal error"},
}

// sensorFaults decodes the second word of the ERR answer.
var sensorFaults = []struct {
	mask int
	desc string
}{
	{1, "sensor 1: measurement error"},
	{2, "sensor 2: measurement error"},
	{4, "sensor 3: measurement error"},
	{8, "sensor 4: measurement error"},
	{16, "sensor 5: measurement error"},
	{32, "sensor 6: measurement error"},
	{512, "sensor 1: identification error"},
	{1024, "sensor 2: identification error"},
	{2048, "sensor 3: identification error"},
	{4096, "sensor 4: identification error"},
	{8192, "sensor 5: identification error"},
	{16384, "sensor 6: identification error"},
}

// parsePressure decodes a "status,value" measurement answer. A non-zero
// status becomes a device error carrying the sensor condition.
func parsePressure(s string) (any, error) {
	fields := strings.SplitN(s, ",", 2)
	if len(fields) != 2 {
		return nil, fmt.Errorf("%w: pressure answer %q has no status field", driver.ErrDecode, s)
	}
	status := strings.TrimSpace(fields[0])
	if status != "0" {
		desc, known := sensorStatus[status]
		if !known {
			return nil, fmt.Errorf("%w: unknown sensor status %q", driver.ErrDecode, status)
		}
		return nil, &protocol.DeviceError{Code: status, Description: desc}
	}
	value := strings.TrimSpace(fields[1])
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: pressure value %q is not a number", driver.ErrDecode, value)
	}
	return f, nil
}

// parseErrors decodes the two error words of an ERR answer into the
// active fault descriptions. A clear register decodes to no faults.
func parseErrors(s string) (any, error) {
	fields := strings.SplitN(s, ",", 2)
	if len(fields) != 2 {
		return nil, fmt.Errorf("%w: error answer %q has one word", driver.ErrDecode, s)
	}
	word1, err := strconv.Atoi(strings.TrimSpace(fields[0]))
	if err != nil {
		return nil, fmt.Errorf("%w: error word %q is not a number", driver.ErrDecode, fields[0])
	}
	word2, err := strconv.Atoi(strings.TrimSpace(fields[1]))
	if err != nil {
		return nil, fmt.Errorf("%w: error word %q is not a number", driver.ErrDecode, fields[1])
	}

	var faults []string
	for _, f := range controllerFaults {
		if word1&f.mask != 0 {
			faults = append(faults, f.desc)
		}
	}
	for _, f := range sensorFaults {
		if word2&f.mask != 0 {
			faults = append(faults, f.desc)
		}
	}
	return faults, nil
}

// parseUnit decodes the UNI answer digit.
func parseUnit(s string) (any, error) {
	unit, known := pressureUnits[strings.TrimSpace(s)]
	if !known {
		return nil, fmt.Errorf("%w: unknown unit code %q", driver.ErrDecode, s)
	}
	return unit, nil
}

// NewInstrument assembles a TPG gauge driver over the given transport.
// params["node"] selects the sensor channel, default "1".
func NewInstrument(name string, tr driver.Transport, params map[string]string) (*driver.Instrument, error) {
	node := params["node"]
	if node == "" {
		node = "1"
	}
	if n, err := strconv.Atoi(node); err != nil || n < 1 {
		return nil, fmt.Errorf("tpg: node %q is not a positive channel number", node)
	}

	dialect, err := protocol.NewSerial(protocol.Config{
		ReadTemplate: "{param[read]}{subsys[node]}" + terminator,
		Terminator:   terminator,
		Timeout:      5 * time.Second,
		Status: &protocol.StatusSpec{
			OK:    ack,
			Codes: map[string]string{nak: "command not acknowledged"},
		},
		Enquiry: enq + terminator,
	})
	if err != nil {
		return nil, err
	}

	root, err := tree(node)
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

// tree declares the gauge command tree:
//
//	pressure, measure
//	controller
//	 ├── errors
//	 └── unit
//
// The root carries the channel node; the controller subsystem overrides
// it with an empty suffix since ERR and UNI address the whole unit.
func tree(node string) (*driver.Subsystem, error) {
	root := driver.NewSubsystem(map[string]string{"node": node})

	for _, name := range []string{"pressure", "measure"} {
		cmd, err := driver.NewCommand(driver.Spec{
			Read: "PR", Access: driver.ReadOnly,
			Codec: driver.FuncCodec{DecodeFunc: parsePressure},
		})
		if err != nil {
			return nil, err
		}
		if err := root.Define(name, cmd); err != nil {
			return nil, err
		}
	}

	controller := driver.NewSubsystem(map[string]string{"node": ""})
	controllerCmds := []struct {
		name string
		read string
		dec  func(string) (any, error)
	}{
		{"errors", "ERR", parseErrors},
		{"unit", "UNI", parseUnit},
	}
	for _, c := range controllerCmds {
		cmd, err := driver.NewCommand(driver.Spec{
			Read: c.read, Access: driver.ReadOnly,
			Codec: driver.FuncCodec{DecodeFunc: c.dec},
		})
		if err != nil {
			return nil, err
		}
		if err := controller.Define(c.name, cmd); err != nil {
			return nil, err
		}
	}
	if err := root.Attach("controller", controller); err != nil {
		return nil, err
	}

	return root, nil
}

package protocol

import (
	"errors"
	"fmt"
)

var (
	// ErrTemplate indicates a request template that does not parse:
	// an unknown field namespace, an unterminated field, or a stray
	// brace.
	ErrTemplate = errors.New("protocol: invalid template")

	// ErrRender indicates a template field that named an attribute
	// absent from the exchange context.
	ErrRender = errors.New("protocol: unresolved template field")

	// ErrConfig indicates an invalid Serial configuration.
	ErrConfig = errors.New("protocol: invalid configuration")
)

// DeviceError reports a non-success status returned by the hardware:
// a NAK byte, a non-zero acknowledge digit, an ERR trailer, or a
// non-zero error register read during verification.
type DeviceError struct {
	// Code is the raw status as received, e.g. "5" or "\x15".
	Code string

	// Description is the dialect's name for the code, when declared.
	Description string
}

func (e *DeviceError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("protocol: device reported %q: %s", e.Code, e.Description)
	}
	return fmt.Sprintf("protocol: device reported %q", e.Code)
}

// deviceError builds a *DeviceError, resolving the description from
// the dialect's code table.
func deviceError(code string, codes map[string]string) error {
	return &DeviceError{Code: code, Description: codes[code]}
}

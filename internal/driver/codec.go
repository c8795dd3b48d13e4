package driver

import (
	"fmt"
	"strconv"
	"strings"
)

// Codec converts between a command's decoded value domain and the wire
// text substituted into framing templates.
//
// Both directions are pure functions. Decode must reject malformed input
// with an error wrapping ErrDecode rather than returning a default;
// Encode must reject values outside the legal domain with an error
// wrapping ErrEncode.
type Codec interface {
	// Encode converts a decoded value to its wire representation.
	Encode(v any) (string, error)

	// Decode converts a wire payload to its decoded value.
	Decode(s string) (any, error)
}

// StringCodec passes values through unchanged. It is the default codec
// for commands that declare none.
type StringCodec struct{}

// Encode returns the value if it is a string.
func (StringCodec) Encode(v any) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%w: expected string, got %T", ErrEncode, v)
	}
	return s, nil
}

// Decode returns the payload with surrounding whitespace removed.
func (StringCodec) Decode(s string) (any, error) {
	return strings.TrimSpace(s), nil
}

// FloatCodec converts between float64 values and decimal wire text.
type FloatCodec struct {
	// Decimals fixes the number of decimal places on encode.
	// Zero or negative uses the shortest exact representation.
	Decimals int
}

// Encode formats any numeric value as decimal text.
func (c FloatCodec) Encode(v any) (string, error) {
	f, ok := toFloat(v)
	if !ok {
		return "", fmt.Errorf("%w: expected numeric value, got %T", ErrEncode, v)
	}
	if c.Decimals > 0 {
		return strconv.FormatFloat(f, 'f', c.Decimals, 64), nil
	}
	return strconv.FormatFloat(f, 'g', -1, 64), nil
}

// Decode parses the payload as a float64.
func (FloatCodec) Decode(s string) (any, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return nil, fmt.Errorf("%w: %q is not a number", ErrDecode, strings.TrimSpace(s))
	}
	return f, nil
}

// IntCodec converts between int values and decimal wire text.
type IntCodec struct{}

// Encode formats any integral value as decimal text.
func (IntCodec) Encode(v any) (string, error) {
	switch n := v.(type) {
	case int:
		return strconv.Itoa(n), nil
	case int64:
		return strconv.FormatInt(n, 10), nil
	case float64:
		if n != float64(int64(n)) {
			return "", fmt.Errorf("%w: %v is not integral", ErrEncode, n)
		}
		return strconv.FormatInt(int64(n), 10), nil
	default:
		return "", fmt.Errorf("%w: expected integer, got %T", ErrEncode, v)
	}
}

// Decode parses the payload as an int.
func (IntCodec) Decode(s string) (any, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("%w: %q is not an integer", ErrDecode, strings.TrimSpace(s))
	}
	return n, nil
}

// BoolCodec converts between bool values and "0"/"1" wire text, the
// convention used by most serial instruments for flags.
type BoolCodec struct{}

// Encode formats a bool as "0" or "1".
func (BoolCodec) Encode(v any) (string, error) {
	b, ok := v.(bool)
	if !ok {
		return "", fmt.Errorf("%w: expected bool, got %T", ErrEncode, v)
	}
	if b {
		return "1", nil
	}
	return "0", nil
}

// Decode parses "0"/"1" into a bool.
func (BoolCodec) Decode(s string) (any, error) {
	switch strings.TrimSpace(s) {
	case "0":
		return false, nil
	case "1":
		return true, nil
	default:
		return nil, fmt.Errorf("%w: %q is not a flag", ErrDecode, strings.TrimSpace(s))
	}
}

// ScaledCodec converts between engineering units and scaled integer wire
// text. Factor is the number of wire units per engineering unit: a
// device that reports tenths of a degree uses Factor 10.
type ScaledCodec struct {
	Factor float64
}

// Encode multiplies by Factor and rounds to the nearest wire unit.
func (c ScaledCodec) Encode(v any) (string, error) {
	f, ok := toFloat(v)
	if !ok {
		return "", fmt.Errorf("%w: expected numeric value, got %T", ErrEncode, v)
	}
	if c.Factor == 0 {
		return "", fmt.Errorf("%w: scaled codec with zero factor", ErrEncode)
	}
	scaled := f * c.Factor
	if scaled < 0 {
		scaled -= 0.5
	} else {
		scaled += 0.5
	}
	return strconv.FormatInt(int64(scaled), 10), nil
}

// Decode parses the wire value and divides by Factor.
func (c ScaledCodec) Decode(s string) (any, error) {
	if c.Factor == 0 {
		return nil, fmt.Errorf("%w: scaled codec with zero factor", ErrDecode)
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return nil, fmt.Errorf("%w: %q is not a number", ErrDecode, strings.TrimSpace(s))
	}
	return f / c.Factor, nil
}

// FuncCodec adapts a pair of functions into a Codec. Vendor catalogs use
// this for one-off payload shapes (composite readings, status fields)
// without defining a named type.
type FuncCodec struct {
	EncodeFunc func(v any) (string, error)
	DecodeFunc func(s string) (any, error)
}

// Encode delegates to EncodeFunc; a nil EncodeFunc rejects all values.
func (c FuncCodec) Encode(v any) (string, error) {
	if c.EncodeFunc == nil {
		return "", fmt.Errorf("%w: command has no encoder", ErrEncode)
	}
	return c.EncodeFunc(v)
}

// Decode delegates to DecodeFunc; a nil DecodeFunc rejects all payloads.
func (c FuncCodec) Decode(s string) (any, error) {
	if c.DecodeFunc == nil {
		return nil, fmt.Errorf("%w: command has no decoder", ErrDecode)
	}
	return c.DecodeFunc(s)
}

// toFloat coerces the numeric types a caller may plausibly hand to Set
// into a float64 for bounds checks and float encoding.
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}

package protocol

import (
	"fmt"
	"strings"

	"github.com/benchrig/benchrig-core/internal/driver"
)

// Field namespaces a template may reference.
const (
	nsParam  = "param"
	nsSubsys = "subsys"
	nsInstr  = "instr"
	nsValue  = "value"
)

// segment is one piece of a parsed template: either literal text or a
// field reference.
type segment struct {
	literal string

	// ns and key are set for field segments. ns is one of the
	// namespace constants; key is empty for the value field.
	ns  string
	key string
}

// Template is a parsed request template.
//
// The mini-language substitutes addressing attributes into literal
// request text: {param[read]} and {param[write]} expand to the
// command's mnemonics, {param[x]}, {subsys[x]} and {instr[x]} to the
// corresponding context attribute, and {value} to the encoded value of
// a set exchange. Doubled braces escape literals. The template carries
// the complete request including any terminator:
//
//	"{param[read]}{instr[node]}\r\n"
//	"= {param[write]} {value}\r"
//
// Unknown namespaces fail ParseTemplate; attributes are resolved per
// exchange and fail Render when absent.
type Template struct {
	raw      string
	segments []segment
	hasValue bool
}

// ParseTemplate validates and compiles a template.
func ParseTemplate(raw string) (*Template, error) {
	t := &Template{raw: raw}
	var lit strings.Builder

	flush := func() {
		if lit.Len() > 0 {
			t.segments = append(t.segments, segment{literal: lit.String()})
			lit.Reset()
		}
	}

	for i := 0; i < len(raw); {
		switch c := raw[i]; c {
		case '{':
			if i+1 < len(raw) && raw[i+1] == '{' {
				lit.WriteByte('{')
				i += 2
				continue
			}
			end := strings.IndexByte(raw[i+1:], '}')
			if end < 0 {
				return nil, fmt.Errorf("%w: unterminated field at offset %d in %q", ErrTemplate, i, raw)
			}
			seg, err := parseField(raw[i+1 : i+1+end])
			if err != nil {
				return nil, fmt.Errorf("%w in %q", err, raw)
			}
			flush()
			t.segments = append(t.segments, seg)
			if seg.ns == nsValue {
				t.hasValue = true
			}
			i += end + 2
		case '}':
			if i+1 < len(raw) && raw[i+1] == '}' {
				lit.WriteByte('}')
				i += 2
				continue
			}
			return nil, fmt.Errorf("%w: stray '}' at offset %d in %q", ErrTemplate, i, raw)
		default:
			lit.WriteByte(c)
			i++
		}
	}
	flush()
	return t, nil
}

// parseField compiles the inside of one {...} field.
func parseField(spec string) (segment, error) {
	if spec == nsValue {
		return segment{ns: nsValue}, nil
	}
	open := strings.IndexByte(spec, '[')
	if open < 0 || !strings.HasSuffix(spec, "]") {
		return segment{}, fmt.Errorf("%w: malformed field {%s}", ErrTemplate, spec)
	}
	ns := spec[:open]
	key := spec[open+1 : len(spec)-1]
	switch ns {
	case nsParam, nsSubsys, nsInstr:
	default:
		return segment{}, fmt.Errorf("%w: unknown namespace %q in {%s}", ErrTemplate, ns, spec)
	}
	if key == "" {
		return segment{}, fmt.Errorf("%w: empty attribute in {%s}", ErrTemplate, spec)
	}
	return segment{ns: ns, key: key}, nil
}

// HasValue reports whether the template references {value}.
func (t *Template) HasValue() bool { return t.hasValue }

// String returns the raw template text.
func (t *Template) String() string { return t.raw }

// Render substitutes the exchange context into the template. Rendering
// is pure: identical inputs always produce identical bytes.
func (t *Template) Render(ctx driver.Context, value string) (string, error) {
	var b strings.Builder
	for _, seg := range t.segments {
		if seg.ns == "" {
			b.WriteString(seg.literal)
			continue
		}
		if seg.ns == nsValue {
			b.WriteString(value)
			continue
		}
		var m map[string]string
		switch seg.ns {
		case nsParam:
			m = ctx.Param
		case nsSubsys:
			m = ctx.Subsys
		case nsInstr:
			m = ctx.Instr
		}
		v, ok := m[seg.key]
		if !ok {
			return "", fmt.Errorf("%w: no %s attribute %q", ErrRender, seg.ns, seg.key)
		}
		b.WriteString(v)
	}
	return b.String(), nil
}

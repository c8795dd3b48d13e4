package virtual

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ProfilePoint is one breakpoint of a setpoint ramp.
type ProfilePoint struct {
	At       time.Duration
	Setpoint float64
}

// Profile is a piecewise-linear setpoint ramp. Between breakpoints the
// setpoint interpolates linearly; past the final breakpoint it holds
// the final value. A profile that does not define its own origin ramps
// from setpoint zero at time zero.
type Profile struct {
	points []ProfilePoint
}

// NewProfile builds a profile from breakpoints in any order.
func NewProfile(points []ProfilePoint) (*Profile, error) {
	if len(points) == 0 {
		return nil, fmt.Errorf("virtual: profile has no breakpoints")
	}
	sorted := make([]ProfilePoint, len(points))
	copy(sorted, points)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].At < sorted[j].At })

	if sorted[0].At < 0 {
		return nil, fmt.Errorf("virtual: profile breakpoint at negative time %v", sorted[0].At)
	}
	if sorted[0].At > 0 {
		sorted = append([]ProfilePoint{{At: 0, Setpoint: 0}}, sorted...)
	}
	return &Profile{points: sorted}, nil
}

// ParseProfile reads the wire form "t:sp;t:sp;..." with times in
// seconds, the shape the furnace grammar accepts.
func ParseProfile(s string) (*Profile, error) {
	var points []ProfilePoint
	for _, pair := range strings.Split(s, ";") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		at, sp, ok := strings.Cut(pair, ":")
		if !ok {
			return nil, fmt.Errorf("virtual: profile pair %q has no colon", pair)
		}
		secs, err := strconv.ParseFloat(strings.TrimSpace(at), 64)
		if err != nil {
			return nil, fmt.Errorf("virtual: profile time %q is not a number", at)
		}
		value, err := strconv.ParseFloat(strings.TrimSpace(sp), 64)
		if err != nil {
			return nil, fmt.Errorf("virtual: profile setpoint %q is not a number", sp)
		}
		points = append(points, ProfilePoint{
			At:       time.Duration(secs * float64(time.Second)),
			Setpoint: value,
		})
	}
	return NewProfile(points)
}

// Duration returns the time of the final breakpoint.
func (p *Profile) Duration() time.Duration {
	return p.points[len(p.points)-1].At
}

// Setpoint returns the ramp value at the given elapsed time.
func (p *Profile) Setpoint(elapsed time.Duration) float64 {
	last := p.points[len(p.points)-1]
	if elapsed >= last.At {
		return last.Setpoint
	}
	if elapsed <= p.points[0].At {
		return p.points[0].Setpoint
	}

	// Find the segment containing elapsed.
	idx := sort.Search(len(p.points), func(i int) bool {
		return p.points[i].At > elapsed
	})
	prev, next := p.points[idx-1], p.points[idx]

	span := next.At - prev.At
	frac := float64(elapsed-prev.At) / float64(span)
	return prev.Setpoint + (next.Setpoint-prev.Setpoint)*frac
}

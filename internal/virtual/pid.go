package virtual

import "time"

// PID default tuning.
const (
	defaultGain       = 2.0
	defaultAntiWindup = 0.25
	defaultOutputMax  = 100.0
)

// PID is a software proportional-integral-derivative controller in
// standard form: the gain multiplies the whole correction and the
// integral and derivative actions are expressed as time constants.
//
// The integrator accumulates raw error and is scaled by gain and
// elapsed time at compute, so retuning mid-run does not jolt the
// output. While the output sits on a clamp the integrator only grows
// by AntiWindup times the error, which lets the controller back off
// the limit without the long recovery a saturated integrator causes.
//
// PID is not synchronised; the furnace serialises access for the
// simulated rig.
type PID struct {
	// Gain is the proportional gain.
	Gain float64

	// Setpoint is the target process value.
	Setpoint float64

	// OutputMin and OutputMax clamp the computed output.
	OutputMin float64
	OutputMax float64

	// AntiWindup scales integrator growth while the output is
	// clamped. 1.0 disables the soft integrator; the useful range is
	// roughly 0.005 to 0.25.
	AntiWindup float64

	// ProportionalOnMeasure bases the proportional term on the
	// process value instead of the error, which removes setpoint
	// kick on step changes.
	ProportionalOnMeasure bool

	// integralGain and derivativeGain hold the ideal-form gains
	// behind the time-constant accessors.
	integralGain   float64
	derivativeGain float64

	oldInput float64
	integral float64
	prevTime time.Time
}

// NewPID builds a controller with conventional defaults: gain 2, no
// integral or derivative action, output clamped to [0, 100].
func NewPID(now time.Time) *PID {
	return &PID{
		Gain:       defaultGain,
		OutputMax:  defaultOutputMax,
		AntiWindup: defaultAntiWindup,
		prevTime:   now,
	}
}

// IntegralTime returns the integral time constant in seconds, zero
// when integral action is off.
func (p *PID) IntegralTime() float64 {
	if p.integralGain == 0 {
		return 0
	}
	return p.Gain / p.integralGain
}

// SetIntegralTime sets the integral time constant in seconds; zero
// turns integral action off.
func (p *PID) SetIntegralTime(ti float64) {
	if ti == 0 {
		p.integralGain = 0
		return
	}
	p.integralGain = p.Gain / ti
}

// DerivativeTime returns the derivative time constant in seconds.
func (p *PID) DerivativeTime() float64 {
	if p.Gain == 0 {
		return 0
	}
	return p.derivativeGain / p.Gain
}

// SetDerivativeTime sets the derivative time constant in seconds.
func (p *PID) SetDerivativeTime(td float64) {
	p.derivativeGain = p.Gain * td
}

// Reset clears the accumulated state and restarts the controller's
// clock at now.
func (p *PID) Reset(now time.Time) {
	p.integral = 0
	p.oldInput = 0
	p.prevTime = now
}

// Compute returns the next output for the given process value at the
// given instant. Calls with a non-advancing clock contribute no
// integral or derivative action.
func (p *PID) Compute(measure float64, now time.Time) float64 {
	err := p.Setpoint - measure
	dt := now.Sub(p.prevTime).Seconds()

	var prop float64
	if p.ProportionalOnMeasure {
		prop = p.Gain * measure
	} else {
		prop = p.Gain * err
	}

	var integ, deriv float64
	if dt > 0 {
		integ = p.integralGain * p.integral * dt
		deriv = p.derivativeGain * (measure - p.oldInput) / dt
	}

	p.prevTime = now
	p.oldInput = measure

	u := prop + integ + deriv
	switch {
	case u > p.OutputMax:
		u = p.OutputMax
		p.integral += p.AntiWindup * err
	case u < p.OutputMin:
		u = p.OutputMin
		p.integral += p.AntiWindup * err
	default:
		p.integral += err
	}
	return u
}

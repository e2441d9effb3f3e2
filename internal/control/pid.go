package control

import "github.com/san-kum/dynbridge/internal/dynamo"

// PID turns a joint position error into a velocity setpoint.
type PID struct {
	Kp       float64
	Ki       float64
	Kd       float64
	Target   float64
	integral float64
	prevErr  float64
	prevT    float64
	first    bool
}

func NewPID(kp, ki, kd, target float64) *PID {
	return &PID{
		Kp:     kp,
		Ki:     ki,
		Kd:     kd,
		Target: target,
		first:  true,
	}
}

// Compute returns the command for measured position pos at time t. Angular
// errors are wrapped into (-π, π].
func (p *PID) Compute(pos, t float64, angular bool) float64 {
	err := p.Target - pos
	if angular {
		err = dynamo.WrapDifference(p.Target, pos)
	}

	if p.first {
		p.prevErr = err
		p.prevT = t
		p.first = false
		return p.Kp * err
	}

	dt := t - p.prevT
	if dt > 0 {
		p.integral += err * dt
		derivative := (err - p.prevErr) / dt

		u := p.Kp*err + p.Ki*p.integral + p.Kd*derivative

		p.prevErr = err
		p.prevT = t

		return u
	}
	return p.Kp * err
}

// Reset clears integral and derivative state
func (p *PID) Reset() {
	p.integral = 0
	p.prevErr = 0
	p.first = true
}

func (p *PID) Gains() (kp, ki, kd float64) {
	return p.Kp, p.Ki, p.Kd
}

// SetParam adjusts a PID parameter by name: Kp, Ki, Kd or Target.
func (p *PID) SetParam(name string, value float64) {
	switch name {
	case "Kp":
		p.Kp = value
	case "Ki":
		p.Ki = value
	case "Kd":
		p.Kd = value
	case "Target":
		p.Target = value
	}
}

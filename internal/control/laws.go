package control

import (
	"math"

	"github.com/san-kum/dynbridge/internal/dynamo"
)

// Joint is what a control law sees of one joint during a pass.
type Joint struct {
	Position float64
	Velocity float64
	// Inertia and Bias are the effective inertia and the holding force
	// along the joint axis.
	Inertia float64
	Bias    float64
	Angular bool
}

type Limits struct {
	MaxForce  float64
	RateLimit float64
}

// ForceTorque clamps a requested force or torque to ±maxForce. A
// non-positive maxForce leaves it unclamped.
func ForceTorque(force, maxForce float64) float64 {
	if maxForce <= 0 {
		return force
	}
	return clamp(force, -maxForce, maxForce)
}

// Mixed tracks targetVel with inverse dynamics: the velocity correction is
// bounded by the rate limit, then I*dv/dt + bias + feedForward is clamped.
func Mixed(j Joint, targetVel, feedForward float64, lim Limits, dt float64) float64 {
	if dt <= 0 {
		return 0
	}
	dv := targetVel - j.Velocity
	if lim.RateLimit > 0 {
		maxDv := lim.RateLimit * dt
		dv = clamp(dv, -maxDv, maxDv)
	}
	f := j.Inertia*dv/dt + j.Bias + feedForward
	return ForceTorque(f, lim.MaxForce)
}

// DependentTarget returns the velocity that keeps a dependent joint on
// poly(master): the polynomial's rate plus a correction of the current error.
func DependentTarget(j Joint, master, masterVel float64, poly dynamo.Polynomial, dt float64) float64 {
	want := poly.Eval(master)
	err := want - j.Position
	if j.Angular {
		err = dynamo.WrapDifference(want, j.Position)
	}
	v := poly.Derivative(master) * masterVel
	if dt > 0 {
		v += err / dt
	}
	return v
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

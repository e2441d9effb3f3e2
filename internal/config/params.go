package config

import (
	"fmt"

	"github.com/san-kum/dynbridge/internal/dynamo"
)

// Float parameter slots.
const (
	FloatTimestep = iota
	FloatGravityX
	FloatGravityY
	FloatGravityZ
	FloatMaxForce
	FloatRateLimit
)

// Int parameter slots.
const (
	IntIterations = iota
	IntRebuildTrigger
	IntSmoothing
	IntRobustInertia
	IntKinematic
	IntRestartThreshold
	IntExplicitGravity
)

var (
	smoothingCodes = []string{SmoothingLast, SmoothingLinear}
	kinematicCodes = []string{KinematicInterpolate, KinematicJump, KinematicStatic}
)

// FromParams decodes the fixed-size init parameter blocks. Zero slots keep
// their defaults; mass dividers have no slot and stay empty. Gravity is taken
// as given when IntExplicitGravity is set, so zero gravity can be requested.
func FromParams(fp [20]float64, ip [20]int) (EngineConfig, error) {
	e := DefaultEngine()
	if fp[FloatTimestep] != 0 {
		e.Timestep = fp[FloatTimestep]
	}
	if g := [3]float64{fp[FloatGravityX], fp[FloatGravityY], fp[FloatGravityZ]}; ip[IntExplicitGravity] != 0 || g != [3]float64{} {
		e.Gravity = g
	}
	if fp[FloatMaxForce] != 0 {
		e.MaxForce = fp[FloatMaxForce]
	}
	if fp[FloatRateLimit] != 0 {
		e.RateLimit = fp[FloatRateLimit]
	}
	if ip[IntIterations] != 0 {
		e.Iterations = ip[IntIterations]
	}
	e.RebuildTrigger = ip[IntRebuildTrigger]
	code := ip[IntSmoothing]
	if code < 0 || code >= len(smoothingCodes) {
		return e, fmt.Errorf("smoothing code %d: %w", code, dynamo.ErrInvalidParams)
	}
	e.Smoothing = smoothingCodes[code]
	e.RobustInertia = ip[IntRobustInertia] != 0
	code = ip[IntKinematic]
	if code < 0 || code >= len(kinematicCodes) {
		return e, fmt.Errorf("kinematic code %d: %w", code, dynamo.ErrInvalidParams)
	}
	e.Kinematic = kinematicCodes[code]
	if ip[IntRestartThreshold] != 0 {
		e.RestartThreshold = ip[IntRestartThreshold]
	}
	return e, e.Validate()
}

// ToParams is the inverse of FromParams.
func (e EngineConfig) ToParams() (fp [20]float64, ip [20]int) {
	fp[FloatTimestep] = e.Timestep
	fp[FloatGravityX], fp[FloatGravityY], fp[FloatGravityZ] = e.Gravity[0], e.Gravity[1], e.Gravity[2]
	ip[IntExplicitGravity] = 1
	fp[FloatMaxForce] = e.MaxForce
	fp[FloatRateLimit] = e.RateLimit
	ip[IntIterations] = e.Iterations
	ip[IntRebuildTrigger] = e.RebuildTrigger
	ip[IntSmoothing] = indexOf(smoothingCodes, e.Smoothing)
	if e.RobustInertia {
		ip[IntRobustInertia] = 1
	}
	ip[IntKinematic] = indexOf(kinematicCodes, e.Kinematic)
	ip[IntRestartThreshold] = e.RestartThreshold
	return fp, ip
}

func indexOf(codes []string, s string) int {
	for i, c := range codes {
		if c == s {
			return i
		}
	}
	return 0
}

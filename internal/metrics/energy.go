package metrics

import (
	"github.com/san-kum/dynbridge/internal/bridge"
)

// KineticEnergy averages the translational kinetic energy of every body with
// a known mass over the observed passes.
type KineticEnergy struct {
	name    string
	total   float64
	last    float64
	samples int
}

func NewKineticEnergy() *KineticEnergy {
	return &KineticEnergy{name: "kinetic_energy"}
}

func (e *KineticEnergy) Name() string { return e.name }

func (e *KineticEnergy) Observe(r *bridge.PassReport) {
	e.last = Kinetic(r)
	e.total += e.last
	e.samples++
}

func (e *KineticEnergy) Value() float64 {
	if e.samples == 0 {
		return 0
	}
	return e.total / float64(e.samples)
}

// Last is the energy of the most recent pass.
func (e *KineticEnergy) Last() float64 { return e.last }

func (e *KineticEnergy) Reset() {
	e.total = 0
	e.last = 0
	e.samples = 0
}

// Kinetic sums ½mv² over the bodies of one pass.
func Kinetic(r *bridge.PassReport) float64 {
	var ke float64
	for _, b := range r.Bodies {
		v := b.Velocity.Linear
		ke += 0.5 * b.Mass * v.Dot(v)
	}
	return ke
}

// EnergyDrift is the largest relative deviation of the kinetic energy from
// its peak so far. A body coming to rest drives it toward 1.
type EnergyDrift struct {
	name     string
	peak     float64
	maxDrift float64
}

func NewEnergyDrift() *EnergyDrift {
	return &EnergyDrift{name: "energy_drift"}
}

func (e *EnergyDrift) Name() string { return e.name }

func (e *EnergyDrift) Observe(r *bridge.PassReport) {
	ke := Kinetic(r)
	if ke > e.peak {
		e.peak = ke
	}
	if e.peak > 0 {
		if d := (e.peak - ke) / e.peak; d > e.maxDrift {
			e.maxDrift = d
		}
	}
}

func (e *EnergyDrift) Value() float64 { return e.maxDrift }

func (e *EnergyDrift) Reset() {
	e.peak = 0
	e.maxDrift = 0
}

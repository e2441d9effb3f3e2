package experiment

import (
	"github.com/san-kum/dynbridge/internal/metrics"
	"github.com/san-kum/dynbridge/internal/solver"
	"github.com/san-kum/dynbridge/internal/solver/planar"
)

// DefaultStabilityThreshold is the body speed, in m/s, above which a pass
// counts as unstable.
const DefaultStabilityThreshold = 50.0

// NewSolvers returns the registry of built-in solver backends.
func NewSolvers() *solver.Registry {
	r := solver.NewRegistry()
	r.Register("planar", planar.New)
	return r
}

func DefaultMetrics() []Metric {
	return []Metric{
		metrics.NewKineticEnergy(),
		metrics.NewEnergyDrift(),
		metrics.NewStability(DefaultStabilityThreshold),
		metrics.NewControlEffort(),
		metrics.NewContacts(),
	}
}

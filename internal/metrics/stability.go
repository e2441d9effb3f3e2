package metrics

import (
	"math"

	"github.com/san-kum/dynbridge/internal/bridge"
)

// Stability is the fraction of passes in which no body exceeded the speed
// threshold or left the finite range.
type Stability struct {
	name       string
	threshold  float64
	violations int
	samples    int
}

func NewStability(threshold float64) *Stability {
	return &Stability{
		name:      "stability",
		threshold: threshold,
	}
}

func (s *Stability) Name() string {
	return s.name
}

func (s *Stability) Observe(r *bridge.PassReport) {
	s.samples++
	for _, b := range r.Bodies {
		speed := b.Velocity.Linear.Len()
		if !b.Pose.IsValid() || math.IsNaN(speed) || speed > s.threshold {
			s.violations++
			break
		}
	}
}

func (s *Stability) Value() float64 {
	if s.samples == 0 {
		return 1.0
	}
	return 1.0 - float64(s.violations)/float64(s.samples)
}

func (s *Stability) Reset() {
	s.violations = 0
	s.samples = 0
}

package experiment

import (
	"sort"

	"github.com/san-kum/dynbridge/internal/bridge"
)

// Metric reduces the per-pass reports of a run to one number.
type Metric interface {
	Name() string
	Observe(r *bridge.PassReport)
	Value() float64
	Reset()
}

// Result is the trace of a run, one row per host tick including t=0.
type Result struct {
	// Columns names the entries of every States row.
	Columns []string
	// Joints names the entries of every Controls row.
	Joints   []string
	States   [][]float64
	Controls [][]float64
	Times    []float64
	Metrics  map[string]float64
	Warnings []string
	Halted   bool
}

// MetricNames lists the metric names in sorted order.
func (r *Result) MetricNames() []string {
	names := make([]string, 0, len(r.Metrics))
	for n := range r.Metrics {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

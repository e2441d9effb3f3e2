// Package planar is a solver backend on the chipmunk2d port. Bodies move in
// the world XZ plane and rotate about world Y; the out-of-plane coordinate of
// every body is preserved from the description.
package planar

import (
	"github.com/san-kum/dynbridge/internal/solver"
)

const (
	Name    = "planar"
	version = "cp v1.2.1"
)

type Engine struct{}

func New() solver.Engine {
	return &Engine{}
}

func (e *Engine) Name() string    { return Name }
func (e *Engine) Version() string { return version }

package dynamo

import (
	"errors"
	"fmt"
)

// Domain errors for bridge operations.
var (
	// ErrNoModel indicates no compiled solver model is available yet.
	ErrNoModel = errors.New("dynamo: no solver model available")

	// ErrHalted indicates the simulation was halted by a fatal solver error.
	ErrHalted = errors.New("dynamo: simulation halted by solver error")

	// ErrUnstable indicates the solver state diverged (NaN, Inf or huge values).
	ErrUnstable = errors.New("dynamo: solver state diverged")

	// ErrDegenerateGeometry indicates a shape whose volume is zero.
	ErrDegenerateGeometry = errors.New("dynamo: degenerate geometry (zero volume)")

	// ErrUnknownObject indicates a handle that is not present in the scene.
	ErrUnknownObject = errors.New("dynamo: unknown scene object")

	// ErrUnknownComposite indicates a composite prefix with no injection.
	ErrUnknownComposite = errors.New("dynamo: unknown composite prefix")

	// ErrInvalidParams indicates engine parameters outside their valid range.
	ErrInvalidParams = errors.New("dynamo: invalid engine parameters")
)

// BuildError wraps a failure of one model build pass.
type BuildError struct {
	Stage   string
	Wrapped error
	// Description is the rejected model text when the compiler failed.
	Description string
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("build failed during %s: %v", e.Stage, e.Wrapped)
}

func (e *BuildError) Unwrap() error {
	return e.Wrapped
}

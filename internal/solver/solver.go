// Package solver defines the physics solver collaborator: an Engine compiles
// a model description into a steppable Model.
package solver

import (
	"github.com/go-gl/mathgl/mgl64"
	"github.com/san-kum/dynbridge/internal/dynamo"
)

// Kind selects one of the named object tables of a compiled model.
type Kind int

const (
	KindBody Kind = iota
	KindJoint
	KindGeom
	KindSite
	KindActuator
	KindSensor
	KindEquality
	KindTendon
	kindCount
)

func (k Kind) String() string {
	return [...]string{"body", "joint", "geom", "site", "actuator", "sensor", "equality", "tendon"}[k]
}

// CompileOptions carries the context a description is compiled in.
type CompileOptions struct {
	// WorkDir resolves relative asset files (height fields).
	WorkDir string
}

// Engine compiles model descriptions.
type Engine interface {
	Name() string
	Version() string
	Compile(description string, opts CompileOptions) (Model, error)
}

// ContactFilter decides whether a contact between two geoms is generated.
type ContactFilter func(geom1, geom2 int) bool

// ControlFunc is invoked once per Step before integration.
type ControlFunc func(m Model)

// MessageFunc receives solver error and warning messages.
type MessageFunc func(msg string)

// Contact is one contact point generated during the last Step.
type Contact struct {
	Geom1, Geom2 int
	Position     mgl64.Vec3
	Normal       mgl64.Vec3
	Depth        float64
	Force        float64
}

// State is an opaque snapshot produced by Model.Snapshot.
type State interface{}

// Model is a compiled, steppable solver model. All indices are per Kind and
// assigned in description document order; -1 denotes absence.
type Model interface {
	Lookup(kind Kind, name string) int
	Count(kind Kind) int
	Name(kind Kind, id int) string
	Timestep() float64
	Time() float64

	SetContactFilter(f ContactFilter)
	SetControlFunc(f ControlFunc)
	SetErrorFunc(f MessageFunc)
	SetWarningFunc(f MessageFunc)

	// Step advances one timestep. A fatal solver error is reported through
	// the error func and returned.
	Step() error

	BodyPose(body int) dynamo.Transform
	BodyVelocity(body int) dynamo.Velocity
	// SetBodyState teleports a free body, or sets the target a kinematic
	// (mocap) body reaches at the end of the next Step.
	SetBodyState(body int, tr dynamo.Transform, v dynamo.Velocity)

	JointBody(joint int) int
	JointState(joint int) (pos, vel float64)
	// JointInertia is the effective inertia seen along the joint axis.
	JointInertia(joint int) float64
	// JointBias is the generalized force needed to hold the joint against
	// gravity and velocity-dependent terms.
	JointBias(joint int) float64

	SetControl(actuator int, u float64)
	Control(actuator int) float64
	SensorData(sensor int) mgl64.Vec3
	Contacts() []Contact

	Snapshot() State
	Restore(s State)
}

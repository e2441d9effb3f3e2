// Package scene defines the scene-graph collaborator consumed by the bridge
// and an in-memory implementation used by the CLI and tests.
package scene

import (
	"github.com/go-gl/mathgl/mgl64"
	"github.com/san-kum/dynbridge/internal/dynamo"
)

// Handle is the immutable external identity of a scene object. Handles
// start at 1; the zero value is NoHandle, so an ObjectSpec without a
// Parent is a root.
type Handle int

const NoHandle Handle = 0

type ObjectType int

const (
	TypeShape ObjectType = iota
	TypeJoint
	TypeDummy
	TypeForceSensor
	TypeOther
)

func (t ObjectType) String() string {
	switch t {
	case TypeShape:
		return "shape"
	case TypeJoint:
		return "joint"
	case TypeDummy:
		return "dummy"
	case TypeForceSensor:
		return "force_sensor"
	default:
		return "other"
	}
}

type Primitive int

const (
	PrimBox Primitive = iota
	PrimSphere
	PrimCylinder
	PrimCapsule
	PrimPlane
	PrimMesh
	PrimHeightfield
)

func (p Primitive) String() string {
	return [...]string{"box", "sphere", "cylinder", "capsule", "plane", "mesh", "hfield"}[p]
}

// Mesh is a triangle soup; Indices holds vertex triples.
type Mesh struct {
	Vertices []mgl64.Vec3
	Indices  []int
}

// Heightfield stores Rows*Cols elevations row-major over a SizeX*SizeY patch.
type Heightfield struct {
	Rows, Cols   int
	Heights      []float64
	SizeX, SizeY float64
	Base         float64
}

// Geometry is one primitive of a (possibly compound) shape.
// Size holds half extents for boxes and planes, {radius} for spheres and
// {radius, half height} for cylinders and capsules.
type Geometry struct {
	Primitive   Primitive
	Size        mgl64.Vec3
	Mesh        *Mesh
	Heightfield *Heightfield
	Local       dynamo.Transform
}

type ShapeProps struct {
	Dynamic         bool
	Respondable     bool
	Kinematic       bool
	Mass            float64
	Density         float64
	Friction        float64
	RespondableMask int
	Geoms           []Geometry
}

// Simulated reports whether the shape takes part in the solver model at all.
func (p ShapeProps) Simulated() bool {
	return p.Dynamic || p.Respondable || p.Kinematic
}

type JointType int

const (
	JointRevolute JointType = iota
	JointPrismatic
	JointSpherical
)

type JointControl int

const (
	ControlFree JointControl = iota
	ControlForce
	ControlVelocity
	ControlPosition
	ControlDependent
)

// JointProps describes a joint whose axis is the local Z axis of its frame.
type JointProps struct {
	Type           JointType
	Control        JointControl
	TargetVelocity float64
	TargetPosition float64
	Force          float64
	MaxForce       float64
	RateLimit      float64
	Kp, Ki, Kd     float64
	Limited        bool
	Range          [2]float64
	Position       float64
	Dependency     Handle
	Poly           []float64
}

type DummyLink int

const (
	LinkNone DummyLink = iota
	LinkLoopClosure
	LinkTendon
)

type DummyProps struct {
	Linked Handle
	Link   DummyLink
}

type Particle struct {
	ID              int
	Position        mgl64.Vec3
	Velocity        mgl64.Vec3
	Radius          float64
	Density         float64
	RespondableMask int
}

// Counters are monotonically increasing mutation counters.
type Counters struct {
	Creation     int
	Destruction  int
	Hierarchy    int
	Modification int
	Resets       int
}

// Graph is the read side of the scene plus the pose/velocity/readings write
// side the bridge publishes into. The bridge never mutates hierarchy.
type Graph interface {
	Roots() []Handle
	Children(h Handle) []Handle
	Parent(h Handle) Handle
	Type(h Handle) (ObjectType, bool)
	Name(h Handle) string

	WorldPose(h Handle) dynamo.Transform
	SetWorldPose(h Handle, tr dynamo.Transform)
	Velocity(h Handle) dynamo.Velocity
	SetVelocity(h Handle, v dynamo.Velocity)

	Shape(h Handle) (ShapeProps, bool)
	Joint(h Handle) (JointProps, bool)
	SetJointState(h Handle, pos, vel, force float64)
	Dummy(h Handle) (DummyProps, bool)
	SetForceSensorReading(h Handle, force, torque mgl64.Vec3)

	Particles() []Particle
	SetParticleState(id int, pos, vel mgl64.Vec3)

	Counters() Counters
}

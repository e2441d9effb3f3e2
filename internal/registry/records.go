// Package registry holds the typed records of one model build and the
// mapping between scene handles and solver indices.
package registry

import (
	"github.com/go-gl/mathgl/mgl64"
	"github.com/san-kum/dynbridge/internal/control"
	"github.com/san-kum/dynbridge/internal/dynamo"
	"github.com/san-kum/dynbridge/internal/scene"
)

const (
	// ParticleHandle owns every particle geom.
	ParticleHandle scene.Handle = -2
	// CompositeHandleBase is the handle of the first composite; later
	// composites count down from it.
	CompositeHandleBase scene.Handle = -3
)

// Respondable mask bits for particles and composites.
const (
	MaskShapes         = 0xff00
	MaskParticles      = 0x00ff
	MaskOtherComposite = 0x00f0
	MaskSameComposite  = 0x000f
	MaskShapeShape     = 0xffff
)

type Mode int

const (
	ModeStatic Mode = iota
	ModeKinematic
	ModeFree
	ModeAttached
)

func (m Mode) String() string {
	return [...]string{"static", "kinematic", "free", "attached"}[m]
}

type Item int

const (
	ItemShape Item = iota
	ItemParticle
	ItemComposite
	ItemDummy
)

func (i Item) String() string {
	return [...]string{"shape", "particle", "composite", "dummy"}[i]
}

// Secondary is the optional second solver reference of a shape. Its meaning
// is carried by the concrete type.
type Secondary interface {
	secondary()
}

type SecondaryNone struct{}

// SecondaryStatic is a world-fixed counterpart body welded to the shape.
type SecondaryStatic struct {
	Body int
}

// SecondaryFreeJoint is the free joint giving a free shape its six degrees of freedom.
type SecondaryFreeJoint struct {
	Joint int
}

func (SecondaryNone) secondary()      {}
func (SecondaryStatic) secondary()    {}
func (SecondaryFreeJoint) secondary() {}

type Shape struct {
	Handle scene.Handle
	Name   string
	// SolverName is the name of the shape's body in the description.
	SolverName string
	// Parent is the owning shape of an attached shape.
	Parent    scene.Handle
	Body      int
	Secondary Secondary
	Mode      Mode
	// ComTransform is the center of mass relative to the shape frame.
	ComTransform dynamo.Transform
	// Offset is the pose of an attached shape in its owner's body frame.
	Offset dynamo.Transform
	Start        dynamo.Transform
	Goal         dynamo.Transform
	Item         Item
	// Index is the particle id or the position within a composite.
	Index int
	Geoms []int
	Mass  float64
}

type Geom struct {
	Handle          scene.Handle
	Name            string
	Prefix          string
	RespondableMask int
	Item            Item
	SolverID        int
}

type ActMode int

const (
	ActFree ActMode = iota
	ActForce
	ActMixed
)

func (a ActMode) String() string {
	return [...]string{"free", "force", "mixed"}[a]
}

type Joint struct {
	Handle         scene.Handle
	Name           string
	SolverName     string
	SolverID       int
	Actuator       int
	Mode           ActMode
	Type           scene.JointType
	RateLimit      float64
	ForceToApply   float64
	MaxForce       float64
	TargetVelocity float64
	TargetPosition float64
	// PID is set for position-controlled joints.
	PID         *control.PID
	InitialBall mgl64.Quat
	Dependency  scene.Handle
	Poly        dynamo.Polynomial
	// Command is the last actuator value written.
	Command float64
}

func (j *Joint) Angular() bool {
	return j.Type != scene.JointPrismatic
}

type Freejoint struct {
	Handle   scene.Handle
	Name     string
	SolverID int
}

type ForceSensor struct {
	Handle     scene.Handle
	Name       string
	SolverName string
	ForceID    int
	TorqueID   int
	Force      mgl64.Vec3
	Torque     mgl64.Vec3
	Samples    int
}

type HeightField struct {
	File string
	Rows int
	Cols int
	// Size is x/y half extent, elevation range and base thickness.
	Size [4]float64
}

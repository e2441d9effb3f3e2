package scene

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/san-kum/dynbridge/internal/dynamo"
	"gopkg.in/yaml.v3"
)

// File is the YAML scene format understood by LoadFile.
type File struct {
	Name      string         `yaml:"name"`
	Script    string         `yaml:"script"`
	Objects   []ObjectFile   `yaml:"objects"`
	Particles []ParticleFile `yaml:"particles"`
}

type PoseFile struct {
	Position  []float64 `yaml:"position"`
	Rotation  []float64 `yaml:"rotation"`
	AxisAngle []float64 `yaml:"axis_angle"`
}

type GeomFile struct {
	Primitive   string          `yaml:"primitive"`
	Size        []float64       `yaml:"size"`
	Pose        PoseFile        `yaml:"pose"`
	Vertices    [][]float64     `yaml:"vertices"`
	Indices     []int           `yaml:"indices"`
	Heightfield *HeightfieldSet `yaml:"heightfield"`
}

type HeightfieldSet struct {
	Rows    int       `yaml:"rows"`
	Cols    int       `yaml:"cols"`
	Heights []float64 `yaml:"heights"`
	SizeX   float64   `yaml:"size_x"`
	SizeY   float64   `yaml:"size_y"`
	Base    float64   `yaml:"base"`
}

type ShapeFile struct {
	Dynamic         bool       `yaml:"dynamic"`
	Respondable     *bool      `yaml:"respondable"`
	Kinematic       bool       `yaml:"kinematic"`
	Mass            float64    `yaml:"mass"`
	Density         float64    `yaml:"density"`
	Friction        float64    `yaml:"friction"`
	RespondableMask *int       `yaml:"respondable_mask"`
	Geoms           []GeomFile `yaml:"geoms"`
}

type JointFile struct {
	Type           string    `yaml:"type"`
	Control        string    `yaml:"control"`
	TargetVelocity float64   `yaml:"target_velocity"`
	TargetPosition float64   `yaml:"target_position"`
	Force          float64   `yaml:"force"`
	MaxForce       float64   `yaml:"max_force"`
	RateLimit      float64   `yaml:"rate_limit"`
	Kp             float64   `yaml:"kp"`
	Ki             float64   `yaml:"ki"`
	Kd             float64   `yaml:"kd"`
	Range          []float64 `yaml:"range"`
	Position       float64   `yaml:"position"`
	DependsOn      string    `yaml:"depends_on"`
	Poly           []float64 `yaml:"poly"`
}

type DummyFile struct {
	Link   string `yaml:"link"`
	Linked string `yaml:"linked"`
}

type ObjectFile struct {
	Name     string       `yaml:"name"`
	Type     string       `yaml:"type"`
	Pose     PoseFile     `yaml:"pose"`
	Shape    *ShapeFile   `yaml:"shape"`
	Joint    *JointFile   `yaml:"joint"`
	Dummy    *DummyFile   `yaml:"dummy"`
	Children []ObjectFile `yaml:"children"`
}

type ParticleFile struct {
	Position        []float64 `yaml:"position"`
	Velocity        []float64 `yaml:"velocity"`
	Radius          float64   `yaml:"radius"`
	Density         float64   `yaml:"density"`
	RespondableMask int       `yaml:"respondable_mask"`
}

// LoadFile reads a YAML scene into a fresh Memory graph.
func LoadFile(path string) (*Memory, *File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	return Parse(data)
}

func Parse(data []byte) (*Memory, *File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, nil, fmt.Errorf("scene: unmarshal: %w", err)
	}
	m := NewMemory()
	type pendingLink struct {
		obj    Handle
		target string
		isDep  bool
	}
	var links []pendingLink

	var add func(objs []ObjectFile, parent Handle, parentPose dynamo.Transform) error
	add = func(objs []ObjectFile, parent Handle, parentPose dynamo.Transform) error {
		for _, of := range objs {
			spec, err := of.spec(parent, parentPose)
			if err != nil {
				return err
			}
			h, err := m.Add(spec)
			if err != nil {
				return err
			}
			if spec.Joint != nil && of.Joint.DependsOn != "" {
				links = append(links, pendingLink{obj: h, target: of.Joint.DependsOn, isDep: true})
			}
			if spec.Dummy != nil && of.Dummy != nil && of.Dummy.Linked != "" {
				links = append(links, pendingLink{obj: h, target: of.Dummy.Linked})
			}
			if err := add(of.Children, h, spec.Pose); err != nil {
				return err
			}
		}
		return nil
	}
	if err := add(f.Objects, NoHandle, dynamo.Identity()); err != nil {
		return nil, nil, fmt.Errorf("scene: %w", err)
	}

	for _, l := range links {
		target, ok := m.Lookup(l.target)
		if !ok {
			return nil, nil, fmt.Errorf("scene: %q references %q: %w", m.Name(l.obj), l.target, dynamo.ErrUnknownObject)
		}
		obj := m.objects[l.obj]
		if l.isDep {
			obj.joint.Dependency = target
		} else {
			obj.dummy.Linked = target
		}
	}

	for _, pf := range f.Particles {
		m.AddParticles(Particle{
			Position:        vec3(pf.Position),
			Velocity:        vec3(pf.Velocity),
			Radius:          pf.Radius,
			Density:         pf.Density,
			RespondableMask: pf.RespondableMask,
		})
	}
	return m, &f, nil
}

// spec resolves an object entry; poses in the file are relative to the parent.
func (of ObjectFile) spec(parent Handle, parentPose dynamo.Transform) (ObjectSpec, error) {
	spec := ObjectSpec{
		Name:   of.Name,
		Parent: parent,
		Pose:   parentPose.Mul(of.Pose.transform()),
	}
	switch strings.ToLower(of.Type) {
	case "shape":
		spec.Type = TypeShape
		if of.Shape == nil {
			return spec, fmt.Errorf("shape %q has no shape block", of.Name)
		}
		props, err := of.Shape.props()
		if err != nil {
			return spec, fmt.Errorf("shape %q: %w", of.Name, err)
		}
		spec.Shape = &props
	case "joint":
		spec.Type = TypeJoint
		if of.Joint == nil {
			return spec, fmt.Errorf("joint %q has no joint block", of.Name)
		}
		props, err := of.Joint.props()
		if err != nil {
			return spec, fmt.Errorf("joint %q: %w", of.Name, err)
		}
		spec.Joint = &props
	case "dummy":
		spec.Type = TypeDummy
		props := DummyProps{Linked: NoHandle}
		if of.Dummy != nil {
			switch of.Dummy.Link {
			case "", "none":
			case "loop_closure":
				props.Link = LinkLoopClosure
			case "tendon":
				props.Link = LinkTendon
			default:
				return spec, fmt.Errorf("dummy %q: unknown link %q", of.Name, of.Dummy.Link)
			}
		}
		spec.Dummy = &props
	case "force_sensor":
		spec.Type = TypeForceSensor
	case "", "other":
		spec.Type = TypeOther
	default:
		return spec, fmt.Errorf("object %q: unknown type %q", of.Name, of.Type)
	}
	return spec, nil
}

func (sf *ShapeFile) props() (ShapeProps, error) {
	p := ShapeProps{
		Dynamic:         sf.Dynamic,
		Respondable:     true,
		Kinematic:       sf.Kinematic,
		Mass:            sf.Mass,
		Density:         sf.Density,
		Friction:        sf.Friction,
		RespondableMask: 0xffff,
	}
	if sf.Respondable != nil {
		p.Respondable = *sf.Respondable
	}
	if sf.RespondableMask != nil {
		p.RespondableMask = *sf.RespondableMask
	}
	if !p.Respondable {
		p.RespondableMask = 0
	}
	if p.Density == 0 {
		p.Density = 1000
	}
	if p.Friction == 0 {
		p.Friction = 1
	}
	for _, gf := range sf.Geoms {
		g, err := gf.geometry()
		if err != nil {
			return p, err
		}
		p.Geoms = append(p.Geoms, g)
	}
	return p, nil
}

func (gf GeomFile) geometry() (Geometry, error) {
	g := Geometry{Size: vec3(gf.Size), Local: gf.Pose.transform()}
	switch strings.ToLower(gf.Primitive) {
	case "box":
		g.Primitive = PrimBox
	case "sphere":
		g.Primitive = PrimSphere
	case "cylinder":
		g.Primitive = PrimCylinder
	case "capsule":
		g.Primitive = PrimCapsule
	case "plane":
		g.Primitive = PrimPlane
	case "mesh":
		g.Primitive = PrimMesh
		mesh := &Mesh{Indices: gf.Indices}
		for _, v := range gf.Vertices {
			mesh.Vertices = append(mesh.Vertices, vec3(v))
		}
		if len(mesh.Indices)%3 != 0 {
			return g, fmt.Errorf("mesh index count %d is not a multiple of 3", len(mesh.Indices))
		}
		g.Mesh = mesh
	case "hfield", "heightfield":
		g.Primitive = PrimHeightfield
		if gf.Heightfield == nil {
			return g, fmt.Errorf("heightfield geom without data")
		}
		hf := gf.Heightfield
		if hf.Rows*hf.Cols != len(hf.Heights) {
			return g, fmt.Errorf("heightfield %dx%d has %d samples", hf.Rows, hf.Cols, len(hf.Heights))
		}
		g.Heightfield = &Heightfield{Rows: hf.Rows, Cols: hf.Cols, Heights: hf.Heights, SizeX: hf.SizeX, SizeY: hf.SizeY, Base: hf.Base}
	default:
		return g, fmt.Errorf("unknown primitive %q", gf.Primitive)
	}
	return g, nil
}

func (jf *JointFile) props() (JointProps, error) {
	p := JointProps{
		TargetVelocity: jf.TargetVelocity,
		TargetPosition: jf.TargetPosition,
		Force:          jf.Force,
		MaxForce:       jf.MaxForce,
		RateLimit:      jf.RateLimit,
		Kp:             jf.Kp,
		Ki:             jf.Ki,
		Kd:             jf.Kd,
		Position:       jf.Position,
		Dependency:     NoHandle,
		Poly:           jf.Poly,
	}
	switch strings.ToLower(jf.Type) {
	case "", "revolute", "hinge":
		p.Type = JointRevolute
	case "prismatic", "slide":
		p.Type = JointPrismatic
	case "spherical", "ball":
		p.Type = JointSpherical
	default:
		return p, fmt.Errorf("unknown joint type %q", jf.Type)
	}
	switch strings.ToLower(jf.Control) {
	case "", "free":
		p.Control = ControlFree
	case "force", "torque":
		p.Control = ControlForce
	case "velocity":
		p.Control = ControlVelocity
	case "position":
		p.Control = ControlPosition
	case "dependent":
		p.Control = ControlDependent
	default:
		return p, fmt.Errorf("unknown joint control %q", jf.Control)
	}
	if len(jf.Range) == 2 {
		p.Limited = true
		p.Range = [2]float64{jf.Range[0], jf.Range[1]}
	}
	if p.MaxForce == 0 {
		p.MaxForce = 100
	}
	return p, nil
}

func (pf PoseFile) transform() dynamo.Transform {
	tr := dynamo.Identity()
	tr.Position = vec3(pf.Position)
	switch {
	case len(pf.Rotation) == 4:
		tr.Rotation = mgl64.Quat{W: pf.Rotation[0], V: mgl64.Vec3{pf.Rotation[1], pf.Rotation[2], pf.Rotation[3]}}.Normalize()
	case len(pf.AxisAngle) == 4:
		axis := mgl64.Vec3{pf.AxisAngle[0], pf.AxisAngle[1], pf.AxisAngle[2]}
		if axis.Len() > 0 {
			tr.Rotation = mgl64.QuatRotate(pf.AxisAngle[3], axis.Normalize())
		}
	}
	return tr
}

func vec3(v []float64) mgl64.Vec3 {
	var out mgl64.Vec3
	for i := 0; i < len(v) && i < 3; i++ {
		out[i] = v[i]
	}
	return out
}

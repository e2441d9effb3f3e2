package bridge

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/beevik/etree"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/san-kum/dynbridge/internal/config"
	"github.com/san-kum/dynbridge/internal/control"
	"github.com/san-kum/dynbridge/internal/dynamo"
	"github.com/san-kum/dynbridge/internal/registry"
	"github.com/san-kum/dynbridge/internal/scene"
	"github.com/san-kum/dynbridge/internal/solver"
	"github.com/san-kum/dynbridge/internal/xmlser"
)

// Default gains of position controlled joints.
const (
	defaultKp = 10.0
	defaultKi = 0.0
	defaultKd = 0.5
)

// sections are the top-level description elements, in document order.
var sections = []string{"option", "default", "asset", "worldbody", "contact", "equality", "tendon", "actuator", "sensor"}

// parentCtx is what a pending node inherits from the walk above it.
type parentCtx struct {
	el    *etree.Element
	frame dynamo.Transform
	// owner is the shape whose body el is; scene.NoHandle for the world.
	owner scene.Handle
	// moving is set when bodies welded under el are simulated.
	moving bool
	joint  scene.Handle
	sensor scene.Handle
}

type pending struct {
	handle scene.Handle
	parent parentCtx
}

type bodyEntry struct {
	el     *etree.Element
	frame  dynamo.Transform
	moving bool
	parts  []massProps
}

type linkedDummy struct {
	handle scene.Handle
	link   scene.DummyLink
	linked scene.Handle
	body   string
	site   string
	pose   dynamo.Transform
	frame  dynamo.Transform
}

// buildInfo aggregates one build pass.
type buildInfo struct {
	work         []pending
	visited      map[scene.Handle]bool
	meshFiles    []string
	heightfields []registry.HeightField
	loopClosures []linkedDummy
	tendons      []linkedDummy
	staticWelds  []*registry.Shape
	massDividers map[scene.Handle]float64
	folder       string
	robust       bool

	doc      *xmlser.Document
	sections map[string]*etree.Element
	bodies   map[scene.Handle]*bodyEntry
	order    []scene.Handle
	dummies  map[scene.Handle]linkedDummy
	consumed map[scene.Handle]bool
	reg      *registry.Registry
}

func newBuildInfo(folder string, robust bool) *buildInfo {
	info := &buildInfo{
		visited:      make(map[scene.Handle]bool),
		massDividers: make(map[scene.Handle]float64),
		folder:       folder,
		robust:       robust,
		doc:          xmlser.New("mujoco"),
		sections:     make(map[string]*etree.Element),
		bodies:       make(map[scene.Handle]*bodyEntry),
		dummies:      make(map[scene.Handle]linkedDummy),
		consumed:     make(map[scene.Handle]bool),
		reg:          registry.New(),
	}
	info.doc.Attr("model", "dynbridge")
	for _, s := range sections {
		info.doc.Open(s)
		info.sections[s] = info.doc.Current()
		info.doc.Close()
	}
	return info
}

func (b *buildInfo) push(h scene.Handle, p parentCtx) {
	b.work = append(b.work, pending{handle: h, parent: p})
}

func (b *buildInfo) pop() pending {
	p := b.work[len(b.work)-1]
	b.work = b.work[:len(b.work)-1]
	return p
}

// in runs fn with el as the current element.
func (b *buildInfo) in(el *etree.Element, fn func(d *xmlser.Document)) {
	b.doc.Enter(el)
	fn(b.doc)
	b.doc.Close()
}

// solverName makes a unique description name from an object name.
func solverName(name string, h scene.Handle) string {
	clean := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		}
		return '_'
	}, name)
	if clean == "" {
		clean = "object"
	}
	return fmt.Sprintf("%s_%d", clean, h)
}

// buildWorld generates a description from the scene, compiles it and swaps
// model and registry on success. On failure the previous model stays.
func (c *Container) buildWorld(timeStep, simTime float64, rebuild bool) error {
	folder, err := c.folder()
	if err != nil {
		return &dynamo.BuildError{Stage: "folder", Wrapped: err}
	}
	info := newBuildInfo(folder, c.cfg.RobustInertia)
	ts := c.cfg.Timestep
	if timeStep > 0 && timeStep < ts {
		ts = timeStep
	}
	info.in(info.sections["option"], func(d *xmlser.Document) {
		d.Attr("timestep", ts)
		d.Attr("gravity", c.cfg.Gravity[:])
		d.Attr("iterations", c.cfg.Iterations)
	})

	stages := []struct {
		name string
		fn   func(*buildInfo) error
	}{
		{"scene", c.addObjects},
		{"links", c.addLinks},
		{"particles", c.addParticles},
		{"composites", c.addComposites},
		{"injections", c.addInjections},
		{"inertia", c.addInertials},
	}
	for _, s := range stages {
		if err := s.fn(info); err != nil {
			return &dynamo.BuildError{Stage: s.name, Wrapped: err}
		}
	}
	info.doc.Prune()
	desc, err := info.doc.String()
	if err != nil {
		return &dynamo.BuildError{Stage: "serialize", Wrapped: err}
	}

	model, err := c.engine.Compile(desc, solver.CompileOptions{WorkDir: folder})
	if err != nil {
		return &dynamo.BuildError{Stage: "compile", Wrapped: err, Description: desc}
	}
	if err := info.reg.Resolve(model); err != nil {
		return &dynamo.BuildError{Stage: "resolve", Wrapped: err}
	}
	if err := checkDependencies(info.reg); err != nil {
		return &dynamo.BuildError{Stage: "joints", Wrapped: err}
	}

	for i, bodies := range info.reg.Composites {
		if ci, ok := c.ctx.Composite(i); ok {
			ci.SolverIDs = make([]int, len(bodies))
			for k, s := range bodies {
				ci.SolverIDs[k] = s.Body
			}
		}
	}
	c.carryOver(model, info.reg, rebuild)
	c.install(model, info.reg)
	c.model, c.reg, c.description = model, info.reg, desc
	c.published = make(map[scene.Handle]dynamo.Velocity)
	c.sample()
	c.ctx.restarts = 0
	c.log.Info("model built",
		"time", simTime,
		"bodies", model.Count(solver.KindBody),
		"joints", model.Count(solver.KindJoint),
		"geoms", model.Count(solver.KindGeom),
		"rebuild", rebuild)
	return nil
}

// addObjects walks the scene depth-first with an explicit stack.
func (c *Container) addObjects(info *buildInfo) error {
	world := parentCtx{
		el:     info.sections["worldbody"],
		frame:  dynamo.Identity(),
		owner:  scene.NoHandle,
		joint:  scene.NoHandle,
		sensor: scene.NoHandle,
	}
	roots := c.graph.Roots()
	for i := len(roots) - 1; i >= 0; i-- {
		info.push(roots[i], world)
	}
	for len(info.work) > 0 {
		p := info.pop()
		if info.visited[p.handle] {
			continue
		}
		info.visited[p.handle] = true
		typ, ok := c.graph.Type(p.handle)
		if !ok {
			continue
		}
		next := p.parent
		switch typ {
		case scene.TypeShape:
			var err error
			if next, err = c.addShape(info, p.handle, p.parent); err != nil {
				return err
			}
		case scene.TypeJoint:
			if _, ok := c.graph.Joint(p.handle); ok {
				if p.parent.joint != scene.NoHandle && !info.consumed[p.parent.joint] {
					c.log.Warn("joint without body", "object", c.graph.Name(p.parent.joint))
				}
				next.joint = p.handle
			}
		case scene.TypeForceSensor:
			next.sensor = p.handle
		case scene.TypeDummy:
			c.addDummy(info, p.handle, p.parent)
		}
		children := c.graph.Children(p.handle)
		for i := len(children) - 1; i >= 0; i-- {
			info.push(children[i], next)
		}
	}
	return nil
}

func (c *Container) addShape(info *buildInfo, h scene.Handle, pc parentCtx) (parentCtx, error) {
	props, _ := c.graph.Shape(h)
	if !props.Simulated() {
		return pc, nil
	}
	name := c.graph.Name(h)
	pose := c.graph.WorldPose(h)
	if d := c.cfg.MassDivider(name); d != 1 {
		info.massDividers[h] = d
	}
	s := &registry.Shape{
		Handle:       h,
		Name:         name,
		SolverName:   solverName(name, h),
		Parent:       pc.owner,
		Start:        pose,
		Goal:         pose,
		Item:         registry.ItemShape,
		ComTransform: dynamo.Identity(),
		Offset:       dynamo.Identity(),
	}
	joint, sensor := pc.joint, pc.sensor
	if info.consumed[joint] {
		joint = scene.NoHandle
	}
	if info.consumed[sensor] {
		sensor = scene.NoHandle
	}
	if pc.owner != scene.NoHandle && joint == scene.NoHandle && sensor == scene.NoHandle {
		return pc, c.attachShape(info, s, props, pc)
	}

	switch {
	case joint != scene.NoHandle:
		s.Mode = registry.ModeStatic
		if props.Dynamic {
			s.Mode = registry.ModeFree
		}
	case sensor != scene.NoHandle:
		s.Mode = registry.ModeStatic
		if pc.moving {
			s.Mode = registry.ModeFree
		}
	case props.Kinematic && c.cfg.Kinematic != config.KinematicStatic:
		s.Mode = registry.ModeKinematic
	case props.Dynamic:
		s.Mode = registry.ModeFree
	default:
		s.Mode = registry.ModeStatic
	}
	moving := s.Mode != registry.ModeStatic || joint != scene.NoHandle
	entry := &bodyEntry{frame: pose, moving: moving}
	if moving && s.Mode != registry.ModeKinematic {
		in, err := shapeInertia(props, info.robust)
		if err != nil {
			return pc, fmt.Errorf("shape %q: %w", name, err)
		}
		in = in.scaled(info.massDividers[h])
		s.ComTransform, s.Mass = in.Com, in.Mass
		entry.parts = append(entry.parts, in.tensor())
	}

	rel := pose.RelativeTo(pc.frame)
	var err error
	info.in(pc.el, func(d *xmlser.Document) {
		d.Open("body")
		defer d.Close()
		d.Attr("name", s.SolverName)
		d.Attr("pos", rel.Position)
		d.Attr("quat", rel.Rotation)
		if s.Mode == registry.ModeKinematic {
			d.Attr("mocap", true)
		}
		entry.el = d.Current()
		switch {
		case joint != scene.NoHandle:
			c.addJoint(info, joint, pose)
			if s.Mode == registry.ModeStatic {
				s.Secondary = registry.SecondaryStatic{}
				info.staticWelds = append(info.staticWelds, s)
			}
		case s.Mode == registry.ModeFree && pc.owner == scene.NoHandle && sensor == scene.NoHandle:
			d.Leaf("freejoint", "name", s.SolverName+"_freejoint")
			s.Secondary = registry.SecondaryFreeJoint{}
			info.reg.AddFreejoint(&registry.Freejoint{Handle: h, Name: s.SolverName + "_freejoint"})
		}
		if sensor != scene.NoHandle {
			c.addForceSensor(info, sensor, pose)
		}
		err = c.addGeoms(info, s, props, dynamo.Identity())
	})
	if err != nil {
		return pc, err
	}
	info.bodies[h] = entry
	info.order = append(info.order, h)
	info.reg.AddShape(s)
	return parentCtx{
		el:     entry.el,
		frame:  pose,
		owner:  h,
		moving: moving,
		joint:  scene.NoHandle,
		sensor: scene.NoHandle,
	}, nil
}

// attachShape merges the geoms of a shape into its owner's body.
func (c *Container) attachShape(info *buildInfo, s *registry.Shape, props scene.ShapeProps, pc parentCtx) error {
	entry, ok := info.bodies[pc.owner]
	if !ok {
		return fmt.Errorf("shape %q: owner %d has no body", s.Name, pc.owner)
	}
	s.Mode = registry.ModeAttached
	s.Offset = s.Start.RelativeTo(entry.frame)
	if entry.moving && len(entry.parts) > 0 {
		in, err := shapeInertia(props, info.robust)
		if err != nil {
			return fmt.Errorf("shape %q: %w", s.Name, err)
		}
		in = in.scaled(info.massDividers[s.Handle])
		s.ComTransform, s.Mass = in.Com, in.Mass
		entry.parts = append(entry.parts, in.tensor().transformed(s.Offset))
	}
	var err error
	info.in(entry.el, func(*xmlser.Document) {
		err = c.addGeoms(info, s, props, s.Offset)
	})
	if err != nil {
		return err
	}
	info.reg.AddShape(s)
	return nil
}

// addGeoms writes one geom per primitive into the current body element.
func (c *Container) addGeoms(info *buildInfo, s *registry.Shape, props scene.ShapeProps, offset dynamo.Transform) error {
	d := info.doc
	add := func(name string, item registry.Item) {
		idx := info.reg.AddGeom(&registry.Geom{
			Handle:          s.Handle,
			Name:            name,
			RespondableMask: props.RespondableMask,
			Item:            item,
		})
		s.Geoms = append(s.Geoms, idx)
	}
	if len(props.Geoms) == 0 {
		name := s.SolverName + "_g0"
		d.Leaf("geom", "name", name, "type", "sphere", "size", 0.001, "contype", 0, "conaffinity", 0)
		add(name, registry.ItemDummy)
		return nil
	}
	for i, g := range props.Geoms {
		name := fmt.Sprintf("%s_g%d", s.SolverName, i)
		local := offset.Mul(g.Local)
		d.Open("geom")
		d.Attr("name", name)
		switch g.Primitive {
		case scene.PrimBox:
			d.Attr("type", "box")
			d.Attr("size", g.Size)
		case scene.PrimSphere:
			d.Attr("type", "sphere")
			d.Attr("size", g.Size[0])
		case scene.PrimCylinder, scene.PrimCapsule:
			d.Attr("type", g.Primitive.String())
			d.Attr("size", []float64{g.Size[0], g.Size[1]})
		case scene.PrimPlane:
			d.Attr("type", "plane")
			d.Attr("size", []float64{g.Size[0], g.Size[1], 0.1})
		case scene.PrimMesh:
			asset := name + "_mesh"
			if err := c.addMesh(info, asset, g.Mesh); err != nil {
				d.Close()
				return fmt.Errorf("shape %q: %w", s.Name, err)
			}
			d.Attr("type", "mesh")
			d.Attr("mesh", asset)
		case scene.PrimHeightfield:
			lo, err := c.addHeightfield(info, name, g.Heightfield)
			if err != nil {
				d.Close()
				return fmt.Errorf("shape %q: %w", s.Name, err)
			}
			d.Attr("type", "hfield")
			d.Attr("hfield", name)
			local.Position = local.Apply(mgl64.Vec3{0, 0, lo})
		}
		d.Attr("pos", local.Position)
		d.Attr("quat", local.Rotation)
		d.Attr("friction", props.Friction)
		if !props.Respondable || props.RespondableMask == 0 {
			d.Attr("contype", 0)
			d.Attr("conaffinity", 0)
		}
		d.Close()
		add(name, registry.ItemShape)
	}
	return nil
}

// addMesh inlines mesh data as an asset.
func (c *Container) addMesh(info *buildInfo, name string, mesh *scene.Mesh) error {
	if mesh == nil || len(mesh.Vertices) < 3 {
		return fmt.Errorf("mesh %q: %w", name, dynamo.ErrDegenerateGeometry)
	}
	verts := make([]float64, 0, 3*len(mesh.Vertices))
	for _, v := range mesh.Vertices {
		verts = append(verts, v[0], v[1], v[2])
	}
	info.in(info.sections["asset"], func(d *xmlser.Document) {
		d.Leaf("mesh", "name", name, "vertex", verts, "face", mesh.Indices)
	})
	info.meshFiles = append(info.meshFiles, name)
	return nil
}

// addHeightfield writes the elevations to <name>.bin in the work folder and
// returns the lowest elevation, which becomes the geom's z offset.
func (c *Container) addHeightfield(info *buildInfo, name string, hf *scene.Heightfield) (float64, error) {
	if hf == nil || hf.Rows < 2 || hf.Cols < 2 || len(hf.Heights) != hf.Rows*hf.Cols {
		return 0, fmt.Errorf("heightfield %q: %w", name, dynamo.ErrDegenerateGeometry)
	}
	lo, hi := span(hf.Heights)
	file := name + ".bin"
	if err := writeHeightfield(filepath.Join(info.folder, file), hf, lo, hi); err != nil {
		return 0, err
	}
	size := [4]float64{hf.SizeX, hf.SizeY, hi - lo, hf.Base}
	info.in(info.sections["asset"], func(d *xmlser.Document) {
		d.Leaf("hfield", "name", name, "file", file, "size", size[:], "nrow", hf.Rows, "ncol", hf.Cols)
	})
	info.heightfields = append(info.heightfields, registry.HeightField{File: file, Rows: hf.Rows, Cols: hf.Cols, Size: size})
	info.reg.AddHeightField(info.heightfields[len(info.heightfields)-1])
	return lo, nil
}

func writeHeightfield(path string, hf *scene.Heightfield, lo, hi float64) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	data := make([]float32, len(hf.Heights))
	if hi > lo {
		for i, h := range hf.Heights {
			data[i] = float32((h - lo) / (hi - lo))
		}
	}
	if err := binary.Write(f, binary.LittleEndian, [2]int32{int32(hf.Rows), int32(hf.Cols)}); err != nil {
		f.Close()
		return err
	}
	if err := binary.Write(f, binary.LittleEndian, data); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// addJoint writes the joint into the current body element and, for
// actuated joints, a motor into the actuator section.
func (c *Container) addJoint(info *buildInfo, h scene.Handle, bodyPose dynamo.Transform) {
	props, _ := c.graph.Joint(h)
	info.consumed[h] = true
	name := solverName(c.graph.Name(h), h)
	pose := c.graph.WorldPose(h)
	rel := pose.RelativeTo(bodyPose)
	typ := map[scene.JointType]string{
		scene.JointRevolute:  "hinge",
		scene.JointPrismatic: "slide",
		scene.JointSpherical: "ball",
	}[props.Type]

	d := info.doc
	d.Open("joint")
	d.Attr("name", name)
	d.Attr("type", typ)
	d.Attr("pos", rel.Position)
	d.Attr("axis", rel.Rotation.Rotate(mgl64.Vec3{0, 0, 1}))
	if props.Type != scene.JointSpherical {
		d.Attr("ref", props.Position)
		if props.Limited {
			d.Attr("limited", true)
			d.Attr("range", props.Range[:])
		}
	}
	d.Close()

	j := &registry.Joint{
		Handle:         h,
		Name:           c.graph.Name(h),
		SolverName:     name,
		SolverID:       -1,
		Actuator:       -1,
		Type:           props.Type,
		RateLimit:      props.RateLimit,
		ForceToApply:   props.Force,
		MaxForce:       props.MaxForce,
		TargetVelocity: props.TargetVelocity,
		TargetPosition: props.TargetPosition,
		InitialBall:    pose.Rotation,
		Dependency:     scene.NoHandle,
		Poly:           dynamo.NewPolynomial(props.Poly...),
	}
	if j.MaxForce <= 0 {
		j.MaxForce = c.cfg.MaxForce
	}
	if j.RateLimit <= 0 {
		j.RateLimit = c.cfg.RateLimit
	}
	switch props.Control {
	case scene.ControlForce:
		j.Mode = registry.ActForce
	case scene.ControlVelocity:
		j.Mode = registry.ActMixed
	case scene.ControlPosition:
		j.Mode = registry.ActMixed
		kp, ki, kd := props.Kp, props.Ki, props.Kd
		if kp == 0 && ki == 0 && kd == 0 {
			kp, ki, kd = defaultKp, defaultKi, defaultKd
		}
		j.PID = control.NewPID(kp, ki, kd, props.TargetPosition)
	case scene.ControlDependent:
		j.Mode = registry.ActMixed
		j.Dependency = props.Dependency
	}
	if props.Type == scene.JointSpherical {
		j.Mode = registry.ActFree
	}
	if j.Mode != registry.ActFree {
		info.in(info.sections["actuator"], func(d *xmlser.Document) {
			d.Leaf("motor", "name", name+"_act", "joint", name, "gear", 1.0,
				"ctrllimited", true, "ctrlrange", []float64{-j.MaxForce, j.MaxForce})
		})
	}
	info.reg.AddJoint(j)
}

// addForceSensor puts a site at the sensor frame of the current body and
// force and torque sensors reading it.
func (c *Container) addForceSensor(info *buildInfo, h scene.Handle, bodyPose dynamo.Transform) {
	info.consumed[h] = true
	name := solverName(c.graph.Name(h), h)
	rel := c.graph.WorldPose(h).RelativeTo(bodyPose)
	info.doc.Leaf("site", "name", name+"_site", "pos", rel.Position, "quat", rel.Rotation)
	info.in(info.sections["sensor"], func(d *xmlser.Document) {
		d.Leaf("force", "name", name+"_force", "site", name+"_site")
		d.Leaf("torque", "name", name+"_torque", "site", name+"_site")
	})
	info.reg.AddForceSensor(&registry.ForceSensor{Handle: h, Name: c.graph.Name(h), SolverName: name})
}

// addDummy records a linked dummy and gives it a site on its owning body.
func (c *Container) addDummy(info *buildInfo, h scene.Handle, pc parentCtx) {
	props, ok := c.graph.Dummy(h)
	if !ok || props.Link == scene.LinkNone || props.Linked == scene.NoHandle {
		return
	}
	name := solverName(c.graph.Name(h), h)
	pose := c.graph.WorldPose(h)
	rel := pose.RelativeTo(pc.frame)
	body := "world"
	if pc.owner != scene.NoHandle {
		body = solverName(c.graph.Name(pc.owner), pc.owner)
	}
	info.in(pc.el, func(d *xmlser.Document) {
		d.Leaf("site", "name", name+"_site", "pos", rel.Position)
	})
	ld := linkedDummy{handle: h, link: props.Link, linked: props.Linked, body: body, site: name + "_site", pose: pose, frame: pc.frame}
	info.dummies[h] = ld
	switch props.Link {
	case scene.LinkLoopClosure:
		info.loopClosures = append(info.loopClosures, ld)
	case scene.LinkTendon:
		info.tendons = append(info.tendons, ld)
	}
}

// addLinks is the second pass: loop closures, tendons and static welds.
func (c *Container) addLinks(info *buildInfo) error {
	done := make(map[[2]scene.Handle]bool)
	partner := func(a linkedDummy) (linkedDummy, bool) {
		b, ok := info.dummies[a.linked]
		if !ok {
			c.warn(fmt.Sprintf("dummy %q is linked to an object outside the simulation", c.graph.Name(a.handle)))
			return b, false
		}
		key := [2]scene.Handle{min(a.handle, b.handle), max(a.handle, b.handle)}
		if done[key] || a.body == b.body {
			return b, false
		}
		done[key] = true
		return b, true
	}
	for _, a := range info.loopClosures {
		b, ok := partner(a)
		if !ok {
			continue
		}
		anchor := a.pose.RelativeTo(a.frame).Position
		info.in(info.sections["equality"], func(d *xmlser.Document) {
			d.Leaf("connect", "name", a.site+"_closure", "body1", a.body, "body2", b.body, "anchor", anchor)
		})
	}
	for _, a := range info.tendons {
		b, ok := partner(a)
		if !ok {
			continue
		}
		length := a.pose.Position.Sub(b.pose.Position).Len()
		info.in(info.sections["tendon"], func(d *xmlser.Document) {
			d.Open("spatial")
			d.Attr("name", a.site+"_tendon")
			d.Attr("limited", true)
			d.Attr("range", []float64{0, length})
			d.Leaf("site", "site", a.site)
			d.Leaf("site", "site", b.site)
			d.Close()
		})
	}
	for _, s := range info.staticWelds {
		info.in(info.sections["worldbody"], func(d *xmlser.Document) {
			d.Leaf("body", "name", s.SolverName+"_static", "pos", s.Start.Position, "quat", s.Start.Rotation)
		})
		info.in(info.sections["equality"], func(d *xmlser.Document) {
			d.Leaf("weld", "name", s.SolverName+"_weld", "body1", s.SolverName+"_static", "body2", s.SolverName)
		})
	}
	return nil
}

func (c *Container) addParticles(info *buildInfo) error {
	for _, p := range c.graph.Particles() {
		if p.Radius <= 0 {
			return fmt.Errorf("particle %d: radius must be positive", p.ID)
		}
		name := fmt.Sprintf("particle%d", p.ID)
		density := p.Density
		if density <= 0 {
			density = defaultDensity
		}
		info.in(info.sections["worldbody"], func(d *xmlser.Document) {
			d.Open("body")
			d.Attr("name", name)
			d.Attr("pos", p.Position)
			d.Leaf("freejoint", "name", name+"_freejoint")
			d.Open("geom")
			d.Attr("name", name+"_g0")
			d.Attr("type", "sphere")
			d.Attr("size", p.Radius)
			d.Attr("density", density)
			if p.RespondableMask == 0 {
				d.Attr("contype", 0)
				d.Attr("conaffinity", 0)
			}
			d.Close()
			d.Close()
		})
		idx := info.reg.AddGeom(&registry.Geom{
			Handle:          registry.ParticleHandle,
			Name:            name + "_g0",
			RespondableMask: p.RespondableMask,
			Item:            registry.ItemParticle,
		})
		pose := dynamo.Transform{Position: p.Position, Rotation: mgl64.QuatIdent()}
		info.reg.AddParticle(&registry.Shape{
			Handle:       registry.ParticleHandle,
			Name:         name,
			SolverName:   name,
			Parent:       scene.NoHandle,
			Mode:         registry.ModeFree,
			Start:        pose,
			Goal:         pose,
			ComTransform: dynamo.Identity(),
			Offset:       dynamo.Identity(),
			Index:        p.ID,
			Geoms:        []int{idx},
		})
	}
	return nil
}

// addInjections splices the queued raw fragments at their anchors.
func (c *Container) addInjections(info *buildInfo) error {
	for i, inj := range c.ctx.injections {
		var el *etree.Element
		if inj.Element == "body" {
			entry, ok := info.bodies[inj.Object]
			if !ok {
				c.warn(fmt.Sprintf("injection %d: object %d has no body", i, inj.Object))
				continue
			}
			el = entry.el
		} else {
			var ok bool
			if el, ok = info.sections[inj.Element]; !ok || inj.Element == "option" {
				return fmt.Errorf("injection %d: unknown anchor %q", i, inj.Element)
			}
		}
		var err error
		info.in(el, func(d *xmlser.Document) { err = d.Splice(inj.XML) })
		if err != nil {
			return fmt.Errorf("injection %d: %w", i, err)
		}
	}
	return nil
}

// addInertials writes the combined inertial of every simulated body.
func (c *Container) addInertials(info *buildInfo) error {
	for _, h := range info.order {
		entry := info.bodies[h]
		if !entry.moving || len(entry.parts) == 0 {
			continue
		}
		in := combine(entry.parts).principal()
		if in.Mass <= 0 {
			return fmt.Errorf("shape %q: %w", c.graph.Name(h), dynamo.ErrDegenerateGeometry)
		}
		info.in(entry.el, func(d *xmlser.Document) {
			d.Leaf("inertial", "pos", in.Com.Position, "quat", in.Com.Rotation,
				"mass", in.Mass, "diaginertia", in.Diag)
		})
	}
	return nil
}

func checkDependencies(reg *registry.Registry) error {
	for _, j := range reg.Joints {
		if j.Dependency == scene.NoHandle {
			continue
		}
		dep, ok := reg.Joint(j.Dependency)
		if !ok || dep == j {
			return fmt.Errorf("joint %q depends on object %d which is not a simulated joint", j.Name, j.Dependency)
		}
	}
	return nil
}

// retune applies changed gains and keeps the controller's accumulated state.
func retune(p *control.PID, kp, ki, kd float64) {
	okp, oki, okd := p.Gains()
	if kp != okp {
		p.SetParam("Kp", kp)
	}
	if ki != oki {
		p.SetParam("Ki", ki)
	}
	if kd != okd {
		p.SetParam("Kd", kd)
	}
}

// resetBelow reports whether a dynamic reset was requested for joint h or
// for an object it drives.
func (c *Container) resetBelow(h scene.Handle) bool {
	for r := range c.dynamicReset {
		if r == h || c.graph.Parent(r) == h {
			return true
		}
	}
	return false
}

// carryOver moves solver state of the previous model into a fresh one, by
// handle. Objects reset on request start at rest.
func (c *Container) carryOver(m solver.Model, reg *registry.Registry, rebuild bool) {
	old := c.reg
	if !rebuild || c.model == nil || c.sceneReset {
		old = nil
	}
	for _, s := range reg.Shapes {
		if s.Mode != registry.ModeFree {
			continue
		}
		v := c.graph.Velocity(s.Handle)
		if old != nil {
			if prev, ok := old.Shape(s.Handle); ok && prev.Mode == registry.ModeFree {
				v = c.model.BodyVelocity(prev.Body)
			}
		}
		if c.dynamicReset[s.Handle] {
			v = dynamo.Velocity{}
		}
		m.SetBodyState(s.Body, m.BodyPose(s.Body), v)
	}
	particles := make(map[int]scene.Particle)
	for _, p := range c.graph.Particles() {
		particles[p.ID] = p
	}
	for _, s := range reg.Particles {
		p := particles[s.Index]
		m.SetBodyState(s.Body, m.BodyPose(s.Body), dynamo.Velocity{Linear: p.Velocity})
	}
	if old != nil {
		for i, bodies := range reg.Composites {
			if i >= len(old.Composites) || len(old.Composites[i]) != len(bodies) || old.Composites[i][0].Name != bodies[0].Name {
				continue
			}
			for k, s := range bodies {
				prev := old.Composites[i][k]
				m.SetBodyState(s.Body, c.model.BodyPose(prev.Body), c.model.BodyVelocity(prev.Body))
			}
		}
		for _, j := range reg.Joints {
			prev, ok := old.Joint(j.Handle)
			if !ok || prev.Mode != j.Mode {
				continue
			}
			j.Command = prev.Command
			if j.PID != nil && prev.PID != nil {
				kp, ki, kd := j.PID.Gains()
				retune(prev.PID, kp, ki, kd)
				prev.PID.SetParam("Target", j.PID.Target)
				if c.resetBelow(j.Handle) {
					prev.PID.Reset()
				}
				j.PID = prev.PID
			}
			if j.Actuator >= 0 {
				m.SetControl(j.Actuator, j.Command)
			}
		}
	}
}

package planar

import (
	"fmt"
	"math"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/beevik/etree"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/jakecoffman/cp"
	"github.com/san-kum/dynbridge/internal/dynamo"
	"github.com/san-kum/dynbridge/internal/solver"
	"github.com/san-kum/dynbridge/internal/xmlser"
)

const (
	defaultTimestep = 0.002
	defaultDensity  = 1000.0
	grooveHalfSpan  = 1e3
	collisionSlop   = 1e-3
	collisionType   = cp.CollisionType(1)
)

type compiler struct {
	opts    solver.CompileOptions
	ix      *solver.Index
	m       *model
	meshes  map[string][]mgl64.Vec3
	hfields map[string]*heightfield
	bodyOf  map[*etree.Element]int
	geomOf  map[*etree.Element]int
	siteOf  map[*etree.Element]int
	frames  []dynamo.Transform
}

// Compile parses a description and builds a cp space from it.
func (e *Engine) Compile(description string, opts solver.CompileOptions) (solver.Model, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromString(description); err != nil {
		return nil, fmt.Errorf("planar: parse description: %w", err)
	}
	root := doc.Root()
	if root == nil || root.Tag != "mujoco" {
		return nil, fmt.Errorf("planar: root element must be <mujoco>")
	}

	c := &compiler{
		opts:    opts,
		ix:      solver.NewIndex(root),
		meshes:  make(map[string][]mgl64.Vec3),
		hfields: make(map[string]*heightfield),
		bodyOf:  make(map[*etree.Element]int),
		geomOf:  make(map[*etree.Element]int),
		siteOf:  make(map[*etree.Element]int),
	}
	for _, k := range []solver.Kind{solver.KindBody, solver.KindJoint, solver.KindGeom, solver.KindSite, solver.KindActuator, solver.KindSensor} {
		if dups := c.ix.Duplicates(k); len(dups) > 0 {
			return nil, fmt.Errorf("planar: repeated %s name %q", k, dups[0])
		}
	}
	for g := 0; g < c.ix.Count(solver.KindGeom); g++ {
		c.geomOf[c.ix.Element(solver.KindGeom, g)] = g
	}
	for s := 0; s < c.ix.Count(solver.KindSite); s++ {
		c.siteOf[c.ix.Element(solver.KindSite, s)] = s
	}

	c.m = &model{
		Index:    c.ix,
		space:    cp.NewSpace(),
		timestep: defaultTimestep,
		gravity:  cp.Vector{X: 0, Y: -9.81},
		geomBody: make([]int, c.ix.Count(solver.KindGeom)),
	}
	c.m.space.SetCollisionSlop(collisionSlop)

	steps := []struct {
		name string
		fn   func(root *etree.Element) error
	}{
		{"option", c.option},
		{"asset", c.assets},
		{"worldbody", c.bodies},
		{"joint", c.joints},
		{"site", c.sites},
		{"equality", c.equalities},
		{"tendon", c.tendons},
		{"actuator", c.actuators},
		{"sensor", c.sensors},
	}
	for _, s := range steps {
		if err := s.fn(root); err != nil {
			return nil, fmt.Errorf("planar: %s: %w", s.name, err)
		}
	}

	handler := c.m.space.NewCollisionHandler(collisionType, collisionType)
	handler.PreSolveFunc = c.m.preSolve
	handler.PostSolveFunc = c.m.postSolve
	return c.m, nil
}

func (c *compiler) option(root *etree.Element) error {
	opt := root.SelectElement("option")
	if opt == nil {
		c.m.space.SetGravity(c.m.gravity)
		return nil
	}
	ts, err := attrFloats(opt, "timestep", 1, defaultTimestep)
	if err != nil {
		return err
	}
	if ts[0] <= 0 {
		return fmt.Errorf("timestep must be positive, got %g", ts[0])
	}
	c.m.timestep = ts[0]
	g, err := attrFloats(opt, "gravity", 3, 0, 0, -9.81)
	if err != nil {
		return err
	}
	c.m.gravity = project(mgl64.Vec3{g[0], g[1], g[2]})
	c.m.space.SetGravity(c.m.gravity)
	if it := opt.SelectAttrValue("iterations", ""); it != "" {
		n, err := strconv.Atoi(it)
		if err != nil || n <= 0 {
			return fmt.Errorf("invalid iterations %q", it)
		}
		c.m.space.Iterations = uint(n)
	}
	return nil
}

func (c *compiler) assets(root *etree.Element) error {
	for _, asset := range root.SelectElements("asset") {
		for _, el := range asset.SelectElements("mesh") {
			name := el.SelectAttrValue("name", "")
			vs, err := attrFloats(el, "vertex", 0)
			if err != nil {
				return fmt.Errorf("mesh %q: %w", name, err)
			}
			if len(vs)%3 != 0 || len(vs) < 9 {
				return fmt.Errorf("mesh %q: vertex data has %d values", name, len(vs))
			}
			verts := make([]mgl64.Vec3, len(vs)/3)
			for i := range verts {
				verts[i] = mgl64.Vec3{vs[3*i], vs[3*i+1], vs[3*i+2]}
			}
			c.meshes[name] = verts
		}
		for _, el := range asset.SelectElements("hfield") {
			name := el.SelectAttrValue("name", "")
			file := el.SelectAttrValue("file", "")
			if file == "" {
				return fmt.Errorf("hfield %q: missing file", name)
			}
			if !filepath.IsAbs(file) {
				file = filepath.Join(c.opts.WorkDir, file)
			}
			size, err := attrFloats(el, "size", 4)
			if err != nil {
				return fmt.Errorf("hfield %q: %w", name, err)
			}
			hf, err := readHeightfield(file, [4]float64{size[0], size[1], size[2], size[3]})
			if err != nil {
				return fmt.Errorf("hfield %q: %w", name, err)
			}
			c.hfields[name] = hf
		}
	}
	return nil
}

// bodies creates one cp body per <body>, in document order so parents exist
// before their children.
func (c *compiler) bodies(root *etree.Element) error {
	wb := root.SelectElement("worldbody")
	world := &body{name: "world", kind: bodyWorld, cp: c.m.space.StaticBody, parent: -1, q0: mgl64.QuatIdent()}
	c.m.bodies = append(c.m.bodies, world)
	c.frames = append(c.frames, dynamo.Identity())
	if wb == nil {
		return nil
	}
	c.bodyOf[wb] = 0
	if err := c.attachGeoms(0, wb, cp.Vector{}); err != nil {
		return err
	}

	for id := 1; id < c.ix.Count(solver.KindBody); id++ {
		el := c.ix.Element(solver.KindBody, id)
		if err := c.body(id, el); err != nil {
			return fmt.Errorf("body %q: %w", c.ix.Name(solver.KindBody, id), err)
		}
	}
	return nil
}

func (c *compiler) body(id int, el *etree.Element) error {
	parent := c.owner(el)
	local, err := localTransform(el)
	if err != nil {
		return err
	}
	frame := c.frames[parent].Mul(local)
	c.bodyOf[el] = id
	c.frames = append(c.frames, frame)

	b := &body{name: c.ix.Name(solver.KindBody, id), parent: parent, q0: frame.Rotation}
	hasFree := len(el.SelectElements("freejoint")) > 0
	for _, j := range el.SelectElements("joint") {
		if j.SelectAttrValue("type", "hinge") == "free" {
			hasFree = true
		}
	}
	hasJoint := len(el.SelectElements("joint")) > 0
	parentKind := c.m.bodies[parent].kind

	switch {
	case el.SelectAttrValue("mocap", "false") == "true":
		if parent != 0 {
			return fmt.Errorf("mocap body must be a child of the world body")
		}
		b.kind = bodyKinematic
	case hasFree:
		if parent != 0 {
			return fmt.Errorf("free joint can only be used on top level")
		}
		b.kind = bodyDynamic
	case hasJoint:
		b.kind = bodyDynamic
	case parentKind == bodyDynamic || parentKind == bodyKinematic:
		// welded to the parent below
		b.kind = bodyDynamic
	default:
		b.kind = bodyStatic
	}

	outlines, geomEls, err := c.outlines(el, frame)
	if err != nil {
		return err
	}

	comW := frame.Position
	switch b.kind {
	case bodyDynamic:
		if err := c.inertial(b, el, frame, outlines, geomEls); err != nil {
			return err
		}
		comW = frame.Apply(b.com)
		b.cp = cp.NewBody(b.mass, b.inertia)
	case bodyKinematic:
		b.cp = cp.NewKinematicBody()
	default:
		b.cp = cp.NewStaticBody()
	}
	b.y = comW[1]
	b.cp.UserData = id
	b.cp.SetPosition(project(comW))
	c.m.space.AddBody(b.cp)
	c.m.bodies = append(c.m.bodies, b)

	if b.kind == bodyDynamic && !hasJoint && !hasFree {
		c.weld(c.m.bodies[parent].cp, b.cp, project(frame.Position))
	}
	return c.attachGeoms(id, el, project(comW))
}

// owner returns the body id of the nearest enclosing body or worldbody.
func (c *compiler) owner(el *etree.Element) int {
	for p := el.Parent(); p != nil; p = p.Parent() {
		if id, ok := c.bodyOf[p]; ok {
			return id
		}
	}
	return 0
}

func (c *compiler) outlines(el *etree.Element, frame dynamo.Transform) ([]outline, []*etree.Element, error) {
	var out []outline
	var els []*etree.Element
	for _, g := range el.SelectElements("geom") {
		o, err := c.outline(g, frame)
		if err != nil {
			return nil, nil, fmt.Errorf("geom %q: %w", g.SelectAttrValue("name", ""), err)
		}
		out = append(out, o)
		els = append(els, g)
	}
	return out, els, nil
}

func (c *compiler) outline(g *etree.Element, frame dynamo.Transform) (outline, error) {
	local, err := localTransform(g)
	if err != nil {
		return outline{}, err
	}
	typ := g.SelectAttrValue("type", "sphere")
	size, err := attrFloats(g, "size", 3)
	if err != nil {
		return outline{}, err
	}
	var mesh []mgl64.Vec3
	var hf *heightfield
	switch typ {
	case "mesh":
		name := g.SelectAttrValue("mesh", "")
		var ok bool
		if mesh, ok = c.meshes[name]; !ok {
			return outline{}, fmt.Errorf("unknown mesh %q", name)
		}
	case "hfield":
		name := g.SelectAttrValue("hfield", "")
		var ok bool
		if hf, ok = c.hfields[name]; !ok {
			return outline{}, fmt.Errorf("unknown hfield %q", name)
		}
	case "sphere", "capsule", "cylinder":
		if size[0] <= 0 {
			return outline{}, fmt.Errorf("%s radius must be positive", typ)
		}
	}
	return geomOutline(typ, size, frame.Mul(local), mesh, hf)
}

// inertial sets mass, inertia about world Y and center of mass. Without an
// <inertial> element they are derived from the geoms.
func (c *compiler) inertial(b *body, el *etree.Element, frame dynamo.Transform, outlines []outline, geomEls []*etree.Element) error {
	if in := el.SelectElement("inertial"); in != nil {
		mass, err := attrFloats(in, "mass", 1)
		if err != nil {
			return err
		}
		pos, err := attrFloats(in, "pos", 3)
		if err != nil {
			return err
		}
		q, err := attrFloats(in, "quat", 4, 1, 0, 0, 0)
		if err != nil {
			return err
		}
		diag, err := attrFloats(in, "diaginertia", 3)
		if err != nil {
			return err
		}
		rot := frame.Rotation.Mul(mgl64.Quat{W: q[0], V: mgl64.Vec3{q[1], q[2], q[3]}}.Normalize()).Mat4().Mat3()
		world := rot.Mul3(mgl64.Diag3(mgl64.Vec3{diag[0], diag[1], diag[2]})).Mul3(rot.Transpose())
		b.mass = mass[0]
		b.inertia = world.At(1, 1)
		b.com = mgl64.Vec3{pos[0], pos[1], pos[2]}
	} else {
		var total float64
		var centroid cp.Vector
		masses := make([]float64, len(outlines))
		for i, o := range outlines {
			m, err := geomMass(geomEls[i], o)
			if err != nil {
				return err
			}
			masses[i] = m
			total += m
			centroid = centroid.Add(o.centroid().Mult(m))
		}
		if total > 0 {
			centroid = centroid.Mult(1 / total)
		}
		var inertia float64
		for i, o := range outlines {
			inertia += o.moment(masses[i]) + masses[i]*o.centroid().DistanceSq(centroid)
		}
		b.mass, b.inertia = total, inertia
		comW := mgl64.Vec3{centroid.X, frame.Position[1], centroid.Y}
		b.com = frame.Inverse().Apply(comW)
	}
	if b.mass <= 0 || b.inertia <= 0 || math.IsNaN(b.mass+b.inertia) {
		return fmt.Errorf("mass and inertia of moving bodies must be positive (mass %g, inertia %g)", b.mass, b.inertia)
	}
	return nil
}

func geomMass(g *etree.Element, o outline) (float64, error) {
	if v := g.SelectAttrValue("mass", ""); v != "" {
		return strconv.ParseFloat(v, 64)
	}
	d, err := attrFloats(g, "density", 1, defaultDensity)
	if err != nil {
		return 0, err
	}
	return d[0] * o.volume, nil
}

// attachGeoms creates the cp shapes of the geoms directly under el.
func (c *compiler) attachGeoms(id int, el *etree.Element, origin cp.Vector) error {
	b := c.m.bodies[id]
	for _, g := range el.SelectElements("geom") {
		gid := c.geomOf[g]
		o, err := c.outline(g, c.frames[id])
		if err != nil {
			return fmt.Errorf("geom %q: %w", c.ix.Name(solver.KindGeom, gid), err)
		}
		friction, err := attrFloats(g, "friction", 1, 1)
		if err != nil {
			return err
		}
		contype := g.SelectAttrValue("contype", "1")
		conaffinity := g.SelectAttrValue("conaffinity", "1")
		c.m.geomBody[gid] = id
		for _, s := range o.shapes(b.cp, origin) {
			s.SetFriction(friction[0])
			s.SetCollisionType(collisionType)
			s.UserData = gid
			if contype == "0" && conaffinity == "0" {
				s.SetFilter(cp.SHAPE_FILTER_NONE)
			}
			c.m.space.AddShape(s)
		}
	}
	return nil
}

func (c *compiler) weld(a, b *cp.Body, at cp.Vector) {
	pivot := cp.NewPivotJoint(a, b, at)
	pivot.SetCollideBodies(false)
	c.m.space.AddConstraint(pivot)
	gear := cp.NewGearJoint(a, b, b.Angle()-a.Angle(), 1)
	gear.SetCollideBodies(false)
	c.m.space.AddConstraint(gear)
}

func (c *compiler) joints(_ *etree.Element) error {
	for id := 0; id < c.ix.Count(solver.KindJoint); id++ {
		el := c.ix.Element(solver.KindJoint, id)
		j, err := c.joint(el)
		if err != nil {
			return fmt.Errorf("joint %q: %w", c.ix.Name(solver.KindJoint, id), err)
		}
		c.m.joints = append(c.m.joints, j)
	}
	return nil
}

func (c *compiler) joint(el *etree.Element) (*joint, error) {
	bid := c.owner(el)
	j := &joint{name: el.SelectAttrValue("name", ""), body: bid, parent: c.m.bodies[bid].parent, typ: "free"}
	if el.Tag == "freejoint" {
		return j, nil
	}
	j.typ = el.SelectAttrValue("type", "hinge")
	if j.typ == "free" {
		return j, nil
	}
	vals := map[string][]float64{}
	for _, a := range []struct {
		name string
		n    int
		dflt []float64
	}{
		{"pos", 3, nil}, {"axis", 3, []float64{0, 0, 1}}, {"ref", 1, nil}, {"damping", 1, nil}, {"range", 2, nil},
	} {
		v, err := attrFloats(el, a.name, a.n, a.dflt...)
		if err != nil {
			return nil, err
		}
		vals[a.name] = v
	}
	j.ref, j.damping = vals["ref"][0], vals["damping"][0]
	limited := el.SelectAttrValue("limited", "auto")
	isLimited := limited == "true" || (limited == "auto" && el.SelectAttr("range") != nil)
	lo, hi := vals["range"][0], vals["range"][1]
	if isLimited && lo > hi {
		return nil, fmt.Errorf("range %g > %g", lo, hi)
	}

	frame := c.frames[bid]
	axis := mgl64.Vec3{vals["axis"][0], vals["axis"][1], vals["axis"][2]}
	if axis.Len() == 0 {
		return nil, fmt.Errorf("zero axis")
	}
	axis = frame.Rotation.Rotate(axis.Normalize())
	anchor := project(frame.Apply(mgl64.Vec3{vals["pos"][0], vals["pos"][1], vals["pos"][2]}))
	a, b := c.m.bodies[j.parent].cp, c.m.bodies[bid].cp
	j.anchorP, j.anchorB = a.WorldToLocal(anchor), b.WorldToLocal(anchor)

	add := func(con *cp.Constraint) {
		con.SetCollideBodies(false)
		c.m.space.AddConstraint(con)
	}
	switch j.typ {
	case "hinge", "ball":
		add(cp.NewPivotJoint(a, b, anchor))
		if j.typ == "ball" {
			j.sign = 1
			return j, nil
		}
		if math.Abs(axis[1]) < 0.5 {
			j.locked = true
			add(cp.NewGearJoint(a, b, b.Angle()-a.Angle(), 1))
			return j, nil
		}
		j.sign = math.Copysign(1, axis[1])
		if isLimited {
			d1, d2 := -j.sign*(lo-j.ref), -j.sign*(hi-j.ref)
			add(cp.NewRotaryLimitJoint(a, b, math.Min(d1, d2), math.Max(d1, d2)))
		}
	case "slide":
		d := cp.Vector{X: axis[0], Y: axis[2]}
		if d.Length() < 0.5 {
			j.locked = true
			add(cp.NewPivotJoint(a, b, anchor))
			add(cp.NewGearJoint(a, b, b.Angle()-a.Angle(), 1))
			return j, nil
		}
		d = d.Normalize()
		j.dir = d.Unrotate(a.Rotation())
		from, to := -grooveHalfSpan, grooveHalfSpan
		if isLimited {
			from, to = lo-j.ref, hi-j.ref
		}
		add(cp.NewGrooveJoint(a, b, a.WorldToLocal(anchor.Add(d.Mult(from))), a.WorldToLocal(anchor.Add(d.Mult(to))), j.anchorB))
		add(cp.NewGearJoint(a, b, b.Angle()-a.Angle(), 1))
	default:
		return nil, fmt.Errorf("unknown joint type %q", j.typ)
	}
	return j, nil
}

func (c *compiler) sites(_ *etree.Element) error {
	for id := 0; id < c.ix.Count(solver.KindSite); id++ {
		el := c.ix.Element(solver.KindSite, id)
		bid := c.owner(el)
		local, err := localTransform(el)
		if err != nil {
			return fmt.Errorf("site %q: %w", c.ix.Name(solver.KindSite, id), err)
		}
		world := project(c.frames[bid].Mul(local).Position)
		c.m.sites = append(c.m.sites, site{body: bid, local: c.m.bodies[bid].cp.WorldToLocal(world)})
	}
	return nil
}

func (c *compiler) bodyByName(name string) (int, error) {
	if name == "" || name == "world" {
		return 0, nil
	}
	id := c.ix.Lookup(solver.KindBody, name)
	if id < 0 {
		return 0, fmt.Errorf("unknown body %q", name)
	}
	return id, nil
}

func (c *compiler) equalities(_ *etree.Element) error {
	for id := 0; id < c.ix.Count(solver.KindEquality); id++ {
		el := c.ix.Element(solver.KindEquality, id)
		b1, err := c.bodyByName(el.SelectAttrValue("body1", ""))
		if err != nil {
			return err
		}
		b2, err := c.bodyByName(el.SelectAttrValue("body2", ""))
		if err != nil {
			return err
		}
		if b1 == b2 {
			return fmt.Errorf("%s %q: body1 and body2 are the same", el.Tag, el.SelectAttrValue("name", ""))
		}
		p1, p2 := c.m.bodies[b1], c.m.bodies[b2]
		if p1.kind != bodyDynamic && p2.kind != bodyDynamic {
			continue
		}
		switch el.Tag {
		case "weld":
			c.weld(p1.cp, p2.cp, project(c.frames[b2].Position))
		case "connect":
			anchor, err := attrFloats(el, "anchor", 3)
			if err != nil {
				return err
			}
			at := project(c.frames[b1].Apply(mgl64.Vec3{anchor[0], anchor[1], anchor[2]}))
			pivot := cp.NewPivotJoint(p1.cp, p2.cp, at)
			pivot.SetCollideBodies(false)
			c.m.space.AddConstraint(pivot)
		}
	}
	return nil
}

// tendons turns limited two-site spatial tendons into slide (rope) joints.
func (c *compiler) tendons(_ *etree.Element) error {
	for id := 0; id < c.ix.Count(solver.KindTendon); id++ {
		el := c.ix.Element(solver.KindTendon, id)
		refs := el.SelectElements("site")
		if len(refs) < 2 {
			return fmt.Errorf("tendon %q: needs two sites", c.ix.Name(solver.KindTendon, id))
		}
		var ss [2]site
		for i := 0; i < 2; i++ {
			sid := c.ix.Lookup(solver.KindSite, refs[i].SelectAttrValue("site", ""))
			if sid < 0 {
				return fmt.Errorf("tendon %q: unknown site %q", c.ix.Name(solver.KindTendon, id), refs[i].SelectAttrValue("site", ""))
			}
			ss[i] = c.m.sites[sid]
		}
		rng, err := attrFloats(el, "range", 2)
		if err != nil {
			return err
		}
		if el.SelectAttrValue("limited", "auto") == "false" || (el.SelectAttr("range") == nil) {
			continue
		}
		a, b := c.m.bodies[ss[0].body], c.m.bodies[ss[1].body]
		if a.kind != bodyDynamic && b.kind != bodyDynamic {
			continue
		}
		rope := cp.NewSlideJoint(a.cp, b.cp, ss[0].local, ss[1].local, rng[0], rng[1])
		c.m.space.AddConstraint(rope)
	}
	return nil
}

func (c *compiler) actuators(_ *etree.Element) error {
	for id := 0; id < c.ix.Count(solver.KindActuator); id++ {
		el := c.ix.Element(solver.KindActuator, id)
		name := c.ix.Name(solver.KindActuator, id)
		jid := c.ix.Lookup(solver.KindJoint, el.SelectAttrValue("joint", ""))
		if jid < 0 {
			return fmt.Errorf("actuator %q: unknown joint %q", name, el.SelectAttrValue("joint", ""))
		}
		gear, err := attrFloats(el, "gear", 1, 1)
		if err != nil {
			return err
		}
		rng, err := attrFloats(el, "ctrlrange", 2)
		if err != nil {
			return err
		}
		limited := el.SelectAttrValue("ctrllimited", "auto")
		c.m.actuators = append(c.m.actuators, &actuator{
			joint:   jid,
			gear:    gear[0],
			limited: limited == "true" || (limited == "auto" && el.SelectAttr("ctrlrange") != nil),
			lo:      rng[0],
			hi:      rng[1],
		})
	}
	return nil
}

func (c *compiler) sensors(_ *etree.Element) error {
	for id := 0; id < c.ix.Count(solver.KindSensor); id++ {
		el := c.ix.Element(solver.KindSensor, id)
		sid := c.ix.Lookup(solver.KindSite, el.SelectAttrValue("site", ""))
		if sid < 0 {
			return fmt.Errorf("sensor %q: unknown site %q", c.ix.Name(solver.KindSensor, id), el.SelectAttrValue("site", ""))
		}
		c.m.sensors = append(c.m.sensors, sensor{torque: el.Tag == "torque", site: sid})
	}
	return nil
}

func localTransform(el *etree.Element) (dynamo.Transform, error) {
	pos, err := attrFloats(el, "pos", 3)
	if err != nil {
		return dynamo.Transform{}, err
	}
	tr := dynamo.Identity()
	tr.Position = mgl64.Vec3{pos[0], pos[1], pos[2]}
	switch {
	case el.SelectAttr("quat") != nil:
		q, err := attrFloats(el, "quat", 4)
		if err != nil {
			return tr, err
		}
		rot := mgl64.Quat{W: q[0], V: mgl64.Vec3{q[1], q[2], q[3]}}
		if rot.Len() == 0 {
			return tr, fmt.Errorf("zero quaternion")
		}
		tr.Rotation = rot.Normalize()
	case el.SelectAttr("axisangle") != nil:
		aa, err := attrFloats(el, "axisangle", 4)
		if err != nil {
			return tr, err
		}
		axis := mgl64.Vec3{aa[0], aa[1], aa[2]}
		if axis.Len() == 0 {
			return tr, fmt.Errorf("zero rotation axis")
		}
		tr.Rotation = mgl64.QuatRotate(aa[3], axis.Normalize())
	}
	return tr, nil
}

func attrFloats(el *etree.Element, name string, n int, dflt ...float64) ([]float64, error) {
	v, err := xmlser.ParseFloats(strings.TrimSpace(el.SelectAttrValue(name, "")), n, dflt...)
	if err != nil {
		return nil, fmt.Errorf("attribute %s: %w", name, err)
	}
	return v, nil
}

package planar

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/jakecoffman/cp"
	"github.com/san-kum/dynbridge/internal/dynamo"
	"github.com/san-kum/dynbridge/internal/solver"
)

const (
	// divergeLimit marks a body state as unstable.
	divergeLimit = 1e8
	// warnSpeed triggers a one-shot warning per body.
	warnSpeed = 1e3
)

type bodyKind int

const (
	bodyWorld bodyKind = iota
	bodyStatic
	bodyDynamic
	bodyKinematic
)

type body struct {
	name   string
	kind   bodyKind
	cp     *cp.Body
	parent int
	// q0 is the frame rotation when the cp angle is zero.
	q0 mgl64.Quat
	// com is the center of mass in the body frame; the cp body origin sits there.
	com mgl64.Vec3
	// y is the preserved out-of-plane coordinate of the center of mass.
	y       float64
	mass    float64
	inertia float64

	target   *target
	prevV    cp.Vector
	prevW    float64
	accel    cp.Vector
	angAccel float64
	warned   bool
}

type target struct {
	pos   cp.Vector
	angle float64
}

type joint struct {
	name    string
	typ     string
	body    int
	parent  int
	sign    float64
	locked  bool
	ref     float64
	damping float64
	anchorP cp.Vector
	anchorB cp.Vector
	dir     cp.Vector
}

type actuator struct {
	joint   int
	gear    float64
	limited bool
	lo, hi  float64
	ctrl    float64
}

type sensor struct {
	torque bool
	site   int
}

type site struct {
	body  int
	local cp.Vector
}

type model struct {
	*solver.Index

	space    *cp.Space
	timestep float64
	time     float64
	gravity  cp.Vector

	bodies    []*body
	joints    []*joint
	actuators []*actuator
	sensors   []sensor
	sites     []site
	geomBody  []int

	contacts []solver.Contact
	filter   solver.ContactFilter
	control  solver.ControlFunc
	onError  solver.MessageFunc
	onWarn   solver.MessageFunc
}

type snapshot struct {
	time    float64
	bodies  []bodyState
	ctrl    []float64
	targets []*target
}

type bodyState struct {
	p cp.Vector
	a float64
	v cp.Vector
	w float64
}

var axisY = mgl64.Vec3{0, 1, 0}

func (m *model) Timestep() float64 { return m.timestep }
func (m *model) Time() float64     { return m.time }

func (m *model) SetContactFilter(f solver.ContactFilter) { m.filter = f }
func (m *model) SetControlFunc(f solver.ControlFunc)     { m.control = f }
func (m *model) SetErrorFunc(f solver.MessageFunc)       { m.onError = f }
func (m *model) SetWarningFunc(f solver.MessageFunc)     { m.onWarn = f }

func (m *model) fail(format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	if m.onError != nil {
		m.onError(msg)
	}
	return fmt.Errorf("planar: %s: %w", msg, dynamo.ErrUnstable)
}

func (m *model) warn(format string, args ...any) {
	if m.onWarn != nil {
		m.onWarn(fmt.Sprintf(format, args...))
	}
}

func (m *model) Step() (err error) {
	m.contacts = m.contacts[:0]
	if m.control != nil {
		m.control(m)
	}
	m.applyControls()

	dt := m.timestep
	for _, b := range m.bodies {
		switch b.kind {
		case bodyDynamic:
			b.prevV, b.prevW = b.cp.Velocity(), b.cp.AngularVelocity()
		case bodyKinematic:
			if b.target != nil {
				b.cp.SetVelocityVector(b.target.pos.Sub(b.cp.Position()).Mult(1 / dt))
				b.cp.SetAngularVelocity((b.target.angle - b.cp.Angle()) / dt)
			}
		}
	}

	defer func() {
		if r := recover(); r != nil {
			err = m.fail("step at t=%g: %v", m.time, r)
		}
	}()
	m.space.Step(dt)
	m.time += dt

	for _, b := range m.bodies {
		switch b.kind {
		case bodyKinematic:
			if b.target != nil {
				b.cp.SetAngle(b.target.angle)
				b.cp.SetPosition(b.target.pos)
			}
		case bodyDynamic:
			p, v, w := b.cp.Position(), b.cp.Velocity(), b.cp.AngularVelocity()
			if !finite(p.X, p.Y, v.X, v.Y, w, b.cp.Angle()) || v.Length() > divergeLimit || math.Abs(w) > divergeLimit {
				return m.fail("body %q: state diverged at t=%g", b.name, m.time)
			}
			b.accel = v.Sub(b.prevV).Mult(1 / dt)
			b.angAccel = (w - b.prevW) / dt
			speed := v.Length()
			if speed > warnSpeed && !b.warned {
				b.warned = true
				m.warn("body %q: speed %.3g exceeds %.3g", b.name, speed, warnSpeed)
			} else if speed <= warnSpeed {
				b.warned = false
			}
		}
	}
	return nil
}

func finite(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func (m *model) applyControls() {
	for _, a := range m.actuators {
		j := m.joints[a.joint]
		u := a.ctrl
		if a.limited {
			u = math.Max(a.lo, math.Min(a.hi, u))
		}
		_, vel := m.JointState(a.joint)
		m.applyJointForce(j, u*a.gear-j.damping*vel)
	}
	for i, j := range m.joints {
		if j.damping > 0 && !m.actuated(i) {
			_, vel := m.JointState(i)
			m.applyJointForce(j, -j.damping*vel)
		}
	}
}

func (m *model) actuated(joint int) bool {
	for _, a := range m.actuators {
		if a.joint == joint {
			return true
		}
	}
	return false
}

// applyJointForce applies a generalized force along a joint coordinate.
func (m *model) applyJointForce(j *joint, f float64) {
	if j.locked || f == 0 {
		return
	}
	b, p := m.bodies[j.body], m.bodies[j.parent]
	switch j.typ {
	case "hinge":
		tau := -j.sign * f
		b.cp.SetTorque(b.cp.Torque() + tau)
		if p.kind == bodyDynamic {
			p.cp.SetTorque(p.cp.Torque() - tau)
		}
	case "slide":
		at := b.cp.LocalToWorld(j.anchorB)
		force := j.dir.Rotate(p.cp.Rotation()).Mult(f)
		b.cp.ApplyForceAtWorldPoint(force, at)
		if p.kind == bodyDynamic {
			p.cp.ApplyForceAtWorldPoint(force.Neg(), at)
		}
	}
}

func (m *model) BodyPose(id int) dynamo.Transform {
	if id <= 0 || id >= len(m.bodies) {
		return dynamo.Identity()
	}
	b := m.bodies[id]
	rot := mgl64.QuatRotate(-b.cp.Angle(), axisY).Mul(b.q0).Normalize()
	p := b.cp.Position()
	com := mgl64.Vec3{p.X, b.y, p.Y}
	return dynamo.Transform{Position: com.Sub(rot.Rotate(b.com)), Rotation: rot}
}

func (m *model) BodyVelocity(id int) dynamo.Velocity {
	if id <= 0 || id >= len(m.bodies) {
		return dynamo.Velocity{}
	}
	b := m.bodies[id]
	v := b.cp.Velocity()
	omega := mgl64.Vec3{0, -b.cp.AngularVelocity(), 0}
	rot := mgl64.QuatRotate(-b.cp.Angle(), axisY).Mul(b.q0)
	r := rot.Rotate(b.com).Mul(-1)
	return dynamo.Velocity{
		Linear:  mgl64.Vec3{v.X, 0, v.Y}.Add(omega.Cross(r)),
		Angular: omega,
	}
}

// planarAngle returns the cp angle that realizes rotation rot for a body
// whose zero-angle rotation is q0. Components out of the plane are dropped.
func planarAngle(rot, q0 mgl64.Quat) float64 {
	rel := rot.Mul(q0.Inverse()).Normalize()
	return -dynamo.WrapAngle(2 * math.Atan2(rel.V[1], rel.W))
}

func (m *model) SetBodyState(id int, tr dynamo.Transform, v dynamo.Velocity) {
	if id <= 0 || id >= len(m.bodies) {
		return
	}
	b := m.bodies[id]
	angle := planarAngle(tr.Rotation, b.q0)
	// keep the angle continuous with the current one
	angle = b.cp.Angle() + dynamo.WrapDifference(angle, b.cp.Angle())
	com := tr.Apply(b.com)
	pos := project(com)
	switch b.kind {
	case bodyKinematic:
		b.target = &target{pos: pos, angle: angle}
	case bodyDynamic:
		b.cp.SetAngle(angle)
		b.cp.SetPosition(pos)
		lin := v.Linear.Add(v.Angular.Cross(com.Sub(tr.Position)))
		b.cp.SetVelocity(lin[0], lin[2])
		b.cp.SetAngularVelocity(-v.Angular[1])
	}
}

func (m *model) JointBody(id int) int {
	if id < 0 || id >= len(m.joints) {
		return -1
	}
	return m.joints[id].body
}

func (m *model) JointState(id int) (pos, vel float64) {
	if id < 0 || id >= len(m.joints) {
		return 0, 0
	}
	j := m.joints[id]
	if j.locked || j.typ == "free" {
		return j.ref, 0
	}
	b, p := m.bodies[j.body].cp, m.bodies[j.parent].cp
	switch j.typ {
	case "slide":
		a := p.LocalToWorld(j.anchorP)
		at := b.LocalToWorld(j.anchorB)
		d := j.dir.Rotate(p.Rotation())
		rel := b.VelocityAtWorldPoint(at).Sub(p.VelocityAtWorldPoint(at))
		return j.ref + at.Sub(a).Dot(d), rel.Dot(d)
	default:
		delta := b.Angle() - p.Angle()
		return j.ref - j.sign*delta, -j.sign * (b.AngularVelocity() - p.AngularVelocity())
	}
}

func (m *model) JointInertia(id int) float64 {
	if id < 0 || id >= len(m.joints) {
		return 0
	}
	j := m.joints[id]
	b := m.bodies[j.body]
	switch {
	case j.locked:
		return 1
	case j.typ == "slide":
		return b.mass
	default:
		anchor := m.bodies[j.parent].cp.LocalToWorld(j.anchorP)
		r := b.cp.Position().Sub(anchor)
		return b.inertia + b.mass*r.LengthSq()
	}
}

func (m *model) JointBias(id int) float64 {
	if id < 0 || id >= len(m.joints) {
		return 0
	}
	j := m.joints[id]
	if j.locked || j.typ == "free" {
		return 0
	}
	b, p := m.bodies[j.body], m.bodies[j.parent]
	weight := m.gravity.Mult(b.mass)
	_, vel := m.JointState(id)
	switch j.typ {
	case "slide":
		return -weight.Dot(j.dir.Rotate(p.cp.Rotation())) + j.damping*vel
	default:
		anchor := p.cp.LocalToWorld(j.anchorP)
		r := b.cp.Position().Sub(anchor)
		return j.sign*r.Cross(weight) + j.damping*vel
	}
}

func (m *model) SetControl(id int, u float64) {
	if id >= 0 && id < len(m.actuators) {
		m.actuators[id].ctrl = u
	}
}

func (m *model) Control(id int) float64 {
	if id < 0 || id >= len(m.actuators) {
		return 0
	}
	return m.actuators[id].ctrl
}

// SensorData estimates force and torque sensors from the acceleration of the
// site's body during the last step, expressed in world coordinates.
func (m *model) SensorData(id int) mgl64.Vec3 {
	if id < 0 || id >= len(m.sensors) {
		return mgl64.Vec3{}
	}
	s := m.sensors[id]
	b := m.bodies[m.sites[s.site].body]
	if b.kind != bodyDynamic {
		return mgl64.Vec3{}
	}
	if s.torque {
		return mgl64.Vec3{0, -b.inertia * b.angAccel, 0}
	}
	f := b.accel.Sub(m.gravity).Mult(b.mass)
	return mgl64.Vec3{f.X, 0, f.Y}
}

func (m *model) Contacts() []solver.Contact {
	return append([]solver.Contact(nil), m.contacts...)
}

func (m *model) preSolve(arb *cp.Arbiter, _ *cp.Space, _ interface{}) bool {
	if m.filter == nil {
		return true
	}
	a, b := arb.Shapes()
	g1, ok1 := a.UserData.(int)
	g2, ok2 := b.UserData.(int)
	if !ok1 || !ok2 {
		return true
	}
	return m.filter(g1, g2)
}

func (m *model) postSolve(arb *cp.Arbiter, _ *cp.Space, _ interface{}) {
	a, b := arb.Shapes()
	g1, _ := a.UserData.(int)
	g2, _ := b.UserData.(int)
	set := arb.ContactPointSet()
	if set.Count == 0 {
		return
	}
	y := (m.bodies[m.geomBody[g1]].y + m.bodies[m.geomBody[g2]].y) / 2
	force := arb.TotalImpulse().Length() / m.timestep / float64(set.Count)
	for i := 0; i < set.Count; i++ {
		pt := set.Points[i]
		mid := pt.PointA.Lerp(pt.PointB, 0.5)
		m.contacts = append(m.contacts, solver.Contact{
			Geom1:    g1,
			Geom2:    g2,
			Position: mgl64.Vec3{mid.X, y, mid.Y},
			Normal:   mgl64.Vec3{set.Normal.X, 0, set.Normal.Y},
			Depth:    -pt.Distance,
			Force:    force,
		})
	}
}

func (m *model) Snapshot() solver.State {
	s := &snapshot{time: m.time}
	for _, b := range m.bodies {
		var st bodyState
		if b.kind != bodyWorld {
			st = bodyState{p: b.cp.Position(), a: b.cp.Angle(), v: b.cp.Velocity(), w: b.cp.AngularVelocity()}
		}
		s.bodies = append(s.bodies, st)
		var t *target
		if b.target != nil {
			tc := *b.target
			t = &tc
		}
		s.targets = append(s.targets, t)
	}
	for _, a := range m.actuators {
		s.ctrl = append(s.ctrl, a.ctrl)
	}
	return s
}

func (m *model) Restore(state solver.State) {
	s, ok := state.(*snapshot)
	if !ok || len(s.bodies) != len(m.bodies) {
		return
	}
	m.time = s.time
	for i, b := range m.bodies {
		if b.kind == bodyDynamic || b.kind == bodyKinematic {
			st := s.bodies[i]
			b.cp.SetAngle(st.a)
			b.cp.SetPosition(st.p)
			b.cp.SetVelocityVector(st.v)
			b.cp.SetAngularVelocity(st.w)
		}
		b.target = s.targets[i]
	}
	for i, u := range s.ctrl {
		m.actuators[i].ctrl = u
	}
}

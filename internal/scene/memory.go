package scene

import (
	"fmt"
	"sort"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/san-kum/dynbridge/internal/dynamo"
)

type object struct {
	handle   Handle
	name     string
	typ      ObjectType
	parent   Handle
	children []Handle
	pose     dynamo.Transform
	vel      dynamo.Velocity

	shape *ShapeProps
	joint *JointProps
	dummy *DummyProps

	jointVel, jointForce float64
	sensorForce          mgl64.Vec3
	sensorTorque         mgl64.Vec3
}

// Memory is an in-memory Graph. Host-side edits (Add, Remove, Reparent, Move,
// the Set*Target methods) bump the matching counters; the Graph write methods
// used by the bridge to publish solver state do not.
type Memory struct {
	objects   map[Handle]*object
	roots     []Handle
	next      Handle
	particles []Particle
	counters  Counters
}

func NewMemory() *Memory {
	return &Memory{objects: make(map[Handle]*object), next: NoHandle + 1}
}

// ObjectSpec describes an object to add.
type ObjectSpec struct {
	Name   string
	Type   ObjectType
	Parent Handle
	Pose   dynamo.Transform
	Shape  *ShapeProps
	Joint  *JointProps
	Dummy  *DummyProps
}

func (m *Memory) Add(spec ObjectSpec) (Handle, error) {
	if spec.Parent != NoHandle {
		if _, ok := m.objects[spec.Parent]; !ok {
			return NoHandle, fmt.Errorf("add %q: parent %d: %w", spec.Name, spec.Parent, dynamo.ErrUnknownObject)
		}
	}
	h := m.next
	m.next++
	pose := spec.Pose
	if pose.Rotation.Len() == 0 {
		pose.Rotation = mgl64.QuatIdent()
	}
	obj := &object{
		handle: h,
		name:   spec.Name,
		typ:    spec.Type,
		parent: spec.Parent,
		pose:   pose,
		shape:  spec.Shape,
		joint:  spec.Joint,
		dummy:  spec.Dummy,
	}
	if obj.joint != nil {
		obj.jointForce = obj.joint.Force
	}
	m.objects[h] = obj
	if spec.Parent == NoHandle {
		m.roots = append(m.roots, h)
	} else {
		p := m.objects[spec.Parent]
		p.children = append(p.children, h)
	}
	m.counters.Creation++
	return h, nil
}

// Remove deletes h and its whole subtree.
func (m *Memory) Remove(h Handle) error {
	obj, ok := m.objects[h]
	if !ok {
		return fmt.Errorf("remove %d: %w", h, dynamo.ErrUnknownObject)
	}
	m.detach(obj)
	stack := []Handle{h}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if o, ok := m.objects[cur]; ok {
			stack = append(stack, o.children...)
			delete(m.objects, cur)
		}
	}
	m.counters.Destruction++
	return nil
}

// Reparent moves h under parent (NoHandle for a root) keeping its world pose.
func (m *Memory) Reparent(h, parent Handle) error {
	obj, ok := m.objects[h]
	if !ok {
		return fmt.Errorf("reparent %d: %w", h, dynamo.ErrUnknownObject)
	}
	if parent != NoHandle {
		if _, ok := m.objects[parent]; !ok {
			return fmt.Errorf("reparent %d: parent %d: %w", h, parent, dynamo.ErrUnknownObject)
		}
		for p := parent; p != NoHandle; p = m.objects[p].parent {
			if p == h {
				return fmt.Errorf("reparent %d under its own descendant %d", h, parent)
			}
		}
	}
	m.detach(obj)
	obj.parent = parent
	if parent == NoHandle {
		m.roots = append(m.roots, h)
	} else {
		m.objects[parent].children = append(m.objects[parent].children, h)
	}
	m.counters.Hierarchy++
	return nil
}

func (m *Memory) detach(obj *object) {
	if obj.parent == NoHandle {
		m.roots = removeHandle(m.roots, obj.handle)
		return
	}
	if p, ok := m.objects[obj.parent]; ok {
		p.children = removeHandle(p.children, obj.handle)
	}
}

func removeHandle(hs []Handle, h Handle) []Handle {
	out := hs[:0]
	for _, x := range hs {
		if x != h {
			out = append(out, x)
		}
	}
	return out
}

// Move is a host edit of an object's world pose; descendants follow rigidly.
func (m *Memory) Move(h Handle, tr dynamo.Transform) {
	if _, ok := m.objects[h]; !ok {
		return
	}
	m.setPose(h, tr)
	m.counters.Modification++
}

// Push is a host edit of an object's velocity.
func (m *Memory) Push(h Handle, v dynamo.Velocity) {
	if obj, ok := m.objects[h]; ok {
		obj.vel = v
		m.counters.Modification++
	}
}

func (m *Memory) SetJointTargetVelocity(h Handle, v float64) {
	if obj, ok := m.objects[h]; ok && obj.joint != nil {
		obj.joint.TargetVelocity = v
		m.counters.Modification++
	}
}

func (m *Memory) SetJointTargetPosition(h Handle, p float64) {
	if obj, ok := m.objects[h]; ok && obj.joint != nil {
		obj.joint.TargetPosition = p
		m.counters.Modification++
	}
}

func (m *Memory) SetJointForce(h Handle, f float64) {
	if obj, ok := m.objects[h]; ok && obj.joint != nil {
		obj.joint.Force = f
		m.counters.Modification++
	}
}

// SetJointGains sets the position controller gains of a joint.
func (m *Memory) SetJointGains(h Handle, kp, ki, kd float64) {
	if obj, ok := m.objects[h]; ok && obj.joint != nil {
		obj.joint.Kp, obj.joint.Ki, obj.joint.Kd = kp, ki, kd
		m.counters.Modification++
	}
}

// AddParticles appends particles; the caller notifies the bridge separately.
func (m *Memory) AddParticles(ps ...Particle) {
	for _, p := range ps {
		p.ID = len(m.particles)
		m.particles = append(m.particles, p)
	}
}

// ResetDynamics records an external simulation reset.
func (m *Memory) ResetDynamics() {
	for _, obj := range m.objects {
		obj.vel = dynamo.Velocity{}
	}
	m.counters.Resets++
}

// Lookup finds an object by name.
func (m *Memory) Lookup(name string) (Handle, bool) {
	hs := make([]Handle, 0, len(m.objects))
	for h := range m.objects {
		hs = append(hs, h)
	}
	sort.Slice(hs, func(i, j int) bool { return hs[i] < hs[j] })
	for _, h := range hs {
		if m.objects[h].name == name {
			return h, true
		}
	}
	return NoHandle, false
}

// Handles returns every object handle in ascending order.
func (m *Memory) Handles() []Handle {
	hs := make([]Handle, 0, len(m.objects))
	for h := range m.objects {
		hs = append(hs, h)
	}
	sort.Slice(hs, func(i, j int) bool { return hs[i] < hs[j] })
	return hs
}

func (m *Memory) JointState(h Handle) (pos, vel, force float64) {
	if obj, ok := m.objects[h]; ok && obj.joint != nil {
		return obj.joint.Position, obj.jointVel, obj.jointForce
	}
	return 0, 0, 0
}

func (m *Memory) ForceSensorReading(h Handle) (force, torque mgl64.Vec3) {
	if obj, ok := m.objects[h]; ok {
		return obj.sensorForce, obj.sensorTorque
	}
	return mgl64.Vec3{}, mgl64.Vec3{}
}

func (m *Memory) setPose(h Handle, tr dynamo.Transform) {
	obj := m.objects[h]
	delta := tr.Mul(obj.pose.Inverse())
	obj.pose = tr
	stack := append([]Handle(nil), obj.children...)
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		c := m.objects[cur]
		c.pose = delta.Mul(c.pose)
		stack = append(stack, c.children...)
	}
}

func (m *Memory) Roots() []Handle {
	return append([]Handle(nil), m.roots...)
}

func (m *Memory) Children(h Handle) []Handle {
	if obj, ok := m.objects[h]; ok {
		return append([]Handle(nil), obj.children...)
	}
	return nil
}

func (m *Memory) Parent(h Handle) Handle {
	if obj, ok := m.objects[h]; ok {
		return obj.parent
	}
	return NoHandle
}

func (m *Memory) Type(h Handle) (ObjectType, bool) {
	if obj, ok := m.objects[h]; ok {
		return obj.typ, true
	}
	return TypeOther, false
}

func (m *Memory) Name(h Handle) string {
	if obj, ok := m.objects[h]; ok {
		return obj.name
	}
	return ""
}

func (m *Memory) WorldPose(h Handle) dynamo.Transform {
	if obj, ok := m.objects[h]; ok {
		return obj.pose
	}
	return dynamo.Identity()
}

func (m *Memory) SetWorldPose(h Handle, tr dynamo.Transform) {
	if _, ok := m.objects[h]; ok {
		m.setPose(h, tr)
	}
}

func (m *Memory) Velocity(h Handle) dynamo.Velocity {
	if obj, ok := m.objects[h]; ok {
		return obj.vel
	}
	return dynamo.Velocity{}
}

func (m *Memory) SetVelocity(h Handle, v dynamo.Velocity) {
	if obj, ok := m.objects[h]; ok {
		obj.vel = v
	}
}

func (m *Memory) Shape(h Handle) (ShapeProps, bool) {
	if obj, ok := m.objects[h]; ok && obj.shape != nil {
		return *obj.shape, true
	}
	return ShapeProps{}, false
}

func (m *Memory) Joint(h Handle) (JointProps, bool) {
	if obj, ok := m.objects[h]; ok && obj.joint != nil {
		return *obj.joint, true
	}
	return JointProps{}, false
}

func (m *Memory) SetJointState(h Handle, pos, vel, force float64) {
	if obj, ok := m.objects[h]; ok && obj.joint != nil {
		obj.joint.Position = pos
		obj.jointVel = vel
		obj.jointForce = force
	}
}

func (m *Memory) Dummy(h Handle) (DummyProps, bool) {
	if obj, ok := m.objects[h]; ok && obj.dummy != nil {
		return *obj.dummy, true
	}
	return DummyProps{}, false
}

func (m *Memory) SetForceSensorReading(h Handle, force, torque mgl64.Vec3) {
	if obj, ok := m.objects[h]; ok {
		obj.sensorForce = force
		obj.sensorTorque = torque
	}
}

func (m *Memory) Particles() []Particle {
	return append([]Particle(nil), m.particles...)
}

func (m *Memory) SetParticleState(id int, pos, vel mgl64.Vec3) {
	if id >= 0 && id < len(m.particles) {
		m.particles[id].Position = pos
		m.particles[id].Velocity = vel
	}
}

func (m *Memory) Counters() Counters {
	return m.counters
}

package bridge

import (
	"github.com/go-gl/mathgl/mgl64"
	"github.com/san-kum/dynbridge/internal/config"
	"github.com/san-kum/dynbridge/internal/dynamo"
	"github.com/san-kum/dynbridge/internal/registry"
	"github.com/san-kum/dynbridge/internal/scene"
)

// moveTolerance separates scene edits from round-off in published poses.
const moveTolerance = 1e-9

type BodyState struct {
	Handle   scene.Handle
	Name     string
	Item     registry.Item
	Mode     registry.Mode
	// Mass is zero for particles and composite elements.
	Mass     float64
	Pose     dynamo.Transform
	Velocity dynamo.Velocity
}

type JointReport struct {
	Handle   scene.Handle
	Position float64
	Velocity float64
	Force    float64
}

// ContactReport is a contact between two objects. Particles report
// registry.ParticleHandle and composites their composite handle; geoms the
// bridge did not generate report scene.NoHandle.
type ContactReport struct {
	Object1, Object2 scene.Handle
	Position         mgl64.Vec3
	Normal           mgl64.Vec3
	Depth            float64
	Force            float64
}

// PassReport is the world state after one solver pass.
type PassReport struct {
	Time     float64
	Pass     int
	Total    int
	Bodies   []BodyState
	Joints   []JointReport
	Contacts []ContactReport
}

type PassObserver interface {
	ObservePass(r *PassReport)
}

type ObserverFunc func(r *PassReport)

func (f ObserverFunc) ObservePass(r *PassReport) { f(r) }

type sample struct {
	pose dynamo.Transform
	vel  dynamo.Velocity
}

// tick accumulates the passes of one HandleDynamics call.
type tick struct {
	passes    int
	kinematic map[*registry.Shape]sample
	samples   map[*registry.Shape][]sample
	last      *PassReport
}

func newTick(passes int) *tick {
	return &tick{
		passes:    passes,
		kinematic: make(map[*registry.Shape]sample),
		samples:   make(map[*registry.Shape][]sample),
	}
}

// reportWorld samples the state of every moving item after a pass and hands
// the report to the observers.
func (c *Container) reportWorld(simulationTime float64, pass, total int) {
	r := &PassReport{
		Time:  simulationTime + float64(pass+1)*c.model.Timestep(),
		Pass:  pass,
		Total: total,
	}
	record := func(s *registry.Shape, st sample) {
		c.tick.samples[s] = append(c.tick.samples[s], st)
		r.Bodies = append(r.Bodies, BodyState{
			Handle:   s.Handle,
			Name:     s.Name,
			Item:     s.Item,
			Mode:     s.Mode,
			Mass:     s.Mass,
			Pose:     st.pose,
			Velocity: st.vel,
		})
	}
	for _, s := range c.reg.Shapes {
		if st, ok := c.shapeState(s); ok {
			record(s, st)
		}
	}
	for _, s := range c.reg.Particles {
		record(s, c.bodyState(s.Body))
	}
	for _, bodies := range c.reg.Composites {
		for _, s := range bodies {
			record(s, c.bodyState(s.Body))
		}
	}
	for _, fs := range c.reg.ForceSensors {
		fs.Force = fs.Force.Add(c.model.SensorData(fs.ForceID))
		fs.Torque = fs.Torque.Add(c.model.SensorData(fs.TorqueID))
		fs.Samples++
	}
	for _, j := range c.reg.Joints {
		pos, vel := c.model.JointState(j.SolverID)
		r.Joints = append(r.Joints, JointReport{Handle: j.Handle, Position: pos, Velocity: vel, Force: j.Command})
	}
	r.Contacts = contactReports(c.model, c.reg)
	c.tick.last = r
	for _, o := range c.observers {
		o.ObservePass(r)
	}
}

func (c *Container) bodyState(body int) sample {
	return sample{pose: c.model.BodyPose(body), vel: c.model.BodyVelocity(body)}
}

// shapeState resolves the pose of a shape this pass. Kinematic shapes use
// the interpolated pose, attached shapes follow their owner, static shapes
// report nothing.
func (c *Container) shapeState(s *registry.Shape) (sample, bool) {
	switch s.Mode {
	case registry.ModeFree:
		return c.bodyState(s.Body), true
	case registry.ModeKinematic:
		st, ok := c.tick.kinematic[s]
		return st, ok
	case registry.ModeAttached:
		owner, ok := c.reg.Shape(s.Parent)
		if !ok || owner.Mode == registry.ModeStatic || owner.Mode == registry.ModeAttached {
			return sample{}, false
		}
		base, ok := c.shapeState(owner)
		if !ok {
			return sample{}, false
		}
		pose := base.pose.Mul(s.Offset)
		arm := pose.Position.Sub(base.pose.Position)
		vel := dynamo.Velocity{
			Linear:  base.vel.Linear.Add(base.vel.Angular.Cross(arm)),
			Angular: base.vel.Angular,
		}
		return sample{pose: pose, vel: vel}, true
	}
	return sample{}, false
}

// smooth combines the per-pass velocities of one tick. "linear" weights pass
// i by i+1: v = Σ(i+1)v_i / Σ(i+1).
func smooth(samples []sample, policy string) dynamo.Velocity {
	if len(samples) == 0 {
		return dynamo.Velocity{}
	}
	if policy != config.SmoothingLinear {
		return samples[len(samples)-1].vel
	}
	var sum dynamo.Velocity
	var weight float64
	for i, s := range samples {
		w := float64(i + 1)
		sum = sum.Add(s.vel.Scale(w))
		weight += w
	}
	return sum.Scale(1 / weight)
}

// publish writes the tick's final state to the scene. Shapes go in build
// order so parents are placed before their children.
func (c *Container) publish() {
	for _, s := range c.reg.Shapes {
		samples := c.tick.samples[s]
		if len(samples) == 0 {
			continue
		}
		v := smooth(samples, c.cfg.Smoothing)
		c.graph.SetWorldPose(s.Handle, samples[len(samples)-1].pose)
		c.graph.SetVelocity(s.Handle, v)
		c.published[s.Handle] = v
	}
	for _, s := range c.reg.Particles {
		samples := c.tick.samples[s]
		if len(samples) == 0 {
			continue
		}
		v := smooth(samples, c.cfg.Smoothing)
		c.graph.SetParticleState(s.Index, samples[len(samples)-1].pose.Position, v.Linear)
	}
	for _, fs := range c.reg.ForceSensors {
		if fs.Samples == 0 {
			continue
		}
		n := float64(fs.Samples)
		c.graph.SetForceSensorReading(fs.Handle, fs.Force.Mul(1/n), fs.Torque.Mul(1/n))
		fs.Force, fs.Torque, fs.Samples = mgl64.Vec3{}, mgl64.Vec3{}, 0
	}
	if c.tick.last != nil {
		for _, j := range c.tick.last.Joints {
			c.graph.SetJointState(j.Handle, j.Position, j.Velocity, j.Force)
		}
	}
}

// updateWorldFromScene pulls scene edits into the model before the first
// pass: kinematic goals and joint setpoints always, free body teleports on a
// soft change. Moving a static or attached shape needs a rebuild.
func (c *Container) updateWorldFromScene(soft bool) {
	for _, s := range c.reg.Shapes {
		switch s.Mode {
		case registry.ModeKinematic:
			s.Start = s.Goal
			s.Goal = c.graph.WorldPose(s.Handle)
		case registry.ModeFree:
			if _, top := s.Secondary.(registry.SecondaryFreeJoint); !soft || !top {
				continue
			}
			pose := c.graph.WorldPose(s.Handle)
			vel := c.graph.Velocity(s.Handle)
			if pose.ApproxEqual(c.model.BodyPose(s.Body), moveTolerance) && vel == c.published[s.Handle] {
				continue
			}
			c.model.SetBodyState(s.Body, pose, vel)
			c.log.Debug("scene edit applied", "object", s.Name)
		case registry.ModeStatic:
			if _, plain := s.Secondary.(registry.SecondaryNone); !soft || !plain || s.Parent != scene.NoHandle {
				continue
			}
			if !c.graph.WorldPose(s.Handle).ApproxEqual(s.Start, moveTolerance) {
				c.log.Debug("static shape moved", "object", s.Name)
				c.rebuild = true
			}
		case registry.ModeAttached:
			if !soft {
				continue
			}
			rel := c.graph.WorldPose(s.Handle).RelativeTo(c.graph.WorldPose(s.Parent))
			if !rel.ApproxEqual(s.Offset, 1e-6) {
				c.log.Debug("attached shape moved", "object", s.Name)
				c.rebuild = true
			}
		}
	}
	for _, j := range c.reg.Joints {
		props, ok := c.graph.Joint(j.Handle)
		if !ok {
			continue
		}
		j.TargetVelocity = props.TargetVelocity
		j.TargetPosition = props.TargetPosition
		j.ForceToApply = props.Force
		if j.PID != nil {
			j.PID.SetParam("Target", props.TargetPosition)
			if props.Kp != 0 || props.Ki != 0 || props.Kd != 0 {
				retune(j.PID, props.Kp, props.Ki, props.Kd)
			}
		}
	}
}

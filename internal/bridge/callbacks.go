package bridge

import (
	"fmt"

	"github.com/san-kum/dynbridge/internal/control"
	"github.com/san-kum/dynbridge/internal/dynamo"
	"github.com/san-kum/dynbridge/internal/registry"
	"github.com/san-kum/dynbridge/internal/scene"
	"github.com/san-kum/dynbridge/internal/solver"
)

// install binds the solver callbacks to reg. A later build installs fresh
// closures on its own model, so stale callbacks never see a new registry.
func (c *Container) install(m solver.Model, reg *registry.Registry) {
	m.SetContactFilter(func(g1, g2 int) bool {
		return handleContact(reg, g1, g2)
	})
	m.SetControlFunc(func(m solver.Model) {
		c.handleControl(m, reg)
	})
	m.SetErrorFunc(func(msg string) {
		c.log.Error("solver error", "msg", msg)
		c.stepErr = fmt.Errorf("solver: %s: %w", msg, dynamo.ErrHalted)
	})
	m.SetWarningFunc(func(msg string) {
		c.log.Warn("solver warning", "msg", msg)
		c.warn(msg)
	})
}

// handleContact decides whether two solver geoms collide. Unknown geoms
// never do.
func handleContact(reg *registry.Registry, g1, g2 int) bool {
	a, ok := reg.GeomBySolverID(g1)
	if !ok {
		return false
	}
	b, ok := reg.GeomBySolverID(g2)
	if !ok {
		return false
	}
	return respond(a, b)
}

func respond(a, b *registry.Geom) bool {
	if a.Item == registry.ItemDummy || b.Item == registry.ItemDummy {
		return false
	}
	if b.Item == registry.ItemShape && a.Item != registry.ItemShape {
		a, b = b, a
	}
	m1, m2 := a.RespondableMask, b.RespondableMask
	switch {
	case a.Item == registry.ItemShape && b.Item == registry.ItemShape:
		return m1&m2&registry.MaskShapeShape != 0
	case a.Item == registry.ItemShape:
		return m2&registry.MaskShapes != 0 && m1 != 0
	case a.Item == registry.ItemParticle && b.Item == registry.ItemParticle:
		return m1&m2&registry.MaskParticles != 0
	case a.Item == registry.ItemComposite && b.Item == registry.ItemComposite && a.Prefix == b.Prefix:
		return m1&m2&registry.MaskSameComposite != 0
	default:
		return m1&m2&registry.MaskOtherComposite != 0
	}
}

// handleControl writes the actuator command of every actuated joint. It
// runs once per pass, before integration.
func (c *Container) handleControl(m solver.Model, reg *registry.Registry) {
	dt := m.Timestep()
	for _, j := range reg.Joints {
		if j.Mode == registry.ActFree || j.Actuator < 0 {
			continue
		}
		u := motorCommand(m, reg, j, dt)
		m.SetControl(j.Actuator, u)
		j.Command = u
	}
}

func motorCommand(m solver.Model, reg *registry.Registry, j *registry.Joint, dt float64) float64 {
	if j.Mode == registry.ActForce {
		return control.ForceTorque(j.ForceToApply, j.MaxForce)
	}
	pos, vel := m.JointState(j.SolverID)
	st := control.Joint{
		Position: pos,
		Velocity: vel,
		Inertia:  m.JointInertia(j.SolverID),
		Bias:     m.JointBias(j.SolverID),
		Angular:  j.Angular(),
	}
	target := j.TargetVelocity
	switch {
	case j.Dependency != scene.NoHandle:
		if master, ok := reg.Joint(j.Dependency); ok {
			mp, mv := m.JointState(master.SolverID)
			target = control.DependentTarget(st, mp, mv, j.Poly, dt)
		}
	case j.PID != nil:
		target = j.PID.Compute(pos, m.Time(), j.Angular())
	}
	lim := control.Limits{MaxForce: j.MaxForce, RateLimit: j.RateLimit}
	return control.Mixed(st, target, j.ForceToApply, lim, dt)
}

// contactReports maps the contacts of the last pass back to scene handles.
func contactReports(m solver.Model, reg *registry.Registry) []ContactReport {
	var out []ContactReport
	for _, ct := range m.Contacts() {
		a, ok1 := reg.GeomBySolverID(ct.Geom1)
		b, ok2 := reg.GeomBySolverID(ct.Geom2)
		if !ok1 && !ok2 {
			continue
		}
		r := ContactReport{
			Object1:  scene.NoHandle,
			Object2:  scene.NoHandle,
			Position: ct.Position,
			Normal:   ct.Normal,
			Depth:    ct.Depth,
			Force:    ct.Force,
		}
		if ok1 {
			r.Object1 = a.Handle
		}
		if ok2 {
			r.Object2 = b.Handle
		}
		out = append(out, r)
	}
	return out
}

package registry

import (
	"fmt"
	"sort"

	"github.com/san-kum/dynbridge/internal/scene"
	"github.com/san-kum/dynbridge/internal/solver"
)

// Registry is rebuilt wholesale on every hard change and is read-only while
// the solver steps.
type Registry struct {
	Shapes       []*Shape
	Particles    []*Shape
	Composites   [][]*Shape
	Geoms        []*Geom
	Joints       []*Joint
	Freejoints   []*Freejoint
	ForceSensors []*ForceSensor
	HeightFields []HeightField

	shapes    map[scene.Handle]*Shape
	joints    map[scene.Handle]*Joint
	geomIndex []int
}

func New() *Registry {
	return &Registry{
		shapes: make(map[scene.Handle]*Shape),
		joints: make(map[scene.Handle]*Joint),
	}
}

func (r *Registry) AddShape(s *Shape) {
	if s.Secondary == nil {
		s.Secondary = SecondaryNone{}
	}
	r.Shapes = append(r.Shapes, s)
	r.shapes[s.Handle] = s
}

func (r *Registry) AddParticle(s *Shape) {
	s.Item = ItemParticle
	s.Secondary = SecondaryFreeJoint{}
	r.Particles = append(r.Particles, s)
}

// AddComposite registers the bodies of one composite expansion in order.
func (r *Registry) AddComposite(bodies []*Shape) {
	for _, s := range bodies {
		s.Item = ItemComposite
		s.Secondary = SecondaryFreeJoint{}
	}
	r.Composites = append(r.Composites, bodies)
}

// AddGeom appends g and returns its position in Geoms.
func (r *Registry) AddGeom(g *Geom) int {
	g.SolverID = -1
	r.Geoms = append(r.Geoms, g)
	return len(r.Geoms) - 1
}

func (r *Registry) AddJoint(j *Joint) {
	r.Joints = append(r.Joints, j)
	r.joints[j.Handle] = j
}

func (r *Registry) AddFreejoint(f *Freejoint) {
	r.Freejoints = append(r.Freejoints, f)
}

func (r *Registry) AddForceSensor(f *ForceSensor) {
	r.ForceSensors = append(r.ForceSensors, f)
}

func (r *Registry) AddHeightField(h HeightField) {
	r.HeightFields = append(r.HeightFields, h)
}

func (r *Registry) Shape(h scene.Handle) (*Shape, bool) {
	s, ok := r.shapes[h]
	return s, ok
}

func (r *Registry) Joint(h scene.Handle) (*Joint, bool) {
	j, ok := r.joints[h]
	return j, ok
}

// Handles returns the shape handles in ascending order.
func (r *Registry) Handles() []scene.Handle {
	hs := make([]scene.Handle, 0, len(r.Shapes))
	for _, s := range r.Shapes {
		hs = append(hs, s.Handle)
	}
	sort.Slice(hs, func(i, j int) bool { return hs[i] < hs[j] })
	return hs
}

// Lookup resolves description names to solver indices.
type Lookup interface {
	Lookup(kind solver.Kind, name string) int
	Count(kind solver.Kind) int
}

// Resolve fills in every solver index from the compiled model and builds
// the geom reverse index. A missing name is an error.
func (r *Registry) Resolve(m Lookup) error {
	find := func(kind solver.Kind, name string) (int, error) {
		id := m.Lookup(kind, name)
		if id < 0 {
			return -1, fmt.Errorf("registry: %s %q missing from compiled model", kind, name)
		}
		return id, nil
	}
	var err error
	for _, s := range r.Shapes {
		if s.Mode == ModeAttached {
			continue
		}
		if s.Body, err = find(solver.KindBody, s.SolverName); err != nil {
			return err
		}
		switch s.Secondary.(type) {
		case SecondaryStatic:
			id, err := find(solver.KindBody, s.SolverName+"_static")
			if err != nil {
				return err
			}
			s.Secondary = SecondaryStatic{Body: id}
		case SecondaryFreeJoint:
			id, err := find(solver.KindJoint, s.SolverName+"_freejoint")
			if err != nil {
				return err
			}
			s.Secondary = SecondaryFreeJoint{Joint: id}
		}
	}
	for _, s := range r.Shapes {
		if s.Mode == ModeAttached {
			s.Body = r.ResolveBody(s.Handle)
		}
	}
	items := append([]*Shape(nil), r.Particles...)
	for _, c := range r.Composites {
		items = append(items, c...)
	}
	for _, s := range items {
		if s.Body, err = find(solver.KindBody, s.SolverName); err != nil {
			return err
		}
		id, err := find(solver.KindJoint, s.SolverName+"_freejoint")
		if err != nil {
			return err
		}
		s.Secondary = SecondaryFreeJoint{Joint: id}
	}
	for _, f := range r.Freejoints {
		if f.SolverID, err = find(solver.KindJoint, f.Name); err != nil {
			return err
		}
	}
	for _, j := range r.Joints {
		if j.SolverID, err = find(solver.KindJoint, j.SolverName); err != nil {
			return err
		}
		j.Actuator = m.Lookup(solver.KindActuator, j.SolverName+"_act")
		if j.Mode != ActFree && j.Actuator < 0 {
			return fmt.Errorf("registry: actuator of joint %q missing from compiled model", j.SolverName)
		}
	}
	for _, f := range r.ForceSensors {
		if f.ForceID, err = find(solver.KindSensor, f.SolverName+"_force"); err != nil {
			return err
		}
		if f.TorqueID, err = find(solver.KindSensor, f.SolverName+"_torque"); err != nil {
			return err
		}
	}
	for _, g := range r.Geoms {
		if g.SolverID, err = find(solver.KindGeom, g.Name); err != nil {
			return err
		}
	}
	r.indexGeoms(m.Count(solver.KindGeom))
	return nil
}

func (r *Registry) indexGeoms(n int) {
	r.geomIndex = make([]int, n)
	for i := range r.geomIndex {
		r.geomIndex[i] = -1
	}
	for i, g := range r.Geoms {
		if g.SolverID >= 0 && g.SolverID < n {
			r.geomIndex[g.SolverID] = i
		}
	}
}

// GeomBySolverID maps a solver geom index back to its record. Indices from
// a replaced model or injected geoms report false.
func (r *Registry) GeomBySolverID(id int) (*Geom, bool) {
	if id < 0 || id >= len(r.geomIndex) || r.geomIndex[id] < 0 {
		return nil, false
	}
	return r.Geoms[r.geomIndex[id]], true
}

// ResolveBody returns the solver body of a shape, following attached
// shapes up to the shape that owns a body.
func (r *Registry) ResolveBody(h scene.Handle) int {
	seen := make(map[scene.Handle]bool)
	for {
		s, ok := r.shapes[h]
		if !ok || seen[h] {
			return -1
		}
		if s.Mode != ModeAttached {
			return s.Body
		}
		seen[h] = true
		h = s.Parent
	}
}

// ShapeOfGeom returns the shape owning a geom record, if any.
func (r *Registry) ShapeOfGeom(g *Geom) (*Shape, bool) {
	if g.Handle < 0 {
		return nil, false
	}
	return r.Shape(g.Handle)
}

package bridge

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/san-kum/dynbridge/internal/dynamo"
	"github.com/san-kum/dynbridge/internal/registry"
	"github.com/san-kum/dynbridge/internal/scene"
	"github.com/san-kum/dynbridge/internal/xmlser"
)

const defaultSpacing = 0.05

// CompositeQuery selects what CompositeInfo returns per element.
type CompositeQuery int

const (
	// CompositePositions yields x y z.
	CompositePositions CompositeQuery = iota
	// CompositeQuaternions yields w x y z.
	CompositeQuaternions
	// CompositeVelocities yields the linear then the angular velocity.
	CompositeVelocities
)

func (q CompositeQuery) String() string {
	return [...]string{"positions", "quaternions", "velocities"}[q]
}

// CompositeInfo reads the state of every element of a composite, in
// generation order, together with the composite's grid counts.
func (c *Container) CompositeInfo(prefix string, what CompositeQuery) ([]float64, [3]int, error) {
	idx := c.ctx.CompositeIndexFromPrefix(prefix)
	if idx < 0 {
		return nil, [3]int{}, fmt.Errorf("composite %q: %w", prefix, dynamo.ErrUnknownComposite)
	}
	ci, _ := c.ctx.Composite(idx)
	if c.model == nil || len(ci.SolverIDs) == 0 {
		return nil, ci.Count, fmt.Errorf("composite %q: %w", prefix, dynamo.ErrNoModel)
	}
	var out []float64
	for _, body := range ci.SolverIDs {
		switch what {
		case CompositePositions:
			p := c.model.BodyPose(body).Position
			out = append(out, p[0], p[1], p[2])
		case CompositeQuaternions:
			q := c.model.BodyPose(body).Rotation
			out = append(out, q.W, q.V[0], q.V[1], q.V[2])
		case CompositeVelocities:
			v := c.model.BodyVelocity(body)
			out = append(out, v.Linear[0], v.Linear[1], v.Linear[2], v.Angular[0], v.Angular[1], v.Angular[2])
		default:
			return nil, ci.Count, fmt.Errorf("composite query %d: %w", what, dynamo.ErrInvalidParams)
		}
	}
	return out, ci.Count, nil
}

// addComposites expands every queued composite into free bodies on a grid.
func (c *Container) addComposites(info *buildInfo) error {
	for idx, ci := range c.ctx.composites {
		bodies, err := c.expandComposite(info, idx, ci)
		if err != nil {
			return fmt.Errorf("composite %q: %w", ci.Prefix, err)
		}
		info.reg.AddComposite(bodies)
	}
	return nil
}

func (c *Container) expandComposite(info *buildInfo, idx int, ci *CompositeInjection) ([]*registry.Shape, error) {
	switch ci.Element {
	case "", "worldbody", "body":
	default:
		return nil, fmt.Errorf("unsupported anchor %q", ci.Element)
	}
	if ci.Type != "grid" && ci.Type != "rope" {
		return nil, fmt.Errorf("unknown type %q", ci.Type)
	}
	els, err := xmlser.ParseFragment(ci.XML)
	if err != nil {
		return nil, err
	}
	if len(els) == 0 || els[0].Tag != "geom" {
		return nil, fmt.Errorf("template must start with a geom element")
	}
	tmpl := els[0]
	spacing, err := xmlser.ParseFloats(tmpl.SelectAttrValue("spacing", ""), 1, defaultSpacing)
	if err != nil {
		return nil, err
	}
	tmpl.RemoveAttr("spacing")
	if a := tmpl.SelectAttr("size"); a != nil {
		size, err := xmlser.ParseFloats(a.Value, 1)
		if err != nil {
			return nil, err
		}
		for i := range size {
			size[i] *= ci.Grow
		}
		tmpl.CreateAttr("size", xmlser.JoinFloats(size...))
	}
	if ci.RespondableMask == 0 {
		tmpl.CreateAttr("contype", "0")
		tmpl.CreateAttr("conaffinity", "0")
	}

	origin := dynamo.Identity()
	if ci.Shape != scene.NoHandle {
		if _, ok := c.graph.Type(ci.Shape); ok {
			origin = c.graph.WorldPose(ci.Shape)
		}
	}
	handle := registry.CompositeHandleBase - scene.Handle(idx)
	step := spacing[0]
	var bodies []*registry.Shape
	names := make(map[[3]int]string)
	for i := 0; i < ci.Count[0]; i++ {
		for j := 0; j < ci.Count[1]; j++ {
			for k := 0; k < ci.Count[2]; k++ {
				bname := fmt.Sprintf("%sB%d_%d_%d", ci.Prefix, i, j, k)
				gname := fmt.Sprintf("%sG%d_%d_%d", ci.Prefix, i, j, k)
				pose := dynamo.Transform{
					Position: origin.Apply(mgl64.Vec3{float64(i) * step, float64(j) * step, float64(k) * step}),
					Rotation: origin.Rotation,
				}
				geom := tmpl.Copy()
				geom.CreateAttr("name", gname)
				info.in(info.sections["worldbody"], func(d *xmlser.Document) {
					d.Open("body")
					d.Attr("name", bname)
					d.Attr("pos", pose.Position)
					d.Attr("quat", pose.Rotation)
					d.Leaf("freejoint", "name", bname+"_freejoint")
					d.Current().AddChild(geom)
					d.Close()
				})
				names[[3]int{i, j, k}] = bname
				if ci.Type == "rope" && i > 0 {
					prev := names[[3]int{i - 1, j, k}]
					info.in(info.sections["equality"], func(d *xmlser.Document) {
						d.Leaf("connect", "name", bname+"_link", "body1", prev, "body2", bname,
							"anchor", mgl64.Vec3{step / 2, 0, 0})
					})
				}
				gi := info.reg.AddGeom(&registry.Geom{
					Handle:          handle,
					Name:            gname,
					Prefix:          ci.Prefix,
					RespondableMask: ci.RespondableMask,
					Item:            registry.ItemComposite,
				})
				bodies = append(bodies, &registry.Shape{
					Handle:       handle,
					Name:         bname,
					SolverName:   bname,
					Parent:       scene.NoHandle,
					Mode:         registry.ModeFree,
					Start:        pose,
					Goal:         pose,
					ComTransform: dynamo.Identity(),
					Offset:       dynamo.Identity(),
					Index:        len(bodies),
					Geoms:        []int{gi},
				})
			}
		}
	}
	return bodies, nil
}

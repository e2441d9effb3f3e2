package tui

import (
	"github.com/san-kum/dynbridge/internal/scene"
)

type trailPoint struct {
	x, z  float64
	speed float64
}

const trailLen = 60

// frame is what one rendering of the scene needs: static geometry, tracked
// bodies and their trails.
type frame struct {
	graph  *scene.Memory
	bodies []scene.Handle
	trails map[scene.Handle][]trailPoint
	view   view
}

func newFrame(g *scene.Memory, bodies []scene.Handle) *frame {
	f := &frame{graph: g, bodies: bodies, trails: make(map[scene.Handle][]trailPoint)}
	for _, h := range g.Handles() {
		p := g.WorldPose(h).Position
		if props, ok := g.Shape(h); ok {
			if !props.Dynamic && !props.Kinematic {
				for _, geom := range props.Geoms {
					if geom.Primitive == scene.PrimBox {
						f.view.include(p.X()-geom.Size.X(), p.Z()+geom.Size.Z())
						f.view.include(p.X()+geom.Size.X(), p.Z()+geom.Size.Z())
					}
				}
			}
			f.view.include(p.X(), p.Z())
		}
	}
	return f
}

// record appends the current body positions to their trails.
func (f *frame) record() {
	for _, h := range f.bodies {
		p := f.graph.WorldPose(h).Position
		v := f.graph.Velocity(h).Linear
		f.view.include(p.X(), p.Z())
		tr := append(f.trails[h], trailPoint{x: p.X(), z: p.Z(), speed: v.Len()})
		if len(tr) > trailLen {
			tr = tr[1:]
		}
		f.trails[h] = tr
	}
}

func (f *frame) draw(c *canvas) {
	c.clear()
	for _, h := range f.graph.Handles() {
		props, ok := f.graph.Shape(h)
		if !ok || props.Dynamic || props.Kinematic {
			continue
		}
		p := f.graph.WorldPose(h).Position
		drawn := false
		for _, geom := range props.Geoms {
			if geom.Primitive != scene.PrimBox {
				continue
			}
			x1, y := f.view.project(p.X()-geom.Size.X(), p.Z()+geom.Size.Z(), c.w, c.h)
			x2, _ := f.view.project(p.X()+geom.Size.X(), p.Z()+geom.Size.Z(), c.w, c.h)
			c.line(x1, y, x2, y, '═')
			drawn = true
		}
		if !drawn {
			x, y := f.view.project(p.X(), p.Z(), c.w, c.h)
			c.set(x, y, '▪')
		}
	}

	maxSpeed := 0.0
	for _, tr := range f.trails {
		for _, pt := range tr {
			if pt.speed > maxSpeed {
				maxSpeed = pt.speed
			}
		}
	}
	for _, h := range f.bodies {
		for _, pt := range f.trails[h] {
			x, y := f.view.project(pt.x, pt.z, c.w, c.h)
			if c.get(x, y) == ' ' {
				c.set(x, y, trailChar(pt.speed, maxSpeed))
			}
		}
	}
	for _, h := range f.bodies {
		p := f.graph.WorldPose(h).Position
		x, y := f.view.project(p.X(), p.Z(), c.w, c.h)
		glyph := '⬤'
		if props, ok := f.graph.Shape(h); ok && props.Kinematic {
			glyph = '◆'
		}
		c.set(x, y, glyph)
	}
}

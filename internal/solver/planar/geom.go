package planar

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/jakecoffman/cp"
	"github.com/san-kum/dynbridge/internal/dynamo"
)

type outlineKind int

const (
	outlineCircle outlineKind = iota
	outlineSegment
	outlinePoly
	outlineChain
)

// outline is the footprint of a geom projected onto the XZ plane, in world
// coordinates at compile time.
type outline struct {
	kind   outlineKind
	points []cp.Vector
	radius float64
	volume float64
}

// heightfield is the decoded content of a .bin elevation file.
type heightfield struct {
	rows, cols int
	data       []float32
	size       [4]float64
}

// project maps a world point onto the solver plane.
func project(v mgl64.Vec3) cp.Vector {
	return cp.Vector{X: v[0], Y: v[2]}
}

func (o outline) centroid() cp.Vector {
	switch o.kind {
	case outlinePoly:
		if len(o.points) >= 3 {
			return cp.CentroidForPoly(len(o.points), o.points)
		}
	case outlineCircle:
		return o.points[0]
	}
	var c cp.Vector
	for _, p := range o.points {
		c = c.Add(p)
	}
	return c.Mult(1 / float64(len(o.points)))
}

// moment returns the moment of inertia of mass m about the outline's centroid.
func (o outline) moment(m float64) float64 {
	c := o.centroid()
	switch o.kind {
	case outlineCircle:
		return cp.MomentForCircle(m, 0, o.radius, cp.Vector{})
	case outlineSegment:
		return cp.MomentForSegment(m, o.points[0].Sub(c), o.points[1].Sub(c), o.radius)
	case outlinePoly:
		local := make([]cp.Vector, len(o.points))
		for i, p := range o.points {
			local[i] = p.Sub(c)
		}
		return cp.MomentForPoly(m, len(local), local, cp.Vector{}, 0)
	}
	return 0
}

// geomOutline builds the planar footprint of a geom placed at world.
func geomOutline(typ string, size []float64, world dynamo.Transform, mesh []mgl64.Vec3, hf *heightfield) (outline, error) {
	at := func(x, y, z float64) cp.Vector { return project(world.Apply(mgl64.Vec3{x, y, z})) }
	switch typ {
	case "sphere":
		r := size[0]
		return outline{kind: outlineCircle, points: []cp.Vector{at(0, 0, 0)}, radius: r, volume: 4.0 / 3.0 * math.Pi * r * r * r}, nil
	case "capsule":
		r, h := size[0], size[1]
		a, b := at(0, 0, -h), at(0, 0, h)
		vol := math.Pi*r*r*2*h + 4.0/3.0*math.Pi*r*r*r
		if a.Near(b, 1e-9) {
			return outline{kind: outlineCircle, points: []cp.Vector{a}, radius: r, volume: vol}, nil
		}
		return outline{kind: outlineSegment, points: []cp.Vector{a, b}, radius: r, volume: vol}, nil
	case "cylinder":
		r, h := size[0], size[1]
		var pts []cp.Vector
		for i := 0; i < 16; i++ {
			a := 2 * math.Pi * float64(i) / 16
			pts = append(pts, at(r*math.Cos(a), r*math.Sin(a), -h), at(r*math.Cos(a), r*math.Sin(a), h))
		}
		return hull(pts, math.Pi*r*r*2*h)
	case "box", "ellipsoid":
		x, y, z := size[0], size[1], size[2]
		var pts []cp.Vector
		for _, sx := range []float64{-1, 1} {
			for _, sy := range []float64{-1, 1} {
				for _, sz := range []float64{-1, 1} {
					pts = append(pts, at(sx*x, sy*y, sz*z))
				}
			}
		}
		return hull(pts, 8*x*y*z)
	case "mesh":
		if len(mesh) < 3 {
			return outline{}, fmt.Errorf("mesh has %d vertices", len(mesh))
		}
		pts := make([]cp.Vector, len(mesh))
		lo, hi := mesh[0], mesh[0]
		for i, v := range mesh {
			pts[i] = at(v[0], v[1], v[2])
			for k := 0; k < 3; k++ {
				lo[k] = math.Min(lo[k], v[k])
				hi[k] = math.Max(hi[k], v[k])
			}
		}
		ext := hi.Sub(lo)
		return hull(pts, ext[0]*ext[1]*ext[2])
	case "plane":
		n := world.Rotation.Rotate(mgl64.Vec3{0, 0, 1})
		n2 := cp.Vector{X: n[0], Y: n[2]}
		if n2.Length() < 1e-6 {
			return outline{}, fmt.Errorf("plane normal is perpendicular to the simulation plane")
		}
		n2 = n2.Normalize()
		half := 100.0
		if len(size) > 0 && size[0] > 0 {
			half = size[0]
		}
		c := project(world.Position)
		t := n2.ReversePerp()
		back := n2.Mult(-1)
		pts := []cp.Vector{
			c.Add(t.Mult(-half)), c.Add(t.Mult(half)),
			c.Add(t.Mult(half)).Add(back), c.Add(t.Mult(-half)).Add(back),
		}
		return hull(pts, 0)
	case "hfield":
		if hf == nil {
			return outline{}, fmt.Errorf("hfield geom without asset")
		}
		row := hf.rows / 2
		sx, zmax := hf.size[0], hf.size[2]
		pts := make([]cp.Vector, hf.cols)
		for c := 0; c < hf.cols; c++ {
			x := -sx
			if hf.cols > 1 {
				x += 2 * sx * float64(c) / float64(hf.cols-1)
			}
			pts[c] = at(x, 0, float64(hf.data[row*hf.cols+c])*zmax)
		}
		return outline{kind: outlineChain, points: pts, radius: 0.01}, nil
	}
	return outline{}, fmt.Errorf("unsupported geom type %q", typ)
}

func hull(pts []cp.Vector, volume float64) (outline, error) {
	n := cp.ConvexHull(len(pts), pts, nil, 0)
	if n < 3 {
		return outline{}, fmt.Errorf("geom footprint has no area in the simulation plane")
	}
	return outline{kind: outlinePoly, points: pts[:n], volume: volume}, nil
}

// shapes creates cp shapes for an outline relative to a body whose origin
// sits at origin in world plane coordinates.
func (o outline) shapes(body *cp.Body, origin cp.Vector) []*cp.Shape {
	local := make([]cp.Vector, len(o.points))
	for i, p := range o.points {
		local[i] = p.Sub(origin)
	}
	switch o.kind {
	case outlineCircle:
		return []*cp.Shape{cp.NewCircle(body, o.radius, local[0])}
	case outlineSegment:
		return []*cp.Shape{cp.NewSegment(body, local[0], local[1], o.radius)}
	case outlinePoly:
		return []*cp.Shape{cp.NewPolyShapeRaw(body, len(local), local, 0)}
	case outlineChain:
		out := make([]*cp.Shape, 0, len(local)-1)
		for i := 0; i+1 < len(local); i++ {
			out = append(out, cp.NewSegment(body, local[i], local[i+1], o.radius))
		}
		return out
	}
	return nil
}

// readHeightfield decodes int32 rows, int32 cols, then rows*cols float32
// elevations, all little endian.
func readHeightfield(path string, size [4]float64) (*heightfield, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var dims [2]int32
	if err := binary.Read(f, binary.LittleEndian, &dims); err != nil {
		return nil, fmt.Errorf("%s: header: %w", filepath.Base(path), err)
	}
	if dims[0] <= 0 || dims[1] <= 0 {
		return nil, fmt.Errorf("%s: invalid dimensions %dx%d", filepath.Base(path), dims[0], dims[1])
	}
	hf := &heightfield{rows: int(dims[0]), cols: int(dims[1]), size: size}
	hf.data = make([]float32, hf.rows*hf.cols)
	if err := binary.Read(f, binary.LittleEndian, hf.data); err != nil {
		return nil, fmt.Errorf("%s: elevations: %w", filepath.Base(path), err)
	}
	return hf, nil
}

package bridge

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/san-kum/dynbridge/internal/dynamo"
	"github.com/san-kum/dynbridge/internal/scene"
	"gonum.org/v1/gonum/mat"
)

const (
	defaultDensity = 1000.0
	// thin is the relative thickness given to flat meshes in robust mode.
	thin = 1e-3
)

// Inertia is the mass distribution of a shape: Com is the principal frame
// relative to the shape frame and Diag the principal moments.
type Inertia struct {
	Mass float64
	Com  dynamo.Transform
	Diag mgl64.Vec3
}

// massProps is a mass with its center and inertia tensor about that center,
// all in one frame.
type massProps struct {
	mass   float64
	com    mgl64.Vec3
	tensor mgl64.Mat3
}

// ComputeInertia derives mass, principal frame and principal moments of a
// shape from its geometry. It needs no solver model.
func ComputeInertia(g scene.Graph, h scene.Handle, robust bool) (Inertia, error) {
	props, ok := g.Shape(h)
	if !ok {
		return Inertia{}, fmt.Errorf("inertia of %d: %w", h, dynamo.ErrUnknownObject)
	}
	return shapeInertia(props, robust)
}

func shapeInertia(props scene.ShapeProps, robust bool) (Inertia, error) {
	if len(props.Geoms) == 0 {
		if !robust {
			return Inertia{}, fmt.Errorf("shape without geometry: %w", dynamo.ErrDegenerateGeometry)
		}
		// a point mass keeps the body integrable
		m := props.Mass
		if m <= 0 {
			m = thin
		}
		i := 0.4 * m * thin * thin
		return Inertia{Mass: m, Com: dynamo.Identity(), Diag: mgl64.Vec3{i, i, i}}, nil
	}
	// unit density first, scaled once the total volume is known
	var parts []massProps
	var volume float64
	for i, geom := range props.Geoms {
		p, err := geomMassProps(geom, robust)
		if err != nil {
			return Inertia{}, fmt.Errorf("geom %d: %w", i, err)
		}
		parts = append(parts, p)
		volume += p.mass
	}
	if volume <= 0 {
		return Inertia{}, dynamo.ErrDegenerateGeometry
	}
	density := props.Density
	if density <= 0 {
		density = defaultDensity
	}
	if props.Mass > 0 {
		density = props.Mass / volume
	}
	total := combine(parts)
	total.mass *= density
	total.tensor = total.tensor.Mul(density)
	return total.principal(), nil
}

func geomMassProps(g scene.Geometry, robust bool) (massProps, error) {
	var p massProps
	s := g.Size
	switch g.Primitive {
	case scene.PrimBox:
		p.mass = 8 * s[0] * s[1] * s[2]
		p.tensor = boxTensor(p.mass, s)
	case scene.PrimSphere:
		p.mass = 4.0 / 3.0 * math.Pi * s[0] * s[0] * s[0]
		i := 0.4 * p.mass * s[0] * s[0]
		p.tensor = mgl64.Diag3(mgl64.Vec3{i, i, i})
	case scene.PrimCylinder:
		r, h := s[0], s[1]
		p.mass = math.Pi * r * r * 2 * h
		ixy := p.mass * (3*r*r + 4*h*h) / 12
		p.tensor = mgl64.Diag3(mgl64.Vec3{ixy, ixy, p.mass * r * r / 2})
	case scene.PrimCapsule:
		r, h := s[0], s[1]
		mc := math.Pi * r * r * 2 * h
		ms := 4.0 / 3.0 * math.Pi * r * r * r
		length := 2 * h
		ixy := mc*(length*length/12+r*r/4) + ms*(0.4*r*r+length*length/4+3*length*r/8)
		p.mass = mc + ms
		p.tensor = mgl64.Diag3(mgl64.Vec3{ixy, ixy, mc*r*r/2 + 0.4*ms*r*r})
	case scene.PrimMesh:
		if g.Mesh == nil {
			return p, fmt.Errorf("mesh geom without data: %w", dynamo.ErrDegenerateGeometry)
		}
		var err error
		if p, err = meshMassProps(g.Mesh, robust); err != nil {
			return p, err
		}
	case scene.PrimHeightfield:
		hf := g.Heightfield
		if hf == nil || len(hf.Heights) == 0 {
			return p, fmt.Errorf("heightfield without data: %w", dynamo.ErrDegenerateGeometry)
		}
		lo, hi := span(hf.Heights)
		half := mgl64.Vec3{hf.SizeX, hf.SizeY, (hi - lo + hf.Base) / 2}
		p.mass = 8 * half[0] * half[1] * half[2]
		p.com = mgl64.Vec3{0, 0, (hi + lo - hf.Base) / 2}
		p.tensor = boxTensor(p.mass, half)
	case scene.PrimPlane:
		if !robust {
			return p, fmt.Errorf("plane has no volume: %w", dynamo.ErrDegenerateGeometry)
		}
		half := mgl64.Vec3{s[0], s[1], thin * math.Max(s[0], s[1])}
		p.mass = 8 * half[0] * half[1] * half[2]
		p.tensor = boxTensor(p.mass, half)
	default:
		return p, fmt.Errorf("unsupported primitive %s", g.Primitive)
	}
	if p.mass <= 0 || math.IsNaN(p.mass) {
		return p, fmt.Errorf("%s: %w", g.Primitive, dynamo.ErrDegenerateGeometry)
	}
	return p.transformed(g.Local), nil
}

func boxTensor(m float64, half mgl64.Vec3) mgl64.Mat3 {
	x, y, z := half[0]*half[0], half[1]*half[1], half[2]*half[2]
	return mgl64.Diag3(mgl64.Vec3{m * (y + z) / 3, m * (x + z) / 3, m * (x + y) / 3})
}

// meshMassProps integrates signed tetrahedra spanned by each triangle and
// the origin.
func meshMassProps(mesh *scene.Mesh, robust bool) (massProps, error) {
	var p massProps
	var cov mgl64.Mat3
	canonical := mgl64.Mat3{2, 1, 1, 1, 2, 1, 1, 1, 2}.Mul(1.0 / 120.0)
	for i := 0; i+2 < len(mesh.Indices); i += 3 {
		idx := mesh.Indices[i : i+3]
		if idx[0] >= len(mesh.Vertices) || idx[1] >= len(mesh.Vertices) || idx[2] >= len(mesh.Vertices) {
			return p, fmt.Errorf("mesh index out of range")
		}
		a, b, c := mesh.Vertices[idx[0]], mesh.Vertices[idx[1]], mesh.Vertices[idx[2]]
		det := a.Dot(b.Cross(c))
		p.mass += det / 6
		p.com = p.com.Add(a.Add(b).Add(c).Mul(det / 24))
		A := mgl64.Mat3FromCols(a, b, c)
		cov = cov.Add(A.Mul3(canonical).Mul3(A.Transpose()).Mul(det))
	}
	if p.mass < 0 {
		p.mass, p.com, cov = -p.mass, p.com.Mul(-1), cov.Mul(-1)
	}
	if p.mass < 1e-12 {
		if !robust {
			return p, dynamo.ErrDegenerateGeometry
		}
		return boundingBox(mesh.Vertices)
	}
	p.com = p.com.Mul(1 / p.mass)
	// covariance about the centroid
	cov = cov.Sub(outer(p.com, p.com).Mul(p.mass))
	tr := cov.At(0, 0) + cov.At(1, 1) + cov.At(2, 2)
	p.tensor = mgl64.Ident3().Mul(tr).Sub(cov)
	return p, nil
}

// boundingBox stands in for a zero-volume mesh with a thin box.
func boundingBox(vs []mgl64.Vec3) (massProps, error) {
	if len(vs) == 0 {
		return massProps{}, dynamo.ErrDegenerateGeometry
	}
	lo, hi := vs[0], vs[0]
	for _, v := range vs[1:] {
		for k := 0; k < 3; k++ {
			lo[k] = math.Min(lo[k], v[k])
			hi[k] = math.Max(hi[k], v[k])
		}
	}
	half := hi.Sub(lo).Mul(0.5)
	largest := math.Max(half[0], math.Max(half[1], half[2]))
	if largest <= 0 {
		return massProps{}, dynamo.ErrDegenerateGeometry
	}
	for k := 0; k < 3; k++ {
		half[k] = math.Max(half[k], thin*largest)
	}
	m := 8 * half[0] * half[1] * half[2]
	return massProps{mass: m, com: lo.Add(hi).Mul(0.5), tensor: boxTensor(m, half)}, nil
}

func span(vs []float64) (lo, hi float64) {
	lo, hi = vs[0], vs[0]
	for _, v := range vs[1:] {
		lo, hi = math.Min(lo, v), math.Max(hi, v)
	}
	return lo, hi
}

func outer(a, b mgl64.Vec3) mgl64.Mat3 {
	return mgl64.Mat3FromCols(a.Mul(b[0]), a.Mul(b[1]), a.Mul(b[2]))
}

// transformed expresses p in the parent frame of tr.
func (p massProps) transformed(tr dynamo.Transform) massProps {
	r := tr.Rotation.Mat4().Mat3()
	return massProps{
		mass:   p.mass,
		com:    tr.Apply(p.com),
		tensor: r.Mul3(p.tensor).Mul3(r.Transpose()),
	}
}

// combine sums mass properties with the parallel axis theorem.
func combine(parts []massProps) massProps {
	var out massProps
	for _, p := range parts {
		out.mass += p.mass
		out.com = out.com.Add(p.com.Mul(p.mass))
	}
	if out.mass <= 0 {
		return out
	}
	out.com = out.com.Mul(1 / out.mass)
	for _, p := range parts {
		d := p.com.Sub(out.com)
		shift := mgl64.Ident3().Mul(d.Dot(d)).Sub(outer(d, d)).Mul(p.mass)
		out.tensor = out.tensor.Add(p.tensor).Add(shift)
	}
	return out
}

// principal diagonalizes the tensor. Moments are ascending and the frame is
// right handed.
func (p massProps) principal() Inertia {
	in := Inertia{Mass: p.mass, Com: dynamo.Transform{Position: p.com, Rotation: mgl64.QuatIdent()}}
	t := p.tensor
	sym := mat.NewSymDense(3, []float64{
		t.At(0, 0), (t.At(0, 1) + t.At(1, 0)) / 2, (t.At(0, 2) + t.At(2, 0)) / 2,
		(t.At(0, 1) + t.At(1, 0)) / 2, t.At(1, 1), (t.At(1, 2) + t.At(2, 1)) / 2,
		(t.At(0, 2) + t.At(2, 0)) / 2, (t.At(1, 2) + t.At(2, 1)) / 2, t.At(2, 2),
	})
	var es mat.EigenSym
	if !es.Factorize(sym, true) {
		in.Diag = mgl64.Vec3{t.At(0, 0), t.At(1, 1), t.At(2, 2)}
		return in
	}
	vals := es.Values(nil)
	var vecs mat.Dense
	es.VectorsTo(&vecs)
	col := func(j int) mgl64.Vec3 {
		return mgl64.Vec3{vecs.At(0, j), vecs.At(1, j), vecs.At(2, j)}
	}
	x, y := col(0), col(1)
	z := x.Cross(y)
	in.Diag = mgl64.Vec3{vals[0], vals[1], vals[2]}
	in.Com.Rotation = mgl64.Mat4ToQuat(mgl64.Mat3FromCols(x, y, z).Mat4()).Normalize()
	return in
}

// tensor rebuilds the inertia tensor in the shape frame.
func (in Inertia) tensor() massProps {
	r := in.Com.Rotation.Mat4().Mat3()
	return massProps{
		mass:   in.Mass,
		com:    in.Com.Position,
		tensor: r.Mul3(mgl64.Diag3(in.Diag)).Mul3(r.Transpose()),
	}
}

// scaled divides mass and moments by d.
func (in Inertia) scaled(d float64) Inertia {
	if d <= 0 || d == 1 {
		return in
	}
	in.Mass /= d
	in.Diag = in.Diag.Mul(1 / d)
	return in
}

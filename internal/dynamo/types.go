package dynamo

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Transform is a rigid pose: rotation applied first, then translation.
type Transform struct {
	Position mgl64.Vec3
	Rotation mgl64.Quat
}

func Identity() Transform {
	return Transform{Rotation: mgl64.QuatIdent()}
}

func NewTransform(pos mgl64.Vec3, rot mgl64.Quat) Transform {
	return Transform{Position: pos, Rotation: rot.Normalize()}
}

// Mul returns t∘o, i.e. o expressed in t's parent frame.
func (t Transform) Mul(o Transform) Transform {
	return Transform{
		Position: t.Position.Add(t.Rotation.Rotate(o.Position)),
		Rotation: t.Rotation.Mul(o.Rotation).Normalize(),
	}
}

func (t Transform) Inverse() Transform {
	inv := t.Rotation.Inverse()
	return Transform{
		Position: inv.Rotate(t.Position).Mul(-1),
		Rotation: inv,
	}
}

func (t Transform) Apply(v mgl64.Vec3) mgl64.Vec3 {
	return t.Position.Add(t.Rotation.Rotate(v))
}

// RelativeTo returns t expressed in the frame of parent.
func (t Transform) RelativeTo(parent Transform) Transform {
	return parent.Inverse().Mul(t)
}

func (t Transform) IsValid() bool {
	for _, v := range []float64{t.Position[0], t.Position[1], t.Position[2], t.Rotation.W, t.Rotation.V[0], t.Rotation.V[1], t.Rotation.V[2]} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// VecApproxEqual compares component-wise by absolute difference, so values
// near zero get the same tolerance as any other.
func VecApproxEqual(a, b mgl64.Vec3, eps float64) bool {
	for i := range a {
		if math.Abs(a[i]-b[i]) > eps {
			return false
		}
	}
	return true
}

func (t Transform) ApproxEqual(o Transform, eps float64) bool {
	if !VecApproxEqual(t.Position, o.Position, eps) {
		return false
	}
	// q and -q encode the same rotation
	return math.Abs(math.Abs(t.Rotation.Dot(o.Rotation))-1) <= eps
}

// Interpolate blends a toward b: lerp on position, slerp on rotation.
// s <= 0 yields a and s >= 1 yields b exactly.
func Interpolate(a, b Transform, s float64) Transform {
	if s <= 0 {
		return a
	}
	if s >= 1 {
		return b
	}
	rb := b.Rotation
	if a.Rotation.Dot(rb) < 0 {
		rb = rb.Scale(-1)
	}
	return Transform{
		Position: a.Position.Add(b.Position.Sub(a.Position).Mul(s)),
		Rotation: mgl64.QuatSlerp(a.Rotation, rb, s).Normalize(),
	}
}

// Velocity is a spatial velocity in world coordinates.
type Velocity struct {
	Linear  mgl64.Vec3
	Angular mgl64.Vec3
}

func (v Velocity) Add(o Velocity) Velocity {
	return Velocity{Linear: v.Linear.Add(o.Linear), Angular: v.Angular.Add(o.Angular)}
}

func (v Velocity) Scale(f float64) Velocity {
	return Velocity{Linear: v.Linear.Mul(f), Angular: v.Angular.Mul(f)}
}

// VelocityBetween is the constant velocity that carries a to b in dt.
func VelocityBetween(a, b Transform, dt float64) Velocity {
	if dt <= 0 {
		return Velocity{}
	}
	lin := b.Position.Sub(a.Position).Mul(1 / dt)
	dq := b.Rotation.Mul(a.Rotation.Inverse()).Normalize()
	if dq.W < 0 {
		dq = dq.Scale(-1)
	}
	angle := 2 * math.Acos(math.Min(1, dq.W))
	s := math.Sqrt(math.Max(0, 1-dq.W*dq.W))
	if s < 1e-12 || angle == 0 {
		return Velocity{Linear: lin}
	}
	axis := dq.V.Mul(1 / s)
	return Velocity{Linear: lin, Angular: axis.Mul(angle / dt)}
}

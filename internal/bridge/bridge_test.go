package bridge

import (
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/san-kum/dynbridge/internal/config"
	"github.com/san-kum/dynbridge/internal/dynamo"
	"github.com/san-kum/dynbridge/internal/registry"
	"github.com/san-kum/dynbridge/internal/scene"
	"github.com/san-kum/dynbridge/internal/solver"
	"github.com/san-kum/dynbridge/internal/solver/planar"
)

func box(half mgl64.Vec3) scene.Geometry {
	return scene.Geometry{Primitive: scene.PrimBox, Size: half, Local: dynamo.Identity()}
}

func TestRespond(t *testing.T) {
	shape := func(mask int) *registry.Geom { return &registry.Geom{Item: registry.ItemShape, RespondableMask: mask} }
	particle := func(mask int) *registry.Geom { return &registry.Geom{Item: registry.ItemParticle, RespondableMask: mask} }
	comp := func(prefix string, mask int) *registry.Geom {
		return &registry.Geom{Item: registry.ItemComposite, Prefix: prefix, RespondableMask: mask}
	}
	dummy := &registry.Geom{Item: registry.ItemDummy, RespondableMask: 0xffff}

	tests := []struct {
		name string
		a, b *registry.Geom
		want bool
	}{
		{"shapes sharing a bit", shape(0x0001), shape(0x0003), true},
		{"shapes without common bits", shape(0x0001), shape(0x0002), false},
		{"dummy never collides", dummy, shape(0xffff), false},
		{"shape vs particle", shape(0x0001), particle(0x0100), true},
		{"particle vs shape", particle(0x0100), shape(0x0001), true},
		{"particle outside shape byte", particle(0x0001), shape(0xffff), false},
		{"non respondable shape vs particle", shape(0), particle(0xff00), false},
		{"particles", particle(0x0001), particle(0x0001), true},
		{"particles disjoint", particle(0x0001), particle(0x0002), false},
		{"same composite", comp("a", 0x0001), comp("a", 0x0001), true},
		{"same composite high bits only", comp("a", 0x0010), comp("a", 0x0010), false},
		{"different composites", comp("a", 0x0010), comp("b", 0x0010), true},
		{"different composites low bits only", comp("a", 0x0001), comp("b", 0x0001), false},
		{"particle vs composite", particle(0x0020), comp("a", 0x0020), true},
		{"shape vs composite", shape(0x0001), comp("a", 0x0100), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := respond(tt.a, tt.b); got != tt.want {
				t.Errorf("respond = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestHandleContact_UnknownGeom(t *testing.T) {
	reg := registry.New()
	if handleContact(reg, 0, 1) {
		t.Error("geoms the registry does not know must not collide")
	}
}

func TestSmooth(t *testing.T) {
	v := func(x float64) sample {
		return sample{vel: dynamo.Velocity{Linear: mgl64.Vec3{x, 0, 0}}}
	}
	samples := []sample{v(1), v(2), v(4)}

	if got := smooth(samples, config.SmoothingLast).Linear[0]; got != 4 {
		t.Errorf("last = %g, want 4", got)
	}
	// (1*1 + 2*2 + 3*4) / 6
	want := 17.0 / 6.0
	if got := smooth(samples, config.SmoothingLinear).Linear[0]; math.Abs(got-want) > 1e-12 {
		t.Errorf("linear = %g, want %g", got, want)
	}
	if got := smooth(nil, config.SmoothingLinear); got != (dynamo.Velocity{}) {
		t.Errorf("empty = %v, want zero", got)
	}
}

func TestContext_InjectComposite(t *testing.T) {
	ctx := NewContext()
	ci := CompositeInjection{XML: `<geom type="sphere" size="0.02"/>`, Shape: scene.NoHandle, Prefix: "c", Count: [3]int{2, 2, 1}}
	if !ctx.InjectCompositeXML(ci) {
		t.Fatal("first injection rejected")
	}
	if ctx.InjectCompositeXML(ci) {
		t.Error("re-injecting a known prefix should be a no-op")
	}
	ctx.particlesChanged = true
	if !ctx.InjectCompositeXML(ci) {
		t.Error("re-injecting after a particle change should replace the composite")
	}
	if ctx.CompositeIndexFromPrefix("c") != 0 || ctx.CompositeIndexFromPrefix("x") != -1 {
		t.Error("unexpected composite index")
	}
	got, _ := ctx.Composite(0)
	if got.Grow != 1 || got.Type != "grid" || got.Size() != 4 {
		t.Errorf("defaults not applied: %+v", got)
	}
	if ctx.InjectCompositeXML(CompositeInjection{Prefix: "bad"}) {
		t.Error("empty composite accepted")
	}

	ctx.Reset()
	if _, ok := ctx.Composite(0); ok {
		t.Error("Reset should drop composites")
	}
}

func TestShapeInertia_Box(t *testing.T) {
	props := scene.ShapeProps{Dynamic: true, Density: 1000, Geoms: []scene.Geometry{box(mgl64.Vec3{0.5, 0.5, 0.5})}}
	in, err := shapeInertia(props, false)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(in.Mass-1000) > 1e-9 {
		t.Errorf("mass = %g, want 1000", in.Mass)
	}
	want := 1000.0 / 12 * 2
	for i := 0; i < 3; i++ {
		if math.Abs(in.Diag[i]-want) > 1e-6 {
			t.Errorf("diag[%d] = %g, want %g", i, in.Diag[i], want)
		}
	}
}

func TestShapeInertia_MassOverridesDensity(t *testing.T) {
	off := box(mgl64.Vec3{0.5, 0.5, 0.5})
	off.Local = dynamo.NewTransform(mgl64.Vec3{1, 0, 0}, mgl64.QuatIdent())
	props := scene.ShapeProps{Mass: 2, Geoms: []scene.Geometry{box(mgl64.Vec3{0.5, 0.5, 0.5}), off}}
	in, err := shapeInertia(props, false)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(in.Mass-2) > 1e-9 {
		t.Errorf("mass = %g, want 2", in.Mass)
	}
	if math.Abs(in.Com.Position[0]-0.5) > 1e-9 {
		t.Errorf("com x = %g, want 0.5", in.Com.Position[0])
	}
	// principal moments come back ascending and positive
	if !(in.Diag[0] > 0 && in.Diag[0] <= in.Diag[1] && in.Diag[1] <= in.Diag[2]) {
		t.Errorf("diag = %v", in.Diag)
	}
}

func TestShapeInertia_Degenerate(t *testing.T) {
	plane := scene.ShapeProps{Geoms: []scene.Geometry{{Primitive: scene.PrimPlane, Size: mgl64.Vec3{1, 1, 0}, Local: dynamo.Identity()}}}
	if _, err := shapeInertia(plane, false); !errors.Is(err, dynamo.ErrDegenerateGeometry) {
		t.Errorf("plane err = %v, want ErrDegenerateGeometry", err)
	}
	if _, err := shapeInertia(plane, true); err != nil {
		t.Errorf("robust plane: %v", err)
	}
	if _, err := shapeInertia(scene.ShapeProps{}, false); !errors.Is(err, dynamo.ErrDegenerateGeometry) {
		t.Errorf("empty err = %v", err)
	}
	in, err := shapeInertia(scene.ShapeProps{Mass: 3}, true)
	if err != nil || in.Mass != 3 {
		t.Errorf("robust empty = %+v, %v", in, err)
	}
}

func TestShapeInertia_Mesh(t *testing.T) {
	// unit cube as 12 outward-facing triangles
	vs := []mgl64.Vec3{
		{0, 0, 0}, {1, 0, 0}, {1, 1, 0}, {0, 1, 0},
		{0, 0, 1}, {1, 0, 1}, {1, 1, 1}, {0, 1, 1},
	}
	idx := []int{
		0, 2, 1, 0, 3, 2,
		4, 5, 6, 4, 6, 7,
		0, 1, 5, 0, 5, 4,
		1, 2, 6, 1, 6, 5,
		2, 3, 7, 2, 7, 6,
		3, 0, 4, 3, 4, 7,
	}
	props := scene.ShapeProps{Density: 1, Geoms: []scene.Geometry{{
		Primitive: scene.PrimMesh,
		Mesh:      &scene.Mesh{Vertices: vs, Indices: idx},
		Local:     dynamo.Identity(),
	}}}
	in, err := shapeInertia(props, false)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(in.Mass-1) > 1e-9 {
		t.Errorf("mass = %g, want 1", in.Mass)
	}
	if !dynamo.VecApproxEqual(in.Com.Position, mgl64.Vec3{0.5, 0.5, 0.5}, 1e-9) {
		t.Errorf("com = %v", in.Com.Position)
	}
}

func TestChangeDetection(t *testing.T) {
	g := scene.NewMemory()
	h, err := g.Add(scene.ObjectSpec{
		Name:  "box",
		Type:  scene.TypeShape,
		Pose:  dynamo.NewTransform(mgl64.Vec3{0, 0, 1}, mgl64.QuatIdent()),
		Shape: &scene.ShapeProps{Dynamic: true, Respondable: true, RespondableMask: 0xffff, Density: 1000, Geoms: []scene.Geometry{box(mgl64.Vec3{0.1, 0.1, 0.1})}},
	})
	if err != nil {
		t.Fatal(err)
	}
	c := New(NewContext(), g, planar.New(), WithWorkDir(t.TempDir()))
	if c.hasContentChanged() != HardChange {
		t.Fatal("no model should mean a hard change")
	}
	c.HandleDynamics(0.05, 0)
	if c.Model() == nil {
		t.Fatalf("model not built: %v", c.Warnings())
	}
	if k := c.hasContentChanged(); k != NoChange {
		t.Errorf("after a tick: %s, want none", k)
	}

	g.Push(h, dynamo.Velocity{Linear: mgl64.Vec3{1, 0, 0}})
	if k := c.hasContentChanged(); k != SoftChange {
		t.Errorf("after a push: %s, want soft", k)
	}
	c.HandleDynamics(0.05, 0.05)
	if k := c.hasContentChanged(); k != NoChange {
		t.Errorf("after syncing the push: %s, want none", k)
	}

	c.ParticlesAdded()
	if k := c.hasContentChanged(); k != HardChange {
		t.Errorf("after ParticlesAdded: %s, want hard", k)
	}
	c.HandleDynamics(0.05, 0.1)

	g.ResetDynamics()
	if k := c.hasContentChanged(); k != HardChange || !c.sceneReset {
		t.Errorf("after a scene reset: %s, want hard with sceneReset", k)
	}
}

func TestConfigure_TriggersRebuild(t *testing.T) {
	c := New(NewContext(), scene.NewMemory(), planar.New())
	cfg := config.DefaultEngine()
	if err := c.Configure(cfg); err != nil {
		t.Fatal(err)
	}
	if c.rebuild {
		t.Fatal("first configuration should not request a rebuild")
	}
	cfg.Smoothing = config.SmoothingLast
	_ = c.Configure(cfg)
	if c.rebuild {
		t.Error("smoothing is applied without a rebuild")
	}
	cfg.Gravity = [3]float64{0, 0, -1.62}
	_ = c.Configure(cfg)
	if !c.rebuild {
		t.Error("gravity change should request a rebuild")
	}
	cfg.Timestep = -1
	if err := c.Configure(cfg); !errors.Is(err, dynamo.ErrInvalidParams) {
		t.Errorf("invalid timestep err = %v", err)
	}
}

func TestContext_SetInjectionsKeepsComposites(t *testing.T) {
	ctx := NewContext()
	ctx.InjectXML(`<geom/>`, "worldbody", scene.NoHandle)
	ctx.InjectCompositeXML(CompositeInjection{XML: `<geom type="sphere" size="0.02"/>`, Shape: scene.NoHandle, Prefix: "c", Count: [3]int{1, 1, 1}})
	ctx.injectionsChanged = false

	ctx.SetInjections([]Injection{{XML: `<site/>`, Element: "worldbody"}, {XML: `<site/>`, Element: "worldbody"}})
	if len(ctx.Injections()) != 2 || !ctx.injectionsChanged {
		t.Errorf("injections = %d, changed = %v", len(ctx.Injections()), ctx.injectionsChanged)
	}
	if ctx.CompositeIndexFromPrefix("c") != 0 {
		t.Error("composite dropped")
	}
}

// hingeScene is a static base holding a position controlled hinge that
// drives a dynamic arm.
func hingeScene(t *testing.T, kp, ki, kd float64) (g *scene.Memory, joint, arm scene.Handle) {
	t.Helper()
	g = scene.NewMemory()
	base, err := g.Add(scene.ObjectSpec{
		Name:  "base",
		Type:  scene.TypeShape,
		Pose:  dynamo.NewTransform(mgl64.Vec3{0, 0, 1}, mgl64.QuatIdent()),
		Shape: &scene.ShapeProps{Respondable: true, RespondableMask: 0xffff, Geoms: []scene.Geometry{box(mgl64.Vec3{0.05, 0.05, 0.05})}},
	})
	if err != nil {
		t.Fatal(err)
	}
	joint, err = g.Add(scene.ObjectSpec{
		Name:   "hinge",
		Type:   scene.TypeJoint,
		Parent: base,
		Pose:   dynamo.NewTransform(mgl64.Vec3{0, 0, 1}, mgl64.QuatRotate(-math.Pi/2, mgl64.Vec3{1, 0, 0})),
		Joint: &scene.JointProps{
			Type:           scene.JointRevolute,
			Control:        scene.ControlPosition,
			TargetPosition: 0.5,
			MaxForce:       200,
			Kp:             kp,
			Ki:             ki,
			Kd:             kd,
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	arm, err = g.Add(scene.ObjectSpec{
		Name:   "arm",
		Type:   scene.TypeShape,
		Parent: joint,
		Pose:   dynamo.NewTransform(mgl64.Vec3{0.3, 0, 1}, mgl64.QuatIdent()),
		Shape: &scene.ShapeProps{
			Dynamic:         true,
			Respondable:     true,
			RespondableMask: 0xffff,
			Density:         500,
			Geoms:           []scene.Geometry{box(mgl64.Vec3{0.25, 0.03, 0.03})},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	return g, joint, arm
}

func TestPositionJoint_GainsAndReset(t *testing.T) {
	g, joint, arm := hingeScene(t, 2, 1, 0)
	c := New(NewContext(), g, planar.New(), WithWorkDir(t.TempDir()))
	for i := 0; i < 6; i++ {
		c.HandleDynamics(0.05, float64(i)*0.05)
	}
	j, ok := c.Registry().Joint(joint)
	if !ok || j.PID == nil {
		t.Fatalf("no position controller: %v", c.Warnings())
	}
	pid := j.PID

	g.SetJointGains(joint, 4, 1, 0)
	c.HandleDynamics(0.05, 0.3)
	if kp, ki, kd := pid.Gains(); kp != 4 || ki != 1 || kd != 0 {
		t.Errorf("gains after scene edit = %v/%v/%v, want 4/1/0", kp, ki, kd)
	}

	c.ResetDynamicObject(arm)
	if err := c.buildWorld(0.05, 0.35, true); err != nil {
		t.Fatal(err)
	}
	j, _ = c.Registry().Joint(joint)
	if j.PID != pid {
		t.Fatal("controller not carried across the rebuild")
	}
	// a cleared controller answers its first call with the proportional term only
	if u := j.PID.Compute(0, 100, false); math.Abs(u-4*0.5) > 1e-12 {
		t.Errorf("first command after reset = %v, want %v", u, 4*0.5)
	}
}

// compileOnce accepts the first description and rejects the rest.
type compileOnce struct {
	solver.Engine
	calls int
}

func (e *compileOnce) Compile(desc string, opts solver.CompileOptions) (solver.Model, error) {
	e.calls++
	if e.calls > 1 {
		return nil, errors.New("rejected")
	}
	return e.Engine.Compile(desc, opts)
}

func TestBuildWorld_FailedCompileKeepsDescription(t *testing.T) {
	g, _, _ := hingeScene(t, 0, 0, 0)
	c := New(NewContext(), g, &compileOnce{Engine: planar.New()}, WithWorkDir(t.TempDir()))
	c.HandleDynamics(0.05, 0)
	desc := c.Description()
	if desc == "" || c.Model() == nil {
		t.Fatalf("first build failed: %v", c.Warnings())
	}

	if _, err := g.Add(scene.ObjectSpec{
		Name:  "marker",
		Type:  scene.TypeShape,
		Pose:  dynamo.NewTransform(mgl64.Vec3{2, 0, 0}, mgl64.QuatIdent()),
		Shape: &scene.ShapeProps{Respondable: true, RespondableMask: 0xffff, Geoms: []scene.Geometry{box(mgl64.Vec3{0.1, 0.1, 0.1})}},
	}); err != nil {
		t.Fatal(err)
	}
	err := c.buildWorld(0.05, 0.05, true)
	var be *dynamo.BuildError
	if !errors.As(err, &be) || be.Stage != "compile" {
		t.Fatalf("err = %v, want compile BuildError", err)
	}
	if !strings.Contains(be.Description, "marker") {
		t.Error("rejected description missing from the error")
	}
	if c.Description() != desc {
		t.Error("description changed although the previous model stays active")
	}
	if c.Model() == nil {
		t.Error("previous model dropped")
	}
}

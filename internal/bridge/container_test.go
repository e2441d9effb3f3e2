package bridge_test

import (
	"errors"
	"io"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/go-gl/mathgl/mgl64"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/dynbridge/internal/bridge"
	"github.com/san-kum/dynbridge/internal/config"
	"github.com/san-kum/dynbridge/internal/dynamo"
	"github.com/san-kum/dynbridge/internal/registry"
	"github.com/san-kum/dynbridge/internal/scene"
	"github.com/san-kum/dynbridge/internal/solver"
	"github.com/san-kum/dynbridge/internal/solver/planar"
)

const tick = 0.05

func boxGeom(half float64) scene.Geometry {
	return scene.Geometry{Primitive: scene.PrimBox, Size: mgl64.Vec3{half, half, half}, Local: dynamo.Identity()}
}

func at(x, y, z float64) dynamo.Transform {
	return dynamo.NewTransform(mgl64.Vec3{x, y, z}, mgl64.QuatIdent())
}

func mustAdd(g *scene.Memory, spec scene.ObjectSpec) scene.Handle {
	GinkgoHelper()
	h, err := g.Add(spec)
	Expect(err).NotTo(HaveOccurred())
	Expect(h).NotTo(Equal(scene.NoHandle))
	return h
}

// dropScene is a static floor with a dynamic box above it.
func dropScene() (g *scene.Memory, floor, box scene.Handle) {
	g = scene.NewMemory()
	floor = mustAdd(g, scene.ObjectSpec{
		Name: "floor",
		Type: scene.TypeShape,
		Pose: at(0, 0, -0.1),
		Shape: &scene.ShapeProps{
			Respondable:     true,
			RespondableMask: 0xffff,
			Density:         1000,
			Geoms:           []scene.Geometry{{Primitive: scene.PrimBox, Size: mgl64.Vec3{5, 5, 0.1}, Local: dynamo.Identity()}},
		},
	})
	box = mustAdd(g, scene.ObjectSpec{
		Name: "box",
		Type: scene.TypeShape,
		Pose: at(0, 0, 1),
		Shape: &scene.ShapeProps{
			Dynamic:         true,
			Respondable:     true,
			RespondableMask: 0xffff,
			Density:         1000,
			Geoms:           []scene.Geometry{boxGeom(0.1)},
		},
	})
	return g, floor, box
}

// flakyEngine compiles with the planar engine and fails one Step on request.
type flakyEngine struct {
	solver.Engine
	failAt int
	steps  int
}

type flakyModel struct {
	solver.Model
	e *flakyEngine
}

func (e *flakyEngine) Compile(desc string, opts solver.CompileOptions) (solver.Model, error) {
	m, err := e.Engine.Compile(desc, opts)
	if err != nil {
		return nil, err
	}
	return &flakyModel{Model: m, e: e}, nil
}

func (m *flakyModel) Step() error {
	m.e.steps++
	if m.e.steps == m.e.failAt {
		return errors.New("injected failure")
	}
	return m.Model.Step()
}

// brokenEngine never compiles.
type brokenEngine struct{ solver.Engine }

func (brokenEngine) Compile(string, solver.CompileOptions) (solver.Model, error) {
	return nil, errors.New("no solver")
}

var _ = Describe("Container", func() {
	var (
		g        *scene.Memory
		floor    scene.Handle
		box      scene.Handle
		ctx      *bridge.Context
		c        *bridge.Container
		simTime  float64
		advance  func(n int)
		newBound func(e solver.Engine, opts ...bridge.Option)
	)

	BeforeEach(func() {
		g, floor, box = dropScene()
		ctx = bridge.NewContext()
		simTime = 0
		newBound = func(e solver.Engine, opts ...bridge.Option) {
			opts = append([]bridge.Option{
				bridge.WithLogger(log.New(io.Discard)),
				bridge.WithWorkDir(GinkgoT().TempDir()),
			}, opts...)
			c = bridge.New(ctx, g, e, opts...)
		}
		advance = func(n int) {
			for i := 0; i < n; i++ {
				c.HandleDynamics(tick, simTime)
				simTime += tick
			}
		}
		newBound(planar.New())
	})

	It("builds a description naming every simulated object", func() {
		advance(1)
		Expect(c.Model()).NotTo(BeNil())
		Expect(c.Description()).To(ContainSubstring("box_2"))
		Expect(c.Description()).To(ContainSubstring("box_2_freejoint"))
		Expect(c.Description()).To(ContainSubstring("floor_1_g0"))
		Expect(c.IsDynamicContentAvailable()).To(BeTrue())

		s, ok := c.Registry().Shape(box)
		Expect(ok).To(BeTrue())
		Expect(s.Mode).To(Equal(registry.ModeFree))
		f, _ := c.Registry().Shape(floor)
		Expect(f.Mode).To(Equal(registry.ModeStatic))
	})

	It("lets a dynamic body fall and come to rest on the floor", func() {
		advance(4)
		Expect(g.Velocity(box).Linear[2]).To(BeNumerically("<", 0))
		Expect(g.WorldPose(box).Position[2]).To(BeNumerically("<", 1))

		advance(80)
		Expect(g.WorldPose(box).Position[2]).To(BeNumerically("~", 0.1, 0.05))
		Expect(g.WorldPose(floor).Position[2]).To(BeNumerically("~", -0.1, 1e-12))
	})

	It("keeps the model when nothing changed", func() {
		advance(1)
		m := c.Model()
		advance(3)
		Expect(c.Model()).To(BeIdenticalTo(m))
	})

	It("carries velocities across a rebuild", func() {
		advance(6)
		before := g.Velocity(box).Linear[2]
		Expect(before).To(BeNumerically("<", -0.5))
		m := c.Model()

		_, err := g.Add(scene.ObjectSpec{Name: "marker", Type: scene.TypeOther, Pose: at(3, 0, 0)})
		Expect(err).NotTo(HaveOccurred())
		advance(1)
		Expect(c.Model()).NotTo(BeIdenticalTo(m))
		Expect(g.Velocity(box).Linear[2]).To(BeNumerically("<", before))
	})

	It("starts a reset object at rest", func() {
		advance(6)
		c.ResetDynamicObject(box)
		c.HandleDynamics(tick, simTime)
		// one tick of free fall from rest
		Expect(g.Velocity(box).Linear[2]).To(BeNumerically(">", -1))
	})

	It("teleports a free body moved by the host", func() {
		advance(1)
		g.Move(box, at(2, 0, 1.5))
		advance(1)
		Expect(g.WorldPose(box).Position[0]).To(BeNumerically("~", 2, 1e-6))
		Expect(g.WorldPose(box).Position[2]).To(BeNumerically("~", 1.5, 0.05))
	})

	It("rebuilds when a static shape moves", func() {
		advance(1)
		m := c.Model()
		g.Move(floor, at(0, 0, -0.5))
		advance(2)
		Expect(c.Model()).NotTo(BeIdenticalTo(m))
	})

	It("notifies observers once per pass", func() {
		var passes []int
		c.AddObserver(bridge.ObserverFunc(func(r *bridge.PassReport) {
			passes = append(passes, r.Pass)
			Expect(r.Total).To(Equal(10))
		}))
		advance(1)
		Expect(passes).To(Equal([]int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}))
	})

	Context("with a kinematic body", func() {
		var platform scene.Handle

		BeforeEach(func() {
			platform = mustAdd(g, scene.ObjectSpec{
				Name: "platform",
				Type: scene.TypeShape,
				Pose: at(-2, 0, 0.5),
				Shape: &scene.ShapeProps{
					Kinematic:       true,
					Respondable:     true,
					RespondableMask: 0xffff,
					Geoms:           []scene.Geometry{boxGeom(0.2)},
				},
			})
			newBound(planar.New())
		})

		It("interpolates toward the host pose and lands on it", func() {
			advance(1)
			s, _ := c.Registry().Shape(platform)
			Expect(s.Mode).To(Equal(registry.ModeKinematic))
			Expect(c.Description()).To(ContainSubstring(`mocap="true"`))

			var xs []float64
			c.AddObserver(bridge.ObserverFunc(func(r *bridge.PassReport) {
				for _, b := range r.Bodies {
					if b.Handle == platform {
						xs = append(xs, b.Pose.Position[0])
					}
				}
			}))
			g.Move(platform, at(-1, 0, 0.5))
			advance(1)

			Expect(xs).To(HaveLen(10))
			for i := 1; i < len(xs); i++ {
				Expect(xs[i]).To(BeNumerically(">", xs[i-1]))
			}
			Expect(xs[len(xs)-1]).To(BeNumerically("~", -1, 1e-9))
			Expect(g.WorldPose(platform).Position[0]).To(BeNumerically("~", -1, 1e-9))
			Expect(g.Velocity(platform).Linear[0]).To(BeNumerically(">", 0))
		})

		It("jumps straight to the host pose in jump mode", func() {
			cfg := config.DefaultEngine()
			cfg.Kinematic = config.KinematicJump
			newBound(planar.New(), bridge.WithConfig(cfg))
			advance(1)

			var xs []float64
			c.AddObserver(bridge.ObserverFunc(func(r *bridge.PassReport) {
				for _, b := range r.Bodies {
					if b.Handle == platform {
						xs = append(xs, b.Pose.Position[0])
					}
				}
			}))
			g.Move(platform, at(-1, 0, 0.5))
			advance(1)
			Expect(xs).NotTo(BeEmpty())
			for _, x := range xs {
				Expect(x).To(BeNumerically("~", -1, 1e-9))
			}
		})
	})

	Context("when the solver fails mid tick", func() {
		var fe *flakyEngine

		BeforeEach(func() {
			fe = &flakyEngine{Engine: planar.New()}
			newBound(fe)
		})

		It("rolls back, halts and publishes nothing", func() {
			advance(1)
			pose := g.WorldPose(box)
			fe.failAt = fe.steps + 3

			advance(1)
			Expect(ctx.Halted()).To(BeTrue())
			Expect(g.WorldPose(box)).To(Equal(pose))
			Expect(c.Warnings()).To(ContainElement(ContainSubstring("injected failure")))

			advance(3)
			Expect(g.WorldPose(box)).To(Equal(pose))
		})

		It("resumes after a reset", func() {
			advance(1)
			fe.failAt = fe.steps + 1
			advance(1)
			Expect(ctx.Halted()).To(BeTrue())

			c.Reset()
			advance(2)
			Expect(ctx.Halted()).To(BeFalse())
			Expect(c.Model()).NotTo(BeNil())
			Expect(g.WorldPose(box).Position[2]).To(BeNumerically("<", 1))
		})
	})

	Context("when the model never compiles", func() {
		BeforeEach(func() {
			newBound(brokenEngine{planar.New()})
		})

		It("gives up after the restart threshold until reset", func() {
			advance(config.RestartWarningThreshold + 2)
			Expect(c.Model()).To(BeNil())
			Expect(ctx.RestartWarning()).NotTo(BeEmpty())
			Expect(c.Warnings()[0]).To(Equal(ctx.RestartWarning()))

			c.Reset()
			Expect(ctx.RestartWarning()).To(BeEmpty())
		})
	})

	Context("with a position controlled joint", func() {
		var joint scene.Handle

		BeforeEach(func() {
			g = scene.NewMemory()
			base := mustAdd(g, scene.ObjectSpec{
				Name:  "base",
				Type:  scene.TypeShape,
				Pose:  at(0, 0, 1),
				Shape: &scene.ShapeProps{Respondable: true, RespondableMask: 0xffff, Geoms: []scene.Geometry{boxGeom(0.05)}},
			})
			// hinge about the world y axis
			joint = mustAdd(g, scene.ObjectSpec{
				Name:   "hinge",
				Type:   scene.TypeJoint,
				Parent: base,
				Pose:   dynamo.NewTransform(mgl64.Vec3{0, 0, 1}, mgl64.QuatRotate(-1.5707963267948966, mgl64.Vec3{1, 0, 0})),
				Joint: &scene.JointProps{
					Type:           scene.JointRevolute,
					Control:        scene.ControlPosition,
					TargetPosition: 0.5,
					MaxForce:       200,
					Dependency:     scene.NoHandle,
				},
			})
			mustAdd(g, scene.ObjectSpec{
				Name:   "arm",
				Type:   scene.TypeShape,
				Parent: joint,
				Pose:   at(0.3, 0, 1),
				Shape: &scene.ShapeProps{
					Dynamic:         true,
					Respondable:     true,
					RespondableMask: 0xffff,
					Density:         500,
					Geoms:           []scene.Geometry{{Primitive: scene.PrimBox, Size: mgl64.Vec3{0.25, 0.03, 0.03}, Local: dynamo.Identity()}},
				},
			})
			newBound(planar.New())
		})

		It("drives the joint toward its target and reports its state", func() {
			advance(1)
			Expect(c.Description()).To(ContainSubstring("hinge_2_act"))
			j, ok := c.Registry().Joint(joint)
			Expect(ok).To(BeTrue())
			Expect(j.Mode).To(Equal(registry.ActMixed))
			Expect(j.PID).NotTo(BeNil())

			advance(60)
			pos, _, _ := g.JointState(joint)
			Expect(pos).To(BeNumerically("~", 0.5, 0.1))
		})
	})

	It("reports the inertia of a shape without a model", func() {
		in, err := bridge.ComputeInertia(g, box, false)
		Expect(err).NotTo(HaveOccurred())
		Expect(in.Mass).To(BeNumerically("~", 8, 1e-9))
		_, err = bridge.ComputeInertia(g, 99, false)
		Expect(errors.Is(err, dynamo.ErrUnknownObject)).To(BeTrue())
	})

	Context("with injected content", func() {
		It("expands a composite into free bodies", func() {
			ok := ctx.InjectCompositeXML(bridge.CompositeInjection{
				XML:             `<geom type="sphere" size="0.02" spacing="0.1"/>`,
				Shape:           scene.NoHandle,
				Prefix:          "grain",
				RespondableMask: 0x00ff,
				Count:           [3]int{3, 1, 2},
			})
			Expect(ok).To(BeTrue())
			advance(1)

			Expect(c.Registry().Composites).To(HaveLen(1))
			Expect(c.Registry().Composites[0]).To(HaveLen(6))
			Expect(c.Description()).To(ContainSubstring("grainB2_0_1"))
			ci, _ := ctx.Composite(0)
			Expect(ci.SolverIDs).To(HaveLen(6))

			pos, count, err := c.CompositeInfo("grain", bridge.CompositePositions)
			Expect(err).NotTo(HaveOccurred())
			Expect(count).To(Equal([3]int{3, 1, 2}))
			Expect(pos).To(HaveLen(18))

			_, _, err = c.CompositeInfo("nope", bridge.CompositePositions)
			Expect(errors.Is(err, dynamo.ErrUnknownComposite)).To(BeTrue())
		})

		It("links rope elements with connect constraints", func() {
			ctx.InjectCompositeXML(bridge.CompositeInjection{
				XML:    `<geom type="capsule" size="0.01 0.02"/>`,
				Shape:  scene.NoHandle,
				Type:   "rope",
				Prefix: "rope",
				Count:  [3]int{4, 1, 1},
			})
			advance(1)
			Expect(strings.Count(c.Description(), "<connect")).To(Equal(3))
		})

		It("splices raw fragments at their anchor", func() {
			ctx.InjectXML(`<geom name="wall" type="box" size="0.1 1 1" pos="3 0 1"/>`, "worldbody", scene.NoHandle)
			advance(1)
			Expect(c.Description()).To(ContainSubstring(`name="wall"`))
			Expect(c.Model().Lookup(solver.KindGeom, "wall")).To(BeNumerically(">=", 0))
		})

		It("fails the build on an unknown anchor", func() {
			ctx.InjectXML(`<geom/>`, "nowhere", scene.NoHandle)
			advance(1)
			Expect(c.Model()).To(BeNil())
			Expect(c.Warnings()).To(ContainElement(ContainSubstring("nowhere")))
		})
	})

	Context("with particles", func() {
		It("simulates particles and writes their state back", func() {
			g.AddParticles(scene.Particle{Position: mgl64.Vec3{1, 0, 1}, Radius: 0.05, RespondableMask: 0x0101})
			c.ParticlesAdded()
			advance(3)
			Expect(c.Registry().Particles).To(HaveLen(1))
			p := g.Particles()[0]
			Expect(p.Position[2]).To(BeNumerically("<", 1))
			Expect(p.Velocity[2]).To(BeNumerically("<", 0))
		})
	})
})

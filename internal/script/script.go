// Package script runs tengo scripts against a scene before every host tick.
//
// A script is a plain tengo program executed top to bottom on each tick with
// these globals:
//
//	t      host time of the tick about to run
//	dt     host step
//	sim    functions that read and edit the scene
//	state  map that persists across ticks
package script

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/d5/tengo/v2"
	"github.com/d5/tengo/v2/stdlib"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/san-kum/dynbridge/internal/bridge"
	"github.com/san-kum/dynbridge/internal/dynamo"
	"github.com/san-kum/dynbridge/internal/scene"
)

type Runner struct {
	path     string
	compiled *tengo.Compiled
	state    *tengo.Map
	sim      *tengo.ImmutableMap
	graph    *scene.Memory
	ctx      *bridge.Context
	dt       float64
	log      *log.Logger
}

// Load compiles the script at path.
func Load(path string, g *scene.Memory, ctx *bridge.Context, dt float64, logger *log.Logger) (*Runner, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	r, err := New(src, g, ctx, dt, logger)
	if err != nil {
		return nil, fmt.Errorf("script %s: %w", path, err)
	}
	r.path = path
	return r, nil
}

func New(src []byte, g *scene.Memory, ctx *bridge.Context, dt float64, logger *log.Logger) (*Runner, error) {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	s := tengo.NewScript(src)
	_ = s.Add("t", 0.0)
	_ = s.Add("dt", dt)
	_ = s.Add("sim", map[string]any{})
	_ = s.Add("state", map[string]any{})
	s.SetImports(stdlib.GetModuleMap(stdlib.AllModuleNames()...))

	compiled, err := s.Compile()
	if err != nil {
		return nil, err
	}
	r := &Runner{
		compiled: compiled,
		state:    &tengo.Map{Value: map[string]tengo.Object{}},
		graph:    g,
		ctx:      ctx,
		dt:       dt,
		log:      logger,
	}
	r.sim = r.buildSim()
	return r, nil
}

// BeforeTick runs the script once with t set to the tick time.
func (r *Runner) BeforeTick(t float64) error {
	if err := r.compiled.Set("t", t); err != nil {
		return err
	}
	if err := r.compiled.Set("dt", r.dt); err != nil {
		return err
	}
	if err := r.compiled.Set("sim", r.sim); err != nil {
		return err
	}
	if err := r.compiled.Set("state", r.state); err != nil {
		return err
	}
	return r.compiled.Run()
}

// State returns a copy of the persistent script state.
func (r *Runner) State() map[string]any {
	out := make(map[string]any, len(r.state.Value))
	for k, v := range r.state.Value {
		out[k] = tengo.ToInterface(v)
	}
	return out
}

func (r *Runner) buildSim() *tengo.ImmutableMap {
	values := map[string]tengo.Object{}

	values["move"] = r.fn("move", 4, func(args []tengo.Object) (tengo.Object, error) {
		h, ok := r.lookup(args[0])
		if !ok {
			return tengo.FalseValue, nil
		}
		p, err := vecArgs("move", args[1:])
		if err != nil {
			return nil, err
		}
		tr := r.graph.WorldPose(h)
		tr.Position = p
		r.graph.Move(h, tr)
		return tengo.TrueValue, nil
	})

	values["push"] = r.fn("push", 4, func(args []tengo.Object) (tengo.Object, error) {
		h, ok := r.lookup(args[0])
		if !ok {
			return tengo.FalseValue, nil
		}
		v, err := vecArgs("push", args[1:])
		if err != nil {
			return nil, err
		}
		vel := r.graph.Velocity(h)
		vel.Linear = v
		r.graph.Push(h, vel)
		return tengo.TrueValue, nil
	})

	jointSetter := func(name string, set func(scene.Handle, float64)) tengo.Object {
		return r.fn(name, 2, func(args []tengo.Object) (tengo.Object, error) {
			h, ok := r.lookup(args[0])
			if !ok {
				return tengo.FalseValue, nil
			}
			if _, isJoint := r.graph.Joint(h); !isJoint {
				return tengo.FalseValue, nil
			}
			v, ok := tengo.ToFloat64(args[1])
			if !ok {
				return nil, tengo.ErrInvalidArgumentType{Name: "second", Expected: "float", Found: args[1].TypeName()}
			}
			set(h, v)
			return tengo.TrueValue, nil
		})
	}
	values["set_target_velocity"] = jointSetter("set_target_velocity", r.graph.SetJointTargetVelocity)
	values["set_target_position"] = jointSetter("set_target_position", r.graph.SetJointTargetPosition)
	values["set_force"] = jointSetter("set_force", r.graph.SetJointForce)

	values["set_gains"] = r.fn("set_gains", 4, func(args []tengo.Object) (tengo.Object, error) {
		h, ok := r.lookup(args[0])
		if !ok {
			return tengo.FalseValue, nil
		}
		if _, isJoint := r.graph.Joint(h); !isJoint {
			return tengo.FalseValue, nil
		}
		k, err := vecArgs("set_gains", args[1:])
		if err != nil {
			return nil, err
		}
		r.graph.SetJointGains(h, k[0], k[1], k[2])
		return tengo.TrueValue, nil
	})

	values["position"] = r.fn("position", 1, func(args []tengo.Object) (tengo.Object, error) {
		h, ok := r.lookup(args[0])
		if !ok {
			return tengo.UndefinedValue, nil
		}
		p := r.graph.WorldPose(h).Position
		return floats(p[:]...), nil
	})

	values["velocity"] = r.fn("velocity", 1, func(args []tengo.Object) (tengo.Object, error) {
		h, ok := r.lookup(args[0])
		if !ok {
			return tengo.UndefinedValue, nil
		}
		v := r.graph.Velocity(h).Linear
		return floats(v[:]...), nil
	})

	values["joint"] = r.fn("joint", 1, func(args []tengo.Object) (tengo.Object, error) {
		h, ok := r.lookup(args[0])
		if !ok {
			return tengo.UndefinedValue, nil
		}
		if _, isJoint := r.graph.Joint(h); !isJoint {
			return tengo.UndefinedValue, nil
		}
		pos, vel, force := r.graph.JointState(h)
		return floats(pos, vel, force), nil
	})

	// inject(xml, element[, anchor object name])
	values["inject"] = &tengo.UserFunction{Name: "inject", Value: func(args ...tengo.Object) (tengo.Object, error) {
		if len(args) < 2 || len(args) > 3 {
			return nil, tengo.ErrWrongNumArguments
		}
		xml, _ := tengo.ToString(args[0])
		element, _ := tengo.ToString(args[1])
		if strings.TrimSpace(xml) == "" || element == "" {
			return tengo.FalseValue, nil
		}
		anchor := scene.NoHandle
		if len(args) == 3 {
			h, ok := r.lookup(args[2])
			if !ok {
				return tengo.FalseValue, nil
			}
			anchor = h
		}
		r.ctx.InjectXML(xml, element, anchor)
		return tengo.TrueValue, nil
	}}

	values["log"] = &tengo.UserFunction{Name: "log", Value: func(args ...tengo.Object) (tengo.Object, error) {
		parts := make([]string, 0, len(args))
		for _, a := range args {
			s, _ := tengo.ToString(a)
			parts = append(parts, s)
		}
		r.log.Info(strings.Join(parts, " "), "script", r.path)
		return tengo.UndefinedValue, nil
	}}

	return &tengo.ImmutableMap{Value: values}
}

func (r *Runner) fn(name string, n int, body func(args []tengo.Object) (tengo.Object, error)) *tengo.UserFunction {
	return &tengo.UserFunction{Name: name, Value: func(args ...tengo.Object) (tengo.Object, error) {
		if len(args) != n {
			return nil, tengo.ErrWrongNumArguments
		}
		return body(args)
	}}
}

func (r *Runner) lookup(obj tengo.Object) (scene.Handle, bool) {
	name, ok := tengo.ToString(obj)
	if !ok || name == "" {
		return scene.NoHandle, false
	}
	return r.graph.Lookup(name)
}

func vecArgs(fn string, args []tengo.Object) (mgl64.Vec3, error) {
	var v mgl64.Vec3
	for i, a := range args {
		f, ok := tengo.ToFloat64(a)
		if !ok {
			return v, fmt.Errorf("%s: argument %d: %w", fn, i+2, dynamo.ErrInvalidParams)
		}
		v[i] = f
	}
	return v, nil
}

func floats(vs ...float64) *tengo.Array {
	out := make([]tengo.Object, len(vs))
	for i, v := range vs {
		out[i] = &tengo.Float{Value: v}
	}
	return &tengo.Array{Value: out}
}

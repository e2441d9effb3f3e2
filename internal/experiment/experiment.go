// Package experiment drives a bridge container from the host side: it owns
// the scene, ticks the container at a fixed host step and records a trace.
package experiment

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/charmbracelet/log"
	"github.com/san-kum/dynbridge/internal/bridge"
	"github.com/san-kum/dynbridge/internal/config"
	"github.com/san-kum/dynbridge/internal/dynamo"
	"github.com/san-kum/dynbridge/internal/scene"
	"github.com/san-kum/dynbridge/internal/solver"
)

type Config struct {
	Name     string
	Solver   string
	Dt       float64
	Duration float64
	WorkDir  string
	Engine   config.EngineConfig
}

// Hook runs on the host goroutine before every tick. Scripts and file
// watchers edit the scene through hooks.
type Hook interface {
	BeforeTick(t float64) error
}

type HookFunc func(t float64) error

func (f HookFunc) BeforeTick(t float64) error { return f(t) }

type Experiment struct {
	cfg   Config
	graph *scene.Memory
	log   *log.Logger

	ctx       *bridge.Context
	container *bridge.Container
	metrics   []Metric
	hooks     []Hook

	bodies []scene.Handle
	joints []scene.Handle
	t      float64
}

func New(cfg Config, g *scene.Memory, logger *log.Logger) *Experiment {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Experiment{
		cfg:   cfg,
		graph: g,
		log:   logger,
	}
}

// Setup binds a fresh container to the scene. Every metric observes every
// solver pass.
func (e *Experiment) Setup(engine solver.Engine, metrics []Metric) error {
	if e.cfg.Dt <= 0 {
		return fmt.Errorf("dt %g: %w", e.cfg.Dt, dynamo.ErrInvalidParams)
	}
	opts := []bridge.Option{
		bridge.WithLogger(e.log.With("solver", engine.Name())),
		bridge.WithConfig(e.cfg.Engine),
	}
	if e.cfg.WorkDir != "" {
		opts = append(opts, bridge.WithWorkDir(e.cfg.WorkDir))
	}
	e.ctx = bridge.NewContext()
	e.container = bridge.New(e.ctx, e.graph, engine, opts...)
	if err := e.container.Configure(e.cfg.Engine); err != nil {
		return err
	}
	e.metrics = metrics
	e.container.AddObserver(bridge.ObserverFunc(func(r *bridge.PassReport) {
		for _, m := range e.metrics {
			m.Observe(r)
		}
	}))
	e.track()
	return nil
}

// track picks the objects recorded in the trace: moving shapes and
// actuated joints, in handle order.
func (e *Experiment) track() {
	e.bodies, e.joints = nil, nil
	for _, h := range e.graph.Handles() {
		if p, ok := e.graph.Shape(h); ok && (p.Dynamic || p.Kinematic) {
			e.bodies = append(e.bodies, h)
		}
		if p, ok := e.graph.Joint(h); ok && p.Control != scene.ControlFree {
			e.joints = append(e.joints, h)
		}
	}
}

func (e *Experiment) AddHook(h Hook) {
	e.hooks = append(e.hooks, h)
}

// Step runs the hooks and one container tick. It reports dynamo.ErrHalted
// once the container has halted.
func (e *Experiment) Step() error {
	if e.container == nil {
		return fmt.Errorf("experiment not setup")
	}
	for _, h := range e.hooks {
		if err := h.BeforeTick(e.t); err != nil {
			return fmt.Errorf("hook at t=%g: %w", e.t, err)
		}
	}
	e.container.HandleDynamics(e.cfg.Dt, e.t)
	e.t += e.cfg.Dt
	if e.ctx.Halted() {
		return dynamo.ErrHalted
	}
	return nil
}

// Run ticks until the configured duration, the context is cancelled or the
// container halts. A halted run still returns its partial trace.
func (e *Experiment) Run(ctx context.Context) (*Result, error) {
	if e.container == nil {
		return nil, fmt.Errorf("experiment not setup")
	}
	steps := int(math.Round(e.cfg.Duration / e.cfg.Dt))
	res := &Result{
		Columns:  e.columns(),
		Joints:   e.jointColumns(),
		States:   make([][]float64, 0, steps+1),
		Controls: make([][]float64, 0, steps+1),
		Times:    make([]float64, 0, steps+1),
		Metrics:  make(map[string]float64),
	}
	for _, m := range e.metrics {
		m.Reset()
	}
	e.record(res)

	var runErr error
	for i := 0; i < steps; i++ {
		select {
		case <-ctx.Done():
			runErr = ctx.Err()
		default:
		}
		if runErr != nil {
			break
		}
		if err := e.Step(); err != nil {
			if errors.Is(err, dynamo.ErrHalted) {
				res.Halted = true
				e.log.Warn("run halted", "t", e.t)
				break
			}
			runErr = err
			break
		}
		e.record(res)
	}

	for _, m := range e.metrics {
		res.Metrics[m.Name()] = m.Value()
	}
	res.Warnings = e.container.Warnings()
	return res, runErr
}

func (e *Experiment) columns() []string {
	var cols []string
	for _, h := range e.bodies {
		name := e.graph.Name(h)
		for _, c := range []string{"x", "y", "z", "vx", "vy", "vz"} {
			cols = append(cols, name+"."+c)
		}
	}
	return cols
}

func (e *Experiment) jointColumns() []string {
	var cols []string
	for _, h := range e.joints {
		cols = append(cols, e.graph.Name(h))
	}
	return cols
}

func (e *Experiment) record(res *Result) {
	row := make([]float64, 0, 6*len(e.bodies))
	for _, h := range e.bodies {
		p := e.graph.WorldPose(h).Position
		v := e.graph.Velocity(h).Linear
		row = append(row, p[0], p[1], p[2], v[0], v[1], v[2])
	}
	u := make([]float64, 0, len(e.joints))
	for _, h := range e.joints {
		_, _, f := e.graph.JointState(h)
		u = append(u, f)
	}
	res.Times = append(res.Times, e.t)
	res.States = append(res.States, row)
	res.Controls = append(res.Controls, u)
}

// Reset restarts the run from the current scene: the container forgets its
// model and halted state, metrics and the clock start over.
func (e *Experiment) Reset() {
	if e.container == nil {
		return
	}
	e.container.Reset()
	for _, m := range e.metrics {
		m.Reset()
	}
	e.t = 0
}

// Close releases the container and every hook that is an io.Closer.
func (e *Experiment) Close() error {
	var errs []error
	for _, h := range e.hooks {
		if c, ok := h.(io.Closer); ok {
			errs = append(errs, c.Close())
		}
	}
	e.hooks = nil
	if e.container != nil {
		errs = append(errs, e.container.Close())
	}
	return errors.Join(errs...)
}

func (e *Experiment) Time() float64 { return e.t }
func (e *Experiment) Scene() *scene.Memory { return e.graph }
func (e *Experiment) Context() *bridge.Context { return e.ctx }
func (e *Experiment) Container() *bridge.Container { return e.container }
func (e *Experiment) Config() Config { return e.cfg }
func (e *Experiment) Tracked() []scene.Handle { return append([]scene.Handle(nil), e.bodies...) }
func (e *Experiment) Metrics() []Metric { return e.metrics }

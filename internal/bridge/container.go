package bridge

import (
	"fmt"
	"io"
	"maps"
	"os"

	"github.com/charmbracelet/log"
	"github.com/san-kum/dynbridge/internal/config"
	"github.com/san-kum/dynbridge/internal/dynamo"
	"github.com/san-kum/dynbridge/internal/registry"
	"github.com/san-kum/dynbridge/internal/scene"
	"github.com/san-kum/dynbridge/internal/solver"
)

// Container owns one solver model built from a scene graph. It is driven
// from a single goroutine; solver callbacks run on that goroutine too.
type Container struct {
	ctx    *Context
	graph  scene.Graph
	engine solver.Engine
	log    *log.Logger
	cfg    config.EngineConfig

	workDir    string
	ownWorkDir bool

	model       solver.Model
	reg         *registry.Registry
	description string

	// counters sampled at the last successful build
	counters     scene.Counters
	modification int
	trigger      int
	initialized  bool
	rebuild      bool
	sceneReset   bool
	dynamicReset map[scene.Handle]bool

	tick      *tick
	published map[scene.Handle]dynamo.Velocity
	stepErr   error
	observers []PassObserver
	warnings  []string
}

type Option func(*Container)

func WithLogger(l *log.Logger) Option {
	return func(c *Container) { c.log = l }
}

// WithWorkDir sets the folder height field files are written to.
func WithWorkDir(dir string) Option {
	return func(c *Container) { c.workDir = dir }
}

func WithConfig(cfg config.EngineConfig) Option {
	return func(c *Container) { c.cfg = cfg }
}

func New(ctx *Context, g scene.Graph, e solver.Engine, opts ...Option) *Container {
	c := &Container{
		ctx:          ctx,
		graph:        g,
		engine:       e,
		log:          log.New(io.Discard),
		cfg:          config.DefaultEngine(),
		dynamicReset: make(map[scene.Handle]bool),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Init decodes the host parameter blocks. Mass dividers configured earlier
// are kept. A changed rebuild trigger forces a rebuild.
func (c *Container) Init(fp [20]float64, ip [20]int) error {
	e, err := config.FromParams(fp, ip)
	if err != nil {
		return err
	}
	e.MassDividers = c.cfg.MassDividers
	return c.Configure(e)
}

func (c *Container) Configure(e config.EngineConfig) error {
	if err := e.Validate(); err != nil {
		return err
	}
	if c.initialized && (e.RebuildTrigger != c.trigger || structural(c.cfg, e)) {
		c.rebuild = true
	}
	c.cfg = e
	c.trigger = e.RebuildTrigger
	c.initialized = true
	c.log.Debug("configured", "timestep", e.Timestep, "smoothing", e.Smoothing, "kinematic", e.Kinematic)
	return nil
}

// structural reports whether two configs compile to different models.
func structural(a, b config.EngineConfig) bool {
	return a.Timestep != b.Timestep || a.Gravity != b.Gravity || a.Iterations != b.Iterations ||
		a.RobustInertia != b.RobustInertia || a.Kinematic != b.Kinematic ||
		a.MaxForce != b.MaxForce || !maps.Equal(a.MassDividers, b.MassDividers)
}

func (c *Container) Config() config.EngineConfig {
	return c.cfg
}

func (c *Container) EngineInfo() string {
	return fmt.Sprintf("%s %s", c.engine.Name(), c.engine.Version())
}

// IsDynamicContentAvailable reports whether the current model moves anything.
func (c *Container) IsDynamicContentAvailable() bool {
	if c.model == nil || c.reg == nil {
		return false
	}
	if len(c.reg.Particles) > 0 || len(c.reg.Composites) > 0 {
		return true
	}
	for _, s := range c.reg.Shapes {
		if s.Mode == registry.ModeFree || s.Mode == registry.ModeKinematic {
			return true
		}
	}
	return false
}

// ParticlesAdded flags the scene's particle set as changed.
func (c *Container) ParticlesAdded() {
	c.ctx.particlesChanged = true
}

func (c *Container) RequestRebuild() {
	c.rebuild = true
}

// ResetDynamicObject rebuilds with h starting from its scene pose at rest.
func (c *Container) ResetDynamicObject(h scene.Handle) {
	c.dynamicReset[h] = true
	c.rebuild = true
}

// Reset clears the halted state and restart bookkeeping of the shared
// context and drops the model so the next tick rebuilds from scratch.
func (c *Container) Reset() {
	c.ctx.Resume()
	c.model = nil
	c.reg = nil
	c.warnings = nil
}

func (c *Container) Description() string {
	return c.description
}

func (c *Container) Model() solver.Model {
	return c.model
}

func (c *Container) Registry() *registry.Registry {
	return c.reg
}

// Warnings returns the warnings collected so far, the persistent restart
// warning first.
func (c *Container) Warnings() []string {
	var out []string
	if w := c.ctx.RestartWarning(); w != "" {
		out = append(out, w)
	}
	return append(out, c.warnings...)
}

func (c *Container) warn(msg string) {
	for _, w := range c.warnings {
		if w == msg {
			return
		}
	}
	c.warnings = append(c.warnings, msg)
}

func (c *Container) AddObserver(o PassObserver) {
	c.observers = append(c.observers, o)
}

// Close drops the model and removes a work folder created by the container.
func (c *Container) Close() error {
	c.model = nil
	c.reg = nil
	if c.ownWorkDir && c.workDir != "" {
		dir := c.workDir
		c.workDir, c.ownWorkDir = "", false
		return os.RemoveAll(dir)
	}
	return nil
}

func (c *Container) folder() (string, error) {
	if c.workDir != "" {
		return c.workDir, nil
	}
	dir, err := os.MkdirTemp("", "dynbridge-")
	if err != nil {
		return "", err
	}
	c.workDir, c.ownWorkDir = dir, true
	return dir, nil
}

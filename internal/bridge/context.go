// Package bridge maps a scene graph onto a solver model, steps it and
// writes the results back into the scene.
package bridge

import (
	"github.com/san-kum/dynbridge/internal/scene"
)

// Injection is a raw description fragment spliced at an anchor element.
// Object selects the body of a shape when Element is "body".
type Injection struct {
	XML     string
	Element string
	Object  scene.Handle
}

// CompositeInjection expands a geom template into a Count[0]*Count[1]*Count[2]
// grid of free bodies named after Prefix.
type CompositeInjection struct {
	XML     string
	Shape   scene.Handle
	Element string
	// Type is "grid" for independent bodies or "rope" for bodies connected
	// along the first axis.
	Type            string
	RespondableMask int
	Grow            float64
	Prefix          string
	Count           [3]int
	// SolverIDs holds the solver body of every generated element, filled in
	// by the last successful build.
	SolverIDs []int
}

// Size is the number of generated elements.
func (ci *CompositeInjection) Size() int {
	return ci.Count[0] * ci.Count[1] * ci.Count[2]
}

// Context is the state shared by every build of a process: queued
// injections, the halted flag and restart bookkeeping. The host owns one and
// hands it to its Container.
type Context struct {
	injections        []Injection
	composites        []*CompositeInjection
	injectionsChanged bool
	particlesChanged  bool

	halted         bool
	restarts       int
	restartWarning string
	rebuild        bool
}

func NewContext() *Context {
	return &Context{}
}

func (c *Context) InjectXML(xml, element string, object scene.Handle) {
	c.injections = append(c.injections, Injection{XML: xml, Element: element, Object: object})
	c.injectionsChanged = true
}

// InjectCompositeXML queues a composite. Re-injecting a known prefix is
// ignored until particles change; an invalid request reports false.
func (c *Context) InjectCompositeXML(ci CompositeInjection) bool {
	if ci.Prefix == "" || ci.Size() <= 0 || ci.Count[0] < 0 || ci.Count[1] < 0 {
		return false
	}
	if ci.Grow == 0 {
		ci.Grow = 1
	}
	if ci.Type == "" {
		ci.Type = "grid"
	}
	ci.SolverIDs = nil
	if i := c.CompositeIndexFromPrefix(ci.Prefix); i >= 0 {
		if !c.particlesChanged {
			return false
		}
		c.composites[i] = &ci
	} else {
		c.composites = append(c.composites, &ci)
	}
	c.injectionsChanged = true
	return true
}

// CompositeIndexFromPrefix returns the position of the composite with the
// given prefix, or -1.
func (c *Context) CompositeIndexFromPrefix(prefix string) int {
	for i, ci := range c.composites {
		if ci.Prefix == prefix {
			return i
		}
	}
	return -1
}

func (c *Context) Composite(i int) (*CompositeInjection, bool) {
	if i < 0 || i >= len(c.composites) {
		return nil, false
	}
	return c.composites[i], true
}

func (c *Context) Injections() []Injection {
	return append([]Injection(nil), c.injections...)
}

// SetInjections replaces the raw fragments and keeps the composites.
func (c *Context) SetInjections(list []Injection) {
	c.injections = append([]Injection(nil), list...)
	c.injectionsChanged = true
}

func (c *Context) ClearInjections() {
	if len(c.injections) > 0 || len(c.composites) > 0 {
		c.injectionsChanged = true
	}
	c.injections = nil
	c.composites = nil
}

func (c *Context) Halted() bool {
	return c.halted
}

func (c *Context) halt() {
	c.halted = true
}

// Resume clears the halted flag and the restart counter and requests a
// rebuild on the next tick.
func (c *Context) Resume() {
	c.halted = false
	c.restarts = 0
	c.restartWarning = ""
	c.rebuild = true
}

// Reset is Resume plus dropping every queued injection.
func (c *Context) Reset() {
	c.ClearInjections()
	c.Resume()
}

func (c *Context) RestartWarning() string {
	return c.restartWarning
}

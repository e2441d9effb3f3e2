package bridge

import "github.com/san-kum/dynbridge/internal/scene"

type ChangeKind int

const (
	NoChange ChangeKind = iota
	// SoftChange re-synchronizes scene edits into the current model.
	SoftChange
	// HardChange discards the model and registry.
	HardChange
)

func (k ChangeKind) String() string {
	return [...]string{"none", "soft", "hard"}[k]
}

// hasContentChanged compares the scene counters and pending flags with the
// values sampled at the last successful build.
func (c *Container) hasContentChanged() ChangeKind {
	if c.model == nil || c.reg == nil {
		return HardChange
	}
	now := c.graph.Counters()
	switch {
	case now.Creation != c.counters.Creation,
		now.Destruction != c.counters.Destruction,
		now.Hierarchy != c.counters.Hierarchy:
		return HardChange
	case now.Resets != c.counters.Resets:
		c.sceneReset = true
		return HardChange
	case c.ctx.injectionsChanged, c.ctx.particlesChanged, c.ctx.rebuild, c.rebuild:
		return HardChange
	case now.Modification != c.modification:
		return SoftChange
	}
	return NoChange
}

// sample records the counters a successful build was made from.
func (c *Container) sample() {
	c.counters = c.graph.Counters()
	c.modification = c.counters.Modification
	c.ctx.injectionsChanged = false
	c.ctx.particlesChanged = false
	c.ctx.rebuild = false
	c.rebuild = false
	c.sceneReset = false
	c.dynamicReset = make(map[scene.Handle]bool)
}

package bridge

import (
	"errors"
	"fmt"
	"math"

	"github.com/san-kum/dynbridge/internal/config"
	"github.com/san-kum/dynbridge/internal/dynamo"
	"github.com/san-kum/dynbridge/internal/registry"
)

// HandleDynamics advances the model by dt and publishes the result. It is a
// no-op while halted or without a model. A fatal solver error rolls the
// model back to the start of the call, halts, and publishes nothing.
func (c *Container) HandleDynamics(dt, simulationTime float64) {
	if c.ctx.Halted() {
		return
	}
	change := c.hasContentChanged()
	if change == HardChange {
		c.rebuildWorld(dt, simulationTime)
	}
	if c.model == nil {
		return
	}
	passes := int(math.Round(dt / c.model.Timestep()))
	if passes < 1 {
		passes = 1
	}
	snap := c.model.Snapshot()
	c.stepErr = nil
	c.tick = newTick(passes)
	c.updateWorldFromScene(change == SoftChange)
	for pass := 0; pass < passes; pass++ {
		c.handleKinematicBodiesStep(pass, passes)
		if err := c.stepDynamics(); err != nil {
			c.model.Restore(snap)
			c.ctx.halt()
			c.tick = nil
			c.log.Error("simulation halted", "time", simulationTime, "pass", pass, "err", err)
			c.warn(err.Error())
			return
		}
		c.reportWorld(simulationTime, pass, passes)
	}
	c.publish()
	c.modification = c.graph.Counters().Modification
	c.tick = nil
}

// rebuildWorld attempts a build, counting consecutive failures. Past the
// restart threshold attempts stop until the context is reset.
func (c *Container) rebuildWorld(dt, simulationTime float64) {
	if c.ctx.restartWarning != "" {
		return
	}
	err := c.buildWorld(dt, simulationTime, c.model != nil)
	if err == nil {
		return
	}
	c.ctx.restarts++
	c.log.Error("model build failed", "attempt", c.ctx.restarts, "err", err)
	var be *dynamo.BuildError
	if errors.As(err, &be) && be.Description != "" {
		c.log.Debug("rejected description", "xml", be.Description)
	}
	c.warn(err.Error())
	if c.ctx.restarts >= c.cfg.RestartThreshold {
		c.ctx.restartWarning = fmt.Sprintf("model build failed %d times in a row, giving up until reset: %v", c.ctx.restarts, err)
		c.log.Warn("rebuild attempts exhausted", "attempts", c.ctx.restarts)
	}
}

// stepDynamics runs one solver step. Panics from the solver become errors.
func (c *Container) stepDynamics() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("solver panic: %v: %w", r, dynamo.ErrHalted)
		}
	}()
	if err := c.model.Step(); err != nil {
		return err
	}
	return c.stepErr
}

// handleKinematicBodiesStep pushes the interpolated pose of every kinematic
// shape for this pass; the last pass lands exactly on the goal.
func (c *Container) handleKinematicBodiesStep(pass, total int) {
	for _, s := range c.reg.Shapes {
		if s.Mode != registry.ModeKinematic {
			continue
		}
		from, to := float64(pass)/float64(total), float64(pass+1)/float64(total)
		if c.cfg.Kinematic == config.KinematicJump {
			from, to = 1, 1
		}
		prev := dynamo.Interpolate(s.Start, s.Goal, from)
		pose := dynamo.Interpolate(s.Start, s.Goal, to)
		vel := dynamo.VelocityBetween(prev, pose, c.model.Timestep())
		c.model.SetBodyState(s.Body, pose, vel)
		c.tick.kinematic[s] = sample{pose: pose, vel: vel}
	}
}

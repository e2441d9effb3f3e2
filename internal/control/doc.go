// Package control provides the joint control laws applied once per solver pass.
//
//   - [ForceTorque]: clamped force/torque passthrough
//   - [Mixed]: velocity tracking through inverse dynamics
//   - [DependentTarget]: velocity setpoint of a joint coupled to another by a polynomial
//   - [PID]: position error to velocity setpoint
//
// # Usage
//
//	u := control.Mixed(j, targetVel, 0, control.Limits{MaxForce: 50, RateLimit: 10}, dt)
package control

// Package dynamo provides the value types shared by the scene side and the
// solver side of the bridge.
//
//   - [Transform]: rigid pose (position + unit quaternion)
//   - [Polynomial]: bounded-degree coupling polynomial for dependent joints
//   - [WrapDifference]: signed angle difference wrapped into (-π, π]
//
// # Example
//
//	start := dynamo.Identity()
//	goal := dynamo.NewTransform(mgl64.Vec3{1, 0, 0}, mgl64.QuatIdent())
//	mid := dynamo.Interpolate(start, goal, 0.5)
//
// All types are plain values and safe to copy.
package dynamo

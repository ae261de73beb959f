package physics

import "math"

const (
	maxIterations      = 3
	groundCheckDepth   = 0.05
	overbounce         = 1.001
	groundVelocityEps  = 0.5
	toiEpsilon         = 1e-4
	minDisplacement    = 1e-4
	stepIncrement      = 0.1
)

// ResolveResult is the outcome of sweeping an AABB through the world by a
// displacement: the resolved center, the resolved residual velocity, the
// collision normal (zero if none), the penetration depth (zero if none),
// and whether any collision occurred.
type ResolveResult struct {
	Position   Vec3
	Velocity   Vec3
	Normal     Vec3
	Penetration float32
	Collided   bool
}

// Resolve sweeps bounds by displacement d against w, iterating up to
// MAX_ITERATIONS times to slide along surfaces it hits.
func Resolve(bounds AABB, d Vec3, w World) ResolveResult {
	final := ResolveResult{Velocity: d}

	remaining := d
	current := bounds

	for i := 0; i < maxIterations; i++ {
		if remaining.LengthSq() <= 0 {
			break
		}

		iter := sweepOnce(current, remaining, w)
		if !iter.Collided {
			current = current.Translate(remaining)
			final.Position = current.Center()
			final.Velocity = remaining
			return final
		}

		current = FromCenterExtents(iter.Position, current.Extents())
		remaining = iter.Velocity
		final = iter
	}

	final.Position = current.Center()
	return final
}

// sweepOnce performs one iteration of the sweep/resolve algorithm: either
// penetration resolution (displacement too small to sweep) or a slab-test
// sweep against every solid block in the swept volume.
func sweepOnce(bounds AABB, d Vec3, w World) ResolveResult {
	result := ResolveResult{Velocity: d}

	if d.LengthSq() <= 0 {
		result.Position = bounds.Center()
		return result
	}

	center := bounds.Center()
	extents := bounds.Extents()

	if d.LengthSq() < minDisplacement*minDisplacement {
		return resolvePenetration(center, extents, d, w)
	}

	expanded := bounds.Expand(d)
	solids := w.SurroundingBlocks(expanded)

	hitTime := float32(1.0)
	hitNormal := Vec3{}
	hit := false

	movingMin := center.Sub(extents)
	movingMax := center.Add(extents)

	for _, pos := range solids {
		blockAABB := w.BlockAABB(pos.X, pos.Y, pos.Z)

		enter := float32(0)
		exit := float32(1)
		var normal Vec3
		collidesOnAllAxes := true

		for axis := 0; axis < 3; axis++ {
			minV := movingMin.Component(axis)
			maxV := movingMax.Component(axis)
			blockMin := blockAABB.Min.Component(axis)
			blockMax := blockAABB.Max.Component(axis)
			dir := d.Component(axis)

			if float32(math.Abs(float64(dir))) < toiEpsilon {
				if maxV <= blockMin || minV >= blockMax {
					enter = 1
					exit = 0
					collidesOnAllAxes = false
					break
				}
				continue
			}

			invDir := 1 / dir
			t1 := (blockMin - maxV) * invDir
			t2 := (blockMax - minV) * invDir

			slabEnter := minf(t1, t2)
			slabExit := maxf(t1, t2)

			if slabEnter > enter {
				enter = slabEnter
				normal = Vec3{}
				if dir > 0 {
					normal.SetComponent(axis, -1)
				} else {
					normal.SetComponent(axis, 1)
				}
			}
			if slabExit < exit {
				exit = slabExit
			}

			if enter > exit || exit < 0 || enter > 1 {
				collidesOnAllAxes = false
				break
			}
		}

		if collidesOnAllAxes && enter <= exit && enter >= 0 && enter < hitTime {
			hitTime = enter
			hitNormal = normal
			hit = true
		}
	}

	if !hit {
		result.Position = center.Add(d)
		result.Velocity = d
		return result
	}

	advance := float32(math.Max(float64(hitTime-toiEpsilon), 0))
	move := d.Scale(advance)
	newCenter := center.Add(move)

	result.Collided = true
	result.Normal = hitNormal
	result.Position = newCenter

	remainingAfterHit := d.Sub(move)
	remainingAfterHit = remainingAfterHit.Sub(hitNormal.Scale(remainingAfterHit.Dot(hitNormal)))
	result.Velocity = clipVelocity(remainingAfterHit, hitNormal, overbounce)

	return result
}

// resolvePenetration handles the "displacement too small to sweep" branch:
// move the box by d (a plain translation; the box is not expanded into a
// swept volume), find the solid block with the smallest face-separation
// distance (ties broken by axis declaration order X-,X+,Y-,Y+,Z-,Z+), push
// out along that normal, and clip residual velocity.
func resolvePenetration(center, extents, d Vec3, w World) ResolveResult {
	moved := FromCenterExtents(center.Add(d), extents)
	solids := w.SurroundingBlocks(moved)

	earliestPenetration := float32(math.MaxFloat32)
	var bestNormal Vec3
	resolvedPosition := moved.Center()

	for _, pos := range solids {
		blockAABB := w.BlockAABB(pos.X, pos.Y, pos.Z)
		if !moved.Intersects(blockAABB) {
			continue
		}

		normal, penetration := collisionNormal(moved, blockAABB)
		if penetration < earliestPenetration {
			earliestPenetration = penetration
			bestNormal = normal
			resolvedPosition = moved.Center().Add(normal.Scale(penetration))
		}
	}

	if earliestPenetration < math.MaxFloat32 {
		return ResolveResult{
			Position:    resolvedPosition,
			Velocity:    clipVelocity(d, bestNormal, overbounce),
			Normal:      bestNormal,
			Penetration: earliestPenetration,
			Collided:    true,
		}
	}

	return ResolveResult{Position: moved.Center(), Velocity: d}
}

// collisionNormal returns the face-separation normal and depth for the
// smallest of the six axis-aligned penetration distances between moving
// and block, with ties broken in X-,X+,Y-,Y+,Z-,Z+ declaration order.
func collisionNormal(moving, block AABB) (Vec3, float32) {
	penX1 := moving.Max.X - block.Min.X
	penX2 := block.Max.X - moving.Min.X
	penY1 := moving.Max.Y - block.Min.Y
	penY2 := block.Max.Y - moving.Min.Y
	penZ1 := moving.Max.Z - block.Min.Z
	penZ2 := block.Max.Z - moving.Min.Z

	min := penX1
	normal := Vec3{X: -1}

	if penX2 < min {
		min = penX2
		normal = Vec3{X: 1}
	}
	if penY1 < min {
		min = penY1
		normal = Vec3{Y: -1}
	}
	if penY2 < min {
		min = penY2
		normal = Vec3{Y: 1}
	}
	if penZ1 < min {
		min = penZ1
		normal = Vec3{Z: -1}
	}
	if penZ2 < min {
		min = penZ2
		normal = Vec3{Z: 1}
	}
	return normal, min
}

// clipVelocity subtracts the component of velocity along normal, scaled by
// overbounce, zeroing the result if it's negligibly small.
func clipVelocity(velocity, normal Vec3, overbounce float32) Vec3 {
	backoff := velocity.Dot(normal) * overbounce
	clipped := velocity.Sub(normal.Scale(backoff))
	if clipped.LengthSq() < 0.0001 {
		return Vec3{}
	}
	return clipped
}

// Grounded reports whether bounds is resting on a solid block: probe
// downward by groundCheckDepth and require velocity.Y <= groundVelocityEps.
func Grounded(bounds AABB, velocity Vec3, w World) bool {
	if velocity.Y > groundVelocityEps {
		return false
	}

	probe := bounds.Translate(Vec3{Y: -groundCheckDepth})
	for _, pos := range w.SurroundingBlocks(probe) {
		blockAABB := w.BlockAABB(pos.X, pos.Y, pos.Z)
		if probe.Intersects(blockAABB) {
			return true
		}
	}
	return false
}

// StepUp attempts to lift bounds in stepIncrement increments (up to
// maxStepHeight) to clear a low obstacle, committing the first lift that
// produces a non-overlapping box. Only attempted when velocity.Y is near
// zero, matching the horizontal-only stair-stepping the original targets.
func StepUp(bounds *AABB, velocity Vec3, w World, maxStepHeight float32) bool {
	if float32(math.Abs(float64(velocity.Y))) > 0.0001 {
		return false
	}

	for step := float32(stepIncrement); step <= maxStepHeight; step += stepIncrement {
		raised := bounds.Translate(Vec3{Y: step})
		blocked := false
		for _, pos := range w.SurroundingBlocks(raised) {
			blockAABB := w.BlockAABB(pos.X, pos.Y, pos.Z)
			if raised.Intersects(blockAABB) {
				blocked = true
				break
			}
		}
		if !blocked {
			*bounds = raised
			return true
		}
	}
	return false
}

func minf(a, b float32) float32 {
	if a < b {
		return a
	}
	return b
}

func maxf(a, b float32) float32 {
	if a > b {
		return a
	}
	return b
}

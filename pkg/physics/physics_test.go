package physics

import (
	"math"
	"testing"
)

// testWorld is a minimal in-memory World backed by a set of solid integer
// voxel coordinates, sufficient for exercising sweep/raycast/step logic
// without pulling in pkg/voxel.
type testWorld struct {
	solid map[IVec3]bool
}

func newTestWorld(solids ...IVec3) *testWorld {
	w := &testWorld{solid: make(map[IVec3]bool, len(solids))}
	for _, s := range solids {
		w.solid[s] = true
	}
	return w
}

func (w *testWorld) IsSolid(x, y, z int32) bool {
	return w.solid[IVec3{X: x, Y: y, Z: z}]
}

func (w *testWorld) BlockAABB(x, y, z int32) AABB {
	return UnitBlockAABB(x, y, z)
}

func (w *testWorld) SurroundingBlocks(box AABB) []IVec3 {
	var out []IVec3
	minX := int32(math.Floor(float64(box.Min.X))) - 1
	maxX := int32(math.Floor(float64(box.Max.X))) + 1
	minY := int32(math.Floor(float64(box.Min.Y))) - 1
	maxY := int32(math.Floor(float64(box.Max.Y))) + 1
	minZ := int32(math.Floor(float64(box.Min.Z))) - 1
	maxZ := int32(math.Floor(float64(box.Max.Z))) + 1
	for x := minX; x <= maxX; x++ {
		for y := minY; y <= maxY; y++ {
			for z := minZ; z <= maxZ; z++ {
				if w.IsSolid(x, y, z) {
					out = append(out, IVec3{X: x, Y: y, Z: z})
				}
			}
		}
	}
	return out
}

func absf32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}

// A box falling straight down onto a floor must stop at the floor's
// surface: the sweep's hit time must correspond to the exact contact
// point, not pass through or stop short.
func TestResolveSweptCollisionHitsFloor(t *testing.T) {
	w := newTestWorld(IVec3{X: 0, Y: 0, Z: 0})
	bounds := FromCenterExtents(Vec3{X: 0.5, Y: 2, Z: 0.5}, Vec3{X: 0.4, Y: 0.9, Z: 0.4})

	result := Resolve(bounds, Vec3{Y: -5}, w)

	if !result.Collided {
		t.Fatalf("expected a collision against the floor, got none")
	}
	restingFootY := result.Position.Y - 0.9
	if absf32(restingFootY-1.0) > 1e-3 {
		t.Fatalf("expected resting foot at y=1.0 (floor top), got %v", restingFootY)
	}
	if result.Normal.Y <= 0 {
		t.Fatalf("expected an upward collision normal, got %+v", result.Normal)
	}
}

// Repeatedly resolving a resting box against gravity must converge: the
// vertical velocity settles to zero and Grounded reports true.
func TestFloorRestConverges(t *testing.T) {
	w := newTestWorld(IVec3{X: 0, Y: 0, Z: 0})
	bounds := FromCenterExtents(Vec3{X: 0.5, Y: 1.95, Z: 0.5}, Vec3{X: 0.4, Y: 0.9, Z: 0.4})
	velocity := Vec3{}

	const dt = float32(1.0 / 60.0)
	for i := 0; i < 120; i++ {
		velocity.Y -= 20 * dt
		result := Resolve(bounds, velocity.Scale(dt), w)
		bounds = FromCenterExtents(result.Position, bounds.Extents())
		velocity = result.Velocity.Scale(1 / dt)
		if result.Collided {
			velocity.Y = 0
		}
	}

	if !Grounded(bounds, velocity, w) {
		t.Fatalf("expected box to be grounded after settling, bounds=%+v velocity=%+v", bounds, velocity)
	}
	if absf32(velocity.Y) > 1e-2 {
		t.Fatalf("expected vertical velocity to converge to ~0, got %v", velocity.Y)
	}
}

// halfBlockWorld is a testWorld whose solid blocks report a 0.5m-tall AABB
// instead of a full unit cube, modelling a low obstacle (e.g. a slab).
type halfBlockWorld struct {
	*testWorld
	height float32
}

func (w *halfBlockWorld) BlockAABB(x, y, z int32) AABB {
	base := UnitBlockAABB(x, y, z)
	base.Max.Y = base.Min.Y + w.height
	return base
}

// A 0.5m obstacle is within the 0.55m step budget and must be climbable.
func TestStepUpSucceedsOnLowObstacle(t *testing.T) {
	w := &halfBlockWorld{testWorld: newTestWorld(IVec3{X: 1, Y: 0, Z: 0}), height: 0.5}
	// Box resting on the floor, overlapping the 0.5m obstacle: y in [0.0, 0.8].
	bounds := FromCenterExtents(Vec3{X: 1.0, Y: 0.4, Z: 0.5}, Vec3{X: 0.4, Y: 0.4, Z: 0.4})

	ok := StepUp(&bounds, Vec3{}, w, 0.55)
	if !ok {
		t.Fatalf("expected StepUp to succeed clearing a 0.5m obstacle with a 0.55m budget")
	}
	if bounds.Min.Y < w.height {
		t.Fatalf("expected box to clear obstacle top (%v), resting min.y=%v", w.height, bounds.Min.Y)
	}
}

// A 0.6m obstacle cannot be cleared with only a 0.55m step budget.
func TestStepUpFailsWhenObstacleTallerThanBudget(t *testing.T) {
	w := &halfBlockWorld{testWorld: newTestWorld(IVec3{X: 1, Y: 0, Z: 0}), height: 0.6}
	bounds := FromCenterExtents(Vec3{X: 1.0, Y: 0.4, Z: 0.5}, Vec3{X: 0.4, Y: 0.4, Z: 0.4})

	ok := StepUp(&bounds, Vec3{}, w, 0.55)
	if ok {
		t.Fatalf("expected StepUp to fail: obstacle (0.6m) exceeds the 0.55m step budget")
	}
}

// A straight-down ray from (0.5, 1.5, 0.5) into a solid block at (0,0,0)
// must report blockPos (0,0,0), normal (0,1,0), face TOP, distance 0.5.
func TestRaycastStraightDownHitsTopFaceAtHalfMetre(t *testing.T) {
	w := newTestWorld(IVec3{X: 0, Y: 0, Z: 0})

	hit := Raycast(Vec3{X: 0.5, Y: 1.5, Z: 0.5}, Vec3{X: 0, Y: -1, Z: 0}, 10, w)

	if !hit.Hit {
		t.Fatalf("expected a hit")
	}
	if hit.BlockPos != (IVec3{X: 0, Y: 0, Z: 0}) {
		t.Fatalf("expected blockPos (0,0,0), got %+v", hit.BlockPos)
	}
	if hit.Normal != (Vec3{X: 0, Y: 1, Z: 0}) {
		t.Fatalf("expected normal (0,1,0), got %+v", hit.Normal)
	}
	if hit.Face != FaceTop {
		t.Fatalf("expected face TOP, got %v", hit.Face)
	}
	if absf32(hit.Distance-0.5) > 1e-4 {
		t.Fatalf("expected distance 0.5, got %v", hit.Distance)
	}
}

func TestRaycastMissesWhenNothingInRange(t *testing.T) {
	w := newTestWorld(IVec3{X: 5, Y: 5, Z: 5})
	hit := Raycast(Vec3{X: 0.5, Y: 0.5, Z: 0.5}, Vec3{X: 1, Y: 0, Z: 0}, 2, w)
	if hit.Hit {
		t.Fatalf("expected no hit within range, got %+v", hit)
	}
}

func TestRaycastZeroDistanceWhenStartingInsideSolid(t *testing.T) {
	w := newTestWorld(IVec3{X: 0, Y: 0, Z: 0})
	hit := Raycast(Vec3{X: 0.5, Y: 0.5, Z: 0.5}, Vec3{X: 1, Y: 0, Z: 0}, 10, w)
	if !hit.Hit || hit.Distance != 0 {
		t.Fatalf("expected an immediate zero-distance hit, got %+v", hit)
	}
}

func TestGroundMovementJumpSetsVelocity(t *testing.T) {
	p := DefaultParameters()
	v := Integrate(Vec3{}, Input{
		Grounded:  true,
		WishJump:  true,
		Mode:      ModeWalking,
		DeltaTime: 1.0 / 60.0,
	}, p)

	if v.Y != p.JumpForce {
		t.Fatalf("expected jump to set velocity.y = JumpForce (%v), got %v", p.JumpForce, v.Y)
	}
}

func TestGroundMovementAcceleratesTowardWish(t *testing.T) {
	p := DefaultParameters()
	v := Vec3{}
	in := Input{
		WishDirection: Vec3{X: 1},
		Grounded:      true,
		Mode:          ModeWalking,
		DeltaTime:     1.0 / 60.0,
	}
	for i := 0; i < 300; i++ {
		v = Integrate(v, in, p)
	}
	if absf32(v.X-p.WalkSpeed) > 1e-2 {
		t.Fatalf("expected horizontal speed to converge to WalkSpeed (%v), got %v", p.WalkSpeed, v.X)
	}
}

func TestAirMovementAppliesGravity(t *testing.T) {
	p := DefaultParameters()
	v := Integrate(Vec3{}, Input{
		Grounded:  false,
		Mode:      ModeWalking,
		DeltaTime: 1.0 / 60.0,
	}, p)
	if v.Y >= 0 {
		t.Fatalf("expected downward velocity from gravity, got %v", v.Y)
	}
}

func TestFlyingIgnoresGravityAndClampsVerticalSpeed(t *testing.T) {
	p := DefaultParameters()
	v := Integrate(Vec3{Y: p.FlySpeed * 2}, Input{
		Mode:      ModeFlying,
		DeltaTime: 1.0 / 60.0,
	}, p)
	if v.Y > p.FlySpeed {
		t.Fatalf("expected vertical speed clamped to FlySpeed (%v), got %v", p.FlySpeed, v.Y)
	}
}

func TestWaterMovementHalvesJumpForce(t *testing.T) {
	p := DefaultParameters()
	v := Integrate(Vec3{}, Input{
		InWater:   true,
		WishJump:  true,
		Mode:      ModeSwimming,
		DeltaTime: 1.0 / 60.0,
	}, p)
	if v.Y != p.JumpForce*0.5 {
		t.Fatalf("expected water jump to set velocity.y = JumpForce*0.5 (%v), got %v", p.JumpForce*0.5, v.Y)
	}
}

func TestFrictionDecaysVelocityWithNoWish(t *testing.T) {
	p := DefaultParameters()
	v := Vec3{X: 5}
	in := Input{Grounded: true, Mode: ModeWalking, DeltaTime: 1.0 / 60.0}
	for i := 0; i < 120; i++ {
		v = Integrate(v, in, p)
	}
	if absf32(v.X) > 0.1 {
		t.Fatalf("expected velocity to decay toward 0 under friction, got %v", v.X)
	}
}

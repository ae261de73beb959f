package voxel

import (
	"math"

	"github.com/StoreStation/vnet/pkg/physics"
)

// BlockAABB and SurroundingBlocks, alongside the IsSolid already defined in
// voxel.go, make *World satisfy physics.World directly: the physics package
// never needs to know how blocks are stored, only how to query them.

// BlockAABB returns the canonical unit-cube bounds of the block at (x, y, z).
func (w *World) BlockAABB(x, y, z int32) physics.AABB {
	return physics.UnitBlockAABB(x, y, z)
}

// SurroundingBlocks returns every solid block whose unit cube intersects
// box, widened by one block on every side the way CollisionDetector.cpp's
// sweep does to avoid missing corner cases at cell boundaries.
func (w *World) SurroundingBlocks(box physics.AABB) []physics.IVec3 {
	minX := int32(math.Floor(float64(box.Min.X))) - 1
	maxX := int32(math.Floor(float64(box.Max.X))) + 1
	minY := int32(math.Floor(float64(box.Min.Y))) - 1
	maxY := int32(math.Floor(float64(box.Max.Y))) + 1
	minZ := int32(math.Floor(float64(box.Min.Z))) - 1
	maxZ := int32(math.Floor(float64(box.Max.Z))) + 1

	if minY < 0 {
		minY = 0
	}
	if maxY >= ChunkY {
		maxY = ChunkY - 1
	}

	var out []physics.IVec3
	for x := minX; x <= maxX; x++ {
		for y := minY; y <= maxY; y++ {
			for z := minZ; z <= maxZ; z++ {
				if w.IsSolid(x, y, z) {
					out = append(out, physics.IVec3{X: x, Y: y, Z: z})
				}
			}
		}
	}
	return out
}

var _ physics.World = (*World)(nil)

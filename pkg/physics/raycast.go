package physics

import "math"

// BlockFace identifies which face of a voxel a ray struck.
type BlockFace int

const (
	FaceNone BlockFace = iota
	FaceTop
	FaceBottom
	FaceLeft
	FaceRight
	FaceFront
	FaceBack
)

// RayHit is the result of a DDA raycast.
type RayHit struct {
	Hit      bool
	BlockPos IVec3
	Position Vec3
	Normal   Vec3
	Face     BlockFace
	Distance float32
}

const rayEpsilon = 1e-6

func sign(v float32) int32 {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}

// intbound returns the parametric distance along one axis to the next
// integer boundary, given a starting coordinate s and a per-step delta ds.
func intbound(s, ds float32) float32 {
	if float32(math.Abs(float64(ds))) <= rayEpsilon {
		return float32(math.Inf(1))
	}
	frac := s - float32(math.Floor(float64(s)))
	if ds < 0 {
		frac = 1 - frac
	}
	return frac / float32(math.Abs(float64(ds)))
}

func faceFromStep(axis int, step int32) BlockFace {
	switch axis {
	case 0:
		if step > 0 {
			return FaceLeft
		}
		return FaceRight
	case 1:
		if step > 0 {
			return FaceBottom
		}
		return FaceTop
	default:
		if step > 0 {
			return FaceBack
		}
		return FaceFront
	}
}

// Raycast walks an Amanatides-Woo DDA from origin along direction, up to
// maxDistance, returning the first solid voxel hit. The starting voxel is
// tested before stepping; if it is already solid, a zero-distance hit is
// returned.
func Raycast(origin, direction Vec3, maxDistance float32, w World) RayHit {
	var result RayHit

	if maxDistance <= 0 {
		return result
	}
	if direction.LengthSq() <= rayEpsilon {
		return result
	}
	dir := direction.Normalize()

	currentCell := IVec3{
		X: int32(math.Floor(float64(origin.X))),
		Y: int32(math.Floor(float64(origin.Y))),
		Z: int32(math.Floor(float64(origin.Z))),
	}

	step := IVec3{X: sign(dir.X), Y: sign(dir.Y), Z: sign(dir.Z)}

	tMax := Vec3{
		X: intbound(origin.X, dir.X),
		Y: intbound(origin.Y, dir.Y),
		Z: intbound(origin.Z, dir.Z),
	}

	tDelta := Vec3{
		X: deltaFor(step.X, dir.X),
		Y: deltaFor(step.Y, dir.Y),
		Z: deltaFor(step.Z, dir.Z),
	}

	if w.IsSolid(currentCell.X, currentCell.Y, currentCell.Z) {
		return RayHit{Hit: true, BlockPos: currentCell, Position: origin, Distance: 0, Face: FaceFront}
	}

	distanceTravelled := float32(0)
	for distanceTravelled <= maxDistance {
		axis := nextAxis(tMax)

		distanceTravelled = tMax.Component(axis)
		if distanceTravelled > maxDistance {
			break
		}

		currentCell.addStep(axis, step)
		tMax.SetComponent(axis, tMax.Component(axis)+tDelta.Component(axis))

		if w.IsSolid(currentCell.X, currentCell.Y, currentCell.Z) {
			var normal Vec3
			normal.SetComponent(axis, float32(-stepComponent(step, axis)))
			return RayHit{
				Hit:      true,
				BlockPos: currentCell,
				Position: origin.Add(dir.Scale(distanceTravelled)),
				Normal:   normal,
				Face:     faceFromStep(axis, stepComponent(step, axis)),
				Distance: distanceTravelled,
			}
		}
	}

	return result
}

func deltaFor(step int32, dirComponent float32) float32 {
	if step == 0 {
		return float32(math.Inf(1))
	}
	return float32(math.Abs(1 / float64(dirComponent)))
}

func nextAxis(tMax Vec3) int {
	if tMax.X < tMax.Y {
		if tMax.X < tMax.Z {
			return 0
		}
		return 2
	}
	if tMax.Y < tMax.Z {
		return 1
	}
	return 2
}

func stepComponent(step IVec3, axis int) int32 {
	switch axis {
	case 0:
		return step.X
	case 1:
		return step.Y
	default:
		return step.Z
	}
}

func (v *IVec3) addStep(axis int, step IVec3) {
	switch axis {
	case 0:
		v.X += step.X
	case 1:
		v.Y += step.Y
	default:
		v.Z += step.Z
	}
}

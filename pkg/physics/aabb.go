// Package physics implements the swept-AABB voxel-collision movement model:
// axis-aligned boxes, the continuous collision sweep and penetration
// resolver, a grounded probe, step-up, Amanatides-Woo DDA raycasting, and
// the walking/flying/swimming movement integrator. Every formula here must
// produce bit-identical f32 results on client and server for prediction to
// converge, so this package avoids float64 anywhere a client/server
// mismatch would matter.
package physics

import "math"

// Vec3 is a plain float32 3-vector; physics stays in float32 throughout to
// match the wire's quantized precision and the client/server determinism
// requirement.
type Vec3 struct {
	X, Y, Z float32
}

func (a Vec3) Add(b Vec3) Vec3      { return Vec3{a.X + b.X, a.Y + b.Y, a.Z + b.Z} }
func (a Vec3) Sub(b Vec3) Vec3      { return Vec3{a.X - b.X, a.Y - b.Y, a.Z - b.Z} }
func (a Vec3) Scale(s float32) Vec3 { return Vec3{a.X * s, a.Y * s, a.Z * s} }
func (a Vec3) Dot(b Vec3) float32   { return a.X*b.X + a.Y*b.Y + a.Z*b.Z }
func (a Vec3) LengthSq() float32    { return a.Dot(a) }
func (a Vec3) Length() float32      { return float32(math.Sqrt(float64(a.LengthSq()))) }

func (a Vec3) Normalize() Vec3 {
	l := a.Length()
	if l == 0 {
		return Vec3{}
	}
	return a.Scale(1 / l)
}

func (a Vec3) Component(axis int) float32 {
	switch axis {
	case 0:
		return a.X
	case 1:
		return a.Y
	default:
		return a.Z
	}
}

func (a *Vec3) SetComponent(axis int, v float32) {
	switch axis {
	case 0:
		a.X = v
	case 1:
		a.Y = v
	default:
		a.Z = v
	}
}

// AABB is an axis-aligned box in metres, with Min <= Max componentwise.
type AABB struct {
	Min, Max Vec3
}

// FromCenterExtents builds an AABB from its center and half-extents.
func FromCenterExtents(center, extents Vec3) AABB {
	return AABB{Min: center.Sub(extents), Max: center.Add(extents)}
}

// Center returns the box's midpoint.
func (b AABB) Center() Vec3 {
	return Vec3{
		X: (b.Min.X + b.Max.X) / 2,
		Y: (b.Min.Y + b.Max.Y) / 2,
		Z: (b.Min.Z + b.Max.Z) / 2,
	}
}

// Extents returns the box's half-size along each axis.
func (b AABB) Extents() Vec3 {
	return Vec3{
		X: (b.Max.X - b.Min.X) / 2,
		Y: (b.Max.Y - b.Min.Y) / 2,
		Z: (b.Max.Z - b.Min.Z) / 2,
	}
}

// Translate returns b shifted by d.
func (b AABB) Translate(d Vec3) AABB {
	return AABB{Min: b.Min.Add(d), Max: b.Max.Add(d)}
}

// Expand returns b grown by d on whichever side d points (same convention
// the sweep uses to build the swept volume: positive and negative
// components each grow only the corresponding side).
func (b AABB) Expand(d Vec3) AABB {
	out := b
	if d.X >= 0 {
		out.Max.X += d.X
	} else {
		out.Min.X += d.X
	}
	if d.Y >= 0 {
		out.Max.Y += d.Y
	} else {
		out.Min.Y += d.Y
	}
	if d.Z >= 0 {
		out.Max.Z += d.Z
	} else {
		out.Min.Z += d.Z
	}
	return out
}

// Intersects reports whether b and o overlap on every axis.
func (b AABB) Intersects(o AABB) bool {
	return b.Min.X < o.Max.X && b.Max.X > o.Min.X &&
		b.Min.Y < o.Max.Y && b.Max.Y > o.Min.Y &&
		b.Min.Z < o.Max.Z && b.Max.Z > o.Min.Z
}

// Contains reports whether p lies within b.
func (b AABB) Contains(p Vec3) bool {
	return p.X >= b.Min.X && p.X <= b.Max.X &&
		p.Y >= b.Min.Y && p.Y <= b.Max.Y &&
		p.Z >= b.Min.Z && p.Z <= b.Max.Z
}

// Merge returns the smallest AABB containing both b and o.
func (b AABB) Merge(o AABB) AABB {
	return AABB{
		Min: Vec3{min32(b.Min.X, o.Min.X), min32(b.Min.Y, o.Min.Y), min32(b.Min.Z, o.Min.Z)},
		Max: Vec3{max32(b.Max.X, o.Max.X), max32(b.Max.Y, o.Max.Y), max32(b.Max.Z, o.Max.Z)},
	}
}

func min32(a, b float32) float32 {
	if a < b {
		return a
	}
	return b
}

func max32(a, b float32) float32 {
	if a > b {
		return a
	}
	return b
}

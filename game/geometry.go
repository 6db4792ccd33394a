package game

import "math"

type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

func (v Vec3) Add(o Vec3) Vec3 {
	return Vec3{v.X + o.X, v.Y + o.Y, v.Z + o.Z}
}

func (v Vec3) Sub(o Vec3) Vec3 {
	return Vec3{v.X - o.X, v.Y - o.Y, v.Z - o.Z}
}

func (v Vec3) Scale(f float64) Vec3 {
	return Vec3{v.X * f, v.Y * f, v.Z * f}
}

// Lerp moves v towards to by fraction t.
func (v Vec3) Lerp(to Vec3, t float64) Vec3 {
	return Vec3{
		v.X + (to.X-v.X)*t,
		v.Y + (to.Y-v.Y)*t,
		v.Z + (to.Z-v.Z)*t,
	}
}

func (v Vec3) Distance(o Vec3) float64 {
	d := v.Sub(o)
	return math.Sqrt(d.X*d.X + d.Y*d.Y + d.Z*d.Z)
}

func (v Vec3) DistanceXZ(o Vec3) float64 {
	return math.Hypot(v.X-o.X, v.Z-o.Z)
}

// AABB is an axis-aligned box. Touching boxes intersect.
type AABB struct {
	Min Vec3 `json:"min"`
	Max Vec3 `json:"max"`
}

func (b AABB) Intersects(o AABB) bool {
	return !(o.Max.X < b.Min.X || o.Min.X > b.Max.X ||
		o.Max.Y < b.Min.Y || o.Min.Y > b.Max.Y ||
		o.Max.Z < b.Min.Z || o.Min.Z > b.Max.Z)
}

func (b AABB) Center() Vec3 {
	return Vec3{
		(b.Min.X + b.Max.X) / 2,
		(b.Min.Y + b.Max.Y) / 2,
		(b.Min.Z + b.Max.Z) / 2,
	}
}

// BoxAround returns the box of a player sized cube centred at pos.
func BoxAround(pos Vec3) AABB {
	h := PlayerSize / 2
	return AABB{
		Min: Vec3{pos.X - h, pos.Y - h, pos.Z - h},
		Max: Vec3{pos.X + h, pos.Y + h, pos.Z + h},
	}
}

func BoxOf(p *Player) AABB {
	return BoxAround(p.Position)
}

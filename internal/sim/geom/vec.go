// Package geom holds the small amount of vector math the agents need.
// Y is the up axis; floors are horizontal XZ planes.
package geom

import "math"

type Vec3 struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
	Z float64 `json:"z" yaml:"z"`
}

// Forward is the heading of an unrotated agent.
var Forward = Vec3{Z: 1}

func V(x, y, z float64) Vec3 { return Vec3{X: x, Y: y, Z: z} }

func (v Vec3) Add(o Vec3) Vec3      { return Vec3{v.X + o.X, v.Y + o.Y, v.Z + o.Z} }
func (v Vec3) Sub(o Vec3) Vec3      { return Vec3{v.X - o.X, v.Y - o.Y, v.Z - o.Z} }
func (v Vec3) Scale(k float64) Vec3 { return Vec3{v.X * k, v.Y * k, v.Z * k} }
func (v Vec3) Len() float64         { return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z) }

// Flat drops the vertical component.
func (v Vec3) Flat() Vec3 { return Vec3{X: v.X, Z: v.Z} }

// WithY returns v with its elevation replaced.
func (v Vec3) WithY(y float64) Vec3 { return Vec3{X: v.X, Y: y, Z: v.Z} }

func (v Vec3) Normalize() Vec3 {
	l := v.Len()
	if l == 0 {
		return Vec3{}
	}
	return v.Scale(1 / l)
}

func (v Vec3) Dot(o Vec3) float64 { return v.X*o.X + v.Y*o.Y + v.Z*o.Z }

func Dist(a, b Vec3) float64 { return a.Sub(b).Len() }

// FlatDist is the distance between a and b projected onto the floor plane.
func FlatDist(a, b Vec3) float64 { return a.Sub(b).Flat().Len() }

// Near reports whether a and b are within tol of each other on the floor plane.
// Arrival checks go through here instead of comparing positions for equality.
func Near(a, b Vec3, tol float64) bool { return FlatDist(a, b) <= tol }

// RotateY turns v around the up axis by deg degrees (clockwise seen from above,
// so Forward rotated by 90 points along +X).
func RotateY(v Vec3, deg float64) Vec3 {
	r := deg * math.Pi / 180
	s, c := math.Sincos(r)
	return Vec3{
		X: v.X*c + v.Z*s,
		Y: v.Y,
		Z: -v.X*s + v.Z*c,
	}
}

// AngleDeg returns the unsigned angle between u and v in degrees, in [0, 180].
// Zero vectors yield 0.
func AngleDeg(u, v Vec3) float64 {
	lu, lv := u.Len(), v.Len()
	if lu == 0 || lv == 0 {
		return 0
	}
	c := u.Dot(v) / (lu * lv)
	if c > 1 {
		c = 1
	} else if c < -1 {
		c = -1
	}
	return math.Acos(c) * 180 / math.Pi
}

// QuasiCollinear reports whether a, b and c lie roughly on one line in that
// order on the floor plane: the heading a->b and the heading b->c differ by
// less than maxDeg. A b sitting on c counts as aligned; a sitting on b does not.
func QuasiCollinear(a, b, c Vec3, maxDeg float64) bool {
	ab := b.Sub(a).Flat()
	bc := c.Sub(b).Flat()
	if ab.Len() < 1e-9 {
		return false
	}
	if bc.Len() < 1e-9 {
		return true
	}
	return AngleDeg(ab, bc) < maxDeg
}

package geom

import "math"

// Box is an axis-aligned rectangle on the floor plane (Y ignored).
type Box struct {
	Min Vec3 `json:"min" yaml:"min"`
	Max Vec3 `json:"max" yaml:"max"`
}

func (b Box) Contains(p Vec3) bool {
	return p.X >= b.Min.X && p.X <= b.Max.X && p.Z >= b.Min.Z && p.Z <= b.Max.Z
}

// RayHits reports whether the ray from origin along dir hits b within maxDist.
// dir does not need to be normalized.
func (b Box) RayHits(origin, dir Vec3, maxDist float64) bool {
	d := dir.Flat().Normalize()
	if d == (Vec3{}) {
		return b.Contains(origin)
	}
	tmin, tmax := 0.0, maxDist
	for _, ax := range [2]struct{ o, d, lo, hi float64 }{
		{origin.X, d.X, b.Min.X, b.Max.X},
		{origin.Z, d.Z, b.Min.Z, b.Max.Z},
	} {
		if math.Abs(ax.d) < 1e-12 {
			if ax.o < ax.lo || ax.o > ax.hi {
				return false
			}
			continue
		}
		t1 := (ax.lo - ax.o) / ax.d
		t2 := (ax.hi - ax.o) / ax.d
		if t1 > t2 {
			t1, t2 = t2, t1
		}
		tmin = math.Max(tmin, t1)
		tmax = math.Min(tmax, t2)
		if tmin > tmax {
			return false
		}
	}
	return true
}

// Package geometry provides the 2D polygon primitives the cutter pipeline is
// built on: closed rings of points, signed-area winding control, arc-length
// resampling, phase alignment, and distance-field offsetting (offset.go).
//
// Rings are stored open (first point is not repeated at the end) and are
// treated as implicitly closed. Exterior rings are counter-clockwise,
// holes clockwise.
package geometry

import "math"

// Point is a 2D point.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Ring is an ordered closed sequence of points. The closing edge from the
// last point back to the first is implicit.
type Ring []Point

// Polygon is one exterior ring plus zero or more interior holes.
type Polygon struct {
	Outer Ring
	Holes []Ring
}

// SignedArea returns the shoelace area of the ring. Positive means
// counter-clockwise winding.
func (r Ring) SignedArea() float64 {
	if len(r) < 3 {
		return 0
	}
	sum := 0.0
	for i, p := range r {
		q := r[(i+1)%len(r)]
		sum += p.X*q.Y - q.X*p.Y
	}
	return sum / 2
}

// Reverse flips the ring's winding in place.
func (r Ring) Reverse() {
	for i, j := 0, len(r)-1; i < j; i, j = i+1, j-1 {
		r[i], r[j] = r[j], r[i]
	}
}

// Bounds returns the axis-aligned bounding box of the ring.
func (r Ring) Bounds() (min, max Point) {
	if len(r) == 0 {
		return
	}
	min, max = r[0], r[0]
	for _, p := range r[1:] {
		min.X = math.Min(min.X, p.X)
		min.Y = math.Min(min.Y, p.Y)
		max.X = math.Max(max.X, p.X)
		max.Y = math.Max(max.Y, p.Y)
	}
	return
}

// Perimeter returns the closed length of the ring.
func (r Ring) Perimeter() float64 {
	total := 0.0
	for i, p := range r {
		q := r[(i+1)%len(r)]
		total += math.Hypot(q.X-p.X, q.Y-p.Y)
	}
	return total
}

// Centroid returns the area centroid of the ring.
func (r Ring) Centroid() Point {
	a := r.SignedArea()
	if a == 0 {
		// Degenerate ring: fall back to the vertex mean.
		var c Point
		for _, p := range r {
			c.X += p.X
			c.Y += p.Y
		}
		n := float64(len(r))
		return Point{X: c.X / n, Y: c.Y / n}
	}
	var cx, cy float64
	for i, p := range r {
		q := r[(i+1)%len(r)]
		cross := p.X*q.Y - q.X*p.Y
		cx += (p.X + q.X) * cross
		cy += (p.Y + q.Y) * cross
	}
	return Point{X: cx / (6 * a), Y: cy / (6 * a)}
}

// Contains reports whether the point is inside the ring (even-odd rule).
func (r Ring) Contains(pt Point) bool {
	inside := false
	for i, p := range r {
		q := r[(i+1)%len(r)]
		if (p.Y > pt.Y) != (q.Y > pt.Y) {
			x := p.X + (pt.Y-p.Y)/(q.Y-p.Y)*(q.X-p.X)
			if pt.X < x {
				inside = !inside
			}
		}
	}
	return inside
}

// Area returns the polygon's area: exterior minus holes.
func (pg *Polygon) Area() float64 {
	a := math.Abs(pg.Outer.SignedArea())
	for _, h := range pg.Holes {
		a -= math.Abs(h.SignedArea())
	}
	return a
}

// Bounds returns the bounding box of the exterior ring.
func (pg *Polygon) Bounds() (min, max Point) {
	return pg.Outer.Bounds()
}

// Width returns the bounding-box X extent of the exterior ring.
func (pg *Polygon) Width() float64 {
	min, max := pg.Outer.Bounds()
	return max.X - min.X
}

// Scale multiplies every coordinate by s, about the origin.
func (pg *Polygon) Scale(s float64) {
	for i := range pg.Outer {
		pg.Outer[i].X *= s
		pg.Outer[i].Y *= s
	}
	for _, h := range pg.Holes {
		for i := range h {
			h[i].X *= s
			h[i].Y *= s
		}
	}
}

// DropHoles removes all interior rings.
func (pg *Polygon) DropHoles() {
	pg.Holes = nil
}

// Rings returns the exterior ring followed by the holes.
func (pg *Polygon) Rings() []Ring {
	out := make([]Ring, 0, 1+len(pg.Holes))
	out = append(out, pg.Outer)
	out = append(out, pg.Holes...)
	return out
}

// Normalize forces the exterior counter-clockwise and all holes clockwise.
func (pg *Polygon) Normalize() {
	if pg.Outer.SignedArea() < 0 {
		pg.Outer.Reverse()
	}
	for _, h := range pg.Holes {
		if h.SignedArea() > 0 {
			h.Reverse()
		}
	}
}

// Resample returns a new ring with exactly n vertices placed at equal
// arc-length intervals along the closed ring, starting at the ring's first
// vertex. Adjacent rings resampled to the same n can be stitched by quad
// strips.
func Resample(r Ring, n int) Ring {
	if len(r) == 0 || n <= 0 {
		return nil
	}
	total := r.Perimeter()
	if total == 0 {
		out := make(Ring, n)
		for i := range out {
			out[i] = r[0]
		}
		return out
	}
	out := make(Ring, 0, n)
	step := total / float64(n)
	target := 0.0
	walked := 0.0
	seg := 0
	p := r[0]
	q := r[1%len(r)]
	segLen := math.Hypot(q.X-p.X, q.Y-p.Y)
	for i := 0; i < n; i++ {
		for walked+segLen < target && seg < len(r)*2 {
			walked += segLen
			seg++
			p = r[seg%len(r)]
			q = r[(seg+1)%len(r)]
			segLen = math.Hypot(q.X-p.X, q.Y-p.Y)
		}
		t := 0.0
		if segLen > 0 {
			t = (target - walked) / segLen
		}
		out = append(out, Point{X: p.X + (q.X-p.X)*t, Y: p.Y + (q.Y-p.Y)*t})
		target += step
	}
	return out
}

// AlignRingPhase circularly rotates ring so that its start vertex is the one
// nearest ref's start vertex. Stitching two rings of equal cardinality after
// phase alignment avoids twisted side-wall triangulation.
func AlignRingPhase(ring, ref Ring) Ring {
	if len(ring) == 0 || len(ref) == 0 {
		return ring
	}
	start := ref[0]
	best := 0
	bestDist := math.Inf(1)
	for i, p := range ring {
		d := (p.X-start.X)*(p.X-start.X) + (p.Y-start.Y)*(p.Y-start.Y)
		if d < bestDist {
			bestDist = d
			best = i
		}
	}
	if best == 0 {
		return ring
	}
	out := make(Ring, 0, len(ring))
	out = append(out, ring[best:]...)
	out = append(out, ring[:best]...)
	return out
}

func distToSegment(p, a, b Point) float64 {
	dx, dy := b.X-a.X, b.Y-a.Y
	l2 := dx*dx + dy*dy
	if l2 == 0 {
		return math.Hypot(p.X-a.X, p.Y-a.Y)
	}
	t := ((p.X-a.X)*dx + (p.Y-a.Y)*dy) / l2
	if t < 0 {
		t = 0
	} else if t > 1 {
		t = 1
	}
	return math.Hypot(p.X-(a.X+t*dx), p.Y-(a.Y+t*dy))
}

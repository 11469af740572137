package geometry

import (
	"math"
	"sort"
)

// offsetGridCells controls the resolution of the distance-field grid used for
// offsetting: the longest bounding-box extent (after growth) is divided into
// this many cells. Zero crossings are found by linear interpolation, so the
// effective boundary accuracy is far finer than one cell on smooth sections.
const offsetGridCells = 512

// Offset grows (d > 0) or shrinks (d < 0) the region covered by the polygon
// by distance d, with round joins, and returns the resulting components
// sorted by area, largest first. Offsetting by 0 repairs the input: the
// region enclosed by the rings (even-odd rule) is re-extracted with simple,
// correctly wound rings, which removes self-intersections and degeneracies.
//
// The result may be empty (inward offset collapsed), a single polygon, or
// several disjoint polygons (inward offset split a narrow neck).
func Offset(pg *Polygon, d float64) []*Polygon {
	return OffsetRings(pg.Rings(), d)
}

// Repair rebuilds simple, correctly wound polygons from possibly
// self-intersecting rings. Equivalent to a zero-distance Offset.
func Repair(rings []Ring) []*Polygon {
	return OffsetRings(rings, 0)
}

// OffsetRings is Offset over a raw ring set (even-odd filled).
func OffsetRings(rings []Ring, d float64) []*Polygon {
	field := newDistanceField(rings)
	if field == nil {
		return nil
	}

	min, max := ringSetBounds(rings)
	grow := math.Max(d, 0)
	extent := math.Max(max.X-min.X, max.Y-min.Y) + 2*grow
	if extent <= 0 {
		return nil
	}
	cell := extent / offsetGridCells
	pad := grow + 3*cell

	x0, y0 := min.X-pad, min.Y-pad
	nx := int(math.Ceil((max.X+pad-x0)/cell)) + 1
	ny := int(math.Ceil((max.Y+pad-y0)/cell)) + 1

	values := make([]float64, nx*ny)
	for iy := 0; iy < ny; iy++ {
		for ix := 0; ix < nx; ix++ {
			p := Point{X: x0 + float64(ix)*cell, Y: y0 + float64(iy)*cell}
			v := field.signedDistance(p) + d
			if v == 0 {
				v = 1e-12 // keep grid nodes off the iso-level
			}
			values[iy*nx+ix] = v
		}
	}

	loops := marchLoops(values, nx, ny, x0, y0, cell)

	// Discard sub-cell noise loops.
	kept := loops[:0]
	minArea := 2 * cell * cell
	for _, l := range loops {
		if math.Abs(l.SignedArea()) >= minArea {
			kept = append(kept, l)
		}
	}
	return assembleLoops(kept)
}

// Largest returns the polygon with the greatest area, or nil.
func Largest(polys []*Polygon) *Polygon {
	var best *Polygon
	for _, p := range polys {
		if best == nil || p.Area() > best.Area() {
			best = p
		}
	}
	return best
}

// distanceField evaluates the signed distance to a ring set: positive inside
// the even-odd filled region, negative outside, magnitude is the Euclidean
// distance to the nearest ring segment.
type distanceField struct {
	rings []Ring
	segs  [][2]Point
}

func newDistanceField(rings []Ring) *distanceField {
	f := &distanceField{}
	for _, r := range rings {
		if len(r) < 3 {
			continue
		}
		f.rings = append(f.rings, r)
		for i, p := range r {
			f.segs = append(f.segs, [2]Point{p, r[(i+1)%len(r)]})
		}
	}
	if len(f.segs) == 0 {
		return nil
	}
	return f
}

func (f *distanceField) signedDistance(p Point) float64 {
	d := math.Inf(1)
	for _, s := range f.segs {
		if v := distToSegment(p, s[0], s[1]); v < d {
			d = v
		}
	}
	inside := false
	for _, r := range f.rings {
		if r.Contains(p) {
			inside = !inside
		}
	}
	if inside {
		return d
	}
	return -d
}

func ringSetBounds(rings []Ring) (min, max Point) {
	first := true
	for _, r := range rings {
		if len(r) == 0 {
			continue
		}
		rmin, rmax := r.Bounds()
		if first {
			min, max = rmin, rmax
			first = false
			continue
		}
		min.X = math.Min(min.X, rmin.X)
		min.Y = math.Min(min.Y, rmin.Y)
		max.X = math.Max(max.X, rmax.X)
		max.Y = math.Max(max.Y, rmax.Y)
	}
	return
}

// edgeKey identifies a grid edge carrying one iso-crossing: the edge starting
// at node (ix, iy) going right (horizontal) or up (vertical).
type edgeKey struct {
	ix, iy int
	vert   bool
}

// marchLoops runs marching squares over the sampled field (iso-level 0,
// positive = inside) and chains the per-cell crossings into closed loops.
// Crossing points are keyed by the grid edge they lie on, so loop chaining is
// exact and needs no floating-point matching.
func marchLoops(values []float64, nx, ny int, x0, y0, cell float64) []Ring {
	at := func(ix, iy int) float64 { return values[iy*nx+ix] }

	points := make(map[edgeKey]Point)
	crossing := func(k edgeKey) Point {
		if p, ok := points[k]; ok {
			return p
		}
		a := at(k.ix, k.iy)
		var b float64
		if k.vert {
			b = at(k.ix, k.iy+1)
		} else {
			b = at(k.ix+1, k.iy)
		}
		t := a / (a - b)
		p := Point{X: x0 + float64(k.ix)*cell, Y: y0 + float64(k.iy)*cell}
		if k.vert {
			p.Y += t * cell
		} else {
			p.X += t * cell
		}
		points[k] = p
		return p
	}

	// Each chain entry links the two grid edges joined by one marching
	// squares segment inside a cell.
	adj := make(map[edgeKey][]edgeKey)
	link := func(a, b edgeKey) {
		crossing(a)
		crossing(b)
		adj[a] = append(adj[a], b)
		adj[b] = append(adj[b], a)
	}

	for iy := 0; iy < ny-1; iy++ {
		for ix := 0; ix < nx-1; ix++ {
			bl := at(ix, iy) > 0
			br := at(ix+1, iy) > 0
			tl := at(ix, iy+1) > 0
			tr := at(ix+1, iy+1) > 0

			bottom := edgeKey{ix, iy, false}
			top := edgeKey{ix, iy + 1, false}
			left := edgeKey{ix, iy, true}
			right := edgeKey{ix + 1, iy, true}

			idx := 0
			if bl {
				idx |= 1
			}
			if br {
				idx |= 2
			}
			if tr {
				idx |= 4
			}
			if tl {
				idx |= 8
			}
			switch idx {
			case 0, 15:
				// uniform cell
			case 1, 14:
				link(left, bottom)
			case 2, 13:
				link(bottom, right)
			case 3, 12:
				link(left, right)
			case 4, 11:
				link(right, top)
			case 6, 9:
				link(bottom, top)
			case 7, 8:
				link(left, top)
			case 5, 10:
				// Saddle: disambiguate with the cell-center average.
				center := (at(ix, iy) + at(ix+1, iy) + at(ix, iy+1) + at(ix+1, iy+1)) / 4
				if (idx == 10) == (center > 0) {
					link(left, bottom)
					link(right, top)
				} else {
					link(left, top)
					link(bottom, right)
				}
			}
		}
	}

	// Chain loops starting from edges in grid order, so identical inputs
	// always produce identical rings.
	starts := make([]edgeKey, 0, len(adj))
	for k := range adj {
		starts = append(starts, k)
	}
	sort.Slice(starts, func(a, b int) bool {
		ka, kb := starts[a], starts[b]
		if ka.iy != kb.iy {
			return ka.iy < kb.iy
		}
		if ka.ix != kb.ix {
			return ka.ix < kb.ix
		}
		return !ka.vert && kb.vert
	})

	visited := make(map[edgeKey]bool)
	var loops []Ring
	for _, start := range starts {
		if visited[start] {
			continue
		}
		ring := Ring{points[start]}
		visited[start] = true
		prev := start
		cur := start
		for {
			var next edgeKey
			found := false
			for _, n := range adj[cur] {
				if n != prev && !(visited[n] && n != start) {
					next = n
					found = true
					break
				}
			}
			if !found || next == start {
				break
			}
			ring = append(ring, points[next])
			visited[next] = true
			prev, cur = cur, next
		}
		if len(ring) >= 3 {
			loops = append(loops, ring)
		}
	}
	return loops
}

// assembleLoops classifies loops as exteriors or holes by containment parity
// and assigns each hole to its immediately enclosing exterior.
func assembleLoops(loops []Ring) []*Polygon {
	if len(loops) == 0 {
		return nil
	}
	depth := make([]int, len(loops))
	for i, li := range loops {
		probe := li[0]
		for j, lj := range loops {
			if i == j {
				continue
			}
			if lj.Contains(probe) {
				depth[i]++
			}
		}
	}

	type shell struct {
		poly *Polygon
		area float64
	}
	var shells []shell
	shellIdx := make(map[int]int)
	for i, l := range loops {
		if depth[i]%2 == 0 {
			shellIdx[i] = len(shells)
			shells = append(shells, shell{poly: &Polygon{Outer: l}, area: math.Abs(l.SignedArea())})
		}
	}
	for i, l := range loops {
		if depth[i]%2 == 0 {
			continue
		}
		// Hole: attach to the smallest exterior that contains it.
		best := -1
		bestArea := math.Inf(1)
		for j := range loops {
			si, ok := shellIdx[j]
			if !ok || j == i {
				continue
			}
			if loops[j].Contains(l[0]) && shells[si].area < bestArea {
				best = si
				bestArea = shells[si].area
			}
		}
		if best >= 0 {
			shells[best].poly.Holes = append(shells[best].poly.Holes, l)
		}
	}

	out := make([]*Polygon, 0, len(shells))
	for _, s := range shells {
		s.poly.Normalize()
		out = append(out, s.poly)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Area() > out[b].Area() })
	return out
}

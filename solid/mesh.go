// Package solid holds the indexed triangle mesh the cutter synthesizer
// assembles, with the consistency operations required for a printable solid:
// vertex merging, winding checks and repair, signed volume, and STL export.
package solid

import (
	"fmt"
	"math"

	"github.com/unixpickle/model3d/model3d"
)

// Vec3 is a 3D point.
type Vec3 struct {
	X, Y, Z float64
}

// Mesh is an indexed triangle mesh. Faces index into Vertices; the three
// indices of a face are expected to be distinct after MergeVertices.
type Mesh struct {
	Vertices []Vec3
	Faces    [][3]int
}

// NewMesh returns an empty mesh.
func NewMesh() *Mesh {
	return &Mesh{}
}

// AddVertex appends a vertex and returns its index.
func (m *Mesh) AddVertex(v Vec3) int {
	m.Vertices = append(m.Vertices, v)
	return len(m.Vertices) - 1
}

// AddTriangle appends one face.
func (m *Mesh) AddTriangle(a, b, c int) {
	m.Faces = append(m.Faces, [3]int{a, b, c})
}

// Append concatenates other into m.
func (m *Mesh) Append(other *Mesh) {
	base := len(m.Vertices)
	m.Vertices = append(m.Vertices, other.Vertices...)
	for _, f := range other.Faces {
		m.Faces = append(m.Faces, [3]int{f[0] + base, f[1] + base, f[2] + base})
	}
}

// MergeVertices collapses vertices that coincide within eps and drops faces
// that degenerate (two or three equal indices) as a result.
func (m *Mesh) MergeVertices(eps float64) {
	if eps <= 0 {
		eps = 1e-9
	}
	type key [3]int64
	quant := func(v Vec3) key {
		return key{
			int64(math.Round(v.X / eps)),
			int64(math.Round(v.Y / eps)),
			int64(math.Round(v.Z / eps)),
		}
	}
	lookup := make(map[key]int, len(m.Vertices))
	remap := make([]int, len(m.Vertices))
	var verts []Vec3
	for i, v := range m.Vertices {
		k := quant(v)
		if j, ok := lookup[k]; ok {
			remap[i] = j
			continue
		}
		lookup[k] = len(verts)
		remap[i] = len(verts)
		verts = append(verts, v)
	}
	faces := m.Faces[:0]
	for _, f := range m.Faces {
		a, b, c := remap[f[0]], remap[f[1]], remap[f[2]]
		if a == b || b == c || a == c {
			continue
		}
		faces = append(faces, [3]int{a, b, c})
	}
	m.Vertices = verts
	m.Faces = faces
}

// IsWindingConsistent reports whether no undirected edge is traversed twice
// in the same direction and no edge is shared by more than two faces.
// Boundary edges (used once) are allowed: the cutter shell is open-ended.
func (m *Mesh) IsWindingConsistent() bool {
	type edge [2]int
	counts := make(map[edge]int, len(m.Faces)*3)
	for _, f := range m.Faces {
		for i := 0; i < 3; i++ {
			a, b := f[i], f[(i+1)%3]
			counts[edge{a, b}]++
		}
	}
	for e, n := range counts {
		if n > 1 {
			return false
		}
		if counts[[2]int{e[1], e[0]}]+n > 2 {
			return false
		}
	}
	return true
}

// OrientConsistently flips faces so that every shared edge is traversed in
// opposite directions by its two faces, propagating from an arbitrary seed
// across each connected component.
func (m *Mesh) OrientConsistently() {
	type edge [2]int
	undirected := func(a, b int) edge {
		if a < b {
			return edge{a, b}
		}
		return edge{b, a}
	}
	faceByEdge := make(map[edge][]int, len(m.Faces)*3)
	for fi, f := range m.Faces {
		for i := 0; i < 3; i++ {
			e := undirected(f[i], f[(i+1)%3])
			faceByEdge[e] = append(faceByEdge[e], fi)
		}
	}

	seen := make([]bool, len(m.Faces))
	for seed := range m.Faces {
		if seen[seed] {
			continue
		}
		queue := []int{seed}
		seen[seed] = true
		for len(queue) > 0 {
			fi := queue[0]
			queue = queue[1:]
			f := m.Faces[fi]
			for i := 0; i < 3; i++ {
				a, b := f[i], f[(i+1)%3]
				for _, ni := range faceByEdge[undirected(a, b)] {
					if ni == fi || seen[ni] {
						continue
					}
					// The neighbor must traverse the shared edge b->a.
					if hasDirectedEdge(m.Faces[ni], a, b) {
						m.Faces[ni][0], m.Faces[ni][1] = m.Faces[ni][1], m.Faces[ni][0]
					}
					seen[ni] = true
					queue = append(queue, ni)
				}
			}
		}
	}
}

func hasDirectedEdge(f [3]int, a, b int) bool {
	for i := 0; i < 3; i++ {
		if f[i] == a && f[(i+1)%3] == b {
			return true
		}
	}
	return false
}

// SignedVolume returns the volume enclosed by the mesh via the divergence
// theorem. Positive for outward-facing winding.
func (m *Mesh) SignedVolume() float64 {
	total := 0.0
	for _, f := range m.Faces {
		a, b, c := m.Vertices[f[0]], m.Vertices[f[1]], m.Vertices[f[2]]
		total += a.X*(b.Y*c.Z-b.Z*c.Y) - a.Y*(b.X*c.Z-b.Z*c.X) + a.Z*(b.X*c.Y-b.Y*c.X)
	}
	return total / 6
}

// Invert flips the winding of every face.
func (m *Mesh) Invert() {
	for i := range m.Faces {
		m.Faces[i][0], m.Faces[i][1] = m.Faces[i][1], m.Faces[i][0]
	}
}

// Bounds returns the axis-aligned bounding box of the mesh.
func (m *Mesh) Bounds() (min, max Vec3) {
	if len(m.Vertices) == 0 {
		return
	}
	min, max = m.Vertices[0], m.Vertices[0]
	for _, v := range m.Vertices[1:] {
		min.X = math.Min(min.X, v.X)
		min.Y = math.Min(min.Y, v.Y)
		min.Z = math.Min(min.Z, v.Z)
		max.X = math.Max(max.X, v.X)
		max.Y = math.Max(max.Y, v.Y)
		max.Z = math.Max(max.Z, v.Z)
	}
	return
}

// SaveSTL writes the mesh as a binary STL file.
func (m *Mesh) SaveSTL(path string) error {
	out := model3d.NewMesh()
	for _, f := range m.Faces {
		a, b, c := m.Vertices[f[0]], m.Vertices[f[1]], m.Vertices[f[2]]
		out.Add(&model3d.Triangle{
			model3d.XYZ(a.X, a.Y, a.Z),
			model3d.XYZ(b.X, b.Y, b.Z),
			model3d.XYZ(c.X, c.Y, c.Z),
		})
	}
	if err := out.SaveGroupedSTL(path); err != nil {
		return fmt.Errorf("failed to write stl: %w", err)
	}
	return nil
}

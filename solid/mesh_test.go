package solid

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// tetrahedron returns a closed, outward-wound tetrahedron of volume 1/6.
func tetrahedron() *Mesh {
	m := NewMesh()
	a := m.AddVertex(Vec3{0, 0, 0})
	b := m.AddVertex(Vec3{1, 0, 0})
	c := m.AddVertex(Vec3{0, 1, 0})
	d := m.AddVertex(Vec3{0, 0, 1})
	m.AddTriangle(a, c, b)
	m.AddTriangle(a, b, d)
	m.AddTriangle(b, c, d)
	m.AddTriangle(a, d, c)
	return m
}

func TestSignedVolumeTetrahedron(t *testing.T) {
	m := tetrahedron()
	assert.InDelta(t, 1.0/6, m.SignedVolume(), 1e-12)

	m.Invert()
	assert.InDelta(t, -1.0/6, m.SignedVolume(), 1e-12)
}

func TestIsWindingConsistent(t *testing.T) {
	m := tetrahedron()
	assert.True(t, m.IsWindingConsistent())

	// Flip one face: two edges are now traversed twice in one direction.
	m.Faces[0][0], m.Faces[0][1] = m.Faces[0][1], m.Faces[0][0]
	assert.False(t, m.IsWindingConsistent())
}

func TestOrientConsistently(t *testing.T) {
	m := tetrahedron()
	m.Faces[2][0], m.Faces[2][1] = m.Faces[2][1], m.Faces[2][0]
	require.False(t, m.IsWindingConsistent())

	m.OrientConsistently()
	assert.True(t, m.IsWindingConsistent())

	// Orientation is consistent but may be globally inverted; the volume
	// sign check is the caller's job.
	if m.SignedVolume() < 0 {
		m.Invert()
	}
	assert.InDelta(t, 1.0/6, m.SignedVolume(), 1e-12)
}

func TestMergeVertices(t *testing.T) {
	m := NewMesh()
	a := m.AddVertex(Vec3{0, 0, 0})
	b := m.AddVertex(Vec3{1, 0, 0})
	c := m.AddVertex(Vec3{0, 1, 0})
	// Duplicate of a, within epsilon.
	a2 := m.AddVertex(Vec3{1e-9, 0, 0})
	m.AddTriangle(a, b, c)
	m.AddTriangle(a2, b, c)

	m.MergeVertices(1e-6)
	assert.Len(t, m.Vertices, 3)
	assert.Len(t, m.Faces, 2)
}

func TestMergeVerticesDropsDegenerateFaces(t *testing.T) {
	m := NewMesh()
	a := m.AddVertex(Vec3{0, 0, 0})
	b := m.AddVertex(Vec3{1e-9, 0, 0}) // collapses onto a
	c := m.AddVertex(Vec3{0, 1, 0})
	m.AddTriangle(a, b, c)

	m.MergeVertices(1e-6)
	assert.Empty(t, m.Faces)
}

func TestAppendReindexesFaces(t *testing.T) {
	m := tetrahedron()
	other := tetrahedron()
	vol := m.SignedVolume()

	m.Append(other)
	assert.Len(t, m.Vertices, 8)
	assert.Len(t, m.Faces, 8)
	assert.InDelta(t, 2*vol, m.SignedVolume(), 1e-12)
}

func TestBounds(t *testing.T) {
	m := tetrahedron()
	min, max := m.Bounds()
	assert.Equal(t, Vec3{0, 0, 0}, min)
	assert.Equal(t, Vec3{1, 1, 1}, max)
}

func TestSaveSTL(t *testing.T) {
	m := tetrahedron()
	path := filepath.Join(t.TempDir(), "tetra.stl")
	require.NoError(t, m.SaveSTL(path))

	fi, err := os.Stat(path)
	require.NoError(t, err)
	assert.Greater(t, fi.Size(), int64(0))
}

func TestBoundaryEdgesAllowed(t *testing.T) {
	// An open quad strip (single tube segment) has boundary edges but is
	// still winding-consistent.
	m := NewMesh()
	n := 8
	base := make([]int, n)
	top := make([]int, n)
	for i := 0; i < n; i++ {
		a := 2 * math.Pi * float64(i) / float64(n)
		base[i] = m.AddVertex(Vec3{math.Cos(a), math.Sin(a), 0})
		top[i] = m.AddVertex(Vec3{math.Cos(a), math.Sin(a), 1})
	}
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		m.AddTriangle(base[i], base[j], top[i])
		m.AddTriangle(base[j], top[j], top[i])
	}
	assert.True(t, m.IsWindingConsistent())
}

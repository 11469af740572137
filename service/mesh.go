package service

import (
	"fmt"
	"math"
	"time"

	"github.com/seaburr/cookie-cutter-maker/config"
	"github.com/seaburr/cookie-cutter-maker/geometry"
	"github.com/seaburr/cookie-cutter-maker/model"
	"github.com/seaburr/cookie-cutter-maker/solid"
	"github.com/seaburr/cookie-cutter-maker/utils"
	"go.uber.org/zap"
)

const (
	// minWallMM is the printability floor for any wall thickness.
	minWallMM = 0.45
	// growStepMM / maxGrowAttempts bound the outward growth retries when the
	// inward wall offset collapses on a thin outline.
	growStepMM      = 0.5
	maxGrowAttempts = 10
	// maxTaperStepMM caps the height of each taper sub-ring.
	maxTaperStepMM = 0.25
	// defaultSamples is the ring vertex count when the caller passes none.
	defaultSamples = 520
	// mergeEpsMM collapses coincident vertices during assembly.
	mergeEpsMM = 1e-6
)

// MeshService turns a traced polygon into a hollow, open-ended cutter shell
// and writes it as an STL file. Synthesis is CPU-heavy, so concurrent
// requests pass through a semaphore with a bounded queue wait.
type MeshService struct {
	cfg          config.MeshConfig
	sem          chan struct{}
	queueTimeout time.Duration
}

func NewMeshService(cfg config.MeshConfig) *MeshService {
	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	queueTimeout := time.Duration(cfg.QueueTimeout) * time.Second
	if queueTimeout <= 0 {
		queueTimeout = 60 * time.Second
	}
	return &MeshService{
		cfg:          cfg,
		sem:          make(chan struct{}, maxConcurrent),
		queueTimeout: queueTimeout,
	}
}

// DefaultParams returns the configured dimensional defaults.
func (s *MeshService) DefaultParams() model.MeshParams {
	return model.MeshParams{
		TargetWidthMM:       s.cfg.TargetWidthMM,
		WallMM:              s.cfg.WallMM,
		TotalHeightMM:       s.cfg.TotalHeightMM,
		FlangeHeightMM:      s.cfg.FlangeHeightMM,
		FlangeOutMM:         s.cfg.FlangeOutMM,
		CleanupMM:           s.cfg.CleanupMM,
		TipSmoothMM:         s.cfg.TipSmoothMM,
		BevelHeightMM:       s.cfg.BevelHeightMM,
		BevelTopWallMM:      s.cfg.BevelTopWallMM,
		Samples:             s.cfg.Samples,
		MinComponentAreaMM2: s.cfg.MinComponentAreaMM2,
	}
}

// Synthesize builds the cutter mesh for the polygon and writes it to stlPath.
// It blocks up to the queue timeout waiting for a synthesis slot.
func (s *MeshService) Synthesize(pg *geometry.Polygon, stlPath string, params model.MeshParams) error {
	select {
	case s.sem <- struct{}{}:
		defer func() { <-s.sem }()
	case <-time.After(s.queueTimeout):
		return fmt.Errorf("server busy, please try again later")
	}

	start := time.Now()
	mesh, err := s.Build(pg, params)
	if err != nil {
		return err
	}
	if err := mesh.SaveSTL(stlPath); err != nil {
		return err
	}
	utils.Logger.Info("synthesized cutter mesh",
		zap.String("stl", stlPath),
		zap.Int("vertices", len(mesh.Vertices)),
		zap.Int("faces", len(mesh.Faces)),
		zap.Duration("elapsed", time.Since(start)))
	return nil
}

// Build runs the synthesis pipeline without the concurrency guard or file
// output. Deterministic given identical inputs.
func (s *MeshService) Build(pg *geometry.Polygon, params model.MeshParams) (*solid.Mesh, error) {
	if pg == nil || len(pg.Outer) < 3 {
		return nil, ErrEmptyPolygon
	}

	// Repair and force consistent winding before any measurement.
	repaired := geometry.Largest(geometry.Repair(pg.Rings()))
	if repaired == nil {
		return nil, ErrEmptyPolygon
	}

	width := repaired.Width()
	if width <= 0 {
		return nil, ErrZeroWidth
	}
	repaired.Scale(params.TargetWidthMM / width)

	if !params.KeepHoles {
		repaired.DropHoles()
	}

	components := []*geometry.Polygon{repaired}
	if params.CleanupMM > 0 {
		components = bufferRoundTrip(components, params.CleanupMM)
	}
	if params.TipSmoothMM > 0 {
		components = bufferRoundTrip(components, -params.TipSmoothMM)
	}
	components = s.filterComponents(components, params.MinComponentAreaMM2)
	if len(components) == 0 {
		return nil, ErrEmptyPolygon
	}

	mesh := solid.NewMesh()
	for _, comp := range components {
		shell, err := s.buildShell(comp, params)
		if err != nil {
			return nil, err
		}
		mesh.Append(shell)
	}

	mesh.MergeVertices(mergeEpsMM)
	if !mesh.IsWindingConsistent() {
		mesh.OrientConsistently()
	}
	if mesh.SignedVolume() < 0 {
		mesh.Invert()
	}
	return mesh, nil
}

// bufferRoundTrip offsets the components by d then back by -d. Outward first
// (d > 0) erases concave noise narrower than d; inward first (d < 0) erases
// convex spikes narrower than d. The mean boundary position is preserved.
func bufferRoundTrip(components []*geometry.Polygon, d float64) []*geometry.Polygon {
	out := geometry.OffsetRings(collectRings(components), d)
	if len(out) == 0 {
		return nil
	}
	return geometry.OffsetRings(collectRings(out), -d)
}

// filterComponents drops components below the minimum area; if none survive,
// the single largest is kept.
func (s *MeshService) filterComponents(components []*geometry.Polygon, minAreaMM2 float64) []*geometry.Polygon {
	if len(components) <= 1 || minAreaMM2 <= 0 {
		return components
	}
	kept := components[:0]
	for _, c := range components {
		if c.Area() >= minAreaMM2 {
			kept = append(kept, c)
		}
	}
	if len(kept) == 0 {
		if largest := geometry.Largest(components); largest != nil {
			return []*geometry.Polygon{largest}
		}
		return nil
	}
	return kept
}

// buildShell constructs the open-ended wall plus base flange for one
// component.
func (s *MeshService) buildShell(outer *geometry.Polygon, params model.MeshParams) (*solid.Mesh, error) {
	wall := math.Max(params.WallMM, minWallMM)

	// Inward wall offset, growing the outline when it collapses on thin
	// shapes. Growth changes the final size slightly; correctness of the
	// wall beats exact width here.
	inner := geometry.Offset(outer, -wall)
	for attempt := 0; totalArea(inner) <= 0 && attempt < maxGrowAttempts; attempt++ {
		grown := geometry.Largest(geometry.Offset(outer, growStepMM))
		if grown == nil {
			break
		}
		outer = grown
		inner = geometry.Offset(outer, -wall)
	}
	if totalArea(inner) <= 0 {
		return nil, ErrInnerCollapsed
	}

	samples := params.Samples
	if samples <= 0 {
		samples = defaultSamples
	}
	height := params.TotalHeightMM

	mesh := solid.NewMesh()

	// Body walls. The shell must stay open at both ends so the cutter can
	// press through dough; no caps are ever generated.
	if taperDepth, ok := s.taperDepth(outer, inner, wall, params); ok {
		s.buildTaperedBody(mesh, outer, inner, taperDepth, height, params.BevelHeightMM, samples)
	} else {
		s.buildStraightBody(mesh, outer, inner, height, samples)
	}

	// Base flange for table grip.
	if params.FlangeOutMM > 0 && params.FlangeHeightMM > 0 {
		flange := geometry.Offset(outer, params.FlangeOutMM)
		for _, fp := range flange {
			for _, r := range fp.Rings() {
				extrudeRing(mesh, geometry.Resample(r, samples), 0, params.FlangeHeightMM, false)
			}
		}
		for _, r := range outer.Rings() {
			extrudeRing(mesh, geometry.Resample(r, samples), 0, params.FlangeHeightMM, true)
		}
	}

	return mesh, nil
}

// taperDepth decides whether a tapered cutting edge is usable and returns the
// inward offset of the top ring relative to the outer footprint. The inward
// offset at the taper target must leave strictly more area than the inner
// ring, otherwise the outer face would cross the inner wall.
func (s *MeshService) taperDepth(outer *geometry.Polygon, inner []*geometry.Polygon, wall float64, params model.MeshParams) (float64, bool) {
	if params.BevelHeightMM <= 0 {
		return 0, false
	}
	topWall := math.Max(params.BevelTopWallMM, minWallMM)
	if topWall >= wall {
		return 0, false
	}
	depth := wall - topWall
	top := geometry.Offset(outer, -depth)
	if a := totalArea(top); a <= 0 || a <= totalArea(inner) {
		return 0, false
	}
	return depth, true
}

// buildStraightBody extrudes every boundary ring of the wall region (outer
// region minus inner region) for the full height. Outer-region rings face out
// of the material; inner-region rings face into the cavity.
func (s *MeshService) buildStraightBody(mesh *solid.Mesh, outer *geometry.Polygon, inner []*geometry.Polygon, height float64, samples int) {
	for _, r := range outer.Rings() {
		extrudeRing(mesh, geometry.Resample(r, samples), 0, height, false)
	}
	for _, ip := range inner {
		for _, r := range ip.Rings() {
			extrudeRing(mesh, geometry.Resample(r, samples), 0, height, true)
		}
	}
}

// buildTaperedBody narrows the outer face toward the cutting edge with a
// stack of phase-aligned rings; the inner wall stays vertical so the cavity
// keeps the traced shape.
func (s *MeshService) buildTaperedBody(mesh *solid.Mesh, outer *geometry.Polygon, inner []*geometry.Polygon, taperDepth, height, bevelHeight float64, samples int) {
	type level struct {
		z      float64
		offset float64
	}
	bevelStart := height - bevelHeight
	levels := []level{{z: 0, offset: 0}}
	if bevelStart > 0 {
		levels = append(levels, level{z: bevelStart, offset: 0})
	} else {
		bevelStart = 0
	}
	steps := int(math.Ceil((height - bevelStart) / maxTaperStepMM))
	if steps < 1 {
		steps = 1
	}
	for k := 1; k <= steps; k++ {
		t := float64(k) / float64(steps)
		levels = append(levels, level{
			z:      bevelStart + t*(height-bevelStart),
			offset: t * taperDepth,
		})
	}

	prev := geometry.Resample(outer.Outer, samples)
	prevZ := levels[0].z
	for _, lv := range levels[1:] {
		ring := outer.Outer
		if lv.offset > 0 {
			shrunk := geometry.Largest(geometry.Offset(outer, -lv.offset))
			if shrunk == nil {
				break
			}
			ring = shrunk.Outer
		}
		cur := geometry.AlignRingPhase(geometry.Resample(ring, samples), prev)
		stitchRings(mesh, prev, cur, prevZ, lv.z, false)
		prev, prevZ = cur, lv.z
	}

	// Outer-region holes and the inner wall are never tapered.
	for _, h := range outer.Holes {
		extrudeRing(mesh, geometry.Resample(h, samples), 0, height, false)
	}
	for _, ip := range inner {
		for _, r := range ip.Rings() {
			extrudeRing(mesh, geometry.Resample(r, samples), 0, height, true)
		}
	}
}

// stitchRings joins two rings of equal vertex count with a quad strip, two
// triangles per quad. With flip false and a counter-clockwise ring, the strip
// faces away from the ring interior.
func stitchRings(mesh *solid.Mesh, bottom, top geometry.Ring, z0, z1 float64, flip bool) {
	n := len(bottom)
	if n == 0 || len(top) != n {
		return
	}
	base := make([]int, n)
	crown := make([]int, n)
	for i := 0; i < n; i++ {
		base[i] = mesh.AddVertex(solid.Vec3{X: bottom[i].X, Y: bottom[i].Y, Z: z0})
		crown[i] = mesh.AddVertex(solid.Vec3{X: top[i].X, Y: top[i].Y, Z: z1})
	}
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		if flip {
			mesh.AddTriangle(base[i], crown[i], base[j])
			mesh.AddTriangle(base[j], crown[i], crown[j])
		} else {
			mesh.AddTriangle(base[i], base[j], crown[i])
			mesh.AddTriangle(base[j], crown[j], crown[i])
		}
	}
}

// extrudeRing builds a vertical wall over one ring.
func extrudeRing(mesh *solid.Mesh, ring geometry.Ring, z0, z1 float64, flip bool) {
	stitchRings(mesh, ring, ring, z0, z1, flip)
}

func collectRings(components []*geometry.Polygon) []geometry.Ring {
	var out []geometry.Ring
	for _, c := range components {
		out = append(out, c.Rings()...)
	}
	return out
}

func totalArea(components []*geometry.Polygon) float64 {
	total := 0.0
	for _, c := range components {
		total += c.Area()
	}
	return total
}

package service

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"github.com/seaburr/cookie-cutter-maker/config"
	"github.com/seaburr/cookie-cutter-maker/geometry"
	"github.com/seaburr/cookie-cutter-maker/model"
)

func newTraceService() *TraceService {
	cfg := config.Default()
	return NewTraceService(cfg.Trace, cfg.Extract, cfg.Segment, nil)
}

func writeTestPNG(t *testing.T, img gocv.Mat) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "input.png")
	require.True(t, gocv.IMWrite(path, img), "failed to write test png")
	return path
}

func TestTraceSquare(t *testing.T) {
	img := newBGR(200, 200, 255, 255, 255)
	defer img.Close()
	fillRectBGR(&img, 50, 50, 150, 150, 0, 0, 0)
	path := writeTestPNG(t, img)
	svgPath := filepath.Join(filepath.Dir(path), "outline.svg")

	s := newTraceService()
	pg, svg, mode, warning, err := s.Trace(path, svgPath, TraceOptions{Mode: model.ModeBinary})
	require.NoError(t, err)

	assert.Equal(t, model.ModeBinary, mode)
	assert.Empty(t, warning)
	require.NotNil(t, pg)

	// A square spanning half of each image dimension encloses about a
	// quarter of the unit viewport.
	area := pg.Area()
	assert.Greater(t, area, 0.20)
	assert.Less(t, area, 0.30)

	// Coordinates are normalized and Y-flipped.
	min, max := pg.Bounds()
	assert.GreaterOrEqual(t, min.X, 0.0)
	assert.LessOrEqual(t, max.X, 1.0)
	assert.GreaterOrEqual(t, min.Y, 0.0)
	assert.LessOrEqual(t, max.Y, 1.0)

	assert.Contains(t, svg, "<svg")
	data, err := os.ReadFile(svgPath)
	require.NoError(t, err)
	assert.Equal(t, svg, string(data))
}

func TestTraceAllWhiteFails(t *testing.T) {
	img := newBGR(200, 200, 255, 255, 255)
	defer img.Close()
	path := writeTestPNG(t, img)

	s := newTraceService()
	_, _, _, _, err := s.Trace(path, "", TraceOptions{Mode: model.ModeBinary})
	assert.True(t, errors.Is(err, ErrNoContours), "got %v", err)
}

func TestTraceMissingFile(t *testing.T) {
	s := newTraceService()
	_, _, _, _, err := s.Trace("/nonexistent/input.png", "", TraceOptions{})
	assert.Error(t, err)
}

func TestTraceAutoResolvesMode(t *testing.T) {
	img := newBGR(200, 200, 255, 255, 255)
	defer img.Close()
	fillRectBGR(&img, 50, 50, 150, 150, 0, 0, 0)
	path := writeTestPNG(t, img)

	s := newTraceService()
	_, _, mode, _, err := s.Trace(path, "", TraceOptions{})
	require.NoError(t, err)
	assert.NotEqual(t, model.ModeAuto, mode)
}

func TestTracePicksLargestContour(t *testing.T) {
	// A big square and a small speck: the square must win.
	img := newBGR(200, 200, 255, 255, 255)
	defer img.Close()
	fillRectBGR(&img, 40, 40, 160, 160, 0, 0, 0)
	fillRectBGR(&img, 5, 5, 12, 12, 0, 0, 0)
	path := writeTestPNG(t, img)

	s := newTraceService()
	pg, _, _, _, err := s.Trace(path, "", TraceOptions{Mode: model.ModeBinary})
	require.NoError(t, err)

	c := pg.Outer.Centroid()
	assert.InDelta(t, 0.5, c.X, 0.05)
	assert.InDelta(t, 0.5, c.Y, 0.05)
}

func TestTraceIdempotent(t *testing.T) {
	img := newBGR(200, 200, 255, 255, 255)
	defer img.Close()
	fillRectBGR(&img, 50, 50, 150, 150, 0, 0, 0)
	path := writeTestPNG(t, img)

	s := newTraceService()
	first, _, _, _, err := s.Trace(path, "", TraceOptions{Mode: model.ModeBinary})
	require.NoError(t, err)
	second, _, _, _, err := s.Trace(path, "", TraceOptions{Mode: model.ModeBinary})
	require.NoError(t, err)

	assert.Equal(t, first.Outer, second.Outer, "same input must trace to identical coordinates")
}

func TestRenderSVG(t *testing.T) {
	pg := &geometry.Polygon{
		Outer: geometry.Ring{{0.1, 0.1}, {0.9, 0.1}, {0.9, 0.9}, {0.1, 0.9}},
	}
	svg := RenderSVG(pg)

	assert.Contains(t, svg, `viewBox="0 0 1 1"`)
	assert.Contains(t, svg, `translate(0,1) scale(1,-1)`)
	assert.Contains(t, svg, "M 0.100000,0.100000")
	assert.True(t, strings.Contains(svg, " Z"))
}

func TestRenderSVGWithHole(t *testing.T) {
	pg := &geometry.Polygon{
		Outer: geometry.Ring{{0, 0}, {1, 0}, {1, 1}, {0, 1}},
		Holes: []geometry.Ring{{{0.4, 0.4}, {0.4, 0.6}, {0.6, 0.6}, {0.6, 0.4}}},
	}
	svg := RenderSVG(pg)
	assert.Equal(t, 2, strings.Count(svg, "M "), "one subpath per ring")
	assert.Equal(t, 2, strings.Count(svg, " Z"))
}

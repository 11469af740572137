package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seaburr/cookie-cutter-maker/config"
	"github.com/seaburr/cookie-cutter-maker/model"
)

func newExtractService() *ExtractService {
	cfg := config.Default()
	return NewExtractService(cfg.Extract, cfg.Segment, nil)
}

func TestExtractBinary(t *testing.T) {
	img := newBGR(200, 200, 255, 255, 255)
	defer img.Close()
	fillRectBGR(&img, 50, 50, 150, 150, 0, 0, 0)

	s := newExtractService()
	mask, mode, warning, err := s.Extract(img, model.ModeBinary)
	require.NoError(t, err)
	defer mask.Close()

	assert.Equal(t, model.ModeBinary, mode)
	assert.Empty(t, warning)
	assert.Equal(t, uint8(255), mask.GetUCharAt(100, 100))
	assert.Equal(t, uint8(0), mask.GetUCharAt(10, 10))
	assert.Equal(t, 100*100, countMask(mask))
}

func TestExtractBinaryThresholdBoundary(t *testing.T) {
	// threshold 200: luminance 199 is foreground, 200 is background.
	img := newBGR(50, 100, 199, 199, 199)
	defer img.Close()
	fillRectBGR(&img, 50, 0, 100, 50, 200, 200, 200)

	s := newExtractService()
	mask, _, _, err := s.Extract(img, model.ModeBinary)
	require.NoError(t, err)
	defer mask.Close()

	assert.Equal(t, uint8(255), mask.GetUCharAt(25, 25))
	assert.Equal(t, uint8(0), mask.GetUCharAt(25, 75))
}

func TestExtractAutoSelectsBinary(t *testing.T) {
	img := newBGR(200, 200, 255, 255, 255)
	defer img.Close()
	fillRectBGR(&img, 50, 50, 150, 150, 0, 0, 0)

	s := newExtractService()
	mask, mode, _, err := s.Extract(img, model.ModeAuto)
	require.NoError(t, err)
	defer mask.Close()

	assert.Equal(t, model.ModeBinary, mode, "auto must resolve to a concrete mode")
}

func TestExtractUniformBackground(t *testing.T) {
	// Red subject on a uniform blue background: large Lab distance.
	img := newBGR(200, 200, 200, 100, 50)
	defer img.Close()
	fillRectBGR(&img, 60, 60, 140, 140, 30, 30, 220)

	s := newExtractService()
	mask, mode, warning, err := s.Extract(img, model.ModeUniformBG)
	require.NoError(t, err)
	defer mask.Close()

	assert.Equal(t, model.ModeUniformBG, mode)
	assert.Empty(t, warning)
	assert.Equal(t, uint8(255), mask.GetUCharAt(100, 100))
	assert.Equal(t, uint8(0), mask.GetUCharAt(10, 10))

	// The subject square survives morphological cleanup roughly intact.
	n := countMask(mask)
	assert.InDelta(t, 80*80, n, 80*80*0.15)
}

func TestExtractComplexFallbackWarns(t *testing.T) {
	// No neural model wired: the segmentation fallback must still produce
	// a central-subject mask and flag degraded quality.
	img := newBGR(200, 200, 255, 255, 255)
	defer img.Close()
	fillRectBGR(&img, 60, 60, 140, 140, 30, 30, 220)

	s := newExtractService()
	mask, mode, warning, err := s.Extract(img, model.ModeComplex)
	require.NoError(t, err)
	defer mask.Close()

	assert.Equal(t, model.ModeComplex, mode)
	assert.NotEmpty(t, warning)
	assert.Equal(t, uint8(255), mask.GetUCharAt(100, 100))
	assert.Equal(t, uint8(0), mask.GetUCharAt(10, 10))
}

func TestExtractUnknownMode(t *testing.T) {
	img := newBGR(10, 10, 0, 0, 0)
	defer img.Close()

	s := newExtractService()
	_, _, _, err := s.Extract(img, model.ExtractionMode("bogus"))
	assert.Error(t, err)
}

func TestCornerMedianLab(t *testing.T) {
	img := newBGR(100, 100, 200, 100, 50)
	defer img.Close()

	lab := labFloat(img)
	defer lab.Close()
	bg := cornerMedianLab(lab)

	// Every pixel has the same colour, so the median equals any sample.
	v := lab.GetVecfAt(50, 50)
	assert.InDelta(t, float64(v[0]), bg[0], 1e-3)
	assert.InDelta(t, float64(v[1]), bg[1], 1e-3)
	assert.InDelta(t, float64(v[2]), bg[2], 1e-3)
}

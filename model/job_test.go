package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seaburr/cookie-cutter-maker/geometry"
)

func TestParseExtractionMode(t *testing.T) {
	for _, s := range []string{"auto", "binary", "uniform_bg", "complex"} {
		mode, err := ParseExtractionMode(s)
		require.NoError(t, err)
		assert.Equal(t, ExtractionMode(s), mode)
	}

	mode, err := ParseExtractionMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeAuto, mode)

	_, err = ParseExtractionMode("grabcut")
	assert.Error(t, err)
}

func TestPolygonRecordRoundTrip(t *testing.T) {
	pg := &geometry.Polygon{
		Outer: geometry.Ring{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 1, Y: 1}, {X: 0, Y: 1}},
		Holes: []geometry.Ring{{{X: 0.25, Y: 0.25}, {X: 0.25, Y: 0.75}, {X: 0.75, Y: 0.75}, {X: 0.75, Y: 0.25}}},
	}

	rec := NewPolygonRecord(pg)
	back := rec.Polygon()

	assert.Equal(t, pg.Outer, back.Outer)
	require.Len(t, back.Holes, 1)
	assert.Equal(t, pg.Holes[0], back.Holes[0])
}

func TestPolygonRecordJSON(t *testing.T) {
	rec := PolygonRecord{Exterior: [][2]float64{{0, 0}, {1, 0}, {0.5, 1}}}
	data, err := json.Marshal(rec)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"exterior"`)
	assert.NotContains(t, string(data), `"holes"`, "empty holes are omitted")

	var back PolygonRecord
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, rec, back)
}

func TestTraceRecordJSON(t *testing.T) {
	rec := TraceRecord{
		JobID:   "abc123",
		Name:    "star.png",
		Mode:    ModeBinary,
		SVGPath: "/output/abc123/outline.svg",
		Polygon: PolygonRecord{Exterior: [][2]float64{{0, 0}, {1, 0}, {0.5, 1}}},
	}
	data, err := json.Marshal(rec)
	require.NoError(t, err)

	var back TraceRecord
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, rec, back)
	assert.NotContains(t, string(data), `"warning"`, "empty warning is omitted")
}

func TestMeshParamsJSONTags(t *testing.T) {
	p := MeshParams{TargetWidthMM: 95, WallMM: 1, Samples: 520}
	data, err := json.Marshal(p)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"width_mm":95`)
	assert.Contains(t, string(data), `"wall_mm":1`)
	assert.Contains(t, string(data), `"samples":520`)
}

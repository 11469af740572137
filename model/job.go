package model

import (
	"fmt"

	"github.com/seaburr/cookie-cutter-maker/geometry"
)

// ExtractionMode selects the foreground extraction strategy. The set of
// strategies is closed; Auto is a request-only meta value resolved by the
// classifier and never stored in results.
type ExtractionMode string

const (
	ModeAuto      ExtractionMode = "auto"
	ModeBinary    ExtractionMode = "binary"
	ModeUniformBG ExtractionMode = "uniform_bg"
	ModeComplex   ExtractionMode = "complex"
)

// ParseExtractionMode validates a wire-format mode string.
func ParseExtractionMode(s string) (ExtractionMode, error) {
	switch ExtractionMode(s) {
	case ModeAuto, ModeBinary, ModeUniformBG, ModeComplex:
		return ExtractionMode(s), nil
	case "":
		return ModeAuto, nil
	}
	return "", fmt.Errorf("unknown extraction mode %q (want auto, binary, uniform_bg or complex)", s)
}

// PolygonRecord is the serialized ring-of-points form of a traced polygon,
// persisted between the trace and mesh stages.
type PolygonRecord struct {
	Exterior [][2]float64   `json:"exterior"`
	Holes    [][][2]float64 `json:"holes,omitempty"`
}

// NewPolygonRecord captures a geometry polygon into its persisted form.
func NewPolygonRecord(pg *geometry.Polygon) PolygonRecord {
	rec := PolygonRecord{Exterior: ringToPairs(pg.Outer)}
	for _, h := range pg.Holes {
		rec.Holes = append(rec.Holes, ringToPairs(h))
	}
	return rec
}

// Polygon rebuilds the geometry polygon from the record.
func (r PolygonRecord) Polygon() *geometry.Polygon {
	pg := &geometry.Polygon{Outer: pairsToRing(r.Exterior)}
	for _, h := range r.Holes {
		pg.Holes = append(pg.Holes, pairsToRing(h))
	}
	return pg
}

func ringToPairs(ring geometry.Ring) [][2]float64 {
	out := make([][2]float64, len(ring))
	for i, p := range ring {
		out[i] = [2]float64{p.X, p.Y}
	}
	return out
}

func pairsToRing(pairs [][2]float64) geometry.Ring {
	out := make(geometry.Ring, len(pairs))
	for i, p := range pairs {
		out[i] = geometry.Point{X: p[0], Y: p[1]}
	}
	return out
}

// TraceRecord is the cached result of one trace request.
type TraceRecord struct {
	JobID     string         `json:"job_id"`
	Name      string         `json:"name"`
	Mode      ExtractionMode `json:"extraction_mode"`
	Warning   string         `json:"warning,omitempty"`
	SVGPath   string         `json:"svg_path"`
	Polygon   PolygonRecord  `json:"polygon"`
	Timestamp int64          `json:"timestamp"`
}

// MeshParams are the dimensional parameters of the cutter solid. All values
// are millimeters except Samples (ring vertex count) and KeepHoles.
type MeshParams struct {
	TargetWidthMM       float64 `json:"width_mm"`
	WallMM              float64 `json:"wall_mm"`
	TotalHeightMM       float64 `json:"total_h_mm"`
	FlangeHeightMM      float64 `json:"flange_h_mm"`
	FlangeOutMM         float64 `json:"flange_out_mm"`
	CleanupMM           float64 `json:"cleanup_mm"`
	TipSmoothMM         float64 `json:"tip_smooth_mm"`
	BevelHeightMM       float64 `json:"bevel_h_mm"`
	BevelTopWallMM      float64 `json:"bevel_top_wall_mm"`
	Samples             int     `json:"samples"`
	KeepHoles           bool    `json:"keep_holes"`
	MinComponentAreaMM2 float64 `json:"min_component_area_mm2"`
}

// TraceData is the trace endpoint payload.
type TraceData struct {
	JobID          string         `json:"job_id"`
	PNG            string         `json:"png"`
	SVG            string         `json:"svg"`
	ExtractionMode ExtractionMode `json:"extraction_mode"`
	Warning        string         `json:"warning,omitempty"`
	Cached         bool           `json:"cached,omitempty"`
}

// PipelineData is the one-shot pipeline / mesh endpoint payload.
type PipelineData struct {
	JobID          string         `json:"job_id"`
	PNG            string         `json:"png,omitempty"`
	SVG            string         `json:"svg,omitempty"`
	STL            string         `json:"stl"`
	Zip            string         `json:"zip,omitempty"`
	ExtractionMode ExtractionMode `json:"extraction_mode,omitempty"`
	Warning        string         `json:"warning,omitempty"`
}

// TraceResponse wraps TraceData.
type TraceResponse struct {
	Success bool       `json:"success"`
	Message string     `json:"message"`
	Data    *TraceData `json:"data,omitempty"`
}

// PipelineResponse wraps PipelineData.
type PipelineResponse struct {
	Success bool          `json:"success"`
	Message string        `json:"message"`
	Data    *PipelineData `json:"data,omitempty"`
}

// ErrorResponse is the error payload shared by all endpoints.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

package service

import (
	"fmt"
	"image"
	"os"
	"strings"

	"gocv.io/x/gocv"

	"github.com/seaburr/cookie-cutter-maker/config"
	"github.com/seaburr/cookie-cutter-maker/geometry"
	"github.com/seaburr/cookie-cutter-maker/model"
	"github.com/seaburr/cookie-cutter-maker/utils"
	"go.uber.org/zap"
)

// TraceOptions are the per-request knobs of the tracing stage. Zero values
// fall back to the configured defaults.
type TraceOptions struct {
	Mode            model.ExtractionMode
	Threshold       int
	DeltaEThreshold float64
	SimplifyEpsilon float64
	SmoothRadius    float64
}

// TraceService converts a raster image into a single simplified polygon in
// normalized [0,1] coordinates (Y up) plus an SVG preview.
type TraceService struct {
	cfg        config.TraceConfig
	extractCfg config.ExtractConfig
	segCfg     config.SegmentConfig
	rembg      BackgroundRemover
}

func NewTraceService(cfg config.TraceConfig, extractCfg config.ExtractConfig, segCfg config.SegmentConfig, rembg BackgroundRemover) *TraceService {
	return &TraceService{
		cfg:        cfg,
		extractCfg: extractCfg,
		segCfg:     segCfg,
		rembg:      rembg,
	}
}

// Trace loads the image at imagePath, extracts the foreground, traces and
// simplifies its boundary, and writes an SVG preview to svgPath. It returns
// the repaired polygon, the SVG markup, the extraction mode actually used
// and any extraction warning.
func (s *TraceService) Trace(imagePath, svgPath string, opts TraceOptions) (*geometry.Polygon, string, model.ExtractionMode, string, error) {
	img := gocv.IMRead(imagePath, gocv.IMReadColor)
	if img.Empty() {
		return nil, "", "", "", fmt.Errorf("failed to read image: %s", imagePath)
	}
	defer img.Close()

	smoothRadius := opts.SmoothRadius
	if smoothRadius == 0 {
		smoothRadius = s.cfg.SmoothRadius
	}
	if smoothRadius > 0 {
		blurred := gocv.NewMat()
		gocv.GaussianBlur(img, &blurred, image.Point{}, smoothRadius, smoothRadius, gocv.BorderDefault)
		img.Close()
		img = blurred
	}

	mask, mode, warning, err := s.extract(img, opts)
	if err != nil {
		return nil, "", "", "", err
	}
	defer mask.Close()

	ring, err := s.traceMask(mask)
	if err != nil {
		return nil, "", mode, warning, err
	}

	simplify := opts.SimplifyEpsilon
	if simplify == 0 {
		simplify = s.cfg.SimplifyEpsilon
	}
	pg, err := buildPolygon(ring, mask.Cols(), mask.Rows(), simplify)
	if err != nil {
		return nil, "", mode, warning, err
	}

	svg := RenderSVG(pg)
	if svgPath != "" {
		if err := os.WriteFile(svgPath, []byte(svg), 0644); err != nil {
			return nil, "", mode, warning, fmt.Errorf("failed to write svg: %w", err)
		}
	}

	utils.Logger.Info("traced image",
		zap.String("image", imagePath),
		zap.String("mode", string(mode)),
		zap.Int("vertices", len(pg.Outer)))
	return pg, svg, mode, warning, nil
}

// extract runs the mask extraction with per-request overrides applied to a
// copy of the configured defaults.
func (s *TraceService) extract(img gocv.Mat, opts TraceOptions) (gocv.Mat, model.ExtractionMode, string, error) {
	cfg := s.extractCfg
	if opts.Threshold > 0 {
		cfg.Threshold = opts.Threshold
	}
	if opts.DeltaEThreshold > 0 {
		cfg.DeltaEThreshold = opts.DeltaEThreshold
	}
	ex := NewExtractService(cfg, s.segCfg, s.rembg)
	return ex.Extract(img, opts.Mode)
}

// traceMask finds the boundary contour with the most vertices. Vertex count,
// not enclosed area, picks the subject; small artifacts have short boundaries.
func (s *TraceService) traceMask(mask gocv.Mat) ([]image.Point, error) {
	contours := gocv.FindContours(mask, gocv.RetrievalList, gocv.ChainApproxNone)
	defer contours.Close()

	if contours.Size() == 0 {
		return nil, ErrNoContours
	}
	best, bestLen := 0, -1
	for i := 0; i < contours.Size(); i++ {
		if n := contours.At(i).Size(); n > bestLen {
			best, bestLen = i, n
		}
	}
	return contours.At(best).ToPoints(), nil
}

// buildPolygon simplifies the pixel contour, converts it to normalized
// coordinates with the Y axis flipped (rows grow downward, output grows
// upward) and repairs residual self-intersections.
func buildPolygon(contour []image.Point, width, height int, simplify float64) (*geometry.Polygon, error) {
	pv := gocv.NewPointVectorFromPoints(contour)
	defer pv.Close()

	epsilon := simplify * float64(width)
	approx := gocv.ApproxPolyDP(pv, epsilon, true)
	defer approx.Close()

	pts := approx.ToPoints()
	if len(pts) < 3 {
		return nil, ErrInvalidPolygon
	}

	ring := make(geometry.Ring, len(pts))
	for i, p := range pts {
		ring[i] = geometry.Point{
			X: float64(p.X) / float64(width),
			Y: float64(height-p.Y) / float64(height),
		}
	}

	pg := geometry.Largest(geometry.Repair([]geometry.Ring{ring}))
	if pg == nil || pg.Area() <= 0 {
		return nil, ErrInvalidPolygon
	}
	return pg, nil
}

// RenderSVG emits the polygon as a unit-viewBox SVG document. The stored
// polygon is already Y-up, so the flip back to screen coordinates happens
// only in the group transform, never in the path data.
func RenderSVG(pg *geometry.Polygon) string {
	var b strings.Builder
	b.WriteString(`<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 1 1">` + "\n")
	b.WriteString(`  <g transform="translate(0,1) scale(1,-1)">` + "\n")
	b.WriteString(`    <path d="`)
	for i, ring := range pg.Rings() {
		if i > 0 {
			b.WriteString(" ")
		}
		writeSVGRing(&b, ring)
	}
	b.WriteString(`" fill="none" stroke="black" stroke-width="0.002"/>` + "\n")
	b.WriteString("  </g>\n</svg>\n")
	return b.String()
}

func writeSVGRing(b *strings.Builder, ring geometry.Ring) {
	for i, p := range ring {
		if i == 0 {
			fmt.Fprintf(b, "M %.6f,%.6f", p.X, p.Y)
		} else {
			fmt.Fprintf(b, " L %.6f,%.6f", p.X, p.Y)
		}
	}
	b.WriteString(" Z")
}

package service

import (
	"gocv.io/x/gocv"
	"gonum.org/v1/gonum/stat"

	"github.com/seaburr/cookie-cutter-maker/model"
	"github.com/seaburr/cookie-cutter-maker/utils"
	"go.uber.org/zap"
)

// Classification policy constants. These are fixed policy, not tunable at
// the API boundary; callers that disagree force an explicit mode instead.
const (
	darkBinCutoff   = 50   // luminance below this counts as "very dark"
	lightBinCutoff  = 210  // luminance at or above this counts as "very light"
	midToneMaxRatio = 0.12 // below this mid-tone share the image is line art
	cornerStdCutoff = 28.0 // below this corner spread the background is uniform
)

// Classifier inspects a raster image and recommends an extraction strategy.
type Classifier struct{}

func NewClassifier() *Classifier {
	return &Classifier{}
}

// Classify analyzes a BGR image and returns the recommended extraction mode.
func (c *Classifier) Classify(img gocv.Mat) model.ExtractionMode {
	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(img, &gray, gocv.ColorBGRToGray)

	lowPct, highPct := luminanceExtremes(gray)
	midPct := 1.0 - lowPct - highPct

	if midPct < midToneMaxRatio {
		utils.Logger.Debug("classified binary", zap.Float64("mid_pct", midPct))
		return model.ModeBinary
	}

	corners := cornerSamples(gray)
	cornerStd := stat.PopStdDev(corners, nil)

	if cornerStd < cornerStdCutoff {
		utils.Logger.Debug("classified uniform background",
			zap.Float64("corner_std", cornerStd))
		return model.ModeUniformBG
	}

	utils.Logger.Debug("classified complex",
		zap.Float64("mid_pct", midPct),
		zap.Float64("corner_std", cornerStd))
	return model.ModeComplex
}

// luminanceExtremes returns the fraction of pixels below darkBinCutoff and
// the fraction at or above lightBinCutoff, from a 256-bin histogram.
func luminanceExtremes(gray gocv.Mat) (lowPct, highPct float64) {
	hist := gocv.NewMat()
	defer hist.Close()
	mask := gocv.NewMat()
	defer mask.Close()
	gocv.CalcHist([]gocv.Mat{gray}, []int{0}, mask, &hist, []int{256}, []float64{0, 256}, false)

	total := float64(gray.Rows() * gray.Cols())
	var low, high float64
	for i := 0; i < 256; i++ {
		v := float64(hist.GetFloatAt(i, 0))
		if i < darkBinCutoff {
			low += v
		}
		if i >= lightBinCutoff {
			high += v
		}
	}
	return low / total, high / total
}

// cornerMargin is the square corner-sample size shared by the classifier and
// the uniform-background extractor.
func cornerMargin(rows, cols int) int {
	m := min(rows, cols) / 20
	if m < 10 {
		m = 10
	}
	return m
}

// cornerSamples concatenates the grayscale pixels of the four corner squares.
func cornerSamples(gray gocv.Mat) []float64 {
	rows, cols := gray.Rows(), gray.Cols()
	margin := cornerMargin(rows, cols)
	out := make([]float64, 0, 4*margin*margin)
	appendRegion := func(y0, x0 int) {
		y0, x0 = max(y0, 0), max(x0, 0)
		for y := y0; y < y0+margin && y < rows; y++ {
			for x := x0; x < x0+margin && x < cols; x++ {
				out = append(out, float64(gray.GetUCharAt(y, x)))
			}
		}
	}
	appendRegion(0, 0)
	appendRegion(0, cols-margin)
	appendRegion(rows-margin, 0)
	appendRegion(rows-margin, cols-margin)
	return out
}

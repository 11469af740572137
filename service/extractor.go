package service

import (
	"fmt"
	"math"
	"sort"

	"gocv.io/x/gocv"
	"gonum.org/v1/gonum/stat"

	"github.com/seaburr/cookie-cutter-maker/config"
	"github.com/seaburr/cookie-cutter-maker/model"
	"github.com/seaburr/cookie-cutter-maker/utils"
	"go.uber.org/zap"
)

// alphaCutoff is the matte value above which a pixel counts as foreground.
const alphaCutoff = 10

// ExtractService turns a raster image into a binary foreground mask using
// one of three strategies, auto-selected by the classifier when the caller
// does not force a mode.
type ExtractService struct {
	cfg        config.ExtractConfig
	segCfg     config.SegmentConfig
	classifier *Classifier
	rembg      BackgroundRemover
}

func NewExtractService(cfg config.ExtractConfig, segCfg config.SegmentConfig, rembg BackgroundRemover) *ExtractService {
	return &ExtractService{
		cfg:        cfg,
		segCfg:     segCfg,
		classifier: NewClassifier(),
		rembg:      rembg,
	}
}

// Extract produces a foreground mask (8U, 255 = subject). It returns the mode
// actually used (never auto) and a human-readable warning when a degraded
// fallback was taken.
func (s *ExtractService) Extract(img gocv.Mat, mode model.ExtractionMode) (gocv.Mat, model.ExtractionMode, string, error) {
	if mode == model.ModeAuto {
		mode = s.classifier.Classify(img)
		utils.Logger.Info("auto-selected extraction mode", zap.String("mode", string(mode)))
	}

	switch mode {
	case model.ModeBinary:
		mask := s.binaryMask(img)
		return mask, mode, "", nil
	case model.ModeUniformBG:
		mask := s.uniformBGMask(img)
		return mask, mode, "", nil
	case model.ModeComplex:
		mask, warning, err := s.complexMask(img)
		return mask, mode, warning, err
	}
	return gocv.Mat{}, mode, "", fmt.Errorf("unknown extraction mode %q", mode)
}

// binaryMask thresholds luminance: pixels darker than the configured cut-off
// are foreground. Suited to line art and silhouettes on white.
func (s *ExtractService) binaryMask(img gocv.Mat) gocv.Mat {
	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(img, &gray, gocv.ColorBGRToGray)

	mask := gocv.NewMat()
	gocv.Threshold(gray, &mask, float32(s.cfg.Threshold)-0.5, 255, gocv.ThresholdBinaryInv)
	return mask
}

// uniformBGMask estimates the background colour from the image corners in
// Lab space and keeps every pixel whose colour distance exceeds the delta-E
// threshold, followed by morphological cleanup.
func (s *ExtractService) uniformBGMask(img gocv.Mat) gocv.Mat {
	lab := labFloat(img)
	defer lab.Close()

	bg := cornerMedianLab(lab)
	threshold := s.cfg.DeltaEThreshold

	rows, cols := lab.Rows(), lab.Cols()
	mask := gocv.NewMatWithSize(rows, cols, gocv.MatTypeCV8U)
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			v := lab.GetVecfAt(y, x)
			dl := float64(v[0]) - bg[0]
			da := float64(v[1]) - bg[1]
			db := float64(v[2]) - bg[2]
			if math.Sqrt(dl*dl+da*da+db*db) > threshold {
				mask.SetUCharAt(y, x, 255)
			}
		}
	}

	// Closing runs on the raw thresholded mask so it bridges seams before
	// opening and size pruning get a chance to widen them.
	binaryClose(&mask, s.cfg.CloseRadius)
	binaryOpen(&mask, s.cfg.OpenRadius)
	pruneMask(&mask, s.cfg.MinObjectPx, s.cfg.FillHolePx)
	return mask
}

// complexMask uses the neural background remover when available, otherwise
// graph segmentation of the central subject with a degraded-quality warning.
func (s *ExtractService) complexMask(img gocv.Mat) (gocv.Mat, string, error) {
	if s.rembg != nil && s.rembg.Available() {
		matte, err := s.rembg.AlphaMatte(img)
		if err != nil {
			return gocv.Mat{}, "", fmt.Errorf("background removal failed: %w", err)
		}
		defer matte.Close()

		mask := gocv.NewMat()
		gocv.Threshold(matte, &mask, alphaCutoff, 255, gocv.ThresholdBinary)
		pruneMask(&mask, s.cfg.MinObjectPx, s.cfg.FillHolePx)
		return mask, "", nil
	}

	utils.Logger.Warn("background-removal model unavailable, using graph segmentation")
	mask := s.segmentationMask(img)
	binaryClose(&mask, s.cfg.CloseRadius)
	pruneMask(&mask, s.cfg.MinObjectPx, s.cfg.FillHolePx)
	warning := "background removal model unavailable; used color segmentation fallback, result may be less accurate"
	return mask, warning, nil
}

// segmentationMask segments the image into superpixels and keeps the label
// that dominates the central window.
func (s *ExtractService) segmentationMask(img gocv.Mat) gocv.Mat {
	rows, cols := img.Rows(), img.Cols()
	labels := felzenszwalbSegments(img, s.segCfg.Scale, s.segCfg.Sigma, s.segCfg.MinSize)
	subject := dominantCentralLabel(labels, cols, rows)

	mask := gocv.NewMatWithSize(rows, cols, gocv.MatTypeCV8U)
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			if labels[y*cols+x] == subject {
				mask.SetUCharAt(y, x, 255)
			}
		}
	}
	return mask
}

// labFloat converts a BGR 8U image to float Lab, the space where euclidean
// distance approximates perceptual colour difference.
func labFloat(img gocv.Mat) gocv.Mat {
	f32 := gocv.NewMat()
	defer f32.Close()
	img.ConvertToWithParams(&f32, gocv.MatTypeCV32FC3, 1.0/255.0, 0)

	lab := gocv.NewMat()
	gocv.CvtColor(f32, &lab, gocv.ColorBGRToLab)
	return lab
}

// cornerMedianLab returns the per-channel median Lab colour over the four
// corner squares, a robust estimate of a uniform background colour.
func cornerMedianLab(lab gocv.Mat) [3]float64 {
	rows, cols := lab.Rows(), lab.Cols()
	margin := cornerMargin(rows, cols)

	var chans [3][]float64
	appendRegion := func(y0, x0 int) {
		y0, x0 = max(y0, 0), max(x0, 0)
		for y := y0; y < y0+margin && y < rows; y++ {
			for x := x0; x < x0+margin && x < cols; x++ {
				v := lab.GetVecfAt(y, x)
				for c := 0; c < 3; c++ {
					chans[c] = append(chans[c], float64(v[c]))
				}
			}
		}
	}
	appendRegion(0, 0)
	appendRegion(0, cols-margin)
	appendRegion(rows-margin, 0)
	appendRegion(rows-margin, cols-margin)

	var median [3]float64
	for c := 0; c < 3; c++ {
		sort.Float64s(chans[c])
		median[c] = stat.Quantile(0.5, stat.Empirical, chans[c], nil)
	}
	return median
}

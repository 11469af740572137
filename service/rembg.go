package service

import (
	"fmt"
	"image"
	"os"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
	"gocv.io/x/gocv"

	"github.com/seaburr/cookie-cutter-maker/config"
	"github.com/seaburr/cookie-cutter-maker/utils"
	"go.uber.org/zap"
)

// BackgroundRemover produces an alpha matte (8U, 255 = fully opaque subject)
// for a BGR image. The complex extractor thresholds the matte at >10.
type BackgroundRemover interface {
	AlphaMatte(img gocv.Mat) (gocv.Mat, error)
	Available() bool
}

// u2netSide is the fixed square input resolution of the U2Net model.
const u2netSide = 320

// ImageNet normalization applied by the rembg preprocessing.
var (
	u2netMean = [3]float32{0.485, 0.456, 0.406}
	u2netStd  = [3]float32{0.229, 0.224, 0.225}
)

// U2NetSession wraps a local U2Net ONNX model as a process-wide background
// remover. The session is expensive to construct, so it is created at most
// once per process on first use and shared by all in-flight requests; the
// runtime performs one inference per Run call with no shared mutable
// buffers, so concurrent use is safe.
type U2NetSession struct {
	cfg config.RembgConfig

	once    sync.Once
	session *ort.DynamicAdvancedSession
	initErr error
}

func NewU2NetSession(cfg config.RembgConfig) *U2NetSession {
	return &U2NetSession{cfg: cfg}
}

// Available reports whether the neural path can be used at all, without
// forcing initialization.
func (s *U2NetSession) Available() bool {
	if !s.cfg.Enabled {
		return false
	}
	if _, err := os.Stat(s.cfg.ModelPath); err != nil {
		return false
	}
	return true
}

func (s *U2NetSession) initialize() {
	if s.cfg.LibraryPath != "" {
		ort.SetSharedLibraryPath(s.cfg.LibraryPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		s.initErr = fmt.Errorf("onnxruntime environment: %w", err)
		return
	}
	session, err := ort.NewDynamicAdvancedSession(
		s.cfg.ModelPath,
		[]string{s.cfg.InputName},
		[]string{s.cfg.OutputName},
		nil,
	)
	if err != nil {
		s.initErr = fmt.Errorf("load u2net model %s: %w", s.cfg.ModelPath, err)
		return
	}
	s.session = session
	utils.Logger.Info("background-removal model loaded",
		zap.String("model", s.cfg.ModelPath))
}

// AlphaMatte runs one inference and returns an alpha matte at the input
// image's resolution.
func (s *U2NetSession) AlphaMatte(img gocv.Mat) (gocv.Mat, error) {
	if !s.Available() {
		return gocv.Mat{}, fmt.Errorf("background-removal model not available")
	}
	s.once.Do(s.initialize)
	if s.initErr != nil {
		return gocv.Mat{}, s.initErr
	}

	inputData := preprocessU2Net(img)
	input, err := ort.NewTensor(ort.NewShape(1, 3, u2netSide, u2netSide), inputData)
	if err != nil {
		return gocv.Mat{}, fmt.Errorf("create input tensor: %w", err)
	}
	defer input.Destroy()

	output, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 1, u2netSide, u2netSide))
	if err != nil {
		return gocv.Mat{}, fmt.Errorf("create output tensor: %w", err)
	}
	defer output.Destroy()

	if err := s.session.Run([]ort.Value{input}, []ort.Value{output}); err != nil {
		return gocv.Mat{}, fmt.Errorf("u2net inference: %w", err)
	}

	matte := postprocessU2Net(output.GetData())
	defer matte.Close()

	resized := gocv.NewMat()
	gocv.Resize(matte, &resized, image.Point{X: img.Cols(), Y: img.Rows()}, 0, 0, gocv.InterpolationLinear)
	return resized, nil
}

// preprocessU2Net resizes to the model's square input, converts BGR to RGB
// and applies ImageNet normalization, producing NCHW float32 data.
func preprocessU2Net(img gocv.Mat) []float32 {
	resized := gocv.NewMat()
	defer resized.Close()
	gocv.Resize(img, &resized, image.Point{X: u2netSide, Y: u2netSide}, 0, 0, gocv.InterpolationArea)

	data := make([]float32, 3*u2netSide*u2netSide)
	plane := u2netSide * u2netSide
	for y := 0; y < u2netSide; y++ {
		for x := 0; x < u2netSide; x++ {
			v := resized.GetVecbAt(y, x) // BGR
			idx := y*u2netSide + x
			data[idx] = (float32(v[2])/255 - u2netMean[0]) / u2netStd[0]
			data[plane+idx] = (float32(v[1])/255 - u2netMean[1]) / u2netStd[1]
			data[2*plane+idx] = (float32(v[0])/255 - u2netMean[2]) / u2netStd[2]
		}
	}
	return data
}

// postprocessU2Net min-max normalizes the saliency output into an 8U matte.
func postprocessU2Net(pred []float32) gocv.Mat {
	lo, hi := pred[0], pred[0]
	for _, v := range pred {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	span := hi - lo
	if span <= 0 {
		span = 1
	}
	matte := gocv.NewMatWithSize(u2netSide, u2netSide, gocv.MatTypeCV8U)
	for y := 0; y < u2netSide; y++ {
		for x := 0; x < u2netSide; x++ {
			v := (pred[y*u2netSide+x] - lo) / span
			matte.SetUCharAt(y, x, uint8(v*255))
		}
	}
	return matte
}

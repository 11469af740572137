package service

import (
	"math/rand"

	"gocv.io/x/gocv"
)

// newBGR returns a rows x cols 3-channel image filled with one BGR colour.
func newBGR(rows, cols int, b, g, r uint8) gocv.Mat {
	m := gocv.NewMatWithSize(rows, cols, gocv.MatTypeCV8UC3)
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			setBGR(&m, y, x, b, g, r)
		}
	}
	return m
}

func setBGR(m *gocv.Mat, y, x int, b, g, r uint8) {
	m.SetUCharAt(y, x*3, b)
	m.SetUCharAt(y, x*3+1, g)
	m.SetUCharAt(y, x*3+2, r)
}

// fillRectBGR paints the half-open rectangle [x0,x1) x [y0,y1).
func fillRectBGR(m *gocv.Mat, x0, y0, x1, y1 int, b, g, r uint8) {
	for y := y0; y < y1; y++ {
		for x := x0; x < x1; x++ {
			setBGR(m, y, x, b, g, r)
		}
	}
}

// noiseBGR fills the image with seeded uniform noise.
func noiseBGR(rows, cols int, seed int64) gocv.Mat {
	rng := rand.New(rand.NewSource(seed))
	m := gocv.NewMatWithSize(rows, cols, gocv.MatTypeCV8UC3)
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			setBGR(&m, y, x, uint8(rng.Intn(256)), uint8(rng.Intn(256)), uint8(rng.Intn(256)))
		}
	}
	return m
}

// newMask returns a rows x cols single-channel zero mask.
func newMask(rows, cols int) gocv.Mat {
	return gocv.NewMatWithSize(rows, cols, gocv.MatTypeCV8U)
}

func fillRectMask(m *gocv.Mat, x0, y0, x1, y1 int, v uint8) {
	for y := y0; y < y1; y++ {
		for x := x0; x < x1; x++ {
			m.SetUCharAt(y, x, v)
		}
	}
}

// countMask returns the number of nonzero mask pixels.
func countMask(m gocv.Mat) int {
	return gocv.CountNonZero(m)
}

func toGray(img gocv.Mat) gocv.Mat {
	gray := gocv.NewMat()
	gocv.CvtColor(img, &gray, gocv.ColorBGRToGray)
	return gray
}

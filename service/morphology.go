package service

import (
	"image"

	"gocv.io/x/gocv"
)

// Mask morphology helpers. Masks are single-channel 8U mats with foreground
// 255 and background 0.

func diskKernel(radius int) gocv.Mat {
	size := 2*radius + 1
	return gocv.GetStructuringElement(gocv.MorphEllipse, image.Point{X: size, Y: size})
}

// binaryClose bridges gaps narrower than the disk radius.
func binaryClose(mask *gocv.Mat, radius int) {
	if radius <= 0 {
		return
	}
	kernel := diskKernel(radius)
	defer kernel.Close()
	closed := gocv.NewMat()
	gocv.MorphologyEx(*mask, &closed, gocv.MorphClose, kernel)
	mask.Close()
	*mask = closed
}

// binaryOpen removes speckle smaller than the disk radius.
func binaryOpen(mask *gocv.Mat, radius int) {
	if radius <= 0 {
		return
	}
	kernel := diskKernel(radius)
	defer kernel.Close()
	opened := gocv.NewMat()
	gocv.MorphologyEx(*mask, &opened, gocv.MorphOpen, kernel)
	mask.Close()
	*mask = opened
}

// removeSmallObjects zeroes connected foreground components below minPx.
func removeSmallObjects(mask *gocv.Mat, minPx int) {
	if minPx <= 0 {
		return
	}
	labels := gocv.NewMat()
	defer labels.Close()
	stats := gocv.NewMat()
	defer stats.Close()
	centroids := gocv.NewMat()
	defer centroids.Close()

	n := gocv.ConnectedComponentsWithStats(*mask, &labels, &stats, &centroids)
	keep := make([]bool, n)
	for l := 1; l < n; l++ {
		keep[l] = int(stats.GetIntAt(l, int(gocv.CCStatArea))) >= minPx
	}
	for y := 0; y < mask.Rows(); y++ {
		for x := 0; x < mask.Cols(); x++ {
			l := int(labels.GetIntAt(y, x))
			if l > 0 && !keep[l] {
				mask.SetUCharAt(y, x, 0)
			}
		}
	}
}

// fillSmallHoles fills interior background components below maxPx. Background
// components touching the image border are the outside, never holes.
func fillSmallHoles(mask *gocv.Mat, maxPx int) {
	if maxPx <= 0 {
		return
	}
	inverted := gocv.NewMat()
	defer inverted.Close()
	gocv.BitwiseNot(*mask, &inverted)

	labels := gocv.NewMat()
	defer labels.Close()
	stats := gocv.NewMat()
	defer stats.Close()
	centroids := gocv.NewMat()
	defer centroids.Close()

	n := gocv.ConnectedComponentsWithStats(inverted, &labels, &stats, &centroids)
	rows, cols := mask.Rows(), mask.Cols()
	fill := make([]bool, n)
	for l := 1; l < n; l++ {
		area := int(stats.GetIntAt(l, int(gocv.CCStatArea)))
		left := int(stats.GetIntAt(l, int(gocv.CCStatLeft)))
		top := int(stats.GetIntAt(l, int(gocv.CCStatTop)))
		width := int(stats.GetIntAt(l, int(gocv.CCStatWidth)))
		height := int(stats.GetIntAt(l, int(gocv.CCStatHeight)))
		touchesBorder := left == 0 || top == 0 || left+width == cols || top+height == rows
		fill[l] = area < maxPx && !touchesBorder
	}
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			l := int(labels.GetIntAt(y, x))
			if l > 0 && fill[l] {
				mask.SetUCharAt(y, x, 255)
			}
		}
	}
}

// pruneMask applies the shared small-object / small-hole cleanup used by the
// uniform-background and complex extractors.
func pruneMask(mask *gocv.Mat, minObjectPx, fillHolePx int) {
	removeSmallObjects(mask, minObjectPx)
	fillSmallHoles(mask, fillHolePx)
}

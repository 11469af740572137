package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSegmentGraphTwoRegions(t *testing.T) {
	// 20x20: left half black, right half white.
	w, h := 20, 20
	rgb := make([]float32, w*h*3)
	for y := 0; y < h; y++ {
		for x := w / 2; x < w; x++ {
			i := (y*w + x) * 3
			rgb[i], rgb[i+1], rgb[i+2] = 255, 255, 255
		}
	}

	labels := segmentGraph(rgb, w, h, 100, 10)
	require.Len(t, labels, w*h)

	left := labels[10*w+2]
	right := labels[10*w+w-3]
	assert.NotEqual(t, left, right, "black and white halves must separate")
	assert.Equal(t, left, labels[2*w+3])
	assert.Equal(t, right, labels[15*w+w-2])
}

func TestSegmentGraphMergesSmallComponents(t *testing.T) {
	// A single odd pixel below min size is absorbed into its surroundings.
	w, h := 20, 20
	rgb := make([]float32, w*h*3)
	i := (10*w + 10) * 3
	rgb[i], rgb[i+1], rgb[i+2] = 255, 0, 0

	labels := segmentGraph(rgb, w, h, 100, 10)
	assert.Equal(t, labels[0], labels[10*w+10])
}

func TestFelzenszwalbSegments(t *testing.T) {
	img := newBGR(60, 60, 255, 255, 255)
	defer img.Close()
	fillRectBGR(&img, 15, 15, 45, 45, 0, 0, 200)

	labels := felzenszwalbSegments(img, 100, 0.8, 20)
	require.Len(t, labels, 60*60)
	assert.NotEqual(t, labels[2*60+2], labels[30*60+30])
}

func TestDominantCentralLabel(t *testing.T) {
	w, h := 40, 40
	labels := make([]int32, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if x >= 12 && x < 28 && y >= 12 && y < 28 {
				labels[y*w+x] = 7
			} else {
				labels[y*w+x] = 1
			}
		}
	}
	assert.Equal(t, int32(7), dominantCentralLabel(labels, w, h))
}

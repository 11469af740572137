package service

import (
	"image"
	"math"
	"sort"

	"gocv.io/x/gocv"
)

// Graph-based segmentation (Felzenszwalb–Huttenlocher) used as the complex
// scene fallback when the neural background-removal model is unavailable.
// OpenCV ships this only in unwrapped contrib modules, so the merge loop is
// implemented here; gocv provides the Gaussian pre-smoothing.

type segEdge struct {
	a, b   int32
	weight float32
}

type segForest struct {
	parent    []int32
	rank      []int32
	size      []int32
	threshold []float32
}

func newSegForest(n int, k float32) *segForest {
	f := &segForest{
		parent:    make([]int32, n),
		rank:      make([]int32, n),
		size:      make([]int32, n),
		threshold: make([]float32, n),
	}
	for i := range f.parent {
		f.parent[i] = int32(i)
		f.size[i] = 1
		f.threshold[i] = k
	}
	return f
}

func (f *segForest) find(x int32) int32 {
	root := x
	for f.parent[root] != root {
		root = f.parent[root]
	}
	for f.parent[x] != root {
		f.parent[x], x = root, f.parent[x]
	}
	return root
}

func (f *segForest) union(a, b int32) int32 {
	if f.rank[a] < f.rank[b] {
		a, b = b, a
	}
	f.parent[b] = a
	f.size[a] += f.size[b]
	if f.rank[a] == f.rank[b] {
		f.rank[a]++
	}
	return a
}

// segmentGraph runs the Felzenszwalb merge over an 8-connected pixel grid of
// the (already smoothed) RGB image and returns per-pixel root labels.
func segmentGraph(rgb []float32, w, h int, scale float32, minSize int) []int32 {
	px := func(x, y int) int32 { return int32(y*w + x) }
	dist := func(i, j int32) float32 {
		dr := rgb[i*3] - rgb[j*3]
		dg := rgb[i*3+1] - rgb[j*3+1]
		db := rgb[i*3+2] - rgb[j*3+2]
		return float32(math.Sqrt(float64(dr*dr + dg*dg + db*db)))
	}

	edges := make([]segEdge, 0, 4*w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			p := px(x, y)
			if x+1 < w {
				edges = append(edges, segEdge{p, px(x+1, y), dist(p, px(x+1, y))})
			}
			if y+1 < h {
				edges = append(edges, segEdge{p, px(x, y+1), dist(p, px(x, y+1))})
			}
			if x+1 < w && y+1 < h {
				edges = append(edges, segEdge{p, px(x+1, y+1), dist(p, px(x+1, y+1))})
			}
			if x-1 >= 0 && y+1 < h {
				edges = append(edges, segEdge{p, px(x-1, y+1), dist(p, px(x-1, y+1))})
			}
		}
	}
	sort.Slice(edges, func(i, j int) bool { return edges[i].weight < edges[j].weight })

	forest := newSegForest(w*h, scale)
	for _, e := range edges {
		a, b := forest.find(e.a), forest.find(e.b)
		if a == b {
			continue
		}
		if e.weight <= forest.threshold[a] && e.weight <= forest.threshold[b] {
			root := forest.union(a, b)
			forest.threshold[root] = e.weight + scale/float32(forest.size[root])
		}
	}

	// Merge components below the minimum size regardless of weight.
	for _, e := range edges {
		a, b := forest.find(e.a), forest.find(e.b)
		if a != b && (int(forest.size[a]) < minSize || int(forest.size[b]) < minSize) {
			forest.union(a, b)
		}
	}

	labels := make([]int32, w*h)
	for i := range labels {
		labels[i] = forest.find(int32(i))
	}
	return labels
}

// felzenszwalbSegments segments a BGR image into superpixel labels.
func felzenszwalbSegments(img gocv.Mat, scale, sigma float64, minSize int) []int32 {
	var smoothed gocv.Mat
	if sigma > 0 {
		smoothed = gocv.NewMat()
		gocv.GaussianBlur(img, &smoothed, image.Point{}, sigma, sigma, gocv.BorderDefault)
	} else {
		smoothed = img.Clone()
	}
	defer smoothed.Close()

	h, w := smoothed.Rows(), smoothed.Cols()
	rgb := make([]float32, w*h*3)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := smoothed.GetVecbAt(y, x) // BGR byte triple
			i := (y*w + x) * 3
			rgb[i] = float32(v[2])
			rgb[i+1] = float32(v[1])
			rgb[i+2] = float32(v[0])
		}
	}
	return segmentGraph(rgb, w, h, float32(scale), minSize)
}

// dominantCentralLabel returns the label covering the most pixels of the
// central 50%x50% window — the assumed subject of a centered photograph.
func dominantCentralLabel(labels []int32, w, h int) int32 {
	cy, cx := h/2, w/2
	ch, cw := h/4, w/4
	counts := make(map[int32]int)
	for y := cy - ch; y < cy+ch; y++ {
		for x := cx - cw; x < cx+cw; x++ {
			counts[labels[y*w+x]]++
		}
	}
	var best int32
	bestCount := -1
	for l, n := range counts {
		if n > bestCount {
			best, bestCount = l, n
		}
	}
	return best
}

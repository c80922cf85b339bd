package normalize

import (
	"image"
)

// Detector locates the document outline in a grayscale frame.
type Detector interface {
	Name() string
	Detect(g *image.Gray) (Quad, bool)
}

// DefaultDetectors returns the boundary strategies in acceptance order. The
// order is a tie-break policy: earlier strategies are trusted more.
func DefaultDetectors() []Detector {
	return []Detector{
		EdgeContourDetector{},
		MorphCloseDetector{},
		MultiScaleDetector{Blocks: []int{11, 21, 41}},
		OtsuBoxDetector{},
	}
}

// EdgeContourDetector traces Canny edges and approximates the largest outline
// by a polygon with 4 to 8 vertices, reduced to its 4 extreme corners.
type EdgeContourDetector struct{}

func (EdgeContourDetector) Name() string { return "edge_contour" }

func (EdgeContourDetector) Detect(g *image.Gray) (Quad, bool) {
	w, h := g.Rect.Dx(), g.Rect.Dy()
	blurred := blurGray(g, 1.0)
	low, high := cannyThresholds(blurred)
	edges := dilate(canny(blurred, low, high), 2)

	minBox := w * h / 100
	var (
		bestHull []Point
		bestArea float64
	)
	for _, c := range components(edges, true) {
		if c.bounds.Dx()*c.bounds.Dy() < minBox {
			continue
		}
		hull := convexHull(c.points)
		if len(hull) < 4 {
			continue
		}
		if area := polygonArea(hull); area > bestArea {
			bestHull, bestArea = hull, area
		}
	}
	if bestHull == nil {
		return Quad{}, false
	}
	poly := approxPolygon(bestHull, 0.02*polygonPerimeter(bestHull))
	if len(poly) < 4 || len(poly) > 8 {
		return Quad{}, false
	}
	q := orderPoints(poly)
	return q, q.distinct()
}

// MorphCloseDetector closes a local-mean threshold and boxes the largest
// connected region.
type MorphCloseDetector struct{}

func (MorphCloseDetector) Name() string { return "morph_close" }

func (MorphCloseDetector) Detect(g *image.Gray) (Quad, bool) {
	w, h := g.Rect.Dx(), g.Rect.Dy()
	blurred := blurGray(g, 1.0)
	m := adaptiveMask(blurred, 25, 10)
	closed := closeMask(m, max(2, min(w, h)/100))
	return largestBox(closed)
}

// MultiScaleDetector combines local-mean thresholds at several block sizes so
// both fine print and wide margins contribute, then boxes the largest region.
type MultiScaleDetector struct {
	Blocks []int
}

func (MultiScaleDetector) Name() string { return "multi_scale" }

func (d MultiScaleDetector) Detect(g *image.Gray) (Quad, bool) {
	if len(d.Blocks) == 0 {
		return Quad{}, false
	}
	w, h := g.Rect.Dx(), g.Rect.Dy()
	blurred := blurGray(g, 1.0)
	combined := newMask(w, h)
	for _, block := range d.Blocks {
		combined.or(adaptiveMask(blurred, block|1, 10))
	}
	return largestBox(closeMask(combined, 1))
}

// OtsuBoxDetector boxes the largest region brighter than the global Otsu
// level. It is the last resort for pale pages on dark backgrounds.
type OtsuBoxDetector struct{}

func (OtsuBoxDetector) Name() string { return "otsu_box" }

func (OtsuBoxDetector) Detect(g *image.Gray) (Quad, bool) {
	blurred := blurGray(g, 1.0)
	bright := thresholdMask(blurred, otsuLevel(blurred), false)
	return largestBox(bright)
}

func largestBox(m *mask) (Quad, bool) {
	c, ok := largestByArea(components(m, false))
	if !ok || c.bounds.Dx() < 2 || c.bounds.Dy() < 2 {
		return Quad{}, false
	}
	return rectQuad(c.bounds), true
}

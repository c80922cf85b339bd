package normalize

import (
	"errors"
	"image"
	"image/color"
	"math"
	"sort"

	"github.com/disintegration/imaging"
)

// Point is a sub-pixel image coordinate.
type Point struct {
	X, Y float64
}

func (p Point) sub(q Point) Point { return Point{p.X - q.X, p.Y - q.Y} }

func (p Point) dist(q Point) float64 { return math.Hypot(p.X-q.X, p.Y-q.Y) }

// Quad is a document outline ordered top-left, top-right, bottom-right,
// bottom-left.
type Quad [4]Point

// rectQuad returns the outline of r using inclusive pixel corners.
func rectQuad(r image.Rectangle) Quad {
	x0, y0 := float64(r.Min.X), float64(r.Min.Y)
	x1, y1 := float64(r.Max.X-1), float64(r.Max.Y-1)
	return Quad{{x0, y0}, {x1, y0}, {x1, y1}, {x0, y1}}
}

// orderPoints picks the corners by extremes of x+y (top-left, bottom-right)
// and y-x (top-right, bottom-left).
func orderPoints(pts []Point) Quad {
	var q Quad
	if len(pts) == 0 {
		return q
	}
	minSum, maxSum := pts[0], pts[0]
	minDiff, maxDiff := pts[0], pts[0]
	for _, p := range pts[1:] {
		if p.X+p.Y < minSum.X+minSum.Y {
			minSum = p
		}
		if p.X+p.Y > maxSum.X+maxSum.Y {
			maxSum = p
		}
		if p.Y-p.X < minDiff.Y-minDiff.X {
			minDiff = p
		}
		if p.Y-p.X > maxDiff.Y-maxDiff.X {
			maxDiff = p
		}
	}
	q[0], q[1], q[2], q[3] = minSum, minDiff, maxSum, maxDiff
	return q
}

// Area is the shoelace area of the outline.
func (q Quad) Area() float64 {
	return polygonArea(q[:])
}

// Size returns the rectified width and height: the longer of each pair of
// opposing edges.
func (q Quad) Size() (int, int) {
	w := math.Max(q[0].dist(q[1]), q[3].dist(q[2]))
	h := math.Max(q[0].dist(q[3]), q[1].dist(q[2]))
	return int(math.Round(w)) + 1, int(math.Round(h)) + 1
}

// distinct reports whether all corners are at least one pixel apart.
func (q Quad) distinct() bool {
	for i := 0; i < 4; i++ {
		for j := i + 1; j < 4; j++ {
			if q[i].dist(q[j]) < 1 {
				return false
			}
		}
	}
	return true
}

func (q Quad) scale(f float64) Quad {
	for i := range q {
		q[i] = Point{q[i].X * f, q[i].Y * f}
	}
	return q
}

func polygonArea(pts []Point) float64 {
	var acc float64
	for i := range pts {
		j := (i + 1) % len(pts)
		acc += pts[i].X*pts[j].Y - pts[j].X*pts[i].Y
	}
	return math.Abs(acc) / 2
}

func polygonPerimeter(pts []Point) float64 {
	var acc float64
	for i := range pts {
		acc += pts[i].dist(pts[(i+1)%len(pts)])
	}
	return acc
}

func cross(o, a, b Point) float64 {
	return (a.X-o.X)*(b.Y-o.Y) - (a.Y-o.Y)*(b.X-o.X)
}

// convexHull returns the hull in counter-clockwise order using the monotone
// chain algorithm.
func convexHull(pts []Point) []Point {
	if len(pts) < 3 {
		return append([]Point(nil), pts...)
	}
	sorted := append([]Point(nil), pts...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].X != sorted[j].X {
			return sorted[i].X < sorted[j].X
		}
		return sorted[i].Y < sorted[j].Y
	})
	hull := make([]Point, 0, 2*len(sorted))
	for _, p := range sorted {
		for len(hull) >= 2 && cross(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	lower := len(hull) + 1
	for i := len(sorted) - 2; i >= 0; i-- {
		p := sorted[i]
		for len(hull) >= lower && cross(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	return hull[:len(hull)-1]
}

// approxPolygon simplifies a closed polygon with Douglas-Peucker. The ring is
// split at the vertex farthest from the first one.
func approxPolygon(ring []Point, epsilon float64) []Point {
	if len(ring) < 4 {
		return append([]Point(nil), ring...)
	}
	far, farDist := 0, -1.0
	for i, p := range ring {
		if d := p.dist(ring[0]); d > farDist {
			far, farDist = i, d
		}
	}
	first := douglasPeucker(ring[:far+1], epsilon)
	second := douglasPeucker(append(append([]Point(nil), ring[far:]...), ring[0]), epsilon)
	out := append(first[:len(first)-1], second[:len(second)-1]...)
	return out
}

func douglasPeucker(pts []Point, epsilon float64) []Point {
	if len(pts) < 3 {
		return append([]Point(nil), pts...)
	}
	a, b := pts[0], pts[len(pts)-1]
	idx, maxDist := 0, -1.0
	for i := 1; i < len(pts)-1; i++ {
		if d := segmentDistance(pts[i], a, b); d > maxDist {
			idx, maxDist = i, d
		}
	}
	if maxDist <= epsilon {
		return []Point{a, b}
	}
	left := douglasPeucker(pts[:idx+1], epsilon)
	right := douglasPeucker(pts[idx:], epsilon)
	return append(left[:len(left)-1], right...)
}

func segmentDistance(p, a, b Point) float64 {
	ab := b.sub(a)
	length := math.Hypot(ab.X, ab.Y)
	if length == 0 {
		return p.dist(a)
	}
	return math.Abs(cross(a, b, p)) / length
}

var errSingularTransform = errors.New("degenerate quadrilateral")

// homography solves for the 3x3 projective transform mapping each src[i] to
// dst[i]; h[8] is fixed to 1.
func homography(src, dst Quad) ([9]float64, error) {
	var a [8][9]float64
	for i := 0; i < 4; i++ {
		x, y := src[i].X, src[i].Y
		u, v := dst[i].X, dst[i].Y
		a[2*i] = [9]float64{x, y, 1, 0, 0, 0, -u * x, -u * y, u}
		a[2*i+1] = [9]float64{0, 0, 0, x, y, 1, -v * x, -v * y, v}
	}
	for col := 0; col < 8; col++ {
		pivot := col
		for row := col + 1; row < 8; row++ {
			if math.Abs(a[row][col]) > math.Abs(a[pivot][col]) {
				pivot = row
			}
		}
		if math.Abs(a[pivot][col]) < 1e-12 {
			return [9]float64{}, errSingularTransform
		}
		a[col], a[pivot] = a[pivot], a[col]
		for row := 0; row < 8; row++ {
			if row == col {
				continue
			}
			f := a[row][col] / a[col][col]
			for k := col; k < 9; k++ {
				a[row][k] -= f * a[col][k]
			}
		}
	}
	var h [9]float64
	for i := 0; i < 8; i++ {
		h[i] = a[i][8] / a[i][i]
	}
	h[8] = 1
	return h, nil
}

func applyHomography(h [9]float64, x, y float64) (float64, float64) {
	w := h[6]*x + h[7]*y + h[8]
	if w == 0 {
		w = 1e-12
	}
	return (h[0]*x + h[1]*y + h[2]) / w, (h[3]*x + h[4]*y + h[5]) / w
}

// warpQuad rectifies the region outlined by q into an upright image.
func warpQuad(img image.Image, q Quad) (*image.NRGBA, error) {
	w, h := q.Size()
	if w < 2 || h < 2 {
		return nil, errSingularTransform
	}
	dst := Quad{{0, 0}, {float64(w - 1), 0}, {float64(w - 1), float64(h - 1)}, {0, float64(h - 1)}}
	// Map output pixels back into the source.
	m, err := homography(dst, q)
	if err != nil {
		return nil, err
	}
	src := imaging.Clone(img)
	out := image.NewNRGBA(image.Rect(0, 0, w, h))
	parallelRows(h, func(y int) {
		for x := 0; x < w; x++ {
			sx, sy := applyHomography(m, float64(x), float64(y))
			out.SetNRGBA(x, y, bilinear(src, sx, sy))
		}
	})
	return out, nil
}

// bilinear samples src at a sub-pixel position, replicating the border.
func bilinear(src *image.NRGBA, x, y float64) color.NRGBA {
	w, h := src.Rect.Dx(), src.Rect.Dy()
	x = math.Max(0, math.Min(x, float64(w-1)))
	y = math.Max(0, math.Min(y, float64(h-1)))
	x0, y0 := int(x), int(y)
	x1, y1 := min(x0+1, w-1), min(y0+1, h-1)
	fx, fy := x-float64(x0), y-float64(y0)

	p00 := src.Pix[y0*src.Stride+x0*4:]
	p10 := src.Pix[y0*src.Stride+x1*4:]
	p01 := src.Pix[y1*src.Stride+x0*4:]
	p11 := src.Pix[y1*src.Stride+x1*4:]
	var c [4]uint8
	for i := 0; i < 4; i++ {
		top := float64(p00[i])*(1-fx) + float64(p10[i])*fx
		bottom := float64(p01[i])*(1-fx) + float64(p11[i])*fx
		c[i] = clamp8(top*(1-fy) + bottom*fy)
	}
	return color.NRGBA{R: c[0], G: c[1], B: c[2], A: c[3]}
}

// rotateKeep rotates img counter-clockwise by deg degrees about its centre,
// keeping the original size and replicating border pixels.
func rotateKeep(img image.Image, deg float64) *image.NRGBA {
	src := imaging.Clone(img)
	w, h := src.Rect.Dx(), src.Rect.Dy()
	rad := deg * math.Pi / 180
	sin, cos := math.Sin(rad), math.Cos(rad)
	cx, cy := float64(w-1)/2, float64(h-1)/2
	out := image.NewNRGBA(image.Rect(0, 0, w, h))
	parallelRows(h, func(y int) {
		dy := float64(y) - cy
		for x := 0; x < w; x++ {
			dx := float64(x) - cx
			sx := cx + dx*cos - dy*sin
			sy := cy + dx*sin + dy*cos
			out.SetNRGBA(x, y, bilinear(src, sx, sy))
		}
	})
	return out
}

func clamp8(v float64) uint8 {
	switch {
	case v <= 0:
		return 0
	case v >= 255:
		return 255
	default:
		return uint8(v + 0.5)
	}
}

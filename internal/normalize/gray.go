package normalize

import (
	"image"

	"github.com/disintegration/imaging"
)

// toGray converts img to an 8-bit luminance image with origin at (0,0).
func toGray(img image.Image) *image.Gray {
	return grayFromNRGBA(imaging.Grayscale(img))
}

// blurGray applies a gaussian blur of the given sigma.
func blurGray(g *image.Gray, sigma float64) *image.Gray {
	if sigma <= 0 {
		return g
	}
	return grayFromNRGBA(imaging.Blur(g, sigma))
}

func grayFromNRGBA(src *image.NRGBA) *image.Gray {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	out := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		row := src.Pix[y*src.Stride:]
		dst := out.Pix[y*out.Stride:]
		for x := 0; x < w; x++ {
			dst[x] = row[x*4]
		}
	}
	return out
}

func histogram(g *image.Gray) [256]int {
	var hist [256]int
	w, h := g.Rect.Dx(), g.Rect.Dy()
	for y := 0; y < h; y++ {
		row := g.Pix[y*g.Stride : y*g.Stride+w]
		for _, v := range row {
			hist[v]++
		}
	}
	return hist
}

func medianLevel(g *image.Gray) uint8 {
	hist := histogram(g)
	total := g.Rect.Dx() * g.Rect.Dy()
	half := (total + 1) / 2
	acc := 0
	for level, count := range hist {
		acc += count
		if acc >= half {
			return uint8(level)
		}
	}
	return 255
}

// otsuLevel returns the threshold maximising between-class variance.
func otsuLevel(g *image.Gray) uint8 {
	hist := histogram(g)
	total := float64(g.Rect.Dx() * g.Rect.Dy())
	if total == 0 {
		return 127
	}
	var sum float64
	for level, count := range hist {
		sum += float64(level) * float64(count)
	}
	var (
		sumB, weightB float64
		best          float64 = -1
		level         int
	)
	for t := 0; t < 256; t++ {
		weightB += float64(hist[t])
		if weightB == 0 {
			continue
		}
		weightF := total - weightB
		if weightF == 0 {
			break
		}
		sumB += float64(t) * float64(hist[t])
		meanB := sumB / weightB
		meanF := (sum - sumB) / weightF
		between := weightB * weightF * (meanB - meanF) * (meanB - meanF)
		if between > best {
			best = between
			level = t
		}
	}
	return uint8(level)
}

// mask is a binary image; true marks foreground.
type mask struct {
	w, h int
	on   []bool
}

func newMask(w, h int) *mask {
	return &mask{w: w, h: h, on: make([]bool, w*h)}
}

func (m *mask) at(x, y int) bool {
	if x < 0 || y < 0 || x >= m.w || y >= m.h {
		return false
	}
	return m.on[y*m.w+x]
}

func (m *mask) count() int {
	n := 0
	for _, v := range m.on {
		if v {
			n++
		}
	}
	return n
}

func (m *mask) or(other *mask) {
	for i, v := range other.on {
		if v {
			m.on[i] = true
		}
	}
}

// thresholdMask marks pixels brighter than level, or darker-or-equal when
// dark is set.
func thresholdMask(g *image.Gray, level uint8, dark bool) *mask {
	w, h := g.Rect.Dx(), g.Rect.Dy()
	m := newMask(w, h)
	for y := 0; y < h; y++ {
		row := g.Pix[y*g.Stride:]
		for x := 0; x < w; x++ {
			if (row[x] > level) != dark {
				m.on[y*w+x] = true
			}
		}
	}
	return m
}

// integral returns a (w+1)x(h+1) summed-area table.
func integral(g *image.Gray) []int64 {
	w, h := g.Rect.Dx(), g.Rect.Dy()
	sat := make([]int64, (w+1)*(h+1))
	for y := 1; y <= h; y++ {
		var rowSum int64
		row := g.Pix[(y-1)*g.Stride:]
		for x := 1; x <= w; x++ {
			rowSum += int64(row[x-1])
			sat[y*(w+1)+x] = sat[(y-1)*(w+1)+x] + rowSum
		}
	}
	return sat
}

// adaptiveMask marks pixels darker than the mean of their block x block
// neighbourhood by more than offset.
func adaptiveMask(g *image.Gray, block int, offset float64) *mask {
	w, h := g.Rect.Dx(), g.Rect.Dy()
	sat := integral(g)
	r := block / 2
	m := newMask(w, h)
	for y := 0; y < h; y++ {
		y0, y1 := max(y-r, 0), min(y+r+1, h)
		row := g.Pix[y*g.Stride:]
		for x := 0; x < w; x++ {
			x0, x1 := max(x-r, 0), min(x+r+1, w)
			area := float64((x1 - x0) * (y1 - y0))
			sum := sat[y1*(w+1)+x1] - sat[y0*(w+1)+x1] - sat[y1*(w+1)+x0] + sat[y0*(w+1)+x0]
			if float64(row[x]) < float64(sum)/area-offset {
				m.on[y*w+x] = true
			}
		}
	}
	return m
}

// dilate grows foreground by a square of side 2r+1. Rows and columns are
// processed separately.
func dilate(m *mask, r int) *mask {
	return morph(m, r, true)
}

func erode(m *mask, r int) *mask {
	return morph(m, r, false)
}

// closeMask fills gaps narrower than 2r+1 pixels.
func closeMask(m *mask, r int) *mask {
	return erode(dilate(m, r), r)
}

func morph(m *mask, r int, grow bool) *mask {
	if r <= 0 {
		return m
	}
	tmp := newMask(m.w, m.h)
	for y := 0; y < m.h; y++ {
		for x := 0; x < m.w; x++ {
			tmp.on[y*m.w+x] = windowHit(m, x, y, r, grow, true)
		}
	}
	out := newMask(m.w, m.h)
	for y := 0; y < m.h; y++ {
		for x := 0; x < m.w; x++ {
			out.on[y*m.w+x] = windowHit(tmp, x, y, r, grow, false)
		}
	}
	return out
}

// windowHit reports, for dilation, whether any pixel in the 1-D window is set
// and, for erosion, whether all in-bounds pixels are set.
func windowHit(m *mask, x, y, r int, grow, horizontal bool) bool {
	for d := -r; d <= r; d++ {
		px, py := x, y
		if horizontal {
			px += d
		} else {
			py += d
		}
		if px < 0 || py < 0 || px >= m.w || py >= m.h {
			continue
		}
		v := m.on[py*m.w+px]
		if grow && v {
			return true
		}
		if !grow && !v {
			return false
		}
	}
	return !grow
}

// component is an 8-connected foreground region.
type component struct {
	pixels int
	bounds image.Rectangle // Max is exclusive
	points []Point
}

// components labels 8-connected regions. Point lists are only collected when
// keepPoints is set.
func components(m *mask, keepPoints bool) []component {
	labels := make([]int32, len(m.on))
	var out []component
	stack := make([]int, 0, 1024)
	for start, on := range m.on {
		if !on || labels[start] != 0 {
			continue
		}
		id := int32(len(out) + 1)
		labels[start] = id
		stack = append(stack[:0], start)
		c := component{bounds: image.Rect(m.w, m.h, 0, 0)}
		for len(stack) > 0 {
			idx := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			x, y := idx%m.w, idx/m.w
			c.pixels++
			c.bounds.Min.X = min(c.bounds.Min.X, x)
			c.bounds.Min.Y = min(c.bounds.Min.Y, y)
			c.bounds.Max.X = max(c.bounds.Max.X, x+1)
			c.bounds.Max.Y = max(c.bounds.Max.Y, y+1)
			if keepPoints {
				c.points = append(c.points, Point{X: float64(x), Y: float64(y)})
			}
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					nx, ny := x+dx, y+dy
					if nx < 0 || ny < 0 || nx >= m.w || ny >= m.h {
						continue
					}
					n := ny*m.w + nx
					if m.on[n] && labels[n] == 0 {
						labels[n] = id
						stack = append(stack, n)
					}
				}
			}
		}
		out = append(out, c)
	}
	return out
}

// largestByArea returns the component whose bounding box covers the most
// pixels.
func largestByArea(comps []component) (component, bool) {
	var best component
	bestArea := -1
	for _, c := range comps {
		area := c.bounds.Dx() * c.bounds.Dy()
		if area > bestArea {
			best = c
			bestArea = area
		}
	}
	return best, bestArea > 0
}

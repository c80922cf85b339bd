package normalize

import (
	"image"
	"math"
)

// cannyThresholds derives hysteresis thresholds from the median intensity so
// that low-contrast photos still produce edges without flooding noisy ones.
func cannyThresholds(g *image.Gray) (float64, float64) {
	const sigma = 0.33
	m := float64(medianLevel(g))
	low := math.Max(10, (1-sigma)*m)
	high := math.Min(255, (1+sigma)*m)
	if high < low+20 {
		high = low + 20
	}
	return low, high
}

// canny returns the edge map of g using L1 Sobel magnitudes, non-maximum
// suppression and hysteresis between low and high.
func canny(g *image.Gray, low, high float64) *mask {
	w, h := g.Rect.Dx(), g.Rect.Dy()
	edges := newMask(w, h)
	if w < 3 || h < 3 {
		return edges
	}
	mag := make([]float64, w*h)
	dir := make([]uint8, w*h)
	px := func(x, y int) float64 { return float64(g.Pix[y*g.Stride+x]) }
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			gx := -px(x-1, y-1) - 2*px(x-1, y) - px(x-1, y+1) + px(x+1, y-1) + 2*px(x+1, y) + px(x+1, y+1)
			gy := -px(x-1, y-1) - 2*px(x, y-1) - px(x+1, y-1) + px(x-1, y+1) + 2*px(x, y+1) + px(x+1, y+1)
			i := y*w + x
			mag[i] = math.Abs(gx) + math.Abs(gy)
			dir[i] = quantizeDirection(gx, gy)
		}
	}

	const (
		none = iota
		weak
		strong
	)
	state := make([]uint8, w*h)
	stack := make([]int, 0, 1024)
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			i := y*w + x
			m := mag[i]
			if m < low {
				continue
			}
			var a, b float64
			switch dir[i] {
			case 0:
				a, b = mag[i-1], mag[i+1]
			case 1:
				a, b = mag[i-w+1], mag[i+w-1]
			case 2:
				a, b = mag[i-w], mag[i+w]
			default:
				a, b = mag[i-w-1], mag[i+w+1]
			}
			if m < a || m <= b {
				continue
			}
			if m >= high {
				state[i] = strong
				stack = append(stack, i)
			} else {
				state[i] = weak
			}
		}
	}
	for len(stack) > 0 {
		i := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if edges.on[i] {
			continue
		}
		edges.on[i] = true
		x, y := i%w, i/w
		for dy := -1; dy <= 1; dy++ {
			for dx := -1; dx <= 1; dx++ {
				nx, ny := x+dx, y+dy
				if nx < 0 || ny < 0 || nx >= w || ny >= h {
					continue
				}
				n := ny*w + nx
				if state[n] == weak && !edges.on[n] {
					state[n] = strong
					stack = append(stack, n)
				}
			}
		}
	}
	return edges
}

// quantizeDirection maps the gradient to 0 (horizontal), 1 (45°),
// 2 (vertical) or 3 (135°), in image coordinates.
func quantizeDirection(gx, gy float64) uint8 {
	angle := math.Atan2(gy, gx) * 180 / math.Pi
	if angle < 0 {
		angle += 180
	}
	switch {
	case angle < 22.5 || angle >= 157.5:
		return 0
	case angle < 67.5:
		return 3
	case angle < 112.5:
		return 2
	default:
		return 1
	}
}

package normalize

import (
	"image"
	"math"

	"github.com/disintegration/imaging"
)

// Denoise applies a bilateral filter over a disc of the given diameter.
// Flat regions are averaged while neighbours across strong colour edges get
// almost no weight.
func Denoise(img image.Image, diameter int, sigmaColor, sigmaSpace float64) *image.NRGBA {
	src := imaging.Clone(img)
	w, h := src.Rect.Dx(), src.Rect.Dy()
	if sigmaColor <= 0 {
		sigmaColor = 1
	}
	if sigmaSpace <= 0 {
		sigmaSpace = 1
	}
	radius := diameter / 2
	if diameter <= 0 {
		radius = int(math.Round(sigmaSpace * 1.5))
	}
	radius = max(radius, 1)

	type tap struct {
		dx, dy int
		weight float64
	}
	var taps []tap
	spaceCoeff := -0.5 / (sigmaSpace * sigmaSpace)
	for dy := -radius; dy <= radius; dy++ {
		for dx := -radius; dx <= radius; dx++ {
			d2 := float64(dx*dx + dy*dy)
			if d2 > float64(radius*radius) {
				continue
			}
			taps = append(taps, tap{dx: dx, dy: dy, weight: math.Exp(d2 * spaceCoeff)})
		}
	}
	// Colour distance is the L1 distance over RGB.
	colorCoeff := -0.5 / (sigmaColor * sigmaColor)
	colorWeight := make([]float64, 3*255+1)
	for i := range colorWeight {
		colorWeight[i] = math.Exp(float64(i*i) * colorCoeff)
	}

	out := image.NewNRGBA(image.Rect(0, 0, w, h))
	parallelRows(h, func(y int) {
		for x := 0; x < w; x++ {
			center := src.Pix[y*src.Stride+x*4:]
			r0, g0, b0 := int(center[0]), int(center[1]), int(center[2])
			var sr, sg, sb, sw float64
			for _, t := range taps {
				nx := min(max(x+t.dx, 0), w-1)
				ny := min(max(y+t.dy, 0), h-1)
				p := src.Pix[ny*src.Stride+nx*4:]
				r, g, b := int(p[0]), int(p[1]), int(p[2])
				diff := absInt(r-r0) + absInt(g-g0) + absInt(b-b0)
				wt := t.weight * colorWeight[diff]
				sr += wt * float64(r)
				sg += wt * float64(g)
				sb += wt * float64(b)
				sw += wt
			}
			o := out.Pix[y*out.Stride+x*4:]
			o[0], o[1], o[2], o[3] = clamp8(sr/sw), clamp8(sg/sw), clamp8(sb/sw), center[3]
		}
	})
	return out
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

package normalize

import (
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
)

// EnhanceContrast equalizes the luminance channel with CLAHE and keeps the
// chrominance untouched, so colours do not shift.
func EnhanceContrast(img image.Image, clipLimit float64, grid int) *image.NRGBA {
	src := imaging.Clone(img)
	w, h := src.Rect.Dx(), src.Rect.Dy()
	n := w * h
	lum := make([]uint8, n)
	cb := make([]uint8, n)
	cr := make([]uint8, n)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			p := src.Pix[y*src.Stride+x*4:]
			i := y*w + x
			lum[i], cb[i], cr[i] = color.RGBToYCbCr(p[0], p[1], p[2])
		}
	}
	eq := clahe(lum, w, h, clipLimit, grid)
	out := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := y*w + x
			r, g, b := color.YCbCrToRGB(eq[i], cb[i], cr[i])
			o := out.Pix[y*out.Stride+x*4:]
			o[0], o[1], o[2], o[3] = r, g, b, src.Pix[y*src.Stride+x*4+3]
		}
	}
	return out
}

// clahe applies contrast limited adaptive histogram equalization on a
// grid x grid tiling, interpolating bilinearly between tile mappings.
func clahe(plane []uint8, w, h int, clipLimit float64, grid int) []uint8 {
	out := make([]uint8, len(plane))
	if w == 0 || h == 0 {
		return out
	}
	tilesX, tilesY := max(1, min(grid, w)), max(1, min(grid, h))
	tw := (w + tilesX - 1) / tilesX
	th := (h + tilesY - 1) / tilesY

	luts := make([][256]uint8, tilesX*tilesY)
	for ty := 0; ty < tilesY; ty++ {
		for tx := 0; tx < tilesX; tx++ {
			x0, y0 := tx*tw, ty*th
			x1, y1 := min(x0+tw, w), min(y0+th, h)
			luts[ty*tilesX+tx] = tileLUT(plane, w, x0, y0, x1, y1, clipLimit)
		}
	}

	parallelRows(h, func(y int) {
		ty0, ty1, fy := tileCoord(y, th, tilesY)
		for x := 0; x < w; x++ {
			tx0, tx1, fx := tileCoord(x, tw, tilesX)
			v := plane[y*w+x]
			top := float64(luts[ty0*tilesX+tx0][v])*(1-fx) + float64(luts[ty0*tilesX+tx1][v])*fx
			bottom := float64(luts[ty1*tilesX+tx0][v])*(1-fx) + float64(luts[ty1*tilesX+tx1][v])*fx
			out[y*w+x] = clamp8(top*(1-fy) + bottom*fy)
		}
	})
	return out
}

// tileCoord locates pos between the centres of two neighbouring tiles.
func tileCoord(pos, size, tiles int) (int, int, float64) {
	g := (float64(pos)+0.5)/float64(size) - 0.5
	if g <= 0 {
		return 0, 0, 0
	}
	i0 := int(math.Floor(g))
	if i0 >= tiles-1 {
		return tiles - 1, tiles - 1, 0
	}
	return i0, i0 + 1, g - float64(i0)
}

func tileLUT(plane []uint8, stride, x0, y0, x1, y1 int, clipLimit float64) [256]uint8 {
	var lut [256]uint8
	area := (x1 - x0) * (y1 - y0)
	if area <= 0 {
		for i := range lut {
			lut[i] = uint8(i)
		}
		return lut
	}
	var hist [256]int
	for y := y0; y < y1; y++ {
		for _, v := range plane[y*stride+x0 : y*stride+x1] {
			hist[v]++
		}
	}
	if clipLimit > 0 {
		limit := max(1, int(clipLimit*float64(area)/256))
		excess := 0
		for i, c := range hist {
			if c > limit {
				excess += c - limit
				hist[i] = limit
			}
		}
		inc, rem := excess/256, excess%256
		for i := range hist {
			hist[i] += inc
		}
		if rem > 0 {
			step := max(1, 256/rem)
			for i := 0; i < 256 && rem > 0; i += step {
				hist[i]++
				rem--
			}
		}
	}
	scale := 255 / float64(area)
	sum := 0
	for i, c := range hist {
		sum += c
		lut[i] = clamp8(float64(sum) * scale)
	}
	return lut
}

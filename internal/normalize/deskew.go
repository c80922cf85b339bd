package normalize

import (
	"image"
	"math"
	"sort"

	"github.com/disintegration/imaging"
)

const (
	maxAnalysisSide = 1000
	houghStepDeg    = 0.25
	houghMaxPeaks   = 64
	houghMaxGap     = 10
)

// segment is a run of collinear edge pixels.
type segment struct {
	A, B     Point
	AngleDeg float64 // orientation of the supporting line, image coordinates
}

// EstimateSkew returns how far the page is rotated counter-clockwise, in
// degrees within [-45, 45], and whether any line segments were found.
func EstimateSkew(img image.Image) (float64, bool) {
	work := img
	if b := img.Bounds(); max(b.Dx(), b.Dy()) > maxAnalysisSide {
		work = imaging.Fit(img, maxAnalysisSide, maxAnalysisSide, imaging.Box)
	}
	g := toGray(work)
	binary := maskToGray(thresholdMask(g, otsuLevel(g), true))
	edges := canny(binary, 50, 150)

	w, h := edges.w, edges.h
	minLen := max(40, min(w, h)/10)
	segments := houghSegments(edges, minLen, houghMaxGap)
	if len(segments) == 0 {
		return 0, false
	}
	angles := make([]float64, len(segments))
	for i, s := range segments {
		angles[i] = -normalizeAngle(s.AngleDeg)
	}
	return median(angles), true
}

// normalizeAngle folds a line orientation into [-45, 45].
func normalizeAngle(deg float64) float64 {
	for deg > 45 {
		deg -= 90
	}
	for deg < -45 {
		deg += 90
	}
	return deg
}

func median(values []float64) float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

func maskToGray(m *mask) *image.Gray {
	out := image.NewGray(image.Rect(0, 0, m.w, m.h))
	for i, on := range m.on {
		if on {
			out.Pix[i] = 255
		}
	}
	return out
}

// houghSegments votes edge pixels into a (theta, rho) accumulator, takes the
// strongest local maxima and splits each peak line into segments of at least
// minLen pixels with gaps no wider than maxGap.
func houghSegments(edges *mask, minLen, maxGap int) []segment {
	var pts []Point
	for i, on := range edges.on {
		if on {
			pts = append(pts, Point{X: float64(i % edges.w), Y: float64(i / edges.w)})
		}
	}
	if len(pts) < minLen {
		return nil
	}

	nTheta := int(180 / houghStepDeg)
	cosT := make([]float64, nTheta)
	sinT := make([]float64, nTheta)
	for t := range nTheta {
		rad := float64(t) * houghStepDeg * math.Pi / 180
		cosT[t], sinT[t] = math.Cos(rad), math.Sin(rad)
	}
	offset := int(math.Hypot(float64(edges.w), float64(edges.h))) + 1
	nRho := 2*offset + 1
	acc := make([]int32, nTheta*nRho)
	for _, p := range pts {
		for t := range nTheta {
			r := int(math.Round(p.X*cosT[t]+p.Y*sinT[t])) + offset
			acc[t*nRho+r]++
		}
	}

	type peak struct {
		t, r  int
		votes int32
	}
	var peaks []peak
	const tWin, rWin = 4, 3
	for t := range nTheta {
		for r := range nRho {
			v := acc[t*nRho+r]
			if int(v) < minLen {
				continue
			}
			isMax := true
			for dt := -tWin; dt <= tWin && isMax; dt++ {
				tt := (t + dt + nTheta) % nTheta
				for dr := -rWin; dr <= rWin; dr++ {
					rr := r + dr
					if (dt == 0 && dr == 0) || rr < 0 || rr >= nRho {
						continue
					}
					other := acc[tt*nRho+rr]
					// Ties go to the lower index so plateaus yield one peak.
					if other > v || (other == v && (tt*nRho+rr) < (t*nRho+r)) {
						isMax = false
						break
					}
				}
			}
			if isMax {
				peaks = append(peaks, peak{t: t, r: r, votes: v})
			}
		}
	}
	sort.Slice(peaks, func(i, j int) bool { return peaks[i].votes > peaks[j].votes })
	if len(peaks) > houghMaxPeaks {
		peaks = peaks[:houghMaxPeaks]
	}

	var segments []segment
	for _, pk := range peaks {
		rho := float64(pk.r - offset)
		c, s := cosT[pk.t], sinT[pk.t]
		var along []float64
		var onLine []Point
		for _, p := range pts {
			if math.Abs(p.X*c+p.Y*s-rho) <= 1 {
				onLine = append(onLine, p)
			}
		}
		if len(onLine) < minLen {
			continue
		}
		sort.Slice(onLine, func(i, j int) bool {
			return -onLine[i].X*s+onLine[i].Y*c < -onLine[j].X*s+onLine[j].Y*c
		})
		along = along[:0]
		for _, p := range onLine {
			along = append(along, -p.X*s+p.Y*c)
		}
		angle := float64(pk.t)*houghStepDeg - 90
		start := 0
		for i := 1; i <= len(onLine); i++ {
			if i < len(onLine) && along[i]-along[i-1] <= float64(maxGap) {
				continue
			}
			if along[i-1]-along[start] >= float64(minLen) {
				segments = append(segments, segment{A: onLine[start], B: onLine[i-1], AngleDeg: angle})
			}
			start = i
		}
	}
	return segments
}

// Deskew rotates img upright when its estimated skew exceeds threshold
// degrees. It returns the estimated skew either way.
func Deskew(img image.Image, threshold float64) (image.Image, float64, bool) {
	skew, ok := EstimateSkew(img)
	if !ok || math.Abs(skew) <= threshold {
		return img, skew, false
	}
	return rotateKeep(img, -skew), skew, true
}

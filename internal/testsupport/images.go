package testsupport

import (
	"image"
	"image/color"
	"image/draw"
	"os"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
)

// PageSpec describes a synthetic photographed document: a light page with
// dark text lines on a darker background, optionally rotated.
type PageSpec struct {
	Width, Height int
	Page          image.Rectangle
	Angle         float64 // degrees, counter-clockwise
	Background    color.Gray
}

// DefaultPage returns a 400x300 frame holding a 300x200 page.
func DefaultPage() PageSpec {
	return PageSpec{
		Width:      400,
		Height:     300,
		Page:       image.Rect(50, 50, 350, 250),
		Background: color.Gray{Y: 40},
	}
}

// PageImage renders spec.
func PageImage(spec PageSpec) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, spec.Width, spec.Height))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: spec.Background}, image.Point{}, draw.Src)
	if !spec.Page.Empty() {
		draw.Draw(img, spec.Page, &image.Uniform{C: color.White}, image.Point{}, draw.Src)
		DrawTextLines(img, spec.Page.Inset(20), 14, 3)
	}
	if spec.Angle != 0 {
		return imaging.Rotate(img, spec.Angle, color.Gray{Y: spec.Background.Y})
	}
	return img
}

// TextPage renders a full-frame white page covered with horizontal lines,
// like a flatbed scan.
func TextPage(width, height int, angle float64) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	DrawTextLines(img, img.Bounds().Inset(width/10), 16, 4)
	if angle != 0 {
		return imaging.Rotate(img, angle, color.White)
	}
	return img
}

// DrawTextLines paints dark horizontal bars inside area every spacing pixels.
func DrawTextLines(img draw.Image, area image.Rectangle, spacing, thickness int) {
	for y := area.Min.Y; y+thickness <= area.Max.Y; y += spacing {
		line := image.Rect(area.Min.X, y, area.Max.X, y+thickness)
		draw.Draw(img, line, &image.Uniform{C: color.Gray{Y: 20}}, image.Point{}, draw.Src)
	}
}

// SaveImage writes img under dir with the given name and returns its path.
func SaveImage(t testing.TB, dir, name string, img image.Image) string {
	t.Helper()

	path := filepath.Join(dir, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", dir, err)
	}
	if err := imaging.Save(img, path); err != nil {
		t.Fatalf("save %s: %v", path, err)
	}
	return path
}

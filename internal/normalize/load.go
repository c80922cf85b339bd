package normalize

import (
	"bytes"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/jdeng/goheif"
)

const jpegQuality = 95

// Load decodes an uploaded image. HEIC/HEIF photos are decoded with goheif;
// everything else goes through imaging with EXIF orientation applied.
func Load(path string) (image.Image, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".heic", ".heif":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read heic: %w", err)
		}
		img, err := goheif.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("decode heic: %w", err)
		}
		return img, nil
	default:
		img, err := imaging.Open(path, imaging.AutoOrientation(true))
		if err != nil {
			return nil, fmt.Errorf("open image: %w", err)
		}
		return img, nil
	}
}

// Save encodes img according to the extension of path. HEIC output is not
// supported, so callers pick a .jpg or .png destination.
func Save(img image.Image, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	if err := imaging.Save(img, path, imaging.JPEGQuality(jpegQuality)); err != nil {
		return fmt.Errorf("save image: %w", err)
	}
	return nil
}

// OutputPath returns the path a preprocessed copy of input is written to
// inside dir. HEIC inputs become JPEG.
func OutputPath(dir, input string) string {
	base := filepath.Base(input)
	ext := strings.ToLower(filepath.Ext(base))
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	switch ext {
	case ".png", ".jpg", ".jpeg", ".tif", ".tiff", ".bmp", ".gif":
	default:
		ext = ".jpg"
	}
	return filepath.Join(dir, stem+"_preprocessed"+ext)
}

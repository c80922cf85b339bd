package ocr

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"docarchive/internal/config"
	"docarchive/internal/logging"
	"docarchive/internal/services"
)

// Extraction method names persisted with each document.
const (
	MethodTesseract   = "tesseract"
	MethodPDFToText   = "pdftotext"
	MethodUnsupported = "unsupported"
)

var imageExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".tif": true, ".tiff": true,
	".bmp": true, ".gif": true, ".webp": true,
}

// Extraction is the text pulled from one file.
type Extraction struct {
	Text       string
	Confidence float64
	Method     string
	Pages      int
}

// Option configures the extractor.
type Option func(*Extractor)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec Executor) Option {
	return func(e *Extractor) {
		if exec != nil {
			e.exec = exec
		}
	}
}

// Extractor runs tesseract and pdftotext.
type Extractor struct {
	tesseract string
	pdftotext string
	languages string
	timeout   time.Duration
	exec      Executor
	logger    *slog.Logger
}

// New builds an extractor from the ocr config section.
func New(cfg config.OCR, logger *slog.Logger, opts ...Option) *Extractor {
	if logger == nil {
		logger = logging.NewNop()
	}
	langs := strings.Join(cfg.Languages, "+")
	if langs == "" {
		langs = "eng"
	}
	e := &Extractor{
		tesseract: orDefault(cfg.TesseractBinary, "tesseract"),
		pdftotext: orDefault(cfg.PDFToTextBinary, "pdftotext"),
		languages: langs,
		timeout:   time.Duration(cfg.TimeoutSeconds) * time.Second,
		exec:      commandExecutor{},
		logger:    logging.NewComponentLogger(logger, "ocr"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// IsPDF reports whether path or mimeType denote a PDF.
func IsPDF(path, mimeType string) bool {
	return strings.EqualFold(filepath.Ext(path), ".pdf") || strings.Contains(strings.ToLower(mimeType), "pdf")
}

// IsImage reports whether path or mimeType denote a raster image.
func IsImage(path, mimeType string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return imageExtensions[ext] || ext == ".heic" || ext == ".heif" || strings.HasPrefix(strings.ToLower(mimeType), "image/")
}

// Extract dispatches on the file type. Unsupported files yield an empty
// extraction and no error.
func (e *Extractor) Extract(ctx context.Context, path, mimeType string) (Extraction, error) {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}
	switch {
	case IsPDF(path, mimeType):
		return e.extractPDF(ctx, path)
	case IsImage(path, mimeType):
		return e.extractImage(ctx, path)
	}
	logging.WithContext(ctx, e.logger).Warn("unsupported file type for text extraction",
		logging.String("path", path),
		logging.String("mime_type", mimeType),
	)
	return Extraction{Method: MethodUnsupported}, nil
}

func (e *Extractor) extractImage(ctx context.Context, path string) (Extraction, error) {
	out, err := e.exec.Output(ctx, e.tesseract, []string{path, "stdout", "-l", e.languages, "tsv"})
	if err != nil {
		return Extraction{}, services.Wrap(markerFor(ctx, err), "ocr", "tesseract", "image text extraction failed", err)
	}
	text, confidence := ParseTSV(string(out))
	logging.WithContext(ctx, e.logger).Debug("tesseract finished",
		logging.Int("chars", len(text)),
		logging.Float64("confidence", confidence),
	)
	return Extraction{Text: text, Confidence: confidence, Method: MethodTesseract, Pages: 1}, nil
}

func (e *Extractor) extractPDF(ctx context.Context, path string) (Extraction, error) {
	out, err := e.exec.Output(ctx, e.pdftotext, []string{"-layout", "-enc", "UTF-8", path, "-"})
	if err != nil {
		return Extraction{}, services.Wrap(markerFor(ctx, err), "ocr", "pdftotext", "pdf text extraction failed", err)
	}
	raw := string(out)
	pages := strings.Count(strings.TrimRight(raw, "\f"), "\f") + 1
	text := strings.TrimSpace(strings.ReplaceAll(raw, "\f", "\n\n"))
	confidence := 0.0
	if text != "" {
		confidence = 1.0
	}
	return Extraction{Text: text, Confidence: confidence, Method: MethodPDFToText, Pages: pages}, nil
}

func markerFor(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return services.ErrTimeout
	}
	return services.ErrExternalTool
}

// ParseTSV rebuilds text from tesseract TSV output and returns it with the
// mean word confidence in [0,1]. Lines are joined with newlines and
// paragraphs are separated by a blank line.
func ParseTSV(tsv string) (string, float64) {
	var (
		b          strings.Builder
		lastLine   string
		lastPara   string
		confSum    float64
		confCount  int
		lineHasTxt bool
	)
	for i, row := range strings.Split(tsv, "\n") {
		if i == 0 && strings.HasPrefix(row, "level") {
			continue
		}
		cols := strings.Split(strings.TrimRight(row, "\r"), "\t")
		if len(cols) < 12 || cols[0] != "5" {
			continue
		}
		if conf, err := strconv.ParseFloat(cols[10], 64); err == nil && conf >= 0 {
			confSum += conf
			confCount++
		}
		word := strings.TrimSpace(strings.Join(cols[11:], "\t"))
		if word == "" {
			continue
		}
		para := fmt.Sprintf("%s/%s/%s", cols[1], cols[2], cols[3])
		line := para + "/" + cols[4]
		switch {
		case b.Len() == 0:
		case para != lastPara:
			b.WriteString("\n\n")
			lineHasTxt = false
		case line != lastLine:
			b.WriteByte('\n')
			lineHasTxt = false
		}
		if lineHasTxt {
			b.WriteByte(' ')
		}
		b.WriteString(word)
		lineHasTxt = true
		lastLine, lastPara = line, para
	}
	if confCount == 0 {
		return b.String(), 0
	}
	return b.String(), confSum / float64(confCount) / 100
}

func orDefault(value, fallback string) string {
	if v := strings.TrimSpace(value); v != "" {
		return v
	}
	return fallback
}

package pdfarchive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"docarchive/internal/config"
	"docarchive/internal/fileutil"
	"docarchive/internal/logging"
	"docarchive/internal/normalize"
	"docarchive/internal/services"
)

// ocrmypdf exits with 6 when the input already has a text layer.
const exitPriorOCR = 6

// Preset maps a quality name onto ocrmypdf optimisation settings.
type Preset struct {
	Optimize    int
	JPEGQuality int
	PNGQuality  int
}

var presets = map[string]Preset{
	"low":    {Optimize: 1, JPEGQuality: 60, PNGQuality: 60},
	"medium": {Optimize: 2, JPEGQuality: 75, PNGQuality: 75},
	"high":   {Optimize: 3, JPEGQuality: 90, PNGQuality: 90},
}

// PresetFor returns the named preset, falling back to "high".
func PresetFor(quality string) Preset {
	if p, ok := presets[strings.ToLower(strings.TrimSpace(quality))]; ok {
		return p
	}
	return presets["high"]
}

// pdfcpu embeds these natively; anything else is re-encoded to PNG first.
var importableExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".tif": true, ".tiff": true, ".webp": true,
}

var convertibleExtensions = map[string]bool{
	".bmp": true, ".gif": true, ".heic": true, ".heif": true,
}

// Result describes one conversion. OutputPath is the PDF written, or the
// input path when nothing could be written.
type Result struct {
	Success    bool
	OutputPath string
	PriorOCR   bool
	Err        error
}

// Option configures the converter.
type Option func(*Converter)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec Executor) Option {
	return func(c *Converter) {
		if exec != nil {
			c.exec = exec
		}
	}
}

// Converter wraps the ocrmypdf CLI.
type Converter struct {
	binary          string
	preset          Preset
	rotateThreshold float64
	timeout         time.Duration
	exec            Executor
	pdfConf         *model.Configuration
	logger          *slog.Logger
}

// New builds a converter from the archival_pdf config section.
func New(cfg config.ArchivalPDF, logger *slog.Logger, opts ...Option) *Converter {
	binary := strings.TrimSpace(cfg.OCRmyPDFBinary)
	if binary == "" {
		binary = "ocrmypdf"
	}
	threshold := cfg.RotateThreshold
	if threshold <= 0 {
		threshold = 14
	}
	pdfConf := model.NewDefaultConfiguration()
	pdfConf.ValidationMode = model.ValidationRelaxed
	c := &Converter{
		binary:          binary,
		preset:          PresetFor(cfg.Quality),
		rotateThreshold: threshold,
		timeout:         time.Duration(cfg.TimeoutSeconds) * time.Second,
		exec:            commandExecutor{},
		pdfConf:         pdfConf,
		logger:          logging.NewComponentLogger(logger, "pdfarchive"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Args builds the ocrmypdf command line.
func (c *Converter) Args(in, out string, languages []string) []string {
	langs := strings.Join(languages, "+")
	if langs == "" {
		langs = "eng"
	}
	return []string{
		"--language", langs,
		"--output-type", "pdfa",
		"--optimize", strconv.Itoa(c.preset.Optimize),
		"--jpeg-quality", strconv.Itoa(c.preset.JPEGQuality),
		"--png-quality", strconv.Itoa(c.preset.PNGQuality),
		"--deskew",
		"--clean",
		"--rotate-pages",
		"--rotate-pages-threshold", strconv.FormatFloat(c.rotateThreshold, 'f', -1, 64),
		in, out,
	}
}

// EnsureSearchable writes a searchable PDF for in at out.
func (c *Converter) EnsureSearchable(ctx context.Context, in, out string, languages []string) Result {
	logger := logging.WithContext(ctx, c.logger)
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return Result{OutputPath: in, Err: fmt.Errorf("create output dir: %w", err)}
	}

	ext := strings.ToLower(filepath.Ext(in))
	source := in
	switch {
	case ext == ".pdf":
	case importableExtensions[ext] || convertibleExtensions[ext]:
		tmp, err := c.imageToPDF(in, out)
		if err != nil {
			logging.WarnWithContext(logger, "image to pdf conversion failed", "archival_pdf_import_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "document archived without a searchable pdf"),
			)
			return Result{OutputPath: in, Err: err}
		}
		defer os.Remove(tmp)
		source = tmp
	default:
		return Result{OutputPath: in, Err: fmt.Errorf("%w: unsupported file type %q", services.ErrValidation, ext)}
	}

	runCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	started := time.Now()
	err := c.exec.Run(runCtx, c.binary, c.Args(source, out, languages))
	if err == nil {
		if verr := api.ValidateFile(out, c.pdfConf); verr != nil {
			err = fmt.Errorf("validate output: %w", verr)
		}
	}
	if err == nil {
		logger.Info("searchable pdf created",
			logging.String("output", out),
			logging.Duration("elapsed", time.Since(started)),
		)
		return Result{Success: true, OutputPath: out}
	}

	var coder exitCoder
	if errors.As(err, &coder) && coder.ExitCode() == exitPriorOCR {
		if cerr := fileutil.CopyFile(source, out); cerr != nil {
			return Result{OutputPath: in, Err: fmt.Errorf("copy pdf with prior ocr: %w", cerr)}
		}
		logger.Info("pdf already has a text layer; copied unchanged", logging.String("output", out))
		return Result{Success: true, OutputPath: out, PriorOCR: true}
	}

	marker := services.ErrExternalTool
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		marker = services.ErrTimeout
	}
	wrapped := services.Wrap(marker, "archival_pdf", "ocrmypdf", "searchable pdf creation failed", err)
	logging.WarnWithContext(logger, "ocrmypdf failed; archiving pdf without text layer", "archival_pdf_failed",
		logging.Error(wrapped),
		logging.String(logging.FieldErrorHint, "run ocrmypdf manually on the file to see the full error"),
	)
	if cerr := fileutil.CopyFile(source, out); cerr != nil {
		return Result{OutputPath: in, Err: wrapped}
	}
	return Result{OutputPath: out, Err: wrapped}
}

// imageToPDF wraps a single image into a PDF next to out and returns its path.
func (c *Converter) imageToPDF(in, out string) (string, error) {
	dir := filepath.Dir(out)
	image := in
	ext := strings.ToLower(filepath.Ext(in))
	if convertibleExtensions[ext] {
		img, err := normalize.Load(in)
		if err != nil {
			return "", fmt.Errorf("decode image: %w", err)
		}
		png, err := os.CreateTemp(dir, "import-*.png")
		if err != nil {
			return "", fmt.Errorf("create temp image: %w", err)
		}
		png.Close()
		defer os.Remove(png.Name())
		if err := imaging.Save(img, png.Name()); err != nil {
			return "", fmt.Errorf("encode png: %w", err)
		}
		image = png.Name()
	}

	tmp, err := os.CreateTemp(dir, "import-*.pdf")
	if err != nil {
		return "", fmt.Errorf("create temp pdf: %w", err)
	}
	tmp.Close()
	// ImportImagesFile appends to an existing file, so start from nothing.
	os.Remove(tmp.Name())
	if err := api.ImportImagesFile([]string{image}, tmp.Name(), pdfcpu.DefaultImportConfig(), c.pdfConf); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("import image into pdf: %w", err)
	}
	return tmp.Name(), nil
}

package normalize

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"math"
	"time"

	"github.com/disintegration/imaging"

	"docarchive/internal/config"
	"docarchive/internal/logging"
)

// Stage names as they appear in results and logs.
const (
	StageCrop     = "crop"
	StageDeskew   = "deskew"
	StageContrast = "contrast"
	StageDenoise  = "denoise"
)

const (
	minRectifiedSide = 50
	// A detected outline covering this much of the frame means the photo is
	// already cropped.
	fullFrameRatio = 0.98
)

// Options toggles and tunes the stages.
type Options struct {
	AutoCrop        bool
	Deskew          bool
	Contrast        bool
	Denoise         bool
	MinAreaRatio    float64
	DeskewThreshold float64
	ClipLimit       float64
	TileGrid        int
	Diameter        int
	SigmaColor      float64
	SigmaSpace      float64
}

// OptionsFromConfig maps the preprocessing section onto Options. A disabled
// section turns every stage off.
func OptionsFromConfig(cfg config.Preprocessing) Options {
	return Options{
		AutoCrop:        cfg.Enabled && cfg.AutoCrop,
		Deskew:          cfg.Enabled && cfg.Deskew,
		Contrast:        cfg.Enabled && cfg.ContrastEnhancement,
		Denoise:         cfg.Enabled && cfg.NoiseReduction,
		MinAreaRatio:    cfg.MinDocumentAreaRatio,
		DeskewThreshold: cfg.DeskewAngleThreshold,
		ClipLimit:       cfg.CLAHEClipLimit,
		TileGrid:        cfg.CLAHETileGrid,
		Diameter:        cfg.BilateralDiameter,
		SigmaColor:      cfg.BilateralSigmaColor,
		SigmaSpace:      cfg.BilateralSigmaSpace,
	}
}

// StageResult is the outcome of one stage. Image is always usable: on error
// it is the image the stage received.
type StageResult struct {
	Name    string
	Image   image.Image
	Applied bool
	Err     error
	Detail  string
}

// StageReport is a StageResult without the pixels.
type StageReport struct {
	Name    string
	Applied bool
	Err     error
	Detail  string
}

// Result describes a NormalizeFile run. Success is false only when the input
// could not be decoded or the output could not be written.
type Result struct {
	Success    bool
	OutputPath string
	Stages     []StageReport
	Err        error
}

// Normalizer runs crop, deskew, contrast and denoise in that order.
type Normalizer struct {
	opts      Options
	detectors []Detector
	logger    *slog.Logger
}

// New builds a Normalizer using the default detector list.
func New(opts Options, logger *slog.Logger) *Normalizer {
	return NewWithDetectors(opts, DefaultDetectors(), logger)
}

// NewWithDetectors builds a Normalizer with a custom detector order.
func NewWithDetectors(opts Options, detectors []Detector, logger *slog.Logger) *Normalizer {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Normalizer{opts: opts, detectors: detectors, logger: logging.NewComponentLogger(logger, "normalize")}
}

// Normalize runs the enabled stages over img. Stage failures keep the
// pre-stage image and never abort the run.
func (n *Normalizer) Normalize(ctx context.Context, img image.Image) (image.Image, []StageResult) {
	type stageFunc struct {
		name    string
		enabled bool
		run     func(image.Image) StageResult
	}
	stages := []stageFunc{
		{StageCrop, n.opts.AutoCrop, n.crop},
		{StageDeskew, n.opts.Deskew, n.deskew},
		{StageContrast, n.opts.Contrast, n.contrast},
		{StageDenoise, n.opts.Denoise, n.denoise},
	}
	logger := logging.WithContext(ctx, n.logger)
	var results []StageResult
	current := img
	for _, stage := range stages {
		if !stage.enabled {
			continue
		}
		started := time.Now()
		res := runStage(stage.name, current, stage.run)
		if res.Err != nil {
			logging.WarnWithContext(logger, "image stage failed; keeping previous image", "normalize_stage_failed",
				logging.String(logging.FieldStage, stage.name),
				logging.Error(res.Err),
				logging.String(logging.FieldErrorHint, "inspect the source image; later stages still run"),
			)
		} else {
			logger.Debug("image stage finished",
				logging.String("normalize_stage", stage.name),
				logging.Bool("applied", res.Applied),
				logging.String("detail", res.Detail),
				logging.Duration("elapsed", time.Since(started)),
			)
		}
		current = res.Image
		results = append(results, res)
	}
	return current, results
}

// runStage converts a panic inside fn into a stage error.
func runStage(name string, img image.Image, fn func(image.Image) StageResult) (res StageResult) {
	defer func() {
		if r := recover(); r != nil {
			res = StageResult{Name: name, Image: img, Err: fmt.Errorf("%s stage panic: %v", name, r)}
		}
	}()
	res = fn(img)
	res.Name = name
	if res.Image == nil || res.Err != nil {
		res.Image = img
		res.Applied = false
	}
	return res
}

// NormalizeFile loads in, normalizes it and writes the result to out.
func (n *Normalizer) NormalizeFile(ctx context.Context, in, out string) Result {
	logger := logging.WithContext(ctx, n.logger)
	img, err := Load(in)
	if err != nil {
		logger.Error("image load failed", logging.String("path", in), logging.Error(err))
		return Result{Err: err}
	}
	b := img.Bounds()
	logger.Info("normalizing image", logging.String("path", in), logging.Int("width", b.Dx()), logging.Int("height", b.Dy()))

	final, stages := n.Normalize(ctx, img)
	reports := make([]StageReport, len(stages))
	for i, s := range stages {
		reports[i] = StageReport{Name: s.Name, Applied: s.Applied, Err: s.Err, Detail: s.Detail}
	}
	if err := Save(final, out); err != nil {
		logger.Error("image save failed", logging.String("path", out), logging.Error(err))
		return Result{Stages: reports, Err: err}
	}
	fb := final.Bounds()
	logger.Info("image normalized",
		logging.String("output", out),
		logging.Int("width", fb.Dx()),
		logging.Int("height", fb.Dy()),
		logging.Int("stages_applied", countApplied(reports)),
	)
	return Result{Success: true, OutputPath: out, Stages: reports}
}

func countApplied(reports []StageReport) int {
	n := 0
	for _, r := range reports {
		if r.Applied {
			n++
		}
	}
	return n
}

var errNoDetectors = errors.New("no boundary detectors configured")

func (n *Normalizer) crop(img image.Image) StageResult {
	if len(n.detectors) == 0 {
		return StageResult{Image: img, Err: errNoDetectors}
	}
	out, name, ok := Crop(img, n.detectors, n.opts.MinAreaRatio)
	if !ok {
		return StageResult{Image: img, Detail: "no document outline accepted"}
	}
	if out == nil {
		return StageResult{Image: img, Detail: name + ": document fills frame"}
	}
	return StageResult{Image: out, Applied: true, Detail: name}
}

// Crop tries each detector in order and rectifies the first outline that is
// large enough. It reports the winning detector. A nil image with ok set means
// the winning outline already spans the frame.
func Crop(img image.Image, detectors []Detector, minAreaRatio float64) (image.Image, string, bool) {
	b := img.Bounds()
	work := img
	scale := 1.0
	if side := max(b.Dx(), b.Dy()); side > maxAnalysisSide {
		work = imaging.Fit(img, maxAnalysisSide, maxAnalysisSide, imaging.Box)
		scale = float64(b.Dx()) / float64(work.Bounds().Dx())
	}
	g := toGray(work)
	frame := float64(g.Rect.Dx() * g.Rect.Dy())
	for _, d := range detectors {
		q, ok := d.Detect(g)
		if !ok {
			continue
		}
		area := q.Area()
		if area < minAreaRatio*frame {
			continue
		}
		if area >= fullFrameRatio*frame {
			return nil, d.Name(), true
		}
		full := q.scale(scale)
		if w, h := full.Size(); w <= minRectifiedSide || h <= minRectifiedSide {
			continue
		}
		warped, err := warpQuad(img, full)
		if err != nil {
			continue
		}
		return warped, d.Name(), true
	}
	return nil, "", false
}

func (n *Normalizer) deskew(img image.Image) StageResult {
	out, skew, applied := Deskew(img, n.opts.DeskewThreshold)
	return StageResult{Image: out, Applied: applied, Detail: fmt.Sprintf("skew %.2f°", roundTo(skew, 2))}
}

func (n *Normalizer) contrast(img image.Image) StageResult {
	return StageResult{Image: EnhanceContrast(img, n.opts.ClipLimit, n.opts.TileGrid), Applied: true}
}

func (n *Normalizer) denoise(img image.Image) StageResult {
	return StageResult{Image: Denoise(img, n.opts.Diameter, n.opts.SigmaColor, n.opts.SigmaSpace), Applied: true}
}

func roundTo(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"docarchive/internal/archive"
	"docarchive/internal/config"
	"docarchive/internal/documents"
	"docarchive/internal/duplicates"
	"docarchive/internal/fileutil"
	"docarchive/internal/logging"
	"docarchive/internal/normalize"
	"docarchive/internal/services"
	"docarchive/internal/services/analysis"
	"docarchive/internal/services/ocr"
	"docarchive/internal/services/pdfarchive"
)

// Step names as persisted in progress_stage.
const (
	StepHash        = "hash"
	StepPreprocess  = "preprocess"
	StepAnalyze     = "analyze"
	StepStorageYear = "storage_year"
	StepArchivalPDF = "archival_pdf"
	StepPlacement   = "placement"
	StepEmbeddings  = "embeddings"
	StepDuplicates  = "duplicates"
	StepCompleted   = "completed"
)

// Outcome is the terminal branch a pipeline run took.
type Outcome string

const (
	OutcomeCompleted        Outcome = "completed"
	OutcomeDuplicateDeleted Outcome = "duplicate_deleted"
	OutcomeFailed           Outcome = "failed"
	OutcomeSkipped          Outcome = "skipped"
)

// ImageNormalizer prepares photographed pages for text extraction.
type ImageNormalizer interface {
	NormalizeFile(ctx context.Context, in, out string) normalize.Result
}

// TextExtractor pulls text out of an image or PDF.
type TextExtractor interface {
	Extract(ctx context.Context, path, mimeType string) (ocr.Extraction, error)
}

// Analyzer turns extracted text into document metadata. It never fails.
type Analyzer interface {
	Analyze(ctx context.Context, text string, ocrConfidence float64) analysis.Result
}

// ArchivalConverter produces a searchable PDF.
type ArchivalConverter interface {
	EnsureSearchable(ctx context.Context, in, out string, languages []string) pdfarchive.Result
}

// Embedder chunks text and stores chunk embeddings.
type Embedder interface {
	Enabled() bool
	Chunk(text string) []string
	EmbedAndStore(ctx context.Context, documentID int64, chunks []string) (int, error)
}

// DuplicateResolver decides whether a document repeats an existing one.
type DuplicateResolver interface {
	Resolve(ctx context.Context, doc *documents.Document) duplicates.Decision
}

// Placer files a document into the archive.
type Placer interface {
	Place(ctx context.Context, doc *documents.Document, ocrPath string) (archive.Placement, error)
}

// VectorIndex is an external similarity index that must forget deleted
// documents.
type VectorIndex interface {
	DeleteDocument(ctx context.Context, documentID int64) error
}

// Dependencies are the long-lived collaborators of the pipeline. Normalizer,
// Converter, Embedder, Resolver and Vectors are optional.
type Dependencies struct {
	Normalizer ImageNormalizer
	Extractor  TextExtractor
	Analyzer   Analyzer
	Converter  ArchivalConverter
	Embedder   Embedder
	Resolver   DuplicateResolver
	Placer     Placer
	Vectors    VectorIndex
}

// Result reports what happened to one document.
type Result struct {
	DocumentID int64
	Outcome    Outcome
	Step       string
	Duplicate  duplicates.Decision
	Err        error
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithClock overrides the time source used for storage years.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// Orchestrator runs the pipeline for one document at a time. It is safe for
// concurrent use on different documents.
type Orchestrator struct {
	store      *documents.Store
	deps       Dependencies
	stagingDir string
	languages  []string
	now        func() time.Time
	logger     *slog.Logger

	ownerMu    sync.Mutex
	ownerLocks map[int64]*sync.Mutex
}

// NewOrchestrator wires the pipeline. Extractor, Analyzer and Placer are
// required.
func NewOrchestrator(cfg *config.Config, store *documents.Store, deps Dependencies, logger *slog.Logger, opts ...Option) (*Orchestrator, error) {
	if store == nil {
		return nil, services.Wrap(services.ErrConfiguration, "ingest", "init", "document store is required", nil)
	}
	if deps.Extractor == nil || deps.Analyzer == nil || deps.Placer == nil {
		return nil, services.Wrap(services.ErrConfiguration, "ingest", "init", "extractor, analyzer and placer are required", nil)
	}
	o := &Orchestrator{
		store:      store,
		deps:       deps,
		stagingDir: cfg.Paths.StagingDir,
		languages:  append([]string(nil), cfg.OCR.Languages...),
		now:        time.Now,
		logger:     logging.NewComponentLogger(logger, "ingest"),
		ownerLocks: make(map[int64]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// run carries per-document pipeline state between steps.
type run struct {
	doc        *documents.Document
	mimeType   string
	workDir    string
	ocrSource  string
	ocrPath    string
	previous   string
	extraction ocr.Extraction
}

// Process runs the pipeline for documentID. filePath and mimeType override
// the stored values when set. allowTerminal lets completed and failed
// documents run again (reprocessing). Process never returns an error; the
// outcome is recorded on the document and in the Result.
func (o *Orchestrator) Process(ctx context.Context, documentID int64, filePath, mimeType string, allowTerminal bool) (res Result) {
	res = Result{DocumentID: documentID}
	ctx = services.WithDocumentID(ctx, documentID)
	if _, ok := services.RequestIDFromContext(ctx); !ok {
		ctx = services.WithRequestID(ctx, uuid.NewString())
	}
	logger := logging.WithContext(ctx, o.logger)

	claimed, err := o.store.ClaimForProcessing(ctx, documentID, allowTerminal)
	if err != nil {
		logging.ErrorWithContext(logger, "document claim failed", "ingest_claim_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check database access"),
		)
		res.Outcome, res.Err = OutcomeSkipped, err
		return res
	}
	if !claimed {
		logger.Info("document not claimable; skipping",
			logging.Args(logging.DecisionAttrs("ingest_claim", "skipped", "missing or already terminal")...)...)
		res.Outcome = OutcomeSkipped
		return res
	}
	doc, err := o.store.GetByID(ctx, documentID)
	if err != nil || doc == nil {
		if err == nil {
			err = services.Wrap(services.ErrNotFound, "ingest", "load", "document vanished after claim", nil)
		}
		res.Outcome, res.Err = OutcomeFailed, err
		logging.ErrorWithContext(logger, "document load failed", "ingest_load_failed", logging.Error(err))
		return res
	}
	ctx = services.WithOwnerID(ctx, doc.OwnerID)
	logger = logging.WithContext(ctx, o.logger)

	if strings.TrimSpace(filePath) != "" {
		doc.FilePath = filePath
	}
	if strings.TrimSpace(mimeType) == "" {
		mimeType = doc.MimeType
	}
	r := &run{doc: doc, mimeType: mimeType, ocrSource: doc.FilePath, previous: doc.OCRPDFPath}
	doc.Status = documents.StatusProcessing
	doc.ErrorMessage = ""

	defer func() {
		if p := recover(); p != nil {
			err := services.Wrap(services.ErrTransient, r.doc.ProgressStage, "panic", fmt.Sprint(p), nil)
			res = o.fail(ctx, r, err)
		}
	}()
	defer o.cleanup(ctx, r)

	started := time.Now()
	logger.Info("ingestion started",
		logging.String(logging.FieldEventType, "ingest_start"),
		logging.String("file", doc.FilePath),
		logging.String("mime_type", mimeType),
	)

	steps := []struct {
		name string
		fn   func(context.Context, *run) error
	}{
		{StepHash, o.hash},
		{StepPreprocess, o.preprocess},
		{StepAnalyze, o.analyze},
		{StepStorageYear, o.storageYear},
		{StepArchivalPDF, o.archivalPDF},
		{StepPlacement, o.place},
		{StepEmbeddings, o.embed},
	}
	for _, step := range steps {
		if err := o.runStep(ctx, r, step.name, step.fn); err != nil {
			return o.fail(ctx, r, err)
		}
	}

	decision, deleted, err := o.resolveDuplicates(services.WithStage(ctx, StepDuplicates), r)
	if err != nil {
		return o.fail(ctx, r, err)
	}
	res.Duplicate = decision
	if deleted {
		res.Outcome, res.Step = OutcomeDuplicateDeleted, StepDuplicates
		return res
	}

	if !fileutil.Exists(doc.FilePath) {
		return o.fail(ctx, r, services.Wrap(services.ErrNotFound, StepCompleted, "verify", "archived original missing: "+doc.FilePath, nil))
	}
	doc.Status = documents.StatusCompleted
	doc.ProgressStage = StepCompleted
	if err := o.store.Update(ctx, doc); err != nil {
		return o.fail(ctx, r, fmt.Errorf("persist completion: %w", err))
	}
	logger.Info("ingestion completed",
		logging.String(logging.FieldEventType, "ingest_complete"),
		logging.String("kind", string(doc.Kind)),
		logging.String("category", doc.Category),
		logging.String("path", doc.FilePath),
		logging.Bool("is_duplicate", doc.IsDuplicate),
		logging.Duration("elapsed", time.Since(started)),
	)
	res.Outcome, res.Step = OutcomeCompleted, StepCompleted
	return res
}

// runStep executes fn and persists the document with the step recorded.
func (o *Orchestrator) runStep(ctx context.Context, r *run, name string, fn func(context.Context, *run) error) error {
	stepCtx := services.WithStage(ctx, name)
	if err := fn(stepCtx, r); err != nil {
		return err
	}
	r.doc.ProgressStage = name
	if err := o.store.Update(stepCtx, r.doc); err != nil {
		return fmt.Errorf("persist %s: %w", name, err)
	}
	logging.WithContext(stepCtx, o.logger).Debug("step committed")
	return nil
}

// fail records a fatal error on the document. Files stay where they are.
func (o *Orchestrator) fail(ctx context.Context, r *run, err error) Result {
	step := r.doc.ProgressStage
	logger := logging.WithContext(services.WithStage(ctx, step), o.logger)
	message := services.FailureMessage(err)
	if message == "" {
		message = "ingestion failed"
	}
	r.doc.Status = documents.StatusFailed
	r.doc.ErrorMessage = message
	if uerr := o.store.Update(ctx, r.doc); uerr != nil {
		// The row may have gone; fall back to a status-only write.
		if serr := o.store.SetStatus(ctx, r.doc.ID, documents.StatusFailed, message); serr != nil {
			logger.Error("failed to persist ingestion failure", logging.Error(uerr), logging.String("status_error", serr.Error()))
		}
	}
	logging.ErrorWithContext(logger, "ingestion failed", "ingest_failed",
		logging.String("last_step", step),
		logging.String("error_message", message),
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "fix the cause and reprocess the document"),
	)
	return Result{DocumentID: r.doc.ID, Outcome: OutcomeFailed, Step: step, Err: err}
}

// cleanup removes the per-document staging directory. Files already moved
// into the archive are not affected.
func (o *Orchestrator) cleanup(ctx context.Context, r *run) {
	if r.workDir == "" {
		return
	}
	if err := os.RemoveAll(r.workDir); err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, o.logger), "staging cleanup failed", "ingest_cleanup_failed",
			logging.String("dir", r.workDir),
			logging.Error(err),
			logging.String(logging.FieldImpact, "temporary files remain in staging_dir"),
			logging.String(logging.FieldErrorHint, "remove the directory manually"),
		)
	}
}

// lockOwner serializes duplicate resolution per owner so two uploads of the
// same file cannot both act on a stale view of the other.
func (o *Orchestrator) lockOwner(ownerID int64) func() {
	o.ownerMu.Lock()
	mu, ok := o.ownerLocks[ownerID]
	if !ok {
		mu = &sync.Mutex{}
		o.ownerLocks[ownerID] = mu
	}
	o.ownerMu.Unlock()
	mu.Lock()
	return mu.Unlock
}

// workspace returns the staging directory for this run, creating it once.
func (o *Orchestrator) workspace(r *run) (string, error) {
	if r.workDir != "" {
		return r.workDir, nil
	}
	dir := filepath.Join(o.stagingDir, "doc-"+strconv.FormatInt(r.doc.ID, 10)+"-"+uuid.NewString()[:8])
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create staging dir: %w", err)
	}
	r.workDir = dir
	return dir, nil
}

package ingest

import (
	"context"
	"path/filepath"

	"docarchive/internal/archive"
	"docarchive/internal/documents"
	"docarchive/internal/duplicates"
	"docarchive/internal/fileutil"
	"docarchive/internal/logging"
	"docarchive/internal/normalize"
	"docarchive/internal/services"
	"docarchive/internal/services/ocr"
)

func (o *Orchestrator) hash(ctx context.Context, r *run) error {
	if !fileutil.Exists(r.doc.FilePath) {
		return services.Wrap(services.ErrNotFound, StepHash, "stat", "uploaded file missing: "+r.doc.FilePath, nil)
	}
	sum, err := fileutil.HashFile(r.doc.FilePath)
	if err != nil {
		return services.Wrap(services.ErrTransient, StepHash, "read", "failed to hash uploaded file", err)
	}
	r.doc.ContentHash = sum
	return nil
}

func (o *Orchestrator) preprocess(ctx context.Context, r *run) error {
	if o.deps.Normalizer == nil || !ocr.IsImage(r.doc.FilePath, r.mimeType) {
		return nil
	}
	logger := logging.WithContext(ctx, o.logger)
	dir, err := o.workspace(r)
	if err != nil {
		return err
	}
	result := o.deps.Normalizer.NormalizeFile(ctx, r.doc.FilePath, normalize.OutputPath(dir, r.doc.FilePath))
	if !result.Success {
		logging.WarnWithContext(logger, "image preprocessing failed; using original image", "preprocess_failed",
			logging.Error(result.Err),
			logging.String(logging.FieldImpact, "text extraction runs on the unprocessed photo"),
		)
		return nil
	}
	for _, stage := range result.Stages {
		if stage.Err != nil {
			logger.Debug("normalizer stage kept input",
				logging.String("normalizer_stage", stage.Name),
				logging.Error(stage.Err),
			)
		}
	}
	r.ocrSource = result.OutputPath
	return nil
}

func (o *Orchestrator) analyze(ctx context.Context, r *run) error {
	logger := logging.WithContext(ctx, o.logger)
	extraction, err := o.deps.Extractor.Extract(ctx, r.ocrSource, r.mimeType)
	if err != nil {
		logging.WarnWithContext(logger, "text extraction failed; continuing without text", "ocr_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "document classified from defaults and not searchable by content"),
			logging.String(logging.FieldErrorHint, "check that tesseract and pdftotext are installed"),
		)
		extraction = ocr.Extraction{}
	}
	r.extraction = extraction

	result := o.deps.Analyzer.Analyze(ctx, extraction.Text, extraction.Confidence)
	doc := r.doc
	doc.ExtractedText = extraction.Text
	doc.ExtractionMethod = extraction.Method
	doc.Kind = result.Kind
	doc.Category = result.Category
	doc.DisplayName = result.DisplayName
	doc.DocumentDate = result.DocumentDate
	doc.Deadline = result.Deadline
	doc.Amount = result.Amount
	doc.Currency = result.Currency
	doc.Keywords = result.Keywords
	doc.Confidence = result.Confidence
	doc.Summary = result.Summary
	doc.ImportanceScore = result.ImportanceScore
	doc.ExtractedData = result.ExtractedData(extraction.Method, extraction.Confidence)

	logger.Info("document analyzed",
		logging.String("method", extraction.Method),
		logging.Int("chars", len(extraction.Text)),
		logging.Float64("ocr_confidence", extraction.Confidence),
		logging.String("kind", string(result.Kind)),
		logging.String("category", result.Category),
		logging.Bool("fallback", result.Fallback),
	)
	return nil
}

func (o *Orchestrator) storageYear(ctx context.Context, r *run) error {
	year, err := o.store.AssignStorageYear(ctx, r.doc.ID, archive.StorageYear(r.doc, o.now()))
	if err != nil {
		return err
	}
	r.doc.StorageYear = &year
	return nil
}

func (o *Orchestrator) archivalPDF(ctx context.Context, r *run) error {
	if o.deps.Converter == nil {
		return nil
	}
	dir, err := o.workspace(r)
	if err != nil {
		return err
	}
	out := filepath.Join(dir, "searchable.pdf")
	result := o.deps.Converter.EnsureSearchable(ctx, r.ocrSource, out, o.languages)
	if result.Err != nil {
		// The converter already logged the cause.
		logging.WithContext(ctx, o.logger).Info("archival pdf fallback",
			logging.Args(logging.DecisionAttrs("archival_pdf", "fallback", services.FailureMessage(result.Err))...)...)
	}
	if result.OutputPath != "" && result.OutputPath != r.ocrSource && fileutil.Exists(result.OutputPath) {
		r.ocrPath = result.OutputPath
	}
	return nil
}

func (o *Orchestrator) place(ctx context.Context, r *run) error {
	if _, err := o.deps.Placer.Place(ctx, r.doc, r.ocrPath); err != nil {
		return err
	}
	// A reprocessed document gets a fresh searchable copy; drop the old one.
	if r.previous != "" && r.previous != r.doc.OCRPDFPath {
		if err := fileutil.RemoveIfExists(r.previous); err != nil {
			logging.WithContext(ctx, o.logger).Debug("previous searchable pdf not removed", logging.Error(err))
		}
	}
	return nil
}

func (o *Orchestrator) embed(ctx context.Context, r *run) error {
	if o.deps.Embedder == nil || !o.deps.Embedder.Enabled() || r.doc.ExtractedText == "" {
		return nil
	}
	logger := logging.WithContext(ctx, o.logger)
	chunks := o.deps.Embedder.Chunk(r.doc.ExtractedText)
	stored, err := o.deps.Embedder.EmbedAndStore(ctx, r.doc.ID, chunks)
	if err != nil {
		logging.WarnWithContext(logger, "embedding failed; continuing without vectors", "embedding_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "content similarity and semantic search skip this document"),
			logging.String(logging.FieldErrorHint, "check the embedding service url"),
		)
		return nil
	}
	logger.Info("chunks embedded", logging.Int("chunks", len(chunks)), logging.Int("stored", stored))
	return nil
}

// resolveDuplicates applies the resolver's decision. It reports whether the
// document was deleted as an exact duplicate.
func (o *Orchestrator) resolveDuplicates(ctx context.Context, r *run) (duplicates.Decision, bool, error) {
	if o.deps.Resolver == nil {
		return duplicates.Decision{Action: duplicates.ActionNone}, false, nil
	}
	logger := logging.WithContext(ctx, o.logger)
	doc := r.doc
	unlock := o.lockOwner(doc.OwnerID)
	defer unlock()
	decision := o.deps.Resolver.Resolve(ctx, doc)
	switch decision.Action {
	case duplicates.ActionDelete:
		if err := o.removeDocument(ctx, StepDuplicates, doc); err != nil {
			return decision, false, err
		}
		logger.Info("exact duplicate deleted",
			logging.String(logging.FieldEventType, "duplicate_deleted"),
			logging.Int64("original_id", decision.Candidate.OriginalID),
			logging.Float64("similarity", decision.Candidate.Similarity),
			logging.String("strategy", string(decision.Candidate.Strategy)),
		)
		return decision, true, nil
	case duplicates.ActionFlag:
		original := decision.Candidate.OriginalID
		score := decision.Candidate.Similarity
		doc.IsDuplicate = true
		doc.DuplicateOfID = &original
		doc.SimilarityScore = &score
		logger.Info("possible duplicate flagged",
			logging.String(logging.FieldEventType, "duplicate_flagged"),
			logging.Int64("original_id", original),
			logging.Float64("similarity", score),
			logging.String("strategy", string(decision.Candidate.Strategy)),
		)
	default:
		doc.IsDuplicate = false
		doc.DuplicateOfID = nil
		doc.SimilarityScore = nil
	}
	doc.ProgressStage = StepDuplicates
	if err := o.store.Update(ctx, doc); err != nil {
		return decision, false, err
	}
	return decision, false, nil
}

// removeDocument deletes the document's record, then its files and vectors.
// A record that cannot be deleted keeps its files, so a failed document
// still points at something that exists.
func (o *Orchestrator) removeDocument(ctx context.Context, stage string, doc *documents.Document) error {
	if err := o.store.Delete(ctx, doc.ID); err != nil {
		return services.Wrap(services.ErrTransient, stage, "delete record", "failed to remove document record", err)
	}
	logger := logging.WithContext(ctx, o.logger)
	if err := archive.DeleteFiles(doc); err != nil {
		logging.WarnWithContext(logger, "document files not removed", "document_files_orphaned",
			logging.String("path", doc.FilePath),
			logging.Error(err),
			logging.String(logging.FieldImpact, "files remain on disk without a document record"),
			logging.String(logging.FieldErrorHint, "remove the files manually"),
		)
	}
	if o.deps.Vectors != nil {
		if err := o.deps.Vectors.DeleteDocument(ctx, doc.ID); err != nil {
			logger.Debug("vector index cleanup failed", logging.Error(err))
		}
	}
	return nil
}

package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"docarchive/internal/config"
	"docarchive/internal/documents"
	"docarchive/internal/fileutil"
	"docarchive/internal/logging"
	"docarchive/internal/services"
)

// Service is the entry point for uploads and maintenance runs.
type Service struct {
	store       *documents.Store
	orch        *Orchestrator
	dispatcher  *Dispatcher
	uploadDir   string
	maxUpload   int64
	concurrency int
	logger      *slog.Logger
}

// NewService starts a dispatcher sized from the ingest config section.
func NewService(cfg *config.Config, store *documents.Store, orch *Orchestrator, logger *slog.Logger, opts ...DispatcherOption) *Service {
	s := &Service{
		store:       store,
		orch:        orch,
		uploadDir:   cfg.Paths.UploadDir,
		maxUpload:   int64(cfg.Ingest.MaxUploadMB) << 20,
		concurrency: cfg.Ingest.ReprocessConcurrency,
		logger:      logging.NewComponentLogger(logger, "ingest_service"),
	}
	if s.concurrency <= 0 {
		s.concurrency = 1
	}
	s.dispatcher = NewDispatcher(cfg.Ingest.Workers, cfg.Ingest.QueueSize, s.runJob, logger, opts...)
	return s
}

func (s *Service) runJob(ctx context.Context, job Job) Result {
	return s.orch.Process(ctx, job.DocumentID, job.FilePath, job.MimeType, job.AllowTerminal)
}

// Dispatcher exposes the worker pool.
func (s *Service) Dispatcher() *Dispatcher { return s.dispatcher }

// Store returns the document store.
func (s *Service) Store() *documents.Store { return s.store }

// Upload copies srcPath into the upload directory under a random name,
// records a PENDING document and queues it. An empty mimeType is detected
// from the file.
func (s *Service) Upload(ctx context.Context, ownerID int64, srcPath, originalName, mimeType string) (*documents.Document, error) {
	doc, err := s.storeUpload(ctx, ownerID, srcPath, originalName, mimeType)
	if err != nil {
		return nil, err
	}
	s.BeginIngestion(ctx, doc.ID, doc.FilePath, doc.MimeType)
	return doc, nil
}

// IngestFile uploads srcPath and runs the pipeline on the caller's goroutine.
func (s *Service) IngestFile(ctx context.Context, ownerID int64, srcPath, originalName, mimeType string) (Result, error) {
	doc, err := s.storeUpload(ctx, ownerID, srcPath, originalName, mimeType)
	if err != nil {
		return Result{}, err
	}
	return s.dispatcher.Run(ctx, Job{DocumentID: doc.ID, FilePath: doc.FilePath, MimeType: doc.MimeType})
}

// storeUpload copies the source into the upload directory and records it.
func (s *Service) storeUpload(ctx context.Context, ownerID int64, srcPath, originalName, mimeType string) (*documents.Document, error) {
	info, err := os.Stat(srcPath)
	if err != nil {
		return nil, services.Wrap(services.ErrNotFound, "upload", "stat", "source file not readable", err)
	}
	if !info.Mode().IsRegular() || info.Size() == 0 {
		return nil, services.Wrap(services.ErrValidation, "upload", "validate", "source must be a non-empty regular file", nil)
	}
	if s.maxUpload > 0 && info.Size() > s.maxUpload {
		return nil, services.Wrap(services.ErrValidation, "upload", "validate",
			fmt.Sprintf("file is %d bytes, the limit is %d MB", info.Size(), s.maxUpload>>20), nil)
	}
	if strings.TrimSpace(originalName) == "" {
		originalName = filepath.Base(srcPath)
	}
	if strings.TrimSpace(mimeType) == "" {
		mimeType = DetectMimeType(srcPath)
	}
	stored := uuid.NewString() + strings.ToLower(filepath.Ext(originalName))
	target := filepath.Join(s.uploadDir, stored)
	if err := os.MkdirAll(s.uploadDir, 0o755); err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "upload", "mkdir", "upload directory not writable", err)
	}
	if err := fileutil.CopyFile(srcPath, target); err != nil {
		return nil, services.Wrap(services.ErrTransient, "upload", "copy", "failed to store upload", err)
	}
	doc, err := s.store.Create(ctx, documents.NewDocument{
		OwnerID:          ownerID,
		OriginalFilename: originalName,
		StoredFilename:   stored,
		FilePath:         target,
		MimeType:         mimeType,
		FileSize:         info.Size(),
	})
	if err != nil {
		_ = os.Remove(target)
		return nil, err
	}
	logging.WithContext(services.WithDocumentID(ctx, doc.ID), s.logger).Info("upload stored",
		logging.String(logging.FieldEventType, "upload_stored"),
		logging.String("original_filename", originalName),
		logging.String("stored_filename", stored),
		logging.Int64("bytes", info.Size()),
	)
	return doc, nil
}

// BeginIngestion hands a PENDING document to the worker pool and returns at
// once. Nothing is reported back; the outcome lands on the document record.
func (s *Service) BeginIngestion(ctx context.Context, documentID int64, filePath, mimeType string) {
	err := s.dispatcher.Submit(Job{DocumentID: documentID, FilePath: filePath, MimeType: mimeType})
	if err == nil {
		return
	}
	logger := logging.WithContext(services.WithDocumentID(ctx, documentID), s.logger)
	if errors.Is(err, ErrInFlight) {
		logger.Debug("document already in flight")
		return
	}
	logging.WarnWithContext(logger, "document not queued", "ingest_not_queued",
		logging.Error(err),
		logging.String(logging.FieldImpact, "document stays PENDING until the next recovery pass"),
		logging.String(logging.FieldErrorHint, "raise ingest.queue_size or restart the daemon"),
	)
}

// Reprocess runs the pipeline again for ids, including completed and failed
// documents, with bounded concurrency. Results are returned in input order.
func (s *Service) Reprocess(ctx context.Context, ids ...int64) []Result {
	results := make([]Result, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, id := range ids {
		g.Go(func() error {
			res, err := s.dispatcher.Run(gctx, Job{DocumentID: id, AllowTerminal: true})
			if err != nil {
				res = Result{DocumentID: id, Outcome: OutcomeSkipped, Err: err}
			}
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// ReprocessFailed reruns every FAILED document.
func (s *Service) ReprocessFailed(ctx context.Context) ([]Result, error) {
	failed, err := s.Select(ctx, Selection{Failed: true})
	if err != nil {
		return nil, err
	}
	ids := DocumentIDs(failed)
	s.logger.Info("reprocessing failed documents", logging.Int("count", len(ids)))
	return s.Reprocess(ctx, ids...), nil
}

// Selection names the documents of a maintenance run: either explicit ids or
// every FAILED document, capped at Limit when it is positive.
type Selection struct {
	IDs    []int64
	Failed bool
	Limit  int
}

// Select resolves sel against the store.
func (s *Service) Select(ctx context.Context, sel Selection) ([]*documents.Document, error) {
	return SelectDocuments(ctx, s.store, sel)
}

// SelectDocuments resolves sel without a running pipeline. Failed documents
// come back in id order, explicit ids in the order given; unknown and
// repeated ids are skipped.
func SelectDocuments(ctx context.Context, store *documents.Store, sel Selection) ([]*documents.Document, error) {
	var docs []*documents.Document
	if sel.Failed {
		failed, err := store.ListByStatus(ctx, documents.StatusFailed)
		if err != nil {
			return nil, err
		}
		docs = failed
	} else {
		seen := make(map[int64]bool, len(sel.IDs))
		for _, id := range sel.IDs {
			if seen[id] {
				continue
			}
			seen[id] = true
			doc, err := store.GetByID(ctx, id)
			if err != nil {
				return nil, err
			}
			if doc != nil {
				docs = append(docs, doc)
			}
		}
	}
	if sel.Limit > 0 && len(docs) > sel.Limit {
		docs = docs[:sel.Limit]
	}
	return docs, nil
}

// DocumentIDs returns the ids of docs in order.
func DocumentIDs(docs []*documents.Document) []int64 {
	ids := make([]int64, len(docs))
	for i, doc := range docs {
		ids[i] = doc.ID
	}
	return ids
}

// RecoverPending queues every PENDING or PROCESSING document, which covers
// jobs lost to a restart. It returns how many were queued.
func (s *Service) RecoverPending(ctx context.Context) (int, error) {
	docs, err := s.store.ListByStatus(ctx, documents.StatusPending, documents.StatusProcessing)
	if err != nil {
		return 0, err
	}
	queued := 0
	for _, doc := range docs {
		if err := s.dispatcher.Submit(Job{DocumentID: doc.ID}); err != nil {
			if errors.Is(err, ErrQueueFull) {
				break
			}
			continue
		}
		queued++
	}
	if len(docs) > 0 {
		s.logger.Info("recovered unfinished documents",
			logging.String(logging.FieldEventType, "ingest_recovered"),
			logging.Int("found", len(docs)),
			logging.Int("queued", queued),
		)
	}
	return queued, nil
}

// Delete removes a document together with its archived files. Documents a
// worker currently holds are refused.
func (s *Service) Delete(ctx context.Context, id int64) error {
	if s.dispatcher.InFlight(id) {
		return services.Wrap(services.ErrValidation, "delete", "check", "document is being processed", ErrInFlight)
	}
	doc, err := s.store.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if doc == nil {
		return services.Wrap(services.ErrNotFound, "delete", "lookup", "no such document", nil)
	}
	if err := s.orch.removeDocument(ctx, "delete", doc); err != nil {
		return err
	}
	s.logger.Info("document deleted",
		logging.String(logging.FieldEventType, "document_deleted"),
		logging.Int64(logging.FieldDocumentID, id),
	)
	return nil
}

// Wait blocks until every queued job has finished.
func (s *Service) Wait() { s.dispatcher.Wait() }

// Close drains the dispatcher.
func (s *Service) Close(ctx context.Context) error { return s.dispatcher.Close(ctx) }

// DetectMimeType guesses a MIME type from the extension, then from the
// leading bytes.
func DetectMimeType(path string) string {
	if t := mime.TypeByExtension(strings.ToLower(filepath.Ext(path))); t != "" {
		if i := strings.IndexByte(t, ';'); i >= 0 {
			t = t[:i]
		}
		return t
	}
	f, err := os.Open(path)
	if err != nil {
		return "application/octet-stream"
	}
	defer f.Close()
	buf := make([]byte, 512)
	n, _ := f.Read(buf)
	return http.DetectContentType(buf[:n])
}

func init() {
	// HEIC photos from phones are not in the default tables everywhere.
	_ = mime.AddExtensionType(".heic", "image/heic")
	_ = mime.AddExtensionType(".heif", "image/heif")
}

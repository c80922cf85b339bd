package archive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"docarchive/internal/config"
	"docarchive/internal/documents"
	"docarchive/internal/fileutil"
	"docarchive/internal/logging"
	"docarchive/internal/services"
	"docarchive/internal/textutil"
)

const (
	shortIDLength = 8
	ocrSuffix     = "_ocr"
	fallbackStem  = "document"
)

// Placement records where a document's files ended up.
type Placement struct {
	Dir          string
	OriginalPath string
	OCRPath      string
}

// Cabinet computes archive addresses and moves files into them.
type Cabinet struct {
	root         string
	unclassified string
	maxStem      int
	newID        func() string
	logger       *slog.Logger
}

// Option configures a Cabinet.
type Option func(*Cabinet)

// WithIDSource replaces the short id generator (tests).
func WithIDSource(fn func() string) Option {
	return func(c *Cabinet) {
		if fn != nil {
			c.newID = fn
		}
	}
}

// NewCabinet builds a cabinet rooted at the configured archive directory.
func NewCabinet(cfg *config.Config, logger *slog.Logger, opts ...Option) *Cabinet {
	label := strings.TrimSpace(cfg.Archive.UnclassifiedLabel)
	if label == "" {
		label = "unclassified"
	}
	c := &Cabinet{
		root:         cfg.Paths.ArchiveDir,
		unclassified: label,
		maxStem:      cfg.Archive.MaxStemLength,
		newID:        func() string { return uuid.NewString()[:shortIDLength] },
		logger:       logging.NewComponentLogger(logger, "archive"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Root returns the archive root directory.
func (c *Cabinet) Root() string { return c.root }

// UnclassifiedLabel is the bucket name used for documents without a category.
func (c *Cabinet) UnclassifiedLabel() string { return c.unclassified }

// IsUnclassified reports whether category falls into the unclassified bucket.
func IsUnclassified(category string) bool {
	category = strings.TrimSpace(category)
	return category == "" || category == documents.GeneralCategory
}

// CategoryDir returns the on-disk directory name for category.
func (c *Cabinet) CategoryDir(category string) string {
	if IsUnclassified(category) {
		return c.unclassified
	}
	return textutil.SanitizeToken(category, c.unclassified)
}

// Dir returns <root>/<year>/<category>/<kind>.
func (c *Cabinet) Dir(year int, category string, kind documents.Kind) string {
	kindDir := textutil.SanitizeToken(string(documents.ParseKind(string(kind))), string(documents.KindOther))
	return filepath.Join(c.root, strconv.Itoa(year), c.CategoryDir(category), kindDir)
}

// FileName builds <shortid>_<stem>[_ocr].<ext> from an original filename.
// OCR copies are always PDFs.
func (c *Cabinet) FileName(shortID, originalName string, ocr bool) string {
	base := filepath.Base(strings.TrimSpace(originalName))
	ext := strings.ToLower(filepath.Ext(base))
	stem := textutil.SanitizeStem(strings.TrimSuffix(base, filepath.Ext(base)), c.maxStem)
	if stem == "" {
		stem = fallbackStem
	}
	if ocr {
		return shortID + "_" + stem + ocrSuffix + ".pdf"
	}
	return shortID + "_" + stem + ext
}

// StorageYear picks the year a document is filed under: the year of its
// intrinsic date when known, otherwise the upload year.
func StorageYear(doc *documents.Document, now time.Time) int {
	if doc.DocumentDate != nil && !doc.DocumentDate.IsZero() {
		return doc.DocumentDate.Year()
	}
	if !doc.CreatedAt.IsZero() {
		return doc.CreatedAt.Year()
	}
	return now.Year()
}

// Place moves the document's original file, and ocrPath when set, into the
// cabinet. doc.StorageYear must already be assigned. On success doc.FilePath
// and doc.OCRPDFPath point at the new locations; the caller persists them.
func (c *Cabinet) Place(ctx context.Context, doc *documents.Document, ocrPath string) (Placement, error) {
	logger := logging.WithContext(ctx, c.logger)
	if doc == nil {
		return Placement{}, services.Wrap(services.ErrValidation, "placement", "validate", "document is nil", nil)
	}
	if doc.StorageYear == nil {
		return Placement{}, services.Wrap(services.ErrValidation, "placement", "validate", "storage year not assigned", nil)
	}
	if !fileutil.Exists(doc.FilePath) {
		return Placement{}, services.Wrap(services.ErrNotFound, "placement", "validate", "original file missing: "+doc.FilePath, nil)
	}

	dir := c.Dir(*doc.StorageYear, doc.Category, doc.Kind)
	shortID := c.newID()
	name := doc.OriginalFilename
	if strings.TrimSpace(name) == "" {
		name = doc.StoredFilename
	}
	placement := Placement{Dir: dir, OriginalPath: filepath.Join(dir, c.FileName(shortID, name, false))}

	if err := fileutil.MoveFile(doc.FilePath, placement.OriginalPath); err != nil {
		return Placement{}, services.Wrap(services.ErrTransient, "placement", "move original", "failed to move document into archive", err)
	}
	doc.FilePath = placement.OriginalPath

	if strings.TrimSpace(ocrPath) != "" && ocrPath != placement.OriginalPath {
		target := filepath.Join(dir, c.FileName(shortID, name, true))
		if err := fileutil.MoveFile(ocrPath, target); err != nil {
			// The original is already filed; a missing OCR copy only costs search.
			logging.WarnWithContext(logger, "searchable pdf could not be archived", "archive_ocr_move_failed",
				logging.String("source", ocrPath),
				logging.Error(err),
				logging.String(logging.FieldImpact, "document archived without its searchable pdf"),
				logging.String(logging.FieldErrorHint, "check archive_dir permissions and free space"),
			)
		} else {
			placement.OCRPath = target
			doc.OCRPDFPath = target
		}
	}

	logger.Info("document archived",
		logging.String("path", placement.OriginalPath),
		logging.String("ocr_path", placement.OCRPath),
		logging.Int("storage_year", *doc.StorageYear),
		logging.String("category", c.CategoryDir(doc.Category)),
		logging.String("kind", string(doc.Kind)),
	)
	return placement, nil
}

// DeleteFiles removes a document's original and OCR files. Missing files are
// not an error.
func DeleteFiles(doc *documents.Document) error {
	if doc == nil {
		return nil
	}
	var errs []error
	for _, path := range []string{doc.FilePath, doc.OCRPDFPath} {
		if err := fileutil.RemoveIfExists(path); err != nil {
			errs = append(errs, fmt.Errorf("remove %s: %w", path, err))
		}
	}
	return errors.Join(errs...)
}

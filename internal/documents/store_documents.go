package documents

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Create inserts a PENDING document for a freshly uploaded file.
func (s *Store) Create(ctx context.Context, input NewDocument) (*Document, error) {
	if input.OwnerID <= 0 {
		return nil, errors.New("create document: owner id required")
	}
	if strings.TrimSpace(input.FilePath) == "" {
		return nil, errors.New("create document: file path required")
	}
	timestamp := formatTime(s.now())
	res, err := s.execWithRetry(ctx,
		`INSERT INTO documents (
            owner_id, original_filename, stored_filename, file_path, mime_type, file_size,
            kind, status, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		input.OwnerID,
		input.OriginalFilename,
		input.StoredFilename,
		input.FilePath,
		nullableString(input.MimeType),
		input.FileSize,
		KindOther,
		StatusPending,
		timestamp,
		timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert document: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

// GetByID fetches a document by identifier. A missing row yields (nil, nil).
func (s *Store) GetByID(ctx context.Context, id int64) (*Document, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), `SELECT `+documentColumns+` FROM documents WHERE id = ?`, id)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}
	return doc, nil
}

// Update persists every mutable field of doc. The storage year is only
// written when the row does not have one yet.
func (s *Store) Update(ctx context.Context, doc *Document) error {
	if doc == nil {
		return errors.New("document is nil")
	}
	doc.UpdatedAt = s.now()
	err := s.execAffecting(ctx,
		`UPDATE documents
         SET stored_filename = ?, file_path = ?, ocr_pdf_path = ?, mime_type = ?, file_size = ?,
             content_hash = ?, kind = ?, category = ?, display_name = ?, document_date = ?,
             deadline = ?, storage_year = COALESCE(storage_year, ?), amount_cents = ?, currency = ?,
             confidence = ?, importance_score = ?, extracted_text = ?, extraction_method = ?,
             summary = ?, keywords_json = ?, extracted_data = ?, is_duplicate = ?,
             duplicate_of_id = ?, similarity_score = ?, status = ?, error_message = ?,
             progress_stage = ?, updated_at = ?
         WHERE id = ?`,
		doc.StoredFilename,
		doc.FilePath,
		nullableString(doc.OCRPDFPath),
		nullableString(doc.MimeType),
		doc.FileSize,
		nullableString(doc.ContentHash),
		ParseKind(string(doc.Kind)),
		nullableString(doc.Category),
		nullableString(doc.DisplayName),
		nullableDate(doc.DocumentDate),
		nullableDate(doc.Deadline),
		nullableInt(doc.StorageYear),
		nullableAmount(doc.Amount),
		nullableString(doc.Currency),
		doc.Confidence,
		doc.ImportanceScore,
		nullableString(doc.ExtractedText),
		nullableString(doc.ExtractionMethod),
		nullableString(doc.Summary),
		nullableKeywords(doc.Keywords),
		nullableString(doc.ExtractedData),
		boolToInt(doc.IsDuplicate),
		nullableInt64(doc.DuplicateOfID),
		nullableFloat(doc.SimilarityScore),
		doc.Status,
		nullableString(doc.ErrorMessage),
		nullableString(doc.ProgressStage),
		formatTime(doc.UpdatedAt),
		doc.ID,
	)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return fmt.Errorf("update document %d: %w", doc.ID, err)
		}
		return fmt.Errorf("update document: %w", err)
	}
	return nil
}

// AssignStorageYear sets the storage year if none is recorded and returns the
// year the row ends up with.
func (s *Store) AssignStorageYear(ctx context.Context, id int64, year int) (int, error) {
	if _, err := s.execWithRetry(ctx,
		`UPDATE documents SET storage_year = ?, updated_at = ? WHERE id = ? AND storage_year IS NULL`,
		year, formatTime(s.now()), id,
	); err != nil {
		return 0, fmt.Errorf("assign storage year: %w", err)
	}
	var stored sql.NullInt64
	err := s.db.QueryRowContext(ensureContext(ctx), `SELECT storage_year FROM documents WHERE id = ?`, id).Scan(&stored)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("assign storage year %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("read storage year: %w", err)
	}
	return int(stored.Int64), nil
}

// SetStatus records a lifecycle transition along with an optional error message.
func (s *Store) SetStatus(ctx context.Context, id int64, status Status, message string) error {
	if err := s.execAffecting(ctx,
		`UPDATE documents SET status = ?, error_message = ?, updated_at = ? WHERE id = ?`,
		status, nullableString(message), formatTime(s.now()), id,
	); err != nil {
		return fmt.Errorf("set status %s on %d: %w", status, id, err)
	}
	return nil
}

// ClaimForProcessing moves a document into PROCESSING unless it already
// reached a terminal state. It reports whether the caller owns the run.
func (s *Store) ClaimForProcessing(ctx context.Context, id int64, allowTerminal bool) (bool, error) {
	query := `UPDATE documents SET status = ?, error_message = NULL, updated_at = ? WHERE id = ? AND status IN (?, ?)`
	args := []any{StatusProcessing, formatTime(s.now()), id, StatusPending, StatusProcessing}
	if allowTerminal {
		query = `UPDATE documents SET status = ?, error_message = NULL, updated_at = ? WHERE id = ?`
		args = args[:3]
	}
	res, err := s.execWithRetry(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("claim document %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// Delete removes a document row. Chunks cascade and duplicate links pointing
// at it are cleared.
func (s *Store) Delete(ctx context.Context, id int64) error {
	if err := s.execAffecting(ctx, `DELETE FROM documents WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete document %d: %w", id, err)
	}
	return nil
}

// List returns documents matching filter ordered by document date (newest
// first, undated last) then upload time.
func (s *Store) List(ctx context.Context, filter ListFilter) ([]*Document, error) {
	where, args := filter.clauses()
	query := `SELECT ` + documentColumns + ` FROM documents`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY document_date DESC NULLS LAST, created_at DESC, id DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, filter.Limit, max(filter.Offset, 0))
	}
	return s.queryDocuments(ctx, query, args...)
}

// ListByStatus returns documents in any of the given statuses ordered by id.
func (s *Store) ListByStatus(ctx context.Context, statuses ...Status) ([]*Document, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	args := make([]any, len(statuses))
	for i, status := range statuses {
		args[i] = status
	}
	return s.queryDocuments(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE status IN (`+makePlaceholders(len(statuses))+`) ORDER BY id`,
		args...,
	)
}

// StatusCounts summarizes documents per status, optionally for one owner.
func (s *Store) StatusCounts(ctx context.Context, ownerID int64) ([]StatusCount, error) {
	query := `SELECT status, COUNT(*) FROM documents`
	var args []any
	if ownerID > 0 {
		query += ` WHERE owner_id = ?`
		args = append(args, ownerID)
	}
	query += ` GROUP BY status ORDER BY status`
	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("status counts: %w", err)
	}
	defer rows.Close()
	var counts []StatusCount
	for rows.Next() {
		var c StatusCount
		if err := rows.Scan(&c.Status, &c.Count); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		counts = append(counts, c)
	}
	return counts, rows.Err()
}

// CountByOwner returns how many documents an owner has.
func (s *Store) CountByOwner(ctx context.Context, ownerID int64) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ensureContext(ctx), `SELECT COUNT(*) FROM documents WHERE owner_id = ?`, ownerID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count documents: %w", err)
	}
	return count, nil
}

func (s *Store) queryDocuments(ctx context.Context, query string, args ...any) ([]*Document, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	defer rows.Close()
	var docs []*Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return docs, nil
}

// unclassifiedClause matches the documents the archive files under the
// unclassified bucket.
const unclassifiedClause = `(category IS NULL OR TRIM(category) = '' OR category = '` + GeneralCategory + `')`

func (f ListFilter) clauses() ([]string, []any) {
	var where []string
	var args []any
	if f.OwnerID > 0 {
		where = append(where, "owner_id = ?")
		args = append(args, f.OwnerID)
	}
	if len(f.Statuses) > 0 {
		where = append(where, "status IN ("+makePlaceholders(len(f.Statuses))+")")
		for _, status := range f.Statuses {
			args = append(args, status)
		}
	}
	if f.Year > 0 {
		where = append(where, "storage_year = ?")
		args = append(args, f.Year)
	}
	switch {
	case f.Unclassified:
		where = append(where, unclassifiedClause)
	case strings.TrimSpace(f.Category) != "":
		where = append(where, "category = ?")
		args = append(args, f.Category)
	}
	if f.Kind != "" {
		where = append(where, "kind = ?")
		args = append(args, ParseKind(string(f.Kind)))
	}
	return where, args
}

// dateWindow returns the inclusive ISO date bounds around date.
func dateWindow(date time.Time, days int) (string, string) {
	return date.AddDate(0, 0, -days).Format(dateLayout), date.AddDate(0, 0, days).Format(dateLayout)
}

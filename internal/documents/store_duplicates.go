package documents

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// FindByHash returns the oldest document of the owner with the same content
// hash, or nil when none exists. Only documents created before beforeID are
// candidates, so a document never matches one that arrived after it.
// beforeID <= 0 removes that bound.
func (s *Store) FindByHash(ctx context.Context, ownerID int64, hash string, beforeID int64) (*Document, error) {
	if hash == "" {
		return nil, nil
	}
	query := `SELECT ` + documentColumns + ` FROM documents WHERE owner_id = ? AND content_hash = ?`
	args := []any{ownerID, hash}
	query, args = olderThan(query, args, "id", beforeID)
	row := s.db.QueryRowContext(ensureContext(ctx), query+` ORDER BY id LIMIT 1`, args...)
	return scanOptional(row, "find by hash")
}

// MetadataQuery describes a same-amount, same-kind lookup. Only documents
// with an id below BeforeID are considered; zero means no bound.
type MetadataQuery struct {
	OwnerID    int64
	BeforeID   int64
	Amount     Amount
	Kind       Kind
	Date       *time.Time
	WindowDays int
}

// FindMetadataMatch returns the oldest earlier document of the owner with
// the same amount and kind. When q.Date is set, candidates must be dated
// within the window or carry no date at all.
func (s *Store) FindMetadataMatch(ctx context.Context, q MetadataQuery) (*Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents
         WHERE owner_id = ? AND amount_cents = ? AND kind = ?`
	args := []any{q.OwnerID, int64(q.Amount), ParseKind(string(q.Kind))}
	query, args = olderThan(query, args, "id", q.BeforeID)
	if q.Date != nil {
		from, to := dateWindow(*q.Date, q.WindowDays)
		query += ` AND ((document_date >= ? AND document_date <= ?) OR document_date IS NULL)`
		args = append(args, from, to)
	}
	query += ` ORDER BY id LIMIT 1`
	return scanOptional(s.db.QueryRowContext(ensureContext(ctx), query, args...), "find metadata match")
}

// olderThan restricts query to rows whose column is below beforeID.
func olderThan(query string, args []any, column string, beforeID int64) (string, []any) {
	if beforeID <= 0 {
		return query, args
	}
	return query + ` AND ` + column + ` < ?`, append(args, beforeID)
}

func scanOptional(row *sql.Row, op string) (*Document, error) {
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return doc, nil
}

package documents

import (
	"context"
	"fmt"
)

// Years lists the storage years an owner has documents in, newest first.
func (s *Store) Years(ctx context.Context, ownerID int64) ([]int, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT DISTINCT storage_year FROM documents
         WHERE owner_id = ? AND storage_year IS NOT NULL
         ORDER BY storage_year DESC`,
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("query years: %w", err)
	}
	defer rows.Close()
	var years []int
	for rows.Next() {
		var year int
		if err := rows.Scan(&year); err != nil {
			return nil, fmt.Errorf("scan year: %w", err)
		}
		years = append(years, year)
	}
	return years, rows.Err()
}

// KindCounts returns document counts per kind within a storage year.
func (s *Store) KindCounts(ctx context.Context, ownerID int64, year int) (map[Kind]int, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT kind, COUNT(*) FROM documents WHERE owner_id = ? AND storage_year = ? GROUP BY kind`,
		ownerID, year,
	)
	if err != nil {
		return nil, fmt.Errorf("query kind counts: %w", err)
	}
	defer rows.Close()
	counts := make(map[Kind]int)
	for rows.Next() {
		var (
			kind  string
			count int
		)
		if err := rows.Scan(&kind, &count); err != nil {
			return nil, fmt.Errorf("scan kind count: %w", err)
		}
		counts[ParseKind(kind)] += count
	}
	return counts, rows.Err()
}

// CategoryKindCounts returns (category, kind, count) rows for a storage year.
// Categories are returned raw; callers fold empty and General into their
// unclassified bucket.
func (s *Store) CategoryKindCounts(ctx context.Context, ownerID int64, year int) ([]YearKindCount, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT COALESCE(category, ''), kind, COUNT(*) FROM documents
         WHERE owner_id = ? AND storage_year = ?
         GROUP BY category, kind
         ORDER BY category, kind`,
		ownerID, year,
	)
	if err != nil {
		return nil, fmt.Errorf("query category counts: %w", err)
	}
	defer rows.Close()
	var out []YearKindCount
	for rows.Next() {
		row := YearKindCount{Year: year}
		var kind string
		if err := rows.Scan(&row.Category, &kind, &row.Count); err != nil {
			return nil, fmt.Errorf("scan category count: %w", err)
		}
		row.Kind = ParseKind(kind)
		out = append(out, row)
	}
	return out, rows.Err()
}

// Categories lists the owner's distinct named categories in alphabetical
// order. Empty and General categories are left out.
func (s *Store) Categories(ctx context.Context, ownerID int64) ([]string, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT DISTINCT category FROM documents
         WHERE owner_id = ? AND NOT `+unclassifiedClause+`
         ORDER BY category`,
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("query categories: %w", err)
	}
	defer rows.Close()
	var categories []string
	for rows.Next() {
		var category string
		if err := rows.Scan(&category); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		categories = append(categories, category)
	}
	return categories, rows.Err()
}

package archive

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"docarchive/internal/documents"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

// Reader is the store surface the browse helpers need.
type Reader interface {
	Years(ctx context.Context, ownerID int64) ([]int, error)
	KindCounts(ctx context.Context, ownerID int64, year int) (map[documents.Kind]int, error)
	CategoryKindCounts(ctx context.Context, ownerID int64, year int) ([]documents.YearKindCount, error)
	Categories(ctx context.Context, ownerID int64) ([]string, error)
	List(ctx context.Context, filter documents.ListFilter) ([]*documents.Document, error)
}

// Browser answers read-side questions about an owner's archive.
type Browser struct {
	store        Reader
	unclassified string
}

// NewBrowser builds a browser that reports the unclassified bucket under the
// cabinet's label.
func NewBrowser(store Reader, cabinet *Cabinet) *Browser {
	label := "unclassified"
	if cabinet != nil {
		label = cabinet.UnclassifiedLabel()
	}
	return &Browser{store: store, unclassified: label}
}

// KindCount is a document count for one kind.
type KindCount struct {
	Kind  documents.Kind
	Count int
}

// CategoryNode groups the kinds filed under one category.
type CategoryNode struct {
	Name  string
	Total int
	Kinds []KindCount
}

// YearNode is one year of the archive hierarchy.
type YearNode struct {
	Year       int
	Total      int
	Categories []CategoryNode
}

// YearTotal is the document count of one storage year.
type YearTotal struct {
	Year  int
	Count int
}

// Overview summarises an owner's whole archive.
type Overview struct {
	Total  int
	ByYear []YearTotal
	ByKind map[documents.Kind]int
}

// Query selects one page of archived documents. Zero values mean "any";
// Category matches the unclassified label, General and empty alike.
type Query struct {
	OwnerID  int64
	Year     int
	Category string
	Kind     documents.Kind
	Page     int
	PageSize int
}

// Page is one slice of a listing.
type Page struct {
	Documents []*documents.Document
	Page      int
	PageSize  int
	HasMore   bool
}

// Years lists the storage years in use, newest first.
func (b *Browser) Years(ctx context.Context, ownerID int64) ([]int, error) {
	return b.store.Years(ctx, ownerID)
}

// CategoriesForYear lists the category buckets used in year. Named categories
// come first in alphabetical order, the unclassified bucket last.
func (b *Browser) CategoriesForYear(ctx context.Context, ownerID int64, year int) ([]string, error) {
	rows, err := b.store.CategoryKindCounts(ctx, ownerID, year)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var names []string
	hasUnclassified := false
	for _, row := range rows {
		if IsUnclassified(row.Category) {
			hasUnclassified = true
			continue
		}
		if !seen[row.Category] {
			seen[row.Category] = true
			names = append(names, row.Category)
		}
	}
	sort.Strings(names)
	if hasUnclassified {
		names = append(names, b.unclassified)
	}
	return names, nil
}

// Categories lists every category bucket of the owner across all years.
func (b *Browser) Categories(ctx context.Context, ownerID int64) ([]string, error) {
	names, err := b.store.Categories(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	rest, err := b.store.List(ctx, documents.ListFilter{OwnerID: ownerID, Unclassified: true, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(rest) > 0 {
		names = append(names, b.unclassified)
	}
	return names, nil
}

// KindCounts returns the number of documents per kind filed under year.
func (b *Browser) KindCounts(ctx context.Context, ownerID int64, year int) (map[documents.Kind]int, error) {
	return b.store.KindCounts(ctx, ownerID, year)
}

// Tree returns the full year/category/kind hierarchy with counts.
func (b *Browser) Tree(ctx context.Context, ownerID int64) ([]YearNode, error) {
	years, err := b.store.Years(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	tree := make([]YearNode, 0, len(years))
	for _, year := range years {
		rows, err := b.store.CategoryKindCounts(ctx, ownerID, year)
		if err != nil {
			return nil, fmt.Errorf("year %d: %w", year, err)
		}
		tree = append(tree, b.yearNode(year, rows))
	}
	return tree, nil
}

func (b *Browser) yearNode(year int, rows []documents.YearKindCount) YearNode {
	node := YearNode{Year: year}
	byName := make(map[string]*CategoryNode)
	var order []string
	for _, row := range rows {
		name := row.Category
		if IsUnclassified(name) {
			name = b.unclassified
		}
		cat, ok := byName[name]
		if !ok {
			cat = &CategoryNode{Name: name}
			byName[name] = cat
			order = append(order, name)
		}
		cat.Total += row.Count
		cat.Kinds = mergeKind(cat.Kinds, row.Kind, row.Count)
		node.Total += row.Count
	}
	sort.Slice(order, func(i, j int) bool {
		a, z := order[i], order[j]
		if (a == b.unclassified) != (z == b.unclassified) {
			return z == b.unclassified
		}
		return a < z
	})
	for _, name := range order {
		cat := byName[name]
		sort.Slice(cat.Kinds, func(i, j int) bool { return cat.Kinds[i].Kind < cat.Kinds[j].Kind })
		node.Categories = append(node.Categories, *cat)
	}
	return node
}

func mergeKind(kinds []KindCount, kind documents.Kind, count int) []KindCount {
	for i := range kinds {
		if kinds[i].Kind == kind {
			kinds[i].Count += count
			return kinds
		}
	}
	return append(kinds, KindCount{Kind: kind, Count: count})
}

// List returns one page of archived documents matching q.
func (b *Browser) List(ctx context.Context, q Query) (Page, error) {
	size := q.PageSize
	switch {
	case size <= 0:
		size = defaultPageSize
	case size > maxPageSize:
		size = maxPageSize
	}
	page := q.Page
	if page < 1 {
		page = 1
	}
	filter := documents.ListFilter{
		OwnerID: q.OwnerID,
		Year:    q.Year,
		Kind:    q.Kind,
		Limit:   size + 1,
		Offset:  (page - 1) * size,
	}
	if category := strings.TrimSpace(q.Category); category != "" {
		if category == b.unclassified || IsUnclassified(category) {
			filter.Unclassified = true
		} else {
			filter.Category = category
		}
	}
	docs, err := b.store.List(ctx, filter)
	if err != nil {
		return Page{}, err
	}
	result := Page{Page: page, PageSize: size}
	if len(docs) > size {
		result.HasMore = true
		docs = docs[:size]
	}
	result.Documents = docs
	return result, nil
}

// Overview totals the archive per year and per kind.
func (b *Browser) Overview(ctx context.Context, ownerID int64) (Overview, error) {
	years, err := b.store.Years(ctx, ownerID)
	if err != nil {
		return Overview{}, err
	}
	out := Overview{ByKind: make(map[documents.Kind]int)}
	for _, year := range years {
		counts, err := b.store.KindCounts(ctx, ownerID, year)
		if err != nil {
			return Overview{}, fmt.Errorf("year %d: %w", year, err)
		}
		total := 0
		for kind, n := range counts {
			out.ByKind[kind] += n
			total += n
		}
		out.ByYear = append(out.ByYear, YearTotal{Year: year, Count: total})
		out.Total += total
	}
	return out, nil
}

package archive

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"docarchive/internal/documents"
)

const (
	documentsSheet = "Documents"
	summarySheet   = "Summary"
	dateLayout     = "2006-01-02"
)

var exportHeaders = []string{
	"Year", "Category", "Type", "Date", "Name", "Amount", "Currency",
	"Deadline", "Importance", "Duplicate of", "File", "Searchable PDF",
}

// ExportXLSX writes a workbook of the owner's completed documents to w. A
// zero year exports every year. It returns the number of document rows.
func (b *Browser) ExportXLSX(ctx context.Context, w io.Writer, ownerID int64, year int) (int, error) {
	docs, err := b.store.List(ctx, documents.ListFilter{
		OwnerID:  ownerID,
		Year:     year,
		Statuses: []documents.Status{documents.StatusCompleted},
	})
	if err != nil {
		return 0, fmt.Errorf("query documents: %w", err)
	}
	tree, err := b.Tree(ctx, ownerID)
	if err != nil {
		return 0, fmt.Errorf("query hierarchy: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName("Sheet1", documentsSheet); err != nil {
		return 0, fmt.Errorf("rename sheet: %w", err)
	}
	if _, err := f.NewSheet(summarySheet); err != nil {
		return 0, fmt.Errorf("create summary sheet: %w", err)
	}

	for i, h := range exportHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(documentsSheet, cell, h)
	}
	for i, doc := range docs {
		row := i + 2
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(documentsSheet, cell, v)
		}
		if doc.StorageYear != nil {
			write(1, *doc.StorageYear)
		}
		category := doc.Category
		if IsUnclassified(category) {
			category = b.unclassified
		}
		write(2, category)
		write(3, string(doc.Kind))
		write(4, formatDate(doc.DocumentDate))
		write(5, displayName(doc))
		if doc.Amount != nil {
			write(6, doc.Amount.Float())
		}
		write(7, doc.Currency)
		write(8, formatDate(doc.Deadline))
		write(9, doc.ImportanceScore)
		if doc.DuplicateOfID != nil {
			write(10, *doc.DuplicateOfID)
		}
		write(11, doc.FilePath)
		write(12, doc.OCRPDFPath)
	}
	_ = f.SetColWidth(documentsSheet, "B", "C", 16)
	_ = f.SetColWidth(documentsSheet, "E", "E", 40)
	_ = f.SetColWidth(documentsSheet, "K", "L", 60)

	summaryRow := 1
	for col, h := range []string{"Year", "Category", "Type", "Count"} {
		cell, _ := excelize.CoordinatesToCellName(col+1, summaryRow)
		_ = f.SetCellValue(summarySheet, cell, h)
	}
	for _, y := range tree {
		if year > 0 && y.Year != year {
			continue
		}
		for _, cat := range y.Categories {
			for _, k := range cat.Kinds {
				summaryRow++
				_ = f.SetSheetRow(summarySheet, fmt.Sprintf("A%d", summaryRow), &[]any{y.Year, cat.Name, string(k.Kind), k.Count})
			}
		}
	}

	if err := f.Write(w); err != nil {
		return 0, fmt.Errorf("xlsx write: %w", err)
	}
	return len(docs), nil
}

func formatDate(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.Format(dateLayout)
}

func displayName(doc *documents.Document) string {
	if name := strings.TrimSpace(doc.DisplayName); name != "" {
		return name
	}
	return filepath.Base(doc.OriginalFilename)
}

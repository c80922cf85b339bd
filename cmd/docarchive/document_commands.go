package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"docarchive/internal/archive"
	"docarchive/internal/config"
	"docarchive/internal/documents"
	"docarchive/internal/ingest"
)

const dateLayout = "2006-01-02"

func newShowCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show one document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			return ctx.withStore(func(_ *config.Config, store *documents.Store) error {
				doc, err := store.GetByID(cmd.Context(), ids[0])
				if err != nil {
					return err
				}
				if doc == nil {
					return fmt.Errorf("document %d not found", ids[0])
				}
				if asJSON {
					return writeJSON(cmd, newDocumentView(doc))
				}
				fmt.Fprint(cmd.OutOrStdout(), renderDocument(doc))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the document as JSON")
	return cmd
}

func newListCommand(ctx *commandContext) *cobra.Command {
	var statuses []string
	var year int
	var category string
	var kind string
	var limit int
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List documents",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := documents.ListFilter{
				Year:     year,
				Category: strings.TrimSpace(category),
				Limit:    limit,
			}
			for _, value := range statuses {
				status, ok := documents.ParseStatus(value)
				if !ok {
					return fmt.Errorf("unknown status %q", value)
				}
				filter.Statuses = append(filter.Statuses, status)
			}
			if strings.TrimSpace(kind) != "" {
				filter.Kind = documents.ParseKind(kind)
			}
			return ctx.withStore(func(_ *config.Config, store *documents.Store) error {
				filter.OwnerID = ctx.ownerID()
				docs, err := store.List(cmd.Context(), filter)
				if err != nil {
					return err
				}
				if asJSON {
					views := make([]documentView, 0, len(docs))
					for _, doc := range docs {
						views = append(views, newDocumentView(doc))
					}
					return writeJSON(cmd, views)
				}
				if len(docs) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No documents")
					return nil
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable(
					[]string{"ID", "Status", "Year", "Category", "Type", "Name", "Amount"},
					buildListRows(docs),
					[]columnAlignment{alignRight, alignLeft, alignRight, alignLeft, alignLeft, alignLeft, alignRight},
				))
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVarP(&statuses, "status", "s", nil, "Filter by status (repeatable)")
	cmd.Flags().IntVar(&year, "year", 0, "Filter by storage year")
	cmd.Flags().StringVar(&category, "category", "", "Filter by category")
	cmd.Flags().StringVar(&kind, "kind", "", "Filter by document type")
	cmd.Flags().IntVar(&limit, "limit", 100, "Maximum number of documents")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print documents as JSON")
	return cmd
}

func newDeleteCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>...",
		Short: "Delete documents and their archived files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			return ctx.withPipeline(cmd, func(stack *ingest.Stack) error {
				var errs []error
				for _, id := range ids {
					if err := stack.Service.Delete(cmd.Context(), id); err != nil {
						errs = append(errs, fmt.Errorf("document %d: %w", id, err))
						continue
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Deleted document %d\n", id)
				}
				return errors.Join(errs...)
			})
		},
	}
}

func buildListRows(docs []*documents.Document) [][]string {
	rows := make([][]string, 0, len(docs))
	for _, doc := range docs {
		year := ""
		if doc.StorageYear != nil {
			year = strconv.Itoa(*doc.StorageYear)
		}
		rows = append(rows, []string{
			strconv.FormatInt(doc.ID, 10),
			string(doc.Status),
			year,
			categoryLabel(doc.Category),
			string(doc.Kind),
			documentName(doc),
			amountLabel(doc),
		})
	}
	return rows
}

func renderDocument(doc *documents.Document) string {
	var b strings.Builder
	field := func(label, value string) {
		if strings.TrimSpace(value) == "" {
			return
		}
		fmt.Fprintf(&b, "%-16s %s\n", label+":", value)
	}
	field("ID", strconv.FormatInt(doc.ID, 10))
	field("Name", documentName(doc))
	field("Original file", doc.OriginalFilename)
	field("Status", string(doc.Status))
	field("Stage", doc.ProgressStage)
	field("Error", doc.ErrorMessage)
	field("Type", string(doc.Kind))
	field("Category", categoryLabel(doc.Category))
	field("Date", formatDate(doc.DocumentDate))
	field("Deadline", formatDate(doc.Deadline))
	if doc.StorageYear != nil {
		field("Storage year", strconv.Itoa(*doc.StorageYear))
	}
	field("Amount", amountLabel(doc))
	field("Importance", fmt.Sprintf("%.0f", doc.ImportanceScore))
	field("Confidence", fmt.Sprintf("%.2f", doc.Confidence))
	field("Extraction", doc.ExtractionMethod)
	if doc.IsDuplicate && doc.DuplicateOfID != nil {
		score := 0.0
		if doc.SimilarityScore != nil {
			score = *doc.SimilarityScore
		}
		field("Duplicate of", fmt.Sprintf("#%d (%.0f%%)", *doc.DuplicateOfID, score*100))
	}
	field("Keywords", strings.Join(doc.Keywords, ", "))
	field("File", doc.FilePath)
	field("Searchable PDF", doc.OCRPDFPath)
	field("Summary", doc.Summary)
	field("Created", doc.CreatedAt.Local().Format(time.DateTime))
	return b.String()
}

func documentName(doc *documents.Document) string {
	if strings.TrimSpace(doc.DisplayName) != "" {
		return doc.DisplayName
	}
	return doc.OriginalFilename
}

func categoryLabel(category string) string {
	if archive.IsUnclassified(category) {
		return "-"
	}
	return category
}

func amountLabel(doc *documents.Document) string {
	if doc.Amount == nil {
		return ""
	}
	return strings.TrimSpace(doc.Amount.String() + " " + doc.Currency)
}

func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(dateLayout)
}

type documentView struct {
	ID              int64    `json:"id"`
	OwnerID         int64    `json:"owner_id"`
	Status          string   `json:"status"`
	Stage           string   `json:"stage,omitempty"`
	Error           string   `json:"error,omitempty"`
	OriginalName    string   `json:"original_filename"`
	DisplayName     string   `json:"display_name,omitempty"`
	Kind            string   `json:"kind,omitempty"`
	Category        string   `json:"category,omitempty"`
	DocumentDate    string   `json:"document_date,omitempty"`
	Deadline        string   `json:"deadline,omitempty"`
	StorageYear     *int     `json:"storage_year,omitempty"`
	Amount          string   `json:"amount,omitempty"`
	Currency        string   `json:"currency,omitempty"`
	ImportanceScore float64  `json:"importance_score"`
	Confidence      float64  `json:"confidence"`
	Keywords        []string `json:"keywords,omitempty"`
	IsDuplicate     bool     `json:"is_duplicate"`
	DuplicateOfID   *int64   `json:"duplicate_of_id,omitempty"`
	SimilarityScore *float64 `json:"similarity_score,omitempty"`
	FilePath        string   `json:"file_path"`
	OCRPDFPath      string   `json:"ocr_pdf_path,omitempty"`
}

func newDocumentView(doc *documents.Document) documentView {
	view := documentView{
		ID:              doc.ID,
		OwnerID:         doc.OwnerID,
		Status:          string(doc.Status),
		Stage:           doc.ProgressStage,
		Error:           doc.ErrorMessage,
		OriginalName:    doc.OriginalFilename,
		DisplayName:     doc.DisplayName,
		Kind:            string(doc.Kind),
		Category:        doc.Category,
		DocumentDate:    formatDate(doc.DocumentDate),
		Deadline:        formatDate(doc.Deadline),
		StorageYear:     doc.StorageYear,
		Currency:        doc.Currency,
		ImportanceScore: doc.ImportanceScore,
		Confidence:      doc.Confidence,
		Keywords:        doc.Keywords,
		IsDuplicate:     doc.IsDuplicate,
		DuplicateOfID:   doc.DuplicateOfID,
		SimilarityScore: doc.SimilarityScore,
		FilePath:        doc.FilePath,
		OCRPDFPath:      doc.OCRPDFPath,
	}
	if doc.Amount != nil {
		view.Amount = doc.Amount.String()
	}
	return view
}

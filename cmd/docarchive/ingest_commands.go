package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"docarchive/internal/config"
	"docarchive/internal/documents"
	"docarchive/internal/duplicates"
	"docarchive/internal/ingest"
	"docarchive/internal/services"
)

func newIngestCommand(ctx *commandContext) *cobra.Command {
	var name string
	var mimeType string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "ingest <file>...",
		Short: "Archive files and wait for the pipeline to finish",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if name != "" && len(args) > 1 {
				return errors.New("--name can only be used with a single file")
			}
			return ctx.withPipeline(cmd, func(stack *ingest.Stack) error {
				results := make([]ingest.Result, 0, len(args))
				names := make([]string, 0, len(args))
				var failed int
				for _, arg := range args {
					original := name
					if original == "" {
						original = filepath.Base(arg)
					}
					res, err := stack.Service.IngestFile(cmd.Context(), ctx.ownerID(), arg, original, mimeType)
					if err != nil {
						failed++
						fmt.Fprintf(cmd.ErrOrStderr(), "%s: %s\n", arg, services.FailureMessage(err))
						continue
					}
					if res.Outcome == ingest.OutcomeFailed {
						failed++
					}
					results = append(results, res)
					names = append(names, original)
				}
				if asJSON {
					return writeJSON(cmd, resultViews(results))
				}
				if len(results) > 0 {
					fmt.Fprint(cmd.OutOrStdout(), renderResults(results, names))
				}
				if failed > 0 {
					return fmt.Errorf("%d of %d files failed", failed, len(args))
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Original filename to record (single file only)")
	cmd.Flags().StringVar(&mimeType, "mime", "", "MIME type override")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print results as JSON")
	return cmd
}

func newReprocessCommand(ctx *commandContext) *cobra.Command {
	var failedOnly bool
	var dryRun bool
	var limit int
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "reprocess [id...]",
		Short: "Run the pipeline again for documents",
		RunE: func(cmd *cobra.Command, args []string) error {
			if failedOnly == (len(args) > 0) {
				return errors.New("pass document ids or --failed")
			}
			if limit < 0 {
				return errors.New("--limit must not be negative")
			}
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			sel := ingest.Selection{IDs: ids, Failed: failedOnly, Limit: limit}
			if dryRun {
				return ctx.withStore(func(_ *config.Config, store *documents.Store) error {
					docs, err := ingest.SelectDocuments(cmd.Context(), store, sel)
					if err != nil {
						return err
					}
					reportUnknownIDs(cmd, ids, docs)
					return renderReprocessPlan(cmd, docs, asJSON)
				})
			}
			return ctx.withPipeline(cmd, func(stack *ingest.Stack) error {
				docs, err := stack.Service.Select(cmd.Context(), sel)
				if err != nil {
					return err
				}
				reportUnknownIDs(cmd, ids, docs)
				results := stack.Service.Reprocess(cmd.Context(), ingest.DocumentIDs(docs)...)
				if asJSON {
					return writeJSON(cmd, resultViews(results))
				}
				if len(results) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Nothing to reprocess")
					return nil
				}
				fmt.Fprint(cmd.OutOrStdout(), renderResults(results, nil))
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&failedOnly, "failed", false, "Reprocess every failed document")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "List the documents that would be reprocessed without running the pipeline")
	cmd.Flags().IntVar(&limit, "limit", 0, "Reprocess at most this many documents (0 means no limit)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print results as JSON")
	return cmd
}

func reportUnknownIDs(cmd *cobra.Command, ids []int64, docs []*documents.Document) {
	found := make(map[int64]bool, len(docs))
	for _, doc := range docs {
		found[doc.ID] = true
	}
	for _, id := range ids {
		if !found[id] {
			fmt.Fprintf(cmd.ErrOrStderr(), "document %d not found\n", id)
		}
	}
}

func renderReprocessPlan(cmd *cobra.Command, docs []*documents.Document, asJSON bool) error {
	if asJSON {
		views := make([]documentView, len(docs))
		for i, doc := range docs {
			views[i] = newDocumentView(doc)
		}
		return writeJSON(cmd, views)
	}
	if len(docs) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "Nothing to reprocess")
		return nil
	}
	rows := make([][]string, len(docs))
	for i, doc := range docs {
		rows[i] = []string{strconv.FormatInt(doc.ID, 10), string(doc.Status), documentName(doc)}
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Would reprocess %d document(s):\n", len(docs))
	fmt.Fprint(cmd.OutOrStdout(), renderTable(
		[]string{"ID", "Status", "Name"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignLeft},
	))
	return nil
}

func parseIDs(args []string) ([]int64, error) {
	ids := make([]int64, 0, len(args))
	for _, arg := range args {
		id, err := strconv.ParseInt(strings.TrimSpace(arg), 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid document id %q", arg)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

type resultView struct {
	DocumentID  int64   `json:"document_id"`
	Outcome     string  `json:"outcome"`
	Step        string  `json:"step,omitempty"`
	DuplicateOf int64   `json:"duplicate_of,omitempty"`
	Similarity  float64 `json:"similarity,omitempty"`
	Strategy    string  `json:"strategy,omitempty"`
	Error       string  `json:"error,omitempty"`
}

func resultViews(results []ingest.Result) []resultView {
	views := make([]resultView, 0, len(results))
	for _, res := range results {
		view := resultView{
			DocumentID: res.DocumentID,
			Outcome:    string(res.Outcome),
			Step:       res.Step,
		}
		if res.Duplicate.Found {
			view.DuplicateOf = res.Duplicate.Candidate.OriginalID
			view.Similarity = res.Duplicate.Candidate.Similarity
			view.Strategy = string(res.Duplicate.Candidate.Strategy)
		}
		if res.Err != nil {
			view.Error = services.FailureMessage(res.Err)
		}
		views = append(views, view)
	}
	return views
}

func renderResults(results []ingest.Result, names []string) string {
	headers := []string{"ID", "Outcome", "Duplicate", "Detail"}
	aligns := []columnAlignment{alignRight, alignLeft, alignLeft, alignLeft}
	if names != nil {
		headers = append([]string{"File"}, headers...)
		aligns = append([]columnAlignment{alignLeft}, aligns...)
	}
	rows := make([][]string, 0, len(results))
	for i, res := range results {
		row := []string{
			strconv.FormatInt(res.DocumentID, 10),
			string(res.Outcome),
			duplicateLabel(res.Duplicate),
			resultDetail(res),
		}
		if names != nil {
			row = append([]string{names[i]}, row...)
		}
		rows = append(rows, row)
	}
	return renderTable(headers, rows, aligns)
}

func duplicateLabel(d duplicates.Decision) string {
	if !d.Found {
		return ""
	}
	return fmt.Sprintf("#%d %.0f%% (%s, %s)", d.Candidate.OriginalID, d.Candidate.Similarity*100, d.Candidate.Strategy, d.Action)
}

func resultDetail(res ingest.Result) string {
	if res.Err != nil {
		return services.FailureMessage(res.Err)
	}
	return res.Step
}

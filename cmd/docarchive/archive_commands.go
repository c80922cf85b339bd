package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"docarchive/internal/archive"
	"docarchive/internal/config"
	"docarchive/internal/documents"
	"docarchive/internal/logging"
)

func newArchiveCommand(ctx *commandContext) *cobra.Command {
	archiveCmd := &cobra.Command{
		Use:   "archive",
		Short: "Browse and export the archive",
	}

	archiveCmd.AddCommand(newArchiveSummaryCommand(ctx))
	archiveCmd.AddCommand(newArchiveTreeCommand(ctx))
	archiveCmd.AddCommand(newArchiveExportCommand(ctx))

	return archiveCmd
}

func (c *commandContext) withBrowser(fn func(*config.Config, *archive.Browser) error) error {
	return c.withStore(func(cfg *config.Config, store *documents.Store) error {
		cabinet := archive.NewCabinet(cfg, logging.NewNop())
		return fn(cfg, archive.NewBrowser(store, cabinet))
	})
}

func newArchiveSummaryCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Count documents per year and per type",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withBrowser(func(_ *config.Config, browser *archive.Browser) error {
				overview, err := browser.Overview(cmd.Context(), ctx.ownerID())
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, overview)
				}
				out := cmd.OutOrStdout()
				if overview.Total == 0 {
					fmt.Fprintln(out, "Archive is empty")
					return nil
				}
				yearRows := make([][]string, 0, len(overview.ByYear))
				for _, y := range overview.ByYear {
					yearRows = append(yearRows, []string{strconv.Itoa(y.Year), strconv.Itoa(y.Count)})
				}
				fmt.Fprint(out, tableSpec{
					headers: []string{"Year", "Documents"},
					aligns:  []columnAlignment{alignRight, alignRight},
					rows:    yearRows,
					footer:  []string{"Total", strconv.Itoa(overview.Total)},
				}.render())

				kindRows := make([][]string, 0, len(overview.ByKind))
				for _, kind := range documents.Kinds {
					if n := overview.ByKind[kind]; n > 0 {
						kindRows = append(kindRows, []string{string(kind), strconv.Itoa(n)})
					}
				}
				fmt.Fprint(out, renderTable([]string{"Type", "Documents"}, kindRows, []columnAlignment{alignLeft, alignRight}))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the summary as JSON")
	return cmd
}

func newArchiveTreeCommand(ctx *commandContext) *cobra.Command {
	var year int

	cmd := &cobra.Command{
		Use:   "tree",
		Short: "Show the year / category / type hierarchy",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withBrowser(func(_ *config.Config, browser *archive.Browser) error {
				nodes, err := browser.Tree(cmd.Context(), ctx.ownerID())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				printed := false
				for _, node := range nodes {
					if year != 0 && node.Year != year {
						continue
					}
					printed = true
					fmt.Fprintf(out, "%d (%d)\n", node.Year, node.Total)
					for ci, cat := range node.Categories {
						branch, indent := treeBranch(ci, len(node.Categories))
						fmt.Fprintf(out, "%s %s (%d)\n", branch, cat.Name, cat.Total)
						for ki, kc := range cat.Kinds {
							leaf, _ := treeBranch(ki, len(cat.Kinds))
							fmt.Fprintf(out, "%s%s %s (%d)\n", indent, leaf, kc.Kind, kc.Count)
						}
					}
				}
				if !printed {
					fmt.Fprintln(out, "Archive is empty")
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&year, "year", 0, "Only show one storage year")
	return cmd
}

func treeBranch(i, n int) (string, string) {
	if i == n-1 {
		return "└──", "    "
	}
	return "├──", "│   "
}

func newArchiveExportCommand(ctx *commandContext) *cobra.Command {
	var outPath string
	var year int

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export completed documents to an Excel workbook",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withBrowser(func(_ *config.Config, browser *archive.Browser) error {
				target := strings.TrimSpace(outPath)
				if target == "" {
					target = defaultExportName(year)
				}
				expanded, err := config.ExpandPath(target)
				if err != nil {
					return fmt.Errorf("resolve output path: %w", err)
				}
				if err := os.MkdirAll(filepath.Dir(expanded), 0o755); err != nil {
					return fmt.Errorf("create output directory: %w", err)
				}
				file, err := os.Create(expanded)
				if err != nil {
					return fmt.Errorf("create workbook: %w", err)
				}
				rows, exportErr := browser.ExportXLSX(cmd.Context(), file, ctx.ownerID(), year)
				closeErr := file.Close()
				if exportErr != nil {
					_ = os.Remove(expanded)
					return exportErr
				}
				if closeErr != nil {
					return fmt.Errorf("close workbook: %w", closeErr)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Exported %d documents to %s\n", rows, expanded)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "Workbook path (default docarchive-export[-YEAR].xlsx)")
	cmd.Flags().IntVar(&year, "year", 0, "Only export one storage year")
	return cmd
}

func defaultExportName(year int) string {
	if year == 0 {
		return "docarchive-export.xlsx"
	}
	return "docarchive-export-" + strconv.Itoa(year) + ".xlsx"
}


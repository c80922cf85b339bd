package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"docarchive/internal/config"
	"docarchive/internal/daemon"
	"docarchive/internal/documents"
	"docarchive/internal/preflight"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Check directories, external tools and services",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			lines := renderSectionHeader("System", colorize)
			lines = append(lines, renderStatusLine("Config", statusInfo, ctx.configPath, colorize))
			lines = append(lines, daemonStatusLine(cfg, colorize))
			lines = append(lines, preflightLine(preflight.CheckDatabase(cmd.Context(), cfg.DatabasePath()), false, colorize))
			lines = append(lines, "")

			lines = append(lines, renderSectionHeader("Dependencies", colorize)...)
			for _, status := range preflight.CheckSystemDeps(cfg) {
				lines = append(lines, dependencyLine(status, colorize))
			}
			lines = append(lines, "")

			lines = append(lines, renderSectionHeader("Directories and services", colorize)...)
			for _, result := range preflight.RunAll(cmd.Context(), cfg) {
				lines = append(lines, preflightLine(result, optionalCheck(result.Name), colorize))
			}
			if strings.TrimSpace(cfg.GetLLM().APIKey) == "" {
				lines = append(lines, renderStatusLine("Analysis LLM", statusWarn, "No API key; documents get default metadata", colorize))
			}
			if !cfg.Embedding.Enabled {
				lines = append(lines, renderStatusLine("Embedding service", statusInfo, "Disabled", colorize))
			}
			fmt.Fprintln(out, strings.Join(lines, "\n"))

			return ctx.withStore(func(_ *config.Config, store *documents.Store) error {
				counts, err := store.StatusCounts(cmd.Context(), ctx.ownerID())
				if err != nil {
					return err
				}
				fmt.Fprintln(out)
				if len(counts) == 0 {
					fmt.Fprintln(out, "No documents yet")
					return nil
				}
				rows := make([][]string, 0, len(counts))
				total := 0
				for _, c := range counts {
					rows = append(rows, []string{string(c.Status), strconv.Itoa(c.Count)})
					total += c.Count
				}
				fmt.Fprint(out, tableSpec{
					headers: []string{"Status", "Documents"},
					aligns:  []columnAlignment{alignLeft, alignRight},
					rows:    rows,
					footer:  []string{"Total", strconv.Itoa(total)},
				}.render())
				return nil
			})
		},
	}
}

func daemonStatusLine(cfg *config.Config, colorize bool) string {
	held, err := daemon.LockHeld(cfg)
	switch {
	case err != nil:
		return renderStatusLine("Daemon", statusWarn, err.Error(), colorize)
	case held:
		return renderStatusLine("Daemon", statusOK, "Running", colorize)
	default:
		return renderStatusLine("Daemon", statusInfo, "Not running", colorize)
	}
}

// optionalCheck reports whether a failing check leaves the pipeline usable.
func optionalCheck(name string) bool {
	switch name {
	case "Analysis LLM", "Embedding service", "pgvector", "Inbox directory":
		return true
	default:
		return false
	}
}

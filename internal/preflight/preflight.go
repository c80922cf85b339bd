package preflight

import (
	"context"
	"strings"

	"docarchive/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes all applicable preflight checks for the given config.
// Checks are only run when the corresponding feature is enabled.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Upload directory", cfg.Paths.UploadDir),
		CheckDirectoryAccess("Archive directory", cfg.Paths.ArchiveDir),
		CheckDirectoryAccess("Staging directory", cfg.Paths.StagingDir),
	}
	if strings.TrimSpace(cfg.Paths.InboxDir) != "" {
		results = append(results, CheckDirectoryAccess("Inbox directory", cfg.Paths.InboxDir))
	}

	// The analysis model is optional: without a key documents get default metadata.
	if cfg.GetLLM().APIKey != "" {
		results = append(results, CheckLLM(ctx, "Analysis LLM", cfg.GetLLM()))
	}

	if cfg.Embedding.Enabled {
		results = append(results, CheckEmbedding(ctx, cfg.Embedding.URL))
		if cfg.Embedding.Backend == "pgvector" {
			results = append(results, CheckPGVector(ctx, cfg.Embedding))
		}
	}

	return results
}

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"docarchive/internal/config"
	"docarchive/internal/documents"
	"docarchive/internal/testsupport"
)

type cliTestEnv struct {
	cfg        *config.Config
	store      *documents.Store
	configPath string
	invoice    *documents.Document
	failed     *documents.Document
}

func setupCLITestEnv(t *testing.T, opts ...testsupport.ConfigOption) *cliTestEnv {
	t.Helper()
	t.Setenv("DOCARCHIVE_LLM_API_KEY", "")

	cfg := testsupport.NewConfig(t, opts...)
	cfg.Embedding.Enabled = false
	configPath := filepath.Join(testsupport.BaseDir(cfg), "docarchive.toml")
	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}

	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	invoice := testsupport.NewDocument(t, store, cfg, 1, "swisscom.pdf", []byte("%PDF-1.4 swisscom"))
	year := 2025
	amount := documents.Amount(7990)
	invoice.Status = documents.StatusCompleted
	invoice.Kind = documents.KindInvoice
	invoice.Category = "Telecom"
	invoice.DisplayName = "Swisscom Mai"
	invoice.StorageYear = &year
	invoice.Amount = &amount
	invoice.Currency = "CHF"
	if err := store.Update(ctx, invoice); err != nil {
		t.Fatalf("Update: %v", err)
	}

	failed := testsupport.NewDocument(t, store, cfg, 1, "blurry.jpg", []byte("jpeg"))
	if err := store.SetStatus(ctx, failed.ID, documents.StatusFailed, "analyze: model unavailable"); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}

	return &cliTestEnv{cfg: cfg, store: store, configPath: configPath, invoice: invoice, failed: failed}
}

func runCLI(t *testing.T, env *cliTestEnv, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append([]string{"--config", env.configPath}, args...))
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, haystack, needle string) {
	t.Helper()
	if !strings.Contains(haystack, needle) {
		t.Fatalf("expected output to contain %q, got:\n%s", needle, haystack)
	}
}

func TestListCommand(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, env, "list")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	requireContains(t, out, "Swisscom Mai")
	requireContains(t, out, "79.90 CHF")
	requireContains(t, out, "blurry.jpg")

	out, _, err = runCLI(t, env, "list", "--status", "failed")
	if err != nil {
		t.Fatalf("list --status: %v", err)
	}
	if strings.Contains(out, "Swisscom Mai") {
		t.Fatalf("completed document leaked into failed listing:\n%s", out)
	}
	requireContains(t, out, "blurry.jpg")

	if _, _, err := runCLI(t, env, "list", "--status", "archived"); err == nil {
		t.Fatal("expected unknown status to be rejected")
	}
}

func TestListCommandJSON(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, env, "list", "--json", "--year", "2025")
	if err != nil {
		t.Fatalf("list --json: %v", err)
	}
	var views []documentView
	if err := json.Unmarshal([]byte(out), &views); err != nil {
		t.Fatalf("decode: %v\n%s", err, out)
	}
	if len(views) != 1 || views[0].ID != env.invoice.ID || views[0].Amount != "79.90" {
		t.Fatalf("unexpected views %+v", views)
	}
}

func TestShowCommand(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, env, "show", strconv.FormatInt(env.failed.ID, 10))
	if err != nil {
		t.Fatalf("show: %v", err)
	}
	requireContains(t, out, "failed")
	requireContains(t, out, "analyze: model unavailable")

	if _, _, err := runCLI(t, env, "show", "9999"); err == nil {
		t.Fatal("expected missing document error")
	}
	if _, _, err := runCLI(t, env, "show", "abc"); err == nil {
		t.Fatal("expected invalid id error")
	}
}

func TestArchiveSummaryAndTree(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, env, "archive", "summary")
	if err != nil {
		t.Fatalf("archive summary: %v", err)
	}
	requireContains(t, out, "2025")
	requireContains(t, out, "invoice")

	out, _, err = runCLI(t, env, "archive", "tree")
	if err != nil {
		t.Fatalf("archive tree: %v", err)
	}
	requireContains(t, out, "2025 (1)")
	requireContains(t, out, "Telecom")

	out, _, err = runCLI(t, env, "archive", "tree", "--year", "1999")
	if err != nil {
		t.Fatalf("archive tree --year: %v", err)
	}
	requireContains(t, out, "Archive is empty")
}

func TestArchiveExportWritesWorkbook(t *testing.T) {
	env := setupCLITestEnv(t)
	target := filepath.Join(t.TempDir(), "out", "export.xlsx")

	out, _, err := runCLI(t, env, "archive", "export", "--out", target)
	if err != nil {
		t.Fatalf("archive export: %v", err)
	}
	requireContains(t, out, "Exported 1 documents")
	info, err := os.Stat(target)
	if err != nil {
		t.Fatalf("stat workbook: %v", err)
	}
	if info.Size() == 0 {
		t.Fatal("workbook is empty")
	}
}

func TestDeleteCommandRemovesDocument(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, env, "delete", strconv.FormatInt(env.failed.ID, 10))
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	requireContains(t, out, "Deleted document")
	got, err := env.store.GetByID(context.Background(), env.failed.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got != nil {
		t.Fatal("expected document to be deleted")
	}
	if _, err := os.Stat(env.failed.FilePath); !os.IsNotExist(err) {
		t.Fatalf("expected upload file removed, stat err %v", err)
	}
}

func TestReprocessRequiresTarget(t *testing.T) {
	env := setupCLITestEnv(t)

	_, _, err := runCLI(t, env, "reprocess")
	if err == nil || !strings.Contains(err.Error(), "--failed") {
		t.Fatalf("expected usage error, got %v", err)
	}
	if _, _, err := runCLI(t, env, "reprocess", "--failed", "3"); err == nil {
		t.Fatal("expected ids and --failed to be exclusive")
	}
}

func TestReprocessDryRunLeavesDocumentsAlone(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, env, "reprocess", "--failed", "--dry-run")
	if err != nil {
		t.Fatalf("reprocess --dry-run: %v", err)
	}
	requireContains(t, out, "Would reprocess 1 document(s)")
	requireContains(t, out, "blurry.jpg")
	if strings.Contains(out, "Swisscom Mai") {
		t.Fatalf("completed document listed as failed:\n%s", out)
	}

	got, err := env.store.GetByID(context.Background(), env.failed.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != documents.StatusFailed {
		t.Fatalf("dry run changed status to %s", got.Status)
	}
}

func TestReprocessLimit(t *testing.T) {
	env := setupCLITestEnv(t)
	invoiceID := strconv.FormatInt(env.invoice.ID, 10)
	failedID := strconv.FormatInt(env.failed.ID, 10)

	out, stderr, err := runCLI(t, env, "reprocess", "--dry-run", "--limit", "1", invoiceID, failedID, "999")
	if err != nil {
		t.Fatalf("reprocess --limit: %v", err)
	}
	requireContains(t, out, "Would reprocess 1 document(s)")
	requireContains(t, out, "Swisscom Mai")
	if strings.Contains(out, "blurry.jpg") {
		t.Fatalf("limit ignored:\n%s", out)
	}
	requireContains(t, stderr, "document 999 not found")

	if _, _, err := runCLI(t, env, "reprocess", "--failed", "--limit", "-1"); err == nil {
		t.Fatal("expected negative limit to be rejected")
	}
}

func TestConfigShowRedactsSecrets(t *testing.T) {
	env := setupCLITestEnv(t, testsupport.WithLLMKey("secret-key"))

	out, _, err := runCLI(t, env, "config", "show")
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	if strings.Contains(out, "secret-key") {
		t.Fatalf("api key leaked:\n%s", out)
	}
	requireContains(t, out, redacted)
	requireContains(t, out, env.cfg.Paths.ArchiveDir)
}

func TestConfigInit(t *testing.T) {
	target := filepath.Join(t.TempDir(), "conf", "docarchive.toml")
	env := &cliTestEnv{configPath: filepath.Join(t.TempDir(), "missing.toml")}

	out, _, err := runCLI(t, env, "config", "init", "--path", target)
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, target)
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("sample config missing: %v", err)
	}
	if _, _, err := runCLI(t, env, "config", "init", "--path", target); err == nil {
		t.Fatal("expected existing file to be protected")
	}
	if _, _, err := runCLI(t, env, "config", "init", "--path", target, "--overwrite"); err != nil {
		t.Fatalf("config init --overwrite: %v", err)
	}
}

func TestStatusCommand(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, env, "status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "Upload directory")
	requireContains(t, out, "Document database")
	requireContains(t, out, "Not running")
	requireContains(t, out, "completed")
}

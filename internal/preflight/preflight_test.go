package preflight

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"docarchive/internal/config"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckEmbedding_Reachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusMethodNotAllowed)
	}))
	defer srv.Close()

	result := CheckEmbedding(context.Background(), srv.URL)
	if !result.Passed {
		t.Fatalf("expected pass, got: %s", result.Detail)
	}
}

func TestCheckEmbedding_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	result := CheckEmbedding(context.Background(), srv.URL)
	if result.Passed {
		t.Fatal("expected failure for 502")
	}
}

func TestCheckEmbedding_MissingURL(t *testing.T) {
	result := CheckEmbedding(context.Background(), " ")
	if result.Passed {
		t.Fatal("expected failure for missing URL")
	}
}

func TestCheckLLM_Healthy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer good-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"{\"ok\":true}"}}]}`))
	}))
	defer srv.Close()

	result := CheckLLM(context.Background(), "Analysis LLM", config.LLMConfig{APIKey: "good-key", BaseURL: srv.URL, Model: "test"})
	if !result.Passed {
		t.Fatalf("expected pass, got: %s", result.Detail)
	}

	result = CheckLLM(context.Background(), "Analysis LLM", config.LLMConfig{APIKey: "bad-key", BaseURL: srv.URL, Model: "test"})
	if result.Passed {
		t.Fatal("expected failure for bad key")
	}
}

func TestCheckLLM_MissingKey(t *testing.T) {
	result := CheckLLM(context.Background(), "Analysis LLM", config.LLMConfig{})
	if result.Passed || result.Detail != "API key missing" {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestCheckDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "docarchive.db")
	result := CheckDatabase(context.Background(), path)
	if !result.Passed {
		t.Fatalf("expected pass, got: %s", result.Detail)
	}
}

func TestRunAll_NilConfig(t *testing.T) {
	results := RunAll(context.Background(), nil)
	if results != nil {
		t.Fatal("expected nil results for nil config")
	}
}

func minimalConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Paths.UploadDir = t.TempDir()
	cfg.Paths.ArchiveDir = t.TempDir()
	cfg.Paths.StagingDir = t.TempDir()
	cfg.Paths.InboxDir = ""
	cfg.LLM.APIKey = ""
	cfg.Embedding.Enabled = false
	return &cfg
}

func TestRunAll_MinimalConfig(t *testing.T) {
	results := RunAll(context.Background(), minimalConfig(t))
	// Should have upload + archive + staging directory checks
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	for _, r := range results {
		if !r.Passed {
			t.Errorf("check %q failed: %s", r.Name, r.Detail)
		}
	}
}

func TestRunAll_IncludesEmbeddingWhenEnabled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	cfg := minimalConfig(t)
	cfg.Paths.InboxDir = t.TempDir()
	cfg.Embedding.Enabled = true
	cfg.Embedding.Backend = "sqlite"
	cfg.Embedding.URL = srv.URL

	results := RunAll(context.Background(), cfg)
	if len(results) != 5 {
		t.Fatalf("expected 5 results, got %d", len(results))
	}
	found := false
	for _, r := range results {
		if r.Name == "Embedding service" {
			found = true
			if !r.Passed {
				t.Errorf("embedding check failed: %s", r.Detail)
			}
		}
	}
	if !found {
		t.Fatal("expected embedding check in results")
	}
}

package deps

import (
	"os"
	"path/filepath"
	"testing"

	"docarchive/internal/config"
)

func TestCheckBinaries(t *testing.T) {
	binDir := t.TempDir()
	present := filepath.Join(binDir, "present")
	script := []byte("#!/bin/sh\nexit 0\n")
	if err := os.WriteFile(present, script, 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	reqs := []Requirement{
		{Name: "Present", Command: present},
		{Name: "Missing", Command: "clearly-not-present-binary"},
		{Name: "Blank", Command: "  "},
	}

	results := CheckBinaries(reqs)
	if len(results) != len(reqs) {
		t.Fatalf("expected %d results, got %d", len(reqs), len(results))
	}

	if !results[0].Available || results[0].Path != present {
		t.Fatalf("expected first requirement to be available, got %#v", results[0])
	}
	if results[0].Detail != "" {
		t.Fatalf("unexpected detail for available dependency: %s", results[0].Detail)
	}

	if results[1].Available {
		t.Fatalf("expected missing binary to be unavailable")
	}
	if results[1].Detail == "" {
		t.Fatalf("expected detail message for missing binary")
	}
	if results[1].Command != "clearly-not-present-binary" {
		t.Fatalf("unexpected command recorded: %s", results[1].Command)
	}

	if results[2].Available || results[2].Detail != "command not configured" {
		t.Fatalf("unexpected blank command status %#v", results[2])
	}
}

func TestRequirementsFollowConfig(t *testing.T) {
	cfg := config.Default()
	cfg.OCR.TesseractBinary = "/opt/tess/bin/tesseract"
	cfg.ArchivalPDF.Enabled = true

	reqs := Requirements(&cfg)
	if len(reqs) != 3 {
		t.Fatalf("expected 3 requirements, got %d", len(reqs))
	}
	if reqs[0].Command != "/opt/tess/bin/tesseract" {
		t.Fatalf("tesseract command %q", reqs[0].Command)
	}
	if reqs[1].Command != "pdftotext" {
		t.Fatalf("pdftotext command %q", reqs[1].Command)
	}
	if !reqs[2].Optional {
		t.Fatal("ocrmypdf should be optional")
	}

	cfg.ArchivalPDF.Enabled = false
	if got := Requirements(&cfg); len(got) != 2 {
		t.Fatalf("expected ocrmypdf to be dropped when archival pdf is disabled, got %d", len(got))
	}
}

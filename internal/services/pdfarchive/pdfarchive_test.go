package pdfarchive_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"docarchive/internal/config"
	"docarchive/internal/fileutil"
	"docarchive/internal/services"
	"docarchive/internal/services/pdfarchive"
	"docarchive/internal/testsupport"
)

type exitError struct{ code int }

func (e exitError) Error() string { return "exit status" }
func (e exitError) ExitCode() int { return e.code }

// copyExecutor mimics ocrmypdf by copying the input (second to last arg) to
// the output (last arg), or failing with err.
type copyExecutor struct {
	err   error
	calls [][]string
}

func (c *copyExecutor) Run(_ context.Context, _ string, args []string) error {
	c.calls = append(c.calls, append([]string(nil), args...))
	if c.err != nil {
		return c.err
	}
	return fileutil.CopyFile(args[len(args)-2], args[len(args)-1])
}

func newConverter(exec pdfarchive.Executor, quality string) *pdfarchive.Converter {
	return pdfarchive.New(config.ArchivalPDF{Enabled: true, Quality: quality, RotateThreshold: 14}, nil, pdfarchive.WithExecutor(exec))
}

func samplePDF(t *testing.T, dir string) string {
	t.Helper()
	img := testsupport.SaveImage(t, dir, "page.png", testsupport.TextPage(300, 400, 0))
	out := filepath.Join(dir, "sample.pdf")
	if err := api.ImportImagesFile([]string{img}, out, pdfcpu.DefaultImportConfig(), model.NewDefaultConfiguration()); err != nil {
		t.Fatalf("ImportImagesFile: %v", err)
	}
	return out
}

func TestPresetFor(t *testing.T) {
	tests := map[string]pdfarchive.Preset{
		"low":    {Optimize: 1, JPEGQuality: 60, PNGQuality: 60},
		"Medium": {Optimize: 2, JPEGQuality: 75, PNGQuality: 75},
		"high":   {Optimize: 3, JPEGQuality: 90, PNGQuality: 90},
		"ultra":  {Optimize: 3, JPEGQuality: 90, PNGQuality: 90},
	}
	for name, want := range tests {
		if got := pdfarchive.PresetFor(name); got != want {
			t.Fatalf("PresetFor(%q) = %+v, want %+v", name, got, want)
		}
	}
}

func TestArgs(t *testing.T) {
	args := newConverter(&copyExecutor{}, "medium").Args("in.pdf", "out.pdf", []string{"fra", "deu", "eng"})
	joined := strings.Join(args, " ")
	for _, want := range []string{
		"--language fra+deu+eng",
		"--output-type pdfa",
		"--optimize 2",
		"--jpeg-quality 75",
		"--png-quality 75",
		"--deskew",
		"--clean",
		"--rotate-pages-threshold 14",
		"in.pdf out.pdf",
	} {
		if !strings.Contains(joined, want) {
			t.Fatalf("args %q missing %q", joined, want)
		}
	}
}

func TestEnsureSearchablePDF(t *testing.T) {
	dir := t.TempDir()
	in := samplePDF(t, dir)
	out := filepath.Join(dir, "archive", "out.pdf")

	exec := &copyExecutor{}
	res := newConverter(exec, "high").EnsureSearchable(context.Background(), in, out, []string{"fra"})
	if !res.Success || res.Err != nil || res.OutputPath != out {
		t.Fatalf("unexpected result %+v", res)
	}
	if len(exec.calls) != 1 {
		t.Fatalf("expected one ocrmypdf call, got %d", len(exec.calls))
	}
}

func TestEnsureSearchableImageImportsFirst(t *testing.T) {
	dir := t.TempDir()
	in := testsupport.SaveImage(t, dir, "scan.jpg", testsupport.TextPage(300, 400, 0))
	out := filepath.Join(dir, "out.pdf")

	exec := &copyExecutor{}
	res := newConverter(exec, "low").EnsureSearchable(context.Background(), in, out, nil)
	if !res.Success {
		t.Fatalf("unexpected result %+v", res)
	}
	source := exec.calls[0][len(exec.calls[0])-2]
	if filepath.Ext(source) != ".pdf" || source == in {
		t.Fatalf("expected a temporary pdf source, got %q", source)
	}
	if fileutil.Exists(source) {
		t.Fatalf("temporary pdf %q was not removed", source)
	}
	if n, err := api.PageCountFile(out); err != nil || n != 1 {
		t.Fatalf("PageCountFile = %d, %v", n, err)
	}
}

func TestEnsureSearchableConvertsBMP(t *testing.T) {
	dir := t.TempDir()
	in := testsupport.SaveImage(t, dir, "scan.bmp", testsupport.TextPage(200, 260, 0))
	out := filepath.Join(dir, "out.pdf")
	res := newConverter(&copyExecutor{}, "low").EnsureSearchable(context.Background(), in, out, nil)
	if !res.Success {
		t.Fatalf("unexpected result %+v", res)
	}
	matches, _ := filepath.Glob(filepath.Join(dir, "import-*"))
	if len(matches) != 0 {
		t.Fatalf("temporary files left behind: %v", matches)
	}
}

func TestEnsureSearchablePriorOCRCopies(t *testing.T) {
	dir := t.TempDir()
	in := samplePDF(t, dir)
	out := filepath.Join(dir, "out.pdf")

	res := newConverter(&copyExecutor{err: exitError{code: 6}}, "high").EnsureSearchable(context.Background(), in, out, nil)
	if !res.Success || !res.PriorOCR {
		t.Fatalf("unexpected result %+v", res)
	}
	if !fileutil.Exists(out) {
		t.Fatal("expected output copy")
	}
}

func TestEnsureSearchableFailureCopiesInput(t *testing.T) {
	dir := t.TempDir()
	in := samplePDF(t, dir)
	out := filepath.Join(dir, "out.pdf")

	res := newConverter(&copyExecutor{err: exitError{code: 2}}, "high").EnsureSearchable(context.Background(), in, out, nil)
	if res.Success {
		t.Fatal("expected failure")
	}
	if !errors.Is(res.Err, services.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", res.Err)
	}
	if res.OutputPath != out || !fileutil.Exists(out) {
		t.Fatalf("expected input copied to %s, got %+v", out, res)
	}
}

func TestEnsureSearchableUnsupported(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(in, []byte("hello"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	exec := &copyExecutor{}
	res := newConverter(exec, "high").EnsureSearchable(context.Background(), in, filepath.Join(dir, "out.pdf"), nil)
	if res.Success || res.OutputPath != in || !errors.Is(res.Err, services.ErrValidation) {
		t.Fatalf("unexpected result %+v", res)
	}
	if len(exec.calls) != 0 {
		t.Fatal("ocrmypdf should not run for unsupported files")
	}
}

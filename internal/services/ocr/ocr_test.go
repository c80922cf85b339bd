package ocr_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"docarchive/internal/config"
	"docarchive/internal/services"
	"docarchive/internal/services/ocr"
)

type stubExecutor struct {
	out    string
	err    error
	binary string
	args   []string
}

func (s *stubExecutor) Output(_ context.Context, binary string, args []string) ([]byte, error) {
	s.binary = binary
	s.args = append([]string(nil), args...)
	return []byte(s.out), s.err
}

const sampleTSV = "level\tpage_num\tblock_num\tpar_num\tline_num\tword_num\tleft\ttop\twidth\theight\tconf\ttext\n" +
	"1\t1\t0\t0\t0\t0\t0\t0\t800\t600\t-1\t\n" +
	"5\t1\t1\t1\t1\t1\t10\t10\t50\t20\t96\tFacture\n" +
	"5\t1\t1\t1\t1\t2\t70\t10\t50\t20\t90\tSwisscom\n" +
	"5\t1\t1\t1\t2\t1\t10\t40\t50\t20\t84\tTotal\n" +
	"5\t1\t2\t1\t1\t1\t10\t90\t50\t20\t70\tMerci\n"

func newExtractor(exec ocr.Executor) *ocr.Extractor {
	return ocr.New(config.OCR{Languages: []string{"fra", "deu", "eng"}, TimeoutSeconds: 5}, nil, ocr.WithExecutor(exec))
}

func TestParseTSV(t *testing.T) {
	text, conf := ocr.ParseTSV(sampleTSV)
	if want := "Facture Swisscom\nTotal\n\nMerci"; text != want {
		t.Fatalf("text = %q, want %q", text, want)
	}
	if want := (96.0 + 90 + 84 + 70) / 4 / 100; conf < want-1e-9 || conf > want+1e-9 {
		t.Fatalf("confidence = %v, want %v", conf, want)
	}
}

func TestParseTSVEmpty(t *testing.T) {
	text, conf := ocr.ParseTSV("level\tpage_num\n")
	if text != "" || conf != 0 {
		t.Fatalf("expected empty result, got %q %v", text, conf)
	}
}

func TestExtractImageUsesTesseract(t *testing.T) {
	exec := &stubExecutor{out: sampleTSV}
	got, err := newExtractor(exec).Extract(context.Background(), "/tmp/scan.jpg", "image/jpeg")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if got.Method != ocr.MethodTesseract || !strings.HasPrefix(got.Text, "Facture") {
		t.Fatalf("unexpected extraction %+v", got)
	}
	if exec.binary != "tesseract" {
		t.Fatalf("binary = %q", exec.binary)
	}
	if want := []string{"/tmp/scan.jpg", "stdout", "-l", "fra+deu+eng", "tsv"}; strings.Join(exec.args, " ") != strings.Join(want, " ") {
		t.Fatalf("args = %v", exec.args)
	}
}

func TestExtractPDFUsesPDFToText(t *testing.T) {
	exec := &stubExecutor{out: "Page one\n\fPage two\n\f"}
	got, err := newExtractor(exec).Extract(context.Background(), "/tmp/contract.PDF", "")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if got.Method != ocr.MethodPDFToText || got.Confidence != 1 || got.Pages != 2 {
		t.Fatalf("unexpected extraction %+v", got)
	}
	if !strings.Contains(got.Text, "Page two") {
		t.Fatalf("text = %q", got.Text)
	}
}

func TestExtractScannedPDFHasZeroConfidence(t *testing.T) {
	got, err := newExtractor(&stubExecutor{out: "\f"}).Extract(context.Background(), "/tmp/scan.pdf", "application/pdf")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if got.Text != "" || got.Confidence != 0 {
		t.Fatalf("unexpected extraction %+v", got)
	}
}

func TestExtractUnsupported(t *testing.T) {
	exec := &stubExecutor{}
	got, err := newExtractor(exec).Extract(context.Background(), "/tmp/notes.docx", "application/vnd.openxmlformats-officedocument.wordprocessingml.document")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if got.Method != ocr.MethodUnsupported || exec.binary != "" {
		t.Fatalf("unexpected extraction %+v (binary %q)", got, exec.binary)
	}
}

func TestExtractWrapsToolFailure(t *testing.T) {
	exec := &stubExecutor{err: errors.New("exit status 1")}
	_, err := newExtractor(exec).Extract(context.Background(), "/tmp/scan.png", "")
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
}

func TestExtractRunsRealBinary(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell stub requires a POSIX shell")
	}
	dir := t.TempDir()
	stub := filepath.Join(dir, "pdftotext")
	script := "#!/bin/sh\nprintf 'Rechnung 2024\\f'\n"
	if err := os.WriteFile(stub, []byte(script), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	extractor := ocr.New(config.OCR{PDFToTextBinary: stub, TimeoutSeconds: 5}, nil)
	got, err := extractor.Extract(context.Background(), filepath.Join(dir, "in.pdf"), "application/pdf")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if got.Text != "Rechnung 2024" {
		t.Fatalf("text = %q", got.Text)
	}
}

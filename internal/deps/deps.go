package deps

import (
	"fmt"
	"os/exec"
	"strings"

	"docarchive/internal/config"
)

// Requirement defines an external dependency docarchive relies on.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status reports the availability of a dependency.
type Status struct {
	Name        string
	Command     string
	Path        string
	Description string
	Optional    bool
	Available   bool
	Detail      string
}

// Requirements lists the external tools the configured pipeline runs.
// Every tool has a fallback, so only text extraction is reported as required.
func Requirements(cfg *config.Config) []Requirement {
	reqs := []Requirement{
		{
			Name:        "Tesseract",
			Command:     orDefault(cfg.OCR.TesseractBinary, "tesseract"),
			Description: "Text recognition for photographed documents",
		},
		{
			Name:        "pdftotext",
			Command:     orDefault(cfg.OCR.PDFToTextBinary, "pdftotext"),
			Description: "Text layer extraction for PDFs",
		},
	}
	if cfg.ArchivalPDF.Enabled {
		reqs = append(reqs, Requirement{
			Name:        "OCRmyPDF",
			Command:     orDefault(cfg.ArchivalPDF.OCRmyPDFBinary, "ocrmypdf"),
			Description: "Searchable PDF/A copies; originals are archived without one when missing",
			Optional:    true,
		})
	}
	return reqs
}

// CheckBinaries evaluates the provided requirements and reports availability.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		cmd := strings.TrimSpace(req.Command)
		status := Status{
			Name:        req.Name,
			Command:     cmd,
			Description: strings.TrimSpace(req.Description),
			Optional:    req.Optional,
		}
		if cmd == "" {
			status.Available = false
			status.Detail = "command not configured"
			results = append(results, status)
			continue
		}
		path, err := exec.LookPath(cmd)
		if err != nil {
			status.Available = false
			status.Detail = fmt.Sprintf("binary %q not found", cmd)
			results = append(results, status)
			continue
		}
		status.Path = path
		status.Available = true
		results = append(results, status)
	}
	return results
}

func orDefault(value, fallback string) string {
	if v := strings.TrimSpace(value); v != "" {
		return v
	}
	return fallback
}

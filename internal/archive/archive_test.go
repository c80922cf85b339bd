package archive_test

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"docarchive/internal/archive"
	"docarchive/internal/config"
	"docarchive/internal/documents"
	"docarchive/internal/fileutil"
	"docarchive/internal/testsupport"
)

func fixedID() string { return "abcd1234" }

func newCabinet(cfg *config.Config) *archive.Cabinet {
	return archive.NewCabinet(cfg, nil, archive.WithIDSource(fixedID))
}

func TestFileName(t *testing.T) {
	cab := newCabinet(testsupport.NewConfig(t))
	tests := []struct {
		name string
		in   string
		ocr  bool
		want string
	}{
		{"plain", "facture.pdf", false, "abcd1234_facture.pdf"},
		{"punctuation dropped", "Facture Swisscom (mars).PDF", false, "abcd1234_Facture Swisscom mars.pdf"},
		{"accents kept", "Impôts 2024.jpg", false, "abcd1234_Impôts 2024.jpg"},
		{"ocr copy", "scan.jpeg", true, "abcd1234_scan_ocr.pdf"},
		{"empty stem", "%%%.png", false, "abcd1234_document.png"},
		{"long stem", strings.Repeat("a", 80) + ".pdf", false, "abcd1234_" + strings.Repeat("a", 50) + ".pdf"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := cab.FileName(fixedID(), tt.in, tt.ocr); got != tt.want {
				t.Fatalf("FileName(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestDirUsesUnclassifiedBucket(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cab := newCabinet(cfg)
	root := cfg.Paths.ArchiveDir
	tests := map[string]string{
		"":               filepath.Join(root, "2024", "unclassified", "invoice"),
		"General":        filepath.Join(root, "2024", "unclassified", "invoice"),
		"Banque":         filepath.Join(root, "2024", "Banque", "invoice"),
		"Impôts & Taxes": filepath.Join(root, "2024", "Impôts_Taxes", "invoice"),
	}
	for category, want := range tests {
		if got := cab.Dir(2024, category, documents.KindInvoice); got != want {
			t.Fatalf("Dir(%q) = %q, want %q", category, got, want)
		}
	}
	if got := cab.Dir(2024, "", documents.Kind("brochure")); filepath.Base(got) != "other" {
		t.Fatalf("unknown kinds should file under other, got %q", got)
	}
}

func TestStorageYear(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	dated := time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC)
	uploaded := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		doc  documents.Document
		want int
	}{
		{"intrinsic date wins", documents.Document{DocumentDate: &dated, CreatedAt: uploaded}, 2023},
		{"upload year fallback", documents.Document{CreatedAt: uploaded}, 2024},
		{"clock fallback", documents.Document{}, 2025},
	}
	for _, tt := range tests {
		if got := archive.StorageYear(&tt.doc, now); got != tt.want {
			t.Fatalf("%s: got %d, want %d", tt.name, got, tt.want)
		}
	}
}

func TestPlaceMovesOriginalAndOCRCopy(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	doc := testsupport.NewDocument(t, store, cfg, 1, "releve.pdf", []byte("statement"))
	year := 2024
	doc.StorageYear = &year
	doc.Category = "Banque"
	doc.Kind = documents.KindLetter
	doc.OriginalFilename = "Relevé mars.pdf"

	ocrPath := filepath.Join(cfg.Paths.StagingDir, "ocr.pdf")
	testsupport.WriteBytes(t, ocrPath, []byte("searchable"))
	upload := doc.FilePath

	placement, err := newCabinet(cfg).Place(context.Background(), doc, ocrPath)
	if err != nil {
		t.Fatalf("Place: %v", err)
	}
	wantDir := filepath.Join(cfg.Paths.ArchiveDir, "2024", "Banque", "letter")
	if placement.Dir != wantDir {
		t.Fatalf("dir = %q, want %q", placement.Dir, wantDir)
	}
	if placement.OriginalPath != filepath.Join(wantDir, "abcd1234_Relevé mars.pdf") || doc.FilePath != placement.OriginalPath {
		t.Fatalf("unexpected original path %q (doc %q)", placement.OriginalPath, doc.FilePath)
	}
	if placement.OCRPath != filepath.Join(wantDir, "abcd1234_Relevé mars_ocr.pdf") || doc.OCRPDFPath != placement.OCRPath {
		t.Fatalf("unexpected ocr path %q (doc %q)", placement.OCRPath, doc.OCRPDFPath)
	}
	for _, gone := range []string{upload, ocrPath} {
		if fileutil.Exists(gone) {
			t.Fatalf("source %s should have been moved", gone)
		}
	}
	for _, present := range []string{placement.OriginalPath, placement.OCRPath} {
		if !fileutil.Exists(present) {
			t.Fatalf("expected %s to exist", present)
		}
	}
}

func TestPlaceRequiresStorageYearAndFile(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	cab := newCabinet(cfg)
	doc := testsupport.NewDocument(t, store, cfg, 1, "a.pdf", []byte("a"))
	if _, err := cab.Place(context.Background(), doc, ""); err == nil {
		t.Fatal("expected error without storage year")
	}
	year := 2024
	doc.StorageYear = &year
	doc.FilePath = filepath.Join(cfg.Paths.UploadDir, "missing.pdf")
	if _, err := cab.Place(context.Background(), doc, ""); err == nil {
		t.Fatal("expected error for missing original")
	}
}

func TestDeleteFiles(t *testing.T) {
	dir := t.TempDir()
	original := filepath.Join(dir, "a.pdf")
	testsupport.WriteBytes(t, original, []byte("a"))
	doc := &documents.Document{FilePath: original, OCRPDFPath: filepath.Join(dir, "never-written.pdf")}
	if err := archive.DeleteFiles(doc); err != nil {
		t.Fatalf("DeleteFiles: %v", err)
	}
	if fileutil.Exists(original) {
		t.Fatal("original should be removed")
	}
}

type seed struct {
	year     int
	category string
	kind     documents.Kind
}

func seedArchive(t *testing.T, seeds []seed) (*config.Config, *documents.Store) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	for i, s := range seeds {
		doc := testsupport.NewDocument(t, store, cfg, 1, fmt.Sprintf("doc%d.pdf", i), []byte{byte(i)})
		year := s.year
		doc.StorageYear = &year
		doc.Category = s.category
		doc.Kind = s.kind
		doc.DisplayName = fmt.Sprintf("Document %d", i)
		doc.Status = documents.StatusCompleted
		if err := store.Update(ctx, doc); err != nil {
			t.Fatalf("Update: %v", err)
		}
	}
	// Another owner's documents never show up.
	other := testsupport.NewDocument(t, store, cfg, 2, "other.pdf", []byte("x"))
	otherYear := 2019
	other.StorageYear = &otherYear
	if err := store.Update(ctx, other); err != nil {
		t.Fatalf("Update: %v", err)
	}
	return cfg, store
}

var sampleSeeds = []seed{
	{2024, "Banque", documents.KindLetter},
	{2024, "Banque", documents.KindLetter},
	{2024, "Energie", documents.KindInvoice},
	{2024, "General", documents.KindOther},
	{2024, "", documents.KindReceipt},
	{2023, "Impots", documents.KindLetter},
}

func TestBrowserTree(t *testing.T) {
	cfg, store := seedArchive(t, sampleSeeds)
	browser := archive.NewBrowser(store, newCabinet(cfg))
	tree, err := browser.Tree(context.Background(), 1)
	if err != nil {
		t.Fatalf("Tree: %v", err)
	}
	if len(tree) != 2 || tree[0].Year != 2024 || tree[1].Year != 2023 {
		t.Fatalf("unexpected years %+v", tree)
	}
	y := tree[0]
	if y.Total != 5 || len(y.Categories) != 3 {
		t.Fatalf("unexpected 2024 node %+v", y)
	}
	names := []string{y.Categories[0].Name, y.Categories[1].Name, y.Categories[2].Name}
	if strings.Join(names, ",") != "Banque,Energie,unclassified" {
		t.Fatalf("unexpected category order %v", names)
	}
	unclassified := y.Categories[2]
	if unclassified.Total != 2 || len(unclassified.Kinds) != 2 {
		t.Fatalf("General and empty should share a bucket: %+v", unclassified)
	}
}

func TestBrowserCategories(t *testing.T) {
	cfg, store := seedArchive(t, sampleSeeds)
	browser := archive.NewBrowser(store, newCabinet(cfg))
	ctx := context.Background()

	perYear, err := browser.CategoriesForYear(ctx, 1, 2024)
	if err != nil {
		t.Fatalf("CategoriesForYear: %v", err)
	}
	if strings.Join(perYear, ",") != "Banque,Energie,unclassified" {
		t.Fatalf("unexpected categories %v", perYear)
	}
	all, err := browser.Categories(ctx, 1)
	if err != nil {
		t.Fatalf("Categories: %v", err)
	}
	if strings.Join(all, ",") != "Banque,Energie,Impots,unclassified" {
		t.Fatalf("unexpected categories %v", all)
	}
	counts, err := browser.KindCounts(ctx, 1, 2024)
	if err != nil {
		t.Fatalf("KindCounts: %v", err)
	}
	if counts[documents.KindLetter] != 2 || counts[documents.KindReceipt] != 1 {
		t.Fatalf("unexpected counts %v", counts)
	}
}

func TestBrowserListPaging(t *testing.T) {
	cfg, store := seedArchive(t, sampleSeeds)
	browser := archive.NewBrowser(store, newCabinet(cfg))
	ctx := context.Background()

	first, err := browser.List(ctx, archive.Query{OwnerID: 1, Year: 2024, PageSize: 3})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(first.Documents) != 3 || !first.HasMore {
		t.Fatalf("unexpected first page %+v", first)
	}
	second, err := browser.List(ctx, archive.Query{OwnerID: 1, Year: 2024, PageSize: 3, Page: 2})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(second.Documents) != 2 || second.HasMore {
		t.Fatalf("unexpected second page %+v", second)
	}

	bucket, err := browser.List(ctx, archive.Query{OwnerID: 1, Category: "unclassified"})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(bucket.Documents) != 2 {
		t.Fatalf("expected 2 unclassified documents, got %d", len(bucket.Documents))
	}
	letters, err := browser.List(ctx, archive.Query{OwnerID: 1, Category: "Banque", Kind: documents.KindLetter})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(letters.Documents) != 2 {
		t.Fatalf("expected 2 bank letters, got %d", len(letters.Documents))
	}
}

func TestBrowserOverview(t *testing.T) {
	cfg, store := seedArchive(t, sampleSeeds)
	overview, err := archive.NewBrowser(store, newCabinet(cfg)).Overview(context.Background(), 1)
	if err != nil {
		t.Fatalf("Overview: %v", err)
	}
	if overview.Total != 6 || len(overview.ByYear) != 2 || overview.ByYear[0].Count != 5 {
		t.Fatalf("unexpected overview %+v", overview)
	}
	if overview.ByKind[documents.KindLetter] != 3 {
		t.Fatalf("unexpected kind totals %v", overview.ByKind)
	}
}

func TestExportXLSX(t *testing.T) {
	cfg, store := seedArchive(t, sampleSeeds)
	browser := archive.NewBrowser(store, newCabinet(cfg))
	var buf bytes.Buffer
	n, err := browser.ExportXLSX(context.Background(), &buf, 1, 2024)
	if err != nil {
		t.Fatalf("ExportXLSX: %v", err)
	}
	if n != 5 {
		t.Fatalf("exported %d rows, want 5", n)
	}

	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	defer f.Close()
	rows, err := f.GetRows("Documents")
	if err != nil {
		t.Fatalf("GetRows: %v", err)
	}
	if len(rows) != 6 || rows[0][0] != "Year" {
		t.Fatalf("unexpected document rows %v", rows)
	}
	summary, err := f.GetRows("Summary")
	if err != nil {
		t.Fatalf("GetRows: %v", err)
	}
	// header + Banque/letter + Energie/invoice + unclassified other + unclassified receipt
	if len(summary) != 5 {
		t.Fatalf("unexpected summary rows %v", summary)
	}
}

package documents_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"docarchive/internal/documents"
	"docarchive/internal/testsupport"
)

func TestCreateAndGet(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	doc := testsupport.NewDocument(t, store, cfg, 1, "receipt.pdf", []byte("pdf bytes"))
	if doc.ID == 0 {
		t.Fatal("expected id to be assigned")
	}
	if doc.Status != documents.StatusPending {
		t.Fatalf("expected pending, got %s", doc.Status)
	}
	if doc.Kind != documents.KindOther {
		t.Fatalf("expected default kind other, got %s", doc.Kind)
	}

	fetched, err := store.GetByID(ctx, doc.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if fetched == nil || fetched.OriginalFilename != "receipt.pdf" || fetched.FileSize != 9 {
		t.Fatalf("unexpected document: %#v", fetched)
	}

	missing, err := store.GetByID(ctx, 9999)
	if err != nil {
		t.Fatalf("GetByID missing: %v", err)
	}
	if missing != nil {
		t.Fatalf("expected nil for missing document, got %#v", missing)
	}
}

func TestUpdateRoundTripsOptionalFields(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	doc := testsupport.NewDocument(t, store, cfg, 1, "invoice.pdf", []byte("a"))
	date := time.Date(2023, 3, 1, 0, 0, 0, 0, time.UTC)
	amount := documents.AmountFromFloat(45)
	doc.Kind = documents.KindInvoice
	doc.Category = "Telecom"
	doc.DisplayName = "Swisscom March"
	doc.DocumentDate = &date
	doc.Amount = &amount
	doc.Currency = "CHF"
	doc.Keywords = []string{"swisscom", "mobile"}
	doc.ContentHash = "abc"
	if err := store.Update(ctx, doc); err != nil {
		t.Fatalf("Update: %v", err)
	}

	got, err := store.GetByID(ctx, doc.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Kind != documents.KindInvoice || got.Category != "Telecom" {
		t.Fatalf("unexpected classification: %s %s", got.Kind, got.Category)
	}
	if got.DocumentDate == nil || !got.DocumentDate.Equal(date) {
		t.Fatalf("unexpected date: %v", got.DocumentDate)
	}
	if got.Amount == nil || got.Amount.String() != "45.00" {
		t.Fatalf("unexpected amount: %v", got.Amount)
	}
	if len(got.Keywords) != 2 || got.Keywords[1] != "mobile" {
		t.Fatalf("unexpected keywords: %v", got.Keywords)
	}
	if got.Deadline != nil || got.DuplicateOfID != nil || got.SimilarityScore != nil {
		t.Fatalf("expected unset optionals to stay nil: %#v", got)
	}
}

func TestStorageYearAssignedOnce(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	doc := testsupport.NewDocument(t, store, cfg, 1, "a.pdf", []byte("a"))
	year, err := store.AssignStorageYear(ctx, doc.ID, 2023)
	if err != nil {
		t.Fatalf("AssignStorageYear: %v", err)
	}
	if year != 2023 {
		t.Fatalf("expected 2023, got %d", year)
	}
	year, err = store.AssignStorageYear(ctx, doc.ID, 2024)
	if err != nil {
		t.Fatalf("AssignStorageYear second call: %v", err)
	}
	if year != 2023 {
		t.Fatalf("expected storage year to stay 2023, got %d", year)
	}

	reloaded, _ := store.GetByID(ctx, doc.ID)
	other := 2030
	reloaded.StorageYear = &other
	if err := store.Update(ctx, reloaded); err != nil {
		t.Fatalf("Update: %v", err)
	}
	final, _ := store.GetByID(ctx, doc.ID)
	if final.StorageYear == nil || *final.StorageYear != 2023 {
		t.Fatalf("Update must not overwrite storage year, got %v", final.StorageYear)
	}
}

func TestClaimForProcessing(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	doc := testsupport.NewDocument(t, store, cfg, 1, "a.pdf", []byte("a"))
	claimed, err := store.ClaimForProcessing(ctx, doc.ID, false)
	if err != nil || !claimed {
		t.Fatalf("expected claim, got %v %v", claimed, err)
	}
	if err := store.SetStatus(ctx, doc.ID, documents.StatusCompleted, ""); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}
	claimed, err = store.ClaimForProcessing(ctx, doc.ID, false)
	if err != nil || claimed {
		t.Fatalf("completed documents must not be reclaimed, got %v %v", claimed, err)
	}
	claimed, err = store.ClaimForProcessing(ctx, doc.ID, true)
	if err != nil || !claimed {
		t.Fatalf("explicit reprocess should claim, got %v %v", claimed, err)
	}
}

func TestDeleteClearsDuplicateLinksAndChunks(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	original := testsupport.NewDocument(t, store, cfg, 1, "orig.pdf", []byte("a"))
	copyDoc := testsupport.NewDocument(t, store, cfg, 1, "copy.pdf", []byte("b"))
	if err := store.ReplaceChunks(ctx, original.ID, []documents.Chunk{{Index: 0, Content: "hello", Embedding: []float32{1, 0}}}); err != nil {
		t.Fatalf("ReplaceChunks: %v", err)
	}
	score := 0.9
	copyDoc.IsDuplicate = true
	copyDoc.DuplicateOfID = &original.ID
	copyDoc.SimilarityScore = &score
	if err := store.Update(ctx, copyDoc); err != nil {
		t.Fatalf("Update: %v", err)
	}

	if err := store.Delete(ctx, original.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	chunks, err := store.Chunks(ctx, original.ID)
	if err != nil {
		t.Fatalf("Chunks: %v", err)
	}
	if len(chunks) != 0 {
		t.Fatalf("expected chunks to cascade, got %d", len(chunks))
	}
	survivor, _ := store.GetByID(ctx, copyDoc.ID)
	if !survivor.IsDuplicate || survivor.DuplicateOfID != nil {
		t.Fatalf("expected weak link cleared, got dup=%v of=%v", survivor.IsDuplicate, survivor.DuplicateOfID)
	}
	if err := store.Delete(ctx, original.ID); !errors.Is(err, documents.ErrNotFound) {
		t.Fatalf("expected ErrNotFound deleting twice, got %v", err)
	}
}

func TestFindByHashScopesToOwner(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	mine := testsupport.NewDocument(t, store, cfg, 1, "a.pdf", []byte("a"))
	theirs := testsupport.NewDocument(t, store, cfg, 2, "b.pdf", []byte("a"))
	incoming := testsupport.NewDocument(t, store, cfg, 1, "c.pdf", []byte("a"))
	for _, doc := range []*documents.Document{mine, theirs, incoming} {
		doc.ContentHash = "same"
		if err := store.Update(ctx, doc); err != nil {
			t.Fatalf("Update: %v", err)
		}
	}

	match, err := store.FindByHash(ctx, 1, "same", incoming.ID)
	if err != nil {
		t.Fatalf("FindByHash: %v", err)
	}
	if match == nil || match.ID != mine.ID {
		t.Fatalf("expected owner's own document, got %#v", match)
	}
	none, err := store.FindByHash(ctx, 3, "same", 0)
	if err != nil || none != nil {
		t.Fatalf("expected no match for other owner, got %#v %v", none, err)
	}
	newer, err := store.FindByHash(ctx, 1, "same", mine.ID)
	if err != nil || newer != nil {
		t.Fatalf("oldest document must not match later uploads, got %#v %v", newer, err)
	}
}

func TestFindMetadataMatchDateWindow(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	amount := documents.AmountFromFloat(120.5)
	save := func(name string, date *time.Time) *documents.Document {
		doc := testsupport.NewDocument(t, store, cfg, 1, name, []byte(name))
		doc.Kind = documents.KindInvoice
		doc.Amount = &amount
		doc.DocumentDate = date
		if err := store.Update(ctx, doc); err != nil {
			t.Fatalf("Update: %v", err)
		}
		return doc
	}
	far := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	near := time.Date(2024, 5, 20, 0, 0, 0, 0, time.UTC)
	save("far.pdf", &far)
	nearDoc := save("near.pdf", &near)

	target := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	match, err := store.FindMetadataMatch(ctx, documents.MetadataQuery{
		OwnerID: 1, BeforeID: 999, Amount: amount, Kind: documents.KindInvoice, Date: &target, WindowDays: 30,
	})
	if err != nil {
		t.Fatalf("FindMetadataMatch: %v", err)
	}
	if match == nil || match.ID != nearDoc.ID {
		t.Fatalf("expected near document, got %#v", match)
	}

	other := documents.AmountFromFloat(99)
	none, err := store.FindMetadataMatch(ctx, documents.MetadataQuery{OwnerID: 1, Amount: other, Kind: documents.KindInvoice})
	if err != nil || none != nil {
		t.Fatalf("expected no match for different amount, got %#v %v", none, err)
	}
}

func TestTopSimilar(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	a := testsupport.NewDocument(t, store, cfg, 1, "a.pdf", []byte("a"))
	b := testsupport.NewDocument(t, store, cfg, 1, "b.pdf", []byte("b"))
	other := testsupport.NewDocument(t, store, cfg, 2, "c.pdf", []byte("c"))
	mustChunks := func(id int64, vec []float32) {
		if err := store.ReplaceChunks(ctx, id, []documents.Chunk{{Index: 0, Content: "x", Embedding: vec}}); err != nil {
			t.Fatalf("ReplaceChunks: %v", err)
		}
	}
	mustChunks(a.ID, []float32{1, 0, 0})
	mustChunks(b.ID, []float32{0.9, 0.1, 0})
	mustChunks(other.ID, []float32{0.9, 0.1, 0})

	first, ok, err := store.FirstEmbedding(ctx, b.ID)
	if err != nil || !ok {
		t.Fatalf("FirstEmbedding: %v %v", ok, err)
	}
	match, found, err := store.TopSimilar(ctx, 1, first, b.ID, 0.85)
	if err != nil {
		t.Fatalf("TopSimilar: %v", err)
	}
	if !found || match.DocumentID != a.ID {
		t.Fatalf("expected match on document a, got %#v found=%v", match, found)
	}
	if match.Score < 0.99 {
		t.Fatalf("unexpected score %v", match.Score)
	}

	_, found, err = store.TopSimilar(ctx, 1, []float32{0, 0, 1}, b.ID, 0.85)
	if err != nil || found {
		t.Fatalf("expected no match for orthogonal vector, got %v %v", found, err)
	}

	_, found, err = store.TopSimilar(ctx, 1, []float32{1, 0, 0}, a.ID, 0.85)
	if err != nil || found {
		t.Fatalf("later documents must not match the first one, got %v %v", found, err)
	}
}

func TestListOrdersByDocumentDateNullsLast(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	mk := func(name string, date *time.Time, category string) *documents.Document {
		doc := testsupport.NewDocument(t, store, cfg, 1, name, []byte(name))
		doc.DocumentDate = date
		doc.Category = category
		if err := store.Update(ctx, doc); err != nil {
			t.Fatalf("Update: %v", err)
		}
		if _, err := store.AssignStorageYear(ctx, doc.ID, 2024); err != nil {
			t.Fatalf("AssignStorageYear: %v", err)
		}
		return doc
	}
	older := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)
	newer := time.Date(2024, 8, 5, 0, 0, 0, 0, time.UTC)
	undated := mk("undated.pdf", nil, "General")
	oldDoc := mk("old.pdf", &older, "Tax")
	newDoc := mk("new.pdf", &newer, "")

	docs, err := store.List(ctx, documents.ListFilter{OwnerID: 1, Year: 2024})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(docs) != 3 || docs[0].ID != newDoc.ID || docs[1].ID != oldDoc.ID || docs[2].ID != undated.ID {
		t.Fatalf("unexpected order: %v", ids(docs))
	}

	unclassified, err := store.List(ctx, documents.ListFilter{OwnerID: 1, Year: 2024, Unclassified: true})
	if err != nil {
		t.Fatalf("List unclassified: %v", err)
	}
	if len(unclassified) != 2 {
		t.Fatalf("expected General and empty categories, got %v", ids(unclassified))
	}

	paged, err := store.List(ctx, documents.ListFilter{OwnerID: 1, Limit: 1, Offset: 1})
	if err != nil {
		t.Fatalf("List paged: %v", err)
	}
	if len(paged) != 1 || paged[0].ID != oldDoc.ID {
		t.Fatalf("unexpected page: %v", ids(paged))
	}
}

func TestArchiveQueries(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	mk := func(name string, year int, category string, kind documents.Kind) {
		doc := testsupport.NewDocument(t, store, cfg, 1, name, []byte(name))
		doc.Category = category
		doc.Kind = kind
		if err := store.Update(ctx, doc); err != nil {
			t.Fatalf("Update: %v", err)
		}
		if _, err := store.AssignStorageYear(ctx, doc.ID, year); err != nil {
			t.Fatalf("AssignStorageYear: %v", err)
		}
	}
	mk("a.pdf", 2023, "Tax", documents.KindLetter)
	mk("b.pdf", 2024, "Tax", documents.KindInvoice)
	mk("c.pdf", 2024, "Tax", documents.KindInvoice)
	mk("d.pdf", 2024, "General", documents.KindReceipt)
	mk("e.pdf", 2024, "Insurance", documents.KindContract)
	testsupport.NewDocument(t, store, cfg, 1, "pending.pdf", []byte("p"))

	years, err := store.Years(ctx, 1)
	if err != nil {
		t.Fatalf("Years: %v", err)
	}
	if len(years) != 2 || years[0] != 2024 || years[1] != 2023 {
		t.Fatalf("unexpected years: %v", years)
	}

	counts, err := store.KindCounts(ctx, 1, 2024)
	if err != nil {
		t.Fatalf("KindCounts: %v", err)
	}
	if counts[documents.KindInvoice] != 2 || counts[documents.KindReceipt] != 1 || counts[documents.KindContract] != 1 {
		t.Fatalf("unexpected counts: %v", counts)
	}

	categories, err := store.Categories(ctx, 1)
	if err != nil {
		t.Fatalf("Categories: %v", err)
	}
	if len(categories) != 2 || categories[0] != "Insurance" || categories[1] != "Tax" {
		t.Fatalf("unexpected categories: %v", categories)
	}

	rows, err := store.CategoryKindCounts(ctx, 1, 2024)
	if err != nil {
		t.Fatalf("CategoryKindCounts: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 category/kind rows, got %+v", rows)
	}
}

func ids(docs []*documents.Document) []int64 {
	out := make([]int64, len(docs))
	for i, doc := range docs {
		out[i] = doc.ID
	}
	return out
}

package ingest

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"docarchive/internal/archive"
	"docarchive/internal/config"
	"docarchive/internal/logging"
	"docarchive/internal/services/analysis"
	"docarchive/internal/services/ocr"
	"docarchive/internal/testsupport"
)

type nopExtractor struct{}

func (nopExtractor) Extract(context.Context, string, string) (ocr.Extraction, error) {
	return ocr.Extraction{}, nil
}

type nopAnalyzer struct{}

func (nopAnalyzer) Analyze(context.Context, string, float64) analysis.Result {
	return analysis.DefaultResult()
}

func newTestOrchestrator(t *testing.T) (*Orchestrator, *config.Config) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	o, err := NewOrchestrator(cfg, store, Dependencies{
		Extractor: nopExtractor{},
		Analyzer:  nopAnalyzer{},
		Placer:    archive.NewCabinet(cfg, logging.NewNop()),
	}, logging.NewNop())
	if err != nil {
		t.Fatalf("NewOrchestrator: %v", err)
	}
	return o, cfg
}

func TestRemoveDocumentKeepsFilesWhenRecordDeleteFails(t *testing.T) {
	o, cfg := newTestOrchestrator(t)
	doc := testsupport.NewDocument(t, o.store, cfg, 1, "kept.pdf", []byte("%PDF-1.4 kept"))

	// The record is gone before removal starts, so deleting it fails.
	if err := o.store.Delete(context.Background(), doc.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := o.removeDocument(context.Background(), StepDuplicates, doc); err == nil {
		t.Fatal("expected record deletion to fail")
	}
	if _, err := os.Stat(doc.FilePath); err != nil {
		t.Fatalf("file must survive a failed record delete: %v", err)
	}
}

func TestRemoveDocumentDeletesRecordThenFiles(t *testing.T) {
	o, cfg := newTestOrchestrator(t)
	doc := testsupport.NewDocument(t, o.store, cfg, 1, "gone.pdf", []byte("%PDF-1.4 gone"))

	if err := o.removeDocument(context.Background(), "delete", doc); err != nil {
		t.Fatalf("removeDocument: %v", err)
	}
	if got, err := o.store.GetByID(context.Background(), doc.ID); err != nil || got != nil {
		t.Fatalf("record still present: %+v %v", got, err)
	}
	if _, err := os.Stat(doc.FilePath); !os.IsNotExist(err) {
		t.Fatalf("expected file removed, stat err %v", err)
	}
}

func TestLockOwnerSerializesPerOwner(t *testing.T) {
	o, _ := newTestOrchestrator(t)

	unlock := o.lockOwner(1)
	acquired := make(chan struct{})
	go func() {
		release := o.lockOwner(1)
		close(acquired)
		release()
	}()
	// Another owner is not blocked.
	o.lockOwner(2)()

	select {
	case <-acquired:
		t.Fatal("second lock on the same owner acquired while held")
	case <-time.After(50 * time.Millisecond):
	}
	unlock()
	select {
	case <-acquired:
	case <-time.After(5 * time.Second):
		t.Fatal("lock not handed over after unlock")
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			o.lockOwner(3)()
		}()
	}
	wg.Wait()
}

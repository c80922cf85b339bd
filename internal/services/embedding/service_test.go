package embedding_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"docarchive/internal/documents"
	"docarchive/internal/services/embedding"
	"docarchive/internal/testsupport"
)

func TestClientPostsFormText(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/analyzeText" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if got := r.PostForm.Get("text"); got != "Facture Swisscom" {
			t.Errorf("text = %q", got)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"embedding": []float32{0.1, 0.2, 0.3}})
	}))
	defer server.Close()

	vec, err := embedding.NewClient(server.URL+"/", 0).Embed(context.Background(), "Facture Swisscom")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vec) != 3 || vec[2] != 0.3 {
		t.Fatalf("unexpected vector %v", vec)
	}
}

func TestClientRejectsErrors(t *testing.T) {
	tests := map[string]http.HandlerFunc{
		"status": func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusBadGateway) },
		"empty":  func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte(`{"embedding":[]}`)) },
		"junk":   func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte(`<html>`)) },
	}
	for name, handler := range tests {
		t.Run(name, func(t *testing.T) {
			server := httptest.NewServer(handler)
			defer server.Close()
			if _, err := embedding.NewClient(server.URL, 0).Embed(context.Background(), "x"); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

type fakeVectorizer struct {
	fail string
}

func (f fakeVectorizer) Embed(_ context.Context, text string) ([]float32, error) {
	if f.fail != "" && strings.Contains(text, f.fail) {
		return nil, errors.New("model unavailable")
	}
	return []float32{float32(len(text)), 1}, nil
}

type recordingMirror struct {
	owner  int64
	doc    int64
	chunks []documents.Chunk
}

func (m *recordingMirror) Upsert(_ context.Context, ownerID, documentID int64, chunks []documents.Chunk) error {
	m.owner, m.doc, m.chunks = ownerID, documentID, chunks
	return nil
}

func TestEmbedAndStoreSkipsEmptyAndFailedChunks(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Embedding.Enabled = true
	store := testsupport.MustOpenStore(t, cfg)
	doc := testsupport.NewDocument(t, store, cfg, 7, "a.pdf", []byte("a"))

	mirror := &recordingMirror{}
	svc := embedding.New(cfg.Embedding, store, nil,
		embedding.WithVectorizer(fakeVectorizer{fail: "broken"}),
		embedding.WithMirror(mirror),
	)
	if !svc.Enabled() {
		t.Fatal("expected service enabled")
	}

	n, err := svc.EmbedAndStore(context.Background(), doc.ID, []string{"first chunk", "  ", "broken chunk", "last"})
	if err != nil {
		t.Fatalf("EmbedAndStore: %v", err)
	}
	if n != 2 {
		t.Fatalf("stored %d chunks, want 2", n)
	}
	chunks, err := store.Chunks(context.Background(), doc.ID)
	if err != nil {
		t.Fatalf("Chunks: %v", err)
	}
	if len(chunks) != 2 || chunks[0].Content != "first chunk" || chunks[1].Index != 1 || chunks[1].Content != "last" {
		t.Fatalf("unexpected chunks %+v", chunks)
	}
	if mirror.owner != 7 || mirror.doc != doc.ID || len(mirror.chunks) != 2 {
		t.Fatalf("mirror got owner=%d doc=%d chunks=%d", mirror.owner, mirror.doc, len(mirror.chunks))
	}
}

func TestEmbedAndStoreReplacesPreviousChunks(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	doc := testsupport.NewDocument(t, store, cfg, 1, "b.pdf", []byte("b"))
	svc := embedding.New(cfg.Embedding, store, nil, embedding.WithVectorizer(fakeVectorizer{}))

	if _, err := svc.EmbedAndStore(context.Background(), doc.ID, []string{"one", "two", "three"}); err != nil {
		t.Fatalf("EmbedAndStore: %v", err)
	}
	if _, err := svc.EmbedAndStore(context.Background(), doc.ID, []string{"only"}); err != nil {
		t.Fatalf("EmbedAndStore: %v", err)
	}
	vec, ok, err := store.FirstEmbedding(context.Background(), doc.ID)
	if err != nil || !ok {
		t.Fatalf("FirstEmbedding: ok=%v err=%v", ok, err)
	}
	if vec[0] != 4 {
		t.Fatalf("expected embedding of %q, got %v", "only", vec)
	}
	chunks, _ := store.Chunks(context.Background(), doc.ID)
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk after replace, got %d", len(chunks))
	}
}

func TestChunkUsesConfiguredWindow(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Embedding.ChunkSize = 20
	cfg.Embedding.ChunkOverlap = 5
	svc := embedding.New(cfg.Embedding, nil, nil)
	chunks := svc.Chunk(strings.Repeat("abcdefghij", 5))
	if len(chunks) < 3 {
		t.Fatalf("expected several chunks, got %v", chunks)
	}
	for _, c := range chunks {
		if n := len([]rune(c)); n > 20 {
			t.Fatalf("chunk longer than window: %d", n)
		}
	}
}

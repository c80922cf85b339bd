package vectorpg

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"docarchive/internal/config"
	"docarchive/internal/documents"
	"docarchive/internal/logging"
)

func TestSchemaStatementsUseDimensions(t *testing.T) {
	stmts := schemaStatements(384)
	if len(stmts) != 3 {
		t.Fatalf("expected 3 statements, got %d", len(stmts))
	}
	if !strings.Contains(stmts[1], "vector(384)") {
		t.Fatalf("expected vector width in table ddl, got %q", stmts[1])
	}
}

func TestOpenRejectsIncompleteConfig(t *testing.T) {
	if _, err := Open(context.Background(), config.Embedding{Dimensions: 3}, logging.NewNop()); err == nil {
		t.Fatal("expected error for empty dsn")
	}
	if _, err := Open(context.Background(), config.Embedding{PGVectorDSN: "postgres://x"}, logging.NewNop()); err == nil {
		t.Fatal("expected error for zero dimensions")
	}
}

func TestDimensionMismatchDetectedBeforeQuery(t *testing.T) {
	idx := &Index{dimensions: 3, logger: logging.NewNop()}
	_, _, err := idx.TopSimilar(context.Background(), 1, []float32{1, 2}, 0, 0.5)
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Fatalf("expected ErrDimensionMismatch, got %v", err)
	}
	err = idx.Upsert(context.Background(), 1, 1, []documents.Chunk{{Index: 0, Embedding: []float32{1}}})
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Fatalf("expected ErrDimensionMismatch on upsert, got %v", err)
	}
}

// TestIndexAgainstPostgres runs only when a disposable pgvector database is
// provided through DOCARCHIVE_TEST_PGVECTOR_DSN.
func TestIndexAgainstPostgres(t *testing.T) {
	dsn := os.Getenv("DOCARCHIVE_TEST_PGVECTOR_DSN")
	if dsn == "" {
		t.Skip("DOCARCHIVE_TEST_PGVECTOR_DSN not set")
	}
	ctx := context.Background()
	idx, err := Open(ctx, config.Embedding{PGVectorDSN: dsn, Dimensions: 3}, logging.NewNop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer idx.Close()
	t.Cleanup(func() {
		_ = idx.DeleteDocument(ctx, 900001)
		_ = idx.DeleteDocument(ctx, 900002)
	})

	if err := idx.Upsert(ctx, 77, 900001, []documents.Chunk{{Index: 0, Embedding: []float32{1, 0, 0}}}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if err := idx.Upsert(ctx, 77, 900002, []documents.Chunk{{Index: 0, Embedding: []float32{0.9, 0.1, 0}}}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	match, ok, err := idx.TopSimilar(ctx, 77, []float32{0.9, 0.1, 0}, 900002, 0.85)
	if err != nil {
		t.Fatalf("TopSimilar: %v", err)
	}
	if !ok || match.DocumentID != 900001 {
		t.Fatalf("expected match on 900001, got %#v ok=%v", match, ok)
	}
}

package testsupport

import (
	"context"
	"path/filepath"
	"testing"

	"docarchive/internal/config"
	"docarchive/internal/documents"
)

// MustOpenStore opens a documents.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *documents.Store {
	t.Helper()

	store, err := documents.Open(cfg)
	if err != nil {
		t.Fatalf("documents.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewDocument writes a small upload file and creates its PENDING record.
func NewDocument(t testing.TB, store *documents.Store, cfg *config.Config, ownerID int64, name string, content []byte) *documents.Document {
	t.Helper()

	path := filepath.Join(cfg.Paths.UploadDir, name)
	WriteBytes(t, path, content)
	doc, err := store.Create(context.Background(), documents.NewDocument{
		OwnerID:          ownerID,
		OriginalFilename: name,
		StoredFilename:   name,
		FilePath:         path,
		MimeType:         "application/pdf",
		FileSize:         int64(len(content)),
	})
	if err != nil {
		t.Fatalf("store.Create: %v", err)
	}
	return doc
}

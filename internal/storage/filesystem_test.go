package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewFileStoreRequiresPath(t *testing.T) {
	if _, err := NewFileStore("  "); err == nil {
		t.Fatalf("expected error for empty base path")
	}
}

func TestSaveResultWritesFile(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	path, err := store.SaveResult(context.Background(), "listing-photo.jpg", "image/png", []byte{1, 2, 3})
	if err != nil {
		t.Fatalf("save result: %v", err)
	}
	if !strings.Contains(filepath.Base(path), "listing-photo-blurred-") {
		t.Fatalf("path = %q, want name derived from original", path)
	}
	if !strings.HasSuffix(path, ".png") {
		t.Fatalf("path = %q, want .png extension", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if len(data) != 3 {
		t.Fatalf("data length = %d, want 3", len(data))
	}
}

func TestSaveResultJPEGExtension(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	path, err := store.SaveResult(context.Background(), "x.png", "image/jpeg; charset=binary", []byte{1})
	if err != nil {
		t.Fatalf("save result: %v", err)
	}
	if !strings.HasSuffix(path, ".jpg") {
		t.Fatalf("path = %q, want .jpg extension", path)
	}
}

func TestWriteRejectsTraversal(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if _, err := store.Write(context.Background(), "../escape.png", []byte{1}); err == nil {
		t.Fatalf("expected traversal key to be rejected")
	}
}

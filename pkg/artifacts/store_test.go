package artifacts

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

func TestNewStore_DefaultFS(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "ws")
	store, err := NewStore(context.Background(), Config{Dir: dir})
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	fs, ok := store.(*FileStore)
	if !ok {
		t.Fatalf("Expected *FileStore, got %T", store)
	}
	if fs.baseDir != dir {
		t.Errorf("Expected baseDir %s, got %s", dir, fs.baseDir)
	}
}

func TestNewStore_MissingBucket(t *testing.T) {
	for _, typ := range []StoreType{StoreTypeS3, StoreTypeGCS} {
		if _, err := NewStore(context.Background(), Config{Type: typ}); err == nil {
			t.Errorf("%s: expected error for missing bucket", typ)
		}
	}
}

func TestNewStore_UnsupportedType(t *testing.T) {
	if _, err := NewStore(context.Background(), Config{Type: "azure"}); err == nil {
		t.Fatal("expected error for unsupported type")
	}
}

func TestFileStore_RoundTrip(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	if err := store.Put(ctx, "intent-1/receipt.json", []byte(`{"a":1}`)); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	got, err := store.Get(ctx, "intent-1/receipt.json")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(got) != `{"a":1}` {
		t.Errorf("Get = %s", got)
	}

	// Overwrite replaces content.
	if err := store.Put(ctx, "intent-1/receipt.json", []byte(`{"a":2}`)); err != nil {
		t.Fatal(err)
	}
	got, _ = store.Get(ctx, "intent-1/receipt.json")
	if string(got) != `{"a":2}` {
		t.Errorf("overwrite not applied: %s", got)
	}

	ok, err := store.Exists(ctx, "intent-1/receipt.json")
	if err != nil || !ok {
		t.Errorf("Exists = %v, %v", ok, err)
	}
	if err := store.Delete(ctx, "intent-1/receipt.json"); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Get(ctx, "intent-1/receipt.json"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestValidateKey(t *testing.T) {
	for _, key := range []string{"a.json", "intent/receipt.json"} {
		if err := ValidateKey(key); err != nil {
			t.Errorf("ValidateKey(%q) = %v", key, err)
		}
	}
	for _, key := range []string{"", "/etc/passwd", "../x", "a/../../x", "a//b", `a\b`, "."} {
		if err := ValidateKey(key); err == nil {
			t.Errorf("ValidateKey(%q) should fail", key)
		}
	}
}

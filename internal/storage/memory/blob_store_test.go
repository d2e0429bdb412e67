package memory

import (
	"bytes"
	"context"
	"errors"
	"testing"
)

func TestBlobStorePutObjectCopiesData(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	payload := []byte("content")
	uri, err := store.PutObject(context.Background(), "case_2024-01774-006/attachment_1.json", "application/json", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("PutObject() error = %v", err)
	}
	if uri != "memory://case_2024-01774-006/attachment_1.json" {
		t.Fatalf("unexpected uri %s", uri)
	}
	payload[0] = 'C'
	obj, ok := store.Get("case_2024-01774-006/attachment_1.json")
	if !ok {
		t.Fatal("expected object to be stored")
	}
	if string(obj.Data) != "content" || obj.ContentType != "application/json" {
		t.Fatalf("unexpected stored object %+v", obj)
	}
}

func TestBlobStoreFailWith(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	boom := errors.New("disk full")
	store.FailWith(boom)
	if _, err := store.PutObject(context.Background(), "a", "", bytes.NewReader(nil)); !errors.Is(err, boom) {
		t.Fatalf("expected injected error, got %v", err)
	}
	store.FailWith(nil)
	if _, err := store.PutObject(context.Background(), "b", "", bytes.NewReader(nil)); err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	if paths := store.Paths(); len(paths) != 1 || paths[0] != "b" {
		t.Fatalf("unexpected paths %v", paths)
	}
}

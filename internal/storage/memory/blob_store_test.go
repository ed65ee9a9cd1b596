package memory

import (
	"context"
	"testing"
)

func TestBlobStorePutObjectCopiesData(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	payload := []byte("content")
	uri, err := store.PutObject(context.Background(), "path/page.html", "text/html", payload)
	if err != nil {
		t.Fatalf("PutObject() error = %v", err)
	}
	if uri != "memory://path/page.html" {
		t.Fatalf("unexpected uri %s", uri)
	}
	payload[0] = 'C'
	stored, ok := store.Get("path/page.html")
	if !ok {
		t.Fatalf("expected object to be stored")
	}
	if string(stored) != "content" {
		t.Fatalf("expected stored copy to be immutable, got %q", stored)
	}
}

func TestBlobStoreRejectsEmptyPath(t *testing.T) {
	t.Parallel()

	if _, err := NewBlobStore().PutObject(context.Background(), "", "", nil); err == nil {
		t.Fatalf("expected error for empty path")
	}
}

func TestBlobStoreKeysSorted(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	for _, k := range []string{"b", "a", "c"} {
		if _, err := store.PutObject(context.Background(), k, "", []byte(k)); err != nil {
			t.Fatalf("PutObject(%s) error = %v", k, err)
		}
	}
	got := store.Keys()
	if len(got) != 3 || got[0] != "a" || got[2] != "c" {
		t.Fatalf("unexpected keys %v", got)
	}
}

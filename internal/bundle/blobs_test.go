package bundle

import (
	"context"
	"path/filepath"
	"testing"
)

func TestBlobStorePutGetRoundTrip(t *testing.T) {
	store, err := NewBlobStore(filepath.Join(t.TempDir(), "blobs"), false)
	if err != nil {
		t.Fatalf("NewBlobStore() error = %v", err)
	}
	ctx := context.Background()

	addr, err := store.Put(ctx, []byte("hello world"))
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	got, err := store.Get(ctx, addr)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if string(got) != "hello world" {
		t.Fatalf("Get() = %q, want %q", got, "hello world")
	}

	ok, err := store.Contains(ctx, addr)
	if err != nil || !ok {
		t.Fatalf("Contains() = %v, %v, want true, nil", ok, err)
	}
}

func TestBlobStorePutDeduplicates(t *testing.T) {
	store, err := NewBlobStore(filepath.Join(t.TempDir(), "blobs"), false)
	if err != nil {
		t.Fatalf("NewBlobStore() error = %v", err)
	}
	ctx := context.Background()

	a, err := store.Put(ctx, []byte("same content"))
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	b, err := store.Put(ctx, []byte("same content"))
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if a != b {
		t.Fatalf("Put() with identical content returned different addresses: %v vs %v", a, b)
	}
}

func TestBlobStoreCompressedRoundTrip(t *testing.T) {
	store, err := NewBlobStore(filepath.Join(t.TempDir(), "blobs"), true)
	if err != nil {
		t.Fatalf("NewBlobStore() error = %v", err)
	}
	ctx := context.Background()
	payload := make([]byte, 4096)
	for i := range payload {
		payload[i] = byte(i % 7)
	}

	addr, err := store.Put(ctx, payload)
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	got, err := store.Get(ctx, addr)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if len(got) != len(payload) {
		t.Fatalf("Get() returned %d bytes, want %d", len(got), len(payload))
	}
	for i := range got {
		if got[i] != payload[i] {
			t.Fatalf("Get() mismatch at byte %d: %d vs %d", i, got[i], payload[i])
		}
	}
}

func TestBlobStoreGetMissing(t *testing.T) {
	store, err := NewBlobStore(filepath.Join(t.TempDir(), "blobs"), false)
	if err != nil {
		t.Fatalf("NewBlobStore() error = %v", err)
	}
	ctx := context.Background()
	addr, err := store.Put(ctx, []byte("present"))
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if err := store.Delete(ctx, addr); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := store.Get(ctx, addr); err == nil {
		t.Fatal("Get() after Delete(): want error, got nil")
	}
}

func TestBlobStoreRefCounting(t *testing.T) {
	store, err := NewBlobStore(filepath.Join(t.TempDir(), "blobs"), false)
	if err != nil {
		t.Fatalf("NewBlobStore() error = %v", err)
	}
	ctx := context.Background()
	addr, err := store.Put(ctx, []byte("referenced"))
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	if err := store.AddRef(ctx, addr, "node-a"); err != nil {
		t.Fatalf("AddRef() error = %v", err)
	}
	if count, err := store.RefCount(ctx, addr); err != nil || count != 1 {
		t.Fatalf("RefCount() = %d, %v, want 1, nil", count, err)
	}

	if err := store.Delete(ctx, addr); err == nil {
		t.Fatal("Delete() of a referenced blob: want error, got nil")
	}

	if err := store.RemoveRef(ctx, addr, "node-a"); err != nil {
		t.Fatalf("RemoveRef() error = %v", err)
	}
	if err := store.Delete(ctx, addr); err != nil {
		t.Fatalf("Delete() after RemoveRef() error = %v", err)
	}
}

func TestBlobStoreList(t *testing.T) {
	store, err := NewBlobStore(filepath.Join(t.TempDir(), "blobs"), false)
	if err != nil {
		t.Fatalf("NewBlobStore() error = %v", err)
	}
	ctx := context.Background()
	a, _ := store.Put(ctx, []byte("one"))
	b, _ := store.Put(ctx, []byte("two"))

	addrs, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(addrs) != 2 {
		t.Fatalf("len(List()) = %d, want 2", len(addrs))
	}
	seen := map[string]bool{}
	for _, addr := range addrs {
		seen[addr.String()] = true
	}
	if !seen[a.String()] || !seen[b.String()] {
		t.Fatalf("List() = %v, want both %v and %v", addrs, a, b)
	}
}

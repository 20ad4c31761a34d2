package artifacts

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/aishacrm/orchestrator-core/internal/apperr"
)

func TestLocalStore(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocalStore(dir)
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	key := "tenant-a/tool_result/artifact-123"
	data := []byte("hello world")

	ref, err := store.Put(ctx, key, bytes.NewReader(data), PutOptions{MimeType: "text/plain"})
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if ref == "" {
		t.Error("Put returned empty reference")
	}

	exists, err := store.Exists(ctx, key)
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if !exists {
		t.Error("Exists returned false for stored artifact")
	}

	reader, err := store.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	got, err := io.ReadAll(reader)
	reader.Close()
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("Get returned %q, want %q", got, data)
	}

	if err := store.Delete(ctx, key); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	exists, _ = store.Exists(ctx, key)
	if exists {
		t.Error("artifact still exists after Delete")
	}
}

func TestGetDefaultTTL(t *testing.T) {
	cases := map[string]time.Duration{
		"screenshot":  24 * time.Hour,
		"tool_result": 72 * time.Hour,
		"SCREENSHOT":  24 * time.Hour, // case-insensitive
		"unknown_kind": fallbackTTL,
	}
	for kind, want := range cases {
		if got := GetDefaultTTL(kind); got != want {
			t.Errorf("GetDefaultTTL(%q) = %v, want %v", kind, got, want)
		}
	}
}

func newTestRepo(t *testing.T) *MemoryRepository {
	t.Helper()
	store, err := NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}
	return NewMemoryRepository(store, nil)
}

func TestMemoryRepository_PutGetRoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	payload := []byte(`{"result":"ok"}`)

	ref, err := repo.Put(ctx, "tenant-a", "tool_result", "lead", "lead-1", payload, PutOptions{MimeType: "application/json"})
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if ref.SHA256 == "" {
		t.Error("sha256 not populated")
	}
	if ref.R2Key == "" {
		t.Error("r2_key not populated")
	}

	gotRef, reader, err := repo.Get(ctx, ref.ID, "tenant-a")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	defer reader.Close()
	got, _ := io.ReadAll(reader)
	if !bytes.Equal(got, payload) {
		t.Errorf("round-tripped payload = %q, want %q", got, payload)
	}
	if gotRef.SHA256 != ref.SHA256 {
		t.Error("sha256 mismatch on round trip")
	}
}

func TestMemoryRepository_CrossTenantGetIsNotFound(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	ref, err := repo.Put(ctx, "tenant-a", "tool_result", "", "", []byte("secret"), PutOptions{})
	if err != nil {
		t.Fatalf("Put: %v", err)
	}

	_, _, err = repo.Get(ctx, ref.ID, "tenant-b")
	if !apperr.Is(err, apperr.CodeNotFound) {
		t.Fatalf("Get from wrong tenant: got err %v, want NotFound", err)
	}
}

func TestMemoryRepository_InlineVsOffloadThreshold(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	small, err := repo.Put(ctx, "tenant-a", "tool_result", "", "", []byte("small"), PutOptions{})
	if err != nil {
		t.Fatalf("Put small: %v", err)
	}
	repo.mu.RLock()
	_, inline := repo.inlineData[small.ID]
	repo.mu.RUnlock()
	if !inline {
		t.Error("small payload should be stored inline")
	}

	big := bytes.Repeat([]byte("x"), int(MaxInlineDataBytes)+1)
	large, err := repo.Put(ctx, "tenant-a", "tool_result", "", "", big, PutOptions{})
	if err != nil {
		t.Fatalf("Put large: %v", err)
	}
	repo.mu.RLock()
	_, inline = repo.inlineData[large.ID]
	repo.mu.RUnlock()
	if inline {
		t.Error("oversized payload should be offloaded, not inline")
	}
}

func TestMemoryRepository_ListIsTenantScopedAndNewestFirst(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	first, _ := repo.Put(ctx, "tenant-a", "tool_result", "", "", []byte("1"), PutOptions{})
	time.Sleep(time.Millisecond)
	second, _ := repo.Put(ctx, "tenant-a", "tool_result", "", "", []byte("2"), PutOptions{})
	_, _ = repo.Put(ctx, "tenant-b", "tool_result", "", "", []byte("3"), PutOptions{})

	results, err := repo.List(ctx, Filter{TenantUUID: "tenant-a"})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("List returned %d refs, want 2", len(results))
	}
	if results[0].ID != second.ID || results[1].ID != first.ID {
		t.Error("List is not newest-first")
	}
}

func TestMemoryRepository_PruneExpired(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	ref, err := repo.Put(ctx, "tenant-a", "tool_result", "", "", []byte("x"), PutOptions{TTL: time.Nanosecond})
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	time.Sleep(time.Millisecond)

	count, err := repo.PruneExpired(ctx)
	if err != nil {
		t.Fatalf("PruneExpired: %v", err)
	}
	if count != 1 {
		t.Fatalf("PruneExpired pruned %d, want 1", count)
	}

	_, _, err = repo.Get(ctx, ref.ID, "tenant-a")
	if !apperr.Is(err, apperr.CodeNotFound) {
		t.Errorf("Get after prune: got %v, want NotFound", err)
	}
}

package artifacts

import (
	"bytes"
	"context"
	"io"
	"path/filepath"
	"testing"

	"github.com/aishacrm/orchestrator-core/internal/apperr"
)

func newTestPersistentRepo(t *testing.T) (*PersistentRepository, string) {
	t.Helper()
	dir := t.TempDir()
	store, err := NewLocalStore(filepath.Join(dir, "blobs"))
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}
	metadataPath := filepath.Join(dir, "metadata.json")
	repo, err := NewPersistentRepository(store, metadataPath, nil)
	if err != nil {
		t.Fatalf("NewPersistentRepository: %v", err)
	}
	return repo, metadataPath
}

func TestPersistentRepository_PutGetRoundTrip(t *testing.T) {
	repo, _ := newTestPersistentRepo(t)
	ctx := context.Background()
	payload := []byte("persisted payload")

	ref, err := repo.Put(ctx, "tenant-a", "export", "report", "r-1", payload, PutOptions{MimeType: "text/csv"})
	if err != nil {
		t.Fatalf("Put: %v", err)
	}

	_, reader, err := repo.Get(ctx, ref.ID, "tenant-a")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	got, _ := io.ReadAll(reader)
	reader.Close()
	if !bytes.Equal(got, payload) {
		t.Errorf("round-tripped payload = %q, want %q", got, payload)
	}
}

func TestPersistentRepository_SurvivesReload(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocalStore(filepath.Join(dir, "blobs"))
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}
	metadataPath := filepath.Join(dir, "metadata.json")
	repo, err := NewPersistentRepository(store, metadataPath, nil)
	if err != nil {
		t.Fatalf("NewPersistentRepository: %v", err)
	}

	ctx := context.Background()
	big := bytes.Repeat([]byte("y"), int(MaxInlineDataBytes)+10)
	ref, err := repo.Put(ctx, "tenant-a", "export", "", "", big, PutOptions{})
	if err != nil {
		t.Fatalf("Put: %v", err)
	}

	reloaded, err := NewPersistentRepository(store, metadataPath, nil)
	if err != nil {
		t.Fatalf("reload NewPersistentRepository: %v", err)
	}
	_, reader, err := reloaded.Get(ctx, ref.ID, "tenant-a")
	if err != nil {
		t.Fatalf("Get after reload: %v", err)
	}
	got, _ := io.ReadAll(reader)
	reader.Close()
	if !bytes.Equal(got, big) {
		t.Error("offloaded payload did not survive reload")
	}
}

func TestPersistentRepository_CrossTenantGetIsNotFound(t *testing.T) {
	repo, _ := newTestPersistentRepo(t)
	ctx := context.Background()

	ref, err := repo.Put(ctx, "tenant-a", "export", "", "", []byte("data"), PutOptions{})
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	_, _, err = repo.Get(ctx, ref.ID, "tenant-b")
	if !apperr.Is(err, apperr.CodeNotFound) {
		t.Fatalf("Get from wrong tenant: got %v, want NotFound", err)
	}
}

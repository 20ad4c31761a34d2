package artifacts

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/aishacrm/orchestrator-core/internal/apperr"
)

// PersistentRepository stores artifact metadata on disk as JSON and
// delegates blob data to a Store backend — for single-node deployments
// that want restart-durability without a SQL dependency.
type PersistentRepository struct {
	mu           sync.RWMutex
	store        Store
	refs         map[string]*ArtifactRef
	inlineData   map[string][]byte
	metadataPath string
	logger       *slog.Logger
}

type persistedState struct {
	Version int                     `json:"version"`
	Refs    map[string]*ArtifactRef `json:"refs"`
	Inline  map[string][]byte       `json:"inline"`
}

// NewPersistentRepository creates a repository that persists metadata to
// metadataPath.
func NewPersistentRepository(store Store, metadataPath string, logger *slog.Logger) (*PersistentRepository, error) {
	if store == nil {
		return nil, fmt.Errorf("artifact store is required")
	}
	if strings.TrimSpace(metadataPath) == "" {
		return nil, fmt.Errorf("metadata path is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(filepath.Dir(metadataPath), 0755); err != nil {
		return nil, fmt.Errorf("create metadata directory: %w", err)
	}

	repo := &PersistentRepository{
		store:        store,
		refs:         make(map[string]*ArtifactRef),
		inlineData:   make(map[string][]byte),
		metadataPath: metadataPath,
		logger:       logger,
	}
	if err := repo.load(); err != nil {
		return nil, err
	}
	return repo, nil
}

// Put implements Repository.
func (r *PersistentRepository) Put(ctx context.Context, tenantUUID, kind, entityType, entityID string, payload []byte, opts PutOptions) (*ArtifactRef, error) {
	if tenantUUID == "" {
		return nil, apperr.ValidationError("tenant_id is required")
	}

	now := time.Now()
	sum := sha256.Sum256(payload)
	ref := &ArtifactRef{
		ID:         uuid.NewString(),
		TenantUUID: tenantUUID,
		Kind:       kind,
		EntityType: entityType,
		EntityID:   entityID,
		SHA256:     hex.EncodeToString(sum[:]),
		SizeBytes:  int64(len(payload)),
		MimeType:   opts.MimeType,
		CreatedAt:  now,
	}
	ttl := opts.TTL
	if ttl == 0 {
		ttl = GetDefaultTTL(kind)
	}
	ref.TTLSeconds = int32(ttl.Seconds())
	ref.ExpiresAt = now.Add(ttl)
	ref.R2Key = tenantObjectKey(tenantUUID, kind, ref.ID)

	if int64(len(payload)) < MaxInlineDataBytes {
		r.mu.Lock()
		r.refs[ref.ID] = ref
		r.inlineData[ref.ID] = payload
		err := r.persistLocked()
		r.mu.Unlock()
		if err != nil {
			return nil, err
		}
		return ref, nil
	}

	if _, err := r.store.Put(ctx, ref.R2Key, bytes.NewReader(payload), opts); err != nil {
		return nil, fmt.Errorf("store artifact: %w", err)
	}
	r.mu.Lock()
	r.refs[ref.ID] = ref
	err := r.persistLocked()
	r.mu.Unlock()
	if err != nil {
		_ = r.store.Delete(ctx, ref.R2Key)
		return nil, err
	}

	r.logger.Info("artifact stored", "id", ref.ID, "kind", kind, "tenant", tenantUUID, "size", ref.SizeBytes)
	return ref, nil
}

// Get implements Repository, gated by tenant equality.
func (r *PersistentRepository) Get(ctx context.Context, id, tenantUUID string) (*ArtifactRef, io.ReadCloser, error) {
	r.mu.RLock()
	ref, ok := r.refs[id]
	inline := r.inlineData[id]
	r.mu.RUnlock()

	if !ok || ref.TenantUUID != tenantUUID {
		return nil, nil, apperr.NotFound("artifact not found: " + id)
	}
	if !ref.ExpiresAt.IsZero() && time.Now().After(ref.ExpiresAt) {
		_ = r.delete(ctx, id)
		return nil, nil, apperr.NotFound("artifact expired: " + id)
	}
	if inline != nil {
		return ref, io.NopCloser(bytes.NewReader(inline)), nil
	}
	data, err := r.store.Get(ctx, ref.R2Key)
	if err != nil {
		return nil, nil, fmt.Errorf("get artifact data: %w", err)
	}
	return ref, data, nil
}

// List implements Repository, newest first, tenant-scoped.
func (r *PersistentRepository) List(ctx context.Context, filter Filter) ([]*ArtifactRef, error) {
	if filter.TenantUUID == "" {
		return nil, apperr.ValidationError("tenant_id is required")
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	now := time.Now()
	var results []*ArtifactRef
	for _, ref := range r.refs {
		if !ref.ExpiresAt.IsZero() && now.After(ref.ExpiresAt) {
			continue
		}
		if ref.TenantUUID != filter.TenantUUID {
			continue
		}
		if filter.Kind != "" && ref.Kind != filter.Kind {
			continue
		}
		if filter.EntityID != "" && ref.EntityID != filter.EntityID {
			continue
		}
		if !filter.CreatedAfter.IsZero() && ref.CreatedAt.Before(filter.CreatedAfter) {
			continue
		}
		if !filter.CreatedBefore.IsZero() && ref.CreatedAt.After(filter.CreatedBefore) {
			continue
		}
		results = append(results, ref)
	}
	sort.Slice(results, func(i, j int) bool { return results[i].CreatedAt.After(results[j].CreatedAt) })

	limit := filter.Limit
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// PruneExpired implements Repository.
func (r *PersistentRepository) PruneExpired(ctx context.Context) (int, error) {
	r.mu.RLock()
	var expired []string
	now := time.Now()
	for id, ref := range r.refs {
		if !ref.ExpiresAt.IsZero() && now.After(ref.ExpiresAt) {
			expired = append(expired, id)
		}
	}
	r.mu.RUnlock()

	count := 0
	for _, id := range expired {
		if err := r.delete(ctx, id); err == nil {
			count++
		}
	}
	if count > 0 {
		r.logger.Info("pruned expired artifacts", "count", count)
	}
	return count, nil
}

func (r *PersistentRepository) delete(ctx context.Context, id string) error {
	r.mu.Lock()
	ref, ok := r.refs[id]
	_, wasInline := r.inlineData[id]
	if ok {
		delete(r.refs, id)
		delete(r.inlineData, id)
	}
	err := r.persistLocked()
	r.mu.Unlock()
	if err != nil {
		return err
	}
	if ok && !wasInline && ref.R2Key != "" {
		if err := r.store.Delete(ctx, ref.R2Key); err != nil {
			r.logger.Warn("failed to delete artifact from store", "id", id, "error", err)
		}
	}
	return nil
}

func (r *PersistentRepository) load() error {
	data, err := os.ReadFile(r.metadataPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read artifact metadata: %w", err)
	}
	if len(data) == 0 {
		return nil
	}
	var stored persistedState
	if err := json.Unmarshal(data, &stored); err != nil {
		return fmt.Errorf("parse artifact metadata: %w", err)
	}
	if stored.Refs != nil {
		r.refs = stored.Refs
	}
	if stored.Inline != nil {
		r.inlineData = stored.Inline
	}
	return nil
}

func (r *PersistentRepository) persistLocked() error {
	state := persistedState{Version: 1, Refs: r.refs, Inline: r.inlineData}
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}
	mode := os.FileMode(0644)
	if info, err := os.Stat(r.metadataPath); err == nil {
		mode = info.Mode().Perm()
	}
	tmpPath := r.metadataPath + ".tmp"
	if err := os.WriteFile(tmpPath, data, mode); err != nil {
		return err
	}
	return os.Rename(tmpPath, r.metadataPath)
}

package artifacts

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"path"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/aishacrm/orchestrator-core/internal/apperr"
)

// MemoryRepository is an in-memory Repository for testing and single-node
// deployments without a backing SQL store.
type MemoryRepository struct {
	mu         sync.RWMutex
	store      Store
	refs       map[string]*ArtifactRef
	inlineData map[string][]byte
	logger     *slog.Logger
}

// NewMemoryRepository creates a repository backed by the given blob store.
func NewMemoryRepository(store Store, logger *slog.Logger) *MemoryRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &MemoryRepository{
		store:      store,
		refs:       make(map[string]*ArtifactRef),
		inlineData: make(map[string][]byte),
		logger:     logger,
	}
}

// Put implements Repository. The payload is hashed before any storage
// decision is made, so sha256 is always computed over exactly the bytes
// that get persisted.
func (r *MemoryRepository) Put(ctx context.Context, tenantUUID, kind, entityType, entityID string, payload []byte, opts PutOptions) (*ArtifactRef, error) {
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
		r.inlineData[ref.ID] = payload
		r.refs[ref.ID] = ref
		r.mu.Unlock()
		r.logger.Info("artifact stored inline", "id", ref.ID, "kind", kind, "tenant", tenantUUID, "size", ref.SizeBytes)
		return ref, nil
	}

	if _, err := r.store.Put(ctx, ref.R2Key, bytes.NewReader(payload), opts); err != nil {
		return nil, fmt.Errorf("store artifact: %w", err)
	}
	r.mu.Lock()
	r.refs[ref.ID] = ref
	r.mu.Unlock()

	r.logger.Info("artifact stored", "id", ref.ID, "kind", kind, "tenant", tenantUUID, "size", ref.SizeBytes, "r2_key", ref.R2Key)
	return ref, nil
}

// List implements Repository, newest first.
func (r *MemoryRepository) List(ctx context.Context, filter Filter) ([]*ArtifactRef, error) {
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

// Get implements Repository. Retrieval is gated by tenant equality: a ref
// belonging to another tenant is reported NotFound, never leaked.
func (r *MemoryRepository) Get(ctx context.Context, id, tenantUUID string) (*ArtifactRef, io.ReadCloser, error) {
	r.mu.RLock()
	ref, ok := r.refs[id]
	inline := r.inlineData[id]
	r.mu.RUnlock()

	if !ok || ref.TenantUUID != tenantUUID {
		return nil, nil, apperr.NotFound("artifact not found: " + id)
	}
	if !ref.ExpiresAt.IsZero() && time.Now().After(ref.ExpiresAt) {
		r.delete(ctx, id) //nolint:errcheck
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

// PruneExpired implements Repository.
func (r *MemoryRepository) PruneExpired(ctx context.Context) (int, error) {
	r.mu.Lock()
	var expired []string
	now := time.Now()
	for id, ref := range r.refs {
		if !ref.ExpiresAt.IsZero() && now.After(ref.ExpiresAt) {
			expired = append(expired, id)
		}
	}
	r.mu.Unlock()

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

func (r *MemoryRepository) delete(ctx context.Context, id string) error {
	r.mu.Lock()
	ref, ok := r.refs[id]
	if ok {
		delete(r.refs, id)
		delete(r.inlineData, id)
	}
	r.mu.Unlock()
	if !ok {
		return nil
	}
	if _, inline := r.inlineData[id]; !inline && ref.R2Key != "" {
		if err := r.store.Delete(ctx, ref.R2Key); err != nil {
			r.logger.Warn("failed to delete artifact from store", "id", id, "error", err)
		}
	}
	return nil
}

// tenantObjectKey builds the tenant+kind-prefixed key enforcing
// uniqueness of r2_key per tenant+kind.
func tenantObjectKey(tenantUUID, kind, id string) string {
	if kind == "" {
		kind = "unknown"
	}
	return path.Join(tenantUUID, kind, id)
}

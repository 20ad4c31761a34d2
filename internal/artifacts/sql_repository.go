package artifacts

import (
	"bytes"
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/aishacrm/orchestrator-core/internal/apperr"
)

// SQLRepository implements Repository using a SQL database for metadata
// storage and a Store backend for blob data. Schema:
//
//	CREATE TABLE artifacts (
//	  id TEXT PRIMARY KEY,
//	  tenant_id TEXT NOT NULL,
//	  kind TEXT NOT NULL,
//	  entity_type TEXT,
//	  entity_id TEXT,
//	  r2_key TEXT NOT NULL,
//	  sha256 TEXT NOT NULL,
//	  size_bytes BIGINT NOT NULL,
//	  mime_type TEXT,
//	  filename TEXT,
//	  ttl_seconds INT,
//	  created_at TIMESTAMPTZ NOT NULL,
//	  expires_at TIMESTAMPTZ,
//	  inline_data BYTEA
//	);
type SQLRepository struct {
	db     *sql.DB
	store  Store
	logger *slog.Logger

	stmtInsert       *sql.Stmt
	stmtGet          *sql.Stmt
	stmtPruneExpired *sql.Stmt
}

// NewSQLRepository creates a repository backed by db and store.
func NewSQLRepository(db *sql.DB, store Store, logger *slog.Logger) (*SQLRepository, error) {
	if logger == nil {
		logger = slog.Default()
	}
	repo := &SQLRepository{db: db, store: store, logger: logger}
	if err := repo.prepareStatements(); err != nil {
		return nil, fmt.Errorf("prepare statements: %w", err)
	}
	return repo, nil
}

func (r *SQLRepository) prepareStatements() error {
	var err error
	if r.stmtInsert, err = r.db.Prepare(`
		INSERT INTO artifacts (id, tenant_id, kind, entity_type, entity_id, r2_key, sha256, size_bytes, mime_type, filename, ttl_seconds, created_at, expires_at, inline_data)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`); err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	if r.stmtGet, err = r.db.Prepare(`
		SELECT id, tenant_id, kind, entity_type, entity_id, r2_key, sha256, size_bytes, mime_type, filename, ttl_seconds, created_at, expires_at, inline_data
		FROM artifacts WHERE id = $1
	`); err != nil {
		return fmt.Errorf("prepare get: %w", err)
	}
	if r.stmtPruneExpired, err = r.db.Prepare(`
		DELETE FROM artifacts WHERE expires_at IS NOT NULL AND expires_at < $1
		RETURNING id, r2_key, inline_data IS NOT NULL
	`); err != nil {
		return fmt.Errorf("prepare prune: %w", err)
	}
	return nil
}

// Put implements Repository.
func (r *SQLRepository) Put(ctx context.Context, tenantUUID, kind, entityType, entityID string, payload []byte, opts PutOptions) (*ArtifactRef, error) {
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

	var inline []byte
	if int64(len(payload)) < MaxInlineDataBytes {
		inline = payload
	} else {
		if _, err := r.store.Put(ctx, ref.R2Key, bytes.NewReader(payload), opts); err != nil {
			return nil, fmt.Errorf("store artifact: %w", err)
		}
	}

	_, err := r.stmtInsert.ExecContext(ctx,
		ref.ID, ref.TenantUUID, ref.Kind, nullable(ref.EntityType), nullable(ref.EntityID),
		ref.R2Key, ref.SHA256, ref.SizeBytes, nullable(ref.MimeType), nullable(ref.Filename),
		ref.TTLSeconds, ref.CreatedAt, ref.ExpiresAt, inline,
	)
	if err != nil {
		if inline == nil {
			_ = r.store.Delete(ctx, ref.R2Key)
		}
		return nil, fmt.Errorf("insert artifact metadata: %w", err)
	}

	r.logger.Info("artifact stored", "id", ref.ID, "kind", kind, "tenant", tenantUUID, "size", ref.SizeBytes)
	return ref, nil
}

// Get implements Repository, gated by tenant equality.
func (r *SQLRepository) Get(ctx context.Context, id, tenantUUID string) (*ArtifactRef, io.ReadCloser, error) {
	var (
		ref                              ArtifactRef
		entityType, entityID             sql.NullString
		mimeType, filename               sql.NullString
		expiresAt                        sql.NullTime
		inline                           []byte
	)
	err := r.stmtGet.QueryRowContext(ctx, id).Scan(
		&ref.ID, &ref.TenantUUID, &ref.Kind, &entityType, &entityID,
		&ref.R2Key, &ref.SHA256, &ref.SizeBytes, &mimeType, &filename,
		&ref.TTLSeconds, &ref.CreatedAt, &expiresAt, &inline,
	)
	if err == sql.ErrNoRows {
		return nil, nil, apperr.NotFound("artifact not found: " + id)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("query artifact: %w", err)
	}
	if ref.TenantUUID != tenantUUID {
		return nil, nil, apperr.NotFound("artifact not found: " + id)
	}
	ref.EntityType = entityType.String
	ref.EntityID = entityID.String
	ref.MimeType = mimeType.String
	ref.Filename = filename.String
	if expiresAt.Valid {
		ref.ExpiresAt = expiresAt.Time
		if time.Now().After(expiresAt.Time) {
			_ = r.deleteRow(ctx, id, ref.R2Key, inline != nil)
			return nil, nil, apperr.NotFound("artifact expired: " + id)
		}
	}

	if inline != nil {
		return &ref, io.NopCloser(bytes.NewReader(inline)), nil
	}
	data, err := r.store.Get(ctx, ref.R2Key)
	if err != nil {
		return nil, nil, fmt.Errorf("get artifact data: %w", err)
	}
	return &ref, data, nil
}

// List implements Repository, newest first, tenant-scoped.
func (r *SQLRepository) List(ctx context.Context, filter Filter) ([]*ArtifactRef, error) {
	if filter.TenantUUID == "" {
		return nil, apperr.ValidationError("tenant_id is required")
	}

	query := `
		SELECT id, tenant_id, kind, entity_type, entity_id, r2_key, sha256, size_bytes, mime_type, filename, ttl_seconds, created_at, expires_at
		FROM artifacts
		WHERE tenant_id = $1 AND (expires_at IS NULL OR expires_at > $2)
	`
	args := []interface{}{filter.TenantUUID, time.Now()}
	argIdx := 3

	if filter.Kind != "" {
		query += fmt.Sprintf(" AND kind = $%d", argIdx)
		args = append(args, filter.Kind)
		argIdx++
	}
	if filter.EntityID != "" {
		query += fmt.Sprintf(" AND entity_id = $%d", argIdx)
		args = append(args, filter.EntityID)
		argIdx++
	}
	if !filter.CreatedAfter.IsZero() {
		query += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, filter.CreatedAfter)
		argIdx++
	}
	if !filter.CreatedBefore.IsZero() {
		query += fmt.Sprintf(" AND created_at <= $%d", argIdx)
		args = append(args, filter.CreatedBefore)
		argIdx++
	}

	query += " ORDER BY created_at DESC"

	limit := filter.Limit
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	query += fmt.Sprintf(" LIMIT %d", limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query artifacts: %w", err)
	}
	defer rows.Close()

	var results []*ArtifactRef
	for rows.Next() {
		var (
			ref                   ArtifactRef
			entityType, entityID  sql.NullString
			mimeType, filename    sql.NullString
			expiresAt             sql.NullTime
		)
		if err := rows.Scan(&ref.ID, &ref.TenantUUID, &ref.Kind, &entityType, &entityID,
			&ref.R2Key, &ref.SHA256, &ref.SizeBytes, &mimeType, &filename,
			&ref.TTLSeconds, &ref.CreatedAt, &expiresAt); err != nil {
			return nil, fmt.Errorf("scan artifact: %w", err)
		}
		ref.EntityType = entityType.String
		ref.EntityID = entityID.String
		ref.MimeType = mimeType.String
		ref.Filename = filename.String
		if expiresAt.Valid {
			ref.ExpiresAt = expiresAt.Time
		}
		results = append(results, &ref)
	}
	return results, rows.Err()
}

// PruneExpired implements Repository.
func (r *SQLRepository) PruneExpired(ctx context.Context) (int, error) {
	rows, err := r.stmtPruneExpired.QueryContext(ctx, time.Now())
	if err != nil {
		return 0, fmt.Errorf("prune expired artifacts: %w", err)
	}
	defer rows.Close()

	count := 0
	for rows.Next() {
		var id, r2Key string
		var hadInline bool
		if err := rows.Scan(&id, &r2Key, &hadInline); err != nil {
			continue
		}
		if !hadInline && r2Key != "" {
			if err := r.store.Delete(ctx, r2Key); err != nil {
				r.logger.Warn("failed to delete expired artifact from store", "id", id, "error", err)
			}
		}
		count++
	}
	if count > 0 {
		r.logger.Info("pruned expired artifacts", "count", count)
	}
	return count, rows.Err()
}

func (r *SQLRepository) deleteRow(ctx context.Context, id, r2Key string, hadInline bool) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM artifacts WHERE id = $1", id); err != nil {
		return err
	}
	if !hadInline && r2Key != "" {
		return r.store.Delete(ctx, r2Key)
	}
	return nil
}

// Close releases the prepared statements.
func (r *SQLRepository) Close() error {
	var errs []error
	for _, stmt := range []*sql.Stmt{r.stmtInsert, r.stmtGet, r.stmtPruneExpired} {
		if stmt != nil {
			if err := stmt.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("close statements: %v", errs)
	}
	return nil
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

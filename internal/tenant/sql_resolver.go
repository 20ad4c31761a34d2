package tenant

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// SQLResolver resolves tenants against a `tenants` table:
//
//	CREATE TABLE tenants (
//	  uuid TEXT PRIMARY KEY,
//	  slug TEXT UNIQUE NOT NULL,
//	  name TEXT NOT NULL
//	);
//
// Uses prepared, placeholder-parameterized statements, matching the
// donor's artifact SQL repository style.
type SQLResolver struct {
	db         *sql.DB
	systemUUID string

	stmtByUUID *sql.Stmt
	stmtBySlug *sql.Stmt
}

// NewSQLResolver prepares the resolver's statements against db.
func NewSQLResolver(db *sql.DB, systemUUID string) (*SQLResolver, error) {
	r := &SQLResolver{db: db, systemUUID: systemUUID}
	var err error
	if r.stmtByUUID, err = db.Prepare(`SELECT uuid, slug, name FROM tenants WHERE uuid = $1`); err != nil {
		return nil, fmt.Errorf("prepare tenant-by-uuid: %w", err)
	}
	if r.stmtBySlug, err = db.Prepare(`SELECT uuid, slug, name FROM tenants WHERE slug = $1`); err != nil {
		return nil, fmt.Errorf("prepare tenant-by-slug: %w", err)
	}
	return r, nil
}

// Close releases the prepared statements.
func (r *SQLResolver) Close() error {
	var errs []error
	if err := r.stmtByUUID.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := r.stmtBySlug.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Resolve implements Resolver.
func (r *SQLResolver) Resolve(ctx context.Context, identifier string) (Tenant, error) {
	id := strings.TrimSpace(identifier)
	if id == "" {
		return Tenant{}, ErrNotFound
	}

	if strings.EqualFold(id, SystemIdentifier) {
		if r.systemUUID == "" {
			return Tenant{}, ErrNotFound
		}
		id = r.systemUUID
	}

	var stmt *sql.Stmt
	var source Source
	if _, err := uuid.Parse(id); err == nil {
		stmt, source = r.stmtByUUID, SourceUUID
	} else {
		stmt, source = r.stmtBySlug, SourceSlug
	}
	if strings.EqualFold(identifier, SystemIdentifier) {
		source = SourceSystem
	}

	var t Tenant
	row := stmt.QueryRowContext(ctx, id)
	if err := row.Scan(&t.UUID, &t.Slug, &t.Name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Tenant{}, ErrNotFound
		}
		return Tenant{}, fmt.Errorf("resolve tenant: %w", err)
	}
	t.Found = true
	t.Source = source
	return t, nil
}

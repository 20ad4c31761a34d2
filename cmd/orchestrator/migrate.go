package main

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
	"github.com/spf13/cobra"

	"github.com/aishacrm/orchestrator-core/internal/config"
)

// schema is the full set of DDL statements for the Postgres-backed
// tenant resolver (C1), goal store (C8), and artifact repository (C4),
// applied in dependency order: tenants before goals (goals.tenant_id has
// no FK but is conceptually scoped to a tenant row).
var schema = []string{
	`CREATE TABLE IF NOT EXISTS tenants (
		uuid TEXT PRIMARY KEY,
		slug TEXT UNIQUE NOT NULL,
		name TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS goals (
		conversation_id TEXT PRIMARY KEY,
		goal_id TEXT NOT NULL,
		goal_type TEXT NOT NULL,
		tenant_id TEXT NOT NULL,
		extracted_data JSONB NOT NULL,
		status TEXT NOT NULL,
		confirmation_message TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		expires_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS artifacts (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		entity_type TEXT,
		entity_id TEXT,
		r2_key TEXT NOT NULL,
		sha256 TEXT NOT NULL,
		size_bytes BIGINT NOT NULL,
		mime_type TEXT,
		filename TEXT,
		ttl_seconds INT,
		created_at TIMESTAMPTZ NOT NULL,
		expires_at TIMESTAMPTZ,
		inline_data BYTEA
	)`,
	`CREATE INDEX IF NOT EXISTS idx_artifacts_tenant_kind ON artifacts (tenant_id, kind)`,
	`CREATE INDEX IF NOT EXISTS idx_artifacts_tenant_entity ON artifacts (tenant_id, entity_id)`,
}

func buildMigrateCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or report schema migrations for the Postgres-backed stores",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Create the tenants, goals, and artifacts tables if they don't exist",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrateUp(cmd, configPath)
		},
	}
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Report which migration tables already exist",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrateStatus(cmd, configPath)
		},
	}

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	cmd.AddCommand(upCmd, statusCmd)
	return cmd
}

func runMigrateUp(cmd *cobra.Command, configPath string) error {
	db, err := openMigrateDB(cmd, configPath)
	if err != nil {
		return err
	}
	defer db.Close()

	out := cmd.OutOrStdout()
	for _, stmt := range schema {
		if _, err := db.ExecContext(cmd.Context(), stmt); err != nil {
			return fmt.Errorf("apply migration: %w", err)
		}
	}
	fmt.Fprintf(out, "Applied %d migration statements\n", len(schema))
	return nil
}

func runMigrateStatus(cmd *cobra.Command, configPath string) error {
	db, err := openMigrateDB(cmd, configPath)
	if err != nil {
		return err
	}
	defer db.Close()

	out := cmd.OutOrStdout()
	for _, table := range []string{"tenants", "goals", "artifacts"} {
		exists, err := tableExists(cmd.Context(), db, table)
		if err != nil {
			return fmt.Errorf("check table %s: %w", table, err)
		}
		status := "missing"
		if exists {
			status = "present"
		}
		fmt.Fprintf(out, "  %s: %s\n", table, status)
	}
	return nil
}

func openMigrateDB(cmd *cobra.Command, configPath string) (*sql.DB, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if cfg.Tenant.Driver != "postgres" || cfg.Tenant.DSN == "" {
		return nil, fmt.Errorf("migrate requires tenant.driver: postgres and a non-empty tenant.dsn")
	}
	db, err := sql.Open("postgres", cfg.Tenant.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.PingContext(cmd.Context()); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

func tableExists(ctx context.Context, db *sql.DB, table string) (bool, error) {
	var exists bool
	err := db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name = $1)`,
		table,
	).Scan(&exists)
	return exists, err
}

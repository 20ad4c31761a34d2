package main

import (
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/spf13/cobra"

	"github.com/aishacrm/orchestrator-core/internal/config"
)

// buildTenantCmd builds tenant management subcommands. These operate
// directly against the tenants table rather than through tenant.Resolver,
// since Resolver is a read-only lookup interface with no write method -
// matching the donor's pattern of a narrow runtime interface plus
// separate operator tooling for the writes that interface doesn't need.
func buildTenantCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "tenant",
		Short: "Manage tenant records in the postgres-backed tenant store",
	}
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")

	var slug, name, tenantUUID string
	addCmd := &cobra.Command{
		Use:   "add",
		Short: "Add a tenant record",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTenantAdd(cmd, configPath, slug, name, tenantUUID)
		},
	}
	addCmd.Flags().StringVar(&slug, "slug", "", "Unique human-readable tenant identifier")
	addCmd.Flags().StringVar(&name, "name", "", "Display name")
	addCmd.Flags().StringVar(&tenantUUID, "uuid", "", "Tenant UUID (generated if empty)")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List tenant records",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTenantList(cmd, configPath)
		},
	}

	rmCmd := &cobra.Command{
		Use:   "rm <uuid-or-slug>",
		Short: "Remove a tenant record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTenantRemove(cmd, configPath, args[0])
		},
	}

	cmd.AddCommand(addCmd, listCmd, rmCmd)
	return cmd
}

func openTenantDB(cmd *cobra.Command, configPath string) (*sql.DB, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if cfg.Tenant.Driver != "postgres" || cfg.Tenant.DSN == "" {
		return nil, fmt.Errorf("tenant commands require tenant.driver: postgres and a non-empty tenant.dsn")
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

func runTenantAdd(cmd *cobra.Command, configPath, slug, name, tenantUUID string) error {
	if slug == "" || name == "" {
		return fmt.Errorf("--slug and --name are required")
	}
	if tenantUUID == "" {
		tenantUUID = uuid.NewString()
	}

	db, err := openTenantDB(cmd, configPath)
	if err != nil {
		return err
	}
	defer db.Close()

	_, err = db.ExecContext(cmd.Context(),
		`INSERT INTO tenants (uuid, slug, name) VALUES ($1, $2, $3)`,
		tenantUUID, slug, name,
	)
	if err != nil {
		return fmt.Errorf("insert tenant: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Created tenant %s (slug=%s, name=%s)\n", tenantUUID, slug, name)
	return nil
}

func runTenantList(cmd *cobra.Command, configPath string) error {
	db, err := openTenantDB(cmd, configPath)
	if err != nil {
		return err
	}
	defer db.Close()

	rows, err := db.QueryContext(cmd.Context(), `SELECT uuid, slug, name FROM tenants ORDER BY slug`)
	if err != nil {
		return fmt.Errorf("list tenants: %w", err)
	}
	defer rows.Close()

	out := cmd.OutOrStdout()
	count := 0
	for rows.Next() {
		var tenantUUID, slug, name string
		if err := rows.Scan(&tenantUUID, &slug, &name); err != nil {
			return fmt.Errorf("scan tenant row: %w", err)
		}
		fmt.Fprintf(out, "%s  %-24s %s\n", tenantUUID, slug, name)
		count++
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate tenants: %w", err)
	}
	if count == 0 {
		fmt.Fprintln(out, "no tenants")
	}
	return nil
}

func runTenantRemove(cmd *cobra.Command, configPath, identifier string) error {
	db, err := openTenantDB(cmd, configPath)
	if err != nil {
		return err
	}
	defer db.Close()

	res, err := db.ExecContext(cmd.Context(),
		`DELETE FROM tenants WHERE uuid = $1 OR slug = $1`, identifier,
	)
	if err != nil {
		return fmt.Errorf("delete tenant: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("no tenant matched %q", identifier)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Removed tenant %s\n", identifier)
	return nil
}

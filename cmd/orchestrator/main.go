// Package main provides the CLI entry point for the orchestrator core.
//
// orchestrator-core sits between CRM chat channels (Slack, Discord,
// Telegram) and an LLM provider, routing turns through a goal state
// machine, executing tenant-scoped CRM tools, and emitting telemetry
// independent of whether the bus is reachable.
//
// # Basic Usage
//
// Start the server:
//
//	orchestrator serve --config orchestrator.yaml
//
// Apply schema migrations to a Postgres-backed tenant/goal store:
//
//	orchestrator migrate up
//
// Check dependency health:
//
//	orchestrator doctor
//
// Manage tenant records:
//
//	orchestrator tenant add --slug acme --name "Acme Corp"
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	rootCmd := buildRootCmd()
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "orchestrator",
		Short: "orchestrator-core - AI orchestration core for a multi-tenant CRM assistant",
		Long: `orchestrator-core routes chat turns from Slack, Discord, and Telegram
through a goal state machine, a tenant-scoped tool executor, and an LLM
adapter, with telemetry and artifact offload independent of the request path.`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		buildServeCmd(),
		buildMigrateCmd(),
		buildDoctorCmd(),
		buildTenantCmd(),
	)

	return rootCmd
}

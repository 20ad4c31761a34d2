package main

import (
	"database/sql"
	"fmt"
	"io"
	"strings"

	_ "github.com/lib/pq"
	"github.com/spf13/cobra"

	"github.com/aishacrm/orchestrator-core/internal/config"
)

func buildDoctorCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Validate configuration and report component reachability",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDoctor(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	return cmd
}

func runDoctor(cmd *cobra.Command, configPath string) error {
	out := cmd.OutOrStdout()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	fmt.Fprintln(out, "Config OK")

	checkTenantDriver(cmd, out, cfg)
	checkArtifactBackend(out, cfg)
	checkLLMCredentials(out, cfg)
	checkChannels(out, cfg)

	if cfg.Telemetry.Enabled && strings.TrimSpace(cfg.Telemetry.LogPath) == "" {
		fmt.Fprintln(out, "  - warning: telemetry.enabled is true but telemetry.log_path is empty")
	}

	return nil
}

func checkTenantDriver(cmd *cobra.Command, out io.Writer, cfg *config.Config) {
	switch cfg.Tenant.Driver {
	case "", "memory":
		fmt.Fprintln(out, "Tenant driver: memory (no persistence across restarts)")
	case "postgres":
		if cfg.Tenant.DSN == "" {
			fmt.Fprintln(out, "Tenant driver: postgres - FAIL (tenant.dsn is empty)")
			return
		}
		db, err := sql.Open("postgres", cfg.Tenant.DSN)
		if err != nil {
			fmt.Fprintf(out, "Tenant driver: postgres - FAIL (%v)\n", err)
			return
		}
		defer db.Close()
		if err := db.PingContext(cmd.Context()); err != nil {
			fmt.Fprintf(out, "Tenant driver: postgres - FAIL (ping: %v)\n", err)
			return
		}
		fmt.Fprintln(out, "Tenant driver: postgres - OK")
	default:
		fmt.Fprintf(out, "Tenant driver: %q - unrecognized, falls back to memory at runtime\n", cfg.Tenant.Driver)
	}
}

func checkArtifactBackend(out io.Writer, cfg *config.Config) {
	switch cfg.Artifacts.Backend {
	case "", "local":
		path := cfg.Artifacts.LocalPath
		if path == "" {
			path = "./artifacts"
		}
		fmt.Fprintf(out, "Artifact backend: local (%s)\n", path)
	case "s3", "minio":
		if cfg.Artifacts.S3Bucket == "" {
			fmt.Fprintln(out, "Artifact backend: s3 - FAIL (artifacts.s3_bucket is empty)")
			return
		}
		fmt.Fprintf(out, "Artifact backend: %s (bucket=%s)\n", cfg.Artifacts.Backend, cfg.Artifacts.S3Bucket)
	default:
		fmt.Fprintf(out, "Artifact backend: %q - unrecognized\n", cfg.Artifacts.Backend)
	}
}

func checkLLMCredentials(out io.Writer, cfg *config.Config) {
	provider := cfg.LLM.DefaultProvider
	if provider == "" {
		provider = "anthropic"
	}
	var apiKey string
	switch provider {
	case "openai":
		apiKey = cfg.LLM.OpenAI.APIKey
	case "google":
		apiKey = cfg.LLM.Google.APIKey
	default:
		apiKey = cfg.LLM.Anthropic.APIKey
	}
	if strings.TrimSpace(apiKey) == "" {
		fmt.Fprintf(out, "LLM provider: %s - FAIL (no API key configured)\n", provider)
		return
	}
	fmt.Fprintf(out, "LLM provider: %s - OK\n", provider)
}

func checkChannels(out io.Writer, cfg *config.Config) {
	configured := 0
	if cfg.Channels.Slack.BotToken != "" {
		configured++
		fmt.Fprintln(out, "Channel: slack configured")
	}
	if cfg.Channels.Discord.BotToken != "" {
		configured++
		fmt.Fprintln(out, "Channel: discord configured")
	}
	if cfg.Channels.Telegram.BotToken != "" {
		configured++
		fmt.Fprintln(out, "Channel: telegram configured")
	}
	if configured == 0 {
		fmt.Fprintln(out, "Channels: none configured (HTTP /ai/chat is the only entry point)")
	}
}

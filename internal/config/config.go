// Package config loads orchestrator-core's runtime configuration: a YAML
// file layered with environment variable overrides, the same two-stage
// shape as the donor's own config loader (internal/config/loader.go),
// narrowed to the fields this service's components (C1-C12, A1-A6)
// actually read.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure.
type Config struct {
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Observer  ObserverConfig  `yaml:"observer"`
	Bus       BusConfig       `yaml:"bus"`
	Auth      AuthConfig      `yaml:"auth"`
	Goals     GoalsConfig     `yaml:"goals"`
	Tools     ToolsConfig     `yaml:"tools"`
	Tenant    TenantConfig    `yaml:"tenant"`
	Artifacts ArtifactConfig  `yaml:"artifacts"`
	Cache     CacheConfig     `yaml:"cache"`
	LLM       LLMConfig       `yaml:"llm"`
	Channels  ChannelsConfig  `yaml:"channels"`
}

// Default returns a Config with every documented default applied (see
// spec.md §6's configuration table).
func Default() Config {
	return Config{
		Telemetry: TelemetryConfig{Enabled: false, LogPath: "/var/log/orchestrator/telemetry.ndjson"},
		Observer:  ObserverConfig{MaxEventsInMemory: 5000},
		Bus:       BusConfig{Type: "inprocess"},
		Auth:      AuthConfig{TokenTTL: 5 * time.Minute},
		Goals:     GoalsConfig{TTLSeconds: 900},
		Tools:     ToolsConfig{DefaultTTLSeconds: 90, TurnToolCallBudget: 8},
		Tenant:    TenantConfig{Driver: "memory"},
		Artifacts: ArtifactConfig{Backend: "local", LocalPath: "./artifacts"},
		Cache:     CacheConfig{},
	}
}

// Load reads path (if non-empty and present) as YAML over the defaults,
// then applies environment variable overrides. A missing path is not an
// error: a deployment may run entirely off environment variables.
func Load(path string) (*Config, error) {
	cfg := Default()

	if strings.TrimSpace(path) != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("config: read %s: %w", path, err)
			}
		} else {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("config: parse %s: %w", path, err)
			}
		}
	}

	applyEnvOverrides(&cfg)
	return &cfg, nil
}

// applyEnvOverrides layers environment variables over cfg per spec.md
// §6's configuration table. Unset variables leave the existing (default
// or file-loaded) value untouched.
func applyEnvOverrides(cfg *Config) {
	if v, ok := lookupBool("TELEMETRY_ENABLED"); ok {
		cfg.Telemetry.Enabled = v
	}
	if v, ok := os.LookupEnv("TELEMETRY_LOG_PATH"); ok {
		cfg.Telemetry.LogPath = v
	}
	if v, ok := os.LookupEnv("BUS_TYPE"); ok {
		cfg.Bus.Type = v
	}
	if v, ok := os.LookupEnv("BUS_BROKERS"); ok {
		cfg.Bus.Brokers = splitCommaList(v)
	}
	if v, ok := os.LookupEnv("BUS_URLS"); ok {
		cfg.Bus.URLs = splitCommaList(v)
	}
	if v, ok := lookupInt("MAX_EVENTS_IN_MEMORY"); ok {
		cfg.Observer.MaxEventsInMemory = v
	}
	if v, ok := os.LookupEnv("INTERNAL_JWT_SECRET"); ok {
		cfg.Auth.InternalJWTSecret = v
	}
	if v, ok := lookupInt("GOAL_TTL_SECONDS"); ok {
		cfg.Goals.TTLSeconds = v
	}
	if v, ok := lookupInt("TOOL_DEFAULT_TTL_SECONDS"); ok {
		cfg.Tools.DefaultTTLSeconds = v
	}
	if v, ok := lookupInt("TURN_TOOL_CALL_BUDGET"); ok {
		cfg.Tools.TurnToolCallBudget = v
	}
	if v, ok := os.LookupEnv("TENANT_DRIVER"); ok {
		cfg.Tenant.Driver = v
	}
	if v, ok := os.LookupEnv("TENANT_DSN"); ok {
		cfg.Tenant.DSN = v
	}
	if v, ok := os.LookupEnv("ARTIFACT_BACKEND"); ok {
		cfg.Artifacts.Backend = v
	}
	if v, ok := os.LookupEnv("ARTIFACT_S3_BUCKET"); ok {
		cfg.Artifacts.S3Bucket = v
	}
	if v, ok := os.LookupEnv("SLACK_BOT_TOKEN"); ok {
		cfg.Channels.Slack.BotToken = v
	}
	if v, ok := os.LookupEnv("SLACK_SIGNING_SECRET"); ok {
		cfg.Channels.Slack.SigningSecret = v
	}
	if v, ok := os.LookupEnv("DISCORD_BOT_TOKEN"); ok {
		cfg.Channels.Discord.BotToken = v
	}
	if v, ok := os.LookupEnv("TELEGRAM_BOT_TOKEN"); ok {
		cfg.Channels.Telegram.BotToken = v
	}
}

func lookupBool(key string) (bool, bool) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return false, false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return v, true
}

func lookupInt(key string) (int, bool) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return 0, false
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return v, true
}

func splitCommaList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

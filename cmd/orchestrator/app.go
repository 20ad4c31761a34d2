package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/lib/pq"

	"github.com/aishacrm/orchestrator-core/internal/agent"
	"github.com/aishacrm/orchestrator-core/internal/agent/providers"
	"github.com/aishacrm/orchestrator-core/internal/artifacts"
	"github.com/aishacrm/orchestrator-core/internal/auth"
	"github.com/aishacrm/orchestrator-core/internal/bus"
	"github.com/aishacrm/orchestrator-core/internal/cache"
	"github.com/aishacrm/orchestrator-core/internal/channels"
	"github.com/aishacrm/orchestrator-core/internal/config"
	"github.com/aishacrm/orchestrator-core/internal/gateway"
	"github.com/aishacrm/orchestrator-core/internal/goals"
	"github.com/aishacrm/orchestrator-core/internal/llm"
	"github.com/aishacrm/orchestrator-core/internal/observability"
	"github.com/aishacrm/orchestrator-core/internal/observability/tail"
	"github.com/aishacrm/orchestrator-core/internal/observer"
	"github.com/aishacrm/orchestrator-core/internal/tenant"
	"github.com/aishacrm/orchestrator-core/internal/tools"
)

// app is the fully wired set of components a running orchestrator needs,
// shared by serve, doctor, and tenant.
type app struct {
	cfg    *config.Config
	logger *slog.Logger

	db *sql.DB

	tenants   tenant.Resolver
	minter    *auth.InternalTokenMinter
	cacheImpl cache.Layer
	artifacts artifacts.Repository
	emitter   *observability.Emitter
	bus       bus.Bus
	sidecar   *tail.Sidecar
	observer  *observer.Observer
	goalStore goals.Store
	registry  *tools.Registry
	executor  *tools.Executor
	router    *gateway.Router
	bindings  channels.BindingStore
}

// buildApp wires every component DESIGN.md grounds C1-C12/A5 on from cfg.
func buildApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	if cfg.Tenant.Driver == "postgres" && cfg.Tenant.DSN != "" {
		db, err := sql.Open("postgres", cfg.Tenant.DSN)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		a.db = db
	}

	tenants, err := buildTenantResolver(cfg, a.db)
	if err != nil {
		return nil, fmt.Errorf("build tenant resolver: %w", err)
	}
	a.tenants = tenants

	a.minter = auth.NewInternalTokenMinter(cfg.Auth.InternalJWTSecret)
	a.cacheImpl = cache.New()

	artifactRepo, err := buildArtifactRepository(ctx, cfg, logger, a.db)
	if err != nil {
		return nil, fmt.Errorf("build artifact repository: %w", err)
	}
	a.artifacts = artifactRepo

	emitter, err := observability.NewEmitter(observability.TelemetryConfig{
		Enabled:  cfg.Telemetry.Enabled,
		SinkPath: cfg.Telemetry.LogPath,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("build telemetry emitter: %w", err)
	}
	a.emitter = emitter

	busImpl, err := bus.New(bus.Config{Type: cfg.Bus.Type}, logger)
	if err != nil {
		return nil, fmt.Errorf("build bus: %w", err)
	}
	a.bus = busImpl

	if cfg.Telemetry.Enabled {
		a.sidecar = tail.New(tail.Config{
			SinkPath: cfg.Telemetry.LogPath,
			Topic:    "telemetry",
		}, busImpl, logger)
	}

	a.observer = observer.New(cfg.Observer.MaxEventsInMemory, logger)

	goalStore, err := buildGoalStore(cfg, a.db)
	if err != nil {
		return nil, fmt.Errorf("build goal store: %w", err)
	}
	a.goalStore = goalStore

	a.registry = tools.NewRegistry()
	registerCRMTools(a.registry)

	a.executor = tools.NewExecutor(tools.ExecutorConfig{
		Registry:  a.registry,
		Cache:     a.cacheImpl,
		Artifacts: a.artifacts,
		Minter:    a.minter,
		Emitter:   a.emitter,
	})

	adapter, err := buildLLMAdapter(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("build llm adapter: %w", err)
	}

	a.router = gateway.NewRouter(gateway.RouterConfig{
		Goals:        a.goalStore,
		Registry:     a.registry,
		Executor:     a.executor,
		LLM:          adapter,
		Emitter:      a.emitter,
		Logger:       logger,
		DefaultModel: cfg.LLM.Anthropic.Model,
		LookupTool:   "list_leads",
	})

	a.bindings = channels.NewStaticBindingStore(a.tenants, map[channels.ChatChannelID]map[string]string{
		channels.ChannelSlack:    cfg.Channels.Slack.TenantBindings,
		channels.ChannelDiscord:  cfg.Channels.Discord.TenantBindings,
		channels.ChannelTelegram: cfg.Channels.Telegram.TenantBindings,
	})

	return a, nil
}

func buildTenantResolver(cfg *config.Config, db *sql.DB) (tenant.Resolver, error) {
	if cfg.Tenant.Driver == "postgres" && db != nil {
		return tenant.NewSQLResolver(db, tenant.SystemIdentifier)
	}
	return tenant.NewMemoryResolver(nil, tenant.SystemIdentifier), nil
}

func buildGoalStore(cfg *config.Config, db *sql.DB) (goals.Store, error) {
	if cfg.Tenant.Driver == "postgres" && db != nil {
		return goals.NewSQLStore(db)
	}
	return goals.NewMemoryStore(), nil
}

func buildArtifactRepository(ctx context.Context, cfg *config.Config, logger *slog.Logger, db *sql.DB) (artifacts.Repository, error) {
	var store artifacts.Store
	switch cfg.Artifacts.Backend {
	case "s3", "minio":
		s3Store, err := artifacts.NewS3Store(ctx, &artifacts.S3StoreConfig{
			Bucket:          cfg.Artifacts.S3Bucket,
			Endpoint:        cfg.Artifacts.S3Endpoint,
			Region:          cfg.Artifacts.S3Region,
			Prefix:          cfg.Artifacts.S3Prefix,
			AccessKeyID:     cfg.Artifacts.S3AccessKeyID,
			SecretAccessKey: cfg.Artifacts.S3SecretAccessKey,
			UsePathStyle:    cfg.Artifacts.S3UsePathStyle || cfg.Artifacts.Backend == "minio",
		})
		if err != nil {
			return nil, err
		}
		store = s3Store
	default:
		localStore, err := artifacts.NewLocalStore(cfg.Artifacts.LocalPath)
		if err != nil {
			return nil, err
		}
		store = localStore
	}

	// Metadata lives in postgres alongside tenants and goals when
	// tenant.driver is postgres, so artifact records survive a restart;
	// otherwise metadata stays in the in-process memory index.
	if cfg.Tenant.Driver == "postgres" && db != nil {
		return artifacts.NewSQLRepository(db, store, logger)
	}
	return artifacts.NewMemoryRepository(store, logger), nil
}

func buildLLMAdapter(cfg *config.Config, logger *slog.Logger) (*llm.Adapter, error) {
	provider, err := buildLLMProvider(cfg)
	if err != nil {
		return nil, err
	}
	return llm.NewAdapter(provider, llm.Config{
		Timeout:       60 * time.Second,
		MaxRetries:    3,
		RetryBaseWait: time.Second,
	}), nil
}

func buildLLMProvider(cfg *config.Config) (agent.LLMProvider, error) {
	switch cfg.LLM.DefaultProvider {
	case "openai":
		return providers.NewOpenAIProvider(cfg.LLM.OpenAI.APIKey), nil
	case "google":
		return providers.NewGoogleProvider(providers.GoogleConfig{APIKey: cfg.LLM.Google.APIKey})
	default:
		return providers.NewAnthropicProvider(providers.AnthropicConfig{
			APIKey:  cfg.LLM.Anthropic.APIKey,
			BaseURL: cfg.LLM.Anthropic.BaseURL,
		})
	}
}

func (a *app) Close() error {
	if a.bus != nil {
		_ = a.bus.Close()
	}
	if a.db != nil {
		return a.db.Close()
	}
	return nil
}

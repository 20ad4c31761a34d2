package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/aishacrm/orchestrator-core/internal/auth"
	"github.com/aishacrm/orchestrator-core/internal/channels"
	"github.com/aishacrm/orchestrator-core/internal/channels/discord"
	"github.com/aishacrm/orchestrator-core/internal/channels/slack"
	"github.com/aishacrm/orchestrator-core/internal/channels/telegram"
	"github.com/aishacrm/orchestrator-core/internal/config"
	"github.com/aishacrm/orchestrator-core/internal/gateway"
	"github.com/aishacrm/orchestrator-core/pkg/models"
)

func buildServeCmd() *cobra.Command {
	var (
		configPath   string
		addr         string
		observerAddr string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the orchestrator HTTP server and channel adapters",
		Long: `Start the orchestrator HTTP server (/ai/chat, /storage/artifacts), the
telemetry observer (/events, /sse, /clear), and every configured channel
adapter (Slack, Discord, Telegram), wiring each adapter's inbound
messages into the chat router.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath, addr, observerAddr)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	cmd.Flags().StringVar(&addr, "addr", ":8080", "Address for the caller-facing HTTP API")
	cmd.Flags().StringVar(&observerAddr, "observer-addr", ":8081", "Address for the telemetry observer")

	return cmd
}

func runServe(ctx context.Context, configPath, addr, observerAddr string) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := slog.Default()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	a, err := buildApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	if a.sidecar != nil {
		go a.sidecar.Run(ctx)
	}
	if err := a.observer.Subscribe(ctx, a.bus, "telemetry"); err != nil {
		logger.Warn("observer bus subscribe failed; serving buffer/manual events only", "error", err)
	}
	defer a.observer.Close()

	apiServer := &http.Server{Addr: addr, Handler: newHTTPServer(a.router, a.artifacts, a.tenants).Mux()}
	observerServer := &http.Server{Addr: observerAddr, Handler: a.observer.Mux()}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("starting caller-facing HTTP API", "addr", addr)
		if err := apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	go func() {
		logger.Info("starting telemetry observer", "addr", observerAddr)
		if err := observerServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	stopChannels := startChannelAdapters(ctx, cfg, a.router, a.bindings, logger)
	defer stopChannels()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		logger.Error("server error", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = apiServer.Shutdown(shutdownCtx)
	_ = observerServer.Shutdown(shutdownCtx)
	return nil
}

// startChannelAdapters starts every channel with credentials configured
// and bridges each adapter's inbound Messages() into router.HandleTurn,
// sending the reply back out over the same adapter. Returns a stop func.
func startChannelAdapters(ctx context.Context, cfg *config.Config, router *gateway.Router, bindings channels.BindingStore, logger *slog.Logger) func() {
	var stops []func()

	if cfg.Channels.Slack.BotToken != "" {
		adapter := slack.NewAdapter(slack.Config{
			BotToken: cfg.Channels.Slack.BotToken,
			AppToken: cfg.Channels.Slack.AppToken,
		})
		if err := adapter.Start(ctx); err != nil {
			logger.Error("slack adapter failed to start", "error", err)
		} else {
			bridgeChannel(ctx, channels.ChannelSlack, adapter, router, bindings, logger)
			stops = append(stops, func() { _ = adapter.Stop(context.Background()) })
		}
	}

	if cfg.Channels.Discord.BotToken != "" {
		adapter, err := discord.NewAdapter(discord.Config{Token: cfg.Channels.Discord.BotToken})
		if err != nil {
			logger.Error("discord adapter failed to build", "error", err)
		} else if err := adapter.Start(ctx); err != nil {
			logger.Error("discord adapter failed to start", "error", err)
		} else {
			bridgeChannel(ctx, channels.ChannelDiscord, adapter, router, bindings, logger)
			stops = append(stops, func() { _ = adapter.Stop(context.Background()) })
		}
	}

	if cfg.Channels.Telegram.BotToken != "" {
		adapter, err := telegram.NewAdapter(telegram.Config{Token: cfg.Channels.Telegram.BotToken})
		if err != nil {
			logger.Error("telegram adapter failed to build", "error", err)
		} else if err := adapter.Start(ctx); err != nil {
			logger.Error("telegram adapter failed to start", "error", err)
		} else {
			bridgeChannel(ctx, channels.ChannelTelegram, adapter, router, bindings, logger)
			stops = append(stops, func() { _ = adapter.Stop(context.Background()) })
		}
	}

	return func() {
		for _, stop := range stops {
			stop()
		}
	}
}

// channelAdapter is the common surface every channel package's Adapter
// satisfies; used here only to bridge inbound messages to the router.
type channelAdapter interface {
	Messages() <-chan *models.Message
	Send(ctx context.Context, msg *models.Message) error
}

// workspaceID extracts the channel-native workspace/guild/chat ID each
// adapter stamps into Metadata, which is the unit channel tenant bindings
// are configured against (one Slack workspace or Discord guild or
// Telegram chat per tenant, not one thread per tenant).
func workspaceID(channel channels.ChatChannelID, msg *models.Message) string {
	var key string
	switch channel {
	case channels.ChannelSlack:
		key = "slack_channel"
	case channels.ChannelDiscord:
		key = "discord_channel_id"
	case channels.ChannelTelegram:
		key = "chat_id"
	}
	v, _ := msg.Metadata[key].(string)
	if v != "" {
		return v
	}
	return fmt.Sprintf("%v", msg.Metadata[key])
}

// bridgeChannel resolves each inbound message's workspace/guild/chat ID
// to a tenant via bindings before handing it to the router, per the
// channel-to-tenant mapping being total and fail-closed: an unmapped
// workspace/guild/chat never falls through to a guessed tenant, it's
// simply dropped with a logged error. The message's own SessionID (a
// per-thread/DM key the adapter already derives) is used directly as
// the conversation ID.
func bridgeChannel(ctx context.Context, channel channels.ChatChannelID, adapter channelAdapter, router *gateway.Router, bindings channels.BindingStore, logger *slog.Logger) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-adapter.Messages():
				if !ok {
					return
				}
				binding, err := bindings.Resolve(ctx, channel, workspaceID(channel, msg))
				if err != nil {
					logger.Error("channel message dropped: no tenant binding", "channel", channel, "error", err)
					continue
				}

				resp, err := router.HandleTurn(ctx, gateway.ChatTurnRequest{
					ConversationID: msg.SessionID,
					TenantID:       binding.TenantUUID,
					UserText:       msg.Content,
					Caller:         auth.CallerIdentity{TenantUUID: binding.TenantUUID}.WithDefaultedRole(),
				})
				if err != nil {
					logger.Error("channel turn failed", "channel", channel, "error", err)
					continue
				}
				reply := &models.Message{
					SessionID: msg.SessionID,
					Role:      models.RoleAssistant,
					Content:   resp.Reply,
				}
				if err := adapter.Send(ctx, reply); err != nil {
					logger.Error("channel send failed", "channel", channel, "error", err)
				}
			}
		}
	}()
}

package config

// ChannelsConfig configures the Slack, Discord, and Telegram adapters that
// sit in front of C11's router.
type ChannelsConfig struct {
	Slack    SlackConfig    `yaml:"slack"`
	Discord  DiscordConfig  `yaml:"discord"`
	Telegram TelegramConfig `yaml:"telegram"`
}

// SlackConfig configures the Slack channel adapter. TenantBindings maps a
// Slack workspace (team) ID to the tenant slug or UUID it belongs to; an
// inbound message from an unmapped workspace is rejected rather than
// routed to a guessed tenant.
type SlackConfig struct {
	BotToken       string            `yaml:"bot_token"`
	SigningSecret  string            `yaml:"signing_secret"`
	AppToken       string            `yaml:"app_token"`
	TenantBindings map[string]string `yaml:"tenant_bindings"`
}

// DiscordConfig configures the Discord channel adapter. TenantBindings
// maps a guild ID to a tenant slug or UUID.
type DiscordConfig struct {
	BotToken       string            `yaml:"bot_token"`
	TenantBindings map[string]string `yaml:"tenant_bindings"`
}

// TelegramConfig configures the Telegram channel adapter. TenantBindings
// maps a chat ID to a tenant slug or UUID.
type TelegramConfig struct {
	BotToken       string            `yaml:"bot_token"`
	TenantBindings map[string]string `yaml:"tenant_bindings"`
}

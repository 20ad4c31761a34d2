package config

// ToolsConfig configures C9's fallback cache TTL and C11's per-turn tool
// call budget.
type ToolsConfig struct {
	DefaultTTLSeconds  int            `yaml:"default_ttl_seconds"`
	TurnToolCallBudget int            `yaml:"turn_tool_call_budget"`
	TTLOverrides       map[string]int `yaml:"ttl_overrides"`
}

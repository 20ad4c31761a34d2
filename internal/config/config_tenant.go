package config

// TenantConfig selects C1's resolver backend.
type TenantConfig struct {
	// Driver is "memory" or "postgres".
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// CacheConfig configures C3. Per-tool TTLs are set via ToolsConfig;
// this is reserved for cache-layer-wide knobs (none yet beyond defaults).
type CacheConfig struct{}

package config

// GoalsConfig configures C8's active-goal expiry.
type GoalsConfig struct {
	TTLSeconds int `yaml:"ttl_seconds"`
}

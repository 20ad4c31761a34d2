package config

import "time"

// AuthConfig configures C2's internal token minter.
type AuthConfig struct {
	InternalJWTSecret string        `yaml:"internal_jwt_secret"`
	TokenTTL          time.Duration `yaml:"token_ttl"`
}

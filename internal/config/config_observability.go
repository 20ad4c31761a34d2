package config

// TelemetryConfig is the master switch and sink path for C5 emission.
type TelemetryConfig struct {
	Enabled bool   `yaml:"enabled"`
	LogPath string `yaml:"log_path"`
}

// ObserverConfig sizes C7's in-memory ring buffer.
type ObserverConfig struct {
	MaxEventsInMemory int `yaml:"max_events_in_memory"`
}

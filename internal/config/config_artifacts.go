package config

import "time"

// ArtifactConfig configures C4's backend and retention.
type ArtifactConfig struct {
	// Backend is "local", "s3", or "minio".
	Backend string `yaml:"backend"`

	LocalPath string `yaml:"local_path"`

	S3Bucket          string `yaml:"s3_bucket"`
	S3Endpoint        string `yaml:"s3_endpoint"` // set for MinIO/R2-compatible endpoints
	S3Region          string `yaml:"s3_region"`
	S3Prefix          string `yaml:"s3_prefix"`
	S3AccessKeyID     string `yaml:"s3_access_key_id"`
	S3SecretAccessKey string `yaml:"s3_secret_access_key"`
	S3UsePathStyle    bool   `yaml:"s3_use_path_style"`

	TTLs          map[string]time.Duration `yaml:"ttls"`
	PruneInterval time.Duration            `yaml:"prune_interval"`
}

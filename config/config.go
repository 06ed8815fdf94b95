// Package config provides configuration management for sharefs.
// It handles loading and validating configuration from YAML files and environment variables.
package config

import "time"

// AppConfig represents the complete application configuration
type AppConfig struct {
	Server        ServerConfig        `koanf:"server"`
	Auth          AuthConfig          `koanf:"auth"`
	Log           LogConfig           `koanf:"log"`
	MetadataStore MetadataStoreConfig `koanf:"metadata_store"`
	Blob          BlobConfig          `koanf:"blob"`
	Shares        SharesConfig        `koanf:"shares"`
	Limits        LimitsConfig        `koanf:"limits"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	ListenAddr        string        `koanf:"listen_addr"`
	ExternalURL       string        `koanf:"external_url"`
	CertFile          string        `koanf:"cert_file"`
	KeyFile           string        `koanf:"key_file"`
	ReadTimeout       time.Duration `koanf:"read_timeout"`
	WriteTimeout      time.Duration `koanf:"write_timeout"`
	MetadataOpTimeout time.Duration `koanf:"metadata_op_timeout"`
}

// AuthConfig holds authentication configuration. APIKeys maps an API key to
// the principal id it authenticates; the identity provider proper is outside
// this system, static keys stand in for it.
type AuthConfig struct {
	APIKeys          map[string]string `koanf:"api_keys"`
	ShareTokenSecret string            `koanf:"share_token_secret"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// MetadataStoreConfig holds metadata store configuration
type MetadataStoreConfig struct {
	Type       string `koanf:"type"` // "sqlite" or "postgres"
	DSN        string `koanf:"dsn"`
	SQLitePath string `koanf:"sqlite_path"`
}

// BlobConfig holds blob storage configuration
type BlobConfig struct {
	Backend                string        `koanf:"backend"` // "s3" or "memory"
	S3AccessKey            string        `koanf:"s3_access_key"`
	S3SecretKey            string        `koanf:"s3_secret_key"`
	S3Region               string        `koanf:"s3_region"`
	S3BucketName           string        `koanf:"s3_bucket_name"`
	S3Endpoint             string        `koanf:"s3_endpoint"` // Custom S3 endpoint (e.g., for MinIO)
	S3ServerSideEncryption string        `koanf:"s3_server_side_encryption"`
	S3KMSKeyID             string        `koanf:"s3_kms_key_id"`
	PresignTTL             time.Duration `koanf:"presign_ttl"`
}

// SharesConfig holds share token service configuration
type SharesConfig struct {
	MaxTTL          time.Duration `koanf:"max_ttl"`
	SkewTolerance   time.Duration `koanf:"skew_tolerance"`
	CleanupInterval time.Duration `koanf:"cleanup_interval"`
}

// LimitsConfig holds request limits
type LimitsConfig struct {
	MaxUploadBytes    int64   `koanf:"max_upload_bytes"`
	ResolveRate       float64 `koanf:"resolve_rate"`  // anonymous resolutions per second
	ResolveBurst      int     `koanf:"resolve_burst"` // burst size for the rate limiter
	ListPageSizeLimit int     `koanf:"list_page_size_limit"`
}

package config

import "time"

// DefaultAppConfig returns an AppConfig struct with sensible default values
func DefaultAppConfig() AppConfig {
	return AppConfig{
		Server: ServerConfig{
			ListenAddr:        ":8443",
			ExternalURL:       "localhost:8443",
			CertFile:          "",
			KeyFile:           "",
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      30 * time.Second,
			MetadataOpTimeout: 5 * time.Second,
		},
		Auth: AuthConfig{
			APIKeys:          map[string]string{},
			ShareTokenSecret: "change-me-share-secret",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		MetadataStore: MetadataStoreConfig{
			Type:       "sqlite",
			DSN:        "",
			SQLitePath: "./sharefs.sqlite3",
		},
		Blob: BlobConfig{
			Backend:                "memory",
			S3Region:               "us-east-1",
			S3ServerSideEncryption: "AES256",
			PresignTTL:             time.Hour,
		},
		Shares: SharesConfig{
			MaxTTL:          24 * time.Hour,
			SkewTolerance:   30 * time.Second,
			CleanupInterval: 5 * time.Minute,
		},
		Limits: LimitsConfig{
			MaxUploadBytes:    5 << 30, // 5 GiB
			ResolveRate:       50,
			ResolveBurst:      10,
			ListPageSizeLimit: 100,
		},
	}
}

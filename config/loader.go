package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// LoadConfig loads configuration from multiple sources with strict priority:
// 1. Environment variables (highest priority)
// 2. Config file (config.yaml)
// 3. Defaults (lowest priority)
func LoadConfig() (AppConfig, error) {
	return LoadConfigFromFile("")
}

// LoadConfigFromFile loads configuration from multiple sources with a specific config file:
// 1. Environment variables (highest priority)
// 2. Specified config file or default config files
// 3. Defaults (lowest priority)
func LoadConfigFromFile(configFilePath string) (AppConfig, error) {
	k := koanf.New(".")

	// Load default configuration first
	defaultCfg := DefaultAppConfig()
	if err := k.Load(structs.Provider(defaultCfg, "koanf"), nil); err != nil {
		return AppConfig{}, fmt.Errorf("failed to load default config: %w", err)
	}

	if configFilePath != "" {
		if _, err := os.Stat(configFilePath); err != nil {
			return AppConfig{}, fmt.Errorf("specified config file %s not found: %w", configFilePath, err)
		}
		if err := k.Load(file.Provider(configFilePath), yaml.Parser()); err != nil {
			return AppConfig{}, fmt.Errorf("failed to load config file %s: %w", configFilePath, err)
		}
	} else {
		// Load from default config files if they exist
		for _, configFile := range []string{"config.yaml", "config.yml"} {
			if _, err := os.Stat(configFile); err == nil {
				if err := k.Load(file.Provider(configFile), yaml.Parser()); err != nil {
					return AppConfig{}, fmt.Errorf("failed to load config file %s: %w", configFile, err)
				}
				break
			}
		}
	}

	// Load environment variables with SHAREFS_ prefix
	if err := k.Load(env.Provider("SHAREFS_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(
			strings.TrimPrefix(s, "SHAREFS_")), "_", ".", -1)
	}), nil); err != nil {
		return AppConfig{}, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg AppConfig
	if err := k.Unmarshal("", &cfg); err != nil {
		return AppConfig{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(&cfg); err != nil {
		return AppConfig{}, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// validateConfig validates that required configuration fields are set
func validateConfig(cfg *AppConfig) error {
	if cfg.Server.ListenAddr == "" {
		return fmt.Errorf("server.listen_addr is required")
	}

	switch cfg.MetadataStore.Type {
	case "sqlite":
		if cfg.MetadataStore.SQLitePath == "" {
			return fmt.Errorf("metadata_store.sqlite_path is required for the sqlite store")
		}
	case "postgres":
		if cfg.MetadataStore.DSN == "" {
			return fmt.Errorf("metadata_store.dsn is required for the postgres store")
		}
	default:
		return fmt.Errorf("metadata_store.type must be \"sqlite\" or \"postgres\"")
	}

	switch cfg.Blob.Backend {
	case "memory":
	case "s3":
		if cfg.Blob.S3BucketName == "" {
			return fmt.Errorf("blob.s3_bucket_name is required for the s3 backend")
		}
	default:
		return fmt.Errorf("blob.backend must be \"s3\" or \"memory\"")
	}

	if len(cfg.Auth.APIKeys) == 0 {
		return fmt.Errorf("auth.api_keys must contain at least one key")
	}

	if cfg.Auth.ShareTokenSecret == "" || cfg.Auth.ShareTokenSecret == "change-me-share-secret" {
		return fmt.Errorf("auth.share_token_secret must be set and not use default value")
	}

	if cfg.Shares.MaxTTL <= 0 {
		return fmt.Errorf("shares.max_ttl must be positive")
	}

	return nil
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

const validConfig = `
server:
  listen_addr: ":9000"
auth:
  api_keys:
    test-key: alice
  share_token_secret: unit-test-secret
metadata_store:
  type: sqlite
  sqlite_path: /tmp/test.db
blob:
  backend: memory
`

func TestLoadConfigFromFile(t *testing.T) {
	path := writeConfig(t, validConfig)

	cfg, err := LoadConfigFromFile(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Server.ListenAddr != ":9000" {
		t.Errorf("listen addr = %s, want :9000", cfg.Server.ListenAddr)
	}
	if cfg.Auth.APIKeys["test-key"] != "alice" {
		t.Errorf("api key mapping not loaded: %v", cfg.Auth.APIKeys)
	}
	// Defaults fill the rest.
	if cfg.Shares.MaxTTL != 24*time.Hour {
		t.Errorf("default max ttl = %s, want 24h", cfg.Shares.MaxTTL)
	}
	if cfg.Limits.MaxUploadBytes != 5<<30 {
		t.Errorf("default max upload = %d, want 5 GiB", cfg.Limits.MaxUploadBytes)
	}
}

func TestLoadConfigEnvOverride(t *testing.T) {
	path := writeConfig(t, validConfig)

	t.Setenv("SHAREFS_LOG_LEVEL", "debug")
	t.Setenv("SHAREFS_LOG_FORMAT", "console")

	cfg, err := LoadConfigFromFile(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("env override not applied: %s", cfg.Log.Level)
	}
	if cfg.Log.Format != "console" {
		t.Errorf("env override not applied: %s", cfg.Log.Format)
	}
}

func TestLoadConfigValidation(t *testing.T) {
	tests := []struct {
		name   string
		config string
	}{
		{
			name: "missing api keys",
			config: `
auth:
  share_token_secret: unit-test-secret
`,
		},
		{
			name: "default share secret",
			config: `
auth:
  api_keys:
    test-key: alice
`,
		},
		{
			name: "postgres without dsn",
			config: `
auth:
  api_keys:
    test-key: alice
  share_token_secret: unit-test-secret
metadata_store:
  type: postgres
`,
		},
		{
			name: "unknown blob backend",
			config: `
auth:
  api_keys:
    test-key: alice
  share_token_secret: unit-test-secret
blob:
  backend: tape
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.config)
			if _, err := LoadConfigFromFile(path); err == nil {
				t.Error("invalid config loaded without error")
			}
		})
	}
}

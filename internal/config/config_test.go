package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
	_ "time/tzdata"
)

const testConfigYAML = `
env: development
test_mode: false
log:
  log_level: debug
backend:
  base_url: http://ledger.local/api
  admin_api_key: ""
sync_state:
  driver: file
  file_path: /tmp/state.json
exchanges:
  bitget:
    enabled: true
    exchange_id: 3
    api_key: key
    api_secret: secret
    passphrase: pass
    sync_interval: 30s
    window_cap: 720h
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, testConfigYAML)
	t.Setenv("BACKEND_ADMIN_API_KEY", "from-env")

	if err := LoadConfig(path); err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if Env.Backend.AdminAPIKey != "from-env" {
		t.Errorf("AdminAPIKey = %q, want env override", Env.Backend.AdminAPIKey)
	}
	if Env.Backend.Timeout != 10*time.Second {
		t.Errorf("Backend.Timeout = %v, want default 10s", Env.Backend.Timeout)
	}

	bitget, ok := Env.Exchanges["bitget"]
	if !ok {
		t.Fatal("bitget exchange missing")
	}
	if bitget.ExchangeID != 3 || bitget.SyncInterval != 30*time.Second || bitget.WindowCap != 30*24*time.Hour {
		t.Errorf("unexpected bitget config: %+v", bitget)
	}
	if Env.SyncState.RedisKey != "rebate-sync:sync-state" {
		t.Errorf("RedisKey = %q, want default", Env.SyncState.RedisKey)
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	err := LoadConfig(filepath.Join(t.TempDir(), "nope.yml"))
	if err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		cfg  EnvConfig
		want error
	}{
		{
			name: "valid",
			cfg:  EnvConfig{Backend: BackendConfig{BaseURL: "http://x", AdminAPIKey: "k"}},
		},
		{
			name: "missing url",
			cfg:  EnvConfig{Backend: BackendConfig{AdminAPIKey: "k"}},
			want: ErrMissingBackendURL,
		},
		{
			name: "missing key",
			cfg:  EnvConfig{Backend: BackendConfig{BaseURL: "http://x"}},
			want: ErrMissingBackendKey,
		},
		{
			name: "test mode needs no backend",
			cfg:  EnvConfig{TestMode: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if !errors.Is(err, tt.want) {
				t.Errorf("Validate() = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestLocations(t *testing.T) {
	cfg := EnvConfig{TradeDateTimezone: "Asia/Jakarta", DedupTimezone: "not/a-zone"}

	if got := cfg.TradeDateLocation().String(); got != "Asia/Jakarta" {
		t.Errorf("TradeDateLocation = %s", got)
	}
	if got := cfg.DedupLocation(); got != time.Local {
		t.Errorf("DedupLocation = %v, want Local fallback", got)
	}
}

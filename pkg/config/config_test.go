package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

// TestDefaultConfig_Planner verifies retry and timeout defaults
func TestDefaultConfig_Planner(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Planner.RetriesPerPair != 2 {
		t.Errorf("RetriesPerPair = %d, want 2", cfg.Planner.RetriesPerPair)
	}
	if cfg.CallTimeout().Seconds() != 30 {
		t.Errorf("CallTimeout = %v, want 30s", cfg.CallTimeout())
	}
}

// TestDefaultConfig_Cache verifies history entries expire quickly
func TestDefaultConfig_Cache(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Cache.HistoryTTLSeconds != 60 {
		t.Errorf("HistoryTTLSeconds = %d, want 60", cfg.Cache.HistoryTTLSeconds)
	}
	if cfg.Cache.SweepIntervalSeconds != 60 {
		t.Errorf("SweepIntervalSeconds = %d, want 60", cfg.Cache.SweepIntervalSeconds)
	}
}

// TestDefaultConfig_Gateway verifies gateway defaults
func TestDefaultConfig_Gateway(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Gateway.Host != "127.0.0.1" {
		t.Error("Gateway host should have default value")
	}
	if cfg.Gateway.Port == 0 {
		t.Error("Gateway port should have default value")
	}
}

func TestDefaultConfig_NoCredentials(t *testing.T) {
	cfg := DefaultConfig()

	if len(cfg.Providers.Credentials) != 0 {
		t.Error("credentials should be empty by default")
	}
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "credential") {
		t.Fatalf("expected missing credential error, got %v", err)
	}
}

func TestSaveConfig_FilePermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("file permission bits are not enforced on Windows")
	}

	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.json")

	cfg := DefaultConfig()
	if err := SaveConfig(path, cfg); err != nil {
		t.Fatalf("SaveConfig failed: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}

	perm := info.Mode().Perm()
	if perm != 0600 {
		t.Errorf("config file has permission %04o, want 0600", perm)
	}
}

func TestLoadConfig_EnvOverridesWithoutFile(t *testing.T) {
	t.Setenv("WARGABOT_PROVIDERS_MODELS", "m-free, m-paid")
	t.Setenv("WARGABOT_PROVIDERS_BUILTIN_KEYS", "k1,k2")
	t.Setenv("WARGABOT_PROVIDERS_PAID_KEY", "k-paid")
	path := filepath.Join(t.TempDir(), "missing-config.json")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	models := cfg.ModelList()
	if len(models) != 2 || models[0] != "m-free" || models[1] != "m-paid" {
		t.Fatalf("expected env models, got %v", models)
	}
	if got := len(cfg.Providers.Credentials); got != 3 {
		t.Fatalf("expected 3 env credentials, got %d", got)
	}
	last := cfg.Providers.Credentials[2]
	if last.Tier != "user" || last.APIKey != "k-paid" {
		t.Fatalf("expected paid credential last, got %+v", last)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
}

func TestLoadConfig_YAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
assistant:
  name: Halo Kota
providers:
  credentials:
    - id: free-1
      tier: builtin
      api_key: abc
  models: [m1]
channels:
  discord:
    allow_from: [123, "alice"]
`
	if err := os.WriteFile(path, []byte(body), 0600); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Assistant.Name != "Halo Kota" {
		t.Fatalf("expected yaml name, got %q", cfg.Assistant.Name)
	}
	if cfg.Assistant.MaxReplyChars != 1500 {
		t.Fatalf("expected default max reply chars to survive, got %d", cfg.Assistant.MaxReplyChars)
	}
	if got := cfg.Channels.Discord.AllowFrom; len(got) != 2 || got[0] != "123" {
		t.Fatalf("unexpected allow_from: %v", got)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
}

func TestLoadConfig_JSONNumericAllowFrom(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"channels":{"discord":{"allow_from":[42,"bob"]}}}`), 0600); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if got := cfg.Channels.Discord.AllowFrom; len(got) != 2 || got[0] != "42" || got[1] != "bob" {
		t.Fatalf("unexpected allow_from: %v", got)
	}
}

func TestValidate_RejectsBadTierAndDuplicates(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Providers.Credentials = []CredentialConfig{
		{ID: "a", Tier: "gold", APIKey: "x"},
		{ID: "a", Tier: "user", APIKey: "y"},
	}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"tier must be", "duplicate id"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("expected %q in %v", want, err)
		}
	}
}

func TestValidate_AcceptsEnvKeyReference(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Providers.Credentials = []CredentialConfig{{ID: "gemini", APIKeyEnv: "GEMINI_API_KEY", AuthHeader: "x-goog-api-key"}}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}

	cfg.Providers.Credentials = []CredentialConfig{{ID: "empty"}}
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "api_key_env") {
		t.Fatalf("expected missing key error, got %v", err)
	}
}

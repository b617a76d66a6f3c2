// WargaBot - Citizen services assistant for chat channels
// License: MIT
//
// Copyright (c) 2026 WargaBot contributors

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// FlexibleStringSlice is a []string that also accepts JSON numbers,
// so allow_from can contain both "123" and 123.
type FlexibleStringSlice []string

func (f *FlexibleStringSlice) UnmarshalJSON(data []byte) error {
	var ss []string
	if err := json.Unmarshal(data, &ss); err == nil {
		*f = ss
		return nil
	}

	var raw []interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	result := make([]string, 0, len(raw))
	for _, v := range raw {
		switch val := v.(type) {
		case string:
			result = append(result, val)
		case float64:
			result = append(result, fmt.Sprintf("%.0f", val))
		default:
			result = append(result, fmt.Sprintf("%v", val))
		}
	}
	*f = result
	return nil
}

func (f *FlexibleStringSlice) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.SequenceNode {
		return fmt.Errorf("allow_from: expected a list, got %v", node.Tag)
	}
	result := make([]string, 0, len(node.Content))
	for _, item := range node.Content {
		result = append(result, item.Value)
	}
	*f = result
	return nil
}

type Config struct {
	Assistant AssistantConfig `json:"assistant" yaml:"assistant"`
	Providers ProvidersConfig `json:"providers" yaml:"providers"`
	Planner   PlannerConfig   `json:"planner" yaml:"planner"`
	Cache     CacheConfig     `json:"cache" yaml:"cache"`
	Gateway   GatewayConfig   `json:"gateway" yaml:"gateway"`
	Channels  ChannelsConfig  `json:"channels" yaml:"channels"`
	Storage   StorageConfig   `json:"storage" yaml:"storage"`
	Knowledge KnowledgeConfig `json:"knowledge" yaml:"knowledge"`
	Usage     UsageConfig     `json:"usage" yaml:"usage"`
	Shutdown  ShutdownConfig  `json:"shutdown" yaml:"shutdown"`
	Log       LogConfig       `json:"log" yaml:"log"`
	mu        sync.RWMutex
}

type AssistantConfig struct {
	Name          string  `json:"name" yaml:"name" env:"WARGABOT_ASSISTANT_NAME"`
	Region        string  `json:"region" yaml:"region" env:"WARGABOT_ASSISTANT_REGION"`
	MaxReplyChars int     `json:"max_reply_chars" yaml:"max_reply_chars" env:"WARGABOT_ASSISTANT_MAX_REPLY_CHARS"`
	HistoryTurns  int     `json:"history_turns" yaml:"history_turns" env:"WARGABOT_ASSISTANT_HISTORY_TURNS"`
	Temperature   float64 `json:"temperature" yaml:"temperature" env:"WARGABOT_ASSISTANT_TEMPERATURE"`
	MaxTokens     int     `json:"max_tokens" yaml:"max_tokens" env:"WARGABOT_ASSISTANT_MAX_TOKENS"`
}

// CredentialConfig describes one API key. Builtin (free tier) credentials
// are tried before user-supplied paid ones.
type CredentialConfig struct {
	ID       string `json:"id" yaml:"id"`
	Provider string `json:"provider" yaml:"provider"`
	Tier     string `json:"tier" yaml:"tier"`
	APIKey   string `json:"api_key" yaml:"api_key"`
	// APIKeyEnv names an environment variable read on every call, so a
	// rotated key applies without a restart. It replaces APIKey.
	APIKeyEnv string `json:"api_key_env,omitempty" yaml:"api_key_env,omitempty"`
	// AuthHeader sends the key in this header instead of a bearer token.
	AuthHeader string `json:"auth_header,omitempty" yaml:"auth_header,omitempty"`
	APIBase    string `json:"api_base,omitempty" yaml:"api_base,omitempty"`
	Proxy      string `json:"proxy,omitempty" yaml:"proxy,omitempty"`
}

type ProvidersConfig struct {
	Credentials []CredentialConfig `json:"credentials" yaml:"credentials"`
	// BuiltinKeys and PaidKey let deployments inject keys through the
	// environment without writing them to the config file.
	BuiltinKeys []string `json:"-" yaml:"-" env:"WARGABOT_PROVIDERS_BUILTIN_KEYS" envSeparator:","`
	PaidKey     string   `json:"-" yaml:"-" env:"WARGABOT_PROVIDERS_PAID_KEY"`
	Provider    string   `json:"provider" yaml:"provider" env:"WARGABOT_PROVIDERS_PROVIDER"`
	APIBase     string   `json:"api_base" yaml:"api_base" env:"WARGABOT_PROVIDERS_API_BASE"`
	Models      []string `json:"models" yaml:"models" env:"WARGABOT_PROVIDERS_MODELS" envSeparator:","`
}

type PlannerConfig struct {
	RetriesPerPair         int `json:"retries_per_pair" yaml:"retries_per_pair" env:"WARGABOT_PLANNER_RETRIES_PER_PAIR"`
	BaseDelayMS            int `json:"base_delay_ms" yaml:"base_delay_ms" env:"WARGABOT_PLANNER_BASE_DELAY_MS"`
	MaxDelayMS             int `json:"max_delay_ms" yaml:"max_delay_ms" env:"WARGABOT_PLANNER_MAX_DELAY_MS"`
	JitterMS               int `json:"jitter_ms" yaml:"jitter_ms" env:"WARGABOT_PLANNER_JITTER_MS"`
	JSONDefectDelayMS      int `json:"json_defect_delay_ms" yaml:"json_defect_delay_ms" env:"WARGABOT_PLANNER_JSON_DEFECT_DELAY_MS"`
	CallTimeoutMS          int `json:"call_timeout_ms" yaml:"call_timeout_ms" env:"WARGABOT_PLANNER_CALL_TIMEOUT_MS"`
	RateLimitWindowSeconds int `json:"rate_limit_window_seconds" yaml:"rate_limit_window_seconds" env:"WARGABOT_PLANNER_RATE_LIMIT_WINDOW_SECONDS"`
}

type CacheConfig struct {
	SweepIntervalSeconds int `json:"sweep_interval_seconds" yaml:"sweep_interval_seconds" env:"WARGABOT_CACHE_SWEEP_INTERVAL_SECONDS"`
	HistoryTTLSeconds    int `json:"history_ttl_seconds" yaml:"history_ttl_seconds" env:"WARGABOT_CACHE_HISTORY_TTL_SECONDS"`
	HistoryCapacity      int `json:"history_capacity" yaml:"history_capacity" env:"WARGABOT_CACHE_HISTORY_CAPACITY"`
	SlotTTLSeconds       int `json:"slot_ttl_seconds" yaml:"slot_ttl_seconds" env:"WARGABOT_CACHE_SLOT_TTL_SECONDS"`
	SlotCapacity         int `json:"slot_capacity" yaml:"slot_capacity" env:"WARGABOT_CACHE_SLOT_CAPACITY"`
	PhotoTTLSeconds      int `json:"photo_ttl_seconds" yaml:"photo_ttl_seconds" env:"WARGABOT_CACHE_PHOTO_TTL_SECONDS"`
	DedupeTTLSeconds     int `json:"dedupe_ttl_seconds" yaml:"dedupe_ttl_seconds" env:"WARGABOT_CACHE_DEDUPE_TTL_SECONDS"`
}

type GatewayConfig struct {
	Host      string `json:"host" yaml:"host" env:"WARGABOT_GATEWAY_HOST"`
	Port      int    `json:"port" yaml:"port" env:"WARGABOT_GATEWAY_PORT"`
	JWTSecret string `json:"jwt_secret,omitempty" yaml:"jwt_secret,omitempty" env:"WARGABOT_GATEWAY_JWT_SECRET"`
	JWTIssuer string `json:"jwt_issuer,omitempty" yaml:"jwt_issuer,omitempty" env:"WARGABOT_GATEWAY_JWT_ISSUER"`
}

type ChannelsConfig struct {
	Discord DiscordConfig `json:"discord" yaml:"discord"`
}

type DiscordConfig struct {
	Enabled   bool                `json:"enabled" yaml:"enabled" env:"WARGABOT_CHANNELS_DISCORD_ENABLED"`
	Token     string              `json:"token" yaml:"token" env:"WARGABOT_CHANNELS_DISCORD_TOKEN"`
	AllowFrom FlexibleStringSlice `json:"allow_from" yaml:"allow_from" env:"WARGABOT_CHANNELS_DISCORD_ALLOW_FROM"`
}

type StorageConfig struct {
	Path string `json:"path" yaml:"path" env:"WARGABOT_STORAGE_PATH"`
}

type KnowledgeConfig struct {
	BaseURL   string `json:"base_url" yaml:"base_url" env:"WARGABOT_KNOWLEDGE_BASE_URL"`
	TimeoutMS int    `json:"timeout_ms" yaml:"timeout_ms" env:"WARGABOT_KNOWLEDGE_TIMEOUT_MS"`
	TopK      int    `json:"top_k" yaml:"top_k" env:"WARGABOT_KNOWLEDGE_TOP_K"`
}

type UsageConfig struct {
	ResetCron string `json:"reset_cron" yaml:"reset_cron" env:"WARGABOT_USAGE_RESET_CRON"`
}

type ShutdownConfig struct {
	DrainTimeoutSeconds int `json:"drain_timeout_seconds" yaml:"drain_timeout_seconds" env:"WARGABOT_SHUTDOWN_DRAIN_TIMEOUT_SECONDS"`
	DrainPollMS         int `json:"drain_poll_ms" yaml:"drain_poll_ms" env:"WARGABOT_SHUTDOWN_DRAIN_POLL_MS"`
}

type LogConfig struct {
	Level  string `json:"level" yaml:"level" env:"WARGABOT_LOG_LEVEL"`
	Format string `json:"format" yaml:"format" env:"WARGABOT_LOG_FORMAT"`
}

func DefaultConfig() *Config {
	return &Config{
		Assistant: AssistantConfig{
			Name:          "Sahabat Warga",
			Region:        "Kota",
			MaxReplyChars: 1500,
			HistoryTurns:  10,
			Temperature:   0.3,
			MaxTokens:     1024,
		},
		Providers: ProvidersConfig{
			Credentials: []CredentialConfig{},
			Provider:    "openrouter",
			APIBase:     "https://openrouter.ai/api/v1",
			Models: []string{
				"google/gemini-2.0-flash-001",
				"google/gemini-flash-1.5",
			},
		},
		Planner: PlannerConfig{
			RetriesPerPair:         2,
			BaseDelayMS:            500,
			MaxDelayMS:             8000,
			JitterMS:               250,
			JSONDefectDelayMS:      1000,
			CallTimeoutMS:          30000,
			RateLimitWindowSeconds: 60,
		},
		Cache: CacheConfig{
			SweepIntervalSeconds: 60,
			HistoryTTLSeconds:    60,
			HistoryCapacity:      5000,
			SlotTTLSeconds:       600,
			SlotCapacity:         5000,
			PhotoTTLSeconds:      300,
			DedupeTTLSeconds:     10,
		},
		Gateway: GatewayConfig{
			Host: "127.0.0.1",
			Port: 18790,
		},
		Channels: ChannelsConfig{
			Discord: DiscordConfig{
				AllowFrom: FlexibleStringSlice{},
			},
		},
		Storage: StorageConfig{
			Path: "~/.wargabot/wargabot.db",
		},
		Knowledge: KnowledgeConfig{
			TimeoutMS: 5000,
			TopK:      5,
		},
		Usage: UsageConfig{
			ResetCron: "0 0 * * *",
		},
		Shutdown: ShutdownConfig{
			DrainTimeoutSeconds: 30,
			DrainPollMS:         100,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadConfig reads path (JSON, or YAML by extension) over the defaults and
// applies environment overrides. A missing file is not an error.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := decodeConfig(path, data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	case os.IsNotExist(err):
	default:
		return nil, err
	}

	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	cfg.applyEnvCredentials()

	return cfg, nil
}

func decodeConfig(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, cfg)
	default:
		return json.Unmarshal(data, cfg)
	}
}

func (c *Config) applyEnvCredentials() {
	for i, key := range c.Providers.BuiltinKeys {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		c.Providers.Credentials = append(c.Providers.Credentials, CredentialConfig{
			ID:     fmt.Sprintf("env-builtin-%d", i+1),
			Tier:   "builtin",
			APIKey: key,
		})
	}
	if key := strings.TrimSpace(c.Providers.PaidKey); key != "" {
		c.Providers.Credentials = append(c.Providers.Credentials, CredentialConfig{
			ID:     "env-paid",
			Tier:   "user",
			APIKey: key,
		})
	}
}

func SaveConfig(path string, cfg *Config) error {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	var (
		data []byte
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(cfg)
	default:
		data, err = json.MarshalIndent(cfg, "", "  ")
	}
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}

// Validate checks the settings the runtime cannot start without.
func (c *Config) Validate() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var errs []error
	if len(c.Providers.Credentials) == 0 {
		errs = append(errs, errors.New("at least one provider credential is required (providers.credentials or WARGABOT_PROVIDERS_BUILTIN_KEYS)"))
	}
	seen := map[string]bool{}
	for i, cred := range c.Providers.Credentials {
		if strings.TrimSpace(cred.APIKey) == "" && strings.TrimSpace(cred.APIKeyEnv) == "" {
			errs = append(errs, fmt.Errorf("providers.credentials[%d]: api_key or api_key_env is required", i))
		}
		switch strings.ToLower(strings.TrimSpace(cred.Tier)) {
		case "", "builtin", "user":
		default:
			errs = append(errs, fmt.Errorf("providers.credentials[%d]: tier must be builtin or user, got %q", i, cred.Tier))
		}
		if id := strings.TrimSpace(cred.ID); id != "" {
			if seen[id] {
				errs = append(errs, fmt.Errorf("providers.credentials[%d]: duplicate id %q", i, id))
			}
			seen[id] = true
		}
	}
	if len(c.ModelList()) == 0 {
		errs = append(errs, errors.New("providers.models must list at least one model"))
	}
	if c.Planner.RetriesPerPair < 1 {
		errs = append(errs, errors.New("planner.retries_per_pair must be >= 1"))
	}
	if c.Channels.Discord.Enabled && strings.TrimSpace(c.Channels.Discord.Token) == "" {
		errs = append(errs, errors.New("channels.discord.token is required when discord is enabled"))
	}
	return errors.Join(errs...)
}

// ModelList returns the configured models with blanks removed.
func (c *Config) ModelList() []string {
	out := make([]string, 0, len(c.Providers.Models))
	for _, m := range c.Providers.Models {
		if m = strings.TrimSpace(m); m != "" {
			out = append(out, m)
		}
	}
	return out
}

func (c *Config) StoragePath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return expandHome(c.Storage.Path)
}

func (c *Config) CallTimeout() time.Duration {
	return time.Duration(c.Planner.CallTimeoutMS) * time.Millisecond
}

func (c *Config) DrainTimeout() time.Duration {
	return time.Duration(c.Shutdown.DrainTimeoutSeconds) * time.Second
}

func (c *Config) DrainPoll() time.Duration {
	return time.Duration(c.Shutdown.DrainPollMS) * time.Millisecond
}

func Seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

func Millis(n int) time.Duration {
	return time.Duration(n) * time.Millisecond
}

func expandHome(path string) string {
	if path == "" {
		return path
	}
	if path[0] == '~' {
		home, _ := os.UserHomeDir()
		if len(path) > 1 && path[1] == '/' {
			return home + path[1:]
		}
		return home
	}
	return path
}

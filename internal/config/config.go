package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/parleychat/parley/internal/core"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig              `mapstructure:"server"`
	Providers map[string]ProviderConfig `mapstructure:"providers"`
	Default   string                    `mapstructure:"default_provider"`
	Flowise   FlowiseConfig             `mapstructure:"flowise"`
	Claude    ClaudeConfig              `mapstructure:"claude"`
	Store     StoreConfig               `mapstructure:"store"`
	Archive   ArchiveConfig             `mapstructure:"archive"`
	Metrics   MetricsConfig             `mapstructure:"metrics"`
	Log       LogConfig                 `mapstructure:"log"`
}

type ServerConfig struct {
	Host   string `mapstructure:"host"`
	Port   int    `mapstructure:"port"`
	APIKey string `mapstructure:"api_key"`
	UIDir  string `mapstructure:"ui_dir"`
}

// ProviderConfig holds the per-backend endpoint, credential and default
// model. Keyed by provider identifier in the providers map.
type ProviderConfig struct {
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
	Model   string `mapstructure:"model"`
}

// FlowiseConfig holds flow-engine settings. ChatflowID is mandatory for
// flowise requests; the API key is optional (self-hosted flows commonly
// run without one).
type FlowiseConfig struct {
	BaseURL    string `mapstructure:"base_url"`
	APIKey     string `mapstructure:"api_key"`
	ChatflowID string `mapstructure:"chatflow_id"`
}

// ClaudeConfig holds Anthropic settings. Requests route through the
// local proxy path rather than the vendor endpoint.
type ClaudeConfig struct {
	ProxyURL    string `mapstructure:"proxy_url"`
	UpstreamURL string `mapstructure:"upstream_url"`
	APIKey      string `mapstructure:"api_key"`
	Model       string `mapstructure:"model"`
}

type StoreConfig struct {
	Driver string `mapstructure:"driver"` // "sqlite" or "memory"
	Path   string `mapstructure:"path"`
}

type ArchiveConfig struct {
	Type string   `mapstructure:"type"` // "localfs" or "s3"
	Path string   `mapstructure:"path"` // For localfs
	S3   S3Config `mapstructure:"s3"`   // For S3
}

type S3Config struct {
	Bucket    string `mapstructure:"bucket"`
	Endpoint  string `mapstructure:"endpoint"`
	Region    string `mapstructure:"region"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Prefix    string `mapstructure:"prefix"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

// Provider returns the configuration block for p, zero-valued when the
// provider has no entry.
func (c *Config) Provider(p core.Provider) ProviderConfig {
	if c.Providers == nil {
		return ProviderConfig{}
	}
	return c.Providers[string(p)]
}

// DefaultProvider returns the configured default backend, falling back
// to groq when unset or unrecognized.
func (c *Config) DefaultProvider() core.Provider {
	return core.ParseProvider(c.Default, core.ProviderGroq)
}

// Load reads configuration from file
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	// Support environment variable overrides
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	// Expand environment variables in string values
	for _, key := range v.AllKeys() {
		val := v.GetString(key)
		if strings.HasPrefix(val, "${") && strings.HasSuffix(val, "}") {
			envKey := strings.TrimSuffix(strings.TrimPrefix(val, "${"), "}")
			v.Set(key, os.Getenv(envKey))
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return &cfg, nil
}

// Defaults returns a config with sensible defaults
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Default: string(core.ProviderGroq),
		Providers: map[string]ProviderConfig{
			string(core.ProviderGroq):       {BaseURL: "https://api.groq.com/openai/v1", Model: "llama-3.1-70b-versatile"},
			string(core.ProviderOpenAI):     {BaseURL: "https://api.openai.com/v1", Model: "gpt-4o"},
			string(core.ProviderOpenRouter): {BaseURL: "https://openrouter.ai/api/v1", Model: "meta-llama/llama-3.1-70b-instruct"},
			string(core.ProviderGoogle):     {BaseURL: "https://generativelanguage.googleapis.com/v1beta/openai", Model: "gemini-1.5-pro"},
			string(core.ProviderNeura):      {BaseURL: "http://localhost:9099/v1", Model: "neura-router"},
		},
		Claude: ClaudeConfig{
			ProxyURL:    "http://localhost:8080/api/claude",
			UpstreamURL: "https://api.anthropic.com",
			Model:       "claude-3-5-sonnet-20241022",
		},
		Flowise: FlowiseConfig{
			BaseURL: "http://localhost:3000",
		},
		Store: StoreConfig{
			Driver: "sqlite",
			Path:   "parley.db",
		},
		Archive: ArchiveConfig{
			Type: "localfs",
			Path: "archive",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("port must be between 1 and 65535, got %d", c.Server.Port))
	}

	if c.Default != "" && !core.Provider(c.Default).Valid() {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("unknown default_provider %q", c.Default))
	}

	switch c.Store.Driver {
	case "", "sqlite", "memory":
	default:
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("unknown store driver %q", c.Store.Driver))
	}
	if c.Store.Driver == "sqlite" && c.Store.Path == "" {
		return core.WrapError(core.ErrConfigMissing,
			fmt.Errorf("store path required for sqlite driver"))
	}

	switch c.Archive.Type {
	case "", "localfs", "s3":
	default:
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("unknown archive type %q", c.Archive.Type))
	}
	if c.Archive.Type == "s3" && c.Archive.S3.Bucket == "" {
		return core.WrapError(core.ErrConfigMissing,
			fmt.Errorf("s3 bucket required when archive type is s3"))
	}

	return nil
}

// Package config loads and validates the application's configuration snapshot.
// The snapshot is loaded once at process start and treated as immutable for
// the process lifetime; every component receives it at construction.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/rjtruitt/CodeReviewBot/internal/core"
	"github.com/rjtruitt/CodeReviewBot/internal/logger"
)

// ServerConfig holds the HTTP ingress settings for daemon mode.
type ServerConfig struct {
	Port          string        `mapstructure:"port"`
	WebhookSecret string        `mapstructure:"webhook_secret"`
	AllowedIPs    []string      `mapstructure:"allowed_ips"`
	EventDeadline time.Duration `mapstructure:"event_deadline"`
}

// OpenAIConfig holds the global generative-backend defaults. Language
// profiles override the model axis per language.
type OpenAIConfig struct {
	APIBase            string        `mapstructure:"api_base"`
	DefaultModel       string        `mapstructure:"default_model"`
	DefaultTemperature float64       `mapstructure:"default_temperature"`
	RequestTimeout     time.Duration `mapstructure:"request_timeout"`
}

// GitHubConfig holds hosting-API settings, including the default credential
// scope that terminates the lookup chain.
type GitHubConfig struct {
	DefaultAPIKey  string `mapstructure:"default_api_key"`
	AppID          int64  `mapstructure:"app_id"`
	PrivateKeyPath string `mapstructure:"private_key_path"`
}

// KeyEntry is one credential scoped to a user login or repository owner.
type KeyEntry struct {
	APIKey string `mapstructure:"api_key" yaml:"api_key"`
}

// LanguageProfile overrides the global model axis for one language.
// Temperature is a pointer so an explicit 0 (deterministic review) is
// distinguishable from "not set".
type LanguageProfile struct {
	Model          string   `mapstructure:"model" yaml:"model"`
	Temperature    *float64 `mapstructure:"temperature" yaml:"temperature"`
	PromptTemplate string   `mapstructure:"prompt_template" yaml:"prompt_template"`
}

// FeatureConfig holds the feature toggles.
type FeatureConfig struct {
	UseCustomPrompts     bool `mapstructure:"use_custom_prompts"`
	EnableSecurityChecks bool `mapstructure:"enable_security_checks"`
	EnableWebhooks       bool `mapstructure:"enable_webhooks"`
}

// RateLimitConfig bounds inbound attempts per identity.
type RateLimitConfig struct {
	MaxRequests int           `mapstructure:"max_requests"`
	Window      time.Duration `mapstructure:"window"`
	IdleTTL     time.Duration `mapstructure:"idle_ttl"`
}

// DispatchConfig bounds the backend fan-out for one event.
type DispatchConfig struct {
	MaxConcurrent  int           `mapstructure:"max_concurrent"`
	CallTimeout    time.Duration `mapstructure:"call_timeout"`
	MaxRetries     int           `mapstructure:"max_retries"`
	InitialBackoff time.Duration `mapstructure:"initial_backoff"`
	MaxBackoff     time.Duration `mapstructure:"max_backoff"`
}

// PublishMode selects how results are posted back to the pull request.
type PublishMode string

const (
	PublishPerFile      PublishMode = "per_file"
	PublishConsolidated PublishMode = "consolidated"
)

// PublishConfig controls posting back to the hosting API.
type PublishConfig struct {
	Mode       PublishMode   `mapstructure:"mode"`
	MaxRetries int           `mapstructure:"max_retries"`
	Backoff    time.Duration `mapstructure:"backoff"`
}

// DBConfig holds the optional review-history database settings. An empty host
// disables persistence; Action mode typically runs without it.
type DBConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Username        string        `mapstructure:"username"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
}

// Enabled reports whether a database is configured at all.
func (c *DBConfig) Enabled() bool { return c != nil && c.Host != "" }

// Config is the immutable configuration snapshot.
type Config struct {
	Server        ServerConfig               `mapstructure:"server"`
	Logging       logger.Config              `mapstructure:"logging"`
	OpenAI        OpenAIConfig               `mapstructure:"openai"`
	GitHub        GitHubConfig               `mapstructure:"github"`
	UserKeys      map[string]KeyEntry        `mapstructure:"user_keys"`
	RepoOwnerKeys map[string]KeyEntry        `mapstructure:"repo_owner_keys"`
	// Repositories does not take part in credential or profile precedence; its
	// keys drive the bulk re-review sweep over configured repositories.
	Repositories  map[string]LanguageProfile `mapstructure:"repositories"`
	Languages     map[string]LanguageProfile `mapstructure:"languages"`
	LanguagesFile string                     `mapstructure:"languages_file"`
	Features      FeatureConfig              `mapstructure:"features"`
	RateLimit     RateLimitConfig            `mapstructure:"rate_limit"`
	Dispatch      DispatchConfig             `mapstructure:"dispatch"`
	Publish       PublishConfig              `mapstructure:"publish"`
	Database      *DBConfig                  `mapstructure:"database"`
	MaxWorkers    int                        `mapstructure:"max_workers"`
}

// LoadConfig reads the YAML configuration file plus environment overrides,
// applies defaults, merges the optional language-profile file, and validates
// the result. The returned snapshot must not be mutated.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("CRB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, &core.ConfigError{Err: fmt.Errorf("reading %s: %w", path, err)}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, &core.ConfigError{Err: fmt.Errorf("decoding %s: %w", path, err)}
	}

	if cfg.LanguagesFile != "" {
		profiles, err := LoadLanguageProfiles(cfg.LanguagesFile)
		if err != nil {
			return nil, &core.ConfigError{Err: err}
		}
		if cfg.Languages == nil {
			cfg.Languages = make(map[string]LanguageProfile, len(profiles))
		}
		for name, p := range profiles {
			cfg.Languages[name] = p
		}
	}
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.event_deadline", 5*time.Minute)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("openai.api_base", "https://api.openai.com/v1")
	v.SetDefault("openai.default_model", "gpt-4o-mini")
	v.SetDefault("openai.default_temperature", 0.7)
	v.SetDefault("openai.request_timeout", 90*time.Second)
	v.SetDefault("rate_limit.max_requests", 30)
	v.SetDefault("rate_limit.window", time.Minute)
	v.SetDefault("rate_limit.idle_ttl", 10*time.Minute)
	v.SetDefault("dispatch.max_concurrent", 4)
	v.SetDefault("dispatch.call_timeout", 2*time.Minute)
	v.SetDefault("dispatch.max_retries", 2)
	v.SetDefault("dispatch.initial_backoff", time.Second)
	v.SetDefault("dispatch.max_backoff", 30*time.Second)
	v.SetDefault("publish.mode", string(PublishPerFile))
	v.SetDefault("publish.max_retries", 3)
	v.SetDefault("publish.backoff", 2*time.Second)
	v.SetDefault("max_workers", 5)
}

// normalize lowercases all scope and language keys once at load time, so
// lookups are case-insensitive without per-request work. Viper already folds
// keys from the file; this also covers the yaml.v3-loaded profile file.
func (c *Config) normalize() {
	c.UserKeys = lowerKeys(c.UserKeys)
	c.RepoOwnerKeys = lowerKeys(c.RepoOwnerKeys)
	c.Languages = lowerKeys(c.Languages)
	if c.Repositories == nil {
		c.Repositories = map[string]LanguageProfile{}
	}
}

func lowerKeys[V any](m map[string]V) map[string]V {
	out := make(map[string]V, len(m))
	for k, v := range m {
		out[strings.ToLower(k)] = v
	}
	return out
}

// Validate enforces the startup invariants. A missing default credential is
// the one failure credential resolution is allowed to surface, and it must
// surface here, never at request time.
func (c *Config) Validate() error {
	if c.GitHub.DefaultAPIKey == "" {
		return &core.ConfigError{Err: core.ErrNoDefaultCredential}
	}
	if c.OpenAI.DefaultTemperature < 0 || c.OpenAI.DefaultTemperature > 2 {
		return &core.ConfigError{Err: fmt.Errorf("openai.default_temperature %v out of range [0,2]", c.OpenAI.DefaultTemperature)}
	}
	for name, p := range c.Languages {
		if p.Temperature != nil && (*p.Temperature < 0 || *p.Temperature > 2) {
			return &core.ConfigError{Err: fmt.Errorf("languages.%s.temperature %v out of range [0,2]", name, *p.Temperature)}
		}
	}
	if c.RateLimit.MaxRequests <= 0 {
		return &core.ConfigError{Err: fmt.Errorf("rate_limit.max_requests must be positive")}
	}
	if c.RateLimit.Window <= 0 {
		return &core.ConfigError{Err: fmt.Errorf("rate_limit.window must be positive")}
	}
	if c.Dispatch.MaxConcurrent <= 0 {
		return &core.ConfigError{Err: fmt.Errorf("dispatch.max_concurrent must be positive")}
	}
	switch c.Publish.Mode {
	case PublishPerFile, PublishConsolidated:
	default:
		return &core.ConfigError{Err: fmt.Errorf("publish.mode must be %q or %q", PublishPerFile, PublishConsolidated)}
	}
	if c.Features.EnableWebhooks && c.Server.WebhookSecret == "" {
		return &core.ConfigError{Err: fmt.Errorf("server.webhook_secret must be set when webhooks are enabled")}
	}
	return nil
}

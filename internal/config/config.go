// Package config resolves gateway settings once at startup from an optional
// config file and the environment.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/AliZeynalov/portfolio-chatbot/internal/errs"
)

// ModeProduction enables the rate limiter. Every other mode bypasses it.
const ModeProduction = "production"

const defaultSiteURL = "http://localhost:3000"

// DefaultSystemPrompt scopes the assistant to the portfolio.
const DefaultSystemPrompt = "You are a helpful assistant that helps people find information about this portfolio website, " +
	"including the owner's experience, projects, and skills. Answer concisely. " +
	"If the question is not related to the portfolio, keep it brief. " +
	"Avoid toxic/hate/violence/racist/discrimination/political/religion/adult/sexual/drugs/illegal/self-harm."

// Config is the full gateway configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	Provider  ProviderConfig  `mapstructure:"provider"`
	Chat      ChatConfig      `mapstructure:"chat"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Addr         string        `mapstructure:"addr" validate:"required"`
	Mode         string        `mapstructure:"mode"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// AllowedOrigin is echoed in CORS responses. Empty disables CORS headers.
	AllowedOrigin string `mapstructure:"allowed_origin"`
}

// LogConfig controls logrus.
type LogConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn warning error"`
	Format string `mapstructure:"format" validate:"oneof=text json"`
}

// ProviderConfig describes the OpenAI-compatible upstream.
type ProviderConfig struct {
	APIKey        string        `mapstructure:"api_key" validate:"required"`
	BaseURL       string        `mapstructure:"base_url" validate:"required,url"`
	Model         string        `mapstructure:"model" validate:"required"`
	FallbackModel string        `mapstructure:"fallback_model"`
	SiteURL       string        `mapstructure:"site_url"`
	Title         string        `mapstructure:"title"`
	Temperature   float64       `mapstructure:"temperature" validate:"gte=0,lte=2"`
	Timeout       time.Duration `mapstructure:"timeout"`
}

// ChatConfig tunes the completion orchestrator.
type ChatConfig struct {
	SystemPrompt    string        `mapstructure:"system_prompt"`
	MaxAttempts     int           `mapstructure:"max_attempts" validate:"gte=1,lte=10"`
	BaseBackoff     time.Duration `mapstructure:"base_backoff"`
	RequestDeadline time.Duration `mapstructure:"request_deadline"`
}

// RateLimitConfig tunes the per-client limiter.
type RateLimitConfig struct {
	Window        time.Duration `mapstructure:"window"`
	MaxRequests   int           `mapstructure:"max_requests" validate:"gte=1"`
	PruneInterval time.Duration `mapstructure:"prune_interval"`
}

// envBindings maps config keys to the environment variables the site is
// deployed with. The first name found wins.
var envBindings = map[string][]string{
	"server.addr":             {"GATEWAY_ADDR"},
	"server.mode":             {"GATEWAY_MODE", "NODE_ENV"},
	"server.allowed_origin":   {"GATEWAY_ALLOWED_ORIGIN"},
	"log.level":               {"LOG_LEVEL"},
	"log.format":              {"LOG_FORMAT"},
	"provider.api_key":        {"CHATBOT_API_KEY"},
	"provider.base_url":       {"OPENAI_API_BASE_URL"},
	"provider.model":          {"CHATBOT_MODEL"},
	"provider.fallback_model": {"CHATBOT_FALLBACK_MODEL"},
	"provider.site_url":       {"SITE_URL", "NEXT_PUBLIC_VERCEL_URL"},
	"chat.system_prompt":      {"CHATBOT_SYSTEM_PROMPT"},
	"chat.request_deadline":   {"CHATBOT_REQUEST_DEADLINE"},
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.mode", "development")
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.allowed_origin", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("provider.api_key", "")
	v.SetDefault("provider.base_url", "")
	v.SetDefault("provider.model", "")
	v.SetDefault("provider.fallback_model", "")
	v.SetDefault("provider.site_url", "")
	v.SetDefault("provider.title", "Portfolio Chatbot")
	v.SetDefault("provider.temperature", 0.6)
	v.SetDefault("provider.timeout", 30*time.Second)
	v.SetDefault("chat.system_prompt", DefaultSystemPrompt)
	v.SetDefault("chat.max_attempts", 3)
	v.SetDefault("chat.base_backoff", 400*time.Millisecond)
	v.SetDefault("chat.request_deadline", 12*time.Second)
	v.SetDefault("rate_limit.window", 60*time.Second)
	v.SetDefault("rate_limit.max_requests", 30)
	v.SetDefault("rate_limit.prune_interval", 5*time.Minute)
}

// Load reads configuration. configPath may be empty, in which case a
// "gateway" file in ./configs or the working directory is used when present.
// Missing provider settings are reported as *errs.ConfigError.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("gateway")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configPath != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	for key, names := range envBindings {
		args := append([]string{key}, names...)
		if err := v.BindEnv(args...); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks required fields and ranges.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("config validation failed: %w", err)
	}
	fields := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		fields = append(fields, fmt.Sprintf("%s (%s)", strings.TrimPrefix(fe.Namespace(), "Config."), fe.Tag()))
	}
	return &errs.ConfigError{Fields: fields}
}

// IsProduction reports whether the gateway runs in production mode.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Server.Mode, ModeProduction)
}

// SiteURLOrDefault returns the public site URL with a scheme and without
// trailing slashes. It is sent upstream as the HTTP referer.
func (p ProviderConfig) SiteURLOrDefault() string {
	raw := strings.TrimSpace(p.SiteURL)
	if raw == "" {
		return defaultSiteURL
	}
	if !strings.HasPrefix(raw, "http") {
		raw = "https://" + raw
	}
	return strings.TrimRight(raw, "/")
}

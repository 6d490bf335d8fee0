package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Upstream UpstreamConfig `yaml:"upstream"`
	Resolver ResolverConfig `yaml:"resolver"`
	Extract  ExtractConfig  `yaml:"extract"`
	Relay    RelayConfig    `yaml:"relay"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host   string `yaml:"host" envconfig:"SERVER_HOST"`
	Port   int    `yaml:"port" envconfig:"SERVER_PORT"`
	APIKey string `yaml:"api_key" envconfig:"API_KEY"`
	// PublicBaseURL is the externally visible origin of this service, used to
	// build proxy links in JSON responses. Optional.
	PublicBaseURL string        `yaml:"public_base_url" envconfig:"PUBLIC_BASE_URL"`
	ReadTimeout   time.Duration `yaml:"read_timeout" envconfig:"SERVER_READ_TIMEOUT"`
	// WriteTimeout of zero leaves streaming responses bounded only by the
	// upstream idle timeout.
	WriteTimeout time.Duration `yaml:"write_timeout" envconfig:"SERVER_WRITE_TIMEOUT"`
	LogLevel     string        `yaml:"log_level" envconfig:"LOG_LEVEL"`
}

// UpstreamConfig holds settings for fetching from the content host.
type UpstreamConfig struct {
	DriveHost   string `yaml:"drive_host" envconfig:"UPSTREAM_DRIVE_HOST"`
	DocsHost    string `yaml:"docs_host" envconfig:"UPSTREAM_DOCS_HOST"`
	ContentHost string `yaml:"content_host" envconfig:"UPSTREAM_CONTENT_HOST"`
	// UserAgent overrides the browser user agent of every header profile.
	UserAgent         string        `yaml:"user_agent" envconfig:"UPSTREAM_USER_AGENT"`
	ProbeTimeout      time.Duration `yaml:"probe_timeout" envconfig:"UPSTREAM_PROBE_TIMEOUT"`
	StreamIdleTimeout time.Duration `yaml:"stream_idle_timeout" envconfig:"UPSTREAM_STREAM_IDLE_TIMEOUT"`
	MaxRedirects      int           `yaml:"max_redirects" envconfig:"UPSTREAM_MAX_REDIRECTS"`
	MaxHTMLBytes      int64         `yaml:"max_html_bytes" envconfig:"UPSTREAM_MAX_HTML_BYTES"`
	// RequestsPerSecond throttles requests per upstream host. Zero disables throttling.
	RequestsPerSecond float64       `yaml:"requests_per_second" envconfig:"UPSTREAM_RPS"`
	Burst             int           `yaml:"burst" envconfig:"UPSTREAM_BURST"`
	RetryAttempts     int           `yaml:"retry_attempts" envconfig:"UPSTREAM_RETRY_ATTEMPTS"`
	RetryDelay        time.Duration `yaml:"retry_delay" envconfig:"UPSTREAM_RETRY_DELAY"`
	MaxRetryDelay     time.Duration `yaml:"max_retry_delay" envconfig:"UPSTREAM_MAX_RETRY_DELAY"`
}

// ResolverConfig holds resolution state machine limits.
type ResolverConfig struct {
	// MaxDerivedPerCandidate caps follow-up probes of extracted links per candidate.
	MaxDerivedPerCandidate int `yaml:"max_derived_per_candidate" envconfig:"RESOLVER_MAX_DERIVED"`
}

// ExtractConfig holds interstitial link extraction settings.
type ExtractConfig struct {
	// PatternsFile replaces the built-in pattern set when set.
	PatternsFile string `yaml:"patterns_file" envconfig:"EXTRACT_PATTERNS_FILE"`
	MaxLinks     int    `yaml:"max_links" envconfig:"EXTRACT_MAX_LINKS"`
}

// RelayConfig holds client-facing response settings.
type RelayConfig struct {
	CacheControl      string `yaml:"cache_control" envconfig:"RELAY_CACHE_CONTROL"`
	RedirectOnFailure bool   `yaml:"redirect_on_failure" envconfig:"RELAY_REDIRECT_ON_FAILURE"`
}

// Default returns the configuration used when neither the file nor the
// environment sets a value.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:        "0.0.0.0",
			Port:        8080,
			ReadTimeout: 30 * time.Second,
			LogLevel:    "info",
		},
		Upstream: UpstreamConfig{
			DriveHost:         "https://drive.google.com",
			DocsHost:          "https://docs.google.com",
			ContentHost:       "https://drive.usercontent.google.com",
			ProbeTimeout:      20 * time.Second,
			StreamIdleTimeout: 60 * time.Second,
			MaxRedirects:      10,
			MaxHTMLBytes:      2 << 20, // 2MB
			Burst:             4,
			RetryAttempts:     2,
			RetryDelay:        250 * time.Millisecond,
			MaxRetryDelay:     2 * time.Second,
		},
		Resolver: ResolverConfig{MaxDerivedPerCandidate: 2},
		Extract:  ExtractConfig{MaxLinks: 4},
		Relay: RelayConfig{
			CacheControl:      "public, max-age=3600",
			RedirectOnFailure: true,
		},
	}
}

// Load reads configuration from defaults, then the file, then the environment.
// Each layer only overrides the values it sets.
func Load(configPath string) (*Config, error) {
	cfg := Default()

	// Load from YAML file if provided
	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	// Override with environment variables
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("process environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// Validate checks that configuration values are usable.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("SERVER_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}
	if _, err := parseLevel(c.Server.LogLevel); err != nil {
		return err
	}
	if c.Server.PublicBaseURL != "" {
		if err := validateBaseURL("PUBLIC_BASE_URL", c.Server.PublicBaseURL); err != nil {
			return err
		}
	}
	hosts := []struct{ name, value string }{
		{"UPSTREAM_DRIVE_HOST", c.Upstream.DriveHost},
		{"UPSTREAM_DOCS_HOST", c.Upstream.DocsHost},
		{"UPSTREAM_CONTENT_HOST", c.Upstream.ContentHost},
	}
	for _, h := range hosts {
		if err := validateBaseURL(h.name, h.value); err != nil {
			return err
		}
	}
	if c.Upstream.ProbeTimeout <= 0 {
		return fmt.Errorf("UPSTREAM_PROBE_TIMEOUT must be positive")
	}
	if c.Upstream.MaxRedirects <= 0 {
		return fmt.Errorf("UPSTREAM_MAX_REDIRECTS must be positive")
	}
	if c.Upstream.MaxHTMLBytes <= 0 {
		return fmt.Errorf("UPSTREAM_MAX_HTML_BYTES must be positive")
	}
	if c.Upstream.RequestsPerSecond < 0 {
		return fmt.Errorf("UPSTREAM_RPS cannot be negative")
	}
	if c.Upstream.RetryAttempts < 1 {
		return fmt.Errorf("UPSTREAM_RETRY_ATTEMPTS must be at least 1")
	}
	if c.Resolver.MaxDerivedPerCandidate < 0 {
		return fmt.Errorf("RESOLVER_MAX_DERIVED cannot be negative")
	}
	if c.Extract.MaxLinks <= 0 {
		return fmt.Errorf("EXTRACT_MAX_LINKS must be positive")
	}
	return nil
}

// Address returns the server address in host:port format.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Level returns the configured slog level, defaulting to info.
func (c *ServerConfig) Level() slog.Level {
	level, err := parseLevel(c.LogLevel)
	if err != nil {
		return slog.LevelInfo
	}
	return level
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if s == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, fmt.Errorf("LOG_LEVEL %q is invalid", s)
	}
	return level, nil
}

func validateBaseURL(name, value string) error {
	u, err := url.Parse(value)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("%s must be an absolute http(s) URL, got %q", name, value)
	}
	if strings.TrimSuffix(u.Path, "/") != "" || u.RawQuery != "" {
		return fmt.Errorf("%s must not carry a path or query, got %q", name, value)
	}
	return nil
}

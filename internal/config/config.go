package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"cohere-bridge/internal/models"
)

const (
	defaultPort         = 8080
	defaultReadTimeout  = 30 * time.Second
	defaultBaseURL      = "https://api.cohere.ai/v1"
	defaultHeaderWait   = 60 * time.Second
	defaultUserAgent    = "cohere-bridge/0.1"
	defaultModel        = "command-r"
	defaultPrompt       = "hello"
	defaultMetricsPath  = "/metrics"
	defaultLogLevel     = "info"
	defaultLogFormat    = "text"
	envPrefix           = "COHERE_BRIDGE_"
	maxHeaderWaitBudget = 10 * time.Minute
)

// Config represents the application configuration parsed from YAML.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Upstream UpstreamConfig `yaml:"upstream"`
	Defaults DefaultsConfig `yaml:"defaults"`
	Auth     AuthConfig     `yaml:"auth"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Log      LogConfig      `yaml:"log"`
}

// ServerConfig defines listener configuration. A zero WriteTimeout leaves
// streamed responses unbounded.
type ServerConfig struct {
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// UpstreamConfig points at the chat API that serves the model.
type UpstreamConfig struct {
	BaseURL   string        `yaml:"base_url"`
	Timeout   time.Duration `yaml:"timeout"`
	UserAgent string        `yaml:"user_agent"`
}

// DefaultsConfig supplies the values used when a request leaves them out.
type DefaultsConfig struct {
	Model  string         `yaml:"model"`
	Prompt string         `yaml:"prompt"`
	Params map[string]any `yaml:"params"`
}

// AuthConfig controls how the upstream credential is taken from a request.
type AuthConfig struct {
	AllowQueryKey bool `yaml:"allow_query_key"`
}

// MetricsConfig toggles the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:        defaultPort,
			ReadTimeout: defaultReadTimeout,
		},
		Upstream: UpstreamConfig{
			BaseURL:   defaultBaseURL,
			Timeout:   defaultHeaderWait,
			UserAgent: defaultUserAgent,
		},
		Defaults: DefaultsConfig{
			Model:  defaultModel,
			Prompt: defaultPrompt,
			Params: map[string]any{
				"temperature":       0.5,
				"presence_penalty":  0,
				"frequency_penalty": 0,
				"top_p":             1,
			},
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    defaultMetricsPath,
		},
		Log: LogConfig{
			Level:  defaultLogLevel,
			Format: defaultLogFormat,
		},
	}
}

// Load builds the configuration from the built-in defaults, the optional YAML
// file at path, and COHERE_BRIDGE_* environment overrides, then validates it.
func Load(path string) (Config, error) {
	cfg := Defaults()

	if path != "" {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return Config{}, fmt.Errorf("resolve config path: %w", err)
		}

		data, err := os.ReadFile(absPath)
		if err != nil {
			return Config{}, fmt.Errorf("read config file %q: %w", absPath, err)
		}

		// A params block in the file replaces the built-in set instead of merging into it.
		builtinParams := cfg.Defaults.Params
		cfg.Defaults.Params = nil
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %q: %w", absPath, err)
		}
		if cfg.Defaults.Params == nil {
			cfg.Defaults.Params = builtinParams
		}
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadEnvFile loads KEY=VALUE pairs from a dotenv file into the process
// environment without overriding variables that are already set. A missing
// file is not an error.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load env file %q: %w", path, err)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) error {
	if v, ok := lookupEnv("PORT"); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sPORT: %w", envPrefix, err)
		}
		cfg.Server.Port = port
	}
	if v, ok := lookupEnv("UPSTREAM_URL"); ok {
		cfg.Upstream.BaseURL = v
	}
	if v, ok := lookupEnv("DEFAULT_MODEL"); ok {
		cfg.Defaults.Model = v
	}
	if v, ok := lookupEnv("LOG_LEVEL"); ok {
		cfg.Log.Level = v
	}
	if v, ok := lookupEnv("ALLOW_QUERY_KEY"); ok {
		allow, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%sALLOW_QUERY_KEY: %w", envPrefix, err)
		}
		cfg.Auth.AllowQueryKey = allow
	}
	return nil
}

func lookupEnv(name string) (string, bool) {
	v, ok := os.LookupEnv(envPrefix + name)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

// Validate performs strict sanity checks on the configuration.
func (c Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be a valid TCP port, got %d", c.Server.Port)
	}
	if c.Server.ReadTimeout < 0 || c.Server.WriteTimeout < 0 {
		return errors.New("server timeouts must not be negative")
	}

	if strings.TrimSpace(c.Upstream.BaseURL) == "" {
		return errors.New("upstream.base_url must be provided")
	}
	u, err := url.Parse(c.Upstream.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("upstream.base_url %q must be an absolute http(s) URL", c.Upstream.BaseURL)
	}
	if c.Upstream.Timeout < 0 || c.Upstream.Timeout > maxHeaderWaitBudget {
		return fmt.Errorf("upstream.timeout must be between 0 and %s", maxHeaderWaitBudget)
	}

	if strings.TrimSpace(c.Defaults.Model) == "" {
		return errors.New("defaults.model must be provided")
	}
	for key := range c.Defaults.Params {
		if models.IsReservedKey(key) {
			return fmt.Errorf("defaults.params: key %q is reserved", key)
		}
	}

	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path %q must start with /", c.Metrics.Path)
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level %q must be one of debug, info, warn or error", c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("log.format %q must be text or json", c.Log.Format)
	}

	return nil
}

// SamplingParams renders the default sampling parameters as pass-through
// params, sorted by key.
func (d DefaultsConfig) SamplingParams() ([]models.Param, error) {
	keys := make([]string, 0, len(d.Params))
	for key := range d.Params {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	params := make([]models.Param, 0, len(keys))
	for _, key := range keys {
		raw, err := json.Marshal(d.Params[key])
		if err != nil {
			return nil, fmt.Errorf("defaults.params.%s: %w", key, err)
		}
		params = append(params, models.Param{Key: key, Value: raw})
	}
	return params, nil
}

// Package config loads the agentchain service configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Store drivers.
const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
	StoreSQLite = "sqlite"
	StoreMySQL  = "mysql"
)

// Model providers.
const (
	ProviderMock      = "mock"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderGemini    = "gemini"
)

// EnvPrefix is the prefix of environment overrides.
const EnvPrefix = "AGENTCHAIN_"

// Config describes everything the service needs at startup.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Store    StoreConfig    `yaml:"store"`
	Chain    ChainConfig    `yaml:"chain"`
	Model    ModelConfig    `yaml:"model"`
	Runner   RunnerConfig   `yaml:"runner"`
	RabbitMQ RabbitMQConfig `yaml:"rabbitmq"`
	Log      LogConfig      `yaml:"log"`
}

// ServerConfig controls the listening address of the transports.
type ServerConfig struct {
	Address     string `yaml:"address"`
	MetricsPath string `yaml:"metrics_path"`
}

// StoreConfig selects and configures the session store.
type StoreConfig struct {
	Driver string        `yaml:"driver"`
	DSN    string        `yaml:"dsn"`
	Redis  RedisSettings `yaml:"redis"`
}

// RedisSettings holds the connection details for the redis driver.
type RedisSettings struct {
	Address  string        `yaml:"address"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	Prefix   string        `yaml:"prefix"`
	TTL      time.Duration `yaml:"ttl"`
}

// ChainConfig points at the chain service used by the wallet and VC tools.
type ChainConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// ModelConfig selects the completion provider.
type ModelConfig struct {
	Provider    string   `yaml:"provider"`
	Name        string   `yaml:"name"`
	APIKey      string   `yaml:"api_key"`
	BaseURL     string   `yaml:"base_url"`
	Temperature *float64 `yaml:"temperature"`
}

// RunnerConfig bounds the orchestrator.
type RunnerConfig struct {
	Workflow          string `yaml:"workflow"`
	AppName           string `yaml:"app_name"`
	MaxConcurrentRuns int64  `yaml:"max_concurrent_runs"`
	EventBufferSize   int    `yaml:"event_buffer_size"`
}

// RabbitMQConfig enables the event sink when URL is set.
type RabbitMQConfig struct {
	URL        string `yaml:"url"`
	Exchange   string `yaml:"exchange"`
	RoutingKey string `yaml:"routing_key"`
}

// Enabled reports whether events should be published.
func (c RabbitMQConfig) Enabled() bool { return c.URL != "" }

// LogConfig controls the structured logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns a configuration with all defaults applied.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()

	return cfg
}

// Load parses the YAML file at path, applies defaults and environment
// overrides, and validates the result. An empty path yields the defaults
// plus environment overrides.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		if err := yaml.Unmarshal(content, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.applyEnv(os.LookupEnv)
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}

	if c.Server.MetricsPath == "" {
		c.Server.MetricsPath = "/metrics"
	}

	if c.Store.Driver == "" {
		c.Store.Driver = StoreMemory
	}

	if c.Store.Driver == StoreSQLite && c.Store.DSN == "" {
		c.Store.DSN = "agentchain.db"
	}

	if c.Store.Redis.Address == "" {
		c.Store.Redis.Address = "localhost:6379"
	}

	if c.Chain.BaseURL == "" {
		c.Chain.BaseURL = "http://localhost:8888"
	}

	if c.Chain.Timeout <= 0 {
		c.Chain.Timeout = 30 * time.Second
	}

	if c.Model.Provider == "" {
		c.Model.Provider = ProviderMock
	}

	if c.Model.Name == "" {
		c.Model.Name = defaultModelName(c.Model.Provider)
	}

	if c.Runner.Workflow == "" {
		c.Runner.Workflow = "chain"
	}

	if c.Runner.AppName == "" {
		c.Runner.AppName = c.Runner.Workflow
	}

	if c.Runner.MaxConcurrentRuns <= 0 {
		c.Runner.MaxConcurrentRuns = 10
	}

	if c.Runner.EventBufferSize <= 0 {
		c.Runner.EventBufferSize = 100
	}

	if c.RabbitMQ.Exchange == "" {
		c.RabbitMQ.Exchange = "agentchain.events"
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}

	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

func defaultModelName(provider string) string {
	switch provider {
	case ProviderOpenAI:
		return "gpt-4o-mini"
	case ProviderAnthropic:
		return "claude-3-5-haiku-latest"
	case ProviderGemini:
		return "gemini-2.0-flash"
	default:
		return "mock"
	}
}

// applyEnv overrides fields from AGENTCHAIN_* variables. Provider API keys
// fall back to the conventional vendor variables.
func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok && v != "" {
			*dst = v
		}
	}

	str("SERVER_ADDRESS", &c.Server.Address)
	str("STORE_DRIVER", &c.Store.Driver)
	str("STORE_DSN", &c.Store.DSN)
	str("REDIS_ADDRESS", &c.Store.Redis.Address)
	str("REDIS_PASSWORD", &c.Store.Redis.Password)
	str("CHAIN_BASE_URL", &c.Chain.BaseURL)
	str("MODEL_PROVIDER", &c.Model.Provider)
	str("MODEL_NAME", &c.Model.Name)
	str("MODEL_API_KEY", &c.Model.APIKey)
	str("WORKFLOW", &c.Runner.Workflow)
	str("RABBITMQ_URL", &c.RabbitMQ.URL)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)

	if v, ok := lookup(EnvPrefix + "CHAIN_TIMEOUT"); ok {
		if d, err := time.ParseDuration(v); err == nil {
			c.Chain.Timeout = d
		}
	}

	if v, ok := lookup(EnvPrefix + "MAX_CONCURRENT_RUNS"); ok {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.Runner.MaxConcurrentRuns = n
		}
	}

	if c.Model.APIKey == "" {
		if name := providerKeyEnv(c.Model.Provider); name != "" {
			if v, ok := lookup(name); ok {
				c.Model.APIKey = v
			}
		}
	}
}

func providerKeyEnv(provider string) string {
	switch provider {
	case ProviderOpenAI:
		return "OPENAI_API_KEY"
	case ProviderAnthropic:
		return "ANTHROPIC_API_KEY"
	case ProviderGemini:
		return "GEMINI_API_KEY"
	default:
		return ""
	}
}

// Validate checks the configuration for unsupported or inconsistent values.
func (c *Config) Validate() error {
	var errs []error

	switch c.Store.Driver {
	case StoreMemory, StoreRedis:
	case StoreSQLite, StoreMySQL:
		if c.Store.DSN == "" {
			errs = append(errs, fmt.Errorf("store driver %s requires a dsn", c.Store.Driver))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported store driver %q", c.Store.Driver))
	}

	switch c.Model.Provider {
	case ProviderMock:
	case ProviderOpenAI, ProviderAnthropic, ProviderGemini:
		if c.Model.APIKey == "" {
			errs = append(errs, fmt.Errorf("model provider %s requires an api key", c.Model.Provider))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported model provider %q", c.Model.Provider))
	}

	if !strings.HasPrefix(c.Chain.BaseURL, "http://") && !strings.HasPrefix(c.Chain.BaseURL, "https://") {
		errs = append(errs, fmt.Errorf("chain base url %q must be http(s)", c.Chain.BaseURL))
	}

	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("unsupported log format %q", c.Log.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}

	return nil
}

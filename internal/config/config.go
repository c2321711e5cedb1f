package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the resdex API configuration.
type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	Database DatabaseConfig `yaml:"database"`
	Auth     AuthConfig     `yaml:"auth"`
	Query    QueryConfig    `yaml:"query"`
	Storage  StorageConfig  `yaml:"storage"`
	Metadata MetadataConfig `yaml:"metadata"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig names where an API key may be presented.
type AuthConfig struct {
	Header     string `yaml:"header"`
	QueryParam string `yaml:"query_param"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int      `yaml:"port"`
	ReadTimeoutSec  int      `yaml:"read_timeout_sec"`
	WriteTimeoutSec int      `yaml:"write_timeout_sec"`
	ShutdownSec     int      `yaml:"shutdown_timeout_sec"`
	CORSOrigins     []string `yaml:"cors_origins"`
	PublicBaseURL   string   `yaml:"public_base_url"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	Driver           string   `yaml:"driver"` // redis, valkey (default: redis)
	Addrs            []string `yaml:"addrs"`
	Password         string   `yaml:"password"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
	// TextSearch forces full-text title matching on or off; nil follows the driver.
	TextSearch *bool `yaml:"text_search"`
}

// QueryConfig holds pagination and retry settings of the query engine.
type QueryConfig struct {
	DefaultPageSize    int `yaml:"default_page_size"`
	MaxPageSize        int `yaml:"max_page_size"`
	OptionListLimit    int `yaml:"option_list_limit"`
	RetryInitialMillis int `yaml:"retry_initial_ms"`
	RetryMaxMillis     int `yaml:"retry_max_ms"`
	MaxBatchSize       int `yaml:"max_batch_size"`
}

// StorageConfig holds key prefix and file roots.
type StorageConfig struct {
	KeyPrefix   string `yaml:"key_prefix"`
	PublicRoot  string `yaml:"public_root"`
	PrivateRoot string `yaml:"private_root"`
}

// MetadataConfig bounds the metadata compiler.
type MetadataConfig struct {
	MaxDepth int `yaml:"max_depth"`
}

// Load reads configuration from a YAML file by environment name (development, test, production).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	return Parse(data)
}

// Parse decodes YAML bytes, expands ${VAR} references, applies defaults and validates.
func Parse(data []byte) (Config, error) {
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from RESDEX_ENV, defaulting to "development".
func GetEnv() string {
	if env := os.Getenv("RESDEX_ENV"); env != "" {
		return env
	}
	return "development"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 30
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "redis"
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	if c.Auth.Header == "" {
		c.Auth.Header = "X-API-Key"
	}
	if c.Auth.QueryParam == "" {
		c.Auth.QueryParam = "api_key"
	}
	if c.Query.DefaultPageSize <= 0 {
		c.Query.DefaultPageSize = 50
	}
	if c.Query.MaxPageSize <= 0 {
		c.Query.MaxPageSize = 100
	}
	if c.Query.OptionListLimit <= 0 {
		c.Query.OptionListLimit = 9999
	}
	if c.Query.RetryInitialMillis <= 0 {
		c.Query.RetryInitialMillis = 1000
	}
	if c.Query.RetryMaxMillis <= 0 {
		c.Query.RetryMaxMillis = 4000
	}
	if c.Query.MaxBatchSize <= 0 {
		c.Query.MaxBatchSize = 100
	}
	if c.Storage.KeyPrefix == "" {
		c.Storage.KeyPrefix = "resdex:"
	}
	if c.Storage.PublicRoot == "" {
		c.Storage.PublicRoot = "files/public"
	}
	if c.Storage.PrivateRoot == "" {
		c.Storage.PrivateRoot = "files/private"
	}
	if c.Metadata.MaxDepth <= 0 {
		c.Metadata.MaxDepth = 5
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if len(c.Database.Addrs) == 0 {
		return fmt.Errorf("database.addrs is required")
	}
	switch c.Database.Driver {
	case "redis", "valkey":
	default:
		return fmt.Errorf("database.driver must be \"redis\" or \"valkey\", got %q", c.Database.Driver)
	}
	if c.Query.DefaultPageSize > c.Query.MaxPageSize {
		return fmt.Errorf("query.default_page_size %d exceeds query.max_page_size %d",
			c.Query.DefaultPageSize, c.Query.MaxPageSize)
	}
	if c.Query.RetryInitialMillis > c.Query.RetryMaxMillis {
		return fmt.Errorf("query.retry_initial_ms must not exceed query.retry_max_ms")
	}
	if c.Storage.PublicRoot == c.Storage.PrivateRoot {
		return fmt.Errorf("storage.public_root and storage.private_root must differ")
	}
	return nil
}

// findConfigPath looks for config/{env}.yaml in the working directory and its parents.
func findConfigPath(env string) string {
	filename := filepath.Join("config", env+".yaml")

	dir, err := os.Getwd()
	if err != nil {
		return filename
	}
	for {
		if path := filepath.Join(dir, filename); fileExists(path) {
			return path
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return filename
		}
		dir = parent
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}

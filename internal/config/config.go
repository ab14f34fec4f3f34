package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config models slotswap.yml.
type Config struct {
	Server struct {
		Addr        string   `yaml:"addr"`
		BasePath    string   `yaml:"base_path"`
		CORSOrigins []string `yaml:"cors_origins"`
	} `yaml:"server"`
	Storage struct {
		Driver    string `yaml:"driver"`
		Workspace string `yaml:"workspace"`
		DSN       string `yaml:"dsn"`
	} `yaml:"storage"`
	Auth struct {
		JWTSecret string        `yaml:"jwt_secret"`
		TokenTTL  time.Duration `yaml:"token_ttl"`
		DevLogin  bool          `yaml:"dev_login"`
	} `yaml:"auth"`
	Exchange struct {
		MaxAttempts  int           `yaml:"max_attempts"`
		RetryBackoff time.Duration `yaml:"retry_backoff"`
	} `yaml:"exchange"`
}

// DefaultPath is the config file looked up when --config is not given.
const DefaultPath = "slotswap.yml"

// Default returns the config used when no file is present.
func Default() *Config {
	var cfg Config
	cfg.Server.Addr = "127.0.0.1:8080"
	cfg.Server.BasePath = "/v1"
	cfg.Server.CORSOrigins = []string{"http://localhost:5173"}
	cfg.Storage.Driver = DriverSQLite
	cfg.Storage.Workspace = "."
	cfg.Auth.TokenTTL = 24 * time.Hour
	cfg.Exchange.MaxAttempts = 3
	cfg.Exchange.RetryBackoff = 25 * time.Millisecond
	return &cfg
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("config.server.addr is required")
	}
	if c.Server.BasePath != "" && !strings.HasPrefix(c.Server.BasePath, "/") {
		return fmt.Errorf("config.server.base_path must start with /")
	}
	switch c.Storage.Driver {
	case DriverSQLite:
	case DriverPostgres:
		if c.Storage.DSN == "" {
			return fmt.Errorf("config.storage.dsn is required for driver postgres")
		}
	default:
		return fmt.Errorf("config.storage.driver must be %q or %q, got %q", DriverSQLite, DriverPostgres, c.Storage.Driver)
	}
	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("config.auth.token_ttl must be positive")
	}
	if c.Exchange.MaxAttempts < 1 {
		return fmt.Errorf("config.exchange.max_attempts must be at least 1")
	}
	if c.Exchange.RetryBackoff < 0 {
		return fmt.Errorf("config.exchange.retry_backoff must not be negative")
	}
	return nil
}

// FromYAML parses config from raw YAML bytes on top of Default and validates it.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns Default when the file does not exist.
func LoadOptional(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}
	cfg, err := FromFile(path)
	if os.IsNotExist(err) {
		return Default(), nil
	}
	return cfg, err
}

// Sample returns a commented config file suitable for `swp init`.
func Sample() string {
	return sampleTemplate
}

const sampleTemplate = `server:
  addr: 127.0.0.1:8080
  base_path: /v1
  cors_origins:
    - http://localhost:5173

storage:
  # sqlite keeps its database under <workspace>/.slotswap; postgres needs dsn.
  driver: sqlite
  workspace: .
  dsn: ""

auth:
  jwt_secret: ""
  token_ttl: 24h
  dev_login: false

exchange:
  max_attempts: 3
  retry_backoff: 25ms
`

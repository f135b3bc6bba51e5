package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Audit drivers
const (
	AuditDriverFile     = "file"
	AuditDriverSQLite   = "sqlite"
	AuditDriverPostgres = "postgres"
	AuditDriverRedis    = "redis"
)

// Config represents the application configuration
type Config struct {
	Server     ServerConfig     `json:"server" yaml:"server"`
	Repository RepositoryConfig `json:"repository" yaml:"repository"`
	Logging    LoggingConfig    `json:"logging" yaml:"logging"`
	Audit      AuditConfig      `json:"audit" yaml:"audit"`
}

// ServerConfig represents server configuration
type ServerConfig struct {
	Name         string `json:"name" yaml:"name" validate:"required"`
	Version      string `json:"version" yaml:"version"`
	Port         int    `json:"port" yaml:"port" validate:"min=1,max=65535"`
	Host         string `json:"host" yaml:"host" validate:"required"`
	ReadTimeout  int    `json:"read_timeout_seconds" yaml:"read_timeout_seconds" validate:"min=0"`
	WriteTimeout int    `json:"write_timeout_seconds" yaml:"write_timeout_seconds" validate:"min=0"`
}

// RepositoryConfig controls repository selection and the version file
type RepositoryConfig struct {
	// InitialPath is selected at start-up when set.
	InitialPath string `json:"initial_path" yaml:"initial_path"`
	VersionFile string `json:"version_file" yaml:"version_file" validate:"required,plainfile"`
	SeedVersion string `json:"seed_version" yaml:"seed_version" validate:"required,versiontriple"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format" validate:"oneof=json text"`
	Color  bool   `json:"color" yaml:"color"`
}

// AuditConfig selects where operation calls are recorded
type AuditConfig struct {
	Enabled     bool   `json:"enabled" yaml:"enabled"`
	Driver      string `json:"driver" yaml:"driver"`
	Dir         string `json:"dir" yaml:"dir"`
	DSN         string `json:"-" yaml:"dsn"` // Never serialize credentials
	RedisAddr   string `json:"redis_addr" yaml:"redis_addr"`
	RedisStream string `json:"redis_stream" yaml:"redis_stream"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Name:         "lerian-mcp-git",
			Version:      "1.0.0",
			Port:         9080,
			Host:         "localhost",
			ReadTimeout:  30,
			WriteTimeout: 30,
		},
		Repository: RepositoryConfig{
			VersionFile: "version.txt",
			SeedVersion: "1.0.0",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Color:  false,
		},
		Audit: AuditConfig{
			Enabled:     false,
			Driver:      AuditDriverFile,
			Dir:         "./data/audit",
			RedisAddr:   "localhost:6379",
			RedisStream: "mcp-git:audit",
		},
	}
}

// LoadConfig loads configuration from .env, an optional YAML file, environment variables and defaults.
// path overrides MCP_GIT_CONFIG_FILE when non-empty.
func LoadConfig(path string) (*Config, error) {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	config := DefaultConfig()

	if path == "" {
		path = os.Getenv("MCP_GIT_CONFIG_FILE")
	}
	if path != "" {
		if err := loadFromFile(config, path); err != nil {
			return nil, err
		}
	}

	loadFromEnv(config)
	config.normalize()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// loadFromFile overlays a YAML file onto config
func loadFromFile(config *Config, path string) error {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, config); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// loadFromEnv loads configuration from environment variables
func loadFromEnv(config *Config) {
	loadServerConfig(config)
	loadRepositoryConfig(config)
	loadLoggingConfig(config)
	loadAuditConfig(config)
}

// loadServerConfig loads server configuration from environment
func loadServerConfig(config *Config) {
	if name := os.Getenv("SERVICE_NAME"); name != "" {
		config.Server.Name = name
	}
	if version := os.Getenv("SERVICE_VERSION"); version != "" {
		config.Server.Version = version
	}
	if port := os.Getenv("MCP_GIT_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("MCP_GIT_HOST"); host != "" {
		config.Server.Host = host
	}
	if readTimeout := os.Getenv("MCP_GIT_READ_TIMEOUT_SECONDS"); readTimeout != "" {
		if rt, err := strconv.Atoi(readTimeout); err == nil {
			config.Server.ReadTimeout = rt
		}
	}
	if writeTimeout := os.Getenv("MCP_GIT_WRITE_TIMEOUT_SECONDS"); writeTimeout != "" {
		if wt, err := strconv.Atoi(writeTimeout); err == nil {
			config.Server.WriteTimeout = wt
		}
	}
}

// loadRepositoryConfig loads repository configuration from environment
func loadRepositoryConfig(config *Config) {
	if path := os.Getenv("MCP_GIT_REPOSITORY_PATH"); path != "" {
		config.Repository.InitialPath = path
	}
	if file := os.Getenv("MCP_GIT_VERSION_FILE"); file != "" {
		config.Repository.VersionFile = file
	}
	if seed := os.Getenv("MCP_GIT_SEED_VERSION"); seed != "" {
		config.Repository.SeedVersion = seed
	}
}

// loadLoggingConfig loads logging configuration from environment
func loadLoggingConfig(config *Config) {
	if level := os.Getenv("MCP_GIT_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if format := os.Getenv("MCP_GIT_LOG_FORMAT"); format != "" {
		config.Logging.Format = format
	}
	if colored := os.Getenv("MCP_GIT_LOG_COLOR"); colored != "" {
		if c, err := strconv.ParseBool(colored); err == nil {
			config.Logging.Color = c
		}
	}
}

// loadAuditConfig loads audit configuration from environment
func loadAuditConfig(config *Config) {
	if enabled := os.Getenv("MCP_GIT_AUDIT_ENABLED"); enabled != "" {
		if e, err := strconv.ParseBool(enabled); err == nil {
			config.Audit.Enabled = e
		}
	}
	if driver := os.Getenv("MCP_GIT_AUDIT_DRIVER"); driver != "" {
		config.Audit.Driver = strings.ToLower(driver)
	}
	if dir := os.Getenv("MCP_GIT_AUDIT_DIR"); dir != "" {
		config.Audit.Dir = dir
	}
	if dsn := os.Getenv("MCP_GIT_AUDIT_DSN"); dsn != "" {
		config.Audit.DSN = dsn
	} else if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		config.Audit.DSN = dsn
	}
	if addr := os.Getenv("MCP_GIT_AUDIT_REDIS_ADDR"); addr != "" {
		config.Audit.RedisAddr = addr
	} else if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		config.Audit.RedisAddr = addr
	}
	if stream := os.Getenv("MCP_GIT_AUDIT_REDIS_STREAM"); stream != "" {
		config.Audit.RedisStream = stream
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if err := validateStruct(c); err != nil {
		return err
	}

	if c.Audit.Enabled {
		switch c.Audit.Driver {
		case AuditDriverFile:
			if c.Audit.Dir == "" {
				return fmt.Errorf("audit directory cannot be empty for the file driver")
			}
		case AuditDriverSQLite, AuditDriverPostgres:
			if c.Audit.DSN == "" {
				return fmt.Errorf("audit DSN is required for the %s driver", c.Audit.Driver)
			}
		case AuditDriverRedis:
			if c.Audit.RedisAddr == "" || c.Audit.RedisStream == "" {
				return fmt.Errorf("redis address and stream are required for the redis audit driver")
			}
		default:
			return fmt.Errorf("unknown audit driver: %s", c.Audit.Driver)
		}
	}

	return nil
}

// normalize lower-cases enumerated values so file and env input are case-insensitive
func (c *Config) normalize() {
	c.Logging.Format = strings.ToLower(c.Logging.Format)
	c.Audit.Driver = strings.ToLower(c.Audit.Driver)
}

// Address returns the HTTP listen address
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"shortly/internal/domain"

	"github.com/goccy/go-yaml"
	"github.com/kelseyhightower/envconfig"
)

// DefaultRedisPort is used for node addresses given without a port.
const DefaultRedisPort = "6379"

// Store backends.
const (
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig
	Store    StoreConfig
	Redis    RedisConfig
	Postgres PostgresConfig
	App      AppConfig
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Port            string        `envconfig:"SERVER_PORT" default:"8080"`
	BaseURL         string        `envconfig:"SERVER_BASE_URL"`
	ReadTimeout     time.Duration `envconfig:"SERVER_READ_TIMEOUT" default:"10s"`
	WriteTimeout    time.Duration `envconfig:"SERVER_WRITE_TIMEOUT" default:"10s"`
	IdleTimeout     time.Duration `envconfig:"SERVER_IDLE_TIMEOUT" default:"120s"`
	ShutdownTimeout time.Duration `envconfig:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`
}

// PublicBaseURL returns the URL prefix short links are built on.
func (c *ServerConfig) PublicBaseURL() string {
	if c.BaseURL != "" {
		return strings.TrimRight(c.BaseURL, "/")
	}
	return "http://localhost:" + c.Port
}

// Validate validates the server configuration.
func (c *ServerConfig) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("port cannot be empty")
	}
	if c.ReadTimeout <= 0 || c.WriteTimeout <= 0 || c.IdleTimeout <= 0 {
		return fmt.Errorf("server timeouts must be positive")
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("shutdown timeout must be positive")
	}
	return nil
}

// StoreConfig selects the key-value backend
type StoreConfig struct {
	Backend string `envconfig:"STORE_BACKEND" default:"redis"`
}

// Validate validates the store configuration.
func (c *StoreConfig) Validate() error {
	switch c.Backend {
	case BackendRedis, BackendPostgres, BackendMemory:
		return nil
	default:
		return fmt.Errorf("%w: unknown store backend %q (must be one of: redis, postgres, memory)", domain.ErrConfiguration, c.Backend)
	}
}

// RedisConfig holds the Redis topology and client settings.
// One write node; one or more read nodes, comma separated in the environment.
type RedisConfig struct {
	WriteNode    string        `envconfig:"REDIS_WRITE_NODE" default:"localhost:6379"`
	ReadNodes    []string      `envconfig:"REDIS_READ_NODES" default:"localhost:6379"`
	Password     string        `envconfig:"REDIS_PASSWORD"`
	DB           int           `envconfig:"REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"REDIS_READ_TIMEOUT" default:"3s"`
	WriteTimeout time.Duration `envconfig:"REDIS_WRITE_TIMEOUT" default:"3s"`
}

// Nodes returns the write node and read nodes as host:port addresses.
func (c *RedisConfig) Nodes() (string, []string, error) {
	write, err := ParseNodeAddress(c.WriteNode)
	if err != nil {
		return "", nil, fmt.Errorf("write node: %w", err)
	}

	if len(c.ReadNodes) == 0 {
		return "", nil, domain.ErrNoReplicas
	}

	reads := make([]string, 0, len(c.ReadNodes))
	for _, node := range c.ReadNodes {
		addr, err := ParseNodeAddress(node)
		if err != nil {
			return "", nil, fmt.Errorf("read node: %w", err)
		}
		reads = append(reads, addr)
	}

	return write, reads, nil
}

// Validate validates the Redis configuration.
func (c *RedisConfig) Validate() error {
	if _, _, err := c.Nodes(); err != nil {
		return err
	}
	if c.PoolSize <= 0 {
		return fmt.Errorf("pool size must be positive")
	}
	return nil
}

// PostgresConfig holds the PostgreSQL topology: the primary and its standbys.
type PostgresConfig struct {
	WriteDSN        string        `envconfig:"PG_WRITE_DSN"`
	ReadDSNs        []string      `envconfig:"PG_READ_DSNS"`
	MaxConns        int           `envconfig:"PG_MAX_CONNS" default:"25"`
	MinConns        int           `envconfig:"PG_MIN_CONNS" default:"5"`
	ConnMaxLifetime time.Duration `envconfig:"PG_CONN_MAX_LIFETIME" default:"5m"`
}

// Validate validates the PostgreSQL configuration.
func (c *PostgresConfig) Validate() error {
	if c.WriteDSN == "" {
		return fmt.Errorf("%w: write DSN cannot be empty", domain.ErrInvalidNodeAddress)
	}
	if len(c.ReadDSNs) == 0 {
		return domain.ErrNoReplicas
	}
	for _, dsn := range c.ReadDSNs {
		if strings.TrimSpace(dsn) == "" {
			return fmt.Errorf("%w: read DSN cannot be empty", domain.ErrInvalidNodeAddress)
		}
	}
	if c.MinConns > c.MaxConns {
		return fmt.Errorf("min connections (%d) cannot be greater than max connections (%d)", c.MinConns, c.MaxConns)
	}
	return nil
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Environment        string `envconfig:"APP_ENV" default:"development"`
	LogLevel           string `envconfig:"LOG_LEVEL" default:"info"`
	ConfigFile         string `envconfig:"CONFIG_FILE"`
	RateLimitEnabled   bool   `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
	RateLimitPerMinute int    `envconfig:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"100"`
	EnableMetrics      bool   `envconfig:"ENABLE_METRICS" default:"true"`
}

// Validate validates the app configuration.
func (c *AppConfig) Validate() error {
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log level: %s (must be one of: debug, info, warn, error)", c.LogLevel)
	}
	if c.RateLimitEnabled && c.RateLimitPerMinute <= 0 {
		return fmt.Errorf("rate limit must be positive when enabled")
	}
	return nil
}

// TopologyFile is the optional YAML file naming the store nodes:
//
//	backend: redis
//	redis:
//	  write_node: redis-master
//	  read_nodes: [redis-replica-1, "redis-replica-2:6380"]
//
// Non-empty values override the environment.
type TopologyFile struct {
	Backend string `yaml:"backend"`
	Redis   struct {
		WriteNode string   `yaml:"write_node"`
		ReadNodes []string `yaml:"read_nodes"`
	} `yaml:"redis"`
	Postgres struct {
		WriteDSN string   `yaml:"write_dsn"`
		ReadDSNs []string `yaml:"read_dsns"`
	} `yaml:"postgres"`
}

// Load reads configuration from environment variables, then applies the
// topology file named by CONFIG_FILE if set, then validates the result.
func Load() (*Config, error) {
	cfg := &Config{}

	sections := []struct {
		name string
		target any
	}{
		{"Server", &cfg.Server},
		{"Store", &cfg.Store},
		{"Redis", &cfg.Redis},
		{"Postgres", &cfg.Postgres},
		{"App", &cfg.App},
	}
	for _, s := range sections {
		if err := envconfig.Process("", s.target); err != nil {
			return nil, fmt.Errorf("failed to load %s config: %w", s.name, err)
		}
	}

	if cfg.App.ConfigFile != "" {
		if err := cfg.applyTopologyFile(cfg.App.ConfigFile); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate validates every section relevant to the selected backend.
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("invalid Server config: %w", err)
	}
	if err := c.Store.Validate(); err != nil {
		return fmt.Errorf("invalid Store config: %w", err)
	}
	switch c.Store.Backend {
	case BackendRedis:
		if err := c.Redis.Validate(); err != nil {
			return fmt.Errorf("invalid Redis config: %w", err)
		}
	case BackendPostgres:
		if err := c.Postgres.Validate(); err != nil {
			return fmt.Errorf("invalid Postgres config: %w", err)
		}
	}
	if err := c.App.Validate(); err != nil {
		return fmt.Errorf("invalid App config: %w", err)
	}
	return nil
}

func (c *Config) applyTopologyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var file TopologyFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("%w: failed to parse config file %s: %w", domain.ErrConfiguration, path, err)
	}

	if file.Backend != "" {
		c.Store.Backend = file.Backend
	}
	if file.Redis.WriteNode != "" {
		c.Redis.WriteNode = file.Redis.WriteNode
	}
	if len(file.Redis.ReadNodes) > 0 {
		c.Redis.ReadNodes = file.Redis.ReadNodes
	}
	if file.Postgres.WriteDSN != "" {
		c.Postgres.WriteDSN = file.Postgres.WriteDSN
	}
	if len(file.Postgres.ReadDSNs) > 0 {
		c.Postgres.ReadDSNs = file.Postgres.ReadDSNs
	}

	return nil
}

// ParseNodeAddress normalizes "host" or "host:port" to "host:port",
// filling in DefaultRedisPort when the port is omitted.
func ParseNodeAddress(addr string) (string, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return "", fmt.Errorf("%w: empty address", domain.ErrInvalidNodeAddress)
	}

	if !strings.Contains(addr, ":") {
		return net.JoinHostPort(addr, DefaultRedisPort), nil
	}

	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "", fmt.Errorf("%w: %q: %v", domain.ErrInvalidNodeAddress, addr, err)
	}
	if host == "" {
		return "", fmt.Errorf("%w: %q: missing host", domain.ErrInvalidNodeAddress, addr)
	}

	p, err := strconv.Atoi(port)
	if err != nil || p < 1 || p > 65535 {
		return "", fmt.Errorf("%w: %q: bad port", domain.ErrInvalidNodeAddress, addr)
	}

	return net.JoinHostPort(host, port), nil
}

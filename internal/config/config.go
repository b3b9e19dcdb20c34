package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/cathouse/taskmanager/internal/store"
)

// EnvPrefix is prepended to every configuration key looked up in the
// environment: server.port becomes TASKMANAGER_SERVER_PORT.
const EnvPrefix = "TASKMANAGER"

// ErrInvalid is wrapped by every validation failure returned from Load.
var ErrInvalid = errors.New("invalid configuration")

// Config is the effective service configuration.
type Config struct {
	Environment string         `mapstructure:"environment" yaml:"environment"`
	Server      ServerConfig   `mapstructure:"server" yaml:"server"`
	Database    DatabaseConfig `mapstructure:"database" yaml:"database"`
	Auth        AuthConfig     `mapstructure:"auth" yaml:"auth"`
	Log         LogConfig      `mapstructure:"log" yaml:"log"`
	Metrics     MetricsConfig  `mapstructure:"metrics" yaml:"metrics"`
	MCP         MCPConfig      `mapstructure:"mcp" yaml:"mcp"`
}

// ServerConfig controls the HTTP server behavior.
type ServerConfig struct {
	Host            string        `mapstructure:"host" yaml:"host"`
	Port            int           `mapstructure:"port" yaml:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	CORSOrigins     []string      `mapstructure:"cors_origins" yaml:"cors_origins"`
	MaxBodySize     int64         `mapstructure:"max_body_size" yaml:"max_body_size"`
	RateLimit       int           `mapstructure:"rate_limit" yaml:"rate_limit"`
	// AdminRateLimit caps /admin requests per client IP per minute,
	// counting rejected admin keys. Zero disables it.
	AdminRateLimit int `mapstructure:"admin_rate_limit" yaml:"admin_rate_limit"`
}

// DatabaseConfig selects the backing database and its pool.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver" yaml:"driver"`
	URL             string        `mapstructure:"url" yaml:"url"`
	MaxOpenConns    int           `mapstructure:"max_open_conns" yaml:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" yaml:"conn_max_lifetime"`
}

// AuthConfig holds the admin credential and key rotation policy.
type AuthConfig struct {
	AdminAPIKey         string        `mapstructure:"admin_api_key" yaml:"admin_api_key"`
	RotationGracePeriod time.Duration `mapstructure:"rotation_grace_period" yaml:"rotation_grace_period"`
}

// LogConfig controls log output.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// MetricsConfig toggles the Prometheus endpoint and middleware.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

// MCPConfig controls the MCP (Model Context Protocol) server. ServiceKey is
// the secret every tool call authenticates with.
type MCPConfig struct {
	ServiceKey string `mapstructure:"service_key" yaml:"service_key"`
	Transport  string `mapstructure:"transport" yaml:"transport"`
	Port       int    `mapstructure:"port" yaml:"port"`
}

// legacyEnv maps configuration keys to the unprefixed variable names older
// deployments set. The prefixed name always wins.
var legacyEnv = map[string]string{
	"database.url":        "DATABASE_URL",
	"auth.admin_api_key":  "ADMIN_API_KEY",
	"server.cors_origins": "CORS_ORIGINS",
	"log.level":           "LOG_LEVEL",
	"server.port":         "PORT",
}

// Default returns a Config pre-filled with defaults. Database URL and admin
// key have no defaults and must be provided.
func Default() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8000,
			ShutdownTimeout: 30 * time.Second,
			CORSOrigins:     []string{"http://localhost:3000"},
			MaxBodySize:     1 << 20,
			AdminRateLimit:  30,
		},
		Database: DatabaseConfig{
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 30 * time.Minute,
		},
		Auth: AuthConfig{
			RotationGracePeriod: 7 * 24 * time.Hour,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{Enabled: true},
		MCP: MCPConfig{
			Transport: "stdio",
			Port:      3001,
		},
	}
}

// SetDefaults registers every default on v so that environment variables
// for those keys are picked up by Unmarshal.
func SetDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("environment", d.Environment)

	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)
	v.SetDefault("server.cors_origins", d.Server.CORSOrigins)
	v.SetDefault("server.max_body_size", d.Server.MaxBodySize)
	v.SetDefault("server.rate_limit", d.Server.RateLimit)
	v.SetDefault("server.admin_rate_limit", d.Server.AdminRateLimit)

	v.SetDefault("database.driver", d.Database.Driver)
	v.SetDefault("database.url", d.Database.URL)
	v.SetDefault("database.max_open_conns", d.Database.MaxOpenConns)
	v.SetDefault("database.max_idle_conns", d.Database.MaxIdleConns)
	v.SetDefault("database.conn_max_lifetime", d.Database.ConnMaxLifetime)

	v.SetDefault("auth.admin_api_key", d.Auth.AdminAPIKey)
	v.SetDefault("auth.rotation_grace_period", d.Auth.RotationGracePeriod)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)

	v.SetDefault("metrics.enabled", d.Metrics.Enabled)

	v.SetDefault("mcp.service_key", d.MCP.ServiceKey)
	v.SetDefault("mcp.transport", d.MCP.Transport)
	v.SetDefault("mcp.port", d.MCP.Port)
}

// BindEnv wires the TASKMANAGER_ prefix and the legacy variable names.
func BindEnv(v *viper.Viper) error {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, legacy := range legacyEnv {
		prefixed := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, legacy); err != nil {
			return fmt.Errorf("bind %s: %w", key, err)
		}
	}
	return nil
}

// Load reads the effective configuration from v (defaults, config file,
// environment) without validating it.
func Load(v *viper.Viper) (*Config, error) {
	SetDefaults(v)
	if err := BindEnv(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.Server.CORSOrigins = splitList(cfg.Server.CORSOrigins)
	return &cfg, nil
}

// Validate normalises the configuration in place and reports every
// problem at once.
func (c *Config) Validate() error {
	var problems []string

	c.Database.URL = strings.TrimSpace(c.Database.URL)
	if c.Database.Driver == "" {
		c.Database.Driver = inferDriver(c.Database.URL)
	}
	dialect, err := store.ParseDialect(c.Database.Driver)
	if err != nil {
		problems = append(problems, err.Error())
	}

	switch {
	case c.Database.URL == "":
		problems = append(problems, "database.url is required")
	case dialect == store.DialectPostgres:
		normalised, err := normalisePostgresURL(c.Database.URL)
		if err != nil {
			problems = append(problems, err.Error())
		} else {
			c.Database.URL = normalised
		}
	}

	if c.Auth.AdminAPIKey == "" {
		problems = append(problems, "auth.admin_api_key is required")
	}
	if c.Auth.RotationGracePeriod <= 0 {
		problems = append(problems, "auth.rotation_grace_period must be positive")
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		problems = append(problems, fmt.Sprintf("server.port %d out of range", c.Server.Port))
	}
	if c.Server.RateLimit < 0 {
		problems = append(problems, "server.rate_limit must not be negative")
	}
	if c.Server.AdminRateLimit < 0 {
		problems = append(problems, "server.admin_rate_limit must not be negative")
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		problems = append(problems, err.Error())
	}
	if f := strings.ToLower(c.Log.Format); f != "text" && f != "json" {
		problems = append(problems, fmt.Sprintf("log.format %q must be text or json", c.Log.Format))
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, "; "))
	}
	return nil
}

// StoreOptions returns the connection options for store.Open.
func (c *Config) StoreOptions() store.Options {
	return store.Options{
		Driver:          c.Database.Driver,
		DSN:             c.Database.URL,
		MaxOpenConns:    c.Database.MaxOpenConns,
		MaxIdleConns:    c.Database.MaxIdleConns,
		ConnMaxLifetime: c.Database.ConnMaxLifetime,
	}
}

// Redacted returns a copy safe to print: secrets are masked and the
// database password removed.
func (c *Config) Redacted() *Config {
	out := *c
	out.Server.CORSOrigins = append([]string(nil), c.Server.CORSOrigins...)
	out.Auth.AdminAPIKey = mask(c.Auth.AdminAPIKey)
	out.MCP.ServiceKey = mask(c.MCP.ServiceKey)
	if u, err := url.Parse(c.Database.URL); err == nil && u.User != nil {
		out.Database.URL = u.Redacted()
	}
	return &out
}

// ParseLevel maps a configured level name to a slog.Level.
func ParseLevel(level string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return 0, fmt.Errorf("log.level %q is not one of debug, info, warn, error", level)
	}
	return l, nil
}

func inferDriver(dsn string) string {
	switch {
	case strings.HasPrefix(dsn, "postgres://"),
		strings.HasPrefix(dsn, "postgresql://"),
		strings.HasPrefix(dsn, "postgresql+"):
		return string(store.DialectPostgres)
	case dsn == "":
		return ""
	default:
		return string(store.DialectSQLite)
	}
}

// normalisePostgresURL accepts postgres://, postgresql:// and the
// SQLAlchemy-style postgresql+asyncpg:// scheme.
func normalisePostgresURL(dsn string) (string, error) {
	switch {
	case strings.HasPrefix(dsn, "postgresql+asyncpg://"):
		return "postgresql://" + strings.TrimPrefix(dsn, "postgresql+asyncpg://"), nil
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return dsn, nil
	default:
		return "", fmt.Errorf("database.url must start with postgres://, postgresql:// or postgresql+asyncpg://")
	}
}

// splitList flattens comma-separated entries, as set through CORS_ORIGINS.
func splitList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}

func mask(secret string) string {
	if secret == "" {
		return ""
	}
	return "********"
}

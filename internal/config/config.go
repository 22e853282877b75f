// Package config provides application configuration with multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (SORVX_* plus DATABASE_URL)
//  2. Config file (./config.yaml or ~/.sorvx/config.yaml)
//  3. Default values
//
// Security: sensitive fields (database password, auth secret) are masked in
// LogValue and never written to logs.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// Sentinel errors for Go-idiomatic error checking with errors.Is().
var (
	// ErrMissingAuthSecret indicates the auth token secret is not set.
	ErrMissingAuthSecret = errors.New("missing auth secret")

	// ErrWeakAuthSecret indicates the auth token secret is too short.
	ErrWeakAuthSecret = errors.New("auth secret must be at least 32 bytes")

	// ErrInvalidModelName indicates the model name is empty or malformed.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is empty.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidMaxTurns indicates the turn cap is out of range.
	ErrInvalidMaxTurns = errors.New("invalid max turns")

	// ErrInvalidUploadLimit indicates the upload size cap is non-positive.
	ErrInvalidUploadLimit = errors.New("invalid upload size limit")
)

const (
	// DefaultChatModel is the provider-qualified model used for the chat loop.
	DefaultChatModel = "googleai/gemini-2.0-flash"

	// DefaultToolModel is the provider-qualified model used by structured
	// tool generation. A fast model keeps mid-turn tool latency low.
	DefaultToolModel = "googleai/gemini-2.0-flash-lite"

	// DefaultMaxTurns caps the generate/tool-dispatch loop per request.
	DefaultMaxTurns = 8

	// MaxAllowedTurns is the absolute cap to prevent runaway tool loops.
	MaxAllowedTurns = 32

	// DefaultMaxUploadBytes is the upload size limit (5 MiB).
	DefaultMaxUploadBytes = 5 * 1024 * 1024

	// MinAuthSecretLen is the minimum byte length for the HMAC auth secret.
	MinAuthSecretLen = 32
)

// Config stores application configuration.
type Config struct {
	// HTTP server
	Addr string `mapstructure:"addr"`

	// AI models (provider-qualified, e.g. "googleai/gemini-2.0-flash")
	ChatModel string `mapstructure:"chat_model"`
	ToolModel string `mapstructure:"tool_model"`
	MaxTurns  int    `mapstructure:"max_turns"`

	// Storage
	PostgresHost     string `mapstructure:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password"` // SENSITIVE
	PostgresDBName   string `mapstructure:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode"`

	// Auth: HMAC secret for signed user tokens.
	AuthSecret string `mapstructure:"auth_secret"` // SENSITIVE

	// Uploads
	UploadDir      string `mapstructure:"upload_dir"`
	MaxUploadBytes int64  `mapstructure:"max_upload_bytes"`

	// Logging
	LogLevel string `mapstructure:"log_level"`
	LogJSON  bool   `mapstructure:"log_json"`

	// Dev mode relaxes transport security (no HSTS, insecure cookies).
	IsDev bool `mapstructure:"dev"`
}

// Load loads configuration with priority: env > config file > defaults.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".sorvx"))
	}

	setDefaults(v)

	v.SetEnvPrefix("SORVX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine; defaults and env cover it.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	// DATABASE_URL overrides individual postgres_* settings (cloud convention).
	if err := cfg.parseDatabaseURL(os.Getenv("DATABASE_URL")); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("addr", "127.0.0.1:3400")

	v.SetDefault("chat_model", DefaultChatModel)
	v.SetDefault("tool_model", DefaultToolModel)
	v.SetDefault("max_turns", DefaultMaxTurns)

	v.SetDefault("postgres_host", "localhost")
	v.SetDefault("postgres_port", 5432)
	v.SetDefault("postgres_user", "sorvx")
	v.SetDefault("postgres_password", "sorvx_dev_password")
	v.SetDefault("postgres_db_name", "sorvx")
	v.SetDefault("postgres_ssl_mode", "disable")

	v.SetDefault("upload_dir", "uploads")
	v.SetDefault("max_upload_bytes", DefaultMaxUploadBytes)

	v.SetDefault("log_level", "info")
	v.SetDefault("log_json", false)
	v.SetDefault("dev", false)
}

// Validate checks the configuration and fails fast on invalid values.
func (c *Config) Validate() error {
	if c.ChatModel == "" || !strings.Contains(c.ChatModel, "/") {
		return fmt.Errorf("%w: chat_model %q must be provider-qualified", ErrInvalidModelName, c.ChatModel)
	}
	if c.ToolModel == "" || !strings.Contains(c.ToolModel, "/") {
		return fmt.Errorf("%w: tool_model %q must be provider-qualified", ErrInvalidModelName, c.ToolModel)
	}
	if c.PostgresHost == "" {
		return ErrInvalidPostgresHost
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: %d", ErrInvalidPostgresPort, c.PostgresPort)
	}
	if c.MaxTurns < 1 || c.MaxTurns > MaxAllowedTurns {
		return fmt.Errorf("%w: %d (allowed 1-%d)", ErrInvalidMaxTurns, c.MaxTurns, MaxAllowedTurns)
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidUploadLimit, c.MaxUploadBytes)
	}
	if c.AuthSecret == "" {
		return ErrMissingAuthSecret
	}
	if len(c.AuthSecret) < MinAuthSecretLen {
		return ErrWeakAuthSecret
	}
	return nil
}

// PostgresConnectionString returns the PostgreSQL DSN for pgx.
// Password is single-quoted to handle special characters.
func (c *Config) PostgresConnectionString() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.PostgresHost,
		c.PostgresPort,
		c.PostgresUser,
		quoteDSNValue(c.PostgresPassword),
		c.PostgresDBName,
		c.PostgresSSLMode,
	)
}

// PostgresURL returns the PostgreSQL URL for golang-migrate.
func (c *Config) PostgresURL() string {
	u := &url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.PostgresUser, c.PostgresPassword),
		Host:     fmt.Sprintf("%s:%d", c.PostgresHost, c.PostgresPort),
		Path:     c.PostgresDBName,
		RawQuery: fmt.Sprintf("sslmode=%s", c.PostgresSSLMode),
	}
	return u.String()
}

// parseDatabaseURL applies a postgres:// URL over the individual settings.
// An empty URL is a no-op.
func (c *Config) parseDatabaseURL(dbURL string) error {
	if dbURL == "" {
		return nil
	}

	parsed, err := url.Parse(dbURL)
	if err != nil {
		return fmt.Errorf("invalid DATABASE_URL format: %w", err)
	}
	if parsed.Scheme != "postgres" && parsed.Scheme != "postgresql" {
		return fmt.Errorf("DATABASE_URL must start with postgres:// or postgresql://, got %q", parsed.Scheme)
	}

	if host := parsed.Hostname(); host != "" {
		c.PostgresHost = host
	}
	if portStr := parsed.Port(); portStr != "" {
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return fmt.Errorf("invalid port in DATABASE_URL: %w", err)
		}
		c.PostgresPort = port
	}
	if parsed.User != nil {
		if user := parsed.User.Username(); user != "" {
			c.PostgresUser = user
		}
		if password, ok := parsed.User.Password(); ok {
			c.PostgresPassword = password
		}
	}
	if parsed.Path != "" {
		c.PostgresDBName = strings.TrimPrefix(parsed.Path, "/")
	}
	if sslmode := parsed.Query().Get("sslmode"); sslmode != "" {
		c.PostgresSSLMode = sslmode
	}
	return nil
}

// LogValue implements slog.LogValuer so the config can be logged at startup
// without leaking secrets.
func (c *Config) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("addr", c.Addr),
		slog.String("chat_model", c.ChatModel),
		slog.String("tool_model", c.ToolModel),
		slog.Int("max_turns", c.MaxTurns),
		slog.String("postgres_host", c.PostgresHost),
		slog.Int("postgres_port", c.PostgresPort),
		slog.String("postgres_db_name", c.PostgresDBName),
		slog.String("postgres_password", mask(c.PostgresPassword)),
		slog.String("auth_secret", mask(c.AuthSecret)),
		slog.String("upload_dir", c.UploadDir),
		slog.Int64("max_upload_bytes", c.MaxUploadBytes),
	)
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	return "***"
}

// quoteDSNValue quotes a value for PostgreSQL key=value DSN format.
func quoteDSNValue(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `'`, `\'`)
	return "'" + s + "'"
}

package config

import (
	"fmt"
	"time"
)

// Storage backends.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Broadcast backends.
const (
	BroadcastLocal = "local"
	BroadcastRedis = "redis"
)

// DefaultJWTSecret is only suitable for local development.
const DefaultJWTSecret = "change-me"

// Operator is a staff account allowed to log in to the admin endpoints.
type Operator struct {
	Username     string `mapstructure:"username" yaml:"username"`
	PasswordHash string `mapstructure:"password_hash" yaml:"password_hash"`
}

// Config holds server configuration values.
type Config struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`

	LogLevel  string `mapstructure:"log_level" yaml:"log_level"`
	LogFormat string `mapstructure:"log_format" yaml:"log_format"`

	DatabaseDriver string `mapstructure:"database_driver" yaml:"database_driver"`
	DatabasePath   string `mapstructure:"database_path" yaml:"database_path"`
	PostgresURL    string `mapstructure:"postgres_url" yaml:"postgres_url"`

	Broadcast     string `mapstructure:"broadcast" yaml:"broadcast"`
	RedisAddr     string `mapstructure:"redis_addr" yaml:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password" yaml:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db" yaml:"redis_db"`

	JWTSecret   string        `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	JWTIssuer   string        `mapstructure:"jwt_issuer" yaml:"jwt_issuer"`
	JWTAudience string        `mapstructure:"jwt_audience" yaml:"jwt_audience"`
	JWTTTL      time.Duration `mapstructure:"jwt_ttl" yaml:"jwt_ttl"`
	Operators   []Operator    `mapstructure:"operators" yaml:"operators"`

	MaxMessageBytes    int64         `mapstructure:"max_message_bytes" yaml:"max_message_bytes"`
	SendBuffer         int           `mapstructure:"send_buffer" yaml:"send_buffer"`
	RateLimitPerMinute int           `mapstructure:"rate_limit_per_minute" yaml:"rate_limit_per_minute"`
	ClaimAttempts      int           `mapstructure:"claim_attempts" yaml:"claim_attempts"`
	AdminEcho          bool          `mapstructure:"admin_echo" yaml:"admin_echo"`
	WaitingTTL         time.Duration `mapstructure:"waiting_ttl" yaml:"waiting_ttl"`
	ReapInterval       time.Duration `mapstructure:"reap_interval" yaml:"reap_interval"`

	CORSAllowedOrigins []string `mapstructure:"cors_allowed_origins" yaml:"cors_allowed_origins"`
	WSOriginPatterns   []string `mapstructure:"ws_origin_patterns" yaml:"ws_origin_patterns"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:              ":8080",
		ReadHeaderTimeout: 5 * time.Second,
		ShutdownTimeout:   5 * time.Second,

		LogLevel:  "info",
		LogFormat: "console",

		DatabaseDriver: DriverSQLite,
		DatabasePath:   "strangerchat.db",

		Broadcast: BroadcastLocal,
		RedisAddr: "localhost:6379",

		JWTSecret:   DefaultJWTSecret,
		JWTIssuer:   "strangerchat",
		JWTAudience: "strangerchat",
		JWTTTL:      24 * time.Hour,

		MaxMessageBytes:    64 << 10,
		SendBuffer:         16,
		RateLimitPerMinute: 120,
		ClaimAttempts:      5,
		AdminEcho:          true,
		WaitingTTL:         10 * time.Minute,
		ReapInterval:       time.Minute,

		CORSAllowedOrigins: []string{"*"},
	}
}

// UpdateFrom overwrites non-zero values from other config into receiver.
func (c *Config) UpdateFrom(other Config) {
	if other.Addr != "" {
		c.Addr = other.Addr
	}
	if other.ReadHeaderTimeout != 0 {
		c.ReadHeaderTimeout = other.ReadHeaderTimeout
	}
	if other.ShutdownTimeout != 0 {
		c.ShutdownTimeout = other.ShutdownTimeout
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
	if other.LogFormat != "" {
		c.LogFormat = other.LogFormat
	}
	if other.DatabaseDriver != "" {
		c.DatabaseDriver = other.DatabaseDriver
	}
	if other.DatabasePath != "" {
		c.DatabasePath = other.DatabasePath
	}
	if other.PostgresURL != "" {
		c.PostgresURL = other.PostgresURL
	}
	if other.Broadcast != "" {
		c.Broadcast = other.Broadcast
	}
	if other.RedisAddr != "" {
		c.RedisAddr = other.RedisAddr
	}
}

// Validate reports settings that cannot work together.
func (c *Config) Validate() error {
	switch c.DatabaseDriver {
	case DriverSQLite:
		if c.DatabasePath == "" {
			return fmt.Errorf("database_path is required for the sqlite driver")
		}
	case DriverPostgres:
		if c.PostgresURL == "" {
			return fmt.Errorf("postgres_url is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown database_driver %q", c.DatabaseDriver)
	}

	switch c.Broadcast {
	case BroadcastLocal:
	case BroadcastRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("redis_addr is required for redis broadcast")
		}
	default:
		return fmt.Errorf("unknown broadcast %q", c.Broadcast)
	}

	if c.JWTSecret == "" {
		return fmt.Errorf("jwt_secret must not be empty")
	}
	if c.ReapInterval <= 0 || c.WaitingTTL <= 0 {
		return fmt.Errorf("waiting_ttl and reap_interval must be positive")
	}
	return nil
}

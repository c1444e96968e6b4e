// Package config loads process configuration from environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the full process configuration.
type Config struct {
	Server       ServerConfig
	Database     DatabaseConfig
	Logging      LoggingConfig
	Auth         AuthConfig
	Registration RegistrationConfig
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Port               int      `env:"PORT" envDefault:"8080"`
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"*"`
}

// DatabaseConfig controls the PostgreSQL pool and migrations.
type DatabaseConfig struct {
	URL             string `env:"DATABASE_URL,required,notEmpty"`
	MaxConns        int32  `env:"DB_MAX_CONNS" envDefault:"20"`
	MinConns        int32  `env:"DB_MIN_CONNS" envDefault:"2"`
	ConnectAttempts int    `env:"DB_CONNECT_ATTEMPTS" envDefault:"5"`
	MigrateOnStart  bool   `env:"MIGRATE_ON_START" envDefault:"true"`
}

// LoggingConfig selects the log level and json or console output.
type LoggingConfig struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"json"`
}

// AuthConfig holds the HS256 secret and optional issuer of bearer tokens.
type AuthConfig struct {
	JWTSecret string `env:"JWT_SECRET,required,notEmpty"`
	JWTIssuer string `env:"JWT_ISSUER"`
}

// RegistrationConfig bounds how long a registration may wait for its event.
type RegistrationConfig struct {
	LockTimeout       time.Duration `env:"REGISTRATION_LOCK_TIMEOUT" envDefault:"2s"`
	MaxAttempts       int           `env:"REGISTRATION_MAX_ATTEMPTS" envDefault:"3"`
	DefaultTicketType string        `env:"DEFAULT_TICKET_TYPE" envDefault:"regular"`
}

// Load parses the environment into a Config and normalises out-of-range values.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return Config{}, fmt.Errorf("PORT must be between 1 and 65535, got %d", cfg.Server.Port)
	}
	if cfg.Registration.LockTimeout < time.Millisecond {
		return Config{}, fmt.Errorf("REGISTRATION_LOCK_TIMEOUT must be at least 1ms, got %s", cfg.Registration.LockTimeout)
	}
	cfg.Registration.MaxAttempts = clamp(cfg.Registration.MaxAttempts, 1, 5)
	if cfg.Database.ConnectAttempts < 1 {
		cfg.Database.ConnectAttempts = 1
	}
	return cfg, nil
}

// LoadDatabase parses only the database settings. Migration commands use it
// so they do not need the server's secrets.
func LoadDatabase() (DatabaseConfig, error) {
	var cfg DatabaseConfig
	if err := env.Parse(&cfg); err != nil {
		return DatabaseConfig{}, fmt.Errorf("parse env: %w", err)
	}
	if cfg.ConnectAttempts < 1 {
		cfg.ConnectAttempts = 1
	}
	return cfg, nil
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

package config

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "postgres://u:p@localhost:5432/tickets?sslmode=disable")
	t.Setenv("JWT_SECRET", "secret")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, []string{"*"}, cfg.Server.CORSAllowedOrigins)
	assert.Equal(t, int32(20), cfg.Database.MaxConns)
	assert.True(t, cfg.Database.MigrateOnStart)
	assert.Equal(t, 2*time.Second, cfg.Registration.LockTimeout)
	assert.Equal(t, 3, cfg.Registration.MaxAttempts)
	assert.Equal(t, "regular", cfg.Registration.DefaultTicketType)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadRequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("JWT_SECRET", "secret")

	_, err := Load()
	require.Error(t, err)
}

func TestLoadRequiresJWTSecret(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/tickets")
	t.Setenv("JWT_SECRET", "")

	_, err := Load()
	require.Error(t, err)
}

func TestLoadClampsMaxAttempts(t *testing.T) {
	setRequired(t)

	t.Setenv("REGISTRATION_MAX_ATTEMPTS", "50")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Registration.MaxAttempts)

	t.Setenv("REGISTRATION_MAX_ATTEMPTS", "0")
	cfg, err = Load()
	require.NoError(t, err)
	assert.Equal(t, 1, cfg.Registration.MaxAttempts)
}

func TestLoadRejectsSubMillisecondLockTimeout(t *testing.T) {
	setRequired(t)
	t.Setenv("REGISTRATION_LOCK_TIMEOUT", "500us")

	_, err := Load()
	require.Error(t, err)

	t.Setenv("REGISTRATION_LOCK_TIMEOUT", "1ms")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, time.Millisecond, cfg.Registration.LockTimeout)
}

func TestLoadRejectsBadPort(t *testing.T) {
	setRequired(t)
	t.Setenv("PORT", "70000")

	_, err := Load()
	require.Error(t, err)
}

func TestLoadParsesOrigins(t *testing.T) {
	setRequired(t)
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example,https://b.example")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSAllowedOrigins)
}

func TestNewLoggerFallsBackToInfo(t *testing.T) {
	logger := NewLogger(LoggingConfig{Level: "nonsense", Format: "json"})
	assert.Equal(t, zerolog.InfoLevel, logger.GetLevel())

	logger = NewLogger(LoggingConfig{Level: "DEBUG", Format: "console"})
	assert.Equal(t, zerolog.DebugLevel, logger.GetLevel())
}

func TestNewLoggerToTagsServiceAndFilters(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerTo(&buf, LoggingConfig{Level: "warn", Format: "json"})

	logger.Info().Msg("dropped")
	logger.Warn().Str("event_id", "e1").Msg("kept")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)
	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "ticketing", entry["service"])
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "e1", entry["event_id"])
	assert.Equal(t, "kept", entry["message"])

	assert.Equal(t, zerolog.WarnLevel, zerolog.Ctx(context.Background()).GetLevel())
}

func TestLoadDatabaseWithoutSecret(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://u:p@localhost:5432/tickets")
	t.Setenv("JWT_SECRET", "")
	t.Setenv("DB_CONNECT_ATTEMPTS", "0")

	cfg, err := LoadDatabase()
	require.NoError(t, err)
	assert.Equal(t, "postgres://u:p@localhost:5432/tickets", cfg.URL)
	assert.Equal(t, 1, cfg.ConnectAttempts)
}

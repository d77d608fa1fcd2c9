package config

import (
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"PETBOOK_VIEW_PORT", "PETBOOK_CONTROLLER_URL", "PETBOOK_NOTIFIER_URL",
		"PETBOOK_HTTP_TIMEOUT", "PETBOOK_LOG_LEVEL", "PETBOOK_EPHEMERAL", "PETBOOK_SESSION_PATH",
	} {
		t.Setenv(k, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("XDG_CONFIG_HOME", "/tmp/cfg")
	t.Setenv("HOME", "/tmp/home")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:5001", cfg.ControllerURL)
	assert.Equal(t, "ws://localhost:5002/ws", cfg.NotifierURL)
	assert.Equal(t, 3000, cfg.ViewPort)
	assert.Equal(t, "127.0.0.1:3000", cfg.ViewAddr())
	assert.Equal(t, 30*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
	assert.Equal(t, "session.db", filepath.Base(cfg.SessionPath))
	assert.False(t, cfg.Ephemeral())
}

func TestLoad_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("PETBOOK_VIEW_PORT", "8088")
	t.Setenv("PETBOOK_CONTROLLER_URL", "https://api.petbook.example")
	t.Setenv("PETBOOK_NOTIFIER_URL", "wss://push.petbook.example/ws")
	t.Setenv("PETBOOK_HTTP_TIMEOUT", "5s")
	t.Setenv("PETBOOK_LOG_LEVEL", "debug")
	t.Setenv("PETBOOK_SESSION_PATH", "/var/lib/petbook/s.db")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8088, cfg.ViewPort)
	assert.Equal(t, "https://api.petbook.example", cfg.ControllerURL)
	assert.Equal(t, "wss://push.petbook.example/ws", cfg.NotifierURL)
	assert.Equal(t, 5*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
	assert.Equal(t, "/var/lib/petbook/s.db", cfg.SessionPath)
}

func TestLoad_Ephemeral(t *testing.T) {
	clearEnv(t)
	t.Setenv("PETBOOK_EPHEMERAL", "true")
	t.Setenv("PETBOOK_SESSION_PATH", "/ignored.db")

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.Ephemeral())
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		key, value, want string
	}{
		{"PETBOOK_VIEW_PORT", "abc", "PETBOOK_VIEW_PORT"},
		{"PETBOOK_CONTROLLER_URL", "ftp://x", "PETBOOK_CONTROLLER_URL"},
		{"PETBOOK_NOTIFIER_URL", "http://x", "PETBOOK_NOTIFIER_URL"},
		{"PETBOOK_HTTP_TIMEOUT", "soon", "PETBOOK_HTTP_TIMEOUT"},
		{"PETBOOK_LOG_LEVEL", "loud", "PETBOOK_LOG_LEVEL"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			clearEnv(t)
			t.Setenv("PETBOOK_SESSION_PATH", "/tmp/s.db")
			t.Setenv(tt.key, tt.value)

			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

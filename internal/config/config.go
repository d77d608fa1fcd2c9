package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Config holds all configuration for the PetBook client.
type Config struct {
	// ControllerURL is the base URL of the controller HTTP API.
	ControllerURL string

	// NotifierURL is the websocket endpoint of the notifier push service.
	NotifierURL string

	// SessionPath is the SQLite file that keeps the credential between runs.
	// Empty when the session is ephemeral.
	SessionPath string

	// ViewPort is the loopback port of the local view server.
	ViewPort int

	// HTTPTimeout bounds every controller request.
	HTTPTimeout time.Duration

	// LogLevel is the minimum level written to the log.
	LogLevel slog.Level
}

// Ephemeral reports whether the credential must only be held in memory.
func (c *Config) Ephemeral() bool {
	return c.SessionPath == ""
}

// ViewAddr returns the listen address of the local view server.
func (c *Config) ViewAddr() string {
	return fmt.Sprintf("127.0.0.1:%d", c.ViewPort)
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (*Config, error) {
	port := 3000
	if p := os.Getenv("PETBOOK_VIEW_PORT"); p != "" {
		var err error
		port, err = strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid PETBOOK_VIEW_PORT: %w", err)
		}
	}

	controllerURL := os.Getenv("PETBOOK_CONTROLLER_URL")
	if controllerURL == "" {
		controllerURL = "http://localhost:5001"
	}
	if err := checkURL(controllerURL, "http", "https"); err != nil {
		return nil, fmt.Errorf("invalid PETBOOK_CONTROLLER_URL: %w", err)
	}

	notifierURL := os.Getenv("PETBOOK_NOTIFIER_URL")
	if notifierURL == "" {
		notifierURL = "ws://localhost:5002/ws"
	}
	if err := checkURL(notifierURL, "ws", "wss"); err != nil {
		return nil, fmt.Errorf("invalid PETBOOK_NOTIFIER_URL: %w", err)
	}

	timeout := 30 * time.Second
	if t := os.Getenv("PETBOOK_HTTP_TIMEOUT"); t != "" {
		var err error
		timeout, err = time.ParseDuration(t)
		if err != nil {
			return nil, fmt.Errorf("invalid PETBOOK_HTTP_TIMEOUT: %w", err)
		}
	}

	var level slog.Level
	if l := os.Getenv("PETBOOK_LOG_LEVEL"); l != "" {
		if err := level.UnmarshalText([]byte(l)); err != nil {
			return nil, fmt.Errorf("invalid PETBOOK_LOG_LEVEL: %w", err)
		}
	}

	var sessionPath string
	if ephemeral, _ := strconv.ParseBool(os.Getenv("PETBOOK_EPHEMERAL")); !ephemeral {
		sessionPath = os.Getenv("PETBOOK_SESSION_PATH")
		if sessionPath == "" {
			dir, err := os.UserConfigDir()
			if err != nil {
				return nil, fmt.Errorf("PETBOOK_SESSION_PATH is unset and no user config dir: %w", err)
			}
			sessionPath = filepath.Join(dir, "petbook", "session.db")
		}
	}

	return &Config{
		ControllerURL: controllerURL,
		NotifierURL:   notifierURL,
		SessionPath:   sessionPath,
		ViewPort:      port,
		HTTPTimeout:   timeout,
		LogLevel:      level,
	}, nil
}

func checkURL(raw string, schemes ...string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	for _, s := range schemes {
		if u.Scheme == s {
			return nil
		}
	}
	return fmt.Errorf("scheme %q not one of %v", u.Scheme, schemes)
}

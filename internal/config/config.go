package config

import (
	"encoding/base64"
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const envPrefix = "setchat"

type Config struct {
	ServerAddr     string   `envconfig:"ADDR" default:"localhost:8000"`
	DatabaseDSN    string   `envconfig:"DATABASE_URL"`
	SigningSecret  string   `envconfig:"SIGNING_KEY"`
	AllowedOrigins []string `envconfig:"ALLOWED_ORIGINS"`
	// IdleWindow is how long a session may go without an inbound frame
	// before it is closed with a timeout reason.
	IdleWindow time.Duration `envconfig:"IDLE_WINDOW" default:"60s"`
	// RevokeActiveSessions controls whether membership is re-verified on
	// every chat frame. When false, a membership revoked mid-session does
	// not close the connection.
	RevokeActiveSessions bool `envconfig:"REVOKE_ACTIVE_SESSIONS" default:"false"`

	SigningKey []byte `ignored:"true"`
}

func decodeSigningSecret(base64Secret string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(base64Secret)
}

// Load reads configuration from SETCHAT_* environment variables.
// Explicit arguments override the environment; this is how the
// command-line flags are applied.
func Load(serverAddr, databaseDSN, base64Secret string, allowedOrigins []string) (*Config, error) {
	var cfg Config
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("process env: %w", err)
	}

	if serverAddr != "" {
		cfg.ServerAddr = serverAddr
	}
	if databaseDSN != "" {
		cfg.DatabaseDSN = databaseDSN
	}
	if base64Secret != "" {
		cfg.SigningSecret = base64Secret
	}
	if len(allowedOrigins) > 0 {
		cfg.AllowedOrigins = allowedOrigins
	}

	if cfg.ServerAddr == "" {
		return nil, fmt.Errorf("server address cannot be empty")
	}
	if cfg.DatabaseDSN == "" {
		return nil, fmt.Errorf("database DSN cannot be empty")
	}
	if cfg.SigningSecret == "" {
		return nil, fmt.Errorf("signing secret cannot be empty")
	}
	if cfg.IdleWindow <= 0 {
		return nil, fmt.Errorf("idle window must be positive")
	}

	signingKey, err := decodeSigningSecret(cfg.SigningSecret)
	if err != nil {
		return nil, fmt.Errorf("decode signing secret: %w", err)
	}
	cfg.SigningKey = signingKey

	return &cfg, nil
}

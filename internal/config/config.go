package config

import (
	"encoding/base64"
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

const envPrefix = "CHATD"

type Config struct {
	ServerAddr     string   `envconfig:"SERVER_ADDR" default:"localhost:4000"`
	DatabaseDSN    string   `envconfig:"DATABASE_DSN" default:"host=localhost user=postgres password=postgres dbname=chatd sslmode=disable"`
	SigningSecret  string   `envconfig:"SIGNING_SECRET" required:"true"`
	AllowedOrigins []string `envconfig:"ALLOWED_ORIGINS" default:"http://localhost:3000"`
	// SigningKey is the decoded form of SigningSecret.
	SigningKey []byte `ignored:"true"`
}

// Load reads configuration from CHATD_* environment variables and decodes
// the base64 signing secret.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("process env: %w", err)
	}

	key, err := base64.StdEncoding.DecodeString(cfg.SigningSecret)
	if err != nil {
		return nil, fmt.Errorf("decode signing secret: %w", err)
	}
	cfg.SigningKey = key

	return &cfg, nil
}

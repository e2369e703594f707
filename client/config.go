package client

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds client settings, populated from the environment.
type Config struct {
	BaseURL     string        `env:"SKILLNESTX_API_URL" envDefault:"https://api.skillnestx.com"`
	DataDir     string        `env:"SKILLNESTX_DATA_DIR" envDefault:".skillnestx"`
	HTTPTimeout time.Duration `env:"SKILLNESTX_HTTP_TIMEOUT" envDefault:"15s"`
}

// LoadConfig reads configuration from environment variables.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parsing environment: %w", err)
	}
	return cfg, nil
}

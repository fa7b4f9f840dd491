package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	Addr                   string        `env:"ADDR" envDefault:":8080"`
	DatabaseURL            string        `env:"DATABASE_URL,required"`
	SessionTTL             time.Duration `env:"SESSION_TTL" envDefault:"30m"`
	DefaultRounds          int           `env:"DEFAULT_ROUNDS" envDefault:"10"`
	DefaultTimePerQuestion time.Duration `env:"DEFAULT_TIME_PER_QUESTION" envDefault:"30s"`
}

// Load reads .env if present, then the environment.
func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

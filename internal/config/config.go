// Package config содержит логику чтения конфигурации сервиса вознаграждений.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const defaultRunAddress = "localhost:8080"

// Config содержит параметры конфигурации сервиса.
type Config struct {
	RunAddress        string        `env:"RUN_ADDRESS"`
	DatabaseURI       string        `env:"DATABASE_URI"`
	VerifierAddress   string        `env:"VERIFIER_ADDRESS"`
	AuthSecret        string        `env:"AUTH_SECRET"`
	AdminEmail        string        `env:"ADMIN_EMAIL"`
	AdminPasswordHash string        `env:"ADMIN_PASSWORD_HASH"`
	TokenTTL          time.Duration `env:"TOKEN_TTL" envDefault:"24h"`
	VerifyInterval    time.Duration `env:"VERIFY_INTERVAL" envDefault:"5s"`
}

// Parse считывает конфигурацию из файла .env, флагов командной строки и переменных окружения.
// Переменные окружения имеют приоритет над флагами.
func Parse() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envRunAddress := cfg.RunAddress
	envDatabaseURI := cfg.DatabaseURI
	envVerifierAddress := cfg.VerifierAddress
	envAuthSecret := cfg.AuthSecret

	flag.StringVar(&cfg.RunAddress, "a", defaultRunAddress, "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI")
	flag.StringVar(&cfg.VerifierAddress, "r", "", "task verification system address")
	flag.StringVar(&cfg.AuthSecret, "s", "", "secret for signing session tokens")

	flag.Parse()

	if envRunAddress != "" {
		cfg.RunAddress = envRunAddress
	}
	if envDatabaseURI != "" {
		cfg.DatabaseURI = envDatabaseURI
	}
	if envVerifierAddress != "" {
		cfg.VerifierAddress = envVerifierAddress
	}
	if envAuthSecret != "" {
		cfg.AuthSecret = envAuthSecret
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = defaultRunAddress
	}

	return cfg, nil
}

// AdminConfigured сообщает, заданы ли учётные данные администратора.
func (c *Config) AdminConfigured() bool {
	return c.AdminEmail != "" && c.AdminPasswordHash != ""
}

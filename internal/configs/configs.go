/*
Package configs loads the application configuration from environment
variables, with an optional .env file for local development.
*/
package configs

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// AppConfig holds every runtime setting. All values come from the
// environment; defaults only apply in development.
type AppConfig struct {
	// Environment is "development" or "production".
	Environment string

	// Port is the HTTP listen port.
	Port int

	// AllowedOrigins lists origins accepted for CORS and WebSocket upgrades.
	AllowedOrigins []string

	// JWTSecret signs identity tokens.
	JWTSecret string

	// DatabaseDSN is the Postgres connection string. Empty in development
	// selects the in-memory store.
	DatabaseDSN string
}

// LoadConfig reads, validates, and returns the application configuration.
func LoadConfig() (*AppConfig, error) {
	// A missing .env file is not an error; real deployments set the
	// environment directly.
	_ = godotenv.Load()

	cfg := &AppConfig{}

	cfg.Environment = os.Getenv("ENVIRONMENT")
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}

	portStr := os.Getenv("PORT")
	if portStr == "" {
		portStr = "8080"
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("invalid PORT environment variable: %w", err)
	}
	cfg.Port = port

	if cfg.Port < 1024 || cfg.Port > 65535 {
		return nil, fmt.Errorf("port number %d is outside the allowed range (1024-65535)", cfg.Port)
	}

	if originsStr := os.Getenv("ALLOWED_ORIGINS"); originsStr != "" {
		for _, origin := range strings.Split(originsStr, ",") {
			if trimmed := strings.TrimSpace(origin); trimmed != "" {
				cfg.AllowedOrigins = append(cfg.AllowedOrigins, trimmed)
			}
		}
	}

	cfg.JWTSecret = os.Getenv("JWT_SECRET")
	if cfg.JWTSecret == "" {
		if cfg.Environment != "development" {
			return nil, fmt.Errorf("JWT_SECRET environment variable is required in %s environment", cfg.Environment)
		}
		cfg.JWTSecret = "insecure_development_secret_change_me"
	}

	cfg.DatabaseDSN = os.Getenv("DATABASE_URL")
	if cfg.DatabaseDSN == "" && cfg.Environment != "development" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is required in %s environment", cfg.Environment)
	}

	return cfg, nil
}

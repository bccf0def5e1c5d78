package utils

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Config holds all configuration for the application
type Config struct {
	App      AppConfig
	Backend  BackendConfig
	Database DatabaseConfig
	Server   ServerConfig
	Stats    StatsConfig
}

// AppConfig holds application-level configuration
type AppConfig struct {
	Name    string
	Version string
}

// BackendConfig holds the clan backend REST API configuration
type BackendConfig struct {
	URL                  string
	Timeout              time.Duration
	MaxRequestsPerMinute int
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port                 int
	MaxRequestsPerMinute int
	SessionTTL           time.Duration
}

// StatsConfig holds the feed snapshot collector configuration
type StatsConfig struct {
	PollingInterval int // seconds
}

// LoadConfig loads configuration from the .env file and the environment.
// A missing .env file is not an error; the environment and defaults are used.
func LoadConfig(envPath string, log *logrus.Logger) (*Config, error) {
	if envPath == "" {
		envPath = ".env"
	}

	if err := godotenv.Load(envPath); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load .env file: %w", err)
		}
		log.WithField("file", envPath).Warn("No .env file found, using environment only")
	}

	config := &Config{
		App: AppConfig{
			Name:    getEnv("APP_NAME", "Clanboard"),
			Version: getEnv("APP_VERSION", "1.0.0"),
		},
		Backend: BackendConfig{
			URL:                  strings.TrimRight(getEnv("BACKEND_URL", "http://localhost:8000/api"), "/"),
			Timeout:              time.Duration(getEnvAsInt("BACKEND_TIMEOUT_SECONDS", 30)) * time.Second,
			MaxRequestsPerMinute: getEnvAsInt("BACKEND_MAX_REQUESTS_PER_MINUTE", 600),
		},
		Database: DatabaseConfig{
			Path: getEnv("DATABASE_PATH", "./clanboard.db"),
		},
		Server: ServerConfig{
			Port:                 getEnvAsInt("SERVER_PORT", 3000),
			MaxRequestsPerMinute: getEnvAsInt("SERVER_MAX_REQUESTS_PER_MINUTE", 600),
			SessionTTL:           time.Duration(getEnvAsInt("SESSION_TTL_MINUTES", 60)) * time.Minute,
		},
		Stats: StatsConfig{
			PollingInterval: getEnvAsInt("STATS_POLLING_INTERVAL", 60),
		},
	}

	// validation
	if err := validateConfig(config); err != nil {
		return nil, err
	}

	log.WithField("file", envPath).Info("Config loaded successfully")
	return config, nil
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvAsInt gets an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// validateConfig validates the configuration
func validateConfig(config *Config) error {
	u, err := url.Parse(config.Backend.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("BACKEND_URL must be an absolute URL, got %q", config.Backend.URL)
	}
	if config.Backend.Timeout <= 0 {
		return fmt.Errorf("BACKEND_TIMEOUT_SECONDS must be positive")
	}
	if config.Backend.MaxRequestsPerMinute < 1 {
		return fmt.Errorf("BACKEND_MAX_REQUESTS_PER_MINUTE must be positive")
	}
	if config.Server.Port < 1 || config.Server.Port > 65535 {
		return fmt.Errorf("SERVER_PORT must be between 1 and 65535")
	}
	if config.Server.MaxRequestsPerMinute < 1 {
		return fmt.Errorf("SERVER_MAX_REQUESTS_PER_MINUTE must be positive")
	}
	if config.Server.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL_MINUTES must be positive")
	}
	if config.Stats.PollingInterval < 1 {
		return fmt.Errorf("STATS_POLLING_INTERVAL must be positive")
	}

	// if we are storing the db in a nested directory, create the directory
	dbDir := filepath.Dir(config.Database.Path)
	if dbDir != "." && dbDir != "" {
		if err := os.MkdirAll(dbDir, 0755); err != nil {
			return fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	return nil
}

package utils

import (
	"os"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testEnvPath = "./test.env"

func cleanup() {
	os.Remove(testEnvPath)
}

// TestMain handles test setup and cleanup for all tests in this package
func TestMain(m *testing.M) {
	exitCode := m.Run()

	cleanup()

	os.Exit(exitCode)
}

func validConfig() *Config {
	return &Config{
		Backend: BackendConfig{
			URL:                  "http://localhost:8000/api",
			Timeout:              30 * time.Second,
			MaxRequestsPerMinute: 600,
		},
		Database: DatabaseConfig{
			Path: "./test.db",
		},
		Server: ServerConfig{
			Port:                 3000,
			MaxRequestsPerMinute: 600,
			SessionTTL:           time.Hour,
		},
		Stats: StatsConfig{
			PollingInterval: 60,
		},
	}
}

func TestGetEnv(t *testing.T) {
	os.Setenv("TEST_ENV_VAR", "test-value")
	defer os.Unsetenv("TEST_ENV_VAR")

	value := getEnv("TEST_ENV_VAR", "default-value")
	assert.Equal(t, "test-value", value)

	value = getEnv("NON_EXISTENT_VAR", "default-value")
	assert.Equal(t, "default-value", value)
}

func TestGetEnvAsInt(t *testing.T) {
	os.Setenv("TEST_INT_VAR", "42")
	defer os.Unsetenv("TEST_INT_VAR")

	value := getEnvAsInt("TEST_INT_VAR", 10)
	assert.Equal(t, 42, value)

	os.Setenv("TEST_INVALID_INT_VAR", "not-an-int")
	defer os.Unsetenv("TEST_INVALID_INT_VAR")

	value = getEnvAsInt("TEST_INVALID_INT_VAR", 10)
	assert.Equal(t, 10, value)

	value = getEnvAsInt("NON_EXISTENT_VAR", 10)
	assert.Equal(t, 10, value)
}

func TestValidateConfig(t *testing.T) {
	assert.NoError(t, validateConfig(validConfig()))

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{
			name:    "relative backend url",
			mutate:  func(c *Config) { c.Backend.URL = "/api" },
			wantErr: "BACKEND_URL",
		},
		{
			name:    "zero timeout",
			mutate:  func(c *Config) { c.Backend.Timeout = 0 },
			wantErr: "BACKEND_TIMEOUT_SECONDS",
		},
		{
			name:    "port out of range",
			mutate:  func(c *Config) { c.Server.Port = 70000 },
			wantErr: "SERVER_PORT",
		},
		{
			name:    "negative polling interval",
			mutate:  func(c *Config) { c.Stats.PollingInterval = -1 },
			wantErr: "STATS_POLLING_INTERVAL",
		},
		{
			name:    "zero session ttl",
			mutate:  func(c *Config) { c.Server.SessionTTL = 0 },
			wantErr: "SESSION_TTL_MINUTES",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := validConfig()
			tc.mutate(c)
			err := validateConfig(c)
			assert.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestLoadConfigFromFile(t *testing.T) {
	content := "BACKEND_URL=http://backend.internal:9000/api/\nSERVER_PORT=4000\nSESSION_TTL_MINUTES=15\n"
	require.NoError(t, os.WriteFile(testEnvPath, []byte(content), 0644))
	defer func() {
		os.Unsetenv("BACKEND_URL")
		os.Unsetenv("SERVER_PORT")
		os.Unsetenv("SESSION_TTL_MINUTES")
	}()

	config, err := LoadConfig(testEnvPath, logrus.New())
	require.NoError(t, err)

	assert.Equal(t, "http://backend.internal:9000/api", config.Backend.URL)
	assert.Equal(t, 4000, config.Server.Port)
	assert.Equal(t, 15*time.Minute, config.Server.SessionTTL)
	assert.Equal(t, 30*time.Second, config.Backend.Timeout)
}

func TestLoadConfigMissingFile(t *testing.T) {
	config, err := LoadConfig("./does-not-exist.env", logrus.New())
	require.NoError(t, err)
	assert.Equal(t, 3000, config.Server.Port)
	assert.Equal(t, "./clanboard.db", config.Database.Path)
}

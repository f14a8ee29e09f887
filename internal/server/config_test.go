package server

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfigDefaults(t *testing.T) {
	cfg := NewConfig()

	assert.Equal(t, "127.0.0.1:12345", cfg.Addr())
	assert.Empty(t, cfg.HTTPAddr)
	assert.Equal(t, []string{"http://localhost:8080"}, cfg.AllowedOrigins)
	assert.Equal(t, 1024, cfg.ReadBufferSize)
	assert.Equal(t, 256, cfg.OutboundQueueSize)
	assert.Equal(t, 10*time.Second, cfg.WriteTimeout)
	assert.Zero(t, cfg.MaxSessions)
	assert.Equal(t, RateLimitConfig{Burst: 20, RefillInterval: time.Second}, cfg.RateLimit)
}

func TestNewConfigFromEnv(t *testing.T) {
	t.Setenv("RELAY_HOST", "0.0.0.0")
	t.Setenv("RELAY_PORT", "9000")
	t.Setenv("RELAY_HTTP_ADDR", ":8080")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("MAX_MESSAGE_SIZE", "4096")
	t.Setenv("WRITE_TIMEOUT", "750ms")
	t.Setenv("SHUTDOWN_TIMEOUT", "3")
	t.Setenv("MAX_SESSIONS", "50")
	t.Setenv("LOG_LEVEL", " DEBUG ")
	t.Setenv("RATE_LIMIT_BURST", "5")
	t.Setenv("RATE_LIMIT_REFILL_INTERVAL", "3")

	cfg := NewConfigFromEnv()

	assert.Equal(t, "0.0.0.0:9000", cfg.Addr())
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
	assert.Equal(t, int64(4096), cfg.MaxMessageSize)
	assert.Equal(t, 750*time.Millisecond, cfg.WriteTimeout)
	assert.Equal(t, 3*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, 50, cfg.MaxSessions)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, RateLimitConfig{Burst: 5, RefillInterval: 3 * time.Second}, cfg.RateLimit)
}

// TestNewConfigFromEnvIgnoresInvalid verifies that unparsable values keep
// their defaults.
func TestNewConfigFromEnvIgnoresInvalid(t *testing.T) {
	t.Setenv("RELAY_PORT", "not-a-port")
	t.Setenv("MAX_MESSAGE_SIZE", "-1")
	t.Setenv("WRITE_TIMEOUT", "soon")
	t.Setenv("SHUTDOWN_TIMEOUT", "-2s")
	t.Setenv("RATE_LIMIT_BURST", "0")

	cfg := NewConfigFromEnv()

	assert.Equal(t, 12345, cfg.Port)
	assert.Equal(t, int64(1024), cfg.MaxMessageSize)
	assert.Equal(t, 10*time.Second, cfg.WriteTimeout)
	assert.Equal(t, 5*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, 20, cfg.RateLimit.Burst)
}

func writeConfigFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "chatrelay.toml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestLoadConfigFromFile(t *testing.T) {
	path := writeConfigFile(t, `
host = "0.0.0.0"
port = 7000
http_addr = "127.0.0.1:8081"
allowed_origins = ["*"]
outbound_queue_size = 32
write_timeout = "2s"
max_sessions = 10

[rate_limit]
burst = 7
refill_interval = "500ms"
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:7000", cfg.Addr())
	assert.Equal(t, "127.0.0.1:8081", cfg.HTTPAddr)
	assert.Equal(t, []string{"*"}, cfg.AllowedOrigins)
	assert.Equal(t, 32, cfg.OutboundQueueSize)
	assert.Equal(t, 2*time.Second, cfg.WriteTimeout)
	assert.Equal(t, 10, cfg.MaxSessions)
	assert.Equal(t, RateLimitConfig{Burst: 7, RefillInterval: 500 * time.Millisecond}, cfg.RateLimit)
	assert.Equal(t, 1024, cfg.ReadBufferSize, "unset keys keep defaults")
}

func TestLoadConfigEnvOverridesFile(t *testing.T) {
	path := writeConfigFile(t, "port = 7000\nshutdown_timeout = \"1s\"\n")
	t.Setenv("RELAY_PORT", "7001")
	t.Setenv("SHUTDOWN_TIMEOUT", "250ms")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 7001, cfg.Port)
	assert.Equal(t, 250*time.Millisecond, cfg.ShutdownTimeout)
}

func TestLoadConfigErrors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.toml"))
	require.ErrorIs(t, err, os.ErrNotExist)

	_, err = LoadConfig(writeConfigFile(t, "port = \n"))
	require.Error(t, err)

	_, err = LoadConfig(writeConfigFile(t, "write_timeout = \"forever\"\n"))
	require.ErrorContains(t, err, "write_timeout")
}

// TestExampleConfigRoundTrip verifies that the rendered document loads back
// into the same configuration.
func TestExampleConfigRoundTrip(t *testing.T) {
	want := NewConfig()
	want.Port = 4321
	want.HTTPAddr = ":9090"
	want.MaxSessions = 3
	want.RateLimit.RefillInterval = 250 * time.Millisecond

	data, err := ExampleConfig(*want)
	require.NoError(t, err)
	assert.Contains(t, string(data), "# chatrelay configuration")

	got, err := LoadConfig(writeConfigFile(t, string(data)))
	require.NoError(t, err)
	assert.Equal(t, *want, *got)
}

func TestConfigSanitized(t *testing.T) {
	cfg := Config{Port: 70000, MaxSessions: -5, AllowedOrigins: []string{"http://x"}}.sanitized()

	assert.Equal(t, defaultHost, cfg.Host)
	assert.Equal(t, defaultPort, cfg.Port)
	assert.Zero(t, cfg.MaxSessions)
	assert.Equal(t, defaultOutboundQueueSize, cfg.OutboundQueueSize)
	assert.Equal(t, 20, cfg.RateLimit.Burst)

	zero := Config{Port: 0}.sanitized()
	assert.Zero(t, zero.Port, "port 0 asks the OS for a free port")
}

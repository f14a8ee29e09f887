// Package server provides configuration helpers that define runtime defaults,
// validation, and rate-limiting parameters for the relay.
package server

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml"
)

const (
	defaultHost              = "127.0.0.1"
	defaultPort              = 12345
	defaultReadBufferSize    = 1024
	defaultMaxMessageSize    = 1024
	defaultOutboundQueueSize = 256
	defaultWriteTimeout      = 10 * time.Second
	defaultShutdownTimeout   = 5 * time.Second
	defaultLogLevel          = "info"
)

// RateLimitConfig defines the parameters for per-session inbound message rate limiting.
type RateLimitConfig struct {
	Burst          int
	RefillInterval time.Duration
}

// Config holds the relay configuration: the TCP listening address, the optional
// HTTP gateway, and the per-connection limits.
type Config struct {
	Host string
	Port int

	// HTTPAddr enables the HTTP/WebSocket gateway when non-empty.
	HTTPAddr       string
	AllowedOrigins []string

	// ReadBufferSize is the size of a single TCP read; one read is one inbound message.
	ReadBufferSize int
	// MaxMessageSize caps a single WebSocket frame.
	MaxMessageSize int64

	OutboundQueueSize int
	WriteTimeout      time.Duration
	// MaxSessions caps concurrent sessions; zero means unlimited.
	MaxSessions     int
	ShutdownTimeout time.Duration

	LogLevel  string
	RateLimit RateLimitConfig
}

// Addr returns the TCP listening address in host:port form.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

func defaultConfig() Config {
	return Config{
		Host: defaultHost,
		Port: defaultPort,
		AllowedOrigins: []string{
			"http://localhost:8080",
		},
		ReadBufferSize:    defaultReadBufferSize,
		MaxMessageSize:    defaultMaxMessageSize,
		OutboundQueueSize: defaultOutboundQueueSize,
		WriteTimeout:      defaultWriteTimeout,
		ShutdownTimeout:   defaultShutdownTimeout,
		LogLevel:          defaultLogLevel,
		RateLimit: RateLimitConfig{
			Burst:          20,
			RefillInterval: time.Second,
		},
	}
}

// sanitized returns a copy with every invalid or missing value replaced by its default.
func (c Config) sanitized() Config {
	if c.Host == "" {
		c.Host = defaultHost
	}
	if c.Port < 0 || c.Port > 65535 {
		c.Port = defaultPort
	}
	if c.ReadBufferSize <= 0 {
		c.ReadBufferSize = defaultReadBufferSize
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = defaultMaxMessageSize
	}
	if c.OutboundQueueSize <= 0 {
		c.OutboundQueueSize = defaultOutboundQueueSize
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = defaultWriteTimeout
	}
	if c.MaxSessions < 0 {
		c.MaxSessions = 0
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = defaultShutdownTimeout
	}
	if c.LogLevel == "" {
		c.LogLevel = defaultLogLevel
	}
	if c.RateLimit.Burst <= 0 {
		c.RateLimit.Burst = 20
	}
	if c.RateLimit.RefillInterval <= 0 {
		c.RateLimit.RefillInterval = time.Second
	}
	c.AllowedOrigins = append([]string(nil), c.AllowedOrigins...)
	return c
}

// NewConfig creates a Config instance populated with default values for all settings.
func NewConfig() *Config {
	cfg := defaultConfig()
	return &cfg
}

// NewConfigFromEnv creates a Config instance from environment variables.
// Falls back to default values if environment variables are not set.
func NewConfigFromEnv() *Config {
	cfg := defaultConfig()
	applyEnv(&cfg)
	return &cfg
}

func applyEnv(cfg *Config) {
	if host := os.Getenv("RELAY_HOST"); host != "" {
		cfg.Host = host
	}
	if port := os.Getenv("RELAY_PORT"); port != "" {
		cfg.Port = parseIntValue(port, cfg.Port)
	}
	if addr, ok := os.LookupEnv("RELAY_HTTP_ADDR"); ok {
		cfg.HTTPAddr = addr
	}
	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		cfg.AllowedOrigins = parseOrigins(origins)
	}
	if maxSize := os.Getenv("MAX_MESSAGE_SIZE"); maxSize != "" {
		cfg.MaxMessageSize = parseMaxMessageSize(maxSize, cfg.MaxMessageSize)
	}
	if size := os.Getenv("READ_BUFFER_SIZE"); size != "" {
		cfg.ReadBufferSize = parseIntValue(size, cfg.ReadBufferSize)
	}
	if size := os.Getenv("OUTBOUND_QUEUE_SIZE"); size != "" {
		cfg.OutboundQueueSize = parseIntValue(size, cfg.OutboundQueueSize)
	}
	if timeout := os.Getenv("WRITE_TIMEOUT"); timeout != "" {
		cfg.WriteTimeout = parseDuration(timeout, cfg.WriteTimeout)
	}
	if timeout := os.Getenv("SHUTDOWN_TIMEOUT"); timeout != "" {
		cfg.ShutdownTimeout = parseDuration(timeout, cfg.ShutdownTimeout)
	}
	if limit := os.Getenv("MAX_SESSIONS"); limit != "" {
		cfg.MaxSessions = parseIntValue(limit, cfg.MaxSessions)
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.LogLevel = strings.ToLower(strings.TrimSpace(level))
	}
	if burst := os.Getenv("RATE_LIMIT_BURST"); burst != "" {
		cfg.RateLimit.Burst = parseIntValue(burst, cfg.RateLimit.Burst)
	}
	if interval := os.Getenv("RATE_LIMIT_REFILL_INTERVAL"); interval != "" {
		cfg.RateLimit.RefillInterval = parseRefillInterval(interval, cfg.RateLimit.RefillInterval)
	}
}

// fileConfig mirrors Config on disk. Pointer fields distinguish "unset" from zero.
type fileConfig struct {
	Host              *string        `toml:"host,omitempty"`
	Port              *int           `toml:"port,omitempty"`
	HTTPAddr          *string        `toml:"http_addr,omitempty"`
	AllowedOrigins    []string       `toml:"allowed_origins,omitempty"`
	ReadBufferSize    *int           `toml:"read_buffer_size,omitempty"`
	MaxMessageSize    *int64         `toml:"max_message_size,omitempty"`
	OutboundQueueSize *int           `toml:"outbound_queue_size,omitempty"`
	WriteTimeout      *string        `toml:"write_timeout,omitempty"`
	MaxSessions       *int           `toml:"max_sessions,omitempty"`
	ShutdownTimeout   *string        `toml:"shutdown_timeout,omitempty"`
	LogLevel          *string        `toml:"log_level,omitempty"`
	RateLimit         *fileRateLimit `toml:"rate_limit,omitempty"`
}

type fileRateLimit struct {
	Burst          *int    `toml:"burst,omitempty"`
	RefillInterval *string `toml:"refill_interval,omitempty"`
}

// LoadConfig builds the effective configuration: defaults, then the TOML file at
// path (skipped when path is empty), then environment overrides.
func LoadConfig(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		if err := applyTOML(&cfg, data); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	applyEnv(&cfg)
	sanitized := cfg.sanitized()
	return &sanitized, nil
}

func applyTOML(cfg *Config, data []byte) error {
	var fc fileConfig
	if err := toml.Unmarshal(data, &fc); err != nil {
		return err
	}

	if fc.Host != nil {
		cfg.Host = *fc.Host
	}
	if fc.Port != nil {
		cfg.Port = *fc.Port
	}
	if fc.HTTPAddr != nil {
		cfg.HTTPAddr = *fc.HTTPAddr
	}
	if fc.AllowedOrigins != nil {
		cfg.AllowedOrigins = fc.AllowedOrigins
	}
	if fc.ReadBufferSize != nil {
		cfg.ReadBufferSize = *fc.ReadBufferSize
	}
	if fc.MaxMessageSize != nil {
		cfg.MaxMessageSize = *fc.MaxMessageSize
	}
	if fc.OutboundQueueSize != nil {
		cfg.OutboundQueueSize = *fc.OutboundQueueSize
	}
	if fc.MaxSessions != nil {
		cfg.MaxSessions = *fc.MaxSessions
	}
	if fc.LogLevel != nil {
		cfg.LogLevel = *fc.LogLevel
	}

	var errs []error
	if fc.WriteTimeout != nil {
		d, err := time.ParseDuration(*fc.WriteTimeout)
		if err != nil {
			errs = append(errs, fmt.Errorf("write_timeout: %w", err))
		}
		cfg.WriteTimeout = d
	}
	if fc.ShutdownTimeout != nil {
		d, err := time.ParseDuration(*fc.ShutdownTimeout)
		if err != nil {
			errs = append(errs, fmt.Errorf("shutdown_timeout: %w", err))
		}
		cfg.ShutdownTimeout = d
	}
	if rl := fc.RateLimit; rl != nil {
		if rl.Burst != nil {
			cfg.RateLimit.Burst = *rl.Burst
		}
		if rl.RefillInterval != nil {
			d, err := time.ParseDuration(*rl.RefillInterval)
			if err != nil {
				errs = append(errs, fmt.Errorf("rate_limit.refill_interval: %w", err))
			}
			cfg.RateLimit.RefillInterval = d
		}
	}
	return errors.Join(errs...)
}

// ExampleConfig renders cfg as a TOML document suitable for use with LoadConfig.
func ExampleConfig(cfg Config) ([]byte, error) {
	cfg = cfg.sanitized()
	writeTimeout := cfg.WriteTimeout.String()
	shutdownTimeout := cfg.ShutdownTimeout.String()
	refill := cfg.RateLimit.RefillInterval.String()
	fc := fileConfig{
		Host:              &cfg.Host,
		Port:              &cfg.Port,
		HTTPAddr:          &cfg.HTTPAddr,
		AllowedOrigins:    cfg.AllowedOrigins,
		ReadBufferSize:    &cfg.ReadBufferSize,
		MaxMessageSize:    &cfg.MaxMessageSize,
		OutboundQueueSize: &cfg.OutboundQueueSize,
		WriteTimeout:      &writeTimeout,
		MaxSessions:       &cfg.MaxSessions,
		ShutdownTimeout:   &shutdownTimeout,
		LogLevel:          &cfg.LogLevel,
		RateLimit: &fileRateLimit{
			Burst:          &cfg.RateLimit.Burst,
			RefillInterval: &refill,
		},
	}
	data, err := toml.Marshal(fc)
	if err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	header := []byte("# chatrelay configuration (environment variables override these values)\n\n")
	return append(header, data...), nil
}

func parseOrigins(origins string) []string {
	parts := strings.Split(origins, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func parseMaxMessageSize(value string, defaultValue int64) int64 {
	if size, err := strconv.ParseInt(value, 10, 64); err == nil && size > 0 {
		return size
	}
	return defaultValue
}

func parseIntValue(value string, defaultValue int) int {
	if parsed, err := strconv.Atoi(value); err == nil && parsed > 0 {
		return parsed
	}
	return defaultValue
}

// parseDuration accepts Go duration syntax ("750ms") or a bare number of seconds.
func parseDuration(value string, defaultValue time.Duration) time.Duration {
	if d, err := time.ParseDuration(value); err == nil && d > 0 {
		return d
	}
	return parseRefillInterval(value, defaultValue)
}

func parseRefillInterval(value string, defaultValue time.Duration) time.Duration {
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return defaultValue
}

// Package config provides configuration management for the store server and
// the grocery client.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/vyrodovalexey/grocery-sync/internal/mirror"
)

// Default configuration values.
const (
	DefaultServerPort      = 8080
	DefaultLogLevel        = "info"
	DefaultShutdownTimeout = 30 * time.Second
	DefaultMetricsEnabled  = true
	DefaultStoreURL        = "http://localhost:8080"
	DefaultOrder           = "newest-first"
	DefaultWriteTimeout    = 10 * time.Second
	DefaultReconnectMin    = 500 * time.Millisecond
	DefaultReconnectMax    = 30 * time.Second
)

// Environment variable names.
const (
	EnvConfigFile      = "APP_CONFIG_FILE"
	EnvServerPort      = "APP_SERVER_PORT"
	EnvLogLevel        = "APP_LOG_LEVEL"
	EnvShutdownTimeout = "APP_SHUTDOWN_TIMEOUT"
	EnvMetricsEnabled  = "APP_METRICS_ENABLED"
	EnvCORSOrigins     = "APP_CORS_ORIGINS"
	EnvStoreURL        = "APP_STORE_URL"
	EnvOrder           = "APP_ORDER"
	EnvWriteTimeout    = "APP_WRITE_TIMEOUT"
	EnvReconnectMin    = "APP_RECONNECT_MIN"
	EnvReconnectMax    = "APP_RECONNECT_MAX"
)

// Config holds the application configuration.
type Config struct {
	// Server settings.
	ServerPort      int
	LogLevel        string
	ShutdownTimeout time.Duration
	MetricsEnabled  bool
	CORSOrigins     []string

	// Client settings.
	StoreURL     string
	Order        string
	WriteTimeout time.Duration
	ReconnectMin time.Duration
	ReconnectMax time.Duration
}

// Validation errors.
var (
	ErrInvalidServerPort      = errors.New("server port must be between 1 and 65535")
	ErrInvalidLogLevel        = errors.New("log level must be one of: debug, info, warn, error")
	ErrInvalidShutdownTimeout = errors.New("shutdown timeout must be positive")
	ErrInvalidStoreURL        = errors.New("store URL must be an absolute http or https URL")
	ErrInvalidWriteTimeout    = errors.New("write timeout must be positive")
	ErrInvalidReconnect       = errors.New("reconnect delays must be positive and min must not exceed max")
)

// fileConfig is the TOML layout. Unset keys keep their previous value.
type fileConfig struct {
	Server struct {
		Port            *int     `toml:"port"`
		LogLevel        *string  `toml:"log_level"`
		ShutdownTimeout *string  `toml:"shutdown_timeout"`
		MetricsEnabled  *bool    `toml:"metrics_enabled"`
		CORSOrigins     []string `toml:"cors_origins"`
	} `toml:"server"`
	Client struct {
		StoreURL     *string `toml:"store_url"`
		Order        *string `toml:"order"`
		WriteTimeout *string `toml:"write_timeout"`
		ReconnectMin *string `toml:"reconnect_min"`
		ReconnectMax *string `toml:"reconnect_max"`
	} `toml:"client"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		ServerPort:      DefaultServerPort,
		LogLevel:        DefaultLogLevel,
		ShutdownTimeout: DefaultShutdownTimeout,
		MetricsEnabled:  DefaultMetricsEnabled,
		CORSOrigins:     []string{"*"},
		StoreURL:        DefaultStoreURL,
		Order:           DefaultOrder,
		WriteTimeout:    DefaultWriteTimeout,
		ReconnectMin:    DefaultReconnectMin,
		ReconnectMax:    DefaultReconnectMax,
	}
}

// Load builds the configuration from defaults, then the TOML file named by
// APP_CONFIG_FILE if set, then environment variables.
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv(EnvConfigFile); path != "" {
		if err := cfg.loadFromFile(path); err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
	}

	if err := cfg.loadFromEnv(); err != nil {
		return nil, fmt.Errorf("loading config from environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// loadFromFile overlays the values set in a TOML file.
func (c *Config) loadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}

	var raw fileConfig
	if err := toml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}

	s := raw.Server
	if s.Port != nil {
		c.ServerPort = *s.Port
	}
	if s.LogLevel != nil {
		c.LogLevel = strings.TrimSpace(*s.LogLevel)
	}
	if err := setDuration(&c.ShutdownTimeout, s.ShutdownTimeout, "server.shutdown_timeout"); err != nil {
		return err
	}
	if s.MetricsEnabled != nil {
		c.MetricsEnabled = *s.MetricsEnabled
	}
	if len(s.CORSOrigins) > 0 {
		c.CORSOrigins = s.CORSOrigins
	}

	cl := raw.Client
	if cl.StoreURL != nil {
		c.StoreURL = strings.TrimSpace(*cl.StoreURL)
	}
	if cl.Order != nil {
		c.Order = strings.TrimSpace(*cl.Order)
	}
	if err := setDuration(&c.WriteTimeout, cl.WriteTimeout, "client.write_timeout"); err != nil {
		return err
	}
	if err := setDuration(&c.ReconnectMin, cl.ReconnectMin, "client.reconnect_min"); err != nil {
		return err
	}
	return setDuration(&c.ReconnectMax, cl.ReconnectMax, "client.reconnect_max")
}

func setDuration(dst *time.Duration, val *string, key string) error {
	if val == nil {
		return nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(*val))
	if err != nil {
		return fmt.Errorf("parsing %s: %w", key, err)
	}
	*dst = d
	return nil
}

// loadFromEnv loads configuration values from environment variables.
func (c *Config) loadFromEnv() error {
	if err := c.loadServerEnv(); err != nil {
		return err
	}

	return c.loadClientEnv()
}

// loadServerEnv loads server-related environment variables.
func (c *Config) loadServerEnv() error {
	if val := os.Getenv(EnvServerPort); val != "" {
		port, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", EnvServerPort, err)
		}
		c.ServerPort = port
	}

	if val := os.Getenv(EnvLogLevel); val != "" {
		c.LogLevel = val
	}

	if err := envDuration(&c.ShutdownTimeout, EnvShutdownTimeout); err != nil {
		return err
	}

	if val := os.Getenv(EnvMetricsEnabled); val != "" {
		enabled, err := strconv.ParseBool(val)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", EnvMetricsEnabled, err)
		}
		c.MetricsEnabled = enabled
	}

	if val := os.Getenv(EnvCORSOrigins); val != "" {
		var origins []string
		for _, origin := range strings.Split(val, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				origins = append(origins, origin)
			}
		}
		c.CORSOrigins = origins
	}

	return nil
}

// loadClientEnv loads the grocery client's environment variables.
func (c *Config) loadClientEnv() error {
	if val := os.Getenv(EnvStoreURL); val != "" {
		c.StoreURL = val
	}

	if val := os.Getenv(EnvOrder); val != "" {
		c.Order = val
	}

	for _, d := range []struct {
		dst *time.Duration
		env string
	}{
		{&c.WriteTimeout, EnvWriteTimeout},
		{&c.ReconnectMin, EnvReconnectMin},
		{&c.ReconnectMax, EnvReconnectMax},
	} {
		if err := envDuration(d.dst, d.env); err != nil {
			return err
		}
	}

	return nil
}

func envDuration(dst *time.Duration, env string) error {
	val := os.Getenv(env)
	if val == "" {
		return nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return fmt.Errorf("parsing %s: %w", env, err)
	}
	*dst = d
	return nil
}

// Validate checks if the configuration values are valid.
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}

	return c.validateClient()
}

// validateServer validates server-related configuration.
func (c *Config) validateServer() error {
	if c.ServerPort < 1 || c.ServerPort > 65535 {
		return ErrInvalidServerPort
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return ErrInvalidLogLevel
	}

	if c.ShutdownTimeout <= 0 {
		return ErrInvalidShutdownTimeout
	}

	return nil
}

// validateClient validates the grocery client configuration.
func (c *Config) validateClient() error {
	u, err := url.Parse(c.StoreURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return ErrInvalidStoreURL
	}

	if _, err := mirror.ParseOrder(c.Order); err != nil {
		return err
	}

	if c.WriteTimeout <= 0 {
		return ErrInvalidWriteTimeout
	}

	if c.ReconnectMin <= 0 || c.ReconnectMax <= 0 || c.ReconnectMin > c.ReconnectMax {
		return ErrInvalidReconnect
	}

	return nil
}

// Address returns the server address in host:port format.
func (c *Config) Address() string {
	return fmt.Sprintf(":%d", c.ServerPort)
}

// OrderPolicy returns the parsed display order. Call after Validate.
func (c *Config) OrderPolicy() mirror.Order {
	order, err := mirror.ParseOrder(c.Order)
	if err != nil {
		return mirror.OrderNewestFirst
	}
	return order
}

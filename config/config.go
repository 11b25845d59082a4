// Package config handles application configuration.
//
// Settings are layered: built-in defaults, then the config file, then
// command-line flags.
package config

import (
	"os"
	"path/filepath"
	"runtime"
	"time"
)

// Version is the build version reported by /version. Overridden at link time.
var Version = "1.0.0"

// NetworkType identifies mainnet or testnet.
type NetworkType string

const (
	Mainnet NetworkType = "mainnet"
	Testnet NetworkType = "testnet"
)

// Config holds runtime configuration.
type Config struct {
	// Core
	Network NetworkType `conf:"network"`
	DataDir string      `conf:"datadir"`

	// HTTP API
	HTTP HTTPConfig

	// Backing fluxd node
	Node NodeConfig

	// Supply snapshot cache
	Cache CacheConfig

	// Prometheus
	Metrics MetricsConfig

	// Logging
	Log LogConfig
}

// HTTPConfig holds API server settings.
type HTTPConfig struct {
	Addr        string   `conf:"http.addr"`
	Port        int      `conf:"http.port"`
	Prefix      string   `conf:"http.prefix"`
	AllowedIPs  []string `conf:"http.allowed"`
	CORSOrigins []string `conf:"http.cors"` // Allowed CORS origins ("*" = all).
}

// NodeConfig holds the fluxd RPC connection.
type NodeConfig struct {
	RPC      string        `conf:"node.rpc"`
	User     string        `conf:"node.user"`
	Password string        `conf:"node.password"`
	Timeout  time.Duration `conf:"node.timeout"`
	Poll     time.Duration `conf:"node.poll"` // Tip polling interval.
}

// CacheConfig holds supply cache settings.
type CacheConfig struct {
	TTL     time.Duration `conf:"cache.ttl"`
	Persist bool          `conf:"cache.persist"` // Keep the last snapshot on disk.
}

// MetricsConfig holds metrics settings.
type MetricsConfig struct {
	Enabled bool `conf:"metrics.enabled"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `conf:"log.level"`
	File  string `conf:"log.file"`
	JSON  bool   `conf:"log.json"`
}

// DefaultDataDir returns the platform-specific default data directory.
//
//	Linux:   ~/.fluxinsight
//	macOS:   ~/Library/Application Support/FluxInsight
//	Windows: %APPDATA%\FluxInsight
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".fluxinsight"
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "FluxInsight")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData != "" {
			return filepath.Join(appData, "FluxInsight")
		}
		return filepath.Join(home, "AppData", "Roaming", "FluxInsight")
	default:
		return filepath.Join(home, ".fluxinsight")
	}
}

// ChainDataDir returns the network-specific data directory.
func (c *Config) ChainDataDir() string {
	return filepath.Join(c.DataDir, string(c.Network))
}

// CacheDir returns the snapshot database directory.
func (c *Config) CacheDir() string {
	return filepath.Join(c.ChainDataDir(), "cache")
}

// LogsDir returns the logs directory.
func (c *Config) LogsDir() string {
	return filepath.Join(c.DataDir, "logs")
}

// ConfigFile returns the config file path.
func (c *Config) ConfigFile() string {
	return filepath.Join(c.DataDir, "fluxinsight.conf")
}

// ListenAddr returns the API host:port.
func (c *Config) ListenAddr() string {
	return joinHostPort(c.HTTP.Addr, c.HTTP.Port)
}

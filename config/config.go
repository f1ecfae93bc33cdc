// Package config handles application configuration.
//
// Configuration is split into two categories:
//   - Protocol rules: defined in the genesis file, fixed once a data
//     directory has been initialized
//   - Node settings: runtime configuration that can change between restarts
package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// NetworkType identifies mainnet or testnet.
type NetworkType string

const (
	Mainnet NetworkType = "mainnet"
	Testnet NetworkType = "testnet"
)

// Config holds node-specific runtime configuration.
type Config struct {
	Network NetworkType `conf:"network"`
	DataDir string      `conf:"datadir"`

	// Genesis is the path to a YAML genesis file. Empty selects the
	// built-in genesis for the network.
	Genesis string `conf:"genesis"`

	RPC RPCConfig
	Log LogConfig
}

// RPCConfig holds RPC server settings.
type RPCConfig struct {
	Enabled     bool     `conf:"rpc.enabled"`
	Addr        string   `conf:"rpc.addr"`
	Port        int      `conf:"rpc.port"`
	AllowedIPs  []string `conf:"rpc.allowed"`
	CORSOrigins []string `conf:"rpc.cors"`

	// Per-client request budget. Zero disables rate limiting.
	RateLimit float64 `conf:"rpc.ratelimit"`
	RateBurst int     `conf:"rpc.rateburst"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `conf:"log.level"`
	File  string `conf:"log.file"`
	JSON  bool   `conf:"log.json"`
}

// DefaultDataDir returns the platform-specific default data directory.
//
//	Linux:   ~/.truthstamp
//	macOS:   ~/Library/Application Support/TruthStamp
//	Windows: %APPDATA%\TruthStamp
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".truthstamp"
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "TruthStamp")
	case "windows":
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, "TruthStamp")
		}
		return filepath.Join(home, "AppData", "Roaming", "TruthStamp")
	default:
		return filepath.Join(home, ".truthstamp")
	}
}

// NetworkDataDir returns the network-specific data directory.
func (c *Config) NetworkDataDir() string {
	return filepath.Join(c.DataDir, string(c.Network))
}

// DBDir returns the Badger database directory.
func (c *Config) DBDir() string {
	return filepath.Join(c.NetworkDataDir(), "db")
}

// LogsDir returns the logs directory.
func (c *Config) LogsDir() string {
	return filepath.Join(c.DataDir, "logs")
}

// ConfigFile returns the config file path.
func (c *Config) ConfigFile() string {
	return filepath.Join(c.DataDir, "truthstamp.conf")
}

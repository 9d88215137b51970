// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	commonderrors "github.com/tombee/commond/pkg/errors"
)

var (
	// ErrInvalidConfig is returned when configuration validation fails.
	ErrInvalidConfig = errors.New("config: invalid configuration")
)

// Network names accepted by the daemon launcher.
const (
	NetworkUnix = "unix"
	NetworkInet = "inet"
)

// Backend types.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
)

// Config represents the complete commond configuration.
type Config struct {
	Log    LogConfig    `yaml:"log"`
	Daemon DaemonConfig `yaml:"daemon"`
	Client ClientConfig `yaml:"client"`
}

// LogConfig configures logging behavior.
type LogConfig struct {
	// Level sets the minimum log level (trace, debug, info, warn, error).
	// Environment: LOG_LEVEL
	// Default: info
	Level string `yaml:"level"`

	// Format sets the output format (json, text).
	// Environment: LOG_FORMAT
	// Default: json
	Format string `yaml:"format"`

	// AddSource adds source file and line information to logs.
	AddSource bool `yaml:"add_source"`
}

// DaemonConfig configures the commond daemon.
type DaemonConfig struct {
	// Listen configures the daemon's socket.
	Listen ListenConfig `yaml:"listen"`

	// MaxClients is the number of concurrently connected clients. Connections
	// beyond it are refused.
	// Environment: COMMOND_MAX_CLIENTS
	// Default: 10
	MaxClients int `yaml:"max_clients"`

	// CoordinationDir enables the filesystem alert feed and the running marker.
	// Environment: COMMOND_COORDINATION_DIR
	CoordinationDir string `yaml:"coordination_dir,omitempty"`

	// PIDFile is the path to the PID file. Empty means no PID file.
	// Environment: COMMOND_PID_FILE
	PIDFile string `yaml:"pid_file,omitempty"`

	// WriteTimeout bounds each reply write. Zero means no deadline.
	WriteTimeout time.Duration `yaml:"write_timeout,omitempty"`

	// ShutdownTimeout bounds the metrics server shutdown.
	// Default: 5s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout,omitempty"`

	// Backend configures the registry storage.
	Backend BackendConfig `yaml:"backend"`

	// Metrics configures the Prometheus endpoint.
	Metrics MetricsConfig `yaml:"metrics,omitempty"`

	// Feed configures the optional NATS alert feed.
	Feed FeedConfig `yaml:"feed,omitempty"`
}

// ListenConfig configures how the daemon listens for connections.
type ListenConfig struct {
	// Network is "unix" or "inet".
	// Environment: COMMOND_NETWORK
	// Default: unix
	Network string `yaml:"network"`

	// SocketPath is the Unix socket path.
	// Environment: COMMOND_SOCKET
	// Default: $XDG_RUNTIME_DIR/commond/commond.sock or ~/.commond/commond.sock
	SocketPath string `yaml:"socket_path,omitempty"`

	// Host is the TCP host for the inet network.
	// Environment: COMMOND_HOST
	// Default: 127.0.0.1
	Host string `yaml:"host,omitempty"`

	// Port is the TCP port for the inet network.
	// Environment: COMMOND_PORT
	Port int `yaml:"port,omitempty"`

	// AllowRemote must be true to bind to non-localhost TCP addresses.
	AllowRemote bool `yaml:"allow_remote"`
}

// Address returns the socket path or host:port the listener binds.
func (l ListenConfig) Address() string {
	if l.Network == NetworkInet {
		return net.JoinHostPort(l.Host, strconv.Itoa(l.Port))
	}
	return l.SocketPath
}

// BackendConfig configures the registry storage backend.
type BackendConfig struct {
	// Type is "memory" or "sqlite".
	// Environment: COMMOND_BACKEND
	// Default: memory
	Type string `yaml:"type"`

	// SQLite contains SQLite-specific configuration.
	SQLite SQLiteConfig `yaml:"sqlite,omitempty"`
}

// SQLiteConfig contains SQLite settings.
type SQLiteConfig struct {
	// Path is the database file.
	// Environment: COMMOND_SQLITE_PATH
	Path string `yaml:"path,omitempty"`

	// WAL enables write-ahead logging.
	WAL bool `yaml:"wal"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	// Addr is the HTTP address serving /metrics. Empty disables it.
	// Environment: COMMOND_METRICS_ADDR
	Addr string `yaml:"addr,omitempty"`
}

// FeedConfig configures the NATS alert feed.
type FeedConfig struct {
	// NATSURL enables publishing alert events when set.
	// Environment: COMMOND_NATS_URL
	NATSURL string `yaml:"nats_url,omitempty"`

	// NATSSubject is the subject alert events are published on.
	// Environment: COMMOND_NATS_SUBJECT
	// Default: commond.alerts
	NATSSubject string `yaml:"nats_subject,omitempty"`
}

// ClientConfig configures commonctl and embedded client stubs.
type ClientConfig struct {
	// Host is unix:///path or tcp://host:port. Empty means the default socket.
	// Environment: COMMOND_CLIENT_HOST
	Host string `yaml:"host,omitempty"`

	// Owner is the owner identifier used for alerts.
	// Environment: COMMOND_OWNER
	// Default: commonctl
	Owner string `yaml:"owner,omitempty"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Daemon: DaemonConfig{
			Listen: ListenConfig{
				Network:    NetworkUnix,
				SocketPath: DefaultSocketPath(),
				Host:       "127.0.0.1",
			},
			MaxClients:      10,
			ShutdownTimeout: 5 * time.Second,
			Backend: BackendConfig{
				Type: BackendMemory,
				SQLite: SQLiteConfig{
					WAL: true,
				},
			},
			Feed: FeedConfig{
				NATSSubject: "commond.alerts",
			},
		},
		Client: ClientConfig{
			Owner: "commonctl",
		},
	}
}

// Load loads configuration from an optional YAML file, then applies
// environment overrides and validates the result.
func Load(configPath string) (*Config, error) {
	cfg := Default()

	if configPath != "" {
		if err := cfg.loadFromFile(configPath); err != nil {
			return nil, &commonderrors.ConfigError{
				Key:    "config_file",
				Reason: fmt.Sprintf("failed to load from %s", configPath),
				Cause:  err,
			}
		}
	}

	cfg.applyDefaults()

	if err := cfg.loadFromEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, &commonderrors.ConfigError{
			Key:    "validation",
			Reason: "configuration validation failed",
			Cause:  err,
		}
	}

	return cfg, nil
}

func (c *Config) loadFromFile(path string) error {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(home, path[2:])
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}

	return nil
}

// applyDefaults fills in zero values so minimal configs work.
func (c *Config) applyDefaults() {
	defaults := Default()

	if c.Log.Level == "" {
		c.Log.Level = defaults.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = defaults.Log.Format
	}
	if c.Daemon.Listen.Network == "" {
		c.Daemon.Listen.Network = defaults.Daemon.Listen.Network
	}
	if c.Daemon.Listen.SocketPath == "" {
		c.Daemon.Listen.SocketPath = defaults.Daemon.Listen.SocketPath
	}
	if c.Daemon.Listen.Host == "" {
		c.Daemon.Listen.Host = defaults.Daemon.Listen.Host
	}
	if c.Daemon.MaxClients == 0 {
		c.Daemon.MaxClients = defaults.Daemon.MaxClients
	}
	if c.Daemon.ShutdownTimeout == 0 {
		c.Daemon.ShutdownTimeout = defaults.Daemon.ShutdownTimeout
	}
	if c.Daemon.Backend.Type == "" {
		c.Daemon.Backend.Type = defaults.Daemon.Backend.Type
	}
	if c.Daemon.Feed.NATSSubject == "" {
		c.Daemon.Feed.NATSSubject = defaults.Daemon.Feed.NATSSubject
	}
	if c.Client.Owner == "" {
		c.Client.Owner = defaults.Client.Owner
	}
}

// loadFromEnv overrides configuration with environment variables.
func (c *Config) loadFromEnv() error {
	if val := os.Getenv("LOG_LEVEL"); val != "" {
		c.Log.Level = strings.ToLower(val)
	}
	if val := os.Getenv("LOG_FORMAT"); val != "" {
		c.Log.Format = strings.ToLower(val)
	}
	if val := os.Getenv("LOG_SOURCE"); val != "" {
		c.Log.AddSource = val == "1" || val == "true"
	}

	if val := os.Getenv("COMMOND_NETWORK"); val != "" {
		c.Daemon.Listen.Network = val
	}
	if val := os.Getenv("COMMOND_SOCKET"); val != "" {
		c.Daemon.Listen.SocketPath = val
	}
	if val := os.Getenv("COMMOND_HOST"); val != "" {
		c.Daemon.Listen.Host = val
	}
	if val := os.Getenv("COMMOND_PORT"); val != "" {
		port, err := strconv.Atoi(val)
		if err != nil {
			return &commonderrors.ConfigError{Key: "COMMOND_PORT", Reason: "must be an integer", Cause: err}
		}
		c.Daemon.Listen.Port = port
	}
	if val := os.Getenv("COMMOND_MAX_CLIENTS"); val != "" {
		n, err := strconv.Atoi(val)
		if err != nil {
			return &commonderrors.ConfigError{Key: "COMMOND_MAX_CLIENTS", Reason: "must be an integer", Cause: err}
		}
		c.Daemon.MaxClients = n
	}
	if val := os.Getenv("COMMOND_COORDINATION_DIR"); val != "" {
		c.Daemon.CoordinationDir = val
	}
	if val := os.Getenv("COMMOND_PID_FILE"); val != "" {
		c.Daemon.PIDFile = val
	}
	if val := os.Getenv("COMMOND_BACKEND"); val != "" {
		c.Daemon.Backend.Type = val
	}
	if val := os.Getenv("COMMOND_SQLITE_PATH"); val != "" {
		c.Daemon.Backend.SQLite.Path = val
	}
	if val := os.Getenv("COMMOND_METRICS_ADDR"); val != "" {
		c.Daemon.Metrics.Addr = val
	}
	if val := os.Getenv("COMMOND_NATS_URL"); val != "" {
		c.Daemon.Feed.NATSURL = val
	}
	if val := os.Getenv("COMMOND_NATS_SUBJECT"); val != "" {
		c.Daemon.Feed.NATSSubject = val
	}
	if val := os.Getenv("COMMOND_CLIENT_HOST"); val != "" {
		c.Client.Host = val
	}
	if val := os.Getenv("COMMOND_OWNER"); val != "" {
		c.Client.Owner = val
	}

	return nil
}

// Validate checks the configuration and reports every problem at once.
func (c *Config) Validate() error {
	var errs []string

	validLevels := map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "warning": true, "error": true}
	if !validLevels[c.Log.Level] {
		errs = append(errs, fmt.Sprintf("log.level must be one of [trace, debug, info, warn, error], got %q", c.Log.Level))
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		errs = append(errs, fmt.Sprintf("log.format must be one of [json, text], got %q", c.Log.Format))
	}

	listen := c.Daemon.Listen
	switch listen.Network {
	case NetworkUnix:
		if listen.SocketPath == "" {
			errs = append(errs, "daemon.listen.socket_path is required for the unix network")
		}
	case NetworkInet:
		if listen.Host == "" {
			errs = append(errs, "daemon.listen.host is required for the inet network")
		}
		if listen.Port < 1 || listen.Port > 65535 {
			errs = append(errs, fmt.Sprintf("daemon.listen.port must be between 1 and 65535, got %d", listen.Port))
		}
	default:
		errs = append(errs, fmt.Sprintf("daemon.listen.network must be one of [unix, inet], got %q", listen.Network))
	}

	if c.Daemon.MaxClients < 1 {
		errs = append(errs, fmt.Sprintf("daemon.max_clients must be at least 1, got %d", c.Daemon.MaxClients))
	}
	if c.Daemon.WriteTimeout < 0 {
		errs = append(errs, fmt.Sprintf("daemon.write_timeout must be non-negative, got %v", c.Daemon.WriteTimeout))
	}

	switch c.Daemon.Backend.Type {
	case BackendMemory:
	case BackendSQLite:
		if c.Daemon.Backend.SQLite.Path == "" {
			errs = append(errs, "daemon.backend.sqlite.path is required for the sqlite backend")
		}
	default:
		errs = append(errs, fmt.Sprintf("daemon.backend.type must be one of [memory, sqlite], got %q", c.Daemon.Backend.Type))
	}

	if c.Daemon.Feed.NATSURL != "" && c.Daemon.Feed.NATSSubject == "" {
		errs = append(errs, "daemon.feed.nats_subject is required when nats_url is set")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w:\n  - %s", ErrInvalidConfig, strings.Join(errs, "\n  - "))
	}

	return nil
}

// DefaultSocketPath returns the default Unix socket path.
func DefaultSocketPath() string {
	if runtimeDir := os.Getenv("XDG_RUNTIME_DIR"); runtimeDir != "" {
		return filepath.Join(runtimeDir, "commond", "commond.sock")
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "/tmp/commond.sock"
	}

	return filepath.Join(homeDir, ".commond", "commond.sock")
}

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config represents the palette configuration.
type Config struct {
	Daemon   DaemonConfig    `yaml:"daemon"`
	Client   ClientConfig    `yaml:"client"`
	Search   SearchConfig    `yaml:"search"`
	Commands []CustomCommand `yaml:"commands"`
}

// DaemonConfig holds backend daemon settings.
type DaemonConfig struct {
	IdleTimeoutMins int    `yaml:"idle_timeout_mins"` // Auto-shutdown after idle (0 = never)
	SocketPath      string `yaml:"socket_path"`       // Unix socket path (overrides default)
	LogLevel        string `yaml:"log_level"`         // debug, info, warn, error
	LogFile         string `yaml:"log_file"`          // Log file path (overrides default)
	Workers         int    `yaml:"workers"`           // Dispatcher worker pool size
}

// ClientConfig holds front-end settings.
type ClientConfig struct {
	ConnectTimeoutMs int  `yaml:"connect_timeout_ms"` // Socket connection timeout
	RequestTimeoutMs int  `yaml:"request_timeout_ms"` // Per-request reply timeout
	AutoStartDaemon  bool `yaml:"auto_start_daemon"`  // Auto-start daemon if not running
}

// SearchConfig holds search and ranking tunables.
type SearchConfig struct {
	MaxResults  int `yaml:"max_results"`  // Cap on the ranked result list
	DebounceMs  int `yaml:"debounce_ms"`  // Input coalescing window
	HistoryDays int `yaml:"history_days"` // History recency window (0 = unlimited)
}

// CustomCommand is a user-defined action command served by the builtin
// provider: typing its alias offers a confirmable command that runs Exec.
type CustomCommand struct {
	Alias string `yaml:"alias"`
	Name  string `yaml:"name"`
	Exec  string `yaml:"exec"` // shell-style command line, split with shlex
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Daemon: DaemonConfig{
			IdleTimeoutMins: 30,
			SocketPath:      "", // Use default from paths
			LogLevel:        "info",
			LogFile:         "", // Use default from paths
			Workers:         16,
		},
		Client: ClientConfig{
			ConnectTimeoutMs: 1000,
			RequestTimeoutMs: 3000,
			AutoStartDaemon:  true,
		},
		Search: SearchConfig{
			MaxResults:  50,
			DebounceMs:  100,
			HistoryDays: 90,
		},
	}
}

// Load loads configuration from the default path.
func Load() (*Config, error) {
	paths := DefaultPaths()
	return LoadFromFile(paths.ConfigFile())
}

// LoadFromFile loads configuration from the specified file.
// If the file doesn't exist, returns default configuration.
// Environment variable overrides are applied after file loading.
func LoadFromFile(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.ApplyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.ApplyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// Save saves the configuration to the default path.
func (c *Config) Save() error {
	paths := DefaultPaths()
	return c.SaveToFile(paths.ConfigFile())
}

// SaveToFile saves the configuration to the specified file.
func (c *Config) SaveToFile(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Get retrieves a configuration value by dot-separated key, e.g.
// "daemon.idle_timeout_mins" or "search.max_results".
func (c *Config) Get(key string) (string, error) {
	parts := strings.Split(key, ".")
	if len(parts) != 2 {
		return "", errors.New("key must be in format 'section.key'")
	}

	section, field := parts[0], parts[1]

	switch section {
	case "daemon":
		return c.getDaemonField(field)
	case "client":
		return c.getClientField(field)
	case "search":
		return c.getSearchField(field)
	default:
		return "", fmt.Errorf("unknown section: %s", section)
	}
}

// Set sets a configuration value by dot-separated key.
func (c *Config) Set(key, value string) error {
	parts := strings.Split(key, ".")
	if len(parts) != 2 {
		return errors.New("key must be in format 'section.key'")
	}

	section, field := parts[0], parts[1]

	switch section {
	case "daemon":
		return c.setDaemonField(field, value)
	case "client":
		return c.setClientField(field, value)
	case "search":
		return c.setSearchField(field, value)
	default:
		return fmt.Errorf("unknown section: %s", section)
	}
}

func (c *Config) getDaemonField(field string) (string, error) {
	switch field {
	case "idle_timeout_mins":
		return strconv.Itoa(c.Daemon.IdleTimeoutMins), nil
	case "socket_path":
		return c.Daemon.SocketPath, nil
	case "log_level":
		return c.Daemon.LogLevel, nil
	case "log_file":
		return c.Daemon.LogFile, nil
	case "workers":
		return strconv.Itoa(c.Daemon.Workers), nil
	default:
		return "", fmt.Errorf("unknown field: daemon.%s", field)
	}
}

func (c *Config) setDaemonField(field, value string) error {
	switch field {
	case "idle_timeout_mins":
		v, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid value for idle_timeout_mins: %w", err)
		}
		if v < 0 {
			return fmt.Errorf("invalid idle_timeout_mins: must be non-negative")
		}
		c.Daemon.IdleTimeoutMins = v
	case "socket_path":
		c.Daemon.SocketPath = value
	case "log_level":
		if !isValidLogLevel(value) {
			return fmt.Errorf("invalid log_level: %s (must be debug, info, warn, or error)", value)
		}
		c.Daemon.LogLevel = value
	case "log_file":
		c.Daemon.LogFile = value
	case "workers":
		v, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid value for workers: %w", err)
		}
		if v < 1 {
			return fmt.Errorf("invalid workers: must be >= 1")
		}
		c.Daemon.Workers = v
	default:
		return fmt.Errorf("unknown field: daemon.%s", field)
	}
	return nil
}

func (c *Config) getClientField(field string) (string, error) {
	switch field {
	case "connect_timeout_ms":
		return strconv.Itoa(c.Client.ConnectTimeoutMs), nil
	case "request_timeout_ms":
		return strconv.Itoa(c.Client.RequestTimeoutMs), nil
	case "auto_start_daemon":
		return strconv.FormatBool(c.Client.AutoStartDaemon), nil
	default:
		return "", fmt.Errorf("unknown field: client.%s", field)
	}
}

func (c *Config) setClientField(field, value string) error {
	switch field {
	case "connect_timeout_ms":
		v, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid value for connect_timeout_ms: %w", err)
		}
		if v < 0 {
			return fmt.Errorf("invalid connect_timeout_ms: must be non-negative")
		}
		c.Client.ConnectTimeoutMs = v
	case "request_timeout_ms":
		v, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid value for request_timeout_ms: %w", err)
		}
		if v < 0 {
			return fmt.Errorf("invalid request_timeout_ms: must be non-negative")
		}
		c.Client.RequestTimeoutMs = v
	case "auto_start_daemon":
		v, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid value for auto_start_daemon: %w", err)
		}
		c.Client.AutoStartDaemon = v
	default:
		return fmt.Errorf("unknown field: client.%s", field)
	}
	return nil
}

func (c *Config) getSearchField(field string) (string, error) {
	switch field {
	case "max_results":
		return strconv.Itoa(c.Search.MaxResults), nil
	case "debounce_ms":
		return strconv.Itoa(c.Search.DebounceMs), nil
	case "history_days":
		return strconv.Itoa(c.Search.HistoryDays), nil
	default:
		return "", fmt.Errorf("unknown field: search.%s", field)
	}
}

func (c *Config) setSearchField(field, value string) error {
	switch field {
	case "max_results":
		v, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid value for max_results: %w", err)
		}
		if v < 1 {
			v = 1
		}
		if v > 500 {
			v = 500
		}
		c.Search.MaxResults = v
	case "debounce_ms":
		v, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid value for debounce_ms: %w", err)
		}
		if v < 0 {
			return fmt.Errorf("invalid debounce_ms: must be non-negative")
		}
		c.Search.DebounceMs = v
	case "history_days":
		v, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid value for history_days: %w", err)
		}
		if v < 0 {
			return fmt.Errorf("invalid history_days: must be non-negative")
		}
		c.Search.HistoryDays = v
	default:
		return fmt.Errorf("unknown field: search.%s", field)
	}
	return nil
}

// Validate validates the configuration, clamping soft limits instead of
// failing where a safe fallback exists.
func (c *Config) Validate() error {
	if c.Daemon.IdleTimeoutMins < 0 {
		return errors.New("daemon.idle_timeout_mins must be >= 0")
	}

	if !isValidLogLevel(c.Daemon.LogLevel) {
		return fmt.Errorf("daemon.log_level must be debug, info, warn, or error (got: %s)", c.Daemon.LogLevel)
	}

	if c.Daemon.Workers < 1 {
		c.Daemon.Workers = DefaultConfig().Daemon.Workers
	}

	if c.Client.ConnectTimeoutMs < 0 {
		return errors.New("client.connect_timeout_ms must be >= 0")
	}

	if c.Client.RequestTimeoutMs < 0 {
		return errors.New("client.request_timeout_ms must be >= 0")
	}

	// Clamp result cap to [1, 500].
	if c.Search.MaxResults < 1 {
		c.Search.MaxResults = 1
	}
	if c.Search.MaxResults > 500 {
		c.Search.MaxResults = 500
	}

	if c.Search.DebounceMs < 0 {
		return errors.New("search.debounce_ms must be >= 0")
	}

	if c.Search.HistoryDays < 0 {
		return errors.New("search.history_days must be >= 0")
	}

	for i, cmd := range c.Commands {
		if cmd.Alias == "" {
			return fmt.Errorf("commands[%d]: alias must not be empty", i)
		}
		if cmd.Exec == "" {
			return fmt.Errorf("commands[%d] (%s): exec must not be empty", i, cmd.Alias)
		}
	}

	return nil
}

func isValidLogLevel(level string) bool {
	switch level {
	case "debug", "info", "warn", "error":
		return true
	default:
		return false
	}
}

// ApplyEnvOverrides applies environment variable overrides to the config.
// Environment variables override config file values.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("PALETTE_DEBUG"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil && b {
			c.Daemon.LogLevel = "debug"
		}
	}
	if v := os.Getenv("PALETTE_LOG_LEVEL"); v != "" {
		if isValidLogLevel(v) {
			c.Daemon.LogLevel = v
		}
	}
	if v := os.Getenv("PALETTE_SOCKET_PATH"); v != "" {
		c.Daemon.SocketPath = v
	}
	if v := os.Getenv("PALETTE_MAX_RESULTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Search.MaxResults = n
		}
	}
}

// ListKeys returns user-facing configuration keys.
func ListKeys() []string {
	return []string{
		"daemon.idle_timeout_mins",
		"daemon.log_level",
		"client.auto_start_daemon",
		"search.max_results",
		"search.debounce_ms",
		"search.history_days",
	}
}

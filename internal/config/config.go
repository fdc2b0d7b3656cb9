package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"supersim/internal/paths"
	"supersim/internal/resolve"
)

// CurrentVersion is the configuration schema version.
const CurrentVersion = 1

// EnvPrefix prefixes environment overrides, e.g. SUPERSIM_BACKEND_URL.
const EnvPrefix = "SUPERSIM"

// Config represents the complete supersim configuration
type Config struct {
	Version int `json:"version" mapstructure:"version"`

	Backend  BackendConfig  `json:"backend" mapstructure:"backend"`
	Server   ServerConfig   `json:"server" mapstructure:"server"`
	Logging  LoggingConfig  `json:"logging" mapstructure:"logging"`
	Storage  StorageConfig  `json:"storage" mapstructure:"storage"`
	Resolver ResolverConfig `json:"resolver" mapstructure:"resolver"`
}

// BackendConfig describes how to reach the simulator backend
type BackendConfig struct {
	URL          string  `json:"url" mapstructure:"url"`
	TimeoutMs    int     `json:"timeoutMs" mapstructure:"timeoutMs"`
	MaxBodyBytes int64   `json:"maxBodyBytes" mapstructure:"maxBodyBytes"`
	RateLimit    float64 `json:"rateLimit" mapstructure:"rateLimit"` // requests per second, 0 disables pacing
	Burst        int     `json:"burst" mapstructure:"burst"`
}

// Timeout returns the request timeout as a duration
func (b BackendConfig) Timeout() time.Duration {
	return time.Duration(b.TimeoutMs) * time.Millisecond
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Host string `json:"host" mapstructure:"host"`
	Port int    `json:"port" mapstructure:"port"`
}

// Addr returns host:port
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Format     string `json:"format" mapstructure:"format"`
	Level      string `json:"level" mapstructure:"level"`
	File       string `json:"file,omitempty" mapstructure:"file"`
	MaxSize    string `json:"maxSize,omitempty" mapstructure:"maxSize"` // e.g. "10MB"; empty disables rotation
	MaxBackups int    `json:"maxBackups,omitempty" mapstructure:"maxBackups"`

	// Per-subsystem level overrides
	API    string `json:"api,omitempty" mapstructure:"api"`
	Client string `json:"client,omitempty" mapstructure:"client"`

	Remote RemoteLogConfig `json:"remote" mapstructure:"remote"`
}

// RemoteLogConfig configures shipping logs to a Loki endpoint
type RemoteLogConfig struct {
	Enabled       bool              `json:"enabled" mapstructure:"enabled"`
	Endpoint      string            `json:"endpoint,omitempty" mapstructure:"endpoint"`
	Labels        map[string]string `json:"labels,omitempty" mapstructure:"labels"`
	BatchSize     int               `json:"batchSize,omitempty" mapstructure:"batchSize"`
	FlushInterval string            `json:"flushInterval,omitempty" mapstructure:"flushInterval"`
	Level         string            `json:"level,omitempty" mapstructure:"level"`
}

// StorageConfig locates persistent state
type StorageConfig struct {
	DBPath                string `json:"dbPath,omitempty" mapstructure:"dbPath"`
	ArchiveDir            string `json:"archiveDir,omitempty" mapstructure:"archiveDir"`
	HistoryRetentionHours int    `json:"historyRetentionHours" mapstructure:"historyRetentionHours"`
}

// ResolverConfig tunes reference resolution
type ResolverConfig struct {
	CyclePolicy string `json:"cyclePolicy" mapstructure:"cyclePolicy"`
	MaxDepth    int    `json:"maxDepth" mapstructure:"maxDepth"`
}

// Options converts the section into resolver options.
func (r ResolverConfig) Options() (resolve.Options, error) {
	policy, err := resolve.ParseCyclePolicy(r.CyclePolicy)
	if err != nil {
		return resolve.Options{}, err
	}
	return resolve.Options{Cycles: policy, MaxDepth: r.MaxDepth}, nil
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Version: CurrentVersion,
		Backend: BackendConfig{
			URL:          "http://localhost:8080/",
			TimeoutMs:    30000,
			MaxBodyBytes: 64 << 20,
			RateLimit:    0,
			Burst:        1,
		},
		Server: ServerConfig{
			Host: "localhost",
			Port: 8180,
		},
		Logging: LoggingConfig{
			Format: "human",
			Level:  "info",
			Remote: RemoteLogConfig{
				BatchSize:     100,
				FlushInterval: "5s",
			},
		},
		Storage: StorageConfig{
			HistoryRetentionHours: 24 * 7,
		},
		Resolver: ResolverConfig{
			CyclePolicy: resolve.CycleMarker.String(),
			MaxDepth:    resolve.DefaultMaxDepth,
		},
	}
}

// setDefaults registers every key so that environment overrides apply even when
// the file does not mention the key.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("version", cfg.Version)

	v.SetDefault("backend.url", cfg.Backend.URL)
	v.SetDefault("backend.timeoutMs", cfg.Backend.TimeoutMs)
	v.SetDefault("backend.maxBodyBytes", cfg.Backend.MaxBodyBytes)
	v.SetDefault("backend.rateLimit", cfg.Backend.RateLimit)
	v.SetDefault("backend.burst", cfg.Backend.Burst)

	v.SetDefault("server.host", cfg.Server.Host)
	v.SetDefault("server.port", cfg.Server.Port)

	v.SetDefault("logging.format", cfg.Logging.Format)
	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.file", cfg.Logging.File)
	v.SetDefault("logging.maxSize", cfg.Logging.MaxSize)
	v.SetDefault("logging.maxBackups", cfg.Logging.MaxBackups)
	v.SetDefault("logging.api", cfg.Logging.API)
	v.SetDefault("logging.client", cfg.Logging.Client)
	v.SetDefault("logging.remote.enabled", cfg.Logging.Remote.Enabled)
	v.SetDefault("logging.remote.endpoint", cfg.Logging.Remote.Endpoint)
	v.SetDefault("logging.remote.batchSize", cfg.Logging.Remote.BatchSize)
	v.SetDefault("logging.remote.flushInterval", cfg.Logging.Remote.FlushInterval)
	v.SetDefault("logging.remote.level", cfg.Logging.Remote.Level)

	v.SetDefault("storage.dbPath", cfg.Storage.DBPath)
	v.SetDefault("storage.archiveDir", cfg.Storage.ArchiveDir)
	v.SetDefault("storage.historyRetentionHours", cfg.Storage.HistoryRetentionHours)

	v.SetDefault("resolver.cyclePolicy", cfg.Resolver.CyclePolicy)
	v.SetDefault("resolver.maxDepth", cfg.Resolver.MaxDepth)
}

// LoadConfig loads the configuration. An explicit path must exist; otherwise
// config.{json,toml,yaml} is looked up in the supersim home directory and the
// defaults are used when none is found. SUPERSIM_* variables override both.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, DefaultConfig())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		home, err := paths.GetHome()
		if err != nil {
			return nil, err
		}
		v.SetConfigName("config")
		v.AddConfigPath(home)
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Save writes the configuration as JSON
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// DatabasePath returns the configured database path or the default under the home directory.
func (c *Config) DatabasePath() (string, error) {
	if c.Storage.DBPath != "" {
		return paths.Expand(c.Storage.DBPath), nil
	}
	return paths.GetDatabasePath()
}

// ArchivePath returns the configured archive directory or the default under the home directory.
func (c *Config) ArchivePath() (string, error) {
	if c.Storage.ArchiveDir != "" {
		return paths.Expand(c.Storage.ArchiveDir), nil
	}
	return paths.GetArchiveDir()
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Version != CurrentVersion {
		return &ConfigError{Field: "version", Message: "unsupported config version"}
	}

	u, err := url.Parse(c.Backend.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return &ConfigError{Field: "backend.url", Message: "must be an absolute http(s) URL"}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return &ConfigError{Field: "backend.url", Message: "scheme must be http or https"}
	}
	if c.Backend.TimeoutMs <= 0 {
		return &ConfigError{Field: "backend.timeoutMs", Message: "must be positive"}
	}
	if c.Backend.MaxBodyBytes <= 0 {
		return &ConfigError{Field: "backend.maxBodyBytes", Message: "must be positive"}
	}
	if c.Backend.RateLimit < 0 {
		return &ConfigError{Field: "backend.rateLimit", Message: "must not be negative"}
	}
	if c.Backend.RateLimit > 0 && c.Backend.Burst < 1 {
		return &ConfigError{Field: "backend.burst", Message: "must be at least 1 when rate limiting"}
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return &ConfigError{Field: "server.port", Message: "must be between 1 and 65535"}
	}

	switch c.Logging.Format {
	case "human", "json":
	default:
		return &ConfigError{Field: "logging.format", Message: "must be human or json"}
	}
	if c.Logging.Remote.Enabled && c.Logging.Remote.Endpoint == "" {
		return &ConfigError{Field: "logging.remote.endpoint", Message: "required when remote logging is enabled"}
	}

	if c.Storage.HistoryRetentionHours < 0 {
		return &ConfigError{Field: "storage.historyRetentionHours", Message: "must not be negative"}
	}

	if _, err := resolve.ParseCyclePolicy(c.Resolver.CyclePolicy); err != nil {
		return &ConfigError{Field: "resolver.cyclePolicy", Message: err.Error()}
	}
	if c.Resolver.MaxDepth < 0 {
		return &ConfigError{Field: "resolver.maxDepth", Message: "must not be negative"}
	}
	return nil
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "config error in field '" + e.Field + "': " + e.Message
}

package server

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/openmined/vaultsync/internal/server/auth"
	"github.com/openmined/vaultsync/internal/server/reconcile"
	"github.com/openmined/vaultsync/internal/server/retention"
	"github.com/openmined/vaultsync/internal/utils"
	"github.com/openmined/vaultsync/internal/vault"
	"github.com/ulule/limiter/v3"
)

const (
	DefaultAddr              = "0.0.0.0:3000"
	DefaultRateLimit         = "600-M"
	DefaultDataDir           = "./data"
	DefaultIdentifyTimeout   = 5 * time.Second
	DefaultMetadataCacheSize = 4096
	DefaultTokenIssuer       = "vaultsync"
	DefaultAccessTokenExpiry = time.Hour
	dbFileName               = "state.db"
	accessLogDirName         = "access"
)

type Config struct {
	HTTP    HTTPConfig          `mapstructure:"http"`
	Auth    auth.Config         `mapstructure:"auth"`
	DataDir string              `mapstructure:"data_dir"`
	DBPath  string              `mapstructure:"db_path"`
	Blob    vault.BackendConfig `mapstructure:"blob"`
	Sync    SyncConfig          `mapstructure:"sync"`
	Cleanup retention.Config    `mapstructure:"cleanup"`
	Log     LogConfig           `mapstructure:"log"`
	Access  AccessLogConfig     `mapstructure:"access_log"`
}

type HTTPConfig struct {
	Addr      string `mapstructure:"addr"`
	CertFile  string `mapstructure:"cert_file"`
	KeyFile   string `mapstructure:"key_file"`
	RateLimit string `mapstructure:"rate_limit"`
}

type SyncConfig struct {
	reconcile.Config  `mapstructure:",squash"`
	MetadataCacheSize int `mapstructure:"metadata_cache_size"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
}

// AccessLogConfig controls the per-device change log. Dir defaults to
// data_dir/access.
type AccessLogConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Dir        string `mapstructure:"dir"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
}

// DefaultConfig is the configuration used when nothing is overridden
func DefaultConfig() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Addr:      DefaultAddr,
			RateLimit: DefaultRateLimit,
		},
		Auth: auth.Config{
			TokenIssuer:       DefaultTokenIssuer,
			AccessTokenExpiry: DefaultAccessTokenExpiry,
		},
		DataDir: DefaultDataDir,
		Blob:    vault.BackendConfig{Kind: vault.BackendFS},
		Sync: SyncConfig{
			Config:            reconcile.Config{IdentifyTimeout: DefaultIdentifyTimeout},
			MetadataCacheSize: DefaultMetadataCacheSize,
		},
		Cleanup: *retention.DefaultConfig(),
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  50,
			MaxBackups: 5,
		},
		Access: AccessLogConfig{
			Enabled:    true,
			MaxSizeMB:  10,
			MaxBackups: 5,
		},
	}
}

// Validate checks every section and resolves data_dir and db_path to
// absolute paths.
func (c *Config) Validate() error {
	if c.HTTP.Addr == "" {
		return fmt.Errorf("http `addr` is required")
	}
	if (c.HTTP.CertFile == "") != (c.HTTP.KeyFile == "") {
		return fmt.Errorf("http `cert_file` and `key_file` must be set together")
	}
	if c.HTTP.RateLimit != "" {
		if _, err := limiter.NewRateFromFormatted(c.HTTP.RateLimit); err != nil {
			return fmt.Errorf("http `rate_limit`: %w", err)
		}
	}

	if err := c.Auth.Validate(); err != nil {
		return err
	}
	return c.ValidateStorage()
}

// ValidateStorage checks only what offline admin commands need: the data
// directory, state database, blob backend and retention settings.
func (c *Config) ValidateStorage() error {
	if c.DataDir == "" {
		return fmt.Errorf("`data_dir` is required")
	}
	dataDir, err := utils.ResolvePath(c.DataDir)
	if err != nil {
		return fmt.Errorf("resolve `data_dir`: %w", err)
	}
	c.DataDir = dataDir

	if c.DBPath == "" {
		c.DBPath = filepath.Join(c.DataDir, dbFileName)
	} else if c.DBPath, err = utils.ResolvePath(c.DBPath); err != nil {
		return fmt.Errorf("resolve `db_path`: %w", err)
	}

	if c.Access.Dir == "" {
		c.Access.Dir = filepath.Join(c.DataDir, accessLogDirName)
	} else if c.Access.Dir, err = utils.ResolvePath(c.Access.Dir); err != nil {
		return fmt.Errorf("resolve `access_log.dir`: %w", err)
	}
	if c.Access.MaxSizeMB < 0 || c.Access.MaxBackups < 0 {
		return fmt.Errorf("access_log sizes must not be negative")
	}

	if err := c.Blob.Validate(); err != nil {
		return err
	}
	if err := c.Sync.Validate(); err != nil {
		return fmt.Errorf("sync: %w", err)
	}
	if err := c.Cleanup.Validate(); err != nil {
		return fmt.Errorf("cleanup: %w", err)
	}
	if _, err := ParseLogLevel(c.Log.Level); err != nil {
		return err
	}
	return nil
}

// ParseLogLevel maps debug|info|warn|error to a slog level. Empty is info.
func ParseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("log `level` must be one of debug, info, warn, error; got %q", level)
	}
}

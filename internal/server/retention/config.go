package retention

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

const (
	DefaultSchedule        = "0 * * * *"
	DefaultVersionsPerFile = 1000
	DefaultKeepDeleted     = 72 * time.Hour
)

type Config struct {
	Enabled bool `mapstructure:"enabled"`
	// Schedule is a five-field cron spec or descriptor
	Schedule string `mapstructure:"schedule"`
	// VersionsPerFile is how many versions a live file keeps
	VersionsPerFile int `mapstructure:"versions_per_file"`
	// KeepDeleted is the minimum age of a tombstone before it may be purged
	KeepDeleted time.Duration `mapstructure:"keep_deleted_files_time"`
}

func DefaultConfig() *Config {
	return &Config{
		Enabled:         true,
		Schedule:        DefaultSchedule,
		VersionsPerFile: DefaultVersionsPerFile,
		KeepDeleted:     DefaultKeepDeleted,
	}
}

func (c *Config) Validate() error {
	if c.VersionsPerFile < 1 {
		return fmt.Errorf("versions_per_file must be at least 1")
	}
	if c.KeepDeleted < 0 {
		return fmt.Errorf("keep_deleted_files_time must not be negative")
	}
	if c.Enabled {
		if _, err := cron.ParseStandard(c.Schedule); err != nil {
			return fmt.Errorf("invalid schedule %q: %w", c.Schedule, err)
		}
	}
	return nil
}

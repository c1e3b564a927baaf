package vault

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"path/filepath"

	"github.com/openmined/vaultsync/internal/utils"
)

const (
	BackendFS = "fs"
	BackendS3 = "s3"
)

type BackendConfig struct {
	Kind string   `mapstructure:"backend"`
	S3   S3Config `mapstructure:"s3"`
}

type S3Config struct {
	BucketName    string `mapstructure:"bucket_name"`
	Region        string `mapstructure:"region"`
	AccessKey     string `mapstructure:"access_key"`
	SecretKey     string `mapstructure:"secret_key"`
	Endpoint      string `mapstructure:"endpoint"`
	Prefix        string `mapstructure:"prefix"`
	UseAccelerate bool   `mapstructure:"use_accelerate"`
}

func (c BackendConfig) LogValue() slog.Value {
	if c.Kind != BackendS3 {
		return slog.GroupValue(slog.String("backend", BackendFS))
	}
	return slog.GroupValue(
		slog.String("backend", c.Kind),
		slog.String("bucket_name", c.S3.BucketName),
		slog.String("region", c.S3.Region),
		slog.String("endpoint", c.S3.Endpoint),
		slog.String("access_key", utils.MaskSecret(c.S3.AccessKey)),
		slog.String("secret_key", utils.MaskSecret(c.S3.SecretKey)),
	)
}

func (c *BackendConfig) Validate() error {
	switch c.Kind {
	case "", BackendFS:
		return nil
	case BackendS3:
		if err := c.S3.Validate(); err != nil {
			return fmt.Errorf("blob.s3: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("unknown blob backend %q", c.Kind)
	}
}

func (c *S3Config) Validate() error {
	if c.BucketName == "" {
		return fmt.Errorf("bucket_name required")
	}
	if c.Region == "" {
		return fmt.Errorf("region required")
	}
	if c.AccessKey == "" {
		return fmt.Errorf("access_key required")
	}
	if c.SecretKey == "" {
		return fmt.Errorf("secret_key required")
	}
	if c.Endpoint != "" {
		u, err := url.Parse(c.Endpoint)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("invalid endpoint URL %q", c.Endpoint)
		}
	}
	return nil
}

// NewBackend builds the configured backend. The fs backend lives under
// <dataDir>/blobs.
func NewBackend(ctx context.Context, cfg *BackendConfig, dataDir string) (Backend, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Kind {
	case BackendS3:
		return NewS3BackendWithConfig(ctx, &cfg.S3)
	default:
		return NewFSBackend(filepath.Join(dataDir, "blobs"))
	}
}

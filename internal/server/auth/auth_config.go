package auth

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/openmined/vaultsync/internal/utils"
)

type Config struct {
	// Password is the shared secret every device derives its peer token from
	Password          string        `mapstructure:"password"`
	TokenIssuer       string        `mapstructure:"token_issuer"`
	AccessTokenSecret string        `mapstructure:"access_token_secret"`
	AccessTokenExpiry time.Duration `mapstructure:"access_token_expiry"`
}

func (c *Config) Validate() error {
	if c.Password == "" {
		return fmt.Errorf("auth `password` is required")
	}
	if c.TokenIssuer == "" {
		return fmt.Errorf("auth `token_issuer` is required")
	}
	if c.AccessTokenExpiry < 0 {
		return fmt.Errorf("auth `access_token_expiry` must not be negative")
	}
	return nil
}

func (c Config) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("password", utils.MaskSecret(c.Password)),
		slog.String("token_issuer", c.TokenIssuer),
		slog.String("access_token_secret", utils.MaskSecret(c.AccessTokenSecret)),
		slog.Duration("access_token_expiry", c.AccessTokenExpiry),
	)
}

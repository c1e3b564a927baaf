package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/openmined/vaultsync/internal/server"
	"github.com/openmined/vaultsync/internal/version"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	envPrefix      = "VAULTSYNC"
	configFileName = "vaultsync"
)

var rootCmd = &cobra.Command{
	Use:     "vaultsync",
	Short:   "VaultSync server",
	Version: version.Get().String(),
	RunE:    runServe,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the sync server",
	RunE:  runServe,
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "path to a YAML config file")
	for _, cmd := range []*cobra.Command{rootCmd, serveCmd} {
		cmd.Flags().SortFlags = false
		cmd.Flags().StringP("bind", "b", server.DefaultAddr, "address to bind the server")
		cmd.Flags().String("cert", "", "path to the TLS certificate file")
		cmd.Flags().String("key", "", "path to the TLS key file")
		cmd.Flags().StringP("data-dir", "d", server.DefaultDataDir, "directory holding the vault")
	}
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(newDevicesCmd())
	rootCmd.AddCommand(newSweepCmd())
	rootCmd.AddCommand(newStatusCmd())
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	closeLog, err := setupLogger(&cfg.Log)
	if err != nil {
		return err
	}
	defer closeLog()

	cmd.SilenceUsage = true
	slog.Info("vaultsync config",
		"addr", cfg.HTTP.Addr,
		"data_dir", cfg.DataDir,
		"db_path", cfg.DBPath,
		"auth", cfg.Auth,
		"blob", cfg.Blob,
		"cleanup", cfg.Cleanup.Enabled,
		"access_log", cfg.Access.Enabled,
	)

	srv, err := server.New(cmd.Context(), cfg)
	if err != nil {
		return err
	}

	defer slog.Info("Bye!")
	return srv.Start(cmd.Context())
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// loadConfig layers defaults, the config file, .env, VAULTSYNC_* env vars
// and flags, in increasing priority.
func loadConfig(cmd *cobra.Command) (*server.Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v, server.DefaultConfig())

	if flag := cmd.Flag("config"); flag != nil && flag.Changed {
		v.SetConfigFile(flag.Value.String())
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/vaultsync")
		v.SetConfigName(configFileName)
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config read '%s': %w", v.ConfigFileUsed(), err)
		}
	}

	bindFlag(v, cmd, "http.addr", "bind")
	bindFlag(v, cmd, "http.cert_file", "cert")
	bindFlag(v, cmd, "http.key_file", "key")
	bindFlag(v, cmd, "data_dir", "data-dir")

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &server.Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config decode: %w", err)
	}
	return cfg, nil
}

func bindFlag(v *viper.Viper, cmd *cobra.Command, key, name string) {
	if flag := cmd.Flags().Lookup(name); flag != nil {
		v.BindPFlag(key, flag)
	}
}

// setDefaults registers every key so env vars can override keys that are
// absent from the config file.
func setDefaults(v *viper.Viper, d *server.Config) {
	v.SetDefault("http.addr", d.HTTP.Addr)
	v.SetDefault("http.cert_file", d.HTTP.CertFile)
	v.SetDefault("http.key_file", d.HTTP.KeyFile)
	v.SetDefault("http.rate_limit", d.HTTP.RateLimit)

	v.SetDefault("auth.password", d.Auth.Password)
	v.SetDefault("auth.token_issuer", d.Auth.TokenIssuer)
	v.SetDefault("auth.access_token_secret", d.Auth.AccessTokenSecret)
	v.SetDefault("auth.access_token_expiry", d.Auth.AccessTokenExpiry)

	v.SetDefault("data_dir", d.DataDir)
	v.SetDefault("db_path", d.DBPath)

	v.SetDefault("blob.backend", d.Blob.Kind)
	v.SetDefault("blob.s3.bucket_name", d.Blob.S3.BucketName)
	v.SetDefault("blob.s3.region", d.Blob.S3.Region)
	v.SetDefault("blob.s3.access_key", d.Blob.S3.AccessKey)
	v.SetDefault("blob.s3.secret_key", d.Blob.S3.SecretKey)
	v.SetDefault("blob.s3.endpoint", d.Blob.S3.Endpoint)
	v.SetDefault("blob.s3.prefix", d.Blob.S3.Prefix)
	v.SetDefault("blob.s3.use_accelerate", d.Blob.S3.UseAccelerate)

	v.SetDefault("sync.identify_timeout", d.Sync.IdentifyTimeout)
	v.SetDefault("sync.metadata_cache_size", d.Sync.MetadataCacheSize)
	v.SetDefault("sync.ignore_patterns", d.Sync.IgnorePatterns)

	v.SetDefault("cleanup.enabled", d.Cleanup.Enabled)
	v.SetDefault("cleanup.schedule", d.Cleanup.Schedule)
	v.SetDefault("cleanup.versions_per_file", d.Cleanup.VersionsPerFile)
	v.SetDefault("cleanup.keep_deleted_files_time", d.Cleanup.KeepDeleted)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.file", d.Log.File)
	v.SetDefault("log.max_size_mb", d.Log.MaxSizeMB)
	v.SetDefault("log.max_backups", d.Log.MaxBackups)

	v.SetDefault("access_log.enabled", d.Access.Enabled)
	v.SetDefault("access_log.dir", d.Access.Dir)
	v.SetDefault("access_log.max_size_mb", d.Access.MaxSizeMB)
	v.SetDefault("access_log.max_backups", d.Access.MaxBackups)
}

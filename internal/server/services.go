package server

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
	"github.com/openmined/vaultsync/internal/db"
	"github.com/openmined/vaultsync/internal/server/accesslog"
	"github.com/openmined/vaultsync/internal/server/auth"
	"github.com/openmined/vaultsync/internal/server/devices"
	"github.com/openmined/vaultsync/internal/server/reconcile"
	"github.com/openmined/vaultsync/internal/server/retention"
	"github.com/openmined/vaultsync/internal/vault"
)

type Services struct {
	DB      *sqlx.DB
	Vault   *vault.VaultStore
	Devices *devices.Registry
	Engine  *reconcile.Engine
	Sweeper *retention.Sweeper
	Auth    *auth.AuthService

	// AccessLog is nil when access_log.enabled is false
	AccessLog *accesslog.AccessLogger

	cleanup *retention.Config
}

// NewServices opens the state database and content backend and wires the
// vault, device registry, engine and sweeper around one set of path locks.
func NewServices(ctx context.Context, config *Config) (*Services, error) {
	sqldb, err := db.NewSqliteDB(db.WithPath(config.DBPath))
	if err != nil {
		return nil, fmt.Errorf("open state db: %w", err)
	}

	svc, err := newServices(ctx, config, sqldb)
	if err != nil {
		sqldb.Close()
		return nil, err
	}
	return svc, nil
}

func newServices(ctx context.Context, config *Config, sqldb *sqlx.DB) (*Services, error) {
	backend, err := vault.NewBackend(ctx, &config.Blob, config.DataDir)
	if err != nil {
		return nil, fmt.Errorf("blob backend: %w", err)
	}

	store, err := vault.New(sqldb, backend, vault.WithCacheSize(config.Sync.MetadataCacheSize))
	if err != nil {
		return nil, fmt.Errorf("vault: %w", err)
	}

	registry, err := devices.NewRegistry(sqldb)
	if err != nil {
		return nil, fmt.Errorf("device registry: %w", err)
	}

	locks := vault.NewPathLocks()
	engine := reconcile.NewEngine(&config.Sync.Config, store, registry, locks)
	sweeper := retention.NewSweeper(&config.Cleanup, store, registry, locks)

	var changes *accesslog.AccessLogger
	if config.Access.Enabled {
		changes, err = accesslog.New(config.Access.Dir, slog.Default(),
			accesslog.WithRotation(config.Access.MaxSizeMB, config.Access.MaxBackups))
		if err != nil {
			return nil, fmt.Errorf("access log: %w", err)
		}
		engine.SetRecorder(changes)
	}

	slog.Info("services ready", "backend", backend.Name(), "db", config.DBPath)
	return &Services{
		DB:      sqldb,
		Vault:   store,
		Devices: registry,
		Engine:  engine,
		Sweeper: sweeper,
		Auth:    auth.NewAuthService(&config.Auth),

		AccessLog: changes,
		cleanup:   &config.Cleanup,
	}, nil
}

// Start runs background work until ctx is done
func (s *Services) Start(ctx context.Context) error {
	if !s.cleanup.Enabled {
		slog.Info("retention sweeper disabled")
		<-ctx.Done()
		return nil
	}
	if err := s.Sweeper.Start(ctx); err != nil {
		return fmt.Errorf("start retention sweeper: %w", err)
	}
	return nil
}

func (s *Services) Shutdown(ctx context.Context) error {
	if s.AccessLog != nil {
		if err := s.AccessLog.Close(); err != nil {
			slog.Warn("close access log", "error", err)
		}
	}
	if err := s.DB.Close(); err != nil {
		return fmt.Errorf("close state db: %w", err)
	}
	return nil
}

package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/openmined/vaultsync/internal/server/handlers/ws"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

type Server struct {
	config *Config
	server *http.Server
	hub    *ws.WebsocketHub
	svc    *Services
	lock   *DataDirLock
}

func New(ctx context.Context, config *Config) (*Server, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	lock := NewDataDirLock(config.DataDir)
	if err := lock.Lock(); err != nil {
		return nil, err
	}

	svc, err := NewServices(ctx, config)
	if err != nil {
		lock.Unlock()
		return nil, err
	}

	hub := ws.NewHub(svc.Auth, &syncHandler{engine: svc.Engine})
	httpHandler, err := SetupRoutes(config, svc, hub)
	if err != nil {
		svc.Shutdown(ctx)
		lock.Unlock()
		return nil, err
	}

	return &Server{
		config: config,
		hub:    hub,
		svc:    svc,
		lock:   lock,
		server: &http.Server{
			Addr:              config.HTTP.Addr,
			Handler:           httpHandler,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}, nil
}

// Start blocks until ctx is done or a component fails, then shuts down
func (s *Server) Start(ctx context.Context) error {
	slog.Info("vaultsync server start", "addr", s.config.HTTP.Addr, "dataDir", s.config.DataDir)
	defer slog.Info("vaultsync server stop")

	eg, egCtx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		s.hub.Run(egCtx)
		return nil
	})

	eg.Go(func() error {
		return s.svc.Start(egCtx)
	})

	eg.Go(func() error {
		if err := s.runHttpServer(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		slog.Info("http server stopped")
		return nil
	})

	eg.Go(func() error {
		<-egCtx.Done()
		slog.Info("vaultsync shutdown signal")
		return s.Stop(context.WithoutCancel(egCtx))
	})

	return eg.Wait()
}

func (s *Server) Stop(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	var errs []error
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, err)
	}

	s.hub.Shutdown(shutdownCtx)

	if err := s.svc.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, err)
	}
	if err := s.lock.Unlock(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (s *Server) runHttpServer() error {
	if s.config.HTTP.CertFile != "" && s.config.HTTP.KeyFile != "" {
		slog.Info("server start tls", "addr", s.config.HTTP.Addr, "cert", s.config.HTTP.CertFile, "key", s.config.HTTP.KeyFile)
		return s.server.ListenAndServeTLS(s.config.HTTP.CertFile, s.config.HTTP.KeyFile)
	}
	slog.Info("server start http", "addr", s.config.HTTP.Addr)
	return s.server.ListenAndServe()
}

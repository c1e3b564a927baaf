package main

import (
	"log/slog"
	"os"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"github.com/openmined/vaultsync/internal/server"
	"github.com/openmined/vaultsync/internal/utils"
	"gopkg.in/natefinch/lumberjack.v2"
)

// setupLogger installs the default slog logger: tint on stdout, plus a
// rotating text log when log.file is set. The returned func closes the file.
func setupLogger(cfg *server.LogConfig) (func(), error) {
	level, err := server.ParseLogLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	stdoutHandler := tint.NewHandler(os.Stdout, &tint.Options{
		Level:      level,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
		NoColor:    !isatty.IsTerminal(os.Stdout.Fd()),
	})

	if cfg.File == "" {
		slog.SetDefault(slog.New(stdoutHandler))
		return func() {}, nil
	}

	if err := utils.EnsureParent(cfg.File); err != nil {
		return nil, err
	}
	rotator := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		Compress:   true,
	}
	fileHandler := slog.NewTextHandler(rotator, &slog.HandlerOptions{Level: level})

	slog.SetDefault(slog.New(utils.NewMultiLogHandler(stdoutHandler, fileHandler)))
	return func() { rotator.Close() }, nil
}

package accesslog

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/openmined/vaultsync/internal/vault"
	"gopkg.in/natefinch/lumberjack.v2"
)

// AccessLogger keeps one rotating JSON-lines file per device recording
// every change that device got accepted into the vault.
type AccessLogger struct {
	baseDir    string
	maxSizeMB  int
	maxBackups int
	logger     *slog.Logger
	now        func() time.Time

	mu      sync.Mutex
	writers map[string]*deviceLogWriter
}

type deviceLogWriter struct {
	mu  sync.Mutex
	out *lumberjack.Logger
}

type Option func(*AccessLogger)

func WithRotation(maxSizeMB, maxBackups int) Option {
	return func(al *AccessLogger) {
		if maxSizeMB > 0 {
			al.maxSizeMB = maxSizeMB
		}
		if maxBackups > 0 {
			al.maxBackups = maxBackups
		}
	}
}

func New(baseDir string, logger *slog.Logger, opts ...Option) (*AccessLogger, error) {
	if err := os.MkdirAll(baseDir, LogDirPermission); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	al := &AccessLogger{
		baseDir:    baseDir,
		maxSizeMB:  DefaultMaxSizeMB,
		maxBackups: DefaultMaxBackups,
		logger:     logger.With("component", "access_logger"),
		now:        time.Now,
		writers:    make(map[string]*deviceLogWriter),
	}
	for _, opt := range opts {
		opt(al)
	}
	return al, nil
}

// RecordChange appends an entry for deviceID. Failures are logged, never
// returned, so a broken log never blocks sync.
func (al *AccessLogger) RecordChange(deviceID, connID string, meta vault.FileMetadata, size int) {
	if deviceID == "" {
		deviceID = "unidentified"
	}

	entry := AccessLogEntry{
		Timestamp:   al.now(),
		Device:      deviceID,
		ConnID:      connID,
		Path:        meta.Path,
		Kind:        meta.Kind,
		Action:      meta.Action,
		MTime:       meta.MTime,
		Fingerprint: meta.Fingerprint,
		Size:        size,
	}

	if err := al.writer(deviceID).writeEntry(entry); err != nil {
		al.logger.Error("failed to write access log", "device", deviceID, "path", meta.Path, "error", err)
	}
}

func (al *AccessLogger) writer(deviceID string) *deviceLogWriter {
	al.mu.Lock()
	defer al.mu.Unlock()

	w, ok := al.writers[deviceID]
	if !ok {
		w = &deviceLogWriter{out: &lumberjack.Logger{
			Filename:   filepath.Join(al.deviceDir(deviceID), logFileName),
			MaxSize:    al.maxSizeMB,
			MaxBackups: al.maxBackups,
		}}
		al.writers[deviceID] = w
	}
	return w
}

func (w *deviceLogWriter) writeEntry(entry AccessLogEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal log entry: %w", err)
	}
	data = append(data, '\n')

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.out.Write(data); err != nil {
		return fmt.Errorf("failed to write log entry: %w", err)
	}
	return nil
}

// DeviceLogs returns up to limit of the most recent entries for deviceID,
// oldest first. Rotated backups are read too.
func (al *AccessLogger) DeviceLogs(deviceID string, limit int) ([]AccessLogEntry, error) {
	if limit <= 0 {
		return []AccessLogEntry{}, nil
	}

	dir := al.deviceDir(deviceID)
	files, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []AccessLogEntry{}, nil
		}
		return nil, err
	}

	// backups are "changes-<timestamp>.log" and sort before the live file
	names := make([]string, 0, len(files))
	for _, f := range files {
		if !f.IsDir() && strings.HasSuffix(f.Name(), ".log") && f.Name() != logFileName {
			names = append(names, f.Name())
		}
	}
	sort.Strings(names)
	names = append(names, logFileName)

	entries := []AccessLogEntry{}
	for i := len(names) - 1; i >= 0 && len(entries) < limit; i-- {
		fileEntries, err := al.readLogFile(filepath.Join(dir, names[i]))
		if err != nil {
			if !os.IsNotExist(err) {
				al.logger.Warn("failed to read log file", "file", names[i], "error", err)
			}
			continue
		}
		entries = append(fileEntries, entries...)
	}

	if len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	return entries, nil
}

func (al *AccessLogger) readLogFile(path string) ([]AccessLogEntry, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var entries []AccessLogEntry
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var entry AccessLogEntry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			continue
		}
		entries = append(entries, entry)
	}
	return entries, scanner.Err()
}

func (al *AccessLogger) Close() error {
	al.mu.Lock()
	defer al.mu.Unlock()

	var firstErr error
	for _, w := range al.writers {
		w.mu.Lock()
		if err := w.out.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		w.mu.Unlock()
	}
	return firstErr
}

func (al *AccessLogger) deviceDir(deviceID string) string {
	return filepath.Join(al.baseDir, sanitizeDeviceID(deviceID))
}

// sanitizeDeviceID maps a device id to a single safe path element
func sanitizeDeviceID(id string) string {
	result := make([]byte, 0, len(id))
	for i := 0; i < len(id); i++ {
		c := id[i]
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '@' || c == '-' || c == '_' {
			result = append(result, c)
		} else {
			result = append(result, '_')
		}
	}
	if len(result) == 0 {
		return "_"
	}
	return string(result)
}

package server

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	"github.com/openmined/vaultsync/internal/utils"
)

const lockFileName = "vaultsync.lock"

var ErrDataDirLocked = errors.New("data directory is in use by another vaultsync process")

// DataDirLock guards a data directory so two processes never share a vault
type DataDirLock struct {
	flock *flock.Flock
}

func NewDataDirLock(dataDir string) *DataDirLock {
	return &DataDirLock{flock: flock.New(filepath.Join(dataDir, lockFileName))}
}

func (l *DataDirLock) Lock() error {
	if err := utils.EnsureParent(l.flock.Path()); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	locked, err := l.flock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to lock data directory: %w", err)
	}
	if !locked {
		return ErrDataDirLocked
	}
	return nil
}

func (l *DataDirLock) Unlock() error {
	// never remove a lock file held by someone else
	if !l.flock.Locked() {
		return nil
	}

	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to unlock data directory: %w", err)
	}
	return os.Remove(l.flock.Path())
}

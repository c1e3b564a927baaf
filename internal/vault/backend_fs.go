package vault

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/openmined/vaultsync/internal/utils"
)

// FSBackend stores every version as a plain file under a root directory.
// Keys map onto relative paths, so "notes/a.md@1700000000000" becomes
// <root>/notes/a.md@1700000000000.
type FSBackend struct {
	root string

	// afterEnsureDir runs between creating a parent dir and the temp file
	afterEnsureDir func(dir string)
}

// a concurrent Delete may prune the parent dir before the temp file exists
const createTempAttempts = 3

func NewFSBackend(root string) (*FSBackend, error) {
	root, err := utils.ResolvePath(root)
	if err != nil {
		return nil, err
	}
	if err := utils.EnsureDir(root); err != nil {
		return nil, fmt.Errorf("create blob root: %w", err)
	}
	return &FSBackend{root: root}, nil
}

func (b *FSBackend) Name() string {
	return "fs"
}

func (b *FSBackend) Root() string {
	return b.root
}

func (b *FSBackend) Put(ctx context.Context, key string, content []byte) error {
	target, err := b.keyPath(key)
	if err != nil {
		return err
	}
	tmp, err := b.createTemp(filepath.Dir(target))
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close %s: %w", key, err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename %s: %w", key, err)
	}
	return nil
}

func (b *FSBackend) createTemp(dir string) (*os.File, error) {
	for attempt := 1; ; attempt++ {
		if err := utils.EnsureDir(dir); err != nil {
			return nil, err
		}
		if b.afterEnsureDir != nil {
			b.afterEnsureDir(dir)
		}
		tmp, err := os.CreateTemp(dir, ".vault-*")
		if errors.Is(err, os.ErrNotExist) && attempt < createTempAttempts {
			continue
		}
		return tmp, err
	}
}

func (b *FSBackend) Get(ctx context.Context, key string) ([]byte, error) {
	target, err := b.keyPath(key)
	if err != nil {
		return nil, err
	}
	content, err := os.ReadFile(target)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	} else if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return content, nil
}

func (b *FSBackend) Delete(ctx context.Context, key string) error {
	target, err := b.keyPath(key)
	if err != nil {
		return err
	}
	if err := os.Remove(target); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	b.pruneEmptyParents(filepath.Dir(target))
	return nil
}

// pruneEmptyParents removes now-empty directories up to the root.
// os.Remove fails on non-empty dirs, which ends the walk.
func (b *FSBackend) pruneEmptyParents(dir string) {
	for dir != b.root && strings.HasPrefix(dir, b.root+string(filepath.Separator)) {
		if err := os.Remove(dir); err != nil {
			return
		}
		dir = filepath.Dir(dir)
	}
}

func (b *FSBackend) keyPath(key string) (string, error) {
	clean, err := CleanPath(key)
	if err != nil {
		return "", err
	}
	return filepath.Join(b.root, filepath.FromSlash(clean)), nil
}

var _ Backend = (*FSBackend)(nil)

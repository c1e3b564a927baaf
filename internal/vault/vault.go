package vault

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/jmoiron/sqlx"
)

const defaultCacheSize = 4096

// VaultStore implements Store on top of a SQLite index for metadata and the
// version catalogue, and a Backend for version content.
type VaultStore struct {
	index   *index
	backend Backend
	cache   *lru.Cache[string, FileMetadata]
}

type Option func(*options)

type options struct {
	cacheSize int
}

// WithCacheSize bounds the number of metadata records kept in memory.
// Zero or negative disables the cache.
func WithCacheSize(size int) Option {
	return func(o *options) {
		o.cacheSize = size
	}
}

func New(db *sqlx.DB, backend Backend, opts ...Option) (*VaultStore, error) {
	o := &options{cacheSize: defaultCacheSize}
	for _, opt := range opts {
		opt(o)
	}

	ix, err := newIndex(db)
	if err != nil {
		return nil, err
	}

	s := &VaultStore{index: ix, backend: backend}
	if o.cacheSize > 0 {
		cache, err := lru.New[string, FileMetadata](o.cacheSize)
		if err != nil {
			return nil, fmt.Errorf("metadata cache: %w", err)
		}
		s.cache = cache
	}

	return s, nil
}

func (s *VaultStore) Backend() Backend {
	return s.backend
}

func (s *VaultStore) Write(ctx context.Context, path string, content []byte, binary bool) ([]byte, error) {
	path, err := CleanPath(path)
	if err != nil {
		return nil, err
	}

	meta, err := s.ReadMetadata(ctx, path)
	if err != nil {
		return nil, err
	}
	if meta == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoMetadata, path)
	}

	if binary {
		if err := s.dropVersions(ctx, path); err != nil {
			return nil, err
		}
	}

	if content == nil {
		content = []byte{}
	}

	v := Version{Path: path, MTime: meta.MTime, Size: int64(len(content))}
	if err := s.backend.Put(ctx, v.Key(), content); err != nil {
		return nil, err
	}
	if err := s.index.PutVersion(ctx, v); err != nil {
		return nil, err
	}

	slog.Debug("vault write", "path", path, "mtime", v.MTime, "size", v.Size, "binary", binary)
	return content, nil
}

func (s *VaultStore) Read(ctx context.Context, path string) ([]byte, error) {
	meta, err := s.ReadMetadata(ctx, path)
	if err != nil {
		return nil, err
	}
	if meta == nil || meta.IsDeleted() {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	if meta.IsFolder() {
		return []byte{}, nil
	}
	return s.backend.Get(ctx, VersionKey(meta.Path, meta.MTime))
}

func (s *VaultStore) ReadVersion(ctx context.Context, path string, mtime int64) ([]byte, error) {
	path, err := CleanPath(path)
	if err != nil {
		return nil, err
	}
	return s.backend.Get(ctx, VersionKey(path, mtime))
}

func (s *VaultStore) ReadMetadata(ctx context.Context, path string) (*FileMetadata, error) {
	path, err := CleanPath(path)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if meta, ok := s.cache.Get(path); ok {
			return &meta, nil
		}
	}

	meta, err := s.index.GetMetadata(ctx, path)
	if err != nil || meta == nil {
		return meta, err
	}

	if s.cache != nil {
		s.cache.Add(path, *meta)
	}
	return meta, nil
}

func (s *VaultStore) WriteMetadata(ctx context.Context, path string, meta *FileMetadata) error {
	if meta == nil {
		return fmt.Errorf("vault: nil metadata for %s", path)
	}

	record := *meta
	record.Path = path
	if err := record.Normalize(); err != nil {
		return err
	}
	if record.IsDeleted() {
		record.Fingerprint = ""
	}

	if err := s.index.PutMetadata(ctx, &record); err != nil {
		if s.cache != nil {
			s.cache.Remove(record.Path)
		}
		return err
	}
	if s.cache != nil {
		s.cache.Add(record.Path, record)
	}
	return nil
}

func (s *VaultStore) Delete(ctx context.Context, path string) error {
	path, err := CleanPath(path)
	if err != nil {
		return err
	}

	versions, err := s.index.SubtreeVersions(ctx, path)
	if err != nil {
		return err
	}
	for _, v := range versions {
		if err := s.backend.Delete(ctx, v.Key()); err != nil {
			return err
		}
	}

	if err := s.index.RemoveSubtree(ctx, path); err != nil {
		return err
	}
	s.evictSubtree(path)

	slog.Debug("vault delete", "path", path, "versions", len(versions))
	return nil
}

func (s *VaultStore) ListPaths(ctx context.Context) ([]string, error) {
	return s.index.ListPaths(ctx)
}

func (s *VaultStore) ListVersions(ctx context.Context, path string) ([]Version, error) {
	path, err := CleanPath(path)
	if err != nil {
		return nil, err
	}
	return s.index.ListVersions(ctx, path)
}

// DeleteVersion removes one retained version without touching metadata
func (s *VaultStore) DeleteVersion(ctx context.Context, path string, mtime int64) error {
	path, err := CleanPath(path)
	if err != nil {
		return err
	}
	if err := s.backend.Delete(ctx, VersionKey(path, mtime)); err != nil {
		return err
	}
	return s.index.RemoveVersion(ctx, path, mtime)
}

// Count is the number of known paths, tombstones included
func (s *VaultStore) Count(ctx context.Context) (int, error) {
	return s.index.Count(ctx)
}

func (s *VaultStore) dropVersions(ctx context.Context, path string) error {
	versions, err := s.index.ListVersions(ctx, path)
	if err != nil {
		return err
	}
	for _, v := range versions {
		if err := s.DeleteVersion(ctx, v.Path, v.MTime); err != nil {
			return fmt.Errorf("drop version %s: %w", v.Key(), err)
		}
	}
	return nil
}

func (s *VaultStore) evictSubtree(path string) {
	if s.cache == nil {
		return
	}
	prefix := path + "/"
	for _, key := range s.cache.Keys() {
		if key == path || strings.HasPrefix(key, prefix) {
			s.cache.Remove(key)
		}
	}
}

var _ Store = (*VaultStore)(nil)

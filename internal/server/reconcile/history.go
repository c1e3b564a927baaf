package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/openmined/vaultsync/internal/vault"
	"github.com/openmined/vaultsync/internal/vaultmsg"
)

var (
	ErrUnknownQuery   = errors.New("reconcile: unknown history query")
	ErrInvalidPattern = errors.New("reconcile: invalid pattern")
)

// History answers read-only queries about stored paths and versions.
// It is shared by the websocket protocol and the HTTP API.
type History struct {
	store vault.Store
}

func NewHistory(store vault.Store) *History {
	return &History{store: store}
}

// Versions lists retained version timestamps newest first and whether the
// path is currently a tombstone.
func (h *History) Versions(ctx context.Context, path string) (deleted bool, versions []int64, err error) {
	meta, err := h.store.ReadMetadata(ctx, path)
	if err != nil {
		return false, nil, err
	}
	if meta == nil {
		return false, nil, fmt.Errorf("%w: %s", vault.ErrNotFound, path)
	}

	list, err := h.store.ListVersions(ctx, path)
	if err != nil {
		return false, nil, err
	}
	versions = make([]int64, 0, len(list))
	for _, v := range list {
		versions = append(versions, v.MTime)
	}
	return meta.IsDeleted(), versions, nil
}

// Files lists files, never folders. Mode "deleted" selects tombstones,
// anything else live files. An optional glob narrows the result.
func (h *History) Files(ctx context.Context, mode, pattern string) ([]vaultmsg.FileEntry, error) {
	if pattern != "" && !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPattern, pattern)
	}

	paths, err := h.store.ListPaths(ctx)
	if err != nil {
		return nil, err
	}

	wantDeleted := mode == vaultmsg.HistoryModeDeleted
	files := make([]vaultmsg.FileEntry, 0, len(paths))
	for _, path := range paths {
		if pattern != "" {
			if ok, _ := doublestar.Match(pattern, path); !ok {
				continue
			}
		}
		meta, err := h.store.ReadMetadata(ctx, path)
		if err != nil {
			slog.Warn("history skip path", "path", path, "error", err)
			continue
		}
		if meta == nil || meta.IsFolder() || meta.IsDeleted() != wantDeleted {
			continue
		}
		files = append(files, vaultmsg.FileEntry{Path: path, MTime: meta.MTime})
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

// Read returns the current content, or the version at timestamp when it is
// non-zero.
func (h *History) Read(ctx context.Context, path string, timestamp int64) ([]byte, error) {
	if timestamp != 0 {
		return h.store.ReadVersion(ctx, path, timestamp)
	}
	return h.store.Read(ctx, path)
}

// Query runs a websocket history request. Failures are reported in the
// reply rather than tearing down the session.
func (h *History) Query(ctx context.Context, q vaultmsg.FileHistory) vaultmsg.HistoryReply {
	var reply vaultmsg.HistoryReply
	var err error

	switch q.Type {
	case vaultmsg.HistoryListVersions:
		reply.Deleted, reply.Versions, err = h.Versions(ctx, q.Path)
	case vaultmsg.HistoryListFiles:
		reply.Files, err = h.Files(ctx, q.Mode, q.Pattern)
	case vaultmsg.HistoryRead:
		reply.Content, err = h.Read(ctx, q.Path, q.Timestamp)
	default:
		err = fmt.Errorf("%w: %q", ErrUnknownQuery, q.Type)
	}

	if err != nil {
		slog.Debug("history query", "type", q.Type, "path", q.Path, "error", err)
		reply.Error = err.Error()
	}
	return reply
}

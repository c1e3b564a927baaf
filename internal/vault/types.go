package vault

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
)

var (
	// ErrNotFound is returned when a path or a specific version has no stored content
	ErrNotFound = errors.New("vault: not found")
	// ErrNoMetadata is returned by Write when the path has no metadata record yet
	ErrNoMetadata = errors.New("vault: metadata must be written before content")
	// ErrInvalidPath is returned for empty, absolute or escaping paths
	ErrInvalidPath = errors.New("vault: invalid path")
)

// Kind tells files and folders apart. Folders never carry content.
type Kind string

const (
	KindFile   Kind = "file"
	KindFolder Kind = "folder"
)

// Action is the last accepted change for a path. ActionDeleted marks a tombstone.
type Action string

const (
	ActionCreated Action = "created"
	ActionDeleted Action = "deleted"
)

// FileMetadata is the authoritative record of a path's current state.
// It is replaced, never merged, by every accepted change.
type FileMetadata struct {
	Path   string `json:"path"`
	Kind   Kind   `json:"type"`
	Action Action `json:"action"`
	// Fingerprint is an opaque content digest (hex SHA-256 in practice).
	// The wire name is kept for compatibility with existing clients.
	Fingerprint string `json:"sha1,omitempty"`
	// MTime is the device-assigned logical clock in epoch milliseconds.
	MTime int64 `json:"mtime"`
}

func (m *FileMetadata) IsDeleted() bool {
	return m.Action == ActionDeleted
}

func (m *FileMetadata) IsFolder() bool {
	return m.Kind == KindFolder
}

// Normalize fills defaults left out by older clients and cleans the path.
func (m *FileMetadata) Normalize() error {
	p, err := CleanPath(m.Path)
	if err != nil {
		return err
	}
	m.Path = p
	if m.Kind == "" {
		m.Kind = KindFile
	}
	switch m.Action {
	case ActionCreated, ActionDeleted:
	default:
		return fmt.Errorf("vault: invalid action %q for %s", m.Action, m.Path)
	}
	switch m.Kind {
	case KindFile, KindFolder:
	default:
		return fmt.Errorf("vault: invalid kind %q for %s", m.Kind, m.Path)
	}
	return nil
}

// Version is one retained content blob for a path, addressed by (path, mtime).
type Version struct {
	Path  string `json:"path" db:"path"`
	MTime int64  `json:"mtime" db:"mtime"`
	Size  int64  `json:"size" db:"size"`
}

// Key is the backend object key that holds this version's content
func (v Version) Key() string {
	return VersionKey(v.Path, v.MTime)
}

// Store is durable, path-addressed storage with bounded per-path history.
// It knows nothing about devices, sessions or conflict resolution.
type Store interface {
	// Write stores content under the path's current mtime. Metadata must exist.
	// A binary write drops every earlier version of the path first.
	Write(ctx context.Context, path string, content []byte, binary bool) ([]byte, error)

	// Read returns the current version. Folders yield an empty, non-nil slice.
	// ErrNotFound when the path is unknown or a tombstone.
	Read(ctx context.Context, path string) ([]byte, error)

	// ReadVersion returns a historical version regardless of current metadata.
	ReadVersion(ctx context.Context, path string, mtime int64) ([]byte, error)

	// ReadMetadata returns nil, nil when the path is unknown.
	ReadMetadata(ctx context.Context, path string) (*FileMetadata, error)
	WriteMetadata(ctx context.Context, path string, meta *FileMetadata) error

	// Delete purges metadata and every version for path and its subtree.
	Delete(ctx context.Context, path string) error

	// ListPaths returns every path that has a metadata record, in no particular order.
	ListPaths(ctx context.Context) ([]string, error)

	// ListVersions returns retained versions newest first.
	ListVersions(ctx context.Context, path string) ([]Version, error)
}

// CleanPath normalizes a vault-relative path and rejects anything that
// would escape the vault root.
func CleanPath(p string) (string, error) {
	p = strings.ReplaceAll(p, "\\", "/")
	if p == "" || strings.HasPrefix(p, "/") {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, p)
	}
	cleaned := path.Clean(p)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, p)
	}
	return cleaned, nil
}

// VersionKey maps (path, mtime) to a backend object key. The mtime suffix
// is digits only, so the last '@' always splits a key unambiguously.
func VersionKey(path string, mtime int64) string {
	return fmt.Sprintf("%s@%d", path, mtime)
}

package reconcile

import (
	"context"
	"errors"
	"log/slog"

	"github.com/openmined/vaultsync/internal/vault"
	"github.com/openmined/vaultsync/internal/vaultmsg"
)

// FullSync reconciles a device's whole inventory against the vault.
//
// Every stored path is resolved first, using the device's entry when it has
// one and an mtime-zero placeholder otherwise, so the store pushes live
// content the device lacks. Paths only the device knows are resolved next.
// Paths the store asked content for stay pending until their apply arrives;
// the session returns to idle and receives sync_complete once none remain.
//
// Ignored paths are skipped on both sides. Per-path storage failures are
// logged and skipped. A failed send closes the session and aborts the sync,
// so no path is left pending for a request the device never got. A second
// FullSync on a session that is still syncing returns ErrAlreadySyncing.
func (e *Engine) FullSync(ctx context.Context, s *Session, inventory []vaultmsg.InventoryEntry) error {
	if !s.beginSync() {
		return ErrAlreadySyncing
	}

	incoming := make(map[string]*vault.FileMetadata, len(inventory))
	order := make([]string, 0, len(inventory))
	for _, entry := range inventory {
		meta := entry.Metadata
		if meta.Path == "" {
			meta.Path = entry.Path
		}
		if err := meta.Normalize(); err != nil {
			slog.Warn("sync skip invalid entry", "connId", s.ConnID(), "path", entry.Path, "error", err)
			continue
		}
		if e.ignore.ShouldIgnore(meta.Path) {
			continue
		}
		if _, seen := incoming[meta.Path]; !seen {
			order = append(order, meta.Path)
		}
		incoming[meta.Path] = &meta
	}

	paths, err := e.store.ListPaths(ctx)
	if err != nil {
		// nothing was requested yet, so the session can go back to idle
		s.abortSync()
		return err
	}

	slog.Info("sync started", "connId", s.ConnID(), "device", s.DeviceID(), "stored", len(paths), "inventory", len(incoming))

	processed := make(map[string]struct{}, len(paths))
	for _, path := range paths {
		processed[path] = struct{}{}
		if e.ignore.ShouldIgnore(path) {
			continue
		}

		if candidate, ok := incoming[path]; ok {
			if err := e.syncPath(ctx, s, path, func(*vault.FileMetadata) *vault.FileMetadata { return candidate }); err != nil {
				s.abortSync()
				return err
			}
			continue
		}

		err := e.syncPath(ctx, s, path, func(local *vault.FileMetadata) *vault.FileMetadata {
			placeholder := &vault.FileMetadata{Path: path, Kind: vault.KindFile, Action: vault.ActionCreated}
			if local != nil {
				placeholder.Kind = local.Kind
				placeholder.Action = local.Action
			}
			return placeholder
		})
		if err != nil {
			s.abortSync()
			return err
		}
	}

	for _, path := range order {
		if _, done := processed[path]; done {
			continue
		}
		candidate := incoming[path]
		if err := e.syncPath(ctx, s, path, func(*vault.FileMetadata) *vault.FileMetadata { return candidate }); err != nil {
			s.abortSync()
			return err
		}
	}

	if pending := s.Pending(); len(pending) > 0 {
		slog.Info("sync waiting for content", "connId", s.ConnID(), "device", s.DeviceID(), "pending", len(pending))
		return nil
	}
	e.finishSync(s)
	return nil
}

// syncPath resolves one path of a full sync. It only returns send failures;
// storage errors are logged and the path is skipped.
func (e *Engine) syncPath(ctx context.Context, s *Session, path string, candidateFor func(*vault.FileMetadata) *vault.FileMetadata) error {
	var wantsContent bool
	outcome, err := e.resolve(ctx, s, path, func(local *vault.FileMetadata) *vault.FileMetadata {
		candidate := candidateFor(local)
		wantsContent = !candidate.IsDeleted()
		return candidate
	})
	if errors.Is(err, errSendFailed) {
		return err
	}
	if err != nil {
		slog.Error("sync path", "connId", s.ConnID(), "device", s.DeviceID(), "path", path, "error", err)
		return nil
	}
	if outcome == RemoteNewer && wantsContent {
		s.addPending(path)
	}
	return nil
}

// markResolved clears path from a running sync and completes it when it
// was the last one.
func (e *Engine) markResolved(s *Session, path string) {
	if !s.Syncing() {
		return
	}
	s.removePending(path)
	e.finishSync(s)
}

func (e *Engine) finishSync(s *Session) {
	if !s.settle() {
		return
	}
	slog.Info("sync complete", "connId", s.ConnID(), "device", s.DeviceID())
	s.send(vaultmsg.NewSyncComplete())
}

package retention

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/openmined/vaultsync/internal/schedule"
	"github.com/openmined/vaultsync/internal/vault"
)

// Store is the part of the vault the sweeper prunes
type Store interface {
	ListPaths(ctx context.Context) ([]string, error)
	ReadMetadata(ctx context.Context, path string) (*vault.FileMetadata, error)
	ListVersions(ctx context.Context, path string) ([]vault.Version, error)
	DeleteVersion(ctx context.Context, path string, mtime int64) error
	Delete(ctx context.Context, path string) error
}

// Devices supplies the earliest last_online across registered devices.
// ok is false when no device is registered.
type Devices interface {
	LowWaterMark(ctx context.Context) (lwm int64, ok bool, err error)
}

// Report summarizes one sweep
type Report struct {
	PathsScanned     int           `json:"pathsScanned" yaml:"paths_scanned"`
	VersionsPruned   int           `json:"versionsPruned" yaml:"versions_pruned"`
	BytesPruned      int64         `json:"bytesPruned" yaml:"bytes_pruned"`
	TombstonesPurged int           `json:"tombstonesPurged" yaml:"tombstones_purged"`
	TombstonesKept   int           `json:"tombstonesKept" yaml:"tombstones_kept"`
	Errors           int           `json:"errors" yaml:"errors"`
	LowWaterMark     int64         `json:"lowWaterMark" yaml:"low_water_mark"`
	Took             time.Duration `json:"took" yaml:"took"`
}

// Sweeper prunes excess versions and purges tombstones every device has
// moved past.
type Sweeper struct {
	store   Store
	devices Devices
	locks   *vault.PathLocks
	config  *Config
	now     func() time.Time
}

func NewSweeper(config *Config, store Store, devices Devices, locks *vault.PathLocks) *Sweeper {
	if config == nil {
		config = DefaultConfig()
	}
	if locks == nil {
		locks = vault.NewPathLocks()
	}
	return &Sweeper{
		store:   store,
		devices: devices,
		locks:   locks,
		config:  config,
		now:     time.Now,
	}
}

// Start runs a sweep now and then on the configured schedule until ctx is done
func (s *Sweeper) Start(ctx context.Context) error {
	periodic, err := schedule.NewPeriodic("retention", s.config.Schedule, func(ctx context.Context) error {
		_, err := s.Run(ctx)
		return err
	})
	if err != nil {
		return err
	}
	return periodic.Run(ctx)
}

// Run performs one sweep. Per-path failures are counted in the report and
// do not stop the sweep; only failing to enumerate paths or devices does.
func (s *Sweeper) Run(ctx context.Context) (*Report, error) {
	start := time.Now()
	report := &Report{}

	lwm, haveDevices, err := s.devices.LowWaterMark(ctx)
	if err != nil {
		return nil, fmt.Errorf("low water mark: %w", err)
	}
	report.LowWaterMark = lwm

	paths, err := s.store.ListPaths(ctx)
	if err != nil {
		return nil, fmt.Errorf("list paths: %w", err)
	}
	sort.Strings(paths)

	records := make(map[string]*vault.FileMetadata, len(paths))
	for _, path := range paths {
		meta, err := s.store.ReadMetadata(ctx, path)
		if err != nil {
			report.Errors++
			slog.Error("retention read metadata", "path", path, "error", err)
			continue
		}
		if meta != nil {
			records[path] = meta
		}
	}

	cutoff := s.now().Add(-s.config.KeepDeleted).UnixMilli()

	for i, path := range paths {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		meta, ok := records[path]
		if !ok {
			continue
		}
		report.PathsScanned++

		if !meta.IsDeleted() {
			if err := s.pruneVersions(ctx, path, report); err != nil {
				report.Errors++
				slog.Error("retention prune versions", "path", path, "error", err)
			}
			continue
		}

		if !haveDevices || !s.purgeable(meta, cutoff, lwm) || hasLiveDescendant(paths[i+1:], path, records) {
			report.TombstonesKept++
			continue
		}
		purged, err := s.purge(ctx, path, meta.MTime)
		if err != nil {
			report.Errors++
			slog.Error("retention purge tombstone", "path", path, "error", err)
			continue
		}
		if purged {
			report.TombstonesPurged++
		}
	}

	report.Took = time.Since(start)
	slog.Info("retention sweep",
		"paths", humanize.Comma(int64(report.PathsScanned)),
		"versionsPruned", humanize.Comma(int64(report.VersionsPruned)),
		"freed", humanize.Bytes(uint64(report.BytesPruned)),
		"tombstonesPurged", report.TombstonesPurged,
		"tombstonesKept", report.TombstonesKept,
		"errors", report.Errors,
		"took", report.Took,
	)
	return report, nil
}

// purgeable holds when the tombstone is older than the keep window and
// every device came online strictly after it.
func (s *Sweeper) purgeable(meta *vault.FileMetadata, cutoff, lwm int64) bool {
	return meta.MTime < cutoff && lwm > meta.MTime
}

func (s *Sweeper) pruneVersions(ctx context.Context, path string, report *Report) error {
	unlock := s.locks.Lock(path)
	defer unlock()

	versions, err := s.store.ListVersions(ctx, path)
	if err != nil {
		return err
	}
	if len(versions) <= s.config.VersionsPerFile {
		return nil
	}

	excess := versions[s.config.VersionsPerFile:]
	for i := len(excess) - 1; i >= 0; i-- {
		v := excess[i]
		if err := s.store.DeleteVersion(ctx, path, v.MTime); err != nil {
			return fmt.Errorf("delete version %s: %w", v.Key(), err)
		}
		report.VersionsPruned++
		report.BytesPruned += v.Size
	}
	slog.Debug("retention pruned", "path", path, "versions", len(excess))
	return nil
}

// purge re-checks the record under the path lock so a tombstone replaced
// since the scan survives.
func (s *Sweeper) purge(ctx context.Context, path string, mtime int64) (bool, error) {
	unlock := s.locks.Lock(path)
	defer unlock()

	meta, err := s.store.ReadMetadata(ctx, path)
	if err != nil {
		return false, err
	}
	if meta == nil || !meta.IsDeleted() || meta.MTime != mtime {
		return false, nil
	}
	if err := s.store.Delete(ctx, path); err != nil {
		return false, err
	}
	slog.Debug("retention purged tombstone", "path", path, "mtime", mtime)
	return true, nil
}

// hasLiveDescendant reports whether a live record sits below path. rest
// holds the sorted paths after path.
func hasLiveDescendant(rest []string, path string, records map[string]*vault.FileMetadata) bool {
	prefix := path + "/"
	for _, p := range rest {
		if !strings.HasPrefix(p, prefix) {
			if p > prefix {
				break
			}
			continue
		}
		if meta, ok := records[p]; ok && !meta.IsDeleted() {
			return true
		}
	}
	return false
}

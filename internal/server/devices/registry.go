package devices

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/openmined/vaultsync/internal/db"
)

// ErrUnknownDevice is returned when an operation names a device that was never added
var ErrUnknownDevice = errors.New("devices: unknown device")

// KeyLastOnline holds the last time a device was seen, in epoch milliseconds
const KeyLastOnline = "last_online"

const schema = `
CREATE TABLE IF NOT EXISTS devices (
	id TEXT PRIMARY KEY,
	created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS device_attrs (
	device_id TEXT NOT NULL,
	key TEXT NOT NULL,
	value TEXT NOT NULL,
	PRIMARY KEY (device_id, key),
	FOREIGN KEY (device_id) REFERENCES devices(id) ON DELETE CASCADE
);
`

// Device is a registered device with its attributes
type Device struct {
	ID         string            `json:"id" yaml:"id"`
	CreatedAt  int64             `json:"createdAt" yaml:"created_at"`
	LastOnline int64             `json:"lastOnline" yaml:"last_online"`
	Attrs      map[string]string `json:"attrs,omitempty" yaml:"attrs,omitempty"`
}

// Registry is a persistent key-value store of device id to attributes.
type Registry struct {
	db  *sqlx.DB
	now func() time.Time
}

func NewRegistry(sqldb *sqlx.DB) (*Registry, error) {
	if err := db.Migrate(sqldb, schema); err != nil {
		return nil, fmt.Errorf("failed to initialize device registry: %w", err)
	}
	return &Registry{db: sqldb, now: time.Now}, nil
}

// Add registers id. Adding a known device is a no-op.
func (r *Registry) Add(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("devices: empty device id")
	}
	_, err := r.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO devices (id, created_at) VALUES (?, ?)", id, r.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("add device %s: %w", id, err)
	}
	return nil
}

func (r *Registry) Has(ctx context.Context, id string) (bool, error) {
	var n int
	if err := r.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM devices WHERE id = ?", id); err != nil {
		return false, fmt.Errorf("lookup device %s: %w", id, err)
	}
	return n > 0, nil
}

func (r *Registry) Set(ctx context.Context, id, key, value string) error {
	ok, err := r.Has(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownDevice, id)
	}

	_, err = r.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO device_attrs (device_id, key, value) VALUES (?, ?, ?)", id, key, value)
	if err != nil {
		return fmt.Errorf("set %s for device %s: %w", key, id, err)
	}
	return nil
}

// Get returns the attribute value and whether it was set
func (r *Registry) Get(ctx context.Context, id, key string) (string, bool, error) {
	var value string
	err := r.db.GetContext(ctx, &value,
		"SELECT value FROM device_attrs WHERE device_id = ? AND key = ?", id, key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	} else if err != nil {
		return "", false, fmt.Errorf("get %s for device %s: %w", key, id, err)
	}
	return value, true, nil
}

func (r *Registry) List(ctx context.Context) ([]string, error) {
	ids := []string{}
	if err := r.db.SelectContext(ctx, &ids, "SELECT id FROM devices ORDER BY id"); err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	return ids, nil
}

// Remove drops a device and its attributes. Removing an unknown device
// returns ErrUnknownDevice.
func (r *Registry) Remove(ctx context.Context, id string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM device_attrs WHERE device_id = ?", id); err != nil {
		return fmt.Errorf("remove attrs for device %s: %w", id, err)
	}
	res, err := tx.ExecContext(ctx, "DELETE FROM devices WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("remove device %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrUnknownDevice, id)
	}
	return tx.Commit()
}

// LastOnline returns the device's last_online in epoch ms. A device that
// never reported one yields 0, false.
func (r *Registry) LastOnline(ctx context.Context, id string) (int64, bool, error) {
	raw, ok, err := r.Get(ctx, id, KeyLastOnline)
	if err != nil || !ok {
		return 0, false, err
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("device %s has malformed %s %q: %w", id, KeyLastOnline, raw, err)
	}
	return ms, true, nil
}

// TouchLastOnline sets last_online to now and returns the stored value
func (r *Registry) TouchLastOnline(ctx context.Context, id string) (int64, error) {
	ms := r.now().UnixMilli()
	if err := r.Set(ctx, id, KeyLastOnline, strconv.FormatInt(ms, 10)); err != nil {
		return 0, err
	}
	return ms, nil
}

// Describe returns every registered device with its attributes
func (r *Registry) Describe(ctx context.Context) ([]Device, error) {
	var rows []struct {
		ID        string `db:"id"`
		CreatedAt int64  `db:"created_at"`
	}
	if err := r.db.SelectContext(ctx, &rows, "SELECT id, created_at FROM devices ORDER BY id"); err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}

	var attrs []struct {
		DeviceID string `db:"device_id"`
		Key      string `db:"key"`
		Value    string `db:"value"`
	}
	if err := r.db.SelectContext(ctx, &attrs, "SELECT device_id, key, value FROM device_attrs"); err != nil {
		return nil, fmt.Errorf("list device attributes: %w", err)
	}

	byID := make(map[string]map[string]string, len(rows))
	for _, a := range attrs {
		if byID[a.DeviceID] == nil {
			byID[a.DeviceID] = make(map[string]string)
		}
		byID[a.DeviceID][a.Key] = a.Value
	}

	out := make([]Device, 0, len(rows))
	for _, row := range rows {
		d := Device{ID: row.ID, CreatedAt: row.CreatedAt, Attrs: byID[row.ID]}
		if raw, ok := d.Attrs[KeyLastOnline]; ok {
			d.LastOnline, _ = strconv.ParseInt(raw, 10, 64)
		}
		out = append(out, d)
	}
	return out, nil
}

// LowWaterMark is the smallest last_online across all devices. Devices
// that never reported count as 0. ok is false when no device is registered.
func (r *Registry) LowWaterMark(ctx context.Context) (int64, bool, error) {
	ids, err := r.List(ctx)
	if err != nil {
		return 0, false, err
	}
	if len(ids) == 0 {
		return 0, false, nil
	}

	var lwm int64 = -1
	for _, id := range ids {
		ms, _, err := r.LastOnline(ctx, id)
		if err != nil {
			return 0, false, err
		}
		if lwm < 0 || ms < lwm {
			lwm = ms
		}
	}
	return lwm, true, nil
}

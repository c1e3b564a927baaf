package accesslog

import (
	"time"

	"github.com/goccy/go-json"
	"github.com/openmined/vaultsync/internal/vault"
)

const (
	DefaultMaxSizeMB  = 10
	DefaultMaxBackups = 5
	LogDirPermission  = 0o700
	logFileName       = "changes.log"
	timestampLayout   = "2006-01-02 15:04:05.000 UTC"
)

// AccessLogEntry is one change a device got accepted into the vault
type AccessLogEntry struct {
	Timestamp   time.Time    `json:"-"`
	Device      string       `json:"device"`
	ConnID      string       `json:"conn_id"`
	Path        string       `json:"path"`
	Kind        vault.Kind   `json:"kind"`
	Action      vault.Action `json:"action"`
	MTime       int64        `json:"mtime"`
	Fingerprint string       `json:"fingerprint,omitempty"`
	Size        int          `json:"size"`
}

type entryAlias AccessLogEntry

type entryJSON struct {
	Timestamp string `json:"timestamp"`
	*entryAlias
}

// MarshalJSON writes the timestamp as fixed-width UTC
func (e AccessLogEntry) MarshalJSON() ([]byte, error) {
	return json.Marshal(&entryJSON{
		Timestamp:  e.Timestamp.UTC().Format(timestampLayout),
		entryAlias: (*entryAlias)(&e),
	})
}

func (e *AccessLogEntry) UnmarshalJSON(data []byte) error {
	aux := &entryJSON{entryAlias: (*entryAlias)(e)}
	if err := json.Unmarshal(data, aux); err != nil {
		return err
	}
	t, err := time.Parse(timestampLayout, aux.Timestamp)
	if err != nil {
		if t, err = time.Parse(time.RFC3339Nano, aux.Timestamp); err != nil {
			return err
		}
	}
	e.Timestamp = t
	return nil
}

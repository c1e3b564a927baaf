package reconcile

import "github.com/openmined/vaultsync/internal/vault"

// Outcome is the verdict of comparing an incoming candidate with the
// stored record of the same path.
type Outcome uint8

const (
	// NoChange means the store keeps its state and nothing is sent.
	NoChange Outcome = iota
	// RemoteNewer means the candidate replaces the stored record.
	RemoteNewer
	// LocalNewer means the stored record wins and is pushed to the requester.
	LocalNewer
)

func (o Outcome) String() string {
	switch o {
	case RemoteNewer:
		return "remote_newer"
	case LocalNewer:
		return "local_newer"
	default:
		return "no_change"
	}
}

// Resolve is last-write-wins by mtime. Identical content and action is
// always NoChange, and equal mtimes keep the incumbent.
func Resolve(local, candidate *vault.FileMetadata) Outcome {
	if local == nil {
		return RemoteNewer
	}
	if local.Fingerprint == candidate.Fingerprint && local.Action == candidate.Action {
		return NoChange
	}
	switch {
	case candidate.MTime > local.MTime:
		return RemoteNewer
	case candidate.MTime < local.MTime:
		return LocalNewer
	default:
		return NoChange
	}
}

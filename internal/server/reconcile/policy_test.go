package reconcile

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/openmined/vaultsync/internal/vault"
	"github.com/stretchr/testify/assert"
)

func meta(fp string, action vault.Action, mtime int64) *vault.FileMetadata {
	return &vault.FileMetadata{Path: "a.md", Kind: vault.KindFile, Action: action, Fingerprint: fp, MTime: mtime}
}

func TestResolve(t *testing.T) {
	tests := []struct {
		name      string
		local     *vault.FileMetadata
		candidate *vault.FileMetadata
		want      Outcome
	}{
		{"absent locally", nil, meta("h1", vault.ActionCreated, 1), RemoteNewer},
		{"absent locally tombstone", nil, meta("", vault.ActionDeleted, 1), RemoteNewer},
		{"identical newer", meta("h1", vault.ActionCreated, 100), meta("h1", vault.ActionCreated, 200), NoChange},
		{"identical older", meta("h1", vault.ActionCreated, 100), meta("h1", vault.ActionCreated, 50), NoChange},
		{"content differs newer", meta("h1", vault.ActionCreated, 100), meta("h2", vault.ActionCreated, 200), RemoteNewer},
		{"content differs older", meta("h1", vault.ActionCreated, 100), meta("h2", vault.ActionCreated, 50), LocalNewer},
		{"equal mtime keeps incumbent", meta("h1", vault.ActionCreated, 100), meta("h2", vault.ActionCreated, 100), NoChange},
		{"delete after create", meta("h1", vault.ActionCreated, 100), meta("", vault.ActionDeleted, 200), RemoteNewer},
		{"create older than delete", meta("", vault.ActionDeleted, 200), meta("h1", vault.ActionCreated, 150), LocalNewer},
		{"action differs same fingerprint", meta("h1", vault.ActionCreated, 100), meta("h1", vault.ActionDeleted, 300), RemoteNewer},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Resolve(tt.local, tt.candidate))
		})
	}
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "no_change", NoChange.String())
	assert.Equal(t, "remote_newer", RemoteNewer.String())
	assert.Equal(t, "local_newer", LocalNewer.String())
}

// applying candidates with distinct states in any order, duplicates
// included, ends on the one with the largest mtime
func TestResolveConverges(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	for round := range 200 {
		n := 2 + rng.Intn(8)
		candidates := make([]*vault.FileMetadata, 0, n)
		mtimes := rng.Perm(1000)[:n]
		var newest *vault.FileMetadata
		for i := range n {
			c := meta(fmt.Sprintf("h%d", mtimes[i]), vault.ActionCreated, int64(mtimes[i]))
			if i == 0 && rng.Intn(2) == 0 {
				c = meta("", vault.ActionDeleted, int64(mtimes[i]))
			}
			candidates = append(candidates, c)
			if newest == nil || c.MTime > newest.MTime {
				newest = c
			}
		}

		var final *vault.FileMetadata
		for _, i := range rng.Perm(n) {
			for range 1 + rng.Intn(2) {
				if Resolve(final, candidates[i]) == RemoteNewer {
					final = candidates[i]
				}
			}
		}

		assert.Equal(t, newest, final, "round %d", round)
	}
}

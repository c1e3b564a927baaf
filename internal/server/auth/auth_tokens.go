package auth

import (
	"crypto/sha256"
	"encoding/hex"
)

// PeerToken derives the token a peer with id presents: the hex SHA-256 of
// the password spliced into the id after its 16th byte.
func PeerToken(id, password string) string {
	split := min(16, len(id))
	sum := sha256.Sum256([]byte(id[:split] + password + id[split:]))
	return hex.EncodeToString(sum[:])
}

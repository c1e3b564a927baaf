package utils

import (
	"crypto/rand"
	"encoding/hex"
)

// TokenHex returns a random hex string built from n random bytes.
func TokenHex(n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand only fails when the OS entropy source is unavailable
		panic("utils: read random bytes: " + err.Error())
	}
	return hex.EncodeToString(b)
}

package vault

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"strings"
)

// Fingerprint returns the hex SHA-256 of content, or "" for no content.
func Fingerprint(content []byte) string {
	if len(content) == 0 {
		return ""
	}
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

var binaryExtensions = map[string]struct{}{
	// images
	".png": {}, ".jpg": {}, ".jpeg": {}, ".gif": {}, ".bmp": {}, ".webp": {}, ".avif": {}, ".ico": {}, ".tif": {}, ".tiff": {}, ".heic": {},
	// audio / video
	".mp3": {}, ".wav": {}, ".ogg": {}, ".m4a": {}, ".flac": {}, ".webm": {}, ".mp4": {}, ".mov": {}, ".mkv": {}, ".3gp": {},
	// documents
	".pdf": {}, ".doc": {}, ".docx": {}, ".xls": {}, ".xlsx": {}, ".ppt": {}, ".pptx": {}, ".odt": {}, ".ods": {}, ".epub": {},
	// archives
	".zip": {}, ".gz": {}, ".tgz": {}, ".tar": {}, ".7z": {}, ".rar": {}, ".bz2": {}, ".xz": {},
	// fonts and misc
	".ttf": {}, ".otf": {}, ".woff": {}, ".woff2": {}, ".wasm": {}, ".bin": {}, ".exe": {}, ".dll": {}, ".so": {}, ".sqlite": {},
}

// IsBinaryPath reports whether a path is synced as binary content, which
// keeps no history.
func IsBinaryPath(path string) bool {
	_, ok := binaryExtensions[strings.ToLower(filepath.Ext(path))]
	return ok
}

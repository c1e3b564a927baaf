package utils

import (
	"mime"
	"path/filepath"
)

const (
	contentTypeText   = "text/plain; charset=utf-8"
	contentTypeBinary = "application/octet-stream"
)

// DetectContentType picks the response type for vault content. Text
// content is always served as plain text; binary content uses the
// registered mime type of its extension when there is one.
func DetectContentType(key string, binary bool) string {
	if !binary {
		return contentTypeText
	}
	if mimeType := mime.TypeByExtension(filepath.Ext(key)); mimeType != "" {
		return mimeType
	}
	return contentTypeBinary
}

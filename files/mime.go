package files

import (
	"mime"
	"path/filepath"
	"strings"
)

const octetStream = "application/octet-stream"

var fallbackTypes = map[string]string{
	"txt":  "text/plain",
	"html": "text/html",
	"css":  "text/css",
	"js":   "application/javascript",
	"json": "application/json",
	"xml":  "application/xml",
	"pdf":  "application/pdf",
	"png":  "image/png",
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"gif":  "image/gif",
	"svg":  "image/svg+xml",
	"zip":  "application/zip",
	"csv":  "text/csv",
	"doc":  "application/msword",
	"docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"xls":  "application/vnd.ms-excel",
	"xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
}

// DetectContentType guesses a media type from the extension of name, without
// parameters such as charset.
func DetectContentType(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" {
		return octetStream
	}
	if detected := mime.TypeByExtension(ext); detected != "" {
		if mediaType, _, err := mime.ParseMediaType(detected); err == nil {
			return mediaType
		}
	}
	if fallback, ok := fallbackTypes[ext[1:]]; ok {
		return fallback
	}
	return octetStream
}

func validContentType(contentType string) bool {
	_, _, err := mime.ParseMediaType(contentType)
	return err == nil
}

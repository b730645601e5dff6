package handlers

import "strings"

// mimeTypes is a small static extension table, grounded on
// original_source's MimeTypes class (a static map with a fallback),
// simplified here to the common web-serving extensions rather than
// parsing /etc/mime.types at startup.
var mimeTypes = map[string]string{
	".html": "text/html",
	".htm":  "text/html",
	".css":  "text/css",
	".js":   "application/javascript",
	".json": "application/json",
	".txt":  "text/plain",
	".xml":  "application/xml",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".svg":  "image/svg+xml",
	".ico":  "image/x-icon",
	".webp": "image/webp",
	".pdf":  "application/pdf",
	".zip":  "application/zip",
	".gz":   "application/gzip",
	".mp4":  "video/mp4",
	".mp3":  "audio/mpeg",
	".wasm": "application/wasm",
	".bin":  "application/octet-stream",
}

const defaultMimeType = "application/octet-stream"

// mimeTypeFor returns the MIME type for name's lowercased extension, or
// defaultMimeType if unknown.
func mimeTypeFor(name string) string {
	ext := extOf(name)
	if ct, ok := mimeTypes[ext]; ok {
		return ct
	}
	return defaultMimeType
}

func extOf(name string) string {
	i := strings.LastIndexByte(name, '.')
	if i < 0 {
		return ""
	}
	return strings.ToLower(name[i:])
}

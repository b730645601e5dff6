// Package handlers implements spec.md C9: the GET/HEAD/POST/DELETE
// method handlers and the error-page resolution chain of §4.9. Handlers
// never touch the network directly — they build a Response that the
// session (C10) serializes and drains into the socket.
package handlers

import (
	"time"

	"github.com/webserv-go/webserv/config"
)

// File stages a regular file to be streamed by the session instead of
// buffered whole into the output ring, so serving a response near the
// 100 MiB ceiling (spec.md §4.8) doesn't require holding it all in RAM
// at once.
type File struct {
	Path    string
	Size    int64
	ModTime time.Time
}

// Response is the bounded set of headers spec.md §4.8/§4.9 allows a
// handler to produce. Fields rather than a free-form header map enforce
// the response-header whitelist (Server/Date/Content-Type/
// Content-Length/Last-Modified/Location/Allow/Connection) by
// construction — the session is the only place that knows how to write
// Server/Date/Connection, so this type only carries the rest.
type Response struct {
	Status int

	ContentType string

	Location    string
	HasLocation bool

	LastModified    time.Time
	HasLastModified bool

	Allow []config.Method

	// Body is used for everything except a staged regular-file GET
	// response: error pages, redirects, directory listings, upload
	// confirmations.
	Body []byte

	// File is set instead of Body for a GET/HEAD regular-file response.
	File *File

	// ForceClose signals the session that keep-alive must not be
	// honored for this response regardless of configuration (e.g. the
	// request was too malformed to safely keep parsing on this
	// connection).
	ForceClose bool
}

// ContentLength returns the response body's length, from whichever of
// Body/File is set.
func (r *Response) ContentLength() int64 {
	if r.File != nil {
		return r.File.Size
	}
	return int64(len(r.Body))
}

func textResponse(status int, contentType string, body []byte) *Response {
	return &Response{Status: status, ContentType: contentType, Body: body}
}

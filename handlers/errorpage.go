package handlers

import (
	"fmt"
	"io"
	"os"

	"github.com/webserv-go/webserv/cache/mempool"
	"github.com/webserv-go/webserv/config"
)

var reasonPhrases = map[int]string{
	200: "OK",
	201: "Created",
	204: "No Content",
	301: "Moved Permanently",
	302: "Found",
	303: "See Other",
	307: "Temporary Redirect",
	308: "Permanent Redirect",
	400: "Bad Request",
	403: "Forbidden",
	404: "Not Found",
	405: "Method Not Allowed",
	408: "Request Timeout",
	413: "Payload Too Large",
	414: "URI Too Long",
	431: "Request Header Fields Too Large",
	500: "Internal Server Error",
	501: "Not Implemented",
	505: "HTTP Version Not Supported",
}

// ReasonPhrase returns status's standard reason phrase, or "Error" for
// any status this server doesn't otherwise name.
func ReasonPhrase(status int) string {
	if p, ok := reasonPhrases[status]; ok {
		return p
	}
	return "Error"
}

// ResolveErrorPage implements spec.md §4.9: prefer the virtual server's
// configured status page for this code if it exists on disk, else fall
// back to a built-in minimal page.
func ResolveErrorPage(server *config.VirtualServer, status int) *Response {
	if server != nil {
		if path, ok := server.StatusPages[status]; ok {
			if body, err := readStatusPage(path); err == nil {
				return textResponse(status, "text/html", body)
			}
		}
	}
	return textResponse(status, "text/html", builtinErrorPage(status))
}

// readStatusPage reads a configured status-page file in one shot, using
// the same mempool.Malloc-backed buffer the ring buffer draws from
// rather than an ordinary make([]byte, ...) — status pages are read
// once per distinct error response and freed immediately after the
// body is copied into the response.
func readStatusPage(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	raw := mempool.Malloc(int(info.Size()))
	defer mempool.Free(raw)
	if _, err := io.ReadFull(f, raw); err != nil {
		return nil, err
	}
	body := make([]byte, len(raw))
	copy(body, raw)
	return body, nil
}

func builtinErrorPage(status int) []byte {
	reason := ReasonPhrase(status)
	return []byte(fmt.Sprintf(
		"<!DOCTYPE html>\n<html>\n<head><title>%d %s</title></head>\n"+
			"<body>\n<h1>%d %s</h1>\n</body>\n</html>\n",
		status, reason, status, reason))
}

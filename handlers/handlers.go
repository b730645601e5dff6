package handlers

import (
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	cring "github.com/webserv-go/webserv/container/ring"
	"github.com/webserv-go/webserv/config"
	"github.com/webserv-go/webserv/httpparse"
	"github.com/webserv-go/webserv/location"
)

// Context is everything a method handler needs, already resolved by the
// session: the server and location policy, the request itself, and
// access to whatever body bytes were buffered or spilled (spec.md §4.6).
type Context struct {
	Method config.Method
	Path   string
	Target string

	Headers httpparse.Headers
	Policy  location.Policy
	Server  *config.VirtualServer

	Body     io.Reader
	BodySize int64
}

// Dispatch runs the common prelude (spec.md §4.8) — redirect, then
// method-allowed check — and routes to the matching method handler.
func Dispatch(ctx *Context) *Response {
	if ctx.Policy.Redirect != nil {
		rd := ctx.Policy.Redirect
		resp := &Response{Status: rd.Status}
		resp.Location = rd.Target
		resp.HasLocation = true
		return resp
	}

	if !ctx.Policy.AllowedMethods[ctx.Method] {
		resp := ResolveErrorPage(ctx.Server, 405)
		resp.Allow = allowedList(ctx.Policy.AllowedMethods)
		return resp
	}

	switch ctx.Method {
	case config.GET, config.HEAD:
		resp := handleGet(ctx)
		if ctx.Method == config.HEAD {
			resp.Body = nil
			resp.File = nil
		}
		return resp
	case config.POST:
		return handlePost(ctx)
	case config.DELETE:
		return ResolveErrorPage(ctx.Server, 501)
	default:
		return ResolveErrorPage(ctx.Server, 501)
	}
}

func allowedList(set map[config.Method]bool) []config.Method {
	all := []config.Method{config.GET, config.HEAD, config.POST, config.DELETE}
	var out []config.Method
	for _, m := range all {
		if set[m] {
			out = append(out, m)
		}
	}
	return out
}

func handleGet(ctx *Context) *Response {
	fsPath, ok := resolveFSPath(ctx.Policy.Root, ctx.Path, locationPrefix(ctx.Policy))
	if !ok {
		return ResolveErrorPage(ctx.Server, 403)
	}

	st, err := os.Stat(fsPath)
	if err != nil {
		return ResolveErrorPage(ctx.Server, 404)
	}

	if st.IsDir() {
		if !strings.HasSuffix(ctx.Path, "/") {
			resp := &Response{Status: 301, Location: ctx.Path + "/", HasLocation: true}
			return resp
		}
		if indexPath, ok := firstExistingIndex(fsPath, ctx.Policy.Indexes); ok {
			return serveFile(indexPath, ctx.Server)
		}
		if ctx.Policy.Autoindex {
			return serveAutoindex(fsPath, ctx.Path, ctx.Server.Root)
		}
		return ResolveErrorPage(ctx.Server, 403)
	}

	if !st.Mode().IsRegular() {
		return ResolveErrorPage(ctx.Server, 403)
	}

	const maxServableSize = 100 << 20
	if st.Size() > maxServableSize {
		return ResolveErrorPage(ctx.Server, 413)
	}

	return serveFile(fsPath, ctx.Server)
}

func serveFile(path string, server *config.VirtualServer) *Response {
	st, err := os.Stat(path)
	if err != nil {
		return ResolveErrorPage(server, 404)
	}
	return &Response{
		Status:          200,
		ContentType:     mimeTypeFor(path),
		LastModified:    st.ModTime(),
		HasLastModified: true,
		File:            &File{Path: path, Size: st.Size(), ModTime: st.ModTime()},
	}
}

// firstExistingIndex walks indexes via container/ring, mirroring the
// ordered, wrap-tolerant traversal the pack uses elsewhere for small
// fixed lists, returning the first entry that exists as a regular file
// under dir.
func firstExistingIndex(dir string, indexes []string) (string, bool) {
	if len(indexes) == 0 {
		return "", false
	}
	r := cring.NewFromSlice(indexes)
	item := r.Head()
	for i := 0; i < r.Len(); i++ {
		candidate := filepath.Join(dir, item.Value())
		if st, err := os.Stat(candidate); err == nil && st.Mode().IsRegular() {
			return candidate, true
		}
		next, ok := r.Next(item.Index())
		if !ok {
			break
		}
		item = next
	}
	return "", false
}

// serveAutoindex lists dir's entries, preceded by a ".." row unless dir
// is the virtual server's root (SPEC_FULL.md §3: the original suppresses
// the parent-directory row only at the filesystem root, not at every
// autoindexed directory).
func serveAutoindex(dir, requestPath, serverRoot string) *Response {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return &Response{Status: 403, ContentType: "text/html", Body: builtinErrorPage(403)}
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString("<!DOCTYPE html>\n<html>\n<head><title>Index of " + requestPath + "</title></head>\n<body>\n")
	b.WriteString("<h1>Index of " + requestPath + "</h1>\n<table>\n")
	if !isRootDir(dir, serverRoot) {
		b.WriteString("<tr><td><a href=\"../\">../</a></td><td></td><td>-</td></tr>\n")
	}
	for _, name := range names {
		full := filepath.Join(dir, name)
		st, err := os.Stat(full)
		size := "-"
		modTime := ""
		label := name
		if err == nil {
			modTime = st.ModTime().UTC().Format(http1123)
			if st.IsDir() {
				label += "/"
			} else {
				size = strconv.FormatInt(st.Size(), 10)
			}
		}
		b.WriteString("<tr><td><a href=\"" + label + "\">" + label + "</a></td><td>" + modTime + "</td><td>" + size + "</td></tr>\n")
	}
	b.WriteString("</table>\n</body>\n</html>\n")

	return &Response{Status: 200, ContentType: "text/html", Body: []byte(b.String())}
}

const http1123 = "Mon, 02 Jan 2006 15:04:05 GMT"

// isRootDir reports whether dir is the virtual server's own root, after
// resolving both to absolute, cleaned paths so trailing slashes and
// relative roots in config don't cause a false ".." suppression.
func isRootDir(dir, serverRoot string) bool {
	a, err1 := filepath.Abs(dir)
	b, err2 := filepath.Abs(serverRoot)
	if err1 != nil || err2 != nil {
		return dir == serverRoot
	}
	return a == b
}

func locationPrefix(p location.Policy) string {
	if p.Matched == nil {
		return ""
	}
	return p.Matched.PathPrefix
}

// resolveFSPath joins root with the request path's remainder past
// locationPrefix, refusing anything that would resolve outside root.
func resolveFSPath(root, requestPath, locationPrefix string) (string, bool) {
	rel := strings.TrimPrefix(requestPath, locationPrefix)
	rel = strings.TrimPrefix(rel, "/")
	joined := filepath.Join(root, rel)

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", false
	}
	absJoined, err := filepath.Abs(joined)
	if err != nil {
		return "", false
	}
	if absJoined != absRoot && !strings.HasPrefix(absJoined, absRoot+string(filepath.Separator)) {
		return "", false
	}
	return joined, true
}

var uploadCounter atomic.Int64

func handlePost(ctx *Context) *Response {
	if ctx.BodySize > ctx.Server.ClientMaxBodySize {
		return ResolveErrorPage(ctx.Server, 413)
	}

	switch {
	case ctx.Policy.HasCGIPath:
		// CGI execution is out of scope for this core (SPEC_FULL.md
		// Non-goals); a configured cgi_path with nothing to execute it
		// falls through to the same 501 as no handler configured.
		return ResolveErrorPage(ctx.Server, 501)
	case ctx.Policy.HasUploadPath:
		return handleUpload(ctx)
	default:
		return ResolveErrorPage(ctx.Server, 501)
	}
}

func handleUpload(ctx *Context) *Response {
	st, err := os.Stat(ctx.Policy.UploadPath)
	if err != nil || !st.IsDir() {
		return ResolveErrorPage(ctx.Server, 500)
	}

	filename := uploadFilename(ctx)
	f, finalName, err := createWithSuffix(ctx.Policy.UploadPath, filename)
	if err != nil {
		return ResolveErrorPage(ctx.Server, 500)
	}
	defer f.Close()

	if _, err := io.Copy(f, ctx.Body); err != nil {
		return ResolveErrorPage(ctx.Server, 500)
	}

	resourceLocation := strings.TrimRight(ctx.Policy.UploadPath, "/") + "/" + finalName
	body := []byte("<!DOCTYPE html>\n<html>\n<head><title>Upload Successful</title></head>\n" +
		"<body>\n<h1>File Uploaded Successfully</h1>\n<p>Filename: " + finalName + "</p>\n</body>\n</html>\n")
	return &Response{Status: 201, ContentType: "text/html", Body: body, Location: resourceLocation, HasLocation: true}
}

func uploadFilename(ctx *Context) string {
	if cd, ok := ctx.Headers.Get("Content-Disposition"); ok {
		if name, ok := filenameFromDisposition(cd); ok {
			return name
		}
	}
	base := "upload_" + strconv.FormatInt(time.Now().UnixNano(), 10) + "_" + strconv.FormatInt(uploadCounter.Add(1), 10)
	ct, _ := ctx.Headers.Get("Content-Type")
	return base + suffixForContentType(ct)
}

func filenameFromDisposition(cd string) (string, bool) {
	const key = "filename="
	i := strings.Index(cd, key)
	if i < 0 {
		return "", false
	}
	rest := cd[i+len(key):]
	rest = strings.TrimPrefix(rest, `"`)
	if j := strings.IndexAny(rest, "\";"); j >= 0 {
		rest = rest[:j]
	}
	rest = filepath.Base(rest)
	if rest == "" || rest == "." || rest == string(filepath.Separator) {
		return "", false
	}
	return rest, true
}

func suffixForContentType(ct string) string {
	ct = strings.ToLower(ct)
	switch {
	case strings.Contains(ct, "application/octet-stream"):
		return ".bin"
	case strings.Contains(ct, "text/plain"):
		return ".txt"
	case strings.HasPrefix(ct, "image/"):
		sub := strings.TrimPrefix(ct, "image/")
		if si := strings.IndexByte(sub, ';'); si >= 0 {
			sub = sub[:si]
		}
		return "." + sub
	default:
		return ".dat"
	}
}

// createWithSuffix opens name for exclusive creation under dir, and on
// collision appends numeric suffixes _1.._99 before the extension
// (spec.md §4.8, grounded on original_source's saveUploadedFile).
func createWithSuffix(dir, name string) (*os.File, string, error) {
	candidate := name
	for i := 0; i <= 99; i++ {
		if i > 0 {
			candidate = withSuffix(name, i)
		}
		f, err := os.OpenFile(filepath.Join(dir, candidate), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			return f, candidate, nil
		}
		if !os.IsExist(err) {
			return nil, "", err
		}
	}
	return nil, "", os.ErrExist
}

func withSuffix(name string, n int) string {
	ext := extOf(name)
	base := strings.TrimSuffix(name, ext)
	return base + "_" + strconv.Itoa(n) + ext
}

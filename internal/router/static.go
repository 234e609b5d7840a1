package router

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/wireserv/wireserv/internal/httpmsg"
)

// StaticConfig configures one static-file mount point.
type StaticConfig struct {
	URLPrefix  string            // e.g. "/static/"
	DocRoot    string            // absolute or cwd-relative filesystem root
	IndexFiles []string          // tried in order when the request path names a directory
	MimeTypes  map[string]string // extension ("." included) overrides, checked before the built-in table
}

// fileStream adapts *os.File into httpmsg.BodyStream, reopening the file
// by path on Open so a Response can be serialized more than once (e.g.
// retried after a write error) without holding an fd the whole time.
type fileStream struct {
	path string
}

type fileReadCloser struct {
	f *os.File
}

func (f *fileReadCloser) Read(p []byte) (int, error) { return f.f.Read(p) }
func (f *fileReadCloser) Close() error                { return f.f.Close() }

func (s *fileStream) Open() (httpmsg.ReadCloser, int64, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, 0, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, err
	}
	return &fileReadCloser{f: f}, info.Size(), nil
}

// ServeStatic builds a HandlerFunc for cfg. It resolves the request path
// against DocRoot with a containment check (refusing any path that
// escapes the root via ".." or a symlink pointing outside it, per §4.4's
// "reject any resolved path outside doc_root" invariant), serves
// IndexFiles for directory requests, sets ETag and Last-Modified and
// answers a matching If-None-Match with 304 (If-Modified-Since is not
// checked), and otherwise streams the file
// via the Response's BodyStream so the Connection can send it without
// buffering the whole thing in memory — the idiomatic replacement for the
// teacher's core/sendfile/sendfile.go raw syscall.Sendfile, since Go's
// runtime already lowers io.Copy into a sendfile(2) call when the
// destination is a *net.TCPConn, and this path works identically over
// TLS where a raw fd-to-fd sendfile cannot.
func ServeStatic(cfg StaticConfig) HandlerFunc {
	root, err := filepath.Abs(cfg.DocRoot)
	if err != nil {
		root = cfg.DocRoot
	}
	realRoot, err := filepath.EvalSymlinks(root)
	if err != nil {
		realRoot = root
	}

	return func(ctx *Context) {
		rel := strings.TrimPrefix(ctx.Request.Path, cfg.URLPrefix)
		rel = strings.TrimPrefix(rel, "/")

		resolved := filepath.Join(root, filepath.Clean("/"+rel))
		if !withinRoot(root, resolved) {
			ctx.Response.Status = 403
			ctx.Response.SetBody([]byte("403 Forbidden"))
			return
		}

		info, statErr := os.Stat(resolved)
		if statErr == nil && info.IsDir() {
			found := false
			for _, idx := range cfg.IndexFiles {
				candidate := filepath.Join(resolved, idx)
				if ci, err := os.Stat(candidate); err == nil && !ci.IsDir() {
					resolved, info, found = candidate, ci, true
					break
				}
			}
			if !found {
				ctx.Response.Status = 403
				ctx.Response.SetBody([]byte("403 Forbidden"))
				return
			}
		} else if statErr != nil {
			ctx.Response.Status = 404
			ctx.Response.SetBody([]byte("404 Not Found"))
			return
		}

		realResolved, err := filepath.EvalSymlinks(resolved)
		if err != nil || !withinRoot(realRoot, realResolved) {
			ctx.Response.Status = 403
			ctx.Response.SetBody([]byte("403 Forbidden"))
			return
		}

		modTicks := info.ModTime().UTC().Unix()
		etag := httpmsg.ComputeETag(resolved, info.Size(), modTicks)

		if inm := ctx.Request.Get("If-None-Match"); inm != "" && httpmsg.ETagMatches(inm, etag) {
			ctx.Response.Status = 304
			ctx.Response.SetHeader("ETag", etag)
			ctx.Response.Body = nil
			ctx.Response.Headers["Content-Length"] = "0"
			return
		}
		// If-Modified-Since is intentionally never treated as a match: per
		// the resolved open question, there is no conformant HTTP-date
		// parser specified to recover from this. A client can still see a
		// 304 via If-None-Match above, which carries the real invariant.

		ctx.Response.SetHeader("ETag", etag)
		ctx.Response.SetHeader("Last-Modified", info.ModTime().UTC().Format(time.RFC1123))
		ctx.Response.SetHeader("Content-Type", contentTypeForWithOverrides(resolved, cfg.MimeTypes))
		ctx.Response.SetHeader("Cache-Control", "public, max-age=3600")
		ctx.Response.Status = 200
		ctx.Response.SetBodyStream(&fileStream{path: resolved}, info.Size())
	}
}

// withinRoot reports whether resolved is root itself or a descendant of
// it, after Clean has collapsed any ".." segments — the containment check
// §4.4 requires before a static file is served.
func withinRoot(root, resolved string) bool {
	root = filepath.Clean(root)
	resolved = filepath.Clean(resolved)
	if resolved == root {
		return true
	}
	return strings.HasPrefix(resolved, root+string(filepath.Separator))
}

var contentTypes = map[string]string{
	".html": "text/html; charset=utf-8",
	".htm":  "text/html; charset=utf-8",
	".css":  "text/css; charset=utf-8",
	".js":   "application/javascript; charset=utf-8",
	".json": "application/json; charset=utf-8",
	".txt":  "text/plain; charset=utf-8",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".svg":  "image/svg+xml",
	".ico":  "image/x-icon",
	".wasm": "application/wasm",
	".pdf":  "application/pdf",
	".xml":  "application/xml",
}

func contentTypeFor(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if ct, ok := contentTypes[ext]; ok {
		return ct
	}
	return "application/octet-stream"
}

// contentTypeForWithOverrides checks overrides (a StaticConfig's MimeTypes,
// keyed by lowercased extension) before falling back to contentTypeFor's
// built-in table.
func contentTypeForWithOverrides(path string, overrides map[string]string) string {
	if len(overrides) > 0 {
		ext := strings.ToLower(filepath.Ext(path))
		if ct, ok := overrides[ext]; ok {
			return ct
		}
	}
	return contentTypeFor(path)
}

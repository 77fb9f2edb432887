// Package static serves the renderer's bundled assets.
package static

import (
	"errors"
	"io"
	"io/fs"
	"net/http"
	"path"
	"strings"

	"github.com/vyrodovalexey/clusterdesk/internal/contenttype"
	"github.com/vyrodovalexey/clusterdesk/internal/observability"
)

// DefaultIndex is served for directory requests and SPA fallbacks.
const DefaultIndex = "index.html"

// Handler serves files from an fs.FS.
type Handler struct {
	fsys   fs.FS
	index  string
	spa    bool
	logger observability.Logger
}

// Option configures a Handler.
type Option func(*Handler)

// WithIndex sets the index file name.
func WithIndex(name string) Option {
	return func(h *Handler) {
		h.index = name
	}
}

// WithSPAFallback serves the root index for extension-less paths that
// match no file.
func WithSPAFallback(enabled bool) Option {
	return func(h *Handler) {
		h.spa = enabled
	}
}

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) Option {
	return func(h *Handler) {
		h.logger = logger
	}
}

// New creates a Handler rooted at fsys.
func New(fsys fs.FS, opts ...Option) *Handler {
	h := &Handler{
		fsys:   fsys,
		index:  DefaultIndex,
		spa:    true,
		logger: observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Serve writes the asset for r. It returns false, without writing, when
// there is nothing to serve.
func (h *Handler) Serve(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		return false
	}

	name, ok := cleanName(r.URL.Path)
	if !ok {
		h.logger.Debug("static path rejected", observability.String("path", r.URL.Path))
		return false
	}

	f, served, err := h.open(name)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			h.logger.Warn("static asset unreadable",
				observability.String("path", name),
				observability.Error(err),
			)
		}
		return false
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return false
	}

	w.Header().Set("Content-Type", contenttype.FromExtension(path.Ext(served)).MIME())

	if rs, ok := f.(io.ReadSeeker); ok {
		http.ServeContent(w, r, served, info.ModTime(), rs)
		return true
	}

	w.WriteHeader(http.StatusOK)
	if r.Method != http.MethodHead {
		_, _ = io.Copy(w, f)
	}
	return true
}

// open resolves name to a regular file: the file itself, the index of a
// directory, or the root index for SPA routes.
func (h *Handler) open(name string) (fs.File, string, error) {
	f, err := h.fsys.Open(name)
	if err == nil {
		info, statErr := f.Stat()
		if statErr == nil && !info.IsDir() {
			return f, name, nil
		}
		_ = f.Close()
		if statErr == nil {
			return h.openFile(path.Join(name, h.index))
		}
		return nil, "", statErr
	}

	if errors.Is(err, fs.ErrNotExist) && h.spa && path.Ext(name) == "" {
		return h.openFile(h.index)
	}
	return nil, "", err
}

func (h *Handler) openFile(name string) (fs.File, string, error) {
	f, err := h.fsys.Open(name)
	if err != nil {
		return nil, "", err
	}
	info, err := f.Stat()
	if err != nil || info.IsDir() {
		_ = f.Close()
		return nil, "", fs.ErrNotExist
	}
	return f, name, nil
}

// cleanName converts a URL path into an fs.FS name. Paths with ".."
// segments are rejected outright.
func cleanName(urlPath string) (string, bool) {
	for _, seg := range strings.Split(urlPath, "/") {
		if seg == ".." {
			return "", false
		}
	}
	if strings.Contains(urlPath, "\\") || strings.ContainsRune(urlPath, 0) {
		return "", false
	}

	name := strings.TrimPrefix(path.Clean("/"+urlPath), "/")
	if name == "" {
		name = "."
	}
	if !fs.ValidPath(name) {
		return "", false
	}
	return name, true
}

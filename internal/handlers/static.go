package handlers

import (
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/formgate/internal/middleware"
)

// StaticHandler serves files from the public directory. Hidden paths (the allowlist
// file, dotfiles) answer 404 as if they did not exist.
type StaticHandler struct {
	root   string
	hidden map[string]struct{}
	files  http.Handler
}

// NewStaticHandler serves root. hidden lists absolute or root-relative file paths that
// must never be served.
func NewStaticHandler(root string, hidden ...string) *StaticHandler {
	root = filepath.Clean(root)
	h := &StaticHandler{
		root:   root,
		hidden: make(map[string]struct{}, len(hidden)),
		files:  http.FileServer(http.Dir(root)),
	}

	for _, p := range hidden {
		if p == "" {
			continue
		}
		abs := p
		if !filepath.IsAbs(abs) {
			abs = filepath.Join(root, p)
		}
		rel, err := filepath.Rel(root, filepath.Clean(abs))
		if err != nil || strings.HasPrefix(rel, "..") {
			// outside the public directory, never reachable
			continue
		}
		h.hidden[strings.ToLower(filepath.ToSlash(rel))] = struct{}{}
	}

	return h
}

// Serve is installed as the router's NoRoute handler.
func (h *StaticHandler) Serve(c *gin.Context) {
	if c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead {
		middleware.NotFoundHandler(c)
		return
	}

	clean := path.Clean("/" + c.Request.URL.Path)
	rel := strings.TrimPrefix(clean, "/")
	if h.isHidden(rel) {
		middleware.NotFoundHandler(c)
		return
	}

	if rel != "" {
		info, err := os.Stat(filepath.Join(h.root, filepath.FromSlash(rel)))
		if err != nil {
			middleware.NotFoundHandler(c)
			return
		}
		if info.IsDir() {
			if _, err := os.Stat(filepath.Join(h.root, filepath.FromSlash(rel), "index.html")); err != nil {
				middleware.NotFoundHandler(c)
				return
			}
		}
	}

	h.files.ServeHTTP(c.Writer, c.Request)
}

func (h *StaticHandler) isHidden(rel string) bool {
	if _, ok := h.hidden[strings.ToLower(rel)]; ok {
		return true
	}
	for _, segment := range strings.Split(rel, "/") {
		if strings.HasPrefix(segment, ".") {
			return true
		}
	}
	return false
}

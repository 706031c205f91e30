package server

import (
	"io/fs"
	"net/http"
	"os"
	"path"
	"strings"

	"github.com/playperu/fivehints/internal/fivehints"
)

// handleSPA serves the built web client. Paths that are not files fall
// back to index.html so client routes like /c/{code} and /play deep-link.
// Hashed build assets under /assets/ are cached for a year, the shell never.
func handleSPA(dir string) http.HandlerFunc {
	root := os.DirFS(dir)
	files := http.FileServerFS(root)

	return func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/api/") {
			writeError(w, http.StatusNotFound, fivehints.CodeNotFound, "no such endpoint")
			return
		}

		name := strings.TrimPrefix(path.Clean("/"+r.URL.Path), "/")
		if name != "" && name != "index.html" {
			if info, err := fs.Stat(root, name); err == nil && !info.IsDir() {
				if strings.HasPrefix(name, "assets/") {
					w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
				}
				files.ServeHTTP(w, r)
				return
			}
		}

		w.Header().Set("Cache-Control", "no-cache")
		http.ServeFileFS(w, r, root, "index.html")
	}
}

package httpapi

import (
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
)

// FilesHandler serves GET /api/files?path=... (spec §6), a binary download
// restricted to the agent's workspace root — the same escape check
// internal/skills/builtin uses for read_file/write_file, duplicated here
// because this package cannot import an unexported helper from an
// unrelated package.
type FilesHandler struct {
	Workspace string
}

// RegisterFiles mounts the files endpoint onto r.
func RegisterFiles(r chi.Router, h *FilesHandler) {
	r.Get("/api/files", h.ServeHTTP)
}

func (h *FilesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rel := r.URL.Query().Get("path")
	if rel == "" {
		http.Error(w, "missing path query parameter", http.StatusBadRequest)
		return
	}

	resolved, err := resolveInWorkspace(h.Workspace, rel)
	if err != nil {
		http.Error(w, err.Error(), http.StatusForbidden)
		return
	}

	f, err := http.Dir(h.Workspace).Open(relTo(h.Workspace, resolved))
	if err != nil {
		http.NotFound(w, r)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil || info.IsDir() {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Disposition", "attachment; filename=\""+filepath.Base(resolved)+"\"")
	http.ServeContent(w, r, filepath.Base(resolved), info.ModTime(), f)
}

// resolveInWorkspace joins rel onto workspace and rejects ".." traversal
// that would escape it, mirroring internal/skills/builtin's path guard.
func resolveInWorkspace(workspace, rel string) (string, error) {
	clean := filepath.Clean(filepath.Join(workspace, rel))
	absWorkspace, err := filepath.Abs(workspace)
	if err != nil {
		return "", err
	}
	absClean, err := filepath.Abs(clean)
	if err != nil {
		return "", err
	}
	if absClean != absWorkspace && !strings.HasPrefix(absClean, absWorkspace+string(filepath.Separator)) {
		return "", errEscape(rel)
	}
	return absClean, nil
}

func relTo(base, abs string) string {
	r, err := filepath.Rel(base, abs)
	if err != nil {
		slog.Warn("httpapi: files rel failed", "base", base, "abs", abs, "error", err)
		return abs
	}
	return string(filepath.Separator) + r
}

type errEscape string

func (e errEscape) Error() string { return "path " + string(e) + " escapes workspace" }

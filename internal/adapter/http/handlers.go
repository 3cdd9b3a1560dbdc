package http

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/haldis/agentrelay/internal/adapter/ristretto"
	"github.com/haldis/agentrelay/internal/domain"
	"github.com/haldis/agentrelay/internal/service"
)

// Handlers exposes the read-only REST control surface: health, session
// listing and file downloads. All mutation goes through the websocket.
type Handlers struct {
	Registry *service.Registry
	Cache    *ristretto.Cache
	CacheTTL time.Duration
	Version  string
	Provider string
}

// MountRoutes registers all REST routes on the router.
func (h *Handlers) MountRoutes(r chi.Router) {
	r.Get("/health", h.handleHealth)
	r.Get("/sessions", h.handleListSessions)
	r.Get("/sessions/{sessionID}/files", h.handleSessionFiles)
	r.Get("/sessions/{sessionID}/files/content", h.handleFileContent)
}

func (h *Handlers) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":          "ok",
		"agent_version":   h.Version,
		"api_provider":    h.Provider,
		"active_sessions": h.Registry.Count(),
	})
}

func (h *Handlers) handleListSessions(w http.ResponseWriter, _ *http.Request) {
	sessions := h.Registry.List()
	writeJSON(w, http.StatusOK, map[string]any{
		"sessions": sessions,
		"count":    len(sessions),
	})
}

func (h *Handlers) handleSessionFiles(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.Registry.Get(chi.URLParam(r, "sessionID"))
	if !ok {
		writeError(w, http.StatusNotFound, domain.ErrSessionNotFound.Error())
		return
	}

	files := sess.Ledger.CreatedFiles()
	writeJSON(w, http.StatusOK, map[string]any{
		"files": files,
		"count": len(files),
	})
}

// handleFileContent serves the content of one session file. Only files the
// ledger reported as created are downloadable; arbitrary paths inside the
// output directory are not reachable through this endpoint.
func (h *Handlers) handleFileContent(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	sess, ok := h.Registry.Get(sessionID)
	if !ok {
		writeError(w, http.StatusNotFound, domain.ErrSessionNotFound.Error())
		return
	}

	rel := r.URL.Query().Get("path")
	if rel == "" {
		writeError(w, http.StatusBadRequest, "path query parameter is required")
		return
	}

	var absPath, name string
	for _, f := range sess.Ledger.CreatedFiles() {
		if f.RelPath == rel {
			absPath = f.Path
			name = f.Name
			break
		}
	}
	if absPath == "" {
		writeError(w, http.StatusNotFound, "file not found")
		return
	}

	cacheKey := sessionID + ":" + rel
	data, hit := h.Cache.Get(cacheKey)
	if !hit {
		var err error
		data, err = os.ReadFile(absPath) //nolint:gosec // G304: path comes from the session's ledger
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to read file")
			return
		}
		h.Cache.Set(cacheKey, data, h.CacheTTL)
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

package library

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"stereo-media-server/internal/vfs"
)

// placeholderIcon is served when a thumbnail source cannot be decoded,
// so one unreadable item never blocks browsing the rest.
const placeholderIcon = `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 24 24" width="64" height="64"><path fill="#888888" d="M3 2h12l6 6v14H3V2zm11 1.5V9h5.5L14 3.5zM7.5 12l2.5 2.5L7.5 17l1.5 1.5 2.5-2.5 2.5 2.5 1.5-1.5-2.5-2.5 2.5-2.5-1.5-1.5-2.5 2.5-2.5-2.5L7.5 12z"/></svg>`

// Handler exposes the media library HTTP endpoints using go-chi.
type Handler struct {
	svc *Service
	log *slog.Logger
}

// NewHandler returns a Handler that uses the given Service and Logger.
func NewHandler(svc *Service, log *slog.Logger) *Handler {
	return &Handler{svc: svc, log: log}
}

// List handles GET /api/list?path=.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	vpath := r.URL.Query().Get("path")
	if vpath == "" {
		vpath = "/"
	}

	entries, err := h.svc.List(r.Context(), vpath)
	if err != nil {
		h.writeError(w, err, "list")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(entries); err != nil {
		h.log.Debug("encoding listing failed", slog.String("error", err.Error()))
	}
}

// Media handles GET /api/media?path=, serving raw bytes of a plain
// file or archive member.
func (h *Handler) Media(w http.ResponseWriter, r *http.Request) {
	vpath := r.URL.Query().Get("path")
	if vpath == "" {
		http.Error(w, "missing path", http.StatusBadRequest)
		return
	}

	content, err := h.svc.Media(r.Context(), vpath)
	if err != nil {
		h.writeError(w, err, "media")
		return
	}

	if content.Data != nil {
		w.Header().Set("Content-Type", content.ContentType)
		w.Write(content.Data)
		return
	}
	http.ServeFile(w, r, content.Path)
}

// Thumbnail handles GET /api/thumbnail?path=. A request presenting a
// validation token matching the current computed value short-circuits
// to 304 before any cache lookup or decode work.
func (h *Handler) Thumbnail(w http.ResponseWriter, r *http.Request) {
	vpath := r.URL.Query().Get("path")
	if vpath == "" {
		http.Error(w, "missing path", http.StatusBadRequest)
		return
	}

	token := h.svc.ThumbnailToken(vpath)
	if r.Header.Get("If-None-Match") == token {
		w.Header().Set("ETag", token)
		w.WriteHeader(http.StatusNotModified)
		return
	}

	data, err := h.svc.Thumbnail(r.Context(), vpath, token)
	if err != nil {
		h.writeError(w, err, "thumbnail")
		return
	}
	if data == nil {
		w.Header().Set("Content-Type", "image/svg+xml")
		w.Header().Set("Cache-Control", "no-cache")
		w.Write([]byte(placeholderIcon))
		return
	}

	w.Header().Set("Content-Type", "image/webp")
	w.Header().Set("ETag", token)
	w.Header().Set("Cache-Control", "no-cache")
	w.Write(data)
}

// Subtitles handles GET /api/subtitles?path=.
func (h *Handler) Subtitles(w http.ResponseWriter, r *http.Request) {
	vpath := r.URL.Query().Get("path")
	if vpath == "" {
		http.Error(w, "missing path", http.StatusBadRequest)
		return
	}

	token := h.svc.SubtitleToken(vpath)
	if r.Header.Get("If-None-Match") == token {
		w.Header().Set("ETag", token)
		w.WriteHeader(http.StatusNotModified)
		return
	}

	tracks, err := h.svc.Subtitles(r.Context(), vpath, token)
	if err != nil {
		h.writeError(w, err, "subtitles")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("ETag", token)
	w.Header().Set("Cache-Control", "no-cache")
	if err := json.NewEncoder(w).Encode(tracks); err != nil {
		h.log.Debug("encoding subtitles failed", slog.String("error", err.Error()))
	}
}

// ClearCache handles POST /api/cache/clear.
func (h *Handler) ClearCache(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.ClearCache(); err != nil {
		h.log.Error("cache clear failed", slog.String("error", err.Error()))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	h.log.Info("cache cleared")
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok","message":"Cache cleared"}`))
}

// Health handles GET /healthz.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

// writeError maps the error taxonomy to status codes. Internal
// failures are logged with detail server-side and surfaced as a
// generic message without filesystem paths.
func (h *Handler) writeError(w http.ResponseWriter, err error, op string) {
	switch {
	case errors.Is(err, vfs.ErrAccessDenied):
		http.Error(w, "access denied", http.StatusForbidden)
	case errors.Is(err, vfs.ErrNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	default:
		h.log.Error(op+" failed", slog.String("error", err.Error()))
		http.Error(w, "internal server error", http.StatusInternalServerError)
	}
}

package api

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/tendant/simple-posts/pkg/simpleposts"
)

// MediaHandler serves stored profile images for backends without public URLs
type MediaHandler struct {
	store simpleposts.BlobDownloader
}

// NewMediaHandler creates a new media handler
func NewMediaHandler(store simpleposts.BlobDownloader) *MediaHandler {
	return &MediaHandler{store: store}
}

// Routes returns the routes for media
func (h *MediaHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/images/{publicID}", h.Image)

	return r
}

// Image streams one stored image
func (h *MediaHandler) Image(w http.ResponseWriter, r *http.Request) {
	key := simpleposts.ImageKeyPrefix + chi.URLParam(r, "publicID")

	reader, contentType, err := h.store.Download(r.Context(), key)
	if err != nil {
		writeError(w, r, http.StatusNotFound, "not_found", "image not found", nil)
		return
	}
	defer reader.Close()

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "public, max-age=86400")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, reader); err != nil {
		slog.Warn("Failed to stream image", "key", key, "error", err)
	}
}

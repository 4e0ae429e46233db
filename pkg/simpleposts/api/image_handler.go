package api

import (
	"bufio"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/tendant/simple-posts/pkg/simpleposts"
)

// MaxImageBytes bounds a single image upload
const MaxImageBytes = 10 << 20

// ImageHandler handles profile image uploads
type ImageHandler struct {
	users simpleposts.UserService
}

// NewImageHandler creates a new image handler
func NewImageHandler(users simpleposts.UserService) *ImageHandler {
	return &ImageHandler{users: users}
}

// Routes returns the routes for images
func (h *ImageHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/", h.Upload)
	r.Delete("/{publicID}", h.Remove)

	return r
}

// Upload stores the multipart "image" field and attaches it to the caller's profile
func (h *ImageHandler) Upload(w http.ResponseWriter, r *http.Request) {
	creds := credentialsFromRequest(r)
	if creds.Anonymous() {
		writeServiceError(w, r, simpleposts.ErrUnauthenticated)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, MaxImageBytes+(1<<20))
	file, header, err := r.FormFile("image")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, r, http.StatusRequestEntityTooLarge, "too_large", "image is too large", nil)
			return
		}
		writeError(w, r, http.StatusBadRequest, "invalid_input", "multipart field 'image' is required", map[string]string{"field": "image"})
		return
	}
	defer file.Close()

	// unlabelled parts are sniffed
	reader := bufio.NewReader(file)
	contentType := header.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		head, _ := reader.Peek(512)
		contentType = http.DetectContentType(head)
	}

	image, err := h.users.UploadImage(r.Context(), simpleposts.UploadImageRequest{
		Credentials: creds,
		FileName:    header.Filename,
		ContentType: contentType,
		Reader:      reader,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, image)
}

// Remove deletes an image from the caller's profile and from storage
func (h *ImageHandler) Remove(w http.ResponseWriter, r *http.Request) {
	err := h.users.RemoveImage(r.Context(), simpleposts.RemoveImageRequest{
		Credentials: credentialsFromRequest(r),
		PublicID:    chi.URLParam(r, "publicID"),
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

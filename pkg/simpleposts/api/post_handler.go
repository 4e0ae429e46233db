package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"
	"github.com/tendant/simple-posts/pkg/simpleposts"
)

const maxPostBodyBytes = 64 << 10

// PostRequest is the request body for creating or updating a post
type PostRequest struct {
	Content string `json:"content"`
}

// PostHandler handles HTTP requests for posts
type PostHandler struct {
	service simpleposts.Service
}

// NewPostHandler creates a new post handler
func NewPostHandler(service simpleposts.Service) *PostHandler {
	return &PostHandler{service: service}
}

// Routes returns the routes for posts
func (h *PostHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/", h.CreatePost)
	r.Get("/", h.ListPosts)
	r.Get("/mine", h.ListMyPosts)
	r.Get("/count", h.CountPosts)
	r.Get("/search", h.SearchPosts)

	r.Get("/{id}", h.GetPost)
	r.Put("/{id}", h.UpdatePost)
	r.Delete("/{id}", h.DeletePost)

	return r
}

// CreatePost creates a post owned by the caller
func (h *PostHandler) CreatePost(w http.ResponseWriter, r *http.Request) {
	req, ok := decodePostRequest(w, r)
	if !ok {
		return
	}

	post, err := h.service.CreatePost(r.Context(), simpleposts.CreatePostRequest{
		Credentials: credentialsFromRequest(r),
		Content:     req.Content,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, toPostResponse(post))
}

// ListPosts returns one page of posts, newest first
func (h *PostHandler) ListPosts(w http.ResponseWriter, r *http.Request) {
	page := 1
	if raw := r.URL.Query().Get("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "invalid_input", "page must be an integer", map[string]string{"field": "page"})
			return
		}
		page = n
	}

	posts, err := h.service.ListPosts(r.Context(), simpleposts.ListPostsRequest{Page: page})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	render.JSON(w, r, toPostResponses(posts))
}

// ListMyPosts returns every post owned by the caller
func (h *PostHandler) ListMyPosts(w http.ResponseWriter, r *http.Request) {
	posts, err := h.service.ListPostsByUser(r.Context(), simpleposts.ListPostsByUserRequest{
		Credentials: credentialsFromRequest(r),
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	render.JSON(w, r, toPostResponses(posts))
}

// CountPosts returns the approximate number of posts
func (h *PostHandler) CountPosts(w http.ResponseWriter, r *http.Request) {
	n, err := h.service.CountPosts(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	render.JSON(w, r, CountResponse{Total: n})
}

// SearchPosts runs a full-text search over post content
func (h *PostHandler) SearchPosts(w http.ResponseWriter, r *http.Request) {
	posts, err := h.service.SearchPosts(r.Context(), simpleposts.SearchPostsRequest{
		Query: r.URL.Query().Get("q"),
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	render.JSON(w, r, toPostResponses(posts))
}

// GetPost returns a single post
func (h *PostHandler) GetPost(w http.ResponseWriter, r *http.Request) {
	id, ok := postIDParam(w, r)
	if !ok {
		return
	}

	post, err := h.service.GetPost(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	render.JSON(w, r, toPostResponse(post))
}

// UpdatePost replaces the content of a post owned by the caller
func (h *PostHandler) UpdatePost(w http.ResponseWriter, r *http.Request) {
	id, ok := postIDParam(w, r)
	if !ok {
		return
	}
	req, ok := decodePostRequest(w, r)
	if !ok {
		return
	}

	post, err := h.service.UpdatePost(r.Context(), simpleposts.UpdatePostRequest{
		Credentials: credentialsFromRequest(r),
		ID:          id,
		Content:     req.Content,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	render.JSON(w, r, toPostResponse(post))
}

// DeletePost removes a post owned by the caller and returns it
func (h *PostHandler) DeletePost(w http.ResponseWriter, r *http.Request) {
	id, ok := postIDParam(w, r)
	if !ok {
		return
	}

	post, err := h.service.DeletePost(r.Context(), simpleposts.DeletePostRequest{
		Credentials: credentialsFromRequest(r),
		ID:          id,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	render.JSON(w, r, toPostResponse(post))
}

// postIDParam parses the {id} route parameter. An id that cannot name a
// post is reported as not found.
func postIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, http.StatusNotFound, "not_found", "post not found", nil)
		return uuid.Nil, false
	}
	return id, true
}

func decodePostRequest(w http.ResponseWriter, r *http.Request) (PostRequest, bool) {
	var req PostRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxPostBodyBytes)).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_json", "request body must be a JSON object", nil)
		return req, false
	}
	return req, true
}

package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/tendant/simple-posts/pkg/simpleposts"
)

// UpdateProfileRequest is the request body for changing the caller's profile.
// Omitted fields are left unchanged.
type UpdateProfileRequest struct {
	Username *string `json:"username,omitempty"`
	Name     *string `json:"name,omitempty"`
	About    *string `json:"about,omitempty"`
}

// UserHandler handles HTTP requests for user profiles
type UserHandler struct {
	users simpleposts.UserService
}

// NewUserHandler creates a new user handler
func NewUserHandler(users simpleposts.UserService) *UserHandler {
	return &UserHandler{users: users}
}

// Routes returns the routes for users
func (h *UserHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/", h.Register)
	r.Get("/", h.ListUsers)
	r.Get("/me", h.Me)
	r.Put("/me", h.UpdateMe)
	r.Get("/{username}", h.GetUser)

	return r
}

// Register creates the caller's user record. Repeated calls return the
// existing record.
func (h *UserHandler) Register(w http.ResponseWriter, r *http.Request) {
	user, err := h.users.RegisterUser(r.Context(), credentialsFromRequest(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, toUserResponse(user, true))
}

// ListUsers returns every public profile
func (h *UserHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.users.ListUsers(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	resp := make([]UserResponse, 0, len(users))
	for _, u := range users {
		resp = append(resp, toUserResponse(u, false))
	}
	render.JSON(w, r, resp)
}

// Me returns the caller's own profile
func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, err := h.users.Profile(r.Context(), credentialsFromRequest(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	render.JSON(w, r, toUserResponse(user, true))
}

// UpdateMe changes the caller's profile
func (h *UserHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	var req UpdateProfileRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxPostBodyBytes)).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_json", "request body must be a JSON object", nil)
		return
	}

	user, err := h.users.UpdateProfile(r.Context(), simpleposts.UpdateProfileRequest{
		Credentials: credentialsFromRequest(r),
		Username:    req.Username,
		Name:        req.Name,
		About:       req.About,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	render.JSON(w, r, toUserResponse(user, true))
}

// GetUser returns the public profile for a username
func (h *UserHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.users.PublicProfile(r.Context(), chi.URLParam(r, "username"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	render.JSON(w, r, toUserResponse(user, false))
}

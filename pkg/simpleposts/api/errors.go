package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/render"
	"github.com/tendant/simple-posts/pkg/simpleposts"
)

// ErrorResponse is the body of every non-2xx response
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// ErrorBody describes a failed request
type ErrorBody struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string, details interface{}) {
	render.Status(r, status)
	render.JSON(w, r, ErrorResponse{
		Error: ErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	})
}

// writeServiceError maps service errors onto HTTP status codes. Messages for
// authentication and ownership failures are fixed strings so that nothing
// about the record's owner reaches the caller.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *simpleposts.ValidationError
	switch {
	case errors.Is(err, simpleposts.ErrUnauthenticated):
		writeError(w, r, http.StatusUnauthorized, "unauthenticated", "valid credentials are required", nil)
	case errors.Is(err, simpleposts.ErrUnauthorized):
		writeError(w, r, http.StatusForbidden, "forbidden", "you are not allowed to modify this resource", nil)
	case errors.Is(err, simpleposts.ErrPostNotFound):
		writeError(w, r, http.StatusNotFound, "not_found", "post not found", nil)
	case errors.Is(err, simpleposts.ErrUserNotFound):
		writeError(w, r, http.StatusNotFound, "not_found", "user not found", nil)
	case errors.Is(err, simpleposts.ErrImageNotFound):
		writeError(w, r, http.StatusNotFound, "not_found", "image not found", nil)
	case errors.As(err, &verr):
		writeError(w, r, http.StatusBadRequest, "invalid_input", verr.Message, map[string]string{"field": verr.Field})
	case errors.Is(err, simpleposts.ErrStoreUnavailable):
		slog.Error("Store unavailable", "method", r.Method, "path", r.URL.Path, "error", err)
		writeError(w, r, http.StatusServiceUnavailable, "store_unavailable", "the service is temporarily unavailable", nil)
	case errors.Is(err, simpleposts.ErrImageStorageDisabled):
		writeError(w, r, http.StatusNotImplemented, "not_implemented", "image storage is not configured", nil)
	default:
		slog.Error("Request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeError(w, r, http.StatusInternalServerError, "internal_error", "internal server error", nil)
	}
}

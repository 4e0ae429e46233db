package api

import (
	"net/http"
	"time"

	"github.com/go-chi/jwtauth"
	"github.com/tendant/simple-posts/pkg/simpleposts"
)

// OwnerResponse is the author embedded in a post
type OwnerResponse struct {
	ID       string `json:"id,omitempty"`
	Username string `json:"username"`
}

// PostResponse is the response body for a post
type PostResponse struct {
	ID        string         `json:"id"`
	Content   string         `json:"content"`
	Owner     *OwnerResponse `json:"owner,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// CountResponse is the response body for the approximate post count
type CountResponse struct {
	Total int64 `json:"total"`
}

// UserResponse is the response body for a user profile
type UserResponse struct {
	ID        string              `json:"id"`
	Username  string              `json:"username"`
	Email     string              `json:"email,omitempty"`
	Name      string              `json:"name,omitempty"`
	About     string              `json:"about,omitempty"`
	Images    []simpleposts.Image `json:"images"`
	CreatedAt time.Time           `json:"created_at"`
}

// EventMessage is one frame on a subscription stream
type EventMessage struct {
	Topic string       `json:"topic"`
	Post  PostResponse `json:"post"`
}

func toPostResponse(p *simpleposts.Post) PostResponse {
	resp := PostResponse{
		ID:        p.ID.String(),
		Content:   p.Content,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
	if p.Owner != nil {
		resp.Owner = &OwnerResponse{ID: p.Owner.ID, Username: p.Owner.Username}
	}
	return resp
}

func toPostResponses(posts []*simpleposts.Post) []PostResponse {
	resp := make([]PostResponse, 0, len(posts))
	for _, p := range posts {
		resp = append(resp, toPostResponse(p))
	}
	return resp
}

// toUserResponse renders a profile. The email is only included for the
// profile's own user.
func toUserResponse(u *simpleposts.User, self bool) UserResponse {
	resp := UserResponse{
		ID:        u.ID.String(),
		Username:  u.Username,
		Name:      u.Name,
		About:     u.About,
		Images:    u.Images,
		CreatedAt: u.CreatedAt,
	}
	if resp.Images == nil {
		resp.Images = []simpleposts.Image{}
	}
	if self {
		resp.Email = u.Email
	}
	return resp
}

// credentialsFromRequest reads the bearer token from the Authorization header.
func credentialsFromRequest(r *http.Request) simpleposts.Credentials {
	return simpleposts.Credentials{Token: jwtauth.TokenFromHeader(r)}
}

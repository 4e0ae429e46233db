package simpleposts

import (
	"io"

	"github.com/google/uuid"
)

// CreatePostRequest contains parameters for creating a post
type CreatePostRequest struct {
	Credentials Credentials
	Content     string
}

// ListPostsRequest contains parameters for listing posts. Pages start at 1;
// zero or negative pages are treated as the first page.
type ListPostsRequest struct {
	Page int
}

// ListPostsByUserRequest contains parameters for listing the caller's posts
type ListPostsByUserRequest struct {
	Credentials Credentials
}

// UpdatePostRequest contains parameters for updating a post
type UpdatePostRequest struct {
	Credentials Credentials
	ID          uuid.UUID
	Content     string
}

// DeletePostRequest contains parameters for deleting a post
type DeletePostRequest struct {
	Credentials Credentials
	ID          uuid.UUID
}

// SearchPostsRequest contains parameters for full-text search
type SearchPostsRequest struct {
	Query string
}

// UpdateProfileRequest contains profile fields to change. Nil fields are left untouched.
type UpdateProfileRequest struct {
	Credentials Credentials
	Username    *string
	Name        *string
	About       *string
	Images      []Image
}

// UploadImageRequest contains parameters for uploading a profile image
type UploadImageRequest struct {
	Credentials Credentials
	FileName    string
	ContentType string
	Reader      io.Reader
}

// RemoveImageRequest contains parameters for removing a profile image
type RemoveImageRequest struct {
	Credentials Credentials
	PublicID    string
}

package simpleposts

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"
)

// Repository defines the interface for post and user persistence
type Repository interface {
	// Post operations
	CreatePost(ctx context.Context, post *Post) error
	GetPost(ctx context.Context, id uuid.UUID, projection OwnerProjection) (*Post, error)
	ListPosts(ctx context.Context, params ListPostsParams) ([]*Post, error)
	ListPostsByOwner(ctx context.Context, ownerID uuid.UUID, projection OwnerProjection) ([]*Post, error)

	// UpdatePost rewrites content only when the row matches both id and
	// owner, returning ErrPostNotFound otherwise.
	UpdatePost(ctx context.Context, id, ownerID uuid.UUID, content string, updatedAt time.Time) (*Post, error)

	// DeletePost removes the row only when it matches both id and owner and
	// returns its last state, or ErrPostNotFound.
	DeletePost(ctx context.Context, id, ownerID uuid.UUID) (*Post, error)

	// EstimatedPostCount is allowed to lag concurrent writes.
	EstimatedPostCount(ctx context.Context) (int64, error)
	SearchPosts(ctx context.Context, query SearchQuery, projection OwnerProjection) ([]*Post, error)

	// User operations
	CreateUser(ctx context.Context, user *User) error
	GetUser(ctx context.Context, id uuid.UUID) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	GetUserByUsername(ctx context.Context, username string) (*User, error)
	UpdateUser(ctx context.Context, user *User) error
	ListUsers(ctx context.Context) ([]*User, error)
}

// IdentityResolver turns presented credentials into an authenticated principal
type IdentityResolver interface {
	// Resolve returns ErrUnauthenticated for missing or invalid credentials
	Resolve(ctx context.Context, creds Credentials) (*Principal, error)
}

// EventSink defines the interface for post lifecycle notifications
type EventSink interface {
	// PostAdded is fired after a post was created
	PostAdded(ctx context.Context, post *Post) error

	// PostUpdated is fired after a post was updated
	PostUpdated(ctx context.Context, post *Post) error

	// PostDeleted is fired after a post was deleted
	PostDeleted(ctx context.Context, post *Post) error
}

// BlobStore defines the interface for image storage backends
type BlobStore interface {
	// Upload stores the object under key
	Upload(ctx context.Context, key string, reader io.Reader, contentType string) error

	// Delete removes the object under key
	Delete(ctx context.Context, key string) error

	// URL returns a URL that serves the object
	URL(ctx context.Context, key string) (string, error)
}

// BlobDownloader is implemented by backends that can stream objects back
// through the HTTP server instead of handing out their own URLs.
type BlobDownloader interface {
	Download(ctx context.Context, key string) (io.ReadCloser, string, error)
}

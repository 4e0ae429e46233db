package simpleposts

import (
	"context"

	"github.com/google/uuid"
)

// Service defines the post lifecycle operations
type Service interface {
	// Post operations
	CreatePost(ctx context.Context, req CreatePostRequest) (*Post, error)
	ListPosts(ctx context.Context, req ListPostsRequest) ([]*Post, error)
	ListPostsByUser(ctx context.Context, req ListPostsByUserRequest) ([]*Post, error)
	GetPost(ctx context.Context, id uuid.UUID) (*Post, error)
	UpdatePost(ctx context.Context, req UpdatePostRequest) (*Post, error)
	DeletePost(ctx context.Context, req DeletePostRequest) (*Post, error)
	CountPosts(ctx context.Context) (int64, error)
	SearchPosts(ctx context.Context, req SearchPostsRequest) ([]*Post, error)

	// Change notifications
	Subscribe(topic Topic) (*Subscription, error)
	Unsubscribe(sub *Subscription)
}

// UserService defines registration, profile and profile image operations
type UserService interface {
	RegisterUser(ctx context.Context, creds Credentials) (*User, error)
	Profile(ctx context.Context, creds Credentials) (*User, error)
	PublicProfile(ctx context.Context, username string) (*User, error)
	ListUsers(ctx context.Context) ([]*User, error)
	UpdateProfile(ctx context.Context, req UpdateProfileRequest) (*User, error)

	// Profile images
	UploadImage(ctx context.Context, req UploadImageRequest) (*Image, error)
	RemoveImage(ctx context.Context, req RemoveImageRequest) error
}

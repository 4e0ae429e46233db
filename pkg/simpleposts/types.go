package simpleposts

import (
	"time"

	"github.com/google/uuid"
)

// DefaultPageSize is the number of posts returned per page by ListPosts.
const DefaultPageSize = 6

// Topic names a stream of post change events.
type Topic string

// Event topics (typed).
const (
	TopicPostAdded   Topic = "PostAdded"
	TopicPostUpdated Topic = "PostUpdated"
	TopicPostDeleted Topic = "PostDeleted"
)

// Topics returns every topic a subscriber may listen on.
func Topics() []Topic {
	return []Topic{TopicPostAdded, TopicPostUpdated, TopicPostDeleted}
}

// IsValid reports whether t is a known topic.
func (t Topic) IsValid() bool {
	switch t {
	case TopicPostAdded, TopicPostUpdated, TopicPostDeleted:
		return true
	}
	return false
}

// OwnerProjection controls how much of the owner a read populates.
type OwnerProjection int

const (
	// OwnerNone leaves Post.Owner nil.
	OwnerNone OwnerProjection = iota
	// OwnerFull populates both id and username.
	OwnerFull
	// OwnerUsername populates the username only.
	OwnerUsername
)

// Post is a short text record bound to a single owner.
type Post struct {
	ID        uuid.UUID `json:"id"`
	Content   string    `json:"content"`
	OwnerID   uuid.UUID `json:"-"`
	Owner     *Owner    `json:"owner,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Owner is the projection of a user embedded in a post.
type Owner struct {
	ID       string `json:"id,omitempty"`
	Username string `json:"username"`
}

// Clone returns a deep copy of the post.
func (p *Post) Clone() *Post {
	if p == nil {
		return nil
	}
	c := *p
	if p.Owner != nil {
		o := *p.Owner
		c.Owner = &o
	}
	return &c
}

// Project populates Owner from u according to projection.
func (p *Post) Project(u *User, projection OwnerProjection) {
	if u == nil {
		p.Owner = nil
		return
	}
	switch projection {
	case OwnerFull:
		p.Owner = &Owner{ID: u.ID.String(), Username: u.Username}
	case OwnerUsername:
		p.Owner = &Owner{Username: u.Username}
	default:
		p.Owner = nil
	}
}

// Image is a reference to an uploaded image.
type Image struct {
	URL      string `json:"url"`
	PublicID string `json:"public_id"`
}

// User is a registered author. The post core only reads users; the
// registration and profile operations live on UserService.
type User struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	Username  string    `json:"username"`
	Name      string    `json:"name,omitempty"`
	About     string    `json:"about,omitempty"`
	Images    []Image   `json:"images"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Clone returns a deep copy of the user.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	c.Images = append([]Image(nil), u.Images...)
	return &c
}

// Credentials are the opaque values a caller presents to prove identity.
type Credentials struct {
	Token string
}

// Anonymous reports whether no credentials were presented.
func (c Credentials) Anonymous() bool {
	return c.Token == ""
}

// Principal is an authenticated identity as reported by an IdentityResolver.
type Principal struct {
	Subject string
	Email   string
}

// ListPostsParams drives repository listing.
type ListPostsParams struct {
	Offset int
	// Limit of zero means no limit.
	Limit int
	Owner OwnerProjection
}

package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/simple-posts/pkg/simpleposts"
)

type postRecord struct {
	post *simpleposts.Post
	seq  uint64
}

// Repository implements simpleposts.Repository using in-memory storage
type Repository struct {
	mu              sync.RWMutex
	posts           map[uuid.UUID]*postRecord
	users           map[uuid.UUID]*simpleposts.User
	usersByEmail    map[string]uuid.UUID
	usersByUsername map[string]uuid.UUID
	seq             uint64

	// postCount is read without taking mu.
	postCount atomic.Int64
}

// New creates a new in-memory repository
func New() simpleposts.Repository {
	return &Repository{
		posts:           make(map[uuid.UUID]*postRecord),
		users:           make(map[uuid.UUID]*simpleposts.User),
		usersByEmail:    make(map[string]uuid.UUID),
		usersByUsername: make(map[string]uuid.UUID),
	}
}

// Post operations

func (r *Repository) CreatePost(ctx context.Context, post *simpleposts.Post) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.users[post.OwnerID]; !exists {
		return simpleposts.ErrUserNotFound
	}

	r.seq++
	postCopy := *post
	postCopy.Owner = nil
	r.posts[post.ID] = &postRecord{post: &postCopy, seq: r.seq}
	r.postCount.Add(1)

	return nil
}

func (r *Repository) GetPost(ctx context.Context, id uuid.UUID, projection simpleposts.OwnerProjection) (*simpleposts.Post, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, exists := r.posts[id]
	if !exists {
		return nil, simpleposts.ErrPostNotFound
	}
	return r.project(rec.post, projection), nil
}

func (r *Repository) ListPosts(ctx context.Context, params simpleposts.ListPostsParams) ([]*simpleposts.Post, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	records := make([]*postRecord, 0, len(r.posts))
	for _, rec := range r.posts {
		records = append(records, rec)
	}
	sortNewestFirst(records)

	return r.page(records, params.Offset, params.Limit, params.Owner), nil
}

func (r *Repository) ListPostsByOwner(ctx context.Context, ownerID uuid.UUID, projection simpleposts.OwnerProjection) ([]*simpleposts.Post, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var records []*postRecord
	for _, rec := range r.posts {
		if rec.post.OwnerID == ownerID {
			records = append(records, rec)
		}
	}
	sortNewestFirst(records)

	return r.page(records, 0, 0, projection), nil
}

func (r *Repository) UpdatePost(ctx context.Context, id, ownerID uuid.UUID, content string, updatedAt time.Time) (*simpleposts.Post, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, exists := r.posts[id]
	if !exists || rec.post.OwnerID != ownerID {
		return nil, simpleposts.ErrPostNotFound
	}

	// updated_at never moves backwards, whatever clock the caller used
	if !updatedAt.After(rec.post.UpdatedAt) {
		updatedAt = rec.post.UpdatedAt.Add(time.Microsecond)
	}
	rec.post.Content = content
	rec.post.UpdatedAt = updatedAt
	return rec.post.Clone(), nil
}

func (r *Repository) DeletePost(ctx context.Context, id, ownerID uuid.UUID) (*simpleposts.Post, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, exists := r.posts[id]
	if !exists || rec.post.OwnerID != ownerID {
		return nil, simpleposts.ErrPostNotFound
	}

	delete(r.posts, id)
	r.postCount.Add(-1)
	return rec.post.Clone(), nil
}

func (r *Repository) EstimatedPostCount(ctx context.Context) (int64, error) {
	return r.postCount.Load(), nil
}

func (r *Repository) SearchPosts(ctx context.Context, query simpleposts.SearchQuery, projection simpleposts.OwnerProjection) ([]*simpleposts.Post, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	type hit struct {
		rec   *postRecord
		score int
	}
	var hits []hit
	for _, rec := range r.posts {
		if score, ok := query.Match(rec.post.Content); ok {
			hits = append(hits, hit{rec: rec, score: score})
		}
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}
		return newer(hits[i].rec, hits[j].rec)
	})

	result := make([]*simpleposts.Post, 0, len(hits))
	for _, h := range hits {
		result = append(result, r.project(h.rec.post, projection))
	}
	return result, nil
}

// User operations

func (r *Repository) CreateUser(ctx context.Context, user *simpleposts.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.users[user.ID]; exists {
		return simpleposts.ErrUserExists
	}
	if _, exists := r.usersByEmail[emailKey(user.Email)]; exists {
		return simpleposts.ErrUserExists
	}
	if _, exists := r.usersByUsername[usernameKey(user.Username)]; exists {
		return simpleposts.ErrUserExists
	}

	r.users[user.ID] = user.Clone()
	r.usersByEmail[emailKey(user.Email)] = user.ID
	r.usersByUsername[usernameKey(user.Username)] = user.ID
	return nil
}

func (r *Repository) GetUser(ctx context.Context, id uuid.UUID) (*simpleposts.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, exists := r.users[id]
	if !exists {
		return nil, simpleposts.ErrUserNotFound
	}
	return user.Clone(), nil
}

func (r *Repository) GetUserByEmail(ctx context.Context, email string) (*simpleposts.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, exists := r.usersByEmail[emailKey(email)]
	if !exists {
		return nil, simpleposts.ErrUserNotFound
	}
	return r.users[id].Clone(), nil
}

func (r *Repository) GetUserByUsername(ctx context.Context, username string) (*simpleposts.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, exists := r.usersByUsername[usernameKey(username)]
	if !exists {
		return nil, simpleposts.ErrUserNotFound
	}
	return r.users[id].Clone(), nil
}

func (r *Repository) UpdateUser(ctx context.Context, user *simpleposts.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, exists := r.users[user.ID]
	if !exists {
		return simpleposts.ErrUserNotFound
	}
	if id, taken := r.usersByUsername[usernameKey(user.Username)]; taken && id != user.ID {
		return simpleposts.ErrUserExists
	}
	if id, taken := r.usersByEmail[emailKey(user.Email)]; taken && id != user.ID {
		return simpleposts.ErrUserExists
	}

	delete(r.usersByUsername, usernameKey(current.Username))
	delete(r.usersByEmail, emailKey(current.Email))

	r.users[user.ID] = user.Clone()
	r.usersByEmail[emailKey(user.Email)] = user.ID
	r.usersByUsername[usernameKey(user.Username)] = user.ID
	return nil
}

func (r *Repository) ListUsers(ctx context.Context) ([]*simpleposts.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*simpleposts.User, 0, len(r.users))
	for _, user := range r.users {
		result = append(result, user.Clone())
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Username < result[j].Username
	})
	return result, nil
}

// project returns a copy of post with the owner populated. Callers hold the lock.
func (r *Repository) project(post *simpleposts.Post, projection simpleposts.OwnerProjection) *simpleposts.Post {
	postCopy := post.Clone()
	if projection != simpleposts.OwnerNone {
		postCopy.Project(r.users[post.OwnerID], projection)
	}
	return postCopy
}

func (r *Repository) page(records []*postRecord, offset, limit int, projection simpleposts.OwnerProjection) []*simpleposts.Post {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(records) {
		return []*simpleposts.Post{}
	}
	records = records[offset:]
	if limit > 0 && limit < len(records) {
		records = records[:limit]
	}

	result := make([]*simpleposts.Post, 0, len(records))
	for _, rec := range records {
		result = append(result, r.project(rec.post, projection))
	}
	return result
}

func sortNewestFirst(records []*postRecord) {
	sort.Slice(records, func(i, j int) bool {
		return newer(records[i], records[j])
	})
}

func newer(a, b *postRecord) bool {
	if !a.post.CreatedAt.Equal(b.post.CreatedAt) {
		return a.post.CreatedAt.After(b.post.CreatedAt)
	}
	return a.seq > b.seq
}

func emailKey(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func usernameKey(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

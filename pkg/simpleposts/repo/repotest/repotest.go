// Package repotest holds the behaviour every simpleposts.Repository must
// share. Backends call Run from their own tests.
package repotest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-posts/pkg/simpleposts"
)

// Factory returns an empty repository for a single subtest.
type Factory func(t *testing.T) simpleposts.Repository

// Run exercises repo behaviour shared by all backends.
func Run(t *testing.T, newRepo Factory) {
	t.Run("PostLifecycle", func(t *testing.T) { testPostLifecycle(t, newRepo(t)) })
	t.Run("ListPagination", func(t *testing.T) { testListPagination(t, newRepo(t)) })
	t.Run("ListByOwner", func(t *testing.T) { testListByOwner(t, newRepo(t)) })
	t.Run("OwnerConditionalWrites", func(t *testing.T) { testOwnerConditionalWrites(t, newRepo(t)) })
	t.Run("OwnerProjection", func(t *testing.T) { testOwnerProjection(t, newRepo(t)) })
	t.Run("Search", func(t *testing.T) { testSearch(t, newRepo(t)) })
	t.Run("EstimatedCount", func(t *testing.T) { testEstimatedCount(t, newRepo(t)) })
	t.Run("Users", func(t *testing.T) { testUsers(t, newRepo(t)) })
	t.Run("ConcurrentCreates", func(t *testing.T) { testConcurrentCreates(t, newRepo(t)) })
	t.Run("UpdatedAtNeverMovesBackwards", func(t *testing.T) { testUpdatedAtNeverMovesBackwards(t, newRepo(t)) })
}

// NewUser stores a user named username and returns it.
func NewUser(t *testing.T, repo simpleposts.Repository, username string) *simpleposts.User {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Microsecond)
	user := &simpleposts.User{
		ID:        uuid.New(),
		Email:     username + "@example.com",
		Username:  username,
		Images:    []simpleposts.Image{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, repo.CreateUser(context.Background(), user))
	return user
}

// NewPost stores a post owned by owner, created at createdAt.
func NewPost(t *testing.T, repo simpleposts.Repository, owner *simpleposts.User, content string, createdAt time.Time) *simpleposts.Post {
	t.Helper()
	createdAt = createdAt.UTC().Truncate(time.Microsecond)
	post := &simpleposts.Post{
		ID:        uuid.New(),
		Content:   content,
		OwnerID:   owner.ID,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
	require.NoError(t, repo.CreatePost(context.Background(), post))
	return post
}

func testPostLifecycle(t *testing.T, repo simpleposts.Repository) {
	ctx := context.Background()
	owner := NewUser(t, repo, "alice")
	post := NewPost(t, repo, owner, "hello world", time.Now())

	got, err := repo.GetPost(ctx, post.ID, simpleposts.OwnerNone)
	require.NoError(t, err)
	assert.Equal(t, post.ID, got.ID)
	assert.Equal(t, "hello world", got.Content)
	assert.Equal(t, owner.ID, got.OwnerID)
	assert.Nil(t, got.Owner)
	assert.True(t, post.CreatedAt.Equal(got.CreatedAt))

	updatedAt := post.UpdatedAt.Add(time.Second)
	updated, err := repo.UpdatePost(ctx, post.ID, owner.ID, "bye world", updatedAt)
	require.NoError(t, err)
	assert.Equal(t, "bye world", updated.Content)
	assert.True(t, updatedAt.Equal(updated.UpdatedAt))
	assert.True(t, post.CreatedAt.Equal(updated.CreatedAt))

	deleted, err := repo.DeletePost(ctx, post.ID, owner.ID)
	require.NoError(t, err)
	assert.Equal(t, "bye world", deleted.Content)

	_, err = repo.GetPost(ctx, post.ID, simpleposts.OwnerNone)
	assert.ErrorIs(t, err, simpleposts.ErrPostNotFound)

	_, err = repo.DeletePost(ctx, post.ID, owner.ID)
	assert.ErrorIs(t, err, simpleposts.ErrPostNotFound)

	_, err = repo.UpdatePost(ctx, post.ID, owner.ID, "again", time.Now())
	assert.ErrorIs(t, err, simpleposts.ErrPostNotFound)
}

func testUpdatedAtNeverMovesBackwards(t *testing.T, repo simpleposts.Repository) {
	ctx := context.Background()
	owner := NewUser(t, repo, "alice")
	post := NewPost(t, repo, owner, "v1", time.Now())

	later := post.UpdatedAt.Add(time.Minute)
	second, err := repo.UpdatePost(ctx, post.ID, owner.ID, "v2", later)
	require.NoError(t, err)

	// a writer that read the post before v2 committed arrives with an older time
	third, err := repo.UpdatePost(ctx, post.ID, owner.ID, "v3", post.UpdatedAt.Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, "v3", third.Content)
	assert.True(t, third.UpdatedAt.After(second.UpdatedAt),
		"updated_at went from %v to %v", second.UpdatedAt, third.UpdatedAt)

	got, err := repo.GetPost(ctx, post.ID, simpleposts.OwnerNone)
	require.NoError(t, err)
	assert.True(t, got.UpdatedAt.Equal(third.UpdatedAt))
}

func testListPagination(t *testing.T, repo simpleposts.Repository) {
	ctx := context.Background()
	owner := NewUser(t, repo, "bob")
	base := time.Now().Add(-time.Hour)

	var ids []uuid.UUID
	for i := 0; i < 8; i++ {
		p := NewPost(t, repo, owner, fmt.Sprintf("post %d", i), base.Add(time.Duration(i)*time.Second))
		ids = append(ids, p.ID)
	}

	first, err := repo.ListPosts(ctx, simpleposts.ListPostsParams{Offset: 0, Limit: 6})
	require.NoError(t, err)
	require.Len(t, first, 6)
	for i, p := range first {
		assert.Equal(t, ids[7-i], p.ID, "position %d", i)
	}

	second, err := repo.ListPosts(ctx, simpleposts.ListPostsParams{Offset: 6, Limit: 6})
	require.NoError(t, err)
	require.Len(t, second, 2)
	assert.Equal(t, ids[1], second[0].ID)
	assert.Equal(t, ids[0], second[1].ID)

	third, err := repo.ListPosts(ctx, simpleposts.ListPostsParams{Offset: 12, Limit: 6})
	require.NoError(t, err)
	assert.Empty(t, third)
}

func testListByOwner(t *testing.T, repo simpleposts.Repository) {
	ctx := context.Background()
	alice := NewUser(t, repo, "alice")
	bob := NewUser(t, repo, "bob")
	base := time.Now().Add(-time.Hour)

	a1 := NewPost(t, repo, alice, "a1", base)
	NewPost(t, repo, bob, "b1", base.Add(time.Second))
	a2 := NewPost(t, repo, alice, "a2", base.Add(2*time.Second))

	posts, err := repo.ListPostsByOwner(ctx, alice.ID, simpleposts.OwnerFull)
	require.NoError(t, err)
	require.Len(t, posts, 2)
	assert.Equal(t, a2.ID, posts[0].ID)
	assert.Equal(t, a1.ID, posts[1].ID)
	for _, p := range posts {
		require.NotNil(t, p.Owner)
		assert.Equal(t, "alice", p.Owner.Username)
	}

	none, err := repo.ListPostsByOwner(ctx, uuid.New(), simpleposts.OwnerFull)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func testOwnerConditionalWrites(t *testing.T, repo simpleposts.Repository) {
	ctx := context.Background()
	alice := NewUser(t, repo, "alice")
	mallory := NewUser(t, repo, "mallory")
	post := NewPost(t, repo, alice, "mine", time.Now())

	_, err := repo.UpdatePost(ctx, post.ID, mallory.ID, "stolen", time.Now())
	assert.ErrorIs(t, err, simpleposts.ErrPostNotFound)

	_, err = repo.DeletePost(ctx, post.ID, mallory.ID)
	assert.ErrorIs(t, err, simpleposts.ErrPostNotFound)

	got, err := repo.GetPost(ctx, post.ID, simpleposts.OwnerNone)
	require.NoError(t, err)
	assert.Equal(t, "mine", got.Content)
}

func testOwnerProjection(t *testing.T, repo simpleposts.Repository) {
	ctx := context.Background()
	alice := NewUser(t, repo, "alice")
	post := NewPost(t, repo, alice, "projected", time.Now())

	full, err := repo.GetPost(ctx, post.ID, simpleposts.OwnerFull)
	require.NoError(t, err)
	require.NotNil(t, full.Owner)
	assert.Equal(t, alice.ID.String(), full.Owner.ID)
	assert.Equal(t, "alice", full.Owner.Username)

	usernameOnly, err := repo.GetPost(ctx, post.ID, simpleposts.OwnerUsername)
	require.NoError(t, err)
	require.NotNil(t, usernameOnly.Owner)
	assert.Empty(t, usernameOnly.Owner.ID)
	assert.Equal(t, "alice", usernameOnly.Owner.Username)
}

func testSearch(t *testing.T, repo simpleposts.Repository) {
	ctx := context.Background()
	alice := NewUser(t, repo, "alice")
	base := time.Now().Add(-time.Hour)

	hello := NewPost(t, repo, alice, "hello there", base)
	bye := NewPost(t, repo, alice, "bye for now", base.Add(time.Second))
	both := NewPost(t, repo, alice, "hello and bye", base.Add(2*time.Second))

	search := func(q string) []uuid.UUID {
		posts, err := repo.SearchPosts(ctx, simpleposts.ParseSearchQuery(q), simpleposts.OwnerUsername)
		require.NoError(t, err)
		var ids []uuid.UUID
		for _, p := range posts {
			require.NotNil(t, p.Owner)
			assert.Equal(t, "alice", p.Owner.Username)
			assert.Empty(t, p.Owner.ID)
			ids = append(ids, p.ID)
		}
		return ids
	}

	assert.ElementsMatch(t, []uuid.UUID{bye.ID, both.ID}, search("bye"))
	assert.ElementsMatch(t, []uuid.UUID{hello.ID, bye.ID, both.ID}, search("hello bye"))
	assert.Equal(t, both.ID, search("hello bye")[0], "post matching both terms ranks first")
	assert.ElementsMatch(t, []uuid.UUID{hello.ID}, search("hello -bye"))
	assert.ElementsMatch(t, []uuid.UUID{bye.ID}, search(`"bye for"`))
	assert.Empty(t, search("absent"))
	assert.Empty(t, search("HELLO -hello"))
}

func testEstimatedCount(t *testing.T, repo simpleposts.Repository) {
	ctx := context.Background()
	alice := NewUser(t, repo, "alice")

	for i := 0; i < 3; i++ {
		NewPost(t, repo, alice, fmt.Sprintf("counted %d", i), time.Now())
	}

	n, err := repo.EstimatedPostCount(ctx)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, n, int64(0))
	assert.LessOrEqual(t, n, int64(3))
}

func testUsers(t *testing.T, repo simpleposts.Repository) {
	ctx := context.Background()
	alice := NewUser(t, repo, "alice")

	byEmail, err := repo.GetUserByEmail(ctx, "ALICE@example.com")
	require.NoError(t, err)
	assert.Equal(t, alice.ID, byEmail.ID)

	byName, err := repo.GetUserByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, alice.ID, byName.ID)

	_, err = repo.GetUser(ctx, uuid.New())
	assert.ErrorIs(t, err, simpleposts.ErrUserNotFound)
	_, err = repo.GetUserByEmail(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, simpleposts.ErrUserNotFound)

	dup := *alice
	dup.ID = uuid.New()
	dup.Username = "alice2"
	assert.ErrorIs(t, repo.CreateUser(ctx, &dup), simpleposts.ErrUserExists)

	bob := NewUser(t, repo, "bob")
	bob.Username = "alice"
	assert.ErrorIs(t, repo.UpdateUser(ctx, bob), simpleposts.ErrUserExists)

	bob.Username = "robert"
	bob.About = "hi"
	bob.Images = []simpleposts.Image{{URL: "https://img/1.png", PublicID: "1.png"}}
	require.NoError(t, repo.UpdateUser(ctx, bob))

	got, err := repo.GetUserByUsername(ctx, "robert")
	require.NoError(t, err)
	assert.Equal(t, "hi", got.About)
	assert.Equal(t, bob.Images, got.Images)
	_, err = repo.GetUserByUsername(ctx, "bob")
	assert.ErrorIs(t, err, simpleposts.ErrUserNotFound)

	users, err := repo.ListUsers(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 2)
}

func testConcurrentCreates(t *testing.T, repo simpleposts.Repository) {
	ctx := context.Background()
	alice := NewUser(t, repo, "alice")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			now := time.Now().UTC()
			err := repo.CreatePost(ctx, &simpleposts.Post{
				ID:        uuid.New(),
				Content:   fmt.Sprintf("concurrent %d", n),
				OwnerID:   alice.ID,
				CreatedAt: now,
				UpdatedAt: now,
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	posts, err := repo.ListPostsByOwner(ctx, alice.ID, simpleposts.OwnerNone)
	require.NoError(t, err)
	assert.Len(t, posts, 20)
}

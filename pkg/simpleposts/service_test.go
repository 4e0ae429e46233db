package simpleposts_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-posts/pkg/simpleposts"
	"github.com/tendant/simple-posts/pkg/simpleposts/identity"
	"github.com/tendant/simple-posts/pkg/simpleposts/repo/memory"
)

const testSecret = "test-secret"

type fixture struct {
	svc      simpleposts.Service
	users    simpleposts.UserService
	repo     simpleposts.Repository
	resolver *identity.Resolver
}

func setupTestService(t *testing.T, options ...simpleposts.Option) *fixture {
	t.Helper()

	resolver, err := identity.New(testSecret)
	require.NoError(t, err)
	repo := memory.New()

	base := []simpleposts.Option{
		simpleposts.WithRepository(repo),
		simpleposts.WithIdentityResolver(resolver),
	}
	svc, err := simpleposts.New(append(base, options...)...)
	require.NoError(t, err)
	users, err := simpleposts.NewUserService(base...)
	require.NoError(t, err)

	return &fixture{svc: svc, users: users, repo: repo, resolver: resolver}
}

// register issues a token for email and creates the matching user record.
func (f *fixture) register(t *testing.T, email string) (simpleposts.Credentials, *simpleposts.User) {
	t.Helper()
	creds := f.credentials(t, email)
	user, err := f.users.RegisterUser(context.Background(), creds)
	require.NoError(t, err)
	return creds, user
}

func (f *fixture) credentials(t *testing.T, email string) simpleposts.Credentials {
	t.Helper()
	token, err := f.resolver.IssueToken(uuid.NewString(), email, time.Hour)
	require.NoError(t, err)
	return simpleposts.Credentials{Token: token}
}

func nextEvent(t *testing.T, sub *simpleposts.Subscription) *simpleposts.Post {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	post, err := sub.Next(ctx)
	require.NoError(t, err)
	return post
}

func subscribe(t *testing.T, svc simpleposts.Service, topic simpleposts.Topic) *simpleposts.Subscription {
	t.Helper()
	sub, err := svc.Subscribe(topic)
	require.NoError(t, err)
	t.Cleanup(func() { svc.Unsubscribe(sub) })
	return sub
}

func TestServiceCreation(t *testing.T) {
	resolver, err := identity.New(testSecret)
	require.NoError(t, err)

	tests := []struct {
		name        string
		options     []simpleposts.Option
		expectError bool
	}{
		{
			name:        "no options should fail",
			options:     []simpleposts.Option{},
			expectError: true,
		},
		{
			name: "repository without identity should fail",
			options: []simpleposts.Option{
				simpleposts.WithRepository(memory.New()),
			},
			expectError: true,
		},
		{
			name: "repository and identity should succeed",
			options: []simpleposts.Option{
				simpleposts.WithRepository(memory.New()),
				simpleposts.WithIdentityResolver(resolver),
			},
			expectError: false,
		},
		{
			name: "with shared bus and sinks should succeed",
			options: []simpleposts.Option{
				simpleposts.WithRepository(memory.New()),
				simpleposts.WithIdentityResolver(resolver),
				simpleposts.WithEventBus(simpleposts.NewEventBus()),
				simpleposts.WithEventSink(simpleposts.NewNoopEventSink()),
			},
			expectError: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, err := simpleposts.New(tt.options...)

			if tt.expectError {
				assert.Error(t, err)
				assert.Nil(t, svc)
			} else {
				assert.NoError(t, err)
				assert.NotNil(t, svc)
			}
		})
	}
}

func TestCreatePost(t *testing.T) {
	f := setupTestService(t)
	ctx := context.Background()
	creds, user := f.register(t, "alice@example.com")
	added := subscribe(t, f.svc, simpleposts.TopicPostAdded)

	post, err := f.svc.CreatePost(ctx, simpleposts.CreatePostRequest{
		Credentials: creds,
		Content:     "first post",
	})
	require.NoError(t, err)

	assert.NotEqual(t, uuid.Nil, post.ID)
	assert.Equal(t, "first post", post.Content)
	assert.Equal(t, user.ID, post.OwnerID)
	require.NotNil(t, post.Owner)
	assert.Equal(t, user.ID.String(), post.Owner.ID)
	assert.Equal(t, "alice", post.Owner.Username)
	assert.Equal(t, post.CreatedAt, post.UpdatedAt)

	event := nextEvent(t, added)
	assert.Equal(t, post.ID, event.ID)
	assert.Equal(t, "first post", event.Content)

	stored, err := f.svc.GetPost(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, post.Content, stored.Content)
	assert.Equal(t, "alice", stored.Owner.Username)
}

func TestCreatePost_Validation(t *testing.T) {
	f := setupTestService(t)
	ctx := context.Background()
	creds, _ := f.register(t, "alice@example.com")
	added := subscribe(t, f.svc, simpleposts.TopicPostAdded)

	for _, content := range []string{"", "   ", "\n\t"} {
		t.Run(fmt.Sprintf("%q", content), func(t *testing.T) {
			_, err := f.svc.CreatePost(ctx, simpleposts.CreatePostRequest{
				Credentials: creds,
				Content:     content,
			})
			require.Error(t, err)
			assert.ErrorIs(t, err, simpleposts.ErrInvalidInput)

			var verr *simpleposts.ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, "content", verr.Field)
		})
	}

	n, err := f.svc.CountPosts(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Zero(t, added.Pending())
}

func TestCreatePost_Unauthenticated(t *testing.T) {
	f := setupTestService(t)
	ctx := context.Background()
	added := subscribe(t, f.svc, simpleposts.TopicPostAdded)

	other, err := identity.New("another-secret")
	require.NoError(t, err)
	forged, err := other.IssueToken("x", "alice@example.com", time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name  string
		creds simpleposts.Credentials
	}{
		{"anonymous", simpleposts.Credentials{}},
		{"malformed token", simpleposts.Credentials{Token: "not-a-jwt"}},
		{"wrong signature", simpleposts.Credentials{Token: forged}},
		{"unregistered principal", f.credentials(t, "ghost@example.com")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.CreatePost(ctx, simpleposts.CreatePostRequest{
				Credentials: tt.creds,
				Content:     "hello",
			})
			assert.ErrorIs(t, err, simpleposts.ErrUnauthenticated)
			assert.True(t, simpleposts.IsAuthError(err))
		})
	}

	assert.Zero(t, added.Pending())
}

func TestCreatePost_AuthenticationPrecedesValidation(t *testing.T) {
	f := setupTestService(t)

	_, err := f.svc.CreatePost(context.Background(), simpleposts.CreatePostRequest{Content: ""})
	assert.ErrorIs(t, err, simpleposts.ErrUnauthenticated)
	assert.NotErrorIs(t, err, simpleposts.ErrInvalidInput)
}

func TestListPosts_Pagination(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	tick := 0
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		tick++
		return start.Add(time.Duration(tick) * time.Minute)
	}

	f := setupTestService(t, simpleposts.WithClock(clock))
	ctx := context.Background()
	creds, _ := f.register(t, "alice@example.com")

	for i := 1; i <= 8; i++ {
		_, err := f.svc.CreatePost(ctx, simpleposts.CreatePostRequest{
			Credentials: creds,
			Content:     fmt.Sprintf("post %d", i),
		})
		require.NoError(t, err)
	}

	page1, err := f.svc.ListPosts(ctx, simpleposts.ListPostsRequest{Page: 1})
	require.NoError(t, err)
	require.Len(t, page1, simpleposts.DefaultPageSize)
	assert.Equal(t, "post 8", page1[0].Content)
	assert.Equal(t, "post 3", page1[5].Content)
	for i := 1; i < len(page1); i++ {
		assert.False(t, page1[i].CreatedAt.After(page1[i-1].CreatedAt))
	}
	assert.Equal(t, "alice", page1[0].Owner.Username)

	page2, err := f.svc.ListPosts(ctx, simpleposts.ListPostsRequest{Page: 2})
	require.NoError(t, err)
	require.Len(t, page2, 2)
	assert.Equal(t, "post 2", page2[0].Content)
	assert.Equal(t, "post 1", page2[1].Content)

	page3, err := f.svc.ListPosts(ctx, simpleposts.ListPostsRequest{Page: 3})
	require.NoError(t, err)
	assert.NotNil(t, page3)
	assert.Empty(t, page3)

	for _, page := range []int{0, -1} {
		got, err := f.svc.ListPosts(ctx, simpleposts.ListPostsRequest{Page: page})
		require.NoError(t, err)
		require.Len(t, got, simpleposts.DefaultPageSize)
		assert.Equal(t, page1[0].ID, got[0].ID)
	}

	huge, err := f.svc.ListPosts(ctx, simpleposts.ListPostsRequest{Page: 1 << 40})
	require.NoError(t, err)
	assert.Empty(t, huge)
}

func TestListPosts_Empty(t *testing.T) {
	f := setupTestService(t)

	posts, err := f.svc.ListPosts(context.Background(), simpleposts.ListPostsRequest{Page: 1})
	require.NoError(t, err)
	assert.NotNil(t, posts)
	assert.Empty(t, posts)
}

func TestListPostsByUser(t *testing.T) {
	f := setupTestService(t)
	ctx := context.Background()
	alice, aliceUser := f.register(t, "alice@example.com")
	bob, _ := f.register(t, "bob@example.com")
	carol, _ := f.register(t, "carol@example.com")

	for i := 0; i < 3; i++ {
		_, err := f.svc.CreatePost(ctx, simpleposts.CreatePostRequest{Credentials: alice, Content: fmt.Sprintf("alice %d", i)})
		require.NoError(t, err)
	}
	_, err := f.svc.CreatePost(ctx, simpleposts.CreatePostRequest{Credentials: bob, Content: "bob"})
	require.NoError(t, err)

	posts, err := f.svc.ListPostsByUser(ctx, simpleposts.ListPostsByUserRequest{Credentials: alice})
	require.NoError(t, err)
	require.Len(t, posts, 3)
	for _, p := range posts {
		assert.Equal(t, aliceUser.ID, p.OwnerID)
		assert.Equal(t, "alice", p.Owner.Username)
	}

	none, err := f.svc.ListPostsByUser(ctx, simpleposts.ListPostsByUserRequest{Credentials: carol})
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)

	_, err = f.svc.ListPostsByUser(ctx, simpleposts.ListPostsByUserRequest{})
	assert.ErrorIs(t, err, simpleposts.ErrUnauthenticated)
}

func TestGetPost_NotFound(t *testing.T) {
	f := setupTestService(t)

	_, err := f.svc.GetPost(context.Background(), uuid.New())
	assert.ErrorIs(t, err, simpleposts.ErrPostNotFound)
}

func TestUpdatePost(t *testing.T) {
	f := setupTestService(t)
	ctx := context.Background()
	creds, _ := f.register(t, "alice@example.com")
	updated := subscribe(t, f.svc, simpleposts.TopicPostUpdated)

	post, err := f.svc.CreatePost(ctx, simpleposts.CreatePostRequest{Credentials: creds, Content: "draft"})
	require.NoError(t, err)

	got, err := f.svc.UpdatePost(ctx, simpleposts.UpdatePostRequest{
		Credentials: creds,
		ID:          post.ID,
		Content:     "final",
	})
	require.NoError(t, err)
	assert.Equal(t, post.ID, got.ID)
	assert.Equal(t, "final", got.Content)
	assert.True(t, got.UpdatedAt.After(post.CreatedAt))
	assert.True(t, got.CreatedAt.Equal(post.CreatedAt))
	assert.Equal(t, "alice", got.Owner.Username)

	event := nextEvent(t, updated)
	assert.Equal(t, post.ID, event.ID)
	assert.Equal(t, "final", event.Content)
}

func TestUpdatePost_UpdatedAtIsMonotonic(t *testing.T) {
	frozen := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	f := setupTestService(t, simpleposts.WithClock(func() time.Time { return frozen }))
	ctx := context.Background()
	creds, _ := f.register(t, "alice@example.com")

	post, err := f.svc.CreatePost(ctx, simpleposts.CreatePostRequest{Credentials: creds, Content: "a"})
	require.NoError(t, err)

	first, err := f.svc.UpdatePost(ctx, simpleposts.UpdatePostRequest{Credentials: creds, ID: post.ID, Content: "b"})
	require.NoError(t, err)
	assert.True(t, first.UpdatedAt.After(post.UpdatedAt))

	second, err := f.svc.UpdatePost(ctx, simpleposts.UpdatePostRequest{Credentials: creds, ID: post.ID, Content: "c"})
	require.NoError(t, err)
	assert.True(t, second.UpdatedAt.After(first.UpdatedAt))
}

func TestUpdatePost_Errors(t *testing.T) {
	f := setupTestService(t)
	ctx := context.Background()
	alice, _ := f.register(t, "alice@example.com")
	bob, _ := f.register(t, "bob@example.com")
	updated := subscribe(t, f.svc, simpleposts.TopicPostUpdated)

	post, err := f.svc.CreatePost(ctx, simpleposts.CreatePostRequest{Credentials: alice, Content: "original"})
	require.NoError(t, err)

	t.Run("empty content", func(t *testing.T) {
		_, err := f.svc.UpdatePost(ctx, simpleposts.UpdatePostRequest{Credentials: alice, ID: post.ID, Content: " "})
		assert.ErrorIs(t, err, simpleposts.ErrInvalidInput)
	})

	t.Run("anonymous", func(t *testing.T) {
		_, err := f.svc.UpdatePost(ctx, simpleposts.UpdatePostRequest{ID: post.ID, Content: "x"})
		assert.ErrorIs(t, err, simpleposts.ErrUnauthenticated)
	})

	t.Run("unknown post", func(t *testing.T) {
		_, err := f.svc.UpdatePost(ctx, simpleposts.UpdatePostRequest{Credentials: alice, ID: uuid.New(), Content: "x"})
		assert.ErrorIs(t, err, simpleposts.ErrPostNotFound)
	})

	t.Run("not the owner", func(t *testing.T) {
		_, err := f.svc.UpdatePost(ctx, simpleposts.UpdatePostRequest{Credentials: bob, ID: post.ID, Content: "hijacked"})
		require.Error(t, err)
		assert.ErrorIs(t, err, simpleposts.ErrUnauthorized)
		assert.NotErrorIs(t, err, simpleposts.ErrPostNotFound)
		assert.NotContains(t, err.Error(), "alice")
		assert.NotContains(t, err.Error(), post.OwnerID.String())
	})

	stored, err := f.svc.GetPost(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, "original", stored.Content)
	assert.True(t, stored.UpdatedAt.Equal(post.UpdatedAt))
	assert.Zero(t, updated.Pending())
}

func TestDeletePost(t *testing.T) {
	f := setupTestService(t)
	ctx := context.Background()
	alice, _ := f.register(t, "alice@example.com")
	bob, _ := f.register(t, "bob@example.com")
	deleted := subscribe(t, f.svc, simpleposts.TopicPostDeleted)

	post, err := f.svc.CreatePost(ctx, simpleposts.CreatePostRequest{Credentials: alice, Content: "short lived"})
	require.NoError(t, err)

	_, err = f.svc.DeletePost(ctx, simpleposts.DeletePostRequest{Credentials: bob, ID: post.ID})
	assert.ErrorIs(t, err, simpleposts.ErrUnauthorized)
	assert.Zero(t, deleted.Pending())

	got, err := f.svc.DeletePost(ctx, simpleposts.DeletePostRequest{Credentials: alice, ID: post.ID})
	require.NoError(t, err)
	assert.Equal(t, post.ID, got.ID)
	assert.Equal(t, "short lived", got.Content)

	event := nextEvent(t, deleted)
	assert.Equal(t, post.ID, event.ID)

	_, err = f.svc.GetPost(ctx, post.ID)
	assert.ErrorIs(t, err, simpleposts.ErrPostNotFound)

	_, err = f.svc.DeletePost(ctx, simpleposts.DeletePostRequest{Credentials: alice, ID: post.ID})
	assert.ErrorIs(t, err, simpleposts.ErrPostNotFound)
	assert.Zero(t, deleted.Pending())
}

func TestCountPosts(t *testing.T) {
	f := setupTestService(t)
	ctx := context.Background()
	creds, _ := f.register(t, "alice@example.com")

	var ids []uuid.UUID
	for i := 0; i < 4; i++ {
		p, err := f.svc.CreatePost(ctx, simpleposts.CreatePostRequest{Credentials: creds, Content: "x"})
		require.NoError(t, err)
		ids = append(ids, p.ID)
	}
	_, err := f.svc.DeletePost(ctx, simpleposts.DeletePostRequest{Credentials: creds, ID: ids[0]})
	require.NoError(t, err)

	n, err := f.svc.CountPosts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestSearchPosts(t *testing.T) {
	f := setupTestService(t)
	ctx := context.Background()
	creds, _ := f.register(t, "alice@example.com")

	for _, content := range []string{"Go is fun", "Rust is fun too", "Lunch time"} {
		_, err := f.svc.CreatePost(ctx, simpleposts.CreatePostRequest{Credentials: creds, Content: content})
		require.NoError(t, err)
	}

	t.Run("single term", func(t *testing.T) {
		posts, err := f.svc.SearchPosts(ctx, simpleposts.SearchPostsRequest{Query: "lunch"})
		require.NoError(t, err)
		require.Len(t, posts, 1)
		assert.Equal(t, "Lunch time", posts[0].Content)
		require.NotNil(t, posts[0].Owner)
		assert.Equal(t, "alice", posts[0].Owner.Username)
		assert.Empty(t, posts[0].Owner.ID)
	})

	t.Run("any term matches", func(t *testing.T) {
		posts, err := f.svc.SearchPosts(ctx, simpleposts.SearchPostsRequest{Query: "fun"})
		require.NoError(t, err)
		assert.Len(t, posts, 2)
	})

	t.Run("exclusion", func(t *testing.T) {
		posts, err := f.svc.SearchPosts(ctx, simpleposts.SearchPostsRequest{Query: "fun -rust"})
		require.NoError(t, err)
		require.Len(t, posts, 1)
		assert.Equal(t, "Go is fun", posts[0].Content)
	})

	t.Run("no match", func(t *testing.T) {
		posts, err := f.svc.SearchPosts(ctx, simpleposts.SearchPostsRequest{Query: "python"})
		require.NoError(t, err)
		assert.NotNil(t, posts)
		assert.Empty(t, posts)
	})

	t.Run("empty query", func(t *testing.T) {
		for _, q := range []string{"", "   ", "!!!"} {
			posts, err := f.svc.SearchPosts(ctx, simpleposts.SearchPostsRequest{Query: q})
			require.NoError(t, err)
			assert.NotNil(t, posts)
			assert.Empty(t, posts)
		}
	})
}

func TestSubscribe(t *testing.T) {
	f := setupTestService(t)
	ctx := context.Background()
	creds, _ := f.register(t, "alice@example.com")

	t.Run("unknown topic", func(t *testing.T) {
		_, err := f.svc.Subscribe(simpleposts.Topic("PostLiked"))
		assert.ErrorIs(t, err, simpleposts.ErrInvalidInput)
	})

	t.Run("future events only", func(t *testing.T) {
		before, err := f.svc.CreatePost(ctx, simpleposts.CreatePostRequest{Credentials: creds, Content: "before"})
		require.NoError(t, err)

		sub := subscribe(t, f.svc, simpleposts.TopicPostAdded)
		assert.Zero(t, sub.Pending())

		after, err := f.svc.CreatePost(ctx, simpleposts.CreatePostRequest{Credentials: creds, Content: "after"})
		require.NoError(t, err)

		event := nextEvent(t, sub)
		assert.Equal(t, after.ID, event.ID)
		assert.NotEqual(t, before.ID, event.ID)
		assert.Zero(t, sub.Pending())
	})

	t.Run("events arrive in commit order", func(t *testing.T) {
		sub := subscribe(t, f.svc, simpleposts.TopicPostAdded)
		var want []uuid.UUID
		for i := 0; i < 5; i++ {
			p, err := f.svc.CreatePost(ctx, simpleposts.CreatePostRequest{Credentials: creds, Content: fmt.Sprintf("n%d", i)})
			require.NoError(t, err)
			want = append(want, p.ID)
		}
		for _, id := range want {
			assert.Equal(t, id, nextEvent(t, sub).ID)
		}
	})

	t.Run("unsubscribe stops delivery", func(t *testing.T) {
		sub, err := f.svc.Subscribe(simpleposts.TopicPostAdded)
		require.NoError(t, err)
		f.svc.Unsubscribe(sub)

		_, err = f.svc.CreatePost(ctx, simpleposts.CreatePostRequest{Credentials: creds, Content: "ignored"})
		require.NoError(t, err)
		assert.Zero(t, sub.Pending())
	})
}

func TestSharedEventBus(t *testing.T) {
	bus := simpleposts.NewEventBus()
	f := setupTestService(t, simpleposts.WithEventBus(bus))
	creds, _ := f.register(t, "alice@example.com")

	sub := bus.Subscribe(string(simpleposts.TopicPostAdded))
	defer bus.Unsubscribe(sub)

	post, err := f.svc.CreatePost(context.Background(), simpleposts.CreatePostRequest{Credentials: creds, Content: "shared"})
	require.NoError(t, err)
	assert.Equal(t, post.ID, nextEvent(t, sub).ID)
}

// failingSink rejects every event.
type failingSink struct {
	simpleposts.NoopEventSink
	calls int
}

func (s *failingSink) PostAdded(ctx context.Context, post *simpleposts.Post) error {
	s.calls++
	return errors.New("sink down")
}

func TestEventSinkFailureDoesNotFailWrite(t *testing.T) {
	sink := &failingSink{}
	f := setupTestService(t, simpleposts.WithEventSink(sink))
	creds, _ := f.register(t, "alice@example.com")
	added := subscribe(t, f.svc, simpleposts.TopicPostAdded)

	post, err := f.svc.CreatePost(context.Background(), simpleposts.CreatePostRequest{Credentials: creds, Content: "still saved"})
	require.NoError(t, err)
	assert.Equal(t, 1, sink.calls)
	assert.Equal(t, post.ID, nextEvent(t, added).ID)
}

func TestConcurrentUpdatesLastWriterWins(t *testing.T) {
	f := setupTestService(t)
	ctx := context.Background()
	creds, _ := f.register(t, "alice@example.com")
	updated := subscribe(t, f.svc, simpleposts.TopicPostUpdated)

	post, err := f.svc.CreatePost(ctx, simpleposts.CreatePostRequest{Credentials: creds, Content: "v0"})
	require.NoError(t, err)

	const writers = 10
	var wg sync.WaitGroup
	for i := 1; i <= writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.svc.UpdatePost(ctx, simpleposts.UpdatePostRequest{
				Credentials: creds,
				ID:          post.ID,
				Content:     fmt.Sprintf("v%d", i),
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	stored, err := f.svc.GetPost(ctx, post.ID)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(stored.Content, "v"))
	assert.NotEqual(t, "v0", stored.Content)
	assert.Equal(t, writers, updated.Pending())
}

func TestHelloByeScenario(t *testing.T) {
	f := setupTestService(t)
	ctx := context.Background()
	creds, _ := f.register(t, "alice@example.com")
	deleted := subscribe(t, f.svc, simpleposts.TopicPostDeleted)

	post, err := f.svc.CreatePost(ctx, simpleposts.CreatePostRequest{Credentials: creds, Content: "hello"})
	require.NoError(t, err)

	post, err = f.svc.UpdatePost(ctx, simpleposts.UpdatePostRequest{Credentials: creds, ID: post.ID, Content: "bye"})
	require.NoError(t, err)
	assert.Equal(t, "bye", post.Content)
	assert.True(t, post.UpdatedAt.After(post.CreatedAt))

	found, err := f.svc.SearchPosts(ctx, simpleposts.SearchPostsRequest{Query: "bye"})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, post.ID, found[0].ID)

	stale, err := f.svc.SearchPosts(ctx, simpleposts.SearchPostsRequest{Query: "hello"})
	require.NoError(t, err)
	assert.Empty(t, stale)

	_, err = f.svc.DeletePost(ctx, simpleposts.DeletePostRequest{Credentials: creds, ID: post.ID})
	require.NoError(t, err)
	assert.Equal(t, post.ID, nextEvent(t, deleted).ID)

	_, err = f.svc.DeletePost(ctx, simpleposts.DeletePostRequest{Credentials: creds, ID: post.ID})
	assert.ErrorIs(t, err, simpleposts.ErrPostNotFound)
	assert.Zero(t, deleted.Pending())
}

func TestStoreUnavailable(t *testing.T) {
	ctx := context.Background()
	resolver, err := identity.New(testSecret)
	require.NoError(t, err)
	token, err := resolver.IssueToken("sub", "alice@example.com", time.Hour)
	require.NoError(t, err)
	creds := simpleposts.Credentials{Token: token}
	owner := &simpleposts.User{ID: uuid.New(), Email: "alice@example.com", Username: "alice"}

	newService := func(t *testing.T, repo *MockRepository) simpleposts.Service {
		svc, err := simpleposts.New(
			simpleposts.WithRepository(repo),
			simpleposts.WithIdentityResolver(resolver),
		)
		require.NoError(t, err)
		return svc
	}

	t.Run("create", func(t *testing.T) {
		repo := &MockRepository{}
		repo.On("GetUserByEmail", mock.Anything, "alice@example.com").Return(owner, nil)
		repo.On("CreatePost", mock.Anything, mock.Anything).Return(simpleposts.ErrStoreUnavailable)
		svc := newService(t, repo)
		added := subscribe(t, svc, simpleposts.TopicPostAdded)

		_, err := svc.CreatePost(ctx, simpleposts.CreatePostRequest{Credentials: creds, Content: "x"})
		assert.ErrorIs(t, err, simpleposts.ErrStoreUnavailable)
		assert.Zero(t, added.Pending())
		repo.AssertExpectations(t)
	})

	t.Run("owner lookup", func(t *testing.T) {
		repo := &MockRepository{}
		repo.On("GetUserByEmail", mock.Anything, "alice@example.com").Return(nil, simpleposts.ErrStoreUnavailable)
		svc := newService(t, repo)

		_, err := svc.CreatePost(ctx, simpleposts.CreatePostRequest{Credentials: creds, Content: "x"})
		assert.ErrorIs(t, err, simpleposts.ErrStoreUnavailable)
		assert.NotErrorIs(t, err, simpleposts.ErrUnauthenticated)
		repo.AssertNotCalled(t, "CreatePost", mock.Anything, mock.Anything)
	})

	t.Run("list", func(t *testing.T) {
		repo := &MockRepository{}
		repo.On("ListPosts", mock.Anything, simpleposts.ListPostsParams{Offset: 0, Limit: simpleposts.DefaultPageSize, Owner: simpleposts.OwnerFull}).
			Return(nil, simpleposts.ErrStoreUnavailable)
		svc := newService(t, repo)

		_, err := svc.ListPosts(ctx, simpleposts.ListPostsRequest{Page: 1})
		assert.ErrorIs(t, err, simpleposts.ErrStoreUnavailable)
	})

	t.Run("count", func(t *testing.T) {
		repo := &MockRepository{}
		repo.On("EstimatedPostCount", mock.Anything).Return(int64(0), simpleposts.ErrStoreUnavailable)
		svc := newService(t, repo)

		_, err := svc.CountPosts(ctx)
		assert.ErrorIs(t, err, simpleposts.ErrStoreUnavailable)
	})

	t.Run("delete", func(t *testing.T) {
		id := uuid.New()
		repo := &MockRepository{}
		repo.On("GetUserByEmail", mock.Anything, "alice@example.com").Return(owner, nil)
		repo.On("GetPost", mock.Anything, id, simpleposts.OwnerNone).Return(&simpleposts.Post{ID: id, OwnerID: owner.ID}, nil)
		repo.On("DeletePost", mock.Anything, id, owner.ID).Return(nil, simpleposts.ErrStoreUnavailable)
		svc := newService(t, repo)
		deleted := subscribe(t, svc, simpleposts.TopicPostDeleted)

		_, err := svc.DeletePost(ctx, simpleposts.DeletePostRequest{Credentials: creds, ID: id})
		assert.ErrorIs(t, err, simpleposts.ErrStoreUnavailable)
		assert.Zero(t, deleted.Pending())
		repo.AssertExpectations(t)
	})
}

func TestUpdatePost_RacingDelete(t *testing.T) {
	ctx := context.Background()
	resolver, err := identity.New(testSecret)
	require.NoError(t, err)
	token, err := resolver.IssueToken("sub", "alice@example.com", time.Hour)
	require.NoError(t, err)
	owner := &simpleposts.User{ID: uuid.New(), Email: "alice@example.com", Username: "alice"}
	id := uuid.New()

	// the post disappears between the ownership check and the write
	repo := &MockRepository{}
	repo.On("GetUserByEmail", mock.Anything, "alice@example.com").Return(owner, nil)
	repo.On("GetPost", mock.Anything, id, simpleposts.OwnerNone).
		Return(&simpleposts.Post{ID: id, OwnerID: owner.ID, UpdatedAt: time.Now().Add(-time.Hour)}, nil)
	repo.On("UpdatePost", mock.Anything, id, owner.ID, "new", mock.AnythingOfType("time.Time")).
		Return(nil, simpleposts.ErrPostNotFound)

	svc, err := simpleposts.New(
		simpleposts.WithRepository(repo),
		simpleposts.WithIdentityResolver(resolver),
	)
	require.NoError(t, err)
	updated := subscribe(t, svc, simpleposts.TopicPostUpdated)

	_, err = svc.UpdatePost(ctx, simpleposts.UpdatePostRequest{
		Credentials: simpleposts.Credentials{Token: token},
		ID:          id,
		Content:     "new",
	})
	assert.ErrorIs(t, err, simpleposts.ErrPostNotFound)
	assert.Zero(t, updated.Pending())
	repo.AssertExpectations(t)
}

// stallingRepository holds an UpdatePost call after it has committed until
// release is closed.
type stallingRepository struct {
	simpleposts.Repository
	stallOn   string
	committed chan struct{}
	release   chan struct{}
}

func (r *stallingRepository) UpdatePost(ctx context.Context, id, ownerID uuid.UUID, content string, updatedAt time.Time) (*simpleposts.Post, error) {
	post, err := r.Repository.UpdatePost(ctx, id, ownerID, content, updatedAt)
	if err == nil && content == r.stallOn {
		close(r.committed)
		<-r.release
	}
	return post, err
}

// recordingSink keeps every event it sees, across topics, in arrival order.
type recordingSink struct {
	mu     sync.Mutex
	events []string
}

func (s *recordingSink) record(topic simpleposts.Topic, post *simpleposts.Post) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, string(topic)+":"+post.Content)
	return nil
}

func (s *recordingSink) PostAdded(ctx context.Context, post *simpleposts.Post) error {
	return s.record(simpleposts.TopicPostAdded, post)
}

func (s *recordingSink) PostUpdated(ctx context.Context, post *simpleposts.Post) error {
	return s.record(simpleposts.TopicPostUpdated, post)
}

func (s *recordingSink) PostDeleted(ctx context.Context, post *simpleposts.Post) error {
	return s.record(simpleposts.TopicPostDeleted, post)
}

func (s *recordingSink) snapshot() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.events...)
}

func TestConcurrentMutationsPublishInCommitOrder(t *testing.T) {
	tests := []struct {
		name       string
		second     func(svc simpleposts.Service, creds simpleposts.Credentials, id uuid.UUID) error
		wantEvents []string
		wantStored string
	}{
		{
			name: "update after stalled update",
			second: func(svc simpleposts.Service, creds simpleposts.Credentials, id uuid.UUID) error {
				_, err := svc.UpdatePost(context.Background(), simpleposts.UpdatePostRequest{Credentials: creds, ID: id, Content: "second"})
				return err
			},
			wantEvents: []string{"PostAdded:v0", "PostUpdated:first", "PostUpdated:second"},
			wantStored: "second",
		},
		{
			name: "delete after stalled update",
			second: func(svc simpleposts.Service, creds simpleposts.Credentials, id uuid.UUID) error {
				_, err := svc.DeletePost(context.Background(), simpleposts.DeletePostRequest{Credentials: creds, ID: id})
				return err
			},
			wantEvents: []string{"PostAdded:v0", "PostUpdated:first", "PostDeleted:first"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			resolver, err := identity.New(testSecret)
			require.NoError(t, err)
			repo := &stallingRepository{
				Repository: memory.New(),
				stallOn:    "first",
				committed:  make(chan struct{}),
				release:    make(chan struct{}),
			}
			sink := &recordingSink{}
			svc, err := simpleposts.New(
				simpleposts.WithRepository(repo),
				simpleposts.WithIdentityResolver(resolver),
				simpleposts.WithEventSink(sink),
			)
			require.NoError(t, err)
			users, err := simpleposts.NewUserService(
				simpleposts.WithRepository(repo),
				simpleposts.WithIdentityResolver(resolver),
			)
			require.NoError(t, err)

			token, err := resolver.IssueToken(uuid.NewString(), "alice@example.com", time.Hour)
			require.NoError(t, err)
			creds := simpleposts.Credentials{Token: token}
			_, err = users.RegisterUser(ctx, creds)
			require.NoError(t, err)
			updated := subscribe(t, svc, simpleposts.TopicPostUpdated)

			post, err := svc.CreatePost(ctx, simpleposts.CreatePostRequest{Credentials: creds, Content: "v0"})
			require.NoError(t, err)

			firstDone := make(chan error, 1)
			go func() {
				_, err := svc.UpdatePost(ctx, simpleposts.UpdatePostRequest{Credentials: creds, ID: post.ID, Content: "first"})
				firstDone <- err
			}()
			<-repo.committed

			secondDone := make(chan error, 1)
			go func() { secondDone <- tt.second(svc, creds, post.ID) }()

			select {
			case err := <-secondDone:
				t.Fatalf("second mutation finished before the first one published: %v", err)
			case <-time.After(50 * time.Millisecond):
			}

			close(repo.release)
			require.NoError(t, <-firstDone)
			require.NoError(t, <-secondDone)

			assert.Equal(t, tt.wantEvents, sink.snapshot())
			assert.Equal(t, "first", nextEvent(t, updated).Content)

			stored, err := svc.GetPost(ctx, post.ID)
			if tt.wantStored == "" {
				assert.ErrorIs(t, err, simpleposts.ErrPostNotFound)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantStored, stored.Content)
			last := nextEvent(t, updated)
			assert.Equal(t, stored.Content, last.Content)
			assert.True(t, stored.UpdatedAt.Equal(last.UpdatedAt))
		})
	}
}

func TestConcurrentUpdatesKeepUpdatedAtIncreasing(t *testing.T) {
	f := setupTestService(t)
	ctx := context.Background()
	creds, _ := f.register(t, "alice@example.com")
	updated := subscribe(t, f.svc, simpleposts.TopicPostUpdated)

	post, err := f.svc.CreatePost(ctx, simpleposts.CreatePostRequest{Credentials: creds, Content: "v0"})
	require.NoError(t, err)

	const writers = 10
	var wg sync.WaitGroup
	for i := 1; i <= writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.svc.UpdatePost(ctx, simpleposts.UpdatePostRequest{Credentials: creds, ID: post.ID, Content: fmt.Sprintf("v%d", i)})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	prev := post.UpdatedAt
	var last *simpleposts.Post
	for i := 0; i < writers; i++ {
		last = nextEvent(t, updated)
		assert.True(t, last.UpdatedAt.After(prev), "event %d: %v is not after %v", i, last.UpdatedAt, prev)
		prev = last.UpdatedAt
	}

	stored, err := f.svc.GetPost(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, stored.Content, last.Content)
	assert.True(t, stored.UpdatedAt.Equal(last.UpdatedAt))
}

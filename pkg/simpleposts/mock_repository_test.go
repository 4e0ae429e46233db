package simpleposts_test

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/tendant/simple-posts/pkg/simpleposts"
)

// MockRepository is a mock implementation of simpleposts.Repository
type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) CreatePost(ctx context.Context, post *simpleposts.Post) error {
	args := m.Called(ctx, post)
	return args.Error(0)
}

func (m *MockRepository) GetPost(ctx context.Context, id uuid.UUID, projection simpleposts.OwnerProjection) (*simpleposts.Post, error) {
	args := m.Called(ctx, id, projection)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*simpleposts.Post), args.Error(1)
}

func (m *MockRepository) ListPosts(ctx context.Context, params simpleposts.ListPostsParams) ([]*simpleposts.Post, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*simpleposts.Post), args.Error(1)
}

func (m *MockRepository) ListPostsByOwner(ctx context.Context, ownerID uuid.UUID, projection simpleposts.OwnerProjection) ([]*simpleposts.Post, error) {
	args := m.Called(ctx, ownerID, projection)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*simpleposts.Post), args.Error(1)
}

func (m *MockRepository) UpdatePost(ctx context.Context, id, ownerID uuid.UUID, content string, updatedAt time.Time) (*simpleposts.Post, error) {
	args := m.Called(ctx, id, ownerID, content, updatedAt)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*simpleposts.Post), args.Error(1)
}

func (m *MockRepository) DeletePost(ctx context.Context, id, ownerID uuid.UUID) (*simpleposts.Post, error) {
	args := m.Called(ctx, id, ownerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*simpleposts.Post), args.Error(1)
}

func (m *MockRepository) EstimatedPostCount(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockRepository) SearchPosts(ctx context.Context, query simpleposts.SearchQuery, projection simpleposts.OwnerProjection) ([]*simpleposts.Post, error) {
	args := m.Called(ctx, query, projection)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*simpleposts.Post), args.Error(1)
}

func (m *MockRepository) CreateUser(ctx context.Context, user *simpleposts.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *MockRepository) GetUser(ctx context.Context, id uuid.UUID) (*simpleposts.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*simpleposts.User), args.Error(1)
}

func (m *MockRepository) GetUserByEmail(ctx context.Context, email string) (*simpleposts.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*simpleposts.User), args.Error(1)
}

func (m *MockRepository) GetUserByUsername(ctx context.Context, username string) (*simpleposts.User, error) {
	args := m.Called(ctx, username)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*simpleposts.User), args.Error(1)
}

func (m *MockRepository) UpdateUser(ctx context.Context, user *simpleposts.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *MockRepository) ListUsers(ctx context.Context) ([]*simpleposts.User, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*simpleposts.User), args.Error(1)
}

package simpleposts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
)

// service implements the Service and UserService interfaces
type service struct {
	repository Repository
	identity   IdentityResolver
	eventSinks []EventSink
	bus        *EventBus
	blobStore  BlobStore
	blobName   string
	logger     *slog.Logger
	now        func() time.Time
	locks      *postLocks
}

// Option represents a functional option for configuring the service
type Option func(*service)

// WithRepository sets the repository for the service
func WithRepository(repo Repository) Option {
	return func(s *service) {
		s.repository = repo
	}
}

// WithIdentityResolver sets the resolver used to authenticate callers
func WithIdentityResolver(resolver IdentityResolver) Option {
	return func(s *service) {
		s.identity = resolver
	}
}

// WithEventSink adds an event sink. Sinks are notified in the order they were added.
func WithEventSink(sink EventSink) Option {
	return func(s *service) {
		if sink != nil {
			s.eventSinks = append(s.eventSinks, sink)
		}
	}
}

// WithEventBus sets the bus that receives post change events. Without it the
// service creates a private bus.
func WithEventBus(bus *EventBus) Option {
	return func(s *service) {
		s.bus = bus
	}
}

// WithBlobStore sets the storage backend for profile images
func WithBlobStore(name string, store BlobStore) Option {
	return func(s *service) {
		s.blobName = name
		s.blobStore = store
	}
}

// WithLogger sets the structured logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *service) {
		s.logger = logger
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(s *service) {
		s.now = now
	}
}

func newService(options ...Option) (*service, error) {
	s := &service{
		logger: slog.Default(),
		now:    time.Now,
		locks:  newPostLocks(),
	}

	for _, option := range options {
		option(s)
	}

	if s.repository == nil {
		return nil, fmt.Errorf("repository is required")
	}
	if s.identity == nil {
		return nil, fmt.Errorf("identity resolver is required")
	}
	if s.bus == nil {
		s.bus = NewEventBus()
	}
	s.eventSinks = append([]EventSink{NewBusEventSink(s.bus)}, s.eventSinks...)

	return s, nil
}

// New creates a new post service with the given options
func New(options ...Option) (Service, error) {
	s, err := newService(options...)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// NewUserService creates a new user service with the given options
func NewUserService(options ...Option) (UserService, error) {
	s, err := newService(options...)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Post operations

func (s *service) CreatePost(ctx context.Context, req CreatePostRequest) (*Post, error) {
	principal, err := s.resolve(ctx, req.Credentials)
	if err != nil {
		return nil, err
	}
	if err := validateContent(req.Content); err != nil {
		return nil, err
	}
	owner, err := s.lookupOwner(ctx, principal)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	post := &Post{
		ID:        uuid.New(),
		Content:   req.Content,
		OwnerID:   owner.ID,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.repository.CreatePost(ctx, post); err != nil {
		return nil, &PostError{
			PostID: post.ID,
			Op:     "create",
			Err:    err,
		}
	}
	post.Project(owner, OwnerFull)

	s.emit(ctx, TopicPostAdded, post)
	return post, nil
}

func (s *service) ListPosts(ctx context.Context, req ListPostsRequest) ([]*Post, error) {
	page := req.Page
	if page <= 0 {
		page = 1
	}
	if page > math.MaxInt32/DefaultPageSize {
		return []*Post{}, nil
	}

	posts, err := s.repository.ListPosts(ctx, ListPostsParams{
		Offset: (page - 1) * DefaultPageSize,
		Limit:  DefaultPageSize,
		Owner:  OwnerFull,
	})
	if err != nil {
		return nil, &PostError{Op: "list", Err: err}
	}
	return nonNil(posts), nil
}

func (s *service) ListPostsByUser(ctx context.Context, req ListPostsByUserRequest) ([]*Post, error) {
	owner, err := s.authenticate(ctx, req.Credentials)
	if err != nil {
		return nil, err
	}

	posts, err := s.repository.ListPostsByOwner(ctx, owner.ID, OwnerFull)
	if err != nil {
		return nil, &PostError{Op: "list_by_user", Err: err}
	}
	return nonNil(posts), nil
}

func (s *service) GetPost(ctx context.Context, id uuid.UUID) (*Post, error) {
	post, err := s.repository.GetPost(ctx, id, OwnerFull)
	if err != nil {
		return nil, &PostError{PostID: id, Op: "get", Err: err}
	}
	return post, nil
}

func (s *service) UpdatePost(ctx context.Context, req UpdatePostRequest) (*Post, error) {
	principal, err := s.resolve(ctx, req.Credentials)
	if err != nil {
		return nil, err
	}
	if err := validateContent(req.Content); err != nil {
		return nil, err
	}
	owner, err := s.lookupOwner(ctx, principal)
	if err != nil {
		return nil, err
	}

	// held through emit so events for this post follow commit order
	unlock := s.locks.lock(req.ID)
	defer unlock()

	existing, err := s.authorize(ctx, "update", req.ID, owner)
	if err != nil {
		return nil, err
	}

	updatedAt := s.now().UTC()
	if !updatedAt.After(existing.UpdatedAt) {
		updatedAt = existing.UpdatedAt.Add(time.Microsecond)
	}

	post, err := s.repository.UpdatePost(ctx, req.ID, owner.ID, req.Content, updatedAt)
	if err != nil {
		return nil, &PostError{PostID: req.ID, Op: "update", Err: err}
	}
	post.Project(owner, OwnerFull)

	s.emit(ctx, TopicPostUpdated, post)
	return post, nil
}

func (s *service) DeletePost(ctx context.Context, req DeletePostRequest) (*Post, error) {
	owner, err := s.authenticate(ctx, req.Credentials)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.lock(req.ID)
	defer unlock()

	if _, err := s.authorize(ctx, "delete", req.ID, owner); err != nil {
		return nil, err
	}

	post, err := s.repository.DeletePost(ctx, req.ID, owner.ID)
	if err != nil {
		return nil, &PostError{PostID: req.ID, Op: "delete", Err: err}
	}
	post.Project(owner, OwnerFull)

	s.emit(ctx, TopicPostDeleted, post)
	return post, nil
}

func (s *service) CountPosts(ctx context.Context) (int64, error) {
	n, err := s.repository.EstimatedPostCount(ctx)
	if err != nil {
		return 0, &PostError{Op: "count", Err: err}
	}
	return n, nil
}

func (s *service) SearchPosts(ctx context.Context, req SearchPostsRequest) ([]*Post, error) {
	query := ParseSearchQuery(req.Query)
	if query.Empty() {
		return []*Post{}, nil
	}

	posts, err := s.repository.SearchPosts(ctx, query, OwnerUsername)
	if err != nil {
		return nil, &PostError{Op: "search", Err: err}
	}
	return nonNil(posts), nil
}

// Change notifications

func (s *service) Subscribe(topic Topic) (*Subscription, error) {
	if !topic.IsValid() {
		return nil, &ValidationError{Field: "topic", Message: fmt.Sprintf("unknown topic %q", topic)}
	}
	return s.bus.Subscribe(string(topic)), nil
}

func (s *service) Unsubscribe(sub *Subscription) {
	s.bus.Unsubscribe(sub)
}

// Helpers

// resolve authenticates the caller without touching the repository.
func (s *service) resolve(ctx context.Context, creds Credentials) (*Principal, error) {
	if creds.Anonymous() {
		return nil, ErrUnauthenticated
	}
	principal, err := s.identity.Resolve(ctx, creds)
	if err != nil {
		return nil, err
	}
	if principal == nil || strings.TrimSpace(principal.Email) == "" {
		return nil, fmt.Errorf("%w: principal has no email", ErrUnauthenticated)
	}
	return principal, nil
}

// lookupOwner maps a principal to its registered user record.
func (s *service) lookupOwner(ctx context.Context, principal *Principal) (*User, error) {
	user, err := s.repository.GetUserByEmail(ctx, principal.Email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, fmt.Errorf("%w: principal is not a registered user", ErrUnauthenticated)
		}
		return nil, &UserError{Op: "lookup", Err: err}
	}
	return user, nil
}

func (s *service) authenticate(ctx context.Context, creds Credentials) (*User, error) {
	principal, err := s.resolve(ctx, creds)
	if err != nil {
		return nil, err
	}
	return s.lookupOwner(ctx, principal)
}

// authorize loads the post and checks that owner may mutate it. The error
// never names the actual owner.
func (s *service) authorize(ctx context.Context, op string, id uuid.UUID, owner *User) (*Post, error) {
	existing, err := s.repository.GetPost(ctx, id, OwnerNone)
	if err != nil {
		return nil, &PostError{PostID: id, Op: op, Err: err}
	}
	if !Allowed(owner.ID.String(), existing.OwnerID.String()) {
		return nil, &PostError{PostID: id, Op: op, Err: ErrUnauthorized}
	}
	return existing, nil
}

// emit notifies every sink. Sink failures are logged and never undo the write.
func (s *service) emit(ctx context.Context, topic Topic, post *Post) {
	for _, sink := range s.eventSinks {
		var err error
		switch topic {
		case TopicPostAdded:
			err = sink.PostAdded(ctx, post)
		case TopicPostUpdated:
			err = sink.PostUpdated(ctx, post)
		case TopicPostDeleted:
			err = sink.PostDeleted(ctx, post)
		}
		if err != nil {
			s.logger.WarnContext(ctx, "event sink failed",
				"topic", string(topic),
				"post_id", post.ID.String(),
				"error", err,
			)
		}
	}
}

func validateContent(content string) error {
	if strings.TrimSpace(content) == "" {
		return &ValidationError{Field: "content", Message: "content is required"}
	}
	return nil
}

func nonNil(posts []*Post) []*Post {
	if posts == nil {
		return []*Post{}
	}
	return posts
}

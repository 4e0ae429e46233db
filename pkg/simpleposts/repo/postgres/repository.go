package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tendant/simple-posts/pkg/simpleposts"
)

// DBTX is an interface that allows us to use either a database connection or a transaction
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Repository implements simpleposts.Repository using PostgreSQL
type Repository struct {
	db DBTX
}

// New creates a new PostgreSQL repository
func New(db DBTX) simpleposts.Repository {
	return &Repository{db: db}
}

// NewWithPool creates a new PostgreSQL repository with connection pool
func NewWithPool(pool *pgxpool.Pool) simpleposts.Repository {
	return &Repository{db: pool}
}

// handlePostgresError maps driver errors onto the library's error values.
func handlePostgresError(operation string, err error) error {
	if isUnavailable(err) {
		return fmt.Errorf("%w: %s: %v", simpleposts.ErrStoreUnavailable, operation, err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			if strings.HasPrefix(pgErr.ConstraintName, "users_") {
				return simpleposts.ErrUserExists
			}
			return fmt.Errorf("duplicate entry")
		case "23503": // foreign_key_violation
			return fmt.Errorf("%s: %w", operation, simpleposts.ErrUserNotFound)
		case "23502": // not_null_violation
			return fmt.Errorf("required field %s is missing", pgErr.ColumnName)
		case "42P01": // undefined_table
			return fmt.Errorf("table does not exist - database migration required")
		default:
			return fmt.Errorf("database error in %s: %s (code: %s)", operation, pgErr.Message, pgErr.Code)
		}
	}

	return fmt.Errorf("database error in %s: %w", operation, err)
}

func isUnavailable(err error) bool {
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) || pgconn.Timeout(err) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case strings.HasPrefix(pgErr.Code, "08"): // connection_exception
			return true
		case pgErr.Code == "53300", // too_many_connections
			pgErr.Code == "57P01", // admin_shutdown
			pgErr.Code == "57P02", // crash_shutdown
			pgErr.Code == "57P03": // cannot_connect_now
			return true
		}
	}
	return false
}

const postColumns = `p.id, p.content, p.owner_id, p.created_at, p.updated_at, u.username`

func scanPost(row pgx.Row, projection simpleposts.OwnerProjection) (*simpleposts.Post, error) {
	var post simpleposts.Post
	var username string
	if err := row.Scan(&post.ID, &post.Content, &post.OwnerID, &post.CreatedAt, &post.UpdatedAt, &username); err != nil {
		return nil, err
	}
	post.Project(&simpleposts.User{ID: post.OwnerID, Username: username}, projection)
	return &post, nil
}

func collectPosts(rows pgx.Rows, projection simpleposts.OwnerProjection) ([]*simpleposts.Post, error) {
	defer rows.Close()

	posts := []*simpleposts.Post{}
	for rows.Next() {
		post, err := scanPost(rows, projection)
		if err != nil {
			return nil, err
		}
		posts = append(posts, post)
	}
	return posts, rows.Err()
}

// Post operations

func (r *Repository) CreatePost(ctx context.Context, post *simpleposts.Post) error {
	query := `
		INSERT INTO posts (id, content, owner_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := r.db.Exec(ctx, query, post.ID, post.Content, post.OwnerID, post.CreatedAt, post.UpdatedAt)
	if err != nil {
		return handlePostgresError("create post", err)
	}
	return nil
}

func (r *Repository) GetPost(ctx context.Context, id uuid.UUID, projection simpleposts.OwnerProjection) (*simpleposts.Post, error) {
	query := `
		SELECT ` + postColumns + `
		FROM posts p JOIN users u ON u.id = p.owner_id
		WHERE p.id = $1`

	post, err := scanPost(r.db.QueryRow(ctx, query, id), projection)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, simpleposts.ErrPostNotFound
		}
		return nil, handlePostgresError("get post", err)
	}
	return post, nil
}

func (r *Repository) ListPosts(ctx context.Context, params simpleposts.ListPostsParams) ([]*simpleposts.Post, error) {
	query := `
		SELECT ` + postColumns + `
		FROM posts p JOIN users u ON u.id = p.owner_id
		ORDER BY p.created_at DESC, p.seq DESC
		OFFSET $1 LIMIT $2`

	var limit interface{}
	if params.Limit > 0 {
		limit = params.Limit
	}
	offset := params.Offset
	if offset < 0 {
		offset = 0
	}

	rows, err := r.db.Query(ctx, query, offset, limit)
	if err != nil {
		return nil, handlePostgresError("list posts", err)
	}
	posts, err := collectPosts(rows, params.Owner)
	if err != nil {
		return nil, handlePostgresError("list posts", err)
	}
	return posts, nil
}

func (r *Repository) ListPostsByOwner(ctx context.Context, ownerID uuid.UUID, projection simpleposts.OwnerProjection) ([]*simpleposts.Post, error) {
	query := `
		SELECT ` + postColumns + `
		FROM posts p JOIN users u ON u.id = p.owner_id
		WHERE p.owner_id = $1
		ORDER BY p.created_at DESC, p.seq DESC`

	rows, err := r.db.Query(ctx, query, ownerID)
	if err != nil {
		return nil, handlePostgresError("list posts by owner", err)
	}
	posts, err := collectPosts(rows, projection)
	if err != nil {
		return nil, handlePostgresError("list posts by owner", err)
	}
	return posts, nil
}

func (r *Repository) UpdatePost(ctx context.Context, id, ownerID uuid.UUID, content string, updatedAt time.Time) (*simpleposts.Post, error) {
	query := `
		UPDATE posts SET content = $3,
			updated_at = GREATEST(updated_at + interval '1 microsecond', $4)
		WHERE id = $1 AND owner_id = $2
		RETURNING id, content, owner_id, created_at, updated_at`

	var post simpleposts.Post
	err := r.db.QueryRow(ctx, query, id, ownerID, content, updatedAt).Scan(
		&post.ID, &post.Content, &post.OwnerID, &post.CreatedAt, &post.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, simpleposts.ErrPostNotFound
		}
		return nil, handlePostgresError("update post", err)
	}
	return &post, nil
}

func (r *Repository) DeletePost(ctx context.Context, id, ownerID uuid.UUID) (*simpleposts.Post, error) {
	query := `
		DELETE FROM posts
		WHERE id = $1 AND owner_id = $2
		RETURNING id, content, owner_id, created_at, updated_at`

	var post simpleposts.Post
	err := r.db.QueryRow(ctx, query, id, ownerID).Scan(
		&post.ID, &post.Content, &post.OwnerID, &post.CreatedAt, &post.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, simpleposts.ErrPostNotFound
		}
		return nil, handlePostgresError("delete post", err)
	}
	return &post, nil
}

// EstimatedPostCount reads the planner's row estimate. Tables that were
// never analyzed report no estimate, so those fall back to an exact count.
func (r *Repository) EstimatedPostCount(ctx context.Context) (int64, error) {
	query := `
		SELECT CASE WHEN c.reltuples < 0 THEN (SELECT count(*) FROM posts)
		            ELSE c.reltuples::bigint END
		FROM pg_class c
		WHERE c.oid = to_regclass('posts')`

	var n int64
	if err := r.db.QueryRow(ctx, query).Scan(&n); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, handlePostgresError("count posts", fmt.Errorf("posts table not found"))
		}
		return 0, handlePostgresError("count posts", err)
	}
	return n, nil
}

func (r *Repository) SearchPosts(ctx context.Context, query simpleposts.SearchQuery, projection simpleposts.OwnerProjection) ([]*simpleposts.Post, error) {
	tsquery := query.TSQuery()
	if tsquery == "" {
		return []*simpleposts.Post{}, nil
	}

	sql := `
		SELECT ` + postColumns + `
		FROM posts p
		JOIN users u ON u.id = p.owner_id,
		     to_tsquery('simple', $1) q
		WHERE p.search @@ q
		ORDER BY ts_rank(p.search, q) DESC, p.created_at DESC, p.seq DESC`

	rows, err := r.db.Query(ctx, sql, tsquery)
	if err != nil {
		return nil, handlePostgresError("search posts", err)
	}
	posts, err := collectPosts(rows, projection)
	if err != nil {
		return nil, handlePostgresError("search posts", err)
	}
	return posts, nil
}

// User operations

const userColumns = `id, email, username, name, about, images, created_at, updated_at`

func scanUser(row pgx.Row) (*simpleposts.User, error) {
	var user simpleposts.User
	if err := row.Scan(&user.ID, &user.Email, &user.Username, &user.Name, &user.About,
		&user.Images, &user.CreatedAt, &user.UpdatedAt); err != nil {
		return nil, err
	}
	if user.Images == nil {
		user.Images = []simpleposts.Image{}
	}
	return &user, nil
}

func (r *Repository) getUser(ctx context.Context, op, where string, arg interface{}) (*simpleposts.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE ` + where

	user, err := scanUser(r.db.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, simpleposts.ErrUserNotFound
		}
		return nil, handlePostgresError(op, err)
	}
	return user, nil
}

func (r *Repository) CreateUser(ctx context.Context, user *simpleposts.User) error {
	query := `
		INSERT INTO users (` + userColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.db.Exec(ctx, query, user.ID, user.Email, user.Username, user.Name, user.About,
		imagesOrEmpty(user.Images), user.CreatedAt, user.UpdatedAt)
	if err != nil {
		return handlePostgresError("create user", err)
	}
	return nil
}

func (r *Repository) GetUser(ctx context.Context, id uuid.UUID) (*simpleposts.User, error) {
	return r.getUser(ctx, "get user", "id = $1", id)
}

func (r *Repository) GetUserByEmail(ctx context.Context, email string) (*simpleposts.User, error) {
	return r.getUser(ctx, "get user by email", "lower(email) = lower($1)", strings.TrimSpace(email))
}

func (r *Repository) GetUserByUsername(ctx context.Context, username string) (*simpleposts.User, error) {
	return r.getUser(ctx, "get user by username", "lower(username) = lower($1)", strings.TrimSpace(username))
}

func (r *Repository) UpdateUser(ctx context.Context, user *simpleposts.User) error {
	query := `
		UPDATE users SET
			email = $2, username = $3, name = $4, about = $5, images = $6, updated_at = $7
		WHERE id = $1`

	tag, err := r.db.Exec(ctx, query, user.ID, user.Email, user.Username, user.Name, user.About,
		imagesOrEmpty(user.Images), user.UpdatedAt)
	if err != nil {
		return handlePostgresError("update user", err)
	}
	if tag.RowsAffected() == 0 {
		return simpleposts.ErrUserNotFound
	}
	return nil
}

func (r *Repository) ListUsers(ctx context.Context) ([]*simpleposts.User, error) {
	query := `SELECT ` + userColumns + ` FROM users ORDER BY username`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, handlePostgresError("list users", err)
	}
	defer rows.Close()

	users := []*simpleposts.User{}
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, handlePostgresError("list users", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, handlePostgresError("list users", err)
	}
	return users, nil
}

func imagesOrEmpty(images []simpleposts.Image) []simpleposts.Image {
	if images == nil {
		return []simpleposts.Image{}
	}
	return images
}

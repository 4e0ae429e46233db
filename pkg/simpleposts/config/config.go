package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tendant/simple-posts/pkg/simpleposts"
	"github.com/tendant/simple-posts/pkg/simpleposts/identity"
	"github.com/tendant/simple-posts/pkg/simpleposts/repo/memory"
	repopg "github.com/tendant/simple-posts/pkg/simpleposts/repo/postgres"
	fsstorage "github.com/tendant/simple-posts/pkg/simpleposts/storage/fs"
	memorystorage "github.com/tendant/simple-posts/pkg/simpleposts/storage/memory"
	s3storage "github.com/tendant/simple-posts/pkg/simpleposts/storage/s3"
)

// DevJWTSecret signs tokens when no secret is configured. Validate rejects it
// in production.
const DevJWTSecret = "dev-secret-change-me"

// Option applies configuration to a ServerConfig instance.
type Option func(*ServerConfig) error

// Load constructs a ServerConfig by applying the supplied options on top of library defaults.
func Load(opts ...Option) (*ServerConfig, error) {
	cfg := defaults()

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func defaults() ServerConfig {
	return ServerConfig{
		Port:               "8080",
		Environment:        "development",
		DatabaseType:       "memory",
		DBSchema:           "posts",
		JWTSecret:          DevJWTSecret,
		StorageType:        "memory",
		EnableEventLogging: true,
	}
}

// ServerConfig represents server configuration for the simple-posts service
type ServerConfig struct {
	Port        string
	Environment string // development, production, testing

	// Database configuration
	DatabaseURL  string
	DatabaseType string // "memory", "postgres"
	DBSchema     string // Postgres schema to use (default: posts)
	AutoMigrate  bool   // create the schema and tables on startup

	// Identity
	JWTSecret string

	// Image storage configuration
	StorageType    string // "memory", "fs", "s3", "none"
	StorageBaseURL string // URL prefix for the memory and fs backends
	StorageDir     string // base directory for the fs backend
	S3             s3storage.Config

	// Server options
	EnableEventLogging bool
}

// Validate validates the server configuration
func (c *ServerConfig) Validate() error {
	if c.Port == "" {
		return errors.New("port is required")
	}

	if c.DatabaseType != "memory" && c.DatabaseType != "postgres" {
		return errors.New("database_type must be 'memory' or 'postgres'")
	}

	if c.DatabaseType == "postgres" && c.DatabaseURL == "" {
		return errors.New("database_url is required when using postgres")
	}

	if c.JWTSecret == "" {
		return errors.New("jwt_secret is required")
	}
	if c.Environment == "production" && c.JWTSecret == DevJWTSecret {
		return errors.New("jwt_secret must be set in production")
	}

	switch c.StorageType {
	case "memory", "none":
	case "fs":
		if c.StorageDir == "" {
			return errors.New("storage directory is required when using fs storage")
		}
		if c.StorageBaseURL == "" {
			return errors.New("media base url is required when using fs storage")
		}
	case "s3":
		if c.S3.Bucket == "" {
			return errors.New("s3 bucket is required when using s3 storage")
		}
	default:
		return fmt.Errorf("unsupported storage type: %s", c.StorageType)
	}

	return nil
}

// Components holds everything built from a ServerConfig.
type Components struct {
	Service  simpleposts.Service
	Users    simpleposts.UserService
	Identity *identity.Resolver
	Bus      *simpleposts.EventBus

	// Media serves stored images for backends without public URLs of their
	// own (memory and fs). It is nil otherwise.
	Media simpleposts.BlobDownloader

	// Ready reports whether the backing store can serve requests.
	Ready func(ctx context.Context) error

	closers []func()
}

// Close releases the event bus and database connections.
func (c *Components) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	c.closers = nil
}

// Build creates the post and user services from the server configuration.
// Both services share one repository and one event bus.
func (c *ServerConfig) Build(ctx context.Context, logger *slog.Logger) (*Components, error) {
	if logger == nil {
		logger = slog.Default()
	}
	comps := &Components{
		Ready: func(context.Context) error { return nil },
	}

	repo, err := c.buildRepository(ctx, comps)
	if err != nil {
		comps.Close()
		return nil, fmt.Errorf("failed to build repository: %w", err)
	}

	resolver, err := identity.New(c.JWTSecret)
	if err != nil {
		comps.Close()
		return nil, fmt.Errorf("failed to build identity resolver: %w", err)
	}
	comps.Identity = resolver

	comps.Bus = simpleposts.NewEventBus()
	comps.closers = append(comps.closers, comps.Bus.Close)

	options := []simpleposts.Option{
		simpleposts.WithRepository(repo),
		simpleposts.WithIdentityResolver(resolver),
		simpleposts.WithEventBus(comps.Bus),
		simpleposts.WithLogger(logger),
	}

	store, err := c.buildStorageBackend()
	if err != nil {
		comps.Close()
		return nil, fmt.Errorf("failed to build storage backend %s: %w", c.StorageType, err)
	}
	if store != nil {
		options = append(options, simpleposts.WithBlobStore(c.StorageType, store))
		if d, ok := store.(simpleposts.BlobDownloader); ok {
			comps.Media = d
		}
	}

	if c.EnableEventLogging {
		options = append(options, simpleposts.WithEventSink(simpleposts.NewLoggingEventSink(logger)))
	}

	if comps.Service, err = simpleposts.New(options...); err != nil {
		comps.Close()
		return nil, err
	}
	if comps.Users, err = simpleposts.NewUserService(options...); err != nil {
		comps.Close()
		return nil, err
	}

	return comps, nil
}

// buildRepository creates a Repository based on the configuration
func (c *ServerConfig) buildRepository(ctx context.Context, comps *Components) (simpleposts.Repository, error) {
	switch c.DatabaseType {
	case "memory":
		return memory.New(), nil
	case "postgres":
		pool, err := NewPool(ctx, c.DatabaseURL, c.DBSchema)
		if err != nil {
			return nil, err
		}
		comps.closers = append(comps.closers, pool.Close)
		comps.Ready = pool.Ping

		if c.AutoMigrate {
			if err := migrate(ctx, pool, c.DBSchema); err != nil {
				return nil, err
			}
		}
		return repopg.NewWithPool(pool), nil
	default:
		return nil, fmt.Errorf("unsupported database type: %s", c.DatabaseType)
	}
}

// NewPool opens a pgx pool whose sessions use schema as their search_path.
func NewPool(ctx context.Context, databaseURL, schema string) (*pgxpool.Pool, error) {
	if databaseURL == "" {
		return nil, errors.New("database_url is required for postgres")
	}
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DATABASE_URL: %w", err)
	}
	if schema != "" {
		searchPath := pgx.Identifier{schema}.Sanitize()
		cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
			_, err := conn.Exec(ctx, "SET search_path TO "+searchPath)
			return err
		}
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create pgx pool: %w", err)
	}
	return pool, nil
}

// PingPostgres verifies connectivity to Postgres using the given schema.
func PingPostgres(ctx context.Context, databaseURL, schema string) error {
	pool, err := NewPool(ctx, databaseURL, schema)
	if err != nil {
		return err
	}
	defer pool.Close()

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	return nil
}

func migrate(ctx context.Context, pool *pgxpool.Pool, schema string) error {
	if schema != "" {
		if _, err := pool.Exec(ctx, "CREATE SCHEMA IF NOT EXISTS "+pgx.Identifier{schema}.Sanitize()); err != nil {
			return fmt.Errorf("failed to create schema %s: %w", schema, err)
		}
	}
	if err := repopg.Migrate(ctx, pool); err != nil {
		return fmt.Errorf("failed to migrate: %w", err)
	}
	return nil
}

// buildStorageBackend creates the image BlobStore. It returns nil when
// image storage is disabled.
func (c *ServerConfig) buildStorageBackend() (simpleposts.BlobStore, error) {
	switch c.StorageType {
	case "memory":
		return memorystorage.New(c.StorageBaseURL), nil
	case "fs":
		return fsstorage.New(fsstorage.Config{BaseDir: c.StorageDir, URLPrefix: c.StorageBaseURL})
	case "s3":
		return s3storage.New(c.S3)
	case "none", "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported storage backend type: %s", c.StorageType)
	}
}

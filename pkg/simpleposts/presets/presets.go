// Package presets builds ready-to-use service components for common setups.
package presets

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/tendant/simple-posts/pkg/simpleposts/config"
)

// NewDevelopment builds components for local development.
//
// Features:
//   - In-memory database (instant startup, no setup required)
//   - Filesystem image storage at ./dev-data/, served under /media
//   - Development JWT secret
//   - Event logging enabled
//
// The cleanup function closes the components and removes the storage directory.
//
// Example:
//
//	comps, cleanup, err := presets.NewDevelopment()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer cleanup()
func NewDevelopment(opts ...DevelopmentOption) (*config.Components, func(), error) {
	cfg := &devConfig{
		storageDir: "./dev-data",
		port:       "8080",
	}
	for _, opt := range opts {
		opt(cfg)
	}

	serverConfig, err := config.Load(
		config.WithPort(cfg.port),
		config.WithEnvironment("development"),
		config.WithFilesystemStorage(cfg.storageDir, fmt.Sprintf("http://localhost:%s/media", cfg.port)),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load development config: %w", err)
	}

	comps, err := serverConfig.Build(context.Background(), nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build development components: %w", err)
	}

	cleanup := func() {
		comps.Close()
		os.RemoveAll(cfg.storageDir)
	}
	return comps, cleanup, nil
}

// NewTesting builds isolated in-memory components for a test. They are
// closed automatically when the test completes.
//
// Example:
//
//	func TestMyFeature(t *testing.T) {
//	    comps := presets.NewTesting(t)
//	    // use comps.Service, comps.Users ...
//	}
func NewTesting(t testing.TB, opts ...TestingOption) *config.Components {
	t.Helper()
	cfg := &testConfig{
		mediaBaseURL: "http://media.test",
	}
	for _, opt := range opts {
		opt(cfg)
	}

	options := []config.Option{
		config.WithEnvironment("testing"),
		config.WithJWTSecret("testing-secret"),
		config.WithMemoryStorage(cfg.mediaBaseURL),
		config.WithEventLogging(cfg.eventLogging),
	}
	if cfg.noImages {
		options = append(options, config.WithoutImageStorage())
	}

	serverConfig, err := config.Load(options...)
	if err != nil {
		t.Fatalf("failed to load test config: %v", err)
	}
	comps, err := serverConfig.Build(context.Background(), nil)
	if err != nil {
		t.Fatalf("failed to build test components: %v", err)
	}
	t.Cleanup(comps.Close)

	return comps
}

type devConfig struct {
	storageDir string
	port       string
}

type testConfig struct {
	mediaBaseURL string
	eventLogging bool
	noImages     bool
}

// DevelopmentOption is a functional option for NewDevelopment
type DevelopmentOption func(*devConfig)

// WithDevStorage sets the development storage directory
func WithDevStorage(dir string) DevelopmentOption {
	return func(cfg *devConfig) {
		cfg.storageDir = dir
	}
}

// WithDevPort sets the port used to build media URLs
func WithDevPort(port string) DevelopmentOption {
	return func(cfg *devConfig) {
		cfg.port = port
	}
}

// TestingOption is a functional option for NewTesting
type TestingOption func(*testConfig)

// WithTestMediaURL sets the URL prefix of uploaded images
func WithTestMediaURL(baseURL string) TestingOption {
	return func(cfg *testConfig) {
		cfg.mediaBaseURL = baseURL
	}
}

// WithTestEventLogging logs every post event
func WithTestEventLogging() TestingOption {
	return func(cfg *testConfig) {
		cfg.eventLogging = true
	}
}

// WithoutTestImages disables image storage
func WithoutTestImages() TestingOption {
	return func(cfg *testConfig) {
		cfg.noImages = true
	}
}

package memory

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"

	"github.com/tendant/simple-posts/pkg/simpleposts"
)

// ErrObjectNotFound is returned for unknown keys.
var ErrObjectNotFound = errors.New("object not found")

type object struct {
	data        []byte
	contentType string
}

// Backend is an in-memory implementation of the simpleposts.BlobStore interface
type Backend struct {
	mu      sync.RWMutex
	objects map[string]object
	baseURL string
}

// New creates a new in-memory storage backend. URLs are built as
// baseURL + "/" + key; an empty baseURL yields "memory://" URLs.
func New(baseURL string) simpleposts.BlobStore {
	baseURL = strings.TrimSuffix(baseURL, "/")
	if baseURL == "" {
		baseURL = "memory:/"
	}
	return &Backend{
		objects: make(map[string]object),
		baseURL: baseURL,
	}
}

// Upload stores the content under key
func (b *Backend) Upload(ctx context.Context, key string, reader io.Reader, contentType string) error {
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[key] = object{data: data, contentType: contentType}
	return nil
}

// Delete removes the object under key
func (b *Backend) Delete(ctx context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.objects[key]; !exists {
		return ErrObjectNotFound
	}
	delete(b.objects, key)
	return nil
}

// URL returns the address of the object under key
func (b *Backend) URL(ctx context.Context, key string) (string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if _, exists := b.objects[key]; !exists {
		return "", ErrObjectNotFound
	}
	return b.baseURL + "/" + key, nil
}

// Download returns the stored content and its content type
func (b *Backend) Download(ctx context.Context, key string) (io.ReadCloser, string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	obj, exists := b.objects[key]
	if !exists {
		return nil, "", ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(obj.data)), obj.contentType, nil
}

package fs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/tendant/simple-posts/pkg/simpleposts"
)

var (
	// ErrObjectNotFound is returned for keys with no file behind them.
	ErrObjectNotFound = errors.New("object not found")
	// ErrInvalidKey is returned for keys that would resolve outside BaseDir.
	ErrInvalidKey = errors.New("invalid object key")
)

// Backend is a filesystem implementation of the simpleposts.BlobStore interface
type Backend struct {
	baseDir   string
	urlPrefix string
}

// Config options for the filesystem backend
type Config struct {
	BaseDir   string // Base directory for storing files
	URLPrefix string // URL prefix the HTTP server serves BaseDir under
}

// New creates a new filesystem storage backend
func New(config Config) (simpleposts.BlobStore, error) {
	if config.BaseDir == "" {
		return nil, errors.New("base directory is required")
	}

	baseDir, err := filepath.Abs(config.BaseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve base directory: %w", err)
	}
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	return &Backend{
		baseDir:   baseDir,
		urlPrefix: strings.TrimSuffix(config.URLPrefix, "/"),
	}, nil
}

func (b *Backend) path(key string) (string, error) {
	p := filepath.Join(b.baseDir, filepath.FromSlash(key))
	if p == b.baseDir || !strings.HasPrefix(p, b.baseDir+string(filepath.Separator)) {
		return "", ErrInvalidKey
	}
	return p, nil
}

// Upload writes content to BaseDir/key. The content type is not stored;
// Download detects it from the file contents.
func (b *Backend) Upload(ctx context.Context, key string, reader io.Reader, contentType string) error {
	filePath, err := b.path(key)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	// write to a temp file so readers never see a partial image
	tmp, err := os.CreateTemp(filepath.Dir(filePath), ".upload-*")
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, reader); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := os.Rename(tmp.Name(), filePath); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}

// Delete removes the file under key and any directories it leaves empty
func (b *Backend) Delete(ctx context.Context, key string) error {
	filePath, err := b.path(key)
	if err != nil {
		return err
	}

	if err := os.Remove(filePath); err != nil {
		if os.IsNotExist(err) {
			return ErrObjectNotFound
		}
		return fmt.Errorf("failed to delete file: %w", err)
	}

	b.cleanupEmptyDirectories(filepath.Dir(filePath))
	return nil
}

// URL returns URLPrefix + "/" + key
func (b *Backend) URL(ctx context.Context, key string) (string, error) {
	if b.urlPrefix == "" {
		return "", errors.New("url prefix is required to serve filesystem objects")
	}
	if _, err := b.path(key); err != nil {
		return "", err
	}
	return b.urlPrefix + "/" + key, nil
}

// Download opens the file under key and sniffs its content type
func (b *Backend) Download(ctx context.Context, key string) (io.ReadCloser, string, error) {
	filePath, err := b.path(key)
	if err != nil {
		return nil, "", err
	}

	file, err := os.Open(filePath)
	if os.IsNotExist(err) {
		return nil, "", ErrObjectNotFound
	} else if err != nil {
		return nil, "", fmt.Errorf("failed to open file: %w", err)
	}

	buffer := make([]byte, 512)
	n, err := file.Read(buffer)
	if err != nil && err != io.EOF {
		file.Close()
		return nil, "", fmt.Errorf("failed to read file: %w", err)
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		file.Close()
		return nil, "", fmt.Errorf("failed to rewind file: %w", err)
	}

	return file, http.DetectContentType(buffer[:n]), nil
}

// cleanupEmptyDirectories recursively removes empty directories up to baseDir
func (b *Backend) cleanupEmptyDirectories(dir string) {
	if dir == b.baseDir {
		return
	}

	if entries, err := os.ReadDir(dir); err == nil && len(entries) == 0 {
		if os.Remove(dir) == nil {
			b.cleanupEmptyDirectories(filepath.Dir(dir))
		}
	}
}

package memory

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryBackend_UploadURLDelete(t *testing.T) {
	store := New("http://localhost:8080/images")
	ctx := context.Background()

	err := store.Upload(ctx, "images/a.png", strings.NewReader("png-bytes"), "image/png")
	require.NoError(t, err)

	url, err := store.URL(ctx, "images/a.png")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080/images/images/a.png", url)

	rc, contentType, err := store.(*Backend).Download(ctx, "images/a.png")
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", string(data))
	assert.Equal(t, "image/png", contentType)

	require.NoError(t, store.Delete(ctx, "images/a.png"))
	_, err = store.URL(ctx, "images/a.png")
	assert.ErrorIs(t, err, ErrObjectNotFound)
	assert.ErrorIs(t, store.Delete(ctx, "images/a.png"), ErrObjectNotFound)
}

func TestMemoryBackend_DefaultBaseURL(t *testing.T) {
	store := New("")
	ctx := context.Background()

	require.NoError(t, store.Upload(ctx, "k", strings.NewReader("x"), ""))
	url, err := store.URL(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "memory://k", url)

	_, contentType, err := store.(*Backend).Download(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "application/octet-stream", contentType)
}

package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pngBytes(t *testing.T) []byte {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 4, 4))))
	return buf.Bytes()
}

func TestValidateFile(t *testing.T) {
	data, mime, err := ValidateFile(bytes.NewReader(pngBytes(t)), CreativeMimeTypes, 1<<20)
	require.NoError(t, err)
	assert.Equal(t, "image/png", mime)
	assert.NotEmpty(t, data)

	_, _, err = ValidateFile(bytes.NewReader(nil), CreativeMimeTypes, 1<<20)
	assert.ErrorIs(t, err, ErrEmptyFile)

	_, _, err = ValidateFile(bytes.NewReader([]byte("GIF89a......")), CreativeMimeTypes, 1<<20)
	assert.ErrorIs(t, err, ErrInvalidMimeType)

	_, _, err = ValidateFile(bytes.NewReader(pngBytes(t)), CreativeMimeTypes, 8)
	assert.ErrorIs(t, err, ErrFileTooLarge)
}

func TestLocalStorage_PutDelete(t *testing.T) {
	dir := t.TempDir()
	s, err := NewLocalStorage(dir, "http://cdn.local/uploads/")
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, s.Put(ctx, "ads/a.png", bytes.NewReader([]byte("x")), "image/png"))
	_, err = os.Stat(filepath.Join(dir, "ads", "a.png"))
	require.NoError(t, err)
	assert.Equal(t, "http://cdn.local/uploads/ads/a.png", s.URL("ads/a.png"))

	require.NoError(t, s.Delete(ctx, "ads/a.png"))
	require.NoError(t, s.Delete(ctx, "ads/a.png"))

	assert.Error(t, s.Put(ctx, "../escape.png", bytes.NewReader([]byte("x")), "image/png"))
}

func TestNew_SelectsLocalWithoutBucket(t *testing.T) {
	s, err := New(context.Background(), Config{LocalDir: t.TempDir(), PublicURL: "http://x"})
	require.NoError(t, err)
	_, ok := s.(*LocalStorage)
	assert.True(t, ok)
}

func TestS3IsNotFound(t *testing.T) {
	assert.True(t, isNotFound(fmt.Errorf("delete: %w", &smithy.GenericAPIError{Code: "NoSuchKey"})))
	assert.True(t, isNotFound(&smithy.GenericAPIError{Code: "NotFound"}))
	assert.False(t, isNotFound(&smithy.GenericAPIError{Code: "AccessDenied"}))
	assert.False(t, isNotFound(errors.New("dial tcp: timeout")))
}

package ads

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/shopads/ads-api/internal/pkg/imaging"
	"github.com/shopads/ads-api/internal/pkg/storage"
)

// MediaFile is one uploaded creative before validation
type MediaFile struct {
	Name   string
	Reader io.Reader
}

// MediaUploader validates, normalises and stores ad creatives
type MediaUploader struct {
	storage   storage.Storage
	processor *imaging.Processor
	maxFiles  int
	maxSize   int64
}

// NewMediaUploader creates an uploader. A nil store disables uploads.
func NewMediaUploader(store storage.Storage, processor *imaging.Processor, maxFiles int, maxSize int64) *MediaUploader {
	if maxFiles <= 0 {
		maxFiles = 5
	}
	if maxSize <= 0 {
		maxSize = 10 << 20
	}
	return &MediaUploader{
		storage:   store,
		processor: processor,
		maxFiles:  maxFiles,
		maxSize:   maxSize,
	}
}

// MaxFiles is the per-request file limit
func (u *MediaUploader) MaxFiles() int { return u.maxFiles }

// MaxSize is the per-file byte limit
func (u *MediaUploader) MaxSize() int64 { return u.maxSize }

// UploadAdMedia stores every file or none of them. Already stored objects are
// removed when a later file fails.
func (u *MediaUploader) UploadAdMedia(ctx context.Context, files []MediaFile) ([]UploadedMedia, error) {
	if u == nil || u.storage == nil {
		return nil, ErrMediaUnavailable
	}
	if len(files) == 0 {
		return nil, ErrNoMediaFiles
	}
	if len(files) > u.maxFiles {
		return nil, fmt.Errorf("%w: at most %d files", ErrTooManyMediaFiles, u.maxFiles)
	}

	uploaded := make([]UploadedMedia, 0, len(files))
	var stored []string

	cleanup := func() {
		for _, key := range stored {
			if err := u.storage.Delete(context.Background(), key); err != nil {
				log.Warn().Err(err).Str("key", key).Msg("Failed to remove uploaded ad media")
			}
		}
	}

	for _, f := range files {
		data, mimeType, err := storage.ValidateFile(f.Reader, storage.CreativeMimeTypes, u.maxSize)
		if err != nil {
			cleanup()
			return nil, fmt.Errorf("%w: %s: %v", ErrMediaUpload, f.Name, err)
		}

		img, err := u.processor.Process(data, mimeType)
		if err != nil {
			cleanup()
			return nil, fmt.Errorf("%w: %s: %v", ErrMediaUpload, f.Name, err)
		}

		publicID := "ads/" + uuid.New().String()
		key := publicID + storage.ExtensionForMime(img.ContentType)
		if err := u.storage.Put(ctx, key, bytes.NewReader(img.Data), img.ContentType); err != nil {
			log.Error().Err(err).Str("key", key).Msg("Error storing ad media")
			cleanup()
			return nil, fmt.Errorf("%w: %v", ErrMediaUpload, err)
		}
		stored = append(stored, key)

		uploaded = append(uploaded, UploadedMedia{
			PublicID:     publicID,
			URL:          u.storage.URL(key),
			Format:       img.Format,
			Width:        img.Width,
			Height:       img.Height,
			ResourceType: "image",
		})
	}

	return uploaded, nil
}

// isMediaError reports whether err is a client-side upload failure
func isMediaError(err error) bool {
	return errors.Is(err, ErrMediaUpload) ||
		errors.Is(err, ErrNoMediaFiles) ||
		errors.Is(err, ErrTooManyMediaFiles)
}

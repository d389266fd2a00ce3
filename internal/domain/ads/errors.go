package ads

import "errors"

var (
	ErrAdNotFound         = errors.New("advertisement not found")
	ErrInvalidDateRange   = errors.New("end date must be after start date")
	ErrInvalidContent     = errors.New("invalid ad content")
	ErrInvalidBudget      = errors.New("budget must be a positive value")
	ErrInvalidStatus      = errors.New("invalid advertisement status")
	ErrInvalidInteraction = errors.New("invalid interaction")
	ErrNoMediaFiles       = errors.New("no media files provided")
	ErrTooManyMediaFiles  = errors.New("too many media files")
	ErrMediaUpload        = errors.New("failed to upload media files")
	ErrMediaUnavailable   = errors.New("media storage is not configured")
)

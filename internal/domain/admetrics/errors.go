package admetrics

import "errors"

var (
	ErrAdNotFound         = errors.New("advertisement not found")
	ErrNoAdsToCompare     = errors.New("at least one advertisement id is required")
	ErrUnknownInteraction = errors.New("unknown interaction type")
)

package imaging

import (
	"bytes"
	"fmt"

	"github.com/disintegration/imaging"
)

// ProcessedImage is a creative ready for storage
type ProcessedImage struct {
	Data        []byte
	ContentType string
	Format      string // jpg or png
	Width       int
	Height      int
}

// Config for image processing
type Config struct {
	MaxEdge int // longest allowed side, larger images are downscaled
	Quality int // JPEG quality 1-100
}

// DefaultConfig returns default processing config
func DefaultConfig() Config {
	return Config{MaxEdge: 2000, Quality: 85}
}

// Processor normalises uploaded creatives
type Processor struct {
	config Config
}

// NewProcessor creates image processor
func NewProcessor(config Config) *Processor {
	if config.MaxEdge <= 0 {
		config.MaxEdge = DefaultConfig().MaxEdge
	}
	if config.Quality <= 0 || config.Quality > 100 {
		config.Quality = DefaultConfig().Quality
	}
	return &Processor{config: config}
}

// Process decodes the image (honouring EXIF orientation), downscales it when
// either side exceeds MaxEdge and re-encodes it in its original format.
func (p *Processor) Process(data []byte, contentType string) (*ProcessedImage, error) {
	var format imaging.Format
	var name string
	switch contentType {
	case "image/jpeg":
		format, name = imaging.JPEG, "jpg"
	case "image/png":
		format, name = imaging.PNG, "png"
	default:
		return nil, fmt.Errorf("unsupported image type: %s", contentType)
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	bounds := img.Bounds()
	if bounds.Dx() > p.config.MaxEdge || bounds.Dy() > p.config.MaxEdge {
		img = imaging.Fit(img, p.config.MaxEdge, p.config.MaxEdge, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, format, imaging.JPEGQuality(p.config.Quality)); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}

	return &ProcessedImage{
		Data:        buf.Bytes(),
		ContentType: contentType,
		Format:      name,
		Width:       img.Bounds().Dx(),
		Height:      img.Bounds().Dy(),
	}, nil
}

package imaging

import (
	"bytes"
	"image"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodePNG(t *testing.T, w, h int) []byte {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))))
	return buf.Bytes()
}

func TestProcess_KeepsSmallImages(t *testing.T) {
	p := NewProcessor(DefaultConfig())
	out, err := p.Process(encodePNG(t, 40, 20), "image/png")
	require.NoError(t, err)

	assert.Equal(t, "png", out.Format)
	assert.Equal(t, 40, out.Width)
	assert.Equal(t, 20, out.Height)
}

func TestProcess_DownscalesLargeImages(t *testing.T) {
	p := NewProcessor(Config{MaxEdge: 50})
	out, err := p.Process(encodePNG(t, 200, 100), "image/png")
	require.NoError(t, err)

	assert.Equal(t, 50, out.Width)
	assert.Equal(t, 25, out.Height)
}

func TestProcess_RejectsUnsupported(t *testing.T) {
	p := NewProcessor(DefaultConfig())
	_, err := p.Process([]byte("GIF89a"), "image/gif")
	assert.Error(t, err)
}

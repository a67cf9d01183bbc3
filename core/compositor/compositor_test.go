package compositor

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func jpegFixture(t *testing.T, width, height int, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for x := 0; x < width; x++ {
		for y := 0; y < height; y++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}))
	return buf.Bytes()
}

func TestSideBySideDimensions(t *testing.T) {
	left := jpegFixture(t, 40, 30, color.RGBA{R: 200, A: 255})
	right := jpegFixture(t, 60, 30, color.RGBA{B: 200, A: 255})

	out, err := SideBySide(left, right)
	require.NoError(t, err)

	cfg, format, err := image.DecodeConfig(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
	assert.Equal(t, 100, cfg.Width)
	assert.Equal(t, 30, cfg.Height)
}

func TestSideBySideScalesToTallerImage(t *testing.T) {
	// Left is 40x30, right is 30x60: left scales 2x to 80x60
	left := jpegFixture(t, 40, 30, color.RGBA{R: 200, A: 255})
	right := jpegFixture(t, 30, 60, color.RGBA{B: 200, A: 255})

	out, err := SideBySide(left, right)
	require.NoError(t, err)

	cfg, _, err := image.DecodeConfig(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, 110, cfg.Width)
	assert.Equal(t, 60, cfg.Height)
}

func TestSideBySideDeterministic(t *testing.T) {
	left := jpegFixture(t, 32, 24, color.RGBA{R: 180, G: 40, A: 255})
	right := jpegFixture(t, 24, 32, color.RGBA{G: 180, B: 40, A: 255})

	first, err := SideBySide(left, right)
	require.NoError(t, err)
	second, err := SideBySide(left, right)
	require.NoError(t, err)

	assert.Equal(t, first, second, "identical inputs must produce identical bytes")
}

func TestSideBySidePlacement(t *testing.T) {
	left := jpegFixture(t, 20, 20, color.RGBA{R: 255, A: 255})
	right := jpegFixture(t, 20, 20, color.RGBA{B: 255, A: 255})

	out, err := SideBySide(left, right)
	require.NoError(t, err)

	img, _, err := image.Decode(bytes.NewReader(out))
	require.NoError(t, err)

	r, _, b, _ := img.At(5, 10).RGBA()
	assert.Greater(t, r, b, "left half should come from the first input")

	r, _, b, _ = img.At(35, 10).RGBA()
	assert.Greater(t, b, r, "right half should come from the second input")
}

func TestSideBySideInvalidInput(t *testing.T) {
	valid := jpegFixture(t, 10, 10, color.White)

	_, err := SideBySide([]byte("not an image"), valid)
	assert.ErrorIs(t, err, ErrInvalidImage)

	_, err = SideBySide(valid, nil)
	assert.ErrorIs(t, err, ErrInvalidImage)
}

package imaging

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solid(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func jpegBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, solid(w, h, color.RGBA{200, 30, 30, 255}), &jpeg.Options{Quality: 90}))
	return buf.Bytes()
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, solid(w, h, color.RGBA{30, 30, 200, 255})))
	return buf.Bytes()
}

func TestNormalizeKeepsSmallPhotos(t *testing.T) {
	img, err := Normalize(bytes.NewReader(jpegBytes(t, 120, 80)))
	require.NoError(t, err)

	assert.Equal(t, "image/jpeg", img.MIME)
	assert.Equal(t, 120, img.Width)
	assert.Equal(t, 80, img.Height)
	assert.NotEmpty(t, img.Data)
}

func TestNormalizeConvertsPNGToJPEG(t *testing.T) {
	img, err := Normalize(bytes.NewReader(pngBytes(t, 64, 64)))
	require.NoError(t, err)

	assert.Equal(t, "image/jpeg", img.MIME)
	_, format, err := image.Decode(bytes.NewReader(img.Data))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
}

func TestNormalizeShrinksLargePhotosKeepingAspect(t *testing.T) {
	img, err := Normalize(bytes.NewReader(pngBytes(t, 3200, 1600)))
	require.NoError(t, err)

	assert.Equal(t, MaxDimension, img.Width)
	assert.Equal(t, MaxDimension/2, img.Height)

	decoded, _, err := image.Decode(bytes.NewReader(img.Data))
	require.NoError(t, err)
	assert.Equal(t, MaxDimension, decoded.Bounds().Dx())
}

func TestNormalizeRejectsOtherFormats(t *testing.T) {
	_, err := Normalize(bytes.NewReader([]byte("GIF89a not really")))
	assert.ErrorContains(t, err, "unsupported image format")

	_, err = Normalize(bytes.NewReader([]byte("plain text")))
	assert.Error(t, err)
}

func TestNormalizeRejectsOversizedUploads(t *testing.T) {
	big := make([]byte, MaxInputBytes+10)
	copy(big, jpegBytes(t, 10, 10))

	_, err := Normalize(bytes.NewReader(big))
	assert.ErrorIs(t, err, ErrTooLarge)
}

// Package imaging prepares evidence photos attached to damage and loss
// charges.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"net/http"

	"golang.org/x/image/draw"
	"golang.org/x/image/webp"
)

// MaxDimension is the longest side of a stored photo.
const MaxDimension = 1600

// MaxInputBytes caps how much of an upload is read.
const MaxInputBytes = 10 << 20

// JPEGQuality is the compression quality of stored photos.
const JPEGQuality = 82

// ErrTooLarge is returned for uploads above MaxInputBytes.
var ErrTooLarge = errors.New("image exceeds 10 MiB")

var decoders = map[string]func(io.Reader) (image.Image, error){
	"image/jpeg": jpeg.Decode,
	"image/png":  png.Decode,
	"image/webp": webp.Decode,
}

// Image is a normalized evidence photo.
type Image struct {
	Data   []byte
	MIME   string
	Width  int
	Height int
}

// Normalize reads an uploaded photo, checks its real format from the bytes,
// shrinks it to fit MaxDimension and re-encodes it as JPEG.
func Normalize(r io.Reader) (*Image, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxInputBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading image: %w", err)
	}
	if len(data) > MaxInputBytes {
		return nil, ErrTooLarge
	}

	detected := http.DetectContentType(data)
	decode, ok := decoders[detected]
	if !ok {
		return nil, fmt.Errorf("unsupported image format %s (JPEG, PNG or WebP)", detected)
	}

	img, err := decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decoding image: %w", err)
	}
	img = fit(img, MaxDimension)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: JPEGQuality}); err != nil {
		return nil, fmt.Errorf("encoding jpeg: %w", err)
	}

	b := img.Bounds()
	return &Image{Data: buf.Bytes(), MIME: "image/jpeg", Width: b.Dx(), Height: b.Dy()}, nil
}

// fit scales img down so that neither side exceeds limit. Smaller images are
// returned as is.
func fit(img image.Image, limit int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= limit && h <= limit {
		return img
	}

	nw, nh := limit, h*limit/w
	if h > w {
		nw, nh = w*limit/h, limit
	}
	nw, nh = atLeastOne(nw), atLeastOne(nh)

	dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)
	return dst
}

func atLeastOne(n int) int {
	if n < 1 {
		return 1
	}
	return n
}

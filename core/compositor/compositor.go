package compositor

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/imaging"
)

// Sentinel errors — callers use errors.Is() instead of string matching
var ErrInvalidImage = errors.New("invalid image")

// JPEG quality for composite output. Pinned so identical inputs always
// encode to identical bytes.
const jpegQuality = 95

// SideBySide combines two images into one: both are scaled to the taller
// image's height with Lanczos resampling (aspect ratio preserved), then
// placed left/right on a white canvas and encoded as JPEG. Pure function:
// no remote calls, and identical inputs produce identical output bytes.
func SideBySide(left, right []byte) ([]byte, error) {
	leftImg, err := decode(left)
	if err != nil {
		return nil, fmt.Errorf("%w: left image: %v", ErrInvalidImage, err)
	}
	rightImg, err := decode(right)
	if err != nil {
		return nil, fmt.Errorf("%w: right image: %v", ErrInvalidImage, err)
	}

	targetHeight := leftImg.Bounds().Dy()
	if h := rightImg.Bounds().Dy(); h > targetHeight {
		targetHeight = h
	}

	leftScaled := scaleToHeight(leftImg, targetHeight)
	rightScaled := scaleToHeight(rightImg, targetHeight)

	totalWidth := leftScaled.Bounds().Dx() + rightScaled.Bounds().Dx()
	canvas := imaging.New(totalWidth, targetHeight, color.White)
	canvas = imaging.Paste(canvas, leftScaled, image.Pt(0, 0))
	canvas = imaging.Paste(canvas, rightScaled, image.Pt(leftScaled.Bounds().Dx(), 0))

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, canvas, imaging.JPEG, imaging.JPEGQuality(jpegQuality)); err != nil {
		return nil, fmt.Errorf("failed to encode composite: %w", err)
	}
	return buf.Bytes(), nil
}

func decode(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, errors.New("empty image data")
	}
	return imaging.Decode(bytes.NewReader(data))
}

func scaleToHeight(img image.Image, height int) *image.NRGBA {
	if img.Bounds().Dy() == height {
		return imaging.Clone(img)
	}
	return imaging.Resize(img, 0, height, imaging.Lanczos)
}

package imaging

import (
	"bytes"
	"fmt"
	"image"
	stddraw "image/draw"
	"image/jpeg"

	"github.com/chai2010/webp"
	"github.com/rs/zerolog/log"
	"golang.org/x/image/draw"
)

const (
	// DefaultNormalizeDimension is the default longest-side target for
	// upload normalization.
	DefaultNormalizeDimension = 1024

	// normalizeJPEGQuality is the lossy re-encode quality for uploads.
	normalizeJPEGQuality = 95

	// contrastFactor and contrastMidpoint define the per-channel contrast
	// stretch applied before upload: c' = (c-128)*1.2 + 128, clamped.
	contrastFactor   = 1.2
	contrastMidpoint = 128

	// thumbnailWebPQuality is the encode quality for gateway previews.
	thumbnailWebPQuality = 80
)

// Normalize prepares one reference image for upload: downscale so the
// longest side is at most target (never upscaling), composite onto opaque
// white, apply the contrast stretch, and re-encode as JPEG.
//
// The remote reconstruction is sensitive to background noise and low dynamic
// range; flattening transparency onto white and widening the histogram
// improves results without any server-side coordination.
func Normalize(img image.Image, target int) ([]byte, error) {
	if target <= 0 {
		target = DefaultNormalizeDimension
	}

	bounds := img.Bounds()
	newW, newH := fitDimensions(bounds.Dx(), bounds.Dy(), target)

	// White canvas, then composite the (possibly transparent) source over it.
	canvas := image.NewRGBA(image.Rect(0, 0, newW, newH))
	stddraw.Draw(canvas, canvas.Bounds(), image.White, image.Point{}, stddraw.Src)
	draw.CatmullRom.Scale(canvas, canvas.Bounds(), img, bounds, draw.Over, nil)

	stretchContrast(canvas)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, canvas, &jpeg.Options{Quality: normalizeJPEGQuality}); err != nil {
		return nil, fmt.Errorf("encode normalized image: %w", err)
	}

	log.Debug().
		Int("origWidth", bounds.Dx()).
		Int("origHeight", bounds.Dy()).
		Int("newWidth", newW).
		Int("newHeight", newH).
		Int("outputSize", buf.Len()).
		Msg("Image normalized for upload")

	return buf.Bytes(), nil
}

// Thumbnail produces a WebP preview of a reference image for the gateway UI.
// Returns the encoded bytes and MIME type.
func Thumbnail(img image.Image, maxDimension int) ([]byte, string, error) {
	bounds := img.Bounds()
	newW, newH := fitDimensions(bounds.Dx(), bounds.Dy(), maxDimension)

	src := img
	if newW != bounds.Dx() || newH != bounds.Dy() {
		resized := image.NewRGBA(image.Rect(0, 0, newW, newH))
		draw.CatmullRom.Scale(resized, resized.Bounds(), img, bounds, draw.Over, nil)
		src = resized
	}

	var buf bytes.Buffer
	if err := webp.Encode(&buf, src, &webp.Options{Quality: thumbnailWebPQuality, Lossless: false}); err != nil {
		return nil, "", fmt.Errorf("encode thumbnail: %w", err)
	}
	return buf.Bytes(), "image/webp", nil
}

// stretchContrast applies the per-channel contrast boost in place.
// Alpha is untouched; the canvas is opaque after the white composite.
func stretchContrast(img *image.RGBA) {
	pix := img.Pix
	for i := 0; i < len(pix); i += 4 {
		pix[i] = stretchChannel(pix[i])
		pix[i+1] = stretchChannel(pix[i+1])
		pix[i+2] = stretchChannel(pix[i+2])
	}
}

func stretchChannel(c uint8) uint8 {
	v := (float64(c)-contrastMidpoint)*contrastFactor + contrastMidpoint
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}

// fitDimensions scales (width, height) so the longest side is at most
// maxDimension, preserving aspect ratio. Images already within the bound
// keep their size.
func fitDimensions(width, height, maxDimension int) (int, int) {
	if width <= maxDimension && height <= maxDimension {
		return width, height
	}

	if width > height {
		newWidth := maxDimension
		newHeight := int(float64(height) * float64(maxDimension) / float64(width))
		if newHeight < 1 {
			newHeight = 1
		}
		return newWidth, newHeight
	}

	newHeight := maxDimension
	newWidth := int(float64(width) * float64(maxDimension) / float64(height))
	if newWidth < 1 {
		newWidth = 1
	}
	return newWidth, newHeight
}

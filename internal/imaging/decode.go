// Package imaging decodes reference images and derives the pixel statistics
// and normalized upload bytes the generation pipeline needs.
package imaging

import (
	"bytes"
	"fmt"
	"image"
	"os"
	"strings"
	"time"

	// Raster formats accepted for reference images.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"

	"github.com/evanoberholster/imagemeta"
	"github.com/rs/zerolog/log"
)

// DecodeError reports an image that could not be rasterized. It is scoped to
// one image: batch processing catches it per item and continues with the
// remaining images.
type DecodeError struct {
	Name string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("cannot decode image %s: %v", e.Name, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// CaptureInfo is optional EXIF capture metadata extracted from a reference
// image. It feeds logging only; the analyzer works on pixels alone.
type CaptureInfo struct {
	CameraMake  string
	CameraModel string
	TakenAt     time.Time
	HasDate     bool
}

// SourceImage is one decoded reference image plus its capture metadata.
type SourceImage struct {
	Name    string
	Image   image.Image
	Capture *CaptureInfo
}

// Load reads and decodes a reference image from disk.
func Load(path string) (*SourceImage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &DecodeError{Name: path, Err: err}
	}
	return DecodeBytes(path, data)
}

// DecodeBytes decodes a reference image from memory. The name is carried
// into errors and log events only.
func DecodeBytes(name string, data []byte) (*SourceImage, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, &DecodeError{Name: name, Err: err}
	}

	src := &SourceImage{
		Name:    name,
		Image:   img,
		Capture: readCaptureInfo(data),
	}

	bounds := img.Bounds()
	ev := log.Debug().
		Str("image", name).
		Str("format", format).
		Int("width", bounds.Dx()).
		Int("height", bounds.Dy())
	if src.Capture != nil {
		ev = ev.Str("camera", strings.TrimSpace(src.Capture.CameraMake+" "+src.Capture.CameraModel))
	}
	ev.Msg("Reference image decoded")

	return src, nil
}

// readCaptureInfo extracts EXIF capture metadata using the imagemeta library.
// Best effort: PNG and screenshots typically carry none, and a metadata
// failure never fails the decode.
func readCaptureInfo(data []byte) *CaptureInfo {
	exifData, err := imagemeta.Decode(bytes.NewReader(data))
	if err != nil {
		return nil
	}

	info := &CaptureInfo{
		CameraMake:  strings.TrimSpace(exifData.Make),
		CameraModel: strings.TrimSpace(exifData.Model),
	}
	if !exifData.DateTimeOriginal().IsZero() {
		info.TakenAt = exifData.DateTimeOriginal()
		info.HasDate = true
	} else if !exifData.CreateDate().IsZero() {
		info.TakenAt = exifData.CreateDate()
		info.HasDate = true
	}

	if info.CameraMake == "" && info.CameraModel == "" && !info.HasDate {
		return nil
	}
	return info
}

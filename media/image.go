// Package media provides image inspection and downscaling for screenshot
// ingest. Frames transported through the relay cache are treated as opaque
// bytes; this package only touches durable screenshots.
package media

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"

	"golang.org/x/image/draw"

	_ "image/gif" // Register GIF decoder

	_ "golang.org/x/image/webp" // Register WebP decoder
)

// MIME type constants.
const (
	MIMETypeJPEG = "image/jpeg"
	MIMETypePNG  = "image/png"
	MIMETypeGIF  = "image/gif"
	MIMETypeWebP = "image/webp"
)

// JPEG encoding quality per stream quality profile.
const (
	jpegQualityLow    = 50
	jpegQualityMedium = 70
	jpegQualityHigh   = 85
)

// Maximum width per stream quality profile, in pixels.
const (
	maxWidthLow    = 640
	maxWidthMedium = 1280
	maxWidthHigh   = 1920
)

// Info describes a decoded image header.
type Info struct {
	Format   string
	MIMEType string
	Width    int
	Height   int
}

// Resolution returns the image dimensions as "WxH", the form stored on
// screenshot records.
func (i *Info) Resolution() string {
	return fmt.Sprintf("%dx%d", i.Width, i.Height)
}

// Probe decodes just the image header and reports format and dimensions.
// JPEG, PNG, GIF, and WebP are recognized.
func Probe(data []byte) (*Info, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty image data")
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image header: %w", err)
	}

	return &Info{
		Format:   format,
		MIMEType: formatToMIMEType(format),
		Width:    cfg.Width,
		Height:   cfg.Height,
	}, nil
}

// ScaleForQuality downscales a screenshot to the width budget of the given
// quality profile ("low", "medium", "high"), re-encoding as JPEG. Images
// already within budget are returned unchanged. Unknown profiles fall back
// to medium.
func ScaleForQuality(data []byte, quality string) ([]byte, error) {
	maxWidth, jpegQuality := qualityBudget(quality)

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	bounds := img.Bounds()
	if bounds.Dx() <= maxWidth {
		return data, nil
	}

	// Preserve aspect ratio.
	targetW := maxWidth
	targetH := bounds.Dy() * maxWidth / bounds.Dx()
	if targetH < 1 {
		targetH = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, targetW, targetH))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}

	return buf.Bytes(), nil
}

// EncodePNG re-encodes an image as PNG. Used by tests and tooling that need a
// known-good fixture format.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// qualityBudget maps a quality profile to its width and encoder budgets.
func qualityBudget(quality string) (maxWidth, jpegQuality int) {
	switch quality {
	case "low":
		return maxWidthLow, jpegQualityLow
	case "high":
		return maxWidthHigh, jpegQualityHigh
	default:
		return maxWidthMedium, jpegQualityMedium
	}
}

// formatToMIMEType maps an image format name to its MIME type.
func formatToMIMEType(format string) string {
	switch format {
	case "jpeg", "jpg":
		return MIMETypeJPEG
	case "png":
		return MIMETypePNG
	case "gif":
		return MIMETypeGIF
	case "webp":
		return MIMETypeWebP
	default:
		return "application/octet-stream"
	}
}

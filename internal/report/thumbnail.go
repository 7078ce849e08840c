package report

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"os"

	"github.com/nfnt/resize"
)

// bandHeight is the height of the outcome band drawn across thumbnails.
const bandHeight = 6

// Thumbnail decodes the PNG at path and re-encodes it no wider than
// maxWidth, keeping the aspect ratio. A non-nil band colour is drawn as a
// strip along the top edge.
func Thumbnail(path string, maxWidth uint, band color.Color) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, err := png.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}

	out := scale(img, maxWidth)
	if band != nil {
		out = stamp(out, band)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, out); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// scale resizes img down to maxWidth; narrower images are returned as is.
func scale(img image.Image, maxWidth uint) image.Image {
	bounds := img.Bounds()
	if maxWidth == 0 || uint(bounds.Dx()) <= maxWidth {
		return img
	}

	// Calculate height maintaining aspect ratio
	aspectRatio := float64(bounds.Dy()) / float64(bounds.Dx())
	outputHeight := uint(float64(maxWidth) * aspectRatio)
	if outputHeight == 0 {
		outputHeight = 1
	}
	return resize.Resize(maxWidth, outputHeight, img, resize.Lanczos3)
}

// stamp copies img and paints a band of c across its top edge.
func stamp(img image.Image, c color.Color) image.Image {
	bounds := img.Bounds()
	result := image.NewRGBA(bounds)
	draw.Draw(result, bounds, img, bounds.Min, draw.Src)

	band := image.Rect(bounds.Min.X, bounds.Min.Y, bounds.Max.X, min(bounds.Min.Y+bandHeight, bounds.Max.Y))
	draw.Draw(result, band, image.NewUniform(c), image.Point{}, draw.Over)
	return result
}

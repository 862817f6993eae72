package render

import (
	"bytes"
	"image"

	"github.com/disintegration/imaging"
	"golang.org/x/image/webp"

	"glance/internal/models"
	"glance/internal/pkg/errors"
)

// decodeImage decodes source bytes into the canonical upright image.
// Embedded orientation metadata is applied during decode so every variant
// derives from an already-normalized base.
func decodeImage(src []byte, mimeType string) (image.Image, error) {
	if mimeType == "image/webp" {
		// imaging carries no webp codec.
		img, err := webp.Decode(bytes.NewReader(src))
		if err != nil {
			return nil, errors.WrapWithCode(err, errors.CodeImageDecodeFailure,
				"render.image", "webp decode failed")
		}
		return img, nil
	}

	img, err := imaging.Decode(bytes.NewReader(src), imaging.AutoOrientation(true))
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeImageDecodeFailure,
			"render.image", "image decode failed")
	}
	return img, nil
}

// selectFormat inspects the canonical image once per job: any transparency
// selects PNG for every variant, otherwise JPEG. A single job never mixes
// output formats.
func selectFormat(img image.Image) models.OutputFormat {
	if hasAlpha(img) {
		return models.FormatPNG
	}
	return models.FormatJPEG
}

// hasAlpha reports whether the image carries any non-opaque pixel.
func hasAlpha(img image.Image) bool {
	if o, ok := img.(interface{ Opaque() bool }); ok {
		return !o.Opaque()
	}

	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if _, _, _, a := img.At(x, y).RGBA(); a != 0xffff {
				return true
			}
		}
	}
	return false
}

package render

import (
	"bytes"
	"image"

	"github.com/disintegration/imaging"

	"glance/internal/models"
	"glance/internal/pkg/errors"
)

// Variant is one encoded thumbnail produced from the canonical image.
type Variant struct {
	Width  int
	Height int
	Format models.OutputFormat
	Data   []byte
}

// EncodeVariant resizes the canonical image to the requested width with
// aspect ratio preserved and encodes it in the job's output format. The
// canonical image is shared read-only across every variant of a job and is
// never mutated here; imaging.Resize always allocates a fresh buffer.
//
// Widths beyond the canonical image's native width are clamped to it: no
// enlargement, ever.
func EncodeVariant(base image.Image, width int, format models.OutputFormat, jpegQuality int) (Variant, error) {
	native := base.Bounds().Dx()
	target := width
	if target > native {
		target = native
	}

	resized := imaging.Resize(base, target, 0, imaging.Lanczos)

	var buf bytes.Buffer
	var err error
	switch format {
	case models.FormatPNG:
		err = imaging.Encode(&buf, resized, imaging.PNG)
	default:
		err = imaging.Encode(&buf, resized, imaging.JPEG, imaging.JPEGQuality(jpegQuality))
	}
	if err != nil {
		return Variant{}, encodeFailure(err)
	}

	return Variant{
		Width:  resized.Bounds().Dx(),
		Height: resized.Bounds().Dy(),
		Format: format,
		Data:   buf.Bytes(),
	}, nil
}

// encodeFailure classifies a variant encode error. The input already
// decoded, so an encode failure is environmental, not a fact about the
// document; it takes the generic retryable classification instead of a
// terminal input code.
func encodeFailure(err error) error {
	return errors.Wrap(err, "render.encode", "variant encode failed")
}

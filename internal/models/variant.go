package models

// OutputFormat is the encoding of a thumbnail variant. It is chosen once
// per job (alpha channel -> PNG, otherwise JPEG) and applied to every
// variant so a single job never mixes formats.
type OutputFormat string

const (
	FormatJPEG OutputFormat = "jpeg"
	FormatPNG  OutputFormat = "png"
)

// Ext returns the storage key extension for the format.
func (f OutputFormat) Ext() string {
	if f == FormatPNG {
		return "png"
	}
	return "jpg"
}

// ContentType returns the MIME type variants of this format are served with.
func (f OutputFormat) ContentType() string {
	if f == FormatPNG {
		return "image/png"
	}
	return "image/jpeg"
}

// ThumbnailVariant is one written output artifact. Immutable once stored;
// the storage location is fully determined by (document id, content hash,
// width, format) so regeneration is always a skip, never an overwrite.
type ThumbnailVariant struct {
	// Width is the requested width, the identity the storage key is built
	// from. The encoded image can be narrower when the source is smaller
	// than the request; actual pixel dimensions live in object metadata.
	Width    int          `json:"width"`
	Height   int          `json:"height"`
	Format   OutputFormat `json:"format"`
	Bytes    int64        `json:"bytes"`
	Location string       `json:"location"`
	Skipped  bool         `json:"skipped"`
}

// Package cache writes thumbnail variants to object storage under
// deterministic, content-addressed keys. Writes are check-then-write: an
// existing key is always a skip, never an overwrite.
package cache

import (
	"context"
	"fmt"
	"time"

	"glance/internal/models"
	"glance/internal/pkg/errors"
	"glance/internal/ports"
	"glance/internal/render"
)

// CacheControl is attached to every variant: thumbnails are immutable by
// key construction, so clients may cache them for a year.
const CacheControl = "public, max-age=31536000, immutable"

// Key derives the storage key for one variant. It is fully determined by
// (document id, content hash, width, format), so two variants never collide
// and rendering the same bytes twice lands on the same key.
func Key(documentID, contentHash string, width int, format models.OutputFormat) string {
	return fmt.Sprintf("thumbs/%s/%s/w%d.%s", documentID, contentHash, width, format.Ext())
}

// Writer persists variants through the ObjectStore port.
type Writer struct {
	store ports.ObjectStore
}

func NewWriter(store ports.ObjectStore) *Writer {
	return &Writer{store: store}
}

// Exists checks whether a variant is already cached.
func (w *Writer) Exists(ctx context.Context, documentID, contentHash string, width int, format models.OutputFormat) (bool, error) {
	exists, err := w.store.ExistsObject(ctx, Key(documentID, contentHash, width, format))
	if err != nil {
		return false, errors.WrapWithCode(err, errors.CodeStorageReadFailure,
			"cache.exists", "existence check failed")
	}
	return exists, nil
}

// ExistsAnyFormat checks both candidate formats for a width. Used by the
// idempotency preflight, which runs before the canonical image (and with it
// the job's output format) is known.
func (w *Writer) ExistsAnyFormat(ctx context.Context, documentID, contentHash string, width int) (bool, error) {
	for _, format := range []models.OutputFormat{models.FormatJPEG, models.FormatPNG} {
		exists, err := w.Exists(ctx, documentID, contentHash, width, format)
		if err != nil {
			return false, err
		}
		if exists {
			return true, nil
		}
	}
	return false, nil
}

// Write uploads one rendered variant with immutable cache headers and
// descriptive metadata. The key is derived from the REQUESTED width, the
// same value the existence checks and status rows use; the encoded pixel
// dimensions may be smaller (no enlargement) and travel as metadata only.
// A failed upload aborts only this variant; siblings written earlier in
// the same job are unaffected.
func (w *Writer) Write(ctx context.Context, req models.RenderRequest, width int, v render.Variant) (models.ThumbnailVariant, error) {
	key := Key(req.DocumentID, req.ContentHash, width, v.Format)

	out, err := w.store.WriteObject(ctx, ports.WriteObjectInput{
		ObjectKey:    key,
		ContentType:  v.Format.ContentType(),
		Data:         v.Data,
		CacheControl: CacheControl,
		Metadata: map[string]string{
			"document-id":  req.DocumentID,
			"content-hash": req.ContentHash,
			"width":        fmt.Sprintf("%d", width),
			"pixel-width":  fmt.Sprintf("%d", v.Width),
			"pixel-height": fmt.Sprintf("%d", v.Height),
			"generated-at": time.Now().UTC().Format(time.RFC3339),
		},
	})
	if err != nil {
		return models.ThumbnailVariant{}, errors.WrapWithCode(err, errors.CodeStorageWriteFailure,
			"cache.write", fmt.Sprintf("variant upload failed for %s", key))
	}

	return models.ThumbnailVariant{
		Width:    width,
		Height:   v.Height,
		Format:   v.Format,
		Bytes:    out.Size,
		Location: out.Location,
	}, nil
}

package ports

import "context"

// WriteObjectInput carries one variant upload.
type WriteObjectInput struct {
	ObjectKey   string
	ContentType string
	Data        []byte
	// CacheControl is stored alongside the object so the serving layer can
	// hand out immutable, long-lived responses.
	CacheControl string
	// Metadata is descriptive only (document id, content hash, width,
	// generation timestamp). Adapters persist it where the backend allows.
	Metadata map[string]string
}

// WriteObjectOutput reports where an object landed.
type WriteObjectOutput struct {
	// Location is the canonical address of the stored object. For localfs
	// it equals the object key; for gdrive it is the Drive fileId.
	Location string
	Size     int64
}

// ObjectStore is the storage collaborator contract. The pipeline never
// assumes a specific storage technology, only these three operations.
// Writes are conditional on non-existence at the call-site (check then
// write); keys are content-addressed so a racing duplicate write is benign.
type ObjectStore interface {
	Provider() string

	// ReadObject fetches the full source bytes at a location.
	ReadObject(ctx context.Context, location string) ([]byte, error)
	// ExistsObject reports whether an object key is already written.
	ExistsObject(ctx context.Context, objectKey string) (bool, error)
	// WriteObject stores a new object under a key.
	WriteObject(ctx context.Context, in WriteObjectInput) (WriteObjectOutput, error)
}

package localfs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"glance/internal/ports"
)

// LocalFS implements ports.ObjectStore on the local filesystem under a
// configured root directory. It has no durable metadata store; cache
// headers and metadata are accepted and reflected in the write output only.
type LocalFS struct {
	root string
}

func New(root string) *LocalFS {
	return &LocalFS{root: root}
}

func (l *LocalFS) Provider() string { return "localfs" }

func (l *LocalFS) path(key string) string {
	return filepath.Join(l.root, filepath.FromSlash(key))
}

func (l *LocalFS) ReadObject(ctx context.Context, location string) ([]byte, error) {
	return os.ReadFile(l.path(location))
}

func (l *LocalFS) ExistsObject(ctx context.Context, objectKey string) (bool, error) {
	_, err := os.Stat(l.path(objectKey))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

func (l *LocalFS) WriteObject(ctx context.Context, in ports.WriteObjectInput) (ports.WriteObjectOutput, error) {
	if in.ObjectKey == "" {
		return ports.WriteObjectOutput{}, fmt.Errorf("object_key is required")
	}

	dst := l.path(in.ObjectKey)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return ports.WriteObjectOutput{}, err
	}

	// Write through a temp file and rename so a racing duplicate write
	// never leaves a torn object behind.
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".glance-*")
	if err != nil {
		return ports.WriteObjectOutput{}, err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(in.Data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return ports.WriteObjectOutput{}, err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return ports.WriteObjectOutput{}, err
	}
	if err := os.Rename(tmpName, dst); err != nil {
		os.Remove(tmpName)
		return ports.WriteObjectOutput{}, err
	}

	return ports.WriteObjectOutput{
		Location: in.ObjectKey,
		Size:     int64(len(in.Data)),
	}, nil
}

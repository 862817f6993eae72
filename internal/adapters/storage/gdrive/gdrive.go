package gdrive

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"glance/internal/ports"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
)

// Client implements ports.ObjectStore backed by Google Drive. Object keys
// are stored as the Drive file Name inside a fixed folder; the returned
// Location is the Drive fileId so reads go straight to the file.
type Client struct {
	srv      *drive.Service
	folderID string
}

func NewClient(srv *drive.Service, folderID string) *Client {
	return &Client{srv: srv, folderID: folderID}
}

func (c *Client) Provider() string { return "gdrive" }

func (c *Client) ReadObject(ctx context.Context, location string) ([]byte, error) {
	resp, err := c.srv.Files.Get(location).
		SupportsAllDrives(true).
		Context(ctx).
		Download()
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

func (c *Client) ExistsObject(ctx context.Context, objectKey string) (bool, error) {
	q := fmt.Sprintf("name = '%s' and trashed = false", escapeQuery(objectKey))
	if c.folderID != "" {
		q += fmt.Sprintf(" and '%s' in parents", c.folderID)
	}

	list, err := c.srv.Files.List().
		Q(q).
		PageSize(1).
		Fields("files(id)").
		Context(ctx).
		Do()
	if err != nil {
		return false, err
	}
	return len(list.Files) > 0, nil
}

func (c *Client) WriteObject(ctx context.Context, in ports.WriteObjectInput) (ports.WriteObjectOutput, error) {
	if in.ObjectKey == "" {
		return ports.WriteObjectOutput{}, fmt.Errorf("object_key is required")
	}

	file := &drive.File{
		Name:          in.ObjectKey,
		AppProperties: map[string]string{},
	}
	if c.folderID != "" {
		file.Parents = []string{c.folderID}
	}
	for k, v := range in.Metadata {
		file.AppProperties[k] = v
	}
	if in.CacheControl != "" {
		file.AppProperties["cache-control"] = in.CacheControl
	}

	call := c.srv.Files.Create(file)
	if in.ContentType != "" {
		call = call.Media(bytes.NewReader(in.Data), googleapi.ContentType(in.ContentType))
	} else {
		call = call.Media(bytes.NewReader(in.Data))
	}

	created, err := call.Context(ctx).Do()
	if err != nil {
		return ports.WriteObjectOutput{}, fmt.Errorf("gdrive upload failed: %w", err)
	}

	return ports.WriteObjectOutput{
		Location: created.Id,
		Size:     int64(len(in.Data)),
	}, nil
}

// escapeQuery escapes single quotes for a Drive query literal.
func escapeQuery(s string) string {
	return strings.ReplaceAll(s, "'", `\'`)
}

package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validRequest() RenderRequest {
	return RenderRequest{
		DocumentID:     "doc-1",
		ContentHash:    "abc123",
		Widths:         []int{240, 96, 240, 480},
		MimeType:       "application/pdf",
		OwnerID:        "user-1",
		SourceLocation: "file:///tmp/doc.pdf",
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*RenderRequest)
		wantErr bool
	}{
		{"valid", func(r *RenderRequest) {}, false},
		{"missing document id", func(r *RenderRequest) { r.DocumentID = " " }, true},
		{"missing content hash", func(r *RenderRequest) { r.ContentHash = "" }, true},
		{"missing mime type", func(r *RenderRequest) { r.MimeType = "" }, true},
		{"missing source location", func(r *RenderRequest) { r.SourceLocation = "" }, true},
		{"no widths", func(r *RenderRequest) { r.Widths = nil }, true},
		{"zero width", func(r *RenderRequest) { r.Widths = []int{96, 0} }, true},
		{"negative width", func(r *RenderRequest) { r.Widths = []int{-240} }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validRequest()
			tt.mutate(&req)
			err := req.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRequestedWidthsKeepsOrder(t *testing.T) {
	req := validRequest()
	assert.Equal(t, []int{240, 96, 480}, req.RequestedWidths())
}

func TestNormalizedWidthsSorted(t *testing.T) {
	req := validRequest()
	assert.Equal(t, []int{96, 240, 480}, req.NormalizedWidths())
}

func TestIdempotencyKeyDeterministic(t *testing.T) {
	a := validRequest()
	b := validRequest()
	require.Equal(t, a.IdempotencyKey(), b.IdempotencyKey())

	// Width order and duplicates do not change the identity.
	b.Widths = []int{480, 96, 240, 96}
	assert.Equal(t, a.IdempotencyKey(), b.IdempotencyKey())

	// Any identity component does.
	c := validRequest()
	c.ContentHash = "def456"
	assert.NotEqual(t, a.IdempotencyKey(), c.IdempotencyKey())

	d := validRequest()
	d.Widths = []int{96, 240}
	assert.NotEqual(t, a.IdempotencyKey(), d.IdempotencyKey())
}

func TestComplete(t *testing.T) {
	assert.False(t, Complete(nil))
	assert.False(t, Complete([]JobStatus{
		{Width: 96, Status: StatusSuccess},
		{Width: 240, Status: StatusProcessing},
	}))
	assert.True(t, Complete([]JobStatus{
		{Width: 96, Status: StatusSuccess, Skipped: true},
		{Width: 240, Status: StatusFailed},
	}))
}

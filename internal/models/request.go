package models

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// RenderRequest is the immutable input to the thumbnail pipeline.
// Callers build one per (document, content hash) pair; it is never mutated.
type RenderRequest struct {
	DocumentID     string `json:"document_id"`
	ContentHash    string `json:"content_hash"`
	Widths         []int  `json:"widths"`
	MimeType       string `json:"mime_type"`
	OwnerID        string `json:"owner_id"`
	TenantID       string `json:"tenant_id,omitempty"`
	SourceLocation string `json:"source_location"`
}

// Validate checks the fields a request cannot do without.
func (r RenderRequest) Validate() error {
	if strings.TrimSpace(r.DocumentID) == "" {
		return fmt.Errorf("document_id is required")
	}
	if strings.TrimSpace(r.ContentHash) == "" {
		return fmt.Errorf("content_hash is required")
	}
	if strings.TrimSpace(r.MimeType) == "" {
		return fmt.Errorf("mime_type is required")
	}
	if strings.TrimSpace(r.SourceLocation) == "" {
		return fmt.Errorf("source_location is required")
	}
	if len(r.Widths) == 0 {
		return fmt.Errorf("at least one width is required")
	}
	for _, w := range r.Widths {
		if w <= 0 {
			return fmt.Errorf("width must be positive, got %d", w)
		}
	}
	return nil
}

// RequestedWidths returns the widths deduplicated but in request order.
// Variants are generated sequentially in this order.
func (r RenderRequest) RequestedWidths() []int {
	seen := make(map[int]bool, len(r.Widths))
	out := make([]int, 0, len(r.Widths))
	for _, w := range r.Widths {
		if w > 0 && !seen[w] {
			seen[w] = true
			out = append(out, w)
		}
	}
	return out
}

// NormalizedWidths returns the requested widths sorted ascending with
// duplicates removed. The request order is preserved for rendering;
// normalization only feeds the idempotency key.
func (r RenderRequest) NormalizedWidths() []int {
	out := r.RequestedWidths()
	sort.Ints(out)
	return out
}

// IdempotencyKey derives the deterministic identity of this request's
// output: sha256 over document id, content hash and the sorted width set.
// Two requests with the same key refer to the same cached variants.
func (r RenderRequest) IdempotencyKey() string {
	h := sha256.New()
	h.Write([]byte(r.DocumentID))
	h.Write([]byte{0})
	h.Write([]byte(r.ContentHash))
	for _, w := range r.NormalizedWidths() {
		fmt.Fprintf(h, "\x00%d", w)
	}
	return hex.EncodeToString(h.Sum(nil))
}

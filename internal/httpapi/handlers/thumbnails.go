package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"glance/internal/httpkit"
	"glance/internal/models"
	"glance/internal/ports"
)

type postThumbnailsRequest struct {
	DocumentID     string `json:"document_id"`
	ContentHash    string `json:"content_hash"`
	Widths         []int  `json:"widths"`
	MimeType       string `json:"mime_type"`
	OwnerID        string `json:"owner_id"`
	TenantID       string `json:"tenant_id,omitempty"`
	SourceLocation string `json:"source_location"`
}

// PostThumbnails accepts a render request and enqueues it. The response is
// always 202 on acceptance; generation is asynchronous and polled via the
// jobs endpoint.
func (h *Handler) PostThumbnails(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := h.log.FromContext(ctx)

	var body postThumbnailsRequest
	if err := httpkit.DecodeJSON(r, &body); err != nil {
		httpkit.WriteErr(w, 400, "VALIDATION_ERROR", "invalid JSON body", nil)
		return
	}

	req := models.RenderRequest{
		DocumentID:     strings.TrimSpace(body.DocumentID),
		ContentHash:    strings.TrimSpace(body.ContentHash),
		Widths:         body.Widths,
		MimeType:       strings.TrimSpace(body.MimeType),
		OwnerID:        strings.TrimSpace(body.OwnerID),
		TenantID:       strings.TrimSpace(body.TenantID),
		SourceLocation: strings.TrimSpace(body.SourceLocation),
	}
	if err := req.Validate(); err != nil {
		httpkit.WriteErr(w, 400, "VALIDATION_ERROR", err.Error(), nil)
		return
	}

	res, err := h.backend.Enqueue(ctx, req)
	if err != nil {
		log.Error("enqueue failed", "document_id", req.DocumentID, "error", err.Error())
		httpkit.WriteDomainErr(w, err)
		return
	}

	log.Info("render request accepted",
		"job_id", res.JobID,
		"document_id", req.DocumentID,
		"widths", len(req.RequestedWidths()),
	)

	httpkit.WriteJSON(w, 202, map[string]any{
		"job_id":         res.JobID,
		"status":         string(res.Status),
		"retry_after_ms": res.RetryAfter.Milliseconds(),
	})
}

// GetThumbnails probes the variant cache for a document revision. It never
// renders; callers that find nothing are expected to POST a render request.
// Every lookup emits an access-requested audit event.
func (h *Handler) GetThumbnails(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := h.log.FromContext(ctx)

	documentID := chi.URLParam(r, "documentID")
	contentHash := chi.URLParam(r, "contentHash")
	if documentID == "" || contentHash == "" {
		httpkit.WriteErr(w, 400, "VALIDATION_ERROR", "documentID and contentHash are required", nil)
		return
	}

	widths, err := parseWidths(r.URL.Query().Get("widths"))
	if err != nil {
		httpkit.WriteErr(w, 400, "VALIDATION_ERROR", err.Error(), map[string]any{"field": "widths"})
		return
	}

	if h.audit != nil {
		h.audit.Emit(ctx, ports.AuditEvent{
			Name:       ports.EventAccessRequested,
			DocumentID: documentID,
			Metadata: map[string]string{
				"content_hash": contentHash,
				"widths":       r.URL.Query().Get("widths"),
			},
		})
	}

	variants := make([]map[string]any, 0, len(widths))
	for _, width := range widths {
		found := false
		for _, format := range []models.OutputFormat{models.FormatJPEG, models.FormatPNG} {
			exists, err := h.cache.Exists(ctx, documentID, contentHash, width, format)
			if err != nil {
				log.Error("cache probe failed", "document_id", documentID, "width", width, "error", err.Error())
				httpkit.WriteDomainErr(w, err)
				return
			}
			if exists {
				variants = append(variants, map[string]any{
					"width":        width,
					"exists":       true,
					"format":       string(format),
					"content_type": format.ContentType(),
				})
				found = true
				break
			}
		}
		if !found {
			variants = append(variants, map[string]any{
				"width":  width,
				"exists": false,
			})
		}
	}

	httpkit.WriteJSON(w, 200, map[string]any{
		"document_id":  documentID,
		"content_hash": contentHash,
		"variants":     variants,
	})
}

func parseWidths(raw string) ([]int, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, fmt.Errorf("widths query parameter is required")
	}
	parts := strings.Split(raw, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		n, err := strconv.Atoi(p)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid width %q", p)
		}
		out = append(out, n)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("widths query parameter is required")
	}
	return out, nil
}

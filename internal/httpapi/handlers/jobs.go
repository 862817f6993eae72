package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"glance/internal/httpkit"
	"glance/internal/models"
	"glance/internal/pkg/errors"
	"glance/internal/queue/jobstore"
)

// GetJob returns per-variant status for one job. An optional width query
// parameter narrows the response to a single variant.
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	jobID := chi.URLParam(r, "jobID")
	if jobID == "" {
		httpkit.WriteErr(w, 400, "VALIDATION_ERROR", "jobID is required", nil)
		return
	}

	width := 0
	if raw := r.URL.Query().Get("width"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			httpkit.WriteErr(w, 400, "VALIDATION_ERROR", "invalid width", map[string]any{"field": "width"})
			return
		}
		width = n
	}

	statuses, err := h.backend.GetStatus(ctx, jobID, width)
	if err != nil {
		if errors.Is(err, jobstore.ErrJobNotFound) {
			httpkit.WriteErr(w, 404, "NOT_FOUND", "job not found", nil)
			return
		}
		h.log.FromContext(ctx).Error("status lookup failed", "job_id", jobID, "error", err.Error())
		httpkit.WriteDomainErr(w, err)
		return
	}
	if len(statuses) == 0 {
		// Job exists but the requested width was never part of it.
		httpkit.WriteErr(w, 404, "NOT_FOUND", "no such variant for job", nil)
		return
	}

	variants := make([]map[string]any, 0, len(statuses))
	for _, st := range statuses {
		v := map[string]any{
			"width":      st.Width,
			"status":     string(st.Status),
			"skipped":    st.Skipped,
			"created_at": st.CreatedAt,
			"updated_at": st.UpdatedAt,
		}
		if st.ErrorCode != "" {
			v["error_code"] = st.ErrorCode
		}
		variants = append(variants, v)
	}

	httpkit.WriteJSON(w, 200, map[string]any{
		"job_id":      jobID,
		"document_id": statuses[0].DocumentID,
		"complete":    models.Complete(statuses),
		"variants":    variants,
	})
}

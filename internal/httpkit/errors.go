package httpkit

import (
	"net/http"

	"glance/internal/pkg/errors"
)

// WriteDomainErr renders a classified pipeline error as an HTTP response.
// Terminal codes are client-visible facts about the input (422); retryable
// codes are service-side conditions the caller may retry (503).
func WriteDomainErr(w http.ResponseWriter, err error) {
	code := errors.GetCode(err)
	status := http.StatusUnprocessableEntity
	if code.Retryable() {
		status = http.StatusServiceUnavailable
	}
	WriteErr(w, status, string(code), errors.GetMessage(err), nil)
}

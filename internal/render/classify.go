package render

import (
	"strings"

	"glance/internal/pkg/errors"
)

// pdfPasswordMarkers are the substrings vendor tools print for encrypted
// documents. String-matching tool output is fragile, so the whole
// classification lives in this one function and is tested against recorded
// tool output; swapping the heuristic touches nothing else.
var pdfPasswordMarkers = []string{
	"password",
	"encrypted",
	"incorrect owner",
	"document is locked",
}

// ClassifyPDFStderr maps a PDF tool's stderr to a failure code: encrypted
// or password-protected input is terminal, everything else is a retryable
// render failure.
func ClassifyPDFStderr(stderr []byte) errors.Code {
	out := strings.ToLower(string(stderr))
	for _, marker := range pdfPasswordMarkers {
		if strings.Contains(out, marker) {
			return errors.CodePDFPassword
		}
	}
	return errors.CodePDFRenderFailure
}

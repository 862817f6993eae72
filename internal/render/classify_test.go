package render

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"glance/internal/pkg/errors"
)

// Recorded stderr output from pdftoppm/pdfinfo runs against protected and
// broken documents. The classifier is matched against these fixtures, not
// regenerated live.
func TestClassifyPDFStderr(t *testing.T) {
	tests := []struct {
		name   string
		stderr string
		want   errors.Code
	}{
		{
			name:   "pdftoppm encrypted command line",
			stderr: "Command Line Error: Incorrect password\n",
			want:   errors.CodePDFPassword,
		},
		{
			name:   "poppler encrypted file",
			stderr: "Syntax Error: Document is encrypted and an incorrect password was supplied\n",
			want:   errors.CodePDFPassword,
		},
		{
			name:   "owner password",
			stderr: "Error: Incorrect owner password\n",
			want:   errors.CodePDFPassword,
		},
		{
			name:   "corrupt xref",
			stderr: "Syntax Error: Couldn't find trailer dictionary\nSyntax Error: Couldn't read xref table\n",
			want:   errors.CodePDFRenderFailure,
		},
		{
			name:   "empty stderr",
			stderr: "",
			want:   errors.CodePDFRenderFailure,
		},
		{
			name:   "unrelated noise",
			stderr: "Internal Error: could not create splash bitmap\n",
			want:   errors.CodePDFRenderFailure,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClassifyPDFStderr([]byte(tt.stderr))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClassifyCaseInsensitive(t *testing.T) {
	got := ClassifyPDFStderr([]byte("ERROR: DOCUMENT IS ENCRYPTED"))
	assert.Equal(t, errors.CodePDFPassword, got)
}

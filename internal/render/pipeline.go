// Package render turns one source document into a canonical raster image
// and derives width variants from it. Non-image inputs are rasterized by
// external tools invoked under strict timeouts; every failure is classified
// into the taxonomy at the point of detection.
package render

import (
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"glance/internal/models"
	"glance/internal/pkg/errors"
	"glance/internal/pkg/logger"
)

// docExtensions maps supported word-processor mime types to the file
// extension the conversion tool expects on its input.
var docExtensions = map[string]string{
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": "docx",
	"application/msword":                        "doc",
	"application/vnd.oasis.opendocument.text":   "odt",
	"application/vnd.oasis.opendocument.text-template": "ott",
}

// Config tunes the pipeline's external tools and encoding.
type Config struct {
	// PDFTool rasterizes page 1 of a PDF (pdftoppm-compatible CLI).
	PDFTool string
	// DocTool converts word-processor documents to PDF (soffice-compatible).
	DocTool string
	// PDFTimeout bounds one PDF rasterization.
	PDFTimeout time.Duration
	// DocTimeout bounds one document-to-PDF conversion.
	DocTimeout time.Duration
	// MaxDimension scales the rasterized page so its longest edge is ~this.
	MaxDimension int
	// JPEGQuality applies to lossy variants.
	JPEGQuality int
}

func (c *Config) applyDefaults() {
	if c.PDFTool == "" {
		c.PDFTool = "pdftoppm"
	}
	if c.DocTool == "" {
		c.DocTool = "soffice"
	}
	if c.PDFTimeout == 0 {
		c.PDFTimeout = 5 * time.Second
	}
	if c.DocTimeout == 0 {
		c.DocTimeout = 20 * time.Second
	}
	if c.MaxDimension == 0 {
		c.MaxDimension = 1200
	}
	if c.JPEGQuality == 0 {
		c.JPEGQuality = 85
	}
}

// Pipeline converts source bytes into a canonical image and encodes
// variants. Safe for concurrent use; each job gets its own temp workspace.
type Pipeline struct {
	runner ToolRunner
	cfg    Config
	log    *logger.Logger
}

func New(runner ToolRunner, cfg Config, log *logger.Logger) *Pipeline {
	cfg.applyDefaults()
	if log == nil {
		log = logger.NewDefault()
	}
	return &Pipeline{
		runner: runner,
		cfg:    cfg,
		log:    log.WithComponent("render"),
	}
}

// JPEGQuality exposes the configured lossy quality for variant encoding.
func (p *Pipeline) JPEGQuality() int {
	return p.cfg.JPEGQuality
}

// Canonical runs Stage A (type dispatch) and Stage B (format selection):
// one upright base image plus the single output format every variant of
// the job will use.
func (p *Pipeline) Canonical(ctx context.Context, src []byte, mimeType string) (image.Image, models.OutputFormat, error) {
	mt := normalizeMime(mimeType)

	var img image.Image
	var err error

	switch {
	case strings.HasPrefix(mt, "image/"):
		img, err = decodeImage(src, mt)

	case mt == "application/pdf":
		img, err = p.renderPDF(ctx, src)

	default:
		ext, ok := docExtensions[mt]
		if !ok {
			// No strategy, no spawn.
			return nil, "", errors.Newf(errors.CodeUnsupportedType,
				"no conversion strategy for %s", mimeType)
		}
		img, err = p.renderDoc(ctx, src, ext)
	}

	if err != nil {
		return nil, "", err
	}
	return img, selectFormat(img), nil
}

// Variant runs Stage C for one width using the job's chosen format.
func (p *Pipeline) Variant(base image.Image, width int, format models.OutputFormat) (Variant, error) {
	return EncodeVariant(base, width, format, p.cfg.JPEGQuality)
}

// renderPDF rasterizes page 1 of a PDF via the external tool, scaled so the
// longest edge is MaxDimension.
func (p *Pipeline) renderPDF(ctx context.Context, src []byte) (image.Image, error) {
	dir, err := os.MkdirTemp("", "glance-pdf-*")
	if err != nil {
		return nil, errors.Wrap(err, "render.pdf", "temp workspace failed")
	}
	defer os.RemoveAll(dir)

	input := filepath.Join(dir, "input.pdf")
	if err := os.WriteFile(input, src, 0o600); err != nil {
		return nil, errors.Wrap(err, "render.pdf", "temp write failed")
	}

	outPrefix := filepath.Join(dir, "page")
	res, runErr := p.runner.Run(ctx, p.cfg.PDFTimeout, p.cfg.PDFTool,
		"-png",
		"-singlefile",
		"-f", "1",
		"-l", "1",
		"-scale-to", strconv.Itoa(p.cfg.MaxDimension),
		input,
		outPrefix,
	)
	if runErr != nil {
		return nil, p.classifyPDFFailure(res, runErr)
	}

	raster, err := os.ReadFile(outPrefix + ".png")
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.CodePDFRenderFailure,
			"render.pdf", "tool produced no output")
	}

	img, err := decodeImage(raster, "image/png")
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.CodePDFRenderFailure,
			"render.pdf", "tool output not decodable")
	}
	return img, nil
}

// renderDoc converts a word-processor document to an intermediate PDF, then
// recurses into the PDF strategy.
func (p *Pipeline) renderDoc(ctx context.Context, src []byte, ext string) (image.Image, error) {
	dir, err := os.MkdirTemp("", "glance-doc-*")
	if err != nil {
		return nil, errors.Wrap(err, "render.doc", "temp workspace failed")
	}
	defer os.RemoveAll(dir)

	input := filepath.Join(dir, "input."+ext)
	if err := os.WriteFile(input, src, 0o600); err != nil {
		return nil, errors.Wrap(err, "render.doc", "temp write failed")
	}

	res, runErr := p.runner.Run(ctx, p.cfg.DocTimeout, p.cfg.DocTool,
		"--headless",
		"--convert-to", "pdf",
		"--outdir", dir,
		input,
	)
	if runErr != nil {
		return nil, p.classifyDocFailure(res, runErr)
	}

	pdf, err := os.ReadFile(filepath.Join(dir, "input.pdf"))
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeDocConvertFailure,
			"render.doc", "conversion produced no PDF")
	}

	return p.renderPDF(ctx, pdf)
}

func (p *Pipeline) classifyPDFFailure(res ToolResult, runErr error) error {
	switch {
	case errors.Is(runErr, ErrToolSpawn):
		return errors.WrapWithCode(runErr, errors.CodeTransientSpawn,
			"render.pdf", "could not start PDF tool")
	case errors.Is(runErr, ErrToolTimeout):
		return errors.Newf(errors.CodePDFRenderFailure,
			"PDF rasterization exceeded %s", p.cfg.PDFTimeout)
	default:
		code := ClassifyPDFStderr(res.Stderr)
		return errors.WrapWithCode(runErr, code,
			"render.pdf", fmt.Sprintf("tool failed: %s", firstLine(res.Stderr)))
	}
}

func (p *Pipeline) classifyDocFailure(res ToolResult, runErr error) error {
	switch {
	case errors.Is(runErr, ErrToolSpawn):
		return errors.WrapWithCode(runErr, errors.CodeTransientSpawn,
			"render.doc", "could not start conversion tool")
	case errors.Is(runErr, ErrToolTimeout):
		return errors.Newf(errors.CodeDocConvertTimeout,
			"document conversion exceeded %s", p.cfg.DocTimeout)
	default:
		return errors.WrapWithCode(runErr, errors.CodeDocConvertFailure,
			"render.doc", fmt.Sprintf("tool failed: %s", firstLine(res.Stderr)))
	}
}

func normalizeMime(mimeType string) string {
	mt := strings.TrimSpace(strings.ToLower(mimeType))
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}
	return mt
}

func firstLine(b []byte) string {
	s := strings.TrimSpace(string(b))
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}

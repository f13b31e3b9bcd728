package extract

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// ErrUnsupportedType is returned for uploads no extractor understands.
var ErrUnsupportedType = errors.New("extract: unsupported document type")

// Router picks an extractor from the sniffed content type, falling back to
// the file extension for formats that sniff as plain text.
type Router struct {
	text     *TextExtractor
	markdown *MarkdownExtractor
	pdf      *PDFExtractor
}

func NewRouter() *Router {
	return &Router{
		text:     NewTextExtractor(),
		markdown: NewMarkdownExtractor(),
		pdf:      NewPDFExtractor(),
	}
}

// Extract implements port.Extractor.
func (r *Router) Extract(ctx context.Context, filename string, data []byte) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("extract: %s is empty", filename)
	}
	kind := DetectKind(filename, data)
	switch kind {
	case KindPDF:
		return r.pdf.Extract(ctx, filename, data)
	case KindMarkdown:
		return r.markdown.Extract(ctx, filename, data)
	case KindText:
		return r.text.Extract(ctx, filename, data)
	default:
		return "", fmt.Errorf("%w: %s (%s)", ErrUnsupportedType, filename, mimetype.Detect(data).String())
	}
}

type Kind string

const (
	KindPDF      Kind = "pdf"
	KindMarkdown Kind = "markdown"
	KindText     Kind = "text"
	KindUnknown  Kind = "unknown"
)

// DetectKind classifies an upload by its bytes and name.
func DetectKind(filename string, data []byte) Kind {
	mt := mimetype.Detect(data)
	if mt.Is("application/pdf") {
		return KindPDF
	}

	ext := strings.ToLower(filepath.Ext(filename))
	isText := false
	for m := mt; m != nil; m = m.Parent() {
		if m.Is("text/plain") {
			isText = true
			break
		}
	}
	if !isText {
		return KindUnknown
	}

	switch ext {
	case ".md", ".markdown":
		return KindMarkdown
	default:
		return KindText
	}
}

package extract

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"
)

const utf8BOM = "\uFEFF"

// TextExtractor accepts UTF-8 text as is.
type TextExtractor struct{}

func NewTextExtractor() *TextExtractor {
	return &TextExtractor{}
}

func (e *TextExtractor) Extract(_ context.Context, filename string, data []byte) (string, error) {
	if !utf8.Valid(data) {
		return "", fmt.Errorf("extract: %s is not valid UTF-8", filename)
	}
	return strings.TrimPrefix(string(data), utf8BOM), nil
}

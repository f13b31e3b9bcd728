package extract

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// MarkdownExtractor flattens a Markdown document into plain text, one block
// per paragraph so the segmenter can still see paragraph breaks.
type MarkdownExtractor struct {
	md goldmark.Markdown
}

func NewMarkdownExtractor() *MarkdownExtractor {
	return &MarkdownExtractor{md: goldmark.New()}
}

func (e *MarkdownExtractor) Extract(_ context.Context, filename string, data []byte) (string, error) {
	if !utf8.Valid(data) {
		return "", fmt.Errorf("extract: %s is not valid UTF-8", filename)
	}
	source := []byte(strings.TrimPrefix(string(data), utf8BOM))
	doc := e.md.Parser().Parse(text.NewReader(source))

	var blocks []string
	err := ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.Heading, *ast.Paragraph, *ast.TextBlock:
			if block := strings.TrimSpace(inlineText(node, source)); block != "" {
				blocks = append(blocks, block)
			}
			return ast.WalkSkipChildren, nil
		case *ast.FencedCodeBlock, *ast.CodeBlock:
			if block := strings.TrimRight(blockLines(node, source), "\n"); block != "" {
				blocks = append(blocks, block)
			}
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return "", fmt.Errorf("extract: walk markdown %s: %w", filename, err)
	}
	return strings.Join(blocks, "\n\n"), nil
}

// inlineText concatenates the text leaves below n.
func inlineText(n ast.Node, source []byte) string {
	var buf strings.Builder
	_ = ast.Walk(n, func(child ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch leaf := child.(type) {
		case *ast.Text:
			buf.Write(leaf.Segment.Value(source))
			if leaf.HardLineBreak() {
				buf.WriteString("\n")
			} else if leaf.SoftLineBreak() {
				buf.WriteString(" ")
			}
		case *ast.String:
			buf.Write(leaf.Value)
		case *ast.AutoLink:
			buf.Write(leaf.URL(source))
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	return buf.String()
}

func blockLines(n ast.Node, source []byte) string {
	var buf strings.Builder
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		buf.Write(seg.Value(source))
	}
	return buf.String()
}

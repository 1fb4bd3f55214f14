package study

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// PlainText strips markdown from a generated summary, leaving the text the
// learner actually reads. Blocks are separated by a blank line, list items by
// a single newline. Inline markup, links and raw HTML contribute only their
// visible text.
func PlainText(markdown string) string {
	src := []byte(markdown)
	doc := goldmark.DefaultParser().Parse(text.NewReader(src))

	var b strings.Builder
	// sep is the widest separator requested since the last write.
	var sep string
	block := func(s string) {
		if len(s) > len(sep) {
			sep = s
		}
	}
	write := func(p []byte) {
		if len(p) == 0 {
			return
		}
		if b.Len() > 0 {
			b.WriteString(sep)
		}
		sep = ""
		b.Write(p)
	}

	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.Paragraph, *ast.Heading, *ast.List, *ast.Blockquote:
			block("\n\n")
		case *ast.TextBlock, *ast.ListItem:
			block("\n")
		case *ast.FencedCodeBlock, *ast.CodeBlock:
			block("\n\n")
			var code []byte
			lines := node.Lines()
			for i := 0; i < lines.Len(); i++ {
				seg := lines.At(i)
				code = append(code, seg.Value(src)...)
			}
			write([]byte(strings.TrimRight(string(code), "\n")))
			return ast.WalkSkipChildren, nil
		case *ast.Text:
			write(node.Segment.Value(src))
			switch {
			case node.HardLineBreak():
				write([]byte("\n"))
			case node.SoftLineBreak():
				write([]byte(" "))
			}
		case *ast.String:
			write(node.Value)
		case *ast.AutoLink:
			write(node.Label(src))
			return ast.WalkSkipChildren, nil
		case *ast.RawHTML, *ast.HTMLBlock:
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})

	return strings.TrimSpace(b.String())
}

// Sections returns the heading titles of a summary in document order, as plain
// text. Personal notes are keyed by these titles.
func Sections(markdown string) []string {
	src := []byte(markdown)
	doc := goldmark.DefaultParser().Parse(text.NewReader(src))

	var titles []string
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		heading, ok := n.(*ast.Heading)
		if !entering || !ok {
			return ast.WalkContinue, nil
		}
		if title := strings.TrimSpace(inlineText(heading, src)); title != "" {
			titles = append(titles, title)
		}
		return ast.WalkSkipChildren, nil
	})
	return titles
}

func inlineText(n ast.Node, src []byte) string {
	var b strings.Builder
	_ = ast.Walk(n, func(c ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch node := c.(type) {
		case *ast.Text:
			b.Write(node.Segment.Value(src))
			if node.SoftLineBreak() || node.HardLineBreak() {
				b.WriteByte(' ')
			}
		case *ast.String:
			b.Write(node.Value)
		case *ast.RawHTML:
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	return b.String()
}

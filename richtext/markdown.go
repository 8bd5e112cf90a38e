package richtext

import (
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// ParseMarkdown parses a markdown payload into styled lines. Only the
// inline constructs a text box can show survive: emphasis, headings, and
// list bullets. Everything else degrades to its plain text.
func ParseMarkdown(src string) ([]Line, error) {
	source := []byte(src)
	root := goldmark.New().Parser().Parse(text.NewReader(source))
	b := &builder{}
	walkMarkdown(b, root, source, style{})
	return b.done(), nil
}

func walkMarkdown(b *builder, n ast.Node, source []byte, st style) {
	switch v := n.(type) {
	case *ast.Heading:
		st.bold = true
		st.scale = headingScale(v.Level)
	case *ast.Emphasis:
		if v.Level >= 2 {
			st.bold = true
		} else {
			st.italic = true
		}
	case *ast.ListItem:
		b.bullet = true
	case *ast.Text:
		b.add(st.span(string(v.Segment.Value(source))))
		if v.SoftLineBreak() || v.HardLineBreak() {
			b.breakLine()
		}
		return
	case *ast.String:
		b.add(st.span(string(v.Value)))
		return
	}

	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		walkMarkdown(b, c, source, st)
	}

	switch n.(type) {
	case *ast.Heading, *ast.Paragraph, *ast.TextBlock:
		b.breakLine()
	case *ast.ListItem:
		b.breakLine()
		b.bullet = false
	}
}

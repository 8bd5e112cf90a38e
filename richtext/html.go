package richtext

import (
	"strings"

	"golang.org/x/net/html"
)

// ParseHTML parses a pasted HTML fragment into styled lines.
func ParseHTML(src string) ([]Line, error) {
	root, err := html.Parse(strings.NewReader(src))
	if err != nil {
		return nil, err
	}
	b := &builder{}
	walkHTML(b, root, style{})
	return b.done(), nil
}

func walkHTML(b *builder, n *html.Node, st style) {
	switch n.Type {
	case html.TextNode:
		b.add(st.span(collapseSpace(n.Data)))
		return
	case html.ElementNode:
		switch n.Data {
		case "script", "style", "head", "title":
			return
		case "b", "strong":
			st.bold = true
		case "i", "em":
			st.italic = true
		case "u":
			st.underline = true
		case "h1":
			st.bold, st.scale = true, headingScale(1)
		case "h2":
			st.bold, st.scale = true, headingScale(2)
		case "h3":
			st.bold, st.scale = true, headingScale(3)
		case "h4", "h5", "h6":
			st.bold, st.scale = true, headingScale(4)
		case "li":
			b.bullet = true
		case "br":
			b.breakLine()
		}
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walkHTML(b, c, st)
	}

	if n.Type == html.ElementNode {
		switch n.Data {
		case "p", "div", "h1", "h2", "h3", "h4", "h5", "h6", "tr", "ul", "ol":
			b.breakLine()
		case "li":
			b.breakLine()
			b.bullet = false
		}
	}
}

// collapseSpace folds whitespace runs to single spaces, keeping the
// boundary spaces that separate adjacent inline spans.
func collapseSpace(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		if s == "" {
			return ""
		}
		return " "
	}
	out := strings.Join(fields, " ")
	if s[0] == ' ' || s[0] == '\n' || s[0] == '\t' {
		out = " " + out
	}
	if last := s[len(s)-1]; last == ' ' || last == '\n' || last == '\t' {
		out += " "
	}
	return out
}

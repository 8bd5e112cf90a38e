// Package richtext parses annotation text payloads into styled spans. Text
// boxes accept plain strings, markdown typed by the user, and fragments
// pasted from a browser clipboard as HTML; all three normalize to the same
// line/span model the text tool renders and export draws.
package richtext

import (
	"strings"
)

// Span is a contiguous piece of text with one style.
type Span struct {
	Text      string
	Bold      bool
	Italic    bool
	Underline bool
	// Scale multiplies the base font size; headings are > 1.
	Scale float64
}

// Line is one rendered line of spans.
type Line struct {
	Spans  []Span
	Bullet bool
}

// Text joins the line's span texts.
func (l Line) Text() string {
	var sb strings.Builder
	for _, s := range l.Spans {
		sb.WriteString(s.Text)
	}
	return sb.String()
}

// PlainText flattens lines back to newline-separated text.
func PlainText(lines []Line) string {
	parts := make([]string, len(lines))
	for i, l := range lines {
		parts[i] = l.Text()
	}
	return strings.Join(parts, "\n")
}

// Parse sniffs the payload format and dispatches. Plain text maps to one
// unstyled line per newline.
func Parse(payload string) []Line {
	switch {
	case looksLikeHTML(payload):
		if lines, err := ParseHTML(payload); err == nil {
			return lines
		}
	case looksLikeMarkdown(payload):
		if lines, err := ParseMarkdown(payload); err == nil {
			return lines
		}
	}
	return parsePlain(payload)
}

func parsePlain(payload string) []Line {
	var lines []Line
	for _, raw := range strings.Split(payload, "\n") {
		lines = append(lines, Line{Spans: []Span{{Text: raw, Scale: 1}}})
	}
	return lines
}

var htmlMarkers = []string{"<p", "<div", "<span", "<b>", "<strong", "<i>", "<em", "<u>", "<h1", "<h2", "<h3", "<li", "<br", "<ul", "<ol"}

func looksLikeHTML(s string) bool {
	ls := strings.ToLower(s)
	for _, m := range htmlMarkers {
		if strings.Contains(ls, m) {
			return true
		}
	}
	return false
}

func looksLikeMarkdown(s string) bool {
	for _, line := range strings.Split(s, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "# ") ||
			strings.HasPrefix(trimmed, "## ") ||
			strings.HasPrefix(trimmed, "### ") ||
			strings.HasPrefix(trimmed, "- ") ||
			strings.HasPrefix(trimmed, "* ") {
			return true
		}
	}
	return strings.Contains(s, "**") || strings.Contains(s, "_")
}

// headingScale maps heading levels to font-size multipliers.
func headingScale(level int) float64 {
	switch level {
	case 1:
		return 1.6
	case 2:
		return 1.4
	case 3:
		return 1.2
	default:
		return 1.1
	}
}

// style is the inheritable state carried while walking a document tree.
type style struct {
	bold      bool
	italic    bool
	underline bool
	scale     float64
}

func (st style) span(text string) Span {
	scale := st.scale
	if scale == 0 {
		scale = 1
	}
	return Span{
		Text:      text,
		Bold:      st.bold,
		Italic:    st.italic,
		Underline: st.underline,
		Scale:     scale,
	}
}

// builder accumulates spans into lines.
type builder struct {
	lines  []Line
	cur    Line
	dirty  bool
	bullet bool
}

func (b *builder) add(s Span) {
	if s.Text == "" {
		return
	}
	// Formatting whitespace never opens a line.
	if strings.TrimSpace(s.Text) == "" && !b.dirty {
		return
	}
	b.cur.Spans = append(b.cur.Spans, s)
	b.dirty = true
}

func (b *builder) breakLine() {
	if !b.dirty {
		return
	}
	b.cur.Bullet = b.bullet
	b.lines = append(b.lines, b.cur)
	b.cur = Line{}
	b.dirty = false
}

func (b *builder) done() []Line {
	b.breakLine()
	if b.lines == nil {
		return []Line{{Spans: []Span{{Text: "", Scale: 1}}}}
	}
	return b.lines
}

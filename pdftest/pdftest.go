// Package pdftest builds small, valid PDF files in memory for tests. The
// generated documents use Letter-size pages with Helvetica text so that
// text-content recovery yields predictable runs.
package pdftest

import (
	"bytes"
	"compress/zlib"
	"fmt"
)

const (
	PageWidth  = 612.0
	PageHeight = 792.0
)

// SamplePDF returns a one-page PDF containing the given text lines, laid out
// top-down starting at y=720 with 20pt line spacing, 12pt Helvetica at x=72.
func SamplePDF(lines ...string) []byte {
	return MultiPagePDF([][]string{lines})
}

// MultiPagePDF returns a PDF with one entry in pages per page, each entry
// holding that page's text lines. The xref is a classic table.
func MultiPagePDF(pages [][]string) []byte {
	b := newFileBuilder()

	n := len(pages)
	kidNums := make([]int, n)
	// Object numbering: 1 catalog, 2 pages, then per page (page, content),
	// finally the shared font.
	fontNum := 3 + 2*n
	var kids bytes.Buffer
	for i := range pages {
		kidNums[i] = 3 + 2*i
		if i > 0 {
			kids.WriteByte(' ')
		}
		fmt.Fprintf(&kids, "%d 0 R", kidNums[i])
	}

	b.addObject(1, "<</Type /Catalog /Pages 2 0 R>>")
	b.addObject(2, fmt.Sprintf("<</Type /Pages /Kids [%s] /Count %d>>", kids.String(), n))
	for i, lines := range pages {
		pageNum := kidNums[i]
		contentNum := pageNum + 1
		b.addObject(pageNum, fmt.Sprintf(
			"<</Type /Page /Parent 2 0 R /MediaBox [0 0 %g %g] /Resources <</Font <</F1 %d 0 R>>>> /Contents %d 0 R>>",
			PageWidth, PageHeight, fontNum, contentNum))
		content := contentStream(lines)
		b.addObject(contentNum, fmt.Sprintf("<</Length %d>>\nstream\n%s\nendstream", len(content), content))
	}
	b.addObject(fontNum, "<</Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding>>")

	return b.finishClassic(1)
}

// SamplePDFXRefStream returns a one-page PDF equivalent to SamplePDF but
// with its cross-reference encoded as an xref stream.
func SamplePDFXRefStream(lines ...string) []byte {
	b := newFileBuilder()
	b.addObject(1, "<</Type /Catalog /Pages 2 0 R>>")
	b.addObject(2, "<</Type /Pages /Kids [3 0 R] /Count 1>>")
	b.addObject(3, fmt.Sprintf(
		"<</Type /Page /Parent 2 0 R /MediaBox [0 0 %g %g] /Resources <</Font <</F1 5 0 R>>>> /Contents 4 0 R>>",
		PageWidth, PageHeight))
	content := contentStream(lines)
	b.addObject(4, fmt.Sprintf("<</Length %d>>\nstream\n%s\nendstream", len(content), content))
	b.addObject(5, "<</Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding>>")
	return b.finishXRefStream(1)
}

func contentStream(lines []string) string {
	var buf bytes.Buffer
	y := 720.0
	for _, line := range lines {
		fmt.Fprintf(&buf, "BT /F1 12 Tf 72 %g Td (%s) Tj ET\n", y, escape(line))
		y -= 20
	}
	return buf.String()
}

func escape(s string) string {
	var out bytes.Buffer
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '(', ')', '\\':
			out.WriteByte('\\')
			out.WriteByte(c)
		default:
			out.WriteByte(c)
		}
	}
	return out.String()
}

type fileBuilder struct {
	buf     bytes.Buffer
	offsets map[int]int
	maxNum  int
}

func newFileBuilder() *fileBuilder {
	b := &fileBuilder{offsets: make(map[int]int)}
	b.buf.WriteString("%PDF-1.7\n%\xe2\xe3\xcf\xd3\n")
	return b
}

func (b *fileBuilder) addObject(num int, body string) {
	b.offsets[num] = b.buf.Len()
	fmt.Fprintf(&b.buf, "%d 0 obj\n%s\nendobj\n", num, body)
	if num > b.maxNum {
		b.maxNum = num
	}
}

func (b *fileBuilder) finishClassic(rootNum int) []byte {
	xrefStart := b.buf.Len()
	size := b.maxNum + 1
	fmt.Fprintf(&b.buf, "xref\n0 %d\n", size)
	b.buf.WriteString("0000000000 65535 f \n")
	for num := 1; num < size; num++ {
		fmt.Fprintf(&b.buf, "%010d 00000 n \n", b.offsets[num])
	}
	fmt.Fprintf(&b.buf, "trailer\n<</Size %d /Root %d 0 R>>\nstartxref\n%d\n%%%%EOF\n", size, rootNum, xrefStart)
	return b.buf.Bytes()
}

func (b *fileBuilder) finishXRefStream(rootNum int) []byte {
	xrefNum := b.maxNum + 1
	size := xrefNum + 1
	xrefStart := b.buf.Len()

	var entries bytes.Buffer
	writeEntry := func(typ byte, off int, gen int) {
		entries.WriteByte(typ)
		entries.Write([]byte{byte(off >> 24), byte(off >> 16), byte(off >> 8), byte(off)})
		entries.Write([]byte{byte(gen >> 8), byte(gen)})
	}
	writeEntry(0, 0, 0xFFFF)
	for num := 1; num < xrefNum; num++ {
		writeEntry(1, b.offsets[num], 0)
	}
	writeEntry(1, xrefStart, 0)

	var compressed bytes.Buffer
	zw := zlib.NewWriter(&compressed)
	zw.Write(entries.Bytes())
	zw.Close()

	fmt.Fprintf(&b.buf,
		"%d 0 obj\n<</Type /XRef /Size %d /Root %d 0 R /W [1 4 2] /Index [0 %d] /Filter /FlateDecode /Length %d>>\nstream\n",
		xrefNum, size, rootNum, size, compressed.Len())
	b.buf.Write(compressed.Bytes())
	fmt.Fprintf(&b.buf, "\nendstream\nendobj\nstartxref\n%d\n%%%%EOF\n", xrefStart)
	return b.buf.Bytes()
}

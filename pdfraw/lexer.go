package pdfraw

import (
	"fmt"
	"strconv"
)

// lexer tokenizes raw objects directly out of the in-memory file bytes.
type lexer struct {
	data []byte
	pos  int
}

func newLexer(data []byte, pos int) *lexer { return &lexer{data: data, pos: pos} }

func isWhitespace(b byte) bool {
	return b == 0x00 || b == 0x09 || b == 0x0A || b == 0x0C || b == 0x0D || b == 0x20
}

func isDelimiter(b byte) bool {
	switch b {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	}
	return false
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }

func (l *lexer) eof() bool { return l.pos >= len(l.data) }

func (l *lexer) peek() byte {
	if l.eof() {
		return 0
	}
	return l.data[l.pos]
}

func (l *lexer) skipWhitespace() {
	for !l.eof() {
		b := l.data[l.pos]
		if isWhitespace(b) {
			l.pos++
			continue
		}
		if b == '%' {
			for !l.eof() && l.data[l.pos] != '\n' && l.data[l.pos] != '\r' {
				l.pos++
			}
			continue
		}
		break
	}
}

// readToken reads a run of regular characters.
func (l *lexer) readToken() string {
	start := l.pos
	for !l.eof() && !isWhitespace(l.data[l.pos]) && !isDelimiter(l.data[l.pos]) {
		l.pos++
	}
	return string(l.data[start:l.pos])
}

// readObject parses the next object. It does not consume stream data; the
// caller handles the `stream` keyword after a dictionary.
func (l *lexer) readObject() (Object, error) {
	l.skipWhitespace()
	if l.eof() {
		return nil, fmt.Errorf("pdfraw: unexpected end of data at %d", l.pos)
	}
	switch b := l.peek(); {
	case b == '/':
		return l.readName()
	case b == '(':
		return l.readString()
	case b == '<':
		if l.pos+1 < len(l.data) && l.data[l.pos+1] == '<' {
			return l.readDict()
		}
		return l.readHexString()
	case b == '[':
		return l.readArray()
	case isDigit(b) || b == '-' || b == '+' || b == '.':
		return l.readNumberOrRef()
	default:
		tok := l.readToken()
		switch tok {
		case "true":
			return Bool(true), nil
		case "false":
			return Bool(false), nil
		case "null":
			return Null{}, nil
		case "":
			return nil, fmt.Errorf("pdfraw: unexpected byte %q at %d", b, l.pos)
		}
		return nil, fmt.Errorf("pdfraw: unexpected keyword %q at %d", tok, l.pos)
	}
}

func (l *lexer) readName() (Object, error) {
	l.pos++ // slash
	var out []byte
	for !l.eof() {
		b := l.data[l.pos]
		if isWhitespace(b) || isDelimiter(b) {
			break
		}
		l.pos++
		if b == '#' && l.pos+1 < len(l.data) {
			if v, err := strconv.ParseUint(string(l.data[l.pos:l.pos+2]), 16, 8); err == nil {
				out = append(out, byte(v))
				l.pos += 2
				continue
			}
		}
		out = append(out, b)
	}
	return Name(out), nil
}

func (l *lexer) readString() (Object, error) {
	l.pos++ // opening paren
	var out []byte
	depth := 1
	for {
		if l.eof() {
			return nil, fmt.Errorf("pdfraw: unterminated string at %d", l.pos)
		}
		b := l.data[l.pos]
		l.pos++
		switch b {
		case '(':
			depth++
			out = append(out, b)
		case ')':
			depth--
			if depth == 0 {
				return String(out), nil
			}
			out = append(out, b)
		case '\\':
			if l.eof() {
				return nil, fmt.Errorf("pdfraw: unterminated escape at %d", l.pos)
			}
			e := l.data[l.pos]
			l.pos++
			switch e {
			case 'n':
				out = append(out, '\n')
			case 'r':
				out = append(out, '\r')
			case 't':
				out = append(out, '\t')
			case 'b':
				out = append(out, '\b')
			case 'f':
				out = append(out, '\f')
			case '(', ')', '\\':
				out = append(out, e)
			case '0', '1', '2', '3', '4', '5', '6', '7':
				oct := []byte{e}
				for len(oct) < 3 && !l.eof() && l.data[l.pos] >= '0' && l.data[l.pos] <= '7' {
					oct = append(oct, l.data[l.pos])
					l.pos++
				}
				v, _ := strconv.ParseUint(string(oct), 8, 16)
				out = append(out, byte(v))
			case '\n':
				// line continuation
			case '\r':
				if !l.eof() && l.data[l.pos] == '\n' {
					l.pos++
				}
			default:
				out = append(out, e)
			}
		default:
			out = append(out, b)
		}
	}
}

func (l *lexer) readHexString() (Object, error) {
	l.pos++ // '<'
	var hex []byte
	for {
		if l.eof() {
			return nil, fmt.Errorf("pdfraw: unterminated hex string at %d", l.pos)
		}
		b := l.data[l.pos]
		l.pos++
		if b == '>' {
			break
		}
		if isWhitespace(b) {
			continue
		}
		hex = append(hex, b)
	}
	if len(hex)%2 == 1 {
		hex = append(hex, '0')
	}
	out := make([]byte, len(hex)/2)
	for i := 0; i < len(out); i++ {
		v, err := strconv.ParseUint(string(hex[i*2:i*2+2]), 16, 8)
		if err != nil {
			return nil, fmt.Errorf("pdfraw: bad hex string: %w", err)
		}
		out[i] = byte(v)
	}
	return String(out), nil
}

func (l *lexer) readArray() (Object, error) {
	l.pos++ // '['
	var arr Array
	for {
		l.skipWhitespace()
		if l.eof() {
			return nil, fmt.Errorf("pdfraw: unterminated array at %d", l.pos)
		}
		if l.peek() == ']' {
			l.pos++
			return arr, nil
		}
		item, err := l.readObject()
		if err != nil {
			return nil, err
		}
		arr = append(arr, item)
	}
}

func (l *lexer) readDict() (Object, error) {
	l.pos += 2 // '<<'
	dict := Dict{}
	for {
		l.skipWhitespace()
		if l.pos+1 < len(l.data) && l.data[l.pos] == '>' && l.data[l.pos+1] == '>' {
			l.pos += 2
			return dict, nil
		}
		if l.eof() {
			return nil, fmt.Errorf("pdfraw: unterminated dictionary at %d", l.pos)
		}
		key, err := l.readObject()
		if err != nil {
			return nil, err
		}
		name, ok := key.(Name)
		if !ok {
			return nil, fmt.Errorf("pdfraw: dictionary key is %T, want name", key)
		}
		val, err := l.readObject()
		if err != nil {
			return nil, err
		}
		dict[name] = val
	}
}

func (l *lexer) readNumberOrRef() (Object, error) {
	first := l.readToken()
	save := l.pos

	// "N G R" forms an indirect reference; anything else rewinds.
	l.skipWhitespace()
	second := l.readToken()
	if isInteger(first) && isInteger(second) {
		l.skipWhitespace()
		if !l.eof() && l.peek() == 'R' {
			after := l.pos + 1
			if after >= len(l.data) || isWhitespace(l.data[after]) || isDelimiter(l.data[after]) {
				l.pos = after
				num, _ := strconv.Atoi(first)
				gen, _ := strconv.Atoi(second)
				return Ref{Num: num, Gen: gen}, nil
			}
		}
	}
	l.pos = save

	f, err := strconv.ParseFloat(first, 64)
	if err != nil {
		return nil, fmt.Errorf("pdfraw: bad number %q: %w", first, err)
	}
	return Number(f), nil
}

func isInteger(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !isDigit(s[i]) {
			return false
		}
	}
	return true
}

// expectKeyword consumes the given bare keyword or fails.
func (l *lexer) expectKeyword(kw string) error {
	l.skipWhitespace()
	tok := l.readToken()
	if tok != kw {
		return fmt.Errorf("pdfraw: expected %q, got %q at %d", kw, tok, l.pos)
	}
	return nil
}

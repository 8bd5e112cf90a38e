package pdfraw

import (
	"bytes"
	"compress/zlib"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ErrNotSupported marks PDF constructs outside the updater's scope.
var ErrNotSupported = errors.New("pdfraw: construct not supported")

type xrefEntry struct {
	offset     int64
	gen        int
	free       bool
	compressed bool
	streamObj  int
	streamIdx  int
}

// File is a parsed-enough view of an existing PDF: its xref chain, trailer,
// and lazily resolved objects. The underlying bytes are never mutated.
type File struct {
	data           []byte
	entries        map[int]xrefEntry
	trailer        Dict
	xrefStreams    bool
	startXRef      int64
	cache          map[Ref]Object
	objStreamCache map[int]map[int]Object
}

// Load parses the xref chain of data. The caller has already validated the
// %PDF- header.
func Load(data []byte) (*File, error) {
	f := &File{
		data:           data,
		entries:        make(map[int]xrefEntry),
		trailer:        Dict{},
		cache:          make(map[Ref]Object),
		objStreamCache: make(map[int]map[int]Object),
	}
	start, err := findStartXRef(data)
	if err != nil {
		return nil, err
	}
	f.startXRef = start

	visited := make(map[int64]bool)
	next := start
	first := true
	for next > 0 && !visited[next] {
		visited[next] = true
		if next >= int64(len(data)) {
			return nil, fmt.Errorf("pdfraw: xref offset %d beyond end of file", next)
		}
		var trailer Dict
		var prev int64
		if bytes.HasPrefix(data[next:], []byte("xref")) {
			trailer, prev, err = f.readXRefTable(next)
		} else {
			if first {
				f.xrefStreams = true
			}
			trailer, prev, err = f.readXRefStream(next)
		}
		if err != nil {
			return nil, err
		}
		for k, v := range trailer {
			if _, ok := f.trailer[k]; !ok {
				f.trailer[k] = v
			}
		}
		// An xref table may point to a hybrid-file xref stream.
		if xs, ok := trailer[Name("XRefStm")].(Number); ok && !visited[int64(xs)] {
			visited[int64(xs)] = true
			st, _, serr := f.readXRefStream(int64(xs))
			if serr != nil {
				return nil, serr
			}
			for k, v := range st {
				if _, ok := f.trailer[k]; !ok {
					f.trailer[k] = v
				}
			}
		}
		next = prev
		first = false
	}

	if _, ok := f.trailer[Name("Root")]; !ok {
		return nil, errors.New("pdfraw: trailer has no Root")
	}
	if _, ok := f.trailer[Name("Encrypt")]; ok {
		return nil, fmt.Errorf("%w: encrypted documents", ErrNotSupported)
	}
	return f, nil
}

// StartXRef returns the offset of the newest xref section, used as /Prev in
// the incremental update.
func (f *File) StartXRef() int64 { return f.startXRef }

// UsesXRefStreams reports whether the newest xref section is an xref stream;
// the update section must use the same form.
func (f *File) UsesXRefStreams() bool { return f.xrefStreams }

// Trailer returns the merged trailer dictionary.
func (f *File) Trailer() Dict { return f.trailer }

// MaxObjectNumber returns the highest object number in the xref chain.
func (f *File) MaxObjectNumber() int {
	max := 0
	for num := range f.entries {
		if num > max {
			max = num
		}
	}
	return max
}

func findStartXRef(data []byte) (int64, error) {
	tail := data
	if len(tail) > 2048 {
		tail = tail[len(tail)-2048:]
	}
	idx := bytes.LastIndex(tail, []byte("startxref"))
	if idx < 0 {
		return 0, errors.New("pdfraw: startxref not found")
	}
	rest := strings.TrimSpace(string(tail[idx+len("startxref"):]))
	end := 0
	for end < len(rest) && rest[end] >= '0' && rest[end] <= '9' {
		end++
	}
	if end == 0 {
		return 0, errors.New("pdfraw: malformed startxref")
	}
	return strconv.ParseInt(rest[:end], 10, 64)
}

func (f *File) readXRefTable(offset int64) (Dict, int64, error) {
	lx := newLexer(f.data, int(offset))
	if err := lx.expectKeyword("xref"); err != nil {
		return nil, 0, err
	}
	for {
		lx.skipWhitespace()
		if strings.HasPrefix(string(f.data[lx.pos:min(lx.pos+7, len(f.data))]), "trailer") {
			lx.pos += len("trailer")
			break
		}
		start, err := lx.readObject()
		if err != nil {
			return nil, 0, fmt.Errorf("pdfraw: xref subsection start: %w", err)
		}
		count, err := lx.readObject()
		if err != nil {
			return nil, 0, fmt.Errorf("pdfraw: xref subsection count: %w", err)
		}
		sn, ok1 := start.(Number)
		cn, ok2 := count.(Number)
		if !ok1 || !ok2 {
			return nil, 0, errors.New("pdfraw: malformed xref subsection header")
		}
		lx.skipWhitespace()
		for i := 0; i < int(cn); i++ {
			if lx.pos+20 > len(f.data) {
				return nil, 0, errors.New("pdfraw: truncated xref entry")
			}
			line := f.data[lx.pos : lx.pos+20]
			lx.pos += 20
			off, _ := strconv.ParseInt(strings.TrimSpace(string(line[0:10])), 10, 64)
			gen, _ := strconv.Atoi(strings.TrimSpace(string(line[11:16])))
			num := int(sn) + i
			if _, exists := f.entries[num]; !exists {
				f.entries[num] = xrefEntry{offset: off, gen: gen, free: line[17] == 'f'}
			}
		}
	}
	obj, err := lx.readObject()
	if err != nil {
		return nil, 0, fmt.Errorf("pdfraw: trailer: %w", err)
	}
	trailer, ok := obj.(Dict)
	if !ok {
		return nil, 0, errors.New("pdfraw: trailer is not a dictionary")
	}
	var prev int64
	if p, ok := trailer[Name("Prev")].(Number); ok {
		prev = int64(p)
	}
	return trailer, prev, nil
}

func (f *File) readXRefStream(offset int64) (Dict, int64, error) {
	_, _, obj, err := f.parseIndirectAt(offset)
	if err != nil {
		return nil, 0, fmt.Errorf("pdfraw: xref stream: %w", err)
	}
	stream, ok := obj.(Stream)
	if !ok {
		return nil, 0, errors.New("pdfraw: xref offset does not point at a stream")
	}
	dict := stream.Dict
	if t, _ := dict[Name("Type")].(Name); t != "XRef" {
		return nil, 0, fmt.Errorf("pdfraw: expected XRef stream, got /%s", t)
	}
	decoded, err := decodeStream(f, stream)
	if err != nil {
		return nil, 0, err
	}

	wArr, ok := dict[Name("W")].(Array)
	if !ok || len(wArr) != 3 {
		return nil, 0, errors.New("pdfraw: xref stream missing W")
	}
	w := make([]int, 3)
	for i, v := range wArr {
		n, ok := v.(Number)
		if !ok {
			return nil, 0, errors.New("pdfraw: non-numeric W entry")
		}
		w[i] = int(n)
	}

	var index []int
	if idx, ok := dict[Name("Index")].(Array); ok {
		for _, v := range idx {
			n, ok := v.(Number)
			if !ok {
				return nil, 0, errors.New("pdfraw: non-numeric Index entry")
			}
			index = append(index, int(n))
		}
	} else if size, ok := dict[Name("Size")].(Number); ok {
		index = []int{0, int(size)}
	}

	stride := w[0] + w[1] + w[2]
	pos := 0
	readField := func(width int) int64 {
		var v int64
		if width == 0 {
			return 0
		}
		for i := 0; i < width; i++ {
			v = v<<8 | int64(decoded[pos])
			pos++
		}
		return v
	}
	for i := 0; i+1 < len(index); i += 2 {
		start, count := index[i], index[i+1]
		for j := 0; j < count; j++ {
			if pos+stride > len(decoded) {
				return nil, 0, errors.New("pdfraw: truncated xref stream data")
			}
			typ := readField(w[0])
			if w[0] == 0 {
				typ = 1
			}
			f2 := readField(w[1])
			f3 := readField(w[2])
			num := start + j
			if _, exists := f.entries[num]; exists {
				continue
			}
			switch typ {
			case 0:
				f.entries[num] = xrefEntry{free: true, gen: int(f3)}
			case 1:
				f.entries[num] = xrefEntry{offset: f2, gen: int(f3)}
			case 2:
				f.entries[num] = xrefEntry{compressed: true, streamObj: int(f2), streamIdx: int(f3)}
			}
		}
	}

	var prev int64
	if p, ok := dict[Name("Prev")].(Number); ok {
		prev = int64(p)
	}
	return dict, prev, nil
}

// Get resolves an indirect reference, caching the result.
func (f *File) Get(ref Ref) (Object, error) {
	if obj, ok := f.cache[ref]; ok {
		return obj, nil
	}
	entry, ok := f.entries[ref.Num]
	if !ok || entry.free {
		return Null{}, nil
	}
	var obj Object
	var err error
	if entry.compressed {
		obj, err = f.getFromObjectStream(entry.streamObj, entry.streamIdx, ref.Num)
	} else {
		var num int
		num, _, obj, err = f.parseIndirectAt(entry.offset)
		if err == nil && num != ref.Num {
			err = fmt.Errorf("pdfraw: object at %d is %d, want %d", entry.offset, num, ref.Num)
		}
	}
	if err != nil {
		return nil, err
	}
	f.cache[ref] = obj
	return obj, nil
}

// Resolve dereferences obj if it is a Ref, recursively following chains.
func (f *File) Resolve(obj Object) (Object, error) {
	for i := 0; i < 32; i++ {
		ref, ok := obj.(Ref)
		if !ok {
			return obj, nil
		}
		next, err := f.Get(ref)
		if err != nil {
			return nil, err
		}
		obj = next
	}
	return nil, errors.New("pdfraw: reference chain too deep")
}

// parseIndirectAt parses "N G obj ... endobj" at the given byte offset.
func (f *File) parseIndirectAt(offset int64) (num, gen int, obj Object, err error) {
	if offset < 0 || offset >= int64(len(f.data)) {
		return 0, 0, nil, fmt.Errorf("pdfraw: object offset %d out of range", offset)
	}
	lx := newLexer(f.data, int(offset))
	lx.skipWhitespace()
	numTok := lx.readToken()
	lx.skipWhitespace()
	genTok := lx.readToken()
	if !isInteger(numTok) || !isInteger(genTok) {
		return 0, 0, nil, fmt.Errorf("pdfraw: no object header at %d", offset)
	}
	if err := lx.expectKeyword("obj"); err != nil {
		return 0, 0, nil, err
	}
	num, _ = strconv.Atoi(numTok)
	gen, _ = strconv.Atoi(genTok)

	obj, err = lx.readObject()
	if err != nil {
		return 0, 0, nil, err
	}

	// A dictionary followed by `stream` is a stream object.
	if dict, ok := obj.(Dict); ok {
		lx.skipWhitespace()
		if strings.HasPrefix(string(f.data[lx.pos:min(lx.pos+6, len(f.data))]), "stream") {
			lx.pos += len("stream")
			if lx.pos < len(f.data) && f.data[lx.pos] == '\r' {
				lx.pos++
			}
			if lx.pos < len(f.data) && f.data[lx.pos] == '\n' {
				lx.pos++
			}
			length, lerr := f.streamLength(dict)
			if lerr != nil {
				return 0, 0, nil, lerr
			}
			if lx.pos+length > len(f.data) {
				return 0, 0, nil, errors.New("pdfraw: stream data truncated")
			}
			raw := f.data[lx.pos : lx.pos+length]
			obj = Stream{Dict: dict, Raw: raw}
		}
	}
	return num, gen, obj, nil
}

func (f *File) streamLength(dict Dict) (int, error) {
	v, ok := dict[Name("Length")]
	if !ok {
		return 0, errors.New("pdfraw: stream has no Length")
	}
	resolved, err := f.Resolve(v)
	if err != nil {
		return 0, err
	}
	n, ok := resolved.(Number)
	if !ok {
		return 0, errors.New("pdfraw: stream Length is not a number")
	}
	return int(n), nil
}

func (f *File) getFromObjectStream(containerNum, idx, wantNum int) (Object, error) {
	objs, ok := f.objStreamCache[containerNum]
	if !ok {
		container, err := f.Get(Ref{Num: containerNum})
		if err != nil {
			return nil, err
		}
		stream, sok := container.(Stream)
		if !sok {
			return nil, fmt.Errorf("pdfraw: object stream %d is not a stream", containerNum)
		}
		objs, err = parseObjectStream(f, stream)
		if err != nil {
			return nil, err
		}
		f.objStreamCache[containerNum] = objs
	}
	obj, ok := objs[wantNum]
	if !ok {
		return nil, fmt.Errorf("pdfraw: object %d not found in object stream %d (index %d)", wantNum, containerNum, idx)
	}
	return obj, nil
}

func parseObjectStream(f *File, stream Stream) (map[int]Object, error) {
	if t, _ := stream.Dict[Name("Type")].(Name); t != "ObjStm" {
		return nil, errors.New("pdfraw: not an object stream")
	}
	data, err := decodeStream(f, stream)
	if err != nil {
		return nil, err
	}
	n, ok := stream.Dict[Name("N")].(Number)
	if !ok {
		return nil, errors.New("pdfraw: object stream has no N")
	}
	first, ok := stream.Dict[Name("First")].(Number)
	if !ok {
		return nil, errors.New("pdfraw: object stream has no First")
	}
	out := make(map[int]Object, int(n))
	hdr := newLexer(data, 0)
	for i := 0; i < int(n); i++ {
		hdr.skipWhitespace()
		numTok := hdr.readToken()
		hdr.skipWhitespace()
		offTok := hdr.readToken()
		if !isInteger(numTok) || !isInteger(offTok) {
			return nil, errors.New("pdfraw: malformed object stream header")
		}
		num, _ := strconv.Atoi(numTok)
		off, _ := strconv.Atoi(offTok)
		pos := int(first) + off
		if pos >= len(data) {
			return nil, errors.New("pdfraw: object stream offset out of range")
		}
		obj, err := newLexer(data, pos).readObject()
		if err != nil {
			return nil, fmt.Errorf("pdfraw: object %d in stream: %w", num, err)
		}
		out[num] = obj
	}
	return out, nil
}

// decodeStream applies the stream's filter chain. Only FlateDecode (with
// optional PNG predictors) and unfiltered streams are supported.
func decodeStream(f *File, s Stream) ([]byte, error) {
	filterObj, ok := s.Dict[Name("Filter")]
	if !ok {
		return s.Raw, nil
	}
	resolved, err := f.Resolve(filterObj)
	if err != nil {
		return nil, err
	}
	var filters []Name
	switch v := resolved.(type) {
	case Name:
		filters = []Name{v}
	case Array:
		for _, item := range v {
			name, ok := item.(Name)
			if !ok {
				return nil, fmt.Errorf("%w: non-name filter", ErrNotSupported)
			}
			filters = append(filters, name)
		}
	default:
		return nil, fmt.Errorf("%w: filter of type %T", ErrNotSupported, resolved)
	}
	data := s.Raw
	for _, name := range filters {
		if name != "FlateDecode" {
			return nil, fmt.Errorf("%w: filter /%s", ErrNotSupported, name)
		}
		zr, err := zlib.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("pdfraw: flate: %w", err)
		}
		decoded, err := io.ReadAll(zr)
		zr.Close()
		if err != nil {
			return nil, fmt.Errorf("pdfraw: flate: %w", err)
		}
		data = decoded
	}
	if parms, ok := s.Dict[Name("DecodeParms")].(Dict); ok {
		data, err = applyPredictor(data, parms)
		if err != nil {
			return nil, err
		}
	}
	return data, nil
}

func applyPredictor(data []byte, parms Dict) ([]byte, error) {
	predictor := 1
	if p, ok := parms[Name("Predictor")].(Number); ok {
		predictor = int(p)
	}
	if predictor <= 1 {
		return data, nil
	}
	if predictor < 10 {
		return nil, fmt.Errorf("%w: predictor %d", ErrNotSupported, predictor)
	}
	columns := 1
	if c, ok := parms[Name("Columns")].(Number); ok {
		columns = int(c)
	}
	rowSize := columns + 1
	rows := len(data) / rowSize
	out := make([]byte, rows*columns)
	prev := make([]byte, columns)
	for i := 0; i < rows; i++ {
		row := data[i*rowSize : (i+1)*rowSize]
		filter := row[0]
		cur := out[i*columns : (i+1)*columns]
		switch filter {
		case 0:
			copy(cur, row[1:])
		case 1:
			var left byte
			for x := 0; x < columns; x++ {
				left += row[1+x]
				cur[x] = left
			}
		case 2:
			for x := 0; x < columns; x++ {
				cur[x] = row[1+x] + prev[x]
			}
		default:
			return nil, fmt.Errorf("%w: PNG filter %d", ErrNotSupported, filter)
		}
		copy(prev, cur)
	}
	return out, nil
}

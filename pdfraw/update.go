package pdfraw

import (
	"bytes"
	"compress/zlib"
	"fmt"
	"sort"
)

// Updater accumulates new and replacement objects and serializes them as an
// incremental-update section appended to the original bytes. The original
// data is copied verbatim, which is what keeps untouched pages visually (and
// byte-) identical.
type Updater struct {
	file    *File
	objects map[int]updateObject
	order   []int
	nextNum int
}

type updateObject struct {
	ref Ref
	obj Object
}

// NewUpdater starts an incremental update of f.
func NewUpdater(f *File) *Updater {
	return &Updater{
		file:    f,
		objects: make(map[int]updateObject),
		nextNum: f.MaxObjectNumber() + 1,
	}
}

// Allocate reserves a fresh object number.
func (u *Updater) Allocate() Ref {
	ref := Ref{Num: u.nextNum}
	u.nextNum++
	return ref
}

// Put records obj as the new value of ref. Replacing an existing object and
// adding an allocated one go through the same path.
func (u *Updater) Put(ref Ref, obj Object) {
	if _, exists := u.objects[ref.Num]; !exists {
		u.order = append(u.order, ref.Num)
	}
	u.objects[ref.Num] = updateObject{ref: ref, obj: obj}
}

// Dirty reports whether any object has been recorded.
func (u *Updater) Dirty() bool { return len(u.objects) > 0 }

// Bytes serializes the update. The output is a pure function of the original
// bytes and the recorded objects.
func (u *Updater) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	buf.Write(u.file.data)
	if len(u.objects) == 0 {
		return buf.Bytes(), nil
	}
	if buf.Len() > 0 && buf.Bytes()[buf.Len()-1] != '\n' {
		buf.WriteByte('\n')
	}

	nums := append([]int(nil), u.order...)
	sort.Ints(nums)

	offsets := make(map[int]int64, len(nums))
	for _, num := range nums {
		uo := u.objects[num]
		offsets[num] = int64(buf.Len())
		fmt.Fprintf(&buf, "%d %d obj\n", uo.ref.Num, uo.ref.Gen)
		buf.Write(Serialize(uo.obj))
		buf.WriteString("\nendobj\n")
	}

	size := u.nextNum
	if m := u.file.MaxObjectNumber() + 1; m > size {
		size = m
	}
	for _, num := range nums {
		if num+1 > size {
			size = num + 1
		}
	}

	if u.file.UsesXRefStreams() {
		return u.writeXRefStream(&buf, nums, offsets, size)
	}
	return u.writeXRefTable(&buf, nums, offsets, size)
}

// trailerDict builds the update trailer carried fields.
func (u *Updater) trailerDict(size int) Dict {
	t := Dict{
		Name("Size"): Number(size),
		Name("Prev"): Number(u.file.StartXRef()),
		Name("Root"): u.file.trailer[Name("Root")],
	}
	if info, ok := u.file.trailer[Name("Info")]; ok {
		t[Name("Info")] = info
	}
	if id, ok := u.file.trailer[Name("ID")]; ok {
		t[Name("ID")] = id
	}
	return t
}

func (u *Updater) writeXRefTable(buf *bytes.Buffer, nums []int, offsets map[int]int64, size int) ([]byte, error) {
	xrefStart := int64(buf.Len())
	buf.WriteString("xref\n")
	for _, run := range contiguousRuns(nums) {
		fmt.Fprintf(buf, "%d %d\n", run[0], len(run))
		for _, num := range run {
			fmt.Fprintf(buf, "%010d %05d n \n", offsets[num], u.objects[num].ref.Gen)
		}
	}
	buf.WriteString("trailer\n")
	buf.Write(Serialize(u.trailerDict(size)))
	fmt.Fprintf(buf, "\nstartxref\n%d\n%%%%EOF\n", xrefStart)
	return buf.Bytes(), nil
}

func (u *Updater) writeXRefStream(buf *bytes.Buffer, nums []int, offsets map[int]int64, size int) ([]byte, error) {
	// The xref stream indexes itself, so its object number and offset are
	// fixed before the entry data is built.
	xrefRef := Ref{Num: u.nextNum}
	if xrefRef.Num+1 > size {
		size = xrefRef.Num + 1
	}
	xrefStart := int64(buf.Len())

	all := append(append([]int(nil), nums...), xrefRef.Num)
	sort.Ints(all)
	offsets[xrefRef.Num] = xrefStart

	var entries bytes.Buffer
	runs := contiguousRuns(all)
	var index Array
	for _, run := range runs {
		index = append(index, Number(run[0]), Number(len(run)))
		for _, num := range run {
			off := offsets[num]
			entries.WriteByte(1)
			entries.Write([]byte{byte(off >> 24), byte(off >> 16), byte(off >> 8), byte(off)})
			gen := 0
			if uo, ok := u.objects[num]; ok {
				gen = uo.ref.Gen
			}
			entries.Write([]byte{byte(gen >> 8), byte(gen)})
		}
	}

	var compressed bytes.Buffer
	zw, err := zlib.NewWriterLevel(&compressed, zlib.BestCompression)
	if err != nil {
		return nil, fmt.Errorf("pdfraw: xref stream: %w", err)
	}
	if _, err := zw.Write(entries.Bytes()); err != nil {
		return nil, fmt.Errorf("pdfraw: xref stream: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("pdfraw: xref stream: %w", err)
	}

	dict := u.trailerDict(size)
	dict[Name("Type")] = Name("XRef")
	dict[Name("W")] = Array{Number(1), Number(4), Number(2)}
	dict[Name("Index")] = index
	dict[Name("Filter")] = Name("FlateDecode")

	fmt.Fprintf(buf, "%d 0 obj\n", xrefRef.Num)
	buf.Write(Serialize(Stream{Dict: dict, Raw: compressed.Bytes()}))
	buf.WriteString("\nendobj\n")
	fmt.Fprintf(buf, "startxref\n%d\n%%%%EOF\n", xrefStart)
	return buf.Bytes(), nil
}

func contiguousRuns(nums []int) [][]int {
	var runs [][]int
	for _, num := range nums {
		if n := len(runs); n > 0 {
			last := runs[n-1]
			if num == last[len(last)-1]+1 {
				runs[n-1] = append(last, num)
				continue
			}
		}
		runs = append(runs, []int{num})
	}
	return runs
}

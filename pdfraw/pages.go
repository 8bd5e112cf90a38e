package pdfraw

import (
	"errors"
	"fmt"
)

// Page is one leaf of the page tree with its inheritable attributes already
// resolved.
type Page struct {
	Ref       Ref
	Dict      Dict
	MediaBox  [4]float64
	Resources Dict
}

// Pages walks the page tree and returns the pages in document order.
func (f *File) Pages() ([]Page, error) {
	root, err := f.Resolve(f.trailer[Name("Root")])
	if err != nil {
		return nil, err
	}
	catalog, ok := root.(Dict)
	if !ok {
		return nil, errors.New("pdfraw: catalog is not a dictionary")
	}
	pagesRef, ok := catalog[Name("Pages")]
	if !ok {
		return nil, errors.New("pdfraw: catalog has no Pages")
	}
	var out []Page
	inherited := inheritable{}
	if err := f.walkPages(pagesRef, inherited, &out, 0); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, errors.New("pdfraw: document has no pages")
	}
	return out, nil
}

type inheritable struct {
	mediaBox  Object
	resources Object
}

func (f *File) walkPages(node Object, inh inheritable, out *[]Page, depth int) error {
	if depth > 64 {
		return errors.New("pdfraw: page tree too deep")
	}
	ref, isRef := node.(Ref)
	resolved, err := f.Resolve(node)
	if err != nil {
		return err
	}
	dict, ok := resolved.(Dict)
	if !ok {
		return fmt.Errorf("pdfraw: page tree node is %T", resolved)
	}
	if mb, ok := dict[Name("MediaBox")]; ok {
		inh.mediaBox = mb
	}
	if res, ok := dict[Name("Resources")]; ok {
		inh.resources = res
	}
	switch t, _ := dict[Name("Type")].(Name); t {
	case "Pages":
		kids, err := f.Resolve(dict[Name("Kids")])
		if err != nil {
			return err
		}
		arr, ok := kids.(Array)
		if !ok {
			return errors.New("pdfraw: Kids is not an array")
		}
		for _, kid := range arr {
			if err := f.walkPages(kid, inh, out, depth+1); err != nil {
				return err
			}
		}
		return nil
	case "Page":
		if !isRef {
			return errors.New("pdfraw: page leaf is not an indirect object")
		}
		page := Page{Ref: ref, Dict: dict}
		if page.MediaBox, err = f.resolveBox(inh.mediaBox); err != nil {
			return fmt.Errorf("pdfraw: page %d: %w", ref.Num, err)
		}
		if inh.resources != nil {
			res, err := f.Resolve(inh.resources)
			if err != nil {
				return err
			}
			if d, ok := res.(Dict); ok {
				page.Resources = d
			}
		}
		*out = append(*out, page)
		return nil
	default:
		return fmt.Errorf("pdfraw: unexpected page tree node type %q", t)
	}
}

func (f *File) resolveBox(obj Object) ([4]float64, error) {
	var box [4]float64
	if obj == nil {
		return box, errors.New("no MediaBox")
	}
	resolved, err := f.Resolve(obj)
	if err != nil {
		return box, err
	}
	arr, ok := resolved.(Array)
	if !ok || len(arr) != 4 {
		return box, errors.New("malformed MediaBox")
	}
	for i, v := range arr {
		item, err := f.Resolve(v)
		if err != nil {
			return box, err
		}
		n, ok := item.(Number)
		if !ok {
			return box, errors.New("non-numeric MediaBox entry")
		}
		box[i] = float64(n)
	}
	return box, nil
}

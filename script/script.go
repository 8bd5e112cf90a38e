// Package script runs user edit scripts against the loaded document. It
// exposes a small DOM (doc, app) over the store so batch resume edits can
// be expressed in JavaScript and replayed from the CLI or the HTTP bridge.
package script

import (
	"context"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/dop251/goja"

	"github.com/Fatal777/applyx-pdfedit/coords"
	"github.com/Fatal777/applyx-pdfedit/document"
	"github.com/Fatal777/applyx-pdfedit/observability"
)

// Engine wraps a goja runtime bound to one store. Not safe for concurrent
// Execute calls; callers serialize.
type Engine struct {
	vm      *goja.Runtime
	store   document.Store
	logger  observability.Logger
	matched map[string]bool
}

// NewEngine builds a runtime and installs the doc/app bindings.
func NewEngine(store document.Store, logger observability.Logger) (*Engine, error) {
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	e := &Engine{
		vm:      goja.New(),
		store:   store,
		logger:  logger,
		matched: make(map[string]bool),
	}
	if err := e.bind(); err != nil {
		return nil, err
	}
	return e, nil
}

// Execute runs the script, honoring ctx cancellation via an interrupt.
func (e *Engine) Execute(ctx context.Context, src string) (interface{}, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	done := make(chan struct{})
	defer close(done)
	defer e.vm.ClearInterrupt()

	go func() {
		select {
		case <-ctx.Done():
			e.vm.Interrupt(ctx.Err())
		case <-done:
		}
	}()

	val, err := e.vm.RunString(src)
	if err != nil {
		if interrupted, ok := err.(*goja.InterruptedError); ok {
			if cause := interrupted.Unwrap(); cause != nil {
				return nil, cause
			}
			return nil, context.Canceled
		}
		return nil, err
	}
	return jsonSafe(val.Export()), nil
}

// jsonSafe reduces an exported script value to something a JSON encoder
// accepts. Run objects carry method values the encoder rejects; they
// collapse to their id, and stray function values are dropped.
func jsonSafe(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		hadFunc := false
		out := make(map[string]interface{}, len(t))
		for k, mv := range t {
			if mv != nil && reflect.TypeOf(mv).Kind() == reflect.Func {
				hadFunc = true
				continue
			}
			out[k] = jsonSafe(mv)
		}
		if hadFunc {
			if id, ok := out["id"].(string); ok {
				return id
			}
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, el := range t {
			out[i] = jsonSafe(el)
		}
		return out
	default:
		if v != nil && reflect.TypeOf(v).Kind() == reflect.Func {
			return nil
		}
		return v
	}
}

func (e *Engine) bind() error {
	app := e.vm.NewObject()
	if err := app.Set("log", func(call goja.FunctionCall) goja.Value {
		msg := ""
		if len(call.Arguments) > 0 {
			msg = call.Arguments[0].String()
		}
		e.logger.Info("script", observability.String("msg", msg))
		return goja.Undefined()
	}); err != nil {
		return err
	}
	if err := e.vm.Set("app", app); err != nil {
		return err
	}

	doc := e.vm.NewObject()
	doc.DefineAccessorProperty("pageCount",
		e.vm.ToValue(func(goja.FunctionCall) goja.Value {
			return e.vm.ToValue(e.store.PageCount())
		}),
		nil, goja.FLAG_FALSE, goja.FLAG_TRUE)

	if err := doc.Set("run", func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) < 1 {
			return goja.Null()
		}
		id := call.Arguments[0].String()
		page, ok := pageOfRunID(id)
		if !ok {
			return goja.Null()
		}
		p, err := e.store.GetPage(page)
		if err != nil {
			return goja.Null()
		}
		for _, run := range p.Runs {
			if run.ID == id {
				return e.runObject(run, page)
			}
		}
		return goja.Null()
	}); err != nil {
		return err
	}

	if err := doc.Set("findText", func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) < 1 {
			return goja.Null()
		}
		needle := call.Arguments[0].String()
		run, page, ok := e.findUnmatched(needle)
		if !ok {
			return goja.Null()
		}
		return e.runObject(run, page)
	}); err != nil {
		return err
	}

	if err := doc.Set("addAnnotation", func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) < 1 {
			panic(e.vm.ToValue("addAnnotation: missing argument"))
		}
		spec, ok := call.Arguments[0].Export().(map[string]interface{})
		if !ok {
			panic(e.vm.ToValue("addAnnotation: argument must be an object"))
		}
		a, err := annotationFromSpec(spec)
		if err != nil {
			panic(e.vm.ToValue(err.Error()))
		}
		added, err := e.store.AddAnnotation(a)
		if err != nil {
			panic(e.vm.ToValue(err.Error()))
		}
		return e.vm.ToValue(added.ID)
	}); err != nil {
		return err
	}

	return e.vm.Set("doc", doc)
}

// findUnmatched scans pages top to bottom, runs in enumeration order, and
// returns the first containing run not claimed by an earlier findText.
func (e *Engine) findUnmatched(needle string) (document.TextRun, int, bool) {
	for page := 1; page <= e.store.PageCount(); page++ {
		p, err := e.store.GetPage(page)
		if err != nil {
			continue
		}
		for _, run := range p.Runs {
			if e.matched[run.ID] || !strings.Contains(run.Current, needle) {
				continue
			}
			e.matched[run.ID] = true
			return run, page, true
		}
	}
	return document.TextRun{}, 0, false
}

func (e *Engine) runObject(run document.TextRun, page int) goja.Value {
	obj := e.vm.NewObject()
	obj.Set("id", run.ID)
	obj.Set("page", page)
	id := run.ID
	obj.DefineAccessorProperty("text",
		e.vm.ToValue(func(goja.FunctionCall) goja.Value {
			return e.vm.ToValue(e.currentText(page, id))
		}),
		e.vm.ToValue(func(call goja.FunctionCall) goja.Value {
			if len(call.Arguments) > 0 {
				e.setText(page, id, call.Arguments[0].String())
			}
			return goja.Undefined()
		}),
		goja.FLAG_TRUE, goja.FLAG_TRUE)
	obj.Set("setText", func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) > 0 {
			e.setText(page, id, call.Arguments[0].String())
		}
		return goja.Undefined()
	})
	return obj
}

func (e *Engine) currentText(page int, id string) string {
	p, err := e.store.GetPage(page)
	if err != nil {
		return ""
	}
	for _, run := range p.Runs {
		if run.ID == id {
			return run.Current
		}
	}
	return ""
}

func (e *Engine) setText(page int, id, text string) {
	if _, err := e.store.UpdateTextRun(page, id, text); err != nil {
		panic(e.vm.ToValue(err.Error()))
	}
}

// pageOfRunID extracts n from "page-<n>-text-<k>".
func pageOfRunID(id string) (int, bool) {
	rest, ok := strings.CutPrefix(id, "page-")
	if !ok {
		return 0, false
	}
	numStr, _, ok := strings.Cut(rest, "-")
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(numStr)
	if err != nil {
		return 0, false
	}
	return n, true
}

func annotationFromSpec(spec map[string]interface{}) (document.Annotation, error) {
	a := document.Annotation{
		Kind: document.AnnotationKind(stringField(spec, "kind")),
		Page: int(numField(spec, "page")),
		X:    numField(spec, "x"),
		Y:    numField(spec, "y"),
		W:    numField(spec, "w"),
		H:    numField(spec, "h"),
		Text: stringField(spec, "text"),
		Style: document.Style{
			Color:       stringField(spec, "color"),
			StrokeWidth: numField(spec, "strokeWidth"),
			FontSize:    numField(spec, "fontSize"),
		},
	}
	switch a.Kind {
	case document.AnnotationText, document.AnnotationDraw, document.AnnotationHighlight,
		document.AnnotationRectangle, document.AnnotationCircle:
	default:
		return a, fmt.Errorf("addAnnotation: unknown kind %q", a.Kind)
	}
	if raw, ok := spec["points"].([]interface{}); ok {
		for _, rp := range raw {
			pm, ok := rp.(map[string]interface{})
			if !ok {
				return a, fmt.Errorf("addAnnotation: bad point %v", rp)
			}
			a.Points = append(a.Points, coords.Point{
				X: numField(pm, "x"),
				Y: numField(pm, "y"),
			})
		}
	}
	return a, nil
}

func stringField(m map[string]interface{}, key string) string {
	s, _ := m[key].(string)
	return s
}

func numField(m map[string]interface{}, key string) float64 {
	switch v := m[key].(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	}
	return 0
}

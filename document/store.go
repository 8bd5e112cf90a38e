package document

import (
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/Fatal777/applyx-pdfedit/coords"
	"github.com/Fatal777/applyx-pdfedit/engine"
	"github.com/Fatal777/applyx-pdfedit/observability"
)

var (
	// ErrNotLoaded is returned by operations invoked before Load.
	ErrNotLoaded = errors.New("document: no document loaded")
	// ErrNoSuchPage is returned for page indexes outside [1, PageCount].
	ErrNoSuchPage = errors.New("document: no such page")
	// ErrNoSuchRun is returned when a run id does not exist on the page.
	ErrNoSuchRun = errors.New("document: no such text run")
	// ErrNoSuchAnnotation is returned when an annotation id is unknown.
	ErrNoSuchAnnotation = errors.New("document: no such annotation")
	// ErrNotEditable is returned for runs recovered with empty strings.
	ErrNotEditable = errors.New("document: text run is not editable")
)

// Store owns the loaded document and all derived state. Every mutation
// goes through it, so callers observe consistent snapshots in any order.
type Store interface {
	Load(name string, data []byte) error
	Close() error

	Name() string
	PageCount() int
	SourceBytes() []byte
	PageSize(page int) (w, h float64, err error)
	GetPage(page int) (Page, error)
	Rasterize(page int, scale float64) (image.Image, error)

	UpdateTextRun(page int, runID, text string) (changed bool, err error)

	AddAnnotation(a Annotation) (Annotation, error)
	UpdateAnnotation(a Annotation) error
	RemoveAnnotation(page int, id string) error
	Annotations(page int) ([]Annotation, error)
	Undo() bool
	Redo() bool

	SetZoom(percent int) int
	ZoomIn() int
	ZoomOut() int
	SetCurrentPage(page int) error
	SetVisiblePages(pages []int)
	SelectRun(id string)
	View() ViewState

	EditLog() []EditOperation
	Snapshot() Snapshot
}

type store struct {
	mu     sync.Mutex
	eng    engine.Engine
	logger observability.Logger
	clock  func() time.Time

	name      string
	source    []byte
	doc       engine.Document
	pageCount int
	pages     map[int]*Page
	editLog   []EditOperation
	view      ViewState
	nextAnnot int
	history   *annotationHistory
}

// NewStore builds an empty store over the given engine.
func NewStore(eng engine.Engine, logger observability.Logger) Store {
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	return &store{eng: eng, logger: logger, clock: time.Now}
}

func (s *store) Load(name string, data []byte) error {
	if !engine.ValidHeader(data) {
		return engine.ErrInvalidFormat
	}
	doc, err := s.eng.Open(data)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.doc != nil {
		s.doc.Close()
	}
	s.name = name
	s.source = data
	s.doc = doc
	s.pageCount = doc.PageCount()
	s.pages = make(map[int]*Page)
	s.editLog = nil
	s.nextAnnot = 0
	s.history = newAnnotationHistory()
	s.view = ViewState{CurrentPage: 1, Zoom: 100}
	s.logger.Info("document loaded",
		observability.String("name", name),
		observability.Int("pages", s.pageCount),
		observability.Int("bytes", len(data)))
	return nil
}

func (s *store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.doc == nil {
		return nil
	}
	err := s.doc.Close()
	s.doc = nil
	s.pages = nil
	s.source = nil
	return err
}

func (s *store) Name() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.name
}

func (s *store) PageCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pageCount
}

// SourceBytes returns the original input. Callers must not modify it.
func (s *store) SourceBytes() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.source
}

func (s *store) PageSize(page int) (float64, float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.doc == nil {
		return 0, 0, ErrNotLoaded
	}
	return s.doc.PageSize(page)
}

// Rasterize asks the engine for a page bitmap. The store lock is not held
// while the engine works, so edits may land during rasterization.
func (s *store) Rasterize(page int, scale float64) (image.Image, error) {
	s.mu.Lock()
	doc := s.doc
	s.mu.Unlock()
	if doc == nil {
		return nil, ErrNotLoaded
	}
	return doc.Rasterize(page, scale)
}

func (s *store) GetPage(page int) (Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, err := s.pageLocked(page)
	if err != nil {
		return Page{}, err
	}
	return copyPage(p), nil
}

// pageLocked builds page metadata on first access: natural size from the
// engine plus text-run recovery at scale 1.
func (s *store) pageLocked(page int) (*Page, error) {
	if s.doc == nil {
		return nil, ErrNotLoaded
	}
	if page < 1 || page > s.pageCount {
		return nil, fmt.Errorf("%w: %d", ErrNoSuchPage, page)
	}
	if p, ok := s.pages[page]; ok {
		return p, nil
	}

	w, h, err := s.doc.PageSize(page)
	if err != nil {
		return nil, err
	}
	items, err := s.doc.TextContent(page)
	if err != nil {
		return nil, err
	}
	vp, err := s.doc.Viewport(page, 1)
	if err != nil {
		return nil, err
	}

	p := &Page{Index: page, Width: w, Height: h}
	for k, item := range items {
		tx := engine.ComposeTransform(item.Transform, vp.Transform)
		p.Runs = append(p.Runs, TextRun{
			ID:       RunID(page, k),
			Original: item.Str,
			Current:  item.Str,
			Box: coords.Rect{
				X: tx[4],
				Y: tx[5] - item.Height,
				W: item.Width,
				H: item.Height,
			},
			FontSize: item.Height,
			Ascent:   item.Height * 0.8,
			Descent:  item.Height * 0.2,
			HasEOL:   item.HasEOL,
			Editable: item.Str != "",
		})
	}
	s.pages[page] = p
	s.logger.Debug("page built",
		observability.Int("page", page),
		observability.Int("runs", len(p.Runs)))
	return p, nil
}

func (s *store) UpdateTextRun(page int, runID, text string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, err := s.pageLocked(page)
	if err != nil {
		return false, err
	}
	run := findRun(p, runID)
	if run == nil {
		return false, fmt.Errorf("%w: %s", ErrNoSuchRun, runID)
	}
	if !run.Editable {
		return false, fmt.Errorf("%w: %s", ErrNotEditable, runID)
	}
	if run.Current == text {
		return false, nil
	}

	run.Current = text
	run.Edited = text != run.Original
	if run.Edited {
		s.editLog = append(s.editLog, EditOperation{
			Page:        page,
			RunID:       runID,
			Original:    run.Original,
			NewText:     text,
			CommittedAt: s.clock(),
		})
	} else {
		// Committing the original text back cancels the run's history so
		// the edited flag and the log stay in step.
		s.dropRunOpsLocked(runID)
	}
	s.logger.Info("text run updated",
		observability.Int("page", page),
		observability.String("run", runID),
		observability.Bool("edited", run.Edited))
	return true, nil
}

func (s *store) dropRunOpsLocked(runID string) {
	kept := s.editLog[:0]
	for _, op := range s.editLog {
		if op.RunID != runID {
			kept = append(kept, op)
		}
	}
	s.editLog = kept
}

func (s *store) AddAnnotation(a Annotation) (Annotation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, err := s.pageLocked(a.Page)
	if err != nil {
		return Annotation{}, err
	}
	s.nextAnnot++
	a.ID = fmt.Sprintf("annot-%d", s.nextAnnot)
	a = a.clone()
	p.Annotations = append(p.Annotations, a)
	s.history.push(s.annotationsByPageLocked())
	s.logger.Info("annotation added",
		observability.Int("page", a.Page),
		observability.String("id", a.ID),
		observability.String("kind", string(a.Kind)))
	return a, nil
}

func (s *store) UpdateAnnotation(a Annotation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, err := s.pageLocked(a.Page)
	if err != nil {
		return err
	}
	for i := range p.Annotations {
		if p.Annotations[i].ID == a.ID {
			p.Annotations[i] = a.clone()
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrNoSuchAnnotation, a.ID)
}

func (s *store) RemoveAnnotation(page int, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, err := s.pageLocked(page)
	if err != nil {
		return err
	}
	for i := range p.Annotations {
		if p.Annotations[i].ID == id {
			p.Annotations = append(p.Annotations[:i], p.Annotations[i+1:]...)
			s.history.push(s.annotationsByPageLocked())
			s.logger.Info("annotation removed",
				observability.Int("page", page),
				observability.String("id", id))
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrNoSuchAnnotation, id)
}

func (s *store) Annotations(page int) ([]Annotation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, err := s.pageLocked(page)
	if err != nil {
		return nil, err
	}
	return copyAnnotations(p.Annotations), nil
}

func (s *store) Undo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.history.undo()
	if !ok {
		return false
	}
	s.restoreAnnotationsLocked(state)
	return true
}

func (s *store) Redo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.history.redo()
	if !ok {
		return false
	}
	s.restoreAnnotationsLocked(state)
	return true
}

func (s *store) annotationsByPageLocked() map[int][]Annotation {
	state := make(map[int][]Annotation)
	for idx, p := range s.pages {
		if len(p.Annotations) > 0 {
			state[idx] = copyAnnotations(p.Annotations)
		}
	}
	return state
}

func (s *store) restoreAnnotationsLocked(state map[int][]Annotation) {
	for idx, p := range s.pages {
		p.Annotations = copyAnnotations(state[idx])
	}
}

func (s *store) SetZoom(percent int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.view.Zoom = ClampZoom(percent)
	return s.view.Zoom
}

func (s *store) ZoomIn() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.view.Zoom = ClampZoom(s.view.Zoom + ZoomStep)
	return s.view.Zoom
}

func (s *store) ZoomOut() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.view.Zoom = ClampZoom(s.view.Zoom - ZoomStep)
	return s.view.Zoom
}

func (s *store) SetCurrentPage(page int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if page < 1 || page > s.pageCount {
		return fmt.Errorf("%w: %d", ErrNoSuchPage, page)
	}
	s.view.CurrentPage = page
	return nil
}

func (s *store) SetVisiblePages(pages []int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.view.VisiblePages = append([]int(nil), pages...)
}

func (s *store) SelectRun(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.view.SelectedRun = id
}

func (s *store) View() ViewState {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.view
	v.VisiblePages = append([]int(nil), v.VisiblePages...)
	return v
}

func (s *store) EditLog() []EditOperation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]EditOperation(nil), s.editLog...)
}

func (s *store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		Name:      s.name,
		PageCount: s.pageCount,
		View:      s.view,
		EditLog:   append([]EditOperation(nil), s.editLog...),
	}
	snap.View.VisiblePages = append([]int(nil), s.view.VisiblePages...)
	for i := 1; i <= s.pageCount; i++ {
		if p, ok := s.pages[i]; ok {
			snap.Pages = append(snap.Pages, copyPage(p))
		}
	}
	return snap
}

func findRun(p *Page, id string) *TextRun {
	for i := range p.Runs {
		if p.Runs[i].ID == id {
			return &p.Runs[i]
		}
	}
	return nil
}

func copyPage(p *Page) Page {
	out := *p
	out.Runs = append([]TextRun(nil), p.Runs...)
	out.Annotations = copyAnnotations(p.Annotations)
	return out
}

func copyAnnotations(in []Annotation) []Annotation {
	if in == nil {
		return nil
	}
	out := make([]Annotation, len(in))
	for i, a := range in {
		out[i] = a.clone()
	}
	return out
}

package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Fatal777/applyx-pdfedit/coords"
	"github.com/Fatal777/applyx-pdfedit/document"
	"github.com/Fatal777/applyx-pdfedit/engine"
	"github.com/Fatal777/applyx-pdfedit/export"
	"github.com/Fatal777/applyx-pdfedit/tools"
)

const scriptTimeout = 10 * time.Second

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func decodeJSON(r *http.Request, v interface{}) error {
	defer io.Copy(io.Discard, r.Body)
	return json.NewDecoder(r.Body).Decode(v)
}

// sessionFrom resolves the session in the URL or writes a 404.
func (s *Server) sessionFrom(w http.ResponseWriter, r *http.Request) (*Session, bool) {
	sess, ok := s.session(chi.URLParam(r, "sessionID"))
	if !ok {
		writeError(w, http.StatusNotFound, errors.New("unknown session"))
		return nil, false
	}
	return sess, true
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if name == "" {
		name = "document.pdf"
	}
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, err)
		return
	}
	sess, err := s.newSession(name, data)
	if err != nil {
		status := http.StatusUnprocessableEntity
		if errors.Is(err, engine.ErrInvalidFormat) {
			status = http.StatusBadRequest
		}
		writeError(w, status, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"session_id": sess.ID,
		"name":       name,
		"page_count": sess.Store.PageCount(),
	})
}

func (s *Server) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.dropSession(chi.URLParam(r, "sessionID"))
	if !ok {
		writeError(w, http.StatusNotFound, errors.New("unknown session"))
		return
	}
	sess.Store.Close()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessionFrom(w, r)
	if !ok {
		return
	}
	snap := sess.Store.Snapshot()
	writeJSON(w, http.StatusOK, snapshotDTO(snap))
}

func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessionFrom(w, r)
	if !ok {
		return
	}
	var page int
	if _, err := fmt.Sscanf(chi.URLParam(r, "page"), "%d", &page); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	p, err := sess.Store.GetPage(page)
	if err != nil {
		status := http.StatusUnprocessableEntity
		if errors.Is(err, document.ErrNoSuchPage) {
			status = http.StatusNotFound
		}
		writeError(w, status, err)
		return
	}
	writeJSON(w, http.StatusOK, pageDTO(p))
}

func (s *Server) handleUpdateRun(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessionFrom(w, r)
	if !ok {
		return
	}
	var req struct {
		Page int    `json:"page"`
		Text string `json:"text"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	runID := chi.URLParam(r, "runID")
	changed, err := sess.Store.UpdateTextRun(req.Page, runID, req.Text)
	if err != nil {
		status := http.StatusUnprocessableEntity
		if errors.Is(err, document.ErrNoSuchRun) || errors.Is(err, document.ErrNoSuchPage) {
			status = http.StatusNotFound
		}
		writeError(w, status, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"changed":  changed,
		"edit_log": len(sess.Store.EditLog()),
	})
}

func (s *Server) handleAddAnnotation(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessionFrom(w, r)
	if !ok {
		return
	}
	var dto annotationJSON
	if err := decodeJSON(r, &dto); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	added, err := sess.Store.AddAnnotation(dto.model())
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAnnotationJSON(added))
}

func (s *Server) handleUpdateAnnotation(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessionFrom(w, r)
	if !ok {
		return
	}
	var dto annotationJSON
	if err := decodeJSON(r, &dto); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	a := dto.model()
	a.ID = chi.URLParam(r, "annotationID")
	if err := sess.Store.UpdateAnnotation(a); err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, toAnnotationJSON(a))
}

func (s *Server) handleRemoveAnnotation(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessionFrom(w, r)
	if !ok {
		return
	}
	var page int
	if _, err := fmt.Sscanf(r.URL.Query().Get("page"), "%d", &page); err != nil {
		writeError(w, http.StatusBadRequest, errors.New("page query parameter required"))
		return
	}
	if err := sess.Store.RemoveAnnotation(page, chi.URLParam(r, "annotationID")); err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleZoom(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessionFrom(w, r)
	if !ok {
		return
	}
	var req struct {
		Zoom *int   `json:"zoom"`
		Step string `json:"step"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	var zoom int
	switch {
	case req.Zoom != nil:
		zoom = sess.Store.SetZoom(*req.Zoom)
	case req.Step == "in":
		zoom = sess.Store.ZoomIn()
	case req.Step == "out":
		zoom = sess.Store.ZoomOut()
	default:
		writeError(w, http.StatusBadRequest, errors.New("zoom or step required"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"zoom": zoom})
}

func (s *Server) handleUndo(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessionFrom(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"applied": sess.Store.Undo()})
}

func (s *Server) handleRedo(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessionFrom(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"applied": sess.Store.Redo()})
}

func (s *Server) handleTool(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessionFrom(w, r)
	if !ok {
		return
	}
	var req struct {
		Tool string `json:"tool"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := sess.Tools.Activate(tools.Type(req.Tool)); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	sess.Renderer.SetCursor(sess.Tools.Cursor())
	writeJSON(w, http.StatusOK, map[string]string{
		"tool":   req.Tool,
		"cursor": sess.Tools.Cursor(),
	})
}

func (s *Server) handleScript(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessionFrom(w, r)
	if !ok {
		return
	}
	var req struct {
		Source string `json:"source"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), scriptTimeout)
	defer cancel()

	sess.mu.Lock()
	result, err := sess.Script.Execute(ctx, req.Source)
	sess.mu.Unlock()
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"result": result})
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessionFrom(w, r)
	if !ok {
		return
	}
	in := export.Input{
		Name:     sess.Store.Name(),
		Source:   sess.Store.SourceBytes(),
		Snapshot: sess.Store.Snapshot(),
	}
	job := s.worker.Generate(in)
	s.jobs.add(job, sess.Store.Name())
	writeJSON(w, http.StatusAccepted, map[string]string{"job_id": job.ID})
}

func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	entry, ok := s.jobs.get(chi.URLParam(r, "jobID"))
	if !ok {
		writeError(w, http.StatusNotFound, errors.New("unknown job"))
		return
	}
	state, pageCount := "running", 0
	select {
	case <-entry.job.Done():
		switch err := entry.job.Err(); {
		case err == nil:
			state = "complete"
			res, _ := entry.job.Wait(r.Context())
			pageCount = res.PageCount
		case errors.Is(err, export.ErrCancelled):
			state = "cancelled"
		default:
			state = "error"
		}
	default:
	}
	resp := map[string]interface{}{
		"state":    state,
		"progress": entry.progress,
	}
	if state == "complete" {
		resp["page_count"] = pageCount
	}
	if state == "error" {
		resp["error"] = entry.job.Err().Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleJobResult(w http.ResponseWriter, r *http.Request) {
	entry, ok := s.jobs.get(chi.URLParam(r, "jobID"))
	if !ok {
		writeError(w, http.StatusNotFound, errors.New("unknown job"))
		return
	}
	select {
	case <-entry.job.Done():
	default:
		writeError(w, http.StatusConflict, errors.New("job still running"))
		return
	}
	res, err := entry.job.Wait(r.Context())
	if err != nil {
		status := http.StatusUnprocessableEntity
		if errors.Is(err, export.ErrCancelled) {
			status = http.StatusGone
		}
		writeError(w, status, err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", "edited_"+entry.name))
	w.Write(res.Bytes)
}

func (s *Server) handleJobCancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "jobID")
	if _, ok := s.jobs.get(id); !ok {
		writeError(w, http.StatusNotFound, errors.New("unknown job"))
		return
	}
	cancelled := s.worker.Cancel(id)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"cancelled": cancelled,
		"reason":    export.CancelReason,
	})
}

// DTOs

type snapshotJSON struct {
	Name      string     `json:"name"`
	PageCount int        `json:"page_count"`
	View      viewJSON   `json:"view"`
	Pages     []pageJSON `json:"pages"`
	EditLog   []editJSON `json:"edit_log"`
}

type viewJSON struct {
	CurrentPage  int    `json:"current_page"`
	Zoom         int    `json:"zoom"`
	VisiblePages []int  `json:"visible_pages,omitempty"`
	SelectedRun  string `json:"selected_run,omitempty"`
}

type pageJSON struct {
	Index       int              `json:"index"`
	Width       float64          `json:"width"`
	Height      float64          `json:"height"`
	Runs        []runJSON        `json:"runs"`
	Annotations []annotationJSON `json:"annotations"`
}

type runJSON struct {
	ID       string  `json:"id"`
	Original string  `json:"original"`
	Current  string  `json:"current"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	W        float64 `json:"w"`
	H        float64 `json:"h"`
	FontSize float64 `json:"font_size"`
	Edited   bool    `json:"edited"`
	Editable bool    `json:"editable"`
}

type editJSON struct {
	Page     int    `json:"page"`
	RunID    string `json:"run_id"`
	Original string `json:"original"`
	NewText  string `json:"new_text"`
}

type pointJSON struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type annotationJSON struct {
	ID          string      `json:"id,omitempty"`
	Kind        string      `json:"kind"`
	Page        int         `json:"page"`
	X           float64     `json:"x"`
	Y           float64     `json:"y"`
	W           float64     `json:"w,omitempty"`
	H           float64     `json:"h,omitempty"`
	Points      []pointJSON `json:"points,omitempty"`
	Text        string      `json:"text,omitempty"`
	Color       string      `json:"color,omitempty"`
	StrokeWidth float64     `json:"stroke_width,omitempty"`
	FontFamily  string      `json:"font_family,omitempty"`
	FontSize    float64     `json:"font_size,omitempty"`
	Bold        bool        `json:"bold,omitempty"`
	Italic      bool        `json:"italic,omitempty"`
	Underline   bool        `json:"underline,omitempty"`
}

func (a annotationJSON) model() document.Annotation {
	m := document.Annotation{
		ID:   a.ID,
		Kind: document.AnnotationKind(a.Kind),
		Page: a.Page,
		X:    a.X,
		Y:    a.Y,
		W:    a.W,
		H:    a.H,
		Text: a.Text,
		Style: document.Style{
			Color:       a.Color,
			StrokeWidth: a.StrokeWidth,
			FontFamily:  a.FontFamily,
			FontSize:    a.FontSize,
			Bold:        a.Bold,
			Italic:      a.Italic,
			Underline:   a.Underline,
		},
	}
	for _, p := range a.Points {
		m.Points = append(m.Points, coords.Point{X: p.X, Y: p.Y})
	}
	return m
}

func toAnnotationJSON(a document.Annotation) annotationJSON {
	out := annotationJSON{
		ID:          a.ID,
		Kind:        string(a.Kind),
		Page:        a.Page,
		X:           a.X,
		Y:           a.Y,
		W:           a.W,
		H:           a.H,
		Text:        a.Text,
		Color:       a.Style.Color,
		StrokeWidth: a.Style.StrokeWidth,
		FontFamily:  a.Style.FontFamily,
		FontSize:    a.Style.FontSize,
		Bold:        a.Style.Bold,
		Italic:      a.Style.Italic,
		Underline:   a.Style.Underline,
	}
	for _, p := range a.Points {
		out.Points = append(out.Points, pointJSON{X: p.X, Y: p.Y})
	}
	return out
}

func pageDTO(p document.Page) pageJSON {
	out := pageJSON{
		Index:       p.Index,
		Width:       p.Width,
		Height:      p.Height,
		Runs:        []runJSON{},
		Annotations: []annotationJSON{},
	}
	for _, run := range p.Runs {
		out.Runs = append(out.Runs, runJSON{
			ID:       run.ID,
			Original: run.Original,
			Current:  run.Current,
			X:        run.Box.X,
			Y:        run.Box.Y,
			W:        run.Box.W,
			H:        run.Box.H,
			FontSize: run.FontSize,
			Edited:   run.Edited,
			Editable: run.Editable,
		})
	}
	for _, a := range p.Annotations {
		out.Annotations = append(out.Annotations, toAnnotationJSON(a))
	}
	return out
}

func snapshotDTO(snap document.Snapshot) snapshotJSON {
	out := snapshotJSON{
		Name:      snap.Name,
		PageCount: snap.PageCount,
		View: viewJSON{
			CurrentPage:  snap.View.CurrentPage,
			Zoom:         snap.View.Zoom,
			VisiblePages: snap.View.VisiblePages,
			SelectedRun:  snap.View.SelectedRun,
		},
		Pages:   []pageJSON{},
		EditLog: []editJSON{},
	}
	for _, p := range snap.Pages {
		out.Pages = append(out.Pages, pageDTO(p))
	}
	for _, op := range snap.EditLog {
		out.EditLog = append(out.EditLog, editJSON{
			Page:     op.Page,
			RunID:    op.RunID,
			Original: op.Original,
			NewText:  op.NewText,
		})
	}
	return out
}

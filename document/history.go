package document

// annotationHistory is an undo/redo stack over full annotation states.
// Text edits are not part of it; the edit log carries its own history.
type annotationHistory struct {
	states []map[int][]Annotation
	idx    int
	limit  int
}

func newAnnotationHistory() *annotationHistory {
	return &annotationHistory{
		states: []map[int][]Annotation{{}},
		limit:  100,
	}
}

// push records the state after a mutation and discards any redo tail.
func (h *annotationHistory) push(state map[int][]Annotation) {
	h.states = append(h.states[:h.idx+1], state)
	h.idx = len(h.states) - 1
	if len(h.states) > h.limit {
		h.states = h.states[len(h.states)-h.limit:]
		h.idx = len(h.states) - 1
	}
}

func (h *annotationHistory) undo() (map[int][]Annotation, bool) {
	if h.idx == 0 {
		return nil, false
	}
	h.idx--
	return h.states[h.idx], true
}

func (h *annotationHistory) redo() (map[int][]Annotation, bool) {
	if h.idx == len(h.states)-1 {
		return nil, false
	}
	h.idx++
	return h.states[h.idx], true
}

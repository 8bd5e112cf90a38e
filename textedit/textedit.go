// Package textedit drives the editing state machine of recovered text
// runs. At most one run is in the Editing state across the document;
// commits write through the document store, which appends to the edit log
// only when the text actually changed.
package textedit

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/Fatal777/applyx-pdfedit/document"
	"github.com/Fatal777/applyx-pdfedit/observability"
)

// State of one run.
type State int

const (
	Idle State = iota
	Hover
	Editing
	Committed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Hover:
		return "hover"
	case Editing:
		return "editing"
	case Committed:
		return "committed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Foreground colors while a run moves through the machine. Editing forces
// black over the opaque white background; a committed change stays tinted
// until the next render cycle.
const (
	EditingForeground   = "#000000"
	CommittedForeground = "#2563EB"
)

// ErrNotEditing is returned by buffer operations outside the Editing state.
var ErrNotEditing = errors.New("textedit: no run is being edited")

// Controller serializes pointer and keyboard events into run transitions.
type Controller interface {
	PointerEnter(page int, runID string)
	PointerLeave(runID string)
	DoubleClick(page int, runID string) error

	// Input replaces the editing buffer, Insert appends to it.
	Input(text string) error
	Insert(text string) error
	Buffer() (string, error)

	// KeyEnter commits unless shift is held, in which case a line break
	// is inserted. KeyEscape reverts. Blur commits.
	KeyEnter(shift bool) error
	KeyEscape() error
	Blur() error

	// Render completes the cycle: committed runs settle back to idle.
	Render()

	State(runID string) State
	EditingRun() (page int, runID string, ok bool)
	Foreground(runID string) string
}

type controller struct {
	store  document.Store
	logger observability.Logger

	mu       sync.Mutex
	hovered  string
	editing  string
	page     int
	buffer   string
	prior    string // text when editing began, restored on escape
	captured string // foreground captured on entering Editing
	colors   map[string]string
	settled  map[string]bool // runs in Committed awaiting the next render
}

// New builds a controller writing through the given store.
func New(store document.Store, logger observability.Logger) Controller {
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	return &controller{
		store:   store,
		logger:  logger,
		colors:  make(map[string]string),
		settled: make(map[string]bool),
	}
}

func (c *controller) PointerEnter(page int, runID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.editing != "" {
		return
	}
	c.hovered = runID
}

func (c *controller) PointerLeave(runID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.hovered == runID {
		c.hovered = ""
	}
}

func (c *controller) DoubleClick(page int, runID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.editing == runID {
		return nil
	}
	// Focus change: the previously editing run is committed before the
	// new one takes over, mirroring blur-before-focus ordering.
	if c.editing != "" {
		if err := c.commitLocked(); err != nil {
			return err
		}
	}

	p, err := c.store.GetPage(page)
	if err != nil {
		return err
	}
	var run *document.TextRun
	for i := range p.Runs {
		if p.Runs[i].ID == runID {
			run = &p.Runs[i]
			break
		}
	}
	if run == nil {
		return fmt.Errorf("%w: %s", document.ErrNoSuchRun, runID)
	}
	if !run.Editable {
		return fmt.Errorf("%w: %s", document.ErrNotEditable, runID)
	}

	c.editing = runID
	c.page = page
	c.buffer = run.Current
	c.prior = run.Current
	c.hovered = ""
	c.captured = c.colors[runID]
	c.colors[runID] = EditingForeground
	c.store.SelectRun(runID)
	c.logger.Debug("run editing",
		observability.Int("page", page),
		observability.String("run", runID))
	return nil
}

func (c *controller) Input(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.editing == "" {
		return ErrNotEditing
	}
	c.buffer = text
	return nil
}

func (c *controller) Insert(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.editing == "" {
		return ErrNotEditing
	}
	c.buffer += text
	return nil
}

func (c *controller) Buffer() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.editing == "" {
		return "", ErrNotEditing
	}
	return c.buffer, nil
}

func (c *controller) KeyEnter(shift bool) error {
	if shift {
		return c.Insert("\n")
	}
	return c.Blur()
}

// KeyEscape reverts: the buffer and the captured foreground come back and
// the store never hears about the aborted edit.
func (c *controller) KeyEscape() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.editing == "" {
		return ErrNotEditing
	}
	runID := c.editing
	c.colors[runID] = c.captured
	c.clearEditingLocked()
	c.logger.Debug("edit reverted", observability.String("run", runID))
	return nil
}

func (c *controller) Blur() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.editing == "" {
		return ErrNotEditing
	}
	return c.commitLocked()
}

func (c *controller) commitLocked() error {
	runID, page := c.editing, c.page
	text := strings.TrimRight(c.buffer, "\n")
	changed, err := c.store.UpdateTextRun(page, runID, text)
	if err != nil {
		c.colors[runID] = c.captured
		c.clearEditingLocked()
		return err
	}
	if changed && text != c.prior {
		c.colors[runID] = CommittedForeground
		c.settled[runID] = false
	} else {
		c.colors[runID] = c.captured
	}
	c.clearEditingLocked()
	return nil
}

func (c *controller) clearEditingLocked() {
	c.editing = ""
	c.page = 0
	c.buffer = ""
	c.prior = ""
	c.captured = ""
	c.store.SelectRun("")
}

// Render settles committed runs back to idle while keeping their tint.
func (c *controller) Render() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id := range c.settled {
		c.settled[id] = true
	}
}

func (c *controller) State(runID string) State {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case c.editing == runID:
		return Editing
	case c.hovered == runID:
		return Hover
	}
	if done, ok := c.settled[runID]; ok && !done {
		return Committed
	}
	return Idle
}

func (c *controller) EditingRun() (int, string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.page, c.editing, c.editing != ""
}

func (c *controller) Foreground(runID string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.colors[runID]
}

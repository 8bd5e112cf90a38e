package api

import (
	"sync"
	"time"

	"github.com/Fatal777/applyx-pdfedit/export"
)

// jobEntry tracks one export job for status polling.
type jobEntry struct {
	job       *export.Job
	name      string
	progress  float64
	state     string
	updatedAt time.Time
}

// jobTracker folds worker messages into per-job state, evicting settled
// jobs after a TTL so the registry stays bounded. Messages for jobs it
// does not know are ignored.
type jobTracker struct {
	mu   sync.Mutex
	jobs map[string]*jobEntry
	ttl  time.Duration
	now  func() time.Time
}

func newJobTracker(ttl time.Duration) *jobTracker {
	return &jobTracker{
		jobs: make(map[string]*jobEntry),
		ttl:  ttl,
		now:  time.Now,
	}
}

func (t *jobTracker) add(job *export.Job, name string) {
	t.mu.Lock()
	t.jobs[job.ID] = &jobEntry{
		job:       job,
		name:      name,
		state:     "running",
		updatedAt: t.now(),
	}
	t.cleanupLocked()
	t.mu.Unlock()
}

func (t *jobTracker) get(id string) (*jobEntry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.jobs[id]
	if !ok {
		return nil, false
	}
	copied := *e
	return &copied, true
}

// cleanup removes expired entries whose job has settled.
func (t *jobTracker) cleanup() {
	t.mu.Lock()
	t.cleanupLocked()
	t.mu.Unlock()
}

func (t *jobTracker) cleanupLocked() {
	now := t.now()
	for id, e := range t.jobs {
		if now.Sub(e.updatedAt) <= t.ttl {
			continue
		}
		select {
		case <-e.job.Done():
			delete(t.jobs, id)
		default:
		}
	}
}

// sweepEvery drives periodic cleanup for an idle server.
func (t *jobTracker) sweepEvery(d time.Duration) {
	ticker := time.NewTicker(d)
	defer ticker.Stop()
	for range ticker.C {
		t.cleanup()
	}
}

func (t *jobTracker) consume(messages <-chan export.Message) {
	for m := range messages {
		t.mu.Lock()
		e, ok := t.jobs[m.JobID]
		if ok {
			e.updatedAt = t.now()
			switch m.Kind {
			case export.MsgProgress:
				e.progress = m.Progress
			case export.MsgComplete:
				e.progress = 1
				e.state = "complete"
			case export.MsgError:
				e.state = "error"
			case export.MsgCancel:
				e.state = "cancelled"
			}
		}
		t.mu.Unlock()
	}
}

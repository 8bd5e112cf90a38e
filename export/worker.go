package export

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Fatal777/applyx-pdfedit/engine"
	"github.com/Fatal777/applyx-pdfedit/fonts"
	"github.com/Fatal777/applyx-pdfedit/observability"
)

// CancelReason is the exact rejection reason of a superseded or cancelled
// job.
const CancelReason = "Cancelled"

// ErrCancelled rejects a job that was cancelled or superseded by a newer
// generate.
var ErrCancelled = errors.New(CancelReason)

// MessageKind enumerates worker messages.
type MessageKind string

const (
	MsgGenerate MessageKind = "generate"
	MsgProgress MessageKind = "progress"
	MsgComplete MessageKind = "complete"
	MsgError    MessageKind = "error"
	MsgCancel   MessageKind = "cancel"
)

// Message is one worker-to-UI notification. Consumers must ignore
// messages whose JobID is not the one they are waiting on.
type Message struct {
	JobID    string
	Kind     MessageKind
	Progress float64
	Result   *Result
	Err      string
	Reason   string
}

// Job is a single export in flight.
type Job struct {
	ID string

	ctx    context.Context
	cancel context.CancelFunc

	once   sync.Once
	done   chan struct{}
	result Result
	err    error
}

// Done closes when the job settles.
func (j *Job) Done() <-chan struct{} { return j.done }

// Wait blocks until the job settles or ctx expires.
func (j *Job) Wait(ctx context.Context) (Result, error) {
	select {
	case <-j.done:
		return j.result, j.err
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// Err returns the settled error, nil while running.
func (j *Job) Err() error {
	select {
	case <-j.done:
		return j.err
	default:
		return nil
	}
}

func (j *Job) settle(res Result, err error) {
	j.once.Do(func() {
		j.result = res
		j.err = err
		j.cancel()
		close(j.done)
	})
}

// FontLoader supplies the measurer used for mask widening, typically a
// TTF face from configuration. It may be slow; the worker bounds it.
type FontLoader func() (fonts.Measurer, error)

// Worker runs export jobs off the UI path. A new Generate supersedes the
// running job, which rejects with CancelReason.
type Worker struct {
	eng         engine.Engine
	logger      observability.Logger
	fontLoader  FontLoader
	fontTimeout time.Duration
	messages    chan Message

	mu     sync.Mutex
	active *Job
}

// Option configures a Worker.
type Option func(*Worker)

// WithFontLoader installs a custom measurer source.
func WithFontLoader(l FontLoader) Option {
	return func(w *Worker) { w.fontLoader = l }
}

// WithFontTimeout bounds font acquisition. Values below the 5s floor are
// raised to it.
func WithFontTimeout(d time.Duration) Option {
	return func(w *Worker) {
		if d < 5*time.Second {
			d = 5 * time.Second
		}
		w.fontTimeout = d
	}
}

// NewWorker builds a worker over the engine.
func NewWorker(eng engine.Engine, logger observability.Logger, opts ...Option) *Worker {
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	w := &Worker{
		eng:         eng,
		logger:      logger,
		fontTimeout: 5 * time.Second,
		messages:    make(chan Message, 64),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Messages exposes the notification stream. The channel is buffered and
// never blocks the worker; slow consumers lose messages.
func (w *Worker) Messages() <-chan Message { return w.messages }

// Generate starts a new job and cancels any running one.
func (w *Worker) Generate(in Input) *Job {
	ctx, cancel := context.WithCancel(context.Background())
	job := &Job{
		ID:     uuid.NewString(),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	w.mu.Lock()
	prior := w.active
	w.active = job
	w.mu.Unlock()

	if prior != nil {
		w.cancelJob(prior)
	}

	w.post(Message{JobID: job.ID, Kind: MsgGenerate})
	w.logger.Info("export started",
		observability.String("job", job.ID),
		observability.String("name", in.Name),
		observability.Int("edits", len(in.Snapshot.EditLog)))
	go w.run(job, in)
	return job
}

// Cancel rejects the job if it is still the active one.
func (w *Worker) Cancel(jobID string) bool {
	w.mu.Lock()
	job := w.active
	w.mu.Unlock()
	if job == nil || job.ID != jobID {
		return false
	}
	w.cancelJob(job)
	return true
}

func (w *Worker) cancelJob(job *Job) {
	select {
	case <-job.done:
		return
	default:
	}
	job.settle(Result{}, ErrCancelled)
	w.post(Message{JobID: job.ID, Kind: MsgCancel, Reason: CancelReason})
	w.logger.Info("export cancelled", observability.String("job", job.ID))
}

func (w *Worker) run(job *Job, in Input) {
	meas := w.acquireMeasurer()

	res, err := Render(job.ctx, w.eng, meas, in, func(f float64) {
		w.postFor(job, Message{JobID: job.ID, Kind: MsgProgress, Progress: f})
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || job.Err() != nil {
			// Superseded; the cancel message already went out.
			return
		}
		job.settle(Result{}, err)
		w.postFor(job, Message{JobID: job.ID, Kind: MsgError, Err: err.Error()})
		w.logger.Error("export failed",
			observability.String("job", job.ID),
			observability.Error(err))
		return
	}

	job.settle(res, nil)
	w.postFor(job, Message{JobID: job.ID, Kind: MsgComplete, Result: &res})
	w.logger.Info("export complete",
		observability.String("job", job.ID),
		observability.Int("bytes", len(res.Bytes)),
		observability.Int("pages", res.PageCount))
}

// acquireMeasurer loads the configured font within the timeout, falling
// back to the built-in Helvetica metrics so export never hangs on fonts.
func (w *Worker) acquireMeasurer() fonts.Measurer {
	if w.fontLoader == nil {
		return fonts.NewStandardMeasurer(fonts.Helvetica)
	}

	type loaded struct {
		meas fonts.Measurer
		err  error
	}
	ch := make(chan loaded, 1)
	go func() {
		m, err := w.fontLoader()
		ch <- loaded{m, err}
	}()

	select {
	case l := <-ch:
		if l.err != nil || l.meas == nil {
			w.logger.Warn("font load failed, using standard metrics",
				observability.Error(l.err))
			return fonts.NewStandardMeasurer(fonts.Helvetica)
		}
		return l.meas
	case <-time.After(w.fontTimeout):
		w.logger.Warn("font load timed out, using standard metrics",
			observability.Duration("timeout", w.fontTimeout))
		return fonts.NewStandardMeasurer(fonts.Helvetica)
	}
}

// post emits unconditionally (generate and cancel survive supersession).
func (w *Worker) post(m Message) {
	select {
	case w.messages <- m:
	default:
	}
}

// postFor drops messages from jobs that are no longer active.
func (w *Worker) postFor(job *Job, m Message) {
	w.mu.Lock()
	stale := w.active != job
	w.mu.Unlock()
	if stale {
		return
	}
	w.post(m)
}

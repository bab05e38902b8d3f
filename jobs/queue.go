// Package jobs queues track analyses and runs them on a fixed pool of workers.
package jobs

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/RyanBlaney/sonido-critique/compare"
	"github.com/RyanBlaney/sonido-critique/feedback"
	"github.com/RyanBlaney/sonido-critique/logging"
	"github.com/RyanBlaney/sonido-critique/pipeline"
	"github.com/google/uuid"
)

var (
	// ErrJobNotFound is returned for an unknown job id
	ErrJobNotFound = errors.New("job not found")
	// ErrQueueFull is returned when the buffer has no room for another job
	ErrQueueFull = errors.New("job queue is full")
	// ErrQueueStopped is returned by Submit after Stop
	ErrQueueStopped = errors.New("job queue is stopped")
	// ErrNotCancellable is returned when a job has already left the queue
	ErrNotCancellable = errors.New("job is no longer queued")
)

// Status is the lifecycle state of a job
type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// Terminal reports whether no further updates follow this status
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Request describes one analysis
type Request struct {
	TrackPath    string   `json:"track_path"`
	Artists      []string `json:"artists,omitempty"`
	WantFeedback bool     `json:"want_feedback"`
}

// Result is what a completed job carries
type Result struct {
	Analysis   *pipeline.Analysis `json:"analysis"`
	Comparison *compare.Result    `json:"comparison,omitempty"`
	Feedback   *feedback.Feedback `json:"feedback,omitempty"`
}

// Job is a snapshot of a queued analysis
type Job struct {
	ID          string     `json:"id"`
	Status      Status     `json:"status"`
	Request     Request    `json:"request"`
	Result      *Result    `json:"result,omitempty"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Callback runs once when a job reaches a terminal status
type Callback func(job Job)

// Processor performs the work of one job
type Processor interface {
	Process(ctx context.Context, req Request) (*Result, error)
}

// Options size the queue
type Options struct {
	Workers int
	Size    int
}

// subscriber buffer; a job emits at most three updates
const updateBuffer = 8

type entry struct {
	job         Job
	callback    Callback
	subscribers map[chan Job]struct{}
}

// Queue is a bounded job buffer drained by a fixed set of workers
type Queue struct {
	processor Processor
	workers   int

	jobs  map[string]*entry
	order []string
	queue chan *entry
	mu    sync.RWMutex

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
	stopped bool

	logger logging.Logger
}

// NewQueue creates a queue; call Start to launch the workers
func NewQueue(processor Processor, opts Options) *Queue {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.Size <= 0 {
		opts.Size = 100
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Queue{
		processor: processor,
		workers:   opts.Workers,
		jobs:      make(map[string]*entry),
		queue:     make(chan *entry, opts.Size),
		ctx:       ctx,
		cancel:    cancel,
		logger: logging.WithFields(logging.Fields{
			"component": "job_queue",
		}),
	}
}

// Start launches the workers. Calling it twice has no effect.
func (q *Queue) Start() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started || q.stopped {
		return
	}
	q.started = true

	for i := range q.workers {
		q.wg.Add(1)
		go q.worker(i)
	}
	q.logger.Info("Job queue started", logging.Fields{"workers": q.workers, "size": cap(q.queue)})
}

// Submit enqueues req without blocking and returns the new job id
func (q *Queue) Submit(req Request, callback Callback) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.stopped {
		return "", ErrQueueStopped
	}

	e := &entry{
		job: Job{
			ID:        uuid.New().String(),
			Status:    StatusQueued,
			Request:   req,
			CreatedAt: time.Now(),
		},
		callback:    callback,
		subscribers: make(map[chan Job]struct{}),
	}

	select {
	case q.queue <- e:
	default:
		q.logger.Warn("Job rejected, queue is full", logging.Fields{"size": cap(q.queue)})
		return "", ErrQueueFull
	}

	q.jobs[e.job.ID] = e
	q.order = append(q.order, e.job.ID)

	q.logger.Info("Job queued", logging.Fields{
		"job_id":   e.job.ID,
		"artists":  len(req.Artists),
		"feedback": req.WantFeedback,
	})
	return e.job.ID, nil
}

// Get returns a snapshot of the job
func (q *Queue) Get(id string) (Job, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	e, ok := q.jobs[id]
	if !ok {
		return Job{}, ErrJobNotFound
	}
	return e.job, nil
}

// List returns every job in submission order
func (q *Queue) List() []Job {
	q.mu.RLock()
	defer q.mu.RUnlock()

	out := make([]Job, 0, len(q.order))
	for _, id := range q.order {
		out = append(out, q.jobs[id].job)
	}
	return out
}

// Cancel cancels a job that is still queued
func (q *Queue) Cancel(id string) error {
	q.mu.Lock()
	e, ok := q.jobs[id]
	if !ok {
		q.mu.Unlock()
		return ErrJobNotFound
	}
	if e.job.Status != StatusQueued {
		q.mu.Unlock()
		return ErrNotCancellable
	}

	now := time.Now()
	e.job.Status = StatusCancelled
	e.job.CompletedAt = &now
	snapshot := q.publish(e)
	q.mu.Unlock()

	q.logger.Info("Job cancelled", logging.Fields{"job_id": id})
	if e.callback != nil {
		e.callback(snapshot)
	}
	return nil
}

// Subscribe streams snapshots of the job, starting with its current state. The channel is
// closed after the terminal update; the returned func unsubscribes early.
func (q *Queue) Subscribe(id string) (<-chan Job, func(), error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	e, ok := q.jobs[id]
	if !ok {
		return nil, nil, ErrJobNotFound
	}

	ch := make(chan Job, updateBuffer)
	ch <- e.job
	if e.job.Status.Terminal() {
		close(ch)
		return ch, func() {}, nil
	}

	e.subscribers[ch] = struct{}{}
	unsubscribe := func() {
		q.mu.Lock()
		defer q.mu.Unlock()
		if _, ok := e.subscribers[ch]; ok {
			delete(e.subscribers, ch)
			close(ch)
		}
	}
	return ch, unsubscribe, nil
}

// Stop rejects new jobs and waits for the workers to drain the buffer. If ctx ends first,
// in-flight jobs are cancelled and Stop returns ctx's error once the workers exit.
func (q *Queue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return nil
	}
	q.stopped = true
	close(q.queue)
	started := q.started
	q.mu.Unlock()

	if !started {
		q.cancel()
		q.cancelRemaining()
		return nil
	}

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		q.cancel()
		q.logger.Info("Job queue stopped")
		return nil
	case <-ctx.Done():
		q.cancel()
		<-done
		q.logger.Warn("Job queue stop deadline reached, in-flight jobs were cancelled")
		return ctx.Err()
	}
}

func (q *Queue) cancelRemaining() {
	for e := range q.queue {
		if err := q.Cancel(e.job.ID); err != nil && !errors.Is(err, ErrNotCancellable) {
			q.logger.Error(err, "Failed to cancel job", logging.Fields{"job_id": e.job.ID})
		}
	}
}

func (q *Queue) worker(id int) {
	defer q.wg.Done()
	logger := q.logger.WithFields(logging.Fields{"worker": id})

	for e := range q.queue {
		req, ok := q.begin(e)
		if !ok {
			continue
		}

		ctx := logging.ContextWithFields(q.ctx, logging.Fields{"job_id": e.job.ID})
		logger.WithContext(ctx).Debug("Processing job")
		result, err := q.processor.Process(ctx, req)
		q.finish(e, result, err)
	}
}

// begin moves a queued job to processing; cancelled jobs are skipped
func (q *Queue) begin(e *entry) (Request, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if e.job.Status != StatusQueued {
		return Request{}, false
	}
	now := time.Now()
	e.job.Status = StatusProcessing
	e.job.StartedAt = &now
	q.publish(e)
	return e.job.Request, true
}

func (q *Queue) finish(e *entry, result *Result, err error) {
	q.mu.Lock()
	now := time.Now()
	e.job.CompletedAt = &now
	if err != nil {
		e.job.Status = StatusFailed
		e.job.Error = err.Error()
	} else {
		e.job.Status = StatusCompleted
		e.job.Result = result
	}
	snapshot := q.publish(e)
	q.mu.Unlock()

	fields := logging.Fields{"job_id": snapshot.ID, "status": snapshot.Status}
	if snapshot.StartedAt != nil {
		fields["elapsed_ms"] = now.Sub(*snapshot.StartedAt).Milliseconds()
	}
	if err != nil {
		q.logger.Error(err, "Job failed", fields)
	} else {
		q.logger.Info("Job completed", fields)
	}

	if e.callback != nil {
		e.callback(snapshot)
	}
}

// publish fans the current snapshot out to subscribers and closes them on a terminal
// status. Callers hold q.mu.
func (q *Queue) publish(e *entry) Job {
	snapshot := e.job
	for ch := range e.subscribers {
		select {
		case ch <- snapshot:
		default:
		}
		if snapshot.Status.Terminal() {
			close(ch)
			delete(e.subscribers, ch)
		}
	}
	return snapshot
}

// Package queue runs opaque tasks one at a time in submission order.
//
// A Queue has no worker while it is empty. The first Enqueue on an idle queue starts
// a drain goroutine that runs tasks until the queue is empty again, then exits.
// Enqueue never blocks, so it is safe to call from transport notification callbacks.
package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/crafty/internal/groutine"
)

var (
	// ErrClosed is returned by Enqueue after Close, and completes pending tasks
	// when Close is called without a cause.
	ErrClosed = errors.New("command queue closed")

	// ErrTaskPanicked wraps a panic recovered from a task.
	ErrTaskPanicked = errors.New("task panicked")
)

// Task is a unit of work. The context is cancelled only by the optional per-task timeout.
type Task func(ctx context.Context) error

// Pending is the completion handle of an enqueued task.
type Pending struct {
	name string
	seq  uint64
	task Task
	done chan struct{}
	err  error
}

// Name returns the name given at Enqueue.
func (p *Pending) Name() string { return p.name }

// Seq returns the submission sequence number, starting at 1.
func (p *Pending) Seq() uint64 { return p.seq }

// Done is closed once the task has finished or was cancelled.
func (p *Pending) Done() <-chan struct{} { return p.done }

// Err returns the task outcome. Only meaningful after Done is closed.
func (p *Pending) Err() error {
	select {
	case <-p.done:
		return p.err
	default:
		return nil
	}
}

// Wait blocks until the task completes or ctx is done. Giving up on the wait does not
// remove the task from the queue.
func (p *Pending) Wait(ctx context.Context) error {
	select {
	case <-p.done:
		return p.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats is a snapshot of queue counters.
type Stats struct {
	Enqueued  uint64
	Completed uint64
	Failed    uint64
	Cancelled uint64
	Queued    int
	Running   bool
}

// Option configures a Queue.
type Option func(*Queue)

// WithTaskTimeout bounds each task's context. Zero means no timeout.
func WithTaskTimeout(d time.Duration) Option {
	return func(q *Queue) { q.taskTimeout = d }
}

// WithName sets the goroutine label of the drain worker.
func WithName(name string) Option {
	return func(q *Queue) { q.name = name }
}

// Queue is a single-flight FIFO task runner.
type Queue struct {
	logger      *logrus.Logger
	name        string
	taskTimeout time.Duration

	mu      sync.Mutex
	items   []*Pending
	running bool
	closed  bool
	idle    chan struct{} // closed while no drain worker is running
	seq     uint64

	enqueued  atomic.Uint64
	completed atomic.Uint64
	failed    atomic.Uint64
	cancelled atomic.Uint64
}

// New creates an idle Queue.
func New(logger *logrus.Logger, opts ...Option) *Queue {
	if logger == nil {
		logger = logrus.New()
	}
	idle := make(chan struct{})
	close(idle)

	q := &Queue{
		logger: logger,
		name:   "command-queue",
		idle:   idle,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Enqueue appends task to the tail and returns its completion handle.
// It never blocks and never runs the task on the calling goroutine.
func (q *Queue) Enqueue(name string, task Task) (*Pending, error) {
	if task == nil {
		return nil, fmt.Errorf("enqueue %q: nil task", name)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil, ErrClosed
	}

	q.seq++
	p := &Pending{name: name, seq: q.seq, task: task, done: make(chan struct{})}
	q.items = append(q.items, p)
	q.enqueued.Add(1)

	q.logger.WithFields(logrus.Fields{
		"task":   name,
		"seq":    p.seq,
		"queued": len(q.items),
	}).Debug("Task enqueued")

	if !q.running {
		q.running = true
		q.idle = make(chan struct{})
		groutine.Go(context.Background(), q.name, q.drain)
	}
	return p, nil
}

// Do enqueues task and waits for it.
func (q *Queue) Do(ctx context.Context, name string, task Task) error {
	p, err := q.Enqueue(name, task)
	if err != nil {
		return err
	}
	return p.Wait(ctx)
}

func (q *Queue) drain(ctx context.Context) {
	for {
		q.mu.Lock()
		if len(q.items) == 0 {
			q.running = false
			close(q.idle)
			q.mu.Unlock()
			return
		}
		p := q.items[0]
		q.items[0] = nil
		q.items = q.items[1:]
		q.mu.Unlock()

		q.finish(p, q.run(ctx, p))
	}
}

func (q *Queue) run(ctx context.Context, p *Pending) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %s: %v", ErrTaskPanicked, p.name, r)
		}
	}()

	if q.taskTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, q.taskTimeout)
		defer cancel()
	}

	start := time.Now()
	err = p.task(ctx)

	q.logger.WithFields(logrus.Fields{
		"task":     p.name,
		"seq":      p.seq,
		"duration": time.Since(start),
		"error":    err,
	}).Debug("Task finished")
	return err
}

func (q *Queue) finish(p *Pending, err error) {
	if err != nil {
		q.failed.Add(1)
	} else {
		q.completed.Add(1)
	}
	p.err = err
	p.task = nil
	close(p.done)
}

// Close rejects further Enqueue calls and completes every not-yet-started task with
// cause (ErrClosed if nil) without running it. A task already running is not
// interrupted. Close is idempotent and does not wait; use WaitIdle for that.
func (q *Queue) Close(cause error) {
	if cause == nil {
		cause = ErrClosed
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	pending := q.items
	q.items = nil
	q.mu.Unlock()

	if len(pending) > 0 {
		q.logger.WithFields(logrus.Fields{
			"cancelled": len(pending),
			"cause":     cause,
		}).Debug("Cancelling queued tasks")
	}

	for _, p := range pending {
		q.cancelled.Add(1)
		p.err = cause
		p.task = nil
		close(p.done)
	}
}

// Closed reports whether Close has been called.
func (q *Queue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// WaitIdle blocks until no task is queued or running, or ctx is done.
func (q *Queue) WaitIdle(ctx context.Context) error {
	for {
		q.mu.Lock()
		if !q.running {
			q.mu.Unlock()
			return nil
		}
		idle := q.idle
		q.mu.Unlock()

		select {
		case <-idle:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Stats returns a snapshot of the queue counters.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	queued, running := len(q.items), q.running
	q.mu.Unlock()

	return Stats{
		Enqueued:  q.enqueued.Load(),
		Completed: q.completed.Load(),
		Failed:    q.failed.Load(),
		Cancelled: q.cancelled.Load(),
		Queued:    queued,
		Running:   running,
	}
}

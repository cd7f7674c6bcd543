package task

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"kiri/internal/metrics"
)

// ErrExecutorClosed is returned by Submit after Close.
var ErrExecutorClosed = errors.New("task: executor closed")

// Job asks for one classification run of a project.
type Job struct {
	ID         string    `json:"id"`
	ProjectID  string    `json:"project_id"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// Handler processes one job. A returned error means the job may be retried.
type Handler func(ctx context.Context, job Job) error

// Executor is the task-execution context jobs are submitted to. It is
// constructed explicitly and handed to the Dispatcher.
type Executor interface {
	Name() string
	Submit(ctx context.Context, job Job) error
	Close() error
}

// InlineExecutor runs each job synchronously inside Submit.
type InlineExecutor struct {
	handler Handler
	metrics *metrics.Metrics
}

func NewInlineExecutor(h Handler, m *metrics.Metrics) *InlineExecutor {
	return &InlineExecutor{handler: h, metrics: m}
}

func (e *InlineExecutor) Name() string { return "inline" }
func (e *InlineExecutor) Close() error { return nil }

func (e *InlineExecutor) Submit(ctx context.Context, job Job) error {
	err := e.handler(ctx, job)
	e.metrics.ObserveJob(e.Name(), err)
	return err
}

// PoolExecutor runs jobs on a fixed number of goroutines fed by a bounded
// queue. Close stops accepting jobs, drains the queue and waits.
type PoolExecutor struct {
	handler Handler
	metrics *metrics.Metrics
	logger  *zap.Logger

	queue  chan Job
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

type PoolOptions struct {
	Workers   int
	QueueSize int
	Metrics   *metrics.Metrics
	Logger    *zap.Logger
}

func NewPoolExecutor(h Handler, opts PoolOptions) *PoolExecutor {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.QueueSize < 1 {
		opts.QueueSize = opts.Workers * 16
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &PoolExecutor{
		handler: h,
		metrics: opts.Metrics,
		logger:  opts.Logger,
		queue:   make(chan Job, opts.QueueSize),
		ctx:     ctx,
		cancel:  cancel,
	}
	for i := 0; i < opts.Workers; i++ {
		p.wg.Add(1)
		go p.work()
	}
	return p
}

func (p *PoolExecutor) Name() string { return "pool" }

// Submit enqueues job, blocking while the queue is full.
func (p *PoolExecutor) Submit(ctx context.Context, job Job) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrExecutorClosed
	}
	select {
	case p.queue <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *PoolExecutor) work() {
	defer p.wg.Done()
	for job := range p.queue {
		err := p.handler(p.ctx, job)
		p.metrics.ObserveJob(p.Name(), err)
		if err != nil {
			p.logger.Error("job failed",
				zap.String("job_id", job.ID), zap.String("project_id", job.ProjectID), zap.Error(err))
		}
	}
}

func (p *PoolExecutor) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	p.wg.Wait()
	p.cancel()
	return nil
}

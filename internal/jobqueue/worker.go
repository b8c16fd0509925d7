package jobqueue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"needledrop/internal/logging"
	"needledrop/internal/services"
)

// Handler processes one job. The returned value is stored as the job's
// return value on success.
type Handler interface {
	Handle(ctx context.Context, job *Job) (any, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, job *Job) (any, error)

func (f HandlerFunc) Handle(ctx context.Context, job *Job) (any, error) {
	return f(ctx, job)
}

// PoolOptions sizes a worker pool.
type PoolOptions struct {
	Concurrency  int
	PollInterval time.Duration
	Logger       *slog.Logger
}

// Pool drains one queue with a fixed number of workers. Each worker
// loops dequeue, handle, ack; an idle queue is re-polled on an interval.
type Pool struct {
	queue   *Queue
	handler Handler
	opts    PoolOptions
	logger  *slog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	started bool
}

// NewPool constructs a worker pool for queue.
func NewPool(queue *Queue, handler Handler, opts PoolOptions) (*Pool, error) {
	if queue == nil {
		return nil, errors.New("queue required")
	}
	if handler == nil {
		return nil, errors.New("handler required")
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Pool{
		queue:   queue,
		handler: handler,
		opts:    opts,
		logger: logging.NewComponentLogger(logger, "worker").
			With(logging.String(logging.FieldQueue, queue.Name())),
	}, nil
}

// Start launches the workers. It returns immediately; workers run until
// ctx is cancelled or Stop is called.
func (p *Pool) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return errors.New("pool already started")
	}
	if _, err := p.queue.RequeueActive(ctx); err != nil {
		return fmt.Errorf("reclaim active jobs: %w", err)
	}
	p.started = true

	ctx, p.cancel = context.WithCancel(ctx)
	p.done = make(chan struct{})

	var wg sync.WaitGroup
	for i := 0; i < p.opts.Concurrency; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			p.run(ctx, worker)
		}(i)
	}
	go func() {
		wg.Wait()
		close(p.done)
	}()
	p.logger.Info("worker pool started", logging.Int("concurrency", p.opts.Concurrency))
	return nil
}

// Stop cancels the workers and waits for in-flight jobs to settle.
func (p *Pool) Stop() {
	p.mu.Lock()
	cancel, done, started := p.cancel, p.done, p.started
	p.started = false
	p.mu.Unlock()
	if !started {
		return
	}
	cancel()
	<-done
	p.logger.Info("worker pool stopped")
}

func (p *Pool) run(ctx context.Context, worker int) {
	for {
		if ctx.Err() != nil {
			return
		}
		job, err := p.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.logger.Error("dequeue failed", logging.Int("worker", worker), logging.Error(err))
			p.sleep(ctx)
			continue
		}
		if job == nil {
			p.sleep(ctx)
			continue
		}
		p.process(ctx, job)
	}
}

func (p *Pool) process(ctx context.Context, job *Job) {
	jobCtx := services.WithJobID(services.WithQueue(ctx, p.queue.Name()), job.ID)

	result, err := p.safeHandle(jobCtx, job)

	// Acks run detached from the pool context: a shutdown that interrupts
	// the handler must still settle the job rather than strand it active.
	ackCtx := context.WithoutCancel(ctx)
	if err == nil {
		if ackErr := p.queue.Complete(ackCtx, job, result); ackErr != nil {
			p.logger.Error("completion ack failed",
				logging.String(logging.FieldJobID, job.ID), logging.Error(ackErr))
		}
		return
	}
	if _, failErr := p.queue.Fail(ackCtx, job, err); failErr != nil {
		p.logger.Error("failure ack failed",
			logging.String(logging.FieldJobID, job.ID), logging.Error(failErr))
	}
}

// safeHandle keeps a panicking handler from taking down the pool.
func (p *Pool) safeHandle(ctx context.Context, job *Job) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return p.handler.Handle(ctx, job)
}

func (p *Pool) sleep(ctx context.Context) {
	timer := time.NewTimer(p.opts.PollInterval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

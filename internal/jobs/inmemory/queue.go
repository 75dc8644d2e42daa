package inmemory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dvloznov/smart-budget/internal/jobs"
	"github.com/google/uuid"
)

// DefaultMaxRetries is applied to jobs published without MaxRetries.
const DefaultMaxRetries = 3

var (
	// ErrQueueFull is returned by a non-blocking publish when the buffer is full.
	ErrQueueFull = errors.New("mirror queue is full")
	// ErrQueueClosed is returned once Stop or Close has been called.
	ErrQueueClosed = errors.New("mirror queue is closed")
)

// Queue buffers mirror jobs in a channel and runs them on a fixed pool of
// workers. Job state is kept in the attached JobStore.
type Queue struct {
	jobChan   chan *jobs.MirrorTransactionJob
	closeChan chan struct{}
	wg        sync.WaitGroup
	mu        sync.RWMutex
	closed    bool
	store     jobs.JobStore

	workerCount int
	blocking    bool

	// backoff returns the delay before retry n (1-based).
	backoff func(n int) time.Duration
}

// QueueOption configures a Queue.
type QueueOption func(*Queue)

// WithBlockingPublish makes publish wait for buffer space until ctx ends.
// Batch producers such as the backfill use it; request paths should not.
func WithBlockingPublish() QueueOption {
	return func(q *Queue) {
		q.blocking = true
	}
}

// NewQueue returns a queue holding up to bufferSize jobs. store may be nil.
func NewQueue(bufferSize int, store jobs.JobStore, opts ...QueueOption) *Queue {
	q := &Queue{
		jobChan:     make(chan *jobs.MirrorTransactionJob, bufferSize),
		closeChan:   make(chan struct{}),
		store:       store,
		workerCount: 5,
		backoff: func(n int) time.Duration {
			return time.Duration(n) * time.Second
		},
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// PublishMirrorTransaction fills in job defaults, records the job and hands
// it to the workers. A job that cannot be handed over is recorded as failed,
// so nothing stays pending without a worker to run it.
func (q *Queue) PublishMirrorTransaction(ctx context.Context, job *jobs.MirrorTransactionJob) error {
	if q.isClosed() {
		return ErrQueueClosed
	}

	if job.JobID == "" {
		job.JobID = uuid.New().String()
	}
	if job.Status == "" {
		job.Status = jobs.JobStatusPending
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}
	if job.MaxRetries == 0 {
		job.MaxRetries = DefaultMaxRetries
	}

	if err := q.save(ctx, job); err != nil {
		return fmt.Errorf("PublishMirrorTransaction: save job: %w", err)
	}

	var err error
	if q.blocking {
		select {
		case q.jobChan <- job:
			return nil
		case <-ctx.Done():
			err = ctx.Err()
		case <-q.closeChan:
			err = ErrQueueClosed
		}
	} else {
		select {
		case q.jobChan <- job:
			return nil
		case <-q.closeChan:
			err = ErrQueueClosed
		default:
			err = ErrQueueFull
		}
	}

	q.abandon(ctx, job, err)
	return fmt.Errorf("PublishMirrorTransaction: %w", err)
}

// abandon records a job that never reached a worker as failed.
func (q *Queue) abandon(ctx context.Context, job *jobs.MirrorTransactionJob, cause error) {
	now := time.Now()
	job.Status = jobs.JobStatusFailed
	job.Error = "not enqueued: " + cause.Error()
	job.CompletedAt = &now
	_ = q.save(context.WithoutCancel(ctx), job)
}

// Start launches the workers. Each calls handler for one job at a time.
func (q *Queue) Start(ctx context.Context, handler jobs.JobHandler) error {
	if q.isClosed() {
		return ErrQueueClosed
	}

	for i := 0; i < q.workerCount; i++ {
		q.wg.Add(1)
		go q.worker(ctx, handler)
	}
	return nil
}

func (q *Queue) worker(ctx context.Context, handler jobs.JobHandler) {
	defer q.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-q.closeChan:
			return
		case job := <-q.jobChan:
			if job == nil {
				return
			}
			q.run(ctx, job, handler)
		}
	}
}

// run executes one attempt and records the outcome. A failed attempt with
// retries left is re-published after the backoff.
func (q *Queue) run(ctx context.Context, job *jobs.MirrorTransactionJob, handler jobs.JobHandler) {
	started := time.Now()
	job.Status = jobs.JobStatusRunning
	job.StartedAt = &started
	_ = q.save(ctx, job)

	err := handler(ctx, job)

	finished := time.Now()
	job.CompletedAt = &finished

	var next *jobs.MirrorTransactionJob
	switch {
	case err == nil:
		job.Status = jobs.JobStatusCompleted
		job.Error = ""
	case job.RetryCount < job.MaxRetries:
		job.RetryCount++
		job.Status = jobs.JobStatusRetrying
		job.Error = err.Error()

		retry := *job
		retry.Status = jobs.JobStatusPending
		retry.StartedAt = nil
		retry.CompletedAt = nil
		next = &retry
	default:
		job.Status = jobs.JobStatusFailed
		job.Error = err.Error()
	}

	_ = q.save(ctx, job)

	// The retry is scheduled only after the save above, so it can never be
	// overwritten by this attempt's final state.
	if next != nil {
		time.AfterFunc(q.backoff(next.RetryCount), func() {
			_ = q.PublishMirrorTransaction(ctx, next)
		})
	}
}

// Stop stops the workers and waits for running jobs until ctx ends.
// Calling it again is a no-op.
func (q *Queue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.closeChan)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the queue without a deadline.
func (q *Queue) Close() error {
	return q.Stop(context.Background())
}

func (q *Queue) isClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}

func (q *Queue) save(ctx context.Context, job *jobs.MirrorTransactionJob) error {
	if q.store == nil {
		return nil
	}
	return q.store.SaveJob(ctx, job)
}

var (
	_ jobs.Publisher = (*Queue)(nil)
	_ jobs.Consumer  = (*Queue)(nil)
)

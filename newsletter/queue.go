package newsletter

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"newsletter/pkg/errutil"
	"newsletter/pkg/logutil"
)

var (
	ErrQueueFull   = errutil.ServiceUnavailableError(errors.New("dispatch queue is full"))
	ErrQueueClosed = errutil.ServiceUnavailableError(errors.New("dispatch queue is closed"))
)

// Queue delivers begun jobs in the background with a fixed number of workers.
// Callers reserve a slot before starting a job, so a full or closed queue
// is reported before the newsletter changes status.
type Queue struct {
	sender  *Sender
	retry   *RetryOrchestrator
	workers int

	mu       sync.Mutex
	closed   bool
	reserved int
	pending  sync.WaitGroup
	jobs     chan *Job

	g      *errgroup.Group
	cancel context.CancelFunc
}

func NewQueue(sender *Sender, retry *RetryOrchestrator, workers, size int) *Queue {
	if workers <= 0 {
		workers = 1
	}
	if size <= 0 {
		size = workers
	}
	return &Queue{
		sender:  sender,
		retry:   retry,
		workers: workers,
		jobs:    make(chan *Job, size),
	}
}

func (q *Queue) Start(ctx context.Context) {
	ctx, q.cancel = context.WithCancel(ctx)
	q.g = new(errgroup.Group)

	for i := 0; i < q.workers; i++ {
		q.g.Go(func() error {
			for job := range q.jobs {
				q.run(ctx, job)
			}
			return nil
		})
	}
}

// Slot is a reserved place in the queue. Exactly one of Submit or Cancel
// takes effect.
type Slot struct {
	q    *Queue
	once sync.Once
}

// Reserve claims buffer space for one job.
func (q *Queue) Reserve() (*Slot, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil, ErrQueueClosed
	}
	if q.reserved+len(q.jobs) >= cap(q.jobs) {
		return nil, ErrQueueFull
	}

	q.reserved++
	q.pending.Add(1)

	return &Slot{q: q}, nil
}

// Submit hands job to a worker. It never blocks: the space was claimed by
// Reserve and the queue stays open until every slot is settled.
func (s *Slot) Submit(job *Job) {
	s.once.Do(func() {
		s.q.jobs <- job
		s.q.settle()
	})
}

// Cancel gives the space back unused.
func (s *Slot) Cancel() {
	if s == nil {
		return
	}
	s.once.Do(s.q.settle)
}

func (q *Queue) settle() {
	q.mu.Lock()
	q.reserved--
	q.mu.Unlock()
	q.pending.Done()
}

// Stop refuses new reservations and waits for queued jobs to drain. Jobs
// still running when ctx is done are interrupted before their next chunk.
func (q *Queue) Stop(ctx context.Context) error {
	q.mu.Lock()
	first := !q.closed
	q.closed = true
	q.mu.Unlock()

	done := make(chan error, 1)
	go func() {
		if first {
			q.pending.Wait()
			close(q.jobs)
		}
		done <- q.g.Wait()
	}()

	select {
	case err := <-done:
		q.cancel()
		return err
	case <-ctx.Done():
		q.cancel()
		return <-done
	}
}

func (q *Queue) run(ctx context.Context, job *Job) {
	ctx = logutil.WithLogID(ctx, uuid.NewString())

	var err error
	if job.IsRetry() {
		_, err = q.retry.Run(ctx, job)
	} else {
		_, err = q.sender.Run(ctx, job)
	}
	if err != nil {
		log.Ctx(ctx).Error().Msgf("background job failed, newsletter_id: %d, stage: %d, err: %v", job.NewsletterID, job.Stage, err)
	}
}

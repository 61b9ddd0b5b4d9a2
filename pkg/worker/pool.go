// Package worker provides an asynchronous worker pool for work that must not
// hold up an exchange: archiving aged-out turns into long-term memory and
// publishing exchange events.
//
// Jobs are fire-and-forget. A full queue drops the job and logs it, so the
// request path never blocks on background work.
package worker

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	defaultNumWorkers   uint = 3
	defaultJobQueueSize uint = 256
	defaultJobTimeout        = 2 * time.Minute
)

// Job is a unit of work for the worker pool to execute.
type Job struct {
	// Kind names the job in logs, e.g. "archive" or "publish".
	Kind string

	// ConversationID is logged with the job.
	ConversationID string

	// Run does the work. Its error is logged, never retried.
	Run func(ctx context.Context) error
}

// Config is the configuration options for the worker pool.
type Config struct {
	// NumWorkers is the number of background workers in the pool.
	NumWorkers uint

	// QueueSize is the capacity of the buffered job channel (defaults to 256).
	QueueSize uint

	// JobTimeout bounds each job's context (defaults to 2 minutes).
	JobTimeout time.Duration

	Logger *zap.Logger
}

// Pool processes jobs asynchronously.
type Pool struct {
	config *Config
	queue  chan Job
	wg     sync.WaitGroup
	logger *zap.Logger

	// mu guards closed so Enqueue never sends on a closed queue.
	mu     sync.RWMutex
	closed bool
}

// NewPool creates a new Pool and starts its worker goroutines.
func NewPool(c *Config) (*Pool, error) {
	if c.NumWorkers == 0 {
		c.NumWorkers = defaultNumWorkers
	}

	if c.QueueSize == 0 {
		c.QueueSize = defaultJobQueueSize
	}

	if c.JobTimeout <= 0 {
		c.JobTimeout = defaultJobTimeout
	}

	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}

	if c.NumWorkers > uint(math.MaxInt) {
		return nil, fmt.Errorf("NumWorkers %d exceeds max int", c.NumWorkers)
	}

	wp := &Pool{
		config: c,
		queue:  make(chan Job, c.QueueSize),
		logger: c.Logger,
	}

	wp.wg.Add(int(c.NumWorkers))
	for i := range c.NumWorkers {
		go wp.worker(i)
	}

	return wp, nil
}

// Enqueue submits a job for processing by the worker pool.
// Returns true if enqueued, false if the queue is full or the pool is
// closed, resulting in the job being dropped.
func (p *Pool) Enqueue(job Job) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		p.logger.Warn("job not queued, pool closed, job dropped",
			zap.String("kind", job.Kind),
			zap.String("conversation_id", job.ConversationID),
		)
		return false
	}

	select {
	case p.queue <- job:
		p.logger.Debug("job queued",
			zap.String("kind", job.Kind),
			zap.String("conversation_id", job.ConversationID),
		)
		return true
	default:
		p.logger.Error("job not queued, queue full, job dropped",
			zap.String("kind", job.Kind),
			zap.String("conversation_id", job.ConversationID),
		)
		return false
	}
}

// Close stops accepting jobs and waits for queued and in-flight jobs to
// drain. Call this during graceful shutdown after the HTTP server has
// stopped. Close is safe to call more than once.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	p.wg.Wait()
}

// worker is the inner worker thread that continuously pulls jobs off the jobs queue
func (p *Pool) worker(id uint) {
	defer p.wg.Done()
	p.logger.Debug("worker started", zap.Uint("worker_id", id))

	for job := range p.queue {
		p.processJob(job)
	}

	p.logger.Debug("worker stopped", zap.Uint("worker_id", id))
}

func (p *Pool) processJob(job Job) {
	ctx, cancel := context.WithTimeout(context.Background(), p.config.JobTimeout)
	defer cancel()

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("job panicked",
				zap.String("kind", job.Kind),
				zap.String("conversation_id", job.ConversationID),
				zap.Any("panic", r),
			)
		}
	}()

	if err := job.Run(ctx); err != nil {
		p.logger.Error("job failed",
			zap.String("kind", job.Kind),
			zap.String("conversation_id", job.ConversationID),
			zap.Error(err),
		)
		return
	}

	p.logger.Debug("job done",
		zap.String("kind", job.Kind),
		zap.String("conversation_id", job.ConversationID),
		zap.Duration("took", time.Since(start)),
	)
}

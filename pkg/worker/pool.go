// Package worker provides an asynchronous worker pool for distilling
// finished conversation turns into the memory adapter.
//
// The pool decouples memory storage from the chat hot path: the assistant
// reply is already persisted and delivered by the time a job runs, so a slow
// or failing memory backend never delays a response.
package worker

import (
	"context"
	"fmt"
	"math"
	"sync"

	"go.uber.org/zap"

	"github.com/yashdodwani/anymind/pkg/llm"
	"github.com/yashdodwani/anymind/pkg/memory"
)

var (
	defaultNumWorkers   uint = 3
	defaultJobQueueSize uint = 256
)

// Job is a unit of work for the worker pool to execute against.
type Job struct {
	AgentID  string
	Tag      memory.Tag
	Messages []llm.ChatMessage
}

// Config is the configuration options for the worker pool.
type Config struct {
	// Memory is the adapter jobs are stored into.
	Memory memory.Adapter

	// NumWorkers is the number of background workers in the pool.
	NumWorkers uint

	// QueueSize is the capacity of the buffered job channel (defaults to 256).
	QueueSize uint

	// Logger is the provided zap logger
	Logger *zap.Logger
}

// Pool processes memory-store jobs asynchronously via a worker pool.
type Pool struct {
	config *Config
	queue  chan Job
	wg     sync.WaitGroup
	logger *zap.Logger
}

// NewPool creates a new Pool and starts its worker goroutines.
func NewPool(c *Config) (*Pool, error) {
	if c.NumWorkers == 0 {
		c.NumWorkers = defaultNumWorkers
	}

	if c.QueueSize == 0 {
		c.QueueSize = defaultJobQueueSize
	}

	if c.NumWorkers > uint(math.MaxInt) {
		return nil, fmt.Errorf("NumWorkers %d exceeds max int", c.NumWorkers)
	}

	if c.Logger == nil {
		c.Logger = zap.NewNop()
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
// Returns true if enqueued, false if the queue is full, resulting in the job being dropped
func (p *Pool) Enqueue(job Job) bool {
	select {
	case p.queue <- job:
		p.logger.Debug("memory job queued",
			zap.String("chat_id", job.Tag.ChatID),
			zap.String("agent_id", job.AgentID),
		)
		return true
	default:
		p.logger.Error("job not queued, queue full, job dropped",
			zap.String("chat_id", job.Tag.ChatID),
			zap.String("agent_id", job.AgentID),
		)
		return false
	}
}

// Close signals workers to stop and waits for in-flight jobs to drain.
// Call this during graceful shutdown after the HTTP server has stopped.
func (p *Pool) Close() {
	close(p.queue)
	p.wg.Wait()
}

// worker is the inner worker thread that continuously pulls jobs off the jobs queue
func (p *Pool) worker(id uint) {
	defer p.wg.Done()
	p.logger.Debug("worker started", zap.Uint("worker_id", id))

	for job := range p.queue {
		p.processJob(job)
	}

	p.logger.Debug("memory worker stopped", zap.Uint("worker_id", id))
}

// processJob distills a finished turn into memory. Failures are logged and
// swallowed; memory storage is best-effort.
func (p *Pool) processJob(job Job) {
	ctx := context.Background()

	if stored := p.config.Memory.Add(ctx, job.AgentID, job.Tag, job.Messages); !stored {
		p.logger.Debug("memory not stored for turn",
			zap.String("chat_id", job.Tag.ChatID),
			zap.Int("messages", len(job.Messages)),
		)
		return
	}

	p.logger.Info("turn stored in memory",
		zap.String("chat_id", job.Tag.ChatID),
		zap.String("agent_id", job.AgentID),
	)
}

package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/EliosFinance/elios-backend-sub000/internal/engine"
	"github.com/EliosFinance/elios-backend-sub000/internal/metrics"
	"github.com/EliosFinance/elios-backend-sub000/internal/queue"
)

// Config holds worker pool tuning.
type Config struct {
	// NumWorkers is the number of concurrent job processors.
	NumWorkers int

	// PollInterval is how often the poller claims a new batch.
	PollInterval time.Duration

	// BatchSize caps how many jobs one claim leases. Together with
	// NumWorkers this bounds in-flight concurrency against the stores.
	BatchSize int

	// JobTimeout is the per-job processing deadline. A job that exceeds it
	// is nacked and redelivered.
	JobTimeout time.Duration

	// ReapInterval is how often expired leases are returned to the queue.
	ReapInterval time.Duration
}

// DefaultConfig returns sensible worker defaults.
func DefaultConfig() Config {
	return Config{
		NumWorkers:   5,
		PollInterval: 1 * time.Second,
		BatchSize:    10,
		JobTimeout:   10 * time.Second,
		ReapInterval: 30 * time.Second,
	}
}

// Pool consumes the progress-job queue: one poller goroutine claims batches
// and fans them out to NumWorkers processors, a reaper goroutine recovers
// expired leases. Every claimed job reaches exactly one of ack, nack or bury.
type Pool struct {
	queue      queue.Queue
	engine     *engine.Engine
	metrics    *metrics.Metrics
	cfg        Config
	jobChannel chan *queue.Job

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPool creates a worker pool.
func NewPool(q queue.Queue, eng *engine.Engine, m *metrics.Metrics, cfg Config) *Pool {
	ctx, cancel := context.WithCancel(context.Background())

	return &Pool{
		queue:      q,
		engine:     eng,
		metrics:    m,
		cfg:        cfg,
		jobChannel: make(chan *queue.Job, cfg.BatchSize),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start spawns the poller, the reaper, and the worker goroutines.
func (p *Pool) Start() {
	p.wg.Add(1)
	go p.poll()

	p.wg.Add(1)
	go p.reap()

	for i := 0; i < p.cfg.NumWorkers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	log.Printf("Worker pool started with %d workers", p.cfg.NumWorkers)
}

// Stop gracefully stops the pool. In-flight jobs finish or time out; jobs
// still leased at exit are recovered by the reaper on the next run.
func (p *Pool) Stop() {
	log.Println("Worker pool stopping...")
	p.cancel()
	p.wg.Wait()
	log.Println("Worker pool stopped")
}

// poll is the claim loop: lease a batch, hand jobs to the workers.
func (p *Pool) poll() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.claimAndDispatch()

		case <-p.ctx.Done():
			return
		}
	}
}

// claimAndDispatch leases one batch and feeds the job channel.
func (p *Pool) claimAndDispatch() {
	jobs, err := p.queue.Claim(p.ctx, p.cfg.BatchSize)
	if err != nil {
		if p.ctx.Err() == nil {
			log.Printf("Failed to claim jobs: %v", err)
		}
		return
	}

	if depth, err := p.queue.Depth(p.ctx); err == nil {
		p.metrics.QueueDepth.Set(float64(depth))
	}

	for _, job := range jobs {
		select {
		case p.jobChannel <- job:

		case <-p.ctx.Done():
			// Shutdown mid-batch: undelivered leases expire and get reaped.
			return
		}
	}
}

// reap periodically returns expired leases to the queue.
func (p *Pool) reap() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.cfg.ReapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			n, err := p.queue.ReapExpiredLeases(p.ctx)
			if err != nil {
				if p.ctx.Err() == nil {
					log.Printf("Failed to reap expired leases: %v", err)
				}
				continue
			}
			if n > 0 {
				log.Printf("Reaped %d expired job leases", n)
				p.metrics.LeasesReaped.Add(float64(n))
			}

		case <-p.ctx.Done():
			return
		}
	}
}

// worker is the main processing loop.
func (p *Pool) worker(id int) {
	defer p.wg.Done()

	log.Printf("Worker %d started", id)

	for {
		select {
		case job := <-p.jobChannel:
			p.processJob(id, job)

		case <-p.ctx.Done():
			log.Printf("Worker %d stopping", id)
			return
		}
	}
}

// processJob runs one job through the engine and settles it with the queue.
func (p *Pool) processJob(workerID int, job *queue.Job) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Worker %d: PANIC during job %s: %v", workerID, job.ID, r)
			p.settleFailure(job, fmt.Errorf("panic: %v", r))
		}
	}()

	log.Printf("Worker %d processing job %s (user: %d, challenge: %d, attempt: %d)",
		workerID, job.ID, job.UserID, job.ChallengeID, job.Attempt)

	ctx, cancel := context.WithTimeout(p.ctx, p.cfg.JobTimeout)
	defer cancel()

	startTime := time.Now()
	result, err := p.engine.Process(ctx, job)
	duration := time.Since(startTime)

	p.metrics.JobDuration.Observe(duration.Seconds())

	if err != nil {
		log.Printf("Worker %d: job %s failed after %v: %v", workerID, job.ID, duration, err)
		p.settleFailure(job, err)
		return
	}

	if result.Conflicts > 0 {
		p.metrics.SaveConflicts.Add(float64(result.Conflicts))
	}

	switch result.Outcome {
	case engine.OutcomeTransitioned:
		log.Printf("Worker %d: job %s transitioned %s -> %s in %v",
			workerID, job.ID, result.From, result.To, duration)
		p.settleSuccess(job, metrics.OutcomeTransitioned)

	case engine.OutcomeNoop:
		log.Printf("Worker %d: job %s no-op at %s in %v",
			workerID, job.ID, result.From, duration)
		p.settleSuccess(job, metrics.OutcomeNoop)
	}
}

// settleSuccess acks a finished job.
func (p *Pool) settleSuccess(job *queue.Job, outcome string) {
	ctx, cancel := p.settleContext()
	defer cancel()

	if err := p.queue.Ack(ctx, job); err != nil {
		if errors.Is(err, queue.ErrLeaseLost) {
			// Reaped and possibly re-claimed; the redelivery will no-op.
			log.Printf("Job %s: lease lost before ack, dropping settlement", job.ID)
			return
		}
		log.Printf("Failed to ack job %s: %v", job.ID, err)
		return
	}
	p.metrics.JobsProcessed.WithLabelValues(outcome).Inc()
}

// settleFailure buries fatal jobs and nacks transient ones.
func (p *Pool) settleFailure(job *queue.Job, procErr error) {
	ctx, cancel := p.settleContext()
	defer cancel()

	if engine.IsFatal(procErr) {
		log.Printf("Job %s is unrecoverable, dead-lettering: %v", job.ID, procErr)
		if err := p.queue.Bury(ctx, job, procErr); err != nil {
			if errors.Is(err, queue.ErrLeaseLost) {
				log.Printf("Job %s: lease lost before bury, dropping settlement", job.ID)
				return
			}
			log.Printf("Failed to bury job %s: %v", job.ID, err)
			return
		}
		p.metrics.JobsProcessed.WithLabelValues(metrics.OutcomeDead).Inc()
		return
	}

	exhausted := !job.CanRetry()
	if err := p.queue.Nack(ctx, job, procErr); err != nil {
		if errors.Is(err, queue.ErrLeaseLost) {
			log.Printf("Job %s: lease lost before nack, dropping settlement", job.ID)
			return
		}
		log.Printf("Failed to nack job %s: %v", job.ID, err)
		return
	}
	if exhausted {
		log.Printf("Job %s exhausted %d attempts, dead-lettered", job.ID, job.MaxAttempts)
		p.metrics.JobsProcessed.WithLabelValues(metrics.OutcomeDead).Inc()
	} else {
		p.metrics.JobsProcessed.WithLabelValues(metrics.OutcomeRetried).Inc()
	}
}

// settleContext returns a context for queue settlement that survives job
// timeouts but not a full shutdown hang.
func (p *Pool) settleContext() (context.Context, context.CancelFunc) {
	ctx := p.ctx
	if errors.Is(ctx.Err(), context.Canceled) {
		// Pool is stopping; still settle so finished work is recorded
		// rather than redelivered.
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, 5*time.Second)
}

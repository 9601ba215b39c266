package pool

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aseofsmartice/surveillance-orchestrator/internal/executor"
	"github.com/aseofsmartice/surveillance-orchestrator/internal/models"
	"github.com/aseofsmartice/surveillance-orchestrator/internal/queue"
)

// popTimeout bounds the queue wait so a worker notices retirement
// within a few seconds even when the queue is empty.
const popTimeout = 5 * time.Second

// ResultFunc receives every finished job with its interpreted result.
type ResultFunc func(job *models.Job, res executor.Result)

// WorkerPool runs a dynamic set of workers against one shared job queue.
//
// Every worker owns a retire token. RemoveWorker closes the newest live
// token; the retired worker finishes its in-flight job, returns any job
// it dequeued but has not started, and exits. Worker ids are monotonic
// and never reused, so a pool that shrinks and regrows cannot revive a
// retired worker: at most the target count of workers ever dequeue.
type WorkerPool struct {
	queue    *queue.JobQueue
	runner   executor.Runner
	onResult ResultFunc

	min int
	max int

	mu      sync.Mutex
	stops   []chan struct{}
	nextID  int
	peak    int
	workers sync.WaitGroup
	count   atomic.Int32

	running   atomic.Int32
	completed atomic.Int64
	skipped   atomic.Int64
	failed    atomic.Int64

	ctx context.Context
}

func New(ctx context.Context, q *queue.JobQueue, runner executor.Runner, min, max int, onResult ResultFunc) *WorkerPool {
	return &WorkerPool{
		queue:    q,
		runner:   runner,
		onResult: onResult,
		min:      min,
		max:      max,
		ctx:      ctx,
	}
}

// Start spawns the initial workers.
func (p *WorkerPool) Start(initial int) {
	log.Printf("Pool: starting with %d worker(s), bounds [%d, %d]", initial, p.min, p.max)
	for i := 0; i < initial; i++ {
		p.AddWorker()
	}
}

// CurrentCount returns the target worker count.
func (p *WorkerPool) CurrentCount() int {
	return int(p.count.Load())
}

// AddWorker spawns one new worker with a fresh identity and its own
// retire token. No-op at the upper bound.
func (p *WorkerPool) AddWorker() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.stops) >= p.max {
		return
	}

	stop := make(chan struct{})
	p.stops = append(p.stops, stop)
	p.count.Store(int32(len(p.stops)))
	if len(p.stops) > p.peak {
		p.peak = len(p.stops)
	}

	id := p.nextID
	p.nextID++

	p.workers.Add(1)
	go p.worker(id, stop)
	log.Printf("Pool: added worker %d, total: %d", id, len(p.stops))
}

// RemoveWorker retires the newest live worker by closing its token.
// The worker exits at its next loop boundary; an in-flight job runs to
// completion first. Returns false at the lower bound.
func (p *WorkerPool) RemoveWorker() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.stops) <= p.min {
		return false
	}
	last := p.stops[len(p.stops)-1]
	p.stops = p.stops[:len(p.stops)-1]
	close(last)
	p.count.Store(int32(len(p.stops)))
	log.Printf("Pool: reduced workers to %d", len(p.stops))
	return true
}

// Shutdown retires every worker and waits for them to exit. In-flight
// jobs run to completion first.
func (p *WorkerPool) Shutdown() {
	p.mu.Lock()
	for _, stop := range p.stops {
		close(stop)
	}
	p.stops = nil
	p.count.Store(0)
	p.mu.Unlock()
	p.workers.Wait()
}

// PeakWorkers returns the highest worker count reached.
func (p *WorkerPool) PeakWorkers() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.peak
}

// Counters returns completed, skipped and failed job totals.
func (p *WorkerPool) Counters() (completed, skipped, failed int) {
	return int(p.completed.Load()), int(p.skipped.Load()), int(p.failed.Load())
}

// Status renders the one-line queue state the scaler logs each tick.
func (p *WorkerPool) Status() string {
	return fmt.Sprintf("%d running | %d waiting | %d completed | %d failed | Workers: %d/%d",
		p.running.Load(), p.queue.Len(), p.completed.Load(), p.failed.Load(), p.count.Load(), p.max)
}

func (p *WorkerPool) worker(id int, stop <-chan struct{}) {
	defer p.workers.Done()
	log.Printf("[Worker %d] Started", id)

	for {
		select {
		case <-stop:
			log.Printf("[Worker %d] Exiting (retired)", id)
			return
		default:
		}
		if p.ctx.Err() != nil {
			log.Printf("[Worker %d] Exiting (cancelled)", id)
			return
		}

		job, ok := p.queue.PopWithTimeout(popTimeout)
		if !ok {
			continue
		}

		// Re-check after acquiring a job: if this worker was retired
		// while it was blocked, the job goes back untouched.
		select {
		case <-stop:
			p.queue.Requeue(job)
			log.Printf("[Worker %d] Exiting (retired), requeued %s", id, job.VideoName)
			return
		default:
		}

		p.process(id, job)
		p.queue.Done()
	}
}

func (p *WorkerPool) process(id int, job *models.Job) {
	p.running.Add(1)
	defer p.running.Add(-1)

	log.Printf("[%s] START: %s", job.CameraID, job.VideoName)
	res := p.runner.Execute(p.ctx, job)

	switch res.Outcome {
	case models.OutcomeSuccess:
		p.completed.Add(1)
		log.Printf("[%s] SUCCESS: %s | Duration: %.1fs", job.CameraID, job.VideoName, res.Elapsed.Seconds())
	case models.OutcomeSkipped:
		p.skipped.Add(1)
		log.Printf("[%s] SKIPPED (already processed): %s", job.CameraID, job.VideoName)
	default:
		p.failed.Add(1)
		log.Printf("[%s] FAILED: %s | Duration: %.1fs | %v", job.CameraID, job.VideoName, res.Elapsed.Seconds(), res.Err)
	}

	if p.onResult != nil {
		p.onResult(job, res)
	}
}

package queue

import (
	"container/heap"
	"sync"
	"time"

	"github.com/aseofsmartice/surveillance-orchestrator/internal/models"
)

type item struct {
	job *models.Job
	seq uint64
}

type jobHeap []item

func (h jobHeap) Len() int { return len(h) }

func (h jobHeap) Less(i, j int) bool {
	if h[i].job.Priority == h[j].job.Priority {
		return h[i].seq < h[j].seq
	}
	return h[i].job.Priority < h[j].job.Priority
}

func (h jobHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *jobHeap) Push(x any) {
	*h = append(*h, x.(item))
}

func (h *jobHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	*h = old[0 : n-1]
	return it
}

// JobQueue is a concurrent min-priority queue: the job with the oldest
// capture timestamp comes out first, FIFO within equal priority.
//
// Push/Done maintain a pending count so Wait can block until every
// enqueued job has been processed exactly once. Requeue puts a dequeued
// job back without touching the count, which is what a shrinking worker
// uses to hand its job to a survivor.
type JobQueue struct {
	mu     sync.Mutex
	heap   jobHeap
	seq    uint64
	notify chan struct{}
	wg     sync.WaitGroup
}

func New() *JobQueue {
	q := &JobQueue{notify: make(chan struct{}, 1)}
	heap.Init(&q.heap)
	return q
}

// Push enqueues a new job and increments the pending count.
func (q *JobQueue) Push(job *models.Job) {
	q.wg.Add(1)
	q.push(job)
}

// Requeue returns an already-dequeued job to the queue. The pending
// count still carries the original Push, so no Add here.
func (q *JobQueue) Requeue(job *models.Job) {
	q.push(job)
}

func (q *JobQueue) push(job *models.Job) {
	q.mu.Lock()
	q.seq++
	heap.Push(&q.heap, item{job: job, seq: q.seq})
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// PopWithTimeout dequeues the highest-priority job, waiting up to the
// given duration for one to appear. Returns nil, false on timeout.
func (q *JobQueue) PopWithTimeout(timeout time.Duration) (*models.Job, bool) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		q.mu.Lock()
		if q.heap.Len() > 0 {
			it := heap.Pop(&q.heap).(item)
			q.mu.Unlock()
			return it.job, true
		}
		q.mu.Unlock()

		select {
		case <-q.notify:
		case <-timer.C:
			return nil, false
		}
	}
}

// TryPop dequeues the highest-priority job without waiting. Used to
// discard the backlog of a cancelled run so Wait can settle.
func (q *JobQueue) TryPop() (*models.Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.heap.Len() == 0 {
		return nil, false
	}
	it := heap.Pop(&q.heap).(item)
	return it.job, true
}

// Done marks one previously pushed job as fully processed.
func (q *JobQueue) Done() {
	q.wg.Done()
}

// Wait blocks until every pushed job has been marked Done.
func (q *JobQueue) Wait() {
	q.wg.Wait()
}

// Len returns the number of jobs currently waiting in the queue.
func (q *JobQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.heap.Len()
}

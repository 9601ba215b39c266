package orchestrator

import (
	"context"
	"log"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aseofsmartice/surveillance-orchestrator/internal/config"
	"github.com/aseofsmartice/surveillance-orchestrator/internal/database"
	"github.com/aseofsmartice/surveillance-orchestrator/internal/discovery"
	"github.com/aseofsmartice/surveillance-orchestrator/internal/events"
	"github.com/aseofsmartice/surveillance-orchestrator/internal/executor"
	"github.com/aseofsmartice/surveillance-orchestrator/internal/gpu"
	"github.com/aseofsmartice/surveillance-orchestrator/internal/models"
	"github.com/aseofsmartice/surveillance-orchestrator/internal/pool"
	"github.com/aseofsmartice/surveillance-orchestrator/internal/queue"
	"github.com/aseofsmartice/surveillance-orchestrator/internal/scaler"
)

// Orchestrator owns one processing run: discovery fills the priority
// queue, the worker pool drains it, and the scaler retunes the pool
// from GPU telemetry until the backlog is gone.
type Orchestrator struct {
	cfg       *config.Config
	db        *database.Database
	telemetry gpu.Source
	producer  *events.Producer
	runner    executor.Runner

	cameraFilter  []string
	durationLimit time.Duration

	mu        sync.Mutex
	livePool  *pool.WorkerPool
	liveRunID string
	lastStats *models.RunStats
}

func New(cfg *config.Config, db *database.Database, telemetry gpu.Source, producer *events.Producer, runner executor.Runner) *Orchestrator {
	return &Orchestrator{
		cfg:       cfg,
		db:        db,
		telemetry: telemetry,
		producer:  producer,
		runner:    runner,
	}
}

// SetCameraFilter restricts discovery to the given camera IDs.
func (o *Orchestrator) SetCameraFilter(cameras []string) { o.cameraFilter = cameras }

// SetDurationLimit bounds each job to the first N seconds, for test runs.
func (o *Orchestrator) SetDurationLimit(d time.Duration) { o.durationLimit = d }

// Discover runs discovery only, without processing anything. Used by
// the --list dry run.
func (o *Orchestrator) Discover(ctx context.Context) ([]*models.Job, discovery.Summary, error) {
	processed, err := o.db.ProcessedVideos(ctx)
	if err != nil {
		// Dedup source down is not fatal: process everything and let
		// the detection script's own duplicate guard catch repeats.
		log.Printf("Orchestrator: dedup query failed, continuing without duplicate check: %v", err)
		processed = map[string]struct{}{}
	}

	scanner := &discovery.Scanner{
		VideosDir:     o.cfg.Paths.VideosDir,
		CameraFilter:  o.cameraFilter,
		ConfigPath:    filepath.Join(o.cfg.Paths.ROIConfigDir, "table_region_config.json"),
		DurationLimit: o.durationLimit,
	}
	return scanner.Scan(processed)
}

// Run executes one full processing run and returns its statistics.
// Cancelling ctx stops the run at the next job boundary.
func (o *Orchestrator) Run(ctx context.Context) (*models.RunStats, error) {
	runID := uuid.NewString()
	start := time.Now()

	jobs, summary, err := o.Discover(ctx)
	if err != nil {
		return nil, err
	}
	summary.Log()

	stats := &models.RunStats{RunID: runID, TotalJobs: len(jobs)}
	if len(jobs) == 0 {
		log.Println("Orchestrator: no videos to process")
		o.finish(stats)
		return stats, nil
	}

	q := queue.New()
	for _, job := range jobs {
		q.Push(job)
	}

	sc := o.cfg.Scaling
	log.Printf("Orchestrator: run %s | %d job(s) | worker range %d-%d", runID, len(jobs), sc.MinWorkers, sc.MaxWorkers)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := pool.New(runCtx, q, o.runner, sc.MinWorkers, sc.MaxWorkers, func(job *models.Job, res executor.Result) {
		o.recordResult(runID, job, res)
	})

	o.mu.Lock()
	o.livePool = p
	o.liveRunID = runID
	o.mu.Unlock()

	p.Start(sc.MinWorkers)
	go scaler.New(o.cfg).Run(runCtx, o.telemetry, p)

	drained := make(chan struct{})
	go func() {
		q.Wait()
		close(drained)
	}()

	select {
	case <-drained:
	case <-ctx.Done():
		log.Println("Orchestrator: cancelled, waiting for in-flight jobs")
	}

	cancel()
	p.Shutdown()

	// A cancelled run leaves jobs queued with their pending count still
	// open; discard them so the drain watcher can settle. The next run
	// rediscovers those videos.
	discarded := 0
	for {
		if _, ok := q.TryPop(); !ok {
			break
		}
		q.Done()
		discarded++
	}
	if discarded > 0 {
		log.Printf("Orchestrator: %d queued job(s) dropped by cancellation", discarded)
	}
	<-drained

	stats.Completed, stats.Skipped, stats.Failed = p.Counters()
	stats.PeakWorkers = p.PeakWorkers()
	stats.Elapsed = time.Since(start)
	if stats.Completed > 0 {
		stats.AvgPerJob = stats.Elapsed / time.Duration(stats.Completed)
	}
	if m, err := o.telemetry.Metrics(context.Background()); err == nil {
		stats.FinalMetrics = m
	}

	o.finish(stats)
	o.logStats(stats)
	return stats, ctx.Err()
}

func (o *Orchestrator) recordResult(runID string, job *models.Job, res executor.Result) {
	rec := models.SessionRecord{
		ID:         uuid.NewString(),
		RunID:      runID,
		CameraID:   job.CameraID,
		VideoFile:  job.VideoName,
		Outcome:    res.Outcome,
		DurationMS: res.Elapsed.Milliseconds(),
		CreatedAt:  time.Now().UTC(),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := o.db.RecordJob(ctx, rec); err != nil {
		log.Printf("[%s] failed to record job audit row: %v", job.CameraID, err)
	}

	if err := o.producer.Send(models.Heartbeat{
		Kind:      models.HeartbeatJob,
		RunID:     runID,
		CameraID:  job.CameraID,
		VideoName: job.VideoName,
		Outcome:   res.Outcome,
		Timestamp: time.Now().UTC(),
	}); err != nil {
		log.Printf("[%s] failed to publish job event: %v", job.CameraID, err)
	}
}

func (o *Orchestrator) finish(stats *models.RunStats) {
	o.mu.Lock()
	o.livePool = nil
	o.liveRunID = ""
	o.lastStats = stats
	o.mu.Unlock()
}

func (o *Orchestrator) logStats(stats *models.RunStats) {
	log.Println("Orchestrator: processing complete")
	log.Printf("  Total jobs: %d", stats.TotalJobs)
	log.Printf("  Completed: %d | Skipped: %d | Failed: %d", stats.Completed, stats.Skipped, stats.Failed)
	log.Printf("  Peak workers: %d", stats.PeakWorkers)
	log.Printf("  Total time: %.1fs", stats.Elapsed.Seconds())
	if stats.FinalMetrics != nil {
		m := stats.FinalMetrics
		log.Printf("  Final GPU state: %.0f°C | %.0f%% | %.1fGB free", m.Temperature, m.Utilization, m.MemoryFreeGB)
	}
}

// Snapshot is the live view served by the status API.
type Snapshot struct {
	Active    bool             `json:"active"`
	RunID     string           `json:"run_id,omitempty"`
	Workers   int              `json:"workers"`
	PoolState string           `json:"pool_state,omitempty"`
	LastRun   *models.RunStats `json:"last_run,omitempty"`
}

// Status returns the current or most recent run state.
func (o *Orchestrator) Status() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()

	snap := Snapshot{LastRun: o.lastStats}
	if o.livePool != nil {
		snap.Active = true
		snap.RunID = o.liveRunID
		snap.Workers = o.livePool.CurrentCount()
		snap.PoolState = o.livePool.Status()
	}
	return snap
}

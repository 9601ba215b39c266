package models

import "time"

// Job is one video file awaiting processing.
// Priority is the numeric capture timestamp (YYYYMMDDHHMMSS),
// so lower priority means an older video.
type Job struct {
	CameraID      string
	SourcePath    string
	VideoName     string
	Priority      int64
	ConfigPath    string
	DurationLimit time.Duration
}

// JobOutcome classifies the result of one executor invocation.
type JobOutcome string

const (
	OutcomeSuccess JobOutcome = "success"
	OutcomeSkipped JobOutcome = "skipped"
	OutcomeFailed  JobOutcome = "failed"
)

// GPUMetrics is one telemetry snapshot of the accelerator.
type GPUMetrics struct {
	Temperature   float64   `json:"temperature"`
	Utilization   float64   `json:"utilization"`
	MemoryFreeGB  float64   `json:"memory_free_gb"`
	MemoryTotalGB float64   `json:"memory_total_gb"`
	MemoryUsedGB  float64   `json:"memory_used_gb"`
	Timestamp     time.Time `json:"timestamp"`
}

// TimeWindow is a wall-clock interval [start, end) within one day.
type TimeWindow struct {
	Name        string `yaml:"name" json:"name"`
	StartHour   int    `yaml:"start_hour" json:"start_hour"`
	StartMinute int    `yaml:"start_minute" json:"start_minute"`
	EndHour     int    `yaml:"end_hour" json:"end_hour"`
	EndMinute   int    `yaml:"end_minute" json:"end_minute"`
}

// Contains reports whether the given wall-clock time falls inside the
// window. The interval is half-open: the end minute is already outside.
func (w TimeWindow) Contains(hour, minute int) bool {
	cur := hour*60 + minute
	return w.startMinutes() <= cur && cur < w.endMinutes()
}

// StartsAt reports whether the given time is exactly the window start.
func (w TimeWindow) StartsAt(hour, minute int) bool {
	return hour == w.StartHour && minute == w.StartMinute
}

// Remaining returns the duration from now until the window end, or zero
// if the end has already passed.
func (w TimeWindow) Remaining(now time.Time) time.Duration {
	end := time.Date(now.Year(), now.Month(), now.Day(), w.EndHour, w.EndMinute, 0, 0, now.Location())
	if !end.After(now) {
		return 0
	}
	return end.Sub(now)
}

// Overlaps reports whether two windows share any minute.
func (w TimeWindow) Overlaps(other TimeWindow) bool {
	return w.startMinutes() < other.endMinutes() && other.startMinutes() < w.endMinutes()
}

func (w TimeWindow) startMinutes() int { return w.StartHour*60 + w.StartMinute }
func (w TimeWindow) endMinutes() int   { return w.EndHour*60 + w.EndMinute }

// HeartbeatKind distinguishes daemon heartbeats from job events on the
// shared events topic.
type HeartbeatKind string

const (
	HeartbeatDaemon HeartbeatKind = "daemon"
	HeartbeatJob    HeartbeatKind = "job"
)

// Heartbeat is the payload published to the events topic.
type Heartbeat struct {
	Kind            HeartbeatKind `json:"kind"`
	RunID           string        `json:"run_id,omitempty"`
	CameraID        string        `json:"camera_id,omitempty"`
	VideoName       string        `json:"video_name,omitempty"`
	Outcome         JobOutcome    `json:"outcome,omitempty"`
	CaptureActive   bool          `json:"capture_active"`
	ProcessingAlive bool          `json:"processing_alive"`
	Workers         int           `json:"workers"`
	Timestamp       time.Time     `json:"timestamp"`
}

// RunStats summarizes one processing run.
type RunStats struct {
	RunID        string        `json:"run_id"`
	TotalJobs    int           `json:"total_jobs"`
	Completed    int           `json:"completed"`
	Skipped      int           `json:"skipped"`
	Failed       int           `json:"failed"`
	Elapsed      time.Duration `json:"elapsed"`
	AvgPerJob    time.Duration `json:"avg_per_job"`
	PeakWorkers  int           `json:"peak_workers"`
	FinalMetrics *GPUMetrics   `json:"final_metrics,omitempty"`
}

// SessionRecord is one local audit row pushed to the cloud sink.
type SessionRecord struct {
	ID         string
	RunID      string
	CameraID   string
	VideoFile  string
	Outcome    JobOutcome
	DurationMS int64
	CreatedAt  time.Time
}

package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"

	"github.com/aseofsmartice/surveillance-orchestrator/internal/models"
	"github.com/aseofsmartice/surveillance-orchestrator/internal/supervise"
)

// Exit codes of the detection subprocess. Code 2 is the detection
// script's own duplicate guard firing mid-flight.
const (
	exitSuccess          = 0
	exitAlreadyProcessed = 2
)

// Result is the interpreted outcome of one subprocess invocation.
type Result struct {
	Outcome models.JobOutcome
	Elapsed time.Duration
	Err     error
}

// Runner is the job executor contract workers invoke. It must be safe
// for up to maxWorkers concurrent invocations.
type Runner interface {
	Execute(ctx context.Context, job *models.Job) Result
}

// DetectionRunner runs the external detection binary once per job.
//
// Subprocess output goes to a per-job log file, never to pipes: an
// unread pipe fills and deadlocks the child. Success and failure are
// classified from the exit code alone.
type DetectionRunner struct {
	Bin          string
	ROIConfigDir string
	LogsDir      string
}

func (r *DetectionRunner) Execute(ctx context.Context, job *models.Job) Result {
	args := []string{"--video", job.SourcePath}

	if job.DurationLimit > 0 {
		args = append(args, "--duration", strconv.Itoa(int(job.DurationLimit.Seconds())))
	}

	if cfg := r.configFor(job); cfg != "" {
		args = append(args, "--config", cfg)
	}

	start := time.Now()
	cmd := exec.CommandContext(ctx, r.Bin, args...)
	cmd.Stdout = r.outputSink(job)
	cmd.Stderr = cmd.Stdout

	// The global zombie reaper stands down while this child is ours.
	supervise.AdoptChild()
	err := cmd.Run()
	supervise.ReleaseChild()
	elapsed := time.Since(start)

	if closer, ok := cmd.Stdout.(*os.File); ok && closer != os.Stdout {
		closer.Close()
	}

	switch code := exitCode(err); {
	case code == exitSuccess:
		return Result{Outcome: models.OutcomeSuccess, Elapsed: elapsed}
	case code == exitAlreadyProcessed:
		return Result{Outcome: models.OutcomeSkipped, Elapsed: elapsed}
	default:
		return Result{
			Outcome: models.OutcomeFailed,
			Elapsed: elapsed,
			Err:     fmt.Errorf("detection exited with code %d: %w", code, err),
		}
	}
}

// configFor prefers the camera-specific ROI config when one exists,
// falling back to the job's default config path.
func (r *DetectionRunner) configFor(job *models.Job) string {
	if r.ROIConfigDir != "" {
		cameraCfg := filepath.Join(r.ROIConfigDir, fmt.Sprintf("table_region_config_%s.json", job.CameraID))
		if _, err := os.Stat(cameraCfg); err == nil {
			return cameraCfg
		}
	}
	return job.ConfigPath
}

// outputSink opens the per-job subprocess log. If the log directory is
// unusable the output is discarded rather than piped.
func (r *DetectionRunner) outputSink(job *models.Job) io.Writer {
	if r.LogsDir == "" {
		return io.Discard
	}

	name := fmt.Sprintf("job_%s_%d.log", job.VideoName, time.Now().Unix())
	f, err := os.OpenFile(filepath.Join(r.LogsDir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		log.Printf("[%s] cannot open job log, discarding subprocess output: %v", job.CameraID, err)
		return io.Discard
	}
	return f
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

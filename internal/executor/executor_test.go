package executor

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aseofsmartice/surveillance-orchestrator/internal/models"
	"github.com/aseofsmartice/surveillance-orchestrator/internal/supervise"
)

// stubBin writes an executable shell script standing in for the
// detection binary.
func stubBin(t *testing.T, script string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "detect.sh")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+script+"\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func testJob() *models.Job {
	return &models.Job{
		CameraID:   "camera_35",
		SourcePath: "/videos/20251212/camera_35/camera_35_20251212_183000.mp4",
		VideoName:  "camera_35_20251212_183000.mp4",
	}
}

func TestExecuteClassifiesExitCodes(t *testing.T) {
	cases := []struct {
		script string
		want   models.JobOutcome
	}{
		{"exit 0", models.OutcomeSuccess},
		{"exit 2", models.OutcomeSkipped},
		{"exit 1", models.OutcomeFailed},
		{"exit 7", models.OutcomeFailed},
	}

	for _, c := range cases {
		r := &DetectionRunner{Bin: stubBin(t, c.script)}
		res := r.Execute(context.Background(), testJob())
		if res.Outcome != c.want {
			t.Errorf("%q -> %s, want %s", c.script, res.Outcome, c.want)
		}
		if c.want == models.OutcomeFailed && res.Err == nil {
			t.Errorf("%q: failed result carries no error", c.script)
		}
	}
}

func TestExecuteSurvivesConcurrentReaping(t *testing.T) {
	r := &DetectionRunner{Bin: stubBin(t, "sleep 0.2; exit 0")}

	stop := make(chan struct{})
	go func() {
		for {
			select {
			case <-stop:
				return
			default:
				supervise.ReapZombies()
				time.Sleep(time.Millisecond)
			}
		}
	}()

	res := r.Execute(context.Background(), testJob())
	close(stop)

	if res.Outcome != models.OutcomeSuccess {
		t.Fatalf("reaper corrupted job classification: %s (%v)", res.Outcome, res.Err)
	}
}

func TestExecuteMissingBinaryFails(t *testing.T) {
	r := &DetectionRunner{Bin: filepath.Join(t.TempDir(), "absent")}
	res := r.Execute(context.Background(), testJob())
	if res.Outcome != models.OutcomeFailed || res.Err == nil {
		t.Fatalf("missing binary should fail, got %s", res.Outcome)
	}
}

func TestExecutePassesVideoAndDuration(t *testing.T) {
	out := filepath.Join(t.TempDir(), "args.txt")
	r := &DetectionRunner{Bin: stubBin(t, `echo "$@" > `+out)}

	job := testJob()
	job.DurationLimit = 30 * time.Second

	if res := r.Execute(context.Background(), job); res.Outcome != models.OutcomeSuccess {
		t.Fatalf("stub run failed: %v", res.Err)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	args := string(data)
	if !strings.Contains(args, "--video "+job.SourcePath) {
		t.Errorf("video flag missing from args: %s", args)
	}
	if !strings.Contains(args, "--duration 30") {
		t.Errorf("duration flag missing from args: %s", args)
	}
}

func TestConfigForPrefersCameraSpecific(t *testing.T) {
	roiDir := t.TempDir()
	cameraCfg := filepath.Join(roiDir, "table_region_config_camera_35.json")
	if err := os.WriteFile(cameraCfg, []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}

	r := &DetectionRunner{ROIConfigDir: roiDir}
	job := testJob()
	job.ConfigPath = "/etc/roi/table_region_config.json"

	if got := r.configFor(job); got != cameraCfg {
		t.Errorf("configFor = %s, want camera-specific %s", got, cameraCfg)
	}

	// Without a camera-specific file the default wins.
	job.CameraID = "camera_99"
	if got := r.configFor(job); got != job.ConfigPath {
		t.Errorf("configFor = %s, want fallback %s", got, job.ConfigPath)
	}
}

func TestExecuteWritesJobLog(t *testing.T) {
	logsDir := t.TempDir()
	r := &DetectionRunner{Bin: stubBin(t, `echo "frame 1 processed"`), LogsDir: logsDir}

	if res := r.Execute(context.Background(), testJob()); res.Outcome != models.OutcomeSuccess {
		t.Fatalf("stub run failed: %v", res.Err)
	}

	entries, err := os.ReadDir(logsDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected one job log, found %d", len(entries))
	}
	data, err := os.ReadFile(filepath.Join(logsDir, entries[0].Name()))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "frame 1 processed") {
		t.Errorf("subprocess output missing from job log: %q", data)
	}
}

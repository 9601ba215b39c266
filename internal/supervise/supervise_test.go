package supervise

import (
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"testing"
	"time"
)

func TestPIDFileAcquireAndRelease(t *testing.T) {
	path := filepath.Join(t.TempDir(), "service.pid")
	f := &PIDFile{Path: path}

	if err := f.Acquire(); err != nil {
		t.Fatalf("acquire: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if pid, _ := strconv.Atoi(string(data)); pid != os.Getpid() {
		t.Errorf("pid file contains %s, want %d", data, os.Getpid())
	}

	f.Release()
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("pid file not removed on release")
	}
}

func TestPIDFileRejectsLiveInstance(t *testing.T) {
	path := filepath.Join(t.TempDir(), "service.pid")

	// Our own PID is definitely alive.
	if err := os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644); err != nil {
		t.Fatal(err)
	}

	f := &PIDFile{Path: path}
	if err := f.Acquire(); err == nil {
		t.Fatal("acquire should fail while the PID is alive")
	}
}

func TestPIDFileReplacesStaleFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "service.pid")

	// A child that has already exited leaves a dead PID behind.
	cmd := exec.Command("true")
	if err := cmd.Start(); err != nil {
		t.Fatal(err)
	}
	deadPID := cmd.Process.Pid
	cmd.Wait()

	if err := os.WriteFile(path, []byte(strconv.Itoa(deadPID)), 0o644); err != nil {
		t.Fatal(err)
	}

	f := &PIDFile{Path: path}
	if err := f.Acquire(); err != nil {
		t.Fatalf("stale pid file should be replaced: %v", err)
	}
	defer f.Release()

	data, _ := os.ReadFile(path)
	if pid, _ := strconv.Atoi(string(data)); pid != os.Getpid() {
		t.Errorf("pid file contains %s after stale replace, want %d", data, os.Getpid())
	}
}

func TestPIDFileReplacesGarbageFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "service.pid")
	if err := os.WriteFile(path, []byte("not-a-pid"), 0o644); err != nil {
		t.Fatal(err)
	}

	f := &PIDFile{Path: path}
	if err := f.Acquire(); err != nil {
		t.Fatalf("unparseable pid file should be replaced: %v", err)
	}
	f.Release()
}

func TestStopGracefulOnCooperativeProcess(t *testing.T) {
	p, err := Start("sleeper", exec.Command("sleep", "60"))
	if err != nil {
		t.Fatal(err)
	}

	start := time.Now()
	outcome := p.Stop(5*time.Second, time.Second)
	if outcome != StopGraceful {
		t.Fatalf("outcome = %s, want graceful", outcome)
	}
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Errorf("graceful stop took %s", elapsed)
	}
	if p.Alive() {
		t.Error("process still alive after stop")
	}
}

func TestStopForcesTermResistantProcess(t *testing.T) {
	cmd := exec.Command("sh", "-c", `trap "" TERM; sleep 60`)
	p, err := Start("stubborn", cmd)
	if err != nil {
		t.Fatal(err)
	}

	// Give the shell a moment to install the trap.
	time.Sleep(100 * time.Millisecond)

	outcome := p.Stop(500*time.Millisecond, 2*time.Second)
	if outcome != StopForced {
		t.Fatalf("outcome = %s, want forced", outcome)
	}
	if p.Alive() {
		t.Error("process still alive after SIGKILL")
	}
}

func TestStopOnExitedProcessIsGraceful(t *testing.T) {
	p, err := Start("quick", exec.Command("true"))
	if err != nil {
		t.Fatal(err)
	}
	p.Wait()

	if outcome := p.Stop(time.Second, time.Second); outcome != StopGraceful {
		t.Errorf("stopping an exited process = %s, want graceful", outcome)
	}
}

func TestWaitReturnsExitError(t *testing.T) {
	p, err := Start("failing", exec.Command("sh", "-c", "exit 3"))
	if err != nil {
		t.Fatal(err)
	}

	if werr := p.Wait(); werr == nil {
		t.Fatal("expected exit error for status 3")
	}
	// The result stays observable across calls.
	if werr := p.Wait(); werr == nil {
		t.Fatal("second Wait lost the exit status")
	}
}

func TestAliveTracksExit(t *testing.T) {
	p, err := Start("short", exec.Command("sleep", "0.1"))
	if err != nil {
		t.Fatal(err)
	}
	if !p.Alive() {
		t.Error("process should be alive right after start")
	}
	p.Wait()
	if p.Alive() {
		t.Error("process should be dead after Wait returned")
	}
}

func TestReaperStandsDownForOwnedChild(t *testing.T) {
	p, err := Start("short", exec.Command("sh", "-c", "sleep 0.2; exit 0"))
	if err != nil {
		t.Fatal(err)
	}

	// Hammer the reaper across the child's whole lifetime. The exit
	// status must still reach the supervised Wait, not the reaper.
	done := make(chan error, 1)
	go func() { done <- p.Wait() }()
	for {
		select {
		case werr := <-done:
			if werr != nil {
				t.Fatalf("exit status lost to the reaper: %v", werr)
			}
			return
		default:
			if n := ReapZombies(); n != 0 {
				t.Fatalf("reaper stole %d owned child(ren)", n)
			}
			time.Sleep(time.Millisecond)
		}
	}
}

func TestReapZombiesWithNoChildren(t *testing.T) {
	// No unwaited children exist in the test process; the reaper must
	// return without blocking.
	if n := ReapZombies(); n != 0 {
		t.Errorf("reaped %d, want 0", n)
	}
}

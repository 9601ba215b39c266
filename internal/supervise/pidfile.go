package supervise

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"syscall"
)

// PIDFile guards against a second daemon instance on the same host.
type PIDFile struct {
	Path string
}

// Acquire records the current PID. If the file already names a live
// process the acquire fails; a stale file (dead PID) is replaced.
func (f *PIDFile) Acquire() error {
	if data, err := os.ReadFile(f.Path); err == nil {
		oldPID, parseErr := strconv.Atoi(strings.TrimSpace(string(data)))
		if parseErr == nil && pidAlive(oldPID) {
			return fmt.Errorf("service already running (PID: %d)", oldPID)
		}
		log.Printf("Removing stale PID file (PID %s not running)", strings.TrimSpace(string(data)))
		os.Remove(f.Path)
	}

	return os.WriteFile(f.Path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

// Release removes the PID file.
func (f *PIDFile) Release() {
	if err := os.Remove(f.Path); err != nil && !os.IsNotExist(err) {
		log.Printf("Failed to remove PID file %s: %v", f.Path, err)
	}
}

// pidAlive probes a PID with signal 0.
func pidAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	return syscall.Kill(pid, 0) == nil
}

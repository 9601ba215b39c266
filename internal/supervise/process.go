package supervise

import (
	"fmt"
	"log"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

// StopOutcome classifies how a subprocess stop ended. Only
// StopFailed should page a human.
type StopOutcome int

const (
	StopGraceful StopOutcome = iota
	StopForced
	StopFailed
)

func (o StopOutcome) String() string {
	switch o {
	case StopGraceful:
		return "graceful"
	case StopForced:
		return "forced"
	default:
		return "failed"
	}
}

// Process supervises one long-lived subprocess handle.
type Process struct {
	Name string

	mu   sync.Mutex
	cmd  *exec.Cmd
	done chan error
}

// Start launches the command and begins waiting on it in the
// background, so the exit status is always collected.
func Start(name string, cmd *exec.Cmd) (*Process, error) {
	AdoptChild()
	if err := cmd.Start(); err != nil {
		ReleaseChild()
		return nil, fmt.Errorf("start %s: %w", name, err)
	}

	p := &Process{
		Name: name,
		cmd:  cmd,
		done: make(chan error, 1),
	}
	go func() {
		err := cmd.Wait()
		ReleaseChild()
		p.done <- err
	}()

	log.Printf("Supervisor: %s started (PID: %d)", name, cmd.Process.Pid)
	return p, nil
}

// PID returns the subprocess id.
func (p *Process) PID() int {
	return p.cmd.Process.Pid
}

// Alive reports whether the subprocess has not yet exited.
func (p *Process) Alive() bool {
	select {
	case err := <-p.done:
		// Keep the result observable for later callers.
		p.done <- err
		return false
	default:
		return true
	}
}

// Wait blocks until the subprocess exits.
func (p *Process) Wait() error {
	err := <-p.done
	p.done <- err
	return err
}

// Stop terminates the subprocess: SIGTERM, wait up to graceful, then
// SIGKILL, wait up to force. The graceful window is deliberately long
// for the capture subprocess, which must finish writing container
// metadata or the output file is unplayable.
func (p *Process) Stop(graceful, force time.Duration) StopOutcome {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.Alive() {
		log.Printf("Supervisor: %s already stopped", p.Name)
		return StopGraceful
	}

	pid := p.PID()
	log.Printf("Supervisor: stopping %s (PID: %d)...", p.Name, pid)

	log.Printf("Supervisor: [1/3] sending SIGTERM to PID %d", pid)
	if err := p.cmd.Process.Signal(syscall.SIGTERM); err != nil {
		log.Printf("Supervisor: error sending SIGTERM to PID %d: %v", pid, err)
	}

	log.Printf("Supervisor: [2/3] waiting %s for graceful shutdown...", graceful)
	select {
	case err := <-p.done:
		p.done <- err
		log.Printf("Supervisor: process %d stopped gracefully via SIGTERM", pid)
		return StopGraceful
	case <-time.After(graceful):
		log.Printf("Supervisor: process %d did not respond to SIGTERM after %s", pid, graceful)
	}

	log.Printf("Supervisor: [3/3] force killing PID %d with SIGKILL", pid)
	if err := p.cmd.Process.Kill(); err != nil {
		log.Printf("Supervisor: error sending SIGKILL to PID %d: %v", pid, err)
	}

	select {
	case err := <-p.done:
		p.done <- err
		log.Printf("Supervisor: process %d force killed with SIGKILL", pid)
		return StopForced
	case <-time.After(force):
		log.Printf("Supervisor: CRITICAL: process %d did not die after SIGKILL", pid)
		return StopFailed
	}
}

package supervise

import (
	"errors"
	"log"
	"sync/atomic"
	"syscall"
)

// ownedChildren counts exec.Cmd children some goroutine is still
// waiting on. Wait4(-1) cannot target orphans only: while any owned
// child is in flight the global reap must stand down, or it can steal
// an exit status out from under the owner's Wait and turn a successful
// job into a failure.
var ownedChildren atomic.Int32

// AdoptChild marks one owned child in flight. Callers bracket the full
// start-to-wait lifetime of their exec.Cmd.
func AdoptChild() { ownedChildren.Add(1) }

// ReleaseChild undoes AdoptChild once the owner's Wait has returned.
func ReleaseChild() { ownedChildren.Add(-1) }

// ReapZombies reaps finished children no exec.Cmd is waiting on,
// without blocking. Children double-forked by the capture tool get
// re-parented to the daemon when it runs as PID 1 and would otherwise
// accumulate as zombies. Skipped entirely while any owned child is in
// flight; the scheduler retries every tick, so a deferred reap only
// waits for the next quiet moment.
func ReapZombies() int {
	if ownedChildren.Load() > 0 {
		return 0
	}

	reaped := 0
	for {
		var status syscall.WaitStatus
		pid, err := syscall.Wait4(-1, &status, syscall.WNOHANG, nil)
		if err != nil {
			if !errors.Is(err, syscall.ECHILD) {
				log.Printf("Supervisor: zombie reap error: %v", err)
			}
			break
		}
		if pid <= 0 {
			break
		}
		reaped++
		log.Printf("Supervisor: reaped zombie process PID %d (exit code: %d)", pid, status.ExitStatus())
	}

	if reaped > 0 {
		log.Printf("Supervisor: cleaned up %d zombie process(es)", reaped)
	}
	return reaped
}

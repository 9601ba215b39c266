package scheduler

import (
	"context"
	"log"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"github.com/aseofsmartice/surveillance-orchestrator/internal/config"
	"github.com/aseofsmartice/surveillance-orchestrator/internal/events"
	"github.com/aseofsmartice/surveillance-orchestrator/internal/models"
	"github.com/aseofsmartice/surveillance-orchestrator/internal/orchestrator"
	"github.com/aseofsmartice/surveillance-orchestrator/internal/supervise"
)

// Service is the top-level daemon: it watches the wall clock, starts
// and stops the capture subprocess around the configured windows, kicks
// off the nightly processing run, and keeps children reaped.
//
// All mutable state lives on this struct; the capture and processing
// handles each have their own lock so a start/stop transition of one
// kind never blocks the other, and check-then-start is atomic against
// the health-check goroutine.
type Service struct {
	cfg      *config.Config
	orch     *orchestrator.Orchestrator
	producer *events.Producer

	captureMu     sync.Mutex
	capture       *supervise.Process
	captureWindow *models.TimeWindow

	processingMu     sync.Mutex
	processingAlive  bool
	processingCancel context.CancelFunc

	now func() time.Time
}

func New(cfg *config.Config, orch *orchestrator.Orchestrator, producer *events.Producer) *Service {
	return &Service{
		cfg:      cfg,
		orch:     orch,
		producer: producer,
		now:      time.Now,
	}
}

// Run is the scheduler main loop. Each tick executes in fixed order:
// zombie reap, capture-stop check, capture-start check, processing
// start, processing overrun warning. The order matters: a window
// boundary must never see two generations of capture alive at once.
func (s *Service) Run(ctx context.Context) {
	log.Println("Scheduler: starting main loop")
	s.logSchedule()

	// Catch up if the daemon starts mid-window.
	if _, w := s.inCaptureWindow(); w != nil {
		s.startCapture()
	}
	now := s.now()
	if s.cfg.Schedule.ProcessingWindow.Contains(now.Hour(), now.Minute()) {
		s.startProcessing(ctx)
	}

	go s.healthCheckLoop(ctx)

	tick := time.Duration(s.cfg.Schedule.TickSeconds) * time.Second
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Scheduler: shutting down")
			s.Stop()
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Service) tick(ctx context.Context) {
	supervise.ReapZombies()

	now := s.now()
	hour, minute := now.Hour(), now.Minute()

	s.checkCaptureStop()

	for _, w := range s.cfg.Schedule.CaptureWindows {
		if w.StartsAt(hour, minute) {
			s.startCapture()
			break
		}
	}

	if s.cfg.Schedule.ProcessingWindow.StartsAt(hour, minute) {
		s.startProcessing(ctx)
	}

	if hour == s.cfg.Schedule.TargetHour && minute == 0 && s.ProcessingAlive() {
		log.Printf("Scheduler: WARNING: processing still running after %02d:00 target completion time", s.cfg.Schedule.TargetHour)
		log.Println("Scheduler: WARNING: processing may not finish before the next capture window starts")
	}

	s.sendHeartbeat()
}

// checkCaptureStop stops the capture subprocess when the clock has left
// every capture window, or when it is running under a stale window.
func (s *Service) checkCaptureStop() {
	s.captureMu.Lock()
	defer s.captureMu.Unlock()

	if s.capture == nil || !s.capture.Alive() {
		return
	}

	inWindow, active := s.inCaptureWindow()
	switch {
	case !inWindow:
		name := "capture"
		if s.captureWindow != nil {
			name = s.captureWindow.Name
		}
		log.Printf("Scheduler: outside capture windows - %s window ended, stopping capture", name)
		s.stopCaptureLocked()
	case s.captureWindow != nil && active.Name != s.captureWindow.Name:
		log.Printf("Scheduler: window mismatch - stopping %s capture for %s window", s.captureWindow.Name, active.Name)
		s.stopCaptureLocked()
	}
}

// startCapture launches the capture subprocess for the active window.
// Idempotent: a second call while one is running is a no-op.
func (s *Service) startCapture() {
	s.captureMu.Lock()
	defer s.captureMu.Unlock()

	inWindow, window := s.inCaptureWindow()
	if !inWindow {
		log.Println("Scheduler: outside capture windows, skipping video capture")
		return
	}

	if s.capture != nil && s.capture.Alive() {
		log.Println("Scheduler: video capture already running")
		return
	}

	remaining := window.Remaining(s.now())
	if remaining <= 0 {
		log.Printf("Scheduler: already past end time for %s window", window.Name)
		return
	}

	duration := int(remaining.Seconds())
	cmd := exec.Command(s.cfg.Paths.CaptureBin,
		"--output-dir", s.cfg.Paths.VideosDir,
		"--duration", strconv.Itoa(duration))
	// Output goes nowhere near a pipe; the capture tool keeps its own logs.
	cmd.Stdout = nil
	cmd.Stderr = nil

	proc, err := supervise.Start("capture", cmd)
	if err != nil {
		log.Printf("Scheduler: failed to start video capture: %v", err)
		return
	}

	w := *window
	s.capture = proc
	s.captureWindow = &w
	log.Printf("Scheduler: video capture started (%s window, %02d:%02d-%02d:%02d, %ds)",
		w.Name, w.StartHour, w.StartMinute, w.EndHour, w.EndMinute, duration)
}

func (s *Service) stopCaptureLocked() {
	graceful := time.Duration(s.cfg.Schedule.StopGracefulSeconds) * time.Second
	force := time.Duration(s.cfg.Schedule.StopForceSeconds) * time.Second

	outcome := s.capture.Stop(graceful, force)
	if outcome == supervise.StopFailed {
		log.Printf("Scheduler: ERROR: capture process PID %d survived SIGKILL, operator attention required", s.capture.PID())
	}
	s.capture = nil
	s.captureWindow = nil
}

// startProcessing launches one orchestrator run in the background.
// Idempotent under the processing lock.
func (s *Service) startProcessing(ctx context.Context) {
	s.processingMu.Lock()
	defer s.processingMu.Unlock()

	now := s.now()
	if !s.cfg.Schedule.ProcessingWindow.Contains(now.Hour(), now.Minute()) {
		log.Println("Scheduler: outside processing hours, skipping video processing")
		return
	}

	if s.processingAlive {
		log.Println("Scheduler: video processing already running")
		return
	}

	log.Println("Scheduler: starting video processing (previous day's footage)")
	log.Printf("Scheduler: target completion %02d:00 (warning if exceeded)", s.cfg.Schedule.TargetHour)

	runCtx, cancel := context.WithCancel(ctx)
	s.processingAlive = true
	s.processingCancel = cancel

	go func() {
		defer func() {
			s.processingMu.Lock()
			s.processingAlive = false
			s.processingCancel = nil
			s.processingMu.Unlock()
		}()

		if _, err := s.orch.Run(runCtx); err != nil && runCtx.Err() == nil {
			log.Printf("Scheduler: processing run failed: %v", err)
		}
	}()
}

// healthCheckLoop restarts capture or processing if they should be
// running inside their window but the handle is dead.
func (s *Service) healthCheckLoop(ctx context.Context) {
	interval := time.Duration(s.cfg.Schedule.HealthCheckSeconds) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			log.Printf("Health check: capture_running=%t processing_running=%t",
				s.CaptureAlive(), s.ProcessingAlive())

			if in, _ := s.inCaptureWindow(); in && !s.CaptureAlive() {
				log.Println("Health check: capture stopped unexpectedly, restarting")
				s.startCapture()
			}

			now := s.now()
			if s.cfg.Schedule.ProcessingWindow.Contains(now.Hour(), now.Minute()) && !s.ProcessingAlive() {
				log.Println("Health check: processing stopped unexpectedly, restarting")
				s.startProcessing(ctx)
			}
		}
	}
}

// Stop tears down both subprocess kinds for daemon shutdown.
func (s *Service) Stop() {
	s.captureMu.Lock()
	if s.capture != nil && s.capture.Alive() {
		log.Println("Scheduler: stopping video capture")
		s.stopCaptureLocked()
	}
	s.captureMu.Unlock()

	s.processingMu.Lock()
	if s.processingCancel != nil {
		log.Println("Scheduler: stopping video processing")
		s.processingCancel()
	}
	s.processingMu.Unlock()
}

// CaptureAlive reports whether the capture subprocess is running.
func (s *Service) CaptureAlive() bool {
	s.captureMu.Lock()
	defer s.captureMu.Unlock()
	return s.capture != nil && s.capture.Alive()
}

// ProcessingAlive reports whether a processing run is in flight.
func (s *Service) ProcessingAlive() bool {
	s.processingMu.Lock()
	defer s.processingMu.Unlock()
	return s.processingAlive
}

// CurrentWindow returns the active capture window name, if any.
func (s *Service) CurrentWindow() string {
	s.captureMu.Lock()
	defer s.captureMu.Unlock()
	if s.captureWindow == nil {
		return ""
	}
	return s.captureWindow.Name
}

func (s *Service) inCaptureWindow() (bool, *models.TimeWindow) {
	now := s.now()
	for _, w := range s.cfg.Schedule.CaptureWindows {
		if w.Contains(now.Hour(), now.Minute()) {
			return true, &w
		}
	}
	return false, nil
}

func (s *Service) sendHeartbeat() {
	if err := s.producer.Send(models.Heartbeat{
		Kind:            models.HeartbeatDaemon,
		CaptureActive:   s.CaptureAlive(),
		ProcessingAlive: s.ProcessingAlive(),
		Workers:         s.orch.Status().Workers,
		Timestamp:       time.Now().UTC(),
	}); err != nil {
		log.Printf("Scheduler: failed to publish heartbeat: %v", err)
	}
}

func (s *Service) logSchedule() {
	log.Println("Capture windows:")
	for _, w := range s.cfg.Schedule.CaptureWindows {
		log.Printf("  %s: %02d:%02d - %02d:%02d", w.Name, w.StartHour, w.StartMinute, w.EndHour, w.EndMinute)
	}
	p := s.cfg.Schedule.ProcessingWindow
	log.Printf("Processing window: %02d:%02d - %02d:%02d (target completion)", p.StartHour, p.StartMinute, p.EndHour, p.EndMinute)
}

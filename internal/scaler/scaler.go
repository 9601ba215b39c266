package scaler

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/aseofsmartice/surveillance-orchestrator/internal/config"
	"github.com/aseofsmartice/surveillance-orchestrator/internal/gpu"
	"github.com/aseofsmartice/surveillance-orchestrator/internal/models"
)

// Direction is the outcome of one scaling evaluation.
type Direction int

const (
	Hold Direction = iota
	Up
	Down
	Emergency
)

func (d Direction) String() string {
	switch d {
	case Up:
		return "up"
	case Down:
		return "down"
	case Emergency:
		return "emergency"
	default:
		return "hold"
	}
}

// Decision carries the direction plus the operator-facing reason.
type Decision struct {
	Direction Direction
	Reason    string
}

// Pool is the slice of the worker pool the scaler drives.
type Pool interface {
	CurrentCount() int
	AddWorker()
	RemoveWorker() bool
	Status() string
}

// Scaler turns GPU telemetry into worker-count adjustments.
//
// Scale-up is conservative (every condition must hold), scale-down is
// aggressive (any condition triggers), and both respect the cooldown.
// Only the emergency path bypasses it: at or above the emergency
// temperature the pool drops straight to minimum and evaluation pauses
// for the extended hold.
type Scaler struct {
	cfg       config.Config
	lastScale time.Time
	holdUntil time.Time
}

func New(cfg *config.Config) *Scaler {
	return &Scaler{cfg: *cfg}
}

// Evaluate decides the next scaling move for the given snapshot. A nil
// snapshot (telemetry unavailable) always holds: never scale blind.
func (s *Scaler) Evaluate(m *models.GPUMetrics, current int, now time.Time) Decision {
	if m == nil {
		return Decision{Hold, "telemetry unavailable"}
	}

	sc := s.cfg.Scaling

	if m.Temperature >= sc.TempEmergency {
		return Decision{Emergency, fmt.Sprintf("temperature %.0f°C >= emergency threshold %.0f°C", m.Temperature, sc.TempEmergency)}
	}

	if now.Before(s.holdUntil) {
		return Decision{Hold, fmt.Sprintf("emergency hold active for %s", s.holdUntil.Sub(now).Round(time.Second))}
	}

	cooldownActive := now.Sub(s.lastScale) < time.Duration(sc.CooldownSeconds)*time.Second

	wantDown := m.Temperature > sc.TempScaleDown ||
		m.Utilization > sc.UtilScaleDown ||
		m.MemoryFreeGB < sc.MemFreeScaleDownGB
	if wantDown && current > sc.MinWorkers {
		if cooldownActive {
			return Decision{Hold, "cooldown active (scale-down suppressed)"}
		}
		return Decision{Down, fmt.Sprintf("temp=%.0f°C util=%.0f%% free=%.1fGB", m.Temperature, m.Utilization, m.MemoryFreeGB)}
	}

	wantUp := m.Temperature < sc.TempScaleUp &&
		m.Utilization < sc.UtilScaleUp &&
		m.MemoryFreeGB > sc.MemFreeScaleUpGB
	if wantUp && current < sc.MaxWorkers {
		if cooldownActive {
			return Decision{Hold, "cooldown active (scale-up suppressed)"}
		}
		return Decision{Up, fmt.Sprintf("temp=%.0f°C util=%.0f%% free=%.1fGB", m.Temperature, m.Utilization, m.MemoryFreeGB)}
	}

	return Decision{Hold, "within envelope"}
}

// Apply executes a decision against the pool and records the scaling
// timestamps that drive cooldown and the emergency hold.
func (s *Scaler) Apply(d Decision, pool Pool, now time.Time) {
	switch d.Direction {
	case Emergency:
		log.Printf("Scaler: EMERGENCY: %s, reducing to minimum workers", d.Reason)
		for pool.CurrentCount() > s.cfg.Scaling.MinWorkers {
			if !pool.RemoveWorker() {
				break
			}
		}
		s.lastScale = now
		s.holdUntil = now.Add(time.Duration(s.cfg.Scaling.EmergencyHoldSeconds) * time.Second)
		log.Printf("Scaler: holding at minimum for %ds GPU cooldown", s.cfg.Scaling.EmergencyHoldSeconds)
	case Down:
		log.Printf("Scaler: scaling DOWN: %s", d.Reason)
		if pool.RemoveWorker() {
			s.lastScale = now
		}
	case Up:
		log.Printf("Scaler: scaling UP: %s", d.Reason)
		pool.AddWorker()
		s.lastScale = now
	default:
		log.Printf("Scaler: no change (%s)", d.Reason)
	}
}

// Run evaluates telemetry on a fixed interval until ctx is cancelled.
// Telemetry read failures are absorbed: log, hold, retry next tick.
func (s *Scaler) Run(ctx context.Context, source gpu.Source, pool Pool) {
	interval := time.Duration(s.cfg.Scaling.CheckIntervalSeconds) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Printf("Scaler: monitoring every %s (cooldown %ds)", interval, s.cfg.Scaling.CooldownSeconds)

	for {
		select {
		case <-ctx.Done():
			log.Println("Scaler: stopped")
			return
		case <-ticker.C:
			metrics, err := source.Metrics(ctx)
			if err != nil {
				log.Printf("Scaler: telemetry read failed, holding current scale: %v", err)
				continue
			}

			log.Printf("GPU: %.0f°C | Util: %.0f%% | Mem: %.1fGB free / %.1fGB total",
				metrics.Temperature, metrics.Utilization, metrics.MemoryFreeGB, metrics.MemoryTotalGB)
			log.Printf("Queue: %s", pool.Status())

			now := time.Now()
			s.Apply(s.Evaluate(metrics, pool.CurrentCount(), now), pool, now)
		}
	}
}

package scaler

import (
	"testing"
	"time"

	"github.com/aseofsmartice/surveillance-orchestrator/internal/config"
	"github.com/aseofsmartice/surveillance-orchestrator/internal/models"
)

func metrics(temp, util, freeGB float64) *models.GPUMetrics {
	return &models.GPUMetrics{Temperature: temp, Utilization: util, MemoryFreeGB: freeGB}
}

func newScaler(t *testing.T) *Scaler {
	t.Helper()
	cfg := config.Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	return New(cfg)
}

func TestScaleUpWhenAllConditionsFavorable(t *testing.T) {
	s := newScaler(t)
	now := time.Now()

	d := s.Evaluate(metrics(72, 60, 3.0), 2, now)
	if d.Direction != Hold {
		// 72°C sits in the 70-75 gap band: not cool enough to add.
		t.Fatalf("gap-band temperature should hold, got %s", d.Direction)
	}

	d = s.Evaluate(metrics(65, 60, 3.0), 2, now)
	if d.Direction != Up {
		t.Fatalf("expected scale-up, got %s (%s)", d.Direction, d.Reason)
	}
}

func TestScaleUpRequiresEveryCondition(t *testing.T) {
	s := newScaler(t)
	now := time.Now()

	cases := []*models.GPUMetrics{
		metrics(71, 60, 3.0), // temp not below 70
		metrics(65, 75, 3.0), // util not below 70
		metrics(65, 60, 1.5), // memory not above 2.0
	}
	for i, m := range cases {
		if d := s.Evaluate(m, 2, now); d.Direction != Hold {
			t.Errorf("case %d: expected hold, got %s", i, d.Direction)
		}
	}
}

func TestScaleDownOnAnyCondition(t *testing.T) {
	now := time.Now()

	cases := []*models.GPUMetrics{
		metrics(76, 50, 4.0), // hot
		metrics(65, 90, 4.0), // saturated
		metrics(65, 50, 0.5), // memory pressure
	}
	for i, m := range cases {
		s := newScaler(t)
		if d := s.Evaluate(m, 4, now); d.Direction != Down {
			t.Errorf("case %d: expected scale-down, got %s", i, d.Direction)
		}
	}
}

func TestNoScaleDownBelowMinimum(t *testing.T) {
	s := newScaler(t)

	if d := s.Evaluate(metrics(78, 90, 0.5), 1, time.Now()); d.Direction != Hold {
		t.Errorf("at min workers scale-down must hold, got %s", d.Direction)
	}
}

func TestNoScaleUpAtMaximum(t *testing.T) {
	s := newScaler(t)

	if d := s.Evaluate(metrics(60, 40, 6.0), 8, time.Now()); d.Direction != Hold {
		t.Errorf("at max workers scale-up must hold, got %s", d.Direction)
	}
}

func TestCooldownSuppressesSecondDecision(t *testing.T) {
	s := newScaler(t)
	pool := newFakePool(2)
	now := time.Now()

	d := s.Evaluate(metrics(65, 60, 3.0), pool.CurrentCount(), now)
	if d.Direction != Up {
		t.Fatalf("first evaluation should scale up, got %s", d.Direction)
	}
	s.Apply(d, pool, now)

	// 10 seconds later, conditions still favorable: cooldown blocks it.
	later := now.Add(10 * time.Second)
	d = s.Evaluate(metrics(65, 60, 3.0), pool.CurrentCount(), later)
	if d.Direction != Hold {
		t.Fatalf("expected cooldown hold, got %s", d.Direction)
	}
	if d.Reason != "cooldown active (scale-up suppressed)" {
		t.Errorf("unexpected reason %q", d.Reason)
	}

	// After the cooldown the decision goes through.
	after := now.Add(61 * time.Second)
	if d = s.Evaluate(metrics(65, 60, 3.0), pool.CurrentCount(), after); d.Direction != Up {
		t.Errorf("expected scale-up after cooldown, got %s", d.Direction)
	}
}

func TestEmergencyBypassesCooldown(t *testing.T) {
	s := newScaler(t)
	pool := newFakePool(5)
	now := time.Now()

	// A scaling decision just happened; cooldown is active.
	s.Apply(Decision{Direction: Up, Reason: "test"}, pool, now)

	d := s.Evaluate(metrics(81, 50, 4.0), pool.CurrentCount(), now.Add(time.Second))
	if d.Direction != Emergency {
		t.Fatalf("expected emergency at 81°C, got %s", d.Direction)
	}

	s.Apply(d, pool, now.Add(time.Second))
	if pool.CurrentCount() != 1 {
		t.Errorf("emergency should force minimum workers, got %d", pool.CurrentCount())
	}
}

func TestEmergencyHoldBlocksEvaluation(t *testing.T) {
	s := newScaler(t)
	pool := newFakePool(5)
	now := time.Now()

	s.Apply(Decision{Direction: Emergency, Reason: "test"}, pool, now)

	// One minute in, still inside the 120s hold.
	d := s.Evaluate(metrics(65, 40, 6.0), pool.CurrentCount(), now.Add(time.Minute))
	if d.Direction != Hold {
		t.Fatalf("expected emergency hold, got %s", d.Direction)
	}

	// Past the hold (and the cooldown) normal evaluation resumes.
	d = s.Evaluate(metrics(65, 40, 6.0), pool.CurrentCount(), now.Add(3*time.Minute))
	if d.Direction != Up {
		t.Errorf("expected scale-up after hold expires, got %s", d.Direction)
	}
}

func TestNilMetricsHold(t *testing.T) {
	s := newScaler(t)

	d := s.Evaluate(nil, 4, time.Now())
	if d.Direction != Hold {
		t.Fatalf("telemetry failure must hold current scale, got %s", d.Direction)
	}
}

// fakePool satisfies the Pool interface with plain counters.
type fakePool struct {
	count int
}

func newFakePool(count int) *fakePool { return &fakePool{count: count} }

func (p *fakePool) CurrentCount() int { return p.count }
func (p *fakePool) AddWorker()        { p.count++ }
func (p *fakePool) RemoveWorker() bool {
	if p.count <= 1 {
		return false
	}
	p.count--
	return true
}
func (p *fakePool) Status() string { return "fake" }

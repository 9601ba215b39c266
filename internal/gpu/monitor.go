package gpu

import (
	"context"
	"fmt"
	"log"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/aseofsmartice/surveillance-orchestrator/internal/models"
)

// Source is the telemetry contract the scaler depends on. A failed read
// returns an error; the caller must treat that as "hold current scale".
type Source interface {
	Metrics(ctx context.Context) (*models.GPUMetrics, error)
}

const queryTimeout = 5 * time.Second

// Monitor reads accelerator telemetry through nvidia-smi. Availability
// is probed once at construction; on hosts without the binary the
// monitor reports itself unavailable and every read errors.
type Monitor struct {
	available bool
}

func NewMonitor() *Monitor {
	m := &Monitor{}

	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()
	if err := exec.CommandContext(ctx, "nvidia-smi",
		"--query-gpu=temperature.gpu", "--format=csv,noheader").Run(); err != nil {
		log.Printf("GPU monitoring unavailable (nvidia-smi probe failed: %v)", err)
		return m
	}

	m.available = true
	log.Println("GPU monitoring initialized via nvidia-smi")
	return m
}

func (m *Monitor) Available() bool { return m.available }

// Metrics runs one nvidia-smi query and parses the CSV line
// "temp, util, mem.used, mem.total" (MiB for memory fields).
func (m *Monitor) Metrics(ctx context.Context) (*models.GPUMetrics, error) {
	if !m.available {
		return nil, fmt.Errorf("gpu telemetry not available on this host")
	}

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, "nvidia-smi",
		"--query-gpu=temperature.gpu,utilization.gpu,memory.used,memory.total",
		"--format=csv,noheader,nounits").Output()
	if err != nil {
		return nil, fmt.Errorf("nvidia-smi query: %w", err)
	}

	return parseMetrics(string(out))
}

func parseMetrics(out string) (*models.GPUMetrics, error) {
	fields := strings.Split(strings.TrimSpace(out), ",")
	if len(fields) != 4 {
		return nil, fmt.Errorf("unexpected nvidia-smi output %q", strings.TrimSpace(out))
	}

	values := make([]float64, 4)
	for i, f := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return nil, fmt.Errorf("parse nvidia-smi field %q: %w", f, err)
		}
		values[i] = v
	}

	usedMB, totalMB := values[2], values[3]
	return &models.GPUMetrics{
		Temperature:   values[0],
		Utilization:   values[1],
		MemoryFreeGB:  (totalMB - usedMB) / 1024,
		MemoryTotalGB: totalMB / 1024,
		MemoryUsedGB:  usedMB / 1024,
		Timestamp:     time.Now(),
	}, nil
}

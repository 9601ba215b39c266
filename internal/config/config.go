package config

import (
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/aseofsmartice/surveillance-orchestrator/internal/models"
)

// Config is the full daemon configuration. Values come from the YAML
// file first, then environment variables override.
type Config struct {
	Paths struct {
		VideosDir    string `yaml:"videos_dir" env:"VIDEOS_DIR"`
		LogsDir      string `yaml:"logs_dir" env:"LOGS_DIR"`
		DatabasePath string `yaml:"database_path" env:"DATABASE_PATH"`
		PIDFile      string `yaml:"pid_file" env:"PID_FILE"`
		CaptureBin   string `yaml:"capture_bin" env:"CAPTURE_BIN"`
		DetectionBin string `yaml:"detection_bin" env:"DETECTION_BIN"`
		ROIConfigDir string `yaml:"roi_config_dir" env:"ROI_CONFIG_DIR"`
	} `yaml:"paths"`

	Scaling struct {
		MinWorkers           int     `yaml:"min_workers" env:"MIN_WORKERS"`
		MaxWorkers           int     `yaml:"max_workers" env:"MAX_WORKERS"`
		TempScaleUp          float64 `yaml:"temp_scale_up"`
		TempScaleDown        float64 `yaml:"temp_scale_down"`
		TempEmergency        float64 `yaml:"temp_emergency"`
		UtilScaleUp          float64 `yaml:"util_scale_up"`
		UtilScaleDown        float64 `yaml:"util_scale_down"`
		MemFreeScaleUpGB     float64 `yaml:"mem_free_scale_up_gb"`
		MemFreeScaleDownGB   float64 `yaml:"mem_free_scale_down_gb"`
		CooldownSeconds      int     `yaml:"cooldown_seconds" env:"SCALE_COOLDOWN_SECONDS"`
		EmergencyHoldSeconds int     `yaml:"emergency_hold_seconds"`
		CheckIntervalSeconds int     `yaml:"check_interval_seconds"`
	} `yaml:"scaling"`

	Schedule struct {
		CaptureWindows   []models.TimeWindow `yaml:"capture_windows"`
		ProcessingWindow models.TimeWindow   `yaml:"processing_window"`
		// TargetHour is the checkpoint at which a still-running
		// processing run draws a warning (never a kill).
		TargetHour          int `yaml:"target_hour"`
		TickSeconds         int `yaml:"tick_seconds"`
		HealthCheckSeconds  int `yaml:"health_check_seconds"`
		StopGracefulSeconds int `yaml:"stop_graceful_seconds"`
		StopForceSeconds    int `yaml:"stop_force_seconds"`
	} `yaml:"schedule"`

	Postgres struct {
		DSN          string `yaml:"dsn" env:"DATABASE_DSN"`
		SyncSeconds  int    `yaml:"sync_seconds"`
		BatchSize    int    `yaml:"batch_size"`
		SessionTable string `yaml:"session_table"`
	} `yaml:"postgres"`

	Kafka struct {
		Brokers     []string `yaml:"brokers" env:"KAFKA_BROKERS" envSeparator:","`
		EventsTopic string   `yaml:"events_topic" env:"EVENTS_TOPIC"`
	} `yaml:"kafka"`

	Minio struct {
		Endpoint      string  `yaml:"endpoint" env:"MINIO_ENDPOINT"`
		AccessKey     string  `yaml:"access_key" env:"MINIO_ACCESS_KEY"`
		SecretKey     string  `yaml:"secret_key" env:"MINIO_SECRET_KEY"`
		Bucket        string  `yaml:"bucket" env:"MINIO_BUCKET"`
		RetentionDays int     `yaml:"retention_days"`
		DiskWarnPct   float64 `yaml:"disk_warn_pct"`
		CheckSeconds  int     `yaml:"check_seconds"`
	} `yaml:"minio"`

	API struct {
		Addr string `yaml:"addr" env:"API_ADDR"`
	} `yaml:"api"`
}

// Default returns the reference configuration: dual meal-service capture
// windows, midnight processing start, RTX 3060 thermal envelope.
func Default() *Config {
	cfg := &Config{}

	cfg.Paths.VideosDir = "videos"
	cfg.Paths.LogsDir = "logs"
	cfg.Paths.DatabasePath = "db/detection_data.db"
	cfg.Paths.PIDFile = "surveillance_service.pid"
	cfg.Paths.CaptureBin = "capture_rtsp_streams"
	cfg.Paths.DetectionBin = "table_and_region_state_detection"
	cfg.Paths.ROIConfigDir = "config"

	cfg.Scaling.MinWorkers = 1
	cfg.Scaling.MaxWorkers = 8
	cfg.Scaling.TempScaleUp = 70
	cfg.Scaling.TempScaleDown = 75
	cfg.Scaling.TempEmergency = 80
	cfg.Scaling.UtilScaleUp = 70
	cfg.Scaling.UtilScaleDown = 85
	cfg.Scaling.MemFreeScaleUpGB = 2.0
	cfg.Scaling.MemFreeScaleDownGB = 1.0
	cfg.Scaling.CooldownSeconds = 60
	cfg.Scaling.EmergencyHoldSeconds = 120
	cfg.Scaling.CheckIntervalSeconds = 30

	cfg.Schedule.CaptureWindows = []models.TimeWindow{
		{Name: "morning", StartHour: 11, StartMinute: 30, EndHour: 14, EndMinute: 0},
		{Name: "evening", StartHour: 17, StartMinute: 30, EndHour: 22, EndMinute: 0},
	}
	cfg.Schedule.ProcessingWindow = models.TimeWindow{Name: "processing", StartHour: 0, StartMinute: 0, EndHour: 23, EndMinute: 0}
	cfg.Schedule.TargetHour = 23
	cfg.Schedule.TickSeconds = 30
	cfg.Schedule.HealthCheckSeconds = 1800
	cfg.Schedule.StopGracefulSeconds = 30
	cfg.Schedule.StopForceSeconds = 5

	cfg.Postgres.SyncSeconds = 3600
	cfg.Postgres.BatchSize = 100
	cfg.Postgres.SessionTable = "ase_sessions"

	cfg.Kafka.EventsTopic = "surveillance-events"

	cfg.Minio.Bucket = "processed-videos"
	cfg.Minio.RetentionDays = 14
	cfg.Minio.DiskWarnPct = 85
	cfg.Minio.CheckSeconds = 3600

	cfg.API.Addr = "127.0.0.1:8002"

	return cfg
}

// Load reads the YAML file (if filename is non-empty), applies env
// overrides and validates the result.
func Load(filename string) (*Config, error) {
	cfg := Default()

	if filename != "" {
		data, err := os.ReadFile(filename)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", filename, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", filename, err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations that would break the scheduler or the
// scaler before the daemon enters its main loop.
func (c *Config) Validate() error {
	s := c.Scaling
	if s.MinWorkers < 1 {
		return fmt.Errorf("scaling: min_workers must be >= 1, got %d", s.MinWorkers)
	}
	if s.MinWorkers > s.MaxWorkers {
		return fmt.Errorf("scaling: min_workers %d > max_workers %d", s.MinWorkers, s.MaxWorkers)
	}
	if !(s.TempScaleUp < s.TempScaleDown && s.TempScaleDown < s.TempEmergency) {
		return fmt.Errorf("scaling: temperature thresholds must ascend (up %.0f < down %.0f < emergency %.0f)",
			s.TempScaleUp, s.TempScaleDown, s.TempEmergency)
	}
	if s.UtilScaleUp > s.UtilScaleDown {
		return fmt.Errorf("scaling: util_scale_up %.0f > util_scale_down %.0f", s.UtilScaleUp, s.UtilScaleDown)
	}
	if s.MemFreeScaleDownGB > s.MemFreeScaleUpGB {
		return fmt.Errorf("scaling: mem_free_scale_down_gb %.1f > mem_free_scale_up_gb %.1f",
			s.MemFreeScaleDownGB, s.MemFreeScaleUpGB)
	}
	if s.CooldownSeconds <= 0 || s.CheckIntervalSeconds <= 0 {
		return fmt.Errorf("scaling: cooldown and check interval must be positive")
	}
	if s.EmergencyHoldSeconds < s.CooldownSeconds {
		return fmt.Errorf("scaling: emergency_hold_seconds %d < cooldown_seconds %d", s.EmergencyHoldSeconds, s.CooldownSeconds)
	}

	windows := c.Schedule.CaptureWindows
	if len(windows) == 0 {
		return fmt.Errorf("schedule: at least one capture window is required")
	}
	for i, w := range windows {
		if err := validateWindow(w); err != nil {
			return fmt.Errorf("schedule: capture window %q: %w", w.Name, err)
		}
		for _, other := range windows[i+1:] {
			if w.Overlaps(other) {
				return fmt.Errorf("schedule: capture windows %q and %q overlap", w.Name, other.Name)
			}
		}
	}
	if err := validateWindow(c.Schedule.ProcessingWindow); err != nil {
		return fmt.Errorf("schedule: processing window: %w", err)
	}
	return nil
}

func validateWindow(w models.TimeWindow) error {
	if w.StartHour < 0 || w.StartHour > 23 || w.EndHour < 0 || w.EndHour > 23 ||
		w.StartMinute < 0 || w.StartMinute > 59 || w.EndMinute < 0 || w.EndMinute > 59 {
		return fmt.Errorf("out-of-range time %02d:%02d-%02d:%02d", w.StartHour, w.StartMinute, w.EndHour, w.EndMinute)
	}
	if w.StartHour*60+w.StartMinute >= w.EndHour*60+w.EndMinute {
		return fmt.Errorf("start %02d:%02d is not before end %02d:%02d", w.StartHour, w.StartMinute, w.EndHour, w.EndMinute)
	}
	return nil
}

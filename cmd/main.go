package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/aseofsmartice/surveillance-orchestrator/internal/api"
	"github.com/aseofsmartice/surveillance-orchestrator/internal/archive"
	"github.com/aseofsmartice/surveillance-orchestrator/internal/cloudsync"
	"github.com/aseofsmartice/surveillance-orchestrator/internal/config"
	"github.com/aseofsmartice/surveillance-orchestrator/internal/database"
	"github.com/aseofsmartice/surveillance-orchestrator/internal/events"
	"github.com/aseofsmartice/surveillance-orchestrator/internal/executor"
	"github.com/aseofsmartice/surveillance-orchestrator/internal/gpu"
	"github.com/aseofsmartice/surveillance-orchestrator/internal/orchestrator"
	"github.com/aseofsmartice/surveillance-orchestrator/internal/scheduler"
	"github.com/aseofsmartice/surveillance-orchestrator/internal/supervise"
)

func main() {
	var (
		configPath = flag.String("config", os.Getenv("CONFIG_PATH"), "path to YAML config")
		videosDir  = flag.String("videos-dir", "", "override videos directory")
		cameras    = flag.String("cameras", "", "comma-separated camera IDs to process (default: all)")
		minWorkers = flag.Int("min-workers", 0, "override minimum worker count")
		maxWorkers = flag.Int("max-workers", 0, "override maximum worker count")
		duration   = flag.Int("duration", 0, "process only first N seconds of each video (test runs)")
		list       = flag.Bool("list", false, "list discovered videos and exit")
		processNow = flag.Bool("process-now", false, "run one processing pass immediately and exit")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Config error: %v", err)
	}
	applyOverrides(cfg, *videosDir, *minWorkers, *maxWorkers)

	if err := os.MkdirAll(cfg.Paths.LogsDir, 0o755); err != nil {
		log.Fatalf("Cannot create logs directory: %v", err)
	}

	db, err := database.Open(cfg.Paths.DatabasePath)
	if err != nil {
		log.Fatalf("Database error: %v", err)
	}
	if err := db.Init(); err != nil {
		log.Fatalf("Database init error: %v", err)
	}
	defer db.Close()

	telemetry := gpu.NewMonitor()

	var producer *events.Producer
	if len(cfg.Kafka.Brokers) > 0 {
		producer, err = events.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.EventsTopic)
		if err != nil {
			log.Fatalf("Kafka error: %v", err)
		}
		defer producer.Close()
	}

	runner := &executor.DetectionRunner{
		Bin:          cfg.Paths.DetectionBin,
		ROIConfigDir: cfg.Paths.ROIConfigDir,
		LogsDir:      cfg.Paths.LogsDir,
	}

	orch := orchestrator.New(cfg, db, telemetry, producer, runner)
	if *cameras != "" {
		orch.SetCameraFilter(strings.Split(*cameras, ","))
	}
	if *duration > 0 {
		orch.SetDurationLimit(time.Duration(*duration) * time.Second)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// One-shot modes skip the daemon entirely.
	if *list {
		listVideos(ctx, orch)
		return
	}
	if *processNow {
		if _, err := orch.Run(ctx); err != nil {
			log.Fatalf("Processing run failed: %v", err)
		}
		return
	}

	pidFile := &supervise.PIDFile{Path: cfg.Paths.PIDFile}
	if err := pidFile.Acquire(); err != nil {
		log.Fatalf("Startup error: %v", err)
	}
	defer pidFile.Release()

	if _, err := os.Stat(cfg.Paths.DetectionBin); err != nil {
		log.Fatalf("Startup error: detection binary not found at %s", cfg.Paths.DetectionBin)
	}

	if cfg.Postgres.DSN != "" {
		syncer, err := cloudsync.New(db, cfg.Postgres.DSN, cfg.Postgres.SessionTable,
			cfg.Postgres.BatchSize, cfg.Postgres.SyncSeconds)
		if err != nil {
			log.Fatalf("Cloud sync error: %v", err)
		}
		defer syncer.Close()
		go syncer.Run(ctx)
	}

	if cfg.Minio.Endpoint != "" {
		archiver, err := archive.New(cfg.Minio.Endpoint, cfg.Minio.AccessKey, cfg.Minio.SecretKey,
			cfg.Minio.Bucket, cfg.Paths.VideosDir, cfg.Minio.RetentionDays,
			cfg.Minio.DiskWarnPct, cfg.Minio.CheckSeconds)
		if err != nil {
			log.Fatalf("Archive error: %v", err)
		}
		go archiver.Run(ctx)
	}

	service := scheduler.New(cfg, orch, producer)

	handlers := api.NewHandlers(service, orch, telemetry)
	go func() {
		log.Printf("Starting status API on %s", cfg.API.Addr)
		if err := http.ListenAndServe(cfg.API.Addr, handlers.Router()); err != nil {
			log.Printf("Status API stopped: %v", err)
		}
	}()

	go service.Run(ctx)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	sig := <-stop

	log.Printf("Received signal %s, shutting down gracefully...", sig)
	cancel()
	service.Stop()
	log.Println("Service stopped")
}

func applyOverrides(cfg *config.Config, videosDir string, minWorkers, maxWorkers int) {
	if videosDir != "" {
		cfg.Paths.VideosDir = videosDir
	}
	if minWorkers > 0 {
		cfg.Scaling.MinWorkers = minWorkers
	}
	if maxWorkers > 0 {
		cfg.Scaling.MaxWorkers = maxWorkers
	}
	if cfg.Scaling.MinWorkers > cfg.Scaling.MaxWorkers {
		log.Fatalf("Startup error: min-workers %d > max-workers %d", cfg.Scaling.MinWorkers, cfg.Scaling.MaxWorkers)
	}
}

func listVideos(ctx context.Context, orch *orchestrator.Orchestrator) {
	jobs, summary, err := orch.Discover(ctx)
	if err != nil {
		log.Fatalf("Discovery failed: %v", err)
	}
	summary.Log()
	for _, job := range jobs {
		log.Printf("  %d - %s", job.Priority, job.VideoName)
	}
}

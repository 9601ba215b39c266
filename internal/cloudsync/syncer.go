package cloudsync

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/aseofsmartice/surveillance-orchestrator/internal/database"
)

// Syncer pushes local processing-job audit rows to the cloud Postgres
// sink in batches. One failed cycle is absorbed and retried on the next
// interval; rows stay marked unsynced until the insert commits.
type Syncer struct {
	local     *database.Database
	cloud     *sql.DB
	table     string
	batchSize int
	interval  time.Duration
}

func New(local *database.Database, dsn, table string, batchSize, intervalSeconds int) (*Syncer, error) {
	cloud, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open cloud database: %w", err)
	}
	if err := cloud.Ping(); err != nil {
		return nil, fmt.Errorf("ping cloud database: %w", err)
	}

	s := &Syncer{
		local:     local,
		cloud:     cloud,
		table:     table,
		batchSize: batchSize,
		interval:  time.Duration(intervalSeconds) * time.Second,
	}
	if err := s.init(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Syncer) init() error {
	_, err := s.cloud.Exec(fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS %s (
		id TEXT PRIMARY KEY,
		run_id TEXT NOT NULL,
		camera_id TEXT NOT NULL,
		video_file TEXT NOT NULL,
		outcome TEXT NOT NULL,
		duration_ms BIGINT NOT NULL,
		created_at TIMESTAMP NOT NULL
	)`, s.table))
	if err != nil {
		return fmt.Errorf("init cloud table %s: %w", s.table, err)
	}
	return nil
}

func (s *Syncer) Close() error {
	return s.cloud.Close()
}

// Run syncs on a fixed interval until ctx is cancelled. A final sync
// runs on shutdown so the last batch of the day is not lost.
func (s *Syncer) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	log.Printf("CloudSync: syncing every %s (batch size %d)", s.interval, s.batchSize)

	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			s.SyncOnce(flushCtx)
			cancel()
			log.Println("CloudSync: stopped")
			return
		case <-ticker.C:
			if n, err := s.SyncOnce(ctx); err != nil {
				log.Printf("CloudSync: sync failed, will retry next cycle: %v", err)
			} else if n > 0 {
				log.Printf("CloudSync: synced %d record(s)", n)
			}
		}
	}
}

// SyncOnce drains unsynced local rows in batches. Returns the number of
// records delivered.
func (s *Syncer) SyncOnce(ctx context.Context) (int, error) {
	total := 0
	for {
		records, err := s.local.UnsyncedJobs(ctx, s.batchSize)
		if err != nil {
			return total, err
		}
		if len(records) == 0 {
			return total, nil
		}

		tx, err := s.cloud.BeginTx(ctx, nil)
		if err != nil {
			return total, fmt.Errorf("begin cloud transaction: %w", err)
		}

		stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`
			INSERT INTO %s (id, run_id, camera_id, video_file, outcome, duration_ms, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (id) DO NOTHING`, s.table))
		if err != nil {
			tx.Rollback()
			return total, fmt.Errorf("prepare cloud insert: %w", err)
		}

		ids := make([]string, 0, len(records))
		for _, rec := range records {
			if _, err := stmt.ExecContext(ctx, rec.ID, rec.RunID, rec.CameraID, rec.VideoFile,
				string(rec.Outcome), rec.DurationMS, rec.CreatedAt); err != nil {
				stmt.Close()
				tx.Rollback()
				return total, fmt.Errorf("insert record %s: %w", rec.ID, err)
			}
			ids = append(ids, rec.ID)
		}
		stmt.Close()

		if err := tx.Commit(); err != nil {
			return total, fmt.Errorf("commit cloud batch: %w", err)
		}

		if err := s.local.MarkSynced(ctx, ids); err != nil {
			// The cloud insert is idempotent on id, so a failed local
			// mark only means the batch is re-sent next cycle.
			return total, fmt.Errorf("mark records synced: %w", err)
		}
		total += len(ids)
	}
}

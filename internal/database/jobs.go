package database

import (
	"context"
	"fmt"
	"strings"

	"github.com/aseofsmartice/surveillance-orchestrator/internal/models"
)

// ProcessedVideos returns the set of video filenames already recorded
// by the detection subprocess. Discovery uses this as its dedup source.
func (d *Database) ProcessedVideos(ctx context.Context) (map[string]struct{}, error) {
	rows, err := d.DB.QueryContext(ctx, `
		SELECT DISTINCT video_file
		FROM sessions
		WHERE video_file IS NOT NULL
	`)
	if err != nil {
		return nil, fmt.Errorf("query processed videos: %w", err)
	}
	defer rows.Close()

	processed := make(map[string]struct{})
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		processed[name] = struct{}{}
	}

	return processed, rows.Err()
}

// RecordJob writes one audit row for a finished job.
func (d *Database) RecordJob(ctx context.Context, rec models.SessionRecord) error {
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO processing_jobs (id, run_id, camera_id, video_file, outcome, duration_ms, created_at, synced)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0)
		ON CONFLICT (id) DO NOTHING`,
		rec.ID,
		rec.RunID,
		rec.CameraID,
		rec.VideoFile,
		string(rec.Outcome),
		rec.DurationMS,
		rec.CreatedAt,
	)
	return err
}

// UnsyncedJobs returns up to limit audit rows not yet pushed to the
// cloud sink, oldest first.
func (d *Database) UnsyncedJobs(ctx context.Context, limit int) ([]models.SessionRecord, error) {
	rows, err := d.DB.QueryContext(ctx, `
		SELECT id, run_id, camera_id, video_file, outcome, duration_ms, created_at
		FROM processing_jobs
		WHERE synced = 0
		ORDER BY created_at
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query unsynced jobs: %w", err)
	}
	defer rows.Close()

	var records []models.SessionRecord
	for rows.Next() {
		var rec models.SessionRecord
		var outcome string
		if err := rows.Scan(&rec.ID, &rec.RunID, &rec.CameraID, &rec.VideoFile, &outcome, &rec.DurationMS, &rec.CreatedAt); err != nil {
			return nil, err
		}
		rec.Outcome = models.JobOutcome(outcome)
		records = append(records, rec)
	}

	return records, rows.Err()
}

// MarkSynced flags the given audit rows as delivered to the cloud sink.
func (d *Database) MarkSynced(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}

	_, err := d.DB.ExecContext(ctx,
		fmt.Sprintf("UPDATE processing_jobs SET synced = 1 WHERE id IN (%s)", strings.Join(placeholders, ", ")),
		args...)
	return err
}

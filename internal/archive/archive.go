package archive

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

var dateDirRe = regexp.MustCompile(`^\d{8}$`)

// Archiver moves processed video days past retention to S3-compatible
// storage and deletes the local copies, keeping the edge disk from
// filling up between manual cleanups.
type Archiver struct {
	client        *minio.Client
	bucket        string
	videosDir     string
	retentionDays int
	diskWarnPct   float64
	interval      time.Duration
}

func New(endpoint, accessKey, secretKey, bucket, videosDir string, retentionDays int, diskWarnPct float64, checkSeconds int) (*Archiver, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: false,
	})
	if err != nil {
		return nil, fmt.Errorf("create MinIO client: %w", err)
	}

	return &Archiver{
		client:        client,
		bucket:        bucket,
		videosDir:     videosDir,
		retentionDays: retentionDays,
		diskWarnPct:   diskWarnPct,
		interval:      time.Duration(checkSeconds) * time.Second,
	}, nil
}

// Run performs the disk check and retention archive on a fixed
// interval until ctx is cancelled.
func (a *Archiver) Run(ctx context.Context) {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	log.Printf("Archive: checking disk and retention every %s (keep %d days)", a.interval, a.retentionDays)

	for {
		select {
		case <-ctx.Done():
			log.Println("Archive: stopped")
			return
		case <-ticker.C:
			if pct, err := DiskUsagePercent(a.videosDir); err != nil {
				log.Printf("Archive: disk check failed: %v", err)
			} else if pct >= a.diskWarnPct {
				log.Printf("Archive: WARNING: disk usage %.1f%% >= %.1f%%", pct, a.diskWarnPct)
			}

			if n, err := a.ArchiveExpired(ctx); err != nil {
				log.Printf("Archive: archival cycle failed: %v", err)
			} else if n > 0 {
				log.Printf("Archive: uploaded and removed %d video(s)", n)
			}
		}
	}
}

// ArchiveExpired uploads every video under a dated directory older than
// the retention cutoff, deleting each local file only after its upload
// succeeds. Returns the number of files moved.
func (a *Archiver) ArchiveExpired(ctx context.Context) (int, error) {
	cutoff := time.Now().AddDate(0, 0, -a.retentionDays).Format("20060102")

	entries, err := os.ReadDir(a.videosDir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("read videos dir: %w", err)
	}

	moved := 0
	for _, entry := range entries {
		if !entry.IsDir() || !dateDirRe.MatchString(entry.Name()) || entry.Name() >= cutoff {
			continue
		}

		dayDir := filepath.Join(a.videosDir, entry.Name())
		err := filepath.Walk(dayDir, func(path string, info os.FileInfo, err error) error {
			if err != nil || info.IsDir() {
				return err
			}

			key, relErr := filepath.Rel(a.videosDir, path)
			if relErr != nil {
				return relErr
			}

			if _, err := a.client.FPutObject(ctx, a.bucket, key, path, minio.PutObjectOptions{
				ContentType: "video/mp4",
			}); err != nil {
				return fmt.Errorf("upload %s: %w", key, err)
			}

			if err := os.Remove(path); err != nil {
				return fmt.Errorf("remove archived %s: %w", path, err)
			}
			moved++
			return nil
		})
		if err != nil {
			return moved, err
		}

		// Day directory may still hold camera subdirs; drop them when empty.
		removeEmptyDirs(dayDir)
	}

	return moved, nil
}

func removeEmptyDirs(root string) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return
	}
	for _, e := range entries {
		if e.IsDir() {
			removeEmptyDirs(filepath.Join(root, e.Name()))
		}
	}
	if entries, err = os.ReadDir(root); err == nil && len(entries) == 0 {
		os.Remove(root)
	}
}

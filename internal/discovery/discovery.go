package discovery

import (
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"time"

	"github.com/samber/lo"

	"github.com/aseofsmartice/surveillance-orchestrator/internal/models"
)

// Filenames follow camera_{id}_{YYYYMMDD}_{HHMMSS}[_partN].mp4.
var (
	fileNameRe = regexp.MustCompile(`^(camera_\d+)_(\d{8})_(\d{6})(?:_part\d+)?\.mp4$`)
	dateDirRe  = regexp.MustCompile(`^\d{8}$`)
)

// Summary reports what one scan found and why files were excluded.
type Summary struct {
	TotalFound       int            `json:"total_found"`
	SkippedToday     int            `json:"skipped_today"`
	SkippedDuplicate int            `json:"skipped_duplicate"`
	SkippedMalformed int            `json:"skipped_malformed"`
	SkippedFiltered  int            `json:"skipped_filtered"`
	Added            int            `json:"added"`
	PerCamera        map[string]int `json:"per_camera"`
}

// Scanner discovers processing jobs under the dated video tree.
type Scanner struct {
	VideosDir     string
	CameraFilter  []string
	ConfigPath    string
	DurationLimit time.Duration
	Now           func() time.Time
}

// Scan enumerates videos/<YYYYMMDD>/<cameraID>/*.mp4, excludes today's
// date (still being written by capture) and anything in processed, and
// returns the surviving jobs sorted oldest-first plus a summary.
//
// A filename that doesn't parse is logged and skipped; it never aborts
// the scan.
func (s *Scanner) Scan(processed map[string]struct{}) ([]*models.Job, Summary, error) {
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	today := now().Format("20060102")

	summary := Summary{PerCamera: make(map[string]int)}
	var jobs []*models.Job

	if _, err := os.Stat(s.VideosDir); os.IsNotExist(err) {
		log.Printf("Discovery: videos directory %s does not exist", s.VideosDir)
		return nil, summary, nil
	}

	err := filepath.WalkDir(s.VideosDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || filepath.Ext(d.Name()) != ".mp4" {
			return nil
		}
		summary.TotalFound++

		job, date, err := parseVideoPath(path)
		if err != nil {
			summary.SkippedMalformed++
			log.Printf("Discovery: skipping malformed name %s: %v", d.Name(), err)
			return nil
		}

		if len(s.CameraFilter) > 0 && !lo.Contains(s.CameraFilter, job.CameraID) {
			summary.SkippedFiltered++
			return nil
		}

		if date == today {
			summary.SkippedToday++
			return nil
		}

		if _, ok := processed[job.VideoName]; ok {
			summary.SkippedDuplicate++
			return nil
		}

		job.ConfigPath = s.ConfigPath
		job.DurationLimit = s.DurationLimit
		jobs = append(jobs, job)
		summary.Added++
		summary.PerCamera[job.CameraID]++
		return nil
	})
	if err != nil {
		return nil, summary, fmt.Errorf("scan %s: %w", s.VideosDir, err)
	}

	sort.Slice(jobs, func(i, j int) bool { return jobs[i].Priority < jobs[j].Priority })
	return jobs, summary, nil
}

// parseVideoPath extracts camera ID, capture date and priority from a
// video path. The date comes from the YYYYMMDD directory when present,
// falling back to the date embedded in the filename.
func parseVideoPath(path string) (*models.Job, string, error) {
	name := filepath.Base(path)
	m := fileNameRe.FindStringSubmatch(name)
	if m == nil {
		return nil, "", fmt.Errorf("name does not match camera_<id>_<date>_<time>.mp4")
	}
	cameraID, fileDate, fileTime := m[1], m[2], m[3]

	date := fileDate
	for _, part := range splitPath(path) {
		if dateDirRe.MatchString(part) {
			date = part
			break
		}
	}

	// Numeric YYYYMMDDHHMMSS keeps lexical and numeric order identical.
	priority, err := strconv.ParseInt(fileDate+fileTime, 10, 64)
	if err != nil {
		return nil, "", fmt.Errorf("parse timestamp %s_%s: %w", fileDate, fileTime, err)
	}

	return &models.Job{
		CameraID:   cameraID,
		SourcePath: path,
		VideoName:  name,
		Priority:   priority,
	}, date, nil
}

func splitPath(path string) []string {
	dir := filepath.Dir(path)
	var parts []string
	for dir != "." && dir != string(filepath.Separator) && dir != "" {
		parts = append(parts, filepath.Base(dir))
		next := filepath.Dir(dir)
		if next == dir {
			break
		}
		dir = next
	}
	return parts
}

// Log writes the scan outcome in the per-camera form operators grep
// for after a nightly run.
func (s Summary) Log() {
	log.Println("Video discovery summary:")
	log.Printf("  Total videos found: %d", s.TotalFound)
	log.Printf("  Skipped (today): %d", s.SkippedToday)
	log.Printf("  Skipped (already processed): %d", s.SkippedDuplicate)
	log.Printf("  Skipped (malformed): %d", s.SkippedMalformed)
	log.Printf("  Skipped (camera filter): %d", s.SkippedFiltered)
	log.Printf("  Added to queue: %d", s.Added)

	cameras := lo.Keys(s.PerCamera)
	sort.Strings(cameras)
	for _, cam := range cameras {
		log.Printf("  %s: %d video(s)", cam, s.PerCamera[cam])
	}
}

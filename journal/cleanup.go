package journal

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Config controls journal file retention
type Config struct {
	// RetentionDays is how long journal files are kept
	RetentionDays int
	// FilePrefix for journal files
	FilePrefix string
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		RetentionDays: 30,
		FilePrefix:    "kinos",
	}
}

// CleanupStats reports what a cleanup removed
type CleanupStats struct {
	FilesRemoved  int
	BytesFreed    int64
	OldestRemoved time.Time
	NewestRemoved time.Time
}

// Cleanup removes journal files older than the retention period
func Cleanup(dir string, config Config) error {
	_, err := CleanupWithStats(dir, config)
	return err
}

// CleanupWithStats removes old journal files and reports statistics
func CleanupWithStats(dir string, config Config) (*CleanupStats, error) {
	if config.RetentionDays <= 0 {
		return &CleanupStats{}, nil
	}

	cutoff := time.Now().Add(-time.Duration(config.RetentionDays) * 24 * time.Hour)

	files, err := filepath.Glob(filepath.Join(dir, config.FilePrefix+"-*.journal"))
	if err != nil {
		return nil, fmt.Errorf("failed to list journal files: %w", err)
	}

	stats := &CleanupStats{}
	for _, file := range files {
		info, err := os.Stat(file)
		if err != nil {
			continue
		}

		if info.ModTime().Before(cutoff) {
			size := info.Size()
			if err := os.Remove(file); err != nil {
				return stats, fmt.Errorf("failed to remove %s: %w", file, err)
			}

			stats.FilesRemoved++
			stats.BytesFreed += size
			if stats.OldestRemoved.IsZero() || info.ModTime().Before(stats.OldestRemoved) {
				stats.OldestRemoved = info.ModTime()
			}
			if info.ModTime().After(stats.NewestRemoved) {
				stats.NewestRemoved = info.ModTime()
			}
		}
	}

	return stats, nil
}

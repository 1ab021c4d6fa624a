package database

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"remindbot/internal/config"
)

const backupPrefix = "backup_"

// BackupService takes consistent snapshots of the database on a cron schedule
// and removes snapshots older than the retention period.
type BackupService struct {
	db     *DB
	config config.BackupConfig
	logger zerolog.Logger
	now    func() time.Time
}

func NewBackupService(db *DB, cfg config.BackupConfig, logger zerolog.Logger) *BackupService {
	return &BackupService{
		db:     db,
		config: cfg,
		logger: logger.With().Str("component", "backup").Logger(),
		now:    time.Now,
	}
}

// Register adds the backup job to c. It does nothing when backups are disabled.
func (s *BackupService) Register(ctx context.Context, c *cron.Cron) error {
	if !s.config.Enabled {
		s.logger.Info().Msg("Backup service is disabled")
		return nil
	}

	_, err := c.AddFunc(s.config.Schedule, func() {
		if _, err := s.PerformBackup(ctx); err != nil {
			s.logger.Error().Err(err).Msg("Scheduled backup failed")
			return
		}
		s.CleanupOldBackups()
	})
	if err != nil {
		return fmt.Errorf("schedule backup %q: %w", s.config.Schedule, err)
	}

	s.logger.Info().Str("schedule", s.config.Schedule).Msg("Backup service scheduled")
	return nil
}

// PerformBackup writes a snapshot of the database and returns its path.
// VACUUM INTO reads through SQLite, so the snapshot is consistent under WAL.
func (s *BackupService) PerformBackup(ctx context.Context) (string, error) {
	if err := os.MkdirAll(s.config.StoragePath, 0o755); err != nil {
		return "", fmt.Errorf("failed to create backup directory: %w", err)
	}

	timestamp := s.now().UTC().Format("20060102_150405")
	backupPath := filepath.Join(s.config.StoragePath, fmt.Sprintf("%s%s.db", backupPrefix, timestamp))

	s.logger.Info().
		Str("source", s.db.Path()).
		Str("path", backupPath).
		Msg("Performing database backup")

	if _, err := s.db.ExecContext(ctx, `VACUUM INTO ?`, backupPath); err != nil {
		return "", fmt.Errorf("vacuum into %s: %w", backupPath, err)
	}

	s.logger.Info().Msg("Backup completed successfully")
	return backupPath, nil
}

// CleanupOldBackups removes snapshots older than RetentionDays.
func (s *BackupService) CleanupOldBackups() int {
	if s.config.RetentionDays <= 0 {
		return 0
	}

	files, err := os.ReadDir(s.config.StoragePath)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to read backup directory for cleanup")
		return 0
	}

	cutoff := s.now().AddDate(0, 0, -s.config.RetentionDays)
	removed := 0

	for _, file := range files {
		if file.IsDir() || !strings.HasPrefix(file.Name(), backupPrefix) {
			continue
		}

		info, err := file.Info()
		if err != nil {
			continue
		}

		if info.ModTime().Before(cutoff) {
			s.logger.Info().Str("file", file.Name()).Msg("Deleting old backup")
			if err := os.Remove(filepath.Join(s.config.StoragePath, file.Name())); err != nil {
				s.logger.Warn().Err(err).Str("file", file.Name()).Msg("Failed to delete old backup")
				continue
			}
			removed++
		}
	}
	return removed
}

package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/sahilchouksey/study-artifacts/model"
)

// ExpireStaleSessions cancels PENDING sessions older than the configured TTL
func (m *CronManager) ExpireStaleSessions(ctx context.Context) {
	id := m.logJobStart(ctx, JobExpireStaleSessions)

	n, err := m.expirer.ExpireStale(ctx, m.cfg.StaleSessionTTL)
	if err != nil {
		m.logJobError(ctx, id, JobExpireStaleSessions, fmt.Errorf("failed to expire sessions: %w", err))
		return
	}

	m.logJobComplete(ctx, id, JobExpireStaleSessions, n,
		fmt.Sprintf("Cancelled %d sessions pending for more than %s", n, m.cfg.StaleSessionTTL))
}

// FailStuckSessions fails PROCESSING sessions whose run was lost
func (m *CronManager) FailStuckSessions(ctx context.Context) {
	id := m.logJobStart(ctx, JobFailStuckSessions)

	n, err := m.expirer.FailStuck(ctx, m.cfg.StuckRunTTL)
	if err != nil {
		m.logJobError(ctx, id, JobFailStuckSessions, fmt.Errorf("failed to recover stuck sessions: %w", err))
		return
	}

	m.logJobComplete(ctx, id, JobFailStuckSessions, n,
		fmt.Sprintf("Failed %d sessions processing for more than %s", n, m.cfg.StuckRunTTL))
}

// CleanupJobLogs removes job log rows past the retention window
func (m *CronManager) CleanupJobLogs(ctx context.Context) {
	id := m.logJobStart(ctx, JobCleanupJobLogs)

	cutoff := time.Now().Add(-m.cfg.JobLogRetention)
	result := m.db.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&model.CronJobLog{})
	if result.Error != nil {
		m.logJobError(ctx, id, JobCleanupJobLogs, fmt.Errorf("failed to clean cron logs: %w", result.Error))
		return
	}

	log.Infof("[CRON] Cleaned %d old cron logs", result.RowsAffected)
	m.logJobComplete(ctx, id, JobCleanupJobLogs, int(result.RowsAffected),
		fmt.Sprintf("Cleaned %d cron logs older than %s", result.RowsAffected, cutoff.Format(time.DateOnly)))
}

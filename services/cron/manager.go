package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/robfig/cron/v3"
	"gorm.io/gorm"

	"github.com/sahilchouksey/study-artifacts/model"
)

const (
	JobExpireStaleSessions = "expire_stale_sessions"
	JobFailStuckSessions   = "fail_stuck_sessions"
	JobCleanupJobLogs      = "cleanup_job_logs"
)

// Expirer closes sessions nobody will finish: registered but never
// submitted, or processing on an instance that went away
type Expirer interface {
	ExpireStale(ctx context.Context, olderThan time.Duration) (int, error)
	FailStuck(ctx context.Context, olderThan time.Duration) (int, error)
}

// Config holds the schedule settings
type Config struct {
	StaleSessionTTL time.Duration
	StuckRunTTL     time.Duration
	JobLogRetention time.Duration
	ExpireSchedule  string
	StuckSchedule   string
	CleanupSchedule string
}

// DefaultConfig expires day-old pending sessions every 10 minutes, fails
// runs started more than 2 hours ago every 15 minutes and prunes job logs
// older than 90 days daily at 2 AM
func DefaultConfig() Config {
	return Config{
		StaleSessionTTL: 24 * time.Hour,
		StuckRunTTL:     2 * time.Hour,
		JobLogRetention: 90 * 24 * time.Hour,
		ExpireSchedule:  "0 */10 * * * *",
		StuckSchedule:   "0 */15 * * * *",
		CleanupSchedule: "0 0 2 * * *",
	}
}

// CronManager manages all scheduled cron jobs
type CronManager struct {
	cron    *cron.Cron
	db      *gorm.DB
	expirer Expirer
	cfg     Config
}

// NewCronManager creates a new cron manager. db may be nil, in which case
// job runs are only logged.
func NewCronManager(db *gorm.DB, expirer Expirer, cfg Config) *CronManager {
	// a slow run is skipped rather than stacked behind the next tick
	c := cron.New(
		cron.WithSeconds(),
		cron.WithChain(cron.Recover(cronLogger{}), cron.SkipIfStillRunning(cronLogger{})),
	)

	return &CronManager{
		cron:    c,
		db:      db,
		expirer: expirer,
		cfg:     cfg,
	}
}

// Start registers the jobs and starts the scheduler
func (m *CronManager) Start() error {
	log.Info("[CRON] Starting cron jobs...")
	for _, job := range m.jobs() {
		_, err := m.cron.AddFunc(job.schedule, func() {
			ctx, cancel := context.WithTimeout(context.Background(), job.timeout)
			defer cancel()
			job.run(ctx)
		})
		if err != nil {
			return fmt.Errorf("invalid schedule %q for %s: %w", job.schedule, job.name, err)
		}
		log.Infof("[CRON] Registered %s (%s)", job.name, job.schedule)
	}
	m.cron.Start()
	return nil
}

// Stop stops the scheduler and waits for running jobs
func (m *CronManager) Stop() {
	log.Info("[CRON] Stopping cron jobs...")
	<-m.cron.Stop().Done()
	log.Info("[CRON] Cron jobs stopped")
}

type job struct {
	name     string
	schedule string
	timeout  time.Duration
	run      func(ctx context.Context)
}

func (m *CronManager) jobs() []job {
	jobs := []job{
		{JobExpireStaleSessions, m.cfg.ExpireSchedule, 5 * time.Minute, m.ExpireStaleSessions},
		{JobFailStuckSessions, m.cfg.StuckSchedule, 5 * time.Minute, m.FailStuckSessions},
	}
	// log retention needs somewhere to delete from
	if m.db != nil {
		jobs = append(jobs, job{JobCleanupJobLogs, m.cfg.CleanupSchedule, 10 * time.Minute, m.CleanupJobLogs})
	}
	return jobs
}

// cronLogger routes scheduler messages to the app log
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	log.Debugf("[CRON] %s %v", msg, keysAndValues)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	log.Errorf("[CRON] %s: %v %v", msg, err, keysAndValues)
}

// logJobStart records the start of a job run and returns its log row id
func (m *CronManager) logJobStart(ctx context.Context, jobName string) uint {
	log.Infof("[CRON] Starting job: %s at %s", jobName, time.Now().Format(time.RFC3339))

	if m.db == nil {
		return 0
	}
	cronLog := model.CronJobLog{
		JobName:   jobName,
		Status:    "running",
		StartedAt: time.Now(),
	}
	if err := m.db.WithContext(ctx).Create(&cronLog).Error; err != nil {
		log.Warnf("[CRON] Failed to record start of %s: %v", jobName, err)
		return 0
	}
	return cronLog.ID
}

// logJobComplete logs successful completion of a cron job
func (m *CronManager) logJobComplete(ctx context.Context, id uint, jobName string, affected int, message string) {
	log.Infof("[CRON] Completed job: %s - %s", jobName, message)
	m.finishLog(ctx, id, map[string]interface{}{
		"status":       "completed",
		"completed_at": time.Now(),
		"affected":     affected,
		"message":      message,
	})
}

// logJobError logs a cron job error
func (m *CronManager) logJobError(ctx context.Context, id uint, jobName string, err error) {
	log.Errorf("[CRON] Error in job: %s - %v", jobName, err)
	m.finishLog(ctx, id, map[string]interface{}{
		"status":       "failed",
		"completed_at": time.Now(),
		"error_msg":    err.Error(),
	})
}

func (m *CronManager) finishLog(ctx context.Context, id uint, updates map[string]interface{}) {
	if m.db == nil || id == 0 {
		return
	}
	// the job's own context may have expired
	ctx = context.WithoutCancel(ctx)
	if err := m.db.WithContext(ctx).Model(&model.CronJobLog{}).Where("id = ?", id).Updates(updates).Error; err != nil {
		log.Warnf("[CRON] Failed to update job log %d: %v", id, err)
	}
}

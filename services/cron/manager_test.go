package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/sahilchouksey/study-artifacts/model"
)

type fakeExpirer struct {
	n      int
	err    error
	gotTTL time.Duration

	stuck       int
	gotStuckTTL time.Duration
}

func (f *fakeExpirer) ExpireStale(_ context.Context, olderThan time.Duration) (int, error) {
	f.gotTTL = olderThan
	return f.n, f.err
}

func (f *fakeExpirer) FailStuck(_ context.Context, olderThan time.Duration) (int, error) {
	f.gotStuckTTL = olderThan
	return f.stuck, f.err
}

func newDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(&model.CronJobLog{}))
	return db
}

func TestExpireStaleSessions_LogsRun(t *testing.T) {
	db := newDB(t)
	exp := &fakeExpirer{n: 3}
	m := NewCronManager(db, exp, DefaultConfig())

	m.ExpireStaleSessions(context.Background())

	assert.Equal(t, 24*time.Hour, exp.gotTTL)

	var logs []model.CronJobLog
	require.NoError(t, db.Find(&logs).Error)
	require.Len(t, logs, 1)
	assert.Equal(t, JobExpireStaleSessions, logs[0].JobName)
	assert.Equal(t, "completed", logs[0].Status)
	assert.Equal(t, 3, logs[0].Affected)
	assert.NotNil(t, logs[0].CompletedAt)
}

func TestFailStuckSessions_LogsRun(t *testing.T) {
	db := newDB(t)
	exp := &fakeExpirer{stuck: 2}
	m := NewCronManager(db, exp, DefaultConfig())

	m.FailStuckSessions(context.Background())

	assert.Equal(t, 2*time.Hour, exp.gotStuckTTL)
	assert.Zero(t, exp.gotTTL)

	var entry model.CronJobLog
	require.NoError(t, db.First(&entry).Error)
	assert.Equal(t, JobFailStuckSessions, entry.JobName)
	assert.Equal(t, "completed", entry.Status)
	assert.Equal(t, 2, entry.Affected)
}

func TestExpireStaleSessions_Failure(t *testing.T) {
	db := newDB(t)
	m := NewCronManager(db, &fakeExpirer{err: errors.New("connection refused")}, DefaultConfig())

	m.ExpireStaleSessions(context.Background())

	var entry model.CronJobLog
	require.NoError(t, db.First(&entry).Error)
	assert.Equal(t, "failed", entry.Status)
	assert.Contains(t, entry.ErrorMsg, "connection refused")
}

func TestExpireStaleSessions_WithoutDatabase(t *testing.T) {
	exp := &fakeExpirer{n: 1}
	m := NewCronManager(nil, exp, DefaultConfig())
	m.ExpireStaleSessions(context.Background())
	assert.Equal(t, 24*time.Hour, exp.gotTTL)
}

func TestCleanupJobLogs(t *testing.T) {
	db := newDB(t)
	old := model.CronJobLog{JobName: JobExpireStaleSessions, Status: "completed", StartedAt: time.Now().Add(-100 * 24 * time.Hour)}
	require.NoError(t, db.Create(&old).Error)
	require.NoError(t, db.Model(&old).Update("created_at", time.Now().Add(-100*24*time.Hour)).Error)

	m := NewCronManager(db, &fakeExpirer{}, DefaultConfig())
	m.CleanupJobLogs(context.Background())

	var logs []model.CronJobLog
	require.NoError(t, db.Find(&logs).Error)
	require.Len(t, logs, 1, "only the cleanup run's own log remains")
	assert.Equal(t, JobCleanupJobLogs, logs[0].JobName)
	assert.Equal(t, 1, logs[0].Affected)
}

func TestStartStop(t *testing.T) {
	m := NewCronManager(nil, &fakeExpirer{}, DefaultConfig())
	require.NoError(t, m.Start())
	m.Stop()

	bad := DefaultConfig()
	bad.ExpireSchedule = "not a schedule"
	assert.Error(t, NewCronManager(nil, &fakeExpirer{}, bad).Start())
}

func TestJobs_CleanupNeedsDatabase(t *testing.T) {
	withoutDB := NewCronManager(nil, &fakeExpirer{}, DefaultConfig()).jobs()
	require.Len(t, withoutDB, 2)
	assert.Equal(t, JobExpireStaleSessions, withoutDB[0].name)
	assert.Equal(t, JobFailStuckSessions, withoutDB[1].name)

	withDB := NewCronManager(newDB(t), &fakeExpirer{}, DefaultConfig()).jobs()
	assert.Len(t, withDB, 3)
}

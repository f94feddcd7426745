package database

import (
	"context"
	stdlog "log"
	"os"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/sahilchouksey/study-artifacts/config"
	"github.com/sahilchouksey/study-artifacts/model"
)

// Storage is the database handle the API and CLIs share
type Storage interface {
	Init() error
	Close() error
	HealthCheck(ctx context.Context) error
	DB() *gorm.DB
}

const (
	maxOpenConns    = 50
	maxIdleConns    = 10
	connMaxLifetime = time.Hour
	// stage outcome writes are small; anything slower is worth a log line
	slowQueryThreshold = 500 * time.Millisecond
)

type GORMStore struct {
	db *gorm.DB
}

// StartGORM opens the PostgreSQL connection pool. Queries run in UTC so
// session timestamps compare correctly across instances.
func StartGORM(env *config.EnviornmentVariable) (*GORMStore, error) {
	level := logger.Warn
	if env.GO_ENV == "production" {
		level = logger.Error
	}
	gormLogger := logger.New(stdlog.New(os.Stdout, "\r\n", stdlog.LstdFlags), logger.Config{
		SlowThreshold:             slowQueryThreshold,
		LogLevel:                  level,
		IgnoreRecordNotFoundError: true,
	})

	db, err := gorm.Open(postgres.Open(env.DSN()+" TimeZone=UTC"), &gorm.Config{
		Logger:      gormLogger,
		PrepareStmt: true,
		NowFunc:     func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		log.Errorf("Unable to connect to PostgreSQL with GORM: %v", err)
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(maxOpenConns)
	sqlDB.SetMaxIdleConns(maxIdleConns)
	sqlDB.SetConnMaxLifetime(connMaxLifetime)

	log.Info("Successfully connected to PostgreSQL Database with GORM.")
	return NewGORMStore(db), nil
}

func NewGORMStore(db *gorm.DB) *GORMStore {
	return &GORMStore{db: db}
}

// Models lists the session tables in dependency order
func Models() []interface{} {
	return []interface{}{
		&model.ProcessingSession{},
		&model.Document{},
		&model.StageOutcomeRecord{},
		&model.CronJobLog{},
	}
}

// Init creates or updates the session tables
func (s *GORMStore) Init() error {
	log.Info("Migrating session tables...")
	if err := s.db.AutoMigrate(Models()...); err != nil {
		log.Errorf("Error running AutoMigrate: %v", err)
		return err
	}
	log.Info("Session tables are up to date")
	return nil
}

func (s *GORMStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	log.Info("Closing PostgreSQL connection pool...")
	return sqlDB.Close()
}

func (s *GORMStore) DB() *gorm.DB {
	return s.db
}

// HealthCheck pings the pool. Wired into GET /health.
func (s *GORMStore) HealthCheck(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
